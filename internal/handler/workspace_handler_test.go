package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/models"
)

func TestWorkspaceRequiresSession(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, Title: "Loops", IsCodeAssignment: true})

	resp := h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, h.server.Calls("get_assignment"))
}

func TestWorkspaceLoadsAssignment(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, Title: "Loops", Instructions: "<p>Sum</p><script>x()</script>", IsCodeAssignment: true})
	token := h.signIn(t)

	resp := h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var view dto.WorkspaceView
	payload := decode(t, resp, &view)
	require.True(t, payload.Success)
	require.Equal(t, "Loops", view.Assignment.Title)
	require.NotContains(t, view.Assignment.Instructions, "script")
	require.Nil(t, view.Submission)
	require.Equal(t, "not_started", view.State.Status)
	require.True(t, view.State.CanModify)
	require.Equal(t, "Start solution", view.Editor.ActionText)
	require.False(t, view.CanEvaluate)
	require.Equal(t, "Bearer "+token, h.server.LastAuthorization())

	// A second read is served from the loaded workspace.
	resp = h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, h.server.Calls("get_assignment"))

	resp = h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace?refresh=true")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 2, h.server.Calls("get_assignment"))
}

func TestWorkspaceRejectsInvalidAssignmentID(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.do(t, http.MethodGet, "/api/v1/assignments/abc/workspace")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWorkspaceUnknownAssignmentIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.do(t, http.MethodGet, "/api/v1/assignments/99/workspace")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestUpstreamFailureSurfacesPlatformMessage(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, IsCodeAssignment: true})
	h.server.Fail("get_assignment", fiber.StatusInternalServerError, "classroom is down for maintenance")
	h.signIn(t)

	resp := h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace")
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	payload := decode(t, resp, nil)
	require.False(t, payload.Success)
	require.Equal(t, "classroom is down for maintenance", payload.Message)
}

func TestSubmissionFetchFailureShowsBanner(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, Title: "Loops", IsCodeAssignment: true})
	h.server.Fail("get_my_submission", fiber.StatusInternalServerError, "submissions store down")
	h.signIn(t)

	resp := h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var view dto.WorkspaceView
	decode(t, resp, &view)
	require.NotNil(t, view.Assignment)
	require.Equal(t, "Loops", view.Assignment.Title)
	require.Equal(t, "submissions store down", view.LoadError)
	require.False(t, view.State.CanModify)
	require.False(t, view.CanEvaluate)

	resp = h.do(t, http.MethodPost, "/api/v1/assignments/1/solution/open")
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	require.Zero(t, h.server.Calls("create_virtual_file"))

	h.server.ClearFailure("get_my_submission")
	resp = h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace?refresh=true")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	view = dto.WorkspaceView{}
	decode(t, resp, &view)
	require.Empty(t, view.LoadError)
	require.True(t, view.State.CanModify)
}

func TestOpenEditAndSaveSolution(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, IsCodeAssignment: true})
	h.signIn(t)

	resp := h.do(t, http.MethodPost, "/api/v1/assignments/1/solution/open")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var editor dto.EditorView
	decode(t, resp, &editor)
	require.True(t, editor.Open)
	require.Equal(t, "present", editor.Lifecycle)
	require.NotZero(t, editor.FileID)
	require.Equal(t, 1, h.server.Calls("create_virtual_file"))

	resp = h.doJSON(t, http.MethodPut, "/api/v1/assignments/1/solution/buffer", dto.BufferUpdateRequest{Content: "int main() {}"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/assignments/1/solution/save")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decode(t, resp, &editor)
	require.Equal(t, "saved", editor.SaveState)

	content, ok := h.server.FileContent(editor.FileID)
	require.True(t, ok)
	require.Equal(t, "int main() {}", content)

	resp = h.do(t, http.MethodPost, "/api/v1/assignments/1/solution/close")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decode(t, resp, &editor)
	require.False(t, editor.Open)
	require.Empty(t, editor.Buffer)
}

func TestSaveWithoutOpenEditorIsRefused(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, IsCodeAssignment: true})
	h.signIn(t)

	resp := h.do(t, http.MethodPost, "/api/v1/assignments/1/solution/save")
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.Zero(t, h.server.Calls("save_file_content"))
}

func TestTurnedInSubmissionIsLocked(t *testing.T) {
	h := newHarness(t)
	submittedAt := time.Now().Add(-time.Hour)
	h.server.AddAssignment(models.Assignment{ID: 1, IsCodeAssignment: true})
	h.server.SetSubmission(models.Submission{ID: 3, AssignmentID: 1, SubmittedAt: &submittedAt}, nil)
	h.signIn(t)

	resp := h.do(t, http.MethodPost, "/api/v1/assignments/1/solution/open")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/assignments/1/workspace/turn-in")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Zero(t, h.server.Calls("create_virtual_file"))
	require.Zero(t, h.server.Calls("submit_submission"))
}

func TestTurnInLocksWorkspace(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, IsCodeAssignment: true})
	h.signIn(t)

	resp := h.do(t, http.MethodPost, "/api/v1/assignments/1/workspace/turn-in")
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/assignments/1/solution/open")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/assignments/1/workspace/turn-in")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var view dto.WorkspaceView
	decode(t, resp, &view)
	require.Equal(t, "turned_in", view.State.Status)
	require.False(t, view.State.CanModify)
}

func TestUploadAndDeleteAttachment(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1})
	h.signIn(t)

	body, contentType := multipartUpload(t, "notes.txt", []byte("remember the edge cases\n"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assignments/1/attachments", body)
	req.Header.Set(fiber.HeaderContentType, contentType)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var attachments dto.AttachmentView
	decode(t, resp, &attachments)
	require.Len(t, attachments.Files, 1)
	require.Equal(t, "notes.txt", attachments.Files[0].FileName)
	require.Contains(t, attachments.Files[0].ContentType, "text/plain")

	path := "/api/v1/assignments/1/attachments/" + itoa(attachments.Files[0].ID)
	resp = h.do(t, http.MethodDelete, path)
	require.Equal(t, fiber.StatusPreconditionRequired, resp.StatusCode)
	require.Zero(t, h.server.Calls("delete_file"))

	resp = h.do(t, http.MethodDelete, path+"?confirm=true")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decode(t, resp, &attachments)
	require.Empty(t, attachments.Files)
}

func TestUploadReportsSuccessWhenRefetchFails(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1})
	h.server.SetSubmission(models.Submission{ID: 3, AssignmentID: 1}, nil)
	h.signIn(t)

	resp := h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	h.server.Fail("get_my_submission", fiber.StatusInternalServerError, "submissions store down")

	body, contentType := multipartUpload(t, "notes.txt", []byte("notes\n"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assignments/1/attachments", body)
	req.Header.Set(fiber.HeaderContentType, contentType)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, 1, h.server.Calls("upload_file"))

	submission, ok := h.server.Submission(1)
	require.True(t, ok)
	require.Len(t, submission.Files, 1)
}

func TestUploadRequiresFile(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1})
	h.signIn(t)

	resp := h.do(t, http.MethodPost, "/api/v1/assignments/1/attachments")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRetryUploadWithoutFailedUpload(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1})
	h.signIn(t)

	resp := h.do(t, http.MethodPost, "/api/v1/assignments/1/attachments/retry")
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEvaluationPreconditions(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, IsCodeAssignment: true})
	h.server.AddAssignment(models.Assignment{ID: 2})
	h.signIn(t)

	resp := h.do(t, http.MethodPost, "/api/v1/assignments/1/evaluation")
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	payload := decode(t, resp, nil)
	require.Equal(t, "start your solution before running an evaluation", payload.Message)

	resp = h.do(t, http.MethodPost, "/api/v1/assignments/2/evaluation")
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/assignments/1/evaluation?language=c%2B%2B")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Zero(t, h.server.Calls("trigger_evaluation"))
}

func TestEvaluationReportsResults(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, IsCodeAssignment: true})
	h.server.AddTestCase(models.TestCase{ID: 5, AssignmentID: 1, InputFileName: "small.in", OutputFileName: "small.out"}, "1\n", "1\n")
	h.signIn(t)

	resp := h.do(t, http.MethodPost, "/api/v1/assignments/1/solution/open")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/assignments/1/evaluation?language=python")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result dto.EvaluationView
	decode(t, resp, &result)
	require.Equal(t, "python", result.Language)
	require.Equal(t, dto.TonePass, result.Tone)
	require.Equal(t, 1, result.Passed)
	require.Equal(t, 1, result.Total)

	resp = h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace")
	var loaded dto.WorkspaceView
	decode(t, resp, &loaded)
	require.True(t, loaded.CanEvaluate)

	resp = h.do(t, http.MethodGet, "/api/v1/assignments/1/workspace")
	var view dto.WorkspaceView
	decode(t, resp, &view)
	require.NotNil(t, view.Evaluation.Result)
	require.False(t, view.Evaluation.Evaluating)
}
