package service

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workbench/internal/classroomtest"
	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/models"
)

type workspaceFixture struct {
	server    *classroomtest.Server
	workspace *Workspace
	events    *recordingPublisher
	timers    *manualTimers
}

func newWorkspaceFixture(t *testing.T, assignment models.Assignment) workspaceFixture {
	t.Helper()
	server := classroomtest.New(t)
	server.AddAssignment(assignment)

	events := &recordingPublisher{}
	timers := &manualTimers{}
	workspace := NewWorkspace(assignment.ID, newGateway(t, server), events, WorkspaceConfig{
		SolutionFileName:  "main.cpp",
		DefaultLanguage:   "cpp",
		SaveFeedbackDelay: time.Second,
		AfterFunc:         timers.After,
	}, zerolog.Nop())

	return workspaceFixture{server: server, workspace: workspace, events: events, timers: timers}
}

func TestWorkspaceLoadWithoutSubmission(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 1, Title: "Loops", IsCodeAssignment: true})

	require.NoError(t, fx.workspace.Load(testContext(t)))

	view := fx.workspace.View()
	require.Equal(t, "Loops", view.Assignment.Title)
	require.Nil(t, view.Submission)
	require.Equal(t, string(StatusNotStarted), view.State.Status)
	require.True(t, view.State.CanModify)
	require.Equal(t, "Start solution", view.Editor.ActionText)
	require.Equal(t, string(FileAbsent), view.Editor.Lifecycle)
	require.False(t, view.CanEvaluate)
	require.False(t, view.Evaluation.CanEvaluate)
	require.Contains(t, fx.events.Types(), dto.EventWorkspaceRefreshed)
}

func TestWorkspaceLoadShowsSubmissionErrorAsBanner(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 1, Title: "Loops", IsCodeAssignment: true})
	fx.server.Fail("get_my_submission", fiber.StatusInternalServerError, "submissions store down")
	ctx := testContext(t)

	require.NoError(t, fx.workspace.Load(ctx))
	require.True(t, fx.workspace.Loaded())

	view := fx.workspace.View()
	require.Equal(t, "Loops", view.Assignment.Title)
	require.Equal(t, "submissions store down", view.LoadError)
	require.False(t, view.State.CanModify)
	require.False(t, view.CanEvaluate)

	require.ErrorIs(t, fx.workspace.OpenSolution(ctx), ErrSubmissionUnknown)
	require.ErrorIs(t, fx.workspace.TurnIn(ctx), ErrSubmissionUnknown)
	_, err := fx.workspace.Evaluate(ctx, "")
	require.ErrorIs(t, err, ErrSubmissionUnknown)
	require.Zero(t, fx.server.Calls("create_virtual_file"))

	fx.server.ClearFailure("get_my_submission")
	require.NoError(t, fx.workspace.Load(ctx))

	view = fx.workspace.View()
	require.Empty(t, view.LoadError)
	require.True(t, view.State.CanModify)
	require.NoError(t, fx.workspace.OpenSolution(ctx))
}

func TestWorkspaceCanEvaluateOnceSolutionExists(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 9, IsCodeAssignment: true})
	fx.server.SetSubmission(models.Submission{ID: 90, AssignmentID: 9, Files: []models.SubmittedFile{{ID: 91, FileName: "main.cpp"}}}, map[uint]string{91: ""})
	require.NoError(t, fx.workspace.Load(testContext(t)))

	view := fx.workspace.View()
	require.True(t, view.CanEvaluate)
	require.True(t, view.Evaluation.CanEvaluate)
	require.Equal(t, "Edit solution", view.Editor.ActionText)
}

func TestWorkspaceReloadClearsEvaluationResult(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 10, IsCodeAssignment: true})
	fx.server.SetSubmission(models.Submission{ID: 100, AssignmentID: 10, Files: []models.SubmittedFile{{ID: 101, FileName: "main.cpp"}}}, map[uint]string{101: ""})
	ctx := testContext(t)
	require.NoError(t, fx.workspace.Load(ctx))

	_, err := fx.workspace.Evaluate(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, fx.workspace.View().Evaluation.Result)

	require.NoError(t, fx.workspace.Load(ctx))
	require.Nil(t, fx.workspace.View().Evaluation.Result)
}

func TestWorkspaceLoadSurfacesAssignmentError(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 1})
	fx.server.Fail("get_assignment", fiber.StatusServiceUnavailable, "platform maintenance")

	err := fx.workspace.Load(testContext(t))
	require.Error(t, err)
	require.Equal(t, "platform maintenance", fx.workspace.View().LoadError)

	require.ErrorIs(t, fx.workspace.OpenSolution(testContext(t)), ErrWorkspaceNotLoaded)
}

func TestWorkspaceRefetchFailureKeepsSnapshot(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 2})
	fx.server.SetSubmission(models.Submission{ID: 20, AssignmentID: 2}, nil)
	require.NoError(t, fx.workspace.Load(testContext(t)))

	fx.server.Fail("get_my_submission", fiber.StatusInternalServerError, "")
	require.Error(t, fx.workspace.Refetch(testContext(t)))

	view := fx.workspace.View()
	require.NotNil(t, view.Submission)
	require.Equal(t, uint(20), view.Submission.ID)
	require.Equal(t, "unexpected error from classroom service", view.LoadError)
	require.Equal(t, string(StatusInProgress), view.State.Status)
}

func TestWorkspaceTurnInLocksEveryMutation(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 3, IsCodeAssignment: true})
	fx.server.SetSubmission(models.Submission{
		ID:           30,
		AssignmentID: 3,
		Files: []models.SubmittedFile{
			{ID: 31, FileName: "main.cpp"},
			{ID: 32, FileName: "notes.txt"},
		},
	}, map[uint]string{31: "int main() {}", 32: "notes"})
	ctx := testContext(t)

	require.NoError(t, fx.workspace.Load(ctx))
	require.NoError(t, fx.workspace.TurnIn(ctx))

	state := fx.workspace.State()
	require.Equal(t, StatusTurnedIn, state.Status)
	require.False(t, state.CanModify)

	require.ErrorIs(t, fx.workspace.OpenSolution(ctx), ErrSubmissionLocked)
	require.ErrorIs(t, fx.workspace.EditSolution("changed"), ErrSubmissionLocked)
	require.ErrorIs(t, fx.workspace.SaveSolution(ctx), ErrSubmissionLocked)
	require.ErrorIs(t, fx.workspace.UploadAttachment(ctx, LocalFile{Name: "a.txt", Content: []byte("a")}), ErrSubmissionLocked)
	require.ErrorIs(t, fx.workspace.DeleteAttachment(ctx, 32, true), ErrSubmissionLocked)
	require.ErrorIs(t, fx.workspace.TurnIn(ctx), ErrSubmissionLocked)

	require.Zero(t, fx.server.Calls("get_file_content"))
	require.Zero(t, fx.server.Calls("save_file_content"))
	require.Zero(t, fx.server.Calls("upload_file"))
	require.Zero(t, fx.server.Calls("delete_file"))
	require.Equal(t, 1, fx.server.Calls("submit_submission"))
}

func TestWorkspaceTurnInLateAfterDueDate(t *testing.T) {
	due := time.Now().Add(-time.Hour)
	fx := newWorkspaceFixture(t, models.Assignment{ID: 4, DueDate: &due})
	fx.server.SetSubmission(models.Submission{ID: 40, AssignmentID: 4}, nil)
	ctx := testContext(t)

	require.NoError(t, fx.workspace.Load(ctx))
	require.True(t, fx.workspace.View().Assignment.PastDue)
	require.NoError(t, fx.workspace.TurnIn(ctx))
	require.Equal(t, StatusTurnedInLate, fx.workspace.State().Status)
}

func TestWorkspaceTurnInWithoutSubmission(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 5})
	require.NoError(t, fx.workspace.Load(testContext(t)))

	require.ErrorIs(t, fx.workspace.TurnIn(testContext(t)), ErrNothingToTurnIn)
	require.Zero(t, fx.server.Calls("submit_submission"))
}

func TestWorkspaceTurnInFailureIsShown(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 6})
	fx.server.SetSubmission(models.Submission{ID: 60, AssignmentID: 6}, nil)
	fx.server.Fail("submit_submission", fiber.StatusConflict, "submission window closed")
	ctx := testContext(t)

	require.NoError(t, fx.workspace.Load(ctx))
	require.Error(t, fx.workspace.TurnIn(ctx))

	view := fx.workspace.View()
	require.Equal(t, "submission window closed", view.TurnInError)
	require.False(t, view.TurningIn)
	require.True(t, view.State.CanModify)
}

func TestWorkspaceGradedSubmissionIsLocked(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 7})
	feedback := "<b>Nice</b> work<script>x()</script>"
	fx.server.SetSubmission(models.Submission{ID: 70, AssignmentID: 7, Feedback: &feedback}, nil)
	fx.server.Grade(7, 95)

	require.NoError(t, fx.workspace.Load(testContext(t)))

	view := fx.workspace.View()
	require.Equal(t, string(StatusGraded), view.State.Status)
	require.False(t, view.State.CanModify)
	require.Equal(t, "Nice work", *view.Submission.Feedback)
}

func TestWorkspaceEvaluateRequiresCodeAssignment(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 8, IsCodeAssignment: false})
	fx.server.SetSubmission(models.Submission{ID: 80, AssignmentID: 8, Files: []models.SubmittedFile{{ID: 81, FileName: "main.cpp"}}}, nil)
	require.NoError(t, fx.workspace.Load(testContext(t)))

	_, err := fx.workspace.Evaluate(testContext(t), "")
	require.ErrorIs(t, err, ErrNotCodeAssignment)
	require.Zero(t, fx.server.Calls("trigger_evaluation"))
}
