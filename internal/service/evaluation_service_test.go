package service

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/models"
)

func TestEvaluateWithoutSubmissionMakesNoCall(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 1, IsCodeAssignment: true})
	require.NoError(t, fx.workspace.Load(testContext(t)))

	_, err := fx.workspace.Evaluate(testContext(t), "cpp")
	require.ErrorIs(t, err, ErrEvaluationNoSubmission)
	require.Zero(t, fx.server.Calls("trigger_evaluation"))
	require.Equal(t, ErrEvaluationNoSubmission.Error(), fx.workspace.View().Evaluation.Error)
}

func TestEvaluateWithoutSolutionFileMakesNoCall(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 2, IsCodeAssignment: true})
	fx.server.SetSubmission(models.Submission{
		ID:           20,
		AssignmentID: 2,
		Files:        []models.SubmittedFile{{ID: 21, FileName: "notes.txt"}},
	}, nil)
	require.NoError(t, fx.workspace.Load(testContext(t)))

	_, err := fx.workspace.Evaluate(testContext(t), "cpp")
	require.ErrorIs(t, err, ErrEvaluationNoSolution)
	require.Zero(t, fx.server.Calls("trigger_evaluation"))
}

func TestEvaluateRendersTones(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 3, IsCodeAssignment: true})
	fx.server.SetSubmission(models.Submission{
		ID:           30,
		AssignmentID: 3,
		Files:        []models.SubmittedFile{{ID: 31, FileName: "main.cpp"}},
	}, nil)
	message := "expected 3"
	fx.server.SetEvaluation(3, models.EvaluationResult{
		Status:             "Accepted with Issues",
		CompilationSuccess: true,
		TestCaseResults: []models.TestCaseResult{
			{TestCaseID: 1, Status: models.TestCaseStatusAccepted},
			{TestCaseID: 2, Status: models.TestCaseStatusWrongAnswer, Message: &message},
		},
	})
	require.NoError(t, fx.workspace.Load(testContext(t)))

	view, err := fx.workspace.Evaluate(testContext(t), "")
	require.NoError(t, err)
	require.Equal(t, "cpp", view.Language)
	require.Equal(t, dto.ToneWarning, view.Tone)
	require.Equal(t, dto.TonePass, view.Results[0].Tone)
	require.Equal(t, dto.ToneFail, view.Results[1].Tone)
	require.Equal(t, "expected 3", *view.Results[1].Message)

	panel := fx.workspace.View().Evaluation
	require.False(t, panel.Evaluating)
	require.NotNil(t, panel.Result)
	require.Equal(t, []string{dto.EventEvaluationStarted, dto.EventEvaluationFinished}, filterEvaluationEvents(fx.events.Types()))
}

func TestEvaluateFailureKeepsPreviousResult(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 4, IsCodeAssignment: true})
	fx.server.SetSubmission(models.Submission{
		ID:           40,
		AssignmentID: 4,
		Files:        []models.SubmittedFile{{ID: 41, FileName: "main.cpp"}},
	}, nil)
	ctx := testContext(t)
	require.NoError(t, fx.workspace.Load(ctx))

	_, err := fx.workspace.Evaluate(ctx, "cpp")
	require.NoError(t, err)

	fx.server.Fail("trigger_evaluation", fiber.StatusServiceUnavailable, "judge offline")
	_, err = fx.workspace.Evaluate(ctx, "cpp")
	require.Error(t, err)

	panel := fx.workspace.View().Evaluation
	require.Equal(t, "judge offline", panel.Error)
	require.NotNil(t, panel.Result)
	require.Equal(t, dto.TonePass, panel.Result.Tone)
}

func TestEvaluationBlocksOpenSaveAndSecondRun(t *testing.T) {
	fx := newWorkspaceFixture(t, models.Assignment{ID: 5, IsCodeAssignment: true})
	fx.server.SetSubmission(models.Submission{
		ID:           50,
		AssignmentID: 5,
		Files:        []models.SubmittedFile{{ID: 51, FileName: "main.cpp"}},
	}, map[uint]string{51: "int main() {}"})
	ctx := testContext(t)
	require.NoError(t, fx.workspace.Load(ctx))
	require.NoError(t, fx.workspace.OpenSolution(ctx))

	entered := make(chan struct{})
	release := make(chan struct{})
	fx.server.Hook("trigger_evaluation", func() {
		close(entered)
		<-release
	})

	done := make(chan error, 1)
	go func() {
		_, err := fx.workspace.Evaluate(ctx, "cpp")
		done <- err
	}()
	<-entered

	require.True(t, fx.workspace.View().Evaluation.Evaluating)
	require.ErrorIs(t, fx.workspace.SaveSolution(ctx), ErrEvaluationInProgress)
	require.ErrorIs(t, fx.workspace.OpenSolution(ctx), ErrEvaluationInProgress)
	_, err := fx.workspace.Evaluate(ctx, "cpp")
	require.ErrorIs(t, err, ErrEvaluationInProgress)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, 1, fx.server.Calls("trigger_evaluation"))
	require.NoError(t, fx.workspace.SaveSolution(ctx))
}

func filterEvaluationEvents(types []string) []string {
	filtered := make([]string, 0, len(types))
	for _, eventType := range types {
		if eventType == dto.EventEvaluationStarted || eventType == dto.EventEvaluationFinished {
			filtered = append(filtered, eventType)
		}
	}
	return filtered
}
