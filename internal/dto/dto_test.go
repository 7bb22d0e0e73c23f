package dto

import (
	"testing"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workbench/internal/models"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestOverallTone(t *testing.T) {
	require.Equal(t, TonePass, OverallTone("Accepted"))
	require.Equal(t, ToneWarning, OverallTone("Accepted with Issues"))
	require.Equal(t, ToneFail, OverallTone("Compilation Failed"))
	require.Equal(t, ToneFail, OverallTone("accepted"))
	require.Equal(t, ToneFail, OverallTone(""))
}

func TestTestCaseToneOnlyAcceptedPasses(t *testing.T) {
	require.Equal(t, TonePass, TestCaseTone(models.TestCaseStatusAccepted))
	for _, status := range []string{
		models.TestCaseStatusWrongAnswer,
		models.TestCaseStatusCompileError,
		models.TestCaseStatusRuntimeError,
		models.TestCaseStatusTimeLimitExceeded,
		models.TestCaseStatusMemoryLimitExceeded,
		models.TestCaseStatusFileError,
		models.TestCaseStatusLanguageNotSupported,
		models.TestCaseStatusInternalError,
		"SOMETHING_NEW",
	} {
		require.Equal(t, ToneFail, TestCaseTone(status), status)
	}
	require.Equal(t, "SOMETHING_NEW", TestCaseLabel("SOMETHING_NEW"))
}

func TestNewEvaluationViewCountsPasses(t *testing.T) {
	view := NewEvaluationView(models.EvaluationResult{
		Status: "Accepted with Issues",
		TestCaseResults: []models.TestCaseResult{
			{TestCaseID: 1, Status: models.TestCaseStatusAccepted},
			{TestCaseID: 2, Status: models.TestCaseStatusTimeLimitExceeded},
		},
	})

	require.Equal(t, ToneWarning, view.Tone)
	require.Equal(t, 1, view.Passed)
	require.Equal(t, 2, view.Total)
	require.Equal(t, "Time limit exceeded", view.Results[1].Label)
	require.Equal(t, ToneFail, view.Results[1].Tone)
}

func TestTestCaseNameValidation(t *testing.T) {
	validate := NewValidator()

	require.NoError(t, validate.Struct(TestCaseCreateRequest{Name: "edge_case-01"}))
	require.Error(t, validate.Struct(TestCaseCreateRequest{Name: ""}))
	require.Error(t, validate.Struct(TestCaseCreateRequest{Name: "has space"}))
	require.Error(t, validate.Struct(TestCaseCreateRequest{Name: "../escape"}))
	require.Error(t, validate.Struct(TestCaseCreateRequest{Name: "ok", Points: -1}))
}

func TestAssignmentViewSanitisesInstructions(t *testing.T) {
	view := NewAssignmentView(models.Assignment{
		ID:           1,
		Instructions: `<p>Sum two numbers</p><script>alert(1)</script>`,
	}, bluemonday.UGCPolicy(), testNow)

	require.Equal(t, "<p>Sum two numbers</p>", view.Instructions)
	require.False(t, view.PastDue)
}
