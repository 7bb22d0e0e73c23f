package dto

import (
	"github.com/noah-isme/gema-workbench/internal/models"
)

// Tone values used to colour evaluation outcomes.
const (
	TonePass    = "pass"
	ToneWarning = "warning"
	ToneFail    = "fail"
)

var testCaseLabels = map[string]string{
	models.TestCaseStatusAccepted:             "Accepted",
	models.TestCaseStatusWrongAnswer:          "Wrong answer",
	models.TestCaseStatusCompileError:         "Compile error",
	models.TestCaseStatusRuntimeError:         "Runtime error",
	models.TestCaseStatusTimeLimitExceeded:    "Time limit exceeded",
	models.TestCaseStatusMemoryLimitExceeded:  "Memory limit exceeded",
	models.TestCaseStatusFileError:            "File error",
	models.TestCaseStatusLanguageNotSupported: "Language not supported",
	models.TestCaseStatusInternalError:        "Internal error",
}

// TestCaseResultView is one row of the evaluation results table.
type TestCaseResultView struct {
	TestCaseID   uint    `json:"test_case_id"`
	TestCaseName string  `json:"test_case_name,omitempty"`
	Status       string  `json:"status"`
	Label        string  `json:"label"`
	Tone         string  `json:"tone"`
	Stdout       *string `json:"stdout,omitempty"`
	Stderr       *string `json:"stderr,omitempty"`
	Message      *string `json:"message,omitempty"`
	DurationMs   *int64  `json:"duration_ms,omitempty"`
}

// EvaluationView renders an evaluation result.
type EvaluationView struct {
	SubmissionID       uint                 `json:"submission_id"`
	Language           string               `json:"language"`
	Status             string               `json:"status"`
	Tone               string               `json:"tone"`
	CompilationSuccess bool                 `json:"compilation_success"`
	CompilerOutput     *string              `json:"compiler_output,omitempty"`
	PointsObtained     *float64             `json:"points_obtained,omitempty"`
	PointsPossible     *float64             `json:"points_possible,omitempty"`
	Passed             int                  `json:"passed"`
	Total              int                  `json:"total"`
	Results            []TestCaseResultView `json:"results"`
}

// EvaluationPanelView is the evaluation area of the workbench: the last result
// plus whatever run is currently in flight.
type EvaluationPanelView struct {
	Evaluating  bool            `json:"evaluating"`
	CanEvaluate bool            `json:"can_evaluate"`
	Error       string          `json:"error,omitempty"`
	Result      *EvaluationView `json:"result,omitempty"`
}

// EvaluationRequest selects the language for a run. An empty language falls
// back to the configured default.
type EvaluationRequest struct {
	Language string `json:"language" query:"language" validate:"omitempty,alphanum,max=16"`
}

// OverallTone classifies an overall evaluation status.
func OverallTone(status string) string {
	result := models.EvaluationResult{Status: status}
	switch {
	case result.IsAccepted():
		return TonePass
	case result.HasIssues():
		return ToneWarning
	default:
		return ToneFail
	}
}

// TestCaseTone classifies a single test-case status.
func TestCaseTone(status string) string {
	if status == models.TestCaseStatusAccepted {
		return TonePass
	}
	return ToneFail
}

// TestCaseLabel returns the human readable label for a status, or the raw
// status when it is not one the platform documents.
func TestCaseLabel(status string) string {
	if label, ok := testCaseLabels[status]; ok {
		return label
	}
	return status
}

// NewEvaluationView converts an evaluation result into its view.
func NewEvaluationView(result models.EvaluationResult) EvaluationView {
	view := EvaluationView{
		SubmissionID:       result.SubmissionID,
		Language:           result.Language,
		Status:             result.Status,
		Tone:               OverallTone(result.Status),
		CompilationSuccess: result.CompilationSuccess,
		CompilerOutput:     result.CompilerOutput,
		PointsObtained:     result.PointsObtained,
		PointsPossible:     result.PointsPossible,
		Total:              len(result.TestCaseResults),
		Results:            make([]TestCaseResultView, 0, len(result.TestCaseResults)),
	}

	for _, item := range result.TestCaseResults {
		if item.Passed() {
			view.Passed++
		}
		view.Results = append(view.Results, TestCaseResultView{
			TestCaseID:   item.TestCaseID,
			TestCaseName: item.TestCaseName,
			Status:       item.Status,
			Label:        TestCaseLabel(item.Status),
			Tone:         TestCaseTone(item.Status),
			Stdout:       item.Stdout,
			Stderr:       item.Stderr,
			Message:      item.Message,
			DurationMs:   item.DurationMs,
		})
	}

	return view
}
