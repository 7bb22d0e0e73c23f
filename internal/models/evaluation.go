package models

import "strings"

// Per-test-case statuses reported by the evaluation service.
const (
	TestCaseStatusAccepted             = "ACCEPTED"
	TestCaseStatusWrongAnswer          = "WRONG_ANSWER"
	TestCaseStatusCompileError         = "COMPILE_ERROR"
	TestCaseStatusRuntimeError         = "RUNTIME_ERROR"
	TestCaseStatusTimeLimitExceeded    = "TIME_LIMIT_EXCEEDED"
	TestCaseStatusMemoryLimitExceeded  = "MEMORY_LIMIT_EXCEEDED"
	TestCaseStatusFileError            = "FILE_ERROR"
	TestCaseStatusLanguageNotSupported = "LANGUAGE_NOT_SUPPORTED"
	TestCaseStatusInternalError        = "INTERNAL_ERROR"
)

// EvaluationStatusAccepted is the overall status of a fully passing run.
const EvaluationStatusAccepted = "Accepted"

// evaluationIssuesMarker marks an overall status describing partial correctness.
const evaluationIssuesMarker = "Issues"

// EvaluationResult is the outcome of one evaluation run. It is not stored by
// the workbench beyond the current view.
type EvaluationResult struct {
	SubmissionID       uint             `json:"submission_id"`
	Language           string           `json:"language"`
	Status             string           `json:"status"`
	CompilationSuccess bool             `json:"compilation_success"`
	CompilerOutput     *string          `json:"compiler_output,omitempty"`
	TestCaseResults    []TestCaseResult `json:"test_case_results"`
	PointsObtained     *float64         `json:"points_obtained,omitempty"`
	PointsPossible     *float64         `json:"points_possible,omitempty"`
}

// TestCaseResult is the verdict for a single test case.
type TestCaseResult struct {
	TestCaseID   uint    `json:"test_case_id"`
	TestCaseName string  `json:"test_case_name,omitempty"`
	Status       string  `json:"status"`
	Stdout       *string `json:"stdout,omitempty"`
	Stderr       *string `json:"stderr,omitempty"`
	Message      *string `json:"message,omitempty"`
	DurationMs   *int64  `json:"duration_ms,omitempty"`
}

// IsAccepted reports whether the whole run passed.
func (r EvaluationResult) IsAccepted() bool {
	return r.Status == EvaluationStatusAccepted
}

// HasIssues reports whether the run is partially correct.
func (r EvaluationResult) HasIssues() bool {
	return strings.Contains(r.Status, evaluationIssuesMarker)
}

// Passed reports whether this test case was accepted. Every other status,
// known or not, counts as failing.
func (r TestCaseResult) Passed() bool {
	return r.Status == TestCaseStatusAccepted
}
