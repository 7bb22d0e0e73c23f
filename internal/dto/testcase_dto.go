package dto

import (
	"time"

	"github.com/noah-isme/gema-workbench/internal/models"
)

// Test-case panel load states.
const (
	PanelLoading = "loading"
	PanelReady   = "ready"
	PanelPartial = "partial"
	PanelFailed  = "failed"
)

// TestCaseCreateRequest is the payload for creating a test case. The name
// becomes the stem of the .in and .out files.
type TestCaseCreateRequest struct {
	Name               string  `json:"name" validate:"required,max=64,testcase_name"`
	Points             float64 `json:"points" validate:"gte=0"`
	MaxExecutionTimeMs int     `json:"max_execution_time_ms" validate:"gte=0"`
	MaxRAMMB           int     `json:"max_ram_mb" validate:"gte=0"`
	Visible            bool    `json:"visible"`
}

// TestCaseView is one row of the test-case list.
type TestCaseView struct {
	ID                 uint      `json:"id"`
	InputFileName      string    `json:"input_file_name"`
	OutputFileName     string    `json:"output_file_name"`
	Points             float64   `json:"points"`
	MaxExecutionTimeMs int       `json:"max_execution_time_ms"`
	MaxRAMMB           int       `json:"max_ram_mb"`
	AddedBy            string    `json:"added_by"`
	AddedAt            time.Time `json:"added_at"`
	Visible            bool      `json:"visible"`
	Expanded           bool      `json:"expanded"`
	Deleting           bool      `json:"deleting"`
}

// PaneView is the input or output side of an expanded test case.
type PaneView struct {
	Loaded    bool   `json:"loaded"`
	Content   string `json:"content"`
	Error     string `json:"error,omitempty"`
	SaveState string `json:"save_state"`
	SaveError string `json:"save_error,omitempty"`
}

// TestCasePanelView is the expanded panel of one test case.
type TestCasePanelView struct {
	TestCaseID uint     `json:"test_case_id"`
	State      string   `json:"state"`
	Error      string   `json:"error,omitempty"`
	Input      PaneView `json:"input"`
	Output     PaneView `json:"output"`
}

// TestCaseListView is the whole test-case editor.
type TestCaseListView struct {
	AssignmentID uint                `json:"assignment_id"`
	Loaded       bool                `json:"loaded"`
	Error        string              `json:"error,omitempty"`
	Creating     bool                `json:"creating"`
	CreateError  string              `json:"create_error,omitempty"`
	DeleteError  string              `json:"delete_error,omitempty"`
	TestCases    []TestCaseView      `json:"test_cases"`
	Panels       []TestCasePanelView `json:"panels"`
}

// NewTestCaseView converts a test case into its list row.
func NewTestCaseView(testCase models.TestCase, expanded, deleting bool) TestCaseView {
	return TestCaseView{
		ID:                 testCase.ID,
		InputFileName:      testCase.InputFileName,
		OutputFileName:     testCase.OutputFileName,
		Points:             testCase.Points,
		MaxExecutionTimeMs: testCase.MaxExecutionTimeMs,
		MaxRAMMB:           testCase.MaxRAMMB,
		AddedBy:            testCase.AddedBy,
		AddedAt:            testCase.AddedAt,
		Visible:            testCase.Visible,
		Expanded:           expanded,
		Deleting:           deleting,
	}
}
