package dto

import "time"

// Workbench event types pushed to stream subscribers.
const (
	EventSaveState          = "save_state"
	EventWorkspaceRefreshed = "workspace_refreshed"
	EventSubmissionTurnedIn = "submission_turned_in"
	EventAttachmentUploaded = "attachment_uploaded"
	EventAttachmentDeleted  = "attachment_deleted"
	EventEvaluationStarted  = "evaluation_started"
	EventEvaluationFinished = "evaluation_finished"
	EventTestCaseCreated    = "test_case_created"
	EventTestCaseDeleted    = "test_case_deleted"
	EventTestCasePanel      = "test_case_panel"
)

// WorkbenchEvent is a state change notification.
type WorkbenchEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	AssignmentID uint      `json:"assignment_id"`
	Subject      string    `json:"subject,omitempty"`
	State        string    `json:"state,omitempty"`
	Message      string    `json:"message,omitempty"`
	At           time.Time `json:"at"`
}
