package dto

import (
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/gema-workbench/internal/models"
)

// AssignmentView is the assignment header shown at the top of the workbench.
type AssignmentView struct {
	ID               uint       `json:"id"`
	Title            string     `json:"title"`
	Instructions     string     `json:"instructions"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	MaxPoints        *float64   `json:"max_points,omitempty"`
	IsCodeAssignment bool       `json:"is_code_assignment"`
	PastDue          bool       `json:"past_due"`
}

// SubmittedFileView describes a file attached to the submission.
type SubmittedFileView struct {
	ID          uint      `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Deleting    bool      `json:"deleting"`
}

// SubmissionView is the student's submission as last fetched.
type SubmissionView struct {
	ID          uint       `json:"id"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	IsLate      bool       `json:"is_late"`
	Grade       *float64   `json:"grade,omitempty"`
	Feedback    *string    `json:"feedback,omitempty"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}

// SubmissionStateView is the derived status of the submission.
type SubmissionStateView struct {
	Status    string `json:"status"`
	CanModify bool   `json:"can_modify"`
}

// EditorView reflects the solution editor for the canonical file.
type EditorView struct {
	FileName   string `json:"file_name"`
	Lifecycle  string `json:"lifecycle"`
	Open       bool   `json:"open"`
	Opening    bool   `json:"opening"`
	FileID     uint   `json:"file_id,omitempty"`
	Buffer     string `json:"buffer"`
	SaveState  string `json:"save_state"`
	SaveError  string `json:"save_error,omitempty"`
	Error      string `json:"error,omitempty"`
	ActionText string `json:"action_text"`
}

// AttachmentView lists auxiliary files and the upload/delete progress.
type AttachmentView struct {
	Files       []SubmittedFileView `json:"files"`
	Selected    string              `json:"selected,omitempty"`
	Uploading   bool                `json:"uploading"`
	UploadError string              `json:"upload_error,omitempty"`
	DeleteError string              `json:"delete_error,omitempty"`
}

// WorkspaceView aggregates everything the workbench renders for one assignment.
type WorkspaceView struct {
	Assignment  *AssignmentView     `json:"assignment,omitempty"`
	Submission  *SubmissionView     `json:"submission,omitempty"`
	State       SubmissionStateView `json:"state"`
	CanEvaluate bool                `json:"can_evaluate"`
	LoadError   string              `json:"load_error,omitempty"`
	TurningIn   bool                `json:"turning_in"`
	TurnInError string              `json:"turn_in_error,omitempty"`
	Editor      EditorView          `json:"editor"`
	Attachments AttachmentView      `json:"attachments"`
	Evaluation  EvaluationPanelView `json:"evaluation"`
}

// BufferUpdateRequest replaces the editor buffer or a test-case pane.
type BufferUpdateRequest struct {
	Content string `json:"content"`
}

// NewAssignmentView converts an assignment into its view, sanitising the
// instructions with the provided policy.
func NewAssignmentView(assignment models.Assignment, policy *bluemonday.Policy, now time.Time) AssignmentView {
	instructions := assignment.Instructions
	if policy != nil {
		instructions = strings.TrimSpace(policy.Sanitize(instructions))
	}

	return AssignmentView{
		ID:               assignment.ID,
		Title:            assignment.Title,
		Instructions:     instructions,
		DueDate:          assignment.DueDate,
		MaxPoints:        assignment.MaxPoints,
		IsCodeAssignment: assignment.IsCodeAssignment,
		PastDue:          assignment.IsPastDue(now),
	}
}

// NewSubmissionView converts a submission into its view. Feedback is passed
// through the policy since graders may paste markup.
func NewSubmissionView(submission models.Submission, policy *bluemonday.Policy) SubmissionView {
	feedback := submission.Feedback
	if feedback != nil && policy != nil {
		clean := strings.TrimSpace(policy.Sanitize(*feedback))
		feedback = &clean
	}

	return SubmissionView{
		ID:          submission.ID,
		SubmittedAt: submission.SubmittedAt,
		IsLate:      submission.IsLate,
		Grade:       submission.Grade,
		Feedback:    feedback,
		GradedAt:    submission.GradedAt,
	}
}

// NewSubmittedFileView converts a submitted file.
func NewSubmittedFileView(file models.SubmittedFile, deleting bool) SubmittedFileView {
	return SubmittedFileView{
		ID:          file.ID,
		FileName:    file.FileName,
		ContentType: file.ContentType,
		SizeBytes:   file.SizeBytes,
		UploadedAt:  file.UploadedAt,
		Deleting:    deleting,
	}
}
