package models

import (
	"strings"
	"time"
)

// Submission is a student's work for one assignment. The platform creates it
// implicitly on the first file action.
type Submission struct {
	ID           uint            `json:"id"`
	AssignmentID uint            `json:"assignment_id"`
	StudentID    uint            `json:"student_id"`
	SubmittedAt  *time.Time      `json:"submitted_at,omitempty"`
	IsLate       bool            `json:"is_late"`
	Grade        *float64        `json:"grade,omitempty"`
	Feedback     *string         `json:"feedback,omitempty"`
	GradedAt     *time.Time      `json:"graded_at,omitempty"`
	GradedBy     *uint           `json:"graded_by,omitempty"`
	Files        []SubmittedFile `json:"files"`
}

// SubmittedFile describes one file attached to a submission.
type SubmittedFile struct {
	ID          uint      `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// IsTurnedIn reports whether the submission has been handed in.
func (s Submission) IsTurnedIn() bool {
	return s.SubmittedAt != nil
}

// IsGraded reports whether a grade has been recorded.
func (s Submission) IsGraded() bool {
	return s.Grade != nil
}

// FindFile returns the first file whose name matches name case-insensitively.
func (s Submission) FindFile(name string) (SubmittedFile, bool) {
	for _, file := range s.Files {
		if strings.EqualFold(file.FileName, name) {
			return file, true
		}
	}
	return SubmittedFile{}, false
}
