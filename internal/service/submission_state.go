package service

import (
	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/models"
)

// SubmissionStatus summarises where the student stands on an assignment.
type SubmissionStatus string

// Submission statuses.
const (
	StatusNotStarted   SubmissionStatus = "not_started"
	StatusInProgress   SubmissionStatus = "in_progress"
	StatusTurnedIn     SubmissionStatus = "turned_in"
	StatusTurnedInLate SubmissionStatus = "turned_in_late"
	StatusGraded       SubmissionStatus = "graded"
)

// SubmissionState is derived from the latest submission snapshot and is never
// stored on its own.
type SubmissionState struct {
	Status    SubmissionStatus
	CanModify bool
}

// DeriveSubmissionState computes the status of a possibly absent submission.
// A grade wins over a turn-in; once either exists the submission is locked.
func DeriveSubmissionState(submission *models.Submission) SubmissionState {
	switch {
	case submission == nil:
		return SubmissionState{Status: StatusNotStarted, CanModify: true}
	case submission.IsGraded():
		return SubmissionState{Status: StatusGraded}
	case submission.IsTurnedIn() && submission.IsLate:
		return SubmissionState{Status: StatusTurnedInLate}
	case submission.IsTurnedIn():
		return SubmissionState{Status: StatusTurnedIn}
	default:
		return SubmissionState{Status: StatusInProgress, CanModify: true}
	}
}

// View converts the state into its wire form.
func (s SubmissionState) View() dto.SubmissionStateView {
	return dto.SubmissionStateView{Status: string(s.Status), CanModify: s.CanModify}
}
