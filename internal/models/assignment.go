package models

import "time"

// Assignment is the platform's assignment definition as seen by the workbench.
type Assignment struct {
	ID               uint       `json:"id"`
	Title            string     `json:"title"`
	Instructions     string     `json:"instructions"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	MaxPoints        *float64   `json:"max_points,omitempty"`
	IsCodeAssignment bool       `json:"is_code_assignment"`
}

// IsPastDue returns true when the assignment has a deadline that has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	if a.DueDate == nil {
		return false
	}
	return reference.After(*a.DueDate)
}
