package models

import "time"

// TestCase is a teacher-authored input/expected-output pair with scoring and
// resource limits. Its input and output blobs are addressed by the test case ID.
type TestCase struct {
	ID                 uint      `json:"id"`
	AssignmentID       uint      `json:"assignment_id"`
	InputFileName      string    `json:"input_file_name"`
	OutputFileName     string    `json:"output_file_name"`
	Points             float64   `json:"points"`
	MaxExecutionTimeMs int       `json:"max_execution_time_ms"`
	MaxRAMMB           int       `json:"max_ram_mb"`
	AddedBy            string    `json:"added_by"`
	AddedAt            time.Time `json:"added_at"`
	Visible            bool      `json:"visible"`
}
