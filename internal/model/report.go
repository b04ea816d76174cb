package model

import "time"

// Report is an LLM-generated behavioral summary for a child over a period.
type Report struct {
	ID          int64     `json:"id"`
	ChildID     int64     `json:"child_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Summary     string    `json:"summary"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
}
