package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Workspace isolation: WorkspaceID is required.

type CallsSummaryRequest struct {
	WorkspaceID string    `json:"workspace_id"`
	Range       TimeRange `json:"range"`
}

type CallsSummary struct {
	WorkspaceID string `json:"workspace_id"`

	TotalCalls  int `json:"total_calls"`
	ActiveCalls int `json:"active_calls"`
	EndedCalls  int `json:"ended_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// LeadsCaptured counts calls where extraction produced at least one
	// structured lead field.
	LeadsCaptured   int `json:"leads_captured"`
	SummarizedCalls int `json:"summarized_calls"`

	Appointments             int `json:"appointments"`
	AppointmentsScheduled    int `json:"appointments_scheduled"`
	AppointmentsNeedFollowup int `json:"appointments_need_followup"`
}
