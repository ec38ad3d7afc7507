package scanerrors

import "time"

// Phase of the scan pipeline where a failure was recorded.
type Phase string

const (
	PhaseValidate Phase = "validate"
	PhaseAnalyze  Phase = "analyze"
	PhaseFinalize Phase = "finalize"
	PhasePoll     Phase = "poll"
)

// ScanError represents a persisted scan error entry. These rows are an audit
// trail only; writing them is best-effort and never changes a scan's outcome.
type ScanError struct {
	ID          int64     `json:"id"`
	TenantID    string    `json:"tenant_id"`
	ScanID      string    `json:"scan_id"`
	Analyzer    string    `json:"analyzer,omitempty"`
	Phase       Phase     `json:"phase,omitempty"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
