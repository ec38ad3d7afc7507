package advisor

import "time"

// AdviceID identifier type
type AdviceID string

// Advice represents an AI remediation report stored for auditing and retrieval.
// The Result field is the raw JSON string returned by the provider.
type Advice struct {
	ID        AdviceID  `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ScanID    string    `json:"scan_id"`
	Verdict   string    `json:"verdict"`
	Result    string    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}
