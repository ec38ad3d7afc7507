package scanerrors

import "context"

// Repository persists the failure audit trail. Save dipanggil best-effort
// dari worker; ListByScan feeds the per-scan errors endpoint.
type Repository interface {
	Save(ctx context.Context, e *ScanError) error
	ListByScan(ctx context.Context, tenant string, scanID string, limit int) ([]*ScanError, error)
}
