package advisor

import (
	"context"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// Client produces remediation advice for a finished scan. Implementations
// call an external LLM provider; the scan path itself never does.
type Client interface {
	Advise(ctx context.Context, scan *domain.ModelScan) (string, error)
}

// Repository port for persisting and querying advice entries
type Repository interface {
	Save(ctx context.Context, a *Advice) error
	Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*Advice, error)
	LatestByScan(ctx context.Context, tenant string, scanID string) (*Advice, error)
}
