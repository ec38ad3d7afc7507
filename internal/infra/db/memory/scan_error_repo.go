package memory

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scanerrors"
)

// ScanErrorRepository keeps audit rows in memory, newest first on read.
type ScanErrorRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   []*domain.ScanError
}

func NewScanErrorRepository() *ScanErrorRepository {
	return &ScanErrorRepository{nextID: 1}
}

func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	cp.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *ScanErrorRepository) ListByScan(ctx context.Context, tenant string, scanID string, limit int) ([]*domain.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ScanError
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.rows[i]
		if e.TenantID == tenant && e.ScanID == scanID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
