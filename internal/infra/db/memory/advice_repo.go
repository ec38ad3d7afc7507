package memory

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/advisor"
)

// AdviceRepository keeps advice entries in memory, insertion order.
type AdviceRepository struct {
	mu   sync.Mutex
	rows []*domain.Advice
}

func NewAdviceRepository() *AdviceRepository { return &AdviceRepository{} }

func (r *AdviceRepository) Save(ctx context.Context, a *domain.Advice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *AdviceRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Advice, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.Advice
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].TenantID == tenant {
			cp := *r.rows[i]
			matched = append(matched, &cp)
		}
	}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (r *AdviceRepository) LatestByScan(ctx context.Context, tenant string, scanID string) (*domain.Advice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		a := r.rows[i]
		if a.TenantID == tenant && a.ScanID == scanID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}
