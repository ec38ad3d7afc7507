package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// Store is an in-memory RecordStore for tests and single-node dev runs.
// All methods hand out copies; callers never share slices or maps with the
// store.
type Store struct {
	mu    sync.RWMutex
	scans map[domain.ScanID]*domain.ModelScan
}

func NewStore() *Store {
	return &Store{scans: make(map[domain.ScanID]*domain.ModelScan)}
}

func (s *Store) Create(ctx context.Context, rec *domain.ModelScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scans[rec.ID]; ok {
		return fmt.Errorf("scan %s already exists", rec.ID)
	}
	s.scans[rec.ID] = clone(rec)
	return nil
}

func (s *Store) Get(ctx context.Context, tenant string, id domain.ScanID) (*domain.ModelScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.scans[id]
	if !ok || rec.TenantID != tenant {
		return nil, domain.ErrNotFound
	}
	return clone(rec), nil
}

// ClaimForScanning succeeds for exactly one caller per queued record; the
// mutex is the whole protocol here.
func (s *Store) ClaimForScanning(ctx context.Context, id domain.ScanID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.scans[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if rec.Status != domain.StatusQueued {
		return false, nil
	}
	rec.Status = domain.StatusScanning
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) Update(ctx context.Context, rec *domain.ModelScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scans[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	s.scans[rec.ID] = clone(rec)
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.ModelScan, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ModelScan
	for _, rec := range s.scans {
		if rec.Status == status {
			out = append(out, clone(rec))
		}
	}
	// oldest first, id as tiebreaker for a stable order
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Latest(ctx context.Context, tenant string, limit int) ([]*domain.ModelScan, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ModelScan
	for _, rec := range s.scans {
		if rec.TenantID == tenant {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListForTenant(ctx context.Context, tenant string, status domain.Status, limit int) ([]*domain.ModelScan, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ModelScan
	for _, rec := range s.scans {
		if rec.TenantID == tenant && rec.Status == status {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountByStatus(ctx context.Context, tenant string, since time.Time) (map[domain.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Status]int64)
	for _, rec := range s.scans {
		if rec.TenantID != tenant {
			continue
		}
		if !since.IsZero() && rec.CreatedAt.Before(since) {
			continue
		}
		out[rec.Status]++
	}
	return out, nil
}

func clone(rec *domain.ModelScan) *domain.ModelScan {
	cp := *rec
	if rec.Detections != nil {
		cp.Detections = make([]domain.ThreatDetection, len(rec.Detections))
		copy(cp.Detections, rec.Detections)
	}
	if rec.Summary != nil {
		cp.Summary = make(map[string]any, len(rec.Summary))
		for k, v := range rec.Summary {
			cp.Summary[k] = v
		}
	}
	return &cp
}
