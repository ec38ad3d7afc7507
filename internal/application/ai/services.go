package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/modelscan-sec/internal/application"
	"github.com/bryanwahyu/modelscan-sec/internal/domain/advisor"
	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// Service turns finished scans into stored remediation advice.
type Service struct {
	client advisor.Client
	repo   advisor.Repository
	scans  domain.RecordStore
	clock  application.Clock
}

func NewService(client advisor.Client, repo advisor.Repository, scans domain.RecordStore, clock application.Clock) *Service {
	return &Service{client: client, repo: repo, scans: scans, clock: clock}
}

// Advise asks the provider for remediation guidance on one finished scan
// and persists the answer. Pending scans are rejected; advice about a scan
// that has no verdict yet would be noise.
func (s *Service) Advise(ctx context.Context, tenant string, id domain.ScanID) (*advisor.Advice, error) {
	rec, err := s.scans.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Terminal() {
		return nil, domain.NewValidationError("scan %s is still %s; advice needs a verdict", id, rec.Status)
	}
	result, err := s.client.Advise(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("advisor: %w", err)
	}
	adv := &advisor.Advice{
		ID:        advisor.AdviceID(uuid.NewString()),
		TenantID:  tenant,
		ScanID:    string(id),
		Verdict:   string(rec.Status),
		Result:    result,
		CreatedAt: s.now(),
	}
	if err := s.repo.Save(ctx, adv); err != nil {
		return nil, fmt.Errorf("save advice: %w", err)
	}
	return adv, nil
}

// LatestForScan returns the newest stored advice for a scan, if any.
func (s *Service) LatestForScan(ctx context.Context, tenant string, id domain.ScanID) (*advisor.Advice, error) {
	return s.repo.LatestByScan(ctx, tenant, string(id))
}

// History pages through a tenant's advice entries.
func (s *Service) History(ctx context.Context, tenant string, page, pageSize int) ([]*advisor.Advice, error) {
	return s.repo.Paginate(ctx, tenant, page, pageSize)
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock.Now().UTC()
	}
	return time.Now().UTC()
}
