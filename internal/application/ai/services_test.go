package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/modelscan-sec/internal/domain/advisor"
	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/ai/local"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/db/memory"
)

type stubClock struct{ t time.Time }

func (c stubClock) Now() time.Time { return c.t }

type failingClient struct{ err error }

func (c failingClient) Advise(context.Context, *domain.ModelScan) (string, error) {
	return "", c.err
}

func seedScan(t *testing.T, store *memory.Store, status domain.Status) *domain.ModelScan {
	t.Helper()
	rec := &domain.ModelScan{
		ID:       "scan-1",
		TenantID: "acme",
		Filename: "model.pkl",
		Status:   status,
	}
	require.NoError(t, store.Create(context.Background(), rec))
	return rec
}

func TestAdviseStoresVerdictAndResult(t *testing.T) {
	store := memory.NewStore()
	seedScan(t, store, domain.StatusQuarantined)
	repo := memory.NewAdviceRepository()
	clock := stubClock{t: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
	svc := NewService(local.NewClient(), repo, store, clock)

	adv, err := svc.Advise(context.Background(), "acme", "scan-1")
	require.NoError(t, err)
	assert.NotEmpty(t, adv.ID)
	assert.Equal(t, "acme", adv.TenantID)
	assert.Equal(t, "scan-1", adv.ScanID)
	assert.Equal(t, "quarantined", adv.Verdict)
	assert.Equal(t, clock.t, adv.CreatedAt)
	assert.Contains(t, adv.Result, `"verdict"`)

	latest, err := svc.LatestForScan(context.Background(), "acme", "scan-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, adv.ID, latest.ID)
}

func TestAdviseRejectsPendingScan(t *testing.T) {
	store := memory.NewStore()
	seedScan(t, store, domain.StatusQueued)
	svc := NewService(local.NewClient(), memory.NewAdviceRepository(), store, nil)

	_, err := svc.Advise(context.Background(), "acme", "scan-1")
	assert.True(t, domain.IsValidation(err))
}

func TestAdviseUnknownScan(t *testing.T) {
	svc := NewService(local.NewClient(), memory.NewAdviceRepository(), memory.NewStore(), nil)
	_, err := svc.Advise(context.Background(), "acme", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdvisePropagatesQuotaError(t *testing.T) {
	store := memory.NewStore()
	seedScan(t, store, domain.StatusCompleted)
	svc := NewService(failingClient{err: advisor.ErrQuotaExceeded}, memory.NewAdviceRepository(), store, nil)

	_, err := svc.Advise(context.Background(), "acme", "scan-1")
	assert.ErrorIs(t, err, advisor.ErrQuotaExceeded)
}

func TestAdviseSaveFailure(t *testing.T) {
	store := memory.NewStore()
	seedScan(t, store, domain.StatusCompleted)
	svc := NewService(local.NewClient(), failingAdviceRepo{}, store, nil)

	_, err := svc.Advise(context.Background(), "acme", "scan-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save advice")
}

type failingAdviceRepo struct{}

func (failingAdviceRepo) Save(context.Context, *advisor.Advice) error { return errors.New("db down") }

func (failingAdviceRepo) Paginate(context.Context, string, int, int) ([]*advisor.Advice, error) {
	return nil, nil
}

func (failingAdviceRepo) LatestByScan(context.Context, string, string) (*advisor.Advice, error) {
	return nil, nil
}

func TestHistoryPagination(t *testing.T) {
	store := memory.NewStore()
	seedScan(t, store, domain.StatusCompleted)
	repo := memory.NewAdviceRepository()
	svc := NewService(local.NewClient(), repo, store, nil)

	for i := 0; i < 3; i++ {
		_, err := svc.Advise(context.Background(), "acme", "scan-1")
		require.NoError(t, err)
	}

	page1, err := svc.History(context.Background(), "acme", 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page2, err := svc.History(context.Background(), "acme", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	empty, err := svc.History(context.Background(), "acme", 3, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)

	none, err := svc.History(context.Background(), "other", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLatestForScanWithoutAdvice(t *testing.T) {
	svc := NewService(local.NewClient(), memory.NewAdviceRepository(), memory.NewStore(), nil)
	adv, err := svc.LatestForScan(context.Background(), "acme", "scan-1")
	require.NoError(t, err)
	assert.Nil(t, adv)
}
