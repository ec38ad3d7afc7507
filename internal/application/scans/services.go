package scans

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/modelscan-sec/internal/application"
	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/domain/scanerrors"
	"github.com/bryanwahyu/modelscan-sec/internal/metrics"
	"github.com/bryanwahyu/modelscan-sec/internal/scanner"
)

// Service implements use-cases untuk model scans.
// Service is designed to be used concurrently and is thread-safe.
type Service struct {
	Repo      domain.RecordStore
	Errors    scanerrors.Repository
	Artifacts domain.ArtifactStore
	Cache     domain.ResultCache
	Notify    domain.Notifier
	Engine    *scanner.Engine
	Clock     application.Clock
	Log       *logrus.Entry

	// CacheTTL bounds how long finished results stay readable without a
	// store round-trip.
	CacheTTL time.Duration
}

//
// ==== USE CASES ====
//

// SubmitCommand registers an artifact that already sits in storage.
type SubmitCommand struct {
	TenantID     string
	OwnerID      string
	Filename     string
	StoragePath  string
	DeclaredSize int64
}

// IngestCommand uploads artifact bytes and registers them in one call.
type IngestCommand struct {
	TenantID     string
	OwnerID      string
	Filename     string
	DeclaredSize int64
	Content      io.Reader
}

// Submit persists a queued scan record pointing at an existing artifact.
// Nothing is analyzed here; the worker picks the record up later.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*domain.ModelScan, error) {
	if cmd.TenantID == "" {
		return nil, domain.NewValidationError("tenant id is required")
	}
	if cmd.Filename == "" {
		return nil, domain.NewValidationError("filename is required")
	}
	if cmd.StoragePath == "" {
		return nil, domain.NewValidationError("storage path is required")
	}
	now := s.Clock.Now().UTC()
	rec := &domain.ModelScan{
		ID:           domain.ScanID(uuid.NewString()),
		TenantID:     cmd.TenantID,
		OwnerID:      cmd.OwnerID,
		Filename:     safeFilename(cmd.Filename),
		DeclaredSize: cmd.DeclaredSize,
		StoragePath:  cmd.StoragePath,
		Status:       domain.StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create scan record: %w", err)
	}
	metrics.ScansSubmitted.Add(1)
	s.Log.WithFields(logrus.Fields{"scan_id": rec.ID, "tenant": rec.TenantID, "filename": rec.Filename}).Info("scan queued")
	return rec, nil
}

// Ingest streams the artifact into storage first, then queues the record.
// The record only ever exists with its artifact already in place, so the
// worker never races an upload.
func (s *Service) Ingest(ctx context.Context, cmd IngestCommand) (*domain.ModelScan, error) {
	if cmd.TenantID == "" {
		return nil, domain.NewValidationError("tenant id is required")
	}
	if cmd.Filename == "" {
		return nil, domain.NewValidationError("filename is required")
	}
	if cmd.Content == nil {
		return nil, domain.NewValidationError("artifact body is required")
	}
	name := safeFilename(cmd.Filename)
	id := domain.ScanID(uuid.NewString())
	storagePath := fmt.Sprintf("%s/%s/%s", cmd.TenantID, id, name)

	if err := s.Artifacts.Put(ctx, storagePath, cmd.Content, cmd.DeclaredSize); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	now := s.Clock.Now().UTC()
	rec := &domain.ModelScan{
		ID:           id,
		TenantID:     cmd.TenantID,
		OwnerID:      cmd.OwnerID,
		Filename:     name,
		DeclaredSize: cmd.DeclaredSize,
		StoragePath:  storagePath,
		Status:       domain.StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, rec); err != nil {
		// artifact stays orphaned in storage; the record is the source of truth
		s.Log.WithError(err).WithField("path", storagePath).Warn("record create failed after upload")
		return nil, fmt.Errorf("create scan record: %w", err)
	}
	metrics.ScansSubmitted.Add(1)
	s.Log.WithFields(logrus.Fields{"scan_id": rec.ID, "tenant": rec.TenantID, "filename": name}).Info("artifact ingested and queued")
	return rec, nil
}

// ProcessScan runs one queued record through claim, analysis and finalize.
// The bool reports whether this call actually owned the scan; losing the
// claim to another worker is not an error. A non-nil error means the
// infrastructure failed, not that the artifact was malicious or unreadable.
func (s *Service) ProcessScan(ctx context.Context, rec *domain.ModelScan) (bool, error) {
	claimed, err := s.Repo.ClaimForScanning(ctx, rec.ID)
	if err != nil {
		s.saveError(ctx, rec, scanerrors.PhasePoll, err)
		return false, fmt.Errorf("claim scan %s: %w", rec.ID, err)
	}
	if !claimed {
		return false, nil
	}
	rec.Status = domain.StatusScanning

	res, issues, execErr := s.Engine.Execute(ctx, rec)
	s.recordIssues(ctx, rec, issues)
	if execErr != nil {
		if ferr := s.markFailed(ctx, rec, execErr); ferr != nil {
			return true, ferr
		}
		return true, nil
	}

	if err := s.finalize(ctx, rec, res); err != nil {
		return true, err
	}
	s.sideEffects(rec, res)
	return true, nil
}

// finalize persists the verdict. A persistence failure downgrades the scan
// to failed so it can be requeued by an operator instead of sitting in
// scanning forever.
func (s *Service) finalize(ctx context.Context, rec *domain.ModelScan, res *domain.ScanResult) error {
	rec.Status = res.Status
	rec.Detections = res.Detections
	rec.Summary = mergeAudit(rec.Summary, res.Summary)
	rec.UpdatedAt = s.Clock.Now().UTC()
	if err := s.Repo.Update(ctx, rec); err != nil {
		s.Log.WithError(err).WithField("scan_id", rec.ID).Error("persist scan result failed")
		s.saveError(ctx, rec, scanerrors.PhaseFinalize, err)
		if ferr := s.markFailed(ctx, rec, fmt.Errorf("persist result: %w", err)); ferr != nil {
			return ferr
		}
		return nil
	}
	if s.Cache != nil {
		s.Cache.Put(ctx, rec.ID, res, s.CacheTTL)
	}
	metrics.DetectionsEmitted.Add(int64(len(res.Detections)))
	switch res.Status {
	case domain.StatusQuarantined:
		metrics.ScansQuarantined.Add(1)
	case domain.StatusCompleted:
		metrics.ScansCompleted.Add(1)
	}
	return nil
}

// markFailed is the terminal path for anything the engine could not push
// through to a verdict. Failed scans never carry detections.
func (s *Service) markFailed(ctx context.Context, rec *domain.ModelScan, cause error) error {
	phase := scanerrors.PhaseAnalyze
	if domain.IsValidation(cause) {
		phase = scanerrors.PhaseValidate
	}
	s.saveError(ctx, rec, phase, cause)

	if rec.Summary == nil {
		rec.Summary = map[string]any{}
	}
	rec.Summary[domain.SummaryError] = cause.Error()
	rec.Summary[domain.SummaryFailedAt] = s.Clock.Now().UTC().Format(time.RFC3339)
	rec.Status = domain.StatusFailed
	rec.Detections = nil
	rec.UpdatedAt = s.Clock.Now().UTC()
	if err := s.Repo.Update(ctx, rec); err != nil {
		s.Log.WithError(err).WithField("scan_id", rec.ID).Error("mark failed did not stick; record left in scanning")
		return fmt.Errorf("mark scan %s failed: %w", rec.ID, err)
	}
	metrics.ScansFailed.Add(1)
	s.Log.WithFields(logrus.Fields{"scan_id": rec.ID, "cause": cause.Error()}).Warn("scan failed")
	return nil
}

// sideEffects fires isolation and notifications after the verdict is
// durable. All of it is best-effort; none of it can change the verdict.
func (s *Service) sideEffects(rec *domain.ModelScan, res *domain.ScanResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if res.Status == domain.StatusQuarantined {
		reason := fmt.Sprintf("%d detections, highest confidence %.2f", len(res.Detections), res.HighestConfidence())
		if err := s.Artifacts.Isolate(ctx, rec.StoragePath, reason); err != nil {
			s.Log.WithError(err).WithField("scan_id", rec.ID).Warn("artifact isolation failed")
		}
		if s.Notify != nil {
			s.Notify.NotifyQuarantine(ctx, rec.ID, reason)
		}
	}
	if res.Status == domain.StatusCompleted && s.Notify != nil {
		s.Notify.NotifyCompleted(ctx, rec.ID)
	}
	if s.Notify != nil {
		high := s.Engine.Tunables().Policy.HighConfidence
		for _, det := range res.Detections {
			if det.Confidence >= high {
				s.Notify.NotifyThreat(ctx, rec.ID, det)
			}
		}
	}
}

// Requeue resets a terminal scan back to queued, keeping an audit trail of
// what it was before. Detections from the previous run are dropped.
func (s *Service) Requeue(ctx context.Context, tenant string, id domain.ScanID) (*domain.ModelScan, error) {
	rec, err := s.Repo.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Terminal() {
		return nil, domain.NewValidationError("scan %s is %s; only finished scans can be requeued", id, rec.Status)
	}
	if rec.Summary == nil {
		rec.Summary = map[string]any{}
	}
	rec.Summary[domain.SummaryPreviousStatus] = string(rec.Status)
	rec.Summary[domain.SummaryRequeuedAt] = s.Clock.Now().UTC().Format(time.RFC3339)
	rec.Status = domain.StatusQueued
	rec.Detections = nil
	rec.UpdatedAt = s.Clock.Now().UTC()
	if err := s.Repo.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("requeue scan %s: %w", id, err)
	}
	metrics.ScansRequeued.Add(1)
	s.Log.WithFields(logrus.Fields{"scan_id": id, "previous": rec.Summary[domain.SummaryPreviousStatus]}).Info("scan requeued")
	return rec, nil
}

// QueuedBatch returns the oldest queued scans, bounded by limit. The
// worker is the only caller.
func (s *Service) QueuedBatch(ctx context.Context, limit int) ([]*domain.ModelScan, error) {
	return s.Repo.ListByStatus(ctx, domain.StatusQueued, limit)
}

// Get ambil 1 scan by id.
func (s *Service) Get(ctx context.Context, tenant string, id domain.ScanID) (*domain.ModelScan, error) {
	return s.Repo.Get(ctx, tenant, id)
}

// Latest ambil N scan terakhir.
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*domain.ModelScan, error) {
	return s.Repo.Latest(ctx, tenant, limit)
}

// List ambil N scan terakhir, opsional difilter status.
func (s *Service) List(ctx context.Context, tenant string, status string, limit int) ([]*domain.ModelScan, error) {
	if status == "" {
		return s.Repo.Latest(ctx, tenant, limit)
	}
	st := domain.Status(status)
	if !st.Valid() {
		return nil, domain.NewValidationError("unknown status %q", status)
	}
	return s.Repo.ListForTenant(ctx, tenant, st, limit)
}

// Detections returns the findings of one scan.
func (s *Service) Detections(ctx context.Context, tenant string, id domain.ScanID) ([]domain.ThreatDetection, error) {
	rec, err := s.Repo.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	return rec.Detections, nil
}

// Result serves the finished outcome, from cache when possible. A miss is
// rebuilt from the record and put back so repeated dashboard reads stay off
// the store.
func (s *Service) Result(ctx context.Context, tenant string, id domain.ScanID) (*domain.ScanResult, error) {
	if s.Cache != nil {
		if res, ok := s.Cache.Get(ctx, id); ok {
			metrics.CacheHits.Add(1)
			return res, nil
		}
		metrics.CacheMisses.Add(1)
	}
	rec, err := s.Repo.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Terminal() {
		return nil, domain.NewValidationError("scan %s is still %s", id, rec.Status)
	}
	res := &domain.ScanResult{
		Status:     rec.Status,
		Detections: rec.Detections,
		Summary:    rec.Summary,
	}
	if s.Cache != nil {
		s.Cache.Put(ctx, id, res, s.CacheTTL)
	}
	return res, nil
}

// Summary rekap posisi antrian per status untuk satu tenant. days>0
// membatasi hitungan ke scan yang dibuat dalam window itu.
func (s *Service) Summary(ctx context.Context, tenant string, days int) (map[string]any, error) {
	var since time.Time
	if days > 0 {
		since = s.Clock.Now().UTC().AddDate(0, 0, -days)
	}
	counts, err := s.Repo.CountByStatus(ctx, tenant, since)
	if err != nil {
		return nil, err
	}
	var total int64
	byStatus := make(map[string]int64, len(counts))
	for st, n := range counts {
		byStatus[string(st)] = n
		total += n
	}
	return map[string]any{
		"total":     total,
		"by_status": byStatus,
	}, nil
}

// ScanHistory lists the persisted failure audit rows of one scan.
func (s *Service) ScanHistory(ctx context.Context, tenant string, id domain.ScanID) ([]*scanerrors.ScanError, error) {
	if s.Errors == nil {
		return nil, nil
	}
	return s.Errors.ListByScan(ctx, tenant, string(id), 50)
}

//
// ==== helpers ====
//

func (s *Service) recordIssues(ctx context.Context, rec *domain.ModelScan, issues []scanner.Issue) {
	for _, is := range issues {
		s.audit(ctx, rec, is.Analyzer, scanerrors.PhaseAnalyze, fmt.Errorf("rule %s: %w", is.Rule, is.Err))
	}
}

func (s *Service) saveError(ctx context.Context, rec *domain.ModelScan, phase scanerrors.Phase, cause error) {
	s.audit(ctx, rec, "", phase, cause)
}

// audit is best-effort; losing an audit row never fails a scan.
func (s *Service) audit(ctx context.Context, rec *domain.ModelScan, analyzer string, phase scanerrors.Phase, cause error) {
	if s.Errors == nil {
		return
	}
	e := &scanerrors.ScanError{
		TenantID:  rec.TenantID,
		ScanID:    string(rec.ID),
		Analyzer:  analyzer,
		Phase:     phase,
		Message:   cause.Error(),
		CreatedAt: s.Clock.Now().UTC(),
	}
	if err := s.Errors.Save(ctx, e); err != nil {
		s.Log.WithError(err).WithField("scan_id", rec.ID).Warn("scan error audit row not saved")
	}
}

// mergeAudit carries requeue audit keys from the old summary into the new
// one so history survives a rescan.
func mergeAudit(old, next map[string]any) map[string]any {
	if old == nil {
		return next
	}
	for _, k := range []string{domain.SummaryPreviousStatus, domain.SummaryRequeuedAt} {
		if v, ok := old[k]; ok {
			if _, taken := next[k]; !taken {
				next[k] = v
			}
		}
	}
	return next
}

// safeFilename keeps only the base name so a crafted filename cannot carve
// paths into storage.
func safeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return "artifact.bin"
	}
	return base
}
