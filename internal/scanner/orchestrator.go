package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// DefaultMaxArtifactBytes bounds what the engine will accept at all.
const DefaultMaxArtifactBytes int64 = 10 << 30

// Tunables are the runtime-adjustable knobs of the engine. They are
// swapped atomically as a unit, so a half-applied reload can never mix old
// and new thresholds inside one scan.
type Tunables struct {
	Policy           QuarantinePolicy `yaml:"quarantine" json:"quarantine"`
	MaxArtifactBytes int64            `yaml:"max_artifact_bytes" json:"max_artifact_bytes"`
	PrefixBytes      int64            `yaml:"prefix_bytes" json:"prefix_bytes"`
	LargeSizeBytes   int64            `yaml:"large_size_bytes" json:"large_size_bytes"`
}

func DefaultTunables() Tunables {
	return Tunables{
		Policy:           DefaultQuarantinePolicy(),
		MaxArtifactBytes: DefaultMaxArtifactBytes,
		PrefixBytes:      DefaultPrefixBytes,
		LargeSizeBytes:   DefaultLargeSizeBytes,
	}
}

// Normalize backfills missing values so partial config cannot zero out a
// limit.
func (t Tunables) Normalize() Tunables {
	def := DefaultTunables()
	t.Policy = t.Policy.Normalize()
	if t.MaxArtifactBytes <= 0 {
		t.MaxArtifactBytes = def.MaxArtifactBytes
	}
	if t.PrefixBytes <= 0 {
		t.PrefixBytes = def.PrefixBytes
	}
	if t.LargeSizeBytes <= 0 {
		t.LargeSizeBytes = def.LargeSizeBytes
	}
	return t
}

// Engine sequences one artifact through validation, content retrieval,
// analyzer fan-out and aggregation. It holds no per-scan state, so a single
// Engine serves concurrent scans.
type Engine struct {
	log       *logrus.Entry
	artifacts domain.ArtifactStore
	behavior  *BehavioralAnalyzer
	entropy   *EntropyAnalyzer
	format    *FormatAnalyzer

	catalog  atomic.Pointer[Catalog]
	tunables atomic.Pointer[Tunables]

	now func() time.Time
}

func NewEngine(cat *Catalog, t Tunables, artifacts domain.ArtifactStore, log *logrus.Entry) *Engine {
	if cat == nil {
		cat = BuiltinCatalog()
	}
	e := &Engine{
		log:       log,
		artifacts: artifacts,
		behavior:  NewBehavioralAnalyzer(),
		entropy:   NewEntropyAnalyzer(),
		format:    NewFormatAnalyzer(),
		now:       time.Now,
	}
	e.catalog.Store(cat)
	e.SetTunables(t)
	return e
}

// SetCatalog replaces the rule set for subsequent scans.
func (e *Engine) SetCatalog(cat *Catalog) {
	if cat == nil {
		return
	}
	e.catalog.Store(cat)
	if e.log != nil {
		e.log.WithFields(logrus.Fields{"version": cat.Version(), "patterns": cat.Len()}).Info("pattern catalog swapped")
	}
}

func (e *Engine) Catalog() *Catalog { return e.catalog.Load() }

// SetTunables installs a normalized snapshot for subsequent scans.
func (e *Engine) SetTunables(t Tunables) {
	n := t.Normalize()
	e.tunables.Store(&n)
}

func (e *Engine) Tunables() Tunables { return *e.tunables.Load() }

// Execute runs the whole pipeline for one claimed scan record. It returns
// the result plus any per-rule issues; an error return means the scan could
// not produce a verdict at all and must be marked failed by the caller.
func (e *Engine) Execute(ctx context.Context, rec *domain.ModelScan) (*domain.ScanResult, []Issue, error) {
	start := e.now()
	t := e.Tunables()

	info, err := e.artifacts.Stat(ctx, rec.StoragePath)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactNotFound) {
			return nil, nil, domain.NewValidationError("artifact %s not found in storage", rec.StoragePath)
		}
		return nil, nil, fmt.Errorf("stat artifact %s: %w", rec.StoragePath, err)
	}
	if !info.Regular {
		return nil, nil, domain.NewValidationError("artifact %s is not a regular object", rec.StoragePath)
	}
	if info.Size == 0 {
		return nil, nil, domain.NewValidationError("artifact %s is empty", rec.StoragePath)
	}
	if info.Size > t.MaxArtifactBytes {
		return nil, nil, domain.NewValidationError("artifact %s is %d bytes, over the %d byte limit", rec.StoragePath, info.Size, t.MaxArtifactBytes)
	}

	raw, err := e.artifacts.ReadPrefix(ctx, rec.StoragePath, t.PrefixBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("read artifact %s: %w", rec.StoragePath, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	content := NewContent(rec.Filename, info.Size, raw)

	// urutan analyzer menentukan urutan detections di hasil akhir
	sigDets, sigIssues := NewSignatureAnalyzer(e.Catalog()).Analyze(content)
	bhvDets, bhvIssues := e.behavior.Analyze(content)
	metaDets := NewMetadataAnalyzer(t.LargeSizeBytes).Analyze(content)
	fmtDets := e.format.Analyze(content)
	ent := e.entropy.Analyze(content.Raw)

	dets := make([]domain.ThreatDetection, 0, len(sigDets)+len(bhvDets)+len(metaDets)+len(fmtDets))
	dets = append(dets, sigDets...)
	dets = append(dets, bhvDets...)
	dets = append(dets, metaDets...)
	dets = append(dets, fmtDets...)

	issues := make([]Issue, 0, len(sigIssues)+len(bhvIssues))
	issues = append(issues, sigIssues...)
	issues = append(issues, bhvIssues...)

	created := e.now().UTC()
	var counts domain.SeverityCounts
	highest := 0.0
	for i := range dets {
		dets[i].ID = uuid.NewString()
		dets[i].ScanID = rec.ID
		dets[i].CreatedAt = created
		dets[i].Confidence = domain.ClampConfidence(dets[i].Confidence)
		counts.Add(dets[i].Severity)
		if dets[i].Confidence > highest {
			highest = dets[i].Confidence
		}
	}

	elapsed := e.now().Sub(start)
	summary := map[string]any{
		domain.SummaryTotalDetections:   len(dets),
		domain.SummaryHighestConfidence: highest,
		domain.SummarySeverityCounts:    counts,
		domain.SummaryAvgEntropy:        ent.Avg,
		domain.SummaryMaxEntropy:        ent.Max,
		domain.SummaryEntropyChunks:     ent.Chunks,
		domain.SummaryHighEntropyChunks: ent.HighChunks,
		domain.SummarySuspiciousEntropy: ent.Suspicious,
		domain.SummaryDecodeMode:        string(content.Mode),
		domain.SummaryCatalogVersion:    e.Catalog().Version(),
		domain.SummaryAnalyzerFailures:  len(issues),
		domain.SummaryProcessingMS:      elapsed.Milliseconds(),
	}

	res := &domain.ScanResult{
		Status:         t.Policy.Verdict(dets),
		Detections:     dets,
		Summary:        summary,
		ProcessingTime: elapsed,
	}
	if e.log != nil {
		e.log.WithFields(logrus.Fields{
			"scan_id":    rec.ID,
			"status":     res.Status,
			"detections": len(dets),
			"highest":    highest,
			"mode":       content.Mode,
			"elapsed_ms": elapsed.Milliseconds(),
		}).Info("artifact analyzed")
	}
	return res, issues, nil
}
