package scans

import (
	"context"
	"io"
	"time"
)

// RecordStore port (interface untuk persistence)
//
// ClaimForScanning is the single-writer gate of the whole pipeline: it must be
// an atomic conditional transition queued -> scanning, so that two workers
// racing for the same record see exactly one winner.
type RecordStore interface {
	Create(ctx context.Context, rec *ModelScan) error
	Get(ctx context.Context, tenant string, id ScanID) (*ModelScan, error)
	ClaimForScanning(ctx context.Context, id ScanID) (bool, error)
	// Update persists status, summary and the detection set exactly as carried
	// by rec (existing detections are replaced, preserving rec's order).
	Update(ctx context.Context, rec *ModelScan) error
	// ListByStatus returns records in creation order, oldest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*ModelScan, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*ModelScan, error)
	// ListForTenant is Latest narrowed to one status.
	ListForTenant(ctx context.Context, tenant string, status Status, limit int) ([]*ModelScan, error)
	// CountByStatus tallies a tenant's scans per status. A zero since counts
	// the whole history; otherwise only records created at or after it.
	CountByStatus(ctx context.Context, tenant string, since time.Time) (map[Status]int64, error)
}

// ArtifactInfo describes a stored artifact.
type ArtifactInfo struct {
	Size    int64
	Regular bool
}

// ArtifactStore port (interface untuk penyimpanan artefak)
//
// Stat and ReadPrefix must report a missing artifact as ErrArtifactNotFound,
// distinct from any other I/O failure.
type ArtifactStore interface {
	Put(ctx context.Context, path string, r io.Reader, size int64) error
	Stat(ctx context.Context, path string) (ArtifactInfo, error)
	// ReadPrefix returns at most maxBytes leading bytes of the artifact.
	ReadPrefix(ctx context.Context, path string, maxBytes int64) ([]byte, error)
	// Isolate moves the artifact into quarantine storage. Best-effort for
	// callers: a failure is logged, never reverts a scan verdict.
	Isolate(ctx context.Context, path string, reason string) error
}

// ResultCache port. Purely a read optimization: absence is never an error and
// the authoritative record always lives in the RecordStore.
type ResultCache interface {
	Put(ctx context.Context, id ScanID, res *ScanResult, ttl time.Duration)
	Get(ctx context.Context, id ScanID) (*ScanResult, bool)
}

// Notifier port. All methods are fire-and-forget; implementations log their
// own failures and never propagate them.
type Notifier interface {
	NotifyQuarantine(ctx context.Context, id ScanID, reason string)
	NotifyCompleted(ctx context.Context, id ScanID)
	NotifyThreat(ctx context.Context, id ScanID, det ThreatDetection)
}
