package metrics

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Process-wide counters. Cheap atomic adds only; anything heavier belongs
// in the store.
var (
	RequestsTotal      atomic.Int64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Int64
	RequestsFailed     atomic.Int64

	ScansSubmitted    atomic.Int64
	ScansCompleted    atomic.Int64
	ScansQuarantined  atomic.Int64
	ScansFailed       atomic.Int64
	ScansRequeued     atomic.Int64
	DetectionsEmitted atomic.Int64

	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	WorkerCycles      atomic.Int64
	WorkerCycleErrors atomic.Int64

	NotificationsSent atomic.Int64
)

var startTime = time.Now()

// Snapshot returns current counters plus process stats for the metrics
// endpoint.
func Snapshot() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]any{
		"requests_total":       RequestsTotal.Load(),
		"requests_in_progress": RequestsInProgress.Load(),
		"requests_success":     RequestsSuccess.Load(),
		"requests_failed":      RequestsFailed.Load(),
		"scans_submitted":      ScansSubmitted.Load(),
		"scans_completed":      ScansCompleted.Load(),
		"scans_quarantined":    ScansQuarantined.Load(),
		"scans_failed":         ScansFailed.Load(),
		"scans_requeued":       ScansRequeued.Load(),
		"detections_emitted":   DetectionsEmitted.Load(),
		"cache_hits":           CacheHits.Load(),
		"cache_misses":         CacheMisses.Load(),
		"worker_cycles":        WorkerCycles.Load(),
		"worker_cycle_errors":  WorkerCycleErrors.Load(),
		"notifications_sent":   NotificationsSent.Load(),
		"uptime_seconds":       time.Since(startTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}
