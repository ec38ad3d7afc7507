package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/modelscan-sec/internal/application/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/metrics"
)

// Options configure one worker instance.
type Options struct {
	Interval       time.Duration
	BatchSize      int
	Concurrency    int
	ErrorThreshold int
	ScanTimeout    time.Duration
}

// Normalize backfills zero values with usable defaults.
func (o Options) Normalize() Options {
	if o.Interval <= 0 {
		o.Interval = 15 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.ErrorThreshold <= 0 {
		o.ErrorThreshold = 5
	}
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = 2 * time.Minute
	}
	return o
}

// Status is the externally visible worker state.
type Status struct {
	Running           bool      `json:"running"`
	Faulted           bool      `json:"faulted"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	InFlight          int       `json:"in_flight"`
	Cycles            int64     `json:"cycles"`
	LastCycleAt       time.Time `json:"last_cycle_at,omitempty"`
	LastCycleScans    int       `json:"last_cycle_scans"`
	IntervalSeconds   float64   `json:"interval_seconds"`
	BatchSize         int       `json:"batch_size"`
	Concurrency       int       `json:"concurrency"`
	ErrorThreshold    int       `json:"error_threshold"`
}

// Worker polls the record store for queued scans and drives them through
// the scan service on a fixed interval. Construct one and inject it; there
// is no package-level instance. Start and Stop are idempotent.
type Worker struct {
	svc  *scans.Service
	log  *logrus.Entry
	opts Options

	mu                sync.Mutex
	running           bool
	stop              chan struct{}
	done              chan struct{}
	consecutiveErrors int
	faulted           bool
	cycles            int64
	lastCycleAt       time.Time
	lastCycleScans    int
	inFlight          int

	trigger chan struct{}
}

func New(svc *scans.Service, log *logrus.Entry, opts Options) *Worker {
	return &Worker{
		svc:     svc,
		log:     log,
		opts:    opts.Normalize(),
		trigger: make(chan struct{}, 1),
	}
}

// Start launches the poll loop. Calling Start on a running worker does
// nothing.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(w.stop, w.done)
	w.log.WithFields(logrus.Fields{
		"interval":    w.opts.Interval.String(),
		"batch":       w.opts.BatchSize,
		"concurrency": w.opts.Concurrency,
	}).Info("scan worker started")
}

// Stop halts the poll loop and waits for it to exit, bounded by ctx.
// Scans already dispatched keep running on their own timeouts; stopping
// the worker never cancels work mid-scan.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		w.log.Info("scan worker stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker stop: %w", ctx.Err())
	}
}

// TriggerNow requests one immediate poll cycle without changing the tick
// schedule. Returns false when the worker is stopped or a trigger is
// already pending.
func (w *Worker) TriggerNow() bool {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return false
	}
	select {
	case w.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// ResetErrorState clears the consecutive error counter and the fault
// latch. Meant for operators after the underlying outage is fixed.
func (w *Worker) ResetErrorState() {
	w.mu.Lock()
	w.consecutiveErrors = 0
	w.faulted = false
	w.mu.Unlock()
	w.log.Info("worker error state reset")
}

// Status returns a snapshot of the worker state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Running:           w.running,
		Faulted:           w.faulted,
		ConsecutiveErrors: w.consecutiveErrors,
		InFlight:          w.inFlight,
		Cycles:            w.cycles,
		LastCycleAt:       w.lastCycleAt,
		LastCycleScans:    w.lastCycleScans,
		IntervalSeconds:   w.opts.Interval.Seconds(),
		BatchSize:         w.opts.BatchSize,
		Concurrency:       w.opts.Concurrency,
		ErrorThreshold:    w.opts.ErrorThreshold,
	}
}

func (w *Worker) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.runCycle()
		case <-w.trigger:
			w.runCycle()
		}
	}
}

// runCycle lists one batch of queued scans oldest-first and fans them out
// under the concurrency bound. One bad scan cannot sink the batch: claim
// losses are skips, handled scan failures are outcomes, and only
// infrastructure errors count against the cycle.
func (w *Worker) runCycle() {
	metrics.WorkerCycles.Add(1)

	listCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	batch, err := w.svc.QueuedBatch(listCtx, w.opts.BatchSize)
	cancel()
	if err != nil {
		w.log.WithError(err).Warn("poll cycle could not list queued scans")
		w.noteCycle(0, true)
		return
	}
	if len(batch) == 0 {
		w.noteCycle(0, false)
		return
	}

	sem := make(chan struct{}, w.opts.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	infraErrs := 0
	processed := 0

	for _, rec := range batch {
		rec := rec
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.addInFlight(1)
			defer w.addInFlight(-1)
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					infraErrs++
					mu.Unlock()
					w.log.WithFields(logrus.Fields{"scan_id": rec.ID, "panic": r}).Error("scan processing panicked")
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), w.opts.ScanTimeout)
			defer cancel()
			owned, err := w.svc.ProcessScan(ctx, rec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				infraErrs++
				w.log.WithError(err).WithField("scan_id", rec.ID).Warn("scan processing error")
				return
			}
			if owned {
				processed++
			}
		}()
	}
	wg.Wait()
	w.noteCycle(processed, infraErrs > 0)
}

func (w *Worker) addInFlight(d int) {
	w.mu.Lock()
	w.inFlight += d
	w.mu.Unlock()
}

// noteCycle updates counters. A clean cycle clears the consecutive error
// count but not the fault latch; that latch stays up until an operator
// resets it.
func (w *Worker) noteCycle(processed int, failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cycles++
	w.lastCycleAt = time.Now().UTC()
	w.lastCycleScans = processed
	if failed {
		metrics.WorkerCycleErrors.Add(1)
		w.consecutiveErrors++
		if w.consecutiveErrors >= w.opts.ErrorThreshold && !w.faulted {
			w.faulted = true
			w.log.WithField("consecutive_errors", w.consecutiveErrors).Error("worker entered fault state; still polling")
		}
		return
	}
	w.consecutiveErrors = 0
}
