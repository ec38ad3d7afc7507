package notify

import (
	"context"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// Multi fans one event out to several sinks.
type Multi struct {
	sinks []domain.Notifier
}

func NewMulti(sinks ...domain.Notifier) *Multi { return &Multi{sinks: sinks} }

func (m *Multi) NotifyQuarantine(ctx context.Context, id domain.ScanID, reason string) {
	for _, s := range m.sinks {
		s.NotifyQuarantine(ctx, id, reason)
	}
}

func (m *Multi) NotifyCompleted(ctx context.Context, id domain.ScanID) {
	for _, s := range m.sinks {
		s.NotifyCompleted(ctx, id)
	}
}

func (m *Multi) NotifyThreat(ctx context.Context, id domain.ScanID, det domain.ThreatDetection) {
	for _, s := range m.sinks {
		s.NotifyThreat(ctx, id, det)
	}
}
