package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/metrics"
)

// Log writes notification events to the structured log. Always wired, so
// every deployment has at least one notification sink.
type Log struct {
	log *logrus.Entry
}

func NewLog(log *logrus.Entry) *Log { return &Log{log: log} }

func (n *Log) NotifyQuarantine(ctx context.Context, id domain.ScanID, reason string) {
	metrics.NotificationsSent.Add(1)
	n.log.WithFields(logrus.Fields{"scan_id": id, "reason": reason}).Warn("artifact quarantined")
}

func (n *Log) NotifyCompleted(ctx context.Context, id domain.ScanID) {
	metrics.NotificationsSent.Add(1)
	n.log.WithField("scan_id", id).Info("scan completed clean")
}

func (n *Log) NotifyThreat(ctx context.Context, id domain.ScanID, det domain.ThreatDetection) {
	metrics.NotificationsSent.Add(1)
	n.log.WithFields(logrus.Fields{
		"scan_id":     id,
		"threat_type": det.ThreatType,
		"confidence":  det.Confidence,
		"severity":    det.Severity,
	}).Warn("high confidence threat detected")
}
