package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/metrics"
)

// webhookEvent is the JSON body POSTed to the configured endpoint.
type webhookEvent struct {
	Event      string                  `json:"event"`
	ScanID     domain.ScanID           `json:"scan_id"`
	Reason     string                  `json:"reason,omitempty"`
	Detection  *domain.ThreatDetection `json:"detection,omitempty"`
	OccurredAt time.Time               `json:"occurred_at"`
}

// Webhook posts scan events to an external endpoint. Delivery is
// best-effort: failures are logged and dropped, never retried into the
// scan path.
type Webhook struct {
	url    string
	client *http.Client
	log    *logrus.Entry
}

func NewWebhook(url string, timeout time.Duration, log *logrus.Entry) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (n *Webhook) NotifyQuarantine(ctx context.Context, id domain.ScanID, reason string) {
	n.post(ctx, webhookEvent{Event: "scan.quarantined", ScanID: id, Reason: reason, OccurredAt: time.Now().UTC()})
}

func (n *Webhook) NotifyCompleted(ctx context.Context, id domain.ScanID) {
	n.post(ctx, webhookEvent{Event: "scan.completed", ScanID: id, OccurredAt: time.Now().UTC()})
}

func (n *Webhook) NotifyThreat(ctx context.Context, id domain.ScanID, det domain.ThreatDetection) {
	n.post(ctx, webhookEvent{Event: "scan.threat", ScanID: id, Detection: &det, OccurredAt: time.Now().UTC()})
}

func (n *Webhook) post(ctx context.Context, ev webhookEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		n.log.WithError(err).Warn("webhook encode failed")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.log.WithError(err).Warn("webhook request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		n.log.WithError(err).WithField("event", ev.Event).Warn("webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.WithFields(logrus.Fields{"event": ev.Event, "status": resp.StatusCode}).Warn("webhook rejected")
		return
	}
	metrics.NotificationsSent.Add(1)
}
