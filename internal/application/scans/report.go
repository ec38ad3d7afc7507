package scans

import (
	"context"
	"time"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// ThreatGroup collects the detections of one threat type for reporting.
type ThreatGroup struct {
	ThreatType domain.ThreatType        `json:"threat_type"`
	Count      int                      `json:"count"`
	Detections []domain.ThreatDetection `json:"detections"`
}

// SecurityReport is the reviewer-facing rollup of one finished scan.
type SecurityReport struct {
	ScanID          domain.ScanID         `json:"scan_id"`
	TenantID        string                `json:"tenant_id"`
	Filename        string                `json:"filename"`
	Status          domain.Status         `json:"status"`
	GeneratedAt     time.Time             `json:"generated_at"`
	SeverityCounts  domain.SeverityCounts `json:"severity_counts"`
	Threats         []ThreatGroup         `json:"threats"`
	Summary         map[string]any        `json:"summary,omitempty"`
	Recommendations []string              `json:"recommendations"`
}

// reportOrder keeps threat groups in a stable order across renders.
var reportOrder = []domain.ThreatType{
	domain.ThreatMalware,
	domain.ThreatBackdoor,
	domain.ThreatDataLeak,
	domain.ThreatAdversarial,
	domain.ThreatPrivacyViolation,
}

// Report assembles a security report for a finished scan.
func (s *Service) Report(ctx context.Context, tenant string, id domain.ScanID) (*SecurityReport, error) {
	rec, err := s.Repo.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Terminal() {
		return nil, domain.NewValidationError("scan %s is still %s; report needs a verdict", id, rec.Status)
	}

	byType := make(map[domain.ThreatType][]domain.ThreatDetection)
	var counts domain.SeverityCounts
	for _, d := range rec.Detections {
		byType[d.ThreatType] = append(byType[d.ThreatType], d)
		counts.Add(d.Severity)
	}
	var groups []ThreatGroup
	for _, t := range reportOrder {
		if dets, ok := byType[t]; ok {
			groups = append(groups, ThreatGroup{ThreatType: t, Count: len(dets), Detections: dets})
		}
	}

	return &SecurityReport{
		ScanID:          rec.ID,
		TenantID:        rec.TenantID,
		Filename:        rec.Filename,
		Status:          rec.Status,
		GeneratedAt:     s.Clock.Now().UTC(),
		SeverityCounts:  counts,
		Threats:         groups,
		Summary:         rec.Summary,
		Recommendations: recommendations(rec, byType),
	}, nil
}

// recommendations maps what the scan found onto concrete operator actions.
func recommendations(rec *domain.ModelScan, byType map[domain.ThreatType][]domain.ThreatDetection) []string {
	var out []string
	if rec.Status == domain.StatusQuarantined {
		out = append(out, "Artifact is quarantined. Do not load it in any runtime until the findings below are resolved.")
	}
	if rec.Status == domain.StatusFailed {
		out = append(out, "Scan did not finish. Fix the recorded cause and requeue the scan before trusting this artifact.")
	}
	if _, ok := byType[domain.ThreatMalware]; ok {
		out = append(out, "Treat the artifact as hostile: rebuild it from trusted training output instead of patching it in place.")
	}
	if _, ok := byType[domain.ThreatBackdoor]; ok {
		out = append(out, "Audit the serialized graph for embedded code paths and re-export the model with a safe serializer.")
	}
	if _, ok := byType[domain.ThreatDataLeak]; ok {
		out = append(out, "Block outbound network access for any process that loads this artifact and review the referenced endpoints.")
	}
	if _, ok := byType[domain.ThreatAdversarial]; ok {
		out = append(out, "Validate model behavior against a clean holdout set; obfuscated content often hides weight tampering.")
	}
	if _, ok := byType[domain.ThreatPrivacyViolation]; ok {
		out = append(out, "Rotate any credentials found in the artifact and scrub training data for embedded secrets.")
	}
	if domain.DetectFormat(rec.Filename) == domain.FormatPickle {
		out = append(out, "Prefer a non-executable serialization format (safetensors or ONNX without custom ops) over pickle.")
	}
	if len(out) == 0 {
		out = append(out, "No threats found. Keep periodic rescans enabled; the pattern catalog evolves.")
	}
	return out
}
