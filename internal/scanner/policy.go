package scanner

import domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"

// QuarantinePolicy decides the terminal verdict for a finished scan. Both
// thresholds are operator-tunable at runtime.
type QuarantinePolicy struct {
	// HighConfidence quarantines on any single detection at or above it.
	HighConfidence float64 `yaml:"high_confidence" json:"high_confidence"`
	// MediumConfidence and MediumCount quarantine on accumulation: at
	// least MediumCount detections at or above MediumConfidence.
	MediumConfidence float64 `yaml:"medium_confidence" json:"medium_confidence"`
	MediumCount      int     `yaml:"medium_count" json:"medium_count"`
}

// DefaultQuarantinePolicy returns the shipped thresholds.
func DefaultQuarantinePolicy() QuarantinePolicy {
	return QuarantinePolicy{
		HighConfidence:   0.8,
		MediumConfidence: 0.5,
		MediumCount:      3,
	}
}

// Normalize backfills zero values with defaults so a partially configured
// policy never disables quarantine outright.
func (p QuarantinePolicy) Normalize() QuarantinePolicy {
	def := DefaultQuarantinePolicy()
	if p.HighConfidence <= 0 || p.HighConfidence > 1 {
		p.HighConfidence = def.HighConfidence
	}
	if p.MediumConfidence <= 0 || p.MediumConfidence > 1 {
		p.MediumConfidence = def.MediumConfidence
	}
	if p.MediumCount <= 0 {
		p.MediumCount = def.MediumCount
	}
	return p
}

// ShouldQuarantine applies both rules over the detection set.
func (p QuarantinePolicy) ShouldQuarantine(dets []domain.ThreatDetection) bool {
	medium := 0
	for _, d := range dets {
		if d.Confidence >= p.HighConfidence {
			return true
		}
		if d.Confidence >= p.MediumConfidence {
			medium++
		}
	}
	return medium >= p.MediumCount
}

// Verdict maps a detection set to the terminal status of a successful scan.
func (p QuarantinePolicy) Verdict(dets []domain.ThreatDetection) domain.Status {
	if p.ShouldQuarantine(dets) {
		return domain.StatusQuarantined
	}
	return domain.StatusCompleted
}
