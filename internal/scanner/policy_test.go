package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

func detsWithConfidence(confs ...float64) []domain.ThreatDetection {
	out := make([]domain.ThreatDetection, 0, len(confs))
	for _, c := range confs {
		out = append(out, domain.ThreatDetection{ThreatType: domain.ThreatMalware, Confidence: c})
	}
	return out
}

func TestQuarantinePolicy_Verdict(t *testing.T) {
	p := DefaultQuarantinePolicy()

	cases := []struct {
		name  string
		confs []float64
		want  domain.Status
	}{
		{"no detections", nil, domain.StatusCompleted},
		{"single high", []float64{0.9}, domain.StatusQuarantined},
		{"exactly at high threshold", []float64{0.8}, domain.StatusQuarantined},
		{"just below high threshold", []float64{0.79, 0.79}, domain.StatusCompleted},
		{"medium accumulation", []float64{0.5, 0.5, 0.5}, domain.StatusQuarantined},
		{"mixed mediums with one high", []float64{0.5, 0.6, 0.9}, domain.StatusQuarantined},
		{"two mediums are tolerated", []float64{0.6, 0.6}, domain.StatusCompleted},
		{"low confidence noise", []float64{0.3, 0.4, 0.45, 0.2}, domain.StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Verdict(detsWithConfidence(tc.confs...)))
		})
	}
}

func TestQuarantinePolicy_Normalize(t *testing.T) {
	def := DefaultQuarantinePolicy()

	assert.Equal(t, def, QuarantinePolicy{}.Normalize())
	assert.Equal(t, def, QuarantinePolicy{HighConfidence: 1.5, MediumConfidence: -1, MediumCount: 0}.Normalize())

	custom := QuarantinePolicy{HighConfidence: 0.95, MediumConfidence: 0.4, MediumCount: 5}
	assert.Equal(t, custom, custom.Normalize())
}

func TestQuarantinePolicy_TunedThresholds(t *testing.T) {
	p := QuarantinePolicy{HighConfidence: 0.95, MediumConfidence: 0.7, MediumCount: 2}

	assert.False(t, p.ShouldQuarantine(detsWithConfidence(0.9)))
	assert.True(t, p.ShouldQuarantine(detsWithConfidence(0.9, 0.7)))
	assert.True(t, p.ShouldQuarantine(detsWithConfidence(0.96)))
}
