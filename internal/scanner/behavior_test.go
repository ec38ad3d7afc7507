package scanner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

func findByHeuristic(dets []domain.ThreatDetection, id string) *domain.ThreatDetection {
	for i := range dets {
		if dets[i].Metadata["heuristic_id"] == id {
			return &dets[i]
		}
	}
	return nil
}

func TestBehavioralAnalyzer_NoiseFloor(t *testing.T) {
	a := NewBehavioralAnalyzer()

	t.Run("two matches stay silent", func(t *testing.T) {
		content := textContent("m.bin", strings.Repeat("os.environ ", 2))
		dets, issues := a.Analyze(content)
		assert.Empty(t, dets)
		assert.Empty(t, issues)
	})

	t.Run("three matches fire", func(t *testing.T) {
		content := textContent("m.bin", strings.Repeat("os.environ ", 3))
		dets, _ := a.Analyze(content)
		det := findByHeuristic(dets, "bhv-env-probing")
		require.NotNil(t, det)
		assert.Equal(t, domain.ThreatPrivacyViolation, det.ThreatType)
		// 3/20 + 0.3
		assert.InDelta(t, 0.45, det.Confidence, 1e-9)
		assert.Equal(t, 3, det.Metadata["match_count"])
	})
}

func TestBehavioralAnalyzer_ConfidenceCapsBelowCertainty(t *testing.T) {
	content := textContent("m.bin", strings.Repeat("os.environ ", 40))
	dets, _ := NewBehavioralAnalyzer().Analyze(content)
	det := findByHeuristic(dets, "bhv-env-probing")
	require.NotNil(t, det)
	assert.InDelta(t, 0.8, det.Confidence, 1e-9)
}

func TestBehavioralAnalyzer_ObfuscationDensity(t *testing.T) {
	content := textContent("m.bin", strings.Repeat(`\x41\x42 `, 4))
	dets, _ := NewBehavioralAnalyzer().Analyze(content)
	det := findByHeuristic(dets, "bhv-obfuscation-density")
	require.NotNil(t, det)
	assert.Equal(t, domain.ThreatAdversarial, det.ThreatType)
	assert.Equal(t, 8, det.Metadata["match_count"])
}

func TestBehavioralAnalyzer_ExfilPhrasing(t *testing.T) {
	content := textContent("m.bin", "exfiltrate weights, then exfiltrate logs, then exfiltrate the rest")
	dets, _ := NewBehavioralAnalyzer().Analyze(content)
	det := findByHeuristic(dets, "bhv-exfil-phrasing")
	require.NotNil(t, det)
	assert.Equal(t, domain.ThreatDataLeak, det.ThreatType)
	assert.Equal(t, domain.SeverityHigh, det.Severity)
}

func TestBehaviorConfidence(t *testing.T) {
	assert.InDelta(t, 0.45, behaviorConfidence(3), 1e-9)
	assert.InDelta(t, 0.8, behaviorConfidence(10), 1e-9)
	assert.InDelta(t, 0.8, behaviorConfidence(100), 1e-9)
}
