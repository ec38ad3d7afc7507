package scanner

import (
	"fmt"
	"math"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// evidenceLimit caps how many matched snippets a detection carries.
const evidenceLimit = 5

// evidenceSnippetMax truncates a single matched snippet so a pathological
// match cannot bloat detection metadata.
const evidenceSnippetMax = 120

// Issue records one rule evaluation failure. A broken or timed-out rule
// must not abort the scan; it is reported alongside the detections instead.
type Issue struct {
	Analyzer string
	Rule     string
	Err      error
}

func (i Issue) String() string {
	return fmt.Sprintf("%s/%s: %v", i.Analyzer, i.Rule, i.Err)
}

// SignatureAnalyzer runs every catalog pattern over the decoded content and
// emits at most one detection per pattern.
type SignatureAnalyzer struct {
	catalog *Catalog
}

func NewSignatureAnalyzer(cat *Catalog) *SignatureAnalyzer {
	return &SignatureAnalyzer{catalog: cat}
}

// Analyze evaluates all patterns against c.Text. Detections carry the
// match count, the first few matched snippets as evidence, and a confidence
// derived from match density scaled by the pattern's modifier:
//
//	confidence = min(1.0, modifier * (matches/10 + 0.5))
func (a *SignatureAnalyzer) Analyze(c *Content) ([]domain.ThreatDetection, []Issue) {
	var dets []domain.ThreatDetection
	var issues []Issue
	for i := range a.catalog.Patterns() {
		p := &a.catalog.Patterns()[i]
		matches, err := p.Match(c.Text, 0)
		if err != nil {
			issues = append(issues, Issue{Analyzer: "signature", Rule: p.ID, Err: err})
			continue
		}
		if len(matches) == 0 {
			continue
		}
		conf := signatureConfidence(p.ConfidenceModifier, len(matches))
		dets = append(dets, domain.ThreatDetection{
			ThreatType:  p.ThreatType,
			Confidence:  conf,
			Severity:    p.Severity,
			Description: fmt.Sprintf("%s: pattern %q matched %d time(s)", p.Name, p.ID, len(matches)),
			Metadata: map[string]any{
				"analyzer":     "signature",
				"pattern_id":   p.ID,
				"pattern_name": p.Name,
				"match_count":  len(matches),
				"evidence":     evidence(matches),
			},
		})
	}
	return dets, issues
}

func signatureConfidence(modifier float64, matches int) float64 {
	raw := modifier * (float64(matches)/10.0 + 0.5)
	return domain.ClampConfidence(math.Min(1.0, raw))
}

// evidence keeps the first few snippets, each truncated to a sane length.
func evidence(matches []string) []string {
	n := len(matches)
	if n > evidenceLimit {
		n = evidenceLimit
	}
	out := make([]string, 0, n)
	for _, m := range matches[:n] {
		if len(m) > evidenceSnippetMax {
			m = m[:evidenceSnippetMax]
		}
		out = append(out, m)
	}
	return out
}
