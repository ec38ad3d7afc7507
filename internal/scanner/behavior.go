package scanner

import (
	"fmt"
	"math"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// behaviorMinMatches is the noise floor: a heuristic fires only when it
// matches strictly more often than this.
const behaviorMinMatches = 2

// heuristic is one fixed behavioral indicator. Unlike catalog patterns,
// heuristics are not operator-extensible; they encode how malicious content
// tends to look rather than any single known signature.
type heuristic struct {
	ID          string
	Name        string
	Description string
	ThreatType  domain.ThreatType
	Severity    domain.Severity
	matcher     Matcher
}

// BehavioralAnalyzer scores indicator density instead of exact signatures.
// Each heuristic emits at most one detection, and only above the noise
// floor.
type BehavioralAnalyzer struct {
	heuristics []heuristic
}

func NewBehavioralAnalyzer() *BehavioralAnalyzer {
	return &BehavioralAnalyzer{heuristics: builtinHeuristics()}
}

// Analyze applies every heuristic to c.Text. Confidence grows with match
// count but stays below certainty, because density alone is circumstantial:
//
//	confidence = min(0.8, matches/20 + 0.3)
func (a *BehavioralAnalyzer) Analyze(c *Content) ([]domain.ThreatDetection, []Issue) {
	var dets []domain.ThreatDetection
	var issues []Issue
	for i := range a.heuristics {
		h := &a.heuristics[i]
		matches, err := h.matcher.FindAll(c.Text, 0)
		if err != nil {
			issues = append(issues, Issue{Analyzer: "behavioral", Rule: h.ID, Err: err})
			continue
		}
		if len(matches) <= behaviorMinMatches {
			continue
		}
		dets = append(dets, domain.ThreatDetection{
			ThreatType:  h.ThreatType,
			Confidence:  behaviorConfidence(len(matches)),
			Severity:    h.Severity,
			Description: fmt.Sprintf("%s: %d indicator(s) above noise floor", h.Name, len(matches)),
			Metadata: map[string]any{
				"analyzer":     "behavioral",
				"heuristic_id": h.ID,
				"match_count":  len(matches),
				"evidence":     evidence(matches),
			},
		})
	}
	return dets, issues
}

func behaviorConfidence(matches int) float64 {
	raw := float64(matches)/20.0 + 0.3
	return domain.ClampConfidence(math.Min(0.8, raw))
}

func builtinHeuristics() []heuristic {
	return []heuristic{
		{
			ID:          "bhv-obfuscation-density",
			Name:        "obfuscation density",
			Description: "Repeated escape sequences and char-code construction across the content",
			ThreatType:  domain.ThreatAdversarial,
			Severity:    domain.SeverityMedium,
			matcher:     MustRegexMatcher(`(?i)(?:\\x[0-9a-f]{2}|\\u[0-9a-f]{4}|chr\s*\(\s*\d+\s*\)|fromCharCode)`),
		},
		{
			ID:          "bhv-exfil-phrasing",
			Name:        "exfiltration phrasing",
			Description: "Repeated wording associated with shipping data off-host",
			ThreatType:  domain.ThreatDataLeak,
			Severity:    domain.SeverityHigh,
			matcher:     MustRegexMatcher(`(?i)(?:exfiltrat\w*|beacon\b|callback\s+url|(?:send|upload|post)\w*\s+(?:data|weights|file|creds|credentials))`),
		},
		{
			ID:          "bhv-nonprintable-runs",
			Name:        "non-printable runs",
			Description: "Binary-looking runs inside otherwise textual content",
			ThreatType:  domain.ThreatAdversarial,
			Severity:    domain.SeverityLow,
			matcher:     MustRegexMatcher(`[^\x09\x0a\x0d\x20-\x7e]{16,}`),
		},
		{
			ID:          "bhv-env-probing",
			Name:        "environment probing",
			Description: "Repeated reads of host environment and identity surfaces",
			ThreatType:  domain.ThreatPrivacyViolation,
			Severity:    domain.SeverityMedium,
			matcher:     MustRegexMatcher(`(?i)(?:os\.environ|getenv\s*\(|platform\.(?:node|uname)|socket\.gethostname|getpass\.getuser)`),
		},
	}
}
