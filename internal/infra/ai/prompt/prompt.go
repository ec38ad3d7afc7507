package prompt

import (
	"fmt"
	"sort"
	"strings"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// GetSystemPrompt mengembalikan system prompt untuk advisor remediasi.
func GetSystemPrompt() string {
	return `You are a senior ML supply-chain security analyst. You receive the verdict of an
automated model artifact scan and produce remediation advice for the team that owns
the artifact.

Respond with a single JSON object, no markdown fences, following this schema:
{
  "verdict": "clean|suspicious|quarantine",
  "risk": "low|medium|high|critical",
  "summary": "2-3 sentence plain-language assessment",
  "actions": [
    {"priority": 1, "title": "short action", "detail": "concrete steps"}
  ],
  "safe_to_deploy": true|false
}

Rules:
- Base the verdict strictly on the findings given. Do not invent detections.
- quarantined scans are never safe_to_deploy.
- Order actions by priority, most urgent first, at most 5 actions.
- Prefer concrete remediation (re-export to safetensors, strip custom ops, rebuild
  from trusted training pipeline) over generic advice.`
}

// GetUserPrompt membangun ringkasan hasil scan untuk dikirim ke model.
func GetUserPrompt(rec *domain.ModelScan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scan %s for tenant %s.\n", rec.ID, rec.TenantID)
	fmt.Fprintf(&b, "Artifact: %s (format=%s, size=%d bytes)\n", rec.Filename, domain.DetectFormat(rec.Filename), rec.DeclaredSize)
	fmt.Fprintf(&b, "Status: %s\n", rec.Status)

	if len(rec.Summary) > 0 {
		keys := make([]string, 0, len(rec.Summary))
		for k := range rec.Summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Summary:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s=%v\n", k, rec.Summary[k])
		}
	}

	if len(rec.Detections) == 0 {
		b.WriteString("Detections: none\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Detections (%d):\n", len(rec.Detections))
	for i, det := range rec.Detections {
		if i >= maxPromptDetections {
			fmt.Fprintf(&b, "  ... %d more omitted\n", len(rec.Detections)-i)
			break
		}
		fmt.Fprintf(&b, "  - type=%s severity=%s confidence=%.2f: %s\n",
			det.ThreatType, det.Severity, det.Confidence, det.Description)
	}
	return b.String()
}

const maxPromptDetections = 10
