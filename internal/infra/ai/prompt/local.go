package prompt

import (
	"encoding/json"
	"fmt"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

type localAdvice struct {
	Verdict      string        `json:"verdict"`
	Risk         string        `json:"risk"`
	Summary      string        `json:"summary"`
	Actions      []localAction `json:"actions"`
	SafeToDeploy bool          `json:"safe_to_deploy"`
}

type localAction struct {
	Priority int    `json:"priority"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
}

// BuildLocalAdvice menyusun advice deterministik dari hasil scan tanpa LLM.
// Pakai schema yang sama dengan jawaban provider supaya konsumen tidak perlu
// membedakan sumbernya.
func BuildLocalAdvice(rec *domain.ModelScan) string {
	adv := localAdvice{
		Verdict:      verdictFor(rec),
		Risk:         riskFor(rec),
		SafeToDeploy: rec.Status == domain.StatusCompleted && len(rec.Detections) == 0,
	}
	adv.Summary = summaryFor(rec, adv.Verdict)
	adv.Actions = actionsFor(rec)

	out, err := json.Marshal(adv)
	if err != nil {
		return `{"verdict":"suspicious","risk":"high","summary":"advice generation failed","actions":[],"safe_to_deploy":false}`
	}
	return string(out)
}

func verdictFor(rec *domain.ModelScan) string {
	switch rec.Status {
	case domain.StatusQuarantined:
		return "quarantine"
	case domain.StatusCompleted:
		if len(rec.Detections) == 0 {
			return "clean"
		}
		return "suspicious"
	default:
		return "suspicious"
	}
}

func riskFor(rec *domain.ModelScan) string {
	if rec.Status == domain.StatusQuarantined {
		return "critical"
	}
	highest := 0.0
	for _, det := range rec.Detections {
		if det.Confidence > highest {
			highest = det.Confidence
		}
	}
	switch {
	case highest >= 0.8:
		return "high"
	case highest >= 0.5:
		return "medium"
	case len(rec.Detections) > 0:
		return "low"
	default:
		return "low"
	}
}

func summaryFor(rec *domain.ModelScan, verdict string) string {
	switch verdict {
	case "clean":
		return fmt.Sprintf("Scan of %s completed with no findings. The artifact shows no known malicious patterns and can proceed through the normal release process.", rec.Filename)
	case "quarantine":
		return fmt.Sprintf("Artifact %s was quarantined after %d finding(s). Treat it as hostile until it has been rebuilt from a trusted source and rescanned.", rec.Filename, len(rec.Detections))
	default:
		return fmt.Sprintf("Scan of %s finished with %d finding(s) below the quarantine threshold. Review the detections before promoting the artifact.", rec.Filename, len(rec.Detections))
	}
}

func actionsFor(rec *domain.ModelScan) []localAction {
	actions := make([]localAction, 0, 5)
	prio := 1
	add := func(title, detail string) {
		if len(actions) >= 5 {
			return
		}
		actions = append(actions, localAction{Priority: prio, Title: title, Detail: detail})
		prio++
	}

	if rec.Status == domain.StatusQuarantined {
		add("Keep the artifact isolated",
			"Leave the file in quarantine storage and block any deployment pipeline that references it.")
	}

	seen := map[domain.ThreatType]bool{}
	for _, det := range rec.Detections {
		if seen[det.ThreatType] {
			continue
		}
		seen[det.ThreatType] = true
		switch det.ThreatType {
		case domain.ThreatMalware:
			add("Rebuild from trusted pipeline",
				"Discard this copy and re-export the model from a trusted training pipeline; prefer safetensors over pickle-based formats.")
		case domain.ThreatBackdoor:
			add("Audit embedded code paths",
				"Inspect custom operators, load hooks and deserialization code; remove anything that executes arbitrary code at load time.")
		case domain.ThreatDataLeak:
			add("Check for embedded secrets",
				"Rotate any credentials that may be embedded in the artifact and scrub training data references before re-release.")
		case domain.ThreatAdversarial:
			add("Verify artifact provenance",
				"Compare checksums against the original build output; dense or obfuscated regions suggest post-build tampering.")
		case domain.ThreatPrivacyViolation:
			add("Review environment access",
				"Confirm the model does not probe environment variables or host configuration when loaded.")
		}
	}

	if rec.Status == domain.StatusFailed {
		add("Re-run the scan",
			"The scan did not complete; fix the recorded error and requeue the artifact before trusting any verdict.")
	}
	if len(actions) == 0 {
		add("No action required",
			"Keep routine scanning enabled for future versions of this artifact.")
	}
	return actions
}
