package scanner

import (
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// DefaultLargeSizeBytes is the size above which an artifact is flagged as
// anomalously large. Legitimate giant checkpoints exist, hence the low
// confidence on this rule.
const DefaultLargeSizeBytes int64 = 5 << 30

// riskyExtensions are executable-style extensions that have no business in
// a model artifact name, including as an inner segment of a double
// extension such as "model.exe.pkl".
var riskyExtensions = []string{
	".exe", ".dll", ".bat", ".cmd", ".scr", ".com", ".pif",
	".vbs", ".ps1", ".msi", ".sh",
}

// MetadataAnalyzer judges the artifact by its envelope: filename and size,
// never content.
type MetadataAnalyzer struct {
	LargeSizeBytes int64
}

func NewMetadataAnalyzer(largeSizeBytes int64) *MetadataAnalyzer {
	if largeSizeBytes <= 0 {
		largeSizeBytes = DefaultLargeSizeBytes
	}
	return &MetadataAnalyzer{LargeSizeBytes: largeSizeBytes}
}

func (a *MetadataAnalyzer) Analyze(c *Content) []domain.ThreatDetection {
	var dets []domain.ThreatDetection
	if exts := matchRiskyExtensions(c.Filename); len(exts) > 0 {
		dets = append(dets, domain.ThreatDetection{
			ThreatType:  domain.ThreatMalware,
			Confidence:  0.9,
			Severity:    domain.SeverityHigh,
			Description: fmt.Sprintf("executable-style extension in artifact name %q", c.Filename),
			Metadata: map[string]any{
				"analyzer":   "metadata",
				"rule":       "meta-exec-extension",
				"extensions": exts,
			},
		})
	}
	if c.Size > a.LargeSizeBytes {
		dets = append(dets, domain.ThreatDetection{
			ThreatType:  domain.ThreatAdversarial,
			Confidence:  0.4,
			Severity:    domain.SeverityLow,
			Description: fmt.Sprintf("artifact size %d exceeds the large-size threshold %d", c.Size, a.LargeSizeBytes),
			Metadata: map[string]any{
				"analyzer":        "metadata",
				"rule":            "meta-oversize",
				"size_bytes":      c.Size,
				"threshold_bytes": a.LargeSizeBytes,
			},
		})
	}
	return dets
}

// matchRiskyExtensions reports every risky extension present anywhere in
// the (lowercased) filename, either as the final extension or followed by
// a further dot segment.
func matchRiskyExtensions(filename string) []string {
	name := strings.ToLower(filename)
	var out []string
	for _, ext := range riskyExtensions {
		if strings.HasSuffix(name, ext) || strings.Contains(name, ext+".") {
			out = append(out, ext)
		}
	}
	return out
}
