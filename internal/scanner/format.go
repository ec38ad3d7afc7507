package scanner

import (
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// onnxDeniedNodeTypes are ONNX operator names that hand execution to
// arbitrary host code. One detection is emitted per matched type.
var onnxDeniedNodeTypes = []string{"PyOp", "PythonOp", "PyFunc", "py_func"}

// pytorchLoadMarkers betray checkpoints that steer torch.load into a
// custom unpickler or disable the weights-only safety rail.
var pytorchLoadMarkers = []string{"pickle_module", "weights_only=false", "custom unpickler", "_load_from_bytes"}

// hdf5FunctionMarkers betray serialized function references inside Keras
// HDF5 archives (Lambda layers and friends).
var hdf5FunctionMarkers = []string{"lambda", "python_function", "function_type", "marshal", "__main__"}

// FormatAnalyzer applies format-specific risk knowledge. The switch is
// exhaustive over the artifact format enum so adding a format forces a
// decision here.
type FormatAnalyzer struct{}

func NewFormatAnalyzer() *FormatAnalyzer { return &FormatAnalyzer{} }

func (a *FormatAnalyzer) Analyze(c *Content) []domain.ThreatDetection {
	switch c.Format {
	case domain.FormatPickle:
		return a.pickle(c)
	case domain.FormatPyTorch:
		return a.pytorch(c)
	case domain.FormatHDF5:
		return a.hdf5(c)
	case domain.FormatONNX:
		return a.onnx(c)
	case domain.FormatUnknown:
		return nil
	default:
		return nil
	}
}

// pickle flags unconditionally: deserializing a pickle runs its opcodes,
// so the format itself is the finding.
func (a *FormatAnalyzer) pickle(c *Content) []domain.ThreatDetection {
	return []domain.ThreatDetection{{
		ThreatType:  domain.ThreatMalware,
		Confidence:  0.7,
		Severity:    domain.SeverityHigh,
		Description: "pickle-family serialization executes embedded opcodes on load",
		Metadata: map[string]any{
			"analyzer": "format",
			"rule":     "fmt-pickle-unsafe",
			"format":   string(c.Format),
		},
	}}
}

func (a *FormatAnalyzer) pytorch(c *Content) []domain.ThreatDetection {
	found := containedMarkers(c.Text, pytorchLoadMarkers)
	if len(found) == 0 {
		return nil
	}
	return []domain.ThreatDetection{{
		ThreatType:  domain.ThreatBackdoor,
		Confidence:  0.65,
		Severity:    domain.SeverityHigh,
		Description: "checkpoint references custom loader parameters",
		Metadata: map[string]any{
			"analyzer": "format",
			"rule":     "fmt-pytorch-loader",
			"format":   string(c.Format),
			"markers":  found,
		},
	}}
}

func (a *FormatAnalyzer) hdf5(c *Content) []domain.ThreatDetection {
	found := containedMarkers(c.Text, hdf5FunctionMarkers)
	if len(found) == 0 {
		return nil
	}
	return []domain.ThreatDetection{{
		ThreatType:  domain.ThreatBackdoor,
		Confidence:  0.6,
		Severity:    domain.SeverityHigh,
		Description: "archive embeds serialized function references",
		Metadata: map[string]any{
			"analyzer": "format",
			"rule":     "fmt-hdf5-function",
			"format":   string(c.Format),
			"markers":  found,
		},
	}}
}

// onnx emits one detection per denied node type present in the graph text.
func (a *FormatAnalyzer) onnx(c *Content) []domain.ThreatDetection {
	var dets []domain.ThreatDetection
	lower := strings.ToLower(c.Text)
	for _, node := range onnxDeniedNodeTypes {
		if !strings.Contains(lower, strings.ToLower(node)) {
			continue
		}
		dets = append(dets, domain.ThreatDetection{
			ThreatType:  domain.ThreatBackdoor,
			Confidence:  0.85,
			Severity:    domain.SeverityCritical,
			Description: fmt.Sprintf("graph contains %s node, which executes arbitrary host code", node),
			Metadata: map[string]any{
				"analyzer":  "format",
				"rule":      "fmt-onnx-node",
				"format":    string(c.Format),
				"node_type": node,
			},
		})
	}
	return dets
}

func containedMarkers(text string, markers []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			out = append(out, m)
		}
	}
	return out
}
