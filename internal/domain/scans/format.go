package scans

import (
	"path/filepath"
	"strings"
)

// ArtifactFormat is the closed set of container formats the engine knows how to
// inspect. Dispatch is always an exhaustive switch over these variants.
type ArtifactFormat string

const (
	FormatPickle  ArtifactFormat = "pickle"
	FormatPyTorch ArtifactFormat = "pytorch"
	FormatHDF5    ArtifactFormat = "hdf5"
	FormatONNX    ArtifactFormat = "onnx"
	FormatUnknown ArtifactFormat = "unknown"
)

// DetectFormat classifies an artifact by its filename extension.
// Unknown extensions are not an error; they simply get no format checks.
func DetectFormat(filename string) ArtifactFormat {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pkl", ".pickle", ".joblib", ".dill":
		return FormatPickle
	case ".pt", ".pth", ".ckpt":
		return FormatPyTorch
	case ".h5", ".hdf5", ".keras":
		return FormatHDF5
	case ".onnx":
		return FormatONNX
	default:
		return FormatUnknown
	}
}
