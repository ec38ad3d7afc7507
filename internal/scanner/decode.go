package scanner

import (
	"bytes"
	"encoding/hex"
	"unicode/utf8"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// DefaultPrefixBytes caps how much of an artifact is pulled into memory for
// content analysis. 1 MiB of prefix is where loader hooks and embedded
// payloads live; weights beyond it are noise for the text analyzers.
const DefaultPrefixBytes int64 = 1 << 20

// DecodeMode records which textual view of the raw prefix the content
// analyzers saw.
type DecodeMode string

const (
	// DecodeText means the prefix decoded losslessly as UTF-8 text.
	DecodeText DecodeMode = "text"
	// DecodeHex means the prefix was binary and analyzers saw its
	// fixed-width hex rendering instead.
	DecodeHex DecodeMode = "hex"
)

// DecodeContent produces the textual view analyzers run against. Valid
// UTF-8 without NUL bytes passes through as-is; anything else is rendered
// as lowercase hex so binary artifacts still get a deterministic view.
func DecodeContent(raw []byte) (string, DecodeMode) {
	if utf8.Valid(raw) && !bytes.ContainsRune(raw, 0) {
		return string(raw), DecodeText
	}
	return hex.EncodeToString(raw), DecodeHex
}

// Content is the per-scan input handed to each analyzer: one raw prefix,
// one decoded view, plus the artifact facts needed by the metadata and
// format checks.
type Content struct {
	Filename string
	Size     int64
	Format   domain.ArtifactFormat

	Raw  []byte
	Text string
	Mode DecodeMode
}

// NewContent decodes raw once and derives the artifact format from the
// filename.
func NewContent(filename string, size int64, raw []byte) *Content {
	text, mode := DecodeContent(raw)
	return &Content{
		Filename: filename,
		Size:     size,
		Format:   domain.DetectFormat(filename),
		Raw:      raw,
		Text:     text,
		Mode:     mode,
	}
}
