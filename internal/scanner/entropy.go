package scanner

import "math"

// Entropy thresholds. A chunk above highChunkEntropy is effectively
// indistinguishable from random data; plaintext and pickled structures sit
// well below it.
const (
	entropyChunkSize     = 1024
	highChunkEntropy     = 7.0
	suspiciousAvgEntropy = 6.5
	highChunkRatio       = 0.10
)

// EntropyStats summarizes the randomness profile of an artifact prefix.
// The entropy analyzer never emits detections on its own; its stats feed
// the scan summary so reviewers can spot packed or encrypted payloads.
type EntropyStats struct {
	Avg        float64 `json:"avg"`
	Max        float64 `json:"max"`
	Chunks     int     `json:"chunks"`
	HighChunks int     `json:"high_chunks"`
	Suspicious bool    `json:"suspicious"`
}

// EntropyAnalyzer computes per-chunk Shannon entropy over the raw bytes,
// before any text decoding, so binary payloads score as they are stored.
type EntropyAnalyzer struct {
	chunkSize int
}

func NewEntropyAnalyzer() *EntropyAnalyzer {
	return &EntropyAnalyzer{chunkSize: entropyChunkSize}
}

// Analyze walks raw in fixed chunks (the trailing partial chunk counts
// too). The profile is suspicious when the average exceeds 6.5 bits/byte
// or more than 10% of chunks exceed 7.0 bits/byte.
func (a *EntropyAnalyzer) Analyze(raw []byte) EntropyStats {
	var st EntropyStats
	if len(raw) == 0 {
		return st
	}
	var sum float64
	for off := 0; off < len(raw); off += a.chunkSize {
		end := off + a.chunkSize
		if end > len(raw) {
			end = len(raw)
		}
		h := shannonEntropy(raw[off:end])
		sum += h
		st.Chunks++
		if h > st.Max {
			st.Max = h
		}
		if h > highChunkEntropy {
			st.HighChunks++
		}
	}
	st.Avg = sum / float64(st.Chunks)
	ratio := float64(st.HighChunks) / float64(st.Chunks)
	st.Suspicious = st.Avg > suspiciousAvgEntropy || ratio > highChunkRatio
	return st
}

// shannonEntropy returns bits of entropy per byte for one chunk.
func shannonEntropy(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range chunk {
		freq[b]++
	}
	total := float64(len(chunk))
	var h float64
	for _, n := range freq {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		h -= p * math.Log2(p)
	}
	return h
}
