package scanner

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fullSpreadChunk holds every byte value exactly 4 times: 8.0 bits/byte.
func fullSpreadChunk() []byte {
	b := make([]byte, entropyChunkSize)
	for i := range b {
		b[i] = byte(i % 256)
	}
	return b
}

// halfSpreadChunk holds 128 distinct values exactly 8 times: 7.0 bits/byte.
func halfSpreadChunk() []byte {
	b := make([]byte, entropyChunkSize)
	for i := range b {
		b[i] = byte(i % 128)
	}
	return b
}

func TestEntropyAnalyzer_Empty(t *testing.T) {
	st := NewEntropyAnalyzer().Analyze(nil)
	assert.Zero(t, st.Chunks)
	assert.Zero(t, st.Avg)
	assert.False(t, st.Suspicious)
}

func TestEntropyAnalyzer_ZeroBytes(t *testing.T) {
	st := NewEntropyAnalyzer().Analyze(make([]byte, 2*entropyChunkSize))
	assert.Equal(t, 2, st.Chunks)
	assert.Zero(t, st.Avg)
	assert.Zero(t, st.Max)
	assert.Zero(t, st.HighChunks)
	assert.False(t, st.Suspicious)
}

func TestEntropyAnalyzer_TrailingPartialChunkCounts(t *testing.T) {
	st := NewEntropyAnalyzer().Analyze(make([]byte, entropyChunkSize+entropyChunkSize/2))
	assert.Equal(t, 2, st.Chunks)
}

func TestEntropyAnalyzer_UniformBytesMaxOutEntropy(t *testing.T) {
	st := NewEntropyAnalyzer().Analyze(fullSpreadChunk())
	assert.Equal(t, 1, st.Chunks)
	assert.InDelta(t, 8.0, st.Avg, 1e-9)
	assert.InDelta(t, 8.0, st.Max, 1e-9)
	assert.Equal(t, 1, st.HighChunks)
	assert.True(t, st.Suspicious)
}

func TestEntropyAnalyzer_SuspiciousByAverageAlone(t *testing.T) {
	// Every chunk sits at exactly 7.0: above the 6.5 average threshold but
	// never strictly above the 7.0 per-chunk threshold.
	raw := bytes.Repeat(halfSpreadChunk(), 3)
	st := NewEntropyAnalyzer().Analyze(raw)
	assert.Equal(t, 3, st.Chunks)
	assert.InDelta(t, 7.0, st.Avg, 1e-9)
	assert.Zero(t, st.HighChunks)
	assert.True(t, st.Suspicious)
}

func TestEntropyAnalyzer_SuspiciousByHighChunkRatio(t *testing.T) {
	// 3 maxed chunks out of 20: average 1.2 stays low, ratio 0.15 trips.
	raw := append(bytes.Repeat(fullSpreadChunk(), 3), make([]byte, 17*entropyChunkSize)...)
	st := NewEntropyAnalyzer().Analyze(raw)
	assert.Equal(t, 20, st.Chunks)
	assert.Less(t, st.Avg, suspiciousAvgEntropy)
	assert.Equal(t, 3, st.HighChunks)
	assert.True(t, st.Suspicious)
}

func TestEntropyAnalyzer_RatioAtBoundaryIsNotSuspicious(t *testing.T) {
	// Exactly 10% high chunks: the ratio rule requires strictly more.
	raw := append(fullSpreadChunk(), make([]byte, 9*entropyChunkSize)...)
	st := NewEntropyAnalyzer().Analyze(raw)
	assert.Equal(t, 10, st.Chunks)
	assert.Equal(t, 1, st.HighChunks)
	assert.False(t, st.Suspicious)
}

func TestShannonEntropy(t *testing.T) {
	assert.Zero(t, shannonEntropy(bytes.Repeat([]byte{0x41}, 64)))
	assert.InDelta(t, 1.0, shannonEntropy([]byte{0, 1, 0, 1}), 1e-9)
	assert.Zero(t, shannonEntropy(nil))
}
