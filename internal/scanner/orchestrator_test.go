package scanner

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// fakeArtifacts is an in-memory ArtifactStore for engine tests.
type fakeArtifacts struct {
	objects      map[string][]byte
	irregular    map[string]bool
	sizeOverride map[string]int64
	statErr      error
	readErr      error
	isolated     []string
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{
		objects:      make(map[string][]byte),
		irregular:    make(map[string]bool),
		sizeOverride: make(map[string]int64),
	}
}

func (f *fakeArtifacts) Put(_ context.Context, path string, r io.Reader, _ int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[path] = b
	return nil
}

func (f *fakeArtifacts) Stat(_ context.Context, path string) (domain.ArtifactInfo, error) {
	if f.statErr != nil {
		return domain.ArtifactInfo{}, f.statErr
	}
	b, ok := f.objects[path]
	if !ok {
		return domain.ArtifactInfo{}, domain.ErrArtifactNotFound
	}
	size := int64(len(b))
	if v, ok := f.sizeOverride[path]; ok {
		size = v
	}
	return domain.ArtifactInfo{Size: size, Regular: !f.irregular[path]}, nil
}

func (f *fakeArtifacts) ReadPrefix(_ context.Context, path string, maxBytes int64) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	b, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrArtifactNotFound
	}
	if maxBytes > 0 && int64(len(b)) > maxBytes {
		b = b[:maxBytes]
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (f *fakeArtifacts) Isolate(_ context.Context, path string, _ string) error {
	f.isolated = append(f.isolated, path)
	return nil
}

func newTestEngine(cat *Catalog, tun Tunables, fa *fakeArtifacts) *Engine {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewEngine(cat, tun, fa, logrus.NewEntry(log))
}

func scanRec(filename, path string) *domain.ModelScan {
	return &domain.ModelScan{
		ID:          domain.ScanID(uuid.NewString()),
		TenantID:    "acme",
		Filename:    filename,
		StoragePath: path,
		Status:      domain.StatusScanning,
	}
}

func TestEngineExecute_QuarantinesMaliciousPickle(t *testing.T) {
	fa := newFakeArtifacts()
	fa.objects["acme/trojan.pkl"] = []byte(strings.Repeat("eval(x) ", 12))
	eng := newTestEngine(nil, DefaultTunables(), fa)

	rec := scanRec("trojan.pkl", "acme/trojan.pkl")
	res, issues, err := eng.Execute(context.Background(), rec)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, domain.StatusQuarantined, res.Status)

	require.Len(t, res.Detections, 2)
	sig := res.Detections[0]
	assert.Equal(t, "signature", sig.Metadata["analyzer"])
	assert.Equal(t, "sig-eval-call", sig.Metadata["pattern_id"])
	assert.Equal(t, 1.0, sig.Confidence)
	assert.Equal(t, rec.ID, sig.ScanID)
	assert.NotEmpty(t, sig.ID)
	assert.False(t, sig.CreatedAt.IsZero())

	fmtDet := res.Detections[1]
	assert.Equal(t, "fmt-pickle-unsafe", fmtDet.Metadata["rule"])

	assert.Equal(t, 2, res.Summary[domain.SummaryTotalDetections])
	assert.Equal(t, 1.0, res.Summary[domain.SummaryHighestConfidence])
	assert.Equal(t, "text", res.Summary[domain.SummaryDecodeMode])
	assert.Equal(t, "builtin-1.4.0", res.Summary[domain.SummaryCatalogVersion])
	assert.Equal(t, 0, res.Summary[domain.SummaryAnalyzerFailures])

	counts, ok := res.Summary[domain.SummarySeverityCounts].(domain.SeverityCounts)
	require.True(t, ok)
	assert.Equal(t, 2, counts.High)
	assert.Equal(t, 2, counts.Total)
}

func TestEngineExecute_CleanArtifactCompletes(t *testing.T) {
	fa := newFakeArtifacts()
	fa.objects["acme/weights.bin"] = []byte("plain tensor shard, nothing executable")
	eng := newTestEngine(nil, DefaultTunables(), fa)

	res, issues, err := eng.Execute(context.Background(), scanRec("weights.bin", "acme/weights.bin"))
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Empty(t, res.Detections)
	assert.Equal(t, 0, res.Summary[domain.SummaryTotalDetections])
	assert.Equal(t, 0.0, res.Summary[domain.SummaryHighestConfidence])
	assert.Equal(t, 1, res.Summary[domain.SummaryEntropyChunks])
	assert.Equal(t, false, res.Summary[domain.SummarySuspiciousEntropy])
}

func TestEngineExecute_ValidationFailures(t *testing.T) {
	fa := newFakeArtifacts()
	fa.objects["acme/empty.pkl"] = nil
	fa.objects["acme/dir.pkl"] = []byte("x")
	fa.irregular["acme/dir.pkl"] = true
	fa.objects["acme/huge.pkl"] = []byte("elevenbytes")

	tun := DefaultTunables()
	tun.MaxArtifactBytes = 10
	eng := newTestEngine(nil, tun, fa)

	cases := []struct {
		name string
		rec  *domain.ModelScan
		want string
	}{
		{"missing artifact", scanRec("gone.pkl", "acme/gone.pkl"), "not found in storage"},
		{"empty artifact", scanRec("empty.pkl", "acme/empty.pkl"), "is empty"},
		{"irregular object", scanRec("dir.pkl", "acme/dir.pkl"), "not a regular object"},
		{"oversize artifact", scanRec("huge.pkl", "acme/huge.pkl"), "over the 10 byte limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := eng.Execute(context.Background(), tc.rec)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestEngineExecute_InfraErrorsAreNotValidation(t *testing.T) {
	fa := newFakeArtifacts()
	fa.objects["acme/a.pkl"] = []byte("content")

	t.Run("stat failure", func(t *testing.T) {
		fa.statErr = errors.New("bucket offline")
		defer func() { fa.statErr = nil }()
		eng := newTestEngine(nil, DefaultTunables(), fa)
		_, _, err := eng.Execute(context.Background(), scanRec("a.pkl", "acme/a.pkl"))
		require.Error(t, err)
		assert.False(t, domain.IsValidation(err))
		assert.Contains(t, err.Error(), "bucket offline")
	})

	t.Run("read failure", func(t *testing.T) {
		fa.readErr = errors.New("connection reset")
		defer func() { fa.readErr = nil }()
		eng := newTestEngine(nil, DefaultTunables(), fa)
		_, _, err := eng.Execute(context.Background(), scanRec("a.pkl", "acme/a.pkl"))
		require.Error(t, err)
		assert.False(t, domain.IsValidation(err))
	})
}

func TestEngineExecute_PrefixCapHidesDeepPayload(t *testing.T) {
	fa := newFakeArtifacts()
	fa.objects["acme/deep.bin"] = []byte(strings.Repeat("A", 50) + "eval(payload)")

	tun := DefaultTunables()
	tun.PrefixBytes = 16
	eng := newTestEngine(nil, tun, fa)

	res, _, err := eng.Execute(context.Background(), scanRec("deep.bin", "acme/deep.bin"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Empty(t, res.Detections)
}

func TestEngineExecute_CancelledContext(t *testing.T) {
	fa := newFakeArtifacts()
	fa.objects["acme/a.pkl"] = []byte("content")
	eng := newTestEngine(nil, DefaultTunables(), fa)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := eng.Execute(ctx, scanRec("a.pkl", "acme/a.pkl"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineExecute_SwappedCatalog(t *testing.T) {
	fa := newFakeArtifacts()
	fa.objects["acme/m.bin"] = []byte("header LOADME trailer")
	eng := newTestEngine(nil, DefaultTunables(), fa)

	eng.SetCatalog(&Catalog{
		version: "custom-7",
		patterns: []VulnerabilityPattern{{
			ID:                 "loader-marker",
			Name:               "loader marker",
			ThreatType:         domain.ThreatBackdoor,
			Severity:           domain.SeverityHigh,
			ConfidenceModifier: 1.0,
			matcher:            NewLiteralMatcher("LOADME", false),
		}},
	})

	res, _, err := eng.Execute(context.Background(), scanRec("m.bin", "acme/m.bin"))
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, "loader-marker", res.Detections[0].Metadata["pattern_id"])
	assert.Equal(t, "custom-7", res.Summary[domain.SummaryCatalogVersion])
}

func TestEngineExecute_RuleFailureSurfacesAsIssue(t *testing.T) {
	fa := newFakeArtifacts()
	fa.objects["acme/m.bin"] = []byte("content")

	cat := &Catalog{
		version: "test",
		patterns: []VulnerabilityPattern{{
			ID:                 "bad-rule",
			ThreatType:         domain.ThreatMalware,
			Severity:           domain.SeverityLow,
			ConfidenceModifier: 0.5,
			matcher:            errMatcher{},
		}},
	}
	eng := newTestEngine(cat, DefaultTunables(), fa)

	res, issues, err := eng.Execute(context.Background(), scanRec("m.bin", "acme/m.bin"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "signature", issues[0].Analyzer)
	assert.Equal(t, "bad-rule", issues[0].Rule)
	assert.Equal(t, 1, res.Summary[domain.SummaryAnalyzerFailures])
	assert.Equal(t, domain.StatusCompleted, res.Status)
}

func TestEngineExecute_DetectionOrderFollowsAnalyzers(t *testing.T) {
	fa := newFakeArtifacts()
	fa.objects["acme/mix.pkl"] = []byte("eval(a) os.environ os.environ os.environ")
	eng := newTestEngine(nil, DefaultTunables(), fa)

	res, _, err := eng.Execute(context.Background(), scanRec("mix.pkl", "acme/mix.pkl"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Detections), 3)

	assert.Equal(t, "signature", res.Detections[0].Metadata["analyzer"])
	last := res.Detections[len(res.Detections)-1]
	assert.Equal(t, "format", last.Metadata["analyzer"])

	var analyzers []string
	for _, d := range res.Detections {
		analyzers = append(analyzers, d.Metadata["analyzer"].(string))
	}
	assert.IsNonDecreasing(t, analyzerRanks(analyzers))
}

func analyzerRanks(names []string) []int {
	rank := map[string]int{"signature": 0, "behavioral": 1, "metadata": 2, "format": 3}
	out := make([]int, 0, len(names))
	for _, n := range names {
		out = append(out, rank[n])
	}
	return out
}

func TestTunablesNormalize(t *testing.T) {
	def := DefaultTunables()
	assert.Equal(t, def, Tunables{}.Normalize())

	partial := Tunables{MaxArtifactBytes: 100}
	got := partial.Normalize()
	assert.Equal(t, int64(100), got.MaxArtifactBytes)
	assert.Equal(t, def.PrefixBytes, got.PrefixBytes)
	assert.Equal(t, def.Policy, got.Policy)
}

func TestEngineTunablesSwap(t *testing.T) {
	eng := newTestEngine(nil, DefaultTunables(), newFakeArtifacts())

	tun := DefaultTunables()
	tun.MaxArtifactBytes = 42
	eng.SetTunables(tun)
	assert.Equal(t, int64(42), eng.Tunables().MaxArtifactBytes)

	// Zero values are backfilled on the way in.
	eng.SetTunables(Tunables{})
	assert.Equal(t, DefaultMaxArtifactBytes, eng.Tunables().MaxArtifactBytes)
}
