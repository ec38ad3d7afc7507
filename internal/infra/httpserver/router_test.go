package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/modelscan-sec/internal/application"
	appai "github.com/bryanwahyu/modelscan-sec/internal/application/ai"
	appscans "github.com/bryanwahyu/modelscan-sec/internal/application/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/application/worker"
	"github.com/bryanwahyu/modelscan-sec/internal/domain/advisor"
	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/ai/local"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/cache"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/db/memory"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/notify"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/storage"
	"github.com/bryanwahyu/modelscan-sec/internal/middleware"
	"github.com/bryanwahyu/modelscan-sec/internal/scanner"
)

type routerEnv struct {
	handler http.Handler
	svc     *appscans.Service
	wrk     *worker.Worker
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logrus.NewEntry(logger)

	dir := t.TempDir()
	arts, err := storage.NewFS(filepath.Join(dir, "artifacts"), filepath.Join(dir, "quarantine"))
	require.NoError(t, err)

	store := memory.NewStore()
	resCache := cache.NewMemory()
	t.Cleanup(resCache.Close)

	svc := &appscans.Service{
		Repo:      store,
		Errors:    memory.NewScanErrorRepository(),
		Artifacts: arts,
		Cache:     resCache,
		Notify:    notify.NewLog(entry),
		Engine:    scanner.NewEngine(scanner.BuiltinCatalog(), scanner.DefaultTunables(), arts, entry),
		Clock:     application.SystemClock{},
		Log:       entry,
		CacheTTL:  time.Minute,
	}

	aiSvc := appai.NewService(local.NewClient(), memory.NewAdviceRepository(), store, application.SystemClock{})

	wrk := worker.New(svc, entry, worker.Options{Interval: time.Hour})
	t.Cleanup(func() { _ = wrk.Stop(context.Background()) })

	return &routerEnv{
		handler: NewRouter(svc, aiSvc, wrk, middleware.HealthHandler(nil), entry),
		svc:     svc,
		wrk:     wrk,
	}
}

func (env *routerEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *routerEnv) getJSON(t *testing.T, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := env.do(t, http.MethodGet, path, nil, "")
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
	}
	return rec
}

func multipartUpload(t *testing.T, filename, owner string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	if owner != "" {
		require.NoError(t, mw.WriteField("owner_id", owner))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (env *routerEnv) ingest(t *testing.T, tenant, filename string, content []byte) domain.ModelScan {
	t.Helper()
	body, ct := multipartUpload(t, filename, "owner-1", content)
	rec := env.do(t, http.MethodPost, "/v1/"+tenant+"/scans", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var scan domain.ModelScan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&scan))
	return scan
}

// drainQueue runs the worker's job synchronously so tests control timing.
func (env *routerEnv) drainQueue(t *testing.T) {
	t.Helper()
	for {
		batch, err := env.svc.QueuedBatch(context.Background(), 10)
		require.NoError(t, err)
		if len(batch) == 0 {
			return
		}
		for _, rec := range batch {
			_, err := env.svc.ProcessScan(context.Background(), rec)
			require.NoError(t, err)
		}
	}
}

func TestRouterIngestAndReadBack(t *testing.T) {
	env := newRouterEnv(t)

	scan := env.ingest(t, "acme", "model.pkl", []byte("just some tensor config"))
	assert.Equal(t, "acme", scan.TenantID)
	assert.Equal(t, "owner-1", scan.OwnerID)
	assert.Equal(t, "model.pkl", scan.Filename)
	assert.Equal(t, domain.StatusQueued, scan.Status)
	require.NoError(t, middleware.ValidateScanID(string(scan.ID)))

	var got domain.ModelScan
	rec := env.getJSON(t, fmt.Sprintf("/v1/acme/scans/%s", scan.ID), &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scan.ID, got.ID)

	var queued []domain.ModelScan
	rec = env.getJSON(t, "/v1/acme/scans?status=queued", &queued)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, queued, 1)
	assert.Equal(t, scan.ID, queued[0].ID)

	// other tenants never see the scan
	rec = env.getJSON(t, fmt.Sprintf("/v1/beta/scans/%s", scan.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterCleanScanLifecycle(t *testing.T) {
	env := newRouterEnv(t)

	scan := env.ingest(t, "acme", "weights.safetensors", []byte("nothing but floats in here"))
	env.drainQueue(t)

	var got domain.ModelScan
	rec := env.getJSON(t, fmt.Sprintf("/v1/acme/scans/%s", scan.ID), &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	var res domain.ScanResult
	rec = env.getJSON(t, fmt.Sprintf("/v1/acme/scans/%s/result", scan.ID), &res)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/acme/scans/%s/detections", scan.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String(), "no detections still encodes as an array")

	var summary map[string]any
	rec = env.getJSON(t, "/v1/acme/summary", &summary)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, summary["total"])

	// scan just happened, so a short window still sees it
	var windowed map[string]any
	rec = env.getJSON(t, "/v1/acme/summary?days=1", &windowed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, windowed["total"])
}

func TestRouterQuarantineAndAdviseFlow(t *testing.T) {
	env := newRouterEnv(t)

	payload := strings.Repeat("eval(compile(src)) ", 12)
	scan := env.ingest(t, "acme", "trojan.pkl", []byte(payload))
	env.drainQueue(t)

	var got domain.ModelScan
	rec := env.getJSON(t, fmt.Sprintf("/v1/acme/scans/%s", scan.ID), &got)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.StatusQuarantined, got.Status)

	var dets []domain.ThreatDetection
	rec = env.getJSON(t, fmt.Sprintf("/v1/acme/scans/%s/detections", scan.ID), &dets)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, dets)
	rules := make([]string, 0, len(dets))
	for _, d := range dets {
		if v, ok := d.Metadata["pattern_id"]; ok {
			rules = append(rules, fmt.Sprint(v))
		}
		if v, ok := d.Metadata["rule"]; ok {
			rules = append(rules, fmt.Sprint(v))
		}
	}
	assert.Contains(t, rules, "sig-eval-call")
	assert.Contains(t, rules, "fmt-pickle-unsafe")

	var report appscans.SecurityReport
	rec = env.getJSON(t, fmt.Sprintf("/v1/acme/scans/%s/report", scan.ID), &report)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusQuarantined, report.Status)
	assert.NotEmpty(t, report.Threats)

	// advisory over the finished scan
	body := bytes.NewBufferString(fmt.Sprintf(`{"scan_id":%q}`, scan.ID))
	rec = env.do(t, http.MethodPost, "/v1/acme/ai/advise", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var advice advisor.Advice
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&advice))
	assert.Equal(t, string(domain.StatusQuarantined), advice.Verdict)
	assert.Contains(t, advice.Result, `"verdict"`)

	var latest advisor.Advice
	rec = env.getJSON(t, fmt.Sprintf("/v1/acme/ai/advise/%s", scan.ID), &latest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, advice.ID, latest.ID)

	var history []advisor.Advice
	rec = env.getJSON(t, "/v1/acme/ai/advise?page=1&page_size=10", &history)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, history, 1)
}

func TestRouterAdviseValidation(t *testing.T) {
	env := newRouterEnv(t)

	t.Run("broken body", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/acme/ai/advise", strings.NewReader("{nope"), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid JSON body")
	})

	t.Run("bad scan id", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/acme/ai/advise", strings.NewReader(`{"scan_id":"nope"}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no advice yet", func(t *testing.T) {
		rec := env.getJSON(t, "/v1/acme/ai/advise/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouterIngestValidation(t *testing.T) {
	env := newRouterEnv(t)

	t.Run("missing file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("owner_id", "owner-1"))
		require.NoError(t, mw.Close())

		rec := env.do(t, http.MethodPost, "/v1/acme/scans", &buf, mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"file"`)
	})

	t.Run("traversal filename", func(t *testing.T) {
		body, ct := multipartUpload(t, "../../evil.pkl", "", []byte("x"))
		rec := env.do(t, http.MethodPost, "/v1/acme/scans", body, ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "path traversal")
	})

	t.Run("invalid tenant segment", func(t *testing.T) {
		body, ct := multipartUpload(t, "model.pkl", "", []byte("x"))
		rec := env.do(t, http.MethodPost, "/v1/bad.tenant/scans", body, ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRouterScanLookupErrors(t *testing.T) {
	env := newRouterEnv(t)

	t.Run("malformed id", func(t *testing.T) {
		rec := env.getJSON(t, "/v1/acme/scans/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid scan ID format")
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := env.getJSON(t, "/v1/acme/scans/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not found")
	})

	t.Run("bad status filter", func(t *testing.T) {
		rec := env.getJSON(t, "/v1/acme/scans?status=exploded", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRouterRequeue(t *testing.T) {
	env := newRouterEnv(t)

	scan := env.ingest(t, "acme", "model.pkl", []byte("clean content"))

	t.Run("queued scan cannot requeue", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, fmt.Sprintf("/v1/acme/scans/%s/requeue", scan.ID), nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	env.drainQueue(t)

	t.Run("terminal scan requeues", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, fmt.Sprintf("/v1/acme/scans/%s/requeue", scan.ID), nil, "")
		require.Equal(t, http.StatusAccepted, rec.Code)

		var got domain.ModelScan
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, domain.StatusQueued, got.Status)
		assert.Equal(t, "completed", got.Summary[domain.SummaryPreviousStatus])
	})
}

func TestRouterScanErrorsEndpoint(t *testing.T) {
	env := newRouterEnv(t)

	// register a record whose artifact never landed in storage
	rec, err := env.svc.Submit(context.Background(), appscans.SubmitCommand{
		TenantID:    "acme",
		Filename:    "ghost.pkl",
		StoragePath: "acme/nowhere/ghost.pkl",
	})
	require.NoError(t, err)
	env.drainQueue(t)

	var hist []json.RawMessage
	res := env.getJSON(t, fmt.Sprintf("/v1/acme/scans/%s/errors", rec.ID), &hist)
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, hist, 1)
	assert.Contains(t, string(hist[0]), "not found in storage")
}

func TestRouterWorkerEndpoints(t *testing.T) {
	env := newRouterEnv(t)

	var status worker.Status
	rec := env.getJSON(t, "/v1/worker/status", &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, status.Running)

	rec = env.do(t, http.MethodPost, "/v1/worker/trigger", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"triggered":false`)

	rec = env.do(t, http.MethodPost, "/v1/worker/start", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "started")

	rec = env.getJSON(t, "/v1/worker/status", &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, status.Running)

	rec = env.do(t, http.MethodPost, "/v1/worker/reset-errors", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/worker/stop", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stopped")
}

func TestRouterOperationalEndpoints(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = env.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scans_submitted")
}
