package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appai "github.com/bryanwahyu/modelscan-sec/internal/application/ai"
	appscans "github.com/bryanwahyu/modelscan-sec/internal/application/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/application/worker"
	"github.com/bryanwahyu/modelscan-sec/internal/domain/advisor"
	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/middleware"
)

type Router struct {
	scansSvc *appscans.Service
	aiSvc    *appai.Service
	wrk      *worker.Worker
	log      *logrus.Entry
}

func NewRouter(scansSvc *appscans.Service, aiSvc *appai.Service, wrk *worker.Worker, health http.HandlerFunc, log *logrus.Entry) http.Handler {
	r := &Router{scansSvc: scansSvc, aiSvc: aiSvc, wrk: wrk, log: log}
	mux := chi.NewRouter()

	mux.Get("/health", health)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.TenantGuard)

		rt.Post("/scans", r.wrap(r.handleIngest))
		rt.Get("/scans", r.wrap(r.handleList))
		rt.Get("/scans/latest", r.wrap(r.handleLatest))
		rt.Get("/scans/{id}", r.wrap(r.handleGet))
		rt.Get("/scans/{id}/detections", r.wrap(r.handleDetections))
		rt.Get("/scans/{id}/result", r.wrap(r.handleResult))
		rt.Get("/scans/{id}/errors", r.wrap(r.handleScanErrors))
		rt.Get("/scans/{id}/report", r.wrap(r.handleReport))
		rt.Post("/scans/{id}/requeue", r.wrap(r.handleRequeue))
		rt.Get("/summary", r.wrap(r.handleSummary))

		rt.Post("/ai/advise", r.wrap(r.handleAdvise))
		rt.Get("/ai/advise", r.wrap(r.handleAdviseList))
		rt.Get("/ai/advise/{id}", r.wrap(r.handleAdviseLatest))
	})

	mux.Route("/v1/worker", func(rt chi.Router) {
		rt.Post("/start", r.wrap(r.handleWorkerStart))
		rt.Post("/stop", r.wrap(r.handleWorkerStop))
		rt.Post("/trigger", r.wrap(r.handleWorkerTrigger))
		rt.Post("/reset-errors", r.wrap(r.handleWorkerResetErrors))
		rt.Get("/status", r.wrap(r.handleWorkerStatus))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, sql.ErrNoRows):
			http.Error(w, "not found", http.StatusNotFound)
		case domain.IsValidation(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, advisor.ErrQuotaExceeded):
			http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
		default:
			r.log.WithError(err).WithField("path", req.URL.Path).Error("handler failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func scanIDParam(req *http.Request) (domain.ScanID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return "", domain.NewValidationError("%s", err)
	}
	return domain.ScanID(id), nil
}

// POST /v1/{tenant}/scans
// Multipart upload: field "file" wajib, "owner_id" opsional.
// Balasan 202: scanning jalan async lewat worker.
func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")

	file, header, err := req.FormFile("file")
	if err != nil {
		return domain.NewValidationError("multipart field %q is required", "file")
	}
	defer file.Close()

	if err := middleware.ValidateFilename(header.Filename); err != nil {
		return domain.NewValidationError("%s", err)
	}

	rec, err := r.scansSvc.Ingest(req.Context(), appscans.IngestCommand{
		TenantID:     tenant,
		OwnerID:      middleware.SanitizeString(req.FormValue("owner_id")),
		Filename:     header.Filename,
		DeclaredSize: header.Size,
		Content:      file,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, rec)
}

// GET /v1/{tenant}/scans?status=&limit=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	status := req.URL.Query().Get("status")
	if err := middleware.ValidateStatus(status); err != nil {
		return domain.NewValidationError("%s", err)
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.scansSvc.List(req.Context(), tenant, status, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/scans/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.scansSvc.Latest(req.Context(), tenant, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/scans/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}

	scan, err := r.scansSvc.Get(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, scan)
}

// GET /v1/{tenant}/scans/{id}/detections
func (r *Router) handleDetections(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}

	dets, err := r.scansSvc.Detections(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	if dets == nil {
		dets = []domain.ThreatDetection{}
	}
	return writeJSON(w, http.StatusOK, dets)
}

// GET /v1/{tenant}/scans/{id}/result
func (r *Router) handleResult(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}

	res, err := r.scansSvc.Result(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// GET /v1/{tenant}/scans/{id}/errors
func (r *Router) handleScanErrors(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}

	hist, err := r.scansSvc.ScanHistory(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, hist)
}

// GET /v1/{tenant}/scans/{id}/report
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}

	rep, err := r.scansSvc.Report(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rep)
}

// POST /v1/{tenant}/scans/{id}/requeue
func (r *Router) handleRequeue(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}

	rec, err := r.scansSvc.Requeue(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	// worker tidak perlu nunggu tick berikutnya
	r.wrk.TriggerNow()
	return writeJSON(w, http.StatusAccepted, rec)
}

// GET /v1/{tenant}/summary?days=30
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	if days < 0 {
		days = 0
	}

	summary, err := r.scansSvc.Summary(req.Context(), tenant, days)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, summary)
}

// POST /v1/{tenant}/ai/advise
// Body: {"scan_id": "<id>"}
func (r *Router) handleAdvise(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	var body struct {
		ScanID string `json:"scan_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return domain.NewValidationError("invalid JSON body")
	}
	if err := middleware.ValidateScanID(body.ScanID); err != nil {
		return domain.NewValidationError("%s", err)
	}

	advice, err := r.aiSvc.Advise(req.Context(), tenant, domain.ScanID(body.ScanID))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, advice)
}

// GET /v1/{tenant}/ai/advise?page=&page_size=
func (r *Router) handleAdviseList(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.aiSvc.History(req.Context(), tenant, page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/ai/advise/{id}
func (r *Router) handleAdviseLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}

	advice, err := r.aiSvc.LatestForScan(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	if advice == nil {
		return domain.ErrNotFound
	}
	return writeJSON(w, http.StatusOK, advice)
}

// POST /v1/worker/start
func (r *Router) handleWorkerStart(w http.ResponseWriter, req *http.Request) error {
	r.wrk.Start()
	return writeJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

// POST /v1/worker/stop
func (r *Router) handleWorkerStop(w http.ResponseWriter, req *http.Request) error {
	if err := r.wrk.Stop(req.Context()); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

// POST /v1/worker/trigger
func (r *Router) handleWorkerTrigger(w http.ResponseWriter, req *http.Request) error {
	triggered := r.wrk.TriggerNow()
	return writeJSON(w, http.StatusAccepted, map[string]any{"triggered": triggered})
}

// POST /v1/worker/reset-errors
func (r *Router) handleWorkerResetErrors(w http.ResponseWriter, req *http.Request) error {
	r.wrk.ResetErrorState()
	return writeJSON(w, http.StatusOK, map[string]any{"status": "error state cleared"})
}

// GET /v1/worker/status
func (r *Router) handleWorkerStatus(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.wrk.Status())
}
