package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maltedev/storefront-auditor/internal/database"
	"github.com/maltedev/storefront-auditor/internal/export"
	"github.com/maltedev/storefront-auditor/internal/jobs"
	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/pipeline"
	"github.com/maltedev/storefront-auditor/internal/report"
)

const (
	maxBodyBytes    = 10 << 20
	defaultRunLimit = 20
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Classifier is the part of mockup.Detector the classify endpoint needs.
type Classifier interface {
	Classify(text string) bool
	Score(text string) float64
}

// JobService runs storefront audits in the background. *jobs.Manager
// satisfies it.
type JobService interface {
	Submit(sellerURL string) (jobs.Job, error)
	Get(id string) (jobs.Job, error)
	List() []jobs.Job
	Report(id string) (*report.Report, error)
	Products(id string) ([]models.Product, error)
}

// RunReader reads persisted audit runs. *database.AuditRepository satisfies it.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*database.AuditRun, error)
	ListRuns(ctx context.Context, limit int) ([]*database.AuditRun, error)
	GetRunProducts(ctx context.Context, id uuid.UUID) ([]models.Product, error)
}

// BacklogReporter reports the outbox backlog. *database.Relay satisfies it.
type BacklogReporter interface {
	Backlog(ctx context.Context) (pending int64, deadLetter int64, err error)
}

type Handlers struct {
	classifier Classifier
	annotator  *pipeline.Annotator
	assembler  *report.Assembler
	jobs       JobService
	runs       RunReader
	backlog    BacklogReporter
	logger     *slog.Logger
}

type Option func(*Handlers)

// WithRuns enables the persisted run endpoints.
func WithRuns(runs RunReader) Option {
	return func(h *Handlers) { h.runs = runs }
}

// WithBacklog adds the outbox backlog to the health check.
func WithBacklog(b BacklogReporter) Option {
	return func(h *Handlers) { h.backlog = b }
}

func NewHandlers(classifier Classifier, annotator *pipeline.Annotator, assembler *report.Assembler, jobs JobService, logger *slog.Logger, opts ...Option) *Handlers {
	h := &Handlers{
		classifier: classifier,
		annotator:  annotator,
		assembler:  assembler,
		jobs:       jobs,
		logger:     logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ClassifyRequest holds image names or URLs to classify
type ClassifyRequest struct {
	Texts []string `json:"texts"`
}

type Classification struct {
	Text     string  `json:"text"`
	IsMockup bool    `json:"is_mockup"`
	Score    float64 `json:"score"`
}

type ClassifyResponse struct {
	Results     []Classification `json:"results"`
	MockupCount int              `json:"mockup_count"`
}

// Classify handles mockup classification of image names or URLs
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Texts) == 0 {
		h.respondError(w, http.StatusBadRequest, "texts is required")
		return
	}

	resp := ClassifyResponse{Results: make([]Classification, 0, len(req.Texts))}
	for _, text := range req.Texts {
		c := Classification{
			Text:     text,
			IsMockup: h.classifier.Classify(text),
			Score:    h.classifier.Score(text),
		}
		if c.IsMockup {
			resp.MockupCount++
		}
		resp.Results = append(resp.Results, c)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Analyze builds a report from a product collection posted as a JSON array.
// annotate=true recomputes the derived fields from the raw facts and
// annotate=false reports them as posted. Without the parameter a collection
// in which no product carries mockup_images or missing_sizes is annotated.
// format=xlsx returns the workbook instead of JSON.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	products, err := report.DecodeProducts(body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if shouldAnnotate(r.URL.Query().Get("annotate"), products) {
		products, err = h.annotator.Reannotate(r.Context(), products)
		if err != nil {
			h.respondError(w, http.StatusServiceUnavailable, "request cancelled")
			return
		}
	}

	var rep *report.Report
	if detailed, _ := strconv.ParseBool(r.URL.Query().Get("detailed")); detailed {
		rep = h.assembler.BuildDetailed(products)
	} else {
		rep = h.assembler.Build(products)
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "xlsx") {
		h.respondWorkbook(w, rep, "report.xlsx")
		return
	}

	h.respondJSON(w, http.StatusOK, rep)
}

func shouldAnnotate(param string, products []models.Product) bool {
	if annotate, err := strconv.ParseBool(param); err == nil {
		return annotate
	}
	for _, p := range products {
		if p.MockupImages != nil || p.MissingSizes != nil {
			return false
		}
	}
	return len(products) > 0
}

// CreateAuditRequest represents a new storefront audit request
type CreateAuditRequest struct {
	SellerURL string `json:"seller_url"`
}

type CreateAuditResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

// CreateAudit starts a background audit of a seller storefront
func (h *Handlers) CreateAudit(w http.ResponseWriter, r *http.Request) {
	var req CreateAuditRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.SellerURL) == "" {
		h.respondError(w, http.StatusBadRequest, "seller_url is required")
		return
	}

	job, err := h.jobs.Submit(req.SellerURL)
	if err != nil {
		if errors.Is(err, jobs.ErrShuttingDown) {
			h.respondError(w, http.StatusServiceUnavailable, "service is shutting down")
			return
		}
		h.logger.Error("failed to create audit", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create audit")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateAuditResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Audit started",
	})
}

func (h *Handlers) ListAudits(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.List())
}

func (h *Handlers) GetAudit(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) GetAuditProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.jobs.Products(chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetAuditReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.jobs.Report(chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rep)
}

func (h *Handlers) DownloadAuditReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	rep, err := h.jobs.Report(jobID)
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondWorkbook(w, rep, "audit-"+jobID+".xlsx")
}

// ListRuns handles listing persisted audit runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	h.respondJSON(w, http.StatusOK, runs)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) GetRunProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	if _, err := h.runs.GetRun(r.Context(), id); err != nil {
		h.respondRunError(w, err)
		return
	}

	products, err := h.runs.GetRunProducts(r.Context(), id)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, products)
}

// Health reports service status and, when a database is configured, the
// outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.backlog != nil {
		pending, deadLetter, err := h.backlog.Backlog(r.Context())
		if err != nil {
			h.logger.Error("failed to read outbox backlog", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		} else {
			health["outbox"] = map[string]interface{}{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > 1000 {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetter > 100 {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

// Helper methods
func (h *Handlers) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrJobNotFinished):
		h.respondError(w, http.StatusConflict, "job has not completed")
	default:
		h.logger.Error("job lookup failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) respondRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrRunNotFound) {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	h.logger.Error("run lookup failed", "error", err)
	h.respondError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handlers) respondWorkbook(w http.ResponseWriter, rep *report.Report, filename string) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := export.WriteWorkbook(rep, w); err != nil {
		h.logger.Error("failed to write workbook", "error", err)
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
