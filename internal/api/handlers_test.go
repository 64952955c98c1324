package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/storefront-auditor/internal/database"
	"github.com/maltedev/storefront-auditor/internal/jobs"
	"github.com/maltedev/storefront-auditor/internal/mockup"
	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/pipeline"
	"github.com/maltedev/storefront-auditor/internal/report"
)

var catalog = []string{"30x40", "50x70"}

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) Submit(sellerURL string) (jobs.Job, error) {
	args := m.Called(sellerURL)
	return args.Get(0).(jobs.Job), args.Error(1)
}

func (m *MockJobService) Get(id string) (jobs.Job, error) {
	args := m.Called(id)
	return args.Get(0).(jobs.Job), args.Error(1)
}

func (m *MockJobService) List() []jobs.Job {
	return m.Called().Get(0).([]jobs.Job)
}

func (m *MockJobService) Report(id string) (*report.Report, error) {
	args := m.Called(id)
	rep, _ := args.Get(0).(*report.Report)
	return rep, args.Error(1)
}

func (m *MockJobService) Products(id string) ([]models.Product, error) {
	args := m.Called(id)
	products, _ := args.Get(0).([]models.Product)
	return products, args.Error(1)
}

type MockRunReader struct {
	mock.Mock
}

func (m *MockRunReader) GetRun(ctx context.Context, id uuid.UUID) (*database.AuditRun, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*database.AuditRun)
	return run, args.Error(1)
}

func (m *MockRunReader) ListRuns(ctx context.Context, limit int) ([]*database.AuditRun, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]*database.AuditRun)
	return runs, args.Error(1)
}

func (m *MockRunReader) GetRunProducts(ctx context.Context, id uuid.UUID) ([]models.Product, error) {
	args := m.Called(ctx, id)
	products, _ := args.Get(0).([]models.Product)
	return products, args.Error(1)
}

type stubBacklog struct {
	pending, deadLetter int64
	err                 error
}

func (s stubBacklog) Backlog(ctx context.Context) (int64, int64, error) {
	return s.pending, s.deadLetter, s.err
}

func newTestRouter(svc JobService, opts ...Option) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(
		mockup.NewDetector(),
		pipeline.NewAnnotator(nil, catalog, 1),
		report.NewAssembler(catalog),
		svc,
		logger,
		opts...,
	)
	return NewRouter(h, RouterConfig{AllowedOrigins: []string{"*"}})
}

func do(t *testing.T, handler http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestClassify(t *testing.T) {
	router := newTestRouter(new(MockJobService))

	body := []byte(`{"texts":["poster-mockup.jpg","ocean.jpg","çerçeve_2.png"]}`)
	rec := do(t, router, http.MethodPost, "/api/v1/classify", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.True(t, resp.Results[0].IsMockup)
	assert.Greater(t, resp.Results[0].Score, 0.0)
	assert.False(t, resp.Results[1].IsMockup)
	assert.Equal(t, 0.0, resp.Results[1].Score)
	assert.True(t, resp.Results[2].IsMockup)
	assert.Equal(t, 2, resp.MockupCount)
}

func TestClassify_BadRequest(t *testing.T) {
	router := newTestRouter(new(MockJobService))

	rec := do(t, router, http.MethodPost, "/api/v1/classify", []byte(`{"texts":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/classify", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const productsJSON = `[
	{"url":"https://www.trendyol.com/a/p/1","title":"Ocean","sku":"S1",
	 "images":["ocean-mockup.jpg","ocean.jpg"],"variations":["30x40"],
	 "mockup_images":["ocean-mockup.jpg"],"missing_sizes":["50x70"]},
	{"url":"https://www.trendyol.com/b/p/2","title":"","sku":"",
	 "images":[],"variations":[],"mockup_images":[],"missing_sizes":["30x40","50x70"]}
]`

func TestAnalyze_JSON(t *testing.T) {
	router := newTestRouter(new(MockJobService))

	rec := do(t, router, http.MethodPost, "/api/v1/analyze", []byte(productsJSON))
	require.Equal(t, http.StatusOK, rec.Code)

	var rep report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Len(t, rep.Tables, 5)
	assert.Equal(t, report.SheetMain, rep.Tables[0].Name)
	assert.Len(t, rep.Tables[0].Rows, 2)
	assert.Empty(t, rep.Details)

	missing, ok := rep.Table(report.SheetMissingSizes)
	require.True(t, ok)
	assert.Len(t, missing.Rows, 2)
}

func TestAnalyze_Reannotate(t *testing.T) {
	router := newTestRouter(new(MockJobService))

	body := []byte(`[{"url":"u","title":"t","images":["frame_1.jpg","photo.jpg"],"variations":["30x40 cm","50x70 cm"]}]`)
	rec := do(t, router, http.MethodPost, "/api/v1/analyze?annotate=true&detailed=true", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var rep report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Len(t, rep.Details, 1)

	mockups, ok := rep.Table(report.SheetMockups)
	require.True(t, ok)
	require.Len(t, mockups.Rows, 1)
	assert.Equal(t, float64(1), mockups.Rows[0]["Mockup Count"])
	assert.Equal(t, report.HasMockupLabel, mockups.Rows[0]["Mockup Status"])

	mainTable, ok := rep.Table(report.SheetMain)
	require.True(t, ok)
	assert.Equal(t, report.AllSizesPresent, mainTable.Rows[0]["Missing Sizes"])
}

func TestAnalyze_RawCollectionAnnotatedByDefault(t *testing.T) {
	router := newTestRouter(new(MockJobService))
	body := []byte(`[{"url":"u","title":"t","images":["frame_1.jpg","photo.jpg"],"variations":["30x40"]}]`)

	tests := []struct {
		name            string
		target          string
		expectedMockups float64
		expectedMissing any
	}{
		{"No parameter", "/api/v1/analyze", 1, "50x70"},
		{"Explicitly disabled", "/api/v1/analyze?annotate=false", 0, report.AllSizesPresent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, tt.target, body)
			require.Equal(t, http.StatusOK, rec.Code)

			var rep report.Report
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))

			mockups, ok := rep.Table(report.SheetMockups)
			require.True(t, ok)
			assert.Equal(t, tt.expectedMockups, mockups.Rows[0]["Mockup Count"])

			mainTable, ok := rep.Table(report.SheetMain)
			require.True(t, ok)
			assert.Equal(t, tt.expectedMissing, mainTable.Rows[0]["Missing Sizes"])
		})
	}
}

func TestShouldAnnotate(t *testing.T) {
	annotated := []models.Product{{URL: "a", MockupImages: []string{}}, {URL: "b"}}
	raw := []models.Product{{URL: "a"}, {URL: "b"}}

	assert.True(t, shouldAnnotate("", raw))
	assert.False(t, shouldAnnotate("", annotated), "posted derived fields are kept")
	assert.False(t, shouldAnnotate("", nil))
	assert.True(t, shouldAnnotate("true", annotated))
	assert.False(t, shouldAnnotate("0", raw))
}

func TestAnalyze_Workbook(t *testing.T) {
	router := newTestRouter(new(MockJobService))

	rec := do(t, router, http.MethodPost, "/api/v1/analyze?format=xlsx", []byte(productsJSON))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestAnalyze_InvalidCollection(t *testing.T) {
	router := newTestRouter(new(MockJobService))

	for _, body := range []string{`{"url":"x"}`, `null`, `[1,2]`, `garbage`} {
		rec := do(t, router, http.MethodPost, "/api/v1/analyze", []byte(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestCreateAudit(t *testing.T) {
	svc := new(MockJobService)
	svc.On("Submit", "https://www.trendyol.com/magaza/shop-m-1").
		Return(jobs.Job{ID: "job-1", Status: jobs.StatusPending}, nil)

	router := newTestRouter(svc)

	rec := do(t, router, http.MethodPost, "/api/v1/audits", []byte(`{"seller_url":"https://www.trendyol.com/magaza/shop-m-1"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateAuditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, jobs.StatusPending, resp.Status)

	rec = do(t, router, http.MethodPost, "/api/v1/audits", []byte(`{"seller_url":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertExpectations(t)
}

func TestCreateAudit_ShuttingDown(t *testing.T) {
	svc := new(MockJobService)
	svc.On("Submit", mock.Anything).Return(jobs.Job{}, jobs.ErrShuttingDown)

	rec := do(t, newTestRouter(svc), http.MethodPost, "/api/v1/audits", []byte(`{"seller_url":"https://x"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuditLookups(t *testing.T) {
	svc := new(MockJobService)
	svc.On("Get", "done").Return(jobs.Job{ID: "done", Status: jobs.StatusCompleted}, nil)
	svc.On("Get", "missing").Return(jobs.Job{}, jobs.ErrJobNotFound)
	svc.On("Products", "running").Return(nil, jobs.ErrJobNotFinished)
	svc.On("Products", "done").Return([]models.Product{{URL: "u"}}, nil)
	svc.On("Report", "done").Return(report.NewAssembler(catalog).Build(nil), nil)
	svc.On("List").Return([]jobs.Job{{ID: "done"}})

	router := newTestRouter(svc)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/audits/done", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/audits/missing", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, router, http.MethodGet, "/api/v1/audits/running/products", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/audits/done/products", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/audits/done/report", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/audits", nil).Code)

	rec := do(t, router, http.MethodGet, "/api/v1/audits/done/report.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-done.xlsx")
}

func TestRuns(t *testing.T) {
	runID := uuid.New()
	runs := new(MockRunReader)
	runs.On("ListRuns", mock.Anything, 5).Return([]*database.AuditRun{{ID: runID, Status: database.RunStatusCompleted}}, nil)
	runs.On("GetRun", mock.Anything, runID).Return(&database.AuditRun{ID: runID, CreatedAt: time.Now()}, nil)
	runs.On("GetRunProducts", mock.Anything, runID).Return([]models.Product{{URL: "u"}}, nil)
	runs.On("GetRun", mock.Anything, mock.Anything).Return(nil, database.ErrRunNotFound)

	router := newTestRouter(new(MockJobService), WithRuns(runs))

	rec := do(t, router, http.MethodGet, "/api/v1/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []database.AuditRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, runID, listed[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/runs?limit=zero", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/runs/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/runs/"+runID.String(), nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/runs/"+runID.String()+"/products", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/runs/"+uuid.NewString()+"/products", nil).Code)
}

func TestRuns_NotMountedWithoutDatabase(t *testing.T) {
	rec := do(t, newTestRouter(new(MockJobService)), http.MethodGet, "/api/v1/runs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		backlog BacklogReporter
		code    int
		status  string
	}{
		{"no database", nil, http.StatusOK, "ok"},
		{"healthy outbox", stubBacklog{pending: 3}, http.StatusOK, "ok"},
		{"pending backlog", stubBacklog{pending: 1500}, http.StatusOK, "warning"},
		{"dead letters", stubBacklog{deadLetter: 101}, http.StatusServiceUnavailable, "error"},
		{"outbox error", stubBacklog{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.backlog != nil {
				opts = append(opts, WithBacklog(tt.backlog))
			}

			rec := do(t, newTestRouter(new(MockJobService), opts...), http.MethodGet, "/health", nil)
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}
