package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Comfie/ignaCheckApi-sub000/internal/application/analysis"
	appcompliance "github.com/Comfie/ignaCheckApi-sub000/internal/application/compliance"
	domai "github.com/Comfie/ignaCheckApi-sub000/internal/domain/ai"
	domain "github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/db/memory"
	"github.com/Comfie/ignaCheckApi-sub000/internal/metrics"
	"github.com/Comfie/ignaCheckApi-sub000/internal/middleware"
)

type analyzerFunc func(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error)

func (f analyzerFunc) AnalyzeControl(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	return f(ctx, req)
}

func partialAnalyzer(_ context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	return domain.AnalysisResult{
		ControlID:   req.Control.ID,
		ControlCode: req.Control.Code,
		IsMandatory: req.Control.IsMandatory,
		Status:      domain.StatusPartiallyCompliant,
		RiskLevel:   domain.RiskMedium,
	}, nil
}

type testServer struct {
	handler http.Handler
	jobs    *appcompliance.JobRegistry
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, a analysis.ControlAnalyzer, keys map[string]string) *testServer {
	t.Helper()
	store, err := memory.NewStore(100, 10)
	require.NoError(t, err)
	svc := &appcompliance.Service{
		Runner:   &analysis.Orchestrator{Analyzer: a, Sink: store, Findings: store, Logger: zerolog.Nop()},
		Analyzer: a,
		Findings: store,
		Batches:  store,
		History:  store,
		Logger:   zerolog.Nop(),
	}
	jobs, err := appcompliance.NewJobRegistry(svc, 16, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobs.Shutdown(context.Background()) })

	m := metrics.New()
	return &testServer{
		handler: NewRouter(Deps{
			Service: svc,
			Jobs:    jobs,
			Logger:  zerolog.Nop(),
			Metrics: m,
			APIKeys: keys,
		}),
		jobs:    jobs,
		metrics: m,
	}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

const batchBody = `{
	"frameworkCode": "ISO27001",
	"controls": [
		{"id": "c1", "code": "A.5.1", "title": "Policies", "isMandatory": true},
		{"id": "c2", "code": "A.5.2", "title": "Roles"}
	],
	"documents": [{"id": "d1", "fileName": "policy.pdf", "content": "text"}]
}`

func TestRouter_Probes(t *testing.T) {
	s := newTestServer(t, analyzerFunc(partialAnalyzer), nil)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/live", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/ready", "").Code)

	rec := s.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignacheck_")
}

func TestRouter_StartAndPollAnalysis(t *testing.T) {
	s := newTestServer(t, analyzerFunc(partialAnalyzer), nil)

	rec := s.do(http.MethodPost, "/v1/projects/proj-1/frameworks/iso/analyses", batchBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var started appcompliance.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "/v1/analyses/"+started.ID, rec.Header().Get("Location"))
	assert.Equal(t, "proj-1", started.ProjectID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.jobs.Wait(ctx, started.ID)
	require.NoError(t, err)

	rec = s.do(http.MethodGet, "/v1/analyses/"+started.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var done appcompliance.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Equal(t, appcompliance.JobCompleted, done.State)
	require.NotNil(t, done.Result)
	assert.Equal(t, 2, done.Result.ControlsAnalyzed)
	assert.Equal(t, 2, done.Result.FindingsCreated)

	rec = s.do(http.MethodGet, "/v1/projects/proj-1/frameworks/iso/findings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var findings struct {
		Findings []domain.AnalysisResult  `json:"findings"`
		Summary  domain.ComplianceSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &findings))
	assert.Len(t, findings.Findings, 2)
	assert.Equal(t, 50.0, findings.Summary.OverallScore)

	rec = s.do(http.MethodGet, "/v1/projects/proj-1/analyses/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []domain.BatchRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, started.ID, runs[0].ID)

	rec = s.do(http.MethodGet, "/v1/analyses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []appcompliance.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestRouter_CancelAnalysis(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTestServer(t, analyzerFunc(func(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
		select {
		case <-release:
			return partialAnalyzer(ctx, req)
		case <-ctx.Done():
			return domain.AnalysisResult{}, ctx.Err()
		}
	}), nil)

	rec := s.do(http.MethodPost, "/v1/projects/p/frameworks/f/analyses", batchBody)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started appcompliance.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	rec = s.do(http.MethodDelete, "/v1/analyses/"+started.ID, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := s.jobs.Wait(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, appcompliance.JobCanceled, done.State)
}

func TestRouter_RejectsBadInput(t *testing.T) {
	s := newTestServer(t, analyzerFunc(partialAnalyzer), nil)

	cases := map[string]struct {
		path string
		body string
	}{
		"missing controls":       {"/v1/projects/p/frameworks/f/analyses", `{"documents": []}`},
		"control without code":   {"/v1/projects/p/frameworks/f/analyses", `{"controls": [{"id": "c1"}]}`},
		"unknown option":         {"/v1/projects/p/frameworks/f/analyses", `{"controls": [], "options": {"fast": true}}`},
		"not json":               {"/v1/projects/p/frameworks/f/analyses", `controls=1`},
		"bad project id":         {"/v1/projects/..bad/frameworks/f/analyses", batchBody},
		"score without findings": {"/v1/score", `{}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestRouter_UnknownAnalysis(t *testing.T) {
	s := newTestServer(t, analyzerFunc(partialAnalyzer), nil)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/analyses/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/v1/analyses/missing", "").Code)
}

func TestRouter_AnalyzeControl(t *testing.T) {
	s := newTestServer(t, analyzerFunc(partialAnalyzer), nil)

	rec := s.do(http.MethodPost, "/v1/projects/p/controls/analyze",
		`{"frameworkId": "iso", "control": {"id": "c1", "code": "A.5.1"}, "documents": [{"id": "d1", "content": "x"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "c1", res.ControlID)
	assert.Equal(t, domain.StatusPartiallyCompliant, res.Status)
}

func TestRouter_ProviderErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"rate limited": {
			err:  &analysis.ProvidersExhaustedError{Primary: domai.NewProviderError("openai", domai.ErrRateLimited, nil)},
			code: http.StatusTooManyRequests,
		},
		"auth": {
			err:  &analysis.ProvidersExhaustedError{Primary: domai.NewProviderError("openai", domai.ErrAuth, nil)},
			code: http.StatusBadGateway,
		},
		"unavailable": {
			err:  domai.NewProviderError("azure", domai.ErrProviderUnavailable, nil),
			code: http.StatusBadGateway,
		},
		"other": {
			err:  errors.New("boom"),
			code: http.StatusInternalServerError,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t, analyzerFunc(func(context.Context, domain.AnalysisRequest) (domain.AnalysisResult, error) {
				return domain.AnalysisResult{}, tc.err
			}), nil)
			rec := s.do(http.MethodPost, "/v1/projects/p/controls/analyze", `{"control": {"id": "c1", "code": "A.5.1"}}`)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestRouter_Score(t *testing.T) {
	s := newTestServer(t, analyzerFunc(partialAnalyzer), nil)

	rec := s.do(http.MethodPost, "/v1/score", `{"findings": [
		{"status": "Compliant", "riskLevel": "Low", "isMandatory": true},
		{"status": "non_compliant", "riskLevel": "low", "isMandatory": true}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		OverallScore float64 `json:"overallScore"`
		Findings     int     `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 50.0, body.OverallScore)
	assert.Equal(t, 2, body.Findings)

	rec = s.do(http.MethodPost, "/v1/score", `{"findings": []}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"overallScore":100`)
}

func TestRouter_ScoreUnsetRiskWeighsOne(t *testing.T) {
	s := newTestServer(t, analyzerFunc(partialAnalyzer), nil)

	rec := s.do(http.MethodPost, "/v1/score", `{"findings": [
		{"status": "NonCompliant"},
		{"status": "Compliant", "riskLevel": "Low"}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		OverallScore float64 `json:"overallScore"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 50.0, body.OverallScore)
}

func TestRouter_APIKeys(t *testing.T) {
	s := newTestServer(t, analyzerFunc(partialAnalyzer), map[string]string{"acme": "secret-key"})

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/analyses", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_DrainingRefusesNewJobs(t *testing.T) {
	s := newTestServer(t, analyzerFunc(partialAnalyzer), nil)
	require.NoError(t, s.jobs.Shutdown(context.Background()))

	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/ready", "").Code)
	rec := s.do(http.MethodPost, "/v1/projects/p/frameworks/f/analyses", batchBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_SubmitRateLimit(t *testing.T) {
	store, err := memory.NewStore(10, 10)
	require.NoError(t, err)
	a := analyzerFunc(partialAnalyzer)
	svc := &appcompliance.Service{
		Runner:   &analysis.Orchestrator{Analyzer: a, Logger: zerolog.Nop()},
		Analyzer: a,
		Findings: store,
		Logger:   zerolog.Nop(),
	}
	jobs, err := appcompliance.NewJobRegistry(svc, 16, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = jobs.Shutdown(context.Background()) }()
	limiter, err := middleware.NewRateLimiter(1, 1, 10)
	require.NoError(t, err)
	h := NewRouter(Deps{Service: svc, Jobs: jobs, Logger: zerolog.Nop(), SubmitLimiter: limiter})

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/projects/p/frameworks/f/analyses", strings.NewReader(batchBody))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusAccepted, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
