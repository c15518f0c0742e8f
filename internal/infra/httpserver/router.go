package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Comfie/ignaCheckApi-sub000/internal/application/analysis"
	appcompliance "github.com/Comfie/ignaCheckApi-sub000/internal/application/compliance"
	domai "github.com/Comfie/ignaCheckApi-sub000/internal/domain/ai"
	domain "github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
	"github.com/Comfie/ignaCheckApi-sub000/internal/metrics"
	"github.com/Comfie/ignaCheckApi-sub000/internal/middleware"
)

const maxBodyBytes = 32 << 20

// Deps are the collaborators of the HTTP surface. Service and Jobs are
// required; everything else is optional.
type Deps struct {
	Service        *appcompliance.Service
	Jobs           *appcompliance.JobRegistry
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	Health         map[string]middleware.HealthChecker
	APIKeys        map[string]string
	AllowedOrigins []string
	// SubmitLimiter throttles batch submissions when set.
	SubmitLimiter *middleware.RateLimiter
}

type Router struct {
	svc  *appcompliance.Service
	jobs *appcompliance.JobRegistry
}

func NewRouter(d Deps) http.Handler {
	r := &Router{svc: d.Service, jobs: d.Jobs}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.Logger(d.Logger))
	mux.Use(chimw.Recoverer)
	if d.Metrics != nil {
		mux.Use(middleware.Metrics(d.Metrics, d.Metrics.RequestsInFlight))
	}
	if len(d.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"Location", "Retry-After"},
			MaxAge:         300,
		}))
	}
	mux.Use(middleware.APIKeyAuth(d.APIKeys))

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/ready", middleware.ReadinessHandler(d.Jobs.Accepting))
	mux.Get("/live", middleware.LivenessHandler)
	if d.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Group(func(sub chi.Router) {
			if d.SubmitLimiter != nil {
				sub.Use(middleware.RateLimit(d.SubmitLimiter))
			}
			sub.Post("/projects/{project}/frameworks/{framework}/analyses", r.wrap(r.handleStartAnalysis))
			sub.Post("/projects/{project}/controls/analyze", r.wrap(r.handleAnalyzeControl))
		})
		rt.Get("/projects/{project}/frameworks/{framework}/findings", r.wrap(r.handleFindings))
		rt.Get("/projects/{project}/analyses/history", r.wrap(r.handleHistory))
		rt.Get("/analyses", r.wrap(r.handleListAnalyses))
		rt.Get("/analyses/{id}", r.wrap(r.handleGetAnalysis))
		rt.Delete("/analyses/{id}", r.wrap(r.handleCancelAnalysis))
		rt.Post("/score", r.wrap(r.handleScore))
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
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			zerolog.Ctx(req.Context()).Error().Err(err).Int("status", code).Msg("request failed")
		}
		if code == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "60")
		}
		writeJSON(w, code, map[string]string{"error": err.Error()})
	}
}

func statusFor(err error) int {
	var exhausted *analysis.ProvidersExhaustedError
	switch {
	case errors.Is(err, appcompliance.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, appcompliance.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, appcompliance.ErrDraining):
		return http.StatusServiceUnavailable
	case errors.Is(err, domai.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &exhausted), domai.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", appcompliance.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// decodeValidated reads the body, checks it against s, then decodes it into dst.
func decodeValidated(w http.ResponseWriter, req *http.Request, s *gojsonschema.Schema, dst any) error {
	body, err := readAll(w, req)
	if err != nil {
		return err
	}
	if err := validateBody(s, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func pathID(req *http.Request, name string) (string, error) {
	id := chi.URLParam(req, name)
	if err := middleware.ValidateID(name, id); err != nil {
		return "", badRequest("%v", err)
	}
	return id, nil
}

func queryLimit(req *http.Request) int {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	return middleware.ValidateLimit(limit)
}

// POST /v1/projects/{project}/frameworks/{framework}/analyses
func (r *Router) handleStartAnalysis(w http.ResponseWriter, req *http.Request) error {
	project, err := pathID(req, "project")
	if err != nil {
		return err
	}
	framework, err := pathID(req, "framework")
	if err != nil {
		return err
	}

	var body struct {
		FrameworkCode string                     `json:"frameworkCode"`
		Controls      []domain.ControlDescriptor `json:"controls"`
		Documents     []domain.DocumentExcerpt   `json:"documents"`
		Options       domain.BatchOptions        `json:"options"`
	}
	if err := decodeValidated(w, req, batchSchema, &body); err != nil {
		return err
	}

	snap, err := r.jobs.Start(domain.BatchRequest{
		ProjectID:     project,
		FrameworkID:   framework,
		FrameworkCode: middleware.SanitizeString(body.FrameworkCode),
		Controls:      body.Controls,
		Documents:     body.Documents,
		Options:       body.Options,
	})
	if err != nil {
		return err
	}
	w.Header().Set("Location", "/v1/analyses/"+snap.ID)
	return writeJSON(w, http.StatusAccepted, snap)
}

// POST /v1/projects/{project}/controls/analyze
func (r *Router) handleAnalyzeControl(w http.ResponseWriter, req *http.Request) error {
	project, err := pathID(req, "project")
	if err != nil {
		return err
	}
	var body struct {
		FrameworkID string                   `json:"frameworkId"`
		Control     domain.ControlDescriptor `json:"control"`
		Documents   []domain.DocumentExcerpt `json:"documents"`
	}
	if err := decodeValidated(w, req, controlRequestSchema, &body); err != nil {
		return err
	}

	res, err := r.svc.AnalyzeControl(req.Context(), domain.AnalysisRequest{
		ProjectID:   project,
		FrameworkID: body.FrameworkID,
		Control:     body.Control,
		Documents:   body.Documents,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// GET /v1/projects/{project}/frameworks/{framework}/findings
func (r *Router) handleFindings(w http.ResponseWriter, req *http.Request) error {
	project, err := pathID(req, "project")
	if err != nil {
		return err
	}
	framework, err := pathID(req, "framework")
	if err != nil {
		return err
	}
	results, summary, err := r.svc.ListFindings(req.Context(), project, framework)
	if err != nil {
		return err
	}
	if results == nil {
		results = []domain.AnalysisResult{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"findings": results,
		"summary":  summary,
	})
}

// GET /v1/projects/{project}/analyses/history?limit=20
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	project, err := pathID(req, "project")
	if err != nil {
		return err
	}
	runs, err := r.svc.ListBatches(req.Context(), project, queryLimit(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, runs)
}

// GET /v1/analyses?limit=20
func (r *Router) handleListAnalyses(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.jobs.List(queryLimit(req)))
}

// GET /v1/analyses/{id}
func (r *Router) handleGetAnalysis(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	snap, err := r.jobs.Get(id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

// DELETE /v1/analyses/{id}
func (r *Router) handleCancelAnalysis(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	snap, err := r.jobs.Cancel(id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, snap)
}

// POST /v1/score
func (r *Router) handleScore(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Findings []struct {
			Status      string `json:"status"`
			RiskLevel   string `json:"riskLevel"`
			IsMandatory bool   `json:"isMandatory"`
		} `json:"findings"`
	}
	if err := decodeValidated(w, req, scoreSchema, &body); err != nil {
		return err
	}
	in := make([]domain.ScoreInput, 0, len(body.Findings))
	for _, f := range body.Findings {
		in = append(in, domain.ParseScoreInput(f.Status, f.RiskLevel, f.IsMandatory))
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"overallScore": r.svc.Score(in),
		"findings":     len(in),
	})
}

func readAll(w http.ResponseWriter, req *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, err
	}
	return body, nil
}
