package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte(GetTenantFromContext(r.Context())))
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"acme": "k-acme", "globex": "k-globex"})(http.HandlerFunc(okHandler))

	tests := []struct {
		name   string
		path   string
		header string
		code   int
		tenant string
	}{
		{"bearer", "/v1/score", "Bearer k-globex", http.StatusTeapot, "globex"},
		{"raw key", "/v1/score", "k-acme", http.StatusTeapot, "acme"},
		{"missing", "/v1/score", "", http.StatusUnauthorized, ""},
		{"wrong", "/v1/score", "Bearer nope", http.StatusUnauthorized, ""},
		{"public", "/health", "", http.StatusTeapot, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusTeapot {
				assert.Equal(t, tt.tenant, rec.Body.String())
			}
		})
	}
}

func TestAPIKeyAuth_DisabledWithoutKeys(t *testing.T) {
	rec := httptest.NewRecorder()
	APIKeyAuth(nil)(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestTokenBucket_Refill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tb := newTokenBucket(2, 1, func() time.Time { return now })

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	now = now.Add(time.Minute)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestRateLimit_PerKey(t *testing.T) {
	rl, err := NewRateLimiter(1, 1, 8)
	require.NoError(t, err)
	h := RateLimit(rl)(http.HandlerFunc(okHandler))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusTeapot, send("10.0.0.1:1").Code)
	limited := send("10.0.0.1:1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusTeapot, send("10.0.0.2:1").Code)
}

func TestLogger_WritesRequestLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/score", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inside, served map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inside))
	require.NoError(t, json.Unmarshal(lines[1], &served))
	assert.Equal(t, "/v1/score", inside["path"])
	assert.EqualValues(t, http.StatusAccepted, served["status"])
	assert.Equal(t, "request served", served["message"])
}

type recordedRequest struct {
	method, route string
	code          int
}

type fakeObserver struct{ got []recordedRequest }

func (f *fakeObserver) ObserveRequest(method, route string, code int, _ time.Duration) {
	f.got = append(f.got, recordedRequest{method, route, code})
}

type fakeGauge struct{ n int }

func (g *fakeGauge) Inc() { g.n++ }
func (g *fakeGauge) Dec() { g.n-- }

func TestMetrics_UsesRoutePattern(t *testing.T) {
	obs := &fakeObserver{}
	gauge := &fakeGauge{}
	r := chi.NewRouter()
	r.Use(Metrics(obs, gauge))
	r.Get("/v1/analyses/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, 1, gauge.n)
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/analyses/abc-123", nil))

	require.Len(t, obs.got, 1)
	assert.Equal(t, recordedRequest{http.MethodGet, "/v1/analyses/{id}", http.StatusNotFound}, obs.got[0])
	assert.Zero(t, gauge.n)
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{
		"database": CheckFunc(func(context.Context) error { return nil }),
	})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{
		"database": CheckFunc(func(context.Context) error { return nil }),
		"nats":     CheckFunc(func(context.Context) error { return errors.New("disconnected") }),
	})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "disconnected", status.Checks["nats"].Message)
	assert.Equal(t, "healthy", status.Checks["database"].Status)
}

func TestReadinessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadinessHandler(func() bool { return false })(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	ReadinessHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("project", "proj-1"))
	assert.NoError(t, ValidateID("framework", "iso27001:2022"))
	assert.Error(t, ValidateID("project", ""))
	assert.Error(t, ValidateID("project", "../etc"))
	assert.Error(t, ValidateID("project", "a b"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "line one\nline\ttwo", SanitizeString(" line one\n\x00line\ttwo\x07 "))
}

func TestValidateLimit(t *testing.T) {
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(1000))
	assert.Equal(t, 5, ValidateLimit(5))
}
