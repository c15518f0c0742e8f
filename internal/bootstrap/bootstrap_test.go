package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Comfie/ignaCheckApi-sub000/internal/config"
)

func defaults(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuild_MemoryDefaults(t *testing.T) {
	cfg := defaults(t)
	app, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Service.Findings)
	assert.NotNil(t, app.Service.History)
	assert.Nil(t, app.Service.Corpus)
	assert.Nil(t, app.Service.Notifier)
	assert.Empty(t, app.Health)
	assert.True(t, app.Jobs.Accepting())

	h, err := app.Handler()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewAnalyzer_Fallback(t *testing.T) {
	cfg := defaults(t)

	a, err := NewAnalyzer(cfg.AI, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, a.Fallback)
	assert.Equal(t, "openai", a.Primary.Name())

	cfg.AI.FallbackEnabled = true
	cfg.AI.Fallback.Name = "azure-east"
	cfg.AI.Fallback.BaseURL = "https://example.openai.azure.com"
	a, err = NewAnalyzer(cfg.AI, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, a.Fallback)
	assert.Equal(t, "azure-east", a.Fallback.Name())
}

func TestNewAnalyzer_RejectsBadProvider(t *testing.T) {
	cfg := defaults(t)
	cfg.AI.Primary.Kind = "local"
	_, err := NewAnalyzer(cfg.AI, nil, zerolog.Nop())
	assert.ErrorContains(t, err, "primary provider")
}

func TestBuild_UnreachableDatabase(t *testing.T) {
	cfg := defaults(t)
	cfg.Database.Driver = "postgres"
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = 1
	cfg.Database.Name = "ignacheck"
	_, err := Build(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "postgres")
}
