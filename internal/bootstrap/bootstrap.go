// Package bootstrap wires configuration into a running application graph.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Comfie/ignaCheckApi-sub000/internal/application"
	"github.com/Comfie/ignaCheckApi-sub000/internal/application/analysis"
	appcompliance "github.com/Comfie/ignaCheckApi-sub000/internal/application/compliance"
	"github.com/Comfie/ignaCheckApi-sub000/internal/config"
	domain "github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/ai/openai"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/ai/parser"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/ai/prompt"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/db/memory"
	mysqlp "github.com/Comfie/ignaCheckApi-sub000/internal/infra/db/mysql"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/db/postgres"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/httpserver"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/notify"
	minioStore "github.com/Comfie/ignaCheckApi-sub000/internal/infra/storage"
	"github.com/Comfie/ignaCheckApi-sub000/internal/metrics"
	"github.com/Comfie/ignaCheckApi-sub000/internal/middleware"
)

const (
	memoryMaxFindings = 50_000
	memoryMaxBatches  = 1_000
	rateLimitMaxKeys  = 10_000
)

// App is the assembled service graph. Close releases every connection it opened.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Service *appcompliance.Service
	Jobs    *appcompliance.JobRegistry
	Health  map[string]middleware.HealthChecker

	closers []func()
}

type stores struct {
	findings domain.FindingRepository
	batches  domain.BatchRepository
	history  domain.BatchHistory
}

// Build connects every configured backend and assembles the service. On
// error, whatever was already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *App, err error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Health:  map[string]middleware.HealthChecker{},
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	analyzer, err := NewAnalyzer(cfg.AI, app.Metrics, logger)
	if err != nil {
		return nil, err
	}

	st, err := app.openStores(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	svc := &appcompliance.Service{
		Runner: &analysis.Orchestrator{
			Analyzer: analyzer,
			Findings: st.findings,
			Sink:     st.findings,
			Delay:    cfg.AI.InterControlDelay,
			Clock:    application.SystemClock{},
			Metrics:  app.Metrics,
			Logger:   logger.With().Str("component", "orchestrator").Logger(),
		},
		Analyzer: analyzer,
		Findings: st.findings,
		Batches:  st.batches,
		History:  st.history,
		Logger:   logger.With().Str("component", "service").Logger(),
	}

	if cfg.Minio.Enabled {
		m := cfg.Minio
		store, err := minioStore.New(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("minio init: %w", err)
		}
		svc.Corpus = store
		svc.Reports = store
		app.Health["storage"] = store
	}

	if cfg.Nats.URL != "" {
		pub, err := notify.Connect(cfg.Nats.URL, cfg.Nats.Subject, cfg.Nats.Timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		app.closers = append(app.closers, pub.Close)
		svc.Notifier = pub
		app.Health["nats"] = pub
	}

	jobs, err := appcompliance.NewJobRegistry(svc, cfg.Jobs.MaxRetained, logger.With().Str("component", "jobs").Logger())
	if err != nil {
		return nil, err
	}
	jobs.Clock = application.SystemClock{}
	jobs.Metrics = app.Metrics

	app.Service = svc
	app.Jobs = jobs
	return app, nil
}

// NewAnalyzer builds the primary client and, when enabled, the fallback.
func NewAnalyzer(cfg config.AIConfig, m analysis.Metrics, logger zerolog.Logger) (*analysis.Analyzer, error) {
	prompts := prompt.Builder{MaxExcerptRunes: cfg.MaxExcerptRunes}

	primary, err := openai.NewClient(clientConfig(cfg.Primary), prompts)
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}
	a := &analysis.Analyzer{
		Primary: primary,
		Prompts: prompts,
		Parser:  parser.Parser{},
		Clock:   application.SystemClock{},
		Metrics: m,
		Logger:  logger.With().Str("component", "analyzer").Logger(),
	}
	if cfg.FallbackEnabled {
		fallback, err := openai.NewClient(clientConfig(cfg.Fallback), prompts)
		if err != nil {
			return nil, fmt.Errorf("fallback provider: %w", err)
		}
		a.Fallback = fallback
	}
	return a, nil
}

func clientConfig(p config.ProviderConfig) openai.Config {
	return openai.Config{
		Name:        p.Name,
		Kind:        p.Kind,
		Model:       p.Model,
		BaseURL:     p.BaseURL,
		APIKey:      p.APIKey,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Timeout:     p.Timeout,
		JSONMode:    p.JSONMode,
	}
}

func (a *App) openStores(ctx context.Context, cfg config.DatabaseConfig) (stores, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "mysql":
		db, err = mysqlp.Connect(ctx, a.Config.MySQLDSN())
		if err == nil {
			err = mysqlp.Migrate(ctx, db)
		}
	case "postgres":
		db, err = postgres.Connect(ctx, a.Config.PostgresDSN())
		if err == nil {
			err = postgres.Migrate(ctx, db)
		}
	default:
		store, err := memory.NewStore(memoryMaxFindings, memoryMaxBatches)
		if err != nil {
			return stores{}, err
		}
		a.Logger.Warn().Msg("using in-memory store, findings are lost on restart")
		return stores{findings: store, batches: store, history: store}, nil
	}
	if db != nil {
		a.closers = append(a.closers, func() { _ = db.Close() })
	}
	if err != nil {
		return stores{}, fmt.Errorf("%s: %w", cfg.Driver, err)
	}
	a.Health["database"] = &middleware.DatabaseHealthChecker{DB: db}

	if cfg.Driver == "mysql" {
		batches := mysqlp.NewBatchRepository(db)
		return stores{findings: mysqlp.NewFindingRepository(db), batches: batches, history: batches}, nil
	}
	batches := postgres.NewBatchRepository(db)
	return stores{findings: postgres.NewFindingRepository(db), batches: batches, history: batches}, nil
}

// Handler builds the HTTP surface over the app.
func (a *App) Handler() (http.Handler, error) {
	var limiter *middleware.RateLimiter
	if s := a.Config.Server; s.SubmitBurst > 0 && s.SubmitPerMinute > 0 {
		l, err := middleware.NewRateLimiter(s.SubmitBurst, s.SubmitPerMinute, rateLimitMaxKeys)
		if err != nil {
			return nil, err
		}
		limiter = l
	}
	return httpserver.NewRouter(httpserver.Deps{
		Service:        a.Service,
		Jobs:           a.Jobs,
		Logger:         a.Logger,
		Metrics:        a.Metrics,
		Health:         a.Health,
		APIKeys:        a.Config.Server.APIKeys,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		SubmitLimiter:  limiter,
	}), nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
