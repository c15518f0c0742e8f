package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Comfie/ignaCheckApi-sub000/internal/application"
	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/ai"
	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

// PromptBuilder renders the instructions for one control.
type PromptBuilder interface {
	Build(control compliance.ControlDescriptor, excerpts []compliance.DocumentExcerpt) string
}

// ResponseParser turns a provider reply into a result.
type ResponseParser interface {
	Parse(raw string, req compliance.AnalysisRequest) (compliance.AnalysisResult, error)
}

// ProvidersExhaustedError is returned when every configured provider failed
// at the transport level.
type ProvidersExhaustedError struct {
	Primary  error
	Fallback error // nil when no fallback was configured
}

func (e *ProvidersExhaustedError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("primary provider failed: %v", e.Primary)
	}
	return fmt.Sprintf("primary provider failed: %v; fallback provider failed: %v", e.Primary, e.Fallback)
}

func (e *ProvidersExhaustedError) Unwrap() []error {
	if e.Fallback == nil {
		return []error{e.Primary}
	}
	return []error{e.Primary, e.Fallback}
}

// Analyzer runs prompt -> provider -> parser for a single control.
// Fallback is nil when the secondary provider is disabled or not configured.
type Analyzer struct {
	Primary  ai.Client
	Fallback ai.Client
	Prompts  PromptBuilder
	Parser   ResponseParser
	Clock    application.Clock
	Metrics  Metrics
	Logger   zerolog.Logger
}

// AnalyzeControl returns a result for req. It fails only when the provider
// calls fail; an unparseable reply still yields a NotAssessed result.
func (a *Analyzer) AnalyzeControl(ctx context.Context, req compliance.AnalysisRequest) (compliance.AnalysisResult, error) {
	if a.Primary == nil {
		return compliance.AnalysisResult{}, errors.New("analyzer has no primary provider")
	}
	log := a.Logger.With().Str("control", req.Control.Code).Str("control_id", req.Control.ID).Logger()

	prompt := a.Prompts.Build(req.Control, req.Documents)

	raw, provider, err := a.call(ctx, log, prompt)
	if err != nil {
		return compliance.AnalysisResult{}, err
	}

	res, perr := a.Parser.Parse(raw, req)
	if perr != nil {
		// No fallback here: the provider answered, only the format was wrong.
		log.Warn().Err(perr).Str("provider", provider).Msg("ai response could not be parsed")
		a.metrics().ParseFailure(provider)
		res = compliance.NewParseFailureResult(req, perr)
	}
	res.Provider = provider
	res.AnalyzedAt = a.now()
	return res, nil
}

func (a *Analyzer) call(ctx context.Context, log zerolog.Logger, prompt string) (string, string, error) {
	raw, err := a.timedCall(ctx, a.Primary, prompt)
	if err == nil {
		return raw, a.Primary.Name(), nil
	}
	if !ai.IsTransport(err) || ctx.Err() != nil {
		return "", a.Primary.Name(), err
	}

	log.Warn().Err(err).Str("provider", a.Primary.Name()).Str("kind", ai.Kind(err)).Msg("primary provider failed")
	a.metrics().ProviderFailure(a.Primary.Name(), ai.Kind(err))

	if a.Fallback == nil {
		return "", a.Primary.Name(), &ProvidersExhaustedError{Primary: err}
	}

	a.metrics().Fallback(a.Primary.Name(), a.Fallback.Name())
	log.Info().Str("fallback", a.Fallback.Name()).Msg("retrying with fallback provider")

	raw, ferr := a.timedCall(ctx, a.Fallback, prompt)
	if ferr == nil {
		return raw, a.Fallback.Name(), nil
	}
	if ai.IsTransport(ferr) {
		a.metrics().ProviderFailure(a.Fallback.Name(), ai.Kind(ferr))
	}
	if ctx.Err() != nil {
		return "", a.Fallback.Name(), ferr
	}
	log.Error().Err(ferr).Str("provider", a.Fallback.Name()).Msg("fallback provider failed")
	return "", a.Fallback.Name(), &ProvidersExhaustedError{Primary: err, Fallback: ferr}
}

func (a *Analyzer) timedCall(ctx context.Context, c ai.Client, prompt string) (string, error) {
	start := time.Now()
	raw, err := c.Analyze(ctx, prompt)
	a.metrics().ProviderCall(c.Name(), time.Since(start), err)
	return raw, err
}

func (a *Analyzer) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}
	return a.Clock.Now()
}

func (a *Analyzer) metrics() Metrics {
	if a.Metrics == nil {
		return NopMetrics{}
	}
	return a.Metrics
}
