package analysis

import "time"

// Metrics receives analysis telemetry. Implementations must be cheap; they are
// called inline on the batch loop.
type Metrics interface {
	ProviderCall(provider string, d time.Duration, err error)
	ProviderFailure(provider, kind string)
	Fallback(from, to string)
	ParseFailure(provider string)
	ControlAnalyzed(status string)
	BatchFinished(outcome string, d time.Duration)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ProviderCall(string, time.Duration, error) {}
func (NopMetrics) ProviderFailure(string, string)            {}
func (NopMetrics) Fallback(string, string)                   {}
func (NopMetrics) ParseFailure(string)                       {}
func (NopMetrics) ControlAnalyzed(string)                    {}
func (NopMetrics) BatchFinished(string, time.Duration)       {}
