package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Comfie/ignaCheckApi-sub000/internal/application"
	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

// ControlAnalyzer is the per-control step of a batch.
type ControlAnalyzer interface {
	AnalyzeControl(ctx context.Context, req compliance.AnalysisRequest) (compliance.AnalysisResult, error)
}

// ProgressFunc is called synchronously after every analyzed control.
// It must return quickly: the batch does not advance while it runs.
type ProgressFunc func(compliance.ProgressEvent)

// Orchestrator assesses every control of a framework, one at a time.
type Orchestrator struct {
	Analyzer ControlAnalyzer
	// Findings answers SkipExistingFindings. Without it the option is a no-op.
	Findings compliance.FindingLookup
	// Sink, when set, receives each result as soon as it is produced.
	Sink compliance.FindingSink
	// Delay is the pause between two provider-bound controls.
	Delay time.Duration
	// Wait defaults to application.Sleep.
	Wait    func(ctx context.Context, d time.Duration) error
	Clock   application.Clock
	Metrics Metrics
	Logger  zerolog.Logger
}

// RunBatch never fails: whatever was collected before a cancellation or an
// abort is returned, with ErrorMessage set on the abort path.
func (o *Orchestrator) RunBatch(ctx context.Context, req compliance.BatchRequest, onProgress ProgressFunc) compliance.BatchResult {
	controls := selectControls(req.Controls, req.Options)
	started := o.now()

	res := compliance.BatchResult{
		ProjectID:       req.ProjectID,
		FrameworkID:     req.FrameworkID,
		AnalysisStarted: started,
		TotalControls:   len(controls),
		Results:         make([]compliance.AnalysisResult, 0, len(controls)),
	}

	log := o.Logger.With().
		Str("project", req.ProjectID).
		Str("framework", req.FrameworkID).
		Str("framework_code", req.FrameworkCode).
		Logger()
	log.Info().Int("controls", len(controls)).Int("documents", len(req.Documents)).Msg("batch analysis started")

	err := o.loop(ctx, req, controls, &res, onProgress)

	outcome := "completed"
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		outcome = "canceled"
		res.Canceled = true
		log.Warn().Int("analyzed", res.ControlsAnalyzed).Msg("batch analysis canceled")
	default:
		outcome = "aborted"
		res.ErrorMessage = err.Error()
		log.Error().Err(err).Int("analyzed", res.ControlsAnalyzed).Msg("batch analysis aborted")
	}

	res.Summary = compliance.Summarize(res.Results)
	res.AnalysisCompleted = o.now()
	o.metrics().BatchFinished(outcome, res.AnalysisCompleted.Sub(started))

	log.Info().
		Str("outcome", outcome).
		Int("analyzed", res.ControlsAnalyzed).
		Int("skipped", res.ControlsSkipped).
		Int("findings", res.FindingsCreated).
		Float64("score", res.Summary.OverallScore).
		Dur("elapsed", res.AnalysisCompleted.Sub(started)).
		Msg("batch analysis finished")
	return res
}

func (o *Orchestrator) loop(ctx context.Context, req compliance.BatchRequest, controls []compliance.ControlDescriptor, res *compliance.BatchResult, onProgress ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	for i, control := range controls {
		if err := ctx.Err(); err != nil {
			return err
		}

		if req.Options.SkipExistingFindings && o.Findings != nil {
			exists, err := o.Findings.HasFinding(ctx, req.ProjectID, control.ID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("existing finding lookup for control %s: %w", control.Label(), err)
			}
			if exists {
				res.ControlsSkipped++
				continue
			}
		}

		result, err := o.Analyzer.AnalyzeControl(ctx, compliance.AnalysisRequest{
			ProjectID:   req.ProjectID,
			FrameworkID: req.FrameworkID,
			Control:     control,
			Documents:   req.Documents,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("analysis of control %s failed: %w", control.Label(), err)
		}

		res.Results = append(res.Results, result)
		res.ControlsAnalyzed++
		if result.IsFinding() {
			res.FindingsCreated++
		}
		o.metrics().ControlAnalyzed(string(result.Status))

		if o.Sink != nil {
			if err := o.Sink.SaveFinding(ctx, req.ProjectID, req.FrameworkID, result); err != nil {
				return fmt.Errorf("saving finding for control %s: %w", control.Label(), err)
			}
		}

		if onProgress != nil {
			elapsed := o.now().Sub(res.AnalysisStarted)
			onProgress(compliance.ProgressEvent{
				TotalControls:      res.TotalControls,
				ControlsAnalyzed:   res.ControlsAnalyzed,
				FindingsCreated:    res.FindingsCreated,
				CurrentControl:     control.Label(),
				Elapsed:            elapsed,
				EstimatedRemaining: EstimateRemaining(elapsed, res.ControlsAnalyzed, res.TotalControls-res.ControlsAnalyzed-res.ControlsSkipped),
			})
		}

		if i < len(controls)-1 {
			if err := o.wait(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// EstimateRemaining is a plain moving average: elapsed / analyzed * remaining.
func EstimateRemaining(elapsed time.Duration, analyzed, remaining int) time.Duration {
	if analyzed <= 0 || remaining <= 0 {
		return 0
	}
	return elapsed / time.Duration(analyzed) * time.Duration(remaining)
}

func selectControls(all []compliance.ControlDescriptor, opts compliance.BatchOptions) []compliance.ControlDescriptor {
	if !opts.MandatoryControlsOnly {
		return all
	}
	out := make([]compliance.ControlDescriptor, 0, len(all))
	for _, c := range all {
		if c.IsMandatory {
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) wait(ctx context.Context) error {
	if o.Wait != nil {
		return o.Wait(ctx, o.Delay)
	}
	return application.Sleep(ctx, o.Delay)
}

func (o *Orchestrator) now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}
	return o.Clock.Now()
}

func (o *Orchestrator) metrics() Metrics {
	if o.Metrics == nil {
		return NopMetrics{}
	}
	return o.Metrics
}
