package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Comfie/ignaCheckApi-sub000/internal/application/analysis"
	domain "github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

// ErrInvalidRequest marks caller mistakes; the HTTP layer maps it to 400.
var ErrInvalidRequest = errors.New("invalid analysis request")

// recordTimeout bounds the post-run persistence calls.
const recordTimeout = 30 * time.Second

// BatchRunner is satisfied by *analysis.Orchestrator.
type BatchRunner interface {
	RunBatch(ctx context.Context, req domain.BatchRequest, onProgress analysis.ProgressFunc) domain.BatchResult
}

// Service implements the compliance use-cases on top of the orchestrator.
// Every collaborator except Runner and Analyzer is optional.
// Service is safe for concurrent use.
type Service struct {
	Runner   BatchRunner
	Analyzer analysis.ControlAnalyzer
	Corpus   domain.DocumentCorpus
	Findings domain.FindingRepository
	Batches  domain.BatchRepository
	History  domain.BatchHistory
	Reports  domain.ReportStore
	Notifier domain.CompletionNotifier
	Logger   zerolog.Logger
}

// NewRunID returns a fresh batch run id.
func NewRunID() string { return uuid.NewString() }

// RunFramework analyzes a whole framework and records the outcome. The error
// is non-nil only when the batch could not start; a finished, canceled or
// aborted batch always comes back as a BatchResult.
func (s *Service) RunFramework(ctx context.Context, runID string, req domain.BatchRequest, onProgress analysis.ProgressFunc) (domain.BatchResult, error) {
	if err := validateBatch(req); err != nil {
		return domain.BatchResult{}, err
	}
	docs, err := s.documents(ctx, req.ProjectID, req.Documents)
	if err != nil {
		return domain.BatchResult{}, err
	}
	req.Documents = docs

	res := s.Runner.RunBatch(ctx, req, onProgress)
	s.record(ctx, runID, res)
	return res, nil
}

// AnalyzeControl assesses a single control outside of a batch.
func (s *Service) AnalyzeControl(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	if req.ProjectID == "" {
		return domain.AnalysisResult{}, fmt.Errorf("%w: projectId is required", ErrInvalidRequest)
	}
	if req.Control.ID == "" || req.Control.Code == "" {
		return domain.AnalysisResult{}, fmt.Errorf("%w: control id and code are required", ErrInvalidRequest)
	}
	docs, err := s.documents(ctx, req.ProjectID, req.Documents)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	req.Documents = docs

	res, err := s.Analyzer.AnalyzeControl(ctx, req)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	if s.Findings != nil {
		if err := s.Findings.SaveFinding(ctx, req.ProjectID, req.FrameworkID, res); err != nil {
			s.Logger.Error().Err(err).Str("project", req.ProjectID).Str("control", req.Control.Code).Msg("failed to save finding")
		}
	}
	return res, nil
}

// ListFindings returns the stored results of a framework.
func (s *Service) ListFindings(ctx context.Context, projectID, frameworkID string) ([]domain.AnalysisResult, domain.ComplianceSummary, error) {
	if s.Findings == nil {
		return nil, domain.Summarize(nil), nil
	}
	results, err := s.Findings.ListFindings(ctx, projectID, frameworkID)
	if err != nil {
		return nil, domain.ComplianceSummary{}, err
	}
	return results, domain.Summarize(results), nil
}

// ListBatches returns recorded runs of a project, newest first.
func (s *Service) ListBatches(ctx context.Context, projectID string, limit int) ([]*domain.BatchRun, error) {
	if s.History == nil {
		return []*domain.BatchRun{}, nil
	}
	return s.History.ListBatches(ctx, projectID, limit)
}

// Score scores an arbitrary finding list.
func (s *Service) Score(findings []domain.ScoreInput) float64 {
	return domain.Score(findings)
}

func (s *Service) documents(ctx context.Context, projectID string, given []domain.DocumentExcerpt) ([]domain.DocumentExcerpt, error) {
	if len(given) > 0 || s.Corpus == nil {
		return given, nil
	}
	docs, err := s.Corpus.ListDocuments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load documents for project %s: %w", projectID, err)
	}
	s.Logger.Debug().Str("project", projectID).Int("documents", len(docs)).Msg("documents resolved from corpus")
	return docs, nil
}

// record archives, persists and announces a finished batch. Failures here are
// logged only: the caller still gets the BatchResult.
func (s *Service) record(ctx context.Context, runID string, res domain.BatchResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	log := s.Logger.With().Str("run_id", runID).Str("project", res.ProjectID).Logger()

	run := domain.NewBatchRun(runID, res)
	if s.Reports != nil {
		url, err := s.Reports.SaveReport(ctx, runID, res)
		if err != nil {
			log.Error().Err(err).Msg("failed to archive batch report")
		} else {
			run.ReportURL = url
		}
	}
	if s.Batches != nil {
		if err := s.Batches.SaveBatch(ctx, run); err != nil {
			log.Error().Err(err).Msg("failed to save batch run")
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.NotifyBatchCompleted(ctx, runID, res); err != nil {
			log.Error().Err(err).Msg("failed to publish batch completion")
		}
	}
}

func validateBatch(req domain.BatchRequest) error {
	if req.ProjectID == "" {
		return fmt.Errorf("%w: projectId is required", ErrInvalidRequest)
	}
	if req.FrameworkID == "" {
		return fmt.Errorf("%w: frameworkId is required", ErrInvalidRequest)
	}
	for i, c := range req.Controls {
		if c.ID == "" || c.Code == "" {
			return fmt.Errorf("%w: control #%d needs an id and a code", ErrInvalidRequest, i+1)
		}
	}
	return nil
}
