package compliance

import "context"

// FindingLookup answers "is there already a finding for this control?"
type FindingLookup interface {
	HasFinding(ctx context.Context, projectID, controlID string) (bool, error)
}

// FindingSink persists analysis results as they are produced.
type FindingSink interface {
	SaveFinding(ctx context.Context, projectID, frameworkID string, r AnalysisResult) error
}

// FindingRepository is the usual storage adapter, serving both sides.
type FindingRepository interface {
	FindingLookup
	FindingSink
	ListFindings(ctx context.Context, projectID, frameworkID string) ([]AnalysisResult, error)
}

// DocumentCorpus returns the extracted documents of a project.
type DocumentCorpus interface {
	ListDocuments(ctx context.Context, projectID string) ([]DocumentExcerpt, error)
}

// BatchRepository records batch runs.
type BatchRepository interface {
	SaveBatch(ctx context.Context, b *BatchRun) error
}

// ReportStore archives the full BatchResult and returns its location.
type ReportStore interface {
	SaveReport(ctx context.Context, runID string, res BatchResult) (string, error)
}

// CompletionNotifier is fired once a batch finishes, whatever its outcome.
type CompletionNotifier interface {
	NotifyBatchCompleted(ctx context.Context, runID string, res BatchResult) error
}

// BatchHistory lists recorded runs of a project, newest first.
type BatchHistory interface {
	ListBatches(ctx context.Context, projectID string, limit int) ([]*BatchRun, error)
}
