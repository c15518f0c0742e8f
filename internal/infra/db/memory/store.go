package memory

import (
	"context"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

type findingKey struct {
	projectID string
	controlID string
}

type storedFinding struct {
	frameworkID string
	result      compliance.AnalysisResult
}

// Store is the database-less repository. Both findings and batch runs are
// kept in bounded LRU caches, so the oldest entries go first under pressure.
type Store struct {
	findings *lru.Cache[findingKey, storedFinding]
	batches  *lru.Cache[string, compliance.BatchRun]
}

var (
	_ compliance.FindingRepository = (*Store)(nil)
	_ compliance.BatchRepository   = (*Store)(nil)
	_ compliance.BatchHistory      = (*Store)(nil)
)

// NewStore keeps at most maxFindings findings and maxBatches runs.
func NewStore(maxFindings, maxBatches int) (*Store, error) {
	f, err := lru.New[findingKey, storedFinding](maxFindings)
	if err != nil {
		return nil, err
	}
	b, err := lru.New[string, compliance.BatchRun](maxBatches)
	if err != nil {
		return nil, err
	}
	return &Store{findings: f, batches: b}, nil
}

func (s *Store) SaveFinding(_ context.Context, projectID, frameworkID string, r compliance.AnalysisResult) error {
	s.findings.Add(findingKey{projectID, r.ControlID}, storedFinding{frameworkID: frameworkID, result: r})
	return nil
}

func (s *Store) HasFinding(_ context.Context, projectID, controlID string) (bool, error) {
	f, ok := s.findings.Peek(findingKey{projectID, controlID})
	return ok && f.result.IsFinding(), nil
}

func (s *Store) ListFindings(_ context.Context, projectID, frameworkID string) ([]compliance.AnalysisResult, error) {
	var out []compliance.AnalysisResult
	for _, k := range s.findings.Keys() {
		if k.projectID != projectID {
			continue
		}
		f, ok := s.findings.Peek(k)
		if ok && f.frameworkID == frameworkID {
			out = append(out, f.result)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ControlCode != out[j].ControlCode {
			return out[i].ControlCode < out[j].ControlCode
		}
		return out[i].ControlID < out[j].ControlID
	})
	return out, nil
}

func (s *Store) SaveBatch(_ context.Context, b *compliance.BatchRun) error {
	s.batches.Add(b.ID, *b)
	return nil
}

func (s *Store) ListBatches(_ context.Context, projectID string, limit int) ([]*compliance.BatchRun, error) {
	var out []*compliance.BatchRun
	for _, id := range s.batches.Keys() {
		b, ok := s.batches.Peek(id)
		if ok && b.ProjectID == projectID {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
