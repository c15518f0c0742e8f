package postgres

import (
	"context"
	"database/sql"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

type BatchRepository struct{ db *sql.DB }

var _ compliance.BatchRepository = (*BatchRepository)(nil)

func NewBatchRepository(db *sql.DB) *BatchRepository { return &BatchRepository{db: db} }

func (r *BatchRepository) SaveBatch(ctx context.Context, b *compliance.BatchRun) error {
	const q = `
INSERT INTO compliance_batch_runs
(id, project_id, framework_id, started_at, completed_at,
 total_controls, controls_analyzed, findings_created, overall_score, error_message, report_url)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
 completed_at = EXCLUDED.completed_at,
 controls_analyzed = EXCLUDED.controls_analyzed,
 findings_created = EXCLUDED.findings_created,
 overall_score = EXCLUDED.overall_score,
 error_message = EXCLUDED.error_message,
 report_url = EXCLUDED.report_url;`

	_, err := r.db.ExecContext(ctx, q,
		b.ID, stringOrDash(b.ProjectID), stringOrDash(b.FrameworkID), b.StartedAt, b.CompletedAt,
		b.TotalControls, b.ControlsAnalyzed, b.FindingsCreated, b.OverallScore,
		nullString(b.ErrorMessage), nullString(b.ReportURL),
	)
	return err
}

// ListBatches returns the latest runs of a project, newest first.
func (r *BatchRepository) ListBatches(ctx context.Context, projectID string, limit int) ([]*compliance.BatchRun, error) {
	const q = `
SELECT id, project_id, framework_id, started_at, completed_at,
       total_controls, controls_analyzed, findings_created, overall_score, error_message, report_url
FROM compliance_batch_runs
WHERE project_id=$1
ORDER BY started_at DESC
LIMIT $2;`

	rows, err := r.db.QueryContext(ctx, q, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*compliance.BatchRun
	for rows.Next() {
		var (
			b              compliance.BatchRun
			errMsg, report sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.FrameworkID, &b.StartedAt, &b.CompletedAt,
			&b.TotalControls, &b.ControlsAnalyzed, &b.FindingsCreated, &b.OverallScore, &errMsg, &report); err != nil {
			return nil, err
		}
		b.ProjectID = dashToEmpty(b.ProjectID)
		b.FrameworkID = dashToEmpty(b.FrameworkID)
		b.ErrorMessage = errMsg.String
		b.ReportURL = report.String
		out = append(out, &b)
	}
	return out, rows.Err()
}
