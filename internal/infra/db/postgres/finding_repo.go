package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

type FindingRepository struct{ db *sql.DB }

var _ compliance.FindingRepository = (*FindingRepository)(nil)

func NewFindingRepository(db *sql.DB) *FindingRepository { return &FindingRepository{db: db} }

// SaveFinding insert/update the result of one control
func (r *FindingRepository) SaveFinding(ctx context.Context, projectID, frameworkID string, res compliance.AnalysisResult) error {
	const q = `
INSERT INTO compliance_findings
(project_id, control_id, framework_id, control_code, is_mandatory, status, risk_level,
 finding_title, finding_description, remediation_guidance, confidence_score,
 evidence, missing_elements, estimated_effort_hours, provider, analyzed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,
        $8,$9,$10,$11,
        $12::jsonb,$13::jsonb,$14,$15,$16)
ON CONFLICT (project_id, control_id) DO UPDATE SET
 framework_id = EXCLUDED.framework_id,
 control_code = EXCLUDED.control_code,
 is_mandatory = EXCLUDED.is_mandatory,
 status = EXCLUDED.status,
 risk_level = EXCLUDED.risk_level,
 finding_title = EXCLUDED.finding_title,
 finding_description = EXCLUDED.finding_description,
 remediation_guidance = EXCLUDED.remediation_guidance,
 confidence_score = EXCLUDED.confidence_score,
 evidence = EXCLUDED.evidence,
 missing_elements = EXCLUDED.missing_elements,
 estimated_effort_hours = EXCLUDED.estimated_effort_hours,
 provider = EXCLUDED.provider,
 analyzed_at = EXCLUDED.analyzed_at;`

	evidence, err := jsonList(res.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence for %s: %w", res.ControlID, err)
	}
	missing, err := jsonList(res.MissingElements)
	if err != nil {
		return fmt.Errorf("encode missing elements for %s: %w", res.ControlID, err)
	}
	analyzed := res.AnalyzedAt
	if analyzed.IsZero() {
		analyzed = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, q,
		projectID, res.ControlID, frameworkID, stringOrDash(res.ControlCode), res.IsMandatory,
		stringOrDash(string(res.Status)), stringOrDash(string(res.RiskLevel)),
		res.FindingTitle, res.FindingDescription, res.RemediationGuidance, res.ConfidenceScore,
		evidence, missing, nullFloat(res.EstimatedEffortHours), stringOrDash(res.Provider), analyzed,
	)
	return err
}

func (r *FindingRepository) HasFinding(ctx context.Context, projectID, controlID string) (bool, error) {
	const q = `
SELECT EXISTS(
  SELECT 1 FROM compliance_findings
  WHERE project_id=$1 AND control_id=$2 AND status <> $3
);`
	var exists bool
	err := r.db.QueryRowContext(ctx, q, projectID, controlID, string(compliance.StatusCompliant)).Scan(&exists)
	return exists, err
}

func (r *FindingRepository) ListFindings(ctx context.Context, projectID, frameworkID string) ([]compliance.AnalysisResult, error) {
	const q = `
SELECT control_id, control_code, is_mandatory, status, risk_level,
       finding_title, finding_description, remediation_guidance, confidence_score,
       evidence, missing_elements, estimated_effort_hours, provider, analyzed_at
FROM compliance_findings
WHERE project_id=$1 AND framework_id=$2
ORDER BY control_code, control_id;`

	rows, err := r.db.QueryContext(ctx, q, projectID, frameworkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []compliance.AnalysisResult
	for rows.Next() {
		var (
			res               compliance.AnalysisResult
			evidence, missing []byte
			effort            sql.NullFloat64
		)
		if err := rows.Scan(
			&res.ControlID, &res.ControlCode, &res.IsMandatory, &res.Status, &res.RiskLevel,
			&res.FindingTitle, &res.FindingDescription, &res.RemediationGuidance, &res.ConfidenceScore,
			&evidence, &missing, &effort, &res.Provider, &res.AnalyzedAt,
		); err != nil {
			return nil, err
		}
		res.ControlCode = dashToEmpty(res.ControlCode)
		res.Provider = dashToEmpty(res.Provider)
		res.Status = compliance.Status(dashToEmpty(string(res.Status)))
		res.RiskLevel = compliance.RiskLevel(dashToEmpty(string(res.RiskLevel)))
		if err := decodeLists(evidence, missing, &res); err != nil {
			return nil, fmt.Errorf("decode finding %s: %w", res.ControlID, err)
		}
		if effort.Valid {
			h := effort.Float64
			res.EstimatedEffortHours = &h
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
