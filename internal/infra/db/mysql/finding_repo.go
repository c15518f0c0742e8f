package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

// FindingRepository keeps the latest result per (project, control).
type FindingRepository struct {
	db *sql.DB
}

var _ compliance.FindingRepository = (*FindingRepository)(nil)

func NewFindingRepository(db *sql.DB) *FindingRepository {
	return &FindingRepository{db: db}
}

// SaveFinding insert/update the result of one control
func (r *FindingRepository) SaveFinding(ctx context.Context, projectID, frameworkID string, res compliance.AnalysisResult) error {
	const q = `
INSERT INTO compliance_findings
(project_id, control_id, framework_id, control_code, is_mandatory, status, risk_level,
 finding_title, finding_description, remediation_guidance, confidence_score,
 evidence, missing_elements, estimated_effort_hours, provider, analyzed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 framework_id=VALUES(framework_id), control_code=VALUES(control_code), is_mandatory=VALUES(is_mandatory),
 status=VALUES(status), risk_level=VALUES(risk_level),
 finding_title=VALUES(finding_title), finding_description=VALUES(finding_description),
 remediation_guidance=VALUES(remediation_guidance), confidence_score=VALUES(confidence_score),
 evidence=VALUES(evidence), missing_elements=VALUES(missing_elements),
 estimated_effort_hours=VALUES(estimated_effort_hours), provider=VALUES(provider), analyzed_at=VALUES(analyzed_at);
`
	evidence, missing, err := encodeLists(res)
	if err != nil {
		return fmt.Errorf("encode finding %s: %w", res.ControlID, err)
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

// HasFinding reports whether the control already has a non-compliant result.
func (r *FindingRepository) HasFinding(ctx context.Context, projectID, controlID string) (bool, error) {
	const q = `
SELECT EXISTS(
  SELECT 1 FROM compliance_findings
  WHERE project_id=? AND control_id=? AND status <> ?
);`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, projectID, controlID, string(compliance.StatusCompliant)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListFindings returns every stored result of a framework, ordered by control code.
func (r *FindingRepository) ListFindings(ctx context.Context, projectID, frameworkID string) ([]compliance.AnalysisResult, error) {
	const q = `
SELECT control_id, control_code, is_mandatory, status, risk_level,
       finding_title, finding_description, remediation_guidance, confidence_score,
       evidence, missing_elements, estimated_effort_hours, provider, analyzed_at
FROM compliance_findings
WHERE project_id=? AND framework_id=?
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
