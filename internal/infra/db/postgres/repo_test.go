package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

var analyzedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestSaveFinding_EncodesJSONColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	res := compliance.AnalysisResult{
		ControlID:       "ctl-1",
		ControlCode:     "A.5.1",
		Status:          compliance.StatusPartiallyCompliant,
		RiskLevel:       compliance.RiskLow,
		ConfidenceScore: 0.5,
		Evidence:        []compliance.EvidenceReference{{DocumentID: "doc-1", Excerpt: "x", RelevanceScore: 0.3}},
		MissingElements: []string{"owner"},
		Provider:        "openai",
		AnalyzedAt:      analyzedAt,
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (project_id, control_id) DO UPDATE")).
		WithArgs("proj-1", "ctl-1", "fw-1", "A.5.1", false, "PartiallyCompliant", "Low",
			"", "", "", 0.5,
			`[{"documentId":"doc-1","excerpt":"x","relevanceScore":0.3}]`, `["owner"]`, nil, "openai", analyzedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewFindingRepository(db).SaveFinding(context.Background(), "proj-1", "fw-1", res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasFinding_PropagatesErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(")).
		WithArgs("proj-1", "ctl-1", "Compliant").
		WillReturnError(errors.New("connection reset"))

	_, err = NewFindingRepository(db).HasFinding(context.Background(), "proj-1", "ctl-1")
	assert.EqualError(t, err, "connection reset")
}

func TestListFindings_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE project_id=$1 AND framework_id=$2")).
		WithArgs("proj-1", "fw-1").
		WillReturnRows(sqlmock.NewRows([]string{"control_id"}))

	got, err := NewFindingRepository(db).ListFindings(context.Background(), "proj-1", "fw-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListFindings_DashPlaceholdersReadBackEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE project_id=$1 AND framework_id=$2")).
		WithArgs("proj-1", "fw-1").
		WillReturnRows(sqlmock.NewRows([]string{"control_id", "control_code", "is_mandatory", "status", "risk_level",
			"finding_title", "finding_description", "remediation_guidance", "confidence_score",
			"evidence", "missing_elements", "estimated_effort_hours", "provider", "analyzed_at"}).
			AddRow("ctl-1", "-", true, "Compliant", "Low", "t", "d", "r", 0.9,
				[]byte(`[]`), []byte(`["x"]`), nil, "-", analyzedAt).
			AddRow("ctl-2", "A.5.2", false, "NonCompliant", "-", "", "", "", 0.2,
				[]byte(`[]`), []byte(`[]`), 3.0, "azure", analyzedAt))

	got, err := NewFindingRepository(db).ListFindings(context.Background(), "proj-1", "fw-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, got[0].ControlCode)
	assert.Empty(t, got[0].Provider)
	assert.Equal(t, compliance.RiskLow, got[0].RiskLevel)
	assert.Equal(t, "A.5.2", got[1].ControlCode)
	assert.Equal(t, "azure", got[1].Provider)
	assert.Empty(t, got[1].RiskLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBatch_NullableColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	run := &compliance.BatchRun{ID: "run-1", ProjectID: "proj-1", FrameworkID: "fw-1",
		StartedAt: analyzedAt, CompletedAt: analyzedAt, TotalControls: 2, ControlsAnalyzed: 1,
		ErrorMessage: "boom", ReportURL: "s3://reports/run-1.json"}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO compliance_batch_runs")).
		WithArgs("run-1", "proj-1", "fw-1", analyzedAt, analyzedAt, 2, 1, 0, 0.0, "boom", "s3://reports/run-1.json").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewBatchRepository(db).SaveBatch(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range Schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
