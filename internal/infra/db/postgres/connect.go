package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS compliance_findings (
  project_id TEXT NOT NULL,
  control_id TEXT NOT NULL,
  framework_id TEXT NOT NULL,
  control_code TEXT NOT NULL,
  is_mandatory BOOLEAN NOT NULL DEFAULT FALSE,
  status TEXT NOT NULL,
  risk_level TEXT NOT NULL,
  finding_title TEXT NOT NULL,
  finding_description TEXT NOT NULL,
  remediation_guidance TEXT NOT NULL,
  confidence_score DOUBLE PRECISION NOT NULL,
  evidence JSONB NOT NULL,
  missing_elements JSONB NOT NULL,
  estimated_effort_hours DOUBLE PRECISION NULL,
  provider TEXT NOT NULL,
  analyzed_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (project_id, control_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_findings_framework ON compliance_findings (project_id, framework_id)`,
	`CREATE TABLE IF NOT EXISTS compliance_batch_runs (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  framework_id TEXT NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  completed_at TIMESTAMPTZ NOT NULL,
  total_controls INT NOT NULL,
  controls_analyzed INT NOT NULL,
  findings_created INT NOT NULL,
  overall_score DOUBLE PRECISION NOT NULL,
  error_message TEXT NULL,
  report_url TEXT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_batch_runs_project ON compliance_batch_runs (project_id, started_at DESC)`,
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
