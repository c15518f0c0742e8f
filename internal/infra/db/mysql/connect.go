package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Schema creates the tables used by the repositories in this package.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS compliance_findings (
  project_id VARCHAR(128) NOT NULL,
  control_id VARCHAR(128) NOT NULL,
  framework_id VARCHAR(128) NOT NULL,
  control_code VARCHAR(64) NOT NULL,
  is_mandatory BOOLEAN NOT NULL DEFAULT FALSE,
  status VARCHAR(32) NOT NULL,
  risk_level VARCHAR(16) NOT NULL,
  finding_title VARCHAR(512) NOT NULL,
  finding_description TEXT NOT NULL,
  remediation_guidance TEXT NOT NULL,
  confidence_score DOUBLE NOT NULL,
  evidence JSON NOT NULL,
  missing_elements JSON NOT NULL,
  estimated_effort_hours DOUBLE NULL,
  provider VARCHAR(64) NOT NULL,
  analyzed_at DATETIME(3) NOT NULL,
  PRIMARY KEY (project_id, control_id),
  KEY idx_findings_framework (project_id, framework_id)
)`,
	`CREATE TABLE IF NOT EXISTS compliance_batch_runs (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  project_id VARCHAR(128) NOT NULL,
  framework_id VARCHAR(128) NOT NULL,
  started_at DATETIME(3) NOT NULL,
  completed_at DATETIME(3) NOT NULL,
  total_controls INT NOT NULL,
  controls_analyzed INT NOT NULL,
  findings_created INT NOT NULL,
  overall_score DOUBLE NOT NULL,
  error_message TEXT NULL,
  report_url VARCHAR(1024) NULL,
  KEY idx_batch_runs_project (project_id, started_at)
)`,
}

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
