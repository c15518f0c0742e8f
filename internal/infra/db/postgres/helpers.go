package postgres

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// dashToEmpty reverses stringOrDash on read.
func dashToEmpty(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// jsonList marshals v, storing nil slices as [].
func jsonList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeLists(evidence, missing []byte, r *compliance.AnalysisResult) error {
	if err := json.Unmarshal(evidence, &r.Evidence); err != nil {
		return err
	}
	return json.Unmarshal(missing, &r.MissingElements)
}
