package mysql

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

// stringOrDash returns "-" when the input is empty/whitespace
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

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// encodeLists serializes the JSON columns; nil slices are stored as [].
func encodeLists(r compliance.AnalysisResult) (evidence, missing []byte, err error) {
	ev := r.Evidence
	if ev == nil {
		ev = []compliance.EvidenceReference{}
	}
	me := r.MissingElements
	if me == nil {
		me = []string{}
	}
	if evidence, err = json.Marshal(ev); err != nil {
		return nil, nil, err
	}
	if missing, err = json.Marshal(me); err != nil {
		return nil, nil, err
	}
	return evidence, missing, nil
}

func decodeLists(evidence, missing []byte, r *compliance.AnalysisResult) error {
	if err := json.Unmarshal(evidence, &r.Evidence); err != nil {
		return err
	}
	return json.Unmarshal(missing, &r.MissingElements)
}
