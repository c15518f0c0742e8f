package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

// ErrNoObject is returned when no JSON object can be located in the reply.
var ErrNoObject = errors.New("no JSON object found in response")

// ParseError means a response arrived but could not be turned into a result.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser converts free-text provider replies into analysis results.
type Parser struct{}

// payload mirrors the schema documented by the prompt builder.
type payload struct {
	Status               flexText          `json:"status"`
	RiskLevel            flexText          `json:"riskLevel"`
	FindingTitle         flexText          `json:"findingTitle"`
	FindingDescription   flexText          `json:"findingDescription"`
	RemediationGuidance  flexText          `json:"remediationGuidance"`
	ConfidenceScore      flexFloat         `json:"confidenceScore"`
	Evidence             []evidencePayload `json:"evidence"`
	MissingElements      flexList          `json:"missingElements"`
	EstimatedEffortHours *flexFloat        `json:"estimatedEffortHours"`
}

type evidencePayload struct {
	DocumentID     flexText  `json:"documentId"`
	FileName       flexText  `json:"fileName"`
	Excerpt        flexText  `json:"excerpt"`
	PageReference  flexText  `json:"pageReference"`
	RelevanceScore flexFloat `json:"relevanceScore"`
}

// Parse strips code fences, decodes the first JSON object and normalizes it.
// Unknown enum values degrade to defaults; only a missing or undecodable
// object yields a *ParseError.
func (Parser) Parse(raw string, req compliance.AnalysisRequest) (compliance.AnalysisResult, error) {
	p, err := decodeObject(StripCodeFences(raw))
	if errors.Is(err, ErrNoObject) {
		return compliance.AnalysisResult{}, &ParseError{Reason: "response contained no structured object", Err: err}
	}
	if err != nil {
		return compliance.AnalysisResult{}, &ParseError{Reason: "response object could not be decoded", Err: err}
	}

	res := compliance.AnalysisResult{
		ControlID:           req.Control.ID,
		ControlCode:         req.Control.Code,
		IsMandatory:         req.Control.IsMandatory,
		Status:              compliance.ParseStatus(string(p.Status)),
		RiskLevel:           compliance.ParseRiskLevel(string(p.RiskLevel)),
		FindingTitle:        strings.TrimSpace(string(p.FindingTitle)),
		FindingDescription:  strings.TrimSpace(string(p.FindingDescription)),
		RemediationGuidance: strings.TrimSpace(string(p.RemediationGuidance)),
		ConfidenceScore:     clamp01(float64(p.ConfidenceScore)),
		Evidence:            resolveEvidence(p.Evidence, req.Documents),
		MissingElements:     nonEmpty(p.MissingElements),
	}
	if p.EstimatedEffortHours != nil {
		h := float64(*p.EstimatedEffortHours)
		if h >= 0 && !math.IsNaN(h) && !math.IsInf(h, 0) {
			res.EstimatedEffortHours = &h
		}
	}
	return res, nil
}

// StripCodeFences removes a leading ``` line (with or without a language tag)
// and a trailing ``` marker.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimLeft(strings.TrimPrefix(s, "```"), "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeObject decodes a single JSON value starting at the first '{' and
// ignores whatever follows it. When that fails, later '{' positions are
// tried, but only an object carrying a "status" key is accepted there so a
// nested evidence entry of a broken reply is not mistaken for the answer.
func decodeObject(s string) (payload, error) {
	var firstErr error
	for i := 0; i < len(s); i++ {
		j := strings.IndexByte(s[i:], '{')
		if j < 0 {
			break
		}
		i += j

		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&raw); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if firstErr != nil && !hasKey(raw, "status") {
			continue
		}
		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return p, nil
	}
	if firstErr != nil {
		return payload{}, firstErr
	}
	return payload{}, ErrNoObject
}

func hasKey(raw json.RawMessage, key string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	_, ok := fields[key]
	return ok
}

// resolveEvidence matches each reference to a supplied document by id, or
// failing that by file name (case-insensitive). References that match
// nothing keep a well-formed UUID and otherwise get the unresolved sentinel.
func resolveEvidence(in []evidencePayload, docs []compliance.DocumentExcerpt) []compliance.EvidenceReference {
	byID := make(map[string]compliance.DocumentExcerpt, len(docs))
	byName := make(map[string]compliance.DocumentExcerpt, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
		if name := strings.ToLower(strings.TrimSpace(d.FileName)); name != "" {
			byName[name] = d
		}
	}

	out := make([]compliance.EvidenceReference, 0, len(in))
	for _, e := range in {
		ref := compliance.EvidenceReference{
			DocumentID:     strings.TrimSpace(string(e.DocumentID)),
			FileName:       strings.TrimSpace(string(e.FileName)),
			Excerpt:        strings.TrimSpace(string(e.Excerpt)),
			PageReference:  strings.TrimSpace(string(e.PageReference)),
			RelevanceScore: clamp01(float64(e.RelevanceScore)),
		}
		d, ok := byID[ref.DocumentID]
		if !ok || ref.DocumentID == "" {
			// models sometimes echo the file name in either field
			d, ok = byName[strings.ToLower(ref.FileName)]
			if !ok {
				d, ok = byName[strings.ToLower(ref.DocumentID)]
			}
		}
		switch {
		case ok:
			ref.DocumentID = d.ID
			if ref.FileName == "" {
				ref.FileName = d.FileName
			}
		default:
			if _, err := uuid.Parse(ref.DocumentID); err != nil {
				ref.DocumentID = compliance.UnresolvedDocumentID
			}
		}
		out = append(out, ref)
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// flexFloat accepts a JSON number, a numeric string, or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(b)), `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	pct := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// unreadable numbers degrade to zero instead of failing the whole reply
		*f = 0
		return nil
	}
	if pct {
		v /= 100
	}
	*f = flexFloat(v)
	return nil
}

// flexText accepts a JSON string, number or boolean. Objects, arrays and
// null decode to "" so the field falls back to its default.
type flexText string

func (t *flexText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = flexText(s)
		return nil
	}
	str := strings.TrimSpace(string(b))
	switch {
	case str == "null", strings.HasPrefix(str, "{"), strings.HasPrefix(str, "["):
		*t = ""
	default:
		*t = flexText(str)
	}
	return nil
}

// flexList accepts an array of scalars or a single string.
type flexList []string

func (l *flexList) UnmarshalJSON(b []byte) error {
	str := strings.TrimSpace(string(b))
	if !strings.HasPrefix(str, "[") {
		var t flexText
		_ = t.UnmarshalJSON(b)
		*l = flexList{string(t)}
		return nil
	}
	var items []flexText
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	out := make(flexList, len(items))
	for i, it := range items {
		out[i] = string(it)
	}
	*l = out
	return nil
}
