package compliance

import (
	"strings"
	"time"
)

// Status enum
type Status string

const (
	StatusCompliant          Status = "Compliant"
	StatusPartiallyCompliant Status = "PartiallyCompliant"
	StatusNonCompliant       Status = "NonCompliant"
	StatusNotApplicable      Status = "NotApplicable"
	StatusNotAssessed        Status = "NotAssessed"
)

// RiskLevel enum
type RiskLevel string

const (
	RiskCritical RiskLevel = "Critical"
	RiskHigh     RiskLevel = "High"
	RiskMedium   RiskLevel = "Medium"
	RiskLow      RiskLevel = "Low"
)

// UnresolvedDocumentID marks evidence whose document could not be matched.
const UnresolvedDocumentID = "unresolved"

// ParseStatus maps free text to a Status. Unknown values become NotAssessed.
func ParseStatus(s string) Status {
	switch normalizeEnum(s) {
	case "compliant":
		return StatusCompliant
	case "partiallycompliant", "partial":
		return StatusPartiallyCompliant
	case "noncompliant":
		return StatusNonCompliant
	case "notapplicable", "na":
		return StatusNotApplicable
	default:
		return StatusNotAssessed
	}
}

// ParseRiskLevel maps free text to a RiskLevel. Unknown values become Medium.
func ParseRiskLevel(s string) RiskLevel {
	switch normalizeEnum(s) {
	case "critical":
		return RiskCritical
	case "high":
		return RiskHigh
	case "low":
		return RiskLow
	default:
		return RiskMedium
	}
}

func normalizeEnum(s string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "", "/", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(s)))
}

// ControlDescriptor is a single requirement from the control catalog.
type ControlDescriptor struct {
	ID                     string `json:"id"`
	Code                   string `json:"code"`
	Title                  string `json:"title"`
	Description            string `json:"description"`
	ImplementationGuidance string `json:"implementationGuidance,omitempty"`
	IsMandatory            bool   `json:"isMandatory"`
}

// Label is the "CODE - Title" form used in progress reporting.
func (c ControlDescriptor) Label() string {
	switch {
	case c.Code == "":
		return c.Title
	case c.Title == "":
		return c.Code
	}
	return c.Code + " - " + c.Title
}

// DocumentExcerpt is pre-extracted document text.
type DocumentExcerpt struct {
	ID        string `json:"id"`
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType,omitempty"`
	PageCount int    `json:"pageCount,omitempty"`
	Content   string `json:"content"`
}

// AnalysisRequest is one control plus the project's document set.
type AnalysisRequest struct {
	ProjectID   string
	FrameworkID string
	Control     ControlDescriptor
	Documents   []DocumentExcerpt
}

// EvidenceReference points a finding back at a document excerpt.
type EvidenceReference struct {
	DocumentID     string  `json:"documentId"`
	FileName       string  `json:"fileName,omitempty"`
	Excerpt        string  `json:"excerpt"`
	PageReference  string  `json:"pageReference,omitempty"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// AnalysisResult is the structured finding for one control.
type AnalysisResult struct {
	ControlID            string              `json:"controlId"`
	ControlCode          string              `json:"controlCode,omitempty"`
	IsMandatory          bool                `json:"isMandatory"`
	Status               Status              `json:"status"`
	RiskLevel            RiskLevel           `json:"riskLevel"`
	FindingTitle         string              `json:"findingTitle"`
	FindingDescription   string              `json:"findingDescription"`
	RemediationGuidance  string              `json:"remediationGuidance"`
	ConfidenceScore      float64             `json:"confidenceScore"`
	Evidence             []EvidenceReference `json:"evidence"`
	MissingElements      []string            `json:"missingElements"`
	EstimatedEffortHours *float64            `json:"estimatedEffortHours,omitempty"`
	Provider             string              `json:"provider,omitempty"`
	AnalyzedAt           time.Time           `json:"analyzedAt"`
}

// IsFinding reports whether the result counts as a created finding.
func (r AnalysisResult) IsFinding() bool { return r.Status != StatusCompliant }

// ParseFailurePrefix starts the missing-element entry of a parse failure.
const ParseFailurePrefix = "AI response parsing failed: "

// NewParseFailureResult records a control whose provider reply was unusable.
// The control stays visible in the batch as NotAssessed with zero confidence.
func NewParseFailureResult(req AnalysisRequest, err error) AnalysisResult {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return AnalysisResult{
		ControlID:          req.Control.ID,
		ControlCode:        req.Control.Code,
		IsMandatory:        req.Control.IsMandatory,
		Status:             StatusNotAssessed,
		RiskLevel:          RiskMedium,
		FindingTitle:       "Automated analysis could not be parsed",
		FindingDescription: "The reasoning service responded, but its output did not match the expected format. Manual review is required.",
		ConfidenceScore:    0,
		Evidence:           []EvidenceReference{},
		MissingElements:    []string{ParseFailurePrefix + reason},
	}
}

// BatchOptions filters applied by the orchestrator
type BatchOptions struct {
	SkipExistingFindings  bool `json:"skipExistingFindings"`
	MandatoryControlsOnly bool `json:"mandatoryControlsOnly"`
}

// BatchRequest asks for a whole framework to be assessed.
type BatchRequest struct {
	ProjectID     string              `json:"projectId"`
	FrameworkID   string              `json:"frameworkId"`
	FrameworkCode string              `json:"frameworkCode,omitempty"`
	Controls      []ControlDescriptor `json:"controls"`
	Documents     []DocumentExcerpt   `json:"documents"`
	Options       BatchOptions        `json:"options"`
}

// BatchResult is returned for every batch, including aborted and canceled ones.
type BatchResult struct {
	ProjectID         string            `json:"projectId"`
	FrameworkID       string            `json:"frameworkId"`
	AnalysisStarted   time.Time         `json:"analysisStarted"`
	AnalysisCompleted time.Time         `json:"analysisCompleted"`
	TotalControls     int               `json:"totalControls"`
	ControlsAnalyzed  int               `json:"controlsAnalyzed"`
	ControlsSkipped   int               `json:"controlsSkipped"`
	FindingsCreated   int               `json:"findingsCreated"`
	Results           []AnalysisResult  `json:"results"`
	Summary           ComplianceSummary `json:"summary"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	Canceled          bool              `json:"canceled,omitempty"`
}

// ProgressEvent is emitted once per analyzed control.
type ProgressEvent struct {
	TotalControls      int           `json:"totalControls"`
	ControlsAnalyzed   int           `json:"controlsAnalyzed"`
	FindingsCreated    int           `json:"findingsCreated"`
	CurrentControl     string        `json:"currentControl"`
	Elapsed            time.Duration `json:"elapsed"`
	EstimatedRemaining time.Duration `json:"estimatedRemaining"`
}

// ComplianceSummary aggregates a set of results.
type ComplianceSummary struct {
	OverallScore float64           `json:"overallScore"`
	ByStatus     map[Status]int    `json:"countsByStatus"`
	ByRiskLevel  map[RiskLevel]int `json:"countsByRiskLevel"`
}

// BatchRun is the persisted record of one batch execution.
type BatchRun struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"projectId"`
	FrameworkID      string    `json:"frameworkId"`
	StartedAt        time.Time `json:"startedAt"`
	CompletedAt      time.Time `json:"completedAt"`
	TotalControls    int       `json:"totalControls"`
	ControlsAnalyzed int       `json:"controlsAnalyzed"`
	FindingsCreated  int       `json:"findingsCreated"`
	OverallScore     float64   `json:"overallScore"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	ReportURL        string    `json:"reportUrl,omitempty"`
}

// NewBatchRun flattens a BatchResult into its persisted form.
func NewBatchRun(id string, res BatchResult) *BatchRun {
	return &BatchRun{
		ID:               id,
		ProjectID:        res.ProjectID,
		FrameworkID:      res.FrameworkID,
		StartedAt:        res.AnalysisStarted,
		CompletedAt:      res.AnalysisCompleted,
		TotalControls:    res.TotalControls,
		ControlsAnalyzed: res.ControlsAnalyzed,
		FindingsCreated:  res.FindingsCreated,
		OverallScore:     res.Summary.OverallScore,
		ErrorMessage:     res.ErrorMessage,
	}
}
