package compliance

import (
	"math"
	"strings"
)

// ScoreInput is the minimum a finding needs to contribute to the score.
type ScoreInput struct {
	Status      Status    `json:"status"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	IsMandatory bool      `json:"isMandatory"`
}

// ParseScoreInput maps free-text fields to a ScoreInput. A blank risk level
// stays unset and weighs one; only a named level goes through ParseRiskLevel.
func ParseScoreInput(status, riskLevel string, mandatory bool) ScoreInput {
	in := ScoreInput{Status: ParseStatus(status), IsMandatory: mandatory}
	if strings.TrimSpace(riskLevel) != "" {
		in.RiskLevel = ParseRiskLevel(riskLevel)
	}
	return in
}

// Score computes the weighted compliance percentage.
//
// Each finding weighs (mandatory ? 2 : 1) x risk multiplier, so a single
// mandatory critical gap outweighs many optional low-risk passes.
// An empty list scores 100.
func Score(findings []ScoreInput) float64 {
	if len(findings) == 0 {
		return 100
	}
	var achieved, total float64
	for _, f := range findings {
		w := riskMultiplier(f.RiskLevel)
		if f.IsMandatory {
			w *= 2
		}
		total += w
		achieved += w * statusAchievement(f.Status)
	}
	if total == 0 {
		return 100
	}
	return round2(achieved / total * 100)
}

// ScoreResults scores analysis results directly.
func ScoreResults(results []AnalysisResult) float64 {
	in := make([]ScoreInput, 0, len(results))
	for _, r := range results {
		in = append(in, ScoreInput{Status: r.Status, RiskLevel: r.RiskLevel, IsMandatory: r.IsMandatory})
	}
	return Score(in)
}

// Summarize builds the score plus status and risk breakdowns.
func Summarize(results []AnalysisResult) ComplianceSummary {
	s := ComplianceSummary{
		OverallScore: ScoreResults(results),
		ByStatus:     make(map[Status]int),
		ByRiskLevel:  make(map[RiskLevel]int),
	}
	for _, r := range results {
		s.ByStatus[r.Status]++
		if r.RiskLevel != "" {
			s.ByRiskLevel[r.RiskLevel]++
		}
	}
	return s
}

func riskMultiplier(r RiskLevel) float64 {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	default:
		return 1
	}
}

func statusAchievement(s Status) float64 {
	switch s {
	case StatusCompliant, StatusNotApplicable:
		return 1
	case StatusPartiallyCompliant:
		return 0.5
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
