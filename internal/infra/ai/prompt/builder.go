package prompt

import (
	"fmt"
	"strings"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

// MaxExcerptRunes bounds how much of each document goes into a prompt.
const MaxExcerptRunes = 4000

// TruncationMarker is appended to every excerpt cut at MaxExcerptRunes.
const TruncationMarker = "[... truncated ...]"

// Builder renders control + evidence into instructions for the reasoning service.
// It is stateless; the zero value is ready to use.
type Builder struct {
	// MaxExcerptRunes overrides the package default when > 0.
	MaxExcerptRunes int
}

// SystemPrompt provides the fixed role directions sent with every request.
func (Builder) SystemPrompt() string {
	return `You are a senior compliance auditor. You assess whether an organization's documents satisfy one regulatory control.
You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.
Base every conclusion on the supplied documents; never invent evidence.`
}

// Build renders the per-control instructions. Output is deterministic for identical input.
func (b Builder) Build(control compliance.ControlDescriptor, excerpts []compliance.DocumentExcerpt) string {
	var sb strings.Builder

	sb.WriteString("Assess the following control against the provided evidence documents.\n\n")

	sb.WriteString("## Control\n")
	fmt.Fprintf(&sb, "Code: %s\n", control.Code)
	fmt.Fprintf(&sb, "Title: %s\n", control.Title)
	fmt.Fprintf(&sb, "Mandatory: %t\n", control.IsMandatory)
	fmt.Fprintf(&sb, "Description: %s\n", control.Description)
	if g := strings.TrimSpace(control.ImplementationGuidance); g != "" {
		fmt.Fprintf(&sb, "Implementation guidance: %s\n", g)
	}
	sb.WriteString("\n")

	sb.WriteString("## Evidence documents\n")
	if len(excerpts) == 0 {
		sb.WriteString("No evidence documents were provided. The absence of evidence is itself a gap: ")
		sb.WriteString("report what documentation would be needed under missingElements.\n")
	}
	for i, d := range excerpts {
		fmt.Fprintf(&sb, "### Document %d\n", i+1)
		fmt.Fprintf(&sb, "documentId: %s\n", d.ID)
		fmt.Fprintf(&sb, "fileName: %s\n", d.FileName)
		if d.MimeType != "" {
			fmt.Fprintf(&sb, "mimeType: %s\n", d.MimeType)
		}
		if d.PageCount > 0 {
			fmt.Fprintf(&sb, "pageCount: %d\n", d.PageCount)
		}
		sb.WriteString("content:\n")
		sb.WriteString(b.truncate(d.Content))
		sb.WriteString("\n\n")
	}

	sb.WriteString("\n")
	sb.WriteString(outputSchema)
	return sb.String()
}

// truncate cuts on a rune boundary so the same input always yields the same cut.
func (b Builder) truncate(s string) string {
	limit := b.MaxExcerptRunes
	if limit <= 0 {
		limit = MaxExcerptRunes
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "\n" + TruncationMarker
}

const outputSchema = `## Required output
Respond with exactly one JSON object using this schema:
{
  "status": "<Compliant|PartiallyCompliant|NonCompliant|NotApplicable|NotAssessed>",
  "riskLevel": "<Critical|High|Medium|Low>",
  "findingTitle": "<string, short headline>",
  "findingDescription": "<string, what was found and why>",
  "remediationGuidance": "<string, concrete next steps; empty when Compliant>",
  "confidenceScore": <number between 0.0 and 1.0>,
  "evidence": [
    {
      "documentId": "<documentId exactly as listed above>",
      "fileName": "<string>",
      "excerpt": "<verbatim quote supporting the assessment>",
      "pageReference": "<string, optional>",
      "relevanceScore": <number between 0.0 and 1.0>
    }
  ],
  "missingElements": ["<string>"],
  "estimatedEffortHours": <number >= 0, optional>
}

Rules:
- status and riskLevel must use one of the listed values exactly.
- confidenceScore and relevanceScore must be between 0.0 and 1.0.
- Only cite documentIds that appear in the evidence section.
- missingElements lists each requirement of the control not evidenced by the documents.`
