package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadBatchRequest_FromCatalog(t *testing.T) {
	dir := t.TempDir()
	cat := writeFile(t, dir, "iso.yaml", `
framework:
  id: iso27001
  name: ISO/IEC 27001
controls:
  - code: A.5.1
    title: Policies for information security
  - code: A.5.2
    title: Roles
    mandatory: false
`)
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(docs, 0o755))
	writeFile(t, docs, "policy.md", "# Policy\nAll staff must...")
	writeFile(t, docs, "logo.png", "binary")

	req, err := loadBatchRequest(analyzeFlags{catalog: cat, documents: docs, project: "acme", mandatoryOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "acme", req.ProjectID)
	assert.Equal(t, "iso27001", req.FrameworkID)
	require.Len(t, req.Controls, 2)
	assert.False(t, req.Controls[1].IsMandatory)
	require.Len(t, req.Documents, 1)
	assert.Equal(t, "policy.md", req.Documents[0].FileName)
	assert.True(t, req.Options.MandatoryControlsOnly)
}

func TestLoadBatchRequest_FromJSON(t *testing.T) {
	p := writeFile(t, t.TempDir(), "batch.json", `{
		"projectId": "p1", "frameworkId": "soc2",
		"controls": [{"id": "c1", "code": "CC1.1"}],
		"options": {"mandatoryControlsOnly": true}
	}`)
	req, err := loadBatchRequest(analyzeFlags{request: p, skipExisting: true})
	require.NoError(t, err)
	assert.Equal(t, "soc2", req.FrameworkID)
	assert.True(t, req.Options.MandatoryControlsOnly)
	assert.True(t, req.Options.SkipExistingFindings)

	_, err = loadBatchRequest(analyzeFlags{request: writeFile(t, t.TempDir(), "bad.json", "{")})
	assert.Error(t, err)
}

func TestReadFindings(t *testing.T) {
	in, err := readFindings(strings.NewReader(`[{"status": "compliant", "riskLevel": "high", "isMandatory": true}]`))
	require.NoError(t, err)
	assert.Equal(t, []domain.ScoreInput{{Status: domain.StatusCompliant, RiskLevel: domain.RiskHigh, IsMandatory: true}}, in)

	in, err = readFindings(strings.NewReader(`{"results": [{"status": "NonCompliant"}, {"status": "Compliant"}]}`))
	require.NoError(t, err)
	assert.Len(t, in, 2)

	in, err = readFindings(strings.NewReader(`[{"status": "NonCompliant"}, {"status": "Compliant", "riskLevel": "Low"}]`))
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevel(""), in[0].RiskLevel)
	assert.InDelta(t, 50, domain.Score(in), 0.001)

	_, err = readFindings(strings.NewReader(`nope`))
	assert.Error(t, err)
}

func TestScoreCommand(t *testing.T) {
	p := writeFile(t, t.TempDir(), "findings.json",
		`[{"status": "Compliant", "riskLevel": "Low"}, {"status": "NonCompliant", "riskLevel": "Low"}]`)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"score", "--findings", p})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"overallScore": 50`)
}

func TestScoreCommand_UnsetRiskWeighsOne(t *testing.T) {
	p := writeFile(t, t.TempDir(), "findings.json",
		`[{"status": "NonCompliant"}, {"status": "Compliant", "riskLevel": "Low"}]`)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"score", "--findings", p})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"overallScore": 50`)
}

func TestAnalyzeCommand_NeedsInput(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"analyze"})
	assert.Error(t, root.Execute())
}
