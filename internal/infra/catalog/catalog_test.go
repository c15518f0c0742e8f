package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

const sample = `
framework:
  id: iso27001-2022
  code: ISO27001
  name: ISO/IEC 27001:2022
  version: "2022"
controls:
  - id: a-5-1
    code: A.5.1
    title: Policies for information security
    description: |
      Information security policy shall be defined and approved.
    guidance: Review annually.
  - code: A.5.2
    title: Information security roles
    mandatory: false
`

func TestParse(t *testing.T) {
	fw, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "iso27001-2022", fw.ID)
	assert.Equal(t, "ISO27001", fw.Code)
	require.Len(t, fw.Controls, 2)

	assert.Equal(t, "a-5-1", fw.Controls[0].ID)
	assert.True(t, fw.Controls[0].IsMandatory)
	assert.Equal(t, "Information security policy shall be defined and approved.", fw.Controls[0].Description)
	assert.Equal(t, "Review annually.", fw.Controls[0].ImplementationGuidance)

	assert.Equal(t, "A.5.2", fw.Controls[1].ID)
	assert.False(t, fw.Controls[1].IsMandatory)
}

func TestParse_Errors(t *testing.T) {
	for name, body := range map[string]string{
		"no framework id": "framework:\n  code: X\n",
		"no control code": "framework:\n  id: x\ncontrols:\n  - title: t\n",
		"duplicate":       "framework:\n  id: x\ncontrols:\n  - code: A\n  - code: A\n",
		"unknown field":   "framework:\n  id: x\n  owner: me\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(body))
			assert.Error(t, err)
		})
	}
}

func TestBatchRequest(t *testing.T) {
	fw, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	req := fw.BatchRequest("proj-1", nil, compliance.BatchOptions{MandatoryControlsOnly: true})
	assert.Equal(t, "iso27001-2022", req.FrameworkID)
	assert.Equal(t, "ISO27001", req.FrameworkCode)
	assert.Len(t, req.Controls, 2)
	assert.True(t, req.Options.MandatoryControlsOnly)
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-policy.txt"), []byte("Policy body"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-extract.json"), []byte(`{"id":"doc-a","fileName":"a.pdf","content":"A"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.pdf"), []byte("%PDF"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o700))

	docs, err := LoadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-a", docs[0].ID)
	assert.Equal(t, "b-policy", docs[1].ID)
	assert.Equal(t, "Policy body", docs[1].Content)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
