package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "documents/proj-1/", DocumentPrefix("proj-1"))
	assert.Equal(t, "reports/proj-1/iso27001/run-7.json", ReportKey("proj-1", "iso27001", "run-7"))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("documents/p/policy.JSON"))
	assert.True(t, Supported("documents/p/notes.md"))
	assert.True(t, Supported("documents/p/a.txt"))
	assert.False(t, Supported("documents/p/scan.pdf"))
	assert.False(t, Supported("documents/p/"))
}

func TestDecodeDocument_JSON(t *testing.T) {
	doc, err := DecodeDocument("documents/p/doc-1.json", "application/json",
		[]byte(`{"id":"3f2504e0-4f89-41d3-9a0c-0305e82c3301","fileName":"policy.pdf","pageCount":12,"content":"Access is reviewed."}`))
	require.NoError(t, err)
	assert.Equal(t, "3f2504e0-4f89-41d3-9a0c-0305e82c3301", doc.ID)
	assert.Equal(t, "policy.pdf", doc.FileName)
	assert.Equal(t, 12, doc.PageCount)

	doc, err = DecodeDocument("documents/p/doc-2.json", "", []byte(`{"content":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "doc-2", doc.ID)
	assert.Equal(t, "doc-2.json", doc.FileName)

	_, err = DecodeDocument("documents/p/bad.json", "", []byte(`{`))
	assert.Error(t, err)
}

func TestDecodeDocument_Text(t *testing.T) {
	doc, err := DecodeDocument("documents/p/backup-procedure.txt", "", []byte("Backups run nightly."))
	require.NoError(t, err)
	assert.Equal(t, "backup-procedure", doc.ID)
	assert.Equal(t, "backup-procedure.txt", doc.FileName)
	assert.Equal(t, "text/plain", doc.MimeType)
	assert.Equal(t, "Backups run nightly.", doc.Content)
}

func TestReadLimited(t *testing.T) {
	data, err := readLimited(strings.NewReader("abcd"), 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	_, err = readLimited(strings.NewReader("abcde"), 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentTooLarge)

	data, err = readLimited(strings.NewReader(""), 4)
	require.NoError(t, err)
	assert.Empty(t, data)
}
