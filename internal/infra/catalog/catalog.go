package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/storage"
)

// Framework is a control catalog read from YAML.
type Framework struct {
	ID       string                         `yaml:"id"`
	Code     string                         `yaml:"code"`
	Name     string                         `yaml:"name"`
	Version  string                         `yaml:"version"`
	Controls []compliance.ControlDescriptor `yaml:"-"`
}

type controlYAML struct {
	ID          string `yaml:"id"`
	Code        string `yaml:"code"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Guidance    string `yaml:"guidance"`
	Mandatory   *bool  `yaml:"mandatory"`
}

type fileYAML struct {
	Framework Framework     `yaml:"framework"`
	Controls  []controlYAML `yaml:"controls"`
}

// Parse decodes a catalog. Controls are mandatory unless stated otherwise, and
// a missing control id falls back to its code.
func Parse(r io.Reader) (*Framework, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f fileYAML
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if f.Framework.ID == "" {
		return nil, errors.New("catalog: framework.id is required")
	}
	if f.Framework.Code == "" {
		f.Framework.Code = f.Framework.ID
	}

	seen := make(map[string]bool, len(f.Controls))
	fw := f.Framework
	for i, c := range f.Controls {
		if c.Code == "" {
			return nil, fmt.Errorf("catalog: control #%d has no code", i+1)
		}
		id := c.ID
		if id == "" {
			id = c.Code
		}
		if seen[id] {
			return nil, fmt.Errorf("catalog: duplicate control id %q", id)
		}
		seen[id] = true

		fw.Controls = append(fw.Controls, compliance.ControlDescriptor{
			ID:                     id,
			Code:                   c.Code,
			Title:                  c.Title,
			Description:            strings.TrimSpace(c.Description),
			ImplementationGuidance: strings.TrimSpace(c.Guidance),
			IsMandatory:            c.Mandatory == nil || *c.Mandatory,
		})
	}
	return &fw, nil
}

func Load(path string) (*Framework, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data))
}

// BatchRequest turns the catalog into a batch over documents.
func (f *Framework) BatchRequest(projectID string, docs []compliance.DocumentExcerpt, opts compliance.BatchOptions) compliance.BatchRequest {
	return compliance.BatchRequest{
		ProjectID:     projectID,
		FrameworkID:   f.ID,
		FrameworkCode: f.Code,
		Controls:      f.Controls,
		Documents:     docs,
		Options:       opts,
	}
}

// LoadDocuments reads every supported file in dir (not recursive), sorted by name.
func LoadDocuments(dir string) ([]compliance.DocumentExcerpt, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs []compliance.DocumentExcerpt
	for _, e := range entries {
		if e.IsDir() || !storage.Supported(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		doc, err := storage.DecodeDocument(e.Name(), mime.TypeByExtension(filepath.Ext(e.Name())), data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
