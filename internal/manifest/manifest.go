// Package manifest reads YAML batch descriptions for the upload command.
//
//	destinations: [s3, azure]
//	files:
//	  - path: reports/q3.pdf
//	  - path: scans/IMG_0001.jpg
//	    name: receipt.jpg
//
// Relative paths resolve against the manifest's directory.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alexjbarnes/ledger-upload/internal/models"
	"gopkg.in/yaml.v3"
)

// maxFileSize caps a single manifest entry so a typo cannot pull a disk
// image into memory.
const maxFileSize = 512 << 20

// File is one manifest entry. Name overrides the upload name; it
// defaults to the base name of Path.
type File struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// Manifest is a parsed batch description.
type Manifest struct {
	Destinations []string `yaml:"destinations"`
	Files        []File   `yaml:"files"`

	dir string
}

// Load parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving manifest dir: %w", err)
	}

	m.dir = abs

	return m, nil
}

// Parse decodes a manifest document. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	for i, f := range m.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("files[%d]: path is required", i)
		}
	}

	return &m, nil
}

// DestinationSet parses the manifest's destinations. An empty list
// yields an empty set so callers can fall back to configured defaults.
func (m *Manifest) DestinationSet() (models.Destinations, error) {
	return models.ParseDestinations(m.Destinations)
}

// Entries reads every listed file and returns entries in manifest order.
func (m *Manifest) Entries() ([]*models.FileEntry, error) {
	entries := make([]*models.FileEntry, 0, len(m.Files))

	for i, f := range m.Files {
		p := f.Path
		if !filepath.IsAbs(p) && m.dir != "" {
			p = filepath.Join(m.dir, p)
		}

		e, err := ReadFile(p, f.Name)
		if err != nil {
			return nil, fmt.Errorf("files[%d]: %w", i, err)
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// ReadFile loads path into a FileEntry named name, or the path's base
// name when name is empty.
func ReadFile(path, name string) (*models.FileEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, errIsDir)
	}

	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%s: %d bytes exceeds %d byte limit", path, info.Size(), maxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if name == "" {
		name = filepath.Base(path)
	}

	return models.NewFileEntry(name, content), nil
}

var errIsDir = errors.New("is a directory")
