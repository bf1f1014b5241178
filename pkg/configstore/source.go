package configstore

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultsFile is the on-disk shape of a defaults source: two maps of
// unprefixed keys.
type defaultsFile struct {
	Core   map[string]any `yaml:"core"`
	Public map[string]any `yaml:"public"`
}

// FileSource loads core/public defaults from a YAML file.
type FileSource struct {
	path string
}

// NewFileSource creates a file-backed defaults source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load reads and decodes the defaults file.
func (f *FileSource) Load(_ context.Context) (map[string]any, map[string]any, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read defaults file %s: %w", f.path, err)
	}
	var parsed defaultsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, nil, fmt.Errorf("failed to parse defaults file %s: %w", f.path, err)
	}
	return parsed.Core, parsed.Public, nil
}

// Path returns the backing file path.
func (f *FileSource) Path() string { return f.path }

// StaticSource serves fixed in-memory defaults; useful for embedders
// and tests.
type StaticSource struct {
	CoreEntries   map[string]any
	PublicEntries map[string]any
}

// Load returns the static maps.
func (s *StaticSource) Load(_ context.Context) (map[string]any, map[string]any, error) {
	return s.CoreEntries, s.PublicEntries, nil
}

// Path returns "" because there is nothing to watch.
func (s *StaticSource) Path() string { return "" }
