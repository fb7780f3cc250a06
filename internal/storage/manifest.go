package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const manifestVersion = "1.0"

// Manifest describes one enhancement run. It is written next to the output
// artifact as enh_{name}.yaml.
type Manifest struct {
	Version    string        `yaml:"version"`
	RequestID  string        `yaml:"request_id"`
	Provider   string        `yaml:"provider"`
	Mode       string        `yaml:"mode"`
	Input      ManifestInput `yaml:"input"`
	Output     ManifestFile  `yaml:"output"`
	Stages     []StageRecord `yaml:"stages"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
}

type ManifestInput struct {
	OriginalName string `yaml:"original_name"`
	StorageName  string `yaml:"storage_name"`
	ContentType  string `yaml:"content_type"`
	Size         int64  `yaml:"size"`
	Width        int    `yaml:"width,omitempty"`
	Height       int    `yaml:"height,omitempty"`
}

type ManifestFile struct {
	Name        string `yaml:"name"`
	ContentType string `yaml:"content_type"`
	Size        int64  `yaml:"size"`
}

// StageRecord is the outcome of one remote stage.
type StageRecord struct {
	Stage    string        `yaml:"stage"`
	JobID    string        `yaml:"job_id"`
	Status   string        `yaml:"status"`
	Polls    int           `yaml:"polls"`
	Duration time.Duration `yaml:"duration"`
}

// WriteManifest marshals m to {artifact}.yaml in the output directory.
func (s *Scratch) WriteManifest(artifact string, m *Manifest) error {
	if m.Version == "" {
		m.Version = manifestVersion
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshalling manifest: %w", err)
	}
	path := filepath.Join(s.outputDir, ManifestName(artifact))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest previously written for artifact.
func (s *Scratch) ReadManifest(artifact string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.outputDir, ManifestName(artifact)))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}
