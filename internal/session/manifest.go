package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Manifest describes one finished collection session.
type Manifest struct {
	SessionID      uuid.UUID `yaml:"session_id"`
	Device         string    `yaml:"device"`
	Sink           string    `yaml:"sink"`
	Output         string    `yaml:"output,omitempty"`
	BucketInterval string    `yaml:"bucket_interval"`
	StartedAt      time.Time `yaml:"started_at"`
	EndedAt        time.Time `yaml:"ended_at"`
	Buckets        int       `yaml:"buckets"`
	Samples        int       `yaml:"samples"`
	Skipped        int       `yaml:"skipped"`
	GrandTotal     float64   `yaml:"grand_total"`
	StopReason     string    `yaml:"stop_reason"`
}

// Write stores the manifest as YAML, replacing the file atomically.
func Write(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.yaml")
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Read loads a manifest written by Write.
func Read(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}
