package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFileName = "tablekit.yaml"

// Config holds defaults for every command. Loaded from tablekit.yaml if
// present. Relative paths are resolved against the file's directory.
type Config struct {
	// Schema is the schema file describing the table.
	Schema string `yaml:"schema"`

	// DataDir is where BadgerDB stores data for local use.
	DataDir string `yaml:"dataDir"`

	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// LoadConfig reads path, or searches for tablekit.yaml walking up from the
// current directory when path is empty. A missing file yields an empty config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	cfg.Schema = resolve(dir, cfg.Schema)
	cfg.DataDir = resolve(dir, cfg.DataDir)
	return cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// findConfigFile searches for tablekit.yaml walking up from current directory.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, configFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
