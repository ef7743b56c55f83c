package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile reads an engine configuration file into a raw Config,
// detecting the format from the extension (.yaml, .yml, .json).
// Keys are the ones Resolve understands: api_key, endpoint,
// environment, encryption, compression, batch_size, flush_interval,
// max_retries, timeout, max_queue_size, auto_start_session and
// queue_path. Unknown keys are carried but never read.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var c Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		c, err = FromYAML(data)
	case ".json":
		c, err = FromJSON(data)
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml, or .json)", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// ResolveFile loads a configuration file and resolves it straight into
// validated engine Options.
func ResolveFile(path string) (Options, error) {
	c, err := FromFile(path)
	if err != nil {
		return Options{}, err
	}
	return Resolve(c)
}

// FromYAML parses a YAML document into a Config.
func FromYAML(data []byte) (Config, error) {
	m := make(map[string]any)
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses a JSON object into a Config.
func FromJSON(data []byte) (Config, error) {
	m := make(map[string]any)
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}
