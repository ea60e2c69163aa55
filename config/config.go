// Package config holds the process-wide tunables for the heap-file storage
// manager: page geometry, buffer pool sizing, the data directory, and the
// buffer replacement policy.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReplacementPolicy selects which buffer frame the buffer manager evicts
// when every frame is in use and a new page must be pinned.
type ReplacementPolicy string

const (
	PolicyLRU ReplacementPolicy = "LRU"
	PolicyMRU ReplacementPolicy = "MRU"
)

// Config is the full set of tunables read from a config file or constructed
// with defaults via Default.
type Config struct {
	DataDir           string            `json:"dataDir" yaml:"dataDir"`
	PageSize          int               `json:"pageSize" yaml:"pageSize"`
	MaxFileCount      int               `json:"maxFileCount" yaml:"maxFileCount"`
	BufferFrames      int               `json:"bufferFrames" yaml:"bufferFrames"`
	ReplacementPolicy ReplacementPolicy `json:"replacementPolicy" yaml:"replacementPolicy"`
	LogLevel          string            `json:"logLevel" yaml:"logLevel"`
}

// Default returns a Config with reasonable defaults rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:           dataDir,
		PageSize:          4096,
		MaxFileCount:      8,
		BufferFrames:      32,
		ReplacementPolicy: PolicyLRU,
		LogLevel:          "info",
	}
}

// Load reads a config file, trying JSON first and falling back to YAML
// whenever the JSON decode fails or leaves dataDir empty. YAML is a superset
// of plain JSON, so a JSON file also goes through the YAML decoder in that
// case.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("config: empty config file")
	}

	var c Config
	if err := json.Unmarshal(data, &c); err == nil && c.DataDir != "" {
		c.applyDefaults()
		return &c, nil
	}

	c = Config{}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.DataDir == "" {
		return nil, errors.New("config: dataDir not set")
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.PageSize == 0 {
		c.PageSize = 4096
	}
	if c.MaxFileCount == 0 {
		c.MaxFileCount = 8
	}
	if c.BufferFrames == 0 {
		c.BufferFrames = 32
	}
	if c.ReplacementPolicy == "" {
		c.ReplacementPolicy = PolicyLRU
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
