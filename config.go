package browsermux

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/browsermux/internal/engine"
)

// BrowserType selects the engine behind a profile.
type BrowserType = engine.BrowserType

const (
	Chrome  BrowserType = engine.Chrome
	Firefox BrowserType = engine.Firefox
	Remote  BrowserType = engine.Remote
)

// LaunchConfig describes how a profile's engine is started or attached and
// how its tabs behave. See the field docs in the engine package; the zero
// value launches a headless local Chrome.
type LaunchConfig = engine.LaunchConfig

// ProfileConfig names one profile to create at startup.
type ProfileConfig struct {
	Name   string       `yaml:"name"`
	Launch LaunchConfig `yaml:"launch"`
}

// Config is the file form consumed by the browsermux command.
type Config struct {
	// JournalPath is the SQLite file for the event journal. Empty disables
	// journaling.
	JournalPath string `yaml:"journal_path"`

	// JournalKeepDays prunes journal events older than this many days at
	// startup. Zero keeps everything.
	JournalKeepDays int `yaml:"journal_keep_days"`

	Profiles []ProfileConfig `yaml:"profiles"`
}

// LoadConfigFile reads a YAML configuration file. Unknown fields are
// rejected so typos fail loudly instead of silently launching a default
// browser.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("browsermux: parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Profiles {
		c.Profiles[i].Launch = c.Profiles[i].Launch.WithDefaults()
	}
}
