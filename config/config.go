// Package config loads the zilc.yaml project file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// FileName is the project file searched for by FindConfig.
const FileName = "zilc.yaml"

// Config holds project-wide compiler settings. Source directives such as
// <VERSION> and <COMPILATION-FLAG> override or extend these values.
type Config struct {
	// Version is the target Z-machine version (3 to 8). Defaults to 3.
	Version int `yaml:"version,omitempty"`

	// Entry names the routine where execution starts. Defaults to GO.
	Entry string `yaml:"entry,omitempty"`

	Release int    `yaml:"release,omitempty"`
	Serial  string `yaml:"serial,omitempty"` // six digits, YYMMDD

	// IFID is the story's Treaty of Babel identifier. When empty it is
	// derived from the story name and serial.
	IFID string `yaml:"ifid,omitempty"`

	// Debug enables debug records in the output.
	Debug bool `yaml:"debug,omitempty"`

	// CleanStack makes routines pop values they push but do not use.
	CleanStack bool `yaml:"clean-stack,omitempty"`

	// CompactVocabulary uses two data bytes per dictionary entry and folds
	// synonyms onto their primary word.
	CompactVocabulary bool `yaml:"compact-vocabulary,omitempty"`

	// PreserveSpaces keeps the second space after a sentence.
	PreserveSpaces bool `yaml:"preserve-spaces,omitempty"`

	// TimeStatus shows the time instead of score and moves (v3 only).
	TimeStatus bool `yaml:"time-status,omitempty"`

	Sound    bool     `yaml:"sound,omitempty"`
	Language string   `yaml:"language,omitempty"`
	Charset  []string `yaml:"charset,omitempty"` // three alphabet rows, v5+

	// PinnedFlags receive the highest flag numbers, in the order given.
	PinnedFlags []string `yaml:"pinned-flags,omitempty"`

	// Flags are compilation flags tested by IFFLAG.
	Flags map[string]bool `yaml:"flags,omitempty"`

	// MaxErrors is the number of diagnostics printed. Defaults to 25.
	MaxErrors int `yaml:"max-errors,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// LoadConfig reads and parses a zilc.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses zilc.yaml content. The path is used only for error
// messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for zilc.yaml starting from dir and walking up to
// the filesystem root. It returns "" and no error if there is none.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if c.Version != 0 && (c.Version < 3 || c.Version > 8) {
		return fmt.Errorf("%s: version %d not supported (3 to 8)", path, c.Version)
	}
	if c.Serial != "" {
		if len(c.Serial) != 6 || strings.Trim(c.Serial, "0123456789") != "" {
			return fmt.Errorf("%s: serial %q must be six digits", path, c.Serial)
		}
	}
	if c.IFID != "" {
		if _, err := uuid.Parse(c.IFID); err != nil {
			return fmt.Errorf("%s: ifid: %w", path, err)
		}
	}
	if c.Release < 0 || c.Release > 0xffff {
		return fmt.Errorf("%s: release %d out of range", path, c.Release)
	}
	if len(c.Charset) != 0 {
		if len(c.Charset) != 3 {
			return fmt.Errorf("%s: charset needs 3 rows, got %d", path, len(c.Charset))
		}
		if c.Version != 0 && c.Version < 5 {
			return fmt.Errorf("%s: charset requires version 5 or later", path)
		}
	}
	seen := make(map[string]bool)
	for i, f := range c.PinnedFlags {
		if f == "" {
			return fmt.Errorf("%s: pinned-flags[%d]: empty name", path, i)
		}
		if seen[f] {
			return fmt.Errorf("%s: pinned-flags: %s listed twice", path, f)
		}
		seen[f] = true
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Version == 0 {
		c.Version = 3
	}
	if c.Entry == "" {
		c.Entry = "GO"
	}
	if c.MaxErrors == 0 {
		c.MaxErrors = 25
	}
	if c.Flags == nil {
		c.Flags = make(map[string]bool)
	}
	c.Entry = strings.ToUpper(c.Entry)
	for i, f := range c.PinnedFlags {
		c.PinnedFlags[i] = strings.ToUpper(f)
	}
}
