// Package config loads provgraph configuration from YAML or CUE files.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
	BackendFS     = "fs"
)

// Canonicalization forms.
const (
	FormRDFC = "rdfc"
	FormJCS  = "jcs"
)

var (
	attributeBackends = []string{BackendSQLite, BackendBadger}
	blobBackends      = []string{BackendMemory, BackendFS, BackendBadger}
	forms             = []string{FormRDFC, FormJCS}
	levels            = []string{"debug", "info", "warn", "error"}
	logFormats        = []string{"text", "json"}
)

// Config is the provgraph configuration.
type Config struct {
	// GraphDB is the SQLite file of the graph store.
	GraphDB string `yaml:"graph_db" json:"graph_db"`

	Attributes Storage `yaml:"attributes" json:"attributes"`
	Blobs      Storage `yaml:"blobs" json:"blobs"`

	// Canonicalization selects how statement identifiers are computed.
	Canonicalization string `yaml:"canonicalization" json:"canonicalization"`

	// Contexts maps JSON-LD context URIs to local files. These override the
	// built-in contexts.
	Contexts map[string]string `yaml:"contexts" json:"contexts"`

	Log     Log     `yaml:"log" json:"log"`
	Metrics Metrics `yaml:"metrics" json:"metrics"`
}

// Storage selects a backend and where it keeps its data.
type Storage struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// Log configures the default slog handler.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Metrics toggles the Prometheus collector.
type Metrics struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		GraphDB:          "provgraph.db",
		Attributes:       Storage{Backend: BackendSQLite, Path: "attributes.db"},
		Blobs:            Storage{Backend: BackendFS, Path: "blobs"},
		Canonicalization: FormRDFC,
		Log:              Log{Level: "info", Format: "text"},
	}
}

// Load reads the configuration at path. The format is chosen by extension:
// .yaml and .yml are YAML, .cue is CUE. A missing file yields Default.
// Relative paths inside the file are resolved against its directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg *Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	case ".cue":
		cfg, err = ParseCUE(data, path)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// ParseYAML decodes a YAML configuration. Unknown fields are rejected.
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return finish(&cfg)
}

// ParseCUE decodes a CUE configuration after unifying it with the embedded
// schema.
func ParseCUE(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse CUE: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.GraphDB == "" {
		c.GraphDB = def.GraphDB
	}
	if c.Attributes.Backend == "" {
		c.Attributes.Backend = def.Attributes.Backend
	}
	if c.Attributes.Path == "" {
		c.Attributes.Path = def.Attributes.Path
	}
	if c.Blobs.Backend == "" {
		c.Blobs.Backend = def.Blobs.Backend
	}
	if c.Blobs.Path == "" && c.Blobs.Backend != BackendMemory {
		c.Blobs.Path = def.Blobs.Path
	}
	if c.Canonicalization == "" {
		c.Canonicalization = def.Canonicalization
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.GraphDB = abs(c.GraphDB)
	c.Attributes.Path = abs(c.Attributes.Path)
	c.Blobs.Path = abs(c.Blobs.Path)
	for uri, file := range c.Contexts {
		c.Contexts[uri] = abs(file)
	}
}

// Validate rejects unknown backends, forms and log settings.
func (c *Config) Validate() error {
	var problems []error
	check := func(field, value string, allowed []string) {
		if !slices.Contains(allowed, value) {
			problems = append(problems, fmt.Errorf("%s: %q is not one of %v", field, value, allowed))
		}
	}
	check("attributes.backend", c.Attributes.Backend, attributeBackends)
	check("blobs.backend", c.Blobs.Backend, blobBackends)
	check("canonicalization", c.Canonicalization, forms)
	check("log.level", c.Log.Level, levels)
	check("log.format", c.Log.Format, logFormats)
	if c.GraphDB == "" {
		problems = append(problems, errors.New("graph_db is required"))
	}
	return errors.Join(problems...)
}

// LogLevel returns the slog level named by Log.Level.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
