// Package config loads partition configuration.
//
// A partition is configured by one YAML file. The file is checked against an
// embedded CUE schema before it is decoded, so typos in keys and malformed
// grants are rejected at startup rather than at first use. The resulting
// *Config is passed explicitly to every component that needs it.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dhtrecords/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Defaults applied by Load and Parse.
const (
	DefaultListen      = "127.0.0.1:7400"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultCallTimeout = 10 * time.Second
)

// Config is the configuration of one partition node.
type Config struct {
	// Partition is this node's partition name; it is also the grantor name
	// on every grant the node issues.
	Partition string `yaml:"partition"`

	// DataDir holds the partition database, <data_dir>/<partition>.db.
	DataDir string `yaml:"data_dir"`

	Listen      string `yaml:"listen"`
	MetricsAddr string `yaml:"metrics_addr"`

	Log Log `yaml:"log"`

	// Modules maps a role, such as "resource_index", to the module name
	// that serves it in this partition.
	Modules map[string]string `yaml:"modules"`

	// Peers maps partition names to gRPC addresses.
	Peers map[string]string `yaml:"peers"`

	Claims []ir.Claim `yaml:"claims"`
	Grants []Grant    `yaml:"grants"`

	RateLimit   RateLimit     `yaml:"rate_limit"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Grant is a capability the node issues at startup. An empty Secret is
// generated on first start.
type Grant struct {
	ID        string   `yaml:"id"`
	Secret    string   `yaml:"secret"`
	Functions []string `yaml:"functions"`
}

// RateLimit bounds outbound calls per target partition. Zero PerSecond means
// unlimited.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Accessor selects a module name out of a Config.
type Accessor func(*Config) string

// ModuleFor returns an Accessor for the module serving role.
func ModuleFor(role string) Accessor {
	return func(c *Config) string { return c.Module(role) }
}

// Module returns the module name configured for role, or "".
func (c *Config) Module(role string) string {
	if c == nil {
		return ""
	}
	return c.Modules[role]
}

// StorePath returns the partition database path.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, c.Partition+".db")
}

// Load reads, validates and decodes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes YAML configuration.
func Parse(data []byte) (*Config, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks YAML configuration against the embedded schema.
func Validate(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("config is empty")
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = int(c.RateLimit.PerSecond)
		if c.RateLimit.Burst < 1 {
			c.RateLimit.Burst = 1
		}
	}
}
