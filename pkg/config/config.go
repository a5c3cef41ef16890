// Package config loads the ce2ocf configuration from a YAML file and the
// CE2OCF_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	natsconn "github.com/wehubfusion/ce2ocf/internal/nats"
	"github.com/wehubfusion/ce2ocf/internal/tracing"
	"github.com/wehubfusion/ce2ocf/pkg/concurrency"
	"github.com/wehubfusion/ce2ocf/pkg/datamap"
	"github.com/wehubfusion/ce2ocf/pkg/ocf"
	"github.com/wehubfusion/ce2ocf/pkg/postprocess"
)

// ServiceName identifies ce2ocf in traces and NATS connection names.
const ServiceName = "ce2ocf"

// Config is the full ce2ocf configuration.
type Config struct {
	LogLevel string                     `yaml:"log_level"`
	Pipeline PipelineConfig             `yaml:"pipeline"`
	Datamaps map[string]string          `yaml:"datamaps,omitempty"`
	Scripts  []postprocess.ScriptConfig `yaml:"scripts,omitempty"`
	NATS     NATSConfig                 `yaml:"nats"`
	Storage  StorageConfig              `yaml:"storage"`
	Tracing  tracing.Config             `yaml:"tracing"`
	Sentry   SentryConfig               `yaml:"sentry"`
}

// PipelineConfig controls translation.
type PipelineConfig struct {
	// Policy is omit, null or abort
	Policy datamap.MissingPolicy `yaml:"policy"`

	Currency string   `yaml:"currency"`
	Comments []string `yaml:"comments,omitempty"`

	// Parallelism bounds how many documents are parsed at once; 1 is sequential
	Parallelism int `yaml:"parallelism"`

	// MaxRepeatCount caps repeated blocks such as the stakeholder list
	MaxRepeatCount int `yaml:"max_repeat_count"`

	// Validate checks generated files against the OCF schemas
	Validate bool `yaml:"validate"`
}

// NATSConfig configures the conversion service.
type NATSConfig struct {
	URL      string        `yaml:"url"`
	Subject  string        `yaml:"subject"`
	Queue    string        `yaml:"queue"`
	Workers  int           `yaml:"workers"`
	Timeout  time.Duration `yaml:"timeout"`
	Token    string        `yaml:"token,omitempty"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
}

// StorageConfig configures archive uploads. Uploads are disabled when
// ConnectionString is empty.
type StorageConfig struct {
	ConnectionString string `yaml:"connection_string,omitempty"`
	Container        string `yaml:"container"`
}

// Enabled reports whether an archive store is configured
func (s StorageConfig) Enabled() bool {
	return s.ConnectionString != ""
}

// SentryConfig configures error reporting. Reporting is disabled when DSN is empty.
type SentryConfig struct {
	DSN         string  `yaml:"dsn,omitempty"`
	Environment string  `yaml:"environment,omitempty"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			Policy:         datamap.PolicyOmit,
			Currency:       ocf.DefaultCurrency,
			MaxRepeatCount: datamap.DefaultMaxRepeatCount,
			Validate:       true,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "ce2ocf.convert",
			Queue:   "ce2ocf",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{Container: "ocf-packages"},
		Tracing: tracing.DefaultConfig(ServiceName),
		Sentry:  SentryConfig{SampleRate: 1.0},
	}
}

// Load reads the YAML file at path over the defaults, then applies the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without reading the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyEnv overlays CE2OCF_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}

	str("CE2OCF_LOG_LEVEL", &c.LogLevel)
	str("CE2OCF_CURRENCY", &c.Pipeline.Currency)
	str("CE2OCF_NATS_URL", &c.NATS.URL)
	str("CE2OCF_NATS_SUBJECT", &c.NATS.Subject)
	str("CE2OCF_NATS_QUEUE", &c.NATS.Queue)
	str("CE2OCF_NATS_TOKEN", &c.NATS.Token)
	str("CE2OCF_STORAGE_CONNECTION_STRING", &c.Storage.ConnectionString)
	str("CE2OCF_STORAGE_CONTAINER", &c.Storage.Container)
	str("CE2OCF_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
	str("CE2OCF_ENVIRONMENT", &c.Tracing.Environment)
	str("CE2OCF_SENTRY_DSN", &c.Sentry.DSN)

	if err := integer(concurrency.EnvWorkers, &c.NATS.Workers); err != nil {
		return err
	}
	if err := integer(concurrency.EnvParallelism, &c.Pipeline.Parallelism); err != nil {
		return err
	}

	if v, ok := lookup("CE2OCF_POLICY"); ok && v != "" {
		if err := c.Pipeline.Policy.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("CE2OCF_POLICY: %w", err)
		}
	}
	if v, ok := lookup("CE2OCF_NATS_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CE2OCF_NATS_TIMEOUT: %w", err)
		}
		c.NATS.Timeout = d
	}
	if v, ok := lookup("CE2OCF_TRACING_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CE2OCF_TRACING_ENABLED: %w", err)
		}
		c.Tracing.Enabled = enabled
	}
	return nil
}

// ApplyDefaults fills zero values. Worker counts come from concurrency.LoadConfig.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Pipeline.Currency == "" {
		c.Pipeline.Currency = ocf.DefaultCurrency
	}
	if c.NATS.Workers == 0 || c.Pipeline.Parallelism == 0 {
		detected := concurrency.LoadConfig()
		if c.NATS.Workers == 0 {
			c.NATS.Workers = detected.Workers
		}
		if c.Pipeline.Parallelism == 0 {
			c.Pipeline.Parallelism = detected.Parallelism
		}
	}
	if c.NATS.Timeout == 0 {
		c.NATS.Timeout = 30 * time.Second
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = ServiceName
	}
	for i := range c.Scripts {
		c.Scripts[i].ApplyDefaults()
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	if c.Pipeline.Parallelism < 1 {
		return fmt.Errorf("pipeline parallelism must be at least 1")
	}
	if c.Pipeline.MaxRepeatCount < 0 {
		return fmt.Errorf("pipeline max_repeat_count must not be negative")
	}
	if c.NATS.Workers < 1 {
		return fmt.Errorf("nats workers must be at least 1")
	}
	if c.NATS.Timeout <= 0 {
		return fmt.Errorf("nats timeout must be positive")
	}
	if c.Sentry.SampleRate < 0 || c.Sentry.SampleRate > 1 {
		return fmt.Errorf("sentry sample rate must be between 0 and 1")
	}
	if c.Storage.Enabled() && c.Storage.Container == "" {
		return fmt.Errorf("storage container is required")
	}
	for name := range c.Datamaps {
		if !knownDocument(name) {
			return fmt.Errorf("unknown document %q in datamaps", name)
		}
	}
	for i, s := range c.Scripts {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("script %d: %w", i, err)
		}
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

func knownDocument(name string) bool {
	for _, doc := range ocf.Documents {
		if string(doc) == name {
			return true
		}
	}
	return false
}

// PipelineOptions compiles the scripts and datamap paths into translation
// options.
func (c *Config) PipelineOptions() (ocf.PipelineOptions, error) {
	opts := ocf.PipelineOptions{
		Currency:       c.Pipeline.Currency,
		Policy:         c.Pipeline.Policy,
		MaxRepeatCount: c.Pipeline.MaxRepeatCount,
	}

	if len(c.Scripts) > 0 {
		scripts, err := postprocess.CompileScripts(c.Scripts)
		if err != nil {
			return ocf.PipelineOptions{}, err
		}
		opts.PostProcessors = datamap.NewRegistry()
		postprocess.RegisterScripts(opts.PostProcessors, scripts)
	}

	if len(c.Datamaps) > 0 {
		opts.Documents = make(map[ocf.Document]ocf.DocumentOptions, len(c.Datamaps))
		for name, path := range c.Datamaps {
			opts.Documents[ocf.Document(name)] = ocf.DocumentOptions{Datamap: path}
		}
	}
	return opts, nil
}

// ConnectionConfig returns the NATS connection settings
func (c *Config) ConnectionConfig() *natsconn.ConnectionConfig {
	conn := natsconn.DefaultConnectionConfig(c.NATS.URL)
	conn.Name = ServiceName
	conn.Token = c.NATS.Token
	conn.Username = c.NATS.Username
	conn.Password = c.NATS.Password
	return conn
}
