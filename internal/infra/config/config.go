// Package config loads the queue's persistent SDK options from YAML (spec
// section 6, recognized keys apiKey/flushInterval/flushQueueSize/useBatch/
// optOut/flushEventsOnClose), plus the storage, persister, and telemetry
// wiring knobs the expanded domain needs but the distilled key list omits.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageBackend selects the MessageStorage implementation.
type StorageBackend string

const (
	StorageSQLite StorageBackend = "sqlite"
	StorageMemory StorageBackend = "memory"
)

// PersisterBackend selects the JobPersister implementation.
type PersisterBackend string

const (
	PersisterMemory   PersisterBackend = "memory"
	PersisterPostgres PersisterBackend = "postgres"
)

// StorageConfig configures the MessageStorage backend.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`
	// Dir is the documents directory the SQLite file is created under, as
	// <dir>/<queueName>.db. Falls back to os.TempDir() when empty.
	Dir string `yaml:"dir"`
}

// PersisterConfig configures the JobPersister backend.
type PersisterConfig struct {
	Backend PersisterBackend `yaml:"backend"`
	// DSN is the Postgres connection string, required when Backend is
	// PersisterPostgres.
	DSN string `yaml:"dsn"`
}

// TelemetryConfig configures the OTLP metrics exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Config is the queue SDK's full persistent option set.
type Config struct {
	// APIKey authenticates delivery requests via X-API-Key.
	APIKey string `yaml:"apiKey"`
	// ServerURL is the delivery endpoint base, POSTed to at "/batch".
	ServerURL string `yaml:"serverUrl"`
	// FlushInterval is the default batch timer window, in seconds.
	FlushInterval float64 `yaml:"flushInterval"`
	// FlushQueueSize is the default max_count for count-triggered batching.
	FlushQueueSize int `yaml:"flushQueueSize"`
	// UseBatch forces immediate per-message delivery when false.
	UseBatch *bool `yaml:"useBatch"`
	// OptOut drops all emit calls silently when true.
	OptOut bool `yaml:"optOut"`
	// FlushEventsOnClose triggers a final drain on process shutdown.
	FlushEventsOnClose bool `yaml:"flushEventsOnClose"`

	QueueName string          `yaml:"queueName"`
	Storage   StorageConfig   `yaml:"storage"`
	Persister PersisterConfig `yaml:"persister"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

const defaultServerURL = "https://cdp-api.revflow.dev"
const defaultQueueName = "default"

// Default returns the base configuration Load layers a YAML file over:
// batching enabled, SQLite message storage, in-memory job persistence, no
// telemetry export.
func Default() Config {
	useBatch := true
	return Config{
		ServerURL:      defaultServerURL,
		FlushQueueSize: 0,
		UseBatch:       &useBatch,
		QueueName:      defaultQueueName,
		Storage:        StorageConfig{Backend: StorageSQLite},
		Persister:      PersisterConfig{Backend: PersisterMemory},
	}
}

// BatchingEnabled reports whether the resolved UseBatch flag calls for
// count/time batching rather than immediate per-message delivery.
func (c Config) BatchingEnabled() bool {
	return c.UseBatch == nil || *c.UseBatch
}

// FlushIntervalDuration converts FlushInterval seconds to a time.Duration.
func (c Config) FlushIntervalDuration() time.Duration {
	if c.FlushInterval <= 0 {
		return 0
	}
	return time.Duration(c.FlushInterval * float64(time.Second))
}

// Load reads and validates a Config from the YAML file at path, layering
// it over Default() so a partial file only overrides what it sets.
func Load(path string) (Config, error) {
	cfg := Default()

	reader, closer, err := openConfigFile(path)
	if err != nil {
		return Config{}, err
	}
	defer closer()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if c.ServerURL == "" {
		c.ServerURL = defaultServerURL
	}
	c.QueueName = strings.TrimSpace(c.QueueName)
	if c.QueueName == "" {
		c.QueueName = defaultQueueName
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageSQLite
	}
	if c.Persister.Backend == "" {
		c.Persister.Backend = PersisterMemory
	}
}

// Validate reports configuration errors that would otherwise surface as
// confusing failures deep inside storage or delivery construction.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("config: apiKey is required")
	}
	if c.Persister.Backend == PersisterPostgres && c.Persister.DSN == "" {
		return fmt.Errorf("config: persister.dsn is required when persister.backend is postgres")
	}
	if c.Storage.Backend != StorageSQLite && c.Storage.Backend != StorageMemory {
		return fmt.Errorf("config: unrecognized storage.backend %q", c.Storage.Backend)
	}
	if c.Persister.Backend != PersisterMemory && c.Persister.Backend != PersisterPostgres {
		return fmt.Errorf("config: unrecognized persister.backend %q", c.Persister.Backend)
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := filepath.Clean(strings.TrimSpace(path))
	file, err := os.Open(candidate)
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
