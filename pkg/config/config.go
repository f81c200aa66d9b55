// Package config loads the YAML settings of a sagaflow deployment: the
// pizza pipeline's business rules and step policies, the worker pool and
// the result store backend.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/sagaflow/pkg/api"
)

// Store backends understood by Store.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Config is the root of a configuration file.
type Config struct {
	Pipeline Pipeline `yaml:"pipeline"`
	Worker   Worker   `yaml:"worker"`
	Store    Store    `yaml:"store"`
	Log      Log      `yaml:"log"`
}

// Pipeline holds the order pipeline's business rules and step policies.
type Pipeline struct {
	ServiceRadiusKm   int `yaml:"service_radius_km"`
	DiscountThreshold int `yaml:"discount_threshold"`
	Discount          int `yaml:"discount"`

	StepTimeout         time.Duration `yaml:"step_timeout"`
	CompensationTimeout time.Duration `yaml:"compensation_timeout"`

	Payment  Payment  `yaml:"payment"`
	Delivery Delivery `yaml:"delivery"`
}

// Payment configures the credit card step.
type Payment struct {
	Retry     Retry     `yaml:"retry"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
}

// Delivery configures the driver notification step.
type Delivery struct {
	Timeout   time.Duration `yaml:"timeout"`
	Rounds    int           `yaml:"rounds"`
	Pause     time.Duration `yaml:"pause"`
	Heartbeat Heartbeat     `yaml:"heartbeat"`
}

// Retry mirrors api.RetryPolicy.
type Retry struct {
	InitialInterval    time.Duration `yaml:"initial_interval"`
	BackoffCoefficient float64       `yaml:"backoff_coefficient"`
	MaxInterval        time.Duration `yaml:"max_interval"`
	MaxAttempts        int           `yaml:"max_attempts"`
	NonRetryableKinds  []string      `yaml:"non_retryable_kinds"`
}

// Heartbeat mirrors api.HeartbeatPolicy.
type Heartbeat struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Worker sizes the worker pool.
type Worker struct {
	Consumers     int `yaml:"consumers"`
	QueueCapacity int `yaml:"queue_capacity"`
}

// Store selects where finished run results are kept.
type Store struct {
	Backend string `yaml:"backend"`

	// DSN is the SQLite path or the Postgres connection string.
	DSN string `yaml:"dsn"`

	// Address is the Redis address or the Mongo URI.
	Address string `yaml:"address"`

	Prefix     string `yaml:"prefix"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the reference configuration: the pipeline values of the
// pizza order process, four consumers and an in-memory store.
func Default() Config {
	return Config{
		Pipeline: Pipeline{
			ServiceRadiusKm:     25,
			DiscountThreshold:   3000,
			Discount:            500,
			StepTimeout:         5 * time.Second,
			CompensationTimeout: 5 * time.Second,
			Payment: Payment{
				Retry: Retry{
					InitialInterval:    15 * time.Second,
					BackoffCoefficient: 2.0,
					MaxInterval:        160 * time.Second,
					MaxAttempts:        100,
					NonRetryableKinds:  []string{string(api.KindCreditCardProcessingError)},
				},
				Heartbeat: Heartbeat{Timeout: 10 * time.Second},
			},
			Delivery: Delivery{
				Timeout:   5 * time.Minute,
				Rounds:    10,
				Pause:     time.Second,
				Heartbeat: Heartbeat{Interval: time.Second, Timeout: 10 * time.Second},
			},
		},
		Worker: Worker{
			Consumers:     4,
			QueueCapacity: 1024,
		},
		Store: Store{Backend: BackendMemory},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// Load reads and validates the file at path. Keys missing from the file
// keep their Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	p := c.Pipeline
	if p.ServiceRadiusKm <= 0 {
		return errors.New("pipeline.service_radius_km must be positive")
	}
	if p.DiscountThreshold < 0 || p.Discount < 0 {
		return errors.New("pipeline discount settings must not be negative")
	}
	if p.StepTimeout < 0 || p.CompensationTimeout < 0 || p.Delivery.Timeout < 0 {
		return errors.New("pipeline timeouts must not be negative")
	}
	if err := p.Payment.Retry.Policy().Validate(); err != nil {
		return fmt.Errorf("pipeline.payment.retry: %w", err)
	}
	for _, k := range p.Payment.Retry.NonRetryableKinds {
		if !knownKind(api.ErrorKind(k)) {
			return fmt.Errorf("pipeline.payment.retry: unknown error kind %q", k)
		}
	}
	if p.Payment.Heartbeat.Timeout <= 0 || p.Delivery.Heartbeat.Timeout <= 0 {
		return errors.New("pipeline heartbeat timeouts must be positive")
	}
	if p.Delivery.Rounds <= 0 {
		return errors.New("pipeline.delivery.rounds must be positive")
	}
	if p.Delivery.Pause < 0 {
		return errors.New("pipeline.delivery.pause must not be negative")
	}
	// The delivery step beats once per round.
	if p.Delivery.Pause >= p.Delivery.Heartbeat.Timeout {
		return fmt.Errorf("pipeline.delivery.pause (%s) must be shorter than pipeline.delivery.heartbeat.timeout (%s)",
			p.Delivery.Pause, p.Delivery.Heartbeat.Timeout)
	}

	if c.Worker.Consumers <= 0 {
		return errors.New("worker.consumers must be positive")
	}
	if c.Worker.QueueCapacity < 0 {
		return errors.New("worker.queue_capacity must not be negative")
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Validate checks that the backend has what it needs to connect.
func (s Store) Validate() error {
	switch s.Backend {
	case BackendMemory:
		return nil
	case BackendSQLite, BackendPostgres:
		if s.DSN == "" {
			return fmt.Errorf("store.dsn is required for backend %s", s.Backend)
		}
		return nil
	case BackendRedis, BackendMongo:
		if s.Address == "" {
			return fmt.Errorf("store.address is required for backend %s", s.Backend)
		}
		return nil
	default:
		return fmt.Errorf("store.backend: unknown backend %q", s.Backend)
	}
}

// Policy converts the retry settings.
func (r Retry) Policy() api.RetryPolicy {
	kinds := make([]api.ErrorKind, 0, len(r.NonRetryableKinds))
	for _, k := range r.NonRetryableKinds {
		kinds = append(kinds, api.ErrorKind(k))
	}
	return api.RetryPolicy{
		InitialInterval:        r.InitialInterval,
		BackoffCoefficient:     r.BackoffCoefficient,
		MaxInterval:            r.MaxInterval,
		MaxAttempts:            r.MaxAttempts,
		NonRetryableErrorKinds: kinds,
	}
}

// Policy converts the heartbeat settings.
func (h Heartbeat) Policy() api.HeartbeatPolicy {
	return api.HeartbeatPolicy{Interval: h.Interval, Timeout: h.Timeout}
}

// SlogLevel parses Level; an empty level means info.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the process logger writing to w.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := l.SlogLevel()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func knownKind(k api.ErrorKind) bool {
	switch k {
	case api.KindOutOfServiceArea, api.KindInvalidChargeAmount, api.KindCreditCardProcessingError,
		api.KindStalled, api.KindTimeout, api.KindCanceled, api.KindUnknown:
		return true
	default:
		return false
	}
}
