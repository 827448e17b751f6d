// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openchoreo/statepatch/internal/logging"
)

// EnvPrefix is the prefix of statepatch environment variables.
const EnvPrefix = "STATEPATCH"

// Config is the statepatch configuration.
type Config struct {
	Logging LoggingConfig `koanf:"logging"`
	Engine  EngineConfig  `koanf:"engine"`
	Schema  SchemaConfig  `koanf:"schema"`
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	State   StateConfig   `koanf:"state"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `koanf:"level" validate:"required"`
	// Format is the log output format (json, text).
	Format string `koanf:"format" validate:"required"`
	// AddSource includes source file and line number in log entries.
	AddSource bool `koanf:"add_source"`
}

// EngineConfig defines how commands are applied.
type EngineConfig struct {
	// Strict reports missing parents, missing targets and type mismatches
	// as command failures instead of ignoring them.
	Strict bool `koanf:"strict"`
	// Filters enables [?(@.field=='value')] selectors in command paths.
	Filters bool `koanf:"filters"`
}

// SchemaConfig defines the shape committed documents are coerced to.
type SchemaConfig struct {
	// File is a YAML shape declaration. Empty disables coercion.
	File string `koanf:"file" validate:"omitempty,file"`
	// LenientLists accepts list elements of any kind for every list.
	LenientLists bool `koanf:"lenient_lists"`
}

// ServerConfig defines the serve command's HTTP server.
type ServerConfig struct {
	Address           string        `koanf:"address" validate:"required,hostname_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
}

// StoreConfig defines snapshot persistence.
type StoreConfig struct {
	Enabled bool `koanf:"enabled"`
	// Path is the SQLite database file.
	Path string `koanf:"path" validate:"required_if=Enabled true"`
	// History is the number of snapshots kept.
	History int `koanf:"history"`
}

// StateConfig defines where the initial document comes from.
type StateConfig struct {
	// File is a JSON or YAML document. When empty the latest stored snapshot
	// is used, or an empty document.
	File string `koanf:"file" validate:"omitempty,file"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Address:           ":8080",
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			HeartbeatInterval: 30 * time.Second,
		},
		Store: StoreConfig{
			Path:    "statepatch.db",
			History: 100,
		},
	}
}

// Load reads the configuration from defaults, the optional YAML file at
// configPath and STATEPATCH__ environment variables, then validates it.
func Load(configPath string, opts ...Option) (*Loader, *Config, error) {
	loader := NewLoader(EnvPrefix, opts...)
	if err := loader.LoadWithDefaults(Defaults(), configPath); err != nil {
		return nil, nil, err
	}
	var cfg Config
	if err := loader.UnmarshalAndValidate("", &cfg); err != nil {
		return nil, nil, err
	}
	return loader, &cfg, nil
}

// LoggingOptions converts the logging section for the logging package.
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.AddSource,
	}
}

var validate = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report koanf keys instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags first, then the rules tags cannot express.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, fromValidator(fe))
		}
	}

	logPath := NewPath("logging")
	if c.Logging.Level != "" {
		errs = appendIf(errs, MustBeOneOf(logPath.Child("level"), strings.ToLower(c.Logging.Level), logging.ValidLevels))
	}
	if c.Logging.Format != "" {
		errs = appendIf(errs, MustBeOneOf(logPath.Child("format"), strings.ToLower(c.Logging.Format), logging.ValidFormats))
	}

	server := NewPath("server")
	errs = appendIf(errs, MustBeNonNegative(server.Child("read_timeout"), c.Server.ReadTimeout))
	errs = appendIf(errs, MustBeNonNegative(server.Child("write_timeout"), c.Server.WriteTimeout))
	errs = appendIf(errs, MustBeGreaterThan(server.Child("shutdown_timeout"), c.Server.ShutdownTimeout, 0))
	errs = appendIf(errs, MustBeGreaterThan(server.Child("heartbeat_interval"), c.Server.HeartbeatInterval, 0))

	if c.Store.Enabled {
		errs = appendIf(errs, MustBeInRange(NewPath("store").Child("history"), c.Store.History, 1, 100000))
	}

	return errs.OrNil()
}

func fromValidator(fe validator.FieldError) *FieldError {
	// Namespace is "Config.section.key"; drop the type name.
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	path := &Path{segments: strings.Split(field, ".")}
	switch fe.Tag() {
	case "required", "required_if":
		return Required(path)
	case "file":
		return Invalid(path, "must be an existing file")
	case "hostname_port":
		return Invalid(path, "must be host:port")
	default:
		return Invalid(path, "failed "+fe.Tag()+" validation")
	}
}

func appendIf(errs ValidationErrors, err *FieldError) ValidationErrors {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
