// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/openchoreo/statepatch/internal/batch"
	"github.com/openchoreo/statepatch/internal/coerce"
	"github.com/openchoreo/statepatch/internal/config"
	"github.com/openchoreo/statepatch/internal/logging"
	"github.com/openchoreo/statepatch/internal/patch"
)

// version is set at build time.
var version = "dev"

// flagMappings maps persistent flags to configuration keys.
var flagMappings = map[string]string{
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"strict":        "engine.strict",
	"filters":       "engine.filters",
	"shape":         "schema.file",
	"lenient-lists": "schema.lenient_lists",
	"state":         "state.file",
}

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath string
	overrides  []string

	loader *config.Loader
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "statepatch",
		Short: "Apply path-addressed edit commands to JSON documents",
		Long: "statepatch applies batches of add, remove, replace, delta, move, copy and test " +
			"commands to a document, creating missing containers on the way, and coerces the " +
			"result into a declared shape.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a YAML configuration file")
	flags.StringArrayVar(&a.overrides, "set", nil, "override a configuration key (key=value), repeatable")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, text)")
	flags.Bool("strict", false, "report missing parents and type mismatches as failures")
	flags.Bool("filters", false, "enable [?(@.field=='value')] selectors in paths")
	flags.String("shape", "", "shape declaration file documents are coerced to")
	flags.Bool("lenient-lists", false, "accept list elements of any kind")
	flags.String("state", "", "initial document file")

	rootCmd.AddCommand(
		newApplyCmd(a),
		newCoerceCmd(a),
		newRunCmd(a),
		newServeCmd(a),
		newShapeCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

// load resolves configuration: defaults, config file, environment, --set
// overrides and finally explicitly set flags.
func (a *app) load(cmd *cobra.Command) error {
	bootstrap := logging.NewWithWriter(a.errOut, logging.Config{Level: "info"})

	loader := config.NewLoader(config.EnvPrefix, config.WithLogger(bootstrap))
	if err := loader.LoadWithDefaults(config.Defaults(), a.configPath); err != nil {
		return err
	}
	if err := loader.LoadOverrides(a.overrides); err != nil {
		return err
	}
	if err := loader.LoadFlags(cmd.Flags(), flagMappings); err != nil {
		return err
	}

	var cfg config.Config
	if err := loader.UnmarshalAndValidate("", &cfg); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	a.loader = loader
	a.cfg = &cfg
	a.logger = logging.NewWithWriter(a.errOut, cfg.LoggingOptions())
	return nil
}

func (a *app) engine() *patch.Engine {
	return patch.NewEngine(patch.Options{
		Strict:  a.cfg.Engine.Strict,
		Filters: a.cfg.Engine.Filters,
	})
}

func (a *app) runner() *batch.Runner {
	return batch.NewRunner(a.engine(), a.logger.With("component", "batch"))
}

// coercer returns nil when no shape file is configured.
func (a *app) coercer() (*coerce.Coercer, error) {
	if a.cfg.Schema.File == "" {
		return nil, nil
	}
	shape, err := coerce.LoadDefinition(a.cfg.Schema.File)
	if err != nil {
		return nil, err
	}
	return coerce.New(shape, coerce.Options{LenientLists: a.cfg.Schema.LenientLists}), nil
}

// readInput reads a file, or the command's input when path is "-".
func (a *app) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.in)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// readDocument parses a JSON or YAML document.
func (a *app) readDocument(path string) (any, error) {
	data, err := a.readInput(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// writeValue prints v as JSON or YAML.
func writeValue(w io.Writer, v any, format string) error {
	switch strings.ToLower(format) {
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q (supported: json, yaml)", format)
	}
}
