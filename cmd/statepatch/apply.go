// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openchoreo/statepatch/internal/coerce"
	"github.com/openchoreo/statepatch/internal/patch"
)

func newApplyCmd(a *app) *cobra.Command {
	var (
		docPath string
		output  string
		failOn  bool
	)

	cmd := &cobra.Command{
		Use:   "apply COMMANDS_FILE",
		Short: "Apply a command file to a document and print the result",
		Long: "Apply reads a JSON or YAML list of commands and applies them in order to the " +
			"document given with --doc (an empty document when omitted). Failed commands are " +
			"reported on stderr and do not stop the others. When a shape is configured the " +
			"result is coerced before it is printed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc any = map[string]any{}
			if docPath != "" {
				var err error
				if doc, err = a.readDocument(docPath); err != nil {
					return err
				}
			}

			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			ops, skipped, err := patch.ParseOperations(data)
			if err != nil {
				return err
			}

			result := a.runner().Run(doc, ops)
			result.Skipped = skipped
			for _, f := range result.Failures {
				a.logger.Warn("Command failed", "index", f.Index, "op", f.Op, "path", f.Path, "reason", f.Reason)
			}
			a.logger.Info("Batch applied",
				"applied", result.Applied,
				"failed", result.Failed,
				"skipped", result.Skipped,
				"committed", result.Committed,
			)

			out := doc
			if result.Committed {
				out = result.Document
			}
			coercer, err := a.coercer()
			if err != nil {
				return err
			}
			if coercer != nil {
				var verr error
				out, verr = coercer.Coerce(out)
				logViolations(a, verr)
			}

			if err := writeValue(cmd.OutOrStdout(), out, output); err != nil {
				return err
			}
			if failOn && result.Failed > 0 {
				return fmt.Errorf("%d of %d commands failed", result.Failed, len(ops))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&docPath, "doc", "d", "", "document file (JSON or YAML, '-' for stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	cmd.Flags().BoolVar(&failOn, "fail-on-error", false, "exit non-zero when any command failed")
	return cmd
}

func logViolations(a *app, err error) {
	var violations coerce.Violations
	if !errors.As(err, &violations) {
		return
	}
	for _, v := range violations {
		a.logger.Warn("Shape violation", "path", v.Path, "reason", v.Message)
	}
}
