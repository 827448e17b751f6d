// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCoerceCmd(a *app) *cobra.Command {
	var (
		output string
		check  bool
	)

	cmd := &cobra.Command{
		Use:   "coerce DOCUMENT_FILE",
		Short: "Coerce a document into the configured shape",
		Long: "Coerce fills defaults, normalizes scalars and wraps or decodes containers so the " +
			"document matches the shape given with --shape. Values that cannot be brought into " +
			"shape are kept and reported on stderr.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coercer, err := a.coercer()
			if err != nil {
				return err
			}
			if coercer == nil {
				return errors.New("no shape configured: pass --shape or set schema.file")
			}

			doc, err := a.readDocument(args[0])
			if err != nil {
				return err
			}
			out, verr := coercer.Coerce(doc)
			logViolations(a, verr)

			if err := writeValue(cmd.OutOrStdout(), out, output); err != nil {
				return err
			}
			if check && verr != nil {
				return fmt.Errorf("document does not match the shape:\n%w", verr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	cmd.Flags().BoolVar(&check, "check", false, "exit non-zero when there are violations")
	return cmd
}
