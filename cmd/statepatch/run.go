// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/openchoreo/statepatch/internal/host"
)

func newRunCmd(a *app) *cobra.Command {
	var final bool

	cmd := &cobra.Command{
		Use:   "run [BATCH_FILE]",
		Short: "Apply a stream of JSON line batches",
		Long: "Run reads one batch per line from BATCH_FILE, or stdin when omitted or '-', and " +
			"applies each against the committed document. Every outcome is written to stdout " +
			"as a JSON line.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			var in io.Reader = a.in
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}

			ctx := cmd.Context()
			deps, err := a.newService(ctx,
				host.NewWriterSink(cmd.OutOrStdout()),
				host.NewLogSink(a.logger),
			)
			if err != nil {
				return err
			}
			defer func() {
				retErr = errors.Join(retErr, deps.Close())
			}()

			source := host.NewJSONLSource(in, a.logger)
			if err := source.Run(ctx, deps.service); err != nil {
				return err
			}
			if final {
				return writeValue(cmd.OutOrStdout(), deps.service.State(), "json")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&final, "final", false, "print the committed document after the last batch")
	return cmd
}
