// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/openchoreo/statepatch/internal/coerce"
)

func newShapeCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "shape SHAPE_FILE",
		Short: "Parse a shape declaration and print its resolved form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			shape, err := coerce.ParseDefinition(data)
			if err != nil {
				return err
			}
			return writeValue(cmd.OutOrStdout(), coerce.Describe(shape), output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (json, yaml)")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.loader.DumpYAML(cmd.OutOrStdout())
		},
	}
}
