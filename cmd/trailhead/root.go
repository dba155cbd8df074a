// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Trailhead CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trailhead",
		Short: "Trailhead - learning trails platform",
		Long: `Trailhead serves the learning trails API: authentication with
password reset, role and platform gated user management, and the trail
catalog.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
