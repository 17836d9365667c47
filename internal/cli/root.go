// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli implements steerctl, the operator-facing command line for
// discovering, composing, and applying steering vectors. Its layout
// mirrors the teacher's internal/cli package: a RootOpts struct carrying
// global flags, one file per subcommand, and an Execute entrypoint.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steeringkit/steeringkit/internal/cliconfig"
)

// RootOpts holds flags shared across every steerctl subcommand.
type RootOpts struct {
	VectorDir string
	Format    string
	Quiet     bool
	Verbose   bool
	Config    string
}

// JSONOut reports whether --format json was requested.
func (ro *RootOpts) JSONOut() bool {
	return strings.EqualFold(ro.Format, "json")
}

// Execute builds the root command and runs it against os.Args.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	ro := &RootOpts{}

	cmd := &cobra.Command{
		Use:           "steerctl",
		Short:         "Discover, compose, and apply LLM activation steering vectors",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&ro.VectorDir, "vector-dir", "", "Directory holding saved steering vectors (default: config file or ./vectors)")
	cmd.PersistentFlags().StringVar(&ro.Format, "format", "text", "Output format: text|json")
	cmd.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose diagnostic output")
	cmd.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (default: ~/.config/steeringkit.json)")

	cmd.AddCommand(newDiscoverCmd(ro))
	cmd.AddCommand(newVectorCmd(ro))
	cmd.AddCommand(newComposeCmd(ro))
	cmd.AddCommand(newServeCmd(ro))
	cmd.AddCommand(newVersionCmd(version))

	return cmd
}

// resolveVectorDir applies the "flag overrides config overrides default"
// precedence to the vector directory, matching the teacher's
// ApplyConfigToServer convention (now internal/cliconfig.Merge).
func resolveVectorDir(ro *RootOpts) (string, error) {
	if ro.Config != "" {
		if err := os.Setenv("STEERINGKIT_CONFIG", ro.Config); err != nil {
			return "", fmt.Errorf("set config path: %w", err)
		}
	}
	cfg, err := cliconfig.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	merged := cliconfig.Merge(cliconfig.Defaults(), *cfg)
	merged = cliconfig.Merge(merged, cliconfig.ConfigFile{VectorDir: ro.VectorDir})
	if merged.VectorDir == "" {
		merged.VectorDir = "./vectors"
	}
	return merged.VectorDir, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, matching
// the teacher's serve.go shutdown convention.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func printf(ro *RootOpts, format string, args ...any) {
	if ro.Quiet {
		return
	}
	fmt.Fprintf(os.Stdout, format, args...)
}

func verbosef(ro *RootOpts, format string, args ...any) {
	if !ro.Verbose {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}
