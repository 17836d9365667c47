// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steeringkit/steeringkit/internal/server"
)

func newServeCmd(ro *RootOpts) *cobra.Command {
	var (
		addr string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the steering job server (REST + WebSocket progress streaming)",
		Long: `Start an HTTP server that provides:
  - REST API for submitting discovery jobs against a recorded activation dump
  - WebSocket progress streaming for running jobs
  - A vector directory browser

Examples:
  steerctl serve                      # Start on port 8080
  steerctl serve --port 3000          # Custom port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			vectorDir, err := resolveVectorDir(ro)
			if err != nil {
				return err
			}

			cfg := server.Config{
				Addr:      addr,
				Port:      port,
				VectorDir: vectorDir,
			}
			srv := server.New(cfg)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			fmt.Println()
			fmt.Println("╭────────────────────────────────────────────────────────────╮")
			fmt.Println("│                     steeringkit                            │")
			fmt.Println("│                  Job Server Mode                            │")
			fmt.Println("╰────────────────────────────────────────────────────────────╯")
			fmt.Println()

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0", "Address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")

	return cmd
}
