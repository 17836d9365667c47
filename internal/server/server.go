// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package server implements steerctl's job server: a REST API for
// submitting discovery jobs against a recorded activation dump, and a
// WebSocket endpoint that streams each job's progress events live. Its
// shape is adapted from the teacher's internal/server package (New/Config/
// ListenAndServe, job manager, writeJSON/writeError helpers), swapping the
// download-job domain for the discovery-job domain.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Config configures a Server.
type Config struct {
	Addr      string
	Port      int
	VectorDir string
}

// Server is steerctl's HTTP + WebSocket job server.
type Server struct {
	config Config
	jobs   *JobManager
	http   *http.Server
	upgrad websocket.Upgrader
}

// New builds a Server from cfg. It does not start listening; call
// ListenAndServe.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	s := &Server{
		config: cfg,
		jobs:   NewJobManager(cfg.VectorDir),
		upgrad: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin is accepted: steerctl serve is meant for local or
			// trusted-network use, not as a public multi-tenant endpoint.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /api/vectors", s.handleListVectors)
	mux.HandleFunc("GET /ws/jobs/{id}", s.handleJobProgress)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	fmt.Printf("listening on %s\n", s.http.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleJobProgress upgrades to a WebSocket and streams progress events for
// the job named by the path until it finishes or the client disconnects.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found", "")
		return
	}

	conn, err := s.upgrad.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := job.subscribe()
	defer unsubscribe()

	// Send the current state immediately so a client that connects after
	// the job has already progressed isn't left waiting.
	if err := conn.WriteJSON(job.snapshot()); err != nil {
		return
	}

	for {
		snap := job.snapshot()
		if snap.Status == JobDone || snap.Status == JobFailed || snap.Status == JobCancelled {
			conn.WriteJSON(snap)
			return
		}

		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-time.After(30 * time.Second):
			if err := conn.WriteJSON(map[string]string{"event": "keepalive"}); err != nil {
				return
			}
		}
	}
}
