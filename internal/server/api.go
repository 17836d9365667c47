// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/steeringkit/steeringkit/pkg/steervec"
)

// ErrorResponse represents an API error, matching the teacher's
// internal/server/api.go convention.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a simple success message.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSubmitJob starts a new discovery job.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	job, err := s.jobs.Submit(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to submit job", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job.snapshot())
}

// handleListJobs returns all tracked jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.List()
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleGetJob returns a single job's current state.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found", "")
		return
	}
	writeJSON(w, http.StatusOK, job.snapshot())
}

// handleCancelJob cancels a running job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.jobs.Cancel(id) {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Job cancelled"})
		return
	}
	writeError(w, http.StatusNotFound, "Job not found or already finished", "")
}

// vectorSummary is the API-facing view of a saved vector. It is filled from
// steervec.Load, which reads and decodes both the JSON sidecar and the
// binary tensor; prefixes that fail to load are left out of the listing.
type vectorSummary struct {
	Prefix    string  `json:"prefix"`
	ModelName string  `json:"modelName"`
	Layer     int     `json:"layer"`
	LayerName string  `json:"layerName"`
	Method    string  `json:"method"`
	Magnitude float64 `json:"magnitude"`
}

// handleListVectors lists saved vectors under the server's configured
// vector directory.
func (s *Server) handleListVectors(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.config.VectorDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]any{"vectors": []vectorSummary{}})
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read vector directory", err.Error())
		return
	}

	seen := map[string]bool{}
	var prefixes []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		base := e.Name()[:len(e.Name())-len(".json")]
		prefix := filepath.Join(s.config.VectorDir, base)
		if !seen[prefix] {
			seen[prefix] = true
			prefixes = append(prefixes, prefix)
		}
	}
	sort.Strings(prefixes)

	summaries := make([]vectorSummary, 0, len(prefixes))
	for _, p := range prefixes {
		vec, err := steervec.Load(p)
		if err != nil {
			continue
		}
		summaries = append(summaries, vectorSummary{
			Prefix: p, ModelName: vec.ModelName, Layer: vec.Layer,
			LayerName: vec.LayerName, Method: vec.Method, Magnitude: vec.Magnitude,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"vectors": summaries})
}
