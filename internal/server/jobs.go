// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/steeringkit/steeringkit/pkg/actdump"
	"github.com/steeringkit/steeringkit/pkg/discovery"
	"github.com/steeringkit/steeringkit/pkg/steervec"
)

// JobStatus is a discovery job's lifecycle state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// DiscoverRequest is the request body for submitting a discovery job.
type DiscoverRequest struct {
	Dump        string   `json:"dump"`
	Algorithm   string   `json:"algorithm"` // mean_difference | caa | linear_probe
	Layer       int      `json:"layer"`
	Positive    []string `json:"positive"`
	Negative    []string `json:"negative"`
	NumPairs    int      `json:"numPairs,omitempty"`
	Standardize bool     `json:"standardize,omitempty"`
	Output      string   `json:"output"`
}

// Job tracks one discovery run submitted to the server.
type Job struct {
	ID        string                     `json:"id"`
	Request   DiscoverRequest            `json:"request"`
	Status    JobStatus                  `json:"status"`
	Error     string                     `json:"error,omitempty"`
	Vector    *steervec.SteeringVector   `json:"vector,omitempty"`
	LastEvent *discovery.ProgressEvent   `json:"lastEvent,omitempty"`
	CreatedAt time.Time                  `json:"createdAt"`

	mu          sync.Mutex
	cancel      context.CancelFunc
	subscribers map[chan discovery.ProgressEvent]struct{}
}

func (j *Job) setStatus(status JobStatus) {
	j.mu.Lock()
	j.Status = status
	j.mu.Unlock()
}

func (j *Job) snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Job{
		ID:        j.ID,
		Request:   j.Request,
		Status:    j.Status,
		Error:     j.Error,
		Vector:    j.Vector,
		LastEvent: j.LastEvent,
		CreatedAt: j.CreatedAt,
	}
}

// subscribe registers a channel that receives every progress event emitted
// after this call. The returned func unregisters it.
func (j *Job) subscribe() (chan discovery.ProgressEvent, func()) {
	ch := make(chan discovery.ProgressEvent, 16)
	j.mu.Lock()
	j.subscribers[ch] = struct{}{}
	j.mu.Unlock()
	return ch, func() {
		j.mu.Lock()
		delete(j.subscribers, ch)
		j.mu.Unlock()
		close(ch)
	}
}

func (j *Job) publish(ev discovery.ProgressEvent) {
	j.mu.Lock()
	j.LastEvent = &ev
	for ch := range j.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	j.mu.Unlock()
}

// JobManager runs discovery jobs in the background and tracks their state,
// mirroring the teacher's job-registry convention in internal/server/api.go
// (s.jobs.CreateJob / ListJobs / GetJob / CancelJob) adapted to discovery
// runs instead of file downloads.
type JobManager struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	vectorDir string
}

// NewJobManager creates an empty job manager rooted at vectorDir, where
// discovered vectors are written.
func NewJobManager(vectorDir string) *JobManager {
	return &JobManager{jobs: map[string]*Job{}, vectorDir: vectorDir}
}

func newJobID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("job-%d", time.Now().UnixNano())
	}
	return "job-" + hex.EncodeToString(buf)
}

// Submit starts a discovery job in a background goroutine and returns it
// immediately. The job is created in the JobQueued state; the goroutine
// moves it to JobRunning as soon as it starts, possibly before Submit
// returns.
func (jm *JobManager) Submit(req DiscoverRequest) (*Job, error) {
	if req.Dump == "" {
		return nil, fmt.Errorf("dump path is required")
	}
	if len(req.Positive) == 0 || len(req.Negative) == 0 {
		return nil, fmt.Errorf("positive and negative example sets must both be non-empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:          newJobID(),
		Request:     req,
		Status:      JobQueued,
		CreatedAt:   time.Now().UTC(),
		cancel:      cancel,
		subscribers: map[chan discovery.ProgressEvent]struct{}{},
	}

	jm.mu.Lock()
	jm.jobs[job.ID] = job
	jm.mu.Unlock()

	go jm.run(ctx, job)
	return job, nil
}

func (jm *JobManager) run(ctx context.Context, job *Job) {
	job.setStatus(JobRunning)

	dump, err := actdump.LoadDump(job.Request.Dump)
	if err != nil {
		job.fail(fmt.Errorf("load dump: %w", err))
		return
	}
	model := actdump.NewReplayModel(dump)
	tok := actdump.NewReplayTokenizer(dump)

	opts := discovery.Options{Progress: job.publish}

	var vec *steervec.SteeringVector
	switch job.Request.Algorithm {
	case "", "mean_difference":
		vec, err = discovery.MeanDifference(ctx, model, tok, job.Request.Layer, job.Request.Positive, job.Request.Negative, opts)
	case "caa":
		vec, err = discovery.CAA(ctx, model, tok, job.Request.Layer, job.Request.Positive, job.Request.Negative, job.Request.NumPairs, opts)
	case "linear_probe":
		vec, _, err = discovery.LinearProbe(ctx, model, tok, job.Request.Layer, job.Request.Positive, job.Request.Negative,
			discovery.LinearProbeOptions{Options: opts, Standardize: job.Request.Standardize})
	default:
		err = fmt.Errorf("unknown algorithm %q", job.Request.Algorithm)
	}

	if err != nil {
		if ctx.Err() != nil {
			job.setStatus(JobCancelled)
			return
		}
		job.fail(err)
		return
	}

	out := job.Request.Output
	if out == "" {
		out = job.ID
	}
	if jm.vectorDir != "" {
		out = jm.vectorDir + "/" + out
	}
	if err := vec.Save(out); err != nil {
		job.fail(fmt.Errorf("save vector: %w", err))
		return
	}

	job.mu.Lock()
	job.Vector = vec
	job.mu.Unlock()
	job.setStatus(JobDone)
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	j.Error = err.Error()
	j.mu.Unlock()
	j.setStatus(JobFailed)
}

// Get returns the job with id, if any.
func (jm *JobManager) Get(id string) (*Job, bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	job, ok := jm.jobs[id]
	return job, ok
}

// List returns a snapshot of every tracked job.
func (jm *JobManager) List() []Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	out := make([]Job, 0, len(jm.jobs))
	for _, j := range jm.jobs {
		out = append(out, j.snapshot())
	}
	return out
}

// Cancel stops a running job. Reports false if the job does not exist or
// has already finished.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.Lock()
	job, ok := jm.jobs[id]
	jm.mu.Unlock()
	if !ok {
		return false
	}

	job.mu.Lock()
	status := job.Status
	job.mu.Unlock()
	if status != JobQueued && status != JobRunning {
		return false
	}

	job.cancel()
	return true
}
