// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/steeringkit/steeringkit/pkg/actdump"
)

func writeSampleDump(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	records := []actdump.Record{
		{Text: "good a", Seq: 1, Hidden: 2, Activations: map[int][]float64{0: {2, 2}}},
		{Text: "good b", Seq: 1, Hidden: 2, Activations: map[int][]float64{0: {2, 2}}},
		{Text: "bad a", Seq: 1, Hidden: 2, Activations: map[int][]float64{0: {1, 1}}},
		{Text: "bad b", Seq: 1, Hidden: 2, Activations: map[int][]float64{0: {1, 1}}},
	}
	if err := actdump.WriteDump(&buf, "fake", 2, 1, records); err != nil {
		t.Fatalf("WriteDump: %v", err)
	}
	path := filepath.Join(t.TempDir(), "dump.jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func waitForStatus(t *testing.T, jm *JobManager, id string, want JobStatus) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := jm.Get(id)
		if !ok {
			t.Fatalf("job %s not found", id)
		}
		snap := job.snapshot()
		if snap.Status == want {
			return snap
		}
		if snap.Status == JobFailed && want != JobFailed {
			t.Fatalf("job failed: %s", snap.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s", want)
	return Job{}
}

func TestJobManager_SubmitRunsMeanDifference(t *testing.T) {
	dumpPath := writeSampleDump(t)
	outDir := t.TempDir()

	jm := NewJobManager(outDir)
	job, err := jm.Submit(DiscoverRequest{
		Dump:      dumpPath,
		Algorithm: "mean_difference",
		Layer:     0,
		Positive:  []string{"good a", "good b"},
		Negative:  []string{"bad a", "bad b"},
		Output:    "result",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitForStatus(t, jm, job.ID, JobDone)
	if snap.Vector == nil {
		t.Fatal("expected a discovered vector")
	}
	for _, v := range snap.Vector.Tensor {
		if v < 0.99 || v > 1.01 {
			t.Errorf("tensor component = %v, want ~1.0", v)
		}
	}
}

func TestJobManager_SubmitRejectsEmptyExamples(t *testing.T) {
	jm := NewJobManager(t.TempDir())
	_, err := jm.Submit(DiscoverRequest{Dump: "whatever.jsonl"})
	if err == nil {
		t.Fatal("expected an error for empty example sets")
	}
}

func TestJobManager_CancelUnknownJob(t *testing.T) {
	jm := NewJobManager(t.TempDir())
	if jm.Cancel("nonexistent") {
		t.Fatal("expected Cancel to report false for an unknown job")
	}
}

func TestJobManager_ListIncludesSubmittedJobs(t *testing.T) {
	dumpPath := writeSampleDump(t)
	jm := NewJobManager(t.TempDir())
	job, err := jm.Submit(DiscoverRequest{
		Dump: dumpPath, Algorithm: "mean_difference",
		Positive: []string{"good a"}, Negative: []string{"bad a"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, jm, job.ID, JobDone)

	jobs := jm.List()
	found := false
	for _, j := range jobs {
		if j.ID == job.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected List to include the submitted job")
	}
}
