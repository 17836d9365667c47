// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package actdump

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/steeringkit/steeringkit/pkg/discovery"
)

func approxEqual(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("got %v, want %v (tol %v)", got, want, tol)
	}
}

func sampleRecords() []Record {
	return []Record{
		{Text: "good example a", Seq: 1, Hidden: 2, Activations: map[int][]float64{0: {2, 2}}},
		{Text: "good example b", Seq: 1, Hidden: 2, Activations: map[int][]float64{0: {2, 2}}},
		{Text: "bad example a", Seq: 1, Hidden: 2, Activations: map[int][]float64{0: {1, 1}}},
		{Text: "bad example b", Seq: 1, Hidden: 2, Activations: map[int][]float64{0: {1, 1}}},
	}
}

func TestWriteLoadDump_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	records := sampleRecords()
	if err := WriteDump(&buf, "fake", 2, 1, records); err != nil {
		t.Fatalf("WriteDump: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dump.jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dump, err := LoadDump(path)
	if err != nil {
		t.Fatalf("LoadDump: %v", err)
	}
	if dump.ModelType != "fake" || dump.Hidden != 2 || dump.NumLayers != 1 {
		t.Fatalf("dump header = %+v", dump)
	}
	if len(dump.Records) != len(records) {
		t.Fatalf("len(Records) = %d, want %d", len(dump.Records), len(records))
	}
	for i, r := range records {
		if dump.Records[i].Text != r.Text {
			t.Errorf("record %d text = %q, want %q", i, dump.Records[i].Text, r.Text)
		}
	}
}

func TestReplayModel_DrivesMeanDifference(t *testing.T) {
	var buf bytes.Buffer
	records := sampleRecords()
	if err := WriteDump(&buf, "fake", 2, 1, records); err != nil {
		t.Fatalf("WriteDump: %v", err)
	}
	path := filepath.Join(t.TempDir(), "dump.jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dump, err := LoadDump(path)
	if err != nil {
		t.Fatalf("LoadDump: %v", err)
	}

	model := NewReplayModel(dump)
	tok := NewReplayTokenizer(dump)

	vec, err := discovery.MeanDifference(context.Background(), model, tok, 0,
		[]string{"good example a", "good example b"},
		[]string{"bad example a", "bad example b"},
		discovery.Options{},
	)
	if err != nil {
		t.Fatalf("MeanDifference: %v", err)
	}
	for _, v := range vec.Tensor {
		approxEqual(t, v, 1.0, 1e-9)
	}
}

func TestReplayTokenizer_RejectsUnknownText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDump(&buf, "fake", 2, 1, sampleRecords()); err != nil {
		t.Fatalf("WriteDump: %v", err)
	}
	path := filepath.Join(t.TempDir(), "dump.jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	dump, err := LoadDump(path)
	if err != nil {
		t.Fatalf("LoadDump: %v", err)
	}

	tok := NewReplayTokenizer(dump)
	if _, err := tok.Encode([]string{"never recorded"}, 16); err == nil {
		t.Fatal("expected an error for text absent from the dump")
	}
}
