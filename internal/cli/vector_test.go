// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"path/filepath"
	"testing"

	"github.com/steeringkit/steeringkit/pkg/steervec"
)

func saveVector(t *testing.T, dir, name string) string {
	t.Helper()
	vec, err := steervec.Construct(steervec.Params{
		Tensor: []float64{1, 2, 3}, Layer: 1, LayerName: "layers.1",
		ModelName: "fake", Method: "mean_difference",
	})
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	prefix := filepath.Join(dir, name)
	if err := vec.Save(prefix); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return prefix
}

func TestListVectorPrefixes_EmptyDir(t *testing.T) {
	prefixes, err := listVectorPrefixes(t.TempDir())
	if err != nil {
		t.Fatalf("listVectorPrefixes: %v", err)
	}
	if len(prefixes) != 0 {
		t.Errorf("prefixes = %v, want none", prefixes)
	}
}

func TestListVectorPrefixes_MissingDir(t *testing.T) {
	prefixes, err := listVectorPrefixes(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("listVectorPrefixes: %v", err)
	}
	if prefixes != nil {
		t.Errorf("prefixes = %v, want nil", prefixes)
	}
}

func TestListVectorPrefixes_FindsSavedVectors(t *testing.T) {
	dir := t.TempDir()
	saveVector(t, dir, "a")
	saveVector(t, dir, "b")

	prefixes, err := listVectorPrefixes(dir)
	if err != nil {
		t.Fatalf("listVectorPrefixes: %v", err)
	}
	if len(prefixes) != 2 {
		t.Fatalf("prefixes = %v, want 2 entries", prefixes)
	}
}

func TestVectorInspectCmd_LoadsAndPrints(t *testing.T) {
	dir := t.TempDir()
	prefix := saveVector(t, dir, "v")

	ro := &RootOpts{Quiet: true}
	cmd := newVectorInspectCmd(ro)
	cmd.SetArgs([]string{prefix})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestVectorToDeviceCmd_WritesCopy(t *testing.T) {
	dir := t.TempDir()
	prefix := saveVector(t, dir, "v")

	ro := &RootOpts{Quiet: true}
	cmd := newVectorToDeviceCmd(ro)
	cmd.SetArgs([]string{prefix, "gpu:0"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	moved, err := steervec.Load(prefix + ".gpu:0")
	if err != nil {
		t.Fatalf("Load moved vector: %v", err)
	}
	// Device is a runtime attribute that the sidecar record does not carry,
	// so the saved copy loads back on the default device.
	if moved.Device != "cpu" {
		t.Errorf("Device = %q, want cpu", moved.Device)
	}
}
