// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"path/filepath"
	"testing"

	"github.com/steeringkit/steeringkit/pkg/steervec"
)

func mustSaveVector(t *testing.T, dir, name string, tensor []float64) string {
	t.Helper()
	vec, err := steervec.Construct(steervec.Params{
		Tensor: tensor, Layer: 2, LayerName: "layers.2",
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

func TestParseWeights_DefaultsToOnes(t *testing.T) {
	w, err := parseWeights("", 3)
	if err != nil {
		t.Fatalf("parseWeights: %v", err)
	}
	if len(w) != 3 || w[0] != 1.0 || w[1] != 1.0 || w[2] != 1.0 {
		t.Errorf("weights = %v", w)
	}
}

func TestParseWeights_ParsesCommaList(t *testing.T) {
	w, err := parseWeights("0.5, 2", 2)
	if err != nil {
		t.Fatalf("parseWeights: %v", err)
	}
	if len(w) != 2 || w[0] != 0.5 || w[1] != 2 {
		t.Errorf("weights = %v", w)
	}
}

func TestParseWeights_RejectsInvalidNumber(t *testing.T) {
	if _, err := parseWeights("oops", 1); err == nil {
		t.Fatal("expected an error for a non-numeric weight")
	}
}

func TestComposeWeightedSumCmd_WritesOutput(t *testing.T) {
	dir := t.TempDir()
	a := mustSaveVector(t, dir, "a", []float64{1, 0})
	b := mustSaveVector(t, dir, "b", []float64{0, 1})
	out := filepath.Join(dir, "combined")

	ro := &RootOpts{Quiet: true}
	cmd := newComposeWeightedSumCmd(ro)
	cmd.SetArgs([]string{a, b, "-o", out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	combined, err := steervec.Load(out)
	if err != nil {
		t.Fatalf("Load combined: %v", err)
	}
	if combined.Tensor[0] != 1 || combined.Tensor[1] != 1 {
		t.Errorf("Tensor = %v, want [1,1]", combined.Tensor)
	}
}

func TestComposeSimilarityCmd_Runs(t *testing.T) {
	dir := t.TempDir()
	a := mustSaveVector(t, dir, "a", []float64{1, 0})
	b := mustSaveVector(t, dir, "b", []float64{1, 0})

	ro := &RootOpts{Quiet: true}
	cmd := newComposeSimilarityCmd(ro)
	cmd.SetArgs([]string{a, b})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestComposeConflictsCmd_Runs(t *testing.T) {
	dir := t.TempDir()
	a := mustSaveVector(t, dir, "a", []float64{1, 0})
	b := mustSaveVector(t, dir, "b", []float64{1, 0})

	ro := &RootOpts{Quiet: true}
	cmd := newComposeConflictsCmd(ro)
	cmd.SetArgs([]string{a, b})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
}
