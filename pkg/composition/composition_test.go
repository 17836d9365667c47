// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package composition

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/steeringkit/steeringkit/pkg/steervec"
)

func approxEqual(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("got %v, want %v (tol %v)", got, want, tol)
	}
}

func mustVector(t *testing.T, tensor []float64, layer int) *steervec.SteeringVector {
	t.Helper()
	v, err := steervec.Construct(steervec.Params{
		Tensor:    tensor,
		Layer:     layer,
		LayerName: "x",
		ModelName: "m",
		Method:    "mean_difference",
	})
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	return v
}

func TestWeightedSum_Seed2(t *testing.T) {
	v1 := mustVector(t, []float64{2, 2, 2, 2}, 5)
	v2 := mustVector(t, []float64{4, 4, 4, 4}, 5)

	out, err := WeightedSum([]*steervec.SteeringVector{v1, v2}, []float64{0.5, 0.5}, false)
	if err != nil {
		t.Fatalf("WeightedSum: %v", err)
	}
	for _, v := range out.Tensor {
		approxEqual(t, v, 3.0, 1e-9)
	}
	if !strings.Contains(out.Method, "weighted_sum") {
		t.Errorf("Method = %q, want it to contain weighted_sum", out.Method)
	}
}

func TestWeightedSum_RejectsEmpty(t *testing.T) {
	_, err := WeightedSum(nil, nil, false)
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindEmpty {
		t.Fatalf("expected Empty, got %v", err)
	}
}

func TestWeightedSum_RejectsWeightCountMismatch(t *testing.T) {
	v1 := mustVector(t, []float64{1, 2}, 0)
	v2 := mustVector(t, []float64{3, 4}, 0)
	_, err := WeightedSum([]*steervec.SteeringVector{v1, v2}, []float64{1}, false)
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindWeightCountMismatch {
		t.Fatalf("expected WeightCountMismatch, got %v", err)
	}
}

func TestWeightedSum_RejectsIncompatibleShapes(t *testing.T) {
	v1 := mustVector(t, []float64{1, 2}, 0)
	v2 := mustVector(t, []float64{3, 4, 5}, 0)
	_, err := WeightedSum([]*steervec.SteeringVector{v1, v2}, nil, false)
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindIncompatible {
		t.Fatalf("expected Incompatible, got %v", err)
	}
}

func TestComputeSimilarity_ZeroNorm(t *testing.T) {
	a := mustVector(t, []float64{0, 0, 0}, 0)
	b := mustVector(t, []float64{1, 2, 3}, 0)
	s, err := ComputeSimilarity(a, b)
	if err != nil {
		t.Fatalf("ComputeSimilarity: %v", err)
	}
	approxEqual(t, s, 0, 1e-12)
}

func TestOrthogonalize_Seed3(t *testing.T) {
	v1 := mustVector(t, []float64{1, 0, 0}, 5)
	v2 := mustVector(t, []float64{1, 1, 0}, 5)

	out, err := Orthogonalize([]*steervec.SteeringVector{v1, v2})
	if err != nil {
		t.Fatalf("Orthogonalize: %v", err)
	}

	approxEqual(t, out[0].Tensor[0], 1, 1e-5)
	approxEqual(t, out[0].Tensor[1], 0, 1e-5)
	approxEqual(t, out[1].Tensor[0], 0, 1e-5)
	approxEqual(t, out[1].Tensor[1], 1, 1e-5)

	s, err := ComputeSimilarity(out[0], out[1])
	if err != nil {
		t.Fatalf("ComputeSimilarity: %v", err)
	}
	approxEqual(t, s, 0, 1e-5)

	if !strings.HasSuffix(out[0].Method, "_orthogonalized") {
		t.Errorf("Method = %q, want _orthogonalized suffix", out[0].Method)
	}
}

func TestDetectConflicts_Seed4(t *testing.T) {
	u := []float64{3, 1, 4, 1, 5}
	negU := make([]float64, len(u))
	for i, x := range u {
		negU[i] = -x
	}
	v1 := mustVector(t, u, 5)
	v2 := mustVector(t, negU, 5)

	conflicts, err := DetectConflicts([]*steervec.SteeringVector{v1, v2}, 0.7)
	if err != nil {
		t.Fatalf("DetectConflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("len(conflicts) = %d, want 1", len(conflicts))
	}
	if conflicts[0].I != 0 || conflicts[0].J != 1 {
		t.Errorf("conflict = (%d,%d), want (0,1)", conflicts[0].I, conflicts[0].J)
	}
	if conflicts[0].Similarity > -1+1e-5 {
		t.Errorf("Similarity = %v, want <= -1+1e-5", conflicts[0].Similarity)
	}
}

func TestAnalyzeComposition(t *testing.T) {
	v1 := mustVector(t, []float64{1, 0, 0}, 5)
	v2 := mustVector(t, []float64{0, 1, 0}, 5)

	a, err := AnalyzeComposition([]*steervec.SteeringVector{v1, v2})
	if err != nil {
		t.Fatalf("AnalyzeComposition: %v", err)
	}
	if a.Count != 2 {
		t.Errorf("Count = %d, want 2", a.Count)
	}
	approxEqual(t, a.SimilarityMatrix[0][0], 1, 1e-12)
	approxEqual(t, a.SimilarityMatrix[0][1], 0, 1e-12)
	if len(a.Conflicts) != 0 {
		t.Errorf("expected no conflicts for orthogonal unit vectors, got %v", a.Conflicts)
	}
	if len(a.Recommendations) == 0 {
		t.Error("expected at least one recommendation")
	}
}
