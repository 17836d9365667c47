// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package composition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steeringkit/steeringkit/pkg/steervec"
	"gonum.org/v1/gonum/floats"
)

// DefaultConflictThreshold is the similarity magnitude at or above which two
// vectors are reported as conflicting (spec §4.3).
const DefaultConflictThreshold = 0.7

// WeightedSum combines vectors into a single SteeringVector as Σ wᵢ·vᵢ,
// optionally renormalizing the result to unit length (spec §4.3,
// WeightedSum). weights defaults to all-ones when nil.
func WeightedSum(vectors []*steervec.SteeringVector, weights []float64, normalize bool) (*steervec.SteeringVector, error) {
	if len(vectors) == 0 {
		return nil, newErr(KindEmpty, "weighted sum requires at least one vector")
	}
	if weights == nil {
		weights = make([]float64, len(vectors))
		for i := range weights {
			weights[i] = 1.0
		}
	}
	if len(weights) != len(vectors) {
		return nil, newErrGW(KindWeightCountMismatch, "weight count must match vector count", len(weights), len(vectors))
	}
	if err := requireSameShapeAndLayer(vectors); err != nil {
		return nil, err
	}

	h := len(vectors[0].Tensor)
	sum := make([]float64, h)
	methods := make([]string, len(vectors))
	for i, v := range vectors {
		for j := 0; j < h; j++ {
			sum[j] += weights[i] * v.Tensor[j]
		}
		methods[i] = v.Method
	}

	if normalize {
		n := floats.Norm(sum, 2)
		if n > 0 {
			floats.Scale(1/n, sum)
		}
	}

	return steervec.Construct(steervec.Params{
		Tensor:    sum,
		Layer:     vectors[0].Layer,
		LayerName: vectors[0].LayerName,
		ModelName: vectors[0].ModelName,
		Method:    fmt.Sprintf("weighted_sum(%s)", strings.Join(methods, ", ")),
		Metadata: map[string]any{
			"source_methods": methods,
			"weights":        weights,
			"normalized":     normalize,
			"num_vectors":    len(vectors),
		},
	})
}

// ComputeSimilarity returns the cosine similarity of a and b, which must
// share the same tensor length. A zero-norm input yields 0.0 (spec §4.3,
// ComputeSimilarity), not an error.
func ComputeSimilarity(a, b *steervec.SteeringVector) (float64, error) {
	if len(a.Tensor) != len(b.Tensor) {
		return 0, newErrGW(KindIncompatible, "vectors must share the same shape", len(a.Tensor), len(b.Tensor))
	}
	na := floats.Norm(a.Tensor, 2)
	nb := floats.Norm(b.Tensor, 2)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return floats.Dot(a.Tensor, b.Tensor) / (na * nb), nil
}

// Conflict reports a pair of vectors whose cosine similarity magnitude met
// or exceeded the detection threshold.
type Conflict struct {
	I, J       int
	Similarity float64
}

// DetectConflicts evaluates every unordered pair of compatibly-shaped
// vectors and reports those with |similarity| >= threshold, ordered
// lexicographically on (i, j) (spec §4.3, DetectConflicts). threshold <= 0
// selects DefaultConflictThreshold.
func DetectConflicts(vectors []*steervec.SteeringVector, threshold float64) ([]Conflict, error) {
	if threshold <= 0 {
		threshold = DefaultConflictThreshold
	}
	var conflicts []Conflict
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			if len(vectors[i].Tensor) != len(vectors[j].Tensor) {
				continue
			}
			s, err := ComputeSimilarity(vectors[i], vectors[j])
			if err != nil {
				continue
			}
			if abs(s) >= threshold {
				conflicts = append(conflicts, Conflict{I: i, J: j, Similarity: s})
			}
		}
	}
	sort.Slice(conflicts, func(a, b int) bool {
		if conflicts[a].I != conflicts[b].I {
			return conflicts[a].I < conflicts[b].I
		}
		return conflicts[a].J < conflicts[b].J
	})
	return conflicts, nil
}

// Orthogonalize runs classical Gram-Schmidt over vectors, which must share
// shape and layer (spec §4.3, Orthogonalize). For each vector in order it
// subtracts its projection onto every previously produced orthogonal
// vector, then normalizes to unit length; a projection whose denominator
// ‖prev‖² < 1e-10 is skipped as numerically degenerate, leaving a
// zero vector when the input was already in the span of its predecessors.
// Output method is suffixed with "_orthogonalized"; order is preserved.
func Orthogonalize(vectors []*steervec.SteeringVector) ([]*steervec.SteeringVector, error) {
	if len(vectors) == 0 {
		return nil, newErr(KindEmpty, "orthogonalize requires at least one vector")
	}
	if err := requireSameShapeAndLayer(vectors); err != nil {
		return nil, err
	}

	h := len(vectors[0].Tensor)
	produced := make([][]float64, 0, len(vectors))
	result := make([]*steervec.SteeringVector, len(vectors))

	for i, v := range vectors {
		cur := append([]float64(nil), v.Tensor...)
		for _, prev := range produced {
			denom := floats.Dot(prev, prev)
			if denom < 1e-10 {
				continue
			}
			proj := floats.Dot(cur, prev) / denom
			for j := 0; j < h; j++ {
				cur[j] -= proj * prev[j]
			}
		}

		norm := floats.Norm(cur, 2)
		if norm > 0 {
			floats.Scale(1/norm, cur)
		}
		produced = append(produced, cur)

		out, err := steervec.Construct(steervec.Params{
			Tensor:    cur,
			Layer:     v.Layer,
			LayerName: v.LayerName,
			ModelName: v.ModelName,
			Method:    v.Method + "_orthogonalized",
			Metadata:  v.Metadata,
		})
		if err != nil {
			return nil, err
		}
		result[i] = out
	}

	return result, nil
}

// Analysis summarizes a set of vectors for human review (spec §4.3,
// AnalyzeComposition).
type Analysis struct {
	Count           int
	SimilarityMatrix [][]float64
	Conflicts       []Conflict
	Magnitudes      []float64
	MeanMagnitude   float64
	Recommendations []string
}

// AnalyzeComposition computes a pairwise similarity matrix, conflicts at
// DefaultConflictThreshold, per-vector magnitudes, and derives
// human-readable recommendations from whether the detected conflicts are
// predominantly reinforcing (high positive similarity), opposing (high
// negative similarity), or absent.
func AnalyzeComposition(vectors []*steervec.SteeringVector) (*Analysis, error) {
	if len(vectors) == 0 {
		return nil, newErr(KindEmpty, "analysis requires at least one vector")
	}

	n := len(vectors)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s, err := ComputeSimilarity(vectors[i], vectors[j])
			if err != nil {
				continue
			}
			matrix[i][j] = s
			matrix[j][i] = s
		}
	}

	conflicts, err := DetectConflicts(vectors, DefaultConflictThreshold)
	if err != nil {
		return nil, err
	}

	magnitudes := make([]float64, n)
	var sum float64
	for i, v := range vectors {
		magnitudes[i] = v.Magnitude
		sum += v.Magnitude
	}

	var positive, negative int
	for _, c := range conflicts {
		if c.Similarity > 0 {
			positive++
		} else {
			negative++
		}
	}

	var recs []string
	switch {
	case len(conflicts) == 0:
		recs = append(recs, "no conflicting directions detected; vectors can be combined freely")
	case negative > positive:
		recs = append(recs, "some vectors point in opposing directions; consider Orthogonalize before combining")
	case positive > negative:
		recs = append(recs, "some vectors are highly correlated; weighted sum may overweight the shared direction")
	default:
		recs = append(recs, "mixed conflicts detected; review the similarity matrix before combining")
	}

	return &Analysis{
		Count:            n,
		SimilarityMatrix: matrix,
		Conflicts:        conflicts,
		Magnitudes:       magnitudes,
		MeanMagnitude:    sum / float64(n),
		Recommendations:  recs,
	}, nil
}

func requireSameShapeAndLayer(vectors []*steervec.SteeringVector) error {
	h := len(vectors[0].Tensor)
	layer := vectors[0].Layer
	for _, v := range vectors[1:] {
		if len(v.Tensor) != h {
			return newErrGW(KindIncompatible, "all vectors must share the same shape", len(v.Tensor), h)
		}
		if v.Layer != layer {
			return newErrGW(KindIncompatible, "all vectors must share the same layer", v.Layer, layer)
		}
	}
	return nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
