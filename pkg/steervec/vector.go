// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package steervec

import (
	"fmt"
	"math"
	"time"
)

// MagnitudeTolerance is the maximum allowed drift between a vector's stored
// Magnitude and the L2 norm recomputed from its Tensor (spec §3, §8).
const MagnitudeTolerance = 1e-3

// SteeringVector is the single persistent artifact of this module: a
// 1-D numeric tensor plus the metadata required to apply and reproduce it.
// Values are never mutated in place after construction — every
// transformation (ToDevice, composition, orthogonalization) returns a new
// SteeringVector.
type SteeringVector struct {
	Tensor    []float64
	Layer     int
	LayerName string
	ModelName string
	Method    string
	Magnitude float64
	Metadata  map[string]any
	CreatedAt time.Time
	Dtype     Dtype
	// Device is the compute device the tensor logically resides on. It is
	// a runtime attribute, not part of the persisted sidecar record.
	Device string
}

// Params are the constructor inputs for Construct. Tensor, Layer, LayerName
// and ModelName are required; everything else is optional and takes the
// documented default when zero-valued.
type Params struct {
	Tensor    []float64
	Layer     int
	LayerName string
	ModelName string
	Method    string
	Metadata  map[string]any
	// Magnitude, if non-nil, is stored as-is in place of the recomputed
	// norm. Construct still rejects it if it differs from the recomputed
	// norm by more than MagnitudeTolerance.
	Magnitude *float64
	CreatedAt time.Time
	Dtype     Dtype
	Device    string
}

// Construct validates and builds a new SteeringVector. It computes
// Magnitude when absent, stamps CreatedAt when absent, and quantizes Tensor
// through Dtype's representable precision so that later Save/Load round
// trips are bit-equal for finite values.
func Construct(p Params) (*SteeringVector, error) {
	if len(p.Tensor) == 0 {
		return nil, newErr(KindInvalidShape, "tensor must be non-empty rank-1")
	}
	if p.Layer < 0 {
		return nil, newErrGW(KindInvalidLayer, "layer must be non-negative", p.Layer, ">=0")
	}

	dtype := p.Dtype
	if dtype == "" {
		dtype = DtypeFloat32
	}
	if !dtype.valid() {
		return nil, newErr(KindInvalidShape, "unknown dtype %q", dtype)
	}

	tensor := make([]float64, len(p.Tensor))
	for i, v := range p.Tensor {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, newErr(KindNonFinite, "tensor[%d] is NaN or Inf", i)
		}
		tensor[i] = quantize(v, dtype)
	}

	computed := l2Norm(tensor)
	magnitude := computed
	if p.Magnitude != nil {
		if math.Abs(*p.Magnitude-computed) > MagnitudeTolerance {
			return nil, newErrGW(KindMagnitudeMismatch, "stored magnitude does not match tensor", *p.Magnitude, computed)
		}
		magnitude = *p.Magnitude
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	} else {
		cp := make(map[string]any, len(metadata))
		for k, v := range metadata {
			cp[k] = v
		}
		metadata = cp
	}

	device := p.Device
	if device == "" {
		device = "cpu"
	}

	return &SteeringVector{
		Tensor:    tensor,
		Layer:     p.Layer,
		LayerName: p.LayerName,
		ModelName: p.ModelName,
		Method:    p.Method,
		Magnitude: magnitude,
		Metadata:  metadata,
		CreatedAt: createdAt,
		Dtype:     dtype,
		Device:    device,
	}, nil
}

func l2Norm(v []float64) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	return math.Sqrt(sumSq)
}

// Validate re-checks magnitude consistency and tensor integrity. If
// expectedDim is provided, the tensor's length must equal its first value.
func (v *SteeringVector) Validate(expectedDim ...int) error {
	for i, x := range v.Tensor {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return newErr(KindNonFinite, "tensor[%d] is NaN or Inf", i)
		}
	}

	computed := l2Norm(v.Tensor)
	if math.Abs(computed-v.Magnitude) > MagnitudeTolerance {
		return newErrGW(KindMagnitudeMismatch, "stored magnitude does not match tensor", v.Magnitude, computed)
	}

	if len(expectedDim) > 0 {
		want := expectedDim[0]
		if len(v.Tensor) != want {
			return newErrGW(KindDimensionMismatch, "tensor length does not match expected dimension", len(v.Tensor), want)
		}
	}

	return nil
}

// ToDevice returns a new SteeringVector whose tensor logically resides on
// target. All metadata is preserved; the returned value owns a distinct
// backing slice so the source is never mutated.
func (v *SteeringVector) ToDevice(target string) *SteeringVector {
	cp := v.clone()
	cp.Device = target
	return cp
}

// clone returns a deep copy sharing no mutable state with v.
func (v *SteeringVector) clone() *SteeringVector {
	tensor := make([]float64, len(v.Tensor))
	copy(tensor, v.Tensor)

	metadata := make(map[string]any, len(v.Metadata))
	for k, val := range v.Metadata {
		metadata[k] = val
	}

	return &SteeringVector{
		Tensor:    tensor,
		Layer:     v.Layer,
		LayerName: v.LayerName,
		ModelName: v.ModelName,
		Method:    v.Method,
		Magnitude: v.Magnitude,
		Metadata:  metadata,
		CreatedAt: v.CreatedAt,
		Dtype:     v.Dtype,
		Device:    v.Device,
	}
}

// Shape returns the tensor's length (its only dimension).
func (v *SteeringVector) Shape() int { return len(v.Tensor) }

// SameShapeAndLayer reports whether v and other are compatible for
// composition (spec §3: identical shape and identical layer).
func (v *SteeringVector) SameShapeAndLayer(other *SteeringVector) bool {
	return v.Layer == other.Layer && len(v.Tensor) == len(other.Tensor)
}

// String renders a one-line summary, mirroring the original Python
// SteeringVector.__repr__.
func (v *SteeringVector) String() string {
	return fmt.Sprintf("SteeringVector(model=%s, layer=%d, shape=(%d,), magnitude=%.4f, method=%s)",
		v.ModelName, v.Layer, len(v.Tensor), v.Magnitude, v.Method)
}
