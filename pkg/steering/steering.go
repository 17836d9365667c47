// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package steering

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/steeringkit/steeringkit/pkg/steervec"
)

// Generator drives a host model's text generation. GenerateWithSteering
// wraps a call to it with a scoped steering hook. Generate always takes and
// returns a batch; GenerateWithSteering handles the single-string case by
// wrapping/unwrapping a batch of one (spec §4.4).
type Generator interface {
	Generate(ctx context.Context, prompts []string) ([]string, error)
}

// ActiveEntry describes one currently-applied steering hook.
type ActiveEntry struct {
	Layer int
	Alpha float64
	Vector *steervec.SteeringVector
}

type activeSteering struct {
	vector *steervec.SteeringVector
	alpha  float64
	handle HookHandle
}

// SteeringModel owns a loaded Model and the set of currently-active
// steering hooks attached to its blocks (spec §4.4).
type SteeringModel struct {
	model Model

	mu     sync.Mutex
	active map[int]*activeSteering
}

// NewSteeringModel wraps model for steering.
func NewSteeringModel(model Model) *SteeringModel {
	return &SteeringModel{model: model, active: make(map[int]*activeSteering)}
}

// ApplySteering registers an interceptor on vector.Layer that adds alpha*v
// to every token position of the block's forward output (spec §4.4,
// ApplySteering). It fails if the layer is already steered.
func (sm *SteeringModel) ApplySteering(vector *steervec.SteeringVector, alpha float64) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.applyLocked(vector, alpha)
}

func (sm *SteeringModel) applyLocked(vector *steervec.SteeringVector, alpha float64) error {
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return newErr(KindInvalidAlpha, "alpha must be a finite number, got %v", alpha)
	}
	if vector.Layer < 0 || vector.Layer >= sm.model.NumLayers() {
		return newErrGW(KindInvalidLayer, "layer out of range", vector.Layer, sm.model.NumLayers())
	}
	if len(vector.Tensor) != sm.model.HiddenSize() {
		return newErrGW(KindDimensionMismatch, "vector dimension must match model hidden size", len(vector.Tensor), sm.model.HiddenSize())
	}
	if _, exists := sm.active[vector.Layer]; exists {
		return newErr(KindAlreadySteered, "layer %d already has an active steering hook", vector.Layer)
	}

	block, err := sm.model.Block(vector.Layer)
	if err != nil {
		return err
	}

	handle, err := block.RegisterHook(additiveInterceptor(vector, alpha))
	if err != nil {
		return err
	}

	sm.active[vector.Layer] = &activeSteering{vector: vector, alpha: alpha, handle: handle}
	return nil
}

// SteeringSpec pairs a vector with the scale to apply it at.
type SteeringSpec struct {
	Vector *steervec.SteeringVector
	Alpha  float64
}

// ApplyMultipleSteering applies every spec, or none: if any target layer is
// already steered, no interceptor is registered by the call (spec §4.4,
// ApplyMultipleSteering atomicity).
func (sm *SteeringModel) ApplyMultipleSteering(specs []SteeringSpec) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, s := range specs {
		if s.Vector.Layer < 0 || s.Vector.Layer >= sm.model.NumLayers() {
			return newErrGW(KindInvalidLayer, "layer out of range", s.Vector.Layer, sm.model.NumLayers())
		}
		if _, exists := sm.active[s.Vector.Layer]; exists {
			return newErr(KindAlreadySteered, "layer %d already has an active steering hook", s.Vector.Layer)
		}
	}

	applied := make([]int, 0, len(specs))
	for _, s := range specs {
		if err := sm.applyLocked(s.Vector, s.Alpha); err != nil {
			for _, layer := range applied {
				sm.removeLocked(layer)
			}
			return err
		}
		applied = append(applied, s.Vector.Layer)
	}
	return nil
}

// RemoveSteering unregisters the hook at layer, if any. Calling it on a
// layer with no active hook is a no-op (spec §4.4).
func (sm *SteeringModel) RemoveSteering(layer int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.removeLocked(layer)
}

func (sm *SteeringModel) removeLocked(layer int) {
	entry, ok := sm.active[layer]
	if !ok {
		return
	}
	entry.handle.Remove()
	delete(sm.active, layer)
}

// RemoveAllSteering removes every active hook.
func (sm *SteeringModel) RemoveAllSteering() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for layer := range sm.active {
		sm.removeLocked(layer)
	}
}

// ListActiveSteering returns the currently-active hooks ordered by layer.
func (sm *SteeringModel) ListActiveSteering() []ActiveEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	entries := make([]ActiveEntry, 0, len(sm.active))
	for layer, s := range sm.active {
		entries = append(entries, ActiveEntry{Layer: layer, Alpha: s.alpha, Vector: s.vector})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Layer < entries[j].Layer })
	return entries
}

// GenerateWithSteering attaches vector at alpha, runs gen.Generate(ctx,
// ...), and guarantees the hook is removed before returning — on success, on
// error, and on panic (spec §4.4/§9, "Hook lifetime / exception safety": the
// register-forward-unregister sequence is a scoped resource whose
// destruction on any exit path unregisters it).
//
// prompt accepts either a single string or a []string batch, matching the
// original's "batch input returns batch output; single input returns single
// output" contract: a string in yields a string out, a []string in yields a
// []string out. Any other type is an error.
func (sm *SteeringModel) GenerateWithSteering(ctx context.Context, gen Generator, prompt any, vector *steervec.SteeringVector, alpha float64) (any, error) {
	var prompts []string
	single := false
	switch p := prompt.(type) {
	case string:
		prompts = []string{p}
		single = true
	case []string:
		prompts = p
	default:
		return nil, newErr(KindInvalidPrompt, "prompt must be a string or []string, got %T", prompt)
	}

	if err := sm.ApplySteering(vector, alpha); err != nil {
		return nil, err
	}
	defer sm.RemoveSteering(vector.Layer)

	outputs, err := gen.Generate(ctx, prompts)
	if err != nil {
		return nil, err
	}
	if single {
		if len(outputs) == 0 {
			return "", newErr(KindInvalidPrompt, "generator returned no output for a single prompt")
		}
		return outputs[0], nil
	}
	return outputs, nil
}

// additiveInterceptor builds the HookFunc that computes
// out = hidden + alpha*v, broadcasting the [H] offset over every token
// position and preserving the output's structural form (Kind/Rest pass
// through unchanged; spec §4.4/§9).
func additiveInterceptor(vector *steervec.SteeringVector, alpha float64) HookFunc {
	return func(out Output) (Output, error) {
		v := vector.Tensor
		data := make([]float64, len(out.Data))
		copy(data, out.Data)

		for pos := 0; pos < out.Batch*out.Seq; pos++ {
			base := pos * out.H
			for h := 0; h < out.H && h < len(v); h++ {
				data[base+h] += alpha * v[h]
			}
		}

		return Output{Data: data, Batch: out.Batch, Seq: out.Seq, H: out.H, Kind: out.Kind, Rest: out.Rest}, nil
	}
}
