// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package discovery implements the three steering-direction discovery
// algorithms (mean_difference, caa, linear_probe) described in spec §4.2. It
// is a pure consumer of a loaded model + tokenizer pair: it never owns
// either, never trains or mutates model weights, and performs no I/O beyond
// the forward passes the host Model implementation itself drives.
package discovery

import "context"

// Model is the external collaborator contract a host must satisfy to run
// discovery against it (spec §6). Adapters live outside this package (e.g.
// pkg/actdump replays a recorded activation dump through the same
// interface a live transformer would implement).
type Model interface {
	// ModelType is the architecture identifier used to resolve block
	// modules via the registry (e.g. "llama", "gpt2").
	ModelType() string
	// HiddenSize is the model's hidden dimension H.
	HiddenSize() int
	// NumLayers is the number of transformer blocks.
	NumLayers() int
	// Block returns the block module at the given zero-based index.
	Block(layer int) (Block, error)
	// Forward runs one forward pass over the batch. Any hook registered
	// on a Block fires synchronously during this call. The host is
	// responsible for running under its own no-grad/inference context.
	Forward(ctx context.Context, batch Batch) error
	// Device is an opaque identifier of where the model's parameters
	// currently reside (e.g. "cpu", "cuda:0"). The discovery algorithms in
	// this package do not read it.
	Device() string
}

// Block is a single transformer block a hook can be attached to.
type Block interface {
	// RegisterHook installs fn as this block's forward interceptor. Only
	// one hook may be registered at a time; callers must Remove the
	// returned handle (or let the scoped helper in extract.go do so)
	// before registering another.
	RegisterHook(fn HookFunc) (HookHandle, error)
}

// HookHandle unregisters a previously-registered hook. Remove is
// idempotent: calling it more than once is a no-op.
type HookHandle interface {
	Remove()
}

// HookFunc observes (and may replace) a block's forward output. Returning
// the input Output unmodified leaves the forward pass unaffected.
type HookFunc func(Output) (Output, error)

// OutputKind records which of the three shapes spec §4.4/§9 enumerates a
// block's native output arrived as, so a hook can reconstruct the same
// structural form on the way out.
type OutputKind int

const (
	// OutputBare is a bare hidden-state tensor.
	OutputBare OutputKind = iota
	// OutputTuple is an ordered tuple whose first element is the hidden
	// state; Rest holds the remaining elements opaquely.
	OutputTuple
	// OutputStruct is a record exposing a named hidden_states field;
	// Rest[0] holds the original struct so a hook can rebuild it.
	OutputStruct
)

// Output is the normalized form of a block's forward-pass output: the
// hidden-state tensor of shape [Batch, Seq, Hidden] (row-major, Data has
// length Batch*Seq*Hidden) plus enough structural metadata to reconstruct
// whatever shape the host's native output carried.
type Output struct {
	Data          []float64
	Batch, Seq, H int
	Kind          OutputKind
	Rest          []any
}

// Batch is a tokenized, padded batch ready for a forward pass.
type Batch struct {
	InputIDs      [][]int
	AttentionMask [][]int
}

// Tokenizer is the external collaborator contract for turning text into a
// Batch (spec §6).
type Tokenizer interface {
	// Encode tokenizes texts with right-padding and truncation to
	// maxLength.
	Encode(texts []string, maxLength int) (Batch, error)
	PadToken() string
	EOSToken() string
}
