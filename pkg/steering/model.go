// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package steering

import "context"

// Model is the external collaborator contract SteeringModel drives (spec
// §6). A host that already knows how to resolve its own block modules
// implements this directly; a host that only exposes a generic attribute
// graph instead implements ModuleTree and is wrapped by NewReflectiveModel,
// which performs the architecture-registry-driven resolution spec §4.4
// describes.
type Model interface {
	ModelType() string
	HiddenSize() int
	NumLayers() int
	Block(layer int) (Block, error)
	Forward(ctx context.Context, batch Batch) error
	Device() string
}

// Block is a single transformer block a hook can be attached to.
type Block interface {
	RegisterHook(fn HookFunc) (HookHandle, error)
}

// HookHandle unregisters a previously-registered hook. Remove is
// idempotent.
type HookHandle interface {
	Remove()
}

// HookFunc observes and may replace a block's forward output.
type HookFunc func(Output) (Output, error)

// OutputKind records which of the three shapes spec §4.4/§9 enumerates a
// block's native output arrived as (spec §9, "Polymorphism over
// block-output shapes").
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
// hidden-state tensor of shape [Batch, Seq, Hidden] (row-major) plus
// enough structural metadata to reconstruct whatever native shape the
// host's block produced.
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

// ModuleTree is a minimal, typed stand-in for Python's attribute-walking
// (getattr chains) used to resolve the architecture registry's parent path
// without reflection: Attr walks one path component, Len/BlockAt index
// into the resulting layers sequence.
type ModuleTree interface {
	Attr(name string) (ModuleTree, error)
	Len() (int, error)
	BlockAt(i int) (Block, error)
}

// ReflectiveModel adapts a ModuleTree root into Model by resolving the
// architecture registry's parent path and layers attribute on first
// access and caching the resulting index -> Block mapping (spec §4.4,
// Layer resolution).
type ReflectiveModel struct {
	modelType  string
	hiddenSize int
	device     string
	root       ModuleTree
	forward    func(ctx context.Context, batch Batch) error

	resolved bool
	blocks   []Block
}

// NewReflectiveModel constructs a Model that resolves its blocks by
// walking root according to the architecture registry entry for
// modelType. forward drives the host's actual forward pass.
func NewReflectiveModel(modelType string, hiddenSize int, device string, root ModuleTree, forward func(context.Context, Batch) error) *ReflectiveModel {
	return &ReflectiveModel{modelType: modelType, hiddenSize: hiddenSize, device: device, root: root, forward: forward}
}

func (m *ReflectiveModel) ModelType() string { return m.modelType }
func (m *ReflectiveModel) HiddenSize() int   { return m.hiddenSize }
func (m *ReflectiveModel) Device() string    { return m.device }

func (m *ReflectiveModel) Forward(ctx context.Context, batch Batch) error {
	return m.forward(ctx, batch)
}

func (m *ReflectiveModel) NumLayers() int {
	if err := m.resolve(); err != nil {
		return 0
	}
	return len(m.blocks)
}

func (m *ReflectiveModel) Block(layer int) (Block, error) {
	if err := m.resolve(); err != nil {
		return nil, err
	}
	if layer < 0 || layer >= len(m.blocks) {
		return nil, newErrGW(KindInvalidLayer, "layer out of range", layer, len(m.blocks))
	}
	return m.blocks[layer], nil
}

func (m *ReflectiveModel) resolve() error {
	if m.resolved {
		return nil
	}

	entry, err := lookupArchitecture(m.modelType)
	if err != nil {
		return err
	}

	parent := m.root
	walked := ""
	for _, step := range entry.ParentPath {
		parent, err = parent.Attr(step)
		if err != nil {
			return newErrGW(KindParentNotFound, "resolving parent module path", walked+step, entry.ParentPath)
		}
		walked += step + "."
	}

	layersNode, err := parent.Attr(entry.LayersAttr)
	if err != nil {
		return newErrGW(KindLayersAttrMissing, "layers attribute not found on parent module", entry.LayersAttr, entry.ParentPath)
	}

	n, err := layersNode.Len()
	if err != nil {
		return newErrGW(KindLayersAttrMissing, "layers attribute is not an indexable sequence", entry.LayersAttr, err)
	}

	blocks := make([]Block, n)
	for i := 0; i < n; i++ {
		b, err := layersNode.BlockAt(i)
		if err != nil {
			return newErrGW(KindLayersAttrMissing, "indexing layers attribute", i, n)
		}
		blocks[i] = b
	}

	m.blocks = blocks
	m.resolved = true
	return nil
}
