// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package steering

import (
	"context"
	"errors"
)

// fakeModel is a minimal Model whose blocks just record whatever hook is
// registered and invoke it on Forward, standing in for a live transformer
// in tests the way pkg/actdump's replay adapter does for real use.
type fakeModel struct {
	hidden    int
	numLayers int
	blocks    []*fakeBlock
}

func newFakeModel(hidden, numLayers int) *fakeModel {
	m := &fakeModel{hidden: hidden, numLayers: numLayers, blocks: make([]*fakeBlock, numLayers)}
	for i := range m.blocks {
		m.blocks[i] = &fakeBlock{}
	}
	return m
}

func (m *fakeModel) ModelType() string { return "fake" }
func (m *fakeModel) HiddenSize() int   { return m.hidden }
func (m *fakeModel) NumLayers() int    { return m.numLayers }
func (m *fakeModel) Device() string    { return "cpu" }

func (m *fakeModel) Block(layer int) (Block, error) {
	if layer < 0 || layer >= m.numLayers {
		return nil, newErrGW(KindInvalidLayer, "layer out of range", layer, m.numLayers)
	}
	return m.blocks[layer], nil
}

// Forward runs every layer's hook in order over a single-token batch of
// zeros, the way a real transformer would feed block i's output into
// block i+1.
func (m *fakeModel) Forward(_ context.Context, batch Batch) error {
	n := len(batch.InputIDs)
	data := make([]float64, n*m.hidden)
	out := Output{Data: data, Batch: n, Seq: 1, H: m.hidden, Kind: OutputBare}
	for _, b := range m.blocks {
		if b.hook == nil {
			continue
		}
		var err error
		out, err = b.hook(out)
		if err != nil {
			return err
		}
	}
	return nil
}

type fakeBlock struct {
	hook HookFunc
}

func (b *fakeBlock) RegisterHook(fn HookFunc) (HookHandle, error) {
	b.hook = fn
	return &fakeHandle{block: b}, nil
}

type fakeHandle struct {
	block *fakeBlock
}

func (h *fakeHandle) Remove() { h.block.hook = nil }

// failingGenerator always returns an error, modeling a host generate call
// that throws partway through (seed scenario 6).
type failingGenerator struct{}

func (failingGenerator) Generate(_ context.Context, _ []string) ([]string, error) {
	return nil, errors.New("generation backend crashed")
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompts []string) ([]string, error) {
	out := make([]string, len(prompts))
	copy(out, prompts)
	return out, nil
}
