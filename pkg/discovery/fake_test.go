// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"strconv"
	"strings"
)

// fakeModel and fakeTokenizer give the discovery algorithms a small,
// fully deterministic Model+Tokenizer pair to run against in tests,
// standing in for a live transformer the way pkg/actdump's replay adapter
// does for real use. Each example text encodes its own activation vector
// directly ("2.0,2.0" -> hidden state [2.0, 2.0]) so tests can assert
// exact discovered directions without needing a real model.
type fakeModel struct {
	hidden    int
	numLayers int
	hook      HookFunc
}

func (m *fakeModel) ModelType() string { return "fake" }
func (m *fakeModel) HiddenSize() int   { return m.hidden }
func (m *fakeModel) NumLayers() int    { return m.numLayers }
func (m *fakeModel) Device() string    { return "cpu" }

func (m *fakeModel) Block(layer int) (Block, error) {
	if layer < 0 || layer >= m.numLayers {
		return nil, newErrGW(KindInvalidLayer, "layer out of range", layer, m.numLayers)
	}
	return &fakeBlock{model: m}, nil
}

func (m *fakeModel) Forward(_ context.Context, batch Batch) error {
	if m.hook == nil {
		return nil
	}
	n := len(batch.InputIDs)
	data := make([]float64, n*m.hidden)
	for i, ids := range batch.InputIDs {
		for j := 0; j < m.hidden; j++ {
			v := 0.0
			if j < len(ids) {
				v = float64(ids[j]) / 1000.0
			}
			data[i*m.hidden+j] = v
		}
	}
	_, err := m.hook(Output{Data: data, Batch: n, Seq: 1, H: m.hidden, Kind: OutputBare})
	return err
}

type fakeBlock struct {
	model *fakeModel
}

func (b *fakeBlock) RegisterHook(fn HookFunc) (HookHandle, error) {
	b.model.hook = fn
	return &fakeHandle{model: b.model}, nil
}

type fakeHandle struct {
	model *fakeModel
}

func (h *fakeHandle) Remove() { h.model.hook = nil }

// deadBlock never invokes a registered hook, modeling a host whose forward
// pass never reaches the requested layer.
type deadModel struct {
	hidden, numLayers int
}

func (m *deadModel) ModelType() string              { return "dead" }
func (m *deadModel) HiddenSize() int                { return m.hidden }
func (m *deadModel) NumLayers() int                 { return m.numLayers }
func (m *deadModel) Device() string                  { return "cpu" }
func (m *deadModel) Block(layer int) (Block, error) { return &deadBlock{}, nil }
func (m *deadModel) Forward(_ context.Context, _ Batch) error { return nil }

type deadBlock struct{}

func (b *deadBlock) RegisterHook(fn HookFunc) (HookHandle, error) {
	return &deadHandle{}, nil
}

type deadHandle struct{}

func (h *deadHandle) Remove() {}

type fakeTokenizer struct{}

func (fakeTokenizer) Encode(texts []string, _ int) (Batch, error) {
	batch := Batch{InputIDs: make([][]int, len(texts)), AttentionMask: make([][]int, len(texts))}
	for i, text := range texts {
		parts := strings.Split(text, ",")
		ids := make([]int, len(parts))
		for j, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return Batch{}, err
			}
			ids[j] = int(v * 1000)
		}
		batch.InputIDs[i] = ids
		batch.AttentionMask[i] = []int{1}
	}
	return batch, nil
}

func (fakeTokenizer) PadToken() string { return "<pad>" }
func (fakeTokenizer) EOSToken() string { return "<eos>" }
