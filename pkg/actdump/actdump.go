// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package actdump implements a JSON-lines activation-dump format and a
// replay adapter satisfying pkg/discovery's Model and Tokenizer contracts.
// It lets discovery run end-to-end in tests (and in offline analysis
// against a previously captured run) without a live model process attached
// — the recorded dump stands in for the forward passes a host would
// otherwise drive.
package actdump

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/steeringkit/steeringkit/pkg/discovery"
)

// Record is one line of a dump: the tokenized input plus the captured
// hidden-state activation every layer produced for it.
type Record struct {
	Text          string      `json:"text"`
	InputIDs      []int       `json:"input_ids"`
	AttentionMask []int       `json:"attention_mask"`
	// Activations maps layer index -> flattened [seq, hidden] row-major
	// activation for that example.
	Activations map[int][]float64 `json:"activations"`
	Seq         int               `json:"seq"`
	Hidden      int               `json:"hidden"`
}

// Dump is a fully-loaded activation dump: model metadata plus one Record
// per example.
type Dump struct {
	ModelType string `json:"model_type"`
	Hidden    int    `json:"hidden"`
	NumLayers int    `json:"num_layers"`
	Records   []Record
}

// WriteDump serializes records as JSON lines to w, one header line
// followed by one line per record.
func WriteDump(w io.Writer, modelType string, hidden, numLayers int, records []Record) error {
	enc := json.NewEncoder(w)
	header := struct {
		ModelType string `json:"model_type"`
		Hidden    int    `json:"hidden"`
		NumLayers int    `json:"num_layers"`
	}{modelType, hidden, numLayers}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("actdump: write header: %w", err)
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("actdump: write record: %w", err)
		}
	}
	return nil
}

// LoadDump reads a JSON-lines activation dump previously written by
// WriteDump.
func LoadDump(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("actdump: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("actdump: %s is empty", path)
	}
	var header struct {
		ModelType string `json:"model_type"`
		Hidden    int    `json:"hidden"`
		NumLayers int    `json:"num_layers"`
	}
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, fmt.Errorf("actdump: parse header: %w", err)
	}

	dump := &Dump{ModelType: header.ModelType, Hidden: header.Hidden, NumLayers: header.NumLayers}
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("actdump: parse record: %w", err)
		}
		dump.Records = append(dump.Records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("actdump: scan %s: %w", path, err)
	}
	return dump, nil
}

// ReplayModel implements discovery.Model by looking up each forwarded
// example's pre-recorded activation in a Dump rather than running a real
// model. Batches it receives must have been produced by ReplayTokenizer
// (or otherwise carry InputIDs whose first token is the record index),
// matching the lookup contract the write side establishes.
type ReplayModel struct {
	dump   *Dump
	blocks map[int]*replayBlock
}

// NewReplayModel wraps dump for use as a discovery.Model.
func NewReplayModel(dump *Dump) *ReplayModel {
	return &ReplayModel{dump: dump, blocks: make(map[int]*replayBlock)}
}

func (m *ReplayModel) ModelType() string { return m.dump.ModelType }
func (m *ReplayModel) HiddenSize() int   { return m.dump.Hidden }
func (m *ReplayModel) NumLayers() int    { return m.dump.NumLayers }
func (m *ReplayModel) Device() string    { return "cpu" }

func (m *ReplayModel) Block(layer int) (discovery.Block, error) {
	if layer < 0 || layer >= m.dump.NumLayers {
		return nil, fmt.Errorf("actdump: layer %d out of range [0,%d)", layer, m.dump.NumLayers)
	}
	b, ok := m.blocks[layer]
	if !ok {
		b = &replayBlock{model: m, layer: layer}
		m.blocks[layer] = b
	}
	return b, nil
}

// Forward looks up each batch example's pre-recorded activation for every
// layer that currently has a hook registered, and fires that hook — the
// replay stand-in for a real forward pass driving a live hook. Once ctx is
// done it returns ctx's error without firing any hook.
func (m *ReplayModel) Forward(ctx context.Context, batch discovery.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, b := range m.blocks {
		if b.hook == nil {
			continue
		}
		out, err := m.buildOutput(b.layer, batch)
		if err != nil {
			return err
		}
		if _, err := b.hook(out); err != nil {
			return err
		}
	}
	return nil
}

func (m *ReplayModel) buildOutput(layer int, batch discovery.Batch) (discovery.Output, error) {
	n := len(batch.InputIDs)
	if n == 0 {
		return discovery.Output{}, fmt.Errorf("actdump: empty batch")
	}

	first, err := m.recordFor(batch.InputIDs[0])
	if err != nil {
		return discovery.Output{}, err
	}
	seq := first.Seq

	data := make([]float64, n*seq*m.dump.Hidden)
	for i, ids := range batch.InputIDs {
		r, err := m.recordFor(ids)
		if err != nil {
			return discovery.Output{}, err
		}
		if r.Seq != seq {
			return discovery.Output{}, fmt.Errorf("actdump: replay requires uniform sequence length within a batch, got %d and %d", r.Seq, seq)
		}
		act, ok := r.Activations[layer]
		if !ok {
			return discovery.Output{}, fmt.Errorf("actdump: record %q has no activation for layer %d", r.Text, layer)
		}
		copy(data[i*seq*m.dump.Hidden:], act)
	}

	return discovery.Output{Data: data, Batch: n, Seq: seq, H: m.dump.Hidden, Kind: discovery.OutputBare}, nil
}

func (m *ReplayModel) recordFor(ids []int) (*Record, error) {
	if len(ids) == 0 || ids[0] < 0 || ids[0] >= len(m.dump.Records) {
		return nil, fmt.Errorf("actdump: input ids do not encode a valid dump record index")
	}
	return &m.dump.Records[ids[0]], nil
}

type replayBlock struct {
	model *ReplayModel
	layer int
	hook  discovery.HookFunc
}

func (b *replayBlock) RegisterHook(fn discovery.HookFunc) (discovery.HookHandle, error) {
	b.hook = fn
	return &replayHandle{block: b}, nil
}

type replayHandle struct {
	block *replayBlock
}

func (h *replayHandle) Remove() { h.block.hook = nil }

// ReplayTokenizer turns example texts into lookup keys ReplayModel's
// Forward understands: the record's index in the dump, encoded as a
// single-token InputIDs entry.
type ReplayTokenizer struct {
	dump  *Dump
	index map[string]int
}

// NewReplayTokenizer builds a tokenizer that maps each dump record's text
// back to its index, so encoding the same texts the dump was captured
// against reproduces the recorded activations exactly.
func NewReplayTokenizer(dump *Dump) *ReplayTokenizer {
	idx := make(map[string]int, len(dump.Records))
	for i, r := range dump.Records {
		idx[r.Text] = i
	}
	return &ReplayTokenizer{dump: dump, index: idx}
}

func (t *ReplayTokenizer) Encode(texts []string, _ int) (discovery.Batch, error) {
	batch := discovery.Batch{InputIDs: make([][]int, len(texts)), AttentionMask: make([][]int, len(texts))}
	for i, text := range texts {
		idx, ok := t.index[text]
		if !ok {
			return discovery.Batch{}, fmt.Errorf("actdump: text not present in dump: %q", text)
		}
		batch.InputIDs[i] = []int{idx}
		batch.AttentionMask[i] = []int{1}
	}
	return batch, nil
}

func (t *ReplayTokenizer) PadToken() string { return "<pad>" }
func (t *ReplayTokenizer) EOSToken() string { return "<eos>" }
