// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package steering

import (
	"sort"
	"strings"
	"sync"
)

// ArchEntry describes where a model type keeps its transformer blocks: the
// dotted parent-module path to walk from the model root, and the name of
// the attribute on that parent holding the ordered block sequence (spec
// §4.4, Architecture registry).
type ArchEntry struct {
	ParentPath []string
	LayersAttr string
}

var registryMu sync.Mutex

// registry is the process-wide model-type -> ArchEntry table, seeded with
// the non-exhaustive set spec §4.4 names.
var registry = map[string]ArchEntry{
	"llama":    {ParentPath: []string{"model"}, LayersAttr: "layers"},
	"mistral":  {ParentPath: []string{"model"}, LayersAttr: "layers"},
	"gemma":    {ParentPath: []string{"model"}, LayersAttr: "layers"},
	"gemma2":   {ParentPath: []string{"model"}, LayersAttr: "layers"},
	"phi":      {ParentPath: []string{"model"}, LayersAttr: "layers"},
	"phi3":     {ParentPath: []string{"model"}, LayersAttr: "layers"},
	"qwen2":    {ParentPath: []string{"model"}, LayersAttr: "layers"},
	"qwen2_moe": {ParentPath: []string{"model"}, LayersAttr: "layers"},
	"gpt2":     {ParentPath: []string{"transformer"}, LayersAttr: "h"},
	"gpt_neo":  {ParentPath: []string{"transformer"}, LayersAttr: "h"},
	"gptj":     {ParentPath: []string{"transformer"}, LayersAttr: "h"},
	"bloom":    {ParentPath: []string{"transformer"}, LayersAttr: "h"},
	"falcon":   {ParentPath: []string{"transformer"}, LayersAttr: "h"},
	"gpt_neox": {ParentPath: []string{"gpt_neox"}, LayersAttr: "layers"},
	"opt":      {ParentPath: []string{"model", "decoder"}, LayersAttr: "layers"},
}

// RegisterArchitecture adds or replaces an entry in the architecture
// registry (spec §4.4). parentPath is a dot-separated module path relative
// to the model root (e.g. "model.decoder"); an empty string means the
// layers attribute lives directly on the model root.
func RegisterArchitecture(modelType, parentPath, layersAttr string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	var parts []string
	if parentPath != "" {
		parts = strings.Split(parentPath, ".")
	}
	registry[modelType] = ArchEntry{ParentPath: parts, LayersAttr: layersAttr}
}

// lookupArchitecture returns the registered entry for modelType, or
// UnsupportedArchitecture listing the known keys.
func lookupArchitecture(modelType string) (ArchEntry, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	entry, ok := registry[modelType]
	if !ok {
		known := make([]string, 0, len(registry))
		for k := range registry {
			known = append(known, k)
		}
		sort.Strings(known)
		return ArchEntry{}, newErrGW(KindUnsupportedArchitecture, "unknown model architecture", modelType, known)
	}
	return entry, nil
}
