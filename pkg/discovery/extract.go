// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package discovery

import "context"

// DefaultBatchSize and DefaultMaxLength match spec §4.2's stated defaults.
const (
	DefaultBatchSize = 8
	DefaultMaxLength = 128
)

// ProgressEvent reports activation-extraction progress. It supplements the
// distilled spec (§A.3/C.1 of SPEC_FULL.md): the original Python discovery
// module logs batch boundaries via logger.info; this is the Go-idiomatic
// equivalent — an optional, purely observational callback that changes no
// returned value.
type ProgressEvent struct {
	// Stage is a short caller-supplied label, e.g. "positive" or "negative".
	Stage                  string
	BatchIndex, BatchCount int
	ExamplesDone, ExamplesTotal int
}

// ProgressFunc receives ProgressEvents. A nil ProgressFunc disables
// reporting.
type ProgressFunc func(ProgressEvent)

// extractOptions bundles the shared extraction parameters so the three
// discovery algorithms don't each repeat the same six-argument signature.
type extractOptions struct {
	BatchSize int
	MaxLength int
	Progress  ProgressFunc
	Stage     string
}

func (o extractOptions) withDefaults() extractOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultMaxLength
	}
	return o
}

// extractActivations implements the activation extraction subroutine
// shared by all three discovery algorithms (spec §4.2):
//
//  1. resolve the block module at layer,
//  2. for each batch of texts, tokenize, run one forward pass under a
//     one-shot interceptor that captures the block's output hidden state,
//     mean-pools it over the sequence axis, and is removed on every exit
//     path (including error returns), and
//  3. concatenate the per-batch [batch, H] results into [len(texts), H].
func extractActivations(ctx context.Context, texts []string, model Model, tok Tokenizer, layer int, opts extractOptions) ([][]float64, error) {
	opts = opts.withDefaults()

	if err := checkLayer(layer, model.NumLayers()); err != nil {
		return nil, err
	}

	block, err := model.Block(layer)
	if err != nil {
		return nil, newErr(KindNoActivationCapture, "resolve block %d: %v", layer, err)
	}

	result := make([][]float64, 0, len(texts))
	batchCount := (len(texts) + opts.BatchSize - 1) / opts.BatchSize

	for start := 0; start < len(texts); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchTexts := texts[start:end]

		batchInput, err := tok.Encode(batchTexts, opts.MaxLength)
		if err != nil {
			return nil, newErr(KindNoActivationCapture, "tokenize batch starting at %d: %v", start, err)
		}

		pooled, err := runOneBatch(ctx, model, block, batchInput, layer)
		if err != nil {
			return nil, err
		}
		result = append(result, pooled...)

		if opts.Progress != nil {
			opts.Progress(ProgressEvent{
				Stage:          opts.Stage,
				BatchIndex:     start / opts.BatchSize,
				BatchCount:     batchCount,
				ExamplesDone:   end,
				ExamplesTotal:  len(texts),
			})
		}
	}

	return result, nil
}

// runOneBatch registers a one-shot capturing hook as a scoped resource —
// its Remove fires via defer on every exit path, including the forward
// pass returning an error — runs the forward pass, and mean-pools whatever
// hidden state the hook captured over the sequence axis.
func runOneBatch(ctx context.Context, model Model, block Block, batch Batch, layer int) ([][]float64, error) {
	var captured *Output

	handle, err := block.RegisterHook(func(out Output) (Output, error) {
		cp := out
		cp.Data = append([]float64(nil), out.Data...)
		captured = &cp
		return out, nil
	})
	if err != nil {
		return nil, newErr(KindNoActivationCapture, "register hook on layer %d: %v", layer, err)
	}
	defer handle.Remove()

	if err := model.Forward(ctx, batch); err != nil {
		return nil, newErr(KindNoActivationCapture, "forward pass on layer %d: %v", layer, err)
	}

	if captured == nil {
		return nil, newErr(KindNoActivationCapture, "block %d never fired during forward pass", layer)
	}

	return meanPoolSequence(*captured), nil
}

// meanPoolSequence averages a captured [batch, seq, hidden] activation over
// the sequence axis, producing batch vectors of length hidden.
func meanPoolSequence(out Output) [][]float64 {
	result := make([][]float64, out.Batch)
	for b := 0; b < out.Batch; b++ {
		vec := make([]float64, out.H)
		base := b * out.Seq * out.H
		for s := 0; s < out.Seq; s++ {
			row := base + s*out.H
			for h := 0; h < out.H; h++ {
				vec[h] += out.Data[row+h]
			}
		}
		inv := 1.0 / float64(out.Seq)
		for h := range vec {
			vec[h] *= inv
		}
		result[b] = vec
	}
	return result
}

func checkLayer(layer, numLayers int) error {
	if layer < 0 || layer >= numLayers {
		return newErrGW(KindInvalidLayer, "layer out of range", layer, numLayers)
	}
	return nil
}
