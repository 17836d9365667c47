// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"fmt"
	"math"

	"github.com/steeringkit/steeringkit/pkg/steervec"
	"gonum.org/v1/gonum/optimize"
)

// Options controls batching, truncation, and progress reporting shared by
// all three discovery algorithms (spec §4.2).
type Options struct {
	BatchSize int
	MaxLength int
	Progress  ProgressFunc
}

func (o Options) extractOpts(stage string) extractOptions {
	return extractOptions{BatchSize: o.BatchSize, MaxLength: o.MaxLength, Progress: o.Progress, Stage: stage}
}

// MeanDifference discovers a steering direction as the difference between
// the mean activation of the positive examples and the mean activation of
// the negative examples at layer (spec §4.2, mean_difference).
func MeanDifference(ctx context.Context, model Model, tok Tokenizer, layer int, positive, negative []string, opts Options) (*steervec.SteeringVector, error) {
	if len(positive) == 0 || len(negative) == 0 {
		return nil, newErr(KindEmptyExamples, "positive and negative example sets must both be non-empty")
	}

	posAct, err := extractActivations(ctx, positive, model, tok, layer, opts.extractOpts("positive"))
	if err != nil {
		return nil, err
	}
	negAct, err := extractActivations(ctx, negative, model, tok, layer, opts.extractOpts("negative"))
	if err != nil {
		return nil, err
	}

	diff := subtractMeans(posAct, negAct)

	return steervec.Construct(steervec.Params{
		Tensor:    diff,
		Layer:     layer,
		LayerName: layerName(layer),
		ModelName: model.ModelType(),
		Method:    "mean_difference",
	})
}

// CAA discovers a steering direction as the mean of per-pair differences
// between paired positive/negative contrastive examples (spec §4.2, caa —
// Contrastive Activation Addition). positive and negative must have equal
// length; numPairs, if positive, truncates both lists to its first numPairs
// entries before extraction.
func CAA(ctx context.Context, model Model, tok Tokenizer, layer int, positive, negative []string, numPairs int, opts Options) (*steervec.SteeringVector, error) {
	if len(positive) == 0 || len(negative) == 0 {
		return nil, newErr(KindEmptyExamples, "positive and negative example sets must both be non-empty")
	}
	if len(positive) != len(negative) {
		return nil, newErrGW(KindSizeMismatch, "caa requires paired positive/negative examples of equal length", len(positive), len(negative))
	}

	if numPairs > 0 && numPairs < len(positive) {
		positive = positive[:numPairs]
		negative = negative[:numPairs]
	}

	posAct, err := extractActivations(ctx, positive, model, tok, layer, opts.extractOpts("positive"))
	if err != nil {
		return nil, err
	}
	negAct, err := extractActivations(ctx, negative, model, tok, layer, opts.extractOpts("negative"))
	if err != nil {
		return nil, err
	}

	h := len(posAct[0])
	sum := make([]float64, h)
	for i := range posAct {
		for j := 0; j < h; j++ {
			sum[j] += posAct[i][j] - negAct[i][j]
		}
	}
	diff := make([]float64, h)
	n := float64(len(posAct))
	for j := range sum {
		diff[j] = sum[j] / n
	}

	return steervec.Construct(steervec.Params{
		Tensor:    diff,
		Layer:     layer,
		LayerName: layerName(layer),
		ModelName: model.ModelType(),
		Method:    "caa",
	})
}

// LinearProbeOptions configures LinearProbe. C, MaxIter, and Seed mirror
// sklearn.linear_model.LogisticRegression's defaults (solver="lbfgs") so
// the discovered direction matches the original implementation's behavior
// on the same data.
type LinearProbeOptions struct {
	Options
	// C is the inverse L2 regularization strength; smaller values specify
	// stronger regularization. Defaults to 1.0.
	C float64
	// MaxIter bounds the LBFGS optimizer's iterations. Defaults to 1000.
	MaxIter int
	// Standardize z-scores each feature before training. The resulting
	// weight vector is not mapped back: it is returned in the standardized
	// feature space.
	Standardize bool
	// Seed is recorded for parity with the original's deterministic-solver
	// contract; the LBFGS fit here runs full-batch on fixed data with no
	// random component, so it has no effect on the result.
	Seed int64
}

// LinearProbeMetrics reports the fitted classifier's quality (spec §4.2.3:
// train_accuracy, sample counts, C, and the normalization flag).
type LinearProbeMetrics struct {
	TrainAccuracy   float64
	Iterations      int
	PositiveSamples int
	NegativeSamples int
	C               float64
	Standardized    bool
}

// LinearProbe discovers a steering direction as the normal vector of a
// logistic-regression decision boundary separating positive from negative
// activations at layer (spec §4.2, linear_probe).
func LinearProbe(ctx context.Context, model Model, tok Tokenizer, layer int, positive, negative []string, opts LinearProbeOptions) (*steervec.SteeringVector, *LinearProbeMetrics, error) {
	if len(positive) == 0 || len(negative) == 0 {
		return nil, nil, newErr(KindEmptyExamples, "positive and negative example sets must both be non-empty")
	}
	if opts.C <= 0 {
		opts.C = 1.0
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 1000
	}

	posAct, err := extractActivations(ctx, positive, model, tok, layer, opts.extractOpts("positive"))
	if err != nil {
		return nil, nil, err
	}
	negAct, err := extractActivations(ctx, negative, model, tok, layer, opts.extractOpts("negative"))
	if err != nil {
		return nil, nil, err
	}

	x := make([][]float64, 0, len(posAct)+len(negAct))
	y := make([]float64, 0, len(posAct)+len(negAct))
	for _, v := range posAct {
		x = append(x, v)
		y = append(y, 1)
	}
	for _, v := range negAct {
		x = append(x, v)
		y = append(y, -1)
	}

	xTrain := x
	if opts.Standardize {
		xTrain, _ = standardize(x)
	}

	w, b, iters, err := trainLogisticRegression(xTrain, y, opts.C, opts.MaxIter)
	if err != nil {
		return nil, nil, newErr(KindTrainingFailed, "logistic regression did not converge: %v", err)
	}

	correct := 0
	for i, row := range xTrain {
		z := dot(w, row) + b
		pred := 1.0
		if z < 0 {
			pred = -1.0
		}
		if pred == y[i] {
			correct++
		}
	}
	metrics := &LinearProbeMetrics{
		TrainAccuracy:   float64(correct) / float64(len(y)),
		Iterations:      iters,
		PositiveSamples: len(posAct),
		NegativeSamples: len(negAct),
		C:               opts.C,
		Standardized:    opts.Standardize,
	}

	// Per §9's design note: with standardization enabled the returned
	// direction lives in standardized feature space and should be applied
	// as-is; it is only expressed in the raw activation space when
	// standardization is disabled.
	direction := w

	vec, err := steervec.Construct(steervec.Params{
		Tensor:    direction,
		Layer:     layer,
		LayerName: layerName(layer),
		ModelName: model.ModelType(),
		Method:    "linear_probe",
		Metadata: map[string]any{
			"train_accuracy":   metrics.TrainAccuracy,
			"iterations":       metrics.Iterations,
			"positive_samples": metrics.PositiveSamples,
			"negative_samples": metrics.NegativeSamples,
			"C":                metrics.C,
			"normalized":       metrics.Standardized,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return vec, metrics, nil
}

func layerName(layer int) string {
	return fmt.Sprintf("layers.%d", layer)
}

func subtractMeans(pos, neg [][]float64) []float64 {
	h := len(pos[0])
	posMean := make([]float64, h)
	for _, v := range pos {
		for j := 0; j < h; j++ {
			posMean[j] += v[j]
		}
	}
	for j := range posMean {
		posMean[j] /= float64(len(pos))
	}
	negMean := make([]float64, h)
	for _, v := range neg {
		for j := 0; j < h; j++ {
			negMean[j] += v[j]
		}
	}
	for j := range negMean {
		negMean[j] /= float64(len(neg))
	}
	diff := make([]float64, h)
	for j := range diff {
		diff[j] = posMean[j] - negMean[j]
	}
	return diff
}

func standardize(x [][]float64) (out [][]float64, scale []float64) {
	h := len(x[0])
	mean := make([]float64, h)
	for _, row := range x {
		for j := 0; j < h; j++ {
			mean[j] += row[j]
		}
	}
	for j := range mean {
		mean[j] /= float64(len(x))
	}

	scale = make([]float64, h)
	for _, row := range x {
		for j := 0; j < h; j++ {
			d := row[j] - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(len(x)))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}

	out = make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, h)
		for j := 0; j < h; j++ {
			r[j] = (row[j] - mean[j]) / scale[j]
		}
		out[i] = r
	}
	return out, scale
}

// trainLogisticRegression fits an L2-regularized binary logistic regression
// (labels in {-1, +1}) via LBFGS, minimizing
//
//	sum_i softplus(-y_i * (w.x_i + b)) + ||w||^2 / (2*C)
//
// matching sklearn.linear_model.LogisticRegression(solver="lbfgs"), whose
// intercept term is left unregularized.
func trainLogisticRegression(x [][]float64, y []float64, c float64, maxIter int) (w []float64, b float64, iterations int, err error) {
	n := len(x)
	d := len(x[0])
	p := d + 1

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			weights := theta[:d]
			bias := theta[d]
			loss := 0.0
			for i := 0; i < n; i++ {
				z := dot(weights, x[i]) + bias
				loss += softplus(-y[i] * z)
			}
			loss += l2(weights) / (2 * c)
			return loss
		},
		Grad: func(grad, theta []float64) {
			weights := theta[:d]
			bias := theta[d]
			for i := range grad {
				grad[i] = 0
			}
			for i := 0; i < n; i++ {
				z := dot(weights, x[i]) + bias
				s := sigmoid(-y[i]*z) * -y[i]
				for j := 0; j < d; j++ {
					grad[j] += s * x[i][j]
				}
				grad[d] += s
			}
			for j := 0; j < d; j++ {
				grad[j] += weights[j] / c
			}
		},
	}

	init := make([]float64, p)
	result, runErr := optimize.Minimize(problem, init, &optimize.Settings{MajorIterations: maxIter}, &optimize.LBFGS{})
	if runErr != nil {
		return nil, 0, 0, runErr
	}
	if result.Status == optimize.Failure {
		return nil, 0, 0, fmt.Errorf("optimizer reported failure: %s", result.Status)
	}

	return result.X[:d], result.X[d], result.Stats.MajorIterations, nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func l2(v []float64) float64 {
	return dot(v, v)
}

func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
