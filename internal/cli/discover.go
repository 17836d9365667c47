// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steeringkit/steeringkit/pkg/actdump"
	"github.com/steeringkit/steeringkit/pkg/discovery"
)

// readLines reads one example per non-empty line from path.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func newDiscoverCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover a steering vector from recorded activations",
	}
	cmd.AddCommand(newDiscoverMeanDiffCmd(ro))
	cmd.AddCommand(newDiscoverCAACmd(ro))
	cmd.AddCommand(newDiscoverProbeCmd(ro))
	return cmd
}

type discoverFlags struct {
	dump      string
	layer     int
	positive  string
	negative  string
	out       string
	batchSize int
	maxLength int
}

func addDiscoverFlags(cmd *cobra.Command, f *discoverFlags) {
	cmd.Flags().StringVar(&f.dump, "dump", "", "Path to an activation-dump JSON-lines file (pkg/actdump format)")
	cmd.Flags().IntVar(&f.layer, "layer", 0, "Transformer block index to read activations from")
	cmd.Flags().StringVar(&f.positive, "positive", "", "Path to a file of positive examples, one per line")
	cmd.Flags().StringVar(&f.negative, "negative", "", "Path to a file of negative examples, one per line")
	cmd.Flags().StringVarP(&f.out, "output", "o", "vector", "Output path prefix for the discovered vector")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", discovery.DefaultBatchSize, "Examples per forward pass")
	cmd.Flags().IntVar(&f.maxLength, "max-length", discovery.DefaultMaxLength, "Max tokens per example")
	cmd.MarkFlagRequired("dump")
	cmd.MarkFlagRequired("positive")
	cmd.MarkFlagRequired("negative")
}

func (f *discoverFlags) load() (*actdump.ReplayModel, *actdump.ReplayTokenizer, []string, []string, error) {
	dump, err := actdump.LoadDump(f.dump)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load dump: %w", err)
	}
	pos, err := readLines(f.positive)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("read positive examples: %w", err)
	}
	neg, err := readLines(f.negative)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("read negative examples: %w", err)
	}
	return actdump.NewReplayModel(dump), actdump.NewReplayTokenizer(dump), pos, neg, nil
}

func progressPrinter(ro *RootOpts) discovery.ProgressFunc {
	return func(ev discovery.ProgressEvent) {
		verbosef(ro, "[%s] batch %d/%d (%d/%d examples)\n", ev.Stage, ev.BatchIndex+1, ev.BatchCount, ev.ExamplesDone, ev.ExamplesTotal)
	}
}

func newDiscoverMeanDiffCmd(ro *RootOpts) *cobra.Command {
	f := &discoverFlags{}
	cmd := &cobra.Command{
		Use:   "mean-difference",
		Short: "Discover a vector as the mean activation difference between example sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, tok, pos, neg, err := f.load()
			if err != nil {
				return err
			}
			opts := discovery.Options{BatchSize: f.batchSize, MaxLength: f.maxLength, Progress: progressPrinter(ro)}
			vec, err := discovery.MeanDifference(context.Background(), model, tok, f.layer, pos, neg, opts)
			if err != nil {
				return err
			}
			if err := vec.Save(f.out); err != nil {
				return err
			}
			printf(ro, "wrote %s.json / %s.pt -- %s\n", f.out, f.out, vec.String())
			return nil
		},
	}
	addDiscoverFlags(cmd, f)
	return cmd
}

func newDiscoverCAACmd(ro *RootOpts) *cobra.Command {
	f := &discoverFlags{}
	var numPairs int
	cmd := &cobra.Command{
		Use:   "caa",
		Short: "Discover a vector via contrastive activation addition over paired examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, tok, pos, neg, err := f.load()
			if err != nil {
				return err
			}
			opts := discovery.Options{BatchSize: f.batchSize, MaxLength: f.maxLength, Progress: progressPrinter(ro)}
			vec, err := discovery.CAA(context.Background(), model, tok, f.layer, pos, neg, numPairs, opts)
			if err != nil {
				return err
			}
			if err := vec.Save(f.out); err != nil {
				return err
			}
			printf(ro, "wrote %s.json / %s.pt -- %s\n", f.out, f.out, vec.String())
			return nil
		},
	}
	addDiscoverFlags(cmd, f)
	cmd.Flags().IntVar(&numPairs, "num-pairs", 0, "Truncate both example sets to this many pairs (0: use all)")
	return cmd
}

func newDiscoverProbeCmd(ro *RootOpts) *cobra.Command {
	f := &discoverFlags{}
	var (
		c           float64
		maxIter     int
		standardize bool
	)
	cmd := &cobra.Command{
		Use:   "linear-probe",
		Short: "Discover a vector as the normal of a logistic-regression decision boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, tok, pos, neg, err := f.load()
			if err != nil {
				return err
			}
			opts := discovery.LinearProbeOptions{
				Options:     discovery.Options{BatchSize: f.batchSize, MaxLength: f.maxLength, Progress: progressPrinter(ro)},
				C:           c,
				MaxIter:     maxIter,
				Standardize: standardize,
			}
			vec, metrics, err := discovery.LinearProbe(context.Background(), model, tok, f.layer, pos, neg, opts)
			if err != nil {
				return err
			}
			if err := vec.Save(f.out); err != nil {
				return err
			}
			printf(ro, "wrote %s.json / %s.pt -- %s (train accuracy %.3f, %d iterations)\n",
				f.out, f.out, vec.String(), metrics.TrainAccuracy, metrics.Iterations)
			return nil
		},
	}
	addDiscoverFlags(cmd, f)
	cmd.Flags().Float64Var(&c, "c", 1.0, "Inverse L2 regularization strength")
	cmd.Flags().IntVar(&maxIter, "max-iter", 1000, "Max LBFGS iterations")
	cmd.Flags().BoolVar(&standardize, "standardize", true, "Z-score features before fitting")
	return cmd
}
