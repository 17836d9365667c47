// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/steeringkit/steeringkit/internal/tui"
	"github.com/steeringkit/steeringkit/pkg/composition"
	"github.com/steeringkit/steeringkit/pkg/steervec"
)

func newComposeCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Combine, compare, and inspect saved steering vectors",
	}
	cmd.AddCommand(newComposeWeightedSumCmd(ro))
	cmd.AddCommand(newComposeSimilarityCmd(ro))
	cmd.AddCommand(newComposeConflictsCmd(ro))
	cmd.AddCommand(newComposeOrthogonalizeCmd(ro))
	cmd.AddCommand(newComposeAnalyzeCmd(ro))
	cmd.AddCommand(newComposePickCmd(ro))
	return cmd
}

func loadVectors(prefixes []string) ([]*steervec.SteeringVector, error) {
	vectors := make([]*steervec.SteeringVector, len(prefixes))
	for i, p := range prefixes {
		v, err := steervec.Load(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func parseWeights(raw string, n int) ([]float64, error) {
	if raw == "" {
		weights := make([]float64, n)
		for i := range weights {
			weights[i] = 1.0
		}
		return weights, nil
	}
	parts := strings.Split(raw, ",")
	weights := make([]float64, len(parts))
	for i, p := range parts {
		w, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", p, err)
		}
		weights[i] = w
	}
	return weights, nil
}

func newComposeWeightedSumCmd(ro *RootOpts) *cobra.Command {
	var (
		weights   string
		normalize bool
		out       string
	)
	cmd := &cobra.Command{
		Use:   "weighted-sum <prefix> [prefix...]",
		Short: "Combine vectors into one, optionally unit-normalized",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vectors, err := loadVectors(args)
			if err != nil {
				return err
			}
			w, err := parseWeights(weights, len(vectors))
			if err != nil {
				return err
			}
			result, err := composition.WeightedSum(vectors, w, normalize)
			if err != nil {
				return err
			}
			if out == "" {
				out = "combined"
			}
			if err := result.Save(out); err != nil {
				return err
			}
			printf(ro, "wrote %s.json / %s.pt -- %s\n", out, out, result.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&weights, "weights", "", "Comma-separated weights, one per vector (default: all 1.0)")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "Unit-normalize the resulting vector")
	cmd.Flags().StringVarP(&out, "output", "o", "combined", "Output path prefix")
	return cmd
}

func newComposeSimilarityCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similarity <prefix-a> <prefix-b>",
		Short: "Print the cosine similarity between two vectors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vectors, err := loadVectors(args)
			if err != nil {
				return err
			}
			sim, err := composition.ComputeSimilarity(vectors[0], vectors[1])
			if err != nil {
				return err
			}
			if ro.JSONOut() {
				return json.NewEncoder(os.Stdout).Encode(map[string]float64{"similarity": sim})
			}
			printf(ro, "%.6f\n", sim)
			return nil
		},
	}
	return cmd
}

func newComposeConflictsCmd(ro *RootOpts) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "conflicts <prefix> [prefix...]",
		Short: "List pairs of vectors whose absolute similarity meets or exceeds the conflict threshold",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vectors, err := loadVectors(args)
			if err != nil {
				return err
			}
			t := threshold
			if t <= 0 {
				t = composition.DefaultConflictThreshold
			}
			conflicts, err := composition.DetectConflicts(vectors, t)
			if err != nil {
				return err
			}
			if ro.JSONOut() {
				return json.NewEncoder(os.Stdout).Encode(conflicts)
			}
			if len(conflicts) == 0 {
				printf(ro, "no conflicts at threshold %.2f\n", t)
				return nil
			}
			for _, c := range conflicts {
				printf(ro, "%s <-> %s: %.4f\n", args[c.I], args[c.J], c.Similarity)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Similarity threshold (default: 0.7)")
	return cmd
}

func newComposeOrthogonalizeCmd(ro *RootOpts) *cobra.Command {
	var outPrefix string
	cmd := &cobra.Command{
		Use:   "orthogonalize <prefix> [prefix...]",
		Short: "Gram-Schmidt orthogonalize a set of vectors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vectors, err := loadVectors(args)
			if err != nil {
				return err
			}
			out, err := composition.Orthogonalize(vectors)
			if err != nil {
				return err
			}
			for i, v := range out {
				dest := fmt.Sprintf("%s-%d", outPrefix, i)
				if err := v.Save(dest); err != nil {
					return err
				}
				printf(ro, "wrote %s.json / %s.pt -- %s\n", dest, dest, v.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPrefix, "output-prefix", "o", "orthogonal", "Output path prefix; index appended per vector")
	return cmd
}

func newComposeAnalyzeCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <prefix> [prefix...]",
		Short: "Print a similarity matrix, conflicts, and magnitude summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vectors, err := loadVectors(args)
			if err != nil {
				return err
			}
			analysis, err := composition.AnalyzeComposition(vectors)
			if err != nil {
				return err
			}
			if ro.JSONOut() {
				return json.NewEncoder(os.Stdout).Encode(analysis)
			}
			printf(ro, "vectors: %d, mean magnitude: %.4f\n", analysis.Count, analysis.MeanMagnitude)
			for _, c := range analysis.Conflicts {
				printf(ro, "conflict: %s <-> %s (%.4f)\n", args[c.I], args[c.J], c.Similarity)
			}
			for _, r := range analysis.Recommendations {
				printf(ro, "- %s\n", r)
			}
			return nil
		},
	}
	return cmd
}

func newComposePickCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Interactively multi-select saved vectors to compose",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveVectorDir(ro)
			if err != nil {
				return err
			}
			prefixes, err := listVectorPrefixes(dir)
			if err != nil {
				return err
			}
			vectors, err := loadVectors(prefixes)
			if err != nil {
				return err
			}

			entries := make([]tui.VectorEntry, len(vectors))
			for i, v := range vectors {
				entries[i] = tui.VectorEntry{
					Prefix:    prefixes[i],
					ModelName: v.ModelName,
					LayerName: v.LayerName,
					Method:    v.Method,
					Magnitude: v.Magnitude,
				}
			}

			if !term.IsTerminal(int(os.Stdout.Fd())) {
				for _, e := range entries {
					printf(ro, "%s\n", e.Prefix)
				}
				return nil
			}

			result, err := tui.RunVectorPicker(entries)
			if err != nil {
				return err
			}
			switch result.Action {
			case "compose":
				printf(ro, "%s\n", result.CLICommand)
			case "copy":
				printf(ro, "copied to clipboard: %s\n", result.CLICommand)
			}
			return nil
		},
	}
	return cmd
}
