// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/steeringkit/steeringkit/pkg/steervec"
)

func newVectorCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Inspect and validate saved steering vectors",
	}
	cmd.AddCommand(newVectorInspectCmd(ro))
	cmd.AddCommand(newVectorValidateCmd(ro))
	cmd.AddCommand(newVectorToDeviceCmd(ro))
	cmd.AddCommand(newVectorListCmd(ro))
	return cmd
}

func newVectorInspectCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <prefix>",
		Short: "Print a saved vector's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := steervec.Load(args[0])
			if err != nil {
				return err
			}
			return printVector(ro, vec)
		},
	}
	return cmd
}

func newVectorValidateCmd(ro *RootOpts) *cobra.Command {
	var expectedDim int
	cmd := &cobra.Command{
		Use:   "validate <prefix>",
		Short: "Re-check a vector's magnitude and finiteness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := steervec.Load(args[0])
			if err != nil {
				return err
			}
			if expectedDim > 0 {
				err = vec.Validate(expectedDim)
			} else {
				err = vec.Validate()
			}
			if err != nil {
				return err
			}
			printf(ro, "ok: %s\n", vec.String())
			return nil
		},
	}
	cmd.Flags().IntVar(&expectedDim, "expect-dim", 0, "Require the tensor to have this many elements")
	return cmd
}

func newVectorToDeviceCmd(ro *RootOpts) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "to-device <prefix> <device>",
		Short: "Save a ToDevice copy of a vector (the device itself is not persisted)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := steervec.Load(args[0])
			if err != nil {
				return err
			}
			moved := vec.ToDevice(args[1])
			dest := out
			if dest == "" {
				dest = args[0] + "." + args[1]
			}
			if err := moved.Save(dest); err != nil {
				return err
			}
			printf(ro, "wrote %s.json / %s.pt\n", dest, dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output path prefix (default: <prefix>.<device>)")
	return cmd
}

func newVectorListCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved vectors under --vector-dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveVectorDir(ro)
			if err != nil {
				return err
			}
			prefixes, err := listVectorPrefixes(dir)
			if err != nil {
				return err
			}
			for _, p := range prefixes {
				printf(ro, "%s\n", p)
			}
			return nil
		},
	}
	return cmd
}

// listVectorPrefixes scans dir for *.json/*.pt sidecar pairs and returns
// the distinct path prefixes, sorted.
func listVectorPrefixes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	seen := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".json" && ext != ".pt" {
			continue
		}
		base := e.Name()[:len(e.Name())-len(ext)]
		seen[filepath.Join(dir, base)] = true
	}

	prefixes := make([]string, 0, len(seen))
	for p := range seen {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

func printVector(ro *RootOpts, vec *steervec.SteeringVector) error {
	if ro.JSONOut() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(vec)
	}
	fmt.Fprintln(os.Stdout, vec.String())
	fmt.Fprintf(os.Stdout, "  device:    %s\n", vec.Device)
	fmt.Fprintf(os.Stdout, "  dtype:     %s\n", vec.Dtype)
	fmt.Fprintf(os.Stdout, "  createdAt: %s\n", vec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	if len(vec.Metadata) > 0 {
		fmt.Fprintln(os.Stdout, "  metadata:")
		keys := make([]string, 0, len(vec.Metadata))
		for k := range vec.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(os.Stdout, "    %s: %v\n", k, vec.Metadata[k])
		}
	}
	return nil
}
