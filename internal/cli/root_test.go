// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import "testing"

func TestRootOpts_JSONOut(t *testing.T) {
	tests := []struct {
		format string
		want   bool
	}{
		{"json", true},
		{"JSON", true},
		{"text", false},
		{"", false},
	}
	for _, tt := range tests {
		ro := &RootOpts{Format: tt.format}
		if got := ro.JSONOut(); got != tt.want {
			t.Errorf("JSONOut() with Format=%q = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := newRootCmd("v0.0.0-test")
	want := []string{"discover", "vector", "compose", "serve", "version"}
	for _, name := range want {
		if c, _, err := cmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("expected subcommand %q to be registered, err=%v", name, err)
		}
	}
}

func TestResolveVectorDir_DefaultsWhenUnset(t *testing.T) {
	t.Setenv("STEERINGKIT_CONFIG", "")
	t.Setenv("HOME", t.TempDir())
	ro := &RootOpts{}
	dir, err := resolveVectorDir(ro)
	if err != nil {
		t.Fatalf("resolveVectorDir: %v", err)
	}
	if dir != "./vectors" {
		t.Errorf("dir = %q, want ./vectors", dir)
	}
}

func TestResolveVectorDir_FlagOverridesDefault(t *testing.T) {
	t.Setenv("STEERINGKIT_CONFIG", "")
	t.Setenv("HOME", t.TempDir())
	ro := &RootOpts{VectorDir: "/custom/vectors"}
	dir, err := resolveVectorDir(ro)
	if err != nil {
		t.Fatalf("resolveVectorDir: %v", err)
	}
	if dir != "/custom/vectors" {
		t.Errorf("dir = %q, want /custom/vectors", dir)
	}
}
