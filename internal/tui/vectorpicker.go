// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package tui implements steerctl's interactive terminal pickers, adapted
// from the teacher's bubbletea-based branch/file selector
// (internal/tui/selector.go in the teacher tree) to the steering-vector
// domain: instead of picking quantization/variant files to download, the
// operator multi-selects saved SteeringVectors to compose.
package tui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

// VectorEntry is one selectable saved vector, as summarized for display.
type VectorEntry struct {
	Prefix    string
	ModelName string
	LayerName string
	Method    string
	Magnitude float64
}

// VectorPickerResult is the outcome of a picker session.
type VectorPickerResult struct {
	// Action is "compose", "copy", or "cancel".
	Action string
	// SelectedPrefixes are the on-disk prefixes the operator chose.
	SelectedPrefixes []string
	// CLICommand is the generated `steerctl compose ...` invocation.
	CLICommand string
}

type entryState struct {
	Entry    VectorEntry
	Selected bool
}

// VectorPickerModel is the bubbletea model for multi-selecting vectors.
type VectorPickerModel struct {
	items  []entryState
	cursor int

	result VectorPickerResult
	done   bool
}

// NewVectorPickerModel builds a picker over entries.
func NewVectorPickerModel(entries []VectorEntry) *VectorPickerModel {
	m := &VectorPickerModel{items: make([]entryState, len(entries))}
	for i, e := range entries {
		m.items[i] = entryState{Entry: e}
	}
	return m
}

func (m *VectorPickerModel) Init() tea.Cmd { return nil }

func (m *VectorPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "ctrl+c", "q":
		m.result.Action = "cancel"
		m.done = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case " ":
		if len(m.items) > 0 {
			m.items[m.cursor].Selected = !m.items[m.cursor].Selected
		}

	case "a":
		m.selectAll(true)

	case "n":
		m.selectAll(false)

	case "enter":
		m.result.Action = "compose"
		m.result.SelectedPrefixes = m.selectedPrefixes()
		m.result.CLICommand = m.generateCommand()
		m.done = true
		return m, tea.Quit

	case "c":
		cmd := m.generateCommand()
		if err := clipboard.WriteAll(cmd); err == nil {
			m.result.Action = "copy"
			m.result.CLICommand = cmd
			m.result.SelectedPrefixes = m.selectedPrefixes()
			m.done = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *VectorPickerModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Steering vectors") + "\n")
	b.WriteString(SubtitleStyle.Render(fmt.Sprintf("%d found", len(m.items))) + "\n\n")

	for i, s := range m.items {
		cursor := "  "
		if m.cursor == i {
			cursor = CursorStyle.Render("> ")
		}
		checkbox := RenderCheckbox(s.Selected)
		label := fmt.Sprintf("%s  layer=%s  method=%s  |v|=%.3f", s.Entry.Prefix, s.Entry.LayerName, s.Entry.Method, s.Entry.Magnitude)
		line := fmt.Sprintf("%s%s %s", cursor, checkbox, label)
		if m.cursor == i {
			line = SelectedItemStyle.Render(line)
		} else {
			line = ItemStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	cmd := m.generateCommand()
	cmdBox := CommandLabelStyle.Render("Command: ") + CommandTextStyle.Render(cmd)
	b.WriteString(CommandBoxStyle.Render(cmdBox) + "\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *VectorPickerModel) selectAll(selected bool) {
	for i := range m.items {
		m.items[i].Selected = selected
	}
}

func (m *VectorPickerModel) selectedPrefixes() []string {
	var prefixes []string
	for _, s := range m.items {
		if s.Selected {
			prefixes = append(prefixes, s.Entry.Prefix)
		}
	}
	return prefixes
}

func (m *VectorPickerModel) generateCommand() string {
	prefixes := m.selectedPrefixes()
	if len(prefixes) == 0 {
		return "steerctl compose weighted-sum <select at least one vector>"
	}
	return "steerctl compose weighted-sum " + strings.Join(prefixes, " ") + " -o combined"
}

func (m *VectorPickerModel) renderFooter() string {
	keys := []struct{ key, desc string }{
		{"↑↓", "navigate"},
		{"space", "toggle"},
		{"a", "all"},
		{"n", "none"},
		{"enter", "compose"},
		{"c", "copy cmd"},
		{"q", "quit"},
	}
	var parts []string
	for _, k := range keys {
		parts = append(parts, HelpKeyStyle.Render(k.key)+" "+HelpStyle.Render(k.desc))
	}
	return FooterStyle.Render(strings.Join(parts, " • "))
}

// Result returns the final selection result; call after the tea.Program
// has finished running.
func (m *VectorPickerModel) Result() VectorPickerResult {
	return m.result
}

// RunVectorPicker launches the interactive multi-select picker over
// entries.
func RunVectorPicker(entries []VectorEntry) (*VectorPickerResult, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no steering vectors found")
	}

	model := NewVectorPickerModel(entries)
	p := tea.NewProgram(model, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to run vector picker: %w", err)
	}

	m := finalModel.(*VectorPickerModel)
	result := m.Result()
	return &result, nil
}

var _ tea.Model = (*VectorPickerModel)(nil)
