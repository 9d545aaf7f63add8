// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette for terminal output. Styles are applied only through Styled, which
// returns plain text when stdout is not a terminal.
var (
	StatusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	StatusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	StatusInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	Muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	Header      = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Status symbols prefixed by the Render helpers.
const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
)

func withSymbol(style lipgloss.Style, symbol, msg string) string {
	return Styled(style, symbol) + " " + msg
}

// RenderOK prefixes msg with a green check.
func RenderOK(msg string) string { return withSymbol(StatusOK, SymbolOK, msg) }

// RenderWarn prefixes msg with an orange warning sign.
func RenderWarn(msg string) string { return withSymbol(StatusWarn, SymbolWarn, msg) }

// RenderError prefixes msg with a red cross.
func RenderError(msg string) string { return withSymbol(StatusError, SymbolError, msg) }

// RenderLabel dims the key of a key/value line.
func RenderLabel(label string) string { return Styled(Muted, label) }

// RenderHeader styles a table header or section title.
func RenderHeader(title string) string { return Styled(Header, title) }

// stateStyles maps hosted service state names to their colour.
var stateStyles = map[string]lipgloss.Style{
	"bound":     StatusOK,
	"rebinding": StatusWarn,
	"unbound":   StatusWarn,
	"created":   StatusInfo,
}

// RenderState colours a hosted service state name. Unknown names are muted.
func RenderState(state string) string {
	if style, ok := stateStyles[state]; ok {
		return Styled(style, state)
	}
	return Styled(Muted, state)
}
