// Copyright 2026 The Ember Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errors is the host/CLI error taxonomy (§7.4): file-not-found,
// malformed input, and other errors that never touch IR or fiber state.
// Compile errors and runtime panics are not UserErrors — they are carried
// as IR/fiber data all the way to the CLI's own reporting, per §7.
package errors

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kraklabs/ember/internal/ui"
)

// Kind is the CLI exit-code taxonomy (§6.1: "file-not-found,
// fuzzing-found-failing-cases, code-panicked" plus the host-error classes
// below them).
type Kind int

const (
	KindInput Kind = iota
	KindInternal
	KindConfig
	KindNetwork
	KindPermission
	KindFileNotFound
	KindCodePanicked
	KindFuzzFailures
)

// ExitCode maps a Kind to the process exit code `main` returns (§6.1).
func (k Kind) ExitCode() int {
	switch k {
	case KindFileNotFound:
		return 2
	case KindCodePanicked:
		return 3
	case KindFuzzFailures:
		return 4
	default:
		return 1
	}
}

// UserError is a diagnostic meant for a human (or an LSP/JSON client) to
// read: a title, a detail explaining what happened, a suggestion for
// fixing it, and the underlying Go error if any.
type UserError struct {
	Kind       Kind
	Title      string
	Detail     string
	Suggestion string
	Err        error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *UserError) Unwrap() error { return e.Err }

func newError(kind Kind, title, detail, suggestion string, err error) *UserError {
	return &UserError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

func NewInputError(title, detail, suggestion string, err error) *UserError {
	return newError(KindInput, title, detail, suggestion, err)
}

func NewInternalError(title, detail, suggestion string, err error) *UserError {
	return newError(KindInternal, title, detail, suggestion, err)
}

func NewConfigError(title, detail, suggestion string, err error) *UserError {
	return newError(KindConfig, title, detail, suggestion, err)
}

func NewNetworkError(title, detail, suggestion string, err error) *UserError {
	return newError(KindNetwork, title, detail, suggestion, err)
}

func NewPermissionError(title, detail, suggestion string, err error) *UserError {
	return newError(KindPermission, title, detail, suggestion, err)
}

func NewFileNotFoundError(title, detail, suggestion string, err error) *UserError {
	return newError(KindFileNotFound, title, detail, suggestion, err)
}

func NewCodePanickedError(title, detail string) *UserError {
	return newError(KindCodePanicked, title, detail, "", nil)
}

func NewFuzzFailuresError(title, detail string) *UserError {
	return newError(KindFuzzFailures, title, detail, "", nil)
}

type jsonError struct {
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindInternal:
		return "internal"
	case KindConfig:
		return "config"
	case KindNetwork:
		return "network"
	case KindPermission:
		return "permission"
	case KindFileNotFound:
		return "file-not-found"
	case KindCodePanicked:
		return "code-panicked"
	case KindFuzzFailures:
		return "fuzz-failures"
	default:
		return "unknown"
	}
}

// FatalError reports err (wrapping it as an internal UserError if it
// isn't one already) and exits the process with the code its Kind maps
// to. In jsonMode it prints a single JSON object to stderr instead of
// colored text, so stdout stays reserved for machine-readable output
// (§6.1 "--json implies quiet").
func FatalError(err error, jsonMode bool) {
	ue, ok := err.(*UserError)
	if !ok {
		ue = NewInternalError("Unexpected error", err.Error(), "Please report this issue.", err)
	}

	if jsonMode {
		_ = json.NewEncoder(os.Stderr).Encode(jsonError{
			Kind:       ue.Kind.String(),
			Title:      ue.Title,
			Detail:     ue.Detail,
			Suggestion: ue.Suggestion,
		})
	} else {
		ui.Header(ue.Title)
		fmt.Fprintln(os.Stderr, ue.Detail)
		if ue.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.Label("Suggestion:"), ue.Suggestion)
		}
		if ue.Err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.DimText("cause:"), ue.Err)
		}
	}

	os.Exit(ue.Kind.ExitCode())
}
