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

// Package module identifies compilation units: a package root, a relative
// path within it, and a kind (code or asset). Module is the key the
// compiler memoizes every IR stage by.
package module

import (
	"fmt"
	"path"
	"strings"
)

// Kind distinguishes a code module (compiled and executed) from an asset
// module (loaded as raw bytes via `use`).
type Kind int

const (
	// Code modules contain source text that compiles through the IR pipeline.
	Code Kind = iota
	// Asset modules are opaque byte blobs loaded via `use`.
	Asset
)

func (k Kind) String() string {
	switch k {
	case Code:
		return "code"
	case Asset:
		return "asset"
	default:
		return "unknown"
	}
}

// Module is the canonical identity of a compilation unit. Two modules are
// equal iff Package, Path (joined), and Kind all match.
type Module struct {
	Package string
	Path    []string
	Kind    Kind
}

// New builds a Module from a package root and path segments.
func New(pkg string, segments []string, kind Kind) Module {
	return Module{Package: pkg, Path: append([]string(nil), segments...), Kind: kind}
}

// String renders a module as "package:path/segments", the canonical print
// form used in diagnostics, debug dumps, and panic reasons.
func (m Module) String() string {
	return fmt.Sprintf("%s:%s", m.Package, strings.Join(m.Path, "/"))
}

// Equal reports whether m and other identify the same module.
func (m Module) Equal(other Module) bool {
	if m.Package != other.Package || m.Kind != other.Kind || len(m.Path) != len(other.Path) {
		return false
	}
	for i := range m.Path {
		if m.Path[i] != other.Path[i] {
			return false
		}
	}
	return true
}

// Key is a comparable value suitable for use as a map key (Module itself
// contains a slice and so is not comparable with ==).
type Key string

// Key returns a comparable, hashable identity for m.
func (m Module) Key() Key {
	kindTag := "c"
	if m.Kind == Asset {
		kindTag = "a"
	}
	return Key(kindTag + ":" + m.Package + ":" + strings.Join(m.Path, "/"))
}

// Resolve computes the module reached by a `use "relative/path"` statement
// issued from within current. Segments are resolved relative to current's
// directory (current's path minus its last segment), collapsing "." and
// ".." the way path.Join does, then re-split on "/".
//
// kind is the kind of the target module, decided by the caller from the
// resolved file's extension/asset marker (resolution itself is agnostic to
// that; see internal/config and cmd/ember for the extension convention).
func Resolve(current Module, relativePath string, kind Kind) Module {
	dir := "."
	if len(current.Path) > 1 {
		dir = strings.Join(current.Path[:len(current.Path)-1], "/")
	}
	joined := path.Join(dir, relativePath)
	joined = strings.TrimPrefix(joined, "./")
	var segments []string
	if joined != "" && joined != "." {
		segments = strings.Split(joined, "/")
	}
	return New(current.Package, segments, kind)
}

// FilePath joins a module's path segments with the OS path separator and
// appends ext, the on-disk location the driver loads source from (§6.2).
func (m Module) FilePath(sep string, ext string) string {
	return strings.Join(m.Path, sep) + ext
}
