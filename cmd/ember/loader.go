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

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/ember/internal/errors"
	"github.com/kraklabs/ember/pkg/cst"
	"github.com/kraklabs/ember/pkg/module"
)

const assetExtension = ".emberasset"

// sourceExtension is the on-disk suffix for code modules (§6.2).
const sourceExtension = ".ember"

// Frontend turns module source text into a concrete syntax tree. The
// lexer/parser that implements it ships separately from this repository;
// fileLoader defers to whatever Frontend main wires in, so the driver's
// module resolution, caching, and CLI plumbing are already complete and
// simply need a parser plugged in at the front.
type Frontend interface {
	Parse(filename, source string) (*cst.Tree, error)
}

// fileLoader resolves a module to an on-disk path under root and loads it,
// implementing compiler.Loader.
type fileLoader struct {
	root     string
	frontend Frontend
}

func newFileLoader(root string, frontend Frontend) *fileLoader {
	return &fileLoader{root: root, frontend: frontend}
}

func (l *fileLoader) LoadSource(m module.Module) (*cst.Tree, error) {
	path := filepath.Join(l.root, m.FilePath(string(filepath.Separator), sourceExtension))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(
				"Module not found",
				"Cannot find source file "+path,
				"Check the module path in the 'use' statement, or the file argument",
				err,
			)
		}
		return nil, errors.NewPermissionError(
			"Cannot read module source",
			"Failed to read "+path,
			"Check file permissions",
			err,
		)
	}

	if l.frontend == nil {
		return nil, errors.NewInternalError(
			"No parser configured",
			"This build has no front-end wired in to turn "+path+" into a concrete syntax tree",
			"Build cmd/ember with a Frontend implementation linked in",
			nil,
		)
	}

	tree, err := l.frontend.Parse(path, string(data))
	if err != nil {
		return nil, errors.NewInputError(
			"Parse error",
			err.Error(),
			"Fix the syntax error reported above",
			err,
		)
	}
	return tree, nil
}

func (l *fileLoader) LoadAsset(m module.Module) ([]byte, error) {
	path := filepath.Join(l.root, m.FilePath(string(filepath.Separator), assetExtension))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(
				"Asset not found",
				"Cannot find asset file "+path,
				"Check the module path in the 'use' statement",
				err,
			)
		}
		return nil, errors.NewPermissionError(
			"Cannot read asset",
			"Failed to read "+path,
			"Check file permissions",
			err,
		)
	}
	return data, nil
}

// rootModule computes the Module identity for a file argument given on
// the command line, relative to root.
func rootModule(root, pkg, file string) (module.Module, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return module.Module{}, err
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return module.Module{}, err
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		return module.Module{}, err
	}
	rel = rel[:len(rel)-len(filepath.Ext(rel))]
	var segments []string
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		if seg != "" && seg != "." {
			segments = append(segments, seg)
		}
	}
	return module.New(pkg, segments, module.Code), nil
}
