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

// Package compiler orchestrates the CST->AST->HIR->MIR->byte-code
// pipeline (§4) as a memoizing query system (§9 Design Notes: "the
// compiler may be implemented as a memoizing query system but that is an
// implementation choice, not a requirement"). Its Resolver type
// (resolver.go) is the pkg/vm ModuleResolver: a use-module call recurses
// back into Compile for the target module, then runs its top-level body to
// completion on a nested VM to produce the exported struct or asset bytes
// (§6.2).
package compiler

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kraklabs/ember/pkg/ast"
	"github.com/kraklabs/ember/pkg/bytecode"
	"github.com/kraklabs/ember/pkg/cst"
	"github.com/kraklabs/ember/pkg/hir"
	"github.com/kraklabs/ember/pkg/mir"
	"github.com/kraklabs/ember/pkg/module"
)

// Loader loads a module's content from wherever it lives on disk (or
// elsewhere). The lexer/CST producer that implements LoadSource's parse
// step is external to this package (§1 "Out of scope": "the lexer/CST
// producer"); cmd/ember supplies a concrete Loader.
type Loader interface {
	LoadSource(m module.Module) (*cst.Tree, error)
	LoadAsset(m module.Module) ([]byte, error)
}

// Stages holds every intermediate representation produced for one
// compile, so `build --debug` can dump each one (§6.4) without
// recomputing it.
type Stages struct {
	Module       module.Module
	CST          *cst.Tree
	AST          []ast.Expr
	ASTErrors    []ast.CompileError
	HIR          *hir.Body
	MIR          mir.Body
	OptimizedMIR mir.Body
	Program      *bytecode.Program
}

type cacheKey struct {
	mod     module.Key
	tracing mir.TracingConfig
}

type cacheEntry struct {
	stages *Stages
	err    error
}

// Compiler is a single package's pipeline, memoizing every (Module,
// TracingConfig) compile it has already performed and collapsing
// concurrently requested identical compiles into one (§9).
type Compiler struct {
	pkg    string
	loader Loader
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[cacheKey]*cacheEntry
	group singleflight.Group
}

// New builds a Compiler rooted at pkg (the project's package root name,
// §3.1), loading module content through loader. A nil logger falls back
// to slog.Default().
func New(pkg string, loader Loader, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{pkg: pkg, loader: loader, logger: logger, cache: map[cacheKey]*cacheEntry{}}
}

// Compile runs the full pipeline for mod under tracing, or returns the
// memoized result from a prior identical call.
func (c *Compiler) Compile(mod module.Module, tracing mir.TracingConfig) (*Stages, error) {
	key := cacheKey{mod: mod.Key(), tracing: tracing}

	c.mu.RLock()
	if e, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return e.stages, e.err
	}
	c.mu.RUnlock()

	groupKey := fmt.Sprintf("%s\x00%+v", key.mod, key.tracing)
	v, err, _ := c.group.Do(groupKey, func() (any, error) {
		stages, buildErr := c.compileUncached(mod, tracing)
		c.mu.Lock()
		c.cache[key] = &cacheEntry{stages: stages, err: buildErr}
		c.mu.Unlock()
		return stages, buildErr
	})
	if v == nil {
		return nil, err
	}
	return v.(*Stages), err
}

func (c *Compiler) compileUncached(mod module.Module, tracing mir.TracingConfig) (*Stages, error) {
	c.logger.Debug("compiling module", "module", mod.String())

	tree, err := c.loader.LoadSource(mod)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", mod, err)
	}

	astExprs, _, astErrs := ast.Lower(tree)
	if len(astErrs) > 0 {
		c.logger.Debug("module has AST errors", "module", mod.String(), "count", len(astErrs))
	}

	hirBody := hir.LowerModule(astExprs)

	mirBody, _ := mir.Lower(hirBody, mod.String(), tracing)
	gen := &mir.IdGenerator{}
	gen.Seed(maxMIRId(mirBody))
	unoptimizedMIR := mir.Body{Entries: append([]mir.Entry(nil), mirBody.Entries...)}
	mir.Optimize(&mirBody, gen)

	prog := bytecode.Compile(mirBody, hir.RootId())

	return &Stages{
		Module:       mod,
		CST:          tree,
		AST:          astExprs,
		ASTErrors:    astErrs,
		HIR:          hirBody,
		MIR:          unoptimizedMIR,
		OptimizedMIR: mirBody,
		Program:      prog,
	}, nil
}

// maxMIRId finds the largest id bound anywhere in b, including inside
// nested Function and Multiple sub-bodies, so a post-lowering
// IdGenerator can be seeded past every id the lowerer already handed out
// (§3.6 invariant 3: ids are module-unique).
func maxMIRId(b mir.Body) mir.Id {
	var max mir.Id
	var walk func(mir.Body)
	walk = func(body mir.Body) {
		for _, entry := range body.Entries {
			if entry.Id > max {
				max = entry.Id
			}
			switch e := entry.Expr.(type) {
			case mir.Function:
				walk(e.Body)
			case mir.Multiple:
				walk(e.Body)
			}
		}
	}
	walk(b)
	return max
}
