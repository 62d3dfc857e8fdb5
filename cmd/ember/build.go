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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ember/internal/config"
	"github.com/kraklabs/ember/internal/errors"
	"github.com/kraklabs/ember/internal/ui"
	"github.com/kraklabs/ember/pkg/compiler"
	"github.com/kraklabs/ember/pkg/mir"
)

const (
	exitOK = iota
	exitGeneral
	exitFileNotFound
	exitCodePanicked
	exitFuzzFailures
)

func tracingConfig(all bool) mir.TracingConfig {
	if all {
		return mir.TracingConfig{
			RegisterFuzzables:    mir.TraceAll,
			Calls:                mir.TraceAll,
			EvaluatedExpressions: mir.TraceAll,
		}
	}
	return mir.TracingConfig{RegisterFuzzables: mir.TraceAll}
}

// runBuild implements `ember build <file>` (§6.1).
func runBuild(argv []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "Dump every IR stage alongside the source")
	watch := fs.Bool("watch", false, "Recompile on file changes")
	tracing := fs.Bool("tracing", false, "Enable call and expression tracing in compiled output")
	if err := fs.Parse(argv); err != nil {
		return exitGeneral
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ember build <file> [--debug] [--watch] [--tracing]")
		return exitGeneral
	}
	file := fs.Arg(0)

	cfg, root := loadProjectConfig(configPath, file)

	buildOnce := func() int {
		stages, err := compileFile(root, cfg.Package, file, tracingConfig(*tracing))
		if err != nil {
			reportBuildError(err, globals)
			return exitCodeFor(err)
		}
		if *debug {
			if err := dumpStages(file, stages); err != nil {
				errors.FatalError(err, globals.JSON)
				return exitGeneral
			}
		}
		if !globals.Quiet {
			ui.Success(fmt.Sprintf("compiled %s", stages.Module))
		}
		return exitOK
	}

	if !*watch {
		return buildOnce()
	}
	return watchAndRebuild(file, globals, buildOnce)
}

// loadProjectConfig finds the project's .ember/project.yaml (if any) and
// returns it alongside the project root directory module paths are
// resolved relative to. Without a config file, the argument file's own
// directory stands in as the root, named after itself.
func loadProjectConfig(configPath, file string) (*config.Config, string) {
	resolved := configPath
	if resolved == "" {
		resolved = os.Getenv("EMBER_CONFIG_PATH")
	}
	if resolved == "" {
		if found, err := findUpward(filepath.Dir(file)); err == nil {
			resolved = found
		}
	}
	if resolved == "" {
		root := filepath.Dir(file)
		return config.Default(filepath.Base(root)), root
	}

	cfg, err := config.Load(resolved)
	if err != nil {
		root := filepath.Dir(file)
		return config.Default(filepath.Base(root)), root
	}
	return cfg, filepath.Dir(filepath.Dir(resolved))
}

// findUpward walks up from dir looking for .ember/project.yaml.
func findUpward(dir string) (string, error) {
	for {
		candidate := config.Path(dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func compileFile(root, pkg, file string, tracing mir.TracingConfig) (*compiler.Stages, error) {
	mod, err := rootModule(root, pkg, file)
	if err != nil {
		return nil, err
	}
	loader := newFileLoader(root, nil)
	c := compiler.New(pkg, loader, slog.Default())
	return c.Compile(mod, tracing)
}

func dumpStages(file string, stages *compiler.Stages) error {
	base := file[:len(file)-len(filepath.Ext(file))]
	writers := map[string]func() (string, error){
		".ast": func() (string, error) { return fmt.Sprintf("%+v", stages.AST), nil },
		".hir": func() (string, error) { return fmt.Sprintf("%+v", stages.HIR), nil },
		".mir": func() (string, error) { return fmt.Sprintf("%+v", stages.MIR), nil },
		".optimized_mir": func() (string, error) {
			return fmt.Sprintf("%+v", stages.OptimizedMIR), nil
		},
		".bc": func() (string, error) { return fmt.Sprintf("%+v", stages.Program), nil },
	}
	for ext, render := range writers {
		text, err := render()
		if err != nil {
			return err
		}
		if err := os.WriteFile(base+ext, []byte(text), 0o644); err != nil {
			return errors.NewPermissionError(
				"Cannot write debug dump",
				"Failed to write "+base+ext,
				"Check directory permissions",
				err,
			)
		}
	}
	return nil
}

func reportBuildError(err error, globals GlobalFlags) {
	if globals.JSON {
		_ = json.NewEncoder(os.Stderr).Encode(map[string]string{"error": err.Error()})
		return
	}
	if ue, ok := err.(*errors.UserError); ok {
		ui.PrintPanic(ue.Detail, "")
		return
	}
	ui.Errorln(err.Error())
}

func exitCodeFor(err error) int {
	if ue, ok := err.(*errors.UserError); ok {
		if ue.Kind == errors.KindFileNotFound {
			return exitFileNotFound
		}
	}
	return exitGeneral
}
