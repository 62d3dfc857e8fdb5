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
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ember/internal/errors"
	"github.com/kraklabs/ember/internal/ui"
	"github.com/kraklabs/ember/pkg/fuzz"
	"github.com/kraklabs/ember/pkg/mir"
	"github.com/kraklabs/ember/pkg/vm"
)

// runFuzz implements `ember fuzz <file>` (§6.1): compile with fuzzable
// registration on, enumerate fuzzable functions from the module's
// top-level run, then exercise each with generated inputs.
func runFuzz(argv []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("fuzz", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "Dump every IR stage alongside the source")
	if err := fs.Parse(argv); err != nil {
		return exitGeneral
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ember fuzz <file> [--debug]")
		return exitGeneral
	}
	file := fs.Arg(0)

	cfg, root := loadProjectConfig(configPath, file)

	tracing := mir.TracingConfig{RegisterFuzzables: mir.TraceAll}
	stages, err := compileFile(root, cfg.Package, file, tracing)
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

	machine := vm.New(nil)
	tracer := vm.NewFull()

	moduleRoot, err := machine.Run(stages.Program, stages.Program.ModuleFunctionIP, tracer)
	if err != nil {
		errors.FatalError(errors.NewInternalError("VM deadlocked", err.Error(), "This is a bug", err), globals.JSON)
		return exitGeneral
	}
	if moduleRoot.Status == vm.StatusPanicked {
		reportPanic(moduleRoot, globals)
		return exitCodePanicked
	}

	fuzzCfg := fuzz.DefaultConfig()
	if cfg.Fuzz.CaseBudget > 0 {
		fuzzCfg.CaseBudget = cfg.Fuzz.CaseBudget
	}
	if cfg.Fuzz.Seed != 0 {
		fuzzCfg.Seed = cfg.Fuzz.Seed
	}

	if len(tracer.Fuzzables) == 0 {
		if !globals.Quiet {
			ui.Info("no fuzzable functions found")
		}
		return exitOK
	}

	failures := fuzz.Run(machine, stages.Program, tracer.Fuzzables, fuzzCfg)
	if len(failures) == 0 {
		if !globals.Quiet {
			ui.Success(fmt.Sprintf("%d fuzzable function(s), no failing cases", len(tracer.Fuzzables)))
		}
		return exitOK
	}

	for _, f := range failures {
		ui.Errorf("%s: panicked: %s", f.Origin, f.PanicReason)
	}
	return exitFuzzFailures
}
