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
	"bufio"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ember/internal/errors"
	"github.com/kraklabs/ember/pkg/bytecode"
	"github.com/kraklabs/ember/pkg/heap"
	"github.com/kraklabs/ember/pkg/vm"
)

// runRun implements `ember run <file>` (§6.1): compile the module, then
// call its `main` function with an environment struct carrying Stdout
// and Stdin ports, bridging them to the real process stdio.
func runRun(argv []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "Dump every IR stage alongside the source")
	tracing := fs.Bool("tracing", false, "Enable call and expression tracing")
	if err := fs.Parse(argv); err != nil {
		return exitGeneral
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ember run <file> [--debug] [--tracing]")
		return exitGeneral
	}
	file := fs.Arg(0)

	cfg, root := loadProjectConfig(configPath, file)

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

	machine := vm.New(nil)
	tracer := vm.Tracer(vm.Dummy{})
	if globals.Verbose >= 2 {
		tracer = vm.NewFull()
	}

	moduleRoot, err := machine.Run(stages.Program, stages.Program.ModuleFunctionIP, tracer)
	if err != nil {
		errors.FatalError(errors.NewInternalError("VM deadlocked", err.Error(), "This is a bug", err), globals.JSON)
		return exitGeneral
	}
	if moduleRoot.Status == vm.StatusPanicked {
		reportPanic(moduleRoot, globals)
		return exitCodePanicked
	}

	mainFn, ok := structGet(moduleRoot.Heap, moduleRoot.ReturnValue, "main")
	if !ok {
		errors.FatalError(errors.NewInputError(
			"No main function",
			fmt.Sprintf("Module %s does not export a 'main' field", stages.Module),
			"Define `main = function(env) { ... }` at the top level",
			nil,
		), globals.JSON)
		return exitGeneral
	}

	stdoutCh := machine.NewChannel(64)
	stdinCh := machine.NewChannel(1)
	machine.SetStdoutChannel(stdoutCh)

	envHeap := heap.New()
	stdout := envHeap.NewSendPort(uint64(stdoutCh))
	stdin := envHeap.NewSendPort(uint64(stdinCh))
	keyStdout := envHeap.NewTag("Stdout", nil)
	keyStdin := envHeap.NewTag("Stdin", nil)
	env := envHeap.NewStruct([]heap.StructEntry{
		{Key: keyStdout, Value: stdout},
		{Key: keyStdin, Value: stdin},
	})

	responsible := envHeap.NewHirId(moduleRoot.Program.Origins[stages.Program.ModuleFunctionIP][0])

	finalFiber, err := runMainWithIO(machine, stages.Program, mainFn, env, responsible, tracer, stdoutCh, stdinCh)
	if err != nil {
		errors.FatalError(errors.NewInternalError("VM deadlocked", err.Error(), "This is a bug", err), globals.JSON)
		return exitGeneral
	}
	if finalFiber.Status == vm.StatusPanicked {
		reportPanic(finalFiber, globals)
		return exitCodePanicked
	}
	return exitOK
}

// runMainWithIO drives a call to fn(env) to completion while bridging its
// Stdout/Stdin channels to the real process. Everything here runs on one
// goroutine: SpawnFunction seeds the call's fiber, then each round ticks
// the scheduler once, prints whatever landed on Stdout, and feeds one
// line of real stdin to Stdin if the program is blocked receiving —
// interleaving host I/O with scheduling rounds rather than handing the
// scheduler to a second goroutine, which would race DrainPackets/
// FeedPacket against the scheduler's own channel bookkeeping. fn, env,
// and responsible may live in any heap — SpawnFunction clones each into
// the call's own fiber (§5 "Packet transfer").
func runMainWithIO(machine *vm.VM, program *bytecode.Program, fn, env, responsible heap.Value, tracer vm.Tracer, stdoutCh, stdinCh vm.ChannelID) (*vm.Fiber, error) {
	stdin := bufio.NewReader(os.Stdin)

	id := machine.SpawnFunction(program, fn, []heap.Value{env}, responsible, tracer)
	for {
		drainStdout(machine, stdoutCh)

		root := machine.Fibers()[id]
		if root.Status == vm.StatusDone || root.Status == vm.StatusPanicked {
			drainStdout(machine, stdoutCh)
			return root, nil
		}

		if anyFiberAwaitingReceive(machine, stdinCh) {
			feedStdin(machine, stdinCh, stdin)
		}

		if !machine.Tick() {
			return root, fmt.Errorf("vm: no fiber made progress (deadlock)")
		}
	}
}

// anyFiberAwaitingReceive reports whether some fiber is currently
// blocked receiving on ch, so feedStdin only reads real stdin when the
// program is actually waiting on it rather than on every round.
func anyFiberAwaitingReceive(machine *vm.VM, ch vm.ChannelID) bool {
	for _, f := range machine.Fibers() {
		if f.Status == vm.StatusReceiving && f.PendingChannel == ch {
			return true
		}
	}
	return false
}

// drainStdout turns packets landed on the module's Stdout port into real
// output, writing to stderr instead of stdout when the process-wide
// stdout-gate flag is off (§9 Design Notes) so output is never lost.
func drainStdout(machine *vm.VM, ch vm.ChannelID) {
	for _, pkt := range machine.DrainPackets(ch) {
		if obj, ok := pkt.Value.Object(); ok && obj.Kind == heap.KindText {
			if vm.StdoutEnabled() {
				fmt.Print(obj.Text)
			} else {
				fmt.Fprint(os.Stderr, obj.Text)
			}
		}
	}
}

func feedStdin(machine *vm.VM, ch vm.ChannelID, r *bufio.Reader) {
	line, err := r.ReadString('\n')
	if line == "" && err != nil {
		return
	}
	scratch := heap.New()
	machine.FeedPacket(ch, scratch.NewText(line), scratch)
	if err == io.EOF {
		return
	}
}

func structGet(h *heap.Heap, structVal heap.Value, key string) (heap.Value, bool) {
	obj, ok := structVal.Object()
	if !ok || obj.Kind != heap.KindStruct {
		return heap.Value{}, false
	}
	want := h.NewTag(key, nil)
	for _, e := range obj.StructEntries {
		if heap.Equals(e.Key, want) {
			return e.Value, true
		}
	}
	return heap.Value{}, false
}

func reportPanic(f *vm.Fiber, globals GlobalFlags) {
	reason := "unknown"
	if obj, ok := f.PanicReason.Object(); ok && obj.Kind == heap.KindText {
		reason = obj.Text
	}
	errors.FatalError(errors.NewCodePanickedError("Module panicked", reason), globals.JSON)
}
