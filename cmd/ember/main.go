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

// Package main implements the ember CLI: build, run, fuzz, and lsp
// subcommands over the compiler and VM packages (§6.1).
//
// Usage:
//
//	ember build <file> [--debug] [--watch] [--tracing]
//	ember run <file> [--debug] [--tracing]
//	ember fuzz <file> [--debug]
//	ember lsp
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ember/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
)

// GlobalFlags holds the flags that apply regardless of subcommand.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func (g GlobalFlags) logLevel() slog.Level {
	switch {
	case g.Verbose >= 2:
		return slog.LevelDebug
	case g.Verbose >= 1:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("ember", flag.ContinueOnError)
	showVersion := fs.BoolP("version", "V", false, "Show version and exit")
	configPath := fs.StringP("config", "c", "", "Path to .ember/project.yaml")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	noColor := fs.Bool("no-color", false, "Disable color output")
	verbose := fs.CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
	quiet := fs.BoolP("quiet", "q", false, "Suppress non-essential output")
	fs.SetInterspersed(false)

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `ember - the Ember compiler and fiber VM

Usage:
  ember <command> [options]

Commands:
  build <file>   Compile a module
  run <file>     Compile and execute a module's main function
  fuzz <file>    Compile and exercise fuzzable functions
  lsp            Start a language server over stdin/stdout

Global Options:
  --json            Output in JSON format
  --no-color        Disable color output (respects NO_COLOR)
  -v, --verbose     Increase verbosity (-v info, -vv debug)
  -q, --quiet       Suppress non-essential output
  -c, --config      Path to .ember/project.yaml
  -V, --version     Show version and exit

`)
	}

	if err := fs.Parse(argv); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	if *showVersion {
		fmt.Printf("ember version %s (%s)\n", version, commit)
		return 0
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *quiet && *verbose > 0 {
		fmt.Fprintln(os.Stderr, "Error: cannot use --quiet and --verbose together")
		return 1
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}
	ui.InitColors(globals.NoColor)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: globals.logLevel()}))
	slog.SetDefault(logger)

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return 1
	}

	command, cmdArgs := args[0], args[1:]

	switch command {
	case "build":
		return runBuild(cmdArgs, *configPath, globals)
	case "run":
		return runRun(cmdArgs, *configPath, globals)
	case "fuzz":
		return runFuzz(cmdArgs, *configPath, globals)
	case "lsp":
		return runLSP(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		fs.Usage()
		return 1
	}
}
