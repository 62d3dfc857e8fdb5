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

// Package ui is the CLI's terminal output surface: headers, labels, and
// colored status lines, backed by fatih/color and disabled automatically
// for non-terminals or when NO_COLOR/--no-color is set.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Cyan   = color.New(color.FgCyan)
	Dim    = color.New(color.Faint)
)

// InitColors enables or disables colored output. noColor forces plain
// text regardless of terminal detection; otherwise color is enabled only
// when stdout is a real terminal and NO_COLOR is unset (§6.1).
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section title.
func Header(title string) {
	bold := color.New(color.Bold)
	_, _ = bold.Println(title)
}

// SubHeader prints a secondary, dimmer section title.
func SubHeader(title string) {
	_, _ = Dim.Println(title)
}

// Label renders a field name for "Label: value" lines.
func Label(text string) string {
	bold := color.New(color.Bold)
	return bold.Sprint(text)
}

// DimText renders text in the faint/dim style.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText renders an integer count, styled consistently across
// summary output.
func CountText(n int) string {
	bold := color.New(color.Bold)
	return bold.Sprintf("%d", n)
}

func Info(msg string)                    { _, _ = Cyan.Println(msg) }
func Infof(format string, args ...any)    { _, _ = Cyan.Printf(format+"\n", args...) }
func Warning(msg string)                  { _, _ = Yellow.Println(msg) }
func Warningf(format string, args ...any)  { _, _ = Yellow.Printf(format+"\n", args...) }
func Success(msg string)                  { _, _ = Green.Println(msg) }
func Successf(format string, args ...any)  { _, _ = Green.Printf(format+"\n", args...) }
func Errorln(msg string)                  { _, _ = Red.Println(msg) }
func Errorf(format string, args ...any)    { _, _ = Red.Printf(format+"\n", args...) }

// PrintPanic reports an uncaught fiber panic (§7.2), naming the
// responsible module so a user can find the offending `use` or call.
func PrintPanic(reason, responsibleModule string) {
	Errorln(fmt.Sprintf("panicked: %s", reason))
	if responsibleModule != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", Label("responsible:"), responsibleModule)
	}
}
