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
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kraklabs/ember/internal/errors"
	"github.com/kraklabs/ember/internal/ui"
)

// debounceWindow absorbs editors that emit several write events per save
// (§7.4 "filesystem race on --watch debouncing").
const debounceWindow = 100 * time.Millisecond

// watchAndRebuild runs rebuild once, then again every time file changes on
// disk, until interrupted. It returns the exit code of the most recent
// rebuild.
func watchAndRebuild(file string, globals GlobalFlags, rebuild func() int) int {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot start file watcher",
			err.Error(),
			"Check your platform's inotify/kqueue limits",
			err,
		), globals.JSON)
	}
	defer watcher.Close()

	dir := filepath.Dir(file)
	if err := watcher.Add(dir); err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot watch directory",
			"Failed to watch "+dir,
			"Check that the directory exists and is readable",
			err,
		), globals.JSON)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	code := rebuild()

	var pending *time.Timer
	rebuilds := make(chan struct{}, 1)
	for {
		select {
		case <-interrupt:
			return code
		case ev, ok := <-watcher.Events:
			if !ok {
				return code
			}
			if filepath.Clean(ev.Name) != filepath.Clean(file) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounceWindow, func() {
				select {
				case rebuilds <- struct{}{}:
				default:
				}
			})
		case <-rebuilds:
			if !globals.Quiet {
				ui.Info(fmt.Sprintf("rebuilding %s", file))
			}
			code = rebuild()
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return code
			}
			ui.Warningf("watcher error: %v", watchErr)
		}
	}
}
