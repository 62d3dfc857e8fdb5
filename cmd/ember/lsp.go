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
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ember/pkg/vm"
)

// LSPHandler processes one decoded Language Server Protocol message body
// and returns the response body to frame back to the client, or nil for
// a notification with no reply. The language-server front end that
// implements the protocol's method dispatch ships separately; runLSP
// owns only the stdio transport (§6.1 "stdout is reserved for LSP").
type LSPHandler interface {
	Handle(body []byte) (reply []byte, err error)
}

// runLSP implements `ember lsp` (§6.1): a Content-Length framed
// JSON-RPC transport over stdin/stdout, logging exclusively to stderr
// since stdout is reserved for protocol messages.
func runLSP(argv []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("lsp", flag.ContinueOnError)
	if err := fs.Parse(argv); err != nil {
		return exitGeneral
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("language server starting", "pid", os.Getpid())

	// stdout is reserved for LSP framing; any module the server evaluates
	// must not have its print output collide with protocol messages.
	vm.SetStdoutEnabled(false)

	var handler LSPHandler
	if err := serveLSP(os.Stdin, os.Stdout, handler, logger); err != nil && err != io.EOF {
		logger.Error("language server stopped", "error", err)
		return exitGeneral
	}
	logger.Info("language server stopped")
	return exitOK
}

func serveLSP(in io.Reader, out io.Writer, handler LSPHandler, logger *slog.Logger) error {
	r := bufio.NewReader(in)
	for {
		length, err := readContentLength(r)
		if err != nil {
			return err
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return err
		}
		if handler == nil {
			logger.Warn("no handler configured, dropping message", "bytes", length)
			continue
		}
		reply, err := handler.Handle(body)
		if err != nil {
			logger.Error("handler error", "error", err)
			continue
		}
		if reply == nil {
			continue
		}
		if _, err := io.WriteString(out, "Content-Length: "+strconv.Itoa(len(reply))+"\r\n\r\n"); err != nil {
			return err
		}
		if _, err := out.Write(reply); err != nil {
			return err
		}
	}
}

// readContentLength reads LSP headers up to the blank line that
// terminates them and returns the announced body length.
func readContentLength(r *bufio.Reader) (int, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return 0, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return 0, err
			}
			length = n
		}
	}
	if length < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return length, nil
}
