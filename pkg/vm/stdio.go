// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import (
	"sync/atomic"

	"github.com/kraklabs/ember/pkg/heap"
)

// canUseStdout is the sole process-wide state this package carries (§9
// Design Notes): whether the print builtin's output, once drained by a
// host adapter, may reach the real process stdout. The language-server
// CLI mode turns it off since stdout there is reserved for LSP framing.
var canUseStdout atomic.Bool

func init() { canUseStdout.Store(true) }

// SetStdoutEnabled sets the process-wide "may we print to stdout?" flag.
func SetStdoutEnabled(enabled bool) { canUseStdout.Store(enabled) }

// StdoutEnabled reports the current value of the flag set by
// SetStdoutEnabled (true until changed).
func StdoutEnabled() bool { return canUseStdout.Load() }

// NewChannel allocates a channel directly, without a fiber suspending on
// CreateChannel. `ember run` uses this to build the Stdout/Stdin ports
// handed to a module's main function (§6.1) before that function's fiber
// exists at all.
func (vm *VM) NewChannel(capacity int) ChannelID {
	vm.nextChannelID++
	id := vm.nextChannelID
	vm.channels[id] = NewChannel(id, capacity)
	return id
}

// SetStdoutChannel designates ch as the channel the print builtin sends
// to (§4.9 "print (host stdout unless disabled)"). Every fiber spawned
// afterwards inherits it; `ember run` calls this right after creating the
// module's Stdout port, before the module's main function ever runs.
func (vm *VM) SetStdoutChannel(ch ChannelID) { vm.stdoutChannel = ch }

// DrainPackets removes and returns every packet currently buffered on
// channel id, in FIFO order. A host adapter servicing a module's Stdout
// port calls this once per scheduling round to turn sent packets into
// real output (§6.1 "Stdin/stdout ports are serviced by host adapters").
func (vm *VM) DrainPackets(id ChannelID) []Packet {
	ch := vm.channels[id]
	if ch == nil || len(ch.Packets) == 0 {
		return nil
	}
	out := ch.Packets
	ch.Packets = nil
	return out
}

// FeedPacket enqueues value (cloned out of srcHeap into a fresh detached
// heap, matching how a real Send builds a Packet) as if some fiber had
// sent it on channel id. The next scheduling round delivers it to
// whichever fiber is blocked receiving, exactly as a genuine sender's
// packet would be. A host adapter servicing a module's Stdin port uses
// this to push real input into the running program.
func (vm *VM) FeedPacket(id ChannelID, value heap.Value, srcHeap *heap.Heap) {
	ch := vm.channels[id]
	if ch == nil {
		return
	}
	scratch := heap.New()
	cloned := heap.Clone(scratch, value)
	ch.Packets = append(ch.Packets, Packet{Heap: scratch, Value: cloned})
}

// Tick runs one scheduling round, for hosts (like `ember run`'s stdio
// bridge) that need to interleave their own I/O between rounds rather
// than drive a fiber to completion in one uninterrupted call.
func (vm *VM) Tick() bool { return vm.tick() }
