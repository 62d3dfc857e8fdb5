// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import "github.com/kraklabs/ember/pkg/heap"

// ChannelID identifies a channel within a VM (§3.9).
type ChannelID uint64

// Packet is one value in transit through a channel, already Clone'd into
// its own detached heap so sender and receiver never share an Object
// graph (§5 "Packet transfer", §3.9).
type Packet struct {
	Heap  *heap.Heap
	Value heap.Value
}

// pendingSend is a fiber blocked in Status-sending, queued until a
// receiver (or buffer space) is available.
type pendingSend struct {
	fiber  FiberID
	packet Packet
}

// Channel is the §3.9 rendezvous/buffer primitive: a bounded FIFO of
// Packets plus two ordered queues of fibers blocked waiting on either
// side of a transfer. Capacity 0 means synchronous rendezvous — a send
// only completes once a matching receive is waiting (and vice versa);
// Capacity > 0 lets sends complete into the buffer without a waiting
// receiver, up to that many outstanding packets.
type Channel struct {
	ID              ChannelID
	Capacity        int
	Packets         []Packet
	PendingSends    []pendingSend
	PendingReceives []FiberID
}

// NewChannel creates an empty channel of the given capacity.
func NewChannel(id ChannelID, capacity int) *Channel {
	return &Channel{ID: id, Capacity: capacity}
}

// CanBufferSend reports whether a send can complete immediately into the
// buffer without waiting for a receiver (true only when capacity > 0 and
// the buffer is not already full, §3.9).
func (c *Channel) CanBufferSend() bool {
	return c.Capacity > 0 && len(c.Packets) < c.Capacity
}
