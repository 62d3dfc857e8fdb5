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

// Package heap implements the runtime value model (§3.8): one-machine-word
// values tagged as inline-integer, inline-builtin, inline-port, or a
// pointer to a reference-counted heap Object. Each Heap is owned
// exclusively by one fiber (§5 "each fiber owns its own heap exclusively");
// the constant sub-heap built by the compiler is shared read-only and
// exempt from refcounting.
package heap

import (
	"fmt"
	"hash/fnv"
	"math/big"
	"sort"

	"github.com/kraklabs/ember/pkg/hir"
)

// inlineIntBits bounds the inline integer range to a machine word minus
// the tag bits (SPEC_FULL §5: "fixes the inline range to machine word
// minus tag bits"); values outside it are promoted to a heap Int backed
// by math/big.
const (
	inlineIntBits = 61
	inlineIntMax  = int64(1)<<(inlineIntBits-1) - 1
	inlineIntMin  = -int64(1) << (inlineIntBits - 1)
)

// Kind discriminates heap Object payloads.
type Kind int

const (
	KindInt Kind = iota
	KindText
	KindTag
	KindList
	KindStruct
	KindFunction
	KindHandle
	KindHirId
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindText:
		return "Text"
	case KindTag:
		return "Tag"
	case KindList:
		return "List"
	case KindStruct:
		return "Struct"
	case KindFunction:
		return "Function"
	case KindHandle:
		return "Handle"
	case KindHirId:
		return "HirId"
	default:
		return "Unknown"
	}
}

// PortDirection distinguishes a send port from a receive port (§3.8).
type PortDirection int

const (
	SendPort PortDirection = iota
	ReceivePort
)

type valueTag uint8

const (
	tagInlineInt valueTag = iota
	tagInlineBuiltin
	tagInlinePort
	tagObject
)

// Port is an inline reference to one end of a channel.
type Port struct {
	ChannelID uint64
	Direction PortDirection
}

// Value is one machine word per §3.8: either an inline payload or a
// pointer to a refcounted Object.
type Value struct {
	tag        valueTag
	inlineInt  int64
	builtin    string
	port       Port
	obj        *Object
}

// StructEntry is one (hash, key, value) triple of a Struct object,
// ordered by Hash (§3.8).
type StructEntry struct {
	Hash  uint64
	Key   Value
	Value Value
}

// Object is a heap-allocated, reference-counted value (§3.8).
type Object struct {
	Kind     Kind
	RefCount int64
	Constant bool // constants bypass refcounting entirely (§3.8)

	Int  *big.Int // KindInt
	Text string   // KindText

	TagSymbol string // KindTag
	TagValue  *Value // KindTag, nil if no payload

	ListItems []Value // KindList

	StructEntries []StructEntry // KindStruct

	FuncCaptured  []Value // KindFunction
	FuncArgCount  int
	FuncEntryIP   int

	HandleID       string // KindHandle
	HandleArgCount int

	HirIDValue hir.Id // KindHirId
}

// Heap owns a set of Objects with independent refcounts (§5: "each fiber
// owns its own heap exclusively").
type Heap struct {
	Constant bool // true for the compiler's constant sub-heap
	live     map[*Object]struct{}
}

// New creates an empty, mutable (non-constant) heap.
func New() *Heap { return &Heap{live: map[*Object]struct{}{}} }

// NewConstant creates a heap whose objects are all refcount-exempt, used
// for the compiler's constant sub-heap (§3.7, §3.8).
func NewConstant() *Heap { return &Heap{Constant: true, live: map[*Object]struct{}{}} }

func (h *Heap) alloc(kind Kind) *Object {
	obj := &Object{Kind: kind, RefCount: 1, Constant: h.Constant}
	h.live[obj] = struct{}{}
	return obj
}

// LiveCount reports the number of Objects this heap has allocated and not
// yet freed — used by tests to assert refcount conservation (§8).
func (h *Heap) LiveCount() int { return len(h.live) }

func fromObject(obj *Object) Value { return Value{tag: tagObject, obj: obj} }

// NewInt builds an Int value, inline if it fits in the tagged-pointer
// range, otherwise as a heap Object backed by math/big (§3.8).
func (h *Heap) NewInt(v int64) Value {
	if v >= inlineIntMin && v <= inlineIntMax {
		return Value{tag: tagInlineInt, inlineInt: v}
	}
	return h.NewBigInt(big.NewInt(v))
}

// NewBigInt builds an Int value from an arbitrary-precision integer,
// staying inline when it fits the machine-word range.
func (h *Heap) NewBigInt(v *big.Int) Value {
	if v.IsInt64() {
		i := v.Int64()
		if i >= inlineIntMin && i <= inlineIntMax {
			return Value{tag: tagInlineInt, inlineInt: i}
		}
	}
	obj := h.alloc(KindInt)
	obj.Int = new(big.Int).Set(v)
	return fromObject(obj)
}

// NewText builds a Text value.
func (h *Heap) NewText(s string) Value {
	obj := h.alloc(KindText)
	obj.Text = s
	return fromObject(obj)
}

// NewTag builds a Tag value, optionally carrying one payload (§3.8).
func (h *Heap) NewTag(symbol string, payload *Value) Value {
	obj := h.alloc(KindTag)
	obj.TagSymbol = symbol
	obj.TagValue = payload
	return fromObject(obj)
}

// NewList builds a List value over items (taken by reference, not copied).
func (h *Heap) NewList(items []Value) Value {
	obj := h.alloc(KindList)
	obj.ListItems = items
	return fromObject(obj)
}

// NewStruct builds a Struct value, sorting entries by their key's
// ValueHash as required by §3.8.
func (h *Heap) NewStruct(entries []StructEntry) Value {
	sorted := append([]StructEntry(nil), entries...)
	for i := range sorted {
		sorted[i].Hash = ValueHash(sorted[i].Key)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash < sorted[j].Hash })
	obj := h.alloc(KindStruct)
	obj.StructEntries = sorted
	return fromObject(obj)
}

// NewFunction builds a Function value closing over captured.
func (h *Heap) NewFunction(captured []Value, argCount, entryIP int) Value {
	obj := h.alloc(KindFunction)
	obj.FuncCaptured = captured
	obj.FuncArgCount = argCount
	obj.FuncEntryIP = entryIP
	return fromObject(obj)
}

// NewBuiltin builds an inline reference to a builtin function.
func (h *Heap) NewBuiltin(name string) Value { return Value{tag: tagInlineBuiltin, builtin: name} }

// NewHandle builds a Handle value (an externally-implemented callable).
func (h *Heap) NewHandle(id string, argCount int) Value {
	obj := h.alloc(KindHandle)
	obj.HandleID = id
	obj.HandleArgCount = argCount
	return fromObject(obj)
}

// NewHirId builds a HirId value, used for blame tracking.
func (h *Heap) NewHirId(id hir.Id) Value {
	obj := h.alloc(KindHirId)
	obj.HirIDValue = id
	return fromObject(obj)
}

// NewSendPort / NewReceivePort build an inline channel-end reference.
func (h *Heap) NewSendPort(channelID uint64) Value {
	return Value{tag: tagInlinePort, port: Port{ChannelID: channelID, Direction: SendPort}}
}
func (h *Heap) NewReceivePort(channelID uint64) Value {
	return Value{tag: tagInlinePort, port: Port{ChannelID: channelID, Direction: ReceivePort}}
}

// IsObject reports whether v is a pointer to a heap Object (as opposed to
// an inline payload).
func (v Value) IsObject() bool { return v.tag == tagObject }

// Object returns the underlying Object and true, or (nil, false) for an
// inline value.
func (v Value) Object() (*Object, bool) {
	if v.tag == tagObject {
		return v.obj, true
	}
	return nil, false
}

// Int returns v's integer value as a big.Int and true, for either an
// inline or heap-allocated Int.
func (v Value) Int() (*big.Int, bool) {
	switch v.tag {
	case tagInlineInt:
		return big.NewInt(v.inlineInt), true
	case tagObject:
		if v.obj.Kind == KindInt {
			return v.obj.Int, true
		}
	}
	return nil, false
}

// Builtin returns an inline builtin reference's name and true.
func (v Value) Builtin() (string, bool) {
	if v.tag == tagInlineBuiltin {
		return v.builtin, true
	}
	return "", false
}

// PortValue returns an inline port's channel id/direction and true.
func (v Value) PortValue() (Port, bool) {
	if v.tag == tagInlinePort {
		return v.port, true
	}
	return Port{}, false
}

// Kind reports the dynamic type tag of v, matching the §4.9 type-of
// builtin's vocabulary.
func (v Value) Kind() string {
	switch v.tag {
	case tagInlineInt:
		return "Int"
	case tagInlineBuiltin:
		return "Builtin"
	case tagInlinePort:
		if v.port.Direction == SendPort {
			return "SendPort"
		}
		return "ReceivePort"
	case tagObject:
		return v.obj.Kind.String()
	default:
		return "Unknown"
	}
}

// Dup increments v's refcount by n (a no-op for inline values and for
// constant objects, §3.8).
func (h *Heap) Dup(v Value, n int64) {
	if v.tag != tagObject || v.obj.Constant {
		return
	}
	v.obj.RefCount += n
}

// Drop decrements v's refcount by one and, upon reaching zero, recursively
// drops every contained value and frees the object (§3.8). A no-op for
// inline values and constants.
func (h *Heap) Drop(v Value) {
	if v.tag != tagObject || v.obj.Constant {
		return
	}
	obj := v.obj
	obj.RefCount--
	if obj.RefCount > 0 {
		return
	}
	switch obj.Kind {
	case KindTag:
		if obj.TagValue != nil {
			h.Drop(*obj.TagValue)
		}
	case KindList:
		for _, item := range obj.ListItems {
			h.Drop(item)
		}
	case KindStruct:
		for _, entry := range obj.StructEntries {
			h.Drop(entry.Key)
			h.Drop(entry.Value)
		}
	case KindFunction:
		for _, c := range obj.FuncCaptured {
			h.Drop(c)
		}
	}
	delete(h.live, obj)
}

// Equals implements the §4.9 equals builtin: structural equality over
// heap values, recursing into containers.
func Equals(a, b Value) bool {
	if a.tag != b.tag {
		// An inline Int and a promoted heap Int must still compare equal.
		if ai, ok := a.Int(); ok {
			if bi, ok := b.Int(); ok {
				return ai.Cmp(bi) == 0
			}
		}
		return false
	}
	switch a.tag {
	case tagInlineInt:
		return a.inlineInt == b.inlineInt
	case tagInlineBuiltin:
		return a.builtin == b.builtin
	case tagInlinePort:
		return a.port == b.port
	case tagObject:
		return equalsObject(a.obj, b.obj)
	default:
		return false
	}
}

func equalsObject(a, b *Object) bool {
	if a == b {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindInt:
		return a.Int.Cmp(b.Int) == 0
	case KindText:
		return a.Text == b.Text
	case KindTag:
		if a.TagSymbol != b.TagSymbol {
			return false
		}
		if (a.TagValue == nil) != (b.TagValue == nil) {
			return false
		}
		if a.TagValue == nil {
			return true
		}
		return Equals(*a.TagValue, *b.TagValue)
	case KindList:
		if len(a.ListItems) != len(b.ListItems) {
			return false
		}
		for i := range a.ListItems {
			if !Equals(a.ListItems[i], b.ListItems[i]) {
				return false
			}
		}
		return true
	case KindStruct:
		if len(a.StructEntries) != len(b.StructEntries) {
			return false
		}
		for i := range a.StructEntries {
			if !Equals(a.StructEntries[i].Key, b.StructEntries[i].Key) {
				return false
			}
			if !Equals(a.StructEntries[i].Value, b.StructEntries[i].Value) {
				return false
			}
		}
		return true
	case KindFunction:
		return a.FuncEntryIP == b.FuncEntryIP && a.FuncArgCount == b.FuncArgCount && len(a.FuncCaptured) == len(b.FuncCaptured)
	case KindHandle:
		return a.HandleID == b.HandleID
	case KindHirId:
		return a.HirIDValue == b.HirIDValue
	default:
		return false
	}
}

// ValueHash computes a structural hash used to order Struct entries
// (§3.8: "hash determined by key's value-hash").
func ValueHash(v Value) uint64 {
	h := fnv.New64a()
	writeHash(h, v)
	return h.Sum64()
}

func writeHash(w interface{ Write([]byte) (int, error) }, v Value) {
	switch v.tag {
	case tagInlineInt:
		fmt.Fprintf(w, "int:%d", v.inlineInt)
	case tagInlineBuiltin:
		fmt.Fprintf(w, "builtin:%s", v.builtin)
	case tagInlinePort:
		fmt.Fprintf(w, "port:%d:%d", v.port.ChannelID, v.port.Direction)
	case tagObject:
		writeHashObject(w, v.obj)
	}
}

func writeHashObject(w interface{ Write([]byte) (int, error) }, obj *Object) {
	switch obj.Kind {
	case KindInt:
		fmt.Fprintf(w, "int:%s", obj.Int.String())
	case KindText:
		fmt.Fprintf(w, "text:%s", obj.Text)
	case KindTag:
		fmt.Fprintf(w, "tag:%s", obj.TagSymbol)
		if obj.TagValue != nil {
			writeHash(w, *obj.TagValue)
		}
	case KindList:
		fmt.Fprintf(w, "list:%d:", len(obj.ListItems))
		for _, item := range obj.ListItems {
			writeHash(w, item)
		}
	case KindStruct:
		fmt.Fprintf(w, "struct:%d:", len(obj.StructEntries))
		for _, e := range obj.StructEntries {
			writeHash(w, e.Key)
			writeHash(w, e.Value)
		}
	case KindFunction:
		fmt.Fprintf(w, "function:%d:%d", obj.FuncEntryIP, obj.FuncArgCount)
	case KindHandle:
		fmt.Fprintf(w, "handle:%s", obj.HandleID)
	case KindHirId:
		fmt.Fprintf(w, "hirid:%s", obj.HirIDValue.String())
	}
}

// Clone deep-copies v's whole value graph into dst, detaching it from the
// source heap entirely — the mechanism channel packets use for transfer
// (§5 "Packet transfer").
func Clone(dst *Heap, v Value) Value {
	switch v.tag {
	case tagInlineInt, tagInlineBuiltin, tagInlinePort:
		return v
	case tagObject:
		return cloneObject(dst, v.obj)
	default:
		return v
	}
}

func cloneObject(dst *Heap, obj *Object) Value {
	switch obj.Kind {
	case KindInt:
		return dst.NewBigInt(obj.Int)
	case KindText:
		return dst.NewText(obj.Text)
	case KindTag:
		var payload *Value
		if obj.TagValue != nil {
			v := Clone(dst, *obj.TagValue)
			payload = &v
		}
		return dst.NewTag(obj.TagSymbol, payload)
	case KindList:
		items := make([]Value, len(obj.ListItems))
		for i, item := range obj.ListItems {
			items[i] = Clone(dst, item)
		}
		return dst.NewList(items)
	case KindStruct:
		entries := make([]StructEntry, len(obj.StructEntries))
		for i, e := range obj.StructEntries {
			entries[i] = StructEntry{Key: Clone(dst, e.Key), Value: Clone(dst, e.Value)}
		}
		return dst.NewStruct(entries)
	case KindFunction:
		captured := make([]Value, len(obj.FuncCaptured))
		for i, c := range obj.FuncCaptured {
			captured[i] = Clone(dst, c)
		}
		return dst.NewFunction(captured, obj.FuncArgCount, obj.FuncEntryIP)
	case KindHandle:
		return dst.NewHandle(obj.HandleID, obj.HandleArgCount)
	case KindHirId:
		return dst.NewHirId(obj.HirIDValue)
	default:
		return Value{}
	}
}
