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

// Package builtins implements the fixed §4.9 builtin enumeration: the
// non-control-flow operations a fiber's Call instruction can dispatch to
// directly. `function-run` and `if-else` are control-flow builtins that
// must re-enter the fiber's own call dispatch (to invoke a function value)
// and are therefore handled by pkg/vm itself rather than through this
// table, to avoid a pkg/builtins -> pkg/vm import cycle; see DESIGN.md.
package builtins

import (
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/kraklabs/ember/pkg/heap"
)

// ArityError is returned by a Func when called with the wrong number of
// arguments; the VM panics on the caller's responsible id (§4.9 "calling
// with the wrong arity panics with the responsibility assigned to the
// caller's responsible id").
type ArityError struct {
	Builtin  string
	Expected int
	Got      int
}

func (e *ArityError) Error() string {
	return "wrong argument count"
}

// Func implements one builtin's computation. It receives the arguments
// already popped from the data stack (but not yet dropped — the caller
// drops them per the standard refcount discipline, §4.9 "each builtin
// drops its argument objects after computing its result"). A non-nil
// error becomes the fiber's panic reason, rendered to text.
type Func func(h *heap.Heap, args []heap.Value) (heap.Value, error)

// Entry pairs a builtin's static arity with its implementation.
type Entry struct {
	Arity int
	Fn    Func
}

// Table maps a builtin's name (as it appears in mir.Builtin.Name) to its
// Entry.
type Table map[string]Entry

// Default builds the full builtin table, excluding `FunctionRun` and
// `IfElse` (handled by pkg/vm, see the package doc).
func Default() Table {
	t := Table{}
	reg := func(name string, arity int, fn Func) { t[name] = Entry{Arity: arity, Fn: fn} }

	reg("Equals", 2, biEquals)
	reg("GetArgumentCount", 1, biGetArgumentCount)

	reg("Add", 2, biIntBinOp(func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) }))
	reg("Subtract", 2, biIntBinOp(func(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }))
	reg("Multiply", 2, biIntBinOp(func(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) }))
	reg("DivideTruncating", 2, biDivideTruncating)
	reg("Modulo", 2, biModulo)
	reg("Remainder", 2, biRemainder)
	reg("CompareTo", 2, biCompareTo)
	reg("BitLength", 1, biBitLength)
	reg("BitwiseAnd", 2, biIntBinOp(func(a, b *big.Int) *big.Int { return new(big.Int).And(a, b) }))
	reg("BitwiseOr", 2, biIntBinOp(func(a, b *big.Int) *big.Int { return new(big.Int).Or(a, b) }))
	reg("BitwiseXor", 2, biIntBinOp(func(a, b *big.Int) *big.Int { return new(big.Int).Xor(a, b) }))
	reg("ShiftLeft", 2, biShiftLeft)
	reg("ShiftRight", 2, biShiftRight)
	reg("ParseInt", 1, biParseInt)

	reg("TextConcatenate", 2, biTextConcatenate)
	reg("TextContains", 2, biTextContains)
	reg("TextStartsWith", 2, biTextStartsWith)
	reg("TextEndsWith", 2, biTextEndsWith)
	reg("TextCharacters", 1, biTextCharacters)
	reg("TextFromUtf8", 1, biTextFromUtf8)
	reg("TextGetRange", 3, biTextGetRange)
	reg("TextIsEmpty", 1, biTextIsEmpty)
	reg("TextLength", 1, biTextLength)
	reg("TextTrimStart", 1, biTextTrimStart)
	reg("TextTrimEnd", 1, biTextTrimEnd)

	reg("ListFilled", 2, biListFilled)
	reg("ListGet", 2, biListGet)
	reg("ListInsert", 3, biListInsert)
	reg("ListLength", 1, biListLength)
	reg("ListRemoveAt", 2, biListRemoveAt)
	reg("ListReplace", 3, biListReplace)

	reg("StructGet", 2, biStructGet)
	reg("StructGetKeys", 1, biStructGetKeys)
	reg("StructHasKey", 2, biStructHasKey)

	reg("GetValue", 1, biGetValue)
	reg("HasValue", 1, biHasValue)
	reg("WithValue", 2, biWithValue)
	reg("WithoutValue", 1, biWithoutValue)

	reg("ToDebugText", 1, biToDebugText)
	reg("TypeOf", 1, biTypeOf)
	reg("Needs", 2, biNeeds)

	return t
}

func boolTag(h *heap.Heap, b bool) heap.Value {
	if b {
		return h.NewTag("True", nil)
	}
	return h.NewTag("False", nil)
}

func okTag(h *heap.Heap, v heap.Value) heap.Value    { return h.NewTag("Ok", &v) }
func errorTag(h *heap.Heap, reason string) heap.Value {
	text := h.NewText(reason)
	return h.NewTag("Error", &text)
}

func wantInt(v heap.Value, which string) (*big.Int, error) {
	i, ok := v.Int()
	if !ok {
		return nil, &typeError{which, "Int", v.Kind()}
	}
	return i, nil
}

func wantText(v heap.Value, which string) (string, error) {
	obj, ok := v.Object()
	if !ok || obj.Kind != heap.KindText {
		return "", &typeError{which, "Text", v.Kind()}
	}
	return obj.Text, nil
}

func wantList(v heap.Value, which string) ([]heap.Value, error) {
	obj, ok := v.Object()
	if !ok || obj.Kind != heap.KindList {
		return nil, &typeError{which, "List", v.Kind()}
	}
	return obj.ListItems, nil
}

func wantStruct(v heap.Value, which string) ([]heap.StructEntry, error) {
	obj, ok := v.Object()
	if !ok || obj.Kind != heap.KindStruct {
		return nil, &typeError{which, "Struct", v.Kind()}
	}
	return obj.StructEntries, nil
}

func wantTag(v heap.Value, which string) (*heap.Object, error) {
	obj, ok := v.Object()
	if !ok || obj.Kind != heap.KindTag {
		return nil, &typeError{which, "Tag", v.Kind()}
	}
	return obj, nil
}

func wantFunction(v heap.Value, which string) (*heap.Object, error) {
	obj, ok := v.Object()
	if !ok || obj.Kind != heap.KindFunction {
		return nil, &typeError{which, "Function", v.Kind()}
	}
	return obj, nil
}

type typeError struct {
	arg, want, got string
}

func (e *typeError) Error() string {
	return e.arg + " must be a " + e.want + ", got " + e.got
}

func biEquals(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	return boolTag(h, heap.Equals(args[0], args[1])), nil
}

func biGetArgumentCount(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	obj, err := wantFunction(args[0], "function")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewInt(int64(obj.FuncArgCount)), nil
}

func biIntBinOp(op func(a, b *big.Int) *big.Int) Func {
	return func(h *heap.Heap, args []heap.Value) (heap.Value, error) {
		a, err := wantInt(args[0], "a")
		if err != nil {
			return heap.Value{}, err
		}
		b, err := wantInt(args[1], "b")
		if err != nil {
			return heap.Value{}, err
		}
		return h.NewBigInt(op(a, b)), nil
	}
}

func biDivideTruncating(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantInt(args[0], "a")
	if err != nil {
		return heap.Value{}, err
	}
	b, err := wantInt(args[1], "b")
	if err != nil {
		return heap.Value{}, err
	}
	if b.Sign() == 0 {
		return heap.Value{}, &divisionByZeroError{}
	}
	return h.NewBigInt(new(big.Int).Quo(a, b)), nil
}

func biModulo(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantInt(args[0], "a")
	if err != nil {
		return heap.Value{}, err
	}
	b, err := wantInt(args[1], "b")
	if err != nil {
		return heap.Value{}, err
	}
	if b.Sign() == 0 {
		return heap.Value{}, &divisionByZeroError{}
	}
	m := new(big.Int).Mod(a, b)
	if m.Sign() != 0 && b.Sign() < 0 {
		m.Add(m, b)
	}
	return h.NewBigInt(m), nil
}

func biRemainder(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantInt(args[0], "a")
	if err != nil {
		return heap.Value{}, err
	}
	b, err := wantInt(args[1], "b")
	if err != nil {
		return heap.Value{}, err
	}
	if b.Sign() == 0 {
		return heap.Value{}, &divisionByZeroError{}
	}
	return h.NewBigInt(new(big.Int).Rem(a, b)), nil
}

type divisionByZeroError struct{}

func (*divisionByZeroError) Error() string { return "division by zero" }

func biCompareTo(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantInt(args[0], "a")
	if err != nil {
		return heap.Value{}, err
	}
	b, err := wantInt(args[1], "b")
	if err != nil {
		return heap.Value{}, err
	}
	switch a.Cmp(b) {
	case -1:
		return h.NewTag("Less", nil), nil
	case 1:
		return h.NewTag("Greater", nil), nil
	default:
		return h.NewTag("Equal", nil), nil
	}
}

func biBitLength(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantInt(args[0], "a")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewInt(int64(a.BitLen())), nil
}

func biShiftLeft(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantInt(args[0], "a")
	if err != nil {
		return heap.Value{}, err
	}
	n, err := wantInt(args[1], "n")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewBigInt(new(big.Int).Lsh(a, uint(n.Int64()))), nil
}

func biShiftRight(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantInt(args[0], "a")
	if err != nil {
		return heap.Value{}, err
	}
	n, err := wantInt(args[1], "n")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewBigInt(new(big.Int).Rsh(a, uint(n.Int64()))), nil
}

func biParseInt(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	s, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	i, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return errorTag(h, "not a valid integer"), nil
	}
	return okTag(h, h.NewBigInt(i)), nil
}

func biTextConcatenate(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantText(args[0], "a")
	if err != nil {
		return heap.Value{}, err
	}
	b, err := wantText(args[1], "b")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewText(a + b), nil
}

func biTextContains(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	b, err := wantText(args[1], "pattern")
	if err != nil {
		return heap.Value{}, err
	}
	return boolTag(h, strings.Contains(a, b)), nil
}

func biTextStartsWith(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	b, err := wantText(args[1], "prefix")
	if err != nil {
		return heap.Value{}, err
	}
	return boolTag(h, strings.HasPrefix(a, b)), nil
}

func biTextEndsWith(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	a, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	b, err := wantText(args[1], "suffix")
	if err != nil {
		return heap.Value{}, err
	}
	return boolTag(h, strings.HasSuffix(a, b)), nil
}

func biTextCharacters(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	s, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	var items []heap.Value
	for _, r := range s {
		items = append(items, h.NewText(string(r)))
	}
	return h.NewList(items), nil
}

func biTextFromUtf8(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	items, err := wantList(args[0], "bytes")
	if err != nil {
		return heap.Value{}, err
	}
	buf := make([]byte, len(items))
	for i, item := range items {
		n, ok := item.Int()
		if !ok {
			return heap.Value{}, &typeError{"bytes", "List of Int", item.Kind()}
		}
		buf[i] = byte(n.Int64())
	}
	if !utf8.Valid(buf) {
		return errorTag(h, "invalid UTF-8"), nil
	}
	return okTag(h, h.NewText(string(buf))), nil
}

func biTextGetRange(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	s, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	runes := []rune(s)
	start, err := wantInt(args[1], "start")
	if err != nil {
		return heap.Value{}, err
	}
	end, err := wantInt(args[2], "end")
	if err != nil {
		return heap.Value{}, err
	}
	lo, hi := int(start.Int64()), int(end.Int64())
	if lo < 0 || hi > len(runes) || lo > hi {
		return heap.Value{}, &rangeError{"text-get-range", lo, hi, len(runes)}
	}
	return h.NewText(string(runes[lo:hi])), nil
}

type rangeError struct {
	op         string
	start, end int
	length     int
}

func (e *rangeError) Error() string { return "range out of bounds" }

func biTextIsEmpty(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	s, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	return boolTag(h, s == ""), nil
}

func biTextLength(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	s, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewInt(int64(utf8.RuneCountInString(s))), nil
}

func biTextTrimStart(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	s, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewText(strings.TrimLeft(s, " \t\n\r")), nil
}

func biTextTrimEnd(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	s, err := wantText(args[0], "text")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewText(strings.TrimRight(s, " \t\n\r")), nil
}

func biListFilled(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	n, err := wantInt(args[0], "length")
	if err != nil {
		return heap.Value{}, err
	}
	length := int(n.Int64())
	items := make([]heap.Value, length)
	for i := range items {
		h.Dup(args[1], 1)
		items[i] = args[1]
	}
	return h.NewList(items), nil
}

func biListGet(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	items, err := wantList(args[0], "list")
	if err != nil {
		return heap.Value{}, err
	}
	idx, err := wantInt(args[1], "index")
	if err != nil {
		return heap.Value{}, err
	}
	i := int(idx.Int64())
	if i < 0 || i >= len(items) {
		return heap.Value{}, &rangeError{"list-get", i, i, len(items)}
	}
	h.Dup(items[i], 1)
	return items[i], nil
}

func biListInsert(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	items, err := wantList(args[0], "list")
	if err != nil {
		return heap.Value{}, err
	}
	idx, err := wantInt(args[1], "index")
	if err != nil {
		return heap.Value{}, err
	}
	i := int(idx.Int64())
	if i < 0 || i > len(items) {
		return heap.Value{}, &rangeError{"list-insert", i, i, len(items)}
	}
	out := make([]heap.Value, 0, len(items)+1)
	out = append(out, items[:i]...)
	out = append(out, args[2])
	out = append(out, items[i:]...)
	for _, v := range out {
		h.Dup(v, 1)
	}
	return h.NewList(out), nil
}

func biListLength(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	items, err := wantList(args[0], "list")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewInt(int64(len(items))), nil
}

func biListRemoveAt(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	items, err := wantList(args[0], "list")
	if err != nil {
		return heap.Value{}, err
	}
	idx, err := wantInt(args[1], "index")
	if err != nil {
		return heap.Value{}, err
	}
	i := int(idx.Int64())
	if i < 0 || i >= len(items) {
		return heap.Value{}, &rangeError{"list-remove-at", i, i, len(items)}
	}
	out := make([]heap.Value, 0, len(items)-1)
	out = append(out, items[:i]...)
	out = append(out, items[i+1:]...)
	for _, v := range out {
		h.Dup(v, 1)
	}
	return h.NewList(out), nil
}

func biListReplace(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	items, err := wantList(args[0], "list")
	if err != nil {
		return heap.Value{}, err
	}
	idx, err := wantInt(args[1], "index")
	if err != nil {
		return heap.Value{}, err
	}
	i := int(idx.Int64())
	if i < 0 || i >= len(items) {
		return heap.Value{}, &rangeError{"list-replace", i, i, len(items)}
	}
	out := append([]heap.Value(nil), items...)
	out[i] = args[2]
	for _, v := range out {
		h.Dup(v, 1)
	}
	return h.NewList(out), nil
}

func biStructGet(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	entries, err := wantStruct(args[0], "struct")
	if err != nil {
		return heap.Value{}, err
	}
	key := args[1]
	for _, e := range entries {
		if heap.Equals(e.Key, key) {
			h.Dup(e.Value, 1)
			return e.Value, nil
		}
	}
	return heap.Value{}, &missingKeyError{}
}

type missingKeyError struct{}

func (*missingKeyError) Error() string { return "struct has no such key" }

func biStructGetKeys(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	entries, err := wantStruct(args[0], "struct")
	if err != nil {
		return heap.Value{}, err
	}
	keys := make([]heap.Value, len(entries))
	for i, e := range entries {
		h.Dup(e.Key, 1)
		keys[i] = e.Key
	}
	return h.NewList(keys), nil
}

func biStructHasKey(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	entries, err := wantStruct(args[0], "struct")
	if err != nil {
		return heap.Value{}, err
	}
	key := args[1]
	for _, e := range entries {
		if heap.Equals(e.Key, key) {
			return boolTag(h, true), nil
		}
	}
	return boolTag(h, false), nil
}

func biGetValue(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	obj, err := wantTag(args[0], "tag")
	if err != nil {
		return heap.Value{}, err
	}
	if obj.TagValue == nil {
		return heap.Value{}, &missingKeyError{}
	}
	h.Dup(*obj.TagValue, 1)
	return *obj.TagValue, nil
}

func biHasValue(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	obj, err := wantTag(args[0], "tag")
	if err != nil {
		return heap.Value{}, err
	}
	return boolTag(h, obj.TagValue != nil), nil
}

func biWithValue(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	obj, err := wantTag(args[0], "tag")
	if err != nil {
		return heap.Value{}, err
	}
	// args[1] is dropped by the caller once this builtin returns, like
	// every other argument (§4.9); dup it here since the new tag keeps it.
	h.Dup(args[1], 1)
	payload := args[1]
	return h.NewTag(obj.TagSymbol, &payload), nil
}

func biWithoutValue(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	obj, err := wantTag(args[0], "tag")
	if err != nil {
		return heap.Value{}, err
	}
	return h.NewTag(obj.TagSymbol, nil), nil
}

func biToDebugText(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	return h.NewText(heap.ToDebugText(args[0])), nil
}

func biTypeOf(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	return h.NewTag(args[0].Kind(), nil), nil
}

// biNeeds implements the panicking guard HIR lowering generates for
// pattern/parameter matching (§4.2): args[0] is the condition tag,
// args[1] the panic reason text if it is False.
func biNeeds(h *heap.Heap, args []heap.Value) (heap.Value, error) {
	obj, err := wantTag(args[0], "condition")
	if err != nil {
		return heap.Value{}, err
	}
	if obj.TagSymbol == "True" {
		return h.NewTag("Nothing", nil), nil
	}
	reason, err := wantText(args[1], "reason")
	if err != nil {
		reason = "a needs condition was not met"
	}
	return heap.Value{}, &needsError{reason}
}

type needsError struct{ reason string }

func (e *needsError) Error() string { return e.reason }
