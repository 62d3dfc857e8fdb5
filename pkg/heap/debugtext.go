// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package heap

import (
	"strconv"
	"strings"
)

// ToDebugText implements the §4.9 to-debug-text builtin: a recursive,
// human-readable rendering of a value graph (SPEC_FULL §5). Text is
// double-quoted with Go-style escaping; tags render as their bare symbol
// or `Symbol payload` when carrying a value (payload parenthesized when it
// is itself a tag-with-payload, to keep `Some (Some 1)` unambiguous from
// `Some Some 1`); lists use parentheses; structs render their entries in
// the same hash order they are stored in (§3.8), as `key: value` pairs.
func ToDebugText(v Value) string {
	var b strings.Builder
	writeDebugText(&b, v, false)
	return b.String()
}

func writeDebugText(b *strings.Builder, v Value, nested bool) {
	switch v.tag {
	case tagInlineInt:
		b.WriteString(strconv.FormatInt(v.inlineInt, 10))
	case tagInlineBuiltin:
		b.WriteString("builtin:" + v.builtin)
	case tagInlinePort:
		if v.port.Direction == SendPort {
			b.WriteString("sendPort")
		} else {
			b.WriteString("receivePort")
		}
	case tagObject:
		writeDebugTextObject(b, v.obj, nested)
	}
}

func writeDebugTextObject(b *strings.Builder, obj *Object, nested bool) {
	switch obj.Kind {
	case KindInt:
		b.WriteString(obj.Int.String())
	case KindText:
		b.WriteString(strconv.Quote(obj.Text))
	case KindTag:
		if nested && obj.TagValue != nil {
			b.WriteByte('(')
		}
		b.WriteString(obj.TagSymbol)
		if obj.TagValue != nil {
			b.WriteByte(' ')
			writeDebugText(b, *obj.TagValue, true)
		}
		if nested && obj.TagValue != nil {
			b.WriteByte(')')
		}
	case KindList:
		b.WriteByte('(')
		for i, item := range obj.ListItems {
			if i > 0 {
				b.WriteString(", ")
			}
			writeDebugText(b, item, false)
		}
		b.WriteByte(')')
	case KindStruct:
		b.WriteByte('[')
		for i, entry := range obj.StructEntries {
			if i > 0 {
				b.WriteString(", ")
			}
			writeDebugText(b, entry.Key, false)
			b.WriteString(": ")
			writeDebugText(b, entry.Value, false)
		}
		b.WriteByte(']')
	case KindFunction:
		b.WriteString("{function}")
	case KindHandle:
		b.WriteString("{handle " + obj.HandleID + "}")
	case KindHirId:
		b.WriteString("{hir-id " + obj.HirIDValue.String() + "}")
	}
}
