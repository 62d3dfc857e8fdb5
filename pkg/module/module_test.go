// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package module

import "testing"

func TestResolveSibling(t *testing.T) {
	current := New("demo", []string{"lib", "strings"}, Code)
	got := Resolve(current, "util", Code)
	want := New("demo", []string{"lib", "util"}, Code)
	if !got.Equal(want) {
		t.Fatalf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestResolveParentTraversal(t *testing.T) {
	current := New("demo", []string{"lib", "nested", "deep"}, Code)
	got := Resolve(current, "../sibling", Code)
	want := New("demo", []string{"lib", "sibling"}, Code)
	if !got.Equal(want) {
		t.Fatalf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestResolveFromTopLevelModule(t *testing.T) {
	current := New("demo", []string{"main"}, Code)
	got := Resolve(current, "lib/util", Code)
	want := New("demo", []string{"lib", "util"}, Code)
	if !got.Equal(want) {
		t.Fatalf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestEqualIgnoresUnderlyingSliceIdentity(t *testing.T) {
	a := New("demo", []string{"lib", "util"}, Code)
	b := New("demo", []string{"lib", "util"}, Code)
	if !a.Equal(b) {
		t.Fatalf("Equal() = false for modules with equal but distinct Path slices")
	}
	if a.Equal(New("demo", []string{"lib", "util"}, Asset)) {
		t.Fatalf("Equal() = true for differing Kind")
	}
}

func TestKeyDistinguishesCodeFromAsset(t *testing.T) {
	code := New("demo", []string{"data"}, Code)
	asset := New("demo", []string{"data"}, Asset)
	if code.Key() == asset.Key() {
		t.Fatalf("Key() collided for Code and Asset modules with the same path")
	}
}

func TestStringForm(t *testing.T) {
	m := New("demo", []string{"lib", "util"}, Code)
	if got, want := m.String(), "demo:lib/util"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestFilePath(t *testing.T) {
	m := New("demo", []string{"lib", "util"}, Code)
	if got, want := m.FilePath("/", ".ember"), "lib/util.ember"; got != want {
		t.Fatalf("FilePath() = %q, want %q", got, want)
	}
}
