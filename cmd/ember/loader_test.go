// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kraklabs/ember/internal/errors"
	"github.com/kraklabs/ember/pkg/cst"
	"github.com/kraklabs/ember/pkg/module"
)

func TestRootModule_NestedFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "lib", "strings.ember")

	mod, err := rootModule(root, "demo", file)
	if err != nil {
		t.Fatalf("rootModule() error = %v", err)
	}
	want := module.New("demo", []string{"lib", "strings"}, module.Code)
	if !mod.Equal(want) {
		t.Fatalf("rootModule() = %+v, want %+v", mod, want)
	}
}

func TestRootModule_TopLevelFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "main.ember")

	mod, err := rootModule(root, "demo", file)
	if err != nil {
		t.Fatalf("rootModule() error = %v", err)
	}
	want := module.New("demo", []string{"main"}, module.Code)
	if !mod.Equal(want) {
		t.Fatalf("rootModule() = %+v, want %+v", mod, want)
	}
}

func TestFileLoader_LoadSource_MissingFile(t *testing.T) {
	root := t.TempDir()
	loader := newFileLoader(root, stubFrontend{})

	_, err := loader.LoadSource(module.New("demo", []string{"missing"}, module.Code))
	ue, ok := err.(*errors.UserError)
	if !ok {
		t.Fatalf("LoadSource() error = %v, want *errors.UserError", err)
	}
	if ue.Kind != errors.KindFileNotFound {
		t.Fatalf("LoadSource() error kind = %v, want KindFileNotFound", ue.Kind)
	}
}

func TestFileLoader_LoadSource_NoFrontend(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.ember"), []byte("main = 1"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	loader := newFileLoader(root, nil)

	_, err := loader.LoadSource(module.New("demo", []string{"main"}, module.Code))
	ue, ok := err.(*errors.UserError)
	if !ok {
		t.Fatalf("LoadSource() error = %v, want *errors.UserError", err)
	}
	if ue.Kind != errors.KindInternal {
		t.Fatalf("LoadSource() error kind = %v, want KindInternal", ue.Kind)
	}
}

func TestFileLoader_LoadAsset_MissingFile(t *testing.T) {
	root := t.TempDir()
	loader := newFileLoader(root, nil)

	_, err := loader.LoadAsset(module.New("demo", []string{"image"}, module.Asset))
	ue, ok := err.(*errors.UserError)
	if !ok {
		t.Fatalf("LoadAsset() error = %v, want *errors.UserError", err)
	}
	if ue.Kind != errors.KindFileNotFound {
		t.Fatalf("LoadAsset() error kind = %v, want KindFileNotFound", ue.Kind)
	}
}

type stubFrontend struct{}

func (stubFrontend) Parse(filename, source string) (*cst.Tree, error) {
	return &cst.Tree{}, nil
}
