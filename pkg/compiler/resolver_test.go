// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package compiler

import (
	"strings"
	"testing"

	"github.com/kraklabs/ember/pkg/cst"
	"github.com/kraklabs/ember/pkg/heap"
	"github.com/kraklabs/ember/pkg/mir"
	"github.com/kraklabs/ember/pkg/module"
)

type stubLoader struct {
	assets      map[string][]byte
	loadAssetN  int
	loadSourceN int
}

func (s *stubLoader) LoadSource(m module.Module) (*cst.Tree, error) {
	s.loadSourceN++
	return &cst.Tree{}, nil
}

func (s *stubLoader) LoadAsset(m module.Module) ([]byte, error) {
	s.loadAssetN++
	return s.assets[m.String()], nil
}

func TestEnterChainDetectsCycle(t *testing.T) {
	r := NewResolver(New("demo", &stubLoader{}, nil), mir.TracingConfig{}, nil, nil)
	key := module.New("demo", []string{"a"}, module.Code).Key()

	if err := r.enterChain(key); err != nil {
		t.Fatalf("enterChain() first call error = %v, want nil", err)
	}
	err := r.enterChain(key)
	if err == nil {
		t.Fatalf("enterChain() second call on the same key = nil, want a circular-use error")
	}
	if !strings.Contains(err.Error(), "circular use") {
		t.Fatalf("enterChain() error = %q, want it to mention circular use", err.Error())
	}
}

func TestLeaveChainAllowsReentry(t *testing.T) {
	r := NewResolver(New("demo", &stubLoader{}, nil), mir.TracingConfig{}, nil, nil)
	key := module.New("demo", []string{"a"}, module.Code).Key()

	if err := r.enterChain(key); err != nil {
		t.Fatalf("enterChain() error = %v", err)
	}
	r.leaveChain(key)
	if err := r.enterChain(key); err != nil {
		t.Fatalf("enterChain() after leaveChain() error = %v, want nil", err)
	}
}

func TestResolveModuleAssetCachesResult(t *testing.T) {
	current := module.New("demo", []string{"root"}, module.Code)
	target := module.Resolve(current, "data.emberasset", module.Asset)
	loader := &stubLoader{assets: map[string][]byte{target.String(): {1, 2, 3}}}
	r := NewResolver(New("demo", loader, nil), mir.TracingConfig{}, nil, nil)

	v1, err := r.ResolveModule(current.String(), "data.emberasset", heap.New())
	if err != nil {
		t.Fatalf("ResolveModule() error = %v", err)
	}
	v2, err := r.ResolveModule("demo:root", "data.emberasset", heap.New())
	if err != nil {
		t.Fatalf("ResolveModule() second call error = %v", err)
	}

	for _, v := range []heap.Value{v1, v2} {
		obj, ok := v.Object()
		if !ok || obj.Kind != heap.KindList || len(obj.ListItems) != 3 {
			t.Fatalf("ResolveModule() = %v, want a 3-byte list", v)
		}
	}
	if loader.loadAssetN != 1 {
		t.Fatalf("LoadAsset called %d times, want 1 (second resolve should hit the cache)", loader.loadAssetN)
	}
}
