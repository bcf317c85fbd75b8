package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"api": map[string]any{
			"base_url": "http://localhost:8000",
			"timeout":  "10s",
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["api.base_url"] != "http://localhost:8000" {
		t.Errorf("expected api.base_url=http://localhost:8000, got %v", got["api.base_url"])
	}
	if got["api.timeout"] != "10s" {
		t.Errorf("expected api.timeout=10s, got %v", got["api.timeout"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_EmptyNestedMap(t *testing.T) {
	got := Flatten(map[string]any{"a": map[string]any{}})
	if len(got) != 0 {
		t.Errorf("expected 0 keys (empty nested map produces nothing), got %d", len(got))
	}
}

func TestUnflatten_DeeplyNested(t *testing.T) {
	got := Unflatten(map[string]any{"a.b.c": "deep", "a.x": 1.0})
	a, ok := got["a"].(map[string]any)
	if !ok {
		t.Fatalf("expected a to be map, got %T", got["a"])
	}
	b, ok := a["b"].(map[string]any)
	if !ok {
		t.Fatalf("expected a.b to be map, got %T", a["b"])
	}
	if b["c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", b["c"])
	}
	if a["x"] != 1.0 {
		t.Errorf("expected a.x=1, got %v", a["x"])
	}
}

func TestUnflatten_ScalarReplacedByMap(t *testing.T) {
	got := Unflatten(map[string]any{"streaming.batch_size": 100.0})
	streaming, ok := got["streaming"].(map[string]any)
	if !ok {
		t.Fatalf("expected streaming to be map, got %T", got["streaming"])
	}
	if streaming["batch_size"] != 100.0 {
		t.Errorf("expected batch_size=100, got %v", streaming["batch_size"])
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	cfg := Default()
	m, err := ToMap(cfg)
	if err != nil {
		t.Fatal(err)
	}
	back := Flatten(Unflatten(Flatten(m)))
	for k, v := range Flatten(m) {
		if back[k] != v {
			t.Errorf("key %s: expected %v, got %v", k, v, back[k])
		}
	}
}
