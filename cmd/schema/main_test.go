package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteSchemas(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schemas")
	written, err := writeSchemas(dir)
	if err != nil {
		t.Fatalf("writeSchemas: %v", err)
	}
	if len(written) != 7 {
		t.Fatalf("written=%v", written)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "state.schema.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["title"] != "state" {
		t.Fatalf("title=%v", doc["title"])
	}
	if _, err := os.Stat(filepath.Join(dir, "state.schema.json.tmp")); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}
