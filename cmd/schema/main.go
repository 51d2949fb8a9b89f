package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cheeserun.ai/internal/protocol"
)

func main() {
	outDir := flag.String("out", "./schemas", "directory to write <message>.schema.json files to")
	flag.Parse()

	names, err := writeSchemas(*outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schemas: %v\n", err)
		os.Exit(1)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func writeSchemas(outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create schema directory: %w", err)
	}
	names := make([]string, 0, len(protocol.Messages))
	for name := range protocol.Messages {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		data, err := protocol.SchemaJSON(name)
		if err != nil {
			return written, err
		}
		outPath := filepath.Join(outDir, name+".schema.json")
		tmpPath := outPath + ".tmp"
		if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
			return written, fmt.Errorf("write temp schema: %w", err)
		}
		if err := os.Rename(tmpPath, outPath); err != nil {
			return written, fmt.Errorf("replace schema: %w", err)
		}
		written = append(written, outPath)
	}
	return written, nil
}
