package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	persistlog "cheeserun.ai/internal/persistence/log"
)

func main() {
	_ = godotenv.Load()
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "result":
			resultCmd(os.Args[2:])
			return
		case "frame":
			frameCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "matches"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// resultCmd prints the result log of one match as JSON lines.
func resultCmd(args []string) {
	fs := flag.NewFlagSet("result", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	matchID := fs.String("match", "", "match id")
	turns := fs.Bool("turns", false, "print the turn log instead")
	_ = fs.Parse(args)

	if *matchID == "" {
		fmt.Fprintln(os.Stderr, "missing -match")
		os.Exit(2)
	}
	name := "result.jsonl.zst"
	if *turns {
		name = "turns.jsonl.zst"
	}
	err := persistlog.ReadJSONLZstd(filepath.Join(*dataDir, "matches", *matchID, name), func(line []byte) error {
		if !json.Valid(line) {
			return fmt.Errorf("corrupt line: %q", line)
		}
		_, err := os.Stdout.Write(append(line, '\n'))
		return err
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
}
