package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cheeserun.ai/internal/sim/agent"
	"cheeserun.ai/internal/transport/ws"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "remote", "player name reserved in the match config")
		token    = flag.String("token", os.Getenv("CHEESERUN_TOKEN"), "server token")
		strategy = flag.String("strategy", "greedy", "greedy|random")
		seed     = flag.Int64("seed", 1, "random strategy seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	var a agent.Agent
	switch *strategy {
	case "greedy":
		a = agent.NewGreedy(*name)
	case "random":
		a = agent.NewRandom(*name, *seed)
	default:
		logger.Fatalf("unknown strategy %q", *strategy)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ws.Play(ctx, *url, *token, a, logger); err != nil {
		logger.Fatalf("play: %v", err)
	}
	logger.Printf("match finished")
}
