package main

import (
	"fmt"

	"cheeserun.ai/internal/sim/agent"
	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
	"cheeserun.ai/internal/sim/tuning"
	"cheeserun.ai/internal/transport/ws"
)

// addPlayers registers the configured players in order. Remote players get a
// seat on the websocket server; the number of seats is returned.
func addPlayers(m *match.Match, specs []tuning.PlayerSpec, remote *ws.Server) (int, error) {
	seats := 0
	for _, p := range specs {
		loc, err := match.ParseLocation(p.Location)
		if err != nil {
			return seats, fmt.Errorf("player %s: %w", p.Name, err)
		}
		var a agent.Agent
		switch p.Kind {
		case tuning.PlayerRandom:
			a = agent.NewRandom(p.Name, p.Seed)
		case tuning.PlayerGreedy:
			a = agent.NewGreedy(p.Name)
		case tuning.PlayerFixed:
			actions := make([]game.Action, 0, len(p.Actions))
			for _, s := range p.Actions {
				actions = append(actions, game.Action(s))
			}
			a = agent.NewFixed(p.Name, actions)
		case tuning.PlayerRemote:
			if remote == nil {
				return seats, fmt.Errorf("player %s: remote players need the websocket server", p.Name)
			}
			a = remote.Seat(p.Name, p.Team)
			seats++
		default:
			return seats, fmt.Errorf("player %s: unknown kind %q", p.Name, p.Kind)
		}
		if err := m.AddPlayer(a, p.Team, loc); err != nil {
			return seats, err
		}
	}
	return seats, nil
}

// placeCheese uses the fixed list when one is configured.
func placeCheese(m *match.Match, spec tuning.CheeseSpec, seed int64) error {
	if len(spec.Fixed) > 0 {
		return m.PlaceCheese(spec.Fixed)
	}
	return m.ScatterCheese(spec.Count, seed)
}
