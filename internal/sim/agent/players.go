package agent

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"cheeserun.ai/internal/sim/game"
)

// Random moves in a random direction that is not a wall, preferring cells it
// has not visited yet.
type Random struct {
	Base
	rng     *rand.Rand
	visited map[int]bool
}

func NewRandom(name string, seed int64) *Random {
	return &Random{
		Base:    Base{PlayerName: name},
		rng:     rand.New(rand.NewSource(seed)),
		visited: map[int]bool{},
	}
}

func (r *Random) Turn(_ context.Context, g game.Grid, s *game.State) (game.Action, error) {
	here := s.PlayerLocations[r.Name()]
	r.visited[here] = true

	var fresh, open []game.Action
	for _, a := range []game.Action{game.ActionNorth, game.ActionEast, game.ActionSouth, game.ActionWest} {
		to, ok := game.Destination(g, here, a)
		if !ok {
			continue
		}
		if _, ok := g.Weight(here, to); !ok {
			continue
		}
		open = append(open, a)
		if !r.visited[to] {
			fresh = append(fresh, a)
		}
	}
	switch {
	case len(fresh) > 0:
		return fresh[r.rng.Intn(len(fresh))], nil
	case len(open) > 0:
		return open[r.rng.Intn(len(open))], nil
	}
	return game.ActionNothing, nil
}

// Fixed replays a predetermined list of actions, then does nothing.
type Fixed struct {
	Base
	actions []game.Action
	next    int
}

func NewFixed(name string, actions []game.Action) *Fixed {
	return &Fixed{Base: Base{PlayerName: name}, actions: append([]game.Action(nil), actions...)}
}

func (f *Fixed) Turn(context.Context, game.Grid, *game.State) (game.Action, error) {
	if f.next >= len(f.actions) {
		return game.ActionNothing, nil
	}
	a := f.actions[f.next]
	f.next++
	return a, nil
}

// Greedy walks the cheapest path (mud weights included) to the closest
// cheese, recomputing every turn.
type Greedy struct {
	Base
}

func NewGreedy(name string) *Greedy { return &Greedy{Base: Base{PlayerName: name}} }

func (gr *Greedy) Turn(_ context.Context, g game.Grid, s *game.State) (game.Action, error) {
	here := s.PlayerLocations[gr.Name()]
	if len(s.Cheese) == 0 {
		return game.ActionNothing, nil
	}
	dist, prev := dijkstra(g, here)
	best, bestDist := -1, -1
	for _, c := range s.Cheese {
		d, ok := dist[c]
		if !ok {
			continue
		}
		if bestDist < 0 || d < bestDist || (d == bestDist && c < best) {
			best, bestDist = c, d
		}
	}
	if best < 0 || best == here {
		return game.ActionNothing, nil
	}
	step := best
	for prev[step] != here {
		step = prev[step]
	}
	return directionTo(g, here, step)
}

func directionTo(g game.Grid, from, to int) (game.Action, error) {
	for _, a := range []game.Action{game.ActionNorth, game.ActionEast, game.ActionSouth, game.ActionWest} {
		if d, ok := game.Destination(g, from, a); ok && d == to {
			return a, nil
		}
	}
	return game.ActionNothing, fmt.Errorf("cells %d and %d are not adjacent", from, to)
}

// dijkstra on small mazes; a sorted frontier keeps ties deterministic.
func dijkstra(g game.Grid, src int) (map[int]int, map[int]int) {
	dist := map[int]int{src: 0}
	prev := map[int]int{}
	done := map[int]bool{}
	frontier := []int{src}
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool {
			if dist[frontier[i]] != dist[frontier[j]] {
				return dist[frontier[i]] < dist[frontier[j]]
			}
			return frontier[i] < frontier[j]
		})
		v := frontier[0]
		frontier = frontier[1:]
		if done[v] {
			continue
		}
		done[v] = true
		for _, u := range g.Neighbors(v) {
			w, ok := g.Weight(v, u)
			if !ok || done[u] {
				continue
			}
			nd := dist[v] + w
			if d, seen := dist[u]; !seen || nd < d {
				dist[u] = nd
				prev[u] = v
				frontier = append(frontier, u)
			}
		}
	}
	return dist, prev
}
