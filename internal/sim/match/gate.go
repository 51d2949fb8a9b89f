package match

import (
	"context"
	"sync"
)

// roundGate is a reusable rendezvous for a fixed number of parties. The
// generation completes when the last party arrives; everyone who arrived
// in that generation is released together.
type roundGate struct {
	mu      sync.Mutex
	parties int
	arrived int
	release chan struct{}
}

func newRoundGate(parties int) *roundGate {
	return &roundGate{parties: parties, release: make(chan struct{})}
}

// arrive registers one arrival and returns the channel closed when the
// current generation completes.
func (g *roundGate) arrive() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := g.release
	g.arrived++
	if g.arrived == g.parties {
		close(g.release)
		g.release = make(chan struct{})
		g.arrived = 0
	}
	return ch
}

// standIn arrives on behalf of n parties that are not taking part this round.
func (g *roundGate) standIn(n int) {
	for i := 0; i < n; i++ {
		g.arrive()
	}
}

func (g *roundGate) wait(ctx context.Context) error {
	select {
	case <-g.arrive():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
