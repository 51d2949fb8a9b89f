package maze

import (
	"errors"
	"reflect"
	"testing"
)

func TestFromAdjacency_InfersDimensions(t *testing.T) {
	// 3x2 grid:
	// 0 1 2
	// 3 4 5
	adj := map[int]map[int]int{
		0: {1: 1, 3: 1},
		1: {0: 1, 2: 4},
		2: {1: 4},
		3: {0: 1, 4: 1},
		4: {3: 1, 5: 1},
		5: {4: 1},
	}
	m, err := FromAdjacency(adj)
	if err != nil {
		t.Fatalf("FromAdjacency: %v", err)
	}
	if m.Width() != 3 || m.Height() != 2 {
		t.Fatalf("dims=%dx%d want 3x2", m.Width(), m.Height())
	}
	if w, ok := m.Weight(1, 2); !ok || w != 4 {
		t.Fatalf("weight(1,2)=%d,%v want 4,true", w, ok)
	}
	if _, ok := m.Weight(1, 4); ok {
		t.Fatalf("expected wall between 1 and 4")
	}
	if got := m.Neighbors(4); !reflect.DeepEqual(got, []int{3, 5}) {
		t.Fatalf("neighbors(4)=%v", got)
	}
	if r, c := m.IndexToRC(5); r != 1 || c != 2 {
		t.Fatalf("IndexToRC(5)=%d,%d", r, c)
	}
	if m.RCToIndex(1, 1) != 4 {
		t.Fatalf("RCToIndex(1,1)=%d", m.RCToIndex(1, 1))
	}
}

func TestFromAdjacency_SingleColumn(t *testing.T) {
	adj := map[int]map[int]int{
		0: {1: 1},
		1: {0: 1, 2: 1},
		2: {1: 1},
	}
	m, err := FromAdjacency(adj)
	if err != nil {
		t.Fatalf("FromAdjacency: %v", err)
	}
	if m.Width() != 1 || m.Height() != 3 {
		t.Fatalf("dims=%dx%d want 1x3", m.Width(), m.Height())
	}
	if r, c := m.IndexToRC(2); r != 2 || c != 0 {
		t.Fatalf("IndexToRC(2)=%d,%d want 2,0", r, c)
	}
}

func TestFromAdjacency_RejectsAsymmetricEdges(t *testing.T) {
	_, err := FromAdjacency(map[int]map[int]int{0: {1: 1}, 1: {}})
	if !errors.Is(err, ErrInvalidMaze) {
		t.Fatalf("err=%v want ErrInvalidMaze", err)
	}
}

func TestAddEdge_RejectsNonAdjacentCells(t *testing.T) {
	m := New(3, 3)
	if err := m.AddEdge(0, 4, 1); !errors.Is(err, ErrInvalidMaze) {
		t.Fatalf("diagonal edge accepted: %v", err)
	}
	if err := m.AddEdge(2, 3, 1); !errors.Is(err, ErrInvalidMaze) {
		t.Fatalf("row-wrapping edge accepted: %v", err)
	}
	if err := m.AddEdge(0, 1, 0); !errors.Is(err, ErrInvalidMaze) {
		t.Fatalf("zero weight accepted: %v", err)
	}
}

func TestRandom_DeterministicAndConnected(t *testing.T) {
	p := Params{
		Width:          15,
		Height:         13,
		CellPercentage: 80,
		WallPercentage: 60,
		MudPercentage:  20,
		MudRange:       [2]int{4, 9},
		Seed:           42,
	}
	m1, err := Random(p)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	m2, err := Random(p)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	if !reflect.DeepEqual(m1.Adjacency(), m2.Adjacency()) {
		t.Fatalf("same seed produced different mazes")
	}

	vs := m1.Vertices()
	if float64(len(vs))/float64(15*13)*100 < 80 {
		t.Fatalf("only %d cells reachable", len(vs))
	}

	seen := map[int]bool{vs[0]: true}
	queue := []int{vs[0]}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, u := range m1.Neighbors(v) {
			w, _ := m1.Weight(v, u)
			if w < 1 || (w > 1 && (w < 4 || w > 9)) {
				t.Fatalf("edge %d-%d has weight %d", v, u, w)
			}
			if !seen[u] {
				seen[u] = true
				queue = append(queue, u)
			}
		}
	}
	if len(seen) != len(vs) {
		t.Fatalf("maze not connected: reached %d of %d cells", len(seen), len(vs))
	}
}

func TestGeneratorFor_UnknownKind(t *testing.T) {
	if _, err := GeneratorFor("spiral"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	g, err := GeneratorFor(KindFixed)
	if err != nil {
		t.Fatalf("GeneratorFor(fixed): %v", err)
	}
	m, err := g.Generate(Params{Fixed: map[int]map[int]int{0: {1: 1}, 1: {0: 1}}})
	if err != nil {
		t.Fatalf("fixed generate: %v", err)
	}
	if !m.Exists(0) || !m.Exists(1) || m.Exists(2) {
		t.Fatalf("unexpected vertex set %v", m.Vertices())
	}
}
