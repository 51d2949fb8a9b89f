package maze

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

type Kind string

const (
	KindRandom Kind = "random"
	KindFixed  Kind = "fixed"
)

type Params struct {
	Width          int
	Height         int
	CellPercentage float64
	WallPercentage float64
	MudPercentage  float64
	MudRange       [2]int
	Seed           int64

	// Fixed is the adjacency used by KindFixed.
	Fixed map[int]map[int]int
}

// Generator builds a maze from parameters. Implementations must be
// deterministic for a given Params.
type Generator interface {
	Generate(p Params) (*Maze, error)
}

type GeneratorFunc func(p Params) (*Maze, error)

func (f GeneratorFunc) Generate(p Params) (*Maze, error) { return f(p) }

func GeneratorFor(kind Kind) (Generator, error) {
	switch kind {
	case KindRandom, "":
		return GeneratorFunc(Random), nil
	case KindFixed:
		return GeneratorFunc(func(p Params) (*Maze, error) { return FromAdjacency(p.Fixed) }), nil
	default:
		return nil, fmt.Errorf("unknown maze kind %q", kind)
	}
}

func Generate(kind Kind, p Params) (*Maze, error) {
	g, err := GeneratorFor(kind)
	if err != nil {
		return nil, err
	}
	return g.Generate(p)
}

type edge struct{ a, b int }

// Random grows a connected set of cells from the centre until CellPercentage
// of the grid is reachable, keeps a random spanning tree, turns
// WallPercentage of the remaining edges into walls and MudPercentage of the
// surviving paths into mud.
func Random(p Params) (*Maze, error) {
	if p.Width < 1 || p.Height < 1 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidMaze, p.Width, p.Height)
	}
	if p.CellPercentage <= 0 || p.CellPercentage > 100 {
		return nil, fmt.Errorf("%w: cell percentage %.1f", ErrInvalidMaze, p.CellPercentage)
	}
	if p.WallPercentage < 0 || p.WallPercentage > 100 || p.MudPercentage < 0 || p.MudPercentage > 100 {
		return nil, fmt.Errorf("%w: wall/mud percentages must be in [0,100]", ErrInvalidMaze)
	}
	if p.MudPercentage > 0 && (p.MudRange[0] < 2 || p.MudRange[1] < p.MudRange[0]) {
		return nil, fmt.Errorf("%w: mud range %v", ErrInvalidMaze, p.MudRange)
	}

	rng := rand.New(rand.NewSource(p.Seed))
	m := New(p.Width, p.Height)
	total := p.Width * p.Height

	center := m.RCToIndex(p.Height/2, p.Width/2)
	cells := []int{center}
	inSet := map[int]bool{center: true}
	for float64(len(cells))/float64(total)*100 < p.CellPercentage {
		row, col := m.IndexToRC(cells[rng.Intn(len(cells))])
		dirs := [4][2]int{{row - 1, col}, {row + 1, col}, {row, col - 1}, {row, col + 1}}
		d := dirs[rng.Intn(4)]
		if d[0] < 0 || d[0] >= p.Height || d[1] < 0 || d[1] >= p.Width {
			continue
		}
		v := m.RCToIndex(d[0], d[1])
		if !inSet[v] {
			inSet[v] = true
			cells = append(cells, v)
		}
	}
	sort.Ints(cells)

	var edges []edge
	for _, v := range cells {
		row, col := m.IndexToRC(v)
		if col+1 < p.Width && inSet[v+1] {
			edges = append(edges, edge{v, v + 1})
		}
		if row+1 < p.Height && inSet[v+p.Width] {
			edges = append(edges, edge{v, v + p.Width})
		}
	}

	// Random spanning tree (Kruskal on shuffled edges) keeps the maze connected.
	rng.Shuffle(len(edges), func(i, j int) { edges[i], edges[j] = edges[j], edges[i] })
	parent := make(map[int]int, len(cells))
	for _, v := range cells {
		parent[v] = v
	}
	var find func(int) int
	find = func(v int) int {
		for parent[v] != v {
			parent[v] = parent[parent[v]]
			v = parent[v]
		}
		return v
	}
	var tree, walls []edge
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		if ra == rb {
			walls = append(walls, e)
			continue
		}
		parent[ra] = rb
		tree = append(tree, e)
	}

	nWalls := int(math.Ceil(p.WallPercentage / 100 * float64(len(walls))))
	paths := append(tree, walls[nWalls:]...)
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].a != paths[j].a {
			return paths[i].a < paths[j].a
		}
		return paths[i].b < paths[j].b
	})
	rng.Shuffle(len(paths), func(i, j int) { paths[i], paths[j] = paths[j], paths[i] })

	nMud := int(math.Ceil(p.MudPercentage / 100 * float64(len(paths))))
	for _, v := range cells {
		if err := m.AddVertex(v); err != nil {
			return nil, err
		}
	}
	for i, e := range paths {
		w := 1
		if i < nMud {
			w = p.MudRange[0] + rng.Intn(p.MudRange[1]-p.MudRange[0]+1)
		}
		if err := m.AddEdge(e.a, e.b, w); err != nil {
			return nil, err
		}
	}
	return m, nil
}
