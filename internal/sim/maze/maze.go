package maze

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidMaze = errors.New("invalid maze")

// Maze is a width x height grid graph. Cells are indexed row-major; an edge
// weight of 1 is a free move, a weight w > 1 is mud taking w turns to cross,
// and a missing edge is a wall.
type Maze struct {
	width  int
	height int
	adj    map[int]map[int]int
}

func New(width, height int) *Maze {
	return &Maze{
		width:  width,
		height: height,
		adj:    map[int]map[int]int{},
	}
}

func (m *Maze) Width() int  { return m.width }
func (m *Maze) Height() int { return m.height }

func (m *Maze) RCToIndex(row, col int) int { return row*m.width + col }

func (m *Maze) IndexToRC(v int) (row, col int) {
	if m.width <= 0 {
		return 0, 0
	}
	return v / m.width, v % m.width
}

func (m *Maze) inBounds(v int) bool {
	return v >= 0 && v < m.width*m.height
}

func (m *Maze) AddVertex(v int) error {
	if !m.inBounds(v) {
		return fmt.Errorf("%w: vertex %d out of %dx%d grid", ErrInvalidMaze, v, m.width, m.height)
	}
	if _, ok := m.adj[v]; !ok {
		m.adj[v] = map[int]int{}
	}
	return nil
}

// AddEdge adds a symmetric edge between two orthogonally adjacent cells.
func (m *Maze) AddEdge(a, b, weight int) error {
	if weight < 1 {
		return fmt.Errorf("%w: edge %d-%d has weight %d", ErrInvalidMaze, a, b, weight)
	}
	if !m.adjacent(a, b) {
		return fmt.Errorf("%w: cells %d and %d are not adjacent", ErrInvalidMaze, a, b)
	}
	if err := m.AddVertex(a); err != nil {
		return err
	}
	if err := m.AddVertex(b); err != nil {
		return err
	}
	m.adj[a][b] = weight
	m.adj[b][a] = weight
	return nil
}

func (m *Maze) RemoveEdge(a, b int) {
	if n, ok := m.adj[a]; ok {
		delete(n, b)
	}
	if n, ok := m.adj[b]; ok {
		delete(n, a)
	}
}

func (m *Maze) adjacent(a, b int) bool {
	if !m.inBounds(a) || !m.inBounds(b) {
		return false
	}
	ra, ca := m.IndexToRC(a)
	rb, cb := m.IndexToRC(b)
	dr, dc := ra-rb, ca-cb
	return (dr == 0 && (dc == 1 || dc == -1)) || (dc == 0 && (dr == 1 || dr == -1))
}

func (m *Maze) Exists(v int) bool {
	_, ok := m.adj[v]
	return ok
}

// Vertices returns all cells of the maze in ascending order.
func (m *Maze) Vertices() []int {
	out := make([]int, 0, len(m.adj))
	for v := range m.adj {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func (m *Maze) Neighbors(v int) []int {
	n := m.adj[v]
	out := make([]int, 0, len(n))
	for u := range n {
		out = append(out, u)
	}
	sort.Ints(out)
	return out
}

// Weight returns the weight of edge a-b; ok is false when there is a wall.
func (m *Maze) Weight(a, b int) (int, bool) {
	n, ok := m.adj[a]
	if !ok {
		return 0, false
	}
	w, ok := n[b]
	return w, ok
}

// Adjacency returns a copy of the weighted adjacency map.
func (m *Maze) Adjacency() map[int]map[int]int {
	out := make(map[int]map[int]int, len(m.adj))
	for v, n := range m.adj {
		cp := make(map[int]int, len(n))
		for u, w := range n {
			cp[u] = w
		}
		out[v] = cp
	}
	return out
}

func (m *Maze) Clone() *Maze {
	return &Maze{width: m.width, height: m.height, adj: m.Adjacency()}
}

// FromAdjacency builds a maze from a weighted adjacency map. The width is the
// largest index gap over all edges, so a single column of cells comes out
// one cell wide; a maze without edges is a single row.
func FromAdjacency(adj map[int]map[int]int) (*Maze, error) {
	if len(adj) == 0 {
		return nil, fmt.Errorf("%w: empty adjacency", ErrInvalidMaze)
	}
	vertices := make([]int, 0, len(adj))
	maxV := 0
	for v, n := range adj {
		vertices = append(vertices, v)
		if v > maxV {
			maxV = v
		}
		for u := range n {
			if u > maxV {
				maxV = u
			}
		}
	}
	sort.Ints(vertices)

	// The widest edge spans one row; without edges every vertex sits on
	// one row.
	width := 0
	for v, n := range adj {
		for u := range n {
			if d := abs(u - v); d > width {
				width = d
			}
		}
	}
	if width == 0 {
		width = maxV + 1
	}
	height := (maxV + width) / width

	m := New(width, height)
	for _, v := range vertices {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative vertex %d", ErrInvalidMaze, v)
		}
		if err := m.AddVertex(v); err != nil {
			return nil, err
		}
		for u, w := range adj[v] {
			if back, ok := adj[u][v]; !ok || back != w {
				return nil, fmt.Errorf("%w: edge %d-%d is not symmetric", ErrInvalidMaze, v, u)
			}
			if err := m.AddEdge(v, u, w); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
