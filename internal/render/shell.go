// Package render draws matches in a terminal.
package render

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
)

// Modes accepted by ParseMode.
const (
	ModeANSI  = "ansi"
	ModeASCII = "ascii"
	ModeNone  = "no_rendering"
)

// Shell prints every rendered state as text. With colors enabled the output
// uses 256-color ANSI escapes; otherwise it is plain text.
type Shell struct {
	w          io.Writer
	colors     bool
	simplified bool

	mu sync.Mutex
}

func NewShell(w io.Writer, colors, simplified bool) *Shell {
	return &Shell{w: w, colors: colors, simplified: simplified}
}

func (s *Shell) Render(players []string, g game.Grid, st *game.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, s.frame(players, g, st))
}

func (s *Shell) End() {}

// cell is a piece of output with its visible width.
type cell struct {
	text  string
	width int
}

func (s *Shell) paint(text, sgr string) cell {
	c := cell{text: text, width: utf8.RuneCountInString(text)}
	if s.colors {
		c.text = "\x1b[" + sgr + "m" + text + "\x1b[0m"
	}
	return c
}

func repeatCell(c cell, n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(c.text, n)
}

const (
	sgrWall   = "48;5;250"
	sgrGround = "48;5;237"
	sgrCheese = "48;5;237;38;5;226"
	sgrMud    = "48;5;237;38;5;94"
	sgrNumber = "48;5;237;38;5;201"
	sgrScore  = "38;5;226"
)

func (s *Shell) frame(players []string, g game.Grid, st *game.State) string {
	maxWeight := 1
	for v := 0; v < g.Width()*g.Height(); v++ {
		if !g.Exists(v) {
			continue
		}
		for _, u := range g.Neighbors(v) {
			if w, ok := g.Weight(v, u); ok && w > maxWeight {
				maxWeight = w
			}
		}
	}
	weightLen := len(strconv.Itoa(maxWeight))
	nameLen := 0
	for _, p := range players {
		nameLen = max(nameLen, utf8.RuneCountInString(p))
	}
	if maxWeight > 1 {
		nameLen += weightLen + 5
	}
	numberLen := len(strconv.Itoa(g.Width()*g.Height() - 1))
	cellWidth := max(nameLen, weightLen, numberLen+1) + 2

	wall := s.paint(" ", sgrWall)
	if !s.colors {
		wall = cell{"#", 1}
	}
	ground := s.paint(" ", sgrGround)
	cheese := s.paint("▲", sgrCheese)
	mudH := s.paint("ⴾ", sgrMud)
	mudV := s.paint("ⵘ", sgrMud)
	pathH := s.paint("⋅", sgrMud)
	pathV := s.paint("ⵗ", sgrMud)

	teams := st.TeamNames()
	teamColor := map[string]string{}
	for i, t := range teams {
		teamColor[t] = strconv.Itoa(9 + i)
	}
	label := map[string]cell{}
	for _, p := range players {
		t, _ := st.TeamOf(p)
		label[p] = s.paint(p+mudIndicator(g, st, p), "48;5;237;38;5;"+teamColor[t])
	}

	var b strings.Builder
	if !s.colors {
		b.WriteString("\n")
	}
	switch {
	case st.GameOver():
		b.WriteString("Game over")
	case st.Turn > 0:
		fmt.Fprintf(&b, "Starting turn %d", st.Turn)
	default:
		b.WriteString("Initial configuration")
	}
	teamScores := st.TeamScores()
	for _, t := range teams {
		b.WriteString("\n")
		whole, half := scoreGlyphs(teamScores[t])
		b.WriteString(repeatCell(s.paint("▲ ", sgrScore), whole))
		b.WriteString(repeatCell(s.paint("△ ", sgrScore), half))
		if len(teams) > 1 || t != "" {
			b.WriteString("[" + s.paint(t, "38;5;"+teamColor[t]).text + "] ")
		}
		parts := make([]string, 0, len(st.Teams[t]))
		for _, p := range st.Teams[t] {
			parts = append(parts, fmt.Sprintf("%s (%s)", p, formatScore(st.Score(p))))
		}
		b.WriteString(strings.Join(parts, " + "))
	}

	b.WriteString("\n" + repeatCell(wall, g.Width()*(cellWidth+1)+1))
	for row := 0; row < g.Height(); row++ {
		byCell := map[int][]string{}
		for _, p := range players {
			v := st.PlayerLocations[p]
			if r, _ := g.IndexToRC(v); r == row {
				byCell[v] = append(byCell[v], p)
			}
		}
		cellHeight := weightLen
		for _, ps := range byCell {
			cellHeight = max(cellHeight, len(ps))
		}
		cellHeight += 2

		b.WriteString("\n")
		for sub := 0; sub < cellHeight; sub++ {
			b.WriteString(wall.text)
			for col := 0; col < g.Width(); col++ {
				v := g.RCToIndex(row, col)
				bg := ground
				if !g.Exists(v) {
					bg = wall
				}
				var content cell
				switch {
				case sub == 0:
					if g.Exists(v) && !s.simplified {
						n := s.paint(strconv.Itoa(v), sgrNumber)
						content = cell{bg.text + n.text, bg.width + n.width}
					}
				case st.HasCheese(v):
					if sub == (cellHeight-1)/2 {
						pad := (cellWidth - cheese.width) / 2
						content = cell{repeatCell(bg, pad) + cheese.text, pad + cheese.width}
					}
				default:
					here := byCell[v]
					first := (cellHeight - len(here)) / 2
					if sub >= first && sub < first+len(here) {
						l := label[here[sub-first]]
						pad := (cellWidth - l.width) / 2
						content = cell{repeatCell(bg, pad) + l.text, pad + l.width}
					}
				}
				b.WriteString(content.text)
				b.WriteString(repeatCell(bg, cellWidth-content.width))

				w, ok := 0, false
				if col < g.Width()-1 && g.Exists(v) {
					w, ok = g.Weight(v, g.RCToIndex(row, col+1))
				}
				switch {
				case !ok:
					b.WriteString(wall.text)
				case w == 1:
					b.WriteString(pathV.text)
				default:
					digits := strconv.Itoa(w)
					top := int(math.Ceil(float64(cellHeight-len(digits)) / 2))
					if !s.simplified && sub >= top && sub < top+len(digits) {
						b.WriteString(s.paint(digits[sub-top:sub-top+1], sgrMud).text)
					} else {
						b.WriteString(mudV.text)
					}
				}
			}
			b.WriteString("\n")
		}

		b.WriteString(wall.text)
		for col := 0; col < g.Width(); col++ {
			v := g.RCToIndex(row, col)
			w, ok := 0, false
			if row < g.Height()-1 && g.Exists(v) {
				w, ok = g.Weight(v, g.RCToIndex(row+1, col))
			}
			switch {
			case !ok:
				b.WriteString(repeatCell(wall, cellWidth+1))
			case w == 1:
				b.WriteString(repeatCell(pathH, cellWidth) + wall.text)
			default:
				used := 0
				if !s.simplified {
					digits := strconv.Itoa(w)
					pad := (cellWidth - len(digits)) / 2
					b.WriteString(repeatCell(mudH, pad) + s.paint(digits, sgrMud).text)
					used = pad + len(digits)
				}
				b.WriteString(repeatCell(mudH, cellWidth-used) + wall.text)
			}
		}
	}
	b.WriteString("\n")
	return b.String()
}

// mudIndicator shows the direction and remaining turns of a player in mud.
func mudIndicator(g game.Grid, st *game.State, p string) string {
	m, ok := st.Muds[p]
	if !ok || m.Count <= 0 || m.Target == game.NoTarget {
		return ""
	}
	r0, c0 := g.IndexToRC(st.PlayerLocations[p])
	r1, c1 := g.IndexToRC(m.Target)
	arrow := "⬅"
	switch {
	case r1-r0 == 1:
		arrow = "⬇"
	case r1-r0 == -1:
		arrow = "⬆"
	case c1-c0 == 1:
		arrow = "➡"
	}
	return fmt.Sprintf(" (%s %d)", arrow, m.Count)
}

// scoreGlyphs splits a team score into whole cheese and one glyph for any
// fractional part.
func scoreGlyphs(r *big.Rat) (whole, half int) {
	if r == nil || r.Sign() <= 0 {
		return 0, 0
	}
	q := new(big.Int).Quo(r.Num(), r.Denom())
	whole = int(q.Int64())
	if !r.IsInt() {
		half = 1
	}
	return whole, half
}

func formatScore(r *big.Rat) string {
	if r == nil || r.Sign() <= 0 {
		return "0"
	}
	s := r.FloatString(3)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Multi fans a rendered state out to several presenters in order.
type Multi []match.Presenter

func (m Multi) Render(players []string, g game.Grid, s *game.State) {
	for _, p := range m {
		p.Render(players, g, s.Clone())
	}
}

func (m Multi) End() {
	for _, p := range m {
		p.End()
	}
}

// ParseMode validates a render mode name.
func ParseMode(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeANSI:
		return ModeANSI, nil
	case ModeASCII:
		return ModeASCII, nil
	}
	return "", fmt.Errorf("unknown render mode %q", s)
}
