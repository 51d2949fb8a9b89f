package render

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/maze"
)

func line(t *testing.T, weights ...int) *maze.Maze {
	t.Helper()
	m := maze.New(len(weights)+1, 1)
	for v, w := range weights {
		if err := m.AddEdge(v, v+1, w); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	return m
}

func TestShellPlainFrame(t *testing.T) {
	g := line(t, 1)
	st := game.NewState()
	st.AddPlayer("rat", "", 0)
	st.SetCheese([]int{1})

	var buf bytes.Buffer
	NewShell(&buf, false, false).Render([]string{"rat"}, g, st)
	out := buf.String()
	for _, want := range []string{"Initial configuration", "rat (0)", "▲", "#", "ⵗ"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("plain output has escapes")
	}
}

func TestShellMudAndScores(t *testing.T) {
	g := line(t, 3, 1)
	st := game.NewState()
	st.Turn = 2
	st.AddPlayer("rat", "mice", 0)
	st.AddPlayer("python", "snakes", 1)
	st.Muds["rat"] = game.Mud{Target: 1, Count: 2}
	st.ScorePerPlayer["python"] = big.NewRat(1, 2)
	st.SetCheese([]int{2})

	var buf bytes.Buffer
	NewShell(&buf, true, false).Render([]string{"rat", "python"}, g, st)
	out := buf.String()
	for _, want := range []string{"Starting turn 2", "rat (➡ 2)", "python (0.5)", "△", "[", "\x1b[0m", "3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	NewShell(&buf, false, true).Render([]string{"rat", "python"}, g, st)
	if strings.Contains(buf.String(), "ⵘ3") {
		t.Fatalf("simplified output shows mud weights")
	}
}

func TestFormatScore(t *testing.T) {
	cases := map[string]*big.Rat{
		"0":     new(big.Rat),
		"1":     big.NewRat(1, 1),
		"0.333": big.NewRat(1, 3),
		"2.5":   big.NewRat(5, 2),
	}
	for want, r := range cases {
		if got := formatScore(r); got != want {
			t.Fatalf("formatScore(%s)=%s want %s", r, got, want)
		}
	}
}

type counter struct{ renders, ends int }

func (c *counter) Render([]string, game.Grid, *game.State) { c.renders++ }
func (c *counter) End()                                    { c.ends++ }

func TestMultiFansOut(t *testing.T) {
	a, b := &counter{}, &counter{}
	m := Multi{a, b}
	m.Render(nil, line(t, 1), game.NewState())
	m.End()
	if a.renders != 1 || b.renders != 1 || a.ends != 1 || b.ends != 1 {
		t.Fatalf("a=%+v b=%+v", a, b)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" ANSI "); err != nil || m != ModeANSI {
		t.Fatalf("ParseMode ansi: %q %v", m, err)
	}
	if m, _ := ParseMode(""); m != ModeNone {
		t.Fatalf("empty mode=%q", m)
	}
	if _, err := ParseMode("gui"); err == nil {
		t.Fatalf("gui should be rejected")
	}
}
