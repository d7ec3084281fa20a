package scape

import (
	"errors"
	"fmt"
	"strings"

	"picoevo/internal/genotype"
)

var ErrIllegalMove = errors.New("illegal move")

const (
	cellWall      = '+'
	cellUnvisited = ' '
	cellVisited   = 'o'
	cellWalker    = 'P'
)

// MinRoomSize keeps the interior at least 2x2 so that every reachable
// surrounding is one of genotype.Observations.
const MinRoomSize = 4

// World is an open room bordered by walls with a single walker inside.
type World struct {
	height int
	width  int
	room   [][]byte

	row   int
	col   int
	state int
	steps int

	source RuleSource
}

func NewWorld(height, width, row, col int, source RuleSource) (*World, error) {
	if height < MinRoomSize || width < MinRoomSize {
		return nil, fmt.Errorf("room must be at least %dx%d, got %dx%d", MinRoomSize, MinRoomSize, height, width)
	}
	if row < 1 || row > height-2 || col < 1 || col > width-2 {
		return nil, fmt.Errorf("start (%d,%d) outside room interior", row, col)
	}
	if source == nil {
		return nil, fmt.Errorf("rule source is required")
	}

	room := make([][]byte, height)
	for r := range room {
		room[r] = make([]byte, width)
		for c := range room[r] {
			if r == 0 || r == height-1 || c == 0 || c == width-1 {
				room[r][c] = cellWall
			} else {
				room[r][c] = cellUnvisited
			}
		}
	}
	room[row][col] = cellWalker

	return &World{
		height: height,
		width:  width,
		room:   room,
		row:    row,
		col:    col,
		source: source,
	}, nil
}

func (w *World) Position() (int, int) {
	return w.row, w.col
}

func (w *World) State() int {
	return w.state
}

// Steps reports how many steps have been executed.
func (w *World) Steps() int {
	return w.steps
}

// Observe reports which of the four neighbors are walls.
func (w *World) Observe() genotype.Observation {
	return genotype.NewObservation(
		w.room[w.row-1][w.col] == cellWall,
		w.room[w.row][w.col+1] == cellWall,
		w.room[w.row][w.col-1] == cellWall,
		w.room[w.row+1][w.col] == cellWall,
	)
}

// Step applies the rule for the current state and surroundings.
func (w *World) Step() error {
	obs := w.Observe()
	rule, err := w.source.Move(w.state, obs)
	if err != nil {
		return fmt.Errorf("step %d at (%d,%d): %w", w.steps, w.row, w.col, err)
	}
	if !rule.Direction.Valid() || obs.Blocked(rule.Direction) {
		return fmt.Errorf("%w: state=%d observation=%s direction=%s", ErrIllegalMove, w.state, obs, rule.Direction)
	}

	dr, dc := rule.Direction.Delta()
	w.room[w.row][w.col] = cellVisited
	w.row += dr
	w.col += dc
	w.room[w.row][w.col] = cellWalker
	w.state = rule.Next
	w.steps++
	return nil
}

// Run executes exactly steps steps.
func (w *World) Run(steps int) error {
	for i := 0; i < steps; i++ {
		if err := w.Step(); err != nil {
			return err
		}
	}
	return nil
}

// FractionVisited is the share of interior cells visited or occupied.
func (w *World) FractionVisited() float64 {
	visited := 0
	for r := 1; r < w.height-1; r++ {
		for c := 1; c < w.width-1; c++ {
			if cell := w.room[r][c]; cell == cellVisited || cell == cellWalker {
				visited++
			}
		}
	}
	return float64(visited) / float64((w.height-2)*(w.width-2))
}

func (w *World) String() string {
	var b strings.Builder
	b.Grow(w.height * (w.width + 1))
	for _, row := range w.room {
		b.Write(row)
		b.WriteByte('\n')
	}
	return b.String()
}
