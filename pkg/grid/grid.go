// Package grid provides the ARC-AGI grid data model: rectangular integer
// matrices, training/test examples, and puzzles built from them.
package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// Grid is a non-empty rectangular matrix of integers in [0,9]. All rows
// have equal length.
type Grid struct {
	rows [][]int
}

// New validates and wraps rows as a Grid. Rows must be non-empty, equal
// length, and every cell must be in [0,9].
func New(rows [][]int) (Grid, error) {
	if len(rows) == 0 {
		return Grid{}, fmt.Errorf("grid: must have at least one row")
	}
	width := len(rows[0])
	if width == 0 {
		return Grid{}, fmt.Errorf("grid: rows must be non-empty")
	}
	for r, row := range rows {
		if len(row) != width {
			return Grid{}, fmt.Errorf("grid: row %d has length %d, want %d", r, len(row), width)
		}
		for c, v := range row {
			if v < 0 || v > 9 {
				return Grid{}, fmt.Errorf("grid: cell (%d,%d) = %d out of range [0,9]", r, c, v)
			}
		}
	}
	copied := make([][]int, len(rows))
	for i, row := range rows {
		copied[i] = append([]int(nil), row...)
	}
	return Grid{rows: copied}, nil
}

// MustNew is New but panics on error. Intended for tests and literals.
func MustNew(rows [][]int) Grid {
	g, err := New(rows)
	if err != nil {
		panic(err)
	}
	return g
}

// Height returns the number of rows.
func (g Grid) Height() int { return len(g.rows) }

// Width returns the number of columns, or 0 for a zero-value Grid.
func (g Grid) Width() int {
	if len(g.rows) == 0 {
		return 0
	}
	return len(g.rows[0])
}

// IsZero reports whether this is the zero-value Grid (no rows).
func (g Grid) IsZero() bool { return len(g.rows) == 0 }

// At returns the cell value at (row, col).
func (g Grid) At(row, col int) int { return g.rows[row][col] }

// SameShape reports whether g and other have identical height and width.
func (g Grid) SameShape(other Grid) bool {
	return g.Height() == other.Height() && g.Width() == other.Width()
}

// Equal reports whether g and other have the same shape and cell values.
func (g Grid) Equal(other Grid) bool {
	if !g.SameShape(other) {
		return false
	}
	for r := range g.rows {
		for c := range g.rows[r] {
			if g.rows[r][c] != other.rows[r][c] {
				return false
			}
		}
	}
	return true
}

// Rows returns a defensive copy of the underlying rows.
func (g Grid) Rows() [][]int {
	out := make([][]int, len(g.rows))
	for i, row := range g.rows {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// Render formats the grid as rows of space-separated decimal digits,
// newline-separated between rows. This is the exact wire format used in
// prompt rendering; the sandbox child exchanges grids as JSON instead.
func (g Grid) Render() string {
	var b strings.Builder
	for r, row := range g.rows {
		if r > 0 {
			b.WriteByte('\n')
		}
		for c, v := range row {
			if c > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.Itoa(v))
		}
	}
	return b.String()
}

// ParseRender parses the Render wire format back into a Grid.
func ParseRender(s string) (Grid, error) {
	s = strings.TrimRight(s, "\n")
	lines := strings.Split(s, "\n")
	rows := make([][]int, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		row := make([]int, len(fields))
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return Grid{}, fmt.Errorf("grid: invalid cell %q: %w", f, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return New(rows)
}

// Fingerprint returns a canonical string identifying this grid's contents,
// used by the voter to group attempts with identical predictions.
func (g Grid) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%dx%d:", g.Height(), g.Width())
	b.WriteString(g.Render())
	return b.String()
}

// Example is a (input, output) pair. Output is the zero Grid for test
// examples at solve time, where only the input is known.
type Example struct {
	Input  Grid
	Output Grid // IsZero() true when absent (test examples at solve time)
}

// Puzzle is an ordered sequence of training examples and an ordered
// sequence of test examples (inputs only).
type Puzzle struct {
	ID    string
	Train []Example
	Test  []Example
}
