// Package surface implements the square RT × m/z grids that peaks are
// accumulated into, and the cached rectangular slices taken from them.
package surface

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Resolution is the size of the larger axis range divided by the bin count,
// approximately
const Resolution = 0.1

var (
	// ErrEmptySlice means a slice request selects no cells
	ErrEmptySlice = errors.New("surface: empty slice")
	// ErrSliceRange means slice indices fall outside the grid
	ErrSliceRange = errors.New("surface: slice indices out of range")
)

// Bounds are the axis limits of a grid. Retention times are in seconds.
type Bounds struct {
	RTMin float64 `json:"rtMin"`
	RTMax float64 `json:"rtMax"`
	MzMin float64 `json:"mzMin"`
	MzMax float64 `json:"mzMax"`
}

// BinCount returns the number of bins of both axes. The RT and m/z axes
// share the bin count, so the grid is square even when the ranges differ.
func BinCount(b Bounds) int {
	rtRange := b.RTMax - b.RTMin
	mzRange := b.MzMax - b.MzMin
	return int(math.Floor(math.Max(rtRange, mzRange)/Resolution)) + 1
}

// BinOf returns the bin index of value on an axis, or -1 if the value is
// outside [min, max] or falls beyond the last of the n bins
func BinOf(value, min, max, width float64, n int) int {
	v := value - min
	if v < 0 || v > max-min {
		return -1
	}
	i := int(math.Floor(v / width))
	if i >= n {
		return -1
	}
	return i
}

// Grid is a dense grid of accumulated values; row is the RT bin and column
// the m/z bin. Rows are allocated when first written.
//
// A Grid has a single writer. After the writer is done, Slice may be called
// from multiple goroutines.
type Grid struct {
	rows, cols int
	cells      [][]float64
	bounds     Bounds
	rtWidth    float64
	mzWidth    float64
	ms2        bool
	key        string

	mu    sync.Mutex
	cache map[string]*Grid
}

// New creates an empty square grid for the bounds
func New(b Bounds, ms2 bool) *Grid {
	n := BinCount(b)
	return newGrid(n, n, b, (b.RTMax-b.RTMin)/float64(n), (b.MzMax-b.MzMin)/float64(n), ms2)
}

func newGrid(rows, cols int, b Bounds, rtWidth, mzWidth float64, ms2 bool) *Grid {
	return &Grid{
		rows:    rows,
		cols:    cols,
		cells:   make([][]float64, rows),
		bounds:  b,
		rtWidth: rtWidth,
		mzWidth: mzWidth,
		ms2:     ms2,
		key:     Key(rows, cols, ms2, b),
		cache:   make(map[string]*Grid),
	}
}

// Key returns the canonical cache key of a grid
func Key(rows, cols int, ms2 bool, b Bounds) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(rows))
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(cols))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatBool(ms2))
	for _, v := range []float64{b.MzMin, b.MzMax, b.RTMin, b.RTMax} {
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
	}
	return sb.String()
}

func (g *Grid) Rows() int           { return g.rows }
func (g *Grid) Cols() int           { return g.cols }
func (g *Grid) Bounds() Bounds      { return g.bounds }
func (g *Grid) RTBinWidth() float64 { return g.rtWidth }
func (g *Grid) MzBinWidth() float64 { return g.mzWidth }
func (g *Grid) MS2() bool           { return g.ms2 }
func (g *Grid) Key() string         { return g.key }

// RTBin returns the row of a retention time, -1 if out of range
func (g *Grid) RTBin(rt float64) int {
	return BinOf(rt, g.bounds.RTMin, g.bounds.RTMax, g.rtWidth, g.rows)
}

// MzBin returns the column of an m/z value, -1 if out of range
func (g *Grid) MzBin(mz float64) int {
	return BinOf(mz, g.bounds.MzMin, g.bounds.MzMax, g.mzWidth, g.cols)
}

// RowRT returns the lower retention time edge of a row
func (g *Grid) RowRT(row int) float64 {
	return g.bounds.RTMin + float64(row)*g.rtWidth
}

// ColMz returns the lower m/z edge of a column
func (g *Grid) ColMz(col int) float64 {
	return g.bounds.MzMin + float64(col)*g.mzWidth
}

func (g *Grid) check(row, col int) {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		panic(fmt.Sprintf("surface: cell (%d, %d) outside %dx%d grid", row, col, g.rows, g.cols))
	}
}

func (g *Grid) row(row int) []float64 {
	r := g.cells[row]
	if r == nil {
		r = make([]float64, g.cols)
		g.cells[row] = r
	}
	return r
}

// At returns the value of a cell
func (g *Grid) At(row, col int) float64 {
	g.check(row, col)
	if g.cells[row] == nil {
		return 0
	}
	return g.cells[row][col]
}

// Set overwrites the value of a cell
func (g *Grid) Set(row, col int, v float64) {
	g.check(row, col)
	g.row(row)[col] = v
}

// Accumulate adds delta to a cell
func (g *Grid) Accumulate(row, col int, delta float64) {
	g.check(row, col)
	g.row(row)[col] += delta
}

// NonZero calls fn for every cell that doesn't hold zero, in row-major order
func (g *Grid) NonZero(fn func(row, col int, v float64)) {
	for i, r := range g.cells {
		for j, v := range r {
			if v != 0 {
				fn(i, j, v)
			}
		}
	}
}

// Sum returns the total of all cells
func (g *Grid) Sum() float64 {
	total := 0.0
	for _, r := range g.cells {
		if r != nil {
			total += floats.Sum(r)
		}
	}
	return total
}

// Slice returns the sub-grid of rows [fromRow, toRow) and columns
// [fromCol, toCol). The bounds of the slice are those of the selected bins,
// the bin widths are unchanged. Slices are cached: the same selection
// returns the same *Grid.
func (g *Grid) Slice(fromRow, fromCol, toRow, toCol int) (*Grid, error) {
	if fromRow < 0 || fromCol < 0 || toRow > g.rows || toCol > g.cols {
		return nil, fmt.Errorf("%w: rows [%d, %d), cols [%d, %d) of %dx%d grid",
			ErrSliceRange, fromRow, toRow, fromCol, toCol, g.rows, g.cols)
	}
	if fromRow >= toRow || fromCol >= toCol {
		return nil, ErrEmptySlice
	}
	b := Bounds{
		RTMin: g.RowRT(fromRow),
		RTMax: g.RowRT(toRow),
		MzMin: g.ColMz(fromCol),
		MzMax: g.ColMz(toCol),
	}
	rows, cols := toRow-fromRow, toCol-fromCol
	key := Key(rows, cols, g.ms2, b)

	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.cache[key]; ok {
		return s, nil
	}
	s := newGrid(rows, cols, b, g.rtWidth, g.mzWidth, g.ms2)
	for i := fromRow; i < toRow; i++ {
		if g.cells[i] == nil {
			continue
		}
		src := g.cells[i][fromCol:toCol]
		if floats.Max(src) == 0 && floats.Min(src) == 0 {
			continue
		}
		s.cells[i-fromRow] = append([]float64(nil), src...)
	}
	g.cache[key] = s
	return s, nil
}

// SliceBounds returns the slice covering the bins that overlap a physical
// window. The window is clipped to the grid.
func (g *Grid) SliceBounds(b Bounds) (*Grid, error) {
	if !(b.RTMin < b.RTMax) || !(b.MzMin < b.MzMax) {
		return nil, ErrEmptySlice
	}
	fromRow := clamp(int(math.Floor((b.RTMin-g.bounds.RTMin)/g.rtWidth)), g.rows)
	toRow := clamp(int(math.Ceil((b.RTMax-g.bounds.RTMin)/g.rtWidth)), g.rows)
	fromCol := clamp(int(math.Floor((b.MzMin-g.bounds.MzMin)/g.mzWidth)), g.cols)
	toCol := clamp(int(math.Ceil((b.MzMax-g.bounds.MzMin)/g.mzWidth)), g.cols)
	return g.Slice(fromRow, fromCol, toRow, toCol)
}

// CachedSlices returns the number of slices in the cache
func (g *Grid) CachedSlices() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
