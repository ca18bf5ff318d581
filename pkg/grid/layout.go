// Package grid describes the periodic one-dimensional mesh shared by fields,
// particles and solver vectors, and runs work over it box by box.
package grid

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

var ErrLayout = errors.New("grid: invalid layout")

// Box is a contiguous run of valid cells [Lo, Hi) owned by one worker.
type Box struct {
	Index int
	Lo    int
	Hi    int
}

func (b Box) Len() int { return b.Hi - b.Lo }

// Layout is immutable once created. All data built on the same layout shares
// its box decomposition, so per-box partial results line up.
type Layout struct {
	NCells  int
	Dx      float64
	Guard   int
	BoxSize int

	boxes   []Box
	workers int
}

func NewLayout(ncells int, dx float64, guard, boxSize int) (*Layout, error) {
	if ncells < 1 {
		return nil, fmt.Errorf("%w: ncells=%d", ErrLayout, ncells)
	}
	if !(dx > 0) || math.IsInf(dx, 0) {
		return nil, fmt.Errorf("%w: dx=%g", ErrLayout, dx)
	}
	if guard < 1 {
		return nil, fmt.Errorf("%w: guard=%d, stencils need at least one guard cell", ErrLayout, guard)
	}
	if guard > ncells {
		return nil, fmt.Errorf("%w: guard=%d exceeds ncells=%d", ErrLayout, guard, ncells)
	}
	if boxSize <= 0 || boxSize > ncells {
		boxSize = ncells
	}

	l := &Layout{
		NCells:  ncells,
		Dx:      dx,
		Guard:   guard,
		BoxSize: boxSize,
		workers: runtime.GOMAXPROCS(0),
	}
	for lo, idx := 0, 0; lo < ncells; lo, idx = lo+boxSize, idx+1 {
		hi := min(lo+boxSize, ncells)
		l.boxes = append(l.boxes, Box{Index: idx, Lo: lo, Hi: hi})
	}
	return l, nil
}

func (l *Layout) Boxes() []Box { return l.boxes }

func (l *Layout) NumBoxes() int { return len(l.boxes) }

// Length is the periodic domain length.
func (l *Layout) Length() float64 { return float64(l.NCells) * l.Dx }

// Size is the number of stored points per component, guards included.
func (l *Layout) Size() int { return l.NCells + 2*l.Guard }

// Equal reports whether two layouts describe the same mesh and decomposition.
func (l *Layout) Equal(o *Layout) bool {
	if l == o {
		return true
	}
	if l == nil || o == nil {
		return false
	}
	return l.NCells == o.NCells && l.Dx == o.Dx && l.Guard == o.Guard && l.BoxSize == o.BoxSize
}

// Wrap maps a position into [0, Length).
func (l *Layout) Wrap(x float64) float64 {
	length := l.Length()
	x = math.Mod(x, length)
	if x < 0 {
		x += length
	}
	if x >= length {
		x = 0
	}
	return x
}

// BoxOf returns the box owning the cell that contains x (x already wrapped).
func (l *Layout) BoxOf(x float64) int {
	cell := int(math.Floor(x / l.Dx))
	cell = min(max(cell, 0), l.NCells-1)
	return cell / l.BoxSize
}

// Span converts a box into a stored-index range, widened by ngrow guard cells
// at the two ends of the domain.
func (l *Layout) Span(b Box, ngrow int) (lo, hi int) {
	ngrow = min(max(ngrow, 0), l.Guard)
	lo, hi = b.Lo+l.Guard, b.Hi+l.Guard
	if b.Index == 0 {
		lo -= ngrow
	}
	if b.Index == len(l.boxes)-1 {
		hi += ngrow
	}
	return lo, hi
}

// ForEachBox runs fn on every box and waits for all of them. A single-box
// layout runs inline.
func (l *Layout) ForEachBox(fn func(b Box) error) error {
	if len(l.boxes) == 1 {
		return fn(l.boxes[0])
	}

	var g errgroup.Group
	g.SetLimit(l.workers)
	for _, b := range l.boxes {
		g.Go(func() error { return fn(b) })
	}
	return g.Wait()
}

// Reduce sums per-box partial results in box order, which keeps the total
// independent of how the boxes were scheduled.
func (l *Layout) Reduce(fn func(b Box) float64) float64 {
	partial := make([]float64, len(l.boxes))
	_ = l.ForEachBox(func(b Box) error {
		partial[b.Index] = fn(b)
		return nil
	})

	sum := 0.0
	for _, p := range partial {
		sum += p
	}
	return sum
}

// ForEachChunk splits [0, n) into one contiguous chunk per box and runs fn on
// each concurrently. Chunk boundaries depend only on n and the box count.
func (l *Layout) ForEachChunk(n int, fn func(chunk, lo, hi int) error) error {
	chunks := len(l.boxes)
	if n == 0 {
		return nil
	}
	if chunks == 1 {
		return fn(0, 0, n)
	}

	var g errgroup.Group
	g.SetLimit(l.workers)
	size := (n + chunks - 1) / chunks
	for c := range chunks {
		lo := min(c*size, n)
		hi := min(lo+size, n)
		g.Go(func() error { return fn(c, lo, hi) })
	}
	return g.Wait()
}
