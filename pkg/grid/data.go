package grid

import "fmt"

type Centering int

const (
	Nodal     Centering = iota // x_i = i*dx
	Staggered                  // x_{i+1/2}
)

func (c Centering) String() string {
	switch c {
	case Nodal:
		return "nodal"
	case Staggered:
		return "staggered"
	default:
		return fmt.Sprintf("centering(%d)", int(c))
	}
}

// Offset is the position of point 0 in units of dx.
func (c Centering) Offset() float64 {
	if c == Staggered {
		return 0.5
	}
	return 0
}

// Data is one field component on a layout. V holds guards on both sides;
// valid point i lives at V[i+Guard].
type Data struct {
	Layout    *Layout
	Centering Centering
	V         []float64
}

func NewData(l *Layout, c Centering) *Data {
	return &Data{Layout: l, Centering: c, V: make([]float64, l.Size())}
}

func (d *Data) Clone() *Data {
	out := &Data{Layout: d.Layout, Centering: d.Centering, V: make([]float64, len(d.V))}
	copy(out.V, d.V)
	return out
}

func (d *Data) SameShape(o *Data) bool {
	return o != nil && d.Centering == o.Centering && d.Layout.Equal(o.Layout)
}

// At reads valid index i; i may reach into the guard cells.
func (d *Data) At(i int) float64 { return d.V[i+d.Layout.Guard] }

func (d *Data) Set(i int, v float64) { d.V[i+d.Layout.Guard] = v }

func (d *Data) Add(i int, v float64) { d.V[i+d.Layout.Guard] += v }

// Position of valid point i.
func (d *Data) Position(i int) float64 {
	return (float64(i) + d.Centering.Offset()) * d.Layout.Dx
}

func (d *Data) CopyFrom(src *Data) {
	if !d.SameShape(src) {
		panic(fmt.Sprintf("grid: copy between %s and %s data", d.Centering, src.Centering))
	}
	copy(d.V, src.V)
}

func (d *Data) Zero() {
	clear(d.V)
}

// FillBoundary copies the periodic images of the valid points into the guards.
func (d *Data) FillBoundary() {
	g, n := d.Layout.Guard, d.Layout.NCells
	for k := 1; k <= g; k++ {
		d.V[g-k] = d.V[g+n-k]
		d.V[g+n-1+k] = d.V[g+k-1]
	}
}

// SumBoundary folds guard-cell contributions back onto their periodic owners
// and clears the guards. Used after deposition.
func (d *Data) SumBoundary() {
	g, n := d.Layout.Guard, d.Layout.NCells
	for k := 1; k <= g; k++ {
		d.V[g+n-k] += d.V[g-k]
		d.V[g+k-1] += d.V[g+n-1+k]
		d.V[g-k] = 0
		d.V[g+n-1+k] = 0
	}
}

// Valid returns the valid points as a slice sharing storage with d.
func (d *Data) Valid() []float64 {
	g := d.Layout.Guard
	return d.V[g : g+d.Layout.NCells]
}
