// Package statevec is the solver vector for the field unknowns: a set of named
// grid components sharing one layout. Every operation is a per-point loop run
// box by box; reductions are summed in box order so they are reproducible.
package statevec

import (
	"fmt"
	"math"
	"slices"

	"github.com/edp1096/toy-pic/pkg/grid"
	"github.com/edp1096/toy-pic/pkg/nonlinear"
)

type Spec struct {
	ID        string
	Centering grid.Centering
}

type Vector struct {
	layout  *grid.Layout
	specs   []Spec
	comps   map[string]*grid.Data
	opGuard int
}

// New allocates a zero vector. opGuard is the number of guard cells, on each
// end of the domain, that algebra operations also cover.
func New(layout *grid.Layout, opGuard int, specs ...Spec) (*Vector, error) {
	if layout == nil {
		return nil, nonlinear.NewConfigError("layout", "nil grid layout")
	}
	if len(specs) == 0 {
		return nil, nonlinear.NewConfigError("components", "state vector needs at least one component")
	}
	if opGuard < 0 || opGuard > layout.Guard {
		return nil, nonlinear.NewConfigError("op_guard", "%d outside [0, %d]", opGuard, layout.Guard)
	}

	v := &Vector{
		layout:  layout,
		specs:   slices.Clone(specs),
		comps:   make(map[string]*grid.Data, len(specs)),
		opGuard: opGuard,
	}
	for _, s := range specs {
		if _, dup := v.comps[s.ID]; dup {
			return nil, nonlinear.NewConfigError("components", "duplicate component %q", s.ID)
		}
		v.comps[s.ID] = grid.NewData(layout, s.Centering)
	}
	return v, nil
}

func (v *Vector) Layout() *grid.Layout { return v.layout }

func (v *Vector) Specs() []Spec { return slices.Clone(v.specs) }

// Component returns the storage of one component; nil if unknown.
func (v *Vector) Component(id string) *grid.Data { return v.comps[id] }

func (v *Vector) Compatible(o *Vector) bool {
	if o == nil || v.opGuard != o.opGuard || !v.layout.Equal(o.layout) {
		return false
	}
	return slices.Equal(v.specs, o.specs)
}

func (v *Vector) mustMatch(others ...*Vector) {
	for _, o := range others {
		if !v.Compatible(o) {
			panic(nonlinear.NewConfigError("vector", "operation on state vectors of different shapes"))
		}
	}
}

func (v *Vector) Clone() *Vector {
	out := &Vector{
		layout:  v.layout,
		specs:   slices.Clone(v.specs),
		comps:   make(map[string]*grid.Data, len(v.comps)),
		opGuard: v.opGuard,
	}
	for id, d := range v.comps {
		out.comps[id] = d.Clone()
	}
	return out
}

// each runs fn over the operation range of every box, component by component.
func (v *Vector) each(fn func(id string, lo, hi int)) {
	_ = v.layout.ForEachBox(func(b grid.Box) error {
		lo, hi := v.layout.Span(b, v.opGuard)
		for _, s := range v.specs {
			fn(s.ID, lo, hi)
		}
		return nil
	})
}

func (v *Vector) Copy(src *Vector) {
	v.mustMatch(src)
	v.each(func(id string, lo, hi int) {
		copy(v.comps[id].V[lo:hi], src.comps[id].V[lo:hi])
	})
}

func (v *Vector) Add(x *Vector) { v.Increment(1, x) }

func (v *Vector) Sub(x *Vector) { v.Increment(-1, x) }

// Increment computes v += alpha*x.
func (v *Vector) Increment(alpha float64, x *Vector) {
	v.mustMatch(x)
	v.each(func(id string, lo, hi int) {
		dst, src := v.comps[id].V, x.comps[id].V
		for i := lo; i < hi; i++ {
			dst[i] += alpha * src[i]
		}
	})
}

// LinComb computes v = a*x + b*y. v may alias x or y.
func (v *Vector) LinComb(a float64, x *Vector, b float64, y *Vector) {
	v.mustMatch(x, y)
	v.each(func(id string, lo, hi int) {
		dst, xs, ys := v.comps[id].V, x.comps[id].V, y.comps[id].V
		for i := lo; i < hi; i++ {
			dst[i] = a*xs[i] + b*ys[i]
		}
	})
}

func (v *Vector) Scale(alpha float64) {
	v.each(func(id string, lo, hi int) {
		dst := v.comps[id].V
		for i := lo; i < hi; i++ {
			dst[i] *= alpha
		}
	})
}

func (v *Vector) Zero() {
	v.each(func(id string, lo, hi int) {
		clear(v.comps[id].V[lo:hi])
	})
}

// Dot sums over valid points only; guard points are periodic images.
func (v *Vector) Dot(o *Vector) float64 {
	v.mustMatch(o)
	return v.layout.Reduce(func(b grid.Box) float64 {
		lo, hi := v.layout.Span(b, 0)
		sum := 0.0
		for _, s := range v.specs {
			xs, ys := v.comps[s.ID].V, o.comps[s.ID].V
			for i := lo; i < hi; i++ {
				sum += xs[i] * ys[i]
			}
		}
		return sum
	})
}

func (v *Vector) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// MaxAbs is the largest magnitude over valid points.
func (v *Vector) MaxAbs() float64 {
	m := 0.0
	for _, s := range v.specs {
		for _, x := range v.comps[s.ID].Valid() {
			m = math.Max(m, math.Abs(x))
		}
	}
	return m
}

func (v *Vector) FillBoundary() {
	for _, s := range v.specs {
		v.comps[s.ID].FillBoundary()
	}
}

func (v *Vector) Len() int { return len(v.specs) * v.layout.NCells }

func (v *Vector) Pack(dst []float64) {
	n := v.layout.NCells
	for k, s := range v.specs {
		copy(dst[k*n:(k+1)*n], v.comps[s.ID].Valid())
	}
}

func (v *Vector) Unpack(src []float64) {
	n := v.layout.NCells
	for k, s := range v.specs {
		copy(v.comps[s.ID].Valid(), src[k*n:(k+1)*n])
	}
	v.FillBoundary()
}

func (v *Vector) String() string {
	return fmt.Sprintf("statevec(%d comps x %d cells, op guard %d)", len(v.specs), v.layout.NCells, v.opGuard)
}
