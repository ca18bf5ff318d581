// Package fields holds the electromagnetic field model on a 1D Yee mesh.
//
// Along x the staggering is: Ex, By, Bz at half points; Ey, Ez, Bx at whole
// points. J shares the centering of E. Only d/dx survives in the curls:
//
//	(curl E)_y = -dEz/dx   (curl E)_z = dEy/dx
//	(curl B)_y = -dBz/dx   (curl B)_z = dBy/dx
package fields

import (
	"github.com/edp1096/toy-pic/internal/consts"
	"github.com/edp1096/toy-pic/pkg/grid"
	"github.com/edp1096/toy-pic/pkg/statevec"
)

const (
	X = iota
	Y
	Z
)

// Vec3 is one three-component field.
type Vec3 [3]*grid.Data

var (
	EIDs = [3]string{"Ex", "Ey", "Ez"}
	BIDs = [3]string{"Bx", "By", "Bz"}
	JIDs = [3]string{"Jx", "Jy", "Jz"}
)

func ECentering(dir int) grid.Centering {
	if dir == X {
		return grid.Staggered
	}
	return grid.Nodal
}

func BCentering(dir int) grid.Centering {
	if dir == X {
		return grid.Nodal
	}
	return grid.Staggered
}

// ESpecs describes the E components as solver-vector components.
func ESpecs() []statevec.Spec {
	specs := make([]statevec.Spec, 3)
	for d := range 3 {
		specs[d] = statevec.Spec{ID: EIDs[d], Centering: ECentering(d)}
	}
	return specs
}

func NewE(l *grid.Layout) Vec3 {
	return Vec3{grid.NewData(l, ECentering(X)), grid.NewData(l, ECentering(Y)), grid.NewData(l, ECentering(Z))}
}

func NewB(l *grid.Layout) Vec3 {
	return Vec3{grid.NewData(l, BCentering(X)), grid.NewData(l, BCentering(Y)), grid.NewData(l, BCentering(Z))}
}

// FromState views the E components of a solver vector. The data is shared.
func FromState(v *statevec.Vector) Vec3 {
	return Vec3{v.Component(EIDs[X]), v.Component(EIDs[Y]), v.Component(EIDs[Z])}
}

func (v Vec3) Clone() Vec3 {
	return Vec3{v[X].Clone(), v[Y].Clone(), v[Z].Clone()}
}

func (v Vec3) CopyFrom(src Vec3) {
	for d := range 3 {
		v[d].CopyFrom(src[d])
	}
}

func (v Vec3) Zero() {
	for d := range 3 {
		v[d].Zero()
	}
}

func (v Vec3) FillBoundary() {
	for d := range 3 {
		v[d].FillBoundary()
	}
}

func (v Vec3) SumBoundary() {
	for d := range 3 {
		v[d].SumBoundary()
	}
}

// Blend sets v = a*x + b*y on every stored point.
func (v Vec3) Blend(a float64, x Vec3, b float64, y Vec3) {
	for d := range 3 {
		dst, xs, ys := v[d].V, x[d].V, y[d].V
		for i := range dst {
			dst[i] = a*xs[i] + b*ys[i]
		}
	}
}

// SquareSum is sum(v^2) dx over valid points, reduced in box order.
func (v Vec3) SquareSum() float64 {
	l := v[X].Layout
	return l.Reduce(func(b grid.Box) float64 {
		lo, hi := l.Span(b, 0)
		sum := 0.0
		for d := range 3 {
			for _, x := range v[d].V[lo:hi] {
				sum += x * x
			}
		}
		return sum * l.Dx
	})
}

// Fields is the persistent field state plus probe scratch. Jacobian probes
// write only to the probe buffers.
type Fields struct {
	Layout *grid.Layout

	E Vec3
	B Vec3
	J Vec3

	EProbe Vec3
	BProbe Vec3
	JProbe Vec3
}

func New(l *grid.Layout) *Fields {
	return &Fields{
		Layout: l,
		E:      NewE(l),
		B:      NewB(l),
		J:      NewE(l),
		EProbe: NewE(l),
		BProbe: NewB(l),
		JProbe: NewE(l),
	}
}

// Buffers returns the E, B, J buffers for a committed or a probe evaluation.
func (f *Fields) Buffers(probe bool) (e, b, j Vec3) {
	if probe {
		return f.EProbe, f.BProbe, f.JProbe
	}
	return f.E, f.B, f.J
}

// ElectricEnergy is eps0/2 * sum(E^2) dx per unit transverse area.
func (f *Fields) ElectricEnergy() float64 {
	return 0.5 * consts.EPSILON0 * f.E.SquareSum()
}

func (f *Fields) MagneticEnergy() float64 {
	return 0.5 / consts.MU0 * f.B.SquareSum()
}

func (f *Fields) Energy() float64 {
	return f.ElectricEnergy() + f.MagneticEnergy()
}
