package fields

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pic/internal/consts"
	"github.com/edp1096/toy-pic/pkg/grid"
	"github.com/edp1096/toy-pic/pkg/statevec"
)

func layout(t *testing.T, n, box int) *grid.Layout {
	t.Helper()
	l, err := grid.NewLayout(n, 0.1, 2, box)
	require.NoError(t, err)
	return l
}

func TestCenterings(t *testing.T) {
	assert.Equal(t, grid.Staggered, ECentering(X))
	assert.Equal(t, grid.Nodal, ECentering(Y))
	assert.Equal(t, grid.Nodal, BCentering(X))
	assert.Equal(t, grid.Staggered, BCentering(Z))

	specs := ESpecs()
	require.Len(t, specs, 3)
	assert.Equal(t, statevec.Spec{ID: "Ex", Centering: grid.Staggered}, specs[0])
}

func TestFromStateShares(t *testing.T) {
	l := layout(t, 8, 4)
	v, err := statevec.New(l, 0, ESpecs()...)
	require.NoError(t, err)

	e := FromState(v)
	e[Y].Set(3, 7)
	assert.Equal(t, 7.0, v.Component("Ey").At(3))
}

// The curl of a sine is a cosine to second order in dx.
func TestCurlOfMode(t *testing.T) {
	l := layout(t, 64, 16)
	e := NewE(l)
	InitMode(e[Y], 1, 1)
	InitMode(e[Z], 1, 2)

	c := NewB(l)
	CurlE(c, e)

	k := 2 * math.Pi / l.Length()
	for i := range l.NCells {
		x := c[Z].Position(i)
		assert.InDelta(t, k*math.Cos(k*x), c[Z].At(i), 2e-3*k)
		assert.InDelta(t, -2*k*math.Cos(k*x), c[Y].At(i), 4e-3*k)
	}
	for _, v := range c[X].V {
		assert.Zero(t, v)
	}
}

// sum(b . CurlE(e)) == sum(e . CurlB(b)) for any e and b.
func TestCurlsAreAdjoint(t *testing.T) {
	l := layout(t, 12, 5)
	e, b := NewE(l), NewB(l)
	for d := range 3 {
		for i := range l.NCells {
			e[d].Set(i, math.Sin(float64(7*i+d)))
			b[d].Set(i, math.Cos(float64(3*i*i+d)))
		}
	}
	e.FillBoundary()
	b.FillBoundary()

	ce, cb := NewB(l), NewE(l)
	CurlE(ce, e)
	CurlB(cb, b)

	dot := func(x, y Vec3) float64 {
		s := 0.0
		for d := range 3 {
			xs, ys := x[d].Valid(), y[d].Valid()
			for i := range xs {
				s += xs[i] * ys[i]
			}
		}
		return s
	}
	assert.InDelta(t, dot(b, ce), dot(e, cb), 1e-9)
}

func TestGatherDepositShape(t *testing.T) {
	l := layout(t, 10, 0)
	d := grid.NewData(l, grid.Nodal)
	for i := range l.NCells {
		d.Set(i, float64(i))
	}
	d.FillBoundary()

	assert.InDelta(t, 2.5, Gather(d, 0.25), 1e-12)
	// Between the last point and its periodic image at x = L.
	assert.InDelta(t, 4.5, Gather(d, 0.95), 1e-12)

	s := grid.NewData(l, grid.Staggered)
	Deposit(s, 0.02, 1)
	s.SumBoundary()
	total := 0.0
	for _, v := range s.Valid() {
		total += v * l.Dx
	}
	assert.InDelta(t, 1.0, total, 1e-12)
	// x = 0.02 sits between the half point at -0.05 (cell 9) and 0.05 (cell 0).
	assert.InDelta(t, 0.7/l.Dx, s.At(0), 1e-9)
	assert.InDelta(t, 0.3/l.Dx, s.At(9), 1e-9)
}

func TestEnergy(t *testing.T) {
	l := layout(t, 16, 4)
	f := New(l)
	InitMode(f.E[Y], 2, 3)
	InitAlternating(f.B[Z], 1)

	assert.InEpsilon(t, 0.5*consts.EPSILON0*9*l.Length()/2, f.ElectricEnergy(), 1e-12)
	assert.InEpsilon(t, 0.5*l.Length()/consts.MU0, f.MagneticEnergy(), 1e-12)
	assert.Equal(t, f.ElectricEnergy()+f.MagneticEnergy(), f.Energy())
}

func TestBuffersAndBlend(t *testing.T) {
	l := layout(t, 4, 0)
	f := New(l)

	e, _, _ := f.Buffers(true)
	e[Y].Set(1, 5)
	assert.Zero(t, f.E[Y].At(1))

	e, _, _ = f.Buffers(false)
	e[Y].Set(1, 2)
	old := f.E.Clone()
	f.E[Y].Set(1, 4)
	f.E.Blend(2, f.E, -1, old)
	assert.Equal(t, 6.0, f.E[Y].At(1))
}
