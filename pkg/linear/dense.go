package linear

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Dense is a flat in-memory vector. It satisfies the solver vector contracts
// and is used for small systems and operator tests.
type Dense struct {
	V []float64
}

func NewDense(n int) *Dense { return &Dense{V: make([]float64, n)} }

func DenseOf(values ...float64) *Dense {
	d := NewDense(len(values))
	copy(d.V, values)
	return d
}

func (d *Dense) mustMatch(o *Dense) {
	if len(d.V) != len(o.V) {
		panic(fmt.Sprintf("linear: dense length mismatch %d != %d", len(d.V), len(o.V)))
	}
}

func (d *Dense) Compatible(o *Dense) bool { return o != nil && len(d.V) == len(o.V) }

func (d *Dense) Clone() *Dense {
	out := NewDense(len(d.V))
	copy(out.V, d.V)
	return out
}

func (d *Dense) Copy(src *Dense) {
	d.mustMatch(src)
	copy(d.V, src.V)
}

func (d *Dense) Add(x *Dense) { d.Increment(1, x) }

func (d *Dense) Sub(x *Dense) { d.Increment(-1, x) }

func (d *Dense) Increment(alpha float64, x *Dense) {
	d.mustMatch(x)
	floats.AddScaled(d.V, alpha, x.V)
}

// LinComb sets d = a x + b y. d may be x or y.
func (d *Dense) LinComb(a float64, x *Dense, b float64, y *Dense) {
	d.mustMatch(x)
	d.mustMatch(y)
	if d == y {
		a, x, b, y = b, y, a, x
	}
	floats.ScaleTo(d.V, a, x.V)
	floats.AddScaled(d.V, b, y.V)
}

func (d *Dense) Scale(alpha float64) { floats.Scale(alpha, d.V) }

func (d *Dense) Zero() { clear(d.V) }

func (d *Dense) Dot(o *Dense) float64 {
	d.mustMatch(o)
	return floats.Dot(d.V, o.V)
}

func (d *Dense) Norm() float64 { return floats.Norm(d.V, 2) }

func (d *Dense) Len() int { return len(d.V) }

func (d *Dense) Pack(dst []float64) { copy(dst, d.V) }

func (d *Dense) Unpack(src []float64) { copy(d.V, src) }
