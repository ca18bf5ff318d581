package fields

import (
	"math"

	"github.com/edp1096/toy-pic/pkg/grid"
)

// weights returns the left point and the weight of the right point of the
// linear shape at x (x inside [0, Length)). The left point may be -1, which
// is a guard cell.
func weights(d *grid.Data, x float64) (int, float64) {
	s := x/d.Layout.Dx - d.Centering.Offset()
	i := math.Floor(s)
	return int(i), s - i
}

// Gather interpolates d at x with the linear shape. Guards must be filled.
func Gather(d *grid.Data, x float64) float64 {
	i, w := weights(d, x)
	return (1-w)*d.At(i) + w*d.At(i+1)
}

// GatherVec3 interpolates all three components of v at x.
func GatherVec3(v Vec3, x float64) [3]float64 {
	return [3]float64{Gather(v[X], x), Gather(v[Y], x), Gather(v[Z], x)}
}

// Deposit spreads amount/dx over the two points of the linear shape at x.
// Contributions landing in guard cells are folded back by SumBoundary.
func Deposit(d *grid.Data, x, amount float64) {
	i, w := weights(d, x)
	a := amount / d.Layout.Dx
	d.Add(i, (1-w)*a)
	d.Add(i+1, w*a)
}

// InitMode sets d to amplitude*sin(2 pi mode x / L) at its own points.
// mode 0 gives a uniform field.
func InitMode(d *grid.Data, mode int, amplitude float64) {
	k := 2 * math.Pi * float64(mode) / d.Layout.Length()
	valid := d.Valid()
	for i := range valid {
		if mode == 0 {
			valid[i] = amplitude
			continue
		}
		valid[i] = amplitude * math.Sin(k*d.Position(i))
	}
	d.FillBoundary()
}

// InitAlternating sets d to amplitude*(-1)^i, the shortest wavelength the
// mesh resolves.
func InitAlternating(d *grid.Data, amplitude float64) {
	valid := d.Valid()
	for i := range valid {
		valid[i] = amplitude
		if i%2 == 1 {
			valid[i] = -amplitude
		}
	}
	d.FillBoundary()
}
