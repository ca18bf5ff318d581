// Package particles holds macro-particle species and the implicit
// Crank-Nicolson push used by the theta-implicit field solve.
package particles

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/edp1096/toy-pic/pkg/grid"
)

// Species is a set of macro-particles with a common charge and mass. W is the
// number of physical particles per unit transverse area each macro-particle
// stands for.
type Species struct {
	Name   string
	Charge float64
	Mass   float64

	X []float64
	U [3][]float64
	W []float64

	// pre-step state
	x0 []float64
	u0 [3][]float64

	// state at the start of a step that may be split into sub-steps
	xs []float64
	us [3][]float64

	// time-centred state of the last committed and the last probe push
	xh, xhProbe []float64
	uh, uhProbe [3][]float64
}

func NewSpecies(name string, charge, mass float64) (*Species, error) {
	if !(mass > 0) || math.IsInf(mass, 0) {
		return nil, fmt.Errorf("species %q: mass must be positive, got %g", name, mass)
	}
	if math.IsNaN(charge) || math.IsInf(charge, 0) {
		return nil, fmt.Errorf("species %q: charge must be finite, got %g", name, charge)
	}
	return &Species{Name: name, Charge: charge, Mass: mass}, nil
}

func (s *Species) Len() int { return len(s.X) }

func (s *Species) Append(x float64, u [3]float64, w float64) {
	s.X = append(s.X, x)
	for d := range 3 {
		s.U[d] = append(s.U[d], u[d])
	}
	s.W = append(s.W, w)
}

// alloc sizes the working buffers to the current particle count.
func (s *Species) alloc() {
	n := s.Len()
	if len(s.x0) == n {
		return
	}
	s.x0 = make([]float64, n)
	s.xs = make([]float64, n)
	s.xh = make([]float64, n)
	s.xhProbe = make([]float64, n)
	for d := range 3 {
		s.u0[d] = make([]float64, n)
		s.us[d] = make([]float64, n)
		s.uh[d] = make([]float64, n)
		s.uhProbe[d] = make([]float64, n)
	}
}

func (s *Species) save() {
	s.alloc()
	copy(s.x0, s.X)
	for d := range 3 {
		copy(s.u0[d], s.U[d])
	}
}

func (s *Species) restore() {
	copy(s.X, s.x0)
	for d := range 3 {
		copy(s.U[d], s.u0[d])
	}
}

func (s *Species) checkpoint() {
	s.alloc()
	copy(s.xs, s.X)
	for d := range 3 {
		copy(s.us[d], s.U[d])
	}
}

func (s *Species) rollback() {
	copy(s.X, s.xs)
	for d := range 3 {
		copy(s.U[d], s.us[d])
	}
}

func (s *Species) half(probe bool) ([]float64, *[3][]float64) {
	if probe {
		return s.xhProbe, &s.uhProbe
	}
	return s.xh, &s.uh
}

// KineticEnergy is sum(w m |u|^2 / 2).
func (s *Species) KineticEnergy() float64 {
	e := 0.0
	for p := range s.X {
		v2 := s.U[0][p]*s.U[0][p] + s.U[1][p]*s.U[1][p] + s.U[2][p]*s.U[2][p]
		e += 0.5 * s.Mass * s.W[p] * v2
	}
	return e
}

// LoadSpec describes a uniform Maxwellian plasma.
type LoadSpec struct {
	Name    string
	Charge  float64
	Mass    float64
	PerCell int
	Density float64
	Vth     float64
	Drift   [3]float64
}

// Load places PerCell particles evenly in every cell with velocities drawn
// from a drifting Maxwellian. The same seed always gives the same particles.
func Load(l *grid.Layout, spec LoadSpec, seed uint64) (*Species, error) {
	s, err := NewSpecies(spec.Name, spec.Charge, spec.Mass)
	if err != nil {
		return nil, err
	}
	if spec.PerCell < 0 {
		return nil, fmt.Errorf("species %q: per_cell must not be negative, got %d", spec.Name, spec.PerCell)
	}
	if spec.Density < 0 || spec.Vth < 0 {
		return nil, fmt.Errorf("species %q: density and vth must not be negative", spec.Name)
	}
	if spec.PerCell == 0 {
		return s, nil
	}

	rng := rand.New(rand.NewPCG(seed, uint64(len(spec.Name))))
	w := spec.Density * l.Dx / float64(spec.PerCell)
	for i := range l.NCells {
		for k := range spec.PerCell {
			x := (float64(i) + (float64(k)+0.5)/float64(spec.PerCell)) * l.Dx
			var u [3]float64
			for d := range 3 {
				u[d] = spec.Drift[d] + spec.Vth*rng.NormFloat64()
			}
			s.Append(x, u, w)
		}
	}
	return s, nil
}
