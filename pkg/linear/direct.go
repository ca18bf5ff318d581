package linear

import (
	"fmt"

	"github.com/edp1096/sparse"
)

// Direct assembles the operator column by column (one ApplyFunc call per
// unknown) into a sparse matrix and solves it by LU. Only sensible for small
// systems; it exists to cross-check the Krylov path.
type Direct[V Vector[V]] struct {
	size   int
	matrix *sparse.Matrix
	config *sparse.Configuration

	unit, col V
	flat      []float64
	rhs       []float64 // 1-based
}

func NewDirect[V Vector[V]]() *Direct[V] {
	return &Direct[V]{}
}

func (s *Direct[V]) Name() string { return "sparse-direct" }

// SetTolerances is a no-op; the factorization is exact up to roundoff.
func (s *Direct[V]) SetTolerances(Tolerances) {}

func (s *Direct[V]) Define(template V) error {
	p, ok := any(template).(Packer)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotPackable, template)
	}
	s.size = p.Len()

	s.config = &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           false,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}
	mat, err := sparse.Create(int64(s.size), s.config)
	if err != nil {
		return fmt.Errorf("creating sparse matrix: %v", err)
	}
	s.matrix = mat

	s.unit = template.Clone()
	s.col = template.Clone()
	s.flat = make([]float64, s.size)
	s.rhs = make([]float64, s.size+1)
	return nil
}

func (s *Direct[V]) Destroy() {
	if s.matrix != nil {
		s.matrix.Destroy()
		s.matrix = nil
	}
}

func (s *Direct[V]) Solve(x, b V, apply ApplyFunc[V]) (Stats, error) {
	var stats Stats
	if s.matrix == nil {
		return stats, ErrUndefined
	}

	s.matrix.Clear()
	unit := any(s.unit).(Packer)
	col := any(s.col).(Packer)
	for j := range s.size {
		clear(s.flat)
		s.flat[j] = 1
		unit.Unpack(s.flat)
		if err := apply(s.col, s.unit); err != nil {
			return stats, err
		}
		stats.Iterations++

		col.Pack(s.flat)
		for i, v := range s.flat {
			if v != 0 {
				s.matrix.GetElement(int64(i+1), int64(j+1)).Real += v
			}
		}
		// keep the diagonal present so pivoting never sees a missing element
		s.matrix.GetElement(int64(j+1), int64(j+1))
	}

	any(b).(Packer).Pack(s.flat)
	copy(s.rhs[1:], s.flat)

	if err := s.matrix.Factor(); err != nil {
		return stats, fmt.Errorf("matrix factorization failed: %v", err)
	}
	solution, err := s.matrix.Solve(s.rhs)
	if err != nil {
		return stats, fmt.Errorf("matrix solve failed: %v", err)
	}
	if len(solution) < s.size+1 {
		return stats, fmt.Errorf("matrix solve returned %d values, want %d", len(solution), s.size+1)
	}
	copy(s.flat, solution[1:s.size+1])
	any(x).(Packer).Unpack(s.flat)

	stats.Converged = true
	return stats, nil
}
