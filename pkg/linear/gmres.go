package linear

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const DefaultRestart = 30

// GMRES is restarted GMRES(m) with modified Gram-Schmidt and Givens rotations.
// It only ever touches the operator through ApplyFunc.
type GMRES[V Vector[V]] struct {
	restart int
	tol     Tolerances

	basis []V
	w, r  V
	h     [][]float64
	cs    []float64
	sn    []float64
	g     []float64
	y     []float64

	defined bool
}

func NewGMRES[V Vector[V]](restart int) *GMRES[V] {
	if restart <= 0 {
		restart = DefaultRestart
	}
	return &GMRES[V]{
		restart: restart,
		tol:     Tolerances{RelTol: 1e-6, MaxIter: 200},
	}
}

func (s *GMRES[V]) Name() string { return fmt.Sprintf("gmres(%d)", s.restart) }

func (s *GMRES[V]) SetTolerances(tol Tolerances) {
	if tol.MaxIter <= 0 {
		tol.MaxIter = s.tol.MaxIter
	}
	s.tol = tol
}

func (s *GMRES[V]) Define(template V) error {
	m := s.restart
	s.basis = make([]V, m+1)
	for i := range s.basis {
		s.basis[i] = template.Clone()
	}
	s.w = template.Clone()
	s.r = template.Clone()

	s.h = make([][]float64, m+1)
	for i := range s.h {
		s.h[i] = make([]float64, m)
	}
	s.cs = make([]float64, m)
	s.sn = make([]float64, m)
	s.g = make([]float64, m+1)
	s.y = make([]float64, m)
	s.defined = true
	return nil
}

func (s *GMRES[V]) Destroy() {
	s.basis = nil
	s.defined = false
}

func (s *GMRES[V]) Solve(x, b V, apply ApplyFunc[V]) (Stats, error) {
	var stats Stats
	if !s.defined {
		return stats, ErrUndefined
	}

	bnorm := b.Norm()
	if bnorm == 0 {
		x.Zero()
		stats.Converged = true
		return stats, nil
	}
	target := math.Max(s.tol.RelTol*bnorm, s.tol.AbsTol)

	for stats.Iterations < s.tol.MaxIter {
		if err := apply(s.w, x); err != nil {
			return stats, err
		}
		s.r.LinComb(1, b, -1, s.w)
		beta := s.r.Norm()
		stats.Residual = beta
		if beta <= target {
			stats.Converged = true
			return stats, nil
		}

		s.basis[0].Copy(s.r)
		s.basis[0].Scale(1 / beta)
		clear(s.g)
		s.g[0] = beta

		k, happy := 0, false
		for k < s.restart && stats.Iterations < s.tol.MaxIter {
			stats.Iterations++
			if err := apply(s.w, s.basis[k]); err != nil {
				return stats, err
			}
			for j := 0; j <= k; j++ {
				s.h[j][k] = s.w.Dot(s.basis[j])
				s.w.Increment(-s.h[j][k], s.basis[j])
			}
			hnext := s.w.Norm()
			if hnext > 0 {
				s.basis[k+1].Copy(s.w)
				s.basis[k+1].Scale(1 / hnext)
			} else {
				happy = true
			}

			for j := 0; j < k; j++ {
				hj, hj1 := s.h[j][k], s.h[j+1][k]
				s.h[j][k] = s.cs[j]*hj + s.sn[j]*hj1
				s.h[j+1][k] = -s.sn[j]*hj + s.cs[j]*hj1
			}
			denom := math.Hypot(s.h[k][k], hnext)
			if denom == 0 {
				return stats, fmt.Errorf("%w: zero column at iteration %d", ErrBreakdown, stats.Iterations)
			}
			s.cs[k] = s.h[k][k] / denom
			s.sn[k] = hnext / denom
			s.h[k][k] = denom
			s.g[k+1] = -s.sn[k] * s.g[k]
			s.g[k] = s.cs[k] * s.g[k]

			k++
			stats.Residual = math.Abs(s.g[k])
			if stats.Residual <= target || happy {
				break
			}
		}

		if err := s.update(x, k); err != nil {
			return stats, err
		}
		if stats.Residual <= target || happy {
			stats.Converged = true
			return stats, nil
		}
	}
	return stats, nil
}

// update adds the Krylov correction built from the first k basis vectors.
// The coefficients solve the rotated k x k upper triangular system R y = g.
func (s *GMRES[V]) update(x V, k int) error {
	if k == 0 {
		return nil
	}
	r := mat.NewTriDense(k, mat.Upper, nil)
	for i := range k {
		for j := i; j < k; j++ {
			r.SetTri(i, j, s.h[i][j])
		}
	}
	y := mat.NewVecDense(k, s.y[:k])
	if err := y.SolveVec(r, mat.NewVecDense(k, s.g[:k])); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("%w: %v", ErrBreakdown, err)
		}
	}
	for j := range k {
		x.Increment(y.AtVec(j), s.basis[j])
	}
	return nil
}
