package nonlinear

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Picard iterates U_{k+1} = b + R(U_k) until ||U_{k+1} - U_k|| falls below
// relTol*||U_0|| + absTol.
type Picard[V Vector[V]] struct {
	base
	op    Operator[V]
	uPrev V
	r     V
}

func NewPicard[V Vector[V]](p Params, verbose bool, logger *zap.Logger) (*Picard[V], error) {
	b, err := newBase(PicardKind, p, verbose, logger)
	if err != nil {
		return nil, err
	}
	return &Picard[V]{base: b}, nil
}

func (s *Picard[V]) Define(u V, op Operator[V]) error {
	if err := s.checkDefine(op); err != nil {
		return err
	}
	s.op = op
	s.uPrev = u.Clone()
	s.r = u.Clone()
	s.defined = true
	return nil
}

func (s *Picard[V]) Reset() {
	var zero V
	s.op = nil
	s.uPrev, s.r = zero, zero
	s.defined = false
}

func (s *Picard[V]) Solve(u, b V, time, dt float64) (Result, error) {
	var res Result
	if err := checkSolve(&s.base, u, b, s.uPrev); err != nil {
		return res, err
	}

	res.Norm0 = u.Norm()
	for iter := range s.params.MaxIter {
		s.uPrev.Copy(u)
		if err := s.op.ComputeRHS(s.r, u, time, dt, iter, false); err != nil {
			return res, fmt.Errorf("picard iteration %d: %w", iter, err)
		}
		res.RHSEvaluations++

		u.LinComb(1, b, 1, s.r)
		s.uPrev.Sub(u)
		norm := s.uPrev.Norm()

		res.Iterations = iter + 1
		if err := s.record(&res, iter, norm); err != nil {
			return res, err
		}
		if s.converged(norm, res.Norm0) {
			res.Converged = true
			break
		}
	}

	s.report(res, time)
	return res, nil
}

func (s *Picard[V]) PrintParams(w io.Writer) {
	s.printParams(w)
}
