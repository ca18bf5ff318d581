package nonlinear

import (
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pic/internal/consts"
	"github.com/edp1096/toy-pic/pkg/linear"
)

// NewtonParams control the inner linear solve. A zero JacobianDelta selects
// sqrt(machine epsilon).
type NewtonParams struct {
	Linear        linear.Kind
	KrylovRelTol  float64
	KrylovAbsTol  float64
	KrylovMaxIter int
	Restart       int
	JacobianDelta float64
}

func DefaultNewtonParams() NewtonParams {
	return NewtonParams{
		Linear:        linear.GMRESKind,
		KrylovRelTol:  1e-4,
		KrylovMaxIter: 200,
		Restart:       linear.DefaultRestart,
	}
}

func (p NewtonParams) Validate() error {
	if _, err := linear.ParseKind(string(p.Linear)); err != nil {
		return configErrorf("newton.linear", "%v", err)
	}
	if !(p.KrylovRelTol > 0 && p.KrylovRelTol < 1) {
		return configErrorf("newton.krylov_rel_tol", "must be in (0, 1), got %g", p.KrylovRelTol)
	}
	if p.KrylovAbsTol < 0 {
		return configErrorf("newton.krylov_abs_tol", "must not be negative, got %g", p.KrylovAbsTol)
	}
	if p.KrylovMaxIter < 1 {
		return configErrorf("newton.krylov_max_iter", "must be at least 1, got %d", p.KrylovMaxIter)
	}
	if p.JacobianDelta < 0 || p.JacobianDelta >= 1 {
		return configErrorf("newton.jacobian_delta", "must be in [0, 1), got %g", p.JacobianDelta)
	}
	return nil
}

func (p NewtonParams) delta() float64 {
	if p.JacobianDelta > 0 {
		return p.JacobianDelta
	}
	return math.Sqrt(consts.MachineEps)
}

// Newton solves F(U) = U - b - R(U) = 0. Each step solves J dU = -F(U) with
// a linear solver that only sees Jacobian-vector products, approximated by
//
//	J v ~ (F(U + eps v) - F(U)) / eps,  eps = delta*(1 + ||U||)/||v||
//
// and evaluated with fromJacobian set.
type Newton[V Vector[V]] struct {
	base
	np     NewtonParams
	op     Operator[V]
	linear linear.Solver[V]

	r, f, rhs, du V
	up, rp        V

	probes int
}

func NewNewton[V Vector[V]](p Params, np NewtonParams, verbose bool, logger *zap.Logger) (*Newton[V], error) {
	b, err := newBase(NewtonKind, p, verbose, logger)
	if err != nil {
		return nil, err
	}
	if np.Linear == "" {
		np.Linear = linear.GMRESKind
	}
	if err := np.Validate(); err != nil {
		return nil, err
	}
	return &Newton[V]{base: b, np: np}, nil
}

// SetLinearSolver replaces the linear solver built from NewtonParams. It must
// be called before Define.
func (s *Newton[V]) SetLinearSolver(ls linear.Solver[V]) error {
	if s.defined {
		return configErrorf("linear", "cannot replace the linear solver after Define")
	}
	s.linear = ls
	return nil
}

func (s *Newton[V]) Define(u V, op Operator[V]) error {
	if err := s.checkDefine(op); err != nil {
		return err
	}

	if s.linear == nil {
		ls, err := linear.New[V](s.np.Linear, s.tolerances(), s.np.Restart)
		if err != nil {
			return configErrorf("newton.linear", "%v", err)
		}
		s.linear = ls
	}
	s.linear.SetTolerances(s.tolerances())
	if err := s.linear.Define(u); err != nil {
		if errors.Is(err, linear.ErrNotPackable) {
			return configErrorf("newton.linear", "%v", err)
		}
		return fmt.Errorf("defining %s: %w", s.linear.Name(), err)
	}

	s.op = op
	s.r = u.Clone()
	s.f = u.Clone()
	s.rhs = u.Clone()
	s.du = u.Clone()
	s.up = u.Clone()
	s.rp = u.Clone()
	s.defined = true
	return nil
}

func (s *Newton[V]) tolerances() linear.Tolerances {
	return linear.Tolerances{
		RelTol:  s.np.KrylovRelTol,
		AbsTol:  s.np.KrylovAbsTol,
		MaxIter: s.np.KrylovMaxIter,
	}
}

func (s *Newton[V]) Reset() {
	var zero V
	if s.linear != nil {
		s.linear.Destroy()
		s.linear = nil
	}
	s.op = nil
	s.r, s.f, s.rhs, s.du, s.up, s.rp = zero, zero, zero, zero, zero, zero
	s.defined = false
}

// residual writes F(U) = U - b - R(U) into s.f.
func (s *Newton[V]) residual(u, b V, time, dt float64, iter int) error {
	if err := s.op.ComputeRHS(s.r, u, time, dt, iter, false); err != nil {
		return err
	}
	s.f.Copy(u)
	s.f.Sub(b)
	s.f.Sub(s.r)
	return nil
}

func (s *Newton[V]) jacobianAction(out, v, u, b V, normU, time, dt float64, iter int) error {
	normV := v.Norm()
	if normV == 0 {
		out.Zero()
		return nil
	}
	eps := s.np.delta() * (1 + normU) / normV

	s.up.LinComb(1, u, eps, v)
	if err := s.op.ComputeRHS(s.rp, s.up, time, dt, iter, true); err != nil {
		return err
	}
	s.probes++

	out.Copy(s.up)
	out.Sub(b)
	out.Sub(s.rp)
	out.Sub(s.f)
	out.Scale(1 / eps)
	return nil
}

// Solve applies at most MaxIter Newton updates. The residual is evaluated
// once more after every update, so the operator's last non-probe call is
// always at the returned u.
func (s *Newton[V]) Solve(u, b V, time, dt float64) (Result, error) {
	var res Result
	if err := checkSolve(&s.base, u, b, s.f); err != nil {
		return res, err
	}
	s.probes = 0

	err := s.iterate(&res, u, b, time, dt)
	res.RHSEvaluations += s.probes
	if err != nil {
		return res, err
	}
	s.report(res, time)
	return res, nil
}

func (s *Newton[V]) iterate(res *Result, u, b V, time, dt float64) error {
	for iter := 0; ; iter++ {
		if err := s.residual(u, b, time, dt, iter); err != nil {
			return fmt.Errorf("newton iteration %d: %w", iter, err)
		}
		res.RHSEvaluations++

		norm := s.f.Norm()
		if iter == 0 {
			res.Norm0 = norm
		}
		res.Iterations = iter
		if err := s.record(res, iter, norm); err != nil {
			return err
		}
		if s.converged(norm, res.Norm0) {
			res.Converged = true
			return nil
		}
		if iter >= s.params.MaxIter {
			return nil
		}

		s.rhs.Copy(s.f)
		s.rhs.Scale(-1)
		s.du.Zero()
		normU := u.Norm()
		stats, err := s.linear.Solve(s.du, s.rhs, func(out, v V) error {
			return s.jacobianAction(out, v, u, b, normU, time, dt, iter)
		})
		res.LinearIterations += stats.Iterations
		if err != nil {
			return fmt.Errorf("newton iteration %d: %s: %w", iter, s.linear.Name(), err)
		}
		if !stats.Converged {
			s.logger.Debug("linear solve did not reach tolerance",
				zap.Int("iter", iter),
				zap.Int("linear_iterations", stats.Iterations),
				zap.Float64("linear_residual", stats.Residual))
		}

		u.Increment(1, s.du)
	}
}

func (s *Newton[V]) PrintParams(w io.Writer) {
	s.printParams(w)
	name := string(s.np.Linear)
	if s.linear != nil {
		name = s.linear.Name()
	}
	fmt.Fprintf(w, "Linear solver type:              %s\n", name)
	fmt.Fprintf(w, "Linear relative tolerance:       %.2e\n", s.np.KrylovRelTol)
	fmt.Fprintf(w, "Linear absolute tolerance:       %.2e\n", s.np.KrylovAbsTol)
	fmt.Fprintf(w, "Linear maximum iterations:       %d\n", s.np.KrylovMaxIter)
	fmt.Fprintf(w, "Jacobian perturbation delta:     %.2e\n", s.np.delta())
}
