// Package nonlinear solves U = b + R(U) for any vector type and any residual
// operator. Picard iterates the fixed point directly; Newton solves
// F(U) = U - b - R(U) = 0 with a Jacobian-free Krylov step.
//
// Every vector operation and every ComputeRHS call is made in the same order
// on every call path, so a distributed operator sees a consistent sequence
// of collective calls.
package nonlinear

import (
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pic/pkg/linear"
)

// Vector is the algebra a solver vector must provide. Binary operations on
// incompatible vectors panic; Solve checks Compatible first.
type Vector[V any] interface {
	linear.Vector[V]
	Compatible(other V) bool
	Add(x V)
	Sub(x V)
}

// Operator evaluates the right-hand side R(U) into r. When fromJacobian is
// set the call is a directional-derivative probe and must leave persistent
// model state untouched.
type Operator[V any] interface {
	ComputeRHS(r, u V, time, dt float64, iter int, fromJacobian bool) error
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc[V any] func(r, u V, time, dt float64, iter int, fromJacobian bool) error

func (f OperatorFunc[V]) ComputeRHS(r, u V, time, dt float64, iter int, fromJacobian bool) error {
	return f(r, u, time, dt, iter, fromJacobian)
}

type Kind string

const (
	PicardKind Kind = "picard"
	NewtonKind Kind = "newton"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case PicardKind, NewtonKind:
		return Kind(s), nil
	}
	return "", configErrorf("solver", "unknown kind %q (want picard or newton)", s)
}

type Params struct {
	RelTol  float64
	AbsTol  float64
	MaxIter int
}

func DefaultParams() Params {
	return Params{RelTol: 1e-6, AbsTol: 1e-14, MaxIter: 100}
}

func (p Params) Validate() error {
	if !(p.RelTol > 0) || math.IsInf(p.RelTol, 0) {
		return configErrorf("rel_tol", "must be positive and finite, got %g", p.RelTol)
	}
	if !(p.AbsTol > 0) || math.IsInf(p.AbsTol, 0) {
		return configErrorf("abs_tol", "must be positive and finite, got %g", p.AbsTol)
	}
	if p.MaxIter < 1 {
		return configErrorf("max_iter", "must be at least 1, got %d", p.MaxIter)
	}
	return nil
}

// Result is the iteration record of one Solve call. Iterations counts
// updates of U: fixed-point sweeps for Picard, Newton steps for Newton.
// RHSEvaluations includes Jacobian probes.
type Result struct {
	Iterations       int
	Converged        bool
	Norm0            float64
	Norm             float64
	History          []float64
	RHSEvaluations   int
	LinearIterations int
}

type Solver[V Vector[V]] interface {
	Kind() Kind
	Define(u V, op Operator[V]) error
	IsDefined() bool
	Reset()
	// Solve works in place on u, which holds the initial guess on entry.
	Solve(u, b V, time, dt float64) (Result, error)
	PrintParams(w io.Writer)
	SolverParams() (relTol, absTol float64, maxIter int)
	Verbose(v bool)
}

type Config struct {
	Kind    Kind
	Params  Params
	Newton  NewtonParams
	Verbose bool
	Logger  *zap.Logger
}

// New selects the solver strategy once, at setup.
func New[V Vector[V]](cfg Config) (Solver[V], error) {
	switch cfg.Kind {
	case PicardKind:
		s, err := NewPicard[V](cfg.Params, cfg.Verbose, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case NewtonKind:
		s, err := NewNewton[V](cfg.Params, cfg.Newton, cfg.Verbose, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, configErrorf("solver", "unknown kind %q (want picard or newton)", cfg.Kind)
}

// base carries what both strategies share: parameters, the defined flag,
// verbosity and the convergence test.
type base struct {
	kind    Kind
	params  Params
	defined bool
	verbose bool
	logger  *zap.Logger
}

func newBase(kind Kind, p Params, verbose bool, logger *zap.Logger) (base, error) {
	if err := p.Validate(); err != nil {
		return base{}, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		kind:    kind,
		params:  p,
		verbose: verbose,
		logger:  logger.Named(string(kind)),
	}, nil
}

func (s *base) Kind() Kind { return s.kind }

func (s *base) IsDefined() bool { return s.defined }

func (s *base) Verbose(v bool) { s.verbose = v }

func (s *base) SolverParams() (float64, float64, int) {
	return s.params.RelTol, s.params.AbsTol, s.params.MaxIter
}

func (s *base) converged(norm, norm0 float64) bool {
	return norm <= s.params.RelTol*norm0+s.params.AbsTol
}

func (s *base) checkDefine(op any) error {
	if s.defined {
		return configErrorf("define", "%s solver already defined; call Reset first", s.kind)
	}
	if op == nil {
		return configErrorf("operator", "nil residual operator")
	}
	return nil
}

func checkSolve[V Vector[V]](s *base, u, b, scratch V) error {
	if !s.defined {
		return configErrorf("solve", "%s solver used before Define", s.kind)
	}
	if !u.Compatible(b) {
		return configErrorf("vector", "solution and right-hand side have different shapes")
	}
	if !u.Compatible(scratch) {
		return configErrorf("vector", "solution shape differs from the vector the solver was defined with")
	}
	return nil
}

func (s *base) record(res *Result, iter int, norm float64) error {
	res.History = append(res.History, norm)
	res.Norm = norm
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return &DivergenceError{Solver: s.kind, Iteration: iter, Norm: norm}
	}
	s.logger.Debug("iteration",
		zap.Int("iter", iter),
		zap.Float64("norm", norm),
		zap.Float64("norm0", res.Norm0))
	return nil
}

func (s *base) report(res Result, time float64) {
	if !res.Converged {
		s.logger.Warn("maximum iterations reached without convergence",
			zap.Float64("time", time),
			zap.Int("iterations", res.Iterations),
			zap.Float64("norm", res.Norm),
			zap.Float64("norm0", res.Norm0),
			zap.Float64("rel_tol", s.params.RelTol),
			zap.Float64("abs_tol", s.params.AbsTol))
		return
	}
	if s.verbose {
		s.logger.Info("converged",
			zap.Float64("time", time),
			zap.Int("iterations", res.Iterations),
			zap.Float64("norm", res.Norm),
			zap.Float64("norm0", res.Norm0),
			zap.Int("rhs_evaluations", res.RHSEvaluations),
			zap.Int("linear_iterations", res.LinearIterations))
	}
}

func (s *base) printParams(w io.Writer) {
	fmt.Fprintf(w, "Nonlinear solver type:           %s\n", s.kind)
	fmt.Fprintf(w, "Nonlinear relative tolerance:    %.2e\n", s.params.RelTol)
	fmt.Fprintf(w, "Nonlinear absolute tolerance:    %.2e\n", s.params.AbsTol)
	fmt.Fprintf(w, "Nonlinear maximum iterations:    %d\n", s.params.MaxIter)
	fmt.Fprintf(w, "Nonlinear verbose:               %t\n", s.verbose)
}
