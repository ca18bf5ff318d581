// Package implicit advances the coupled field and particle system with the
// theta-implicit scheme. The unknown is E^{n+theta}; each step solves
//
//	E^{n+theta} = E^n + theta dt (c^2 curl B^{n+theta} - J^{n+1/2}/eps0)
//	B^{n+theta} = B^n - theta dt curl E^{n+theta}
//
// with a nonlinear solver and then recovers the full-step fields.
package implicit

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pic/internal/consts"
	"github.com/edp1096/toy-pic/pkg/fields"
	"github.com/edp1096/toy-pic/pkg/hooks"
	"github.com/edp1096/toy-pic/pkg/nonlinear"
	"github.com/edp1096/toy-pic/pkg/particles"
	"github.com/edp1096/toy-pic/pkg/statevec"
	"github.com/edp1096/toy-pic/pkg/util"
)

type State int

const (
	Idle State = iota
	Snapshot
	Iterating
	Converged
	FieldReconstruction
	ParticleFinalize
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Snapshot:
		return "snapshot"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case FieldReconstruction:
		return "field-reconstruction"
	case ParticleFinalize:
		return "particle-finalize"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FailurePolicy says what a step does when the nonlinear solve stops at
// MaxIter without converging.
type FailurePolicy string

const (
	Warn  FailurePolicy = "warn"
	Abort FailurePolicy = "abort"
	Retry FailurePolicy = "retry"
)

func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "":
		return Warn, nil
	case Warn, Abort, Retry:
		return FailurePolicy(s), nil
	}
	return "", nonlinear.NewConfigError("on_failure", "unknown policy %q (want warn, abort or retry)", s)
}

type Options struct {
	Theta      float64
	Solver     nonlinear.Config
	OnFailure  FailurePolicy
	MaxRetries int
	Hooks      *hooks.Table
	Logger     *zap.Logger
}

// StepError wraps whatever stopped a time step.
type StepError struct {
	Step int
	Time float64
	Dt   float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("implicit: step %d at t=%s (dt=%s): %v", e.Step,
		util.FormatValueFactor(e.Time, "s"), util.FormatValueFactor(e.Dt, "s"), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepReport summarizes one call to OneStep. A retried step is the sum of
// its sub-steps.
type StepReport struct {
	Step             int
	Time             float64
	Dt               float64
	SubSteps         int
	Retries          int
	Iterations       int
	Converged        bool
	Norm             float64
	RHSEvaluations   int
	LinearIterations int
	// History is the residual history of the last nonlinear solve.
	History []float64
}

func (r *StepReport) merge(o StepReport) {
	r.SubSteps += o.SubSteps
	r.Retries += o.Retries
	r.Iterations += o.Iterations
	r.Converged = r.Converged && o.Converged
	r.Norm = o.Norm
	r.RHSEvaluations += o.RHSEvaluations
	r.LinearIterations += o.LinearIterations
	r.History = o.History
}

// Scheme is the theta-implicit electromagnetic time integrator. It owns the
// solver vectors and acts as the residual operator for its own solver.
type Scheme struct {
	theta      float64
	policy     FailurePolicy
	maxRetries int

	fields    *fields.Fields
	particles *particles.Container
	solver    nonlinear.Solver[*statevec.Vector]
	hooks     *hooks.Table
	logger    *zap.Logger

	e    *statevec.Vector // E^{n+theta}, the unknown
	eOld *statevec.Vector // E^n
	bOld fields.Vec3      // B^n; not a solver vector

	// fields at the start of a step that may be split by retries
	eStep, bStep fields.Vec3

	curlB fields.Vec3
	curlE fields.Vec3

	state State
}

// New builds the scheme over f and p and defines its solver. p may be nil
// for a vacuum run.
func New(f *fields.Fields, p *particles.Container, opts Options) (*Scheme, error) {
	if f == nil {
		return nil, nonlinear.NewConfigError("fields", "nil field model")
	}
	if err := util.ValidateTheta(opts.Theta); err != nil {
		return nil, nonlinear.NewConfigError("theta", "%v", err)
	}
	policy, err := ParsePolicy(string(opts.OnFailure))
	if err != nil {
		return nil, err
	}
	if opts.MaxRetries < 0 {
		return nil, nonlinear.NewConfigError("max_retries", "must not be negative, got %d", opts.MaxRetries)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Solver.Logger == nil {
		opts.Solver.Logger = logger
	}

	solver, err := nonlinear.New[*statevec.Vector](opts.Solver)
	if err != nil {
		return nil, err
	}

	s := &Scheme{
		theta:      opts.Theta,
		policy:     policy,
		maxRetries: opts.MaxRetries,
		fields:     f,
		particles:  p,
		solver:     solver,
		hooks:      opts.Hooks,
		logger:     logger.Named("implicit"),
		bOld:       fields.NewB(f.Layout),
		curlB:      fields.NewE(f.Layout),
		curlE:      fields.NewB(f.Layout),
	}
	if s.retries() {
		s.eStep = fields.NewE(f.Layout)
		s.bStep = fields.NewB(f.Layout)
	}
	if s.e, err = statevec.New(f.Layout, 0, fields.ESpecs()...); err != nil {
		return nil, err
	}
	fields.FromState(s.e).CopyFrom(f.E)
	s.eOld = s.e.Clone()

	if err := solver.Define(s.e, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheme) Theta() float64 { return s.theta }

func (s *Scheme) State() State { return s.state }

func (s *Scheme) Solver() nonlinear.Solver[*statevec.Vector] { return s.solver }

func (s *Scheme) Fields() *fields.Fields { return s.fields }

// Energy is the field energy plus the particle kinetic energy.
func (s *Scheme) Energy() float64 {
	w := s.fields.Energy()
	if s.particles != nil {
		w += s.particles.KineticEnergy()
	}
	return w
}

// magneticUpdate writes b = B^n - theta dt curl(e).
func (s *Scheme) magneticUpdate(b, e fields.Vec3, dt float64) {
	fields.CurlE(s.curlE, e)
	b.Blend(1, s.bOld, -s.theta*dt, s.curlE)
}

// ComputeRHS evaluates R(E) = theta dt (c^2 curl B^{n+theta} - J/eps0) for
// the trial E in u. A probe evaluation writes only probe buffers.
func (s *Scheme) ComputeRHS(r, u *statevec.Vector, _, dt float64, _ int, fromJacobian bool) error {
	e, b, j := s.fields.Buffers(fromJacobian)
	e.CopyFrom(fields.FromState(u))
	e.FillBoundary()
	s.magneticUpdate(b, e, dt)

	if s.particles != nil {
		if err := s.particles.PushAndDeposit(e, b, j, dt, fromJacobian); err != nil {
			return err
		}
	} else {
		j.Zero()
	}

	fields.CurlB(s.curlB, b)
	rv := fields.FromState(r)
	coef := s.theta * dt
	c2 := consts.CLIGHT * consts.CLIGHT
	for d := range 3 {
		rd, cd, jd := rv[d].V, s.curlB[d].V, j[d].V
		for i := range rd {
			rd[i] = coef * (c2*cd[i] - jd[i]/consts.EPSILON0)
		}
	}
	return nil
}

// UpdateFields stores u as the time-centred E and recomputes the matching B.
func (s *Scheme) UpdateFields(u *statevec.Vector, dt float64) {
	s.fields.E.CopyFrom(fields.FromState(u))
	s.fields.E.FillBoundary()
	s.magneticUpdate(s.fields.B, s.fields.E, dt)
}

// FinishFieldUpdate turns the time-centred fields into full-step fields:
// X^{n+1} = (X^{n+theta} - (1-theta) X^n)/theta.
func (s *Scheme) FinishFieldUpdate() {
	c := util.GetRecoverCoeffs(s.theta)
	s.fields.E.Blend(c[0], s.fields.E, c[1], fields.FromState(s.eOld))
	s.fields.B.Blend(c[0], s.fields.B, c[1], s.bOld)
	s.fields.E.FillBoundary()
	s.fields.B.FillBoundary()
}

func (s *Scheme) snapshot() {
	s.state = Snapshot
	fields.FromState(s.eOld).CopyFrom(s.fields.E)
	s.bOld.CopyFrom(s.fields.B)
	if s.particles != nil {
		s.particles.SavePreStep()
	}
}

func (s *Scheme) restore() {
	s.fields.E.CopyFrom(fields.FromState(s.eOld))
	s.fields.B.CopyFrom(s.bOld)
	if s.particles != nil {
		s.particles.Restore()
	}
}

func (s *Scheme) retries() bool { return s.policy == Retry && s.maxRetries > 0 }

func (s *Scheme) checkpoint() {
	s.eStep.CopyFrom(s.fields.E)
	s.bStep.CopyFrom(s.fields.B)
	if s.particles != nil {
		s.particles.Checkpoint()
	}
}

func (s *Scheme) rollback() {
	s.fields.E.CopyFrom(s.eStep)
	s.fields.B.CopyFrom(s.bStep)
	if s.particles != nil {
		s.particles.Rollback()
	}
}

// OneStep advances fields and particles from time to time+dt. If the step
// fails, fields and particles are left as they were on entry, however many
// sub-steps a retry had already committed. An after_step hook error leaves
// the completed step in place.
func (s *Scheme) OneStep(time, dt float64, step int) (StepReport, error) {
	if !(dt > 0) {
		return StepReport{}, &StepError{Step: step, Time: time, Dt: dt,
			Err: nonlinear.NewConfigError("dt", "must be positive, got %g", dt)}
	}
	info := hooks.Info{Step: step, Time: time, Dt: dt}
	if err := s.hooks.Execute(hooks.BeforeStep, info); err != nil {
		return StepReport{}, &StepError{Step: step, Time: time, Dt: dt, Err: err}
	}

	if s.retries() {
		s.checkpoint()
	}
	rep, err := s.advance(time, dt, step, 0)
	rep.Step, rep.Time, rep.Dt = step, time, dt
	if err != nil {
		if s.retries() {
			s.rollback()
		}
		return rep, &StepError{Step: step, Time: time, Dt: dt, Err: err}
	}

	info.Iterations, info.Converged = rep.Iterations, rep.Converged
	if err := s.hooks.Execute(hooks.AfterStep, info); err != nil {
		return rep, &StepError{Step: step, Time: time, Dt: dt, Err: err}
	}
	return rep, nil
}

func (s *Scheme) advance(time, dt float64, step, depth int) (StepReport, error) {
	defer func() { s.state = Idle }()

	s.snapshot()
	s.e.Copy(s.eOld)

	s.state = Iterating
	res, err := s.solver.Solve(s.e, s.eOld, time, dt)
	rep := StepReport{
		SubSteps:         1,
		Iterations:       res.Iterations,
		Converged:        res.Converged,
		Norm:             res.Norm,
		RHSEvaluations:   res.RHSEvaluations,
		LinearIterations: res.LinearIterations,
		History:          res.History,
	}
	if err != nil {
		s.restore()
		return rep, err
	}

	if !res.Converged {
		switch {
		case s.policy == Warn:
			s.logger.Warn("accepting unconverged step",
				zap.Int("step", step),
				zap.Float64("time", time),
				zap.Float64("dt", dt),
				zap.Float64("norm", res.Norm))
		case s.policy == Retry && depth < s.maxRetries:
			s.restore()
			s.logger.Info("retrying step as two half steps",
				zap.Int("step", step),
				zap.Float64("time", time),
				zap.Float64("dt", dt/2),
				zap.Int("depth", depth+1))
			return s.retry(time, dt, step, depth, rep)
		default:
			s.restore()
			return rep, fmt.Errorf("%w after %d iterations (norm %s)",
				nonlinear.ErrConvergence, res.Iterations, util.FormatNorm(res.Norm))
		}
	}

	s.state = Converged
	err = s.hooks.Execute(hooks.AfterConvergence, hooks.Info{
		Step: step, Time: time, Dt: dt, Iterations: res.Iterations, Converged: res.Converged,
	})
	if err != nil {
		s.restore()
		return rep, err
	}

	s.state = FieldReconstruction
	s.UpdateFields(s.e, dt)
	s.FinishFieldUpdate()

	s.state = ParticleFinalize
	if s.particles != nil {
		s.particles.Finalize(dt)
	}
	return rep, nil
}

func (s *Scheme) retry(time, dt float64, step, depth int, failed StepReport) (StepReport, error) {
	rep := StepReport{Retries: 1, Converged: true}
	rep.Iterations = failed.Iterations
	rep.RHSEvaluations = failed.RHSEvaluations
	rep.LinearIterations = failed.LinearIterations

	half := dt / 2
	for k := range 2 {
		t := time + float64(k)*half
		sub, err := s.advance(t, half, step, depth+1)
		rep.merge(sub)
		if err != nil {
			return rep, fmt.Errorf("half step %d/2 at depth %d (t=%s): %w",
				k+1, depth+1, util.FormatValueFactor(t, "s"), err)
		}
	}
	return rep, nil
}

// PrintParameters writes the scheme and solver settings.
func (s *Scheme) PrintParameters(w io.Writer) {
	fmt.Fprintf(w, "-----------------------------------------------------------\n")
	fmt.Fprintf(w, "Time-stepping method:            theta-implicit EM\n")
	fmt.Fprintf(w, "Theta:                           %g\n", s.theta)
	fmt.Fprintf(w, "On failure:                      %s\n", s.policy)
	if s.policy == Retry {
		fmt.Fprintf(w, "Maximum step halvings:           %d\n", s.maxRetries)
	}
	if s.particles != nil {
		fmt.Fprintf(w, "Particle position iterations:    %d\n", s.particles.Params.MaxIter)
		fmt.Fprintf(w, "Particle position tolerance:     %.2e dx\n", s.particles.Params.Tol)
	}
	s.solver.PrintParams(w)
	fmt.Fprintf(w, "-----------------------------------------------------------\n")
}

// IsConvergenceFailure reports whether err came from a step that hit the
// iteration limit under the abort or retry policy.
func IsConvergenceFailure(err error) bool {
	return errors.Is(err, nonlinear.ErrConvergence)
}
