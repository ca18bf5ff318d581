package particles

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pic/pkg/fields"
	"github.com/edp1096/toy-pic/pkg/grid"
)

type PushParams struct {
	// MaxIter bounds the fixed-point iteration on the half-step position.
	MaxIter int
	// Tol is the position tolerance in units of dx.
	Tol float64
}

func DefaultPushParams() PushParams {
	return PushParams{MaxIter: 50, Tol: 1e-12}
}

// PushStats counts the inner position iterations of one push.
type PushStats struct {
	Particles   int
	Iterations  int
	Unconverged int
}

// Container owns every species on one layout.
type Container struct {
	Layout  *grid.Layout
	Species []*Species
	Params  PushParams

	// one private current buffer per chunk, summed in chunk order
	scratch []fields.Vec3
	counts  []PushStats
	last    PushStats

	logger *zap.Logger
}

func NewContainer(l *grid.Layout, p PushParams, logger *zap.Logger) (*Container, error) {
	if p.MaxIter < 1 {
		return nil, fmt.Errorf("particles: max_iter must be at least 1, got %d", p.MaxIter)
	}
	if !(p.Tol > 0) {
		return nil, fmt.Errorf("particles: tol must be positive, got %g", p.Tol)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{
		Layout:  l,
		Params:  p,
		scratch: make([]fields.Vec3, l.NumBoxes()),
		counts:  make([]PushStats, l.NumBoxes()),
		logger:  logger.Named("particles"),
	}
	for k := range c.scratch {
		c.scratch[k] = fields.NewE(l)
	}
	return c, nil
}

func (c *Container) Add(s *Species) { c.Species = append(c.Species, s) }

func (c *Container) Count() int {
	n := 0
	for _, s := range c.Species {
		n += s.Len()
	}
	return n
}

// SavePreStep records the particle state every push of the step restarts from.
func (c *Container) SavePreStep() {
	for _, s := range c.Species {
		s.save()
	}
}

// Restore rolls positions and velocities back to the last SavePreStep.
func (c *Container) Restore() {
	for _, s := range c.Species {
		s.restore()
	}
}

// Checkpoint records the state at the start of a time step. Unlike
// SavePreStep it survives the sub-steps of a retried step.
func (c *Container) Checkpoint() {
	for _, s := range c.Species {
		s.checkpoint()
	}
}

// Rollback returns positions and velocities to the last Checkpoint.
func (c *Container) Rollback() {
	for _, s := range c.Species {
		s.rollback()
	}
}

func (c *Container) LastStats() PushStats { return c.last }

// PushAndDeposit advances every particle from its pre-step state to the half
// step in the fields e (E-centered) and b (B-centered), then deposits the
// half-step current into j. Guard cells of e and b must be filled. Probe
// pushes write to separate half-step buffers; nothing else is modified.
func (c *Container) PushAndDeposit(e, b, j fields.Vec3, dt float64, probe bool) error {
	j.Zero()
	c.last = PushStats{}

	for _, s := range c.Species {
		for k := range c.scratch {
			c.scratch[k].Zero()
			c.counts[k] = PushStats{}
		}
		if len(s.x0) != s.Len() {
			return fmt.Errorf("species %q: push before SavePreStep", s.Name)
		}

		err := c.Layout.ForEachChunk(s.Len(), func(chunk, lo, hi int) error {
			return c.pushChunk(s, e, b, c.scratch[chunk], &c.counts[chunk], dt, probe, lo, hi)
		})
		if err != nil {
			return err
		}

		for k, buf := range c.scratch {
			for d := range 3 {
				dst, src := j[d].V, buf[d].V
				for i := range dst {
					dst[i] += src[i]
				}
			}
			c.last.Particles += c.counts[k].Particles
			c.last.Iterations += c.counts[k].Iterations
			c.last.Unconverged += c.counts[k].Unconverged
		}
	}
	j.SumBoundary()
	j.FillBoundary()

	if c.last.Unconverged > 0 {
		c.logger.Debug("half-step position iteration hit max_iter",
			zap.Int("particles", c.last.Unconverged),
			zap.Bool("probe", probe))
	}
	return nil
}

func (c *Container) pushChunk(s *Species, e, b, jbuf fields.Vec3, st *PushStats, dt float64, probe bool, lo, hi int) error {
	xh, uh := s.half(probe)
	a := s.Charge * dt / (2 * s.Mass)
	h := dt / 2
	tol := c.Params.Tol * c.Layout.Dx

	for p := lo; p < hi; p++ {
		x0 := s.x0[p]
		v0 := [3]float64{s.u0[0][p], s.u0[1][p], s.u0[2][p]}

		v := v0
		x := c.Layout.Wrap(x0 + h*v[0])
		converged := false
		for it := 0; it < c.Params.MaxIter; it++ {
			st.Iterations++
			vn := rotate(v0, fields.GatherVec3(e, x), fields.GatherVec3(b, x), a)
			shift := h * math.Abs(vn[0]-v[0])
			v = vn
			if shift <= tol {
				converged = true
				break
			}
			if it+1 < c.Params.MaxIter {
				x = c.Layout.Wrap(x0 + h*v[0])
			}
		}
		if !converged {
			st.Unconverged++
		}
		if math.IsNaN(v[0]+v[1]+v[2]) || math.IsInf(v[0]+v[1]+v[2], 0) {
			return fmt.Errorf("species %q particle %d: non-finite velocity", s.Name, p)
		}
		st.Particles++

		xh[p] = x
		qw := s.Charge * s.W[p]
		for d := range 3 {
			uh[d][p] = v[d]
			fields.Deposit(jbuf[d], x, qw*v[d])
		}
	}
	return nil
}

// rotate solves v = v0 + a*(E + v x B) for v exactly:
//
//	w = v0 + a E,  t = a B,  v = (w + w x t + (w.t) t) / (1 + |t|^2)
func rotate(v0, e, b [3]float64, a float64) [3]float64 {
	w := [3]float64{v0[0] + a*e[0], v0[1] + a*e[1], v0[2] + a*e[2]}
	t := [3]float64{a * b[0], a * b[1], a * b[2]}
	wt := w[0]*t[0] + w[1]*t[1] + w[2]*t[2]
	tt := t[0]*t[0] + t[1]*t[1] + t[2]*t[2]
	cross := [3]float64{
		w[1]*t[2] - w[2]*t[1],
		w[2]*t[0] - w[0]*t[2],
		w[0]*t[1] - w[1]*t[0],
	}
	inv := 1 / (1 + tt)
	return [3]float64{
		(w[0] + cross[0] + wt*t[0]) * inv,
		(w[1] + cross[1] + wt*t[1]) * inv,
		(w[2] + cross[2] + wt*t[2]) * inv,
	}
}

// Finalize completes the step from the last committed push:
// x = x0 + dt v_h (wrapped), v = 2 v_h - v0.
func (c *Container) Finalize(dt float64) {
	for _, s := range c.Species {
		_ = c.Layout.ForEachChunk(s.Len(), func(_, lo, hi int) error {
			for p := lo; p < hi; p++ {
				s.X[p] = c.Layout.Wrap(s.x0[p] + dt*s.uh[0][p])
				for d := range 3 {
					s.U[d][p] = 2*s.uh[d][p] - s.u0[d][p]
				}
			}
			return nil
		})
	}
}

func (c *Container) KineticEnergy() float64 {
	e := 0.0
	for _, s := range c.Species {
		e += s.KineticEnergy()
	}
	return e
}
