package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pic/pkg/diag"
	"github.com/edp1096/toy-pic/pkg/util"
)

var ErrNotSetup = errors.New("analysis: problem not set")

// Transient advances the problem a fixed number of equal steps.
type Transient struct {
	BaseAnalysis
	time     float64
	timeStep float64
	steps    int
	interval int // log every interval steps; 0 logs only the summary

	history diag.History
}

func NewTransient(steps int, timeStep float64, interval int) *Transient {
	return &Transient{
		BaseAnalysis: *NewBaseAnalysis(),
		timeStep:     timeStep,
		steps:        steps,
		interval:     interval,
	}
}

// NewTransientFromConfig takes steps, dt and the log interval from the
// problem's configuration.
func NewTransientFromConfig(p *Problem) *Transient {
	cfg := p.Config
	return NewTransient(cfg.Time.Steps, cfg.Dt(), cfg.Diag.Interval)
}

func (tr *Transient) Setup(p *Problem) error {
	if p == nil || p.Scheme == nil {
		return ErrNotSetup
	}
	if tr.steps < 0 {
		return fmt.Errorf("analysis: steps must not be negative, got %d", tr.steps)
	}
	if !(tr.timeStep > 0) {
		return fmt.Errorf("analysis: time step must be positive, got %g", tr.timeStep)
	}
	tr.Problem = p
	tr.time = 0
	tr.history = diag.History{}
	tr.results = make(map[string][]float64)

	tr.record(0, 0, true, 0, 1)
	return nil
}

// Execute runs every step. Cancelling ctx stops the run between steps; the
// fields and particles then hold the last completed step.
func (tr *Transient) Execute(ctx context.Context) error {
	if tr.Problem == nil {
		return ErrNotSetup
	}
	log := tr.Problem.Logger.Named("transient")

	for step := 1; step <= tr.steps; step++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("analysis: stopped before step %d: %w", step, err)
		}

		rep, err := tr.Problem.Scheme.OneStep(tr.time, tr.timeStep, step)
		if err != nil {
			return err
		}
		tr.time += tr.timeStep
		tr.history.Residual = rep.History

		tr.record(step, rep.Iterations, rep.Converged, rep.Norm, rep.SubSteps)

		if tr.interval > 0 && step%tr.interval == 0 {
			s := tr.history.Samples[len(tr.history.Samples)-1]
			log.Info("step",
				zap.Int("step", step),
				zap.String("time", util.FormatValueFactor(tr.time, "s")),
				zap.Int("iterations", rep.Iterations),
				zap.Int("sub_steps", rep.SubSteps),
				zap.String("norm", util.FormatNorm(rep.Norm)),
				zap.Float64("energy", s.Total()),
				zap.String("drift", util.FormatRatio(tr.history.Drift())))
		}
	}

	log.Info("run complete",
		zap.Int("steps", tr.steps),
		zap.String("time", util.FormatValueFactor(tr.time, "s")),
		zap.Float64("mean_iterations", tr.history.MeanIterations()),
		zap.Int("unconverged", tr.history.Unconverged()),
		zap.String("drift", util.FormatRatio(tr.history.Drift())))
	return nil
}

func (tr *Transient) record(step, iterations int, converged bool, norm float64, subSteps int) {
	p := tr.Problem
	s := diag.Sample{
		Step:       step,
		Time:       tr.time,
		Field:      p.Fields.Energy(),
		Kinetic:    p.KineticEnergy(),
		Iterations: iterations,
		Converged:  converged,
		Residual:   norm,
	}
	tr.history.Record(s)
	tr.StoreTimeResult(tr.time, map[string]float64{
		KeyField:      s.Field,
		KeyKinetic:    s.Kinetic,
		KeyTotal:      s.Total(),
		KeyIterations: float64(iterations),
		KeyNorm:       norm,
		KeySubSteps:   float64(subSteps),
	})
}

func (tr *Transient) Time() float64 { return tr.time }

func (tr *Transient) History() *diag.History { return &tr.history }

// WriteDiagnostics writes whatever the diag section asks for: plots, the
// checksum, and the benchmark comparison. A benchmark mismatch is returned
// after every output has been written.
func (tr *Transient) WriteDiagnostics(name string) error {
	if tr.Problem == nil {
		return ErrNotSetup
	}
	p := tr.Problem
	dc := p.Config.Diag

	if dc.EnergyPlot != "" {
		if err := diag.PlotEnergy(&tr.history, dc.EnergyPlot); err != nil {
			return err
		}
	}
	if dc.ResidualPlot != "" && len(tr.history.Residual) > 0 {
		if err := diag.PlotResidual(tr.history.Residual, dc.ResidualPlot); err != nil {
			return err
		}
	}
	if dc.ChecksumOut == "" && dc.Benchmark == "" {
		return nil
	}

	sum := diag.ComputeChecksum(name, p.Fields, p.Particles)
	if dc.ChecksumOut != "" {
		if err := sum.WriteFile(dc.ChecksumOut); err != nil {
			return err
		}
		p.Logger.Info("wrote checksum", zap.String("path", dc.ChecksumOut), zap.String("run_id", sum.RunID))
	}
	if dc.Benchmark != "" {
		bench, err := diag.ReadChecksum(dc.Benchmark)
		if err != nil {
			return err
		}
		if err := sum.Evaluate(bench, dc.RTol, dc.ATol); err != nil {
			return err
		}
		p.Logger.Info("checksum matches benchmark", zap.String("benchmark", dc.Benchmark))
	}
	return nil
}
