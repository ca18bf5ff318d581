package analysis

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pic/pkg/config"
	"github.com/edp1096/toy-pic/pkg/fields"
	"github.com/edp1096/toy-pic/pkg/grid"
	"github.com/edp1096/toy-pic/pkg/hooks"
	"github.com/edp1096/toy-pic/pkg/implicit"
	"github.com/edp1096/toy-pic/pkg/particles"
)

// Problem is everything a run owns. Particles is nil for a vacuum run.
type Problem struct {
	Config    *config.Config
	Layout    *grid.Layout
	Fields    *fields.Fields
	Particles *particles.Container
	Hooks     *hooks.Table
	Scheme    *implicit.Scheme
	Logger    *zap.Logger
}

// Build validates cfg and sets up the mesh, initial fields, particles and
// the implicit scheme. Hooks may be installed on the returned table until
// the first step.
func Build(cfg *config.Config, logger *zap.Logger) (*Problem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := cfg.Grid
	layout, err := grid.NewLayout(g.NCells, g.Dx, g.Guard, g.BoxSize)
	if err != nil {
		return nil, err
	}
	p := &Problem{
		Config: cfg,
		Layout: layout,
		Fields: fields.New(layout),
		Hooks:  hooks.NewTable(),
		Logger: logger,
	}

	for i, ic := range cfg.Init {
		d, err := p.component(ic.Component)
		if err != nil {
			return nil, fmt.Errorf("init[%d]: %w", i, err)
		}
		switch ic.Shape {
		case "alternating":
			fields.InitAlternating(d, ic.Amplitude)
		default:
			fields.InitMode(d, ic.Mode, ic.Amplitude)
		}
	}

	if len(cfg.Particles.Species) > 0 {
		p.Particles, err = particles.NewContainer(layout, cfg.PushParams(), logger)
		if err != nil {
			return nil, err
		}
		for _, sc := range cfg.Particles.Species {
			s, err := particles.Load(layout, sc.LoadSpec(), cfg.Particles.Seed)
			if err != nil {
				return nil, err
			}
			p.Particles.Add(s)
			logger.Info("loaded species",
				zap.String("name", s.Name),
				zap.Int("particles", s.Len()))
		}
	}

	p.Scheme, err = implicit.New(p.Fields, p.Particles, implicit.Options{
		Theta:      cfg.Theta(),
		Solver:     cfg.SolverConfig(),
		OnFailure:  implicit.FailurePolicy(cfg.Implicit.OnFailure),
		MaxRetries: cfg.Implicit.MaxRetries,
		Hooks:      p.Hooks,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Problem) component(id string) (*grid.Data, error) {
	for d := range 3 {
		switch id {
		case fields.EIDs[d]:
			return p.Fields.E[d], nil
		case fields.BIDs[d]:
			return p.Fields.B[d], nil
		}
	}
	return nil, fmt.Errorf("unknown field component %q", id)
}

// KineticEnergy is zero for a vacuum run.
func (p *Problem) KineticEnergy() float64 {
	if p.Particles == nil {
		return 0
	}
	return p.Particles.KineticEnergy()
}
