// Package config reads the run configuration. Everything is read once at
// setup; the simulation never consults the file again.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/edp1096/toy-pic/internal/consts"
	"github.com/edp1096/toy-pic/pkg/implicit"
	"github.com/edp1096/toy-pic/pkg/linear"
	"github.com/edp1096/toy-pic/pkg/nonlinear"
	"github.com/edp1096/toy-pic/pkg/particles"
	"github.com/edp1096/toy-pic/pkg/util"
)

type Config struct {
	Grid      GridConfig      `yaml:"grid"`
	Time      TimeConfig      `yaml:"time"`
	Implicit  ImplicitConfig  `yaml:"implicit"`
	Particles ParticlesConfig `yaml:"particles"`
	Init      []InitConfig    `yaml:"init"`
	Diag      DiagConfig      `yaml:"diag"`
	Log       LogConfig       `yaml:"log"`
}

type GridConfig struct {
	NCells  int     `yaml:"ncells"`
	Dx      float64 `yaml:"dx"`
	Guard   int     `yaml:"guard"`
	BoxSize int     `yaml:"box_size"` // 0: one box
}

// TimeConfig sets the step either directly (dt) or as a multiple of the
// explicit light-wave limit dx/c (cfl). dt wins when both are set.
type TimeConfig struct {
	Steps int     `yaml:"steps"`
	Dt    float64 `yaml:"dt"`
	CFL   float64 `yaml:"cfl"`
}

type ImplicitConfig struct {
	// Method crank-nicolson or backward-euler fixes theta; theta (or empty)
	// uses Theta.
	Method     string       `yaml:"method,omitempty"`
	Theta      float64      `yaml:"theta"`
	Solver     string       `yaml:"solver"` // picard, newton
	RelTol     float64      `yaml:"rel_tol"`
	AbsTol     float64      `yaml:"abs_tol"`
	MaxIter    int          `yaml:"max_iter"`
	Verbose    bool         `yaml:"verbose"`
	OnFailure  string       `yaml:"on_failure"` // warn, abort, retry
	MaxRetries int          `yaml:"max_retries"`
	Newton     NewtonConfig `yaml:"newton"`
}

type NewtonConfig struct {
	Linear        string  `yaml:"linear"` // gmres, direct
	KrylovRelTol  float64 `yaml:"krylov_rel_tol"`
	KrylovAbsTol  float64 `yaml:"krylov_abs_tol"`
	KrylovMaxIter int     `yaml:"krylov_max_iter"`
	Restart       int     `yaml:"restart"`
	JacobianDelta float64 `yaml:"jacobian_delta"` // 0: sqrt(machine eps)
}

type ParticlesConfig struct {
	MaxIter int             `yaml:"max_iter"`
	Tol     float64         `yaml:"tol"`
	Seed    uint64          `yaml:"seed"`
	Species []SpeciesConfig `yaml:"species"`
}

type SpeciesConfig struct {
	Name    string     `yaml:"name"`
	Charge  float64    `yaml:"charge"`
	Mass    float64    `yaml:"mass"`
	PerCell int        `yaml:"per_cell"`
	Density float64    `yaml:"density"`
	Vth     float64    `yaml:"vth"`
	Drift   [3]float64 `yaml:"drift,flow"`
}

// InitConfig seeds one field component.
type InitConfig struct {
	Component string  `yaml:"component"` // Ex..Ez, Bx..Bz
	Shape     string  `yaml:"shape"`     // sine, alternating
	Mode      int     `yaml:"mode"`
	Amplitude float64 `yaml:"amplitude"`
}

type DiagConfig struct {
	Interval     int     `yaml:"interval"`
	EnergyPlot   string  `yaml:"energy_plot"`
	ResidualPlot string  `yaml:"residual_plot"`
	ChecksumOut  string  `yaml:"checksum_out"`
	Benchmark    string  `yaml:"benchmark"`
	RTol         float64 `yaml:"rtol"`
	ATol         float64 `yaml:"atol"`
}

type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

var (
	ValidSolvers    = []string{string(nonlinear.PicardKind), string(nonlinear.NewtonKind)}
	ValidComponents = []string{"Ex", "Ey", "Ez", "Bx", "By", "Bz"}
	ValidShapes     = []string{"sine", "alternating"}
)

func DefaultConfig() *Config {
	return &Config{
		Grid: GridConfig{NCells: 64, Dx: 1e-3, Guard: 2, BoxSize: 16},
		Time: TimeConfig{Steps: 100, CFL: 10},
		Implicit: ImplicitConfig{
			Theta:      0.5,
			Solver:     string(nonlinear.NewtonKind),
			RelTol:     1e-12,
			AbsTol:     1e-30,
			MaxIter:    20,
			OnFailure:  string(implicit.Warn),
			MaxRetries: 3,
			Newton: NewtonConfig{
				Linear:        string(linear.GMRESKind),
				KrylovRelTol:  1e-4,
				KrylovMaxIter: 200,
				Restart:       linear.DefaultRestart,
			},
		},
		Particles: ParticlesConfig{
			MaxIter: particles.DefaultPushParams().MaxIter,
			Tol:     particles.DefaultPushParams().Tol,
			Seed:    1,
		},
		Init: []InitConfig{
			{Component: "Ey", Shape: "sine", Mode: 1, Amplitude: 1},
		},
		Diag: DiagConfig{Interval: 10, RTol: 1e-9, ATol: 1e-40},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Parse decodes YAML over cfg. Unknown keys are an error; an empty document
// leaves cfg unchanged.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("TOYPIC_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if solver := os.Getenv("TOYPIC_SOLVER"); solver != "" {
		c.Implicit.Solver = solver
	}
}

// Dt is the configured time step in seconds.
func (c *Config) Dt() float64 {
	if c.Time.Dt > 0 {
		return c.Time.Dt
	}
	return c.Time.CFL * c.Grid.Dx / consts.CLIGHT
}

// Theta is the time-centering parameter after applying Method.
func (c *Config) Theta() float64 {
	m, err := util.ParseMethod(c.Implicit.Method)
	if err != nil {
		return c.Implicit.Theta
	}
	return util.MethodTheta(m, c.Implicit.Theta)
}

func (c *Config) SolverConfig() nonlinear.Config {
	ic := c.Implicit
	return nonlinear.Config{
		Kind:    nonlinear.Kind(ic.Solver),
		Params:  nonlinear.Params{RelTol: ic.RelTol, AbsTol: ic.AbsTol, MaxIter: ic.MaxIter},
		Verbose: ic.Verbose,
		Newton: nonlinear.NewtonParams{
			Linear:        linear.Kind(ic.Newton.Linear),
			KrylovRelTol:  ic.Newton.KrylovRelTol,
			KrylovAbsTol:  ic.Newton.KrylovAbsTol,
			KrylovMaxIter: ic.Newton.KrylovMaxIter,
			Restart:       ic.Newton.Restart,
			JacobianDelta: ic.Newton.JacobianDelta,
		},
	}
}

func (c *Config) PushParams() particles.PushParams {
	return particles.PushParams{MaxIter: c.Particles.MaxIter, Tol: c.Particles.Tol}
}

func (s SpeciesConfig) LoadSpec() particles.LoadSpec {
	return particles.LoadSpec{
		Name:    s.Name,
		Charge:  s.Charge,
		Mass:    s.Mass,
		PerCell: s.PerCell,
		Density: s.Density,
		Vth:     s.Vth,
		Drift:   s.Drift,
	}
}

// Validate reports the first invalid setting as a *nonlinear.ConfigError.
func (c *Config) Validate() error {
	g := c.Grid
	if g.NCells < 1 {
		return bad("grid.ncells", "must be at least 1, got %d", g.NCells)
	}
	if !(g.Dx > 0) {
		return bad("grid.dx", "must be positive, got %g", g.Dx)
	}
	if g.Guard < 1 || g.Guard > g.NCells {
		return bad("grid.guard", "must be in [1, ncells], got %d", g.Guard)
	}
	if g.BoxSize < 0 {
		return bad("grid.box_size", "must not be negative, got %d", g.BoxSize)
	}

	if c.Time.Steps < 0 {
		return bad("time.steps", "must not be negative, got %d", c.Time.Steps)
	}
	if !(c.Dt() > 0) {
		return bad("time.dt", "set dt or cfl to a positive value")
	}

	ic := c.Implicit
	if _, err := util.ParseMethod(ic.Method); err != nil {
		return bad("implicit.method", "%v", err)
	}
	if err := util.ValidateTheta(c.Theta()); err != nil {
		return bad("implicit.theta", "%v", err)
	}
	if _, err := nonlinear.ParseKind(ic.Solver); err != nil {
		return bad("implicit.solver", "unknown solver %q (valid: %v)", ic.Solver, ValidSolvers)
	}
	sc := c.SolverConfig()
	if err := sc.Params.Validate(); err != nil {
		return prefix("implicit.", err)
	}
	if sc.Kind == nonlinear.NewtonKind {
		if err := sc.Newton.Validate(); err != nil {
			return prefix("implicit.", err)
		}
	}
	if _, err := implicit.ParsePolicy(ic.OnFailure); err != nil {
		return prefix("implicit.", err)
	}
	if ic.MaxRetries < 0 {
		return bad("implicit.max_retries", "must not be negative, got %d", ic.MaxRetries)
	}

	p := c.Particles
	if p.MaxIter < 1 {
		return bad("particles.max_iter", "must be at least 1, got %d", p.MaxIter)
	}
	if !(p.Tol > 0) {
		return bad("particles.tol", "must be positive, got %g", p.Tol)
	}
	seen := make(map[string]bool)
	for i, s := range p.Species {
		field := fmt.Sprintf("particles.species[%d]", i)
		if s.Name == "" {
			return bad(field+".name", "must not be empty")
		}
		if seen[s.Name] {
			return bad(field+".name", "duplicate species %q", s.Name)
		}
		seen[s.Name] = true
		if !(s.Mass > 0) {
			return bad(field+".mass", "must be positive, got %g", s.Mass)
		}
		if s.PerCell < 0 {
			return bad(field+".per_cell", "must not be negative, got %d", s.PerCell)
		}
		if s.Density < 0 || s.Vth < 0 {
			return bad(field, "density and vth must not be negative")
		}
	}

	for i, in := range c.Init {
		field := fmt.Sprintf("init[%d]", i)
		if !slices.Contains(ValidComponents, in.Component) {
			return bad(field+".component", "unknown component %q (valid: %v)", in.Component, ValidComponents)
		}
		if in.Shape != "" && !slices.Contains(ValidShapes, in.Shape) {
			return bad(field+".shape", "unknown shape %q (valid: %v)", in.Shape, ValidShapes)
		}
		if in.Mode < 0 {
			return bad(field+".mode", "must not be negative, got %d", in.Mode)
		}
	}

	d := c.Diag
	if d.Interval < 0 {
		return bad("diag.interval", "must not be negative, got %d", d.Interval)
	}
	if d.RTol < 0 || d.ATol < 0 {
		return bad("diag", "rtol and atol must not be negative")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return bad("log.level", "%v", err)
	}
	return nil
}

func bad(field, format string, args ...any) error {
	return nonlinear.NewConfigError(field, format, args...)
}

// prefix qualifies the field of a ConfigError raised by a lower layer.
func prefix(p string, err error) error {
	var ce *nonlinear.ConfigError
	if errors.As(err, &ce) {
		return nonlinear.NewConfigError(p+ce.Field, "%s", ce.Reason)
	}
	return err
}
