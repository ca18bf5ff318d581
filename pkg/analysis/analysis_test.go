package analysis

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/edp1096/toy-pic/internal/consts"
	"github.com/edp1096/toy-pic/pkg/config"
	"github.com/edp1096/toy-pic/pkg/diag"
	"github.com/edp1096/toy-pic/pkg/hooks"
	"github.com/edp1096/toy-pic/pkg/implicit"
	"github.com/edp1096/toy-pic/pkg/nonlinear"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func smallConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Grid = config.GridConfig{NCells: 16, Dx: 1e-2, Guard: 2, BoxSize: 4}
	cfg.Time = config.TimeConfig{Steps: 10, CFL: 2}
	cfg.Diag.Interval = 5
	return cfg
}

func run(t *testing.T, cfg *config.Config) *Transient {
	t.Helper()
	p, err := Build(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	tr := NewTransientFromConfig(p)
	require.NoError(t, tr.Setup(p))
	require.NoError(t, tr.Execute(context.Background()))
	return tr
}

func relDiff(a, b float64) float64 { return math.Abs(a-b) / math.Abs(b) }

func TestVacuumRun(t *testing.T) {
	cfg := smallConfig()
	tr := run(t, cfg)

	res := tr.GetResults()
	require.Len(t, res[KeyTime], cfg.Time.Steps+1)
	assert.Zero(t, res[KeyTime][0])
	assert.InEpsilon(t, float64(cfg.Time.Steps)*cfg.Dt(), tr.Time(), 1e-12)

	total := res[KeyTotal]
	assert.Positive(t, total[0])
	assert.Less(t, relDiff(total[len(total)-1], total[0]), 1e-8)
	assert.Zero(t, res[KeyKinetic][cfg.Time.Steps])

	h := tr.History()
	assert.Equal(t, cfg.Time.Steps+1, h.Len())
	assert.Zero(t, h.Unconverged())
	assert.Positive(t, h.MeanIterations())
	assert.NotEmpty(t, h.Residual)
	for _, n := range res[KeySubSteps] {
		assert.Equal(t, 1.0, n)
	}
}

func TestPlasmaRun(t *testing.T) {
	cfg := smallConfig()
	cfg.Time.Steps = 4
	cfg.Init[0].Amplitude = 100
	cfg.Particles.Species = []config.SpeciesConfig{{
		Name: "electrons", Charge: -consts.CHARGE, Mass: consts.EMASS,
		PerCell: 4, Density: 1e12, Vth: 1e5,
	}}
	tr := run(t, cfg)

	p := tr.Problem
	require.NotNil(t, p.Particles)
	assert.Equal(t, 64, p.Particles.Count())

	res := tr.GetResults()
	kinetic := res[KeyKinetic]
	assert.Positive(t, kinetic[0])
	assert.NotEqual(t, kinetic[0], kinetic[len(kinetic)-1])

	total := res[KeyTotal]
	assert.Less(t, relDiff(total[len(total)-1], total[0]), 1e-6)
}

func TestChecksumAgainstBenchmark(t *testing.T) {
	dir := t.TempDir()
	bench := filepath.Join(dir, "bench", "vacuum.json")

	cfg := smallConfig()
	cfg.Diag.ChecksumOut = bench
	cfg.Diag.EnergyPlot = filepath.Join(dir, "energy.png")
	cfg.Diag.ResidualPlot = filepath.Join(dir, "residual.png")
	tr := run(t, cfg)
	require.NoError(t, tr.WriteDiagnostics("vacuum"))
	for _, f := range []string{bench, cfg.Diag.EnergyPlot, cfg.Diag.ResidualPlot} {
		_, err := os.Stat(f)
		require.NoError(t, err, f)
	}

	// Same configuration again: identical result.
	cfg = smallConfig()
	cfg.Diag.Benchmark = bench
	tr = run(t, cfg)
	assert.NoError(t, tr.WriteDiagnostics("vacuum"))

	cfg = smallConfig()
	cfg.Init[0].Amplitude = 2
	cfg.Diag.Benchmark = bench
	tr = run(t, cfg)
	err := tr.WriteDiagnostics("vacuum")
	require.ErrorIs(t, err, diag.ErrChecksum)
	assert.Contains(t, err.Error(), "[lev=0,Ey]")
}

func TestRunIsIndependentOfBoxSize(t *testing.T) {
	a := smallConfig()
	a.Time.Steps = 3
	b := smallConfig()
	b.Time.Steps = 3
	b.Grid.BoxSize = 0

	ra, rb := run(t, a), run(t, b)
	sa := diag.ComputeChecksum("a", ra.Problem.Fields, nil)
	sb := diag.ComputeChecksum("b", rb.Problem.Fields, nil)
	assert.NoError(t, sa.Evaluate(sb, 1e-8, 1e-20))
}

func TestExecuteCancelled(t *testing.T) {
	p, err := Build(smallConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	tr := NewTransientFromConfig(p)
	require.NoError(t, tr.Setup(p))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = tr.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, tr.GetResults()[KeyTime], 1)
}

func TestHooksInstalledOnProblem(t *testing.T) {
	p, err := Build(smallConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	var before, after []int
	require.NoError(t, p.Hooks.Install(hooks.BeforeStep, func(info hooks.Info) error {
		before = append(before, info.Step)
		return nil
	}))
	require.NoError(t, p.Hooks.Install(hooks.AfterStep, func(info hooks.Info) error {
		after = append(after, info.Step)
		return nil
	}))

	tr := NewTransient(3, p.Config.Dt(), 0)
	require.NoError(t, tr.Setup(p))
	require.NoError(t, tr.Execute(context.Background()))
	assert.Equal(t, []int{1, 2, 3}, before)
	assert.Equal(t, []int{1, 2, 3}, after)
}

func TestAbortPolicyStopsRun(t *testing.T) {
	cfg := smallConfig()
	cfg.Time.CFL = 10
	cfg.Implicit.Solver = "picard"
	cfg.Implicit.MaxIter = 1
	cfg.Implicit.OnFailure = "abort"

	p, err := Build(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	w0 := p.Fields.Energy()

	tr := NewTransientFromConfig(p)
	require.NoError(t, tr.Setup(p))
	err = tr.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, implicit.IsConvergenceFailure(err))
	var se *implicit.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Step)

	assert.Equal(t, w0, p.Fields.Energy())
	assert.Len(t, tr.GetResults()[KeyTime], 1)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Grid.NCells = 0
	_, err := Build(cfg, nil)
	assert.ErrorIs(t, err, nonlinear.ErrConfig)
}

func TestSetupChecks(t *testing.T) {
	tr := NewTransient(1, 1e-12, 0)
	assert.ErrorIs(t, tr.Setup(nil), ErrNotSetup)
	assert.ErrorIs(t, tr.Execute(context.Background()), ErrNotSetup)
	assert.ErrorIs(t, tr.WriteDiagnostics("x"), ErrNotSetup)

	p, err := Build(smallConfig(), nil)
	require.NoError(t, err)
	assert.Error(t, NewTransient(-1, 1e-12, 0).Setup(p))
	assert.Error(t, NewTransient(1, 0, 0).Setup(p))
}

func TestStoreTimeResultIgnoresRepeatedTime(t *testing.T) {
	a := NewBaseAnalysis()
	a.StoreTimeResult(0, map[string]float64{KeyTotal: 1})
	a.StoreTimeResult(1e-12, map[string]float64{KeyTotal: 2})
	a.StoreTimeResult(1e-12, map[string]float64{KeyTotal: 3})

	res := a.GetResults()
	assert.Equal(t, []float64{0, 1e-12}, res[KeyTime])
	assert.Equal(t, []float64{1, 2}, res[KeyTotal])
}

func TestPrintResults(t *testing.T) {
	cfg := smallConfig()
	cfg.Time.Steps = 2
	tr := run(t, cfg)

	var buf bytes.Buffer
	PrintResults(&buf, tr.GetResults())
	out := buf.String()
	assert.Contains(t, out, "Transient Results (3 time points)")
	assert.Contains(t, out, "W_total")
}
