package diag

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edp1096/toy-pic/pkg/fields"
	"github.com/edp1096/toy-pic/pkg/grid"
	"github.com/edp1096/toy-pic/pkg/particles"
)

func newLayout(t *testing.T) *grid.Layout {
	t.Helper()
	l, err := grid.NewLayout(8, 0.1, 2, 4)
	require.NoError(t, err)
	return l
}

func TestHistoryStatistics(t *testing.T) {
	h := &History{}
	assert.Zero(t, h.Drift())
	assert.Zero(t, h.MeanIterations())

	h.Record(Sample{Step: 0, Field: 2, Kinetic: 2})
	h.Record(Sample{Step: 1, Field: 1, Kinetic: 3.04, Iterations: 3, Converged: true})
	h.Record(Sample{Step: 2, Field: 3.9, Kinetic: 0, Iterations: 5, Converged: false})

	assert.Equal(t, 3, h.Len())
	assert.InDelta(t, 0.025, h.Drift(), 1e-12)
	assert.Equal(t, 1, h.Unconverged())
	assert.Equal(t, 4.0, h.MeanIterations())
}

func TestChecksumOfState(t *testing.T) {
	l := newLayout(t)
	f := fields.New(l)
	f.E[fields.Y].Set(0, -2)
	f.E[fields.Y].Set(3, 1)
	f.B[fields.Z].Set(7, 0.5)
	f.E.FillBoundary()
	f.B.FillBoundary()

	pc, err := particles.NewContainer(l, particles.DefaultPushParams(), zap.NewNop())
	require.NoError(t, err)
	s, err := particles.NewSpecies("ions", 1, 4)
	require.NoError(t, err)
	s.Append(0.15, [3]float64{1, -2, 0}, 3)
	s.Append(0.45, [3]float64{-1, 0, 0.5}, 3)
	pc.Add(s)

	c := ComputeChecksum("case", f, pc)
	_, err = uuid.Parse(c.RunID)
	require.NoError(t, err)

	// Guard copies of the same points must not count twice.
	assert.Equal(t, 3.0, c.Data[FieldKey]["Ey"])
	assert.Equal(t, 0.5, c.Data[FieldKey]["Bz"])
	assert.Zero(t, c.Data[FieldKey]["Jx"])
	assert.Len(t, c.Data[FieldKey], 9)

	ions := c.Data["ions"]
	assert.InDelta(t, 0.6, ions["particle_position_x"], 1e-15)
	assert.Equal(t, 8.0, ions["particle_momentum_x"])
	assert.Equal(t, 8.0, ions["particle_momentum_y"])
	assert.Equal(t, 2.0, ions["particle_momentum_z"])
	assert.Equal(t, 6.0, ions["particle_weight"])
}

func TestChecksumFileRoundTrip(t *testing.T) {
	c := &Checksum{
		RunID: uuid.NewString(),
		Name:  "vacuum",
		Data:  map[string]map[string]float64{FieldKey: {"Ex": 1.25, "By": 3e-9}},
	}
	path := filepath.Join(t.TempDir(), "bench", "vacuum.json")
	require.NoError(t, c.WriteFile(path))

	got, err := ReadChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
	assert.NoError(t, got.Evaluate(c, 0, 0))
}

func TestReadChecksumErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadChecksum(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"x"}`), 0644))
	_, err = ReadChecksum(path)
	assert.ErrorContains(t, err, "no data")
}

func TestEvaluate(t *testing.T) {
	bench := &Checksum{Data: map[string]map[string]float64{
		FieldKey:    {"Ex": 100, "Ey": 0},
		"electrons": {"particle_weight": 5},
	}}

	tests := []struct {
		name  string
		data  map[string]map[string]float64
		rtol  float64
		atol  float64
		count int
	}{
		{"exact", map[string]map[string]float64{
			FieldKey: {"Ex": 100, "Ey": 0}, "electrons": {"particle_weight": 5},
		}, 1e-9, 1e-40, 0},
		{"within rtol", map[string]map[string]float64{
			FieldKey: {"Ex": 100 + 1e-8, "Ey": 0}, "electrons": {"particle_weight": 5},
		}, 1e-9, 1e-40, 0},
		{"zero needs atol", map[string]map[string]float64{
			FieldKey: {"Ex": 100, "Ey": 1e-30}, "electrons": {"particle_weight": 5},
		}, 1e-9, 1e-40, 1},
		{"atol covers zero", map[string]map[string]float64{
			FieldKey: {"Ex": 100, "Ey": 1e-30}, "electrons": {"particle_weight": 5},
		}, 1e-9, 1e-20, 0},
		{"every mismatch reported", map[string]map[string]float64{
			FieldKey: {"Ex": 101, "Ey": 1}, "electrons": {"particle_weight": 6},
		}, 1e-9, 1e-40, 3},
		{"missing species", map[string]map[string]float64{
			FieldKey: {"Ex": 100, "Ey": 0},
		}, 1e-9, 1e-40, 1},
		{"extra key", map[string]map[string]float64{
			FieldKey: {"Ex": 100, "Ey": 0, "Ez": 0}, "electrons": {"particle_weight": 5},
		}, 1e-9, 1e-40, 1},
		{"nan", map[string]map[string]float64{
			FieldKey: {"Ex": math.NaN(), "Ey": 0}, "electrons": {"particle_weight": 5},
		}, 1e-9, 1e-40, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Checksum{Data: tt.data}
			err := c.Evaluate(bench, tt.rtol, tt.atol)
			if tt.count == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrChecksum)
			var me *MismatchError
			require.ErrorAs(t, err, &me)
			assert.Len(t, me.Mismatches, tt.count)
		})
	}
}

func TestMismatchMessages(t *testing.T) {
	c := &Checksum{Data: map[string]map[string]float64{FieldKey: {"Ex": 2, "Bz": 1}}}
	bench := &Checksum{Data: map[string]map[string]float64{FieldKey: {"Ex": 1, "By": 1}}}
	err := c.Evaluate(bench, 1e-9, 1e-40)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[lev=0,By] missing from run")
	assert.Contains(t, err.Error(), "[lev=0,Bz] not in benchmark")
	assert.Contains(t, err.Error(), "[lev=0,Ex] benchmark")
	assert.Contains(t, err.Error(), "3 mismatch(es)")
}

func TestPlots(t *testing.T) {
	dir := t.TempDir()
	h := &History{Residual: []float64{1, 1e-3, 0, 1e-9}}
	for i := range 5 {
		h.Record(Sample{Step: i, Time: float64(i) * 1e-12, Field: 1 - 0.1*float64(i), Kinetic: 0.1 * float64(i)})
	}

	energy := filepath.Join(dir, "plots", "energy.png")
	require.NoError(t, PlotEnergy(h, energy))
	st, err := os.Stat(energy)
	require.NoError(t, err)
	assert.Positive(t, st.Size())

	residual := filepath.Join(dir, "plots", "residual.png")
	require.NoError(t, PlotResidual(h.Residual, residual))
	_, err = os.Stat(residual)
	require.NoError(t, err)

	assert.Error(t, PlotEnergy(&History{}, energy))
	assert.Error(t, PlotResidual([]float64{0, 0}, residual))
}
