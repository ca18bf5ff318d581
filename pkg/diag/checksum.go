package diag

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/edp1096/toy-pic/pkg/fields"
	"github.com/edp1096/toy-pic/pkg/particles"
)

var ErrChecksum = errors.New("diag: checksum does not match benchmark")

// FieldKey is the outer key holding the field checksums.
const FieldKey = "lev=0"

// Checksum holds sum(|Q|) for every field component and every particle
// quantity, keyed by outer group (fields or species name) then quantity.
type Checksum struct {
	RunID string                        `json:"run_id"`
	Name  string                        `json:"name"`
	Data  map[string]map[string]float64 `json:"data"`
}

func ComputeChecksum(name string, f *fields.Fields, pc *particles.Container) *Checksum {
	c := &Checksum{
		RunID: uuid.NewString(),
		Name:  name,
		Data:  make(map[string]map[string]float64),
	}

	fd := make(map[string]float64)
	for d := range 3 {
		fd[fields.EIDs[d]] = absSum(f.E[d].Valid())
		fd[fields.BIDs[d]] = absSum(f.B[d].Valid())
		fd[fields.JIDs[d]] = absSum(f.J[d].Valid())
	}
	c.Data[FieldKey] = fd

	if pc == nil {
		return c
	}
	axes := [3]string{"x", "y", "z"}
	for _, s := range pc.Species {
		sd := map[string]float64{
			"particle_position_x": absSum(s.X),
			"particle_weight":     absSum(s.W),
		}
		for d := range 3 {
			sd["particle_momentum_"+axes[d]] = s.Mass * absSum(s.U[d])
		}
		c.Data[s.Name] = sd
	}
	return c
}

func absSum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += math.Abs(x)
	}
	return s
}

func (c *Checksum) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checksum directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checksum: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	return nil
}

func ReadChecksum(path string) (*Checksum, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checksum: %w", err)
	}
	c := &Checksum{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse checksum %s: %w", path, err)
	}
	if c.Data == nil {
		return nil, fmt.Errorf("checksum %s has no data", path)
	}
	return c, nil
}

// Mismatch is one quantity outside tolerance, or a key present on only one
// side (the missing value is NaN).
type Mismatch struct {
	Outer     string
	Inner     string
	Benchmark float64
	Got       float64
}

func (m Mismatch) String() string {
	if math.IsNaN(m.Benchmark) {
		return fmt.Sprintf("[%s,%s] not in benchmark", m.Outer, m.Inner)
	}
	if math.IsNaN(m.Got) {
		return fmt.Sprintf("[%s,%s] missing from run", m.Outer, m.Inner)
	}
	abs := math.Abs(m.Got - m.Benchmark)
	s := fmt.Sprintf("[%s,%s] benchmark %.15e got %.15e abs err %.2e", m.Outer, m.Inner, m.Benchmark, m.Got, abs)
	if m.Benchmark != 0 {
		s += fmt.Sprintf(" rel err %.2e", abs/math.Abs(m.Benchmark))
	}
	return s
}

type MismatchError struct {
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	lines := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		lines[i] = m.String()
	}
	return fmt.Sprintf("%v: %d mismatch(es)\n  %s", ErrChecksum, len(e.Mismatches), strings.Join(lines, "\n  "))
}

func (e *MismatchError) Unwrap() error { return ErrChecksum }

// Evaluate compares c against bench with |got - want| <= atol + rtol*|want|
// and reports every key that differs, in sorted order.
func (c *Checksum) Evaluate(bench *Checksum, rtol, atol float64) error {
	var out []Mismatch
	outer := slices.Sorted(maps.Keys(union(c.Data, bench.Data)))
	for _, k1 := range outer {
		got, want := c.Data[k1], bench.Data[k1]
		for _, k2 := range slices.Sorted(maps.Keys(union(got, want))) {
			g, gok := got[k2]
			w, wok := want[k2]
			switch {
			case !wok:
				out = append(out, Mismatch{Outer: k1, Inner: k2, Benchmark: math.NaN(), Got: g})
			case !gok:
				out = append(out, Mismatch{Outer: k1, Inner: k2, Benchmark: w, Got: math.NaN()})
			case !(math.Abs(g-w) <= atol+rtol*math.Abs(w)):
				out = append(out, Mismatch{Outer: k1, Inner: k2, Benchmark: w, Got: g})
			}
		}
	}
	if len(out) > 0 {
		return &MismatchError{Mismatches: out}
	}
	return nil
}

func union[V any](a, b map[string]V) map[string]struct{} {
	u := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		u[k] = struct{}{}
	}
	for k := range b {
		u[k] = struct{}{}
	}
	return u
}
