// Package diag records run diagnostics: the energy history, per-step solver
// statistics, checksums for regression runs and PNG charts of both.
package diag

import (
	"math"
)

// Sample is one row of the energy history.
type Sample struct {
	Step       int
	Time       float64
	Field      float64
	Kinetic    float64
	Iterations int
	Converged  bool
	Residual   float64
}

func (s Sample) Total() float64 { return s.Field + s.Kinetic }

// History keeps every recorded sample plus the residual history of the most
// recent nonlinear solve.
type History struct {
	Samples  []Sample
	Residual []float64
}

func (h *History) Record(s Sample) {
	h.Samples = append(h.Samples, s)
}

func (h *History) Len() int { return len(h.Samples) }

// Drift is the largest |W - W0|/|W0| of the total energy so far.
func (h *History) Drift() float64 {
	if len(h.Samples) == 0 {
		return 0
	}
	w0 := h.Samples[0].Total()
	if w0 == 0 {
		return 0
	}
	d := 0.0
	for _, s := range h.Samples[1:] {
		d = math.Max(d, math.Abs(s.Total()-w0)/math.Abs(w0))
	}
	return d
}

// Unconverged counts recorded steps whose solve stopped at the iteration
// limit.
func (h *History) Unconverged() int {
	n := 0
	for _, s := range h.Samples {
		if s.Step > 0 && !s.Converged {
			n++
		}
	}
	return n
}

// MeanIterations is the average nonlinear iteration count over the recorded
// steps; the initial sample is not a step.
func (h *History) MeanIterations() float64 {
	total, n := 0, 0
	for _, s := range h.Samples {
		if s.Step == 0 {
			continue
		}
		total += s.Iterations
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}
