// Package analysis drives a configured run: it builds the problem from the
// configuration, advances it step by step and stores the per-step results.
package analysis

import (
	"context"
)

// Result keys stored by every time-domain analysis.
const (
	KeyTime       = "TIME"
	KeyField      = "W_FIELD"
	KeyKinetic    = "W_KINETIC"
	KeyTotal      = "W_TOTAL"
	KeyIterations = "ITERATIONS"
	KeyNorm       = "NORM"
	KeySubSteps   = "SUBSTEPS"
)

type Analysis interface {
	Setup(p *Problem) error
	Execute(ctx context.Context) error
	GetResults() map[string][]float64
}

type BaseAnalysis struct {
	Problem *Problem
	results map[string][]float64 // key: quantity name, value: result by time
}

func NewBaseAnalysis() *BaseAnalysis {
	return &BaseAnalysis{results: make(map[string][]float64)}
}

// StoreTimeResult appends one row. A row at the same time as the last one
// is ignored.
func (a *BaseAnalysis) StoreTimeResult(time float64, solution map[string]float64) {
	if times := a.results[KeyTime]; len(times) > 0 && times[len(times)-1] == time {
		return
	}

	a.results[KeyTime] = append(a.results[KeyTime], time)
	for name, value := range solution {
		a.results[name] = append(a.results[name], value)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}
