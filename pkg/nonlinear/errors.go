package nonlinear

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks setup mistakes: bad parameters, missing operator,
	// incompatible vectors. Never recoverable.
	ErrConfig = errors.New("nonlinear: configuration error")

	// ErrConvergence is returned by callers that choose to treat hitting
	// MaxIter as fatal. Solve itself reports it through Result.Converged.
	ErrConvergence = errors.New("nonlinear: maximum iterations reached without convergence")

	// ErrDivergence marks a residual norm that became NaN or Inf.
	ErrDivergence = errors.New("nonlinear: residual norm is not finite")
)

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("nonlinear: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NewConfigError lets other packages report setup mistakes with the same type.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return configErrorf(field, format, args...)
}

type DivergenceError struct {
	Solver    Kind
	Iteration int
	Norm      float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("nonlinear: %s residual norm %g at iteration %d", e.Solver, e.Norm, e.Iteration)
}

func (e *DivergenceError) Unwrap() error { return ErrDivergence }
