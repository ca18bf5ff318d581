// Package linear holds the linear solvers used for the Newton step. Both work
// on any vector type and see the operator only through an ApplyFunc, so a
// Jacobian never has to be formed unless the solver chooses to build one.
package linear

import (
	"errors"
	"fmt"
)

var (
	ErrNotPackable = errors.New("linear: vector type cannot be packed into a flat array")
	ErrBreakdown   = errors.New("linear: solver breakdown")
	ErrUndefined   = errors.New("linear: solver used before Define")
)

// Vector is the algebra the linear solvers need.
type Vector[V any] interface {
	Clone() V
	Copy(src V)
	Increment(alpha float64, x V)
	LinComb(a float64, x V, b float64, y V)
	Scale(alpha float64)
	Zero()
	Dot(other V) float64
	Norm() float64
}

// Packer flattens a vector into 0-based float64 storage and back.
type Packer interface {
	Len() int
	Pack(dst []float64)
	Unpack(src []float64)
}

// ApplyFunc writes A*v into out.
type ApplyFunc[V any] func(out, v V) error

type Stats struct {
	Iterations int
	Residual   float64
	Converged  bool
}

type Tolerances struct {
	RelTol  float64
	AbsTol  float64
	MaxIter int
}

type Solver[V Vector[V]] interface {
	Name() string
	Define(template V) error
	SetTolerances(tol Tolerances)
	// Solve overwrites x with the solution of A x = b, starting from x.
	Solve(x, b V, apply ApplyFunc[V]) (Stats, error)
	Destroy()
}

type Kind string

const (
	GMRESKind  Kind = "gmres"
	DirectKind Kind = "direct"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case GMRESKind, DirectKind:
		return Kind(s), nil
	case "":
		return GMRESKind, nil
	}
	return "", fmt.Errorf("linear: unknown solver kind %q (want gmres or direct)", s)
}

// New builds a solver of the given kind. restart only applies to GMRES.
func New[V Vector[V]](kind Kind, tol Tolerances, restart int) (Solver[V], error) {
	switch kind {
	case GMRESKind, "":
		g := NewGMRES[V](restart)
		g.SetTolerances(tol)
		return g, nil
	case DirectKind:
		return NewDirect[V](), nil
	}
	return nil, fmt.Errorf("linear: unknown solver kind %q", kind)
}
