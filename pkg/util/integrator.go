package util

import "fmt"

type IntegrationMethod int

const (
	ThetaMethod IntegrationMethod = iota
	CrankNicolsonMethod
	BackwardEulerMethod
)

func (m IntegrationMethod) String() string {
	switch m {
	case CrankNicolsonMethod:
		return "crank-nicolson"
	case BackwardEulerMethod:
		return "backward-euler"
	default:
		return "theta"
	}
}

// ParseMethod accepts the String form of a method; "" is the generic theta
// method.
func ParseMethod(s string) (IntegrationMethod, error) {
	switch s {
	case "", "theta":
		return ThetaMethod, nil
	case "crank-nicolson":
		return CrankNicolsonMethod, nil
	case "backward-euler":
		return BackwardEulerMethod, nil
	}
	return ThetaMethod, fmt.Errorf("unknown integration method %q", s)
}

// MethodTheta maps a named method onto its time-centering parameter. The
// generic theta method keeps the given value.
func MethodTheta(method IntegrationMethod, theta float64) float64 {
	switch method {
	case CrankNicolsonMethod:
		return 0.5
	case BackwardEulerMethod:
		return 1.0
	default:
		return theta
	}
}

// GetRecoverCoeffs returns {a, b} with X^{n+1} = a*X^{n+theta} + b*X^n.
func GetRecoverCoeffs(theta float64) []float64 {
	return []float64{1 / theta, -(1 - theta) / theta}
}

func ValidateTheta(theta float64) error {
	if !(theta >= 0.5 && theta <= 1) {
		return fmt.Errorf("theta must be in [0.5, 1], got %g", theta)
	}
	return nil
}
