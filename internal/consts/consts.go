package consts

import "math"

const (
	CHARGE    = 1.602176634e-19  // Elementary charge (C)
	EMASS     = 9.1093837015e-31 // Electron mass (kg)
	PMASS     = 1.67262192369e-27
	CLIGHT    = 299792458.0      // Speed of light (m/s)
	MU0       = 1.25663706212e-6 // Vacuum permeability (H/m)
	EPSILON0  = 1.0 / (MU0 * CLIGHT * CLIGHT)
	BOLTZMANN = 1.380649e-23 // Boltzmann constant (J/K)
)

// MachineEps is the float64 unit roundoff.
var MachineEps = math.Nextafter(1, 2) - 1
