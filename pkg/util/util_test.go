package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValueFactor(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  string
	}{
		{2.5e-9, "s", "2.500 ns"},
		{1.5, "J", "1.500 J"},
		{-3e-3, "V/m", "-3.000 mV/m"},
		{4.2e6, "Hz", "4.200 MHz"},
		{0, "s", "0.000 s"},
		{1e-20, "J", "1.000e-20 J"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValueFactor(tt.value, tt.unit))
	}
}

func TestFormatNorm(t *testing.T) {
	assert.Equal(t, "1.000e+03", FormatNorm(1000))
	assert.Equal(t, "5.430e-05", FormatNorm(5.43e-5))
	assert.Equal(t, "    732.5", FormatNorm(732.5))
	assert.Equal(t, "1.000e-11", FormatRatio(1e-11))
	assert.Equal(t, "1.0000%", FormatRatio(0.01))
}

func TestThetaCoeffs(t *testing.T) {
	assert.Equal(t, 0.5, MethodTheta(CrankNicolsonMethod, 0.7))
	assert.Equal(t, 1.0, MethodTheta(BackwardEulerMethod, 0.7))
	assert.Equal(t, 0.7, MethodTheta(ThetaMethod, 0.7))

	for _, theta := range []float64{0.5, 0.6, 1} {
		back := GetRecoverCoeffs(theta)
		xOld, xNew := 3.0, -2.0
		mid := theta*xNew + (1-theta)*xOld
		assert.InDelta(t, xNew, back[0]*mid+back[1]*xOld, 1e-14)
	}

	for _, m := range []IntegrationMethod{ThetaMethod, CrankNicolsonMethod, BackwardEulerMethod} {
		got, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMethod("leapfrog")
	assert.Error(t, err)

	assert.NoError(t, ValidateTheta(0.5))
	assert.NoError(t, ValidateTheta(1))
	assert.Error(t, ValidateTheta(0.49))
	assert.Error(t, ValidateTheta(1.01))
}
