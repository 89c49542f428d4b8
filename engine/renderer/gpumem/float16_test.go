package gpumem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloat16RoundTrip(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, -0.5, 2.75, 3.140625, 1024, -65504, 65504, 0.000061035156}
	for _, v := range values {
		got := Float16ToFloat32(Float32ToFloat16(v))
		// Half precision carries 11 significand bits.
		if v == 0 {
			require.Equal(t, float32(0), got)
			continue
		}
		relErr := math.Abs(float64(got-v)) / math.Abs(float64(v))
		require.LessOrEqualf(t, relErr, 1.0/2048, "value %g decoded as %g", v, got)
	}
}

func TestFloat16ExactValues(t *testing.T) {
	require.Equal(t, uint16(0x3c00), Float32ToFloat16(1.0))
	require.Equal(t, uint16(0xbc00), Float32ToFloat16(-1.0))
	require.Equal(t, uint16(0x3800), Float32ToFloat16(0.5))
	require.Equal(t, uint16(0x7bff), Float32ToFloat16(65504))
	require.Equal(t, uint16(0x0000), Float32ToFloat16(0))
}

func TestFloat16SaturatesToInfinity(t *testing.T) {
	for _, v := range []float32{65520, 1e6, 3.4e38} {
		h := Float32ToFloat16(v)
		require.Equal(t, uint16(0x7c00), h, "value %g", v)
		require.True(t, math.IsInf(float64(Float16ToFloat32(h)), 1))
	}
	h := Float32ToFloat16(-1e6)
	require.Equal(t, uint16(0xfc00), h)
	require.True(t, math.IsInf(float64(Float16ToFloat32(h)), -1))
}

func TestFloat16Subnormals(t *testing.T) {
	// Smallest half subnormal is 2^-24.
	small := float32(math.Ldexp(1, -24))
	h := Float32ToFloat16(small)
	require.Equal(t, uint16(0x0001), h)
	require.Equal(t, small, Float16ToFloat32(h))

	// Below half the smallest subnormal flushes to signed zero.
	require.Equal(t, uint16(0x0000), Float32ToFloat16(float32(math.Ldexp(1, -26))))
	require.Equal(t, uint16(0x8000), Float32ToFloat16(float32(math.Ldexp(-1, -26))))
}

func TestFloat16SpecialValues(t *testing.T) {
	require.True(t, math.IsNaN(float64(Float16ToFloat32(Float32ToFloat16(float32(math.NaN()))))))

	posInf := float32(math.Inf(1))
	require.Equal(t, uint16(0x7c00), Float32ToFloat16(posInf))
	negInf := float32(math.Inf(-1))
	require.Equal(t, uint16(0xfc00), Float32ToFloat16(negInf))
}
