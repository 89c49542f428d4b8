package gpumem

import "math"

// IEEE-754 binary32 <-> binary16 conversion. Encoding handles the subnormal
// shift for very small magnitudes and saturates to infinity past the
// binary16 exponent range; rounding is to nearest, carrying into the
// exponent when the mantissa overflows.

const (
	f16SignMask     = 0x8000
	f16ExpInfinity  = 0x7c00
	f16QuietNaN     = 0x7e00
	f16MantissaMask = 0x03ff
)

// Float32ToFloat16 packs a float32 into binary16 bits.
func Float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16((bits >> 16) & f16SignMask)
	exp32 := int32((bits >> 23) & 0xff)
	mant := bits & 0x7fffff

	if exp32 == 0xff {
		if mant != 0 {
			return sign | f16QuietNaN
		}
		return sign | f16ExpInfinity
	}

	exp := exp32 - 127 + 15
	if exp >= 0x1f {
		// Exponent beyond binary16 range: saturate to infinity.
		return sign | f16ExpInfinity
	}
	if exp <= 0 {
		if exp < -10 {
			// Too small even for a subnormal: flush to signed zero.
			return sign
		}
		// Subnormal: restore the implicit leading bit, then shift down.
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		if (mant>>(shift-1))&1 != 0 {
			half++
		}
		return sign | half
	}

	half := sign | uint16(exp)<<10 | uint16(mant>>13)
	if mant&0x1000 != 0 {
		// Round up; a mantissa carry bumps the exponent, which is the
		// correct saturation path at the top of the range.
		half++
	}
	return half
}

// Float16ToFloat32 expands binary16 bits into a float32.
func Float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 1
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & f16MantissaMask

	var bits uint32
	switch {
	case exp == 0 && mant == 0:
		bits = sign << 31
	case exp == 0:
		// Subnormal: renormalize into binary32.
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= f16MantissaMask
		bits = sign<<31 | e<<23 | mant<<13
	case exp == 0x1f:
		bits = sign<<31 | 0xff<<23 | mant<<13
	default:
		bits = sign<<31 | (exp+127-15)<<23 | mant<<13
	}
	return math.Float32frombits(bits)
}
