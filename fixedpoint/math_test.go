// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fixedpoint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSqrt(t *testing.T) {
	r, err := Sqrt(FromInt(4))
	require.NoError(t, err)
	require.True(t, r.Eq(Two))

	r, err = Sqrt(Zero)
	require.NoError(t, err)
	require.True(t, r.IsZero())

	_, err = Sqrt(FromInt(-1))
	require.ErrorIs(t, err, ErrInvalidDomain)

	for _, v := range []float64{1e-9, 0.0317, 0.5, 2, 3.14159, 1e6, 9.2e18} {
		x := fromFloat(t, v)
		r, err := Sqrt(x)
		require.NoError(t, err)

		// floor(sqrt): r^2 <= x < (r+ulp)^2
		sq, err := Mul(r, r)
		require.NoError(t, err)
		require.False(t, sq.Gt(x), "sqrt(%v) too large", v)
		require.InEpsilon(t, math.Sqrt(v), toFloat(r), 1e-12)
	}
}

func TestLog2(t *testing.T) {
	r, err := Log2(FromInt(8))
	require.NoError(t, err)
	require.True(t, r.Eq(FromInt(3)))

	r, err = Log2(mustFraction(t, 1, 4))
	require.NoError(t, err)
	require.True(t, r.Eq(FromInt(-2)))

	_, err = Log2(Zero)
	require.ErrorIs(t, err, ErrInvalidDomain)
}

func TestLn(t *testing.T) {
	r, err := Ln(One)
	require.NoError(t, err)
	require.True(t, r.IsZero())

	for _, v := range []float64{1e-6, 0.01, 0.5, 0.99, 1.01, 2, 100.0 / 101, 1.25, 1000, 1e6} {
		r, err := Ln(fromFloat(t, v))
		require.NoError(t, err)
		require.InDelta(t, math.Log(v), toFloat(r), 1e-15, "ln(%v)", v)
	}

	_, err = Ln(FromInt(-3))
	require.ErrorIs(t, err, ErrInvalidDomain)
}

func TestExp(t *testing.T) {
	r, err := Exp(Zero)
	require.NoError(t, err)
	require.True(t, r.Eq(One))

	for _, v := range []float64{-1, -0.5, -0.005, 0.005, 0.5, 1, 2.5, 10, 20} {
		r, err := Exp(fromFloat(t, v))
		require.NoError(t, err)
		if v < 0 {
			require.InDelta(t, math.Exp(v), toFloat(r), 1e-15, "exp(%v)", v)
		} else {
			require.InEpsilon(t, math.Exp(v), toFloat(r), 1e-14, "exp(%v)", v)
		}
	}
}

func TestExpLimits(t *testing.T) {
	_, err := Exp(FromInt(64))
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = Exp(FromInt(44))
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	r, err := Exp(FromInt(-65))
	require.NoError(t, err)
	require.True(t, r.IsZero())

	r, err = Exp(FromInt(-40))
	require.NoError(t, err)
	require.Equal(t, 1, r.Sign())
}

func TestExp2(t *testing.T) {
	for n := int64(-10); n <= 10; n++ {
		r, err := Exp2(FromInt(n))
		require.NoError(t, err)
		require.Equal(t, math.Ldexp(1, int(n)), toFloat(r))
	}

	r, err := Exp2(Half)
	require.NoError(t, err)
	require.InEpsilon(t, math.Sqrt2, toFloat(r), 1e-15)
}

func TestExpLnInverse(t *testing.T) {
	for _, v := range []float64{0.1, 0.7, 1, 3, 42} {
		x := fromFloat(t, v)
		l, err := Ln(x)
		require.NoError(t, err)
		back, err := Exp(l)
		require.NoError(t, err)
		require.InEpsilon(t, v, toFloat(back), 1e-15)
	}
}

func TestPow(t *testing.T) {
	r, err := Pow(FromInt(2), 10)
	require.NoError(t, err)
	require.True(t, r.Eq(FromInt(1024)))

	r, err = Pow(Half, 3)
	require.NoError(t, err)
	require.Equal(t, 0.125, toFloat(r))

	r, err = Pow(FromInt(7), 0)
	require.NoError(t, err)
	require.True(t, r.Eq(One))

	_, err = Pow(FromInt(2), 63)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestPowFixed(t *testing.T) {
	r, err := PowFixed(FromInt(9), Half)
	require.NoError(t, err)
	require.InEpsilon(t, 3.0, toFloat(r), 1e-15)

	r, err = PowFixed(fromFloat(t, 0.8), fromFloat(t, 1.5))
	require.NoError(t, err)
	require.InEpsilon(t, math.Pow(0.8, 1.5), toFloat(r), 1e-15)

	_, err = PowFixed(Zero, Half)
	require.ErrorIs(t, err, ErrInvalidDomain)
}
