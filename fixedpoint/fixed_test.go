// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fixedpoint

import (
	"math"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var two64 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 64))

func toFloat(x Fixed) float64 {
	f := new(big.Float).SetInt(x.Big())
	f.Quo(f, two64)
	v, _ := f.Float64()
	return v
}

func fromFloat(t *testing.T, v float64) Fixed {
	f := new(big.Float).SetFloat64(v)
	f.Mul(f, two64)
	raw, _ := f.Int(nil)
	x, err := FromBig(raw)
	require.NoError(t, err)
	return x
}

func mustFraction(t *testing.T, num, den uint64) Fixed {
	x, err := FromFraction(num, den)
	require.NoError(t, err)
	return x
}

// =========================================================================
// Construction
// =========================================================================

func TestFromInt(t *testing.T) {
	tests := []struct {
		in   int64
		want float64
	}{
		{0, 0},
		{1, 1},
		{-1, -1},
		{100, 100},
		{-250, -250},
		{math.MaxInt64, math.MaxInt64},
		{math.MinInt64, math.MinInt64},
	}
	for _, tt := range tests {
		x := FromInt(tt.in)
		require.Equal(t, tt.want, toFloat(x))
		require.Equal(t, tt.in, x.ToInt())
	}
}

func TestFromUintOverflow(t *testing.T) {
	_, err := FromUint(1 << 63)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	x, err := FromUint(1<<63 - 1)
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxInt64), x.ToInt())
}

func TestFromFraction(t *testing.T) {
	require.True(t, mustFraction(t, 1, 2).Eq(Half))
	require.True(t, mustFraction(t, 200, 1000).Eq(mustFraction(t, 1, 5)))

	_, err := FromFraction(1, 0)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestFromWei(t *testing.T) {
	wei := uint256.MustFromDecimal("101000000000000000000")
	x, err := FromWei(wei)
	require.NoError(t, err)
	require.True(t, x.Eq(FromInt(101)))

	back, err := x.ToWei()
	require.NoError(t, err)
	require.Equal(t, wei.Dec(), back.Dec())

	half, err := FromWei(uint256.NewInt(5e17))
	require.NoError(t, err)
	require.True(t, half.Eq(Half))

	// 2^63 whole tokens no longer fit.
	huge := new(uint256.Int).Mul(uint256.NewInt(1<<63), uint256.NewInt(1e18))
	_, err = FromWei(huge)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	// Amounts whose scaled value sets the sign bit are not negative units.
	top := new(uint256.Int).Not(new(uint256.Int))
	wei, overflow := new(uint256.Int).MulDivOverflow(top, uint256.NewInt(1e18), new(uint256.Int).Lsh(uint256.NewInt(1), FractionBits))
	require.False(t, overflow)
	_, err = FromWei(wei)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestToIntFloors(t *testing.T) {
	require.Equal(t, int64(2), mustFraction(t, 5, 2).ToInt())
	neg, err := Neg(mustFraction(t, 5, 2))
	require.NoError(t, err)
	require.Equal(t, int64(-3), neg.ToInt())
}

func TestString(t *testing.T) {
	require.Equal(t, "0.500000000000000000", Half.String())
	require.Equal(t, "101.000000000000000000", FromInt(101).String())
	require.Equal(t, "-1.250000000000000000", fromFloat(t, -1.25).String())
}

// =========================================================================
// Arithmetic
// =========================================================================

func TestAddSubRange(t *testing.T) {
	_, err := Add(MaxValue, One)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = Sub(MinValue, One)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	r, err := Sub(One, Two)
	require.NoError(t, err)
	require.True(t, r.Eq(FromInt(-1)))
}

func TestNegAbs(t *testing.T) {
	_, err := Neg(MinValue)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	_, err = Abs(MinValue)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	n, err := Neg(MaxValue)
	require.NoError(t, err)
	a, err := Abs(n)
	require.NoError(t, err)
	require.True(t, a.Eq(MaxValue))
}

func TestMul(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"integers", 6, 7, 42},
		{"fractions", 0.5, 0.25, 0.125},
		{"negative", -3, 2.5, -7.5},
		{"both negative", -4, -0.5, 2},
		{"zero", 0, 12345, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Mul(fromFloat(t, tt.a), fromFloat(t, tt.b))
			require.NoError(t, err)
			require.Equal(t, tt.want, toFloat(r))
		})
	}

	_, err := Mul(MaxValue, Two)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestMulRoundsDown(t *testing.T) {
	ulp := Fixed{v: uint256.Int{1, 0, 0, 0}}
	r, err := Mul(ulp, Half)
	require.NoError(t, err)
	require.True(t, r.IsZero())

	negUlp, err := Neg(ulp)
	require.NoError(t, err)
	r, err = Mul(negUlp, Half)
	require.NoError(t, err)
	require.True(t, r.Eq(negUlp))
}

func TestDiv(t *testing.T) {
	r, err := Div(FromInt(1), FromInt(4))
	require.NoError(t, err)
	require.Equal(t, 0.25, toFloat(r))

	r, err = Div(FromInt(-9), FromInt(2))
	require.NoError(t, err)
	require.Equal(t, -4.5, toFloat(r))

	_, err = Div(One, Zero)
	require.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Div(MaxValue, Half)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = Inv(Zero)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDiv(t *testing.T) {
	r, err := MulDiv(FromInt(10), 3, 4)
	require.NoError(t, err)
	require.Equal(t, 7.5, toFloat(r))

	neg := FromInt(-10)
	r, err = MulDiv(neg, 1, 3)
	require.NoError(t, err)
	require.InDelta(t, -10.0/3, toFloat(r), 1e-15)

	_, err = MulDiv(One, 1, 0)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulUDivU(t *testing.T) {
	supply := uint256.NewInt(1e18)
	r, err := MulU(mustFraction(t, 3, 4), supply)
	require.NoError(t, err)
	require.Equal(t, uint64(75e16), r.Uint64())

	_, err = MulU(FromInt(-1), supply)
	require.ErrorIs(t, err, ErrInvalidDomain)

	q, err := DivU(uint256.NewInt(300), FromInt(4))
	require.NoError(t, err)
	require.Equal(t, uint64(75), q.Uint64())

	_, err = DivU(uint256.NewInt(1), Zero)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestCompare(t *testing.T) {
	neg := FromInt(-2)
	require.Equal(t, -1, neg.Cmp(One))
	require.Equal(t, 1, One.Cmp(neg))
	require.Equal(t, 0, Half.Cmp(mustFraction(t, 2, 4)))
	require.True(t, MinValue.Lt(MaxValue))
	require.True(t, Clamp(FromInt(5), Zero, One).Eq(One))
	require.True(t, Clamp(neg, Zero, One).Eq(Zero))
	require.True(t, Clamp(Half, Zero, One).Eq(Half))
}

func TestBigRoundTrip(t *testing.T) {
	for _, x := range []Fixed{Zero, One, MaxValue, MinValue, FromInt(-77), Half} {
		back, err := FromBig(x.Big())
		require.NoError(t, err)
		require.True(t, back.Eq(x))
	}

	tooBig := new(big.Int).Lsh(big.NewInt(1), 127)
	_, err := FromBig(tooBig)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}
