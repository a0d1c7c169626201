// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/optionpool/fixedpoint"
)

// Abramowitz and Stegun 26.2.17, absolute error below 7.5e-8. The
// coefficients are the published decimals rounded to the nearest 2^-64.
var (
	cdfP  = constant(0, 0x3b4ce230e2201b28, false) // 0.2316419
	cdfB1 = constant(0, 0x51c2fcea4be3ae3b, false) // 0.319381530
	cdfB2 = constant(0, 0x5b47c396a0c96c4e, true)  // -0.356563782
	cdfB3 = constant(1, 0xc80ef025f5e67f2e, false) // 1.781477937
	cdfB4 = constant(1, 0xd23dd4ef278d042c, true)  // -1.821255978
	cdfB5 = constant(1, 0x548cdd6f42943568, false) // 1.330274429

	sqrtTwoPi = constant(2, 0x81b263fec4e0b2cb, false)
)

// CDFSaturation is the |z| at and beyond which NormalCDF returns exactly
// 0 or 1. The true tail there is below 7e-16.
var CDFSaturation = fixedpoint.FromInt(8)

var negSaturation = fixedpoint.FromInt(-8)

func constant(hi, lo uint64, neg bool) fixedpoint.Fixed {
	c, err := fixedpoint.FromRaw(&uint256.Int{lo, hi, 0, 0})
	if err == nil && neg {
		c, err = fixedpoint.Neg(c)
	}
	if err != nil {
		panic(err)
	}
	return c
}

// DensityNumerator returns exp(-z^2/2).
func DensityNumerator(z fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	if !z.Lt(CDFSaturation) || !z.Gt(negSaturation) {
		return fixedpoint.Zero, nil
	}
	sq, err := fixedpoint.Mul(z, z)
	if err != nil {
		return fixedpoint.Zero, err
	}
	half, err := fixedpoint.Mul(sq, fixedpoint.Half)
	if err != nil {
		return fixedpoint.Zero, err
	}
	neg, err := fixedpoint.Neg(half)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Exp(neg)
}

// DensityDenominator returns sqrt(2*pi).
func DensityDenominator() fixedpoint.Fixed {
	return sqrtTwoPi
}

// Density returns the standard normal density at z.
func Density(z fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	num, err := DensityNumerator(z)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Div(num, sqrtTwoPi)
}

// TailDenominator returns 1 + p|z|.
func TailDenominator(z fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	abs, err := fixedpoint.Abs(z)
	if err != nil {
		return fixedpoint.Zero, err
	}
	pz, err := fixedpoint.Mul(cdfP, abs)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Add(fixedpoint.One, pz)
}

// TailFactor returns t = 1 / (1 + p|z|).
func TailFactor(z fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	den, err := TailDenominator(z)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Inv(den)
}

// TailPolynomial returns t(b1 + t(b2 + t(b3 + t(b4 + t*b5)))).
func TailPolynomial(t fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	acc := cdfB5
	for _, b := range []fixedpoint.Fixed{cdfB4, cdfB3, cdfB2, cdfB1} {
		prod, err := fixedpoint.Mul(t, acc)
		if err != nil {
			return fixedpoint.Zero, err
		}
		if acc, err = fixedpoint.Add(b, prod); err != nil {
			return fixedpoint.Zero, err
		}
	}
	return fixedpoint.Mul(t, acc)
}

// UpperTail returns 1 - N(|z|), the probability mass beyond |z|.
func UpperTail(z fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	if !z.Lt(CDFSaturation) || !z.Gt(negSaturation) {
		return fixedpoint.Zero, nil
	}
	pdf, err := Density(z)
	if err != nil {
		return fixedpoint.Zero, err
	}
	t, err := TailFactor(z)
	if err != nil {
		return fixedpoint.Zero, err
	}
	poly, err := TailPolynomial(t)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Mul(pdf, poly)
}

// NormalCDF returns the standard normal cumulative distribution at z.
// NormalCDF(z) + NormalCDF(-z) is exactly one.
func NormalCDF(z fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	q, err := UpperTail(z)
	if err != nil {
		return fixedpoint.Zero, err
	}
	if z.Sign() < 0 {
		return q, nil
	}
	return fixedpoint.Sub(fixedpoint.One, q)
}
