// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fixedpoint

import (
	"github.com/holiman/uint256"
)

var (
	// ln2Q128 is ln(2) scaled by 2^128.
	ln2Q128 = uint256.Int{0xc9e3b39803f2f6af, 0xb17217f7d1cf79ab, 0, 0}
	// log2eQ128 is log2(e) scaled by 2^128.
	log2eQ128 = uint256.Int{0x7d0ffda0d23a7d11, 0x71547652b82fe177, 1, 0}

	// expLimit bounds the argument of Exp and Exp2 to (-64, 64).
	expLimit    = positive(64, 0)
	expLimitNeg = negative(64, 0)
)

// Sqrt returns the square root of x rounded down to the last bit.
func Sqrt(x Fixed) (Fixed, error) {
	if x.Sign() < 0 {
		return Zero, ErrInvalidDomain
	}
	a := new(uint256.Int).Lsh(&x.v, FractionBits)
	return Fixed{v: *isqrt(a)}, nil
}

// isqrt is the integer square root by Newton's method, starting above the
// root so the sequence decreases monotonically to floor(sqrt(a)).
func isqrt(a *uint256.Int) *uint256.Int {
	if a.IsZero() {
		return new(uint256.Int)
	}
	r := new(uint256.Int).Lsh(uint256.NewInt(1), uint(a.BitLen()+1)/2)
	n := new(uint256.Int)
	for {
		n.Div(a, r)
		n.Add(n, r)
		n.Rsh(n, 1)
		if !n.Lt(r) {
			return r
		}
		r.Set(n)
	}
}

// Log2 returns the binary logarithm of a positive x.
func Log2(x Fixed) (Fixed, error) {
	if x.Sign() <= 0 {
		return Zero, ErrInvalidDomain
	}
	msb := x.v.BitLen() - 1
	result := FromInt(int64(msb - FractionBits)).v

	// Normalise the mantissa to [2^127, 2^128) and square it once per
	// fractional bit.
	ux := new(uint256.Int).Lsh(&x.v, uint(127-msb))
	bit := new(uint256.Int).SetUint64(1 << 63)
	for !bit.IsZero() {
		ux.Mul(ux, ux)
		if ux.BitLen() == 256 {
			ux.Rsh(ux, 128)
			result.Add(&result, bit)
		} else {
			ux.Rsh(ux, 127)
		}
		bit.Rsh(bit, 1)
	}
	return checked(&result)
}

// Ln returns the natural logarithm of a positive x.
func Ln(x Fixed) (Fixed, error) {
	l, err := Log2(x)
	if err != nil {
		return Zero, err
	}
	r := new(uint256.Int).Mul(&l.v, &ln2Q128)
	r.SRsh(r, 128)
	return checked(r)
}

// Exp2 returns 2^x. Arguments below -64 underflow to zero.
func Exp2(x Fixed) (Fixed, error) {
	if !x.Lt(expLimit) {
		return Zero, ErrArithmeticOverflow
	}
	if x.Lt(expLimitNeg) {
		return Zero, nil
	}

	n := x.ToInt()
	f := new(uint256.Int).And(&x.v, &fracMask)

	// 2^f = e^(f ln2), f in [0, 1), summed until the terms vanish.
	y := new(uint256.Int).Mul(f, &ln2Q128)
	y.Rsh(y, 128)
	sum := new(uint256.Int).Set(&One.v)
	term := new(uint256.Int).Set(&One.v)
	for i := uint64(1); ; i++ {
		term.Mul(term, y)
		term.Rsh(term, FractionBits)
		term.Div(term, uint256.NewInt(i))
		if term.IsZero() {
			break
		}
		sum.Add(sum, term)
	}

	if n >= 0 {
		sum.Lsh(sum, uint(n))
	} else {
		sum.Rsh(sum, uint(-n))
	}
	return checked(sum)
}

// Exp returns e^x. Arguments below -64 underflow to zero.
func Exp(x Fixed) (Fixed, error) {
	if !x.Lt(expLimit) {
		return Zero, ErrArithmeticOverflow
	}
	if x.Lt(expLimitNeg) {
		return Zero, nil
	}
	r := new(uint256.Int).Mul(&x.v, &log2eQ128)
	r.SRsh(r, 128)
	return Exp2(Fixed{v: *r})
}

// Pow returns x^n by repeated squaring.
func Pow(x Fixed, n uint64) (Fixed, error) {
	result := One
	base := x
	var err error
	for n > 0 {
		if n&1 == 1 {
			if result, err = Mul(result, base); err != nil {
				return Zero, err
			}
		}
		n >>= 1
		if n > 0 {
			if base, err = Mul(base, base); err != nil {
				return Zero, err
			}
		}
	}
	return result, nil
}

// PowFixed returns x^y for a positive base.
func PowFixed(x, y Fixed) (Fixed, error) {
	if y.IsZero() {
		return One, nil
	}
	l, err := Ln(x)
	if err != nil {
		return Zero, err
	}
	e, err := Mul(y, l)
	if err != nil {
		return Zero, err
	}
	return Exp(e)
}
