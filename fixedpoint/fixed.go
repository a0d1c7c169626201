// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint implements signed 64.64 fixed-point arithmetic.
//
// A Fixed holds a real number r as the integer r * 2^64 in the signed
// 128-bit range. Values are stored in a 256-bit word in two's complement so
// that products of two Fixed values never lose bits before the final
// shift. Every operation range-checks its result; nothing wraps.
//
// The package never uses floating point. Identical inputs produce
// identical outputs on every platform.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// FractionBits is the number of fractional bits in a Fixed.
const FractionBits = 64

var (
	ErrInvalidDomain      = errors.New("fixedpoint: invalid domain")
	ErrArithmeticOverflow = errors.New("fixedpoint: arithmetic overflow")
	ErrDivisionByZero     = errors.New("fixedpoint: division by zero")
)

var (
	// maxRaw is 2^127 - 1, the largest representable raw value.
	maxRaw = uint256.Int{^uint64(0), ^uint64(0) >> 1, 0, 0}
	// minRaw is -2^127 in two's complement.
	minRaw = uint256.Int{0, 1 << 63, ^uint64(0), ^uint64(0)}

	weiUnit   = uint256.NewInt(1e18)
	fracUnit  = uint256.Int{0, 1, 0, 0}
	fracMask  = uint256.Int{^uint64(0), 0, 0, 0}
	decDigits = uint256.NewInt(1e18)
)

// Fixed is a signed 64.64 fixed-point number. The zero value is 0.
type Fixed struct {
	v uint256.Int
}

var (
	Zero = Fixed{}
	One  = Fixed{v: uint256.Int{0, 1, 0, 0}}
	Two  = Fixed{v: uint256.Int{0, 2, 0, 0}}
	Half = Fixed{v: uint256.Int{1 << 63, 0, 0, 0}}
	// MaxValue and MinValue bound the representable range.
	MaxValue = Fixed{v: maxRaw}
	MinValue = Fixed{v: minRaw}
)

// Epsilon is the documented precision bound of Exp and Ln, 1e-15.
var Epsilon = Fixed{v: uint256.Int{18447, 0, 0, 0}}

func inRange(x *uint256.Int) bool {
	if x.Sign() >= 0 {
		return !x.Gt(&maxRaw)
	}
	return !x.Lt(&minRaw)
}

func checked(x *uint256.Int) (Fixed, error) {
	if !inRange(x) {
		return Zero, ErrArithmeticOverflow
	}
	return Fixed{v: *x}, nil
}

// positive builds a constant from the high and low words of a
// non-negative raw value.
func positive(hi, lo uint64) Fixed {
	return Fixed{v: uint256.Int{lo, hi, 0, 0}}
}

// negative builds a constant whose magnitude has the given raw words.
func negative(hi, lo uint64) Fixed {
	f := positive(hi, lo)
	f.v.Neg(&f.v)
	return f
}

// FromInt converts an integer.
func FromInt(x int64) Fixed {
	var f Fixed
	if x < 0 {
		f.v.SetUint64(uint64(-(x + 1)) + 1)
		f.v.Lsh(&f.v, FractionBits)
		f.v.Neg(&f.v)
		return f
	}
	f.v.SetUint64(uint64(x))
	f.v.Lsh(&f.v, FractionBits)
	return f
}

// FromUint converts an unsigned integer. It fails for x >= 2^63.
func FromUint(x uint64) (Fixed, error) {
	if x > 1<<63-1 {
		return Zero, ErrArithmeticOverflow
	}
	return FromInt(int64(x)), nil
}

// FromFraction returns num/den.
func FromFraction(num, den uint64) (Fixed, error) {
	if den == 0 {
		return Zero, ErrDivisionByZero
	}
	r := new(uint256.Int).SetUint64(num)
	r.Lsh(r, FractionBits)
	r.Div(r, uint256.NewInt(den))
	return checked(r)
}

// FromWei converts an 18-decimal token amount into units.
func FromWei(wei *uint256.Int) (Fixed, error) {
	r, overflow := new(uint256.Int).MulDivOverflow(wei, &fracUnit, weiUnit)
	if overflow || r.Sign() < 0 {
		return Zero, ErrArithmeticOverflow
	}
	return checked(r)
}

// FromRaw interprets x as the two's complement raw representation.
func FromRaw(x *uint256.Int) (Fixed, error) {
	return checked(new(uint256.Int).Set(x))
}

// FromBig converts a raw signed big integer.
func FromBig(x *big.Int) (Fixed, error) {
	abs, overflow := uint256.FromBig(new(big.Int).Abs(x))
	if overflow {
		return Zero, ErrArithmeticOverflow
	}
	if x.Sign() < 0 {
		abs.Neg(abs)
	}
	return checked(abs)
}

// Raw returns a copy of the two's complement raw value.
func (x Fixed) Raw() *uint256.Int {
	return new(uint256.Int).Set(&x.v)
}

// Big returns the raw value as a signed big integer.
func (x Fixed) Big() *big.Int {
	if x.Sign() >= 0 {
		return x.v.ToBig()
	}
	abs := new(uint256.Int).Neg(&x.v)
	return new(big.Int).Neg(abs.ToBig())
}

// ToInt rounds toward negative infinity.
func (x Fixed) ToInt() int64 {
	r := new(uint256.Int).SRsh(&x.v, FractionBits)
	return int64(r.Uint64())
}

// ToWei converts a non-negative value to an 18-decimal token amount.
func (x Fixed) ToWei() (*uint256.Int, error) {
	return MulU(x, weiUnit)
}

func (x Fixed) Sign() int { return x.v.Sign() }

func (x Fixed) IsZero() bool { return x.v.IsZero() }

// Cmp compares x and y as signed values.
func (x Fixed) Cmp(y Fixed) int {
	switch {
	case x.v.Eq(&y.v):
		return 0
	case x.v.Slt(&y.v):
		return -1
	default:
		return 1
	}
}

func (x Fixed) Eq(y Fixed) bool { return x.v.Eq(&y.v) }

func (x Fixed) Lt(y Fixed) bool { return x.Cmp(y) < 0 }

func (x Fixed) Gt(y Fixed) bool { return x.Cmp(y) > 0 }

// Min returns the smaller of x and y.
func Min(x, y Fixed) Fixed {
	if x.Lt(y) {
		return x
	}
	return y
}

// Max returns the larger of x and y.
func Max(x, y Fixed) Fixed {
	if x.Gt(y) {
		return x
	}
	return y
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi Fixed) Fixed {
	return Min(Max(x, lo), hi)
}

// Add returns x + y.
func Add(x, y Fixed) (Fixed, error) {
	return checked(new(uint256.Int).Add(&x.v, &y.v))
}

// Sub returns x - y.
func Sub(x, y Fixed) (Fixed, error) {
	return checked(new(uint256.Int).Sub(&x.v, &y.v))
}

// Neg returns -x. It fails only for MinValue.
func Neg(x Fixed) (Fixed, error) {
	return checked(new(uint256.Int).Neg(&x.v))
}

// Abs returns |x|. It fails only for MinValue.
func Abs(x Fixed) (Fixed, error) {
	return checked(new(uint256.Int).Abs(&x.v))
}

// Mul returns x * y rounded toward negative infinity.
func Mul(x, y Fixed) (Fixed, error) {
	// |x*y| < 2^254, so the two's complement product is exact.
	r := new(uint256.Int).Mul(&x.v, &y.v)
	r.SRsh(r, FractionBits)
	return checked(r)
}

// Div returns x / y truncated toward zero.
func Div(x, y Fixed) (Fixed, error) {
	if y.IsZero() {
		return Zero, ErrDivisionByZero
	}
	r := new(uint256.Int).Lsh(&x.v, FractionBits)
	r.SDiv(r, &y.v)
	return checked(r)
}

// Inv returns 1 / x.
func Inv(x Fixed) (Fixed, error) {
	return Div(One, x)
}

// MulDiv returns x * num / den truncated toward zero, without rounding
// the intermediate product.
func MulDiv(x Fixed, num, den uint64) (Fixed, error) {
	if den == 0 {
		return Zero, ErrDivisionByZero
	}
	r := new(uint256.Int).Mul(&x.v, uint256.NewInt(num))
	r.SDiv(r, uint256.NewInt(den))
	return checked(r)
}

// MulU multiplies an unsigned 256-bit integer by a non-negative x and
// returns the integer part of the product.
func MulU(x Fixed, y *uint256.Int) (*uint256.Int, error) {
	if x.Sign() < 0 {
		return nil, ErrInvalidDomain
	}
	r, overflow := new(uint256.Int).MulDivOverflow(&x.v, y, &fracUnit)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return r, nil
}

// DivU returns the unsigned 256-bit integer y divided by a positive x.
func DivU(y *uint256.Int, x Fixed) (*uint256.Int, error) {
	if x.IsZero() {
		return nil, ErrDivisionByZero
	}
	if x.Sign() < 0 {
		return nil, ErrInvalidDomain
	}
	r, overflow := new(uint256.Int).MulDivOverflow(y, &fracUnit, &x.v)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return r, nil
}

// String formats x in decimal, truncated to 18 fractional digits.
func (x Fixed) String() string {
	abs := new(uint256.Int).Abs(&x.v)
	ip := new(uint256.Int).Rsh(abs, FractionBits)
	fp := new(uint256.Int).And(abs, &fracMask)
	fp.Mul(fp, decDigits)
	fp.Rsh(fp, FractionBits)

	frac := fp.Dec()
	for len(frac) < 18 {
		frac = "0" + frac
	}
	s := ip.Dec() + "." + frac
	if x.Sign() < 0 {
		s = "-" + s
	}
	return s
}
