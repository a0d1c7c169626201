// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package calibration turns option quotes into weighted pool targets.
//
// The risky weight of the pool is the option's elasticity: the share of a
// covered call position's value that sits in the risky asset. The
// risk-free weight is its complement. Both are clamped to what a weighted
// pool can bind.
package calibration

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/optionpool/fixedpoint"
	"github.com/luxfi/optionpool/pricing"
)

// DenormFactor scales normalised weights to the pool's denormalised
// weight units.
const DenormFactor = 25

var (
	ErrInvalidWeights = errors.New("calibration: weights must be positive")
	ErrInvalidSpot    = errors.New("calibration: spot must be positive")
	ErrUnknownVersion = errors.New("calibration: unknown amount strategy")
)

var (
	// MinWeight is one denormalised unit out of DenormFactor, rounded up
	// so that it denormalises to exactly one unit.
	MinWeight = ceilFraction(1, DenormFactor)
	// MaxWeight leaves MinWeight for the other asset.
	MaxWeight = mustSub(fixedpoint.One, MinWeight)

	ether      = uint256.NewInt(1e18)
	denorm     = uint256.NewInt(DenormFactor * 1e18)
	halfDenorm = uint256.NewInt(DenormFactor * 1e18 / 2)
	halfUnit   = uint256.NewInt(1 << (fixedpoint.FractionBits - 1))
)

func ceilFraction(num, den uint64) fixedpoint.Fixed {
	r := new(uint256.Int).Lsh(uint256.NewInt(num), fixedpoint.FractionBits)
	r.AddUint64(r, den-1)
	r.Div(r, uint256.NewInt(den))
	f, err := fixedpoint.FromRaw(r)
	if err != nil {
		panic(err)
	}
	return f
}

func mustSub(x, y fixedpoint.Fixed) fixedpoint.Fixed {
	f, err := fixedpoint.Sub(x, y)
	if err != nil {
		panic(err)
	}
	return f
}

// Weights is a risky/risk-free weight pair. Only the ratio is meaningful.
type Weights struct {
	Risky    fixedpoint.Fixed
	RiskFree fixedpoint.Fixed
}

// Validate requires both weights to be strictly positive.
func (w Weights) Validate() error {
	if w.Risky.Sign() <= 0 || w.RiskFree.Sign() <= 0 {
		return ErrInvalidWeights
	}
	return nil
}

func (w Weights) Equal(o Weights) bool {
	return w.Risky.Eq(o.Risky) && w.RiskFree.Eq(o.RiskFree)
}

func (w Weights) String() string {
	return fmt.Sprintf("{risky: %s, riskFree: %s}", w.Risky, w.RiskFree)
}

// RiskyShare returns Risky / (Risky + RiskFree).
func (w Weights) RiskyShare() (fixedpoint.Fixed, error) {
	sum, err := fixedpoint.Add(w.Risky, w.RiskFree)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Div(w.Risky, sum)
}

// Denormalize returns each weight times DenormFactor in 18-decimal units,
// rounded to nearest so that MinWeight maps to exactly one unit.
func (w Weights) Denormalize() (risky, riskFree *uint256.Int, err error) {
	if err := w.Validate(); err != nil {
		return nil, nil, err
	}
	return denormalize(w.Risky), denormalize(w.RiskFree), nil
}

func denormalize(x fixedpoint.Fixed) *uint256.Int {
	r := new(uint256.Int).Mul(x.Raw(), denorm)
	r.Add(r, halfUnit)
	return r.Rsh(r, fixedpoint.FractionBits)
}

// WeightsFromDenormalized inverts Denormalize, rounding to nearest.
func WeightsFromDenormalized(risky, riskFree *uint256.Int) (Weights, error) {
	var (
		w   Weights
		err error
	)
	if w.Risky, err = normalize(risky); err != nil {
		return Weights{}, err
	}
	if w.RiskFree, err = normalize(riskFree); err != nil {
		return Weights{}, err
	}
	return w, w.Validate()
}

func normalize(x *uint256.Int) (fixedpoint.Fixed, error) {
	if x == nil {
		return fixedpoint.Zero, ErrInvalidWeights
	}
	if x.BitLen() > 256-fixedpoint.FractionBits-1 {
		return fixedpoint.Zero, fixedpoint.ErrArithmeticOverflow
	}
	r := new(uint256.Int).Lsh(x, fixedpoint.FractionBits)
	r.Add(r, halfDenorm)
	r.Div(r, denorm)
	return fixedpoint.FromRaw(r)
}

// FromElasticity clamps el to [MinWeight, MaxWeight] as the risky weight
// and uses the complement as the risk-free weight.
func FromElasticity(el fixedpoint.Fixed) (Weights, error) {
	risky := fixedpoint.Clamp(el, MinWeight, MaxWeight)
	riskFree, err := fixedpoint.Sub(fixedpoint.One, risky)
	if err != nil {
		return Weights{}, err
	}
	return Weights{Risky: risky, RiskFree: riskFree}, nil
}

// ComputeWeights prices p with the default engine and returns its weights.
func ComputeWeights(p pricing.Params) (Weights, error) {
	el, err := pricing.Elasticity(p)
	if err != nil {
		return Weights{}, err
	}
	return FromElasticity(el)
}

// Amounts are the token balances that seed or rebalance a pool.
type Amounts struct {
	Risky    *uint256.Int
	RiskFree *uint256.Int
}

// Value returns Risky * spot + RiskFree in risk-free units.
func (a Amounts) Value(spot *uint256.Int) (*uint256.Int, error) {
	v, overflow := new(uint256.Int).MulDivOverflow(a.Risky, spot, ether)
	if overflow {
		return nil, fixedpoint.ErrArithmeticOverflow
	}
	if _, overflow = v.AddOverflow(v, a.RiskFree); overflow {
		return nil, fixedpoint.ErrArithmeticOverflow
	}
	return v, nil
}
