// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package calibration

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/optionpool/fixedpoint"
)

// Strategy names.
const (
	ValueConservingName = "value-conserving/v2"
	PassThroughName     = "pass-through/v1"
)

// AmountStrategy derives the token balances that back a calibration.
type AmountStrategy interface {
	Name() string
	Amounts(c *Calibration, spot *uint256.Int) (Amounts, error)
}

// ValueConserving sizes the pool so that its value equals the value of
// Supply options, split between the assets by weight:
//
//	value    = call * Supply
//	risky    = value * w / spot
//	riskFree = value * (1 - w)
//
// Amounts(...).Value(spot) equals value up to one wei of rounding per
// leg.
type ValueConserving struct {
	// Supply is the number of options, in 18-decimal units. Nil means one.
	Supply *uint256.Int
}

func (ValueConserving) Name() string { return ValueConservingName }

func (s ValueConserving) Amounts(c *Calibration, spot *uint256.Int) (Amounts, error) {
	if spot == nil || spot.IsZero() {
		return Amounts{}, ErrInvalidSpot
	}
	supply := s.Supply
	if supply == nil {
		supply = ether
	}
	share, err := c.Weights.RiskyShare()
	if err != nil {
		return Amounts{}, err
	}

	value, err := fixedpoint.MulU(c.Quote.Call, supply)
	if err != nil {
		return Amounts{}, fmt.Errorf("option value: %w", err)
	}
	riskyValue, err := fixedpoint.MulU(share, value)
	if err != nil {
		return Amounts{}, fmt.Errorf("risky value: %w", err)
	}
	risky, overflow := new(uint256.Int).MulDivOverflow(riskyValue, ether, spot)
	if overflow {
		return Amounts{}, fixedpoint.ErrArithmeticOverflow
	}
	return Amounts{
		Risky:    risky,
		RiskFree: new(uint256.Int).Sub(value, riskyValue),
	}, nil
}

// PassThrough uses the weights themselves as balances: one weight unit of
// the risky asset and the risk-free weight priced at spot. It predates
// ValueConserving and is kept for pools seeded under it.
type PassThrough struct{}

func (PassThrough) Name() string { return PassThroughName }

func (PassThrough) Amounts(c *Calibration, spot *uint256.Int) (Amounts, error) {
	if spot == nil {
		return Amounts{}, ErrInvalidSpot
	}
	risky, err := c.Weights.Risky.ToWei()
	if err != nil {
		return Amounts{}, err
	}
	riskFreeWei, err := c.Weights.RiskFree.ToWei()
	if err != nil {
		return Amounts{}, err
	}
	riskFree, overflow := new(uint256.Int).MulDivOverflow(riskFreeWei, spot, ether)
	if overflow {
		return Amounts{}, fixedpoint.ErrArithmeticOverflow
	}
	return Amounts{Risky: risky, RiskFree: riskFree}, nil
}

// StrategyByName resolves a configured strategy. The empty name selects
// ValueConserving with supply.
func StrategyByName(name string, supply *uint256.Int) (AmountStrategy, error) {
	switch name {
	case "", ValueConservingName:
		return ValueConserving{Supply: supply}, nil
	case PassThroughName:
		return PassThrough{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, name)
	}
}
