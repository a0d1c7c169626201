// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pricing prices European options under Black-Scholes with zero
// interest rates, using only 64.64 fixed-point arithmetic.
//
// Spot and strike are 18-decimal token amounts. Volatility is annualised
// and expressed per mille (200 is 20%). Time to expiry is in seconds and is
// annualised against a fixed year length.
package pricing

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/optionpool/fixedpoint"
)

const (
	// YearSeconds is the year length used to annualise time to expiry
	// (364 days).
	YearSeconds uint64 = 31_449_600

	// SecondsPerYear365 is a calendar year, for engines that price
	// against it instead.
	SecondsPerYear365 uint64 = 31_536_000

	// VolatilityScale is the denominator of Params.Volatility.
	VolatilityScale uint64 = 1_000
)

// Params are the inputs of a single option evaluation.
type Params struct {
	Spot         *uint256.Int // 18 decimals, may be zero
	Strike       *uint256.Int // 18 decimals
	Volatility   uint64       // per mille, annualised
	TimeToExpiry uint64       // seconds
}

// Validate rejects non-positive strike, volatility or time.
func (p Params) Validate() error {
	if p.Strike == nil || p.Strike.IsZero() {
		return fmt.Errorf("%w: strike must be positive", fixedpoint.ErrInvalidDomain)
	}
	if p.Volatility == 0 {
		return fmt.Errorf("%w: volatility must be positive", fixedpoint.ErrInvalidDomain)
	}
	if p.TimeToExpiry == 0 {
		return fmt.Errorf("%w: time to expiry must be positive", fixedpoint.ErrInvalidDomain)
	}
	return nil
}

func (p Params) spot() *uint256.Int {
	if p.Spot == nil {
		return new(uint256.Int)
	}
	return p.Spot
}

// Engine fixes the unit conventions of an evaluation.
type Engine struct {
	YearSeconds     uint64
	VolatilityScale uint64
}

// Default prices with YearSeconds and VolatilityScale.
var Default = Engine{
	YearSeconds:     YearSeconds,
	VolatilityScale: VolatilityScale,
}

func (e Engine) sigma(vol uint64) (fixedpoint.Fixed, error) {
	return fixedpoint.FromFraction(vol, e.VolatilityScale)
}

func (e Engine) tau(seconds uint64) (fixedpoint.Fixed, error) {
	return fixedpoint.FromFraction(seconds, e.YearSeconds)
}

// volSqrtTime returns sigma * sqrt(tau).
func (e Engine) volSqrtTime(p Params) (sigma, tau, vst fixedpoint.Fixed, err error) {
	if sigma, err = e.sigma(p.Volatility); err != nil {
		return
	}
	if tau, err = e.tau(p.TimeToExpiry); err != nil {
		return
	}
	sqrtTau, err := fixedpoint.Sqrt(tau)
	if err != nil {
		return
	}
	if vst, err = fixedpoint.Mul(sigma, sqrtTau); err != nil {
		return
	}
	if vst.IsZero() {
		err = fmt.Errorf("%w: volatility and time too small", fixedpoint.ErrInvalidDomain)
	}
	return
}
