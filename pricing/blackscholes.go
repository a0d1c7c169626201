// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/optionpool/fixedpoint"
)

// Quote holds every intermediate term of one Black-Scholes evaluation.
type Quote struct {
	Spot   fixedpoint.Fixed
	Strike fixedpoint.Fixed

	Sigma       fixedpoint.Fixed // annualised volatility
	Tau         fixedpoint.Fixed // time to expiry in years
	VolSqrtTime fixedpoint.Fixed // sigma * sqrt(tau)

	Moneyness fixedpoint.Fixed
	D1        fixedpoint.Fixed
	D2        fixedpoint.Fixed
	Nd1       fixedpoint.Fixed
	Nd2       fixedpoint.Fixed

	Call fixedpoint.Fixed
	Put  fixedpoint.Fixed

	ENumerator   fixedpoint.Fixed // S * N(-d1)
	EDenominator fixedpoint.Fixed // S - C
	Elasticity   fixedpoint.Fixed // in [0, 1]

	saturated bool
}

// Moneyness returns ln(spot / strike).
func Moneyness(spot, strike fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	if spot.Sign() <= 0 || strike.Sign() <= 0 {
		return fixedpoint.Zero, fmt.Errorf("%w: moneyness needs positive spot and strike", fixedpoint.ErrInvalidDomain)
	}
	ratio, err := fixedpoint.Div(spot, strike)
	if err != nil {
		return fixedpoint.Zero, err
	}
	if ratio.IsZero() {
		return fixedpoint.Zero, fmt.Errorf("%w: spot/strike below precision", fixedpoint.ErrInvalidDomain)
	}
	return fixedpoint.Ln(ratio)
}

// D1 returns (ln(S/K) + sigma^2 tau / 2) / (sigma sqrt(tau)).
func (e Engine) D1(p Params) (fixedpoint.Fixed, error) {
	d1, _, err := e.auxiliary(p)
	return d1, err
}

// D2 returns D1 - sigma sqrt(tau).
func (e Engine) D2(p Params) (fixedpoint.Fixed, error) {
	_, d2, err := e.auxiliary(p)
	return d2, err
}

func (e Engine) auxiliary(p Params) (d1, d2 fixedpoint.Fixed, err error) {
	q, err := e.Quote(p)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	if q.saturated {
		return fixedpoint.Zero, fixedpoint.Zero, fmt.Errorf("%w: d1 undefined below spot precision", fixedpoint.ErrInvalidDomain)
	}
	return q.D1, q.D2, nil
}

// Quote evaluates the option once and returns all terms.
//
// The call is clamped to the no-arbitrage band [max(0, S-K), S] so that
// approximation error in the CDF never produces an arbitrageable price.
// The put follows from parity with zero rates, P = C - S + K. When S/K is
// zero at 64.64 precision the call is 0, the put is K and the elasticity
// saturates to 1.
func (e Engine) Quote(p Params) (*Quote, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s, err := fixedpoint.FromWei(p.spot())
	if err != nil {
		return nil, fmt.Errorf("spot: %w", err)
	}
	k, err := fixedpoint.FromWei(p.Strike)
	if err != nil {
		return nil, fmt.Errorf("strike: %w", err)
	}
	if k.IsZero() {
		return nil, fmt.Errorf("%w: strike below precision", fixedpoint.ErrInvalidDomain)
	}

	q := &Quote{Spot: s, Strike: k}
	if q.Sigma, q.Tau, q.VolSqrtTime, err = e.volSqrtTime(p); err != nil {
		return nil, err
	}

	ratio, err := fixedpoint.Div(s, k)
	if err != nil {
		return nil, err
	}
	if ratio.IsZero() {
		q.saturated = true
		q.Put = k
		q.Elasticity = fixedpoint.One
		return q, nil
	}

	if err := q.auxiliary(); err != nil {
		return nil, err
	}
	if err := q.prices(); err != nil {
		return nil, err
	}
	if err := q.elasticity(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Quote) auxiliary() error {
	var err error
	if q.Moneyness, err = Moneyness(q.Spot, q.Strike); err != nil {
		return err
	}
	variance, err := fixedpoint.Mul(q.Sigma, q.Sigma)
	if err != nil {
		return err
	}
	drift, err := fixedpoint.Mul(variance, q.Tau)
	if err != nil {
		return err
	}
	if drift, err = fixedpoint.Mul(drift, fixedpoint.Half); err != nil {
		return err
	}
	num, err := fixedpoint.Add(q.Moneyness, drift)
	if err != nil {
		return err
	}
	if q.D1, err = fixedpoint.Div(num, q.VolSqrtTime); err != nil {
		return err
	}
	if q.D2, err = fixedpoint.Sub(q.D1, q.VolSqrtTime); err != nil {
		return err
	}
	if q.Nd1, err = NormalCDF(q.D1); err != nil {
		return err
	}
	q.Nd2, err = NormalCDF(q.D2)
	return err
}

func (q *Quote) prices() error {
	sn, err := fixedpoint.Mul(q.Spot, q.Nd1)
	if err != nil {
		return err
	}
	kn, err := fixedpoint.Mul(q.Strike, q.Nd2)
	if err != nil {
		return err
	}
	call, err := fixedpoint.Sub(sn, kn)
	if err != nil {
		return err
	}
	intrinsic, err := fixedpoint.Sub(q.Spot, q.Strike)
	if err != nil {
		return err
	}
	q.Call = fixedpoint.Clamp(call, fixedpoint.Max(intrinsic, fixedpoint.Zero), q.Spot)

	put, err := fixedpoint.Sub(q.Call, q.Spot)
	if err != nil {
		return err
	}
	q.Put, err = fixedpoint.Add(put, q.Strike)
	return err
}

func (q *Quote) elasticity() error {
	negD1, err := fixedpoint.Neg(q.D1)
	if err != nil {
		return err
	}
	nNeg, err := NormalCDF(negD1)
	if err != nil {
		return err
	}
	if q.ENumerator, err = fixedpoint.Mul(q.Spot, nNeg); err != nil {
		return err
	}
	if q.EDenominator, err = fixedpoint.Sub(q.Spot, q.Call); err != nil {
		return err
	}
	if q.EDenominator.Sign() <= 0 {
		q.Elasticity = fixedpoint.One
		return nil
	}
	el, err := fixedpoint.Div(q.ENumerator, q.EDenominator)
	if err != nil {
		return err
	}
	q.Elasticity = fixedpoint.Clamp(el, fixedpoint.Zero, fixedpoint.One)
	return nil
}

// CallPrice returns the call premium in units of the quote asset.
func (e Engine) CallPrice(p Params) (fixedpoint.Fixed, error) {
	q, err := e.Quote(p)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return q.Call, nil
}

// PutPrice returns CallPrice - spot + strike.
func (e Engine) PutPrice(p Params) (fixedpoint.Fixed, error) {
	q, err := e.Quote(p)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return q.Put, nil
}

// ENumerator returns S * N(-d1).
func (e Engine) ENumerator(p Params) (fixedpoint.Fixed, error) {
	q, err := e.Quote(p)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return q.ENumerator, nil
}

// EDenominator returns S - C, equivalently K - P.
func (e Engine) EDenominator(p Params) (fixedpoint.Fixed, error) {
	q, err := e.Quote(p)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return q.EDenominator, nil
}

// Elasticity returns the share of a covered call position's value held in
// the risky asset, ENumerator / EDenominator, within [0, 1].
func (e Engine) Elasticity(p Params) (fixedpoint.Fixed, error) {
	q, err := e.Quote(p)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return q.Elasticity, nil
}

// CallElasticity returns S * N(d1) / C. A worthless call saturates to
// fixedpoint.MaxValue.
func (e Engine) CallElasticity(p Params) (fixedpoint.Fixed, error) {
	q, err := e.Quote(p)
	if err != nil {
		return fixedpoint.Zero, err
	}
	if q.Call.IsZero() {
		return fixedpoint.MaxValue, nil
	}
	sn, err := fixedpoint.Mul(q.Spot, q.Nd1)
	if err != nil {
		return fixedpoint.Zero, err
	}
	el, err := fixedpoint.Div(sn, q.Call)
	if err != nil {
		return fixedpoint.MaxValue, nil
	}
	return el, nil
}

// ATM returns the Brenner-Subrahmanyam approximation of an at-the-money
// call, S sigma sqrt(tau) / sqrt(2 pi).
func (e Engine) ATM(spot *uint256.Int, vol, seconds uint64) (fixedpoint.Fixed, error) {
	p := Params{Spot: spot, Strike: spot, Volatility: vol, TimeToExpiry: seconds}
	if spot == nil || spot.IsZero() {
		p.Strike = uint256.NewInt(1)
	}
	if err := p.Validate(); err != nil {
		return fixedpoint.Zero, err
	}
	s, err := fixedpoint.FromWei(p.spot())
	if err != nil {
		return fixedpoint.Zero, err
	}
	_, _, vst, err := e.volSqrtTime(p)
	if err != nil {
		return fixedpoint.Zero, err
	}
	num, err := fixedpoint.Mul(s, vst)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Div(num, sqrtTwoPi)
}

// Package-level helpers evaluate with the Default engine.

func Evaluate(p Params) (*Quote, error) {
	return Default.Quote(p)
}

func D1(p Params) (fixedpoint.Fixed, error) {
	return Default.D1(p)
}

func D2(p Params) (fixedpoint.Fixed, error) {
	return Default.D2(p)
}

func CallPrice(p Params) (fixedpoint.Fixed, error) {
	return Default.CallPrice(p)
}

func PutPrice(p Params) (fixedpoint.Fixed, error) {
	return Default.PutPrice(p)
}

func ENumerator(p Params) (fixedpoint.Fixed, error) {
	return Default.ENumerator(p)
}

func EDenominator(p Params) (fixedpoint.Fixed, error) {
	return Default.EDenominator(p)
}

func Elasticity(p Params) (fixedpoint.Fixed, error) {
	return Default.Elasticity(p)
}

func CallElasticity(p Params) (fixedpoint.Fixed, error) {
	return Default.CallElasticity(p)
}

func ATM(spot *uint256.Int, vol, seconds uint64) (fixedpoint.Fixed, error) {
	return Default.ATM(spot, vol, seconds)
}
