// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package calibration

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/optionpool/oracle"
	"github.com/luxfi/optionpool/pricing"
)

// Terms are the option terms a pool is calibrated against.
type Terms struct {
	Strike       *uint256.Int // 18 decimals
	Volatility   uint64       // per mille
	TimeToExpiry uint64       // seconds
}

// Params combines the terms with a spot price.
func (t Terms) Params(spot *uint256.Int) pricing.Params {
	return pricing.Params{
		Spot:         spot,
		Strike:       t.Strike,
		Volatility:   t.Volatility,
		TimeToExpiry: t.TimeToExpiry,
	}
}

// Calibration is the result of one calibration round.
type Calibration struct {
	Asset    common.Address
	Params   pricing.Params
	Quote    *pricing.Quote
	Weights  Weights
	Amounts  Amounts
	Strategy string
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithEngine prices with e instead of pricing.Default.
func WithEngine(e pricing.Engine) Option {
	return func(c *Calibrator) { c.engine = e }
}

// WithStrategy sizes amounts with s instead of ValueConserving.
func WithStrategy(s AmountStrategy) Option {
	return func(c *Calibrator) { c.strategy = s }
}

func WithLogger(l log.Logger) Option {
	return func(c *Calibrator) { c.log = l }
}

// Calibrator polls a price source and computes target weights and
// amounts for an option pool.
type Calibrator struct {
	source   oracle.PriceSource
	engine   pricing.Engine
	strategy AmountStrategy
	log      log.Logger
}

// New returns a Calibrator reading spot prices from source.
func New(source oracle.PriceSource, opts ...Option) *Calibrator {
	c := &Calibrator{
		source:   source,
		engine:   pricing.Default,
		strategy: ValueConserving{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = log.NewTestLogger(log.InfoLevel)
	}
	return c
}

func (c *Calibrator) Engine() pricing.Engine { return c.engine }

func (c *Calibrator) Strategy() AmountStrategy { return c.strategy }

// Calibrate reads the spot price of asset and calibrates against terms.
func (c *Calibrator) Calibrate(ctx context.Context, asset common.Address, terms Terms) (*Calibration, error) {
	spot, err := c.source.GetPrice(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("price of %s: %w", asset.Hex(), err)
	}
	cal, err := c.CalibrateAt(spot, terms)
	if err != nil {
		return nil, err
	}
	cal.Asset = asset

	c.log.Debug("calibrated",
		"asset", asset,
		"spot", spot,
		"call", cal.Quote.Call,
		"elasticity", cal.Quote.Elasticity,
		"weights", cal.Weights,
	)
	return cal, nil
}

// CalibrateAt calibrates against terms at a given spot price.
func (c *Calibrator) CalibrateAt(spot *uint256.Int, terms Terms) (*Calibration, error) {
	p := terms.Params(spot)
	q, err := c.engine.Quote(p)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	w, err := FromElasticity(q.Elasticity)
	if err != nil {
		return nil, err
	}
	cal := &Calibration{
		Params:   p,
		Quote:    q,
		Weights:  w,
		Strategy: c.strategy.Name(),
	}
	if cal.Amounts, err = c.ComputeAmounts(cal, spot); err != nil {
		return nil, fmt.Errorf("amounts: %w", err)
	}
	return cal, nil
}

// ComputeAmounts sizes the balances backing cal at spot.
func (c *Calibrator) ComputeAmounts(cal *Calibration, spot *uint256.Int) (Amounts, error) {
	return c.strategy.Amounts(cal, spot)
}
