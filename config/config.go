// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the environment an option pool is deployed and
// simulated with.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/shopspring/decimal"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/dex"
	"github.com/luxfi/optionpool/fixedpoint"
	"github.com/luxfi/optionpool/pricing"
)

// Decimals of every token amount in the config.
const Decimals = 18

var (
	ErrInvalidAmount = errors.New("config: amount must be a positive value with at most 18 decimals")
	ErrInvalidTerms  = errors.New("config: option terms must be positive")
	ErrInvalidPeriod = errors.New("config: update period must be positive")
	ErrSlippage      = errors.New("config: slippage divisor must be positive")
	ErrSameAsset     = errors.New("config: risky and risk-free assets must differ")
)

// Default token addresses of the simulated pair.
var (
	DefaultRisky    = common.HexToAddress("0x0000000000000000000000000000000000000e7e")
	DefaultRiskFree = common.HexToAddress("0x0000000000000000000000000000000000000da1")
)

// Config is the JSON environment document. Token amounts are decimal
// strings in whole units ("100" is 100e18 wei).
type Config struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`

	Risky    common.Address `json:"risky"`
	RiskFree common.Address `json:"riskFree"`

	Spot          decimal.Decimal `json:"spot"`
	Strike        decimal.Decimal `json:"strike"`
	Volatility    uint64          `json:"volatility"`   // per mille
	TimeToExpiry  uint64          `json:"timeToExpiry"` // seconds
	InitialSupply decimal.Decimal `json:"initialSupply"`

	UpdatePeriodInBlocks uint64 `json:"updatePeriodInBlocks"`
	// Slippage is a divisor: a swap accepts a price up to spot + spot/Slippage.
	Slippage uint64 `json:"slippage"`

	Strategy    string `json:"strategy,omitempty"`
	YearSeconds uint64 `json:"yearSeconds,omitempty"`

	Pool *dex.Config `json:"optionPoolConfig,omitempty"`

	NATSURL        string `json:"natsURL,omitempty"`
	RedisAddr      string `json:"redisAddr,omitempty"`
	RedisKeyPrefix string `json:"redisKeyPrefix,omitempty"`
	DBPath         string `json:"dbPath,omitempty"`
}

// Default is the environment the pool was first tested under.
func Default() *Config {
	return &Config{
		Name:                 "Primitive V1 Option Pool",
		Symbol:               "PRMTV",
		Risky:                DefaultRisky,
		RiskFree:             DefaultRiskFree,
		Spot:                 decimal.NewFromInt(100),
		Strike:               decimal.NewFromInt(100),
		Volatility:           200,
		TimeToExpiry:         31_449_600,
		InitialSupply:        decimal.NewFromInt(1),
		UpdatePeriodInBlocks: 240,
		Slippage:             20,
		Pool:                 dex.DefaultConfig(),
	}
}

// Load reads path over Default and verifies the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Verify() error {
	for _, amt := range []struct {
		name string
		d    decimal.Decimal
	}{
		{"spot", c.Spot},
		{"strike", c.Strike},
		{"initialSupply", c.InitialSupply},
	} {
		if _, err := Wei(amt.d); err != nil {
			return fmt.Errorf("%s: %w", amt.name, err)
		}
	}
	if c.Volatility == 0 || c.TimeToExpiry == 0 {
		return ErrInvalidTerms
	}
	if c.UpdatePeriodInBlocks == 0 {
		return ErrInvalidPeriod
	}
	if c.Slippage == 0 {
		return ErrSlippage
	}
	if c.Risky == c.RiskFree {
		return ErrSameAsset
	}
	if _, err := calibration.StrategyByName(c.Strategy, nil); err != nil {
		return err
	}
	if c.Pool != nil {
		if err := c.Pool.Verify(); err != nil {
			return fmt.Errorf("%s: %w", dex.ConfigKey, err)
		}
	}
	return nil
}

func (c *Config) Equal(other *Config) bool {
	if other == nil {
		return false
	}
	poolsEqual := c.Pool == other.Pool || (c.Pool != nil && c.Pool.Equal(other.Pool))
	return c.Name == other.Name &&
		c.Symbol == other.Symbol &&
		c.Risky == other.Risky &&
		c.RiskFree == other.RiskFree &&
		c.Spot.Equal(other.Spot) &&
		c.Strike.Equal(other.Strike) &&
		c.Volatility == other.Volatility &&
		c.TimeToExpiry == other.TimeToExpiry &&
		c.InitialSupply.Equal(other.InitialSupply) &&
		c.UpdatePeriodInBlocks == other.UpdatePeriodInBlocks &&
		c.Slippage == other.Slippage &&
		c.Strategy == other.Strategy &&
		c.YearSeconds == other.YearSeconds &&
		poolsEqual &&
		c.NATSURL == other.NATSURL &&
		c.RedisAddr == other.RedisAddr &&
		c.RedisKeyPrefix == other.RedisKeyPrefix &&
		c.DBPath == other.DBPath
}

// Wei converts a positive whole-unit amount to 18-decimal integer units.
func Wei(d decimal.Decimal) (*uint256.Int, error) {
	scaled := d.Shift(Decimals)
	if !scaled.IsPositive() || !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, d)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, d)
	}
	return v, nil
}

// SpotWei is the starting spot price in wei.
func (c *Config) SpotWei() (*uint256.Int, error) {
	return Wei(c.Spot)
}

// Terms returns the option terms pools are calibrated against.
func (c *Config) Terms() (calibration.Terms, error) {
	strike, err := Wei(c.Strike)
	if err != nil {
		return calibration.Terms{}, fmt.Errorf("strike: %w", err)
	}
	return calibration.Terms{
		Strike:       strike,
		Volatility:   c.Volatility,
		TimeToExpiry: c.TimeToExpiry,
	}, nil
}

// Engine returns the pricing conventions. A zero YearSeconds keeps the
// default year.
func (c *Config) Engine() pricing.Engine {
	e := pricing.Default
	if c.YearSeconds != 0 {
		e.YearSeconds = c.YearSeconds
	}
	return e
}

// AmountStrategy sizes pools for InitialSupply options.
func (c *Config) AmountStrategy() (calibration.AmountStrategy, error) {
	supply, err := Wei(c.InitialSupply)
	if err != nil {
		return nil, fmt.Errorf("initialSupply: %w", err)
	}
	return calibration.StrategyByName(c.Strategy, supply)
}

// PoolConfig returns the pool precompile config, defaulted and with the
// update period carried over.
func (c *Config) PoolConfig() *dex.Config {
	pc := dex.DefaultConfig()
	if c.Pool != nil {
		cp := *c.Pool
		pc = &cp
	}
	pc.UpdatePeriodInBlocks = c.UpdatePeriodInBlocks
	return pc
}

// MaxPrice is the highest spot price a swap quoted at spot accepts.
func (c *Config) MaxPrice(spot fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	if c.Slippage == 0 {
		return fixedpoint.Zero, ErrSlippage
	}
	slip, err := fixedpoint.MulDiv(spot, 1, c.Slippage)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Add(spot, slip)
}

// MinAmountOut bounds the output of swapping amountIn at spot, the price
// of one unit out in units in.
func (c *Config) MinAmountOut(amountIn *uint256.Int, spot fixedpoint.Fixed) (*uint256.Int, error) {
	maxPrice, err := c.MaxPrice(spot)
	if err != nil {
		return nil, err
	}
	return fixedpoint.DivU(amountIn, maxPrice)
}
