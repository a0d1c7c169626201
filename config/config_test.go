// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/dex"
	"github.com/luxfi/optionpool/fixedpoint"
	"github.com/luxfi/optionpool/pricing"
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Verify())
	require.Equal(t, "PRMTV", c.Symbol)

	spot, err := c.SpotWei()
	require.NoError(t, err)
	require.Equal(t, ether(100), spot)

	terms, err := c.Terms()
	require.NoError(t, err)
	require.Equal(t, calibration.Terms{Strike: ether(100), Volatility: 200, TimeToExpiry: pricing.YearSeconds}, terms)
	require.Equal(t, pricing.Default, c.Engine())

	s, err := c.AmountStrategy()
	require.NoError(t, err)
	require.Equal(t, calibration.ValueConserving{Supply: ether(1)}, s)

	require.Equal(t, uint64(240), c.PoolConfig().UpdatePeriodInBlocks)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"symbol": "TEST",
		"spot": "101.5",
		"volatility": 100,
		"slippage": 10,
		"strategy": "pass-through/v1",
		"yearSeconds": 31536000,
		"optionPoolConfig": {"swapFeeBps": 10, "updatePeriodInBlocks": 1}
	}`)
	c, err := Load(path)
	require.NoError(t, err)

	// Unset fields keep their defaults.
	require.Equal(t, "Primitive V1 Option Pool", c.Name)
	require.Equal(t, "TEST", c.Symbol)
	require.Equal(t, uint64(240), c.UpdatePeriodInBlocks)

	spot, err := c.SpotWei()
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Add(ether(101), uint256.NewInt(5e17)), spot)
	require.Equal(t, uint64(31_536_000), c.Engine().YearSeconds)

	s, err := c.AmountStrategy()
	require.NoError(t, err)
	require.Equal(t, calibration.PassThroughName, s.Name())

	pc := c.PoolConfig()
	require.Equal(t, uint64(10), pc.SwapFeeBps)
	require.Equal(t, uint64(240), pc.UpdatePeriodInBlocks)
	require.Equal(t, uint64(1), c.Pool.UpdatePeriodInBlocks)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, `{"spot": `))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `{"slippage": 0}`))
	require.ErrorIs(t, err, ErrSlippage)
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		err    error
	}{
		{"zero spot", func(c *Config) { c.Spot = decimal.Zero }, ErrInvalidAmount},
		{"negative strike", func(c *Config) { c.Strike = decimal.NewFromInt(-1) }, ErrInvalidAmount},
		{"sub-wei supply", func(c *Config) { c.InitialSupply = decimal.New(1, -19) }, ErrInvalidAmount},
		{"zero volatility", func(c *Config) { c.Volatility = 0 }, ErrInvalidTerms},
		{"expired", func(c *Config) { c.TimeToExpiry = 0 }, ErrInvalidTerms},
		{"zero period", func(c *Config) { c.UpdatePeriodInBlocks = 0 }, ErrInvalidPeriod},
		{"zero slippage", func(c *Config) { c.Slippage = 0 }, ErrSlippage},
		{"same asset", func(c *Config) { c.RiskFree = c.Risky }, ErrSameAsset},
		{"unknown strategy", func(c *Config) { c.Strategy = "martingale" }, calibration.ErrUnknownVersion},
		{"pool fee", func(c *Config) { c.Pool.SwapFeeBps = 5_000 }, dex.ErrInvalidSwapFee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			require.ErrorIs(t, c.Verify(), tt.err)
		})
	}
}

func TestEqual(t *testing.T) {
	a, b := Default(), Default()
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(nil))

	b.Spot = decimal.RequireFromString("100.0")
	require.True(t, a.Equal(b))

	b.Slippage = 10
	require.False(t, a.Equal(b))

	b = Default()
	b.Pool = nil
	require.False(t, a.Equal(b))
	a.Pool = nil
	require.True(t, a.Equal(b))
}

func TestSlippage(t *testing.T) {
	c := Default()
	maxPrice, err := c.MaxPrice(fixedpoint.FromInt(100))
	require.NoError(t, err)
	require.True(t, maxPrice.Eq(fixedpoint.FromInt(105)), maxPrice.String())

	// Selling 21 at a price of 2 per unit out accepts anything from 10 up.
	out, err := c.MinAmountOut(uint256.NewInt(21), fixedpoint.FromInt(2))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(10), out)
}
