// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package calibration

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/optionpool/fixedpoint"
	"github.com/luxfi/optionpool/oracle"
	"github.com/luxfi/optionpool/pricing"
)

var testAsset = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func toFloat(x fixedpoint.Fixed) float64 {
	f := new(big.Float).SetInt(x.Big())
	f.Quo(f, new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 64)))
	v, _ := f.Float64()
	return v
}

func weiFloat(x *uint256.Int) float64 {
	v, _ := new(big.Float).SetInt(x.ToBig()).Float64()
	return v
}

func testTerms() Terms {
	return Terms{Strike: ether(100), Volatility: 200, TimeToExpiry: pricing.YearSeconds}
}

// =========================================================================
// Weights
// =========================================================================

func TestFromElasticityClamps(t *testing.T) {
	tests := []struct {
		name  string
		el    fixedpoint.Fixed
		risky fixedpoint.Fixed
	}{
		{"zero", fixedpoint.Zero, MinWeight},
		{"one", fixedpoint.One, MaxWeight},
		{"half", fixedpoint.Half, fixedpoint.Half},
		{"negative", fixedpoint.FromInt(-1), MinWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := FromElasticity(tt.el)
			require.NoError(t, err)
			require.True(t, w.Risky.Eq(tt.risky), "risky %s", w.Risky)
			sum, err := fixedpoint.Add(w.Risky, w.RiskFree)
			require.NoError(t, err)
			require.True(t, sum.Eq(fixedpoint.One))
			require.NoError(t, w.Validate())
		})
	}
}

func TestWeightsValidate(t *testing.T) {
	require.ErrorIs(t, Weights{Risky: fixedpoint.Zero, RiskFree: fixedpoint.One}.Validate(), ErrInvalidWeights)
	require.ErrorIs(t, Weights{Risky: fixedpoint.One, RiskFree: fixedpoint.FromInt(-1)}.Validate(), ErrInvalidWeights)
	require.NoError(t, Weights{Risky: fixedpoint.One, RiskFree: fixedpoint.Two}.Validate())
}

func TestComputeWeights(t *testing.T) {
	w, err := ComputeWeights(testTerms().Params(ether(100)))
	require.NoError(t, err)
	require.True(t, w.Risky.Eq(fixedpoint.Half))
	require.True(t, w.RiskFree.Eq(fixedpoint.Half))

	// Deep out of the money the risky weight pins at the pool maximum.
	w, err = ComputeWeights(testTerms().Params(ether(50)))
	require.NoError(t, err)
	require.True(t, w.Risky.Eq(MaxWeight))

	// Far in the money it pins at the minimum.
	w, err = ComputeWeights(testTerms().Params(ether(1000)))
	require.NoError(t, err)
	require.True(t, w.Risky.Eq(MinWeight))

	_, err = ComputeWeights(pricing.Params{Spot: ether(100), Strike: ether(100), Volatility: 0, TimeToExpiry: 1})
	require.ErrorIs(t, err, fixedpoint.ErrInvalidDomain)
}

func TestDenormalize(t *testing.T) {
	w := Weights{Risky: fixedpoint.Half, RiskFree: fixedpoint.Half}
	risky, riskFree, err := w.Denormalize()
	require.NoError(t, err)
	half := new(uint256.Int).Div(ether(DenormFactor), uint256.NewInt(2))
	require.Equal(t, half, risky)
	require.Equal(t, half, riskFree)

	back, err := WeightsFromDenormalized(risky, riskFree)
	require.NoError(t, err)
	require.True(t, back.Equal(w), "got %s", back)

	_, err = WeightsFromDenormalized(new(uint256.Int), riskFree)
	require.ErrorIs(t, err, ErrInvalidWeights)

	// The clamp bounds land on whole denormalised units.
	edge, err := FromElasticity(fixedpoint.One)
	require.NoError(t, err)
	risky, riskFree, err = edge.Denormalize()
	require.NoError(t, err)
	require.Equal(t, ether(DenormFactor-1), risky)
	require.Equal(t, ether(1), riskFree)

	back, err = WeightsFromDenormalized(risky, riskFree)
	require.NoError(t, err)
	require.True(t, back.Risky.Eq(MaxWeight))
	require.True(t, back.RiskFree.Eq(MinWeight))
}

func TestRiskyShare(t *testing.T) {
	w := Weights{Risky: fixedpoint.One, RiskFree: fixedpoint.FromInt(3)}
	share, err := w.RiskyShare()
	require.NoError(t, err)
	require.InDelta(t, 0.25, toFloat(share), 1e-18)
}

// =========================================================================
// Amount strategies
// =========================================================================

func TestStrategyByName(t *testing.T) {
	s, err := StrategyByName("", nil)
	require.NoError(t, err)
	require.Equal(t, ValueConservingName, s.Name())

	s, err = StrategyByName(PassThroughName, nil)
	require.NoError(t, err)
	require.Equal(t, PassThroughName, s.Name())

	_, err = StrategyByName("balanced/v3", nil)
	require.ErrorIs(t, err, ErrUnknownVersion)
}

func TestRoundTrip(t *testing.T) {
	c := New(oracle.NewProxy(), WithLogger(log.NewTestLogger(log.InfoLevel)))
	spot := ether(101)
	terms := Terms{Strike: ether(100), Volatility: 100, TimeToExpiry: pricing.YearSeconds}

	cal, err := c.CalibrateAt(spot, terms)
	require.NoError(t, err)
	require.Equal(t, ValueConservingName, cal.Strategy)

	value, err := cal.Amounts.Value(spot)
	require.NoError(t, err)
	want, err := fixedpoint.MulU(cal.Quote.Call, ether(1))
	require.NoError(t, err)

	require.False(t, value.Gt(want))
	require.InEpsilon(t, weiFloat(want), weiFloat(value), 1e-9)
	require.InDelta(t, 4.5275020772, toFloat(cal.Quote.Call), 1e-9)

	// Recomputing from the weights alone reproduces the amounts.
	again, err := c.ComputeAmounts(cal, spot)
	require.NoError(t, err)
	require.Equal(t, cal.Amounts, again)
}

func TestValueConservingSupply(t *testing.T) {
	c := New(oracle.NewProxy())
	one, err := c.CalibrateAt(ether(125), testTerms())
	require.NoError(t, err)

	ten := ValueConserving{Supply: ether(10)}
	amounts, err := ten.Amounts(one, ether(125))
	require.NoError(t, err)

	v1, err := one.Amounts.Value(ether(125))
	require.NoError(t, err)
	v10, err := amounts.Value(ether(125))
	require.NoError(t, err)
	require.InEpsilon(t, 10*weiFloat(v1), weiFloat(v10), 1e-12)

	_, err = ten.Amounts(one, new(uint256.Int))
	require.ErrorIs(t, err, ErrInvalidSpot)
}

func TestPassThrough(t *testing.T) {
	c := New(oracle.NewProxy(), WithStrategy(PassThrough{}))
	cal, err := c.CalibrateAt(ether(100), testTerms())
	require.NoError(t, err)
	require.Equal(t, PassThroughName, cal.Strategy)

	// Half a unit of risky, half a unit of risk-free priced at 100.
	require.Equal(t, uint256.NewInt(5e17), cal.Amounts.Risky)
	require.Equal(t, ether(50), cal.Amounts.RiskFree)
}

func TestWorthlessOption(t *testing.T) {
	c := New(oracle.NewProxy())
	cal, err := c.CalibrateAt(ether(10), testTerms())
	require.NoError(t, err)
	require.True(t, cal.Quote.Call.IsZero())
	require.True(t, cal.Weights.Risky.Eq(MaxWeight))
	require.True(t, cal.Amounts.Risky.IsZero())
	require.True(t, cal.Amounts.RiskFree.IsZero())
}

// =========================================================================
// Calibrator
// =========================================================================

func TestCalibrateReadsOracle(t *testing.T) {
	ctx := context.Background()
	proxy := oracle.NewProxy()
	c := New(proxy)

	_, err := c.Calibrate(ctx, testAsset, testTerms())
	require.ErrorIs(t, err, oracle.ErrPriceNotSet)

	require.NoError(t, proxy.SetPrice(testAsset, ether(125)))
	cal, err := c.Calibrate(ctx, testAsset, testTerms())
	require.NoError(t, err)
	require.Equal(t, testAsset, cal.Asset)
	require.Equal(t, ether(125), cal.Params.Spot)
	require.InDelta(t, 0.14216533, toFloat(cal.Weights.Risky), 1e-6)
}

func TestCalibrateEngineOverride(t *testing.T) {
	calendar := pricing.Engine{YearSeconds: pricing.SecondsPerYear365, VolatilityScale: pricing.VolatilityScale}
	a, err := New(oracle.NewProxy()).CalibrateAt(ether(100), testTerms())
	require.NoError(t, err)
	b, err := New(oracle.NewProxy(), WithEngine(calendar)).CalibrateAt(ether(100), testTerms())
	require.NoError(t, err)

	// A longer year means less time to expiry and a cheaper option.
	require.True(t, b.Quote.Call.Lt(a.Quote.Call))
}

type failingSource struct{}

var errFeedDown = errors.New("feed down")

func (failingSource) GetPrice(context.Context, common.Address) (*uint256.Int, error) {
	return nil, errFeedDown
}

func TestCalibrateSourceError(t *testing.T) {
	_, err := New(failingSource{}).Calibrate(context.Background(), testAsset, testTerms())
	require.ErrorIs(t, err, errFeedDown)
}
