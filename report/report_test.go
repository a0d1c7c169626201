// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/fixedpoint"
	"github.com/luxfi/optionpool/keeper"
	"github.com/luxfi/optionpool/oracle"
	"github.com/luxfi/optionpool/pricing"
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func TestFromWei(t *testing.T) {
	require.Equal(t, "1.5", FromWei(uint256.NewInt(15e17)).String())
	require.Equal(t, "0.000000000000000001", FromWei(uint256.NewInt(1)).String())
	require.True(t, FromWei(nil).IsZero())
}

func TestFromFixed(t *testing.T) {
	require.Equal(t, "0.5", FromFixed(fixedpoint.Half).String())
	require.Equal(t, "-2", FromFixed(fixedpoint.FromInt(-2)).String())
	require.Equal(t, "0.040000", FromFixed(calibration.MinWeight).StringFixed(6))
}

func TestTable(t *testing.T) {
	c := calibration.New(oracle.NewProxy())
	terms := calibration.Terms{Strike: ether(100), Volatility: 100, TimeToExpiry: pricing.YearSeconds}
	cal, err := c.CalibrateAt(ether(101), terms)
	require.NoError(t, err)

	table := New(0)
	table.AddCalibration(7, cal)
	table.AddRecord(&keeper.Record{
		BeginBlock:     8,
		Spot:           ether(100),
		Call:           uint256.NewInt(4e18),
		Put:            uint256.NewInt(4e18),
		Elasticity:     uint256.NewInt(5e17),
		RiskyWeight:    new(uint256.Int).Div(ether(25), uint256.NewInt(2)),
		RiskFreeWeight: new(uint256.Int).Div(ether(25), uint256.NewInt(2)),
		RiskyAmount:    uint256.NewInt(2e16),
		RiskFreeAmount: ether(2),
	})

	rows := table.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, "101.000000", rows[0].Spot.StringFixed(DefaultPlaces))
	require.Equal(t, "4.527502", rows[0].Call.StringFixed(DefaultPlaces))
	require.Equal(t, "0.500000", rows[1].RiskyWeight.StringFixed(DefaultPlaces))

	// Weights always sum to one.
	sum := rows[0].RiskyWeight.Add(rows[0].RiskFreeWeight)
	require.Equal(t, "1.000000", sum.StringFixed(DefaultPlaces))

	var buf bytes.Buffer
	require.NoError(t, table.Render(&buf))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "elasticity")
	require.Contains(t, lines[1], "4.527502")
	require.Contains(t, lines[2], "2.000000")
}
