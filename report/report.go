// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package report renders calibration histories as aligned text tables.
package report

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/fixedpoint"
	"github.com/luxfi/optionpool/keeper"
)

// DefaultPlaces is the number of decimals rendered per cell.
const DefaultPlaces int32 = 6

var (
	q64         = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), fixedpoint.FractionBits), 0)
	denormUnits = decimal.NewFromInt(calibration.DenormFactor)

	columns = []string{"block", "spot", "call", "put", "elasticity", "w_risky", "w_riskfree", "risky", "riskfree"}
)

// FromWei converts an 18-decimal integer amount exactly.
func FromWei(x *uint256.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -18)
}

// FromFixed converts a 64.64 value, rounded to 18 places.
func FromFixed(x fixedpoint.Fixed) decimal.Decimal {
	return decimal.NewFromBigInt(x.Big(), 0).DivRound(q64, 18)
}

// Row is one rendered calibration.
type Row struct {
	Block          uint64
	Spot           decimal.Decimal
	Call           decimal.Decimal
	Put            decimal.Decimal
	Elasticity     decimal.Decimal
	RiskyWeight    decimal.Decimal
	RiskFreeWeight decimal.Decimal
	RiskyAmount    decimal.Decimal
	RiskFreeAmount decimal.Decimal
}

func (r Row) cells(places int32) []string {
	out := []string{fmt.Sprint(r.Block)}
	for _, d := range []decimal.Decimal{
		r.Spot, r.Call, r.Put, r.Elasticity,
		r.RiskyWeight, r.RiskFreeWeight,
		r.RiskyAmount, r.RiskFreeAmount,
	} {
		out = append(out, d.StringFixed(places))
	}
	return out
}

// Table accumulates rows for rendering.
type Table struct {
	places int32
	rows   []Row
}

func New(places int32) *Table {
	if places <= 0 {
		places = DefaultPlaces
	}
	return &Table{places: places}
}

// AddCalibration appends cal as observed at block.
func (t *Table) AddCalibration(block uint64, cal *calibration.Calibration) {
	t.rows = append(t.rows, Row{
		Block:          block,
		Spot:           FromWei(cal.Params.Spot),
		Call:           FromFixed(cal.Quote.Call),
		Put:            FromFixed(cal.Quote.Put),
		Elasticity:     FromFixed(cal.Quote.Elasticity),
		RiskyWeight:    FromFixed(cal.Weights.Risky),
		RiskFreeWeight: FromFixed(cal.Weights.RiskFree),
		RiskyAmount:    FromWei(cal.Amounts.Risky),
		RiskFreeAmount: FromWei(cal.Amounts.RiskFree),
	})
}

// AddRecord appends a keeper record at its begin block.
func (t *Table) AddRecord(rec *keeper.Record) {
	t.rows = append(t.rows, Row{
		Block:          rec.BeginBlock,
		Spot:           FromWei(rec.Spot),
		Call:           FromWei(rec.Call),
		Put:            FromWei(rec.Put),
		Elasticity:     FromWei(rec.Elasticity),
		RiskyWeight:    FromWei(rec.RiskyWeight).DivRound(denormUnits, 18),
		RiskFreeWeight: FromWei(rec.RiskFreeWeight).DivRound(denormUnits, 18),
		RiskyAmount:    FromWei(rec.RiskyAmount),
		RiskFreeAmount: FromWei(rec.RiskFreeAmount),
	})
}

func (t *Table) Rows() []Row {
	return t.rows
}

// Render writes the header and every row, tab-aligned.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	if _, err := fmt.Fprintln(tw, strings.Join(columns, "\t")+"\t"); err != nil {
		return err
	}
	for _, r := range t.rows {
		if _, err := fmt.Fprintln(tw, strings.Join(r.cells(t.places), "\t")+"\t"); err != nil {
			return err
		}
	}
	return tw.Flush()
}
