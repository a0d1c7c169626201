// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keeper

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/fixedpoint"
)

// Record is one calibration the keeper pushed to a pool. Fixed-point
// quantities are carried as 18-decimal integers; weights are denormalised.
type Record struct {
	ID         snowflake.ID   `json:"id"`
	Pool       common.Hash    `json:"pool"`
	Asset      common.Address `json:"asset"`
	Time       time.Time      `json:"time"`
	BeginBlock uint64         `json:"beginBlock"`
	FinalBlock uint64         `json:"finalBlock"`

	Spot       *uint256.Int `json:"spot"`
	Strike     *uint256.Int `json:"strike"`
	Volatility uint64       `json:"volatility"`
	Expiry     uint64       `json:"timeToExpiry"`

	Call       *uint256.Int `json:"call"`
	Put        *uint256.Int `json:"put"`
	Elasticity *uint256.Int `json:"elasticity"`

	RiskyWeight    *uint256.Int `json:"riskyWeight"`
	RiskFreeWeight *uint256.Int `json:"riskFreeWeight"`
	RiskyAmount    *uint256.Int `json:"riskyAmount"`
	RiskFreeAmount *uint256.Int `json:"riskFreeAmount"`
	Strategy       string       `json:"strategy"`
}

// newRecord flattens cal into a Record.
func newRecord(id snowflake.ID, pool [32]byte, cal *calibration.Calibration, begin, final uint64, now time.Time) (*Record, error) {
	rec := &Record{
		ID:             id,
		Pool:           common.Hash(pool),
		Asset:          cal.Asset,
		Time:           now.UTC(),
		BeginBlock:     begin,
		FinalBlock:     final,
		Spot:           cal.Params.Spot,
		Strike:         cal.Params.Strike,
		Volatility:     cal.Params.Volatility,
		Expiry:         cal.Params.TimeToExpiry,
		RiskyAmount:    cal.Amounts.Risky,
		RiskFreeAmount: cal.Amounts.RiskFree,
		Strategy:       cal.Strategy,
	}

	var err error
	for _, f := range []struct {
		dst **uint256.Int
		v   fixedpoint.Fixed
	}{
		{&rec.Call, cal.Quote.Call},
		{&rec.Put, cal.Quote.Put},
		{&rec.Elasticity, cal.Quote.Elasticity},
	} {
		if *f.dst, err = f.v.ToWei(); err != nil {
			return nil, err
		}
	}
	if rec.RiskyWeight, rec.RiskFreeWeight, err = cal.Weights.Denormalize(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Weights returns the normalised weights carried by the record.
func (r *Record) Weights() (calibration.Weights, error) {
	return calibration.WeightsFromDenormalized(r.RiskyWeight, r.RiskFreeWeight)
}
