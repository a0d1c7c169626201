// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package schedule migrates pool weights linearly over a block window.
//
// A Scheduler is queried with the current block number on every pool
// operation. Nothing advances it in the background.
package schedule

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/fixedpoint"
)

var (
	ErrInvalidSchedule = errors.New("schedule: final block must follow begin block")
	ErrInvalidWeights  = errors.New("schedule: weights must be positive")
	ErrInvalidEncoding = errors.New("schedule: invalid encoding")
)

// State of a Scheduler at some block.
type State uint8

const (
	Idle State = iota
	Scheduled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Schedule moves weights from Begin at BeginBlock to Final at FinalBlock.
type Schedule struct {
	Begin      calibration.Weights
	Final      calibration.Weights
	BeginBlock uint64
	FinalBlock uint64
}

// Validate checks the block window and both weight pairs.
func (s Schedule) Validate() error {
	if s.FinalBlock <= s.BeginBlock {
		return fmt.Errorf("%w: begin %d, final %d", ErrInvalidSchedule, s.BeginBlock, s.FinalBlock)
	}
	if s.Begin.Validate() != nil || s.Final.Validate() != nil {
		return ErrInvalidWeights
	}
	return nil
}

// At returns the weights at block now.
func (s Schedule) At(now uint64) calibration.Weights {
	switch {
	case now <= s.BeginBlock:
		return s.Begin
	case now >= s.FinalBlock:
		return s.Final
	}
	elapsed := now - s.BeginBlock
	span := s.FinalBlock - s.BeginBlock
	return calibration.Weights{
		Risky:    interpolate(s.Begin.Risky, s.Final.Risky, elapsed, span),
		RiskFree: interpolate(s.Begin.RiskFree, s.Final.RiskFree, elapsed, span),
	}
}

// interpolate returns begin + (final - begin) * elapsed / span for
// elapsed < span. The step is truncated toward zero, so the result never
// passes final.
func interpolate(begin, final fixedpoint.Fixed, elapsed, span uint64) fixedpoint.Fixed {
	delta, err := fixedpoint.Sub(final, begin)
	if err != nil {
		return begin
	}
	step, err := fixedpoint.MulDiv(delta, elapsed, span)
	if err != nil {
		return begin
	}
	w, err := fixedpoint.Add(begin, step)
	if err != nil {
		return begin
	}
	return w
}

const wordSize = 32

// MarshalBinary encodes the schedule as six 32-byte big-endian words:
// begin block, final block, then the raw begin and final weights.
func (s Schedule) MarshalBinary() ([]byte, error) {
	out := make([]byte, 6*wordSize)
	words := []*uint256.Int{
		uint256.NewInt(s.BeginBlock),
		uint256.NewInt(s.FinalBlock),
		s.Begin.Risky.Raw(),
		s.Begin.RiskFree.Raw(),
		s.Final.Risky.Raw(),
		s.Final.RiskFree.Raw(),
	}
	for i, w := range words {
		w.WriteToSlice(out[i*wordSize : (i+1)*wordSize])
	}
	return out, nil
}

// UnmarshalBinary decodes MarshalBinary output.
func (s *Schedule) UnmarshalBinary(data []byte) error {
	if len(data) != 6*wordSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidEncoding, len(data))
	}
	word := func(i int) *uint256.Int {
		return new(uint256.Int).SetBytes(data[i*wordSize : (i+1)*wordSize])
	}
	begin, final := word(0), word(1)
	if !begin.IsUint64() || !final.IsUint64() {
		return fmt.Errorf("%w: block out of range", ErrInvalidEncoding)
	}

	var (
		out Schedule
		err error
	)
	out.BeginBlock, out.FinalBlock = begin.Uint64(), final.Uint64()
	fields := []*fixedpoint.Fixed{&out.Begin.Risky, &out.Begin.RiskFree, &out.Final.Risky, &out.Final.RiskFree}
	for i, f := range fields {
		if *f, err = fixedpoint.FromRaw(word(i + 2)); err != nil {
			return fmt.Errorf("%w: weight %d: %v", ErrInvalidEncoding, i, err)
		}
	}
	*s = out
	return nil
}
