// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

const (
	// DefaultTWAPWindow is the default averaging window.
	DefaultTWAPWindow = 30 * time.Minute

	// MaxObservations caps the retained history.
	MaxObservations = 1000
)

// Observation is a price seen at a point in time.
type Observation struct {
	Price     *uint256.Int
	Timestamp time.Time
}

// TWAP averages the observed price of one asset over a rolling window.
type TWAP struct {
	mu           sync.RWMutex
	asset        common.Address
	window       time.Duration
	observations []Observation
	now          func() time.Time
}

// NewTWAP returns a TWAP for asset over window.
func NewTWAP(asset common.Address, window time.Duration) (*TWAP, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &TWAP{
		asset:        asset,
		window:       window,
		observations: make([]Observation, 0, 64),
		now:          time.Now,
	}, nil
}

// Record adds an observation, keeping the history ordered by time.
// Non-positive prices are ignored.
func (t *TWAP) Record(price *uint256.Int, at time.Time) {
	if price == nil || price.IsZero() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obs := Observation{Price: new(uint256.Int).Set(price), Timestamp: at}
	i := sort.Search(len(t.observations), func(i int) bool {
		return t.observations[i].Timestamp.After(at)
	})
	t.observations = append(t.observations, Observation{})
	copy(t.observations[i+1:], t.observations[i:])
	t.observations[i] = obs
	t.prune()
}

// prune drops observations older than twice the window before the newest
// one. Caller holds mu.
func (t *TWAP) prune() {
	cutoff := t.observations[len(t.observations)-1].Timestamp.Add(-2 * t.window)
	start := 0
	for start < len(t.observations) && !t.observations[start].Timestamp.After(cutoff) {
		start++
	}
	if len(t.observations)-start > MaxObservations {
		start = len(t.observations) - MaxObservations
	}
	if start > 0 {
		n := copy(t.observations, t.observations[start:])
		t.observations = t.observations[:n]
	}
}

// GetPrice implements PriceSource for the tracked asset.
func (t *TWAP) GetPrice(_ context.Context, asset common.Address) (*uint256.Int, error) {
	if asset != t.asset {
		return nil, ErrUnknownAsset
	}
	return t.PriceAt(t.now())
}

// PriceAt returns the time-weighted average over the window ending at at.
// Each observation is weighted by how long it stood, the last one up to
// at. The latest price from before the window stands until the first
// observation inside it.
func (t *TWAP) PriceAt(at time.Time) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	windowStart := at.Add(-t.window)
	var inWindow []Observation
	var before *Observation
	for i := range t.observations {
		obs := &t.observations[i]
		if obs.Timestamp.After(at) {
			break
		}
		if obs.Timestamp.After(windowStart) {
			inWindow = append(inWindow, *obs)
		} else {
			before = obs
		}
	}

	if len(inWindow) == 0 {
		if before == nil {
			return nil, ErrNoObservations
		}
		return new(uint256.Int).Set(before.Price), nil
	}

	sum := new(uint256.Int)
	var total uint64
	add := func(price *uint256.Int, from, to time.Time) {
		secs := uint64(to.Sub(from) / time.Second)
		if secs == 0 {
			return
		}
		sum.Add(sum, new(uint256.Int).Mul(price, uint256.NewInt(secs)))
		total += secs
	}
	if before != nil {
		add(before.Price, windowStart, inWindow[0].Timestamp)
	}
	for i, obs := range inWindow {
		end := at
		if i+1 < len(inWindow) {
			end = inWindow[i+1].Timestamp
		}
		add(obs.Price, obs.Timestamp, end)
	}
	if total == 0 {
		return new(uint256.Int).Set(inWindow[len(inWindow)-1].Price), nil
	}
	return sum.Div(sum, uint256.NewInt(total)), nil
}

// Last returns the most recent observation's price.
func (t *TWAP) Last() (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.observations) == 0 {
		return nil, ErrNoObservations
	}
	return new(uint256.Int).Set(t.observations[len(t.observations)-1].Price), nil
}

// Len returns the number of retained observations.
func (t *TWAP) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.observations)
}
