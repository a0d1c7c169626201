// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keeper recalibrates option pools as their underlying prices
// move. Each round reads the oracle, prices the option and schedules the
// pool's weights toward the new target.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/dex"
)

var errPeriod = errors.New("keeper: period must be positive")

const (
	DefaultPeriod   uint64 = 240
	DefaultInterval        = 12 * time.Second
)

// Pool is a pool the keeper maintains.
type Pool struct {
	Key   dex.PoolKey
	Terms calibration.Terms
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithPeriod sets the number of blocks each weight migration spans.
func WithPeriod(blocks uint64) Option {
	return func(k *Keeper) { k.period = blocks }
}

// WithInterval sets how often Run starts a round.
func WithInterval(d time.Duration) Option {
	return func(k *Keeper) { k.interval = d }
}

func WithHistory(h *History) Option {
	return func(k *Keeper) { k.history = h }
}

func WithPublisher(p Publisher) Option {
	return func(k *Keeper) { k.publisher = p }
}

func WithLogger(l log.Logger) Option {
	return func(k *Keeper) { k.log = l }
}

// WithNodeID sets the snowflake node of record IDs.
func WithNodeID(id int64) Option {
	return func(k *Keeper) { k.nodeID = id }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(k *Keeper) { k.now = now }
}

// Keeper drives calibrations into a PoolManager on behalf of the pools'
// controller.
type Keeper struct {
	manager    *dex.PoolManager
	state      dex.StateDB
	calibrator *calibration.Calibrator
	controller common.Address

	period    uint64
	interval  time.Duration
	history   *History
	publisher Publisher
	nodeID    int64
	node      *snowflake.Node
	now       func() time.Time
	log       log.Logger

	mu    sync.Mutex
	pools []Pool
	spots map[[32]byte]*uint256.Int
}

func New(
	manager *dex.PoolManager,
	state dex.StateDB,
	calibrator *calibration.Calibrator,
	controller common.Address,
	opts ...Option,
) (*Keeper, error) {
	k := &Keeper{
		manager:    manager,
		state:      state,
		calibrator: calibrator,
		controller: controller,
		period:     DefaultPeriod,
		interval:   DefaultInterval,
		publisher:  nopPublisher{},
		now:        time.Now,
		spots:      make(map[[32]byte]*uint256.Int),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.log == nil {
		k.log = log.NewTestLogger(log.InfoLevel)
	}
	if k.period == 0 {
		return nil, errPeriod
	}
	node, err := snowflake.NewNode(k.nodeID)
	if err != nil {
		return nil, fmt.Errorf("keeper: %w", err)
	}
	k.node = node
	return k, nil
}

// AddPool starts maintaining p.
func (k *Keeper) AddPool(p Pool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pools = append(k.pools, p)
}

// Run performs a round every interval until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := k.Step(ctx); err != nil {
				k.log.Warn("keeper round failed", "err", err)
			}
		}
	}
}

// Step runs one round over every pool and returns the records it issued.
// A pool whose price has not moved since its last calibration is skipped.
// Failures are collected per pool; the other pools still run.
func (k *Keeper) Step(ctx context.Context) ([]*Record, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var (
		recs []*Record
		errs []error
	)
	for _, p := range k.pools {
		if err := ctx.Err(); err != nil {
			return recs, err
		}
		rec, err := k.calibrate(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %x: %w", p.Key.ID(), err))
			continue
		}
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	return recs, errors.Join(errs...)
}

// calibrate runs one pool. It returns a nil record when the price did not
// move. Caller holds mu.
func (k *Keeper) calibrate(ctx context.Context, p Pool) (*Record, error) {
	poolID := p.Key.ID()
	cal, err := k.calibrator.Calibrate(ctx, p.Key.Risky.Address, p.Terms)
	if err != nil {
		return nil, err
	}
	if last, ok := k.spots[poolID]; ok && last.Eq(cal.Params.Spot) {
		return nil, nil
	}

	begin := k.state.GetBlockNumber()
	final, err := k.manager.TargetWeightsOverTime(k.state, k.controller, p.Key, cal.Weights, k.period)
	if err != nil {
		return nil, err
	}
	k.spots[poolID] = new(uint256.Int).Set(cal.Params.Spot)

	rec, err := newRecord(k.node.Generate(), poolID, cal, begin, final, k.now())
	if err != nil {
		return nil, err
	}
	if k.history != nil {
		if err := k.history.Put(rec); err != nil {
			return nil, err
		}
	}
	if err := k.publisher.Publish(rec); err != nil {
		k.log.Warn("publish calibration failed", "id", rec.ID, "err", err)
	}

	k.log.Info("pool recalibrated",
		"pool", rec.Pool,
		"spot", rec.Spot,
		"weights", cal.Weights,
		"finalBlock", final,
	)
	return rec, nil
}

// Close releases the publisher.
func (k *Keeper) Close() {
	k.publisher.Close()
}
