// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/config"
	"github.com/luxfi/optionpool/dex"
	"github.com/luxfi/optionpool/keeper"
	"github.com/luxfi/optionpool/oracle"
	"github.com/luxfi/optionpool/report"
)

const defaultPlaces = report.DefaultPlaces

// startBlock is the chain height the simulated pool is created at.
const startBlock = 1

// controller deploys the pool and signs every calibration and swap.
var controller = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

var swapDivisor = uint256.NewInt(100)

// simulation replays a rising spot price against one option pool.
type simulation struct {
	cfg     *config.Config
	log     log.Logger
	state   *dex.MemoryState
	proxy   *oracle.Proxy
	feed    *oracle.RedisFeed
	manager *dex.PoolManager
	engine  *dex.BalancerPool
	keeper  *keeper.Keeper
	history *keeper.History
	key     dex.PoolKey
	table   *report.Table
}

func newSimulation(ctx context.Context, cfg *config.Config, logger log.Logger, places int32) (*simulation, error) {
	terms, err := cfg.Terms()
	if err != nil {
		return nil, err
	}
	spot, err := cfg.SpotWei()
	if err != nil {
		return nil, err
	}
	strategy, err := cfg.AmountStrategy()
	if err != nil {
		return nil, err
	}
	poolCfg := cfg.PoolConfig()
	engine, err := poolCfg.NewEngine()
	if err != nil {
		return nil, err
	}

	s := &simulation{
		cfg:     cfg,
		log:     logger,
		state:   dex.NewMemoryState(startBlock),
		proxy:   oracle.NewProxy(),
		manager: dex.NewPoolManager(dex.WithManagerLogger(logger), dex.WithMaxPools(poolCfg.MaxPools)),
		engine:  engine,
		history: keeper.NewHistory(memdb.New()),
		table:   report.New(places),
		key: dex.PoolKey{
			Risky:    dex.Currency{Address: cfg.Risky},
			RiskFree: dex.Currency{Address: cfg.RiskFree},
			Strike:   terms.Strike,
			Expiry:   cfg.TimeToExpiry,
		},
	}

	if cfg.RedisAddr != "" {
		s.feed = oracle.NewRedisFeed(cfg.RedisAddr, cfg.RedisKeyPrefix)
		if err := s.feed.Ping(ctx); err != nil {
			s.feed.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		s.proxy.SetSource(cfg.Risky, s.feed)
	}
	if err := s.setPrice(ctx, spot); err != nil {
		return nil, s.closeWith(err)
	}

	calibrator := calibration.New(s.proxy,
		calibration.WithEngine(cfg.Engine()),
		calibration.WithStrategy(strategy),
		calibration.WithLogger(logger),
	)
	cal, err := calibrator.Calibrate(ctx, cfg.Risky, terms)
	if err != nil {
		return nil, s.closeWith(err)
	}
	if err := s.manager.Initialize(s.state, controller, s.key, cal, engine); err != nil {
		return nil, s.closeWith(err)
	}
	s.table.AddCalibration(s.state.GetBlockNumber(), cal)

	opts := []keeper.Option{
		keeper.WithPeriod(cfg.UpdatePeriodInBlocks),
		keeper.WithHistory(s.history),
		keeper.WithLogger(logger),
	}
	if cfg.NATSURL != "" {
		pub, err := keeper.NewNATSPublisher(cfg.NATSURL, "")
		if err != nil {
			return nil, s.closeWith(err)
		}
		opts = append(opts, keeper.WithPublisher(pub))
	}
	s.keeper, err = keeper.New(s.manager, s.state, calibrator, controller, opts...)
	if err != nil {
		return nil, s.closeWith(err)
	}
	s.keeper.AddPool(keeper.Pool{Key: s.key, Terms: terms})
	return s, nil
}

// setPrice moves the risky asset's price, through redis when a feed is
// configured.
func (s *simulation) setPrice(ctx context.Context, price *uint256.Int) error {
	if s.feed != nil {
		return s.feed.Publish(ctx, s.cfg.Risky, price)
	}
	return s.proxy.SetPrice(s.cfg.Risky, price)
}

// step raises the spot price, recalibrates, lets the migration run to
// its last block and trades against it.
func (s *simulation) step(ctx context.Context, spot *uint256.Int) error {
	if err := s.setPrice(ctx, spot); err != nil {
		return err
	}
	if _, err := s.keeper.Step(ctx); err != nil {
		return err
	}
	s.state.Mine(s.cfg.UpdatePeriodInBlocks - 1)
	_, err := s.swap()
	return err
}

// swap sells one percent of the pool's risky balance within the
// configured slippage of the price at the current block's weights.
func (s *simulation) swap() (*uint256.Int, error) {
	st, err := s.manager.GetPool(s.state, s.key)
	if err != nil {
		return nil, err
	}
	amountIn := new(uint256.Int).Div(st.RiskyBalance, swapDivisor)
	price, err := s.manager.SpotPrice(s.state, s.key, true)
	if err != nil {
		return nil, err
	}
	minOut, err := s.cfg.MinAmountOut(amountIn, price)
	if err != nil {
		return nil, err
	}
	out, err := s.manager.Swap(s.state, controller, s.key, dex.SwapParams{
		RiskyIn:      true,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
	})
	if err != nil {
		return nil, fmt.Errorf("swap at block %d: %w", s.state.GetBlockNumber(), err)
	}
	s.log.Info("swapped",
		"block", s.state.GetBlockNumber(),
		"in", amountIn,
		"out", out,
		"minOut", minOut,
	)
	return out, nil
}

// run raises the spot price by one unit steps times.
func (s *simulation) run(ctx context.Context, steps int) error {
	spot, err := s.cfg.SpotWei()
	if err != nil {
		return err
	}
	one := uint256.NewInt(1e18)
	for i := 0; i < steps; i++ {
		spot = new(uint256.Int).Add(spot, one)
		if err := s.step(ctx, spot); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// simulate runs steps price moves under cfg and renders the calibrations
// to w.
func simulate(ctx context.Context, cfg *config.Config, logger log.Logger, steps int, places int32, w io.Writer) (err error) {
	s, err := newSimulation(ctx, cfg, logger, places)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.close())
	}()

	if err := s.run(ctx, steps); err != nil {
		return err
	}
	return s.render(w)
}

// render writes every calibration the keeper stored, after the seed row.
func (s *simulation) render(w io.Writer) error {
	recs, err := s.history.List(s.key.ID())
	if err != nil {
		return err
	}
	for _, rec := range recs {
		s.table.AddRecord(rec)
	}
	return s.table.Render(w)
}

func (s *simulation) closeWith(err error) error {
	return errors.Join(err, s.close())
}

func (s *simulation) close() error {
	if s.keeper != nil {
		s.keeper.Close()
	}
	if s.feed != nil {
		return s.feed.Close()
	}
	return nil
}
