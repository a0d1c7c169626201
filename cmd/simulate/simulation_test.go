// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/optionpool/config"
	"github.com/luxfi/optionpool/dex"
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func newTestSimulation(t *testing.T, cfg *config.Config) *simulation {
	t.Helper()
	s, err := newSimulation(context.Background(), cfg, log.NewTestLogger(log.InfoLevel), 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.close()) })
	return s
}

func TestSimulationSteps(t *testing.T) {
	s := newTestSimulation(t, config.Default())
	seed, err := s.manager.GetPool(s.state, s.key)
	require.NoError(t, err)

	require.NoError(t, s.run(context.Background(), 3))

	recs, err := s.history.List(s.key.ID())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		require.Equal(t, ether(uint64(101+i)), rec.Spot)
		require.Equal(t, uint64(startBlock+239*i), rec.BeginBlock)
		require.Equal(t, rec.BeginBlock+240, rec.FinalBlock)
	}
	require.Len(t, s.state.Logs(), 3)

	// Every round sold risky into the pool.
	st, err := s.manager.GetPool(s.state, s.key)
	require.NoError(t, err)
	require.True(t, st.RiskyBalance.Gt(seed.RiskyBalance))
	require.True(t, st.RiskFreeBalance.Lt(seed.RiskFreeBalance))
	require.Equal(t, uint64(startBlock+3*239), st.LastApplied)

	var buf bytes.Buffer
	require.NoError(t, s.render(&buf))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines[1], "100.000000")
	require.Contains(t, lines[4], "103.000000")
}

func TestSimulate(t *testing.T) {
	var buf bytes.Buffer
	err := simulate(context.Background(), config.Default(), log.NewTestLogger(log.InfoLevel), 2, 2, &buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "w_risky")
	require.Contains(t, lines[3], "102.00")
}

func TestSimulationRejectsBadPool(t *testing.T) {
	cfg := config.Default()
	cfg.RiskFree = cfg.Risky
	_, err := newSimulation(context.Background(), cfg, log.NewTestLogger(log.InfoLevel), 0)
	require.ErrorIs(t, err, dex.ErrInvalidPoolKey)
}

func TestSimulationRedisFeed(t *testing.T) {
	cfg := config.Default()
	cfg.RedisAddr = "localhost:6379"
	cfg.RedisKeyPrefix = "optionpool:simulate:"
	s, err := newSimulation(context.Background(), cfg, log.NewTestLogger(log.InfoLevel), 0)
	if err != nil {
		t.Skipf("skipping test; redis not available: %v", err)
	}
	defer s.close()

	require.NoError(t, s.run(context.Background(), 1))
	price, err := s.feed.GetPrice(context.Background(), cfg.Risky)
	require.NoError(t, err)
	require.Equal(t, ether(101), price)
}
