// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/fixedpoint"
	"github.com/luxfi/optionpool/modules"
	"github.com/luxfi/optionpool/schedule"
)

// StateDB interface for accessing and modifying EVM state
type StateDB = modules.StateDB

// Precompile address as bytes (LP-9016)
var poolManagerAddr = common.HexToAddress(OptionPoolAddress)

// Storage key prefixes for pool manager state
var (
	poolStatePrefix  = []byte("pool")
	controllerPrefix = []byte("ctrl")
	weightPrefix     = []byte("wght")
	appliedPrefix    = []byte("aply")
	schedulePrefix   = []byte("schd")
)

// Pool is a live option pool: its weighted engine and the scheduler that
// feeds it weights.
type Pool struct {
	Key        PoolKey
	Controller common.Address
	Engine     WeightedPool
	Scheduler  *schedule.Scheduler

	lastApplied uint64
}

// PoolState is a snapshot of a pool for callers.
type PoolState struct {
	Key             PoolKey
	Controller      common.Address
	Weights         calibration.Weights // weights at the queried block
	RiskyBalance    *uint256.Int
	RiskFreeBalance *uint256.Int
	RiskyDenorm     *uint256.Int // weight last bound in the engine
	RiskFreeDenorm  *uint256.Int
	TotalSupply     *uint256.Int
	Schedule        *schedule.Schedule
	State           schedule.State
	LastApplied     uint64
}

// ManagerOption configures a PoolManager.
type ManagerOption func(*PoolManager)

func WithManagerLogger(l log.Logger) ManagerOption {
	return func(pm *PoolManager) { pm.log = l }
}

// WithHookRegistry resolves hook addresses through hr. A nil registry
// disables hooks and rejects hooked pool keys.
func WithHookRegistry(hr *HookRegistry) ManagerOption {
	return func(pm *PoolManager) { pm.hooks = hr }
}

// WithMaxPools caps the number of pools. Zero means no cap.
func WithMaxPools(n uint64) ManagerOption {
	return func(pm *PoolManager) { pm.maxPools = n }
}

// PoolManager implements the option pool manager precompile. Every pool
// operation first pulls the scheduled weights for the current block into
// the pool's engine, then runs the engine math.
type PoolManager struct {
	// mu protects concurrent access to shared state
	mu sync.RWMutex

	// pools stores all live pools by pool ID
	// Key: BLAKE3(poolKey) -> Pool
	pools map[[32]byte]*Pool

	hooks    *HookRegistry
	maxPools uint64
	log      log.Logger
}

// NewPoolManager creates a new pool manager instance
func NewPoolManager(opts ...ManagerOption) *PoolManager {
	pm := &PoolManager{
		pools: make(map[[32]byte]*Pool),
		hooks: NewHookRegistry(),
	}
	for _, opt := range opts {
		opt(pm)
	}
	if pm.log == nil {
		pm.log = log.NewTestLogger(log.InfoLevel)
	}
	return pm
}

// Hooks returns the manager's hook registry.
func (pm *PoolManager) Hooks() *HookRegistry {
	return pm.hooks
}

// makeStorageKey creates a storage key from prefix and identifier
func makeStorageKey(prefix []byte, id []byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	h.Write(id)
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

func slotKey(prefix []byte, poolID [32]byte, suffix ...byte) common.Hash {
	return makeStorageKey(prefix, append(poolID[:], suffix...))
}

// =========================================================================
// Pool Initialization
// =========================================================================

// Initialize binds the calibrated amounts into engine at the calibrated
// weights, finalizes it with caller as the first holder and controller,
// and starts the pool's scheduler at those weights.
func (pm *PoolManager) Initialize(
	stateDB StateDB,
	caller common.Address,
	key PoolKey,
	cal *calibration.Calibration,
	engine WeightedPool,
) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if cal == nil || engine == nil {
		return ErrInvalidAmount
	}
	if cal.Amounts.Risky == nil || cal.Amounts.RiskFree == nil ||
		cal.Amounts.Risky.IsZero() || cal.Amounts.RiskFree.IsZero() {
		return fmt.Errorf("%w: pool needs both assets", ErrInvalidAmount)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.hooks == nil && key.Hooks != (common.Address{}) {
		return fmt.Errorf("%w: hooks disabled", ErrInvalidPoolKey)
	}
	poolID := key.ID()
	if _, ok := pm.pools[poolID]; ok {
		return ErrPoolAlreadyInitialized
	}
	if pm.maxPools > 0 && uint64(len(pm.pools)) >= pm.maxPools {
		return ErrTooManyPools
	}

	now := stateDB.GetBlockNumber()
	call := HookCall{Key: key, Sender: caller, Block: now, Weights: cal.Weights}
	if err := pm.callHook(stateDB, key.Hooks, HookBeforeInitialize, call); err != nil {
		return err
	}

	scheduler, err := schedule.New(cal.Weights)
	if err != nil {
		return err
	}
	risky, riskFree, err := cal.Weights.Denormalize()
	if err != nil {
		return err
	}
	if err := engine.Bind(key.Risky.Address, cal.Amounts.Risky, risky); err != nil {
		return fmt.Errorf("bind risky: %w", err)
	}
	if err := engine.Bind(key.RiskFree.Address, cal.Amounts.RiskFree, riskFree); err != nil {
		return fmt.Errorf("bind risk-free: %w", err)
	}
	if err := engine.Finalize(caller); err != nil {
		return err
	}

	pool := &Pool{
		Key:         key,
		Controller:  caller,
		Engine:      engine,
		Scheduler:   scheduler,
		lastApplied: now,
	}
	pm.pools[poolID] = pool
	pm.setPool(stateDB, poolID, pool)
	pm.setWeights(stateDB, poolID, cal.Weights, now)

	if err := pm.callHook(stateDB, key.Hooks, HookAfterInitialize, call); err != nil {
		return err
	}

	pm.log.Info("option pool initialized",
		"pool", common.Hash(poolID),
		"strike", key.Strike,
		"weights", cal.Weights,
		"risky", cal.Amounts.Risky,
		"riskFree", cal.Amounts.RiskFree,
	)
	return nil
}

// =========================================================================
// Calibration
// =========================================================================

// TargetWeightsOverTime schedules the pool's weights to move from their
// current value to final over periodBlocks, starting at the current
// block. Only the pool controller may call it. Returns the final block.
func (pm *PoolManager) TargetWeightsOverTime(
	stateDB StateDB,
	caller common.Address,
	key PoolKey,
	final calibration.Weights,
	periodBlocks uint64,
) (uint64, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	poolID := key.ID()
	pool, err := pm.getPool(poolID)
	if err != nil {
		return 0, err
	}
	if caller != pool.Controller {
		return 0, ErrUnauthorized
	}

	if err := checkEngineWeights(final); err != nil {
		return 0, err
	}

	now := stateDB.GetBlockNumber()
	begin := pool.Scheduler.Current(now)
	call := HookCall{Key: key, Sender: caller, Block: now, Weights: begin, Final: &final}
	if err := pm.callHook(stateDB, key.Hooks, HookBeforeCalibrate, call); err != nil {
		return 0, err
	}

	finalBlock := now + periodBlocks
	if finalBlock < now {
		return 0, schedule.ErrInvalidSchedule
	}
	if err := pool.Scheduler.Install(begin, final, now, finalBlock); err != nil {
		return 0, err
	}
	sched, _ := pool.Scheduler.Active()
	if err := pm.setSchedule(stateDB, poolID, sched); err != nil {
		return 0, err
	}
	if err := pm.emitCalibrationUpdated(stateDB, poolID, sched); err != nil {
		return 0, err
	}

	if err := pm.callHook(stateDB, key.Hooks, HookAfterCalibrate, call); err != nil {
		return 0, err
	}

	pm.log.Info("calibration scheduled",
		"pool", common.Hash(poolID),
		"beginBlock", now,
		"finalBlock", finalBlock,
		"begin", begin,
		"final", final,
	)
	return finalBlock, nil
}

// checkEngineWeights rejects weights the engine could not be rebound to.
func checkEngineWeights(w calibration.Weights) error {
	risky, riskFree, err := w.Denormalize()
	if err != nil {
		return err
	}
	if err := checkWeight(risky); err != nil {
		return err
	}
	if err := checkWeight(riskFree); err != nil {
		return err
	}
	total, overflow := new(uint256.Int).AddOverflow(risky, riskFree)
	if overflow || total.Gt(MaxTotalWeight) {
		return ErrMaxTotalWeight
	}
	return nil
}

func (pm *PoolManager) emitCalibrationUpdated(stateDB StateDB, poolID [32]byte, sched schedule.Schedule) error {
	beginRisky, beginRiskFree, err := sched.Begin.Denormalize()
	if err != nil {
		return err
	}
	finalRisky, finalRiskFree, err := sched.Final.Denormalize()
	if err != nil {
		return err
	}
	topics, data, err := OptionPoolABI.PackEvent("CalibrationUpdated",
		common.Hash(poolID),
		new(big.Int).SetUint64(sched.BeginBlock),
		[]*big.Int{beginRisky.ToBig(), beginRiskFree.ToBig()},
		new(big.Int).SetUint64(sched.FinalBlock),
		[]*big.Int{finalRisky.ToBig(), finalRiskFree.ToBig()},
	)
	if err != nil {
		return err
	}
	stateDB.AddLog(&ethtypes.Log{
		Address:     poolManagerAddr,
		Topics:      topics,
		Data:        data,
		BlockNumber: stateDB.GetBlockNumber(),
	})
	return nil
}

// =========================================================================
// Core Pool Operations
// =========================================================================

// applyWeights moves the engine to the scheduled weights for the
// current block. It runs at most once per block. Caller holds mu.
func (pm *PoolManager) applyWeights(stateDB StateDB, poolID [32]byte, pool *Pool) (calibration.Weights, error) {
	now := stateDB.GetBlockNumber()
	w := pool.Scheduler.Current(now)
	if now == pool.lastApplied {
		return w, nil
	}

	risky, riskFree, err := w.Denormalize()
	if err != nil {
		return w, err
	}
	// Exits may leave balances under MinBalance; only weights change here.
	err = pool.Engine.Reweight(map[common.Address]*uint256.Int{
		pool.Key.Risky.Address:    risky,
		pool.Key.RiskFree.Address: riskFree,
	})
	if err != nil {
		return w, fmt.Errorf("apply weights at block %d: %w", now, err)
	}

	pool.lastApplied = now
	pm.setWeights(stateDB, poolID, w, now)
	pm.log.Debug("weights applied", "pool", common.Hash(poolID), "block", now, "weights", w)
	return w, nil
}

// Swap sells params.AmountIn of one asset for the other at the weights
// scheduled for the current block.
func (pm *PoolManager) Swap(
	stateDB StateDB,
	caller common.Address,
	key PoolKey,
	params SwapParams,
) (*uint256.Int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	poolID := key.ID()
	pool, err := pm.getPool(poolID)
	if err != nil {
		return nil, err
	}
	w, err := pm.applyWeights(stateDB, poolID, pool)
	if err != nil {
		return nil, err
	}

	call := HookCall{Key: key, Sender: caller, Block: stateDB.GetBlockNumber(), Weights: w, Swap: &params}
	if err := pm.callHook(stateDB, key.Hooks, HookBeforeSwap, call); err != nil {
		return nil, err
	}

	tokenIn, tokenOut := key.RiskFree.Address, key.Risky.Address
	if params.RiskyIn {
		tokenIn, tokenOut = tokenOut, tokenIn
	}
	amountOut, err := pool.Engine.SwapExactAmountIn(tokenIn, tokenOut, params.AmountIn, params.MinAmountOut)
	if err != nil {
		return nil, err
	}

	call.AmountOut = amountOut
	if err := pm.callHook(stateDB, key.Hooks, HookAfterSwap, call); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// SpotPrice returns the price of one unit out in units in, fee included,
// after applying the weights scheduled for the current block.
func (pm *PoolManager) SpotPrice(stateDB StateDB, key PoolKey, riskyIn bool) (fixedpoint.Fixed, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	poolID := key.ID()
	pool, err := pm.getPool(poolID)
	if err != nil {
		return fixedpoint.Zero, err
	}
	if _, err := pm.applyWeights(stateDB, poolID, pool); err != nil {
		return fixedpoint.Zero, err
	}
	tokenIn, tokenOut := key.RiskFree.Address, key.Risky.Address
	if riskyIn {
		tokenIn, tokenOut = tokenOut, tokenIn
	}
	return pool.Engine.SpotPrice(tokenIn, tokenOut)
}

// Join mints poolAmountOut shares to caller for a proportional deposit.
func (pm *PoolManager) Join(
	stateDB StateDB,
	caller common.Address,
	key PoolKey,
	poolAmountOut *uint256.Int,
	maxIn calibration.Amounts,
) (calibration.Amounts, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return pm.modifyShares(stateDB, caller, key, HookBeforeJoin, HookAfterJoin,
		func(pool *Pool) ([]*uint256.Int, error) {
			return pool.Engine.JoinPool(caller, poolAmountOut, pm.ordered(pool, maxIn))
		})
}

// Exit burns poolAmountIn of caller's shares for a proportional
// withdrawal.
func (pm *PoolManager) Exit(
	stateDB StateDB,
	caller common.Address,
	key PoolKey,
	poolAmountIn *uint256.Int,
	minOut calibration.Amounts,
) (calibration.Amounts, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return pm.modifyShares(stateDB, caller, key, HookBeforeExit, HookAfterExit,
		func(pool *Pool) ([]*uint256.Int, error) {
			return pool.Engine.ExitPool(caller, poolAmountIn, pm.ordered(pool, minOut))
		})
}

// modifyShares runs a join or exit between its hooks. Caller holds mu.
func (pm *PoolManager) modifyShares(
	stateDB StateDB,
	caller common.Address,
	key PoolKey,
	before, after HookFlags,
	op func(*Pool) ([]*uint256.Int, error),
) (calibration.Amounts, error) {
	poolID := key.ID()
	pool, err := pm.getPool(poolID)
	if err != nil {
		return calibration.Amounts{}, err
	}
	w, err := pm.applyWeights(stateDB, poolID, pool)
	if err != nil {
		return calibration.Amounts{}, err
	}

	call := HookCall{Key: key, Sender: caller, Block: stateDB.GetBlockNumber(), Weights: w}
	if err := pm.callHook(stateDB, key.Hooks, before, call); err != nil {
		return calibration.Amounts{}, err
	}
	amounts, err := op(pool)
	if err != nil {
		return calibration.Amounts{}, err
	}
	out := pm.unordered(pool, amounts)
	if err := pm.callHook(stateDB, key.Hooks, after, call); err != nil {
		return calibration.Amounts{}, err
	}
	return out, nil
}

// ordered lays out a by the engine's token order.
func (pm *PoolManager) ordered(pool *Pool, a calibration.Amounts) []*uint256.Int {
	tokens := pool.Engine.Tokens()
	out := make([]*uint256.Int, len(tokens))
	for i, token := range tokens {
		switch token {
		case pool.Key.Risky.Address:
			out[i] = a.Risky
		case pool.Key.RiskFree.Address:
			out[i] = a.RiskFree
		}
	}
	return out
}

func (pm *PoolManager) unordered(pool *Pool, amounts []*uint256.Int) calibration.Amounts {
	var a calibration.Amounts
	for i, token := range pool.Engine.Tokens() {
		switch token {
		case pool.Key.Risky.Address:
			a.Risky = amounts[i]
		case pool.Key.RiskFree.Address:
			a.RiskFree = amounts[i]
		}
	}
	return a
}

// =========================================================================
// Storage
// =========================================================================

func (pm *PoolManager) getPool(poolID [32]byte) (*Pool, error) {
	pool, ok := pm.pools[poolID]
	if !ok {
		return nil, ErrPoolNotInitialized
	}
	return pool, nil
}

// setPool records the pool's existence and controller in state.
func (pm *PoolManager) setPool(stateDB StateDB, poolID [32]byte, pool *Pool) {
	var initHash common.Hash
	initHash[31] = 1
	stateDB.SetState(poolManagerAddr, slotKey(poolStatePrefix, poolID), initHash)
	stateDB.SetState(poolManagerAddr, slotKey(controllerPrefix, poolID), common.BytesToHash(pool.Controller.Bytes()))
}

// setWeights records the weights applied at block.
func (pm *PoolManager) setWeights(stateDB StateDB, poolID [32]byte, w calibration.Weights, block uint64) {
	var riskyHash, riskFreeHash common.Hash
	w.Risky.Raw().WriteToSlice(riskyHash[:])
	w.RiskFree.Raw().WriteToSlice(riskFreeHash[:])
	stateDB.SetState(poolManagerAddr, slotKey(weightPrefix, poolID, 0), riskyHash)
	stateDB.SetState(poolManagerAddr, slotKey(weightPrefix, poolID, 1), riskFreeHash)
	stateDB.SetState(poolManagerAddr, slotKey(appliedPrefix, poolID), common.BigToHash(new(big.Int).SetUint64(block)))
}

// setSchedule writes the schedule's six words into consecutive slots.
func (pm *PoolManager) setSchedule(stateDB StateDB, poolID [32]byte, sched schedule.Schedule) error {
	data, err := sched.MarshalBinary()
	if err != nil {
		return err
	}
	for i := 0; i*32 < len(data); i++ {
		stateDB.SetState(poolManagerAddr, slotKey(schedulePrefix, poolID, byte(i)), common.BytesToHash(data[i*32:(i+1)*32]))
	}
	return nil
}

// LoadSchedule reads the schedule persisted for key. The boolean is false
// when none was ever installed.
func LoadSchedule(stateDB StateDB, key PoolKey) (schedule.Schedule, bool, error) {
	poolID := key.ID()
	data := make([]byte, 0, 6*32)
	empty := true
	for i := 0; i < 6; i++ {
		word := stateDB.GetState(poolManagerAddr, slotKey(schedulePrefix, poolID, byte(i)))
		if word != (common.Hash{}) {
			empty = false
		}
		data = append(data, word[:]...)
	}
	if empty {
		return schedule.Schedule{}, false, nil
	}
	var sched schedule.Schedule
	if err := sched.UnmarshalBinary(data); err != nil {
		return schedule.Schedule{}, false, err
	}
	return sched, true, nil
}

// Restore reattaches a pool that exists in state to a fresh engine, after
// a restart. The engine must already hold the pool's balances. The
// persisted schedule, if any, is reinstalled.
func (pm *PoolManager) Restore(stateDB StateDB, key PoolKey, engine WeightedPool) error {
	poolID := key.ID()
	if stateDB.GetState(poolManagerAddr, slotKey(poolStatePrefix, poolID)) == (common.Hash{}) {
		return ErrPoolNotFound
	}

	var w calibration.Weights
	var err error
	riskyHash := stateDB.GetState(poolManagerAddr, slotKey(weightPrefix, poolID, 0))
	riskFreeHash := stateDB.GetState(poolManagerAddr, slotKey(weightPrefix, poolID, 1))
	if w, err = weightsFromHashes(riskyHash, riskFreeHash); err != nil {
		return err
	}
	scheduler, err := schedule.New(w)
	if err != nil {
		return err
	}
	sched, ok, err := LoadSchedule(stateDB, key)
	if err != nil {
		return err
	}
	if ok {
		if err := scheduler.Restore(sched); err != nil {
			return err
		}
	}
	applied := stateDB.GetState(poolManagerAddr, slotKey(appliedPrefix, poolID)).Big()
	controller := common.BytesToAddress(stateDB.GetState(poolManagerAddr, slotKey(controllerPrefix, poolID)).Bytes())

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.pools[poolID] = &Pool{
		Key:         key,
		Controller:  controller,
		Engine:      engine,
		Scheduler:   scheduler,
		lastApplied: applied.Uint64(),
	}
	return nil
}

// callHook invokes the registered hook for flag, if any.
func (pm *PoolManager) callHook(stateDB StateDB, hookAddr common.Address, flag HookFlags, call HookCall) error {
	if pm.hooks == nil {
		return nil
	}
	return pm.hooks.Call(stateDB, hookAddr, flag, call)
}

// =========================================================================
// View Functions
// =========================================================================

// CurrentWeights returns the weights scheduled for the current block
// without touching the engine.
func (pm *PoolManager) CurrentWeights(stateDB StateDB, key PoolKey) (calibration.Weights, error) {
	return pm.CurrentWeightsByID(stateDB, key.ID())
}

// CurrentWeightsByID is CurrentWeights keyed by pool ID.
func (pm *PoolManager) CurrentWeightsByID(stateDB StateDB, poolID [32]byte) (calibration.Weights, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	pool, err := pm.getPool(poolID)
	if err != nil {
		return calibration.Weights{}, err
	}
	return pool.Scheduler.Current(stateDB.GetBlockNumber()), nil
}

// GetPool returns a snapshot of the pool at the current block.
func (pm *PoolManager) GetPool(stateDB StateDB, key PoolKey) (*PoolState, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	pool, err := pm.getPool(key.ID())
	if err != nil {
		return nil, err
	}
	now := stateDB.GetBlockNumber()
	st := &PoolState{
		Key:         pool.Key,
		Controller:  pool.Controller,
		Weights:     pool.Scheduler.Current(now),
		TotalSupply: pool.Engine.TotalSupply(),
		State:       pool.Scheduler.State(now),
		LastApplied: pool.lastApplied,
	}
	if sched, ok := pool.Scheduler.Active(); ok {
		st.Schedule = &sched
	}
	if st.RiskyBalance, err = pool.Engine.Balance(key.Risky.Address); err != nil {
		return nil, err
	}
	if st.RiskFreeBalance, err = pool.Engine.Balance(key.RiskFree.Address); err != nil {
		return nil, err
	}
	if st.RiskyDenorm, err = pool.Engine.DenormalizedWeight(key.Risky.Address); err != nil {
		return nil, err
	}
	if st.RiskFreeDenorm, err = pool.Engine.DenormalizedWeight(key.RiskFree.Address); err != nil {
		return nil, err
	}
	return st, nil
}

// PoolKey returns the key of the live pool with the given ID.
func (pm *PoolManager) PoolKey(poolID [32]byte) (PoolKey, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	pool, err := pm.getPool(poolID)
	if err != nil {
		return PoolKey{}, err
	}
	return pool.Key, nil
}

// PoolIDs returns the IDs of all live pools.
func (pm *PoolManager) PoolIDs() [][32]byte {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	ids := make([][32]byte, 0, len(pm.pools))
	for id := range pm.pools {
		ids = append(ids, id)
	}
	return ids
}

func weightsFromHashes(risky, riskFree common.Hash) (calibration.Weights, error) {
	var (
		w   calibration.Weights
		err error
	)
	if w.Risky, err = fixedFromHash(risky); err != nil {
		return w, err
	}
	if w.RiskFree, err = fixedFromHash(riskFree); err != nil {
		return w, err
	}
	return w, nil
}

func fixedFromHash(h common.Hash) (fixedpoint.Fixed, error) {
	return fixedpoint.FromRaw(new(uint256.Int).SetBytes32(h[:]))
}
