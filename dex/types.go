// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dex hosts option-replicating weighted pools for Lux EVMs.
// Each pool holds a risky and a risk-free token whose weights track the
// elasticity of a covered call, migrated block by block toward the latest
// calibration.
package dex

import (
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Precompile addresses.
// LP-aligned format: 0x0000000000000000000000000000000000LPNUM
const (
	OptionPoolAddress  = "0x0000000000000000000000000000000000009016" // LP-9016 option pool manager
	OptionHooksAddress = "0x0000000000000000000000000000000000009017" // LP-9017 option pool hook registry
)

// Gas costs
const (
	GasPoolCreate   uint64 = 50_000 // Create new pool
	GasSwap         uint64 = 12_000 // Swap including weight update
	GasJoin         uint64 = 20_000 // Join pool
	GasExit         uint64 = 20_000 // Exit pool
	GasCalibrate    uint64 = 30_000 // Install a weight schedule
	GasHookCall     uint64 = 3_000  // Hook invocation
	GasWeightUpdate uint64 = 2_000  // Rebind weights at a new block
	GasPoolLookup   uint64 = 100    // Pool state lookup
	GasQuote        uint64 = 5_000  // Black-Scholes evaluation
)

// Hook flags (bitmap for hook capabilities)
type HookFlags uint16

const (
	HookBeforeInitialize HookFlags = 1 << iota
	HookAfterInitialize
	HookBeforeJoin
	HookAfterJoin
	HookBeforeExit
	HookAfterExit
	HookBeforeSwap
	HookAfterSwap
	HookBeforeCalibrate
	HookAfterCalibrate
)

// Currency represents a token.
type Currency struct {
	Address common.Address
}

func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// CurrencyFromBytes deserializes currency from storage
func CurrencyFromBytes(data []byte) Currency {
	return Currency{Address: common.BytesToAddress(data)}
}

// PoolKey uniquely identifies an option pool: the token pair plus the
// terms of the option it replicates.
type PoolKey struct {
	Risky    Currency       // Underlying asset
	RiskFree Currency       // Quote asset
	Strike   *uint256.Int   // Strike price (18 decimals)
	Expiry   uint64         // Expiry timestamp
	Hooks    common.Address // Hook contract address (zero = no hooks)
}

const poolKeyLen = 20 + 20 + 32 + 8 + 20

// ID computes the unique pool identifier
func (pk PoolKey) ID() [32]byte {
	h := blake3.New()
	h.Write(pk.ToBytes())

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// Validate checks the pair is distinct and the strike positive.
func (pk PoolKey) Validate() error {
	if pk.Risky == pk.RiskFree {
		return ErrInvalidPoolKey
	}
	if pk.Strike == nil || pk.Strike.IsZero() {
		return ErrInvalidPoolKey
	}
	return nil
}

// ToBytes serializes pool key for storage
func (pk PoolKey) ToBytes() []byte {
	data := make([]byte, poolKeyLen)
	copy(data[0:20], pk.Risky.ToBytes())
	copy(data[20:40], pk.RiskFree.ToBytes())
	if pk.Strike != nil {
		pk.Strike.WriteToSlice(data[40:72])
	}
	binary.BigEndian.PutUint64(data[72:80], pk.Expiry)
	copy(data[80:100], pk.Hooks.Bytes())
	return data
}

// PoolKeyFromBytes deserializes pool key from storage
func PoolKeyFromBytes(data []byte) (PoolKey, error) {
	if len(data) < poolKeyLen {
		return PoolKey{}, errors.New("invalid pool key data length")
	}
	return PoolKey{
		Risky:    CurrencyFromBytes(data[0:20]),
		RiskFree: CurrencyFromBytes(data[20:40]),
		Strike:   new(uint256.Int).SetBytes(data[40:72]),
		Expiry:   binary.BigEndian.Uint64(data[72:80]),
		Hooks:    common.BytesToAddress(data[80:100]),
	}, nil
}

// SwapParams contains parameters for an exact-input swap
type SwapParams struct {
	RiskyIn      bool         // true = sell risky for risk-free
	AmountIn     *uint256.Int // Exact input amount
	MinAmountOut *uint256.Int // Slippage bound, nil for none
}

// Errors - Core
var (
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrPoolNotFound           = errors.New("pool not found")
	ErrInvalidPoolKey         = errors.New("invalid pool key")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrReadOnly               = errors.New("cannot write in read-only mode")
	ErrOutOfGas               = errors.New("out of gas")
	ErrInputTooShort          = errors.New("input too short")
	ErrTooManyPools           = errors.New("pool limit reached")
)

// Errors - Weighted pool engine
var (
	ErrNotBound            = errors.New("token not bound")
	ErrAlreadyBound        = errors.New("token already bound")
	ErrMinWeight           = errors.New("weight below minimum")
	ErrMaxWeight           = errors.New("weight above maximum")
	ErrMaxTotalWeight      = errors.New("total weight above maximum")
	ErrMinBalance          = errors.New("balance below minimum")
	ErrMaxInRatio          = errors.New("input exceeds max in ratio")
	ErrLimitOut            = errors.New("output below limit")
	ErrLimitIn             = errors.New("input above limit")
	ErrInsufficientShares  = errors.New("insufficient pool shares")
	ErrInvalidSwapFee      = errors.New("invalid swap fee")
	ErrNotFinalized        = errors.New("pool not finalized")
	ErrInsufficientBalance = errors.New("insufficient balance")
)
