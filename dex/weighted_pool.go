// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/optionpool/fixedpoint"
)

// WeightedPool is the engine a PoolManager drives. Weights are
// denormalised 18-decimal amounts; balances are token amounts.
type WeightedPool interface {
	Bind(token common.Address, balance, denorm *uint256.Int) error
	Rebind(token common.Address, balance, denorm *uint256.Int) error
	Reweight(denorms map[common.Address]*uint256.Int) error
	Finalize(holder common.Address) error
	Tokens() []common.Address
	Balance(token common.Address) (*uint256.Int, error)
	DenormalizedWeight(token common.Address) (*uint256.Int, error)
	SpotPrice(tokenIn, tokenOut common.Address) (fixedpoint.Fixed, error)
	SwapExactAmountIn(tokenIn, tokenOut common.Address, amountIn, minAmountOut *uint256.Int) (*uint256.Int, error)
	JoinPool(holder common.Address, poolAmountOut *uint256.Int, maxAmountsIn []*uint256.Int) ([]*uint256.Int, error)
	ExitPool(holder common.Address, poolAmountIn *uint256.Int, minAmountsOut []*uint256.Int) ([]*uint256.Int, error)
	TotalSupply() *uint256.Int
	SharesOf(holder common.Address) *uint256.Int
}

// Balancer-style bounds
var (
	MinBoundWeight = ether(1)
	MaxBoundWeight = ether(50)
	MaxTotalWeight = ether(50)
	MinBalance     = uint256.NewInt(1e6)
	InitPoolSupply = ether(100)

	// DefaultSwapFee is 0.3%.
	DefaultSwapFee = mustFraction(3, 1000)
	// MaxSwapFee is 10%.
	MaxSwapFee = mustFraction(1, 10)
	// MaxInRatio bounds a swap input to half the input balance.
	MaxInRatio = fixedpoint.Half

	q64 = new(uint256.Int).Lsh(uint256.NewInt(1), fixedpoint.FractionBits)
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func mustFraction(num, den uint64) fixedpoint.Fixed {
	f, err := fixedpoint.FromFraction(num, den)
	if err != nil {
		panic(err)
	}
	return f
}

type record struct {
	balance *uint256.Int
	denorm  *uint256.Int
}

// BalancerPool is an in-memory two-or-more token weighted pool with
// out-given-in swap math and proportional joins and exits.
type BalancerPool struct {
	mu sync.RWMutex

	swapFee     fixedpoint.Fixed
	tokens      []common.Address
	records     map[common.Address]*record
	totalWeight *uint256.Int

	finalized   bool
	totalSupply *uint256.Int
	shares      map[common.Address]*uint256.Int
}

var _ WeightedPool = (*BalancerPool)(nil)

// NewBalancerPool creates an empty pool charging swapFee.
func NewBalancerPool(swapFee fixedpoint.Fixed) (*BalancerPool, error) {
	if swapFee.Sign() < 0 || swapFee.Gt(MaxSwapFee) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSwapFee, swapFee)
	}
	return &BalancerPool{
		swapFee:     swapFee,
		records:     make(map[common.Address]*record),
		totalWeight: new(uint256.Int),
		totalSupply: new(uint256.Int),
		shares:      make(map[common.Address]*uint256.Int),
	}, nil
}

// SwapFee returns the fee charged on swap inputs.
func (p *BalancerPool) SwapFee() fixedpoint.Fixed {
	return p.swapFee
}

// =========================================================================
// Binding
// =========================================================================

func (p *BalancerPool) Bind(token common.Address, balance, denorm *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.records[token]; ok {
		return ErrAlreadyBound
	}
	p.records[token] = &record{balance: new(uint256.Int), denorm: new(uint256.Int)}
	p.tokens = append(p.tokens, token)
	if err := p.rebind(token, balance, denorm); err != nil {
		delete(p.records, token)
		p.tokens = p.tokens[:len(p.tokens)-1]
		return err
	}
	return nil
}

func (p *BalancerPool) Rebind(token common.Address, balance, denorm *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.records[token]; !ok {
		return ErrNotBound
	}
	return p.rebind(token, balance, denorm)
}

// Reweight replaces the denormalised weights of bound tokens, leaving
// balances alone. Either every weight is applied or none is.
func (p *BalancerPool) Reweight(denorms map[common.Address]*uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := new(uint256.Int).Set(p.totalWeight)
	for token, denorm := range denorms {
		rec, ok := p.records[token]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotBound, token.Hex())
		}
		if err := checkWeight(denorm); err != nil {
			return err
		}
		total.Sub(total, rec.denorm)
		total.Add(total, denorm)
	}
	if total.Gt(MaxTotalWeight) {
		return ErrMaxTotalWeight
	}
	for token, denorm := range denorms {
		p.records[token].denorm = new(uint256.Int).Set(denorm)
	}
	p.totalWeight = total
	return nil
}

func checkWeight(denorm *uint256.Int) error {
	if denorm.Lt(MinBoundWeight) {
		return fmt.Errorf("%w: %s", ErrMinWeight, denorm.Dec())
	}
	if denorm.Gt(MaxBoundWeight) {
		return fmt.Errorf("%w: %s", ErrMaxWeight, denorm.Dec())
	}
	return nil
}

// rebind validates and stores a token record. Caller holds mu.
func (p *BalancerPool) rebind(token common.Address, balance, denorm *uint256.Int) error {
	if err := checkWeight(denorm); err != nil {
		return err
	}
	if balance.Lt(MinBalance) {
		return fmt.Errorf("%w: %s", ErrMinBalance, balance.Dec())
	}

	rec := p.records[token]
	total := new(uint256.Int).Sub(p.totalWeight, rec.denorm)
	total.Add(total, denorm)
	if total.Gt(MaxTotalWeight) {
		return ErrMaxTotalWeight
	}

	p.totalWeight = total
	rec.denorm = new(uint256.Int).Set(denorm)
	rec.balance = new(uint256.Int).Set(balance)
	return nil
}

// Finalize mints InitPoolSupply shares to holder and opens the pool.
func (p *BalancerPool) Finalize(holder common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finalized {
		return ErrPoolAlreadyInitialized
	}
	if len(p.tokens) < 2 {
		return ErrNotBound
	}
	p.finalized = true
	p.mint(holder, InitPoolSupply)
	return nil
}

// =========================================================================
// Views
// =========================================================================

func (p *BalancerPool) Tokens() []common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]common.Address(nil), p.tokens...)
}

func (p *BalancerPool) Balance(token common.Address) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.records[token]
	if !ok {
		return nil, ErrNotBound
	}
	return new(uint256.Int).Set(rec.balance), nil
}

func (p *BalancerPool) DenormalizedWeight(token common.Address) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.records[token]
	if !ok {
		return nil, ErrNotBound
	}
	return new(uint256.Int).Set(rec.denorm), nil
}

func (p *BalancerPool) TotalSupply() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(p.totalSupply)
}

func (p *BalancerPool) SharesOf(holder common.Address) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.shares[holder]; ok {
		return new(uint256.Int).Set(s)
	}
	return new(uint256.Int)
}

// SpotPrice returns the marginal price of tokenOut in tokenIn, fee
// included: (Bi / wi) / (Bo / wo) / (1 - fee).
func (p *BalancerPool) SpotPrice(tokenIn, tokenOut common.Address) (fixedpoint.Fixed, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	in, out, err := p.pair(tokenIn, tokenOut)
	if err != nil {
		return fixedpoint.Zero, err
	}
	num, overflow := new(uint256.Int).MulDivOverflow(in.balance, out.denorm, in.denorm)
	if overflow {
		return fixedpoint.Zero, fixedpoint.ErrArithmeticOverflow
	}
	raw, overflow := new(uint256.Int).MulDivOverflow(num, q64, out.balance)
	if overflow {
		return fixedpoint.Zero, fixedpoint.ErrArithmeticOverflow
	}
	ratio, err := fixedpoint.FromRaw(raw)
	if err != nil {
		return fixedpoint.Zero, err
	}
	keep, err := fixedpoint.Sub(fixedpoint.One, p.swapFee)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Div(ratio, keep)
}

func (p *BalancerPool) pair(tokenIn, tokenOut common.Address) (in, out *record, err error) {
	var ok bool
	if in, ok = p.records[tokenIn]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotBound, tokenIn.Hex())
	}
	if out, ok = p.records[tokenOut]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotBound, tokenOut.Hex())
	}
	return in, out, nil
}

// =========================================================================
// Swaps
// =========================================================================

// SwapExactAmountIn sells amountIn of tokenIn for
//
//	Bo * (1 - (Bi / (Bi + Ai * (1 - fee))) ^ (wi / wo))
//
// of tokenOut.
func (p *BalancerPool) SwapExactAmountIn(
	tokenIn, tokenOut common.Address,
	amountIn, minAmountOut *uint256.Int,
) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.finalized {
		return nil, ErrNotFinalized
	}
	if amountIn == nil || amountIn.IsZero() || tokenIn == tokenOut {
		return nil, ErrInvalidAmount
	}
	in, out, err := p.pair(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	limit, err := fixedpoint.MulU(MaxInRatio, in.balance)
	if err != nil {
		return nil, err
	}
	if amountIn.Gt(limit) {
		return nil, ErrMaxInRatio
	}

	amountOut, err := outGivenIn(in, out, amountIn, p.swapFee)
	if err != nil {
		return nil, err
	}
	if minAmountOut != nil && amountOut.Lt(minAmountOut) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrLimitOut, amountOut.Dec(), minAmountOut.Dec())
	}
	if !amountOut.Lt(out.balance) {
		return nil, ErrInsufficientBalance
	}

	in.balance = new(uint256.Int).Add(in.balance, amountIn)
	out.balance = new(uint256.Int).Sub(out.balance, amountOut)
	return amountOut, nil
}

func outGivenIn(in, out *record, amountIn *uint256.Int, fee fixedpoint.Fixed) (*uint256.Int, error) {
	keep, err := fixedpoint.Sub(fixedpoint.One, fee)
	if err != nil {
		return nil, err
	}
	adjusted, err := fixedpoint.MulU(keep, amountIn)
	if err != nil {
		return nil, err
	}
	if adjusted.IsZero() {
		return new(uint256.Int), nil
	}

	// y = Bi / (Bi + Ai') as a raw 64.64 value below one.
	grown := new(uint256.Int).Add(in.balance, adjusted)
	rawY, overflow := new(uint256.Int).MulDivOverflow(in.balance, q64, grown)
	if overflow {
		return nil, fixedpoint.ErrArithmeticOverflow
	}
	y, err := fixedpoint.FromRaw(rawY)
	if err != nil {
		return nil, err
	}

	wi, err := fixedpoint.FromWei(in.denorm)
	if err != nil {
		return nil, err
	}
	wo, err := fixedpoint.FromWei(out.denorm)
	if err != nil {
		return nil, err
	}
	exponent, err := fixedpoint.Div(wi, wo)
	if err != nil {
		return nil, err
	}
	pow, err := fixedpoint.PowFixed(y, exponent)
	if err != nil {
		return nil, err
	}
	share, err := fixedpoint.Sub(fixedpoint.One, pow)
	if err != nil {
		return nil, err
	}
	if share.Sign() <= 0 {
		return new(uint256.Int), nil
	}
	return fixedpoint.MulU(share, out.balance)
}

// =========================================================================
// Joins and exits
// =========================================================================

// JoinPool mints poolAmountOut shares to holder against a proportional
// deposit of every token, rounded up.
func (p *BalancerPool) JoinPool(holder common.Address, poolAmountOut *uint256.Int, maxAmountsIn []*uint256.Int) ([]*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.finalized {
		return nil, ErrNotFinalized
	}
	if poolAmountOut == nil || poolAmountOut.IsZero() || len(maxAmountsIn) != len(p.tokens) {
		return nil, ErrInvalidAmount
	}

	amounts := make([]*uint256.Int, len(p.tokens))
	for i, token := range p.tokens {
		amount, err := mulDivUp(p.records[token].balance, poolAmountOut, p.totalSupply)
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			return nil, ErrInvalidAmount
		}
		if maxAmountsIn[i] != nil && amount.Gt(maxAmountsIn[i]) {
			return nil, fmt.Errorf("%w: token %d needs %s", ErrLimitIn, i, amount.Dec())
		}
		amounts[i] = amount
	}
	for i, token := range p.tokens {
		rec := p.records[token]
		rec.balance = new(uint256.Int).Add(rec.balance, amounts[i])
	}
	p.mint(holder, poolAmountOut)
	return amounts, nil
}

// ExitPool burns poolAmountIn of holder's shares for a proportional
// withdrawal of every token, rounded down.
func (p *BalancerPool) ExitPool(holder common.Address, poolAmountIn *uint256.Int, minAmountsOut []*uint256.Int) ([]*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.finalized {
		return nil, ErrNotFinalized
	}
	if poolAmountIn == nil || poolAmountIn.IsZero() || len(minAmountsOut) != len(p.tokens) {
		return nil, ErrInvalidAmount
	}
	held, ok := p.shares[holder]
	if !ok || held.Lt(poolAmountIn) {
		return nil, ErrInsufficientShares
	}

	amounts := make([]*uint256.Int, len(p.tokens))
	for i, token := range p.tokens {
		amount, overflow := new(uint256.Int).MulDivOverflow(p.records[token].balance, poolAmountIn, p.totalSupply)
		if overflow {
			return nil, fixedpoint.ErrArithmeticOverflow
		}
		if minAmountsOut[i] != nil && amount.Lt(minAmountsOut[i]) {
			return nil, fmt.Errorf("%w: token %d gives %s", ErrLimitOut, i, amount.Dec())
		}
		amounts[i] = amount
	}
	for i, token := range p.tokens {
		rec := p.records[token]
		rec.balance = new(uint256.Int).Sub(rec.balance, amounts[i])
	}
	held.Sub(held, poolAmountIn)
	p.totalSupply.Sub(p.totalSupply, poolAmountIn)
	return amounts, nil
}

// mint credits shares to holder. Caller holds mu.
func (p *BalancerPool) mint(holder common.Address, amount *uint256.Int) {
	held, ok := p.shares[holder]
	if !ok {
		held = new(uint256.Int)
		p.shares[holder] = held
	}
	held.Add(held, amount)
	p.totalSupply.Add(p.totalSupply, amount)
}

// mulDivUp returns ceil(x * y / d).
func mulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fixedpoint.ErrDivisionByZero
	}
	prod, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fixedpoint.ErrArithmeticOverflow
	}
	q, r := new(uint256.Int).DivMod(prod, d, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q, nil
}
