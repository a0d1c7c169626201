// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle provides spot price sources for option pool calibration.
// Prices are 18-decimal amounts of the risk-free asset per unit of the
// risky asset.
package oracle

import (
	"context"
	"errors"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	ErrPriceNotSet    = errors.New("oracle: price not set for asset")
	ErrInvalidPrice   = errors.New("oracle: price must be positive")
	ErrUnknownAsset   = errors.New("oracle: asset not tracked by this source")
	ErrNoObservations = errors.New("oracle: no price observations available")
	ErrInvalidWindow  = errors.New("oracle: TWAP window must be positive")
)

// PriceSource returns the current spot price of an asset. Freshness and
// validation are the source's responsibility.
type PriceSource interface {
	GetPrice(ctx context.Context, asset common.Address) (*uint256.Int, error)
}

// Proxy routes price requests per asset. An asset with a registered source
// is forwarded to it; otherwise the manually set price is returned.
type Proxy struct {
	mu      sync.RWMutex
	prices  map[common.Address]*uint256.Int
	sources map[common.Address]PriceSource
}

// NewProxy returns an empty proxy.
func NewProxy() *Proxy {
	return &Proxy{
		prices:  make(map[common.Address]*uint256.Int),
		sources: make(map[common.Address]PriceSource),
	}
}

// SetPrice pins the price of an asset.
func (p *Proxy) SetPrice(asset common.Address, price *uint256.Int) error {
	if price == nil || price.IsZero() {
		return ErrInvalidPrice
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[asset] = new(uint256.Int).Set(price)
	return nil
}

// SetSource forwards requests for asset to src. A nil src removes the route.
func (p *Proxy) SetSource(asset common.Address, src PriceSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if src == nil {
		delete(p.sources, asset)
		return
	}
	p.sources[asset] = src
}

// GetPrice implements PriceSource.
func (p *Proxy) GetPrice(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	p.mu.RLock()
	src, routed := p.sources[asset]
	price, pinned := p.prices[asset]
	p.mu.RUnlock()

	if routed {
		return src.GetPrice(ctx, asset)
	}
	if !pinned {
		return nil, ErrPriceNotSet
	}
	return new(uint256.Int).Set(price), nil
}
