// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces price keys.
const DefaultRedisPrefix = "optionpool:price:"

// RedisFeed reads prices published by an off-chain feeder. Each asset's
// price is a decimal wei string under <prefix><lowercase hex address>.
type RedisFeed struct {
	client *redis.Client
	prefix string
}

// NewRedisFeed connects to the redis server at addr.
func NewRedisFeed(addr, prefix string) *RedisFeed {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisFeed{client: rdb, prefix: prefix}
}

func (f *RedisFeed) key(asset common.Address) string {
	return f.prefix + strings.ToLower(asset.Hex())
}

// Ping checks the connection.
func (f *RedisFeed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Publish stores the price of asset, for feeders and tests.
func (f *RedisFeed) Publish(ctx context.Context, asset common.Address, price *uint256.Int) error {
	if price == nil || price.IsZero() {
		return ErrInvalidPrice
	}
	return f.client.Set(ctx, f.key(asset), price.Dec(), 0).Err()
}

// GetPrice implements PriceSource.
func (f *RedisFeed) GetPrice(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	val, err := f.client.Get(ctx, f.key(asset)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPriceNotSet
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", asset.Hex(), err)
	}
	price, err := uint256.FromDecimal(val)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", val, err)
	}
	if price.IsZero() {
		return nil, ErrInvalidPrice
	}
	return price, nil
}

// Close releases the connection.
func (f *RedisFeed) Close() error {
	return f.client.Close()
}
