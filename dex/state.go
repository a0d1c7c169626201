// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"sync"

	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

var _ StateDB = (*MemoryState)(nil)

// MemoryState is an in-memory StateDB with a settable block height.
type MemoryState struct {
	mu      sync.RWMutex
	storage map[common.Address]map[common.Hash]common.Hash
	block   uint64
	logs    []*ethtypes.Log
}

func NewMemoryState(block uint64) *MemoryState {
	return &MemoryState{
		storage: make(map[common.Address]map[common.Hash]common.Hash),
		block:   block,
	}
}

func (m *MemoryState) GetState(addr common.Address, key common.Hash) common.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storage[addr][key]
}

func (m *MemoryState) SetState(addr common.Address, key, value common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage[addr] == nil {
		m.storage[addr] = make(map[common.Hash]common.Hash)
	}
	m.storage[addr][key] = value
}

func (m *MemoryState) GetBlockNumber() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.block
}

func (m *MemoryState) AddLog(l *ethtypes.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.Index = uint(len(m.logs))
	m.logs = append(m.logs, l)
}

// Mine advances the block height by n and returns the new height.
func (m *MemoryState) Mine(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block += n
	return m.block
}

// Logs returns a copy of the logs emitted so far.
func (m *MemoryState) Logs() []*ethtypes.Log {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*ethtypes.Log(nil), m.logs...)
}
