// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

type stubContract struct{}

func (stubContract) RequiredGas([]byte) uint64 { return 1 }

func (stubContract) Run(StateDB, common.Address, []byte, uint64, bool) ([]byte, uint64, error) {
	return nil, 0, nil
}

func TestReservedAddress(t *testing.T) {
	tests := []struct {
		addr     string
		reserved bool
	}{
		{"0x0000000000000000000000000000000000009016", true},
		{"0x0000000000000000000000000000000000009fff", true},
		{"0x0400000000000000000000000000000000000000", true},
		{"0x0000000000000000000000000000000000008fff", false},
		{"0x000000000000000000000000000000000000a000", false},
		{"0x0500000000000000000000000000000000000000", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			require.Equal(t, tt.reserved, ReservedAddress(common.HexToAddress(tt.addr)))
		})
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	second := Module{ConfigKey: "b", Address: common.HexToAddress("0x9002"), Contract: stubContract{}}
	first := Module{ConfigKey: "a", Address: common.HexToAddress("0x9001"), Contract: stubContract{}}
	require.NoError(t, r.Register(second))
	require.NoError(t, r.Register(first))

	// Iteration follows address order, not registration order.
	mods := r.Modules()
	require.Len(t, mods, 2)
	require.Equal(t, "a", mods[0].ConfigKey)
	require.Equal(t, "b", mods[1].ConfigKey)

	m, ok := r.ByKey("b")
	require.True(t, ok)
	require.Equal(t, second.Address, m.Address)
	m, ok = r.ByAddress(first.Address)
	require.True(t, ok)
	require.Equal(t, "a", m.ConfigKey)
	_, ok = r.ByKey("c")
	require.False(t, ok)

	// Modules returns a copy.
	mods[0].ConfigKey = "mutated"
	_, ok = r.ByKey("a")
	require.True(t, ok)
}

func TestRegisterErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Module{ConfigKey: "a", Address: common.HexToAddress("0x9001"), Contract: stubContract{}}))

	tests := []struct {
		name string
		m    Module
	}{
		{"duplicate key", Module{ConfigKey: "a", Address: common.HexToAddress("0x9002"), Contract: stubContract{}}},
		{"duplicate address", Module{ConfigKey: "b", Address: common.HexToAddress("0x9001"), Contract: stubContract{}}},
		{"unreserved", Module{ConfigKey: "c", Address: common.HexToAddress("0x1234"), Contract: stubContract{}}},
		{"blackhole", Module{ConfigKey: "d", Address: BlackholeAddr, Contract: stubContract{}}},
		{"no contract", Module{ConfigKey: "e", Address: common.HexToAddress("0x9003")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, r.Register(tt.m))
		})
	}
	require.Len(t, r.Modules(), 1)
}
