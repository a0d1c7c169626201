// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package modules registers stateful precompiles by address and config key.
package modules

import (
	"bytes"

	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

// StateDB is the EVM state a precompile reads and writes.
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash)
	GetBlockNumber() uint64
	AddLog(log *ethtypes.Log)
}

// Contract is a stateful precompiled contract.
type Contract interface {
	RequiredGas(input []byte) uint64
	Run(
		stateDB StateDB,
		caller common.Address,
		input []byte,
		suppliedGas uint64,
		readOnly bool,
	) (ret []byte, remainingGas uint64, err error)
}

// Config is a precompile's JSON configuration.
type Config interface {
	Key() string
	Verify() error
}

// Module binds a contract to its address and config key.
type Module struct {
	ConfigKey string
	Address   common.Address
	Contract  Contract
	// MakeConfig returns an empty config to decode ConfigKey into.
	MakeConfig func() Config
}

type moduleArray []Module

func (u moduleArray) Len() int {
	return len(u)
}

func (u moduleArray) Swap(i, j int) {
	u[i], u[j] = u[j], u[i]
}

func (u moduleArray) Less(i, j int) bool {
	return bytes.Compare(u[i].Address.Bytes(), u[j].Address.Bytes()) < 0
}
