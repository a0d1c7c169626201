// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/geth/common"
)

// AddressRange represents a continuous range of addresses
type AddressRange struct {
	Start common.Address
	End   common.Address
}

// Contains returns true iff [addr] is contained within the (inclusive)
// range of addresses defined by [a].
func (a *AddressRange) Contains(addr common.Address) bool {
	addrBytes := addr.Bytes()
	return bytes.Compare(addrBytes, a.Start[:]) >= 0 && bytes.Compare(addrBytes, a.End[:]) <= 0
}

// BlackholeAddr is the address where assets are burned
var BlackholeAddr = common.Address{
	1, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Reserved address ranges for market precompiles
//
// 0x0400-0x04FF: DEX pools (legacy high-byte format)
// 0x9000-0x9FFF: DEX/Markets, LP-9xxx (LP-9016 option pools)
var reservedRanges = []AddressRange{
	{
		Start: common.HexToAddress("0x0400000000000000000000000000000000000000"),
		End:   common.HexToAddress("0x04000000000000000000000000000000000000ff"),
	},
	{
		Start: common.HexToAddress("0x0000000000000000000000000000000000009000"),
		End:   common.HexToAddress("0x0000000000000000000000000000000000009fff"),
	},
}

// ReservedAddress returns true if [addr] is in a reserved range for custom precompiles
func ReservedAddress(addr common.Address) bool {
	for _, reservedRange := range reservedRanges {
		if reservedRange.Contains(addr) {
			return true
		}
	}
	return false
}

// Registry holds modules sorted by address.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds stm. Addresses and config keys must be unique.
func (r *Registry) Register(stm Module) error {
	address := stm.Address
	key := stm.ConfigKey

	if address == BlackholeAddr {
		return fmt.Errorf("address %s overlaps with blackhole address", address)
	}
	if !ReservedAddress(address) {
		return fmt.Errorf("address %s not in a reserved range", address)
	}
	if stm.Contract == nil {
		return fmt.Errorf("module %s has no contract", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, registeredModule := range r.modules {
		if registeredModule.ConfigKey == key {
			return fmt.Errorf("name %s already used by a stateful precompile", key)
		}
		if registeredModule.Address == address {
			return fmt.Errorf("address %s already used by a stateful precompile", address)
		}
	}
	// sort by address to ensure deterministic iteration
	r.modules = insertSortedByAddress(r.modules, stm)
	return nil
}

func (r *Registry) ByAddress(address common.Address) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, stm := range r.modules {
		if stm.Address == address {
			return stm, true
		}
	}
	return Module{}, false
}

func (r *Registry) ByKey(key string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, stm := range r.modules {
		if stm.ConfigKey == key {
			return stm, true
		}
	}
	return Module{}, false
}

// Modules returns a copy of the registered modules in address order.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Module(nil), r.modules...)
}

func insertSortedByAddress(data []Module, stm Module) []Module {
	data = append(data, stm)
	sort.Sort(moduleArray(data))
	return data
}

// registeredModules is the process-wide registry precompile packages
// register into from init.
var registeredModules = NewRegistry()

// RegisterModule registers a stateful precompile module
func RegisterModule(stm Module) error {
	return registeredModules.Register(stm)
}

func GetPrecompileModuleByAddress(address common.Address) (Module, bool) {
	return registeredModules.ByAddress(address)
}

func GetPrecompileModule(key string) (Module, bool) {
	return registeredModules.ByKey(key)
}

func RegisteredModules() []Module {
	return registeredModules.Modules()
}
