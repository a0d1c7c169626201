// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/optionpool/calibration"
)

// HookPermissions contains the flags derived from a hook address.
// The leading two bytes of a hook address encode its capabilities.
type HookPermissions struct {
	BeforeInitialize bool
	AfterInitialize  bool
	BeforeJoin       bool
	AfterJoin        bool
	BeforeExit       bool
	AfterExit        bool
	BeforeSwap       bool
	AfterSwap        bool
	BeforeCalibrate  bool
	AfterCalibrate   bool
}

// HookCall describes the operation a hook is invoked around.
type HookCall struct {
	Key     PoolKey
	Sender  common.Address
	Block   uint64
	Weights calibration.Weights // weights in force for the operation

	Swap      *SwapParams          // swaps only
	AmountOut *uint256.Int         // after swaps only
	Final     *calibration.Weights // calibrations only
}

// Hook is implemented by in-process hook contracts.
type Hook interface {
	Call(stateDB StateDB, flag HookFlags, call HookCall) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(stateDB StateDB, flag HookFlags, call HookCall) error

func (f HookFunc) Call(stateDB StateDB, flag HookFlags, call HookCall) error {
	return f(stateDB, flag, call)
}

// Hook errors
var (
	ErrHookCallFailed     = errors.New("hook call failed")
	ErrHookInvalidAddress = errors.New("hook address doesn't match capabilities")
)

// HookRegistry manages hook registrations.
type HookRegistry struct {
	mu    sync.RWMutex
	flags map[common.Address]HookFlags
	impls map[common.Address]Hook
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		flags: make(map[common.Address]HookFlags),
		impls: make(map[common.Address]Hook),
	}
}

// ValidateHookAddress validates that a hook address encodes the claimed permissions
func ValidateHookAddress(addr common.Address, permissions HookPermissions) error {
	if addressFlags(addr) != EncodeHookPermissions(permissions) {
		return ErrHookInvalidAddress
	}
	return nil
}

func addressFlags(addr common.Address) HookFlags {
	return HookFlags(binary.BigEndian.Uint16(addr[0:2]))
}

// EncodeHookPermissions encodes permissions into a HookFlags bitmap
func EncodeHookPermissions(p HookPermissions) HookFlags {
	var flags HookFlags
	set := func(on bool, flag HookFlags) {
		if on {
			flags |= flag
		}
	}
	set(p.BeforeInitialize, HookBeforeInitialize)
	set(p.AfterInitialize, HookAfterInitialize)
	set(p.BeforeJoin, HookBeforeJoin)
	set(p.AfterJoin, HookAfterJoin)
	set(p.BeforeExit, HookBeforeExit)
	set(p.AfterExit, HookAfterExit)
	set(p.BeforeSwap, HookBeforeSwap)
	set(p.AfterSwap, HookAfterSwap)
	set(p.BeforeCalibrate, HookBeforeCalibrate)
	set(p.AfterCalibrate, HookAfterCalibrate)
	return flags
}

// DecodeHookPermissions decodes a HookFlags bitmap into permissions
func DecodeHookPermissions(flags HookFlags) HookPermissions {
	return HookPermissions{
		BeforeInitialize: flags&HookBeforeInitialize != 0,
		AfterInitialize:  flags&HookAfterInitialize != 0,
		BeforeJoin:       flags&HookBeforeJoin != 0,
		AfterJoin:        flags&HookAfterJoin != 0,
		BeforeExit:       flags&HookBeforeExit != 0,
		AfterExit:        flags&HookAfterExit != 0,
		BeforeSwap:       flags&HookBeforeSwap != 0,
		AfterSwap:        flags&HookAfterSwap != 0,
		BeforeCalibrate:  flags&HookBeforeCalibrate != 0,
		AfterCalibrate:   flags&HookAfterCalibrate != 0,
	}
}

// GetHookPermissionsFromAddress extracts permissions from hook address
func GetHookPermissionsFromAddress(addr common.Address) HookPermissions {
	return DecodeHookPermissions(addressFlags(addr))
}

// HasPermission checks if an address has a specific hook permission
func HasPermission(addr common.Address, flag HookFlags) bool {
	return addressFlags(addr)&flag != 0
}

// GenerateHookAddress derives a CREATE2-style hook address carrying the
// given permissions in its first two bytes.
func GenerateHookAddress(deployer common.Address, salt [32]byte, permissions HookPermissions) common.Address {
	h := blake3.New()
	h.Write([]byte{0xff})
	h.Write(deployer.Bytes())
	h.Write(salt[:])

	var hash [32]byte
	h.Digest().Read(hash[:])

	var addr common.Address
	copy(addr[:], hash[12:32])
	binary.BigEndian.PutUint16(addr[0:2], uint16(EncodeHookPermissions(permissions)))
	return addr
}

// RegisterHook registers an implementation for addr. The address must
// encode flags.
func (hr *HookRegistry) RegisterHook(addr common.Address, flags HookFlags, impl Hook) error {
	if addressFlags(addr) != flags {
		return ErrHookInvalidAddress
	}
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.flags[addr] = flags
	if impl != nil {
		hr.impls[addr] = impl
	}
	return nil
}

// GetHookFlags returns the flags for a registered hook
func (hr *HookRegistry) GetHookFlags(addr common.Address) (HookFlags, bool) {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	flags, ok := hr.flags[addr]
	return flags, ok
}

// IsHookEnabled checks if a specific hook type is enabled for an address
func (hr *HookRegistry) IsHookEnabled(addr common.Address, flag HookFlags) bool {
	hr.mu.RLock()
	flags, ok := hr.flags[addr]
	hr.mu.RUnlock()
	if !ok {
		// If not registered, derive from address
		flags = addressFlags(addr)
	}
	return flags&flag != 0
}

// Call invokes the hook at addr for flag. Addresses without the flag or
// without an in-process implementation are skipped.
func (hr *HookRegistry) Call(stateDB StateDB, addr common.Address, flag HookFlags, call HookCall) error {
	if addr == (common.Address{}) || !hr.IsHookEnabled(addr, flag) {
		return nil
	}
	hr.mu.RLock()
	impl, ok := hr.impls[addr]
	hr.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := impl.Call(stateDB, flag, call); err != nil {
		return fmt.Errorf("%w: %w", ErrHookCallFailed, err)
	}
	return nil
}
