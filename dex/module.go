// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/optionpool/calibration"
	"github.com/luxfi/optionpool/fixedpoint"
	"github.com/luxfi/optionpool/modules"
	"github.com/luxfi/optionpool/pricing"
)

// ConfigKey is the key used in json config files to specify this precompile config.
const ConfigKey = "optionPoolConfig"

var _ modules.Contract = (*OptionPoolContract)(nil)

// OptionPoolPrecompile is the singleton instance, built from DefaultConfig.
var OptionPoolPrecompile = mustContract(NewOptionPoolContract(DefaultConfig(), nil, pricing.Default))

// Module is the precompile module (option pool manager at LP-9016)
var Module = modules.Module{
	ConfigKey:  ConfigKey,
	Address:    common.HexToAddress(OptionPoolAddress),
	Contract:   OptionPoolPrecompile,
	MakeConfig: func() modules.Config { return new(Config) },
}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func mustContract(c *OptionPoolContract, err error) *OptionPoolContract {
	if err != nil {
		panic(err)
	}
	return c
}

// Config configures the option pool precompile.
type Config struct {
	SwapFeeBps           uint64 `json:"swapFeeBps,omitempty"`
	UpdatePeriodInBlocks uint64 `json:"updatePeriodInBlocks,omitempty"`
	MaxPools             uint64 `json:"maxPools,omitempty"`
	EnableHooks          bool   `json:"enableHooks,omitempty"`
}

// DefaultConfig charges 30 bps and migrates weights over 240 blocks.
func DefaultConfig() *Config {
	return &Config{
		SwapFeeBps:           30,
		UpdatePeriodInBlocks: 240,
		EnableHooks:          true,
	}
}

func (c *Config) Key() string {
	return ConfigKey
}

func (c *Config) Equal(other *Config) bool {
	if other == nil {
		return false
	}
	return c.SwapFeeBps == other.SwapFeeBps &&
		c.UpdatePeriodInBlocks == other.UpdatePeriodInBlocks &&
		c.MaxPools == other.MaxPools &&
		c.EnableHooks == other.EnableHooks
}

func (c *Config) Verify() error {
	if _, err := c.SwapFee(); err != nil {
		return err
	}
	if c.UpdatePeriodInBlocks == 0 {
		return fmt.Errorf("%w: update period must be positive", ErrInvalidAmount)
	}
	return nil
}

// SwapFee converts SwapFeeBps to a fraction.
func (c *Config) SwapFee() (fixedpoint.Fixed, error) {
	fee, err := fixedpoint.FromFraction(c.SwapFeeBps, 10_000)
	if err != nil {
		return fixedpoint.Zero, err
	}
	if fee.Gt(MaxSwapFee) {
		return fixedpoint.Zero, fmt.Errorf("%w: %d bps", ErrInvalidSwapFee, c.SwapFeeBps)
	}
	return fee, nil
}

// NewEngine returns an empty BalancerPool charging the configured fee.
func (c *Config) NewEngine() (*BalancerPool, error) {
	fee, err := c.SwapFee()
	if err != nil {
		return nil, err
	}
	return NewBalancerPool(fee)
}

// OptionPoolContract exposes pricing and calibration over the pool ABI.
type OptionPoolContract struct {
	config      *Config
	poolManager *PoolManager
	engine      pricing.Engine
}

// NewOptionPoolContract wires a contract around pm. pm may be nil, in
// which case a manager is built from config. A zero engine prices with
// pricing.Default.
func NewOptionPoolContract(config *Config, pm *PoolManager, engine pricing.Engine) (*OptionPoolContract, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Verify(); err != nil {
		return nil, err
	}
	if engine == (pricing.Engine{}) {
		engine = pricing.Default
	}
	if pm == nil {
		opts := []ManagerOption{WithMaxPools(config.MaxPools)}
		if !config.EnableHooks {
			opts = append(opts, WithHookRegistry(nil))
		}
		pm = NewPoolManager(opts...)
	}
	return &OptionPoolContract{config: config, poolManager: pm, engine: engine}, nil
}

// PoolManager returns the manager backing the contract.
func (c *OptionPoolContract) PoolManager() *PoolManager {
	return c.poolManager
}

// RequiredGas returns the gas required for the given input
func (c *OptionPoolContract) RequiredGas(input []byte) uint64 {
	if len(input) < 4 {
		return 0
	}
	method, err := OptionPoolABI.MethodById(input[:4])
	if err != nil {
		return 0
	}
	switch method.Name {
	case "callPrice", "putPrice", "elasticity":
		return GasQuote
	case "currentWeights":
		return GasPoolLookup
	case "targetWeightsOverTime":
		return GasCalibrate
	default:
		return 0
	}
}

// Run executes the precompile
func (c *OptionPoolContract) Run(
	stateDB StateDB,
	caller common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) (ret []byte, remainingGas uint64, err error) {
	if len(input) < 4 {
		return nil, suppliedGas, ErrInputTooShort
	}
	method, err := OptionPoolABI.MethodById(input[:4])
	if err != nil {
		return nil, suppliedGas, fmt.Errorf("unknown method selector: %x", input[:4])
	}
	gas := c.RequiredGas(input)
	if suppliedGas < gas {
		return nil, 0, ErrOutOfGas
	}
	remainingGas = suppliedGas - gas

	args, err := OptionPoolABI.UnpackInput(method.Name, input[4:])
	if err != nil {
		return nil, remainingGas, err
	}

	switch method.Name {
	case "callPrice", "putPrice", "elasticity":
		ret, err = c.runQuote(method.Name, args)
	case "currentWeights":
		ret, err = c.runCurrentWeights(stateDB, args)
	case "targetWeightsOverTime":
		if readOnly {
			return nil, remainingGas, ErrReadOnly
		}
		ret, err = c.runTargetWeights(stateDB, caller, args)
	}
	if err != nil {
		return nil, remainingGas, err
	}
	return ret, remainingGas, nil
}

// =========================================================================
// Methods
// =========================================================================

func (c *OptionPoolContract) runQuote(name string, args []interface{}) ([]byte, error) {
	spot, err := uintArg(args[0])
	if err != nil {
		return nil, err
	}
	strike, err := uintArg(args[1])
	if err != nil {
		return nil, err
	}
	vol, ok := args[2].(*big.Int)
	if !ok || !vol.IsUint64() {
		return nil, fmt.Errorf("%w: volatility", ErrInvalidAmount)
	}
	tte, ok := args[3].(*big.Int)
	if !ok || !tte.IsUint64() {
		return nil, fmt.Errorf("%w: time to expiry", ErrInvalidAmount)
	}
	p := pricing.Params{Spot: spot, Strike: strike, Volatility: vol.Uint64(), TimeToExpiry: tte.Uint64()}

	var v fixedpoint.Fixed
	switch name {
	case "callPrice":
		v, err = c.engine.CallPrice(p)
	case "putPrice":
		v, err = c.engine.PutPrice(p)
	default:
		v, err = c.engine.Elasticity(p)
	}
	if err != nil {
		return nil, err
	}
	wei, err := v.ToWei()
	if err != nil {
		return nil, err
	}
	return OptionPoolABI.PackOutput(name, wei.ToBig())
}

func (c *OptionPoolContract) runCurrentWeights(stateDB StateDB, args []interface{}) ([]byte, error) {
	poolID, ok := args[0].([32]byte)
	if !ok {
		return nil, ErrInvalidPoolKey
	}
	w, err := c.poolManager.CurrentWeightsByID(stateDB, poolID)
	if err != nil {
		return nil, err
	}
	risky, riskFree, err := w.Denormalize()
	if err != nil {
		return nil, err
	}
	return OptionPoolABI.PackOutput("currentWeights", risky.ToBig(), riskFree.ToBig())
}

func (c *OptionPoolContract) runTargetWeights(stateDB StateDB, caller common.Address, args []interface{}) ([]byte, error) {
	poolID, ok := args[0].([32]byte)
	if !ok {
		return nil, ErrInvalidPoolKey
	}
	risky, err := uintArg(args[1])
	if err != nil {
		return nil, err
	}
	riskFree, err := uintArg(args[2])
	if err != nil {
		return nil, err
	}
	period, ok := args[3].(*big.Int)
	if !ok || !period.IsUint64() {
		return nil, fmt.Errorf("%w: period", ErrInvalidAmount)
	}
	final, err := calibration.WeightsFromDenormalized(risky, riskFree)
	if err != nil {
		return nil, err
	}
	key, err := c.poolManager.PoolKey(poolID)
	if err != nil {
		return nil, err
	}
	finalBlock, err := c.poolManager.TargetWeightsOverTime(stateDB, caller, key, final, period.Uint64())
	if err != nil {
		return nil, err
	}
	return OptionPoolABI.PackOutput("targetWeightsOverTime", new(big.Int).SetUint64(finalBlock))
}

func uintArg(arg interface{}) (*uint256.Int, error) {
	b, ok := arg.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: expected uint256, got %T", ErrInvalidAmount, arg)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fixedpoint.ErrArithmeticOverflow
	}
	return v, nil
}
