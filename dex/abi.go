// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

const optionPoolABIJSON = `[
	{"type":"function","name":"callPrice","stateMutability":"view",
	 "inputs":[{"name":"spot","type":"uint256"},{"name":"strike","type":"uint256"},{"name":"volatility","type":"uint256"},{"name":"timeToExpiry","type":"uint256"}],
	 "outputs":[{"name":"price","type":"uint256"}]},
	{"type":"function","name":"putPrice","stateMutability":"view",
	 "inputs":[{"name":"spot","type":"uint256"},{"name":"strike","type":"uint256"},{"name":"volatility","type":"uint256"},{"name":"timeToExpiry","type":"uint256"}],
	 "outputs":[{"name":"price","type":"uint256"}]},
	{"type":"function","name":"elasticity","stateMutability":"view",
	 "inputs":[{"name":"spot","type":"uint256"},{"name":"strike","type":"uint256"},{"name":"volatility","type":"uint256"},{"name":"timeToExpiry","type":"uint256"}],
	 "outputs":[{"name":"elasticity","type":"uint256"}]},
	{"type":"function","name":"currentWeights","stateMutability":"view",
	 "inputs":[{"name":"poolId","type":"bytes32"}],
	 "outputs":[{"name":"risky","type":"uint256"},{"name":"riskFree","type":"uint256"}]},
	{"type":"function","name":"targetWeightsOverTime","stateMutability":"nonpayable",
	 "inputs":[{"name":"poolId","type":"bytes32"},{"name":"riskyWeight","type":"uint256"},{"name":"riskFreeWeight","type":"uint256"},{"name":"periodInBlocks","type":"uint256"}],
	 "outputs":[{"name":"finalBlock","type":"uint256"}]},
	{"type":"event","name":"CalibrationUpdated","anonymous":false,
	 "inputs":[{"name":"poolId","type":"bytes32","indexed":true},{"name":"beginBlock","type":"uint256","indexed":false},{"name":"beginWeights","type":"uint256[]","indexed":false},{"name":"finalBlock","type":"uint256","indexed":false},{"name":"finalWeights","type":"uint256[]","indexed":false}]}
]`

// OptionPoolABI is the contract interface of the option pool precompile.
var OptionPoolABI = ParseABI(optionPoolABIJSON)

// ExtendedABI adds output, input and event packing helpers to abi.ABI.
type ExtendedABI struct {
	abi.ABI
}

// ParseABI parses rawABI and panics on malformed input.
func ParseABI(rawABI string) ExtendedABI {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}
	return ExtendedABI{ABI: parsed}
}

// PackOutput packs the outputs of method name, without a selector.
func (e ExtendedABI) PackOutput(name string, args ...interface{}) ([]byte, error) {
	method, ok := e.Methods[name]
	if !ok {
		return nil, fmt.Errorf("method '%s' not found", name)
	}
	return method.Outputs.Pack(args...)
}

// UnpackInput unpacks selector-stripped call data for method name.
func (e ExtendedABI) UnpackInput(name string, data []byte) ([]interface{}, error) {
	method, ok := e.Methods[name]
	if !ok {
		return nil, fmt.Errorf("method '%s' not found", name)
	}
	if len(data)%32 != 0 {
		return nil, fmt.Errorf("abi: improperly formatted input of %d bytes", len(data))
	}
	return method.Inputs.Unpack(data)
}

// PackEvent returns the topics and data of event name.
func (e ExtendedABI) PackEvent(name string, args ...interface{}) ([]common.Hash, []byte, error) {
	event, ok := e.Events[name]
	if !ok {
		return nil, nil, fmt.Errorf("event '%s' not found", name)
	}
	if len(args) != len(event.Inputs) {
		return nil, nil, fmt.Errorf("event '%s' unexpected number of inputs %d", name, len(args))
	}

	var (
		data   []interface{}
		fields abi.Arguments
		topics = make([]common.Hash, 0, len(event.Inputs)+1)
	)
	if !event.Anonymous {
		topics = append(topics, event.ID)
	}
	for i, arg := range event.Inputs {
		if !arg.Indexed {
			fields = append(fields, arg)
			data = append(data, args[i])
			continue
		}
		topic, err := packTopic(args[i])
		if err != nil {
			return nil, nil, fmt.Errorf("event '%s' topic %s: %w", name, arg.Name, err)
		}
		topics = append(topics, topic)
	}

	packed, err := fields.Pack(data...)
	if err != nil {
		return nil, nil, err
	}
	return topics, packed, nil
}

// packTopic packs a single indexed argument into a topic hash
func packTopic(value interface{}) (common.Hash, error) {
	switch v := value.(type) {
	case common.Hash:
		return v, nil
	case [32]byte:
		return common.Hash(v), nil
	case common.Address:
		return common.BytesToHash(v.Bytes()), nil
	case *big.Int:
		return common.BigToHash(v), nil
	case []byte:
		return common.BytesToHash(crypto.Keccak256(v)), nil
	case string:
		return common.BytesToHash(crypto.Keccak256([]byte(v))), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported indexed type: %T", value)
	}
}
