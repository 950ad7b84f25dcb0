// Package network defines the per-chain deployment parameters of the lottery.
//
// This package provides:
//   - Chain identification constants (hardhat, localhost, rinkeby)
//   - The list of development chains, where the coordinator is mocked locally
//   - Lottery construction parameters (fee, gas lane, callback gas, interval)
//   - Live coordinator addresses and subscription ids for public chains
//
// The Network type is the single source the deploy step reads when it builds
// a lottery for a given chain.
package network

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// Chain identification constants
const (
	// HardhatChainID is the chain id of the in-process development chain.
	HardhatChainID uint64 = 31337

	// LocalhostChainID is a development node reached over localhost. It
	// shares the hardhat chain id.
	LocalhostChainID uint64 = 31337

	// RinkebyChainID is the Rinkeby public test network.
	RinkebyChainID uint64 = 4
)

// DevelopmentChains are the networks on which the coordinator is a local mock
// and randomness is delivered in process.
var DevelopmentChains = []string{"hardhat", "localhost"}

// LotteryParams are the construction parameters of a lottery on one chain.
type LotteryParams struct {
	// EntranceFee is the minimum payment in wei.
	EntranceFee *big.Int

	// GasLane is the coordinator key hash, selecting the max gas price tier.
	GasLane common.Hash

	// CallbackGasLimit is the gas budget for the fulfilment callback.
	CallbackGasLimit uint32

	// Interval is the minimum round length.
	Interval time.Duration
}

// VRFParams locate the live coordinator. Both are empty on development chains.
type VRFParams struct {
	Coordinator    common.Address
	SubscriptionID uint64
}

// Network describes one deployment target.
//
// Note: When implementing Copy(), ensure all non-copiable variables (like
// *big.Int) are properly deep-copied to avoid shared state issues.
type Network struct {
	Name    string // network name, e.g. "hardhat", "rinkeby"
	ChainID uint64 // chain id used to key front-end addresses

	// Development is true for chains listed in DevelopmentChains.
	Development bool

	// BlockConfirmations is how many blocks deployments wait for.
	BlockConfirmations uint16

	Lottery LotteryParams
	VRF     VRFParams
}

// Values shared by every network.
var (
	defaultEntranceFee      = new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(100)) // 0.01 ether
	defaultGasLane          = common.HexToHash("0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc")
	defaultCallbackGasLimit = uint32(500000)
	defaultInterval         = 30 * time.Second
)

// DefaultLotteryParams returns the lottery parameters every chain starts from.
func DefaultLotteryParams() LotteryParams {
	return LotteryParams{
		EntranceFee:      new(big.Int).Set(defaultEntranceFee),
		GasLane:          defaultGasLane,
		CallbackGasLimit: defaultCallbackGasLimit,
		Interval:         defaultInterval,
	}
}

// Hardhat returns the in-process development chain.
func Hardhat() Network {
	return Network{
		Name:               "hardhat",
		ChainID:            HardhatChainID,
		Development:        true,
		BlockConfirmations: 1,
		Lottery:            DefaultLotteryParams(),
	}
}

// Localhost returns a development node running outside the process.
func Localhost() Network {
	n := Hardhat()
	n.Name = "localhost"
	n.ChainID = LocalhostChainID
	return n
}

// Rinkeby returns the Rinkeby test network with its live coordinator.
func Rinkeby() Network {
	return Network{
		Name:               "rinkeby",
		ChainID:            RinkebyChainID,
		BlockConfirmations: 6,
		Lottery:            DefaultLotteryParams(),
		VRF: VRFParams{
			Coordinator:    common.HexToAddress("0x6168499c0cFfCaCD319c818142124B7A15E857ab"),
			SubscriptionID: 0,
		},
	}
}

var known = map[string]func() Network{
	"hardhat":   Hardhat,
	"localhost": Localhost,
	"rinkeby":   Rinkeby,
}

// ByName returns the network called name.
func ByName(name string) (Network, error) {
	mk, ok := known[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (known: %v)", name, Names())
	}
	return mk(), nil
}

// Names lists the known network names, sorted.
func Names() []string {
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsDevelopment reports whether name is one of DevelopmentChains.
func IsDevelopment(name string) bool {
	for _, dev := range DevelopmentChains {
		if dev == name {
			return true
		}
	}
	return false
}

// Copy creates a deep copy of the Network.
func (n Network) Copy() Network {
	cp := n
	if n.Lottery.EntranceFee != nil {
		cp.Lottery.EntranceFee = new(big.Int).Set(n.Lottery.EntranceFee)
	}
	return cp
}

// String returns a JSON representation for logging.
func (n Network) String() string {
	b, _ := json.Marshal(&n)
	return string(b)
}
