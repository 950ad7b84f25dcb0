package lottery

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractABI is the JSON ABI of the lottery surface. It is what gets
// published to front ends, and the event section drives the log topics
// emitted by the state machine:
//   - Entered(address indexed player)
//   - UpkeepPerformed(uint256 indexed requestId)
//   - WinnerPicked(address indexed winner)
const ContractABI = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"player","type":"address"}],"name":"Entered","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"requestId","type":"uint256"}],"name":"UpkeepPerformed","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"winner","type":"address"}],"name":"WinnerPicked","type":"event"},
{"inputs":[],"name":"enterLottery","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"internalType":"bytes","name":"checkData","type":"bytes"}],"name":"checkUpkeep","outputs":[{"internalType":"bool","name":"upkeepNeeded","type":"bool"},{"internalType":"bytes","name":"performData","type":"bytes"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"bytes","name":"performData","type":"bytes"}],"name":"performUpkeep","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint256","name":"requestId","type":"uint256"},{"internalType":"uint256[]","name":"randomWords","type":"uint256[]"}],"name":"rawFulfillRandomWords","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"getEntranceFee","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getInterval","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getLastTimeStamp","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getLotteryState","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getNumWords","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"pure","type":"function"},
{"inputs":[],"name":"getNumberOfPlayers","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"index","type":"uint256"}],"name":"getPlayer","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getRecentWinner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getRequestConfirmations","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"pure","type":"function"}
]`

// EventKind names the three events the lottery emits.
type EventKind uint8

const (
	EventEntered EventKind = iota
	EventUpkeepPerformed
	EventWinnerPicked
)

var eventNames = [...]string{
	EventEntered:         "Entered",
	EventUpkeepPerformed: "UpkeepPerformed",
	EventWinnerPicked:    "WinnerPicked",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

var (
	parsedABI abi.ABI

	// eventTopics maps every kind to its topic[0] (keccak of the signature).
	eventTopics = make(map[EventKind]common.Hash, len(eventNames))
	topicKinds  = make(map[common.Hash]EventKind, len(eventNames))
)

func init() {
	var err error
	parsedABI, err = abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		panic(err)
	}
	for kind, name := range eventNames {
		ev, ok := parsedABI.Events[name]
		if !ok {
			panic("lottery ABI is missing event " + name)
		}
		eventTopics[EventKind(kind)] = ev.ID
		topicKinds[ev.ID] = EventKind(kind)
	}
}

// ABI returns the parsed contract ABI.
func ABI() abi.ABI { return parsedABI }

// EventTopic returns topic[0] of the given event kind.
func EventTopic(kind EventKind) common.Hash { return eventTopics[kind] }

// Event is what the lottery publishes on its feed after every successful
// mutating call. Log is the ABI-shaped record an indexer would see; the
// other fields are the same data already decoded.
type Event struct {
	Kind      EventKind
	Round     uint64
	Player    common.Address // Entered: the entrant. WinnerPicked: the winner.
	RequestID *big.Int       // UpkeepPerformed only
	Prize     *big.Int       // WinnerPicked only, not part of the log
	Time      time.Time
	Log       types.Log
}

// buildLog shapes an event as a log emitted by the lottery address.
func buildLog(addr common.Address, kind EventKind, arg common.Hash, round uint64, index uint) types.Log {
	return types.Log{
		Address:     addr,
		Topics:      []common.Hash{eventTopics[kind], arg},
		Data:        []byte{},
		BlockNumber: round,
		Index:       index,
	}
}

// ParseLog decodes a log produced by the lottery back into an Event. Fields
// that are not carried by the log (Prize, Time) stay empty.
func ParseLog(log types.Log) (Event, error) {
	if len(log.Topics) != 2 {
		return Event{}, fmt.Errorf("unexpected topic count %d", len(log.Topics))
	}
	kind, ok := topicKinds[log.Topics[0]]
	if !ok {
		return Event{}, fmt.Errorf("unknown event topic %s", log.Topics[0].Hex())
	}
	ev := Event{Kind: kind, Round: log.BlockNumber, Log: log}
	switch kind {
	case EventEntered, EventWinnerPicked:
		ev.Player = common.BytesToAddress(log.Topics[1].Bytes())
	case EventUpkeepPerformed:
		ev.RequestID = log.Topics[1].Big()
	}
	return ev, nil
}
