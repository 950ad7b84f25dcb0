// Package ledger keeps native account balances for the lottery node.
//
// It plays the part the chain's account state plays for an on-chain lottery:
// entrants pay fees out of their balance and the winner receives the pot.
// Accounts can be flagged to refuse incoming funds, which is how a contract
// without a receive hook behaves and what makes a payout fail.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeAmount      = errors.New("negative amount")
	ErrTransferRejected    = errors.New("recipient rejected funds")
)

// Account is one balance entry, as persisted.
type Account struct {
	Address      common.Address
	Balance      *big.Int
	RejectsFunds bool
}

// Bank is an in-memory balance sheet safe for concurrent use.
type Bank struct {
	mu        sync.RWMutex
	balances  map[common.Address]*big.Int
	rejecting map[common.Address]bool
}

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances:  make(map[common.Address]*big.Int),
		rejecting: make(map[common.Address]bool),
	}
}

// BalanceOf returns a copy of addr's balance; unknown accounts hold zero.
func (b *Bank) BalanceOf(addr common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Credit mints amount into addr. Used for genesis allocations and funding.
func (b *Bank) Credit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("credit %s: %w", addr.Hex(), ErrNegativeAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(addr, amount)
	return nil
}

// Transfer moves amount from one account to another. It either fully
// succeeds or leaves both balances untouched.
func (b *Bank) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rejecting[to] {
		return fmt.Errorf("%w: %s", ErrTransferRejected, to.Hex())
	}
	have := b.balances[from]
	if have == nil {
		have = new(big.Int)
	}
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), have, amount)
	}
	if from == to {
		return nil
	}
	b.balances[from] = new(big.Int).Sub(have, amount)
	b.add(to, amount)
	return nil
}

// SetRejectsFunds flags addr to refuse (or accept again) incoming transfers.
func (b *Bank) SetRejectsFunds(addr common.Address, reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reject {
		b.rejecting[addr] = true
	} else {
		delete(b.rejecting, addr)
	}
}

// Accounts lists every known account, ordered by address.
func (b *Bank) Accounts() []Account {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[common.Address]struct{}, len(b.balances)+len(b.rejecting))
	for addr := range b.balances {
		seen[addr] = struct{}{}
	}
	for addr := range b.rejecting {
		seen[addr] = struct{}{}
	}
	accounts := make([]Account, 0, len(seen))
	for addr := range seen {
		bal := new(big.Int)
		if v, ok := b.balances[addr]; ok {
			bal.Set(v)
		}
		accounts = append(accounts, Account{Address: addr, Balance: bal, RejectsFunds: b.rejecting[addr]})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address.Bytes(), accounts[j].Address.Bytes()) < 0
	})
	return accounts
}

// Restore replaces every balance with the given accounts.
func (b *Bank) Restore(accounts []Account) error {
	balances := make(map[common.Address]*big.Int, len(accounts))
	rejecting := make(map[common.Address]bool)
	for _, acc := range accounts {
		if acc.Balance == nil || acc.Balance.Sign() < 0 {
			return fmt.Errorf("restore %s: %w", acc.Address.Hex(), ErrNegativeAmount)
		}
		balances[acc.Address] = new(big.Int).Set(acc.Balance)
		if acc.RejectsFunds {
			rejecting[acc.Address] = true
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = balances
	b.rejecting = rejecting
	return nil
}

func (b *Bank) add(addr common.Address, amount *big.Int) {
	cur := b.balances[addr]
	if cur == nil {
		cur = new(big.Int)
	}
	b.balances[addr] = new(big.Int).Add(cur, amount)
}
