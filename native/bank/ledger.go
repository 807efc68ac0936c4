// Package bank holds per-asset account balances and settles the value
// transfers requested by the lending engine.
package bank

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "creditpool/native/common"
	"creditpool/native/lending"
	"creditpool/storage"
)

var (
	ErrInvalidTransfer     = nativecommon.NewError(nativecommon.KindInvalidInput, "bank: invalid transfer")
	ErrInsufficientBalance = nativecommon.NewError(nativecommon.KindPolicyViolation, "bank: insufficient balance")
	ErrBalanceOverflow     = nativecommon.NewError(nativecommon.KindInvalidInput, "bank: balance overflow")
)

var balancePrefix = []byte("bank/balance/")

var _ lending.Vault = (*Ledger)(nil)

type balanceKey struct {
	asset   common.Address
	account common.Address
}

func (k balanceKey) bytes() []byte {
	out := make([]byte, 0, len(balancePrefix)+2*common.AddressLength)
	out = append(out, balancePrefix...)
	out = append(out, k.asset.Bytes()...)
	return append(out, k.account.Bytes()...)
}

// Ledger keeps balances for every (asset, account) pair. Value pulled into
// the pool is held by the custody account and paid out from it.
type Ledger struct {
	mu       sync.Mutex
	custody  common.Address
	balances map[balanceKey]*uint256.Int
	db       storage.Database
}

// NewLedger returns an empty in-memory ledger.
func NewLedger(custody common.Address) *Ledger {
	return &Ledger{custody: custody, balances: make(map[balanceKey]*uint256.Int)}
}

// Open restores a ledger persisted in db. Subsequent changes are written
// back in one batch per settlement. Give the engine a State on the same db so
// balances and lending records land in the same batch.
func Open(custody common.Address, db storage.Database) (*Ledger, error) {
	l := NewLedger(custody)
	l.db = db
	if db == nil {
		return l, nil
	}
	err := db.Iterate(balancePrefix, func(key, value []byte) bool {
		raw := key[len(balancePrefix):]
		if len(raw) != 2*common.AddressLength {
			return true
		}
		k := balanceKey{
			asset:   common.BytesToAddress(raw[:common.AddressLength]),
			account: common.BytesToAddress(raw[common.AddressLength:]),
		}
		l.balances[k] = new(uint256.Int).SetBytes(value)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("bank: load balances: %w", err)
	}
	return l, nil
}

// Custody returns the account holding pooled value.
func (l *Ledger) Custody() common.Address { return l.custody }

// BalanceOf returns a copy of the account's balance of asset.
func (l *Ledger) BalanceOf(asset, account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[balanceKey{asset, account}]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// Credit mints amount of asset into the account. It is the funding path for
// local deployments and tests.
func (l *Ledger) Credit(asset, account common.Address, amount *uint256.Int) error {
	if account == (common.Address{}) || amount == nil || amount.IsZero() {
		return ErrInvalidTransfer
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	staged := l.stage()
	if err := staged.add(balanceKey{asset, account}, amount); err != nil {
		return err
	}
	return l.commit(staged)
}

// Transfer moves amount of asset between two accounts.
func (l *Ledger) Transfer(asset, from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) || amount == nil || amount.IsZero() {
		return ErrInvalidTransfer
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	staged := l.stage()
	if err := staged.sub(balanceKey{asset, from}, amount); err != nil {
		return err
	}
	if err := staged.add(balanceKey{asset, to}, amount); err != nil {
		return err
	}
	return l.commit(staged)
}

// Settle applies the batch immediately. It is Prepare followed by Commit.
func (l *Ledger) Settle(ctx context.Context, transfers []lending.Transfer) error {
	settlement, err := l.Prepare(ctx, transfers)
	if err != nil {
		return err
	}
	return settlement.Commit()
}

// Prepare applies the batch in order against a staged copy of the touched
// balances. The ledger stays locked until the settlement is committed or
// discarded.
func (l *Ledger) Prepare(ctx context.Context, transfers []lending.Transfer) (lending.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	staged := l.stage()
	for i, tr := range transfers {
		if err := staged.apply(tr, l.custody); err != nil {
			l.mu.Unlock()
			return nil, fmt.Errorf("transfer %d (%s %s): %w", i, tr.Kind, tr.Account.Hex(), err)
		}
	}
	return &settlement{ledger: l, staged: staged}, nil
}

type settlement struct {
	ledger *Ledger
	staged *stagedBalances
	batch  bool
	done   bool
}

func (s *settlement) Stage(b storage.Batch) {
	if s.done || s.ledger.db == nil {
		return
	}
	s.staged.write(b)
	s.batch = true
}

func (s *settlement) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	defer s.ledger.mu.Unlock()
	if s.batch {
		s.ledger.publish(s.staged)
		return nil
	}
	return s.ledger.commit(s.staged)
}

func (s *settlement) Discard() {
	if s.done {
		return
	}
	s.done = true
	s.ledger.mu.Unlock()
}

type stagedBalances struct {
	base    map[balanceKey]*uint256.Int
	changed map[balanceKey]*uint256.Int
}

func (l *Ledger) stage() *stagedBalances {
	return &stagedBalances{base: l.balances, changed: make(map[balanceKey]*uint256.Int)}
}

func (s *stagedBalances) apply(tr lending.Transfer, custody common.Address) error {
	if tr.Account == (common.Address{}) || tr.Amount == nil || tr.Amount.IsZero() {
		return ErrInvalidTransfer
	}
	account := balanceKey{tr.Asset, tr.Account}
	pool := balanceKey{tr.Asset, custody}
	switch tr.Kind {
	case lending.TransferPull:
		if err := s.sub(account, tr.Amount); err != nil {
			return err
		}
		return s.add(pool, tr.Amount)
	case lending.TransferPush:
		if err := s.sub(pool, tr.Amount); err != nil {
			return err
		}
		return s.add(account, tr.Amount)
	default:
		return ErrInvalidTransfer
	}
}

func (s *stagedBalances) write(b storage.Batch) {
	for k, bal := range s.changed {
		if bal.IsZero() {
			b.Delete(k.bytes())
		} else {
			b.Put(k.bytes(), bal.Bytes())
		}
	}
}

func (s *stagedBalances) get(k balanceKey) *uint256.Int {
	if bal, ok := s.changed[k]; ok {
		return bal
	}
	if bal, ok := s.base[k]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

func (s *stagedBalances) add(k balanceKey, amount *uint256.Int) error {
	sum, overflow := new(uint256.Int).AddOverflow(s.get(k), amount)
	if overflow {
		return ErrBalanceOverflow
	}
	s.changed[k] = sum
	return nil
}

func (s *stagedBalances) sub(k balanceKey, amount *uint256.Int) error {
	bal := s.get(k)
	if bal.Lt(amount) {
		return ErrInsufficientBalance
	}
	s.changed[k] = new(uint256.Int).Sub(bal, amount)
	return nil
}

func (l *Ledger) commit(staged *stagedBalances) error {
	if l.db != nil && len(staged.changed) > 0 {
		batch := l.db.NewBatch()
		staged.write(batch)
		if err := batch.Write(); err != nil {
			return fmt.Errorf("bank: persist balances: %w", err)
		}
	}
	l.publish(staged)
	return nil
}

func (l *Ledger) publish(staged *stagedBalances) {
	for k, bal := range staged.changed {
		if bal.IsZero() {
			delete(l.balances, k)
		} else {
			l.balances[k] = bal
		}
	}
}
