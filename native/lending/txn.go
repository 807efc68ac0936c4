package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/core/events"
)

// txn stages the records touched by one operation. Working copies are cloned
// from State on first access; the originals are kept so a failed commit can
// be reverted.
type txn struct {
	state     State
	pools     map[common.Address]*AssetPool
	profiles  map[common.Address]*CreditProfile
	positions map[common.Address][]*BorrowPosition
	prior     *ChangeSet
	transfers []Transfer
	events    events.Buffer
}

func newTxn(state State) *txn {
	return &txn{
		state:     state,
		pools:     make(map[common.Address]*AssetPool),
		profiles:  make(map[common.Address]*CreditProfile),
		positions: make(map[common.Address][]*BorrowPosition),
		prior:     NewChangeSet(),
	}
}

func (tx *txn) loadPool(asset common.Address) (*AssetPool, error) {
	if pool, ok := tx.pools[asset]; ok {
		return pool, nil
	}
	if _, loaded := tx.prior.Pools[asset]; loaded {
		return nil, nil
	}
	pool, err := tx.state.GetPool(asset)
	if err != nil {
		return nil, fmt.Errorf("lending engine: load pool %s: %w", asset.Hex(), err)
	}
	tx.prior.Pools[asset] = pool.Clone()
	if pool == nil {
		return nil, nil
	}
	if pool.Ledger == nil {
		return nil, errNilPool
	}
	pool.Ledger.SetEmitter(&tx.events)
	tx.pools[asset] = pool
	return pool, nil
}

// pool returns the working copy of a registered pool, failing closed for
// unregistered assets.
func (tx *txn) pool(asset common.Address) (*AssetPool, error) {
	pool, err := tx.loadPool(asset)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrUnsupportedAsset
	}
	return pool, nil
}

func (tx *txn) putPool(pool *AssetPool) {
	pool.Ledger.SetEmitter(&tx.events)
	tx.pools[pool.Asset] = pool
}

func (tx *txn) removePool(asset common.Address) {
	tx.pools[asset] = nil
}

func (tx *txn) profile(addr common.Address) (*CreditProfile, error) {
	if profile, ok := tx.profiles[addr]; ok {
		return profile, nil
	}
	if _, loaded := tx.prior.Profiles[addr]; loaded {
		return nil, nil
	}
	profile, err := tx.state.GetProfile(addr)
	if err != nil {
		return nil, fmt.Errorf("lending engine: load profile %s: %w", addr.Hex(), err)
	}
	tx.prior.Profiles[addr] = profile.Clone()
	if profile != nil {
		tx.profiles[addr] = profile
	}
	return profile, nil
}

func (tx *txn) profileOrCreate(addr common.Address, score uint64) (*CreditProfile, error) {
	profile, err := tx.profile(addr)
	if err != nil || profile != nil {
		return profile, err
	}
	profile = newCreditProfile(addr, score)
	tx.profiles[addr] = profile
	return profile, nil
}

func (tx *txn) borrowerPositions(addr common.Address) ([]*BorrowPosition, error) {
	if positions, ok := tx.positions[addr]; ok {
		return positions, nil
	}
	positions, err := tx.state.GetPositions(addr)
	if err != nil {
		return nil, fmt.Errorf("lending engine: load positions %s: %w", addr.Hex(), err)
	}
	tx.prior.Positions[addr] = clonePositions(positions)
	tx.positions[addr] = positions
	return positions, nil
}

func (tx *txn) position(addr common.Address, index uint64) (*BorrowPosition, error) {
	positions, err := tx.borrowerPositions(addr)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(positions)) {
		return nil, ErrPositionIndex
	}
	return positions[index], nil
}

func (tx *txn) appendPosition(addr common.Address, pos *BorrowPosition) (uint64, error) {
	positions, err := tx.borrowerPositions(addr)
	if err != nil {
		return 0, err
	}
	tx.positions[addr] = append(positions, pos)
	return uint64(len(positions)), nil
}

func (tx *txn) pull(asset, from common.Address, amount *uint256.Int) {
	if isZero(amount) {
		return
	}
	tx.transfers = append(tx.transfers, Transfer{Kind: TransferPull, Asset: asset, Account: from, Amount: copyAmount(amount)})
}

func (tx *txn) push(asset, to common.Address, amount *uint256.Int) {
	if isZero(amount) {
		return
	}
	tx.transfers = append(tx.transfers, Transfer{Kind: TransferPush, Asset: asset, Account: to, Amount: copyAmount(amount)})
}

func (tx *txn) emit(evt events.Event) { tx.events.Emit(evt) }

func (tx *txn) changes() *ChangeSet {
	out := NewChangeSet()
	for asset, pool := range tx.pools {
		out.Pools[asset] = pool
	}
	for addr, profile := range tx.profiles {
		out.Profiles[addr] = profile
	}
	for addr, positions := range tx.positions {
		out.Positions[addr] = positions
	}
	return out
}

// rollback restores every record the operation wrote to its prior value.
func (tx *txn) rollback() *ChangeSet {
	out := NewChangeSet()
	for asset := range tx.pools {
		out.Pools[asset] = tx.prior.Pools[asset]
	}
	for addr := range tx.profiles {
		out.Profiles[addr] = tx.prior.Profiles[addr]
	}
	for addr := range tx.positions {
		out.Positions[addr] = tx.prior.Positions[addr]
	}
	return out
}
