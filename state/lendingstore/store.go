// Package lendingstore persists lending engine records in a key-value
// database.
package lendingstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"creditpool/native/lending"
	"creditpool/storage"
)

var (
	poolPrefix     = []byte("lending/pool/")
	profilePrefix  = []byte("lending/profile/")
	positionPrefix = []byte("lending/positions/")
)

func key(prefix []byte, addr common.Address) []byte {
	out := make([]byte, 0, len(prefix)+common.AddressLength)
	out = append(out, prefix...)
	return append(out, addr.Bytes()...)
}

// Store implements lending.State over a storage.Database. Each changeset is
// written as one batch, together with the vault's balances when the engine
// settles through a ledger on the same database.
type Store struct {
	mu sync.RWMutex
	db storage.Database
}

var _ lending.BatchState = (*Store)(nil)

// New wraps db.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) get(k []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(k)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("lendingstore: decode %q: %w", k, err)
	}
	return true, nil
}

func (s *Store) GetPool(asset common.Address) (*lending.AssetPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool := new(lending.AssetPool)
	ok, err := s.get(key(poolPrefix, asset), pool)
	if err != nil || !ok {
		return nil, err
	}
	return pool, nil
}

func (s *Store) ListAssets() ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var assets []common.Address
	err := s.db.Iterate(poolPrefix, func(k, _ []byte) bool {
		assets = append(assets, common.BytesToAddress(k[len(poolPrefix):]))
		return true
	})
	if err != nil {
		return nil, err
	}
	lending.SortAddresses(assets)
	return assets, nil
}

func (s *Store) GetProfile(addr common.Address) (*lending.CreditProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile := new(lending.CreditProfile)
	ok, err := s.get(key(profilePrefix, addr), profile)
	if err != nil || !ok {
		return nil, err
	}
	return profile, nil
}

func (s *Store) GetPositions(addr common.Address) ([]*lending.BorrowPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var positions []*lending.BorrowPosition
	if _, err := s.get(key(positionPrefix, addr), &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// Apply writes the changeset as one batch.
func (s *Store) Apply(changes *lending.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	batch := s.db.NewBatch()
	if err := s.Stage(batch, changes); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return batch.Write()
}

// NewBatch returns a batch on the underlying database.
func (s *Store) NewBatch() storage.Batch { return s.db.NewBatch() }

// Stage encodes the changeset into batch without writing it.
func (s *Store) Stage(batch storage.Batch, changes *lending.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	for asset, pool := range changes.Pools {
		if pool == nil {
			batch.Delete(key(poolPrefix, asset))
			continue
		}
		raw, err := json.Marshal(pool)
		if err != nil {
			return fmt.Errorf("lendingstore: encode pool %s: %w", asset.Hex(), err)
		}
		batch.Put(key(poolPrefix, asset), raw)
	}
	for addr, profile := range changes.Profiles {
		if profile == nil {
			batch.Delete(key(profilePrefix, addr))
			continue
		}
		raw, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("lendingstore: encode profile %s: %w", addr.Hex(), err)
		}
		batch.Put(key(profilePrefix, addr), raw)
	}
	for addr, positions := range changes.Positions {
		if len(positions) == 0 {
			batch.Delete(key(positionPrefix, addr))
			continue
		}
		raw, err := json.Marshal(positions)
		if err != nil {
			return fmt.Errorf("lendingstore: encode positions %s: %w", addr.Hex(), err)
		}
		batch.Put(key(positionPrefix, addr), raw)
	}
	return nil
}
