package lending

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// State persists pools, credit profiles and borrow positions. Getters return
// nil without an error when the record does not exist. Apply must commit a
// changeset atomically.
type State interface {
	GetPool(asset common.Address) (*AssetPool, error)
	ListAssets() ([]common.Address, error)
	GetProfile(addr common.Address) (*CreditProfile, error)
	GetPositions(addr common.Address) ([]*BorrowPosition, error)
	Apply(changes *ChangeSet) error
}

// ChangeSet is the set of records written by one operation. A nil pool or
// profile deletes the record; an empty position list deletes the borrower's
// positions.
type ChangeSet struct {
	Pools     map[common.Address]*AssetPool
	Profiles  map[common.Address]*CreditProfile
	Positions map[common.Address][]*BorrowPosition
}

// NewChangeSet returns an empty changeset.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Pools:     make(map[common.Address]*AssetPool),
		Profiles:  make(map[common.Address]*CreditProfile),
		Positions: make(map[common.Address][]*BorrowPosition),
	}
}

// Empty reports whether the changeset writes nothing.
func (c *ChangeSet) Empty() bool {
	return c == nil || (len(c.Pools) == 0 && len(c.Profiles) == 0 && len(c.Positions) == 0)
}

// SortAddresses orders addresses bytewise.
func SortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
}

// MemoryState is an in-memory State. Records are cloned on the way in and
// out so callers never share pointers with the store.
type MemoryState struct {
	mu        sync.RWMutex
	pools     map[common.Address]*AssetPool
	profiles  map[common.Address]*CreditProfile
	positions map[common.Address][]*BorrowPosition
}

// NewMemoryState returns an empty in-memory store.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		pools:     make(map[common.Address]*AssetPool),
		profiles:  make(map[common.Address]*CreditProfile),
		positions: make(map[common.Address][]*BorrowPosition),
	}
}

func (s *MemoryState) GetPool(asset common.Address) (*AssetPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools[asset].Clone(), nil
}

func (s *MemoryState) ListAssets() ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Address, 0, len(s.pools))
	for asset := range s.pools {
		out = append(out, asset)
	}
	SortAddresses(out)
	return out, nil
}

func (s *MemoryState) GetProfile(addr common.Address) (*CreditProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[addr].Clone(), nil
}

func (s *MemoryState) GetPositions(addr common.Address) ([]*BorrowPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePositions(s.positions[addr]), nil
}

func (s *MemoryState) Apply(changes *ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for asset, pool := range changes.Pools {
		if pool == nil {
			delete(s.pools, asset)
			continue
		}
		s.pools[asset] = pool.Clone()
	}
	for addr, profile := range changes.Profiles {
		if profile == nil {
			delete(s.profiles, addr)
			continue
		}
		s.profiles[addr] = profile.Clone()
	}
	for addr, positions := range changes.Positions {
		if len(positions) == 0 {
			delete(s.positions, addr)
			continue
		}
		s.positions[addr] = clonePositions(positions)
	}
	return nil
}
