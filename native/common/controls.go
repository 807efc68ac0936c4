package common

import (
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Controls is an in-process gate holding the protocol owner and the set of
// paused modules. It satisfies both PauseView and OwnerView.
type Controls struct {
	mu     sync.RWMutex
	owner  ethcommon.Address
	paused map[string]bool
}

// NewControls returns controls owned by the supplied address with nothing
// paused.
func NewControls(owner ethcommon.Address) *Controls {
	return &Controls{owner: owner, paused: make(map[string]bool)}
}

func (c *Controls) IsOwner(addr ethcommon.Address) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner != (ethcommon.Address{}) && c.owner == addr
}

func (c *Controls) IsPaused(module string) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused[module]
}

// Pause halts the named module. Only the owner may pause.
func (c *Controls) Pause(caller ethcommon.Address, module string) error {
	return c.setPaused(caller, module, true)
}

// Unpause resumes the named module. Only the owner may unpause.
func (c *Controls) Unpause(caller ethcommon.Address, module string) error {
	return c.setPaused(caller, module, false)
}

func (c *Controls) setPaused(caller ethcommon.Address, module string, paused bool) error {
	if err := RequireOwner(c, caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if paused {
		c.paused[module] = true
	} else {
		delete(c.paused, module)
	}
	return nil
}

// Owner returns the configured owner address.
func (c *Controls) Owner() ethcommon.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}
