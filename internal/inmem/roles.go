package inmem

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Roles is a role registry keyed by keccak role ids.
type Roles struct {
	mu      sync.RWMutex
	members map[common.Hash]map[common.Address]bool
}

func NewRoles() *Roles {
	return &Roles{members: make(map[common.Hash]map[common.Address]bool)}
}

func (r *Roles) Grant(role common.Hash, account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[role] == nil {
		r.members[role] = make(map[common.Address]bool)
	}
	r.members[role][account] = true
}

func (r *Roles) Revoke(role common.Hash, account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[role], account)
}

func (r *Roles) HasRole(role common.Hash, account common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[role][account]
}
