package handler

import (
	"sync"

	"coindash-bot/internal/oracle"
	"coindash-bot/internal/pkg/lock"
)

// RefRegistry remembers, per player and context, the last game message
// they launched from. The forwarder needs it to point setGameScore at
// the right scoreboard. Entries are overwritten on every launch, so the
// registry stays small and always targets the freshest message.
type RefRegistry struct {
	mu   sync.RWMutex
	refs map[string]oracle.MessageRef
}

// NewRefRegistry creates an empty registry.
func NewRefRegistry() *RefRegistry {
	return &RefRegistry{refs: make(map[string]oracle.MessageRef)}
}

// Record stores the launch message for a player in a context.
func (r *RefRegistry) Record(contextID string, playerID int64, ref oracle.MessageRef) {
	if !ref.Valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[lock.PlayerKey(contextID, playerID)] = ref
}

// Lookup returns the last launch message for a player, if any.
func (r *RefRegistry) Lookup(contextID string, playerID int64) (oracle.MessageRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.refs[lock.PlayerKey(contextID, playerID)]
	return ref, ok
}
