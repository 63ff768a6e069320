// internal/entry/registry.go
package entry

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

var ErrInteractionNotFound = errors.New("entry not found or expired")

// registry holds live interactions. The least recently used are dropped
// once the limit is reached.
type registry struct {
	items *lru.Cache
}

func newRegistry(limit int) (*registry, error) {
	if limit < 1 {
		limit = 1
	}
	items, err := lru.NewWithEvict(limit, func(_ interface{}, value interface{}) {
		it := value.(*Interaction)
		it.mu.Lock()
		it.abandonLocked()
		it.mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("creating interaction registry: %w", err)
	}
	return &registry{items: items}, nil
}

func (r *registry) add(it *Interaction) {
	r.items.Add(it.ID, it)
}

// get returns the interaction only to the session that owns it.
func (r *registry) get(sessionID, id string) (*Interaction, error) {
	v, ok := r.items.Get(id)
	if !ok {
		return nil, ErrInteractionNotFound
	}
	it := v.(*Interaction)
	if it.SessionID != sessionID {
		return nil, ErrInteractionNotFound
	}
	return it, nil
}

func (r *registry) remove(id string) {
	r.items.Remove(id)
}

func (r *registry) len() int {
	return r.items.Len()
}
