// Package conversation holds server-side conversations, their cached
// signatures and the REST calls that manage them.
package conversation

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/GriffinCanCode/copilot/internal/protocol"
)

// Signatures are the two tokens issued for a conversation. The plain token
// authorizes REST calls; the encrypted one opens the hub.
type Signatures struct {
	Plain     string
	Encrypted string
}

// Complete reports whether both tokens are present.
func (s Signatures) Complete() bool {
	return s.Plain != "" && s.Encrypted != ""
}

// SignatureCache stores both tokens together or neither. It is never cleared.
type SignatureCache struct {
	mu   sync.RWMutex
	sigs Signatures
}

// Get returns the cached tokens and whether they are present.
func (c *SignatureCache) Get() (Signatures, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sigs, c.sigs.Complete()
}

// Set stores sigs if both tokens are present and reports whether it did.
func (c *SignatureCache) Set(sigs Signatures) bool {
	if !sigs.Complete() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sigs = sigs
	return true
}

// Metadata is what the service reports about a conversation.
type Metadata struct {
	Name      string
	Tone      string
	Plugins   []protocol.Plugin
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m Metadata) clone() Metadata {
	m.Plugins = slices.Clone(m.Plugins)
	return m
}

// Conversation is a chat addressed by an opaque id. Its metadata is read and
// replaced as a whole, so a listing can refresh it while handlers read it.
type Conversation struct {
	ID string

	mu         sync.RWMutex
	meta       Metadata
	signatures SignatureCache
}

// New returns a conversation with an empty signature cache.
func New(id string) *Conversation {
	return &Conversation{ID: id}
}

// Meta returns a copy of the metadata.
func (c *Conversation) Meta() Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.clone()
}

// SetMeta replaces the metadata.
func (c *Conversation) SetMeta(m Metadata) {
	m = m.clone()
	c.mu.Lock()
	c.meta = m
	c.mu.Unlock()
}

// Name returns the display name.
func (c *Conversation) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.Name
}

// SetName changes the display name only.
func (c *Conversation) SetName(name string) {
	c.mu.Lock()
	c.meta.Name = name
	c.mu.Unlock()
}

// Signatures returns the cached tokens.
func (c *Conversation) Signatures() (Signatures, bool) {
	return c.signatures.Get()
}

// Cache returns the signature cache of c.
func (c *Conversation) Cache() *SignatureCache {
	return &c.signatures
}

// String identifies the conversation in logs.
func (c *Conversation) String() string {
	name := c.Name()
	if name == "" {
		return fmt.Sprintf("Conversation(%s)", c.ID)
	}
	return fmt.Sprintf("Conversation(%s, %q)", c.ID, name)
}

// Registry keeps one Conversation per id so cached signatures are reused.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Conversation
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Conversation)}
}

// Get returns the conversation for id, creating it if needed.
func (r *Registry) Get(id string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.items[id]; ok {
		return c
	}
	c := New(id)
	r.items[id] = c
	r.order = append(r.order, id)
	return c
}

// Lookup returns the conversation for id if it is known.
func (r *Registry) Lookup(id string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	return c, ok
}

// Put stores c, or merges its metadata into the known conversation with the
// same id. The stored conversation is returned.
func (r *Registry) Put(c *Conversation) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[c.ID]
	if !ok {
		r.items[c.ID] = c
		r.order = append(r.order, c.ID)
		return c
	}
	existing.SetMeta(c.Meta())
	if sigs, ok := c.Signatures(); ok {
		existing.signatures.Set(sigs)
	}
	return existing
}

// Remove forgets the conversation with id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return
	}
	delete(r.items, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// All returns the known conversations in insertion order.
func (r *Registry) All() []*Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conversation, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

// Len returns the number of known conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
