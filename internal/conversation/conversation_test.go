package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/GriffinCanCode/copilot/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureCacheAllOrNothing(t *testing.T) {
	var cache SignatureCache

	_, ok := cache.Get()
	assert.False(t, ok)

	assert.False(t, cache.Set(Signatures{Plain: "p"}))
	assert.False(t, cache.Set(Signatures{Encrypted: "e"}))
	_, ok = cache.Get()
	assert.False(t, ok)

	assert.True(t, cache.Set(Signatures{Plain: "p", Encrypted: "e"}))
	sigs, ok := cache.Get()
	assert.True(t, ok)
	assert.Equal(t, Signatures{Plain: "p", Encrypted: "e"}, sigs)

	// A partial update never clears a complete pair.
	assert.False(t, cache.Set(Signatures{Plain: "other"}))
	sigs, _ = cache.Get()
	assert.Equal(t, "p", sigs.Plain)
}

func TestConversationString(t *testing.T) {
	c := New("c1")
	assert.Equal(t, "Conversation(c1)", c.String())
	c.SetName("Trip")
	assert.Equal(t, `Conversation(c1, "Trip")`, c.String())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	a := r.Get("a")
	assert.Same(t, a, r.Get("a"))
	a.Cache().Set(Signatures{Plain: "p", Encrypted: "e"})

	// Put merges metadata and keeps the cached signatures.
	fresh := New("a")
	fresh.SetMeta(Metadata{Name: "renamed", Tone: "Precise"})
	stored := r.Put(fresh)
	assert.Same(t, a, stored)
	assert.Equal(t, Metadata{Name: "renamed", Tone: "Precise"}, a.Meta())
	_, ok := a.Signatures()
	assert.True(t, ok)

	b := r.Put(New("b"))
	assert.Equal(t, []*Conversation{a, b}, r.All())
	assert.Equal(t, 2, r.Len())

	r.Remove("a")
	_, ok = r.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, []*Conversation{b}, r.All())

	r.Remove("missing")
	assert.Equal(t, 1, r.Len())
}

func TestRegistryConcurrentRefresh(t *testing.T) {
	r := NewRegistry()
	c := r.Get("a")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				fresh := New("a")
				fresh.SetMeta(Metadata{Name: fmt.Sprintf("name-%d-%d", i, j), Plugins: []protocol.Plugin{protocol.SearchPlugin()}})
				r.Put(fresh)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				meta := c.Meta()
				_ = c.String()
				if len(meta.Plugins) > 0 {
					meta.Plugins[0] = protocol.Plugin{}
				}
			}
		}()
	}
	wg.Wait()

	meta := c.Meta()
	assert.Contains(t, meta.Name, "name-")
	require.Len(t, meta.Plugins, 1)
	assert.Equal(t, "Search", meta.Plugins[0].Name())
}
