package stopsignal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenTrigger(t *testing.T) {
	token, trigger := New()
	assert.False(t, token.IsSet())

	trigger()
	assert.True(t, token.IsSet())

	trigger()
	assert.True(t, token.IsSet())
}

func TestTriggerConcurrent(t *testing.T) {
	token, trigger := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trigger()
			_ = token.IsSet()
		}()
	}
	wg.Wait()

	assert.True(t, token.IsSet())
}

func TestTokensIndependent(t *testing.T) {
	a, triggerA := New()
	b, _ := New()

	triggerA()
	assert.True(t, a.IsSet())
	assert.False(t, b.IsSet())
}
