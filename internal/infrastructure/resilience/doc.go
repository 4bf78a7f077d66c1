/*
Package resilience provides the circuit breaker that guards calls to the
Bing REST endpoints.

A run of failed conversation, signature or image requests opens the breaker
so later calls fail fast with ErrCircuitOpen instead of waiting on retries.
Caller cancellation does not count as a failure.

# Usage

	breaker := resilience.New("bing", resilience.Settings{
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	resp, err := resilience.Call(breaker, func() (*resty.Response, error) {
		return req.Get(url)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open
*/
package resilience
