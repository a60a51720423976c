/*
Package resilience provides a circuit breaker for per-target fail-fast
behavior.

Each remote owns one Breaker around writes to its terminal. After
FailureThreshold consecutive write failures the breaker opens and input is
rejected with ErrCircuitOpen until OpenTimeout passes; then HalfOpenProbes
calls are let through and their outcome closes or reopens it.

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open

Usage:

	breaker := resilience.New("remote:"+remoteId, resilience.Settings{
		FailureThreshold: 3,
		OpenTimeout:      5 * time.Second,
	})
	err := breaker.Do(func() error {
		_, err := ptmx.Write(data)
		return err
	})
*/
package resilience
