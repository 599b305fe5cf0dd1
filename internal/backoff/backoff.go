// Package backoff provides the jittered exponential delay policy shared by
// the auth session and the connection manager.
package backoff

import (
	"math/rand"
	"time"
)

// Policy describes capped exponential backoff with full jitter.
type Policy struct {
	Initial time.Duration
	Cap     time.Duration
}

// Duration returns the delay for the given zero-based attempt: a uniformly
// random duration in (0, min(Initial*2^attempt, Cap)]. Jitter prevents
// reconnect stampedes when many clients drop at once.
func (p Policy) Duration(attempt int) time.Duration {
	ceiling := p.Initial
	for i := 0; i < attempt && ceiling < p.Cap; i++ {
		ceiling *= 2
	}
	if ceiling > p.Cap {
		ceiling = p.Cap
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling))) + 1
}
