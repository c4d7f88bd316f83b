package services

import (
	"sync"
	"time"
)

// nonceGuard rejects reuse of a (feed, nonce) pair within the replay window.
// Entries outside the window are pruned lazily on each check.
type nonceGuard struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time

	// now is swappable for window expiry tests.
	now func() time.Time
}

func newNonceGuard(window time.Duration) *nonceGuard {
	return &nonceGuard{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// remember records the pair and reports whether it was fresh. A false return
// means the nonce was already used for this feed within the window.
func (g *nonceGuard) remember(feedID, nonce string) bool {
	key := feedID + "\x00" + nonce
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.window > 0 {
		for k, at := range g.seen {
			if now.Sub(at) > g.window {
				delete(g.seen, k)
			}
		}
	}

	if _, used := g.seen[key]; used {
		return false
	}
	g.seen[key] = now
	return true
}
