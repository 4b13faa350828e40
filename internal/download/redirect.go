package download

import (
	"strings"
	"sync"
)

// RedirectCache remembers permanent redirects (301, 308) observed while a
// session runs, so later requests for the original URL can go straight to
// the current location without repeating the extra round trip.
//
// Redirects whose target contains a blacklisted substring are never
// recorded; login walls and captive portals often answer with a permanent
// redirect, and caching those would poison every future request for the
// original URL.
//
// Entries are kept for the lifetime of the cache and are never evicted.
type RedirectCache struct {
	mu        sync.RWMutex
	redirects map[string]string
	blacklist []string
}

// NewRedirectCache creates an empty cache. Targets containing any of the
// blacklist substrings (matched case-insensitively) are ignored by Record.
func NewRedirectCache(blacklist []string) *RedirectCache {
	lowered := make([]string, len(blacklist))
	for i, s := range blacklist {
		lowered[i] = strings.ToLower(s)
	}
	return &RedirectCache{
		redirects: make(map[string]string),
		blacklist: lowered,
	}
}

// Record stores a redirect from one URL to another, overwriting any earlier
// mapping for the same origin. Blacklisted targets are dropped silently.
func (c *RedirectCache) Record(from, to string) {
	loweredTo := strings.ToLower(to)
	for _, bad := range c.blacklist {
		if strings.Contains(loweredTo, bad) {
			return
		}
	}

	c.mu.Lock()
	c.redirects[from] = to
	c.mu.Unlock()
}

// Resolve follows recorded redirects from url to the current end of the
// chain. The boolean is false when no redirect applies: nothing recorded,
// the chain loops back on itself, or the chain terminates at url again.
func (c *RedirectCache) Resolve(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	visited := map[string]struct{}{url: {}}
	current := url
	for {
		next, ok := c.redirects[current]
		if !ok {
			break
		}
		if _, seen := visited[next]; seen {
			// Cyclic chain. Treat as unresolved rather than
			// returning a partial hop.
			return "", false
		}
		visited[next] = struct{}{}
		current = next
	}

	if current == url {
		return "", false
	}
	return current, true
}
