package social

import (
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
	"tipbot/engine/library"
	"tipbot/state/accounts"
)

// profileCache maps pubkeys to the handle their newest kind 0 event names.
type profileCache struct {
	mu      deadlock.Mutex
	handles map[library.Account]string
	seen    map[library.Account]nostr.Timestamp
}

func newProfileCache() *profileCache {
	return &profileCache{
		handles: make(map[library.Account]string),
		seen:    make(map[library.Account]nostr.Timestamp),
	}
}

func (c *profileCache) push(e nostr.Event) {
	if e.Kind != 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.seen[e.PubKey]; ok && ts >= e.CreatedAt {
		return
	}
	c.seen[e.PubKey] = e.CreatedAt
	var p library.Profile
	if err := json.Unmarshal([]byte(e.Content), &p); err != nil {
		c.handles[e.PubKey] = ""
		return
	}
	c.handles[e.PubKey] = handleFromProfile(p)
}

func (c *profileCache) handle(pubkey library.Account) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[pubkey]
	return h, ok
}

func (c *profileCache) missing(pubkeys []library.Account) (r []library.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range pubkeys {
		if _, ok := c.seen[p]; !ok {
			r = append(r, p)
		}
	}
	return
}

// handleFromProfile picks the first profile name that is a valid handle.
func handleFromProfile(p library.Profile) string {
	for _, candidate := range []string{p.Name, p.Username, p.DisplayName, p.DisplayName1} {
		if h, err := accounts.NormalizeHandle(candidate); err == nil {
			return h
		}
	}
	return ""
}
