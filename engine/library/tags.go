package library

import (
	"github.com/nbd-wtf/go-nostr"
)

// GetAllTagValues returns the value of every tag with the given key, in order and without duplicates.
func GetAllTagValues(e nostr.Event, key string) (r []string) {
	seen := make(map[string]struct{})
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[0] != key {
			continue
		}
		if _, ok := seen[tag[1]]; ok {
			continue
		}
		seen[tag[1]] = struct{}{}
		r = append(r, tag[1])
	}
	return
}

// ReplyTags builds the NIP-10 tags for a reply to event id written by author.
func ReplyTags(id Sha256, author Account) nostr.Tags {
	t := nostr.Tags{nostr.Tag{"e", id, "", "reply"}}
	if len(author) == 64 {
		t = append(t, nostr.Tag{"p", author})
	}
	return t
}
