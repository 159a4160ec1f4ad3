// Package social is the read/post capability over the public feed the bot listens on.
package social

import (
	"context"
	"strings"
	"time"
)

// Post is one mention of the bot.
type Post struct {
	ID           string
	Text         string
	AuthorHandle string // empty when the author could not be resolved to a handle
	// AuthorID is the platform identity of the author. When set, only the account
	// registered to this identity may spend as AuthorHandle.
	AuthorID     string
	CreatedAt    time.Time
}

// Cursor marks the newest mention already fetched.
type Cursor struct {
	SinceID string
	SinceAt time.Time
}

func (c Cursor) IsZero() bool {
	return c.SinceID == "" && c.SinceAt.IsZero()
}

// After reports whether p is newer than the cursor. Posts from the same instant are ordered
// by id, the same order Advance uses, so a tie is never fetched twice.
func (c Cursor) After(p Post) bool {
	if c.IsZero() {
		return true
	}
	return p.CreatedAt.After(c.SinceAt) || (p.CreatedAt.Equal(c.SinceAt) && p.ID > c.SinceID)
}

// comparePosts orders posts the way the cursor walks them: by time, then by id.
func comparePosts(a, b Post) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Advance returns the cursor moved to the newest of posts.
func (c Cursor) Advance(posts []Post) Cursor {
	for _, p := range posts {
		if c.IsZero() || p.CreatedAt.After(c.SinceAt) || (p.CreatedAt.Equal(c.SinceAt) && p.ID > c.SinceID) {
			c = Cursor{SinceID: p.ID, SinceAt: p.CreatedAt}
		}
	}
	return c
}

type Social interface {
	// SearchMentions returns mentions matching query that are newer than since.
	SearchMentions(ctx context.Context, query string, since Cursor) ([]Post, error)
	// PostReply publishes text as a reply to replyToID and returns the new post id.
	PostReply(ctx context.Context, text, replyToID string) (string, error)
}
