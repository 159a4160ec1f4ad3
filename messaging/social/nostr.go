package social

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/slices"
	"tipbot/engine/library"
)

// Nostr reads mentions of the bot from a set of relays and publishes replies to them.
// A mention is a kind 1 note that p-tags the bot's pubkey.
type Nostr struct {
	relays    []string
	wallet    library.Wallet
	botHandle string
	timeout   time.Duration
	limit     int
	profiles  *profileCache
	authorsMu deadlock.Mutex
	authors   map[library.Sha256]library.Account
}

func NewNostr(relays []string, wallet library.Wallet, botHandle string, timeout time.Duration, limit int) *Nostr {
	return &Nostr{
		relays:    relays,
		wallet:    wallet,
		botHandle: botHandle,
		timeout:   timeout,
		limit:     limit,
		profiles:  newProfileCache(),
		authors:   make(map[library.Sha256]library.Account),
	}
}

// SearchMentions ignores query beyond requiring the note to tag the bot; the relays are the index.
func (n *Nostr) SearchMentions(ctx context.Context, query string, since Cursor) ([]Post, error) {
	filter := nostr.Filter{
		Kinds: []int{1},
		Tags:  nostr.TagMap{"p": []string{n.wallet.Account}},
		Limit: n.limit,
	}
	if !since.IsZero() {
		ts := nostr.Timestamp(since.SinceAt.Unix())
		filter.Since = &ts
	}
	events, err := n.fetch(ctx, nostr.Filters{filter})
	if err != nil {
		return nil, err
	}

	var pubkeys []library.Account
	for _, e := range events {
		pubkeys = append(pubkeys, e.PubKey)
		pubkeys = append(pubkeys, library.GetAllTagValues(e, "p")...)
	}
	n.loadProfiles(ctx, pubkeys)

	var posts []Post
	n.authorsMu.Lock()
	for _, e := range events {
		if e.Kind != 1 || e.PubKey == n.wallet.Account {
			continue
		}
		if ok, err := e.CheckSignature(); !ok || err != nil {
			library.LogCLI(fmt.Sprintf("dropping event %s with a bad signature", e.ID), 3)
			continue
		}
		p := n.toPost(e)
		if !since.After(p) {
			continue
		}
		n.authors[e.ID] = e.PubKey
		posts = append(posts, p)
	}
	n.authorsMu.Unlock()
	slices.SortFunc(posts, comparePosts)
	return posts, nil
}

func (n *Nostr) toPost(e nostr.Event) Post {
	author, _ := n.profiles.handle(e.PubKey)
	return Post{
		ID:           e.ID,
		Text:         rewriteMentions(e.Content, n.mentionHandle),
		AuthorHandle: author,
		AuthorID:     e.PubKey,
		CreatedAt:    e.CreatedAt.Time().UTC(),
	}
}

func (n *Nostr) mentionHandle(pubkey string) string {
	if pubkey == n.wallet.Account {
		return n.botHandle
	}
	h, _ := n.profiles.handle(pubkey)
	return h
}

var mentionPattern = regexp.MustCompile(`nostr:(npub1[02-9ac-hj-np-z]+)`)

// rewriteMentions replaces nostr:npub references with the handle resolve returns for the pubkey.
// References that do not resolve are left as they are.
func rewriteMentions(content string, resolve func(pubkey string) string) string {
	return mentionPattern.ReplaceAllStringFunc(content, func(m string) string {
		prefix, value, err := nip19.Decode(m[len("nostr:"):])
		if err != nil || prefix != "npub" {
			return m
		}
		pubkey, ok := value.(string)
		if !ok {
			return m
		}
		if h := resolve(pubkey); h != "" {
			return h
		}
		return m
	})
}

func (n *Nostr) loadProfiles(ctx context.Context, pubkeys []library.Account) {
	var unique []library.Account
	for _, p := range pubkeys {
		if len(p) == 64 && !slices.Contains(unique, p) {
			unique = append(unique, p)
		}
	}
	missing := n.profiles.missing(unique)
	if len(missing) == 0 {
		return
	}
	events, err := n.fetch(ctx, nostr.Filters{{Kinds: []int{0}, Authors: missing}})
	if err != nil {
		library.LogCLI(fmt.Sprintf("could not fetch profiles: %v", err), 2)
		return
	}
	for _, e := range events {
		if ok, err := e.CheckSignature(); ok && err == nil {
			n.profiles.push(e)
		}
	}
}

// fetch queries every relay in parallel until each sends EOSE or the timeout passes.
// It fails only when no relay could be reached.
func (n *Nostr) fetch(ctx context.Context, filters nostr.Filters) ([]nostr.Event, error) {
	sane := library.ValidateSaneExecutionTime()
	defer sane()
	events := make(map[string]nostr.Event)
	eventsMu := &deadlock.Mutex{}
	reached := 0
	wait := &deadlock.WaitGroup{}
	for _, url := range n.relays {
		wait.Add(1)
		go func(url string) {
			defer wait.Done()
			ctxsub, cancel := context.WithTimeout(ctx, n.timeout)
			defer cancel()
			relay, err := nostr.RelayConnect(ctxsub, url)
			if err != nil {
				library.LogCLI(fmt.Sprintf("could not connect to relay %s: %s", url, err), 3)
				return
			}
			defer relay.Close()
			sub, err := relay.Subscribe(ctxsub, filters)
			if err != nil {
				library.LogCLI(fmt.Sprintf("could not subscribe on relay %s: %s", url, err), 2)
				return
			}
			defer sub.Close()
			eventsMu.Lock()
			reached++
			eventsMu.Unlock()
			for {
				select {
				case ev, ok := <-sub.Events:
					if !ok {
						return
					}
					eventsMu.Lock()
					events[ev.ID] = *ev
					eventsMu.Unlock()
				case <-sub.EndOfStoredEvents:
					return
				case <-ctxsub.Done():
					return
				}
			}
		}(url)
	}
	wait.Wait()
	if reached == 0 && len(n.relays) > 0 {
		return nil, fmt.Errorf("none of %d relays could be reached", len(n.relays))
	}
	r := make([]nostr.Event, 0, len(events))
	for _, e := range events {
		r = append(r, e)
	}
	return r, nil
}

// PostReply signs a kind 1 reply and publishes it to every relay. It succeeds if any relay accepts it.
func (n *Nostr) PostReply(ctx context.Context, text, replyToID string) (string, error) {
	n.authorsMu.Lock()
	author := n.authors[replyToID]
	n.authorsMu.Unlock()
	ev := nostr.Event{
		PubKey:    n.wallet.Account,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      1,
		Tags:      library.ReplyTags(replyToID, author),
		Content:   text,
	}
	if err := ev.Sign(n.wallet.PrivateKey); err != nil {
		return "", fmt.Errorf("sign reply: %w", err)
	}
	accepted := 0
	acceptedMu := &deadlock.Mutex{}
	wg := &deadlock.WaitGroup{}
	for _, url := range n.relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			ctxpub, cancel := context.WithTimeout(ctx, n.timeout)
			defer cancel()
			relay, err := nostr.RelayConnect(ctxpub, url)
			if err != nil {
				library.LogCLI(fmt.Sprintf("could not connect to relay %s: %s", url, err), 3)
				return
			}
			defer relay.Close()
			if _, err := relay.Publish(ctxpub, ev); err != nil {
				library.LogCLI(fmt.Sprintf("could not publish to relay %s: %s", url, err), 2)
				return
			}
			acceptedMu.Lock()
			accepted++
			acceptedMu.Unlock()
		}(url)
	}
	wg.Wait()
	if accepted == 0 {
		return "", fmt.Errorf("no relay accepted reply to %s", replyToID)
	}
	return ev.ID, nil
}
