// Package poller runs the mention cycle: fetch, parse, batch, send or defer, reply, advance.
package poller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/slices"
	"tipbot/engine/library"
	"tipbot/messaging/social"
	"tipbot/state/accounts"
	"tipbot/state/claims"
	"tipbot/state/tips"
	"tipbot/state/transfers"
)

var ErrCycleInProgress = errors.New("a poll cycle is already running")

// CursorStore persists how far into the mention stream the bot has read.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (social.Cursor, error)
	SaveCursor(ctx context.Context, name string, c social.Cursor) error
}

type Config struct {
	BotHandle     string
	Query         string
	CursorName    string
	ExplorerTxURL string // fmt pattern with one %s for the transaction id
}

type Poller struct {
	social    social.Social
	parser    *tips.Parser
	resolver  *accounts.Resolver
	exec      *transfers.Executor
	claims    *claims.Ledger
	unsettled transfers.Ledger
	cursors   CursorStore
	cfg       Config

	mu      deadlock.Mutex
	running bool
}

func New(s social.Social, parser *tips.Parser, resolver *accounts.Resolver, exec *transfers.Executor,
	ledger *claims.Ledger, unsettled transfers.Ledger, cursors CursorStore, cfg Config) *Poller {
	if cfg.CursorName == "" {
		cfg.CursorName = "mentions"
	}
	return &Poller{
		social:    s,
		parser:    parser,
		resolver:  resolver,
		exec:      exec,
		claims:    ledger,
		unsettled: unsettled,
		cursors:   cursors,
		cfg:       cfg,
	}
}

// CycleReport counts what one cycle did.
type CycleReport struct {
	Fetched  int
	Intents  int
	Batches  int
	Sent     int
	Deferred int
	Skipped  int
	Failed   int
	Replies  int
}

// mention is a parsed intent and the post it came from.
type mention struct {
	post   social.Post
	intent tips.TipIntent
}

// RunCycle performs one full poll. Only one cycle may run at a time; a second caller gets
// ErrCycleInProgress. Failures inside a batch never end the cycle early.
func (p *Poller) RunCycle(ctx context.Context) (CycleReport, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return CycleReport{}, ErrCycleInProgress
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	var rep CycleReport
	library.LogCLI("poll cycle: fetching", 3)
	cursor, err := p.cursors.LoadCursor(ctx, p.cfg.CursorName)
	if err != nil {
		return rep, fmt.Errorf("load cursor: %w", err)
	}
	posts, err := p.social.SearchMentions(ctx, p.cfg.Query, cursor)
	if err != nil {
		return rep, fmt.Errorf("search mentions: %w", err)
	}
	rep.Fetched = len(posts)

	library.LogCLI(fmt.Sprintf("poll cycle: parsing %d mention(s)", len(posts)), 3)
	mentions := p.parse(posts)
	rep.Intents = len(mentions)

	library.LogCLI("poll cycle: aggregating", 3)
	byOrigin := make(map[string]mention, len(mentions))
	intents := make([]tips.TipIntent, 0, len(mentions))
	for _, m := range mentions {
		byOrigin[m.intent.OriginReference] = m
		intents = append(intents, m.intent)
	}
	batches := tips.Aggregate(intents)
	rep.Batches = len(batches)

	var outcomes []outcome
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			library.LogCLI("poll cycle interrupted before all batches ran", 2)
			break
		}
		o := p.processBatch(ctx, b, byOrigin)
		switch o.kind {
		case sent, stored:
			rep.Sent++
		case deferred, unconfirmed:
			rep.Deferred++
		case skipped:
			rep.Skipped++
		default:
			rep.Failed++
		}
		outcomes = append(outcomes, o)
	}

	library.LogCLI("poll cycle: replying", 3)
	for _, o := range outcomes {
		rep.Replies += p.reply(ctx, o)
	}

	next := cursor.Advance(posts)
	if next != cursor {
		if err := p.cursors.SaveCursor(ctx, p.cfg.CursorName, next); err != nil {
			return rep, fmt.Errorf("save cursor: %w", err)
		}
	}
	library.LogCLI(fmt.Sprintf("poll cycle done: %+v", rep), 4)
	return rep, nil
}

// parse keeps the mentions that hold a tip command, oldest first.
func (p *Poller) parse(posts []social.Post) []mention {
	ordered := append([]social.Post(nil), posts...)
	slices.SortStableFunc(ordered, func(a, b social.Post) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	var out []mention
	for _, post := range ordered {
		intent, ok := p.parser.Parse(post.Text)
		if !ok {
			continue
		}
		intent.OriginReference = post.ID
		if post.AuthorHandle != "" {
			if h, err := accounts.NormalizeHandle(post.AuthorHandle); err == nil {
				intent.Sender = h
			}
		}
		switch {
		case !intent.Amount.IsPositive():
			library.LogCLI(fmt.Sprintf("ignoring zero tip in %s", post.ID), 3)
			continue
		case accounts.SameHandle(intent.Recipient, p.cfg.BotHandle):
			library.LogCLI(fmt.Sprintf("ignoring tip to the bot in %s", post.ID), 3)
			continue
		case intent.Sender != "" && accounts.SameHandle(intent.Sender, intent.Recipient):
			library.LogCLI(fmt.Sprintf("ignoring self tip in %s", post.ID), 3)
			continue
		}
		out = append(out, mention{post: post, intent: intent})
	}
	return out
}
