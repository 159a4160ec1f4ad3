package poller

import (
	"context"
	"fmt"
	"strings"

	"tipbot/engine/library"
)

func (p *Poller) txLink(txID string) string {
	if p.cfg.ExplorerTxURL == "" || !strings.Contains(p.cfg.ExplorerTxURL, "%s") {
		return txID
	}
	return fmt.Sprintf(p.cfg.ExplorerTxURL, txID)
}

func (p *Poller) replyText(o outcome, m mention) string {
	i := m.intent
	switch o.kind {
	case sent, stored:
		return fmt.Sprintf("Sent %s %s to %s. %s", i.Amount, i.Currency, i.Recipient, p.txLink(o.txID))
	case unconfirmed:
		return fmt.Sprintf("Your tip of %s %s to %s was submitted (%s) but is not confirmed yet. It is held as a pending claim until the network confirms it.",
			i.Amount, i.Currency, i.Recipient, p.txLink(o.txID))
	case deferred:
		return fmt.Sprintf("Your tip of %s %s to %s is waiting as a pending claim: %s. %s can claim it after signing up.",
			i.Amount, i.Currency, i.Recipient, o.reason, i.Recipient)
	}
	return ""
}

// reply answers each mention in the outcome once and returns how many replies were posted.
// A failed post is logged and never affects the ledger.
func (p *Poller) reply(ctx context.Context, o outcome) int {
	n := 0
	for _, m := range o.mentions {
		text := p.replyText(o, m)
		if text == "" {
			continue
		}
		if _, err := p.social.PostReply(ctx, text, m.post.ID); err != nil {
			library.LogCLI(fmt.Sprintf("could not reply to %s: %v", m.post.ID, err), 2)
			continue
		}
		n++
	}
	return n
}
