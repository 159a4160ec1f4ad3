// Package tips turns mention text into tip intents and groups them into batches.
package tips

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
	"tipbot/state/accounts"
)

// TipIntent is one parsed tip command. It lives for a single poll cycle.
type TipIntent struct {
	Sender          string // empty when the mention's author is unknown
	Recipient       string
	Amount          decimal.Decimal
	Currency        string
	OriginReference string
}

// Parser recognises `@bot tip <amount> [<currency>] @recipient` and
// `@bot tip @recipient <amount> [<currency>]`.
type Parser struct {
	native      string
	amountFirst *regexp.Regexp
	handleFirst *regexp.Regexp
}

// NewParser builds a parser for botHandle. currencies is the accepted set, native is used when
// a command names none.
func NewParser(botHandle string, currencies []string, native string) (*Parser, error) {
	bot, err := accounts.NormalizeHandle(botHandle)
	if err != nil {
		return nil, fmt.Errorf("bot handle: %w", err)
	}
	native = strings.ToUpper(native)
	var quoted []string
	for _, c := range currencies {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToUpper(c)))
	}
	if !slices.Contains(quoted, regexp.QuoteMeta(native)) {
		quoted = append(quoted, regexp.QuoteMeta(native))
	}
	cur := strings.Join(quoted, "|")
	mention := regexp.QuoteMeta(bot)
	return &Parser{
		native: native,
		amountFirst: regexp.MustCompile(
			`(?i)` + mention + `\s+tip\s+(\d+(?:\.\d+)?)\s*(` + cur + `)?\s+@([A-Za-z0-9_]{1,50})\b`),
		handleFirst: regexp.MustCompile(
			`(?i)` + mention + `\s+tip\s+@([A-Za-z0-9_]{1,50})\s+(\d+(?:\.\d+)?)(?:\s*(` + cur + `))?\b`),
	}, nil
}

// Parse returns the tip in text, or false when text holds no tip command.
// Sender and OriginReference are left for the caller.
func (p *Parser) Parse(text string) (TipIntent, bool) {
	var amount, currency, recipient string
	if m := p.amountFirst.FindStringSubmatch(text); m != nil {
		amount, currency, recipient = m[1], m[2], m[3]
	} else if m := p.handleFirst.FindStringSubmatch(text); m != nil {
		recipient, amount, currency = m[1], m[2], m[3]
	} else {
		return TipIntent{}, false
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return TipIntent{}, false
	}
	if currency == "" {
		currency = p.native
	}
	return TipIntent{
		Recipient: "@" + recipient,
		Amount:    d,
		Currency:  strings.ToUpper(currency),
	}, true
}
