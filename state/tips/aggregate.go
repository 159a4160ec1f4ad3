package tips

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Batch is every intent between one sender and one recipient in one currency.
type Batch struct {
	Sender    string
	Recipient string
	Currency  string
	Intents   []TipIntent
	Total     decimal.Decimal
}

// Origins lists the origin reference of each member intent.
func (b *Batch) Origins() []string {
	r := make([]string, 0, len(b.Intents))
	for _, i := range b.Intents {
		r = append(r, i.OriginReference)
	}
	return r
}

// Aggregate groups intents by sender, recipient and currency. Batches come back in the order
// their first intent was seen, and intents keep their order inside a batch.
func Aggregate(intents []TipIntent) []*Batch {
	var out []*Batch
	index := make(map[string]*Batch)
	for _, i := range intents {
		k := batchKey(i)
		b, ok := index[k]
		if !ok {
			b = &Batch{
				Sender:    i.Sender,
				Recipient: i.Recipient,
				Currency:  i.Currency,
				Total:     decimal.Zero,
			}
			index[k] = b
			out = append(out, b)
		}
		b.Intents = append(b.Intents, i)
		b.Total = b.Total.Add(i.Amount)
	}
	return out
}

func batchKey(i TipIntent) string {
	sender := strings.ToLower(i.Sender)
	if sender == "" {
		// unknown authors must never be merged with each other
		sender = "anon:" + i.OriginReference
	}
	return sender + "\x00" + strings.ToLower(i.Recipient) + "\x00" + strings.ToUpper(i.Currency)
}
