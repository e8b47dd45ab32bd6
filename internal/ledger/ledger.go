package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aidmcn/container-futures-mvp/internal/depth"
)

// MatchType tags what was exchanged: freight capacity on a transport leg or
// ownership of the container contract itself.
type MatchType string

const (
	MatchLegFreight        MatchType = "LEG_FREIGHT"
	MatchContractOwnership MatchType = "CONTRACT_OWNERSHIP"
)

// Trade is one completed exchange between a bid and an ask.
type Trade struct {
	MessageID string          `json:"message_id"`
	LegID     string          `json:"leg_id"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
	TS        string          `json:"ts"`
	BidTrader string          `json:"bid_trader"`
	AskTrader string          `json:"ask_trader"`
	Type      MatchType       `json:"match_type"`
}

// RawMatch is one wire entry: a [message_id, fields] pair before coercion.
type RawMatch struct {
	MessageID string
	Fields    map[string]any
}

// Ledger holds the latest trade batch for one book id and derives a
// display-ordered list. Owned by the dispatcher; callers serialize access.
type Ledger struct {
	bookID string
	trades []Trade
}

func New(bookID string) *Ledger {
	return &Ledger{bookID: bookID}
}

func (l *Ledger) BookID() string { return l.bookID }

// Apply replaces the held ledger with the parsed batch, reversed so the most
// recently appended upstream entry renders first. Entries with unparsable
// price or qty are excluded rather than aborting the batch.
func (l *Ledger) Apply(raw []RawMatch) (dropped int) {
	trades := make([]Trade, 0, len(raw))
	for _, rm := range raw {
		t, ok := parseTrade(rm)
		if !ok {
			dropped++
			continue
		}
		trades = append(trades, t)
	}
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	l.trades = trades
	return dropped
}

// View returns the held ledger, most recent first.
func (l *Ledger) View() []Trade { return l.trades }

func parseTrade(rm RawMatch) (Trade, bool) {
	price, ok := depth.ToDecimal(rm.Fields["price"])
	if !ok {
		return Trade{}, false
	}
	qty, ok := depth.ToInt(rm.Fields["qty"])
	if !ok {
		return Trade{}, false
	}
	t := Trade{
		MessageID: rm.MessageID,
		LegID:     asString(rm.Fields["leg_id"]),
		Price:     price,
		Qty:       qty,
		TS:        asString(rm.Fields["ts"]),
		BidTrader: asString(rm.Fields["bid_trader"]),
		AskTrader: asString(rm.Fields["ask_trader"]),
		Type:      MatchLegFreight,
	}
	if mt := asString(rm.Fields["match_type"]); mt != "" {
		t.Type = MatchType(mt)
	}
	return t, true
}

// asString passes string fields through verbatim; ts in particular may
// arrive as an ISO string or an epoch number.
func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}
