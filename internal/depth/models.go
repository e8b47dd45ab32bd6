package depth

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Order is one resting order as carried on the wire: a positional
// [price, id, qty] tuple.
type Order struct {
	Price decimal.Decimal `json:"price"`
	ID    string          `json:"id"`
	Qty   int             `json:"qty"`
}

// Snapshot is a full replacement of both sides of one book. The upstream
// contract is snapshot, not delta: each frame carries the complete resting
// set for its book id.
type Snapshot struct {
	BookID string  `json:"book_id"`
	Bids   []Order `json:"bids"`
	Asks   []Order `json:"asks"`
}

// Level is one emitted depth point. Cumulative is the running total walking
// away from the best price and is non-decreasing in emission order (asks are
// reversed after the walk, so their emitted Cumulative descends).
type Level struct {
	Price      decimal.Decimal `json:"price"`
	Cumulative int             `json:"cumulative_qty"`
	QtyAtPrice int             `json:"qty_at_price"`
}

// MergedPoint is the outer join of the two sides on price. A price present on
// only one side leaves the other side's fields nil.
type MergedPoint struct {
	Price      decimal.Decimal `json:"price"`
	BidDepth   *int            `json:"bid_depth,omitempty"`
	BidQty     *int            `json:"bid_qty_at_price,omitempty"`
	AskDepth   *int            `json:"ask_depth,omitempty"`
	AskQty     *int            `json:"ask_qty_at_price,omitempty"`
}

// PriceDomain is the [low, high] price range of a merged series. When the
// series is empty it marshals as ["auto","auto"], which consumers must treat
// as auto-scale rather than a numeric range.
type PriceDomain struct {
	Low  decimal.Decimal
	High decimal.Decimal
	Auto bool
}

func AutoDomain() PriceDomain { return PriceDomain{Auto: true} }

func (d PriceDomain) MarshalJSON() ([]byte, error) {
	if d.Auto {
		return []byte(`["auto","auto"]`), nil
	}
	return json.Marshal([2]decimal.Decimal{d.Low, d.High})
}

// ToDecimal coerces a loosely typed JSON value into a decimal. Upstream
// tuples mix json numbers, floats and strings depending on the producer.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

// ToInt coerces a loosely typed JSON value into an integer quantity.
func ToInt(v any) (int, bool) {
	d, ok := ToDecimal(v)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}

// ParseOrder coerces one positional [price, id, qty] tuple. Entries whose
// price or qty fail numeric parsing are discarded, not fatal.
func ParseOrder(fields []any) (Order, bool) {
	if len(fields) < 3 {
		return Order{}, false
	}
	price, ok := ToDecimal(fields[0])
	if !ok {
		return Order{}, false
	}
	qty, ok := ToInt(fields[2])
	if !ok {
		return Order{}, false
	}
	id, _ := fields[1].(string)
	return Order{Price: price, ID: id, Qty: qty}, true
}

// ParseOrders coerces a raw tuple list, reporting how many entries were
// dropped for failing coercion.
func ParseOrders(raw [][]any) (orders []Order, dropped int) {
	orders = make([]Order, 0, len(raw))
	for _, fields := range raw {
		o, ok := ParseOrder(fields)
		if !ok {
			dropped++
			continue
		}
		orders = append(orders, o)
	}
	return orders, dropped
}
