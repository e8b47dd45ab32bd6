package depth

import (
	"slices"

	"github.com/shopspring/decimal"
)

// View is the render-ready shape of one book: the outer join of both depth
// series sorted ascending by price, plus the price domain of the joined set.
// Empty is set when the book has no resting orders on either side so the
// render layer can show an explicit empty indicator instead of a bare chart.
type View struct {
	Merged []MergedPoint `json:"merged"`
	Domain PriceDomain   `json:"price_domain"`
	Empty  bool          `json:"empty"`
}

// Book holds the latest raw bid/ask snapshot for one book id and derives the
// merged view on demand. Derivation is deterministic given the held snapshot,
// so the result is memoized until the next Apply. A Book is exclusively owned
// by its dispatcher; callers serialize access.
type Book struct {
	bookID string
	levels int

	bids []Order
	asks []Order

	derived *View
}

func NewBook(bookID string, levels int) *Book {
	if levels <= 0 {
		levels = DefaultLevels
	}
	return &Book{bookID: bookID, levels: levels}
}

func (b *Book) BookID() string { return b.bookID }

// Apply replaces both sides wholesale and invalidates the memoized view.
func (b *Book) Apply(snap Snapshot) {
	b.bids = snap.Bids
	b.asks = snap.Asks
	b.derived = nil
}

// View derives (or returns the memoized) merged depth series and price
// domain for the held snapshot.
func (b *Book) View() View {
	if b.derived != nil {
		return *b.derived
	}

	bidSeries := Aggregate(b.bids, SideBid, b.levels)
	askSeries := Aggregate(b.asks, SideAsk, b.levels)

	byKey := map[string]*MergedPoint{}
	point := func(price decimal.Decimal) *MergedPoint {
		k := price.String()
		if p, ok := byKey[k]; ok {
			return p
		}
		p := &MergedPoint{Price: price}
		byKey[k] = p
		return p
	}
	for _, lvl := range bidSeries {
		p := point(lvl.Price)
		c, q := lvl.Cumulative, lvl.QtyAtPrice
		p.BidDepth, p.BidQty = &c, &q
	}
	for _, lvl := range askSeries {
		p := point(lvl.Price)
		c, q := lvl.Cumulative, lvl.QtyAtPrice
		p.AskDepth, p.AskQty = &c, &q
	}

	merged := make([]MergedPoint, 0, len(byKey))
	for _, p := range byKey {
		merged = append(merged, *p)
	}
	slices.SortFunc(merged, func(a, b MergedPoint) int {
		return a.Price.Cmp(b.Price)
	})

	v := View{Merged: merged, Domain: AutoDomain(), Empty: len(merged) == 0}
	if len(merged) > 0 {
		v.Domain = PriceDomain{
			Low:  merged[0].Price,
			High: merged[len(merged)-1].Price,
		}
	}
	b.derived = &v
	return v
}
