package depth

import (
	"testing"

	"github.com/shopspring/decimal"
)

func bid(price float64, id string, qty int) Order {
	return Order{Price: decimal.NewFromFloat(price), ID: id, Qty: qty}
}

func TestAggregateCollapsesEqualPrices(t *testing.T) {
	orders := []Order{
		bid(100, "o1", 5),
		bid(100, "o2", 3),
		bid(95, "o3", 2),
	}
	series := Aggregate(orders, SideBid, DefaultLevels)
	if len(series) != 2 {
		t.Fatalf("levels got %d want 2", len(series))
	}
	if !series[0].Price.Equal(decimal.NewFromInt(100)) || series[0].QtyAtPrice != 8 || series[0].Cumulative != 8 {
		t.Fatalf("best bid level got %+v", series[0])
	}
	if !series[1].Price.Equal(decimal.NewFromInt(95)) || series[1].QtyAtPrice != 2 || series[1].Cumulative != 10 {
		t.Fatalf("second bid level got %+v", series[1])
	}
}

func TestAggregateEqualPricesWithDifferentExponents(t *testing.T) {
	// "100" and "100.00" are numerically equal but carry different exponents;
	// they must land on the same level.
	a, _ := decimal.NewFromString("100")
	b, _ := decimal.NewFromString("100.00")
	series := Aggregate([]Order{
		{Price: a, ID: "o1", Qty: 4},
		{Price: b, ID: "o2", Qty: 6},
	}, SideBid, DefaultLevels)
	if len(series) != 1 {
		t.Fatalf("levels got %d want 1", len(series))
	}
	if series[0].QtyAtPrice != 10 {
		t.Fatalf("qty got %d want 10", series[0].QtyAtPrice)
	}
}

func TestAggregateAskReversal(t *testing.T) {
	orders := []Order{
		bid(110, "o4", 4),
		bid(105, "o5", 2),
	}
	series := Aggregate(orders, SideAsk, DefaultLevels)
	if len(series) != 2 {
		t.Fatalf("levels got %d want 2", len(series))
	}
	// Pre-reversal walk is ascending: [{105,2},{110,6}]. Emitted order is the
	// reverse so the best ask sits adjacent to the best bid after merge.
	if !series[0].Price.Equal(decimal.NewFromInt(110)) || series[0].Cumulative != 6 {
		t.Fatalf("first emitted ask got %+v", series[0])
	}
	if !series[1].Price.Equal(decimal.NewFromInt(105)) || series[1].Cumulative != 2 {
		t.Fatalf("second emitted ask got %+v", series[1])
	}
}

func TestAggregateCumulativeMonotonic(t *testing.T) {
	orders := []Order{
		bid(100, "a", 5), bid(99.5, "b", 1), bid(101, "c", 7),
		bid(98, "d", 3), bid(100, "e", 2), bid(97.25, "f", 9),
	}
	for _, side := range []Side{SideBid, SideAsk} {
		series := Aggregate(orders, side, DefaultLevels)
		walk := series
		if side == SideAsk {
			// emitted asks are reversed; walk order is best-first
			walk = make([]Level, len(series))
			for i := range series {
				walk[i] = series[len(series)-1-i]
			}
		}
		for i := 1; i < len(walk); i++ {
			if walk[i].Cumulative < walk[i-1].Cumulative {
				t.Fatalf("side %s: cumulative decreased at %d: %+v", side, i, walk)
			}
		}
	}
}

func TestAggregateTruncation(t *testing.T) {
	orders := make([]Order, 0, 30)
	for i := 0; i < 30; i++ {
		orders = append(orders, bid(100+float64(i), "o", 1))
	}
	for _, n := range []int{0, 1, 5, 20, 100} {
		series := Aggregate(orders, SideBid, n)
		if len(series) > n {
			t.Fatalf("levels=%d emitted %d", n, len(series))
		}
	}
	if got := Aggregate(orders, SideBid, 0); got != nil {
		t.Fatalf("levels=0 should yield empty series, got %v", got)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	if got := Aggregate(nil, SideBid, DefaultLevels); got != nil {
		t.Fatalf("nil input should yield empty series, got %v", got)
	}
}

func TestParseOrdersDropsUnparsable(t *testing.T) {
	raw := [][]any{
		{100.0, "o1", 5.0},
		{"not-a-price", "o2", 3.0},
		{100.0, "o3", "not-a-qty"},
		{"95.5", "o4", "2"}, // string numerics are fine
		{100.0, "short"},
	}
	orders, dropped := ParseOrders(raw)
	if dropped != 3 {
		t.Fatalf("dropped got %d want 3", dropped)
	}
	if len(orders) != 2 {
		t.Fatalf("orders got %d want 2", len(orders))
	}
	if orders[1].ID != "o4" || orders[1].Qty != 2 {
		t.Fatalf("coerced order got %+v", orders[1])
	}
}
