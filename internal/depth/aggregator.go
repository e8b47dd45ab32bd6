package depth

import (
	"slices"

	"github.com/shopspring/decimal"
)

// DefaultLevels is how many price levels a series keeps when the caller has
// no configured preference.
const DefaultLevels = 20

// Aggregate turns resting orders for one side into a sorted cumulative depth
// series:
//
//  1. quantities are summed per price (multiple orders at the same price
//     collapse into one level),
//  2. distinct prices are sorted best-first (descending for bids, ascending
//     for asks),
//  3. a running total is accumulated along the walk,
//  4. the series is truncated to the first levels entries,
//  5. the ask series is reversed so both sides read low→high price when
//     merged onto a shared axis.
//
// Empty input or levels <= 0 yields an empty series, never an error.
func Aggregate(orders []Order, side Side, levels int) []Level {
	if levels <= 0 || len(orders) == 0 {
		return nil
	}

	// IMPORTANT: decimal values that are numerically equal can carry
	// different exponents (e.g. "100" vs "100.00") and would be distinct map
	// keys. Canonicalize the price into its normalized string form.
	sumByKey := map[string]int{}
	priceByKey := map[string]decimal.Decimal{}
	for _, o := range orders {
		k := o.Price.String()
		sumByKey[k] += o.Qty
		if _, ok := priceByKey[k]; !ok {
			priceByKey[k] = o.Price
		}
	}

	keys := make([]string, 0, len(sumByKey))
	for k := range sumByKey {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(ka, kb string) int {
		pa := priceByKey[ka]
		pb := priceByKey[kb]
		if side == SideBid {
			// best bid is the highest price (descending)
			return pb.Cmp(pa)
		}
		// best ask is the lowest price (ascending)
		return pa.Cmp(pb)
	})
	if len(keys) > levels {
		keys = keys[:levels]
	}

	series := make([]Level, 0, len(keys))
	running := 0
	for _, k := range keys {
		running += sumByKey[k]
		series = append(series, Level{
			Price:      priceByKey[k],
			Cumulative: running,
			QtyAtPrice: sumByKey[k],
		})
	}

	if side == SideAsk {
		slices.Reverse(series)
	}
	return series
}
