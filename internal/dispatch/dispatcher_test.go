package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidmcn/container-futures-mvp/internal/depth"
	"github.com/aidmcn/container-futures-mvp/internal/feed"
	"github.com/aidmcn/container-futures-mvp/internal/ledger"
	"github.com/aidmcn/container-futures-mvp/internal/state"
	"github.com/aidmcn/container-futures-mvp/internal/timeline"
)

var testLogger = slog.New(slog.NewTextHandler(&strings.Builder{}, nil))

func newDispatcher(legIDs ...string) (*Dispatcher, *state.Global) {
	g := state.NewGlobal()
	return New(g, depth.DefaultLevels, legIDs, 5, testLogger), g
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestBookRoutedToOwningViewModel(t *testing.T) {
	d, _ := newDispatcher("L1_C1", "L2_C1")

	d.OnBook(feed.BookEvent{BookID: "L1_C1", Snapshot: depth.Snapshot{
		BookID: "L1_C1",
		Bids:   []depth.Order{{Price: dec(7800), ID: "o1", Qty: 1}},
	}})
	d.OnBook(feed.BookEvent{BookID: "L2_C1", Snapshot: depth.Snapshot{
		BookID: "L2_C1",
		Asks:   []depth.Order{{Price: dec(4000), ID: "o2", Qty: 1}},
	}})

	v1, ok := d.BookView("L1_C1")
	require.True(t, ok)
	require.Len(t, v1.Merged, 1)
	assert.NotNil(t, v1.Merged[0].BidDepth)

	v2, ok := d.BookView("L2_C1")
	require.True(t, ok)
	require.Len(t, v2.Merged, 1)
	assert.NotNil(t, v2.Merged[0].AskDepth)

	_, ok = d.BookView("L3_C1")
	assert.False(t, ok)
}

func TestTradesAndActivity(t *testing.T) {
	d, _ := newDispatcher("L1_C1")

	d.OnTrades(feed.TradeEvent{BookID: "L1_C1", Matches: []ledger.RawMatch{
		{MessageID: "m1", Fields: map[string]any{"price": 7800.0, "qty": 1.0, "bid_trader": "ShipperA", "ask_trader": "Maersk"}},
	}})

	trades, ok := d.LedgerView("L1_C1")
	require.True(t, ok)
	require.Len(t, trades, 1)
	assert.Equal(t, "m1", trades[0].MessageID)

	recent := d.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "match", recent[0].Kind)
	assert.Contains(t, recent[0].Detail, "ShipperA")
}

func TestActivityFeedBounded(t *testing.T) {
	d, _ := newDispatcher("L1_C1")
	for i := 0; i < 12; i++ {
		d.OnTrades(feed.TradeEvent{BookID: "L1_C1", Matches: []ledger.RawMatch{
			{MessageID: fmt.Sprintf("m%d", i), Fields: map[string]any{"price": 1.0, "qty": 1.0}},
		}})
	}
	recent := d.Recent()
	assert.Len(t, recent, 5) // capped
	assert.Contains(t, recent[0].Detail, "x1")
}

func TestProgressAndTimelineView(t *testing.T) {
	d, _ := newDispatcher("L1_C1", "L2_C1", "L3_C1")

	d.OnProgress(feed.ProgressEvent{Progress: map[string]timeline.Entry{
		"L1_C1": {Percentage: 100, Status: timeline.StatusDelivered},
	}})

	view := d.TimelineView()
	assert.Equal(t, timeline.StatusDelivered, view["L1_C1"].Status)
	assert.Equal(t, timeline.StatusPending, view["L2_C1"].Status)
	assert.Equal(t, timeline.StatusPending, view["L3_C1"].Status)

	recent := d.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "delivery", recent[0].Kind)
}

func TestStatusUpdatesGlobalState(t *testing.T) {
	d, g := newDispatcher("L1_C1")

	clock := 57.0
	running := true
	owner := "WealthyCorp"
	d.OnStatus(feed.StatusEvent{
		Clock:   &clock,
		Running: &running,
		Owner:   &owner,
		Balances: map[string]state.Balance{
			"ShipperA": {Balance: dec(282000), Locked: dec(18000)},
		},
	})

	assert.Equal(t, 57.0, g.Clock())
	assert.True(t, g.Running())
	assert.True(t, g.Connected())
	assert.Equal(t, "WealthyCorp", g.Owner())
	assert.True(t, g.Balances()["ShipperA"].Locked.Equal(dec(18000)))

	// a later frame with only a clock must not clobber the other fields
	clock2 := 58.0
	d.OnStatus(feed.StatusEvent{Clock: &clock2})
	assert.Equal(t, 58.0, g.Clock())
	assert.True(t, g.Running())
	assert.Equal(t, "WealthyCorp", g.Owner())
}

func TestChannelErrorFlipsConnectivity(t *testing.T) {
	d, g := newDispatcher("L1_C1")
	g.SetConnected(true)

	var topics []string
	d.SetOnChange(func(topic string, _ any) { topics = append(topics, topic) })

	d.OnChannelError("L1_C1", errors.New("ws read: connection reset"))

	assert.False(t, g.Connected())
	assert.Contains(t, topics, "error")
	assert.Contains(t, topics, "status")
	recent := d.Recent()
	require.NotEmpty(t, recent)
	assert.Equal(t, "disconnect", recent[0].Kind)
}
