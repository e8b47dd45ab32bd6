package feed

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidmcn/container-futures-mvp/internal/timeline"
)

func TestDecodeFrameBookFragment(t *testing.T) {
	data := []byte(`{
		"book_id": "L1_C1",
		"orderbook": {
			"bids": [[7800, "o1", 1], ["bogus", "o2", 1]],
			"asks": [[8000, "o3", 2]]
		}
	}`)

	events, err := DecodeFrame("L1_C1", data)
	require.NoError(t, err)
	require.Len(t, events, 1)

	book, ok := events[0].(BookEvent)
	require.True(t, ok)
	assert.Equal(t, "L1_C1", book.BookID)
	require.Len(t, book.Snapshot.Bids, 1)
	require.Len(t, book.Snapshot.Asks, 1)
	assert.True(t, book.Snapshot.Bids[0].Price.Equal(decimal.NewFromInt(7800)))
	assert.Equal(t, 2, book.Snapshot.Asks[0].Qty)
}

func TestDecodeFrameFiltersForeignBookID(t *testing.T) {
	data := []byte(`{
		"book_id": "L2_C1",
		"orderbook": {"bids": [[7800, "o1", 1]], "asks": []},
		"matches": [["m1", {"leg_id": "L2_C1", "price": 7800, "qty": 1}]],
		"simulation_clock": 55
	}`)

	events, err := DecodeFrame("L1_C1", data)
	require.NoError(t, err)
	// orderbook and matches are dropped; the global fragment still applies
	require.Len(t, events, 1)
	st, ok := events[0].(StatusEvent)
	require.True(t, ok)
	require.NotNil(t, st.Clock)
	assert.Equal(t, 55.0, *st.Clock)
}

func TestDecodeFrameWithoutBookIDBelongsToOwnChannel(t *testing.T) {
	data := []byte(`{"orderbook": {"bids": [[95, "o1", 2]], "asks": []}}`)

	events, err := DecodeFrame("L1_C1", data)
	require.NoError(t, err)
	require.Len(t, events, 1)
	book := events[0].(BookEvent)
	assert.Equal(t, "L1_C1", book.Snapshot.BookID)
}

func TestDecodeFrameMatchesAndProgress(t *testing.T) {
	data := []byte(`{
		"book_id": "L1_C1",
		"matches": [
			["m1", {"leg_id": "L1_C1", "price": "7800", "qty": "1", "bid_trader": "ShipperA", "ask_trader": "Maersk"}],
			["m2", {"leg_id": "L1_C1", "price": 7900, "qty": 1, "match_type": "CONTRACT_OWNERSHIP"}]
		],
		"iot_progress": {
			"L1_C1": {"percentage": 100, "status": "Delivered"},
			"L2_C1": {"percentage": 40.5, "status": "InTransit"}
		}
	}`)

	events, err := DecodeFrame("L1_C1", data)
	require.NoError(t, err)
	require.Len(t, events, 2)

	trades := events[0].(TradeEvent)
	require.Len(t, trades.Matches, 2)
	assert.Equal(t, "m1", trades.Matches[0].MessageID)
	assert.Equal(t, "ShipperA", trades.Matches[0].Fields["bid_trader"])

	progress := events[1].(ProgressEvent)
	assert.Equal(t, timeline.StatusDelivered, progress.Progress["L1_C1"].Status)
	assert.Equal(t, 40.5, progress.Progress["L2_C1"].Percentage)
}

func TestDecodeFrameGlobalFields(t *testing.T) {
	data := []byte(`{
		"simulation_clock": 57,
		"balances": {"ShipperA": {"balance": 282000, "locked": "18000"}},
		"is_running": true,
		"is_paused": false,
		"current_owner": "ShipperA",
		"current_container_owner": "WealthyCorp",
		"container_status": "IN_TRANSIT_L2"
	}`)

	events, err := DecodeFrame("L1_C1", data)
	require.NoError(t, err)
	require.Len(t, events, 1)

	st := events[0].(StatusEvent)
	assert.Equal(t, 57.0, *st.Clock)
	assert.True(t, *st.Running)
	assert.False(t, *st.Paused)
	// the newer field wins when both owner spellings are present
	assert.Equal(t, "WealthyCorp", *st.Owner)
	assert.Equal(t, "IN_TRANSIT_L2", *st.ContainerStatus)
	require.Contains(t, st.Balances, "ShipperA")
	assert.True(t, st.Balances["ShipperA"].Balance.Equal(decimal.NewFromInt(282000)))
	assert.True(t, st.Balances["ShipperA"].Locked.Equal(decimal.NewFromInt(18000)))
}

func TestDecodeFrameMalformed(t *testing.T) {
	_, err := DecodeFrame("L1_C1", []byte(`{"orderbook": `))
	require.Error(t, err)

	_, err = DecodeFrame("L1_C1", []byte(`not json at all`))
	require.Error(t, err)
}

func TestDecodeFrameEmptyObject(t *testing.T) {
	events, err := DecodeFrame("L1_C1", []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, events)
}
