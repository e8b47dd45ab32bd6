package feed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aidmcn/container-futures-mvp/internal/depth"
	"github.com/aidmcn/container-futures-mvp/internal/ledger"
	"github.com/aidmcn/container-futures-mvp/internal/metrics"
	"github.com/aidmcn/container-futures-mvp/internal/state"
	"github.com/aidmcn/container-futures-mvp/internal/timeline"
)

// Inbound frames are loosely shaped: every field is optional and dispatch is
// presence-driven. DecodeFrame validates at the boundary and emits a closed
// set of typed events so downstream routing is exhaustive instead of a pile
// of optional-field checks.

// Event is one validated fragment of an inbound frame.
type Event interface{ isEvent() }

// BookEvent is a full bid/ask replacement for one book id.
type BookEvent struct {
	BookID   string
	Snapshot depth.Snapshot
}

// TradeEvent is the latest match batch for one book id.
type TradeEvent struct {
	BookID  string
	Matches []ledger.RawMatch
}

// ProgressEvent is the latest shipment-leg progress map.
type ProgressEvent struct {
	Progress map[string]timeline.Entry
}

// StatusEvent carries whichever global scalars the frame happened to
// include; nil pointers mean the frame said nothing about that field.
type StatusEvent struct {
	Clock           *float64
	Balances        map[string]state.Balance
	Running         *bool
	Paused          *bool
	Owner           *string
	ContainerStatus *string
}

func (BookEvent) isEvent()     {}
func (TradeEvent) isEvent()    {}
func (ProgressEvent) isEvent() {}
func (StatusEvent) isEvent()   {}

type wireBook struct {
	Bids [][]any `json:"bids"`
	Asks [][]any `json:"asks"`
}

// wirePair is one [message_id, fields] tuple from the matches array.
type wirePair struct {
	MessageID string
	Fields    map[string]any
}

func (p *wirePair) UnmarshalJSON(data []byte) error {
	var parts [2]json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if err := json.Unmarshal(parts[0], &p.MessageID); err != nil {
		return fmt.Errorf("match message id: %w", err)
	}
	if len(parts[1]) == 0 {
		return fmt.Errorf("match %s: missing fields", p.MessageID)
	}
	dec := json.NewDecoder(bytes.NewReader(parts[1]))
	dec.UseNumber()
	if err := dec.Decode(&p.Fields); err != nil {
		return fmt.Errorf("match %s fields: %w", p.MessageID, err)
	}
	return nil
}

type wireProgress struct {
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"`
}

type wireBalance struct {
	Balance any `json:"balance"`
	Locked  any `json:"locked"`
}

type wireFrame struct {
	BookID                *string                 `json:"book_id"`
	Orderbook             *wireBook               `json:"orderbook"`
	Matches               []wirePair              `json:"matches"`
	IoTProgress           map[string]wireProgress `json:"iot_progress"`
	SimulationClock       *float64                `json:"simulation_clock"`
	Balances              map[string]wireBalance  `json:"balances"`
	IsRunning             *bool                   `json:"is_running"`
	IsPaused              *bool                   `json:"is_paused"`
	CurrentOwner          *string                 `json:"current_owner"`
	CurrentContainerOwner *string                 `json:"current_container_owner"`
	ContainerStatus       *string                 `json:"container_status"`
}

// DecodeFrame parses one inbound frame for the given channel and returns its
// typed events. Orderbook and match fragments tagged with a different
// book_id are dropped so a session never applies another channel's data; a
// frame without a book_id belongs to its own channel. A non-nil error means
// the whole frame was malformed and must be skipped, never fatal.
func DecodeFrame(channelID string, data []byte) ([]Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f wireFrame
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	frameBook := channelID
	if f.BookID != nil && *f.BookID != "" {
		frameBook = *f.BookID
	}

	var events []Event

	if f.Orderbook != nil && frameBook == channelID {
		bids, droppedBids := depth.ParseOrders(f.Orderbook.Bids)
		asks, droppedAsks := depth.ParseOrders(f.Orderbook.Asks)
		if n := droppedBids + droppedAsks; n > 0 {
			metrics.DroppedEntries.WithLabelValues("order").Add(float64(n))
		}
		events = append(events, BookEvent{
			BookID:   channelID,
			Snapshot: depth.Snapshot{BookID: channelID, Bids: bids, Asks: asks},
		})
	}

	if len(f.Matches) > 0 && frameBook == channelID {
		raw := make([]ledger.RawMatch, 0, len(f.Matches))
		for _, p := range f.Matches {
			raw = append(raw, ledger.RawMatch{MessageID: p.MessageID, Fields: p.Fields})
		}
		events = append(events, TradeEvent{BookID: channelID, Matches: raw})
	}

	if f.IoTProgress != nil {
		progress := make(map[string]timeline.Entry, len(f.IoTProgress))
		for legID, p := range f.IoTProgress {
			progress[legID] = timeline.Entry{
				Percentage: p.Percentage,
				Status:     timeline.Status(p.Status),
			}
		}
		events = append(events, ProgressEvent{Progress: progress})
	}

	if st, ok := statusEvent(f); ok {
		events = append(events, st)
	}

	return events, nil
}

func statusEvent(f wireFrame) (StatusEvent, bool) {
	st := StatusEvent{
		Clock:           f.SimulationClock,
		Running:         f.IsRunning,
		Paused:          f.IsPaused,
		ContainerStatus: f.ContainerStatus,
	}
	// current_container_owner is the newer upstream field; it wins when both
	// appear in one frame.
	if f.CurrentOwner != nil {
		st.Owner = f.CurrentOwner
	}
	if f.CurrentContainerOwner != nil {
		st.Owner = f.CurrentContainerOwner
	}
	if f.Balances != nil {
		st.Balances = make(map[string]state.Balance, len(f.Balances))
		for trader, wb := range f.Balances {
			b := state.Balance{}
			if d, ok := depth.ToDecimal(wb.Balance); ok {
				b.Balance = d
			}
			if d, ok := depth.ToDecimal(wb.Locked); ok {
				b.Locked = d
			}
			st.Balances[trader] = b
		}
	}
	present := st.Clock != nil || st.Running != nil || st.Paused != nil ||
		st.Owner != nil || st.ContainerStatus != nil || st.Balances != nil
	return st, present
}
