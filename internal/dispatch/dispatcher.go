// Package dispatch owns the per-book view models and routes validated feed
// events to them. It is the single mutation path for view state: sessions
// decode, the dispatcher applies, the render layer reads.
package dispatch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/aidmcn/container-futures-mvp/internal/depth"
	"github.com/aidmcn/container-futures-mvp/internal/feed"
	"github.com/aidmcn/container-futures-mvp/internal/ledger"
	"github.com/aidmcn/container-futures-mvp/internal/metrics"
	"github.com/aidmcn/container-futures-mvp/internal/state"
	"github.com/aidmcn/container-futures-mvp/internal/timeline"
)

// Activity is one line in the rolling dashboard event feed.
type Activity struct {
	Kind   string    `json:"kind"` // "match", "delivery", "disconnect"
	BookID string    `json:"book_id,omitempty"`
	Detail string    `json:"detail"`
	TS     time.Time `json:"ts"`
}

// LedgerUpdate and BookUpdate are the payloads handed to the change hook.
type BookUpdate struct {
	BookID string     `json:"book_id"`
	View   depth.View `json:"view"`
}

type LedgerUpdate struct {
	BookID string         `json:"book_id"`
	Trades []ledger.Trade `json:"trades"`
}

// Dispatcher implements feed.Sink. One instance owns all view models; the
// feed layer serializes per-channel delivery and the dispatcher's lock
// serializes across channels, so view-model mutation is never concurrent.
type Dispatcher struct {
	mu       sync.Mutex
	levels   int
	legIDs   []string
	books    map[string]*depth.Book
	ledgers  map[string]*ledger.Ledger
	timeline *timeline.View
	global   *state.Global

	activity    deque.Deque[Activity]
	activityCap int

	onChange func(topic string, data any)
	log      *slog.Logger
}

func New(global *state.Global, levels int, legIDs []string, activityCap int, logger *slog.Logger) *Dispatcher {
	if activityCap <= 0 {
		activityCap = 50
	}
	return &Dispatcher{
		levels:      levels,
		legIDs:      legIDs,
		books:       map[string]*depth.Book{},
		ledgers:     map[string]*ledger.Ledger{},
		timeline:    timeline.New(),
		global:      global,
		activityCap: activityCap,
		log:         logger,
	}
}

// SetOnChange registers the render-layer hook. Topics: book, ledger,
// timeline, status, activity, error.
func (d *Dispatcher) SetOnChange(fn func(topic string, data any)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

func (d *Dispatcher) notify(topic string, data any) {
	d.mu.Lock()
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn(topic, data)
	}
}

// --------- feed.Sink ----------

func (d *Dispatcher) OnBook(ev feed.BookEvent) {
	d.mu.Lock()
	b, ok := d.books[ev.BookID]
	if !ok {
		b = depth.NewBook(ev.BookID, d.levels)
		d.books[ev.BookID] = b
	}
	b.Apply(ev.Snapshot)
	view := b.View()
	d.mu.Unlock()

	d.notify("book", BookUpdate{BookID: ev.BookID, View: view})
}

func (d *Dispatcher) OnTrades(ev feed.TradeEvent) {
	d.mu.Lock()
	l, ok := d.ledgers[ev.BookID]
	if !ok {
		l = ledger.New(ev.BookID)
		d.ledgers[ev.BookID] = l
	}
	dropped := l.Apply(ev.Matches)
	trades := l.View()
	if len(trades) > 0 {
		// trades render most-recent first; record the newest one
		t := trades[0]
		d.pushActivity(Activity{
			Kind:   "match",
			BookID: ev.BookID,
			Detail: fmt.Sprintf("%s ↔ %s @ %s x%d", t.BidTrader, t.AskTrader, t.Price, t.Qty),
			TS:     time.Now(),
		})
	}
	recent := d.recentLocked()
	d.mu.Unlock()

	if dropped > 0 {
		metrics.DroppedEntries.WithLabelValues("trade").Add(float64(dropped))
	}
	d.notify("ledger", LedgerUpdate{BookID: ev.BookID, Trades: trades})
	d.notify("activity", recent)
}

func (d *Dispatcher) OnProgress(ev feed.ProgressEvent) {
	d.mu.Lock()
	d.timeline.Apply(ev.Progress)
	for legID, e := range ev.Progress {
		if e.Label() == string(timeline.StatusDelivered) {
			d.pushActivity(Activity{
				Kind:   "delivery",
				BookID: legID,
				Detail: fmt.Sprintf("leg %s delivered", legID),
				TS:     time.Now(),
			})
		}
	}
	view := d.timeline.View(d.legIDs)
	recent := d.recentLocked()
	d.mu.Unlock()

	d.notify("timeline", view)
	d.notify("activity", recent)
}

func (d *Dispatcher) OnStatus(ev feed.StatusEvent) {
	if ev.Clock != nil {
		d.global.SetClock(*ev.Clock)
	}
	if ev.Balances != nil {
		d.global.SetBalances(ev.Balances)
	}
	if ev.Running != nil {
		d.global.SetRunning(*ev.Running)
	}
	if ev.Paused != nil {
		d.global.SetPaused(*ev.Paused)
	}
	if ev.Owner != nil {
		d.global.SetOwner(*ev.Owner)
	}
	if ev.ContainerStatus != nil {
		d.global.SetContainerStatus(*ev.ContainerStatus)
	}
	d.global.SetConnected(true)

	d.notify("status", d.global.Snapshot())
}

func (d *Dispatcher) OnChannelError(channelID string, err error) {
	d.global.SetConnected(false)
	d.log.Error("channel error", slog.String("channel", channelID), slog.String("err", err.Error()))

	d.mu.Lock()
	d.pushActivity(Activity{
		Kind:   "disconnect",
		BookID: channelID,
		Detail: err.Error(),
		TS:     time.Now(),
	})
	recent := d.recentLocked()
	d.mu.Unlock()

	d.notify("status", d.global.Snapshot())
	d.notify("error", map[string]string{"channel": channelID, "message": err.Error()})
	d.notify("activity", recent)
}

// --------- read side ----------

func (d *Dispatcher) BookView(bookID string) (depth.View, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.books[bookID]
	if !ok {
		return depth.View{Domain: depth.AutoDomain(), Empty: true}, false
	}
	return b.View(), true
}

func (d *Dispatcher) LedgerView(bookID string) ([]ledger.Trade, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.ledgers[bookID]
	if !ok {
		return nil, false
	}
	return l.View(), true
}

func (d *Dispatcher) TimelineView() map[string]timeline.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeline.View(d.legIDs)
}

// Recent returns the activity feed, newest first.
func (d *Dispatcher) Recent() []Activity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recentLocked()
}

func (d *Dispatcher) pushActivity(a Activity) {
	for d.activity.Len() >= d.activityCap {
		d.activity.PopFront()
	}
	d.activity.PushBack(a)
}

func (d *Dispatcher) recentLocked() []Activity {
	out := make([]Activity, 0, d.activity.Len())
	for i := d.activity.Len() - 1; i >= 0; i-- {
		out = append(out, d.activity.At(i))
	}
	return out
}
