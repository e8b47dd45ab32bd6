package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aidmcn/container-futures-mvp/internal/metrics"
)

// Manager shares sessions between views by reference counting per channel
// id: however many widgets observe a book, exactly one underlying
// connection exists for it. Views subscribe and release handles instead of
// dialing themselves.
type Manager struct {
	baseURL string
	sink    Sink
	log     *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	channelID string
	session   *Session
	refs      int
}

// Handle is one view's claim on a shared channel. Closing it is idempotent;
// the underlying session closes only when the last handle is released.
type Handle struct {
	m    *Manager
	e    *entry
	once sync.Once
}

func NewManager(baseURL string, sink Sink, logger *slog.Logger) *Manager {
	return &Manager{
		baseURL: baseURL,
		sink:    sink,
		log:     logger,
		entries: map[string]*entry{},
	}
}

// Subscribe returns a handle on the shared session for channelID, dialing
// only when no live session exists for it.
func (m *Manager) Subscribe(ctx context.Context, channelID string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[channelID]
	if !ok {
		session, err := OpenSession(ctx, m.baseURL, channelID, m.interceptor(), m.log)
		if err != nil {
			return nil, err
		}
		e = &entry{channelID: channelID, session: session}
		m.entries[channelID] = e
		metrics.OpenChannels.Set(float64(len(m.entries)))
	}
	e.refs++
	return &Handle{m: m, e: e}, nil
}

// Open reports whether a live session exists for channelID.
func (m *Manager) Open(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[channelID]
	return ok && e.session.State() == StateOpen
}

func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for id := range m.entries {
		out = append(out, id)
	}
	return out
}

// CloseAll tears down every session regardless of outstanding handles; used
// on shutdown. Later Handle.Close calls remain harmless no-ops.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
		e.refs = 0
	}
	m.entries = map[string]*entry{}
	metrics.OpenChannels.Set(0)
	m.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
	}
}

func (h *Handle) ChannelID() string { return h.e.channelID }

func (h *Handle) Close() {
	h.once.Do(func() {
		h.m.release(h.e)
	})
}

func (m *Manager) release(e *entry) {
	m.mu.Lock()
	if e.refs > 0 {
		e.refs--
	}
	last := e.refs == 0
	if last && m.entries[e.channelID] == e {
		delete(m.entries, e.channelID)
		metrics.OpenChannels.Set(float64(len(m.entries)))
	}
	m.mu.Unlock()

	// Release must happen on every exit path; close outside the lock since
	// Close waits for the read loop to drain.
	if last {
		e.session.Close()
	}
}

// interceptor forwards events to the real sink but drops dead sessions from
// the table so a later Subscribe re-dials instead of sharing a closed
// connection.
func (m *Manager) interceptor() Sink {
	return &managedSink{m: m}
}

type managedSink struct {
	m *Manager
}

func (s *managedSink) OnBook(ev BookEvent)         { s.m.sink.OnBook(ev) }
func (s *managedSink) OnTrades(ev TradeEvent)      { s.m.sink.OnTrades(ev) }
func (s *managedSink) OnProgress(ev ProgressEvent) { s.m.sink.OnProgress(ev) }
func (s *managedSink) OnStatus(ev StatusEvent)     { s.m.sink.OnStatus(ev) }

func (s *managedSink) OnChannelError(channelID string, err error) {
	s.m.mu.Lock()
	if e, ok := s.m.entries[channelID]; ok && e.session.State() == StateClosed {
		delete(s.m.entries, channelID)
		metrics.OpenChannels.Set(float64(len(s.m.entries)))
	}
	s.m.mu.Unlock()
	s.m.sink.OnChannelError(channelID, err)
}
