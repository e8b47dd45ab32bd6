package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aidmcn/container-futures-mvp/internal/metrics"
)

// ConnState is the session lifecycle: CONNECTING → OPEN → CLOSED. An error
// may be signaled before CLOSED but never replaces it.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Sink receives the typed events a session decodes, plus the channel-error
// signal. View-model mutation happens behind the sink; sessions never touch
// view state directly.
type Sink interface {
	OnBook(ev BookEvent)
	OnTrades(ev TradeEvent)
	OnProgress(ev ProgressEvent)
	OnStatus(ev StatusEvent)
	OnChannelError(channelID string, err error)
}

// Session owns one push-channel subscription for a single book/leg id.
// Frames are read and applied strictly in arrival order by one read loop;
// there is no automatic reconnect — a transport failure surfaces through the
// sink and the session ends in CLOSED.
type Session struct {
	channelID string
	sink      Sink
	log       *slog.Logger

	conn  *websocket.Conn
	state atomic.Int32

	closeOnce sync.Once
	done      chan struct{}
}

// OpenSession dials {base}/ws/{channelID} and starts the read loop. The
// session is CONNECTING for the duration of the dial; a dial failure leaves
// it CLOSED after signaling the error.
func OpenSession(ctx context.Context, baseURL, channelID string, sink Sink, logger *slog.Logger) (*Session, error) {
	s := &Session{
		channelID: channelID,
		sink:      sink,
		log:       logger.With(slog.String("channel", channelID)),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	target, err := channelURL(baseURL, channelID)
	if err != nil {
		s.state.Store(int32(StateClosed))
		close(s.done)
		return nil, err
	}

	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.DialContext(ctx, target, nil)
	if err != nil {
		// Dial failures go back to the caller directly; OnChannelError is
		// reserved for failures on an established channel.
		s.state.Store(int32(StateClosed))
		close(s.done)
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	s.conn = conn
	s.state.Store(int32(StateOpen))
	s.log.Info("channel open", slog.String("url", target))

	go s.readLoop()
	return s, nil
}

func (s *Session) ChannelID() string { return s.channelID }

func (s *Session) State() ConnState {
	return ConnState(s.state.Load())
}

// Close is idempotent: it sends an actual close request only while the
// connection is CONNECTING or OPEN; closing an already-CLOSED session is a
// no-op, not an error.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if st := s.State(); st == StateConnecting || st == StateOpen {
			s.state.Store(int32(StateClosed))
			if s.conn != nil {
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe"),
					time.Now().Add(2*time.Second))
				_ = s.conn.Close()
			}
			s.log.Info("channel closed")
		}
	})
	if s.conn != nil {
		<-s.done
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer func() { _ = s.conn.Close() }()

	s.conn.SetReadLimit(1 << 20)
	_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// Teardown via Close is a normal exit, not a channel error.
			if s.State() != StateClosed {
				s.state.Store(int32(StateClosed))
				s.log.Error("channel read", slog.String("err", err.Error()))
				s.sink.OnChannelError(s.channelID, fmt.Errorf("ws read: %w", err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		metrics.FramesReceived.WithLabelValues(s.channelID).Inc()
		events, err := DecodeFrame(s.channelID, data)
		if err != nil {
			// Malformed frame: log and keep reading, never terminate.
			metrics.FrameParseFailures.WithLabelValues(s.channelID).Inc()
			s.log.Warn("malformed frame skipped", slog.String("err", err.Error()))
		} else {
			for _, ev := range events {
				s.route(ev)
			}
		}

		// Upstream sends the next batch only after hearing from the client.
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte("ack"))
	}
}

func (s *Session) route(ev Event) {
	switch e := ev.(type) {
	case BookEvent:
		s.sink.OnBook(e)
	case TradeEvent:
		s.sink.OnTrades(e)
	case ProgressEvent:
		s.sink.OnProgress(e)
	case StatusEvent:
		s.sink.OnStatus(e)
	}
}

// channelURL maps the configured exchange base URL onto the per-channel ws
// endpoint, flipping http(s) to ws(s).
func channelURL(baseURL, channelID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("exchange url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("exchange url: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws/" + channelID
	return u.String(), nil
}
