package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aidmcn/container-futures-mvp/internal/command"
	"github.com/aidmcn/container-futures-mvp/internal/config"
	"github.com/aidmcn/container-futures-mvp/internal/dispatch"
	"github.com/aidmcn/container-futures-mvp/internal/feed"
	"github.com/aidmcn/container-futures-mvp/internal/metrics"
	"github.com/aidmcn/container-futures-mvp/internal/sound"
	"github.com/aidmcn/container-futures-mvp/internal/state"
)

// HTTPServer is the render-layer boundary: it fans derived views out to
// browsers over the ws hub and exposes the command/watch APIs.
type HTTPServer struct {
	cfg  config.Config
	st   *state.Global
	disp *dispatch.Dispatcher
	mgr  *feed.Manager
	cmd  *command.Client
	snd  *sound.Manager
	hub  *hub
	log  *slog.Logger
	mux  *http.ServeMux

	watchMu sync.Mutex
	watches map[string][]*feed.Handle
}

func NewHTTPServer(cfg config.Config, st *state.Global, disp *dispatch.Dispatcher, mgr *feed.Manager, cmd *command.Client, snd *sound.Manager, logger *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		cfg:     cfg,
		st:      st,
		disp:    disp,
		mgr:     mgr,
		cmd:     cmd,
		snd:     snd,
		hub:     newHub(logger),
		log:     logger,
		mux:     http.NewServeMux(),
		watches: map[string][]*feed.Handle{},
	}
	s.routes()
	go s.hub.run()
	return s
}

func (s *HTTPServer) Router() http.Handler { return s.mux }

// HandleChange is the dispatcher's change hook: every derived-view update is
// pushed to the browsers, and a fresh fill additionally triggers the chime.
func (s *HTTPServer) HandleChange(topic string, data any) {
	s.hub.broadcast <- marshalWS(topic, data)
	if topic == "ledger" && s.snd != nil && s.snd.Available() {
		s.hub.broadcast <- marshalWS("chime", map[string]string{"url": s.snd.URL()})
	}
}

func (s *HTTPServer) BroadcastError(msg string) {
	s.hub.broadcast <- marshalWS("error", map[string]string{"message": msg})
}

// --------- Routes ----------

func (s *HTTPServer) routes() {
	// SPA
	s.mux.HandleFunc("/", s.serveIndex)
	s.mux.HandleFunc("/index.html", s.serveIndex)
	s.mux.HandleFunc("/app.js", s.serveStatic("app.js", "text/javascript; charset=utf-8"))
	s.mux.HandleFunc("/styles.css", s.serveStatic("styles.css", "text/css; charset=utf-8"))

	// Sounds
	s.mux.HandleFunc("/sounds/", s.serveSound)

	// WS + metrics
	s.mux.HandleFunc("/ws", s.hub.serveWS)
	s.mux.Handle("/metrics", metrics.Handler())

	// API
	s.mux.HandleFunc("/api/health", s.apiHealth)
	s.mux.HandleFunc("/api/config", s.apiConfig)
	s.mux.HandleFunc("/api/book/", s.apiBook)
	s.mux.HandleFunc("/api/ledger/", s.apiLedger)
	s.mux.HandleFunc("/api/timeline", s.apiTimeline)
	s.mux.HandleFunc("/api/activity", s.apiActivity)
	s.mux.HandleFunc("/api/order", s.apiOrder)
	s.mux.HandleFunc("/api/sim/", s.apiSim)
	s.mux.HandleFunc("/api/watch", s.apiWatch)
	s.mux.HandleFunc("/api/unwatch", s.apiUnwatch)
}

func (s *HTTPServer) serveIndex(w http.ResponseWriter, r *http.Request) {
	b, err := os.ReadFile("./web/index.html")
	if err != nil {
		http.Error(w, "index missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *HTTPServer) serveStatic(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := os.ReadFile(filepath.Join("./web", name))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(b)
	}
}

func (s *HTTPServer) serveSound(w http.ResponseWriter, r *http.Request) {
	if s.snd == nil || !s.snd.Available() {
		http.NotFound(w, r)
		return
	}
	_, name := filepath.Split(s.snd.Path())
	if !strings.HasSuffix(r.URL.Path, name) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, s.snd.Path())
}

func (s *HTTPServer) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":        true,
		"connected": s.st.Connected(),
		"channels":  s.mgr.Channels(),
	})
}

func (s *HTTPServer) apiConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"books":          s.cfg.Books,
		"depthLevels":    s.cfg.DepthLevels,
		"activityLimit":  s.cfg.ActivityLimit,
		"soundAvailable": s.snd != nil && s.snd.Available(),
		"soundURL": func() string {
			if s.snd != nil {
				return s.snd.URL()
			}
			return ""
		}(),
	})
}

func (s *HTTPServer) apiBook(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/book/")
	if id == "" {
		http.Error(w, "book id required", http.StatusBadRequest)
		return
	}
	view, ok := s.disp.BookView(id)
	writeJSON(w, map[string]any{"book_id": id, "known": ok, "view": view})
}

func (s *HTTPServer) apiLedger(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/ledger/")
	if id == "" {
		http.Error(w, "book id required", http.StatusBadRequest)
		return
	}
	trades, ok := s.disp.LedgerView(id)
	writeJSON(w, map[string]any{"book_id": id, "known": ok, "trades": trades})
}

func (s *HTTPServer) apiTimeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.disp.TimelineView())
}

func (s *HTTPServer) apiActivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.disp.Recent())
}

func (s *HTTPServer) apiOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req command.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	// reject locally before any upstream call
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	match, err := s.cmd.SubmitOrder(r.Context(), req)
	if err != nil {
		s.BroadcastError(err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "match": match})
}

func (s *HTTPServer) apiSim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	verb := strings.TrimPrefix(r.URL.Path, "/api/sim/")
	var err error
	switch verb {
	case "play":
		err = s.cmd.Play(r.Context())
	case "pause":
		err = s.cmd.Pause(r.Context())
	case "resume":
		err = s.cmd.Resume(r.Context())
	case "reset":
		err = s.cmd.Reset(r.Context())
	default:
		http.Error(w, "unknown sim verb", http.StatusNotFound)
		return
	}
	if err != nil {
		s.BroadcastError(err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

// apiWatch opens (or shares) the upstream channel for a book. Each watch
// holds one handle; unwatch releases one. The manager dedupes connections.
func (s *HTTPServer) apiWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.decodeBookID(w, r)
	if !ok {
		return
	}
	h, err := s.mgr.Subscribe(context.WithoutCancel(r.Context()), id)
	if err != nil {
		s.BroadcastError(err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.watchMu.Lock()
	s.watches[id] = append(s.watches[id], h)
	n := len(s.watches[id])
	s.watchMu.Unlock()
	writeJSON(w, map[string]any{"ok": true, "book_id": id, "watchers": n})
}

func (s *HTTPServer) apiUnwatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.decodeBookID(w, r)
	if !ok {
		return
	}
	s.watchMu.Lock()
	hs := s.watches[id]
	var h *feed.Handle
	if len(hs) > 0 {
		h = hs[len(hs)-1]
		s.watches[id] = hs[:len(hs)-1]
	}
	n := len(s.watches[id])
	s.watchMu.Unlock()
	if h == nil {
		http.Error(w, "not watching "+id, http.StatusNotFound)
		return
	}
	h.Close()
	writeJSON(w, map[string]any{"ok": true, "book_id": id, "watchers": n})
}

// CloseWatches releases every handle the API opened; used on shutdown.
func (s *HTTPServer) CloseWatches() {
	s.watchMu.Lock()
	all := s.watches
	s.watches = map[string][]*feed.Handle{}
	s.watchMu.Unlock()
	for _, hs := range all {
		for _, h := range hs {
			h.Close()
		}
	}
}

func (s *HTTPServer) decodeBookID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return "", false
	}
	var req struct {
		BookID string `json:"book_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return "", false
	}
	id := strings.TrimSpace(req.BookID)
	if id == "" {
		http.Error(w, "book_id required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
