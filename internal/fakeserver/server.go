// Package fakeserver runs an in-process matchmaker and room server for
// tests. The matchmaker answers joinOrCreate requests with a fixed room
// descriptor; the room endpoint upgrades to a WebSocket and hands each
// connection to a script as a Peer.
package fakeserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// ErrTimeout is returned when an expected event does not happen in time.
var ErrTimeout = errors.New("fakeserver: timed out")

// Config scripts the server.
type Config struct {
	RoomID            string
	ProcessID         string
	SessionID         string
	ReconnectionToken string

	// SerializerID is sent in the join confirmation. Default: "schema".
	SerializerID string

	// Handshake is the schema handshake appended to the join confirmation.
	Handshake []byte

	// MatchmakeStatus overrides the matchmaker's status code when non-zero.
	MatchmakeStatus int

	// MatchmakeResponse replaces the matchmaker's JSON response when set.
	MatchmakeResponse map[string]any

	// OnConnect runs for every room connection on its own goroutine.
	// Default: send the join confirmation.
	OnConnect func(p *Peer)
}

// Request is a recorded matchmaking request.
type Request struct {
	RoomType string
	Options  map[string]any
	Origin   string
	Cookie   string
}

// Server is a running fake server.
type Server struct {
	config Config
	http   *httptest.Server

	upgrader websocket.Upgrader

	mu       sync.Mutex
	requests []Request
	peers    []*Peer
	dials    int

	connected chan *Peer
}

// New starts a server with cfg.
func New(cfg Config) *Server {
	if cfg.RoomID == "" {
		cfg.RoomID = "room1"
	}
	if cfg.ProcessID == "" {
		cfg.ProcessID = "proc1"
	}
	if cfg.SessionID == "" {
		cfg.SessionID = "sess1"
	}
	if cfg.SerializerID == "" {
		cfg.SerializerID = "schema"
	}
	if cfg.OnConnect == nil {
		cfg.OnConnect = func(p *Peer) { _ = p.Join() }
	}

	s := &Server{
		config: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		connected: make(chan *Peer, 16),
	}
	s.http = httptest.NewServer(s.Handler())
	return s
}

// Handler returns the server routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/matchmake/joinOrCreate/{roomType}", s.handleMatchmake)
	r.Get("/{processID}/{roomID}", s.handleRoom)
	return r
}

// URL returns the http base URL.
func (s *Server) URL() string {
	return s.http.URL
}

// WSURL returns the ws base URL.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http")
}

// Requests returns the matchmaking requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Dials returns the number of room connections attempted.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// NextPeer waits for the next room connection.
func (s *Server) NextPeer(timeout time.Duration) (*Peer, error) {
	select {
	case p := <-s.connected:
		return p, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// Close drops every connection and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	peers := append([]*Peer(nil), s.peers...)
	s.mu.Unlock()
	for _, p := range peers {
		p.Drop()
	}
	s.http.Close()
}

func (s *Server) handleMatchmake(w http.ResponseWriter, r *http.Request) {
	req := Request{
		RoomType: chi.URLParam(r, "roomType"),
		Origin:   r.Header.Get("Origin"),
		Cookie:   r.Header.Get("Cookie"),
	}
	if err := json.NewDecoder(r.Body).Decode(&req.Options); err != nil {
		http.Error(w, "invalid options", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.config.MatchmakeStatus != 0 && s.config.MatchmakeStatus != http.StatusOK {
		http.Error(w, "matchmaking unavailable", s.config.MatchmakeStatus)
		return
	}

	resp := s.config.MatchmakeResponse
	if resp == nil {
		resp = map[string]any{
			"sessionId":         s.config.SessionID,
			"reconnectionToken": s.config.ReconnectionToken,
			"room": map[string]any{
				"roomId":    s.config.RoomID,
				"processId": s.config.ProcessID,
				"name":      req.RoomType,
			},
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.dials++
	s.mu.Unlock()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := newPeer(s, ws, r)
	s.mu.Lock()
	s.peers = append(s.peers, p)
	s.mu.Unlock()

	go p.readLoop()
	select {
	case s.connected <- p:
	default:
	}
	go s.config.OnConnect(p)
}
