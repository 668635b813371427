// Package api provides the local status API: controller status, the
// forwarding switch, Prometheus metrics and a WebSocket event feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"mousefwd/internal/forwarder"
	"mousefwd/internal/link"
	"mousefwd/internal/protocol"
)

// Controller is the part of the forwarding controller the API drives.
type Controller interface {
	Status() forwarder.Status
	SetForwarding(on bool) error
}

// Server provides the HTTP status API
type Server struct {
	ctrl     Controller
	gatherer prometheus.Gatherer
	token    string
	wsMgr    *WSManager

	hubOnce sync.Once
	mu      sync.Mutex
	srv     *http.Server
}

// NewServer creates a new API server. An empty token disables auth.
func NewServer(ctrl Controller, gatherer prometheus.Gatherer, token string) *Server {
	s := &Server{
		ctrl:     ctrl,
		gatherer: gatherer,
		token:    token,
	}
	s.wsMgr = newWSManager(s)
	return s
}

// Handler returns the API handler and starts the WebSocket hub.
func (s *Server) Handler() http.Handler {
	s.hubOnce.Do(func() { go s.wsMgr.start() })

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/forwarding", s.handleForwarding)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Start serves the API on addr. The address must be loopback. It blocks
// until the server stops.
func (s *Server) Start(addr string) error {
	if err := checkLoopback(addr); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("ERROR: API server failed to listen on %s: %v", addr, err)
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	log.Printf("Starting API server on %s", ln.Addr())

	// This is blocking
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("ERROR: API server stopped: %v", err)
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and the WebSocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	s.wsMgr.stop()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid API address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("API address %q is not loopback", addr)
	}
	return nil
}

// allowedOrigin accepts requests without an Origin header (non-browser
// clients) and those whose origin host is loopback.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC RECOV: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("API: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		// Skip auth for health check
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		// Browsers attach Origin to cross-site requests; only pages served
		// from this machine may drive the API.
		if !allowedOrigin(r) {
			log.Warnf("API: rejected %s %s from origin %q", r.Method, r.URL.Path, r.Header.Get("Origin"))
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if s.token != "" {
			if r.Header.Get("Authorization") != "Bearer "+s.token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleForwarding handles POST /api/forwarding?enabled=<bool>
func (s *Server) handleForwarding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		http.Error(w, "Missing or invalid enabled parameter", http.StatusBadRequest)
		return
	}

	log.Printf("API: Set forwarding=%v (request from %s)", enabled, r.RemoteAddr)
	if err := s.ctrl.SetForwarding(enabled); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// BroadcastStatus pushes a status snapshot to WebSocket clients.
func (s *Server) BroadcastStatus(st forwarder.Status) {
	s.wsMgr.publish(protocol.Message{Type: protocol.TypeStatus, Payload: st})
}

// BroadcastLink pushes a link event to WebSocket clients.
func (s *Server) BroadcastLink(ev link.Event) {
	payload := protocol.LinkPayload{
		Event:            string(ev.Type),
		Port:             ev.Port,
		Baud:             ev.Baud,
		PacketsPerSecond: ev.PacketsPerSecond,
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	s.wsMgr.publish(protocol.Message{Type: protocol.TypeLink, Payload: payload})
}
