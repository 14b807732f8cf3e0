// Package server exposes the backend over HTTP: rpc calls, a WebSocket
// endpoint, a server-sent event stream and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/internal/backend/store"
	"github.com/grovetools/envmirror/pkg/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server serves one handler on any number of listeners.
type Server struct {
	logger    *logrus.Entry
	handler   rpc.Handler
	store     *store.Store
	startedAt time.Time
	upgrader  websocket.Upgrader

	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec

	mu        sync.Mutex
	servers   []*http.Server
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a Server. st may be nil, in which case /events and /api/state
// answer 503.
func New(handler rpc.Handler, st *store.Store, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		logger:    logger,
		handler:   handler,
		store:     st,
		startedAt: time.Now(),
		registry:  prometheus.NewRegistry(),
		closing:   make(chan struct{}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envmirror",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "RPC requests served, by method, transport and result.",
		}, []string{"method", "transport", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "envmirror",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Time spent serving RPC requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	s.registry.MustRegister(s.calls, s.duration)
	return s
}

// Registry exposes the metrics registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the HTTP handler with every route mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/rpc/", s.handleRPC)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/api/state", s.handleGetState)
	mux.HandleFunc("/api/info", s.handleGetInfo)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe serves on a unix socket. It blocks until the server stops.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.WithField("socket", socketPath).Info("Backend listening")
	return s.Serve(listener)
}

// ListenAndServeTCP serves on a TCP address such as 127.0.0.1:7450.
func (s *Server) ListenAndServeTCP(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.logger.WithField("addr", listener.Addr().String()).Info("Backend listening")
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}
	s.mu.Lock()
	select {
	case <-s.closing:
		s.mu.Unlock()
		listener.Close()
		return nil
	default:
	}
	s.servers = append(s.servers, srv)
	s.mu.Unlock()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops every listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	// Event streams never go idle on their own
	s.closeOnce.Do(func() { close(s.closing) })
	s.mu.Lock()
	servers := s.servers
	s.servers = nil
	s.mu.Unlock()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dispatch serves one request and records it. It is shared by every transport.
func (s *Server) Dispatch(ctx context.Context, transport string, req rpc.Request) rpc.Response {
	start := time.Now()
	resp := rpc.Dispatch(ctx, s.handler, req)
	s.duration.WithLabelValues(string(req.Method)).Observe(time.Since(start).Seconds())

	result := "ok"
	if resp.Error != nil {
		result = "error"
		s.logger.WithFields(logrus.Fields{
			"method": req.Method,
			"code":   resp.Error.Code,
		}).Debug("Call rejected")
	}
	s.calls.WithLabelValues(string(req.Method), transport, result).Inc()
	return resp
}

// handleRPC serves POST /rpc/<method>.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	method := rpc.Method(strings.TrimPrefix(r.URL.Path, "/rpc/"))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &rpc.RemoteError{Code: string(errors.ErrCodeInvalidInput), Message: "failed to read body"})
		return
	}

	resp := s.Dispatch(r.Context(), "http", rpc.Request{Method: method, Payload: body})
	if resp.Error != nil {
		writeJSON(w, statusFor(resp.Error.Code), resp.Error)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp.Result)
}

// handleWebSocket serves request envelopes over one WebSocket connection.
// Requests are served concurrently; replies carry the request id.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Debug("WebSocket client connected")

	var writeMu sync.Mutex
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var req rpc.Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithError(err).Debug("WebSocket read ended")
			}
			return
		}

		wg.Add(1)
		go func(req rpc.Request) {
			defer wg.Done()
			resp := s.Dispatch(r.Context(), "websocket", req)
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(resp); err != nil {
				s.logger.WithError(err).Debug("WebSocket write failed")
			}
		}(req)
	}
}

// handleEvents provides Server-Sent Events for store changes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "store not available", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// Initial comment confirms the subscription is live
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("Event client connected")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("Event client disconnected")
			return
		case <-s.closing:
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal update")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleGetState returns the complete backend state as JSON.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "store not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Get())
}

// handleGetInfo reports process details for `backend status`.
func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"pid":        os.Getpid(),
		"started_at": s.startedAt,
	}
	if s.store != nil {
		info["state_file"] = s.store.Path()
		info["environments"] = len(s.store.EnvSummaries())
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(code string) int {
	switch errors.ErrorCode(code) {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnknownEnv, errors.ErrCodeEnvNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
