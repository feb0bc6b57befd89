package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/statecast"
)

const (
	// streamWriteTimeout is the maximum time allowed for a single SSE or
	// WebSocket write. Must be <= shutdown timeout to ensure clean shutdown.
	streamWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// maxBodyBytes caps JSON request bodies.
	maxBodyBytes = 1 << 16

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "statecast"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Option configures a [Server].
type Option func(*Server)

// WithAssets serves the dashboard from assets, which must contain
// assets/index.html.
func WithAssets(assets fs.FS) Option {
	return func(s *Server) {
		s.assets = assets
	}
}

// WithTitle sets the dashboard title. Defaults to "statecast".
func WithTitle(title string) Option {
	return func(s *Server) {
		s.title = title
	}
}

// WithGatherer exposes g at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// Server handles HTTP requests for one [statecast.Store].
//
// It only uses the store's public API: every request reads a snapshot or
// performs one operation, and every streaming connection is an ordinary
// subscriber.
type Server struct {
	store      *statecast.Store
	port       int
	httpServer *http.Server
	addr       string
	stopped    chan struct{}
	assets     fs.FS
	title      string
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// NewServer creates a new HTTP [Server] for st listening on port.
//
// Port 0 picks a free port; see [Server.Addr]. The server is not started
// until [Server.Start] is called.
func NewServer(st *statecast.Store, port int, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		store:   st,
		port:    port,
		logger:  logger,
		stopped: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	if s.assets != nil {
		r.Get("/", s.handleDashboard)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)

		r.Get("/users", s.handleListUsers)
		r.Post("/users", s.handleAddUser)
		r.Post("/users/reload", s.handleReloadUsers)
		r.Get("/users/active", s.handleActiveUsers)
		r.Get("/users/{id}", s.handleGetUser)
		r.Post("/users/{id}/toggle", s.handleToggleUser)

		r.Get("/messages", s.handleListMessages)
		r.Post("/messages", s.handleAppendMessage)
		r.Delete("/messages", s.handleClearMessages)

		r.Get("/stats", s.handleStats)
		r.Get("/busy", s.handleBusy)
		r.Post("/operation", s.handleOperation)

		r.Get("/sse", s.handleSSE)
		r.Get("/ws", s.handleWebSocket)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx, so streaming handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		defer close(s.stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", s.addr)
	return nil
}

// Stopped returns a channel that is closed once graceful shutdown has
// finished. It is never closed if Start was not called or failed.
func (s *Server) Stopped() <-chan struct{} {
	return s.stopped
}

// Addr returns the address the server is bound to, or "" before Start.
func (s *Server) Addr() string {
	return s.addr
}

// logRequests logs one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// escape the title since it comes from configuration
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// stateResponse is the body of GET /api/state.
type stateResponse struct {
	Users      []statecast.User     `json:"users"`
	Messages   []statecast.Message  `json:"messages"`
	Busy       bool                 `json:"busy"`
	Statistics statecast.Statistics `json:"statistics"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, stateResponse{
		Users:      s.store.Users(),
		Messages:   s.store.Messages(),
		Busy:       s.store.Busy(),
		Statistics: s.store.Statistics(),
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Users())
}

type addUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		s.writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	s.writeJSON(w, http.StatusCreated, s.store.AddUser(name, email))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userID(w, r)
	if !ok {
		return
	}

	u, err := s.store.User(id)
	if errors.Is(err, statecast.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userID(w, r)
	if !ok {
		return
	}

	u, found := s.store.ToggleUserActive(id)
	if !found {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("user %d not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

// taskResponse acknowledges a scheduled simulation.
type taskResponse struct {
	Task string `json:"task"`
}

func (s *Server) handleReloadUsers(w http.ResponseWriter, r *http.Request) {
	task := s.store.LoadUsers(nil)
	s.writeJSON(w, http.StatusAccepted, taskResponse{Task: task.Name()})
}

// handleActiveUsers waits for the active users query. If the client goes
// away first the task is cancelled.
func (s *Server) handleActiveUsers(w http.ResponseWriter, r *http.Request) {
	result := make(chan []statecast.User, 1)
	task := s.store.ActiveUsers(func(users []statecast.User) {
		result <- users
	})

	select {
	case users := <-result:
		s.writeJSON(w, http.StatusOK, users)
	case <-task.Done():
		// cancelled by store shutdown before it fired
		select {
		case users := <-result:
			s.writeJSON(w, http.StatusOK, users)
		default:
			s.writeError(w, http.StatusServiceUnavailable, "store is closed")
		}
	case <-r.Context().Done():
		task.Cancel()
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Messages())
}

type appendMessageRequest struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	kind, err := statecast.ParseMessageKind(req.Kind)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, s.store.AppendMessage(text, kind))
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	s.store.ClearMessages()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Statistics())
}

type busyResponse struct {
	Busy bool `json:"busy"`
}

func (s *Server) handleBusy(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, busyResponse{Busy: s.store.Busy()})
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	task := s.store.RunOperation(nil)
	s.writeJSON(w, http.StatusAccepted, taskResponse{Task: task.Name()})
}

// handleSSE streams slice publications via Server-Sent Events.
//
// Each publication is one event named after its slice. The handler uses
// write deadlines so a slow or disconnected client cannot block it past
// shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// not every ResponseWriter supports deadlines
	deadlinesSupported := true

	writeEvent := func(ev event) error {
		data, err := json.Marshal(ev.Value)
		if err != nil {
			s.logger.Error("failed to encode event", "slice", ev.Slice, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Slice, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	v, err := mountView(s.store, s.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer v.unmount()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	for {
		select {
		case ev := <-v.events:
			if err := writeEvent(ev); err != nil {
				return
			}
		case <-v.stalled:
			return
		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}

// handleWebSocket streams the same view as handleSSE over a WebSocket, one
// JSON frame per publication. Incoming frames are ignored.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	v, err := mountView(s.store, s.logger)
	if err != nil {
		s.logger.Error("failed to mount view", "error", err)
		return
	}
	defer v.unmount()

	// the read loop detects the client closing the connection
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case ev := <-v.events:
			if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-v.stalled:
			return
		case <-closed:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// userID parses the {id} URL parameter, writing a 400 response on failure.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user id %q", raw))
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into dst, writing a 400 response on
// failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
