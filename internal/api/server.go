package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stocky-devel/stocky/internal/commlink"
	"github.com/stocky-devel/stocky/internal/config"
	"github.com/stocky-devel/stocky/internal/db"
	"github.com/stocky-devel/stocky/internal/dispatch"
	"github.com/stocky-devel/stocky/internal/fsutil"
	"github.com/stocky-devel/stocky/internal/httputil"
	"github.com/stocky-devel/stocky/internal/monitoring"
	"github.com/stocky-devel/stocky/internal/poller"
	"github.com/stocky-devel/stocky/internal/reader"
	"github.com/stocky-devel/stocky/internal/timeutil"
	"github.com/stocky-devel/stocky/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Options wires a Server to its collaborators.
type Options struct {
	Config  *config.Config
	Link    *commlink.Link
	Session *reader.Session
	Stock   dispatch.Stock
	Auth    dispatch.Authenticator

	// DB, when set, adds the SQL debug pages.
	DB *db.DB

	FS    fsutil.FileSystem
	Clock timeutil.Clock
}

// Server owns the reader link, the reader session and the pollers feeding
// the shared event queue. Each websocket connection gets its own
// dispatcher; only one connection is served at a time.
type Server struct {
	cfg     *config.Config
	link    *commlink.Link
	session *reader.Session
	stock   dispatch.Stock
	auth    dispatch.Authenticator
	db      *db.DB
	clock   timeutil.Clock

	queue      *poller.Queue
	sched      *poller.Scheduler
	tick       *poller.PeriodicTick
	supervisor *poller.ProcessSupervisor
	upgrader   websocket.Upgrader

	mu     sync.Mutex
	ctx    context.Context
	active *clientSession
}

func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	q := poller.NewQueue()
	s := &Server{
		cfg:     cfg,
		link:    opts.Link,
		session: opts.Session,
		stock:   opts.Stock,
		auth:    opts.Auth,
		db:      opts.DB,
		clock:   opts.Clock,
		queue:   q,
		sched:   poller.NewScheduler(q),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.tick = poller.NewPeriodicTick("radar", cfg.GetRadarTick())
	s.sched.Add(s.tick)
	s.sched.Add(poller.NewFileWatch(cfg.PresenceWatchPath, cfg.GetFileWatch(), opts.FS))
	s.sched.Add(poller.NewReaderPoller(opts.Link, opts.Session, cfg.GetReaderTimeout()))
	if len(cfg.BindCommand) > 0 {
		s.supervisor = poller.NewProcessSupervisor("bind", cfg.BindCommand, cfg.GetProcessPoll())
		s.sched.Add(s.supervisor)
	}
	return s
}

// Start launches the pollers. They run until ctx ends.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.sched.Start(ctx)
}

// Close drops the connected client, stops the supervised process and closes
// the reader link. Cancel the Start context first; Close then waits for the
// pollers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	cs := s.active
	s.active = nil
	s.mu.Unlock()
	if cs != nil {
		cs.close()
		<-cs.done
	}
	if s.supervisor != nil {
		s.supervisor.Stop()
	}
	s.sched.Wait()
	return s.link.Close()
}

func (s *Server) deps() dispatch.Deps {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	return dispatch.Deps{
		Device:     s.session,
		Link:       s.link,
		Stock:      s.stock,
		Auth:       s.auth,
		RadarTick:  s.tick,
		Region:     s.cfg.RegionCode,
		ConfigData: s.cfg.Public(),

		LinkContext: ctx,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack hands the connection over for the websocket upgrade.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)

	s.link.AttachAdminRoutes(mux)
	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Errorf("database admin routes: %v", err)
		}
	}
	return mux
}

// Status is the /api/status document.
type Status struct {
	Version    string `json:"version"`
	Device     string `json:"device"`
	Link       string `json:"link"`
	Mode       string `json:"mode"`
	Client     string `json:"client,omitempty"`
	Queued     int    `json:"queued"`
	Supervisor string `json:"supervisor,omitempty"`
}

// Status reports the server's current state.
func (s *Server) Status() Status {
	st := Status{
		Version: version.String(),
		Device:  s.link.Path(),
		Link:    s.link.State().String(),
		Mode:    s.session.Mode().String(),
		Queued:  s.queue.Len(),
	}
	s.mu.Lock()
	if s.active != nil {
		st.Client = s.active.id.String()
	}
	s.mu.Unlock()
	if s.supervisor != nil {
		st.Supervisor = s.supervisor.Status().String()
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.cfg.Public())
}
