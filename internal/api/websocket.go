package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stocky-devel/stocky/internal/dispatch"
	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/httputil"
	"github.com/stocky-devel/stocky/internal/monitoring"
	"github.com/stocky-devel/stocky/internal/poller"
)

const (
	writeWait   = 5 * time.Second
	replaceWait = 5 * time.Second
)

// clientSession is one websocket connection and the dispatcher serving it.
type clientSession struct {
	id     uuid.UUID
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex
}

func newClientSession(parent context.Context, conn *websocket.Conn) *clientSession {
	ctx, cancel := context.WithCancel(parent)
	return &clientSession{
		id:     uuid.New(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Send writes ev to the client as a JSON text message.
func (c *clientSession) Send(ev events.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

func (c *clientSession) close() {
	c.cancel()
	c.conn.Close()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "server not started")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		monitoring.Warnf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	cs := newClientSession(ctx, conn)
	s.activate(cs)
	monitoring.Infof("client %s connected from %s", cs.id, r.RemoteAddr)

	s.sched.Add(poller.NewRemoteReader(cs.id.String(), conn))
	go s.serve(cs)
}

// activate makes cs the served connection, dropping any previous one.
func (s *Server) activate(cs *clientSession) {
	s.mu.Lock()
	old := s.active
	s.active = cs
	s.mu.Unlock()
	if old == nil {
		return
	}

	monitoring.Infof("client %s replaced by %s", old.id, cs.id)
	old.close()
	select {
	case <-old.done:
	case <-time.After(replaceWait):
		monitoring.Warnf("client %s did not shut down in %s", old.id, replaceWait)
	}
}

func (s *Server) serve(cs *clientSession) {
	defer close(cs.done)
	defer cs.conn.Close()

	d := dispatch.New(s.queue, cs, s.deps(), dispatch.Options{
		Debounce: s.cfg.GetDebounce(),
		Clock:    s.clock,
		Session:  cs.id.String(),
	})
	if err := d.Run(cs.ctx); err != nil && cs.ctx.Err() == nil {
		monitoring.Errorf("client %s: %v", cs.id, err)
	}

	s.mu.Lock()
	if s.active == cs {
		s.active = nil
	}
	s.mu.Unlock()
	monitoring.Infof("client %s disconnected", cs.id)
}
