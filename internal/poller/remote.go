package poller

import (
	"context"
	"encoding/json"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/monitoring"
)

// MessageReader is the receive half of the remote client channel.
// *websocket.Conn implements it.
type MessageReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// RemoteReader turns client messages into events. Payloads that are valid
// JSON but not a well-formed client event are logged and dropped. A read
// error, a closed channel or undecodable bytes end the session: one
// END_SESSION event is emitted and the poller stops.
//
// NextEvent blocks in ReadMessage; closing the connection is what unblocks
// it on shutdown.
//
// The END_SESSION payload is the session name, so a dispatcher serving a
// newer connection can tell it apart from its own.
type RemoteReader struct {
	*Base
	session string
	conn    MessageReader
}

// NewRemoteReader returns an active reader on conn for the named session.
func NewRemoteReader(session string, conn MessageReader) *RemoteReader {
	return &RemoteReader{Base: NewBase("remote:"+session, MinInterval, true), session: session, conn: conn}
}

func (r *RemoteReader) NextEvent(context.Context) (*events.Event, error) {
	_, payload, err := r.conn.ReadMessage()
	if err != nil {
		monitoring.Infof("%s: channel closed: %v", r.Name(), err)
		return r.endSession()
	}
	if !json.Valid(payload) {
		monitoring.Warnf("%s: undecodable payload, ending session", r.Name())
		return r.endSession()
	}
	ev, err := events.Decode(payload)
	if err != nil {
		monitoring.Warnf("%s: dropping message: %v", r.Name(), err)
		return nil, nil
	}
	if ev.Origin() != events.OriginClient {
		monitoring.Warnf("%s: dropping %s, not a client event", r.Name(), ev.Kind)
		return nil, nil
	}
	return &ev, nil
}

func (r *RemoteReader) endSession() (*events.Event, error) {
	r.SetActive(false)
	ev := events.Must(events.KindEndSession, r.session)
	return &ev, ErrStopped
}
