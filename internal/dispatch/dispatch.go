// Package dispatch consumes the shared event queue on behalf of one client
// connection, routing each event to the client, the reader or a local
// handler.
package dispatch

import (
	"context"
	"time"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/monitoring"
	"github.com/stocky-devel/stocky/internal/poller"
	"github.com/stocky-devel/stocky/internal/timeutil"
)

// DefaultDebounce is how long the reader must be quiet before the client is
// told activity has stopped.
const DefaultDebounce = 500 * time.Millisecond

// ClientSink delivers events to the remote client.
type ClientSink interface {
	Send(events.Event) error
}

// Device is the reader session as seen by the dispatcher.
type Device interface {
	HandleEvent(events.Event) error
	Reinitialise(region string, now time.Time) error
}

// Link is the device link as seen by the dispatcher.
type Link interface {
	Open(ctx context.Context) error
	Close() error
	IsAlive() bool
	IDString(ctx context.Context) string
}

// Stock is the local stock cache.
type Stock interface {
	UpdateFromRemote(ctx context.Context) (ok bool, message string)
	Items(ctx context.Context) (any, error)
	RecordLocationObservation(ctx context.Context, locationID string, items []events.LocationItem) error
	LocationChangeSummary(ctx context.Context, clientHash string) (hash string, data any, err error)
}

// Authenticator records who is logged in.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (ok bool, message string)
	Logout(ctx context.Context)
}

// Activatable is a poller that can be switched on and off, such as the
// radar tick.
type Activatable interface {
	SetActive(bool)
}

// Deps are the long-lived collaborators shared by every dispatcher.
type Deps struct {
	Device     Device
	Link       Link
	Stock      Stock
	Auth       Authenticator
	RadarTick  Activatable
	Region     string
	ConfigData map[string]any

	// LinkContext bounds a link opened when the reader appears. It must
	// outlive the connection; the dispatcher's own context is used if nil.
	LinkContext context.Context
}

// Options tune a dispatcher.
type Options struct {
	Routes   Routes
	Debounce time.Duration
	Clock    timeutil.Clock

	// Session names the client connection. An END_SESSION tagged with a
	// different session is left over from a replaced connection and is
	// ignored.
	Session string
}

// Dispatcher is the single consumer of the shared queue for the lifetime of
// one client connection.
type Dispatcher struct {
	queue   *poller.Queue
	client  ClientSink
	deps    Deps
	routes  Routes
	clock   timeutil.Clock
	session string

	debounce   *poller.DelayedOneShot
	activityOn bool
}

// New returns a dispatcher delivering client-bound events to client.
func New(q *poller.Queue, client ClientSink, deps Deps, opts Options) *Dispatcher {
	if opts.Routes.Client == nil && opts.Routes.Device == nil && opts.Routes.Local == nil {
		opts.Routes = DefaultRoutes()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Dispatcher{
		queue:    q,
		client:   client,
		deps:     deps,
		routes:   opts.Routes,
		clock:    opts.Clock,
		session:  opts.Session,
		debounce: poller.NewDelayedOneShot("activity-off", opts.Debounce, events.Must(events.KindActivity, false), opts.Clock),
	}
}

// Run dequeues and dispatches events until an END_SESSION has been handled
// or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go poller.Run(ctx, d.debounce, d.queue)

	// a reader opened for an earlier connection produces no new presence
	// event, so tell this client about it now
	if d.deps.Link != nil && d.deps.Link.IsAlive() {
		d.reply(events.KindReaderState, events.ReaderState{Present: true, ID: d.deps.Link.IDString(ctx)})
	}

	for {
		ev, err := d.queue.Get(ctx)
		if err != nil {
			return err
		}
		if d.Dispatch(ctx, ev) {
			monitoring.Infof("client session ended")
			return nil
		}
	}
}

// Dispatch handles one event and reports whether it ended the session.
func (d *Dispatcher) Dispatch(ctx context.Context, ev events.Event) (ended bool) {
	if ev.Kind == events.KindEndSession {
		if d.stale(ev) {
			monitoring.Debugf("ignoring end of session %v", ev.Data)
			return false
		}
		ended = true
		d.client = nil
	}
	if ev.Origin() == events.OriginReader {
		if !d.activityOn {
			d.activityOn = true
			d.toClient(events.Must(events.KindActivity, true))
		}
		d.debounce.Trigger()
	}

	matched := false
	if d.routes.Local[ev.Kind] {
		matched = true
		d.handleLocal(ctx, ev)
	}
	if d.routes.Device[ev.Kind] {
		matched = true
		if err := d.deps.Device.HandleEvent(ev); err != nil {
			monitoring.Warnf("reader could not apply %s: %v", ev.Kind, err)
		}
	}
	if d.routes.Client[ev.Kind] {
		matched = true
		d.toClient(ev)
	}
	if !matched {
		monitoring.Errorf("dispatcher has no route for event %s", ev.Kind)
	}
	return ended
}

func (d *Dispatcher) stale(ev events.Event) bool {
	if d.session == "" || ev.Data == nil {
		return false
	}
	tag, err := events.As[string](ev)
	return err == nil && tag != d.session
}

func (d *Dispatcher) toClient(ev events.Event) {
	if d.client == nil {
		return
	}
	if err := d.client.Send(ev); err != nil {
		monitoring.Warnf("send %s to client: %v", ev.Kind, err)
	}
}

// handleActivityOff forwards the debounced "activity off". An off that was
// queued behind reader events which re-armed the debounce is stale and
// dropped; the re-armed one-shot delivers the real one.
func (d *Dispatcher) handleActivityOff(ev events.Event) {
	if on, _ := events.As[bool](ev); on {
		return
	}
	if !d.activityOn || d.debounce.Armed() {
		monitoring.Debugf("dropping stale activity off")
		return
	}
	d.activityOn = false
	d.toClient(ev)
}

func (d *Dispatcher) reply(kind events.Kind, data any) {
	d.toClient(events.Must(kind, data))
}

func (d *Dispatcher) handleLocal(ctx context.Context, ev events.Event) {
	switch ev.Kind {
	case events.KindEndSession:
	case events.KindActivity:
		d.handleActivityOff(ev)
	case events.KindRadarMode:
		req, err := events.As[events.RadarModeRequest](ev)
		if err != nil {
			monitoring.Warnf("bad radar mode request: %v", err)
			return
		}
		d.setRadarTick(req.On)
	case events.KindStockMode:
		d.setRadarTick(false)
	case events.KindDevicePresence:
		d.handlePresence(ctx, ev)
	case events.KindLoginTry:
		d.handleLogin(ctx, ev)
	case events.KindLogoutTry:
		if d.deps.Auth != nil {
			d.deps.Auth.Logout(ctx)
		}
		d.reply(events.KindLogoutResult, true)
	case events.KindStockInfoReq:
		d.handleStockInfo(ctx, ev)
	case events.KindSetLocation:
		d.handleSetLocation(ctx, ev)
	case events.KindLocMutRequest:
		d.handleLocMut(ctx, ev)
	case events.KindConfigRequest:
		d.reply(events.KindConfigData, d.deps.ConfigData)
	default:
		monitoring.Errorf("no local handler for %s", ev.Kind)
	}
}

func (d *Dispatcher) setRadarTick(on bool) {
	if d.deps.RadarTick != nil {
		d.deps.RadarTick.SetActive(on)
	}
}
