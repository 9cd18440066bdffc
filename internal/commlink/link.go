// Package commlink owns the physical channel to the reader. It writes
// commands tagged with a correlation suffix and assembles the lines coming
// back into frames. Transport failures never escape as errors from Receive;
// they show up as empty frames whose return code is a timeout.
package commlink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stocky-devel/stocky/internal/monitoring"
	"github.com/stocky-devel/stocky/internal/serialmux"
	"github.com/stocky-devel/stocky/internal/timeutil"
	"github.com/stocky-devel/stocky/internal/tlsascii"
)

// Liveness is the link's view of the channel.
type Liveness int

const (
	Unknown Liveness = iota
	Alive
	Dead
)

func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case Dead:
		return "dead"
	}
	return "unknown"
}

// ErrNotAlive is returned by Send when the channel is not open.
var ErrNotAlive = errors.New("reader link is not alive")

// CommentIdentify tags the version query issued by IDString.
const CommentIdentify = "identify"

// Options configures a Link.
type Options struct {
	Path    string
	Serial  serialmux.PortOptions
	Factory serialmux.PortFactory
	Clock   timeutil.Clock
}

// Link is a half-duplex connection to one reader.
type Link struct {
	path    string
	serial  serialmux.PortOptions
	factory serialmux.PortFactory
	clock   timeutil.Clock

	mu     sync.Mutex
	mux    *serialmux.SerialMux[serialmux.SerialPorter]
	lines  chan string
	stop   context.CancelFunc
	state  Liveness
	seq    uint64
	id     string
	closed chan struct{}

	// awaiting is set by Send and cleared by the next frame received.
	awaiting bool
	sentAt   time.Time

	// io serialises frame reads; pending holds frames read by IDString
	// that belong to someone else.
	io      chan struct{}
	builder tlsascii.FrameBuilder
	pending []tlsascii.Frame
}

// New creates a Link. The port is not opened until Open is called.
func New(opts Options) *Link {
	if opts.Factory == nil {
		opts.Factory = serialmux.RealPortFactory{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Link{
		path:    opts.Path,
		serial:  opts.Serial,
		factory: opts.Factory,
		clock:   opts.Clock,
		io:      make(chan struct{}, 1),
	}
}

// Open (re)opens the serial port and starts reading from it. ctx bounds the
// lifetime of the reader goroutine, not just the open call.
func (l *Link) Open(ctx context.Context) error {
	l.Close()

	port, err := l.factory.Open(l.path, l.serial)
	if err != nil {
		l.setState(Dead)
		return fmt.Errorf("open reader %s: %w", l.path, err)
	}
	mux := serialmux.NewSerialMux(port)
	_, lines := mux.Subscribe()
	mctx, cancel := context.WithCancel(ctx)
	closed := make(chan struct{})

	l.mu.Lock()
	l.mux = mux
	l.lines = lines
	l.stop = cancel
	l.state = Alive
	l.closed = closed
	l.mu.Unlock()

	go func() {
		defer close(closed)
		err := mux.Monitor(mctx)
		if mctx.Err() == nil {
			monitoring.Warnf("reader %s: channel failed: %v", l.path, err)
		}
		l.fail(mux)
	}()
	monitoring.Infof("reader %s: link open", l.path)
	return nil
}

// Close closes the channel and marks the link dead.
func (l *Link) Close() error {
	l.mu.Lock()
	mux, stop, closed := l.mux, l.stop, l.closed
	wasOpen := mux != nil
	l.mux, l.stop = nil, nil
	if wasOpen {
		l.state = Dead
	}
	l.mu.Unlock()

	if !wasOpen {
		return nil
	}
	stop()
	err := mux.Close()
	<-closed
	return err
}

// fail tears down mux after an I/O error unless the link has already moved
// on to another port.
func (l *Link) fail(mux *serialmux.SerialMux[serialmux.SerialPorter]) {
	l.mu.Lock()
	current := l.mux == mux
	if current {
		l.mux, l.stop = nil, nil
		l.state = Dead
	}
	l.mu.Unlock()
	mux.Close()
}

func (l *Link) setState(s Liveness) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// State returns the current liveness.
func (l *Link) State() Liveness {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsAlive reports whether the channel is open.
func (l *Link) IsAlive() bool {
	return l.State() == Alive
}

// Path returns the device path the link opens.
func (l *Link) Path() string {
	return l.path
}

// Send writes cmd with a correlation suffix carrying the next sequence number
// and cmd.Comment. It does not wait for the reply. A write failure marks the
// link dead.
func (l *Link) Send(cmd tlsascii.Command) (uint64, error) {
	if err := cmd.Validate(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	mux := l.mux
	if mux == nil {
		l.mu.Unlock()
		return 0, ErrNotAlive
	}
	l.seq++
	seq := l.seq
	l.awaiting = true
	l.sentAt = l.clock.Now()
	l.mu.Unlock()

	suffix, err := tlsascii.FrameCorrelation(tlsascii.NewCorrelation(seq, cmd.Comment))
	if err != nil {
		return 0, fmt.Errorf("encode correlation: %w", err)
	}
	line := tlsascii.Encode(cmd, suffix)
	monitoring.Debugf("reader %s: > %s", l.path, strings.TrimRight(line, "\r\n"))
	if err := mux.SendCommand(line); err != nil {
		monitoring.Warnf("reader %s: write failed: %v", l.path, err)
		l.fail(mux)
		return 0, fmt.Errorf("write %s: %w", cmd.Opcode, err)
	}
	return seq, nil
}

func (l *Link) answered() {
	l.mu.Lock()
	l.awaiting = false
	l.mu.Unlock()
}

// TakeOverdue reports whether a command sent at least after ago is still
// unanswered. A true result is reported once per unanswered send.
func (l *Link) TakeOverdue(after time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.awaiting || l.clock.Now().Sub(l.sentAt) < after {
		return false
	}
	l.awaiting = false
	return true
}

func (l *Link) acquire(ctx context.Context) bool {
	select {
	case l.io <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Link) release() {
	<-l.io
}

// Receive returns the next frame from the reader, waiting at most timeout.
// A timeout with a partial frame returns the partial frame. A closed or
// failed channel yields an empty frame once the timeout has elapsed, so a
// caller polling a dead link is still paced by its timeout.
func (l *Link) Receive(ctx context.Context, timeout time.Duration) tlsascii.Frame {
	if !l.acquire(ctx) {
		return nil
	}
	defer l.release()
	return l.receiveLocked(ctx, timeout)
}

func (l *Link) receiveLocked(ctx context.Context, timeout time.Duration) tlsascii.Frame {
	if len(l.pending) > 0 {
		f := l.pending[0]
		l.pending = l.pending[1:]
		return f
	}

	l.mu.Lock()
	lines := l.lines
	if l.mux == nil {
		lines = nil
	}
	l.mu.Unlock()

	timer := l.clock.NewTimer(timeout)
	defer timer.Stop()

	if lines == nil {
		select {
		case <-timer.C():
		case <-ctx.Done():
		}
		return nil
	}

	for {
		select {
		case raw, ok := <-lines:
			if !ok {
				l.builder.Reset()
				select {
				case <-timer.C():
				case <-ctx.Done():
				}
				return nil
			}
			monitoring.Debugf("reader %s: < %s", l.path, raw)
			if l.builder.Add(raw) {
				f := l.builder.Frame()
				l.builder.Reset()
				l.answered()
				return f
			}
		case <-timer.C():
			f := l.builder.Frame()
			l.builder.Reset()
			if !f.Empty() {
				l.answered()
			}
			return f
		case <-ctx.Done():
			return nil
		}
	}
}

// IDString identifies the reader by its manufacturer, serial number and
// protocol version. The first successful answer is memoized. Failure is not an
// error: a descriptive string is returned instead since identification may be
// attempted before the reader is ready.
func (l *Link) IDString(ctx context.Context) string {
	l.mu.Lock()
	id := l.id
	l.mu.Unlock()
	if id != "" {
		return id
	}
	if !l.IsAlive() {
		return "reader ID cannot be determined: link is " + l.State().String()
	}
	if !l.acquire(ctx) {
		return "reader ID cannot be determined: reader busy"
	}
	defer l.release()

	seq, err := l.Send(tlsascii.NewCommand("vr").WithComment(CommentIdentify))
	if err != nil {
		return "reader ID cannot be determined: " + err.Error()
	}
	for range 8 {
		f := l.receiveLocked(ctx, time.Second)
		if f.Empty() {
			break
		}
		if c, ok := f.CorrelationMap(); !ok || !sameSeq(c, seq) {
			l.pending = append(l.pending, f)
			continue
		}
		if !f.OK() {
			return "reader ID cannot be determined: " + tlsascii.ErrorText(f.ReturnCode())
		}
		id = formatID(f)
		l.mu.Lock()
		l.id = id
		l.mu.Unlock()
		return id
	}
	return "reader ID cannot be determined: no reply"
}

func sameSeq(c tlsascii.Correlation, seq uint64) bool {
	got, ok := c.Seq()
	return ok && got == seq
}

func formatID(f tlsascii.Frame) string {
	first := func(code string) string {
		if v := f.Lookup(code); len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return "?"
	}
	return fmt.Sprintf("%s, serial %s, protocol %s",
		first(tlsascii.CodeManufacturer),
		first(tlsascii.CodeSerialNumber),
		first(tlsascii.CodeProtocolVer))
}
