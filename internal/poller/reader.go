package poller

import (
	"context"
	"time"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/tlsascii"
)

// FrameSource yields frames from the reader. *commlink.Link implements it.
type FrameSource interface {
	Receive(ctx context.Context, timeout time.Duration) tlsascii.Frame
	IsAlive() bool
	TakeOverdue(after time.Duration) bool
}

// FrameConverter turns frames into events. *reader.Session implements it.
type FrameConverter interface {
	Convert(tlsascii.Frame) *events.Event
}

// ReaderPoller receives frames from the reader and converts them. A quiet
// reader with nothing outstanding produces nothing. A command left
// unanswered for a full timeout produces one timeout status report, and a
// dead link one per outage rather than one per receive.
type ReaderPoller struct {
	*Base
	link    FrameSource
	session FrameConverter
	timeout time.Duration

	reportedDown bool
}

// NewReaderPoller returns an active reader poller.
func NewReaderPoller(link FrameSource, session FrameConverter, timeout time.Duration) *ReaderPoller {
	return &ReaderPoller{
		Base:    NewBase("reader", MinInterval, true),
		link:    link,
		session: session,
		timeout: timeout,
	}
}

func (r *ReaderPoller) NextEvent(ctx context.Context) (*events.Event, error) {
	f := r.link.Receive(ctx, r.timeout)
	if f.Empty() {
		if ctx.Err() != nil {
			return nil, nil
		}
		if r.link.IsAlive() {
			r.reportedDown = false
			if r.link.TakeOverdue(r.timeout) {
				return r.session.Convert(f), nil
			}
			return nil, nil
		}
		if r.reportedDown {
			return nil, nil
		}
		r.reportedDown = true
	} else {
		r.reportedDown = false
	}
	return r.session.Convert(f), nil
}
