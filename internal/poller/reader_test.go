package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/tlsascii"
)

type fakeSource struct {
	frames  []tlsascii.Frame
	alive   bool
	overdue bool
}

func (f *fakeSource) Receive(context.Context, time.Duration) tlsascii.Frame {
	if len(f.frames) == 0 {
		return nil
	}
	fr := f.frames[0]
	f.frames = f.frames[1:]
	return fr
}

func (f *fakeSource) IsAlive() bool { return f.alive }

func (f *fakeSource) TakeOverdue(time.Duration) bool {
	o := f.overdue
	f.overdue = false
	return o
}

type fakeConverter struct{ seen []tlsascii.Frame }

func (c *fakeConverter) Convert(f tlsascii.Frame) *events.Event {
	c.seen = append(c.seen, f)
	if f.Empty() {
		ev := events.Must(events.KindStatusReport, events.StatusReport{Code: tlsascii.ReturnTimeout})
		return &ev
	}
	ev := events.Must(events.KindCommandResponse, f.Lines())
	return &ev
}

func TestReaderPoller_QuietHealthyReader(t *testing.T) {
	src := &fakeSource{alive: true}
	conv := &fakeConverter{}
	p := NewReaderPoller(src, conv, time.Second)

	ev, err := p.NextEvent(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.Empty(t, conv.seen)
}

func TestReaderPoller_UnansweredCommandReportsTimeout(t *testing.T) {
	src := &fakeSource{alive: true, overdue: true}
	conv := &fakeConverter{}
	p := NewReaderPoller(src, conv, time.Second)
	ctx := context.Background()

	ev, err := p.NextEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, events.KindStatusReport, ev.Kind)

	ev, _ = p.NextEvent(ctx)
	assert.Nil(t, ev, "one report per unanswered command")
}

func TestReaderPoller_ConvertsFrames(t *testing.T) {
	src := &fakeSource{alive: true, frames: []tlsascii.Frame{{{Code: "OK"}}}}
	conv := &fakeConverter{}
	p := NewReaderPoller(src, conv, time.Second)

	ev, err := p.NextEvent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, events.KindCommandResponse, ev.Kind)
}

func TestReaderPoller_DeadLinkReportsOncePerOutage(t *testing.T) {
	src := &fakeSource{alive: false}
	conv := &fakeConverter{}
	p := NewReaderPoller(src, conv, time.Second)
	ctx := context.Background()

	ev, _ := p.NextEvent(ctx)
	require.NotNil(t, ev)
	assert.Equal(t, events.KindStatusReport, ev.Kind)

	ev, _ = p.NextEvent(ctx)
	assert.Nil(t, ev)

	// reader comes back, then drops again
	src.alive = true
	src.frames = []tlsascii.Frame{{{Code: "OK"}}}
	p.NextEvent(ctx)
	src.alive = false
	ev, _ = p.NextEvent(ctx)
	require.NotNil(t, ev)
	assert.Equal(t, events.KindStatusReport, ev.Kind)
}
