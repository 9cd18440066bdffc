package commlink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stocky-devel/stocky/internal/serialmux"
	"github.com/stocky-devel/stocky/internal/timeutil"
	"github.com/stocky-devel/stocky/internal/tlsascii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLink(t *testing.T, ports ...serialmux.SerialPorter) (*Link, *serialmux.MockPortFactory) {
	t.Helper()
	f := serialmux.NewMockPortFactory(ports...)
	l := New(Options{Path: "/dev/ttyACM0", Factory: f})
	require.NoError(t, l.Open(context.Background()))
	t.Cleanup(func() { l.Close() })
	return l, f
}

func TestLink_StateTransitions(t *testing.T) {
	l := New(Options{Path: "/dev/ttyACM0", Factory: serialmux.NewMockPortFactory(serialmux.NewTestableSerialPort())})
	assert.Equal(t, Unknown, l.State())
	assert.False(t, l.IsAlive())

	require.NoError(t, l.Open(context.Background()))
	assert.Equal(t, Alive, l.State())

	require.NoError(t, l.Close())
	assert.Equal(t, Dead, l.State())
	assert.Equal(t, "dead", l.State().String())
}

func TestLink_OpenFailureMarksDead(t *testing.T) {
	f := serialmux.NewMockPortFactory()
	f.Error = errors.New("no such device")
	l := New(Options{Path: "/dev/ttyACM0", Factory: f})
	assert.ErrorContains(t, l.Open(context.Background()), "no such device")
	assert.Equal(t, Dead, l.State())
}

func TestLink_SendAppendsCorrelationAndCountsUp(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	l, _ := openLink(t, port)

	seq1, err := l.Send(tlsascii.NewCommand("iv"))
	require.NoError(t, err)
	seq2, err := l.Send(tlsascii.NewCommand("iv").WithComment("radar-sample"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)

	written := strings.Split(strings.TrimSuffix(port.Written(), "\r\n"), "\r\n")
	require.Len(t, written, 2)

	// the reader echoes the command line in CS; correlation must survive that
	f := tlsascii.Frame{{Code: tlsascii.CodeCommandEcho, Payload: written[1]}, {Code: tlsascii.CodeOK}}
	c, ok := f.CorrelationMap()
	require.True(t, ok)
	got, _ := c.Seq()
	assert.Equal(t, uint64(2), got)
	assert.Equal(t, "radar-sample", c.Comment())
}

func TestLink_SendRejectsInvalidAndNotAlive(t *testing.T) {
	l := New(Options{Path: "/dev/ttyACM0", Factory: serialmux.NewMockPortFactory()})
	_, err := l.Send(tlsascii.NewCommand("zz"))
	assert.ErrorIs(t, err, tlsascii.ErrUnknownOpcode)
	_, err = l.Send(tlsascii.NewCommand("iv"))
	assert.ErrorIs(t, err, ErrNotAlive)
}

func TestLink_WriteFailureMarksDead(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	l, _ := openLink(t, port)
	port.WriteError = errors.New("io error")
	_, err := l.Send(tlsascii.NewCommand("iv"))
	assert.Error(t, err)
	assert.Equal(t, Dead, l.State())
}

func TestLink_ReceiveFrame(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	l, _ := openLink(t, port)

	port.AddLines("CS:.iv", "EP:AA", "garbage line", "RI:-64", "OK:", "")
	f := l.Receive(context.Background(), 2*time.Second)
	assert.Equal(t, []string{"CS:.iv", "EP:AA", "RI:-64", "OK:"}, f.Lines())
	assert.Equal(t, tlsascii.ReturnOK, f.ReturnCode())
}

func TestLink_ReceiveTimeoutReturnsPartial(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	l, _ := openLink(t, port)

	f := l.Receive(context.Background(), 20*time.Millisecond)
	assert.True(t, f.Empty())
	assert.Equal(t, tlsascii.ReturnTimeout, f.ReturnCode())

	port.AddLines("CS:.iv", "EP:AA")
	require.Eventually(t, func() bool {
		f = l.Receive(context.Background(), 50*time.Millisecond)
		return !f.Empty()
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, tlsascii.ReturnTimeout, f.ReturnCode())
}

func TestLink_ChannelFailureYieldsTimeoutFrame(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	l, _ := openLink(t, port)

	port.FailReads(errors.New("unplugged"))
	require.Eventually(t, func() bool { return l.State() == Dead }, 2*time.Second, time.Millisecond)

	start := time.Now()
	f := l.Receive(context.Background(), 30*time.Millisecond)
	assert.True(t, f.Empty())
	assert.Equal(t, tlsascii.ReturnTimeout, f.ReturnCode())
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestLink_ReopenAfterFailure(t *testing.T) {
	first := serialmux.NewTestableSerialPort()
	second := serialmux.NewTestableSerialPort()
	l, f := openLink(t, first, second)

	first.FailReads(errors.New("unplugged"))
	require.Eventually(t, func() bool { return l.State() == Dead }, 2*time.Second, time.Millisecond)

	require.NoError(t, l.Open(context.Background()))
	assert.Equal(t, 2, f.Calls())
	assert.True(t, l.IsAlive())

	_, err := l.Send(tlsascii.NewCommand("vr"))
	require.NoError(t, err)
	assert.Contains(t, second.Written(), ".vr ~")
}

func TestLink_IDStringMemoized(t *testing.T) {
	sim := serialmux.NewSimulatedReader(nil)
	l, _ := openLink(t, sim)

	id := l.IDString(context.Background())
	assert.Equal(t, "Technology Solutions UK Ltd, serial 000000000001, protocol 2.5", id)

	sim.Respond = func(string) []string { return []string{"MF:other"} }
	assert.Equal(t, id, l.IDString(context.Background()))
}

func TestLink_IDStringNotAlive(t *testing.T) {
	l := New(Options{Path: "/dev/ttyACM0", Factory: serialmux.NewMockPortFactory()})
	assert.Contains(t, l.IDString(context.Background()), "cannot be determined")
}

func TestLink_IDStringKeepsForeignFrames(t *testing.T) {
	sim := serialmux.NewSimulatedReader(map[string]int{"AA": -60})
	l, _ := openLink(t, sim)

	// an unsolicited inventory reply lands before the version answer
	_, err := l.Send(tlsascii.NewCommand("iv"))
	require.NoError(t, err)
	assert.Contains(t, l.IDString(context.Background()), "Technology Solutions")

	f := l.Receive(context.Background(), time.Second)
	assert.Equal(t, []string{"AA"}, f.Lookup(tlsascii.CodeEPC))
}

func TestLink_TakeOverdue(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	port := serialmux.NewTestableSerialPort()
	l := New(Options{Path: "/dev/ttyACM0", Factory: serialmux.NewMockPortFactory(port), Clock: clock})
	require.NoError(t, l.Open(context.Background()))
	t.Cleanup(func() { l.Close() })

	assert.False(t, l.TakeOverdue(time.Second), "nothing sent yet")

	_, err := l.Send(tlsascii.NewCommand("vr"))
	require.NoError(t, err)
	clock.Advance(500 * time.Millisecond)
	assert.False(t, l.TakeOverdue(time.Second))
	clock.Advance(500 * time.Millisecond)
	assert.True(t, l.TakeOverdue(time.Second))
	assert.False(t, l.TakeOverdue(time.Second), "reported once")

	// an answered command is never overdue
	_, err = l.Send(tlsascii.NewCommand("vr"))
	require.NoError(t, err)
	port.AddLines("CS:.vr", "OK:", "")
	require.False(t, l.Receive(context.Background(), time.Second).Empty())
	clock.Advance(time.Hour)
	assert.False(t, l.TakeOverdue(time.Second))
}
