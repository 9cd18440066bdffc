package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort implements SerialPorter with scripted reads and captured
// writes. Reads block until data is queued or the port is closed.
type TestableSerialPort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	readCond *sync.Cond

	// WriteError is returned by the next Write call if set.
	WriteError error
	// ReadError is returned by the next Read call if set.
	ReadError error
	// CloseError is returned by Close if set.
	CloseError error

	closed bool

	// OnWrite, if set, is called with every chunk written to the port.
	OnWrite func(p []byte)
}

// NewTestableSerialPort creates a TestableSerialPort with empty buffers.
func NewTestableSerialPort() *TestableSerialPort {
	t := &TestableSerialPort{}
	t.readCond = sync.NewCond(&t.mu)
	return t
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.closed && t.ReadError == nil && t.readBuf.Len() == 0 {
		t.readCond.Wait()
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.closed && t.readBuf.Len() == 0 {
		return 0, errPortClosed
	}
	return t.readBuf.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		t.mu.Unlock()
		return 0, err
	}
	n, err := t.writeBuf.Write(p)
	hook := t.OnWrite
	t.mu.Unlock()

	if hook != nil {
		hook(append([]byte(nil), p...))
	}
	return n, err
}

// Close marks the port closed and wakes any blocked reader.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// FailReads makes the next (or currently blocked) Read return err.
func (t *TestableSerialPort) FailReads(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
	t.readCond.Broadcast()
}

// AddReadData queues data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuf.Write(data)
	t.readCond.Broadcast()
}

// AddLines queues each line terminated by CRLF.
func (t *TestableSerialPort) AddLines(lines ...string) {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	t.AddReadData([]byte(b.String()))
}

// Written returns everything written to the port so far.
func (t *TestableSerialPort) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeBuf.String()
}

// IsClosed reports whether Close was called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// MockPortFactory implements PortFactory for testing.
type MockPortFactory struct {
	mu sync.Mutex

	// Ports are handed out in order; the last one is reused once exhausted.
	Ports []SerialPorter
	// Error is returned by Open if set.
	Error error

	OpenCalls []string
}

// NewMockPortFactory creates a factory returning the given ports in order.
func NewMockPortFactory(ports ...SerialPorter) *MockPortFactory {
	return &MockPortFactory{Ports: ports}
}

func (f *MockPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, path)
	if f.Error != nil {
		return nil, f.Error
	}
	if len(f.Ports) == 0 {
		return nil, fmt.Errorf("no mock port for %s", path)
	}
	p := f.Ports[0]
	if len(f.Ports) > 1 {
		f.Ports = f.Ports[1:]
	}
	return p, nil
}

// Calls returns the number of Open calls.
func (f *MockPortFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.OpenCalls)
}

// SimulatedReader is a SerialPorter that behaves like a handheld reader
// answering TLS ASCII commands. Each command line written is echoed as a CS
// line followed by the responder's lines, an OK line and a blank line.
// It backs the server's -dev mode and the package tests of the link layer.
type SimulatedReader struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu      sync.Mutex
	pending []byte
	closed  bool
	out     chan string
	done    chan struct{}

	// Tags are reported in inventory replies with a jittered RSSI.
	Tags map[string]int
	// Respond overrides the built-in responder when set.
	Respond func(cmd string) []string
}

// NewSimulatedReader returns a simulated reader reporting the given tags
// (EPC to nominal RSSI in dBm).
func NewSimulatedReader(tags map[string]int) *SimulatedReader {
	pr, pw := io.Pipe()
	s := &SimulatedReader{
		pr:   pr,
		pw:   pw,
		out:  make(chan string, 64),
		done: make(chan struct{}),
		Tags: tags,
	}
	go s.pump()
	return s
}

func (s *SimulatedReader) pump() {
	for {
		select {
		case chunk := <-s.out:
			if _, err := io.WriteString(s.pw, chunk); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *SimulatedReader) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

func (s *SimulatedReader) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errPortClosed
	}
	s.pending = append(s.pending, p...)
	var cmds []string
	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(s.pending[:i]), "\r")
		s.pending = s.pending[i+1:]
		if line != "" {
			cmds = append(cmds, line)
		}
	}
	s.mu.Unlock()

	for _, cmd := range cmds {
		var b strings.Builder
		fmt.Fprintf(&b, "CS:%s\r\n", cmd)
		for _, l := range s.reply(cmd) {
			b.WriteString(l)
			b.WriteString("\r\n")
		}
		b.WriteString("OK:\r\n\r\n")
		select {
		case s.out <- b.String():
		case <-s.done:
			return 0, errPortClosed
		}
	}
	return len(p), nil
}

func (s *SimulatedReader) reply(cmd string) []string {
	if s.Respond != nil {
		return s.Respond(cmd)
	}
	switch {
	case strings.HasPrefix(cmd, ".vr"):
		return []string{"MF:Technology Solutions UK Ltd", "US:000000000001", "PV:2.5"}
	case strings.HasPrefix(cmd, ".iv"):
		var lines []string
		for epc, rssi := range s.Tags {
			lines = append(lines, "EP:"+epc, fmt.Sprintf("RI:%d", rssi+rand.IntN(5)-2))
		}
		return lines
	}
	return nil
}

// Close stops the simulated reader; pending reads return io.EOF.
func (s *SimulatedReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.pw.Close()
	return nil
}
