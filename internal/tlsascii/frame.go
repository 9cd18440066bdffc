package tlsascii

import (
	"strconv"
	"strings"

	"github.com/stocky-devel/stocky/internal/monitoring"
)

// ResponseLine is one decoded <CC>:<payload> line.
type ResponseLine struct {
	Code    string `json:"code"`
	Payload string `json:"payload"`
}

// String re-encodes the line in wire form without terminator.
func (l ResponseLine) String() string {
	return l.Code + ":" + l.Payload
}

// IsTerminal reports whether the line ends a frame (OK or ER).
func (l ResponseLine) IsTerminal() bool {
	return l.Code == CodeOK || l.Code == CodeError
}

// ParseLine decodes a raw device line. Only lines starting with a known
// two-character code followed by ':' are accepted. The payload is kept
// exactly as sent, minus the line terminator.
func ParseLine(raw string) (ResponseLine, bool) {
	s := strings.TrimRight(raw, "\r\n")
	if len(s) < 3 || s[2] != ':' {
		return ResponseLine{}, false
	}
	code := s[:2]
	if !IsResponseCode(code) {
		return ResponseLine{}, false
	}
	return ResponseLine{Code: code, Payload: s[3:]}, true
}

// Frame is the ordered set of lines the device sent in answer to one command
// (or unprompted, e.g. after a trigger pull).
type Frame []ResponseLine

// Empty reports whether no lines were received.
func (f Frame) Empty() bool {
	return len(f) == 0
}

// Lookup returns the payloads of all lines with the given code, in order.
func (f Frame) Lookup(code string) []string {
	var out []string
	for _, l := range f {
		if l.Code == code {
			out = append(out, l.Payload)
		}
	}
	return out
}

// ReturnCode derives the frame's outcome from its final line: OK gives
// ReturnOK, ER:<n> gives n. Empty frames and any other terminal shape give
// ReturnTimeout.
func (f Frame) ReturnCode() int {
	if len(f) == 0 {
		return ReturnTimeout
	}
	last := f[len(f)-1]
	switch last.Code {
	case CodeOK:
		return ReturnOK
	case CodeError:
		n, err := strconv.Atoi(strings.TrimSpace(last.Payload))
		if err != nil || n < 0 {
			return ReturnTimeout
		}
		return n
	default:
		return ReturnTimeout
	}
}

// OK reports whether the device acknowledged the command.
func (f Frame) OK() bool {
	return f.ReturnCode() == ReturnOK
}

// CorrelationMap recovers the correlation the issuer embedded in the command
// that this frame answers. It scans the command echo lines for a value framed
// by the sentinel characters. No sentinels means no correlation. A framed
// value that cannot be decoded is logged at error level and also reported as
// absent.
func (f Frame) CorrelationMap() (Correlation, bool) {
	for _, echo := range f.Lookup(CodeCommandEcho) {
		raw, ok := extractFramed(echo)
		if !ok {
			continue
		}
		c, err := DecodeCorrelation(raw)
		if err != nil {
			monitoring.Errorf("uninterpretable correlation %q in %q: %v", raw, echo, err)
			return nil, false
		}
		return c, true
	}
	return nil, false
}

// Lines returns the frame re-encoded in wire form.
func (f Frame) Lines() []string {
	out := make([]string, len(f))
	for i, l := range f {
		out[i] = l.String()
	}
	return out
}

// FrameBuilder accumulates raw lines into a Frame.
type FrameBuilder struct {
	lines Frame
	done  bool
}

// Add feeds one raw line and reports whether the frame is now complete. A
// frame completes on a blank line that follows an OK or ER line. Malformed
// lines are dropped and logged; they never abort accumulation.
func (b *FrameBuilder) Add(raw string) bool {
	if b.done {
		return true
	}
	if strings.TrimSpace(raw) == "" {
		if n := len(b.lines); n > 0 && b.lines[n-1].IsTerminal() {
			b.done = true
		}
		return b.done
	}
	line, ok := ParseLine(raw)
	if !ok {
		monitoring.Warnf("dropping malformed reader line %q", raw)
		return false
	}
	b.lines = append(b.lines, line)
	return false
}

// Done reports whether a terminated frame has been accumulated.
func (b *FrameBuilder) Done() bool {
	return b.done
}

// Frame returns the lines accumulated so far.
func (b *FrameBuilder) Frame() Frame {
	return b.lines
}

// Reset discards accumulated lines.
func (b *FrameBuilder) Reset() {
	b.lines = nil
	b.done = false
}
