package tlsascii

import (
	"errors"
	"fmt"
	"strings"
)

// Terminator ends every command written to the device.
const Terminator = "\r\n"

var (
	ErrUnknownOpcode = errors.New("unknown command opcode")
	ErrBadParameter  = errors.New("malformed command parameter")
)

// Param is a single -flag [value] command parameter. An empty Value writes the
// flag on its own.
type Param struct {
	Flag  string
	Value string
}

// Command is an opcode with an ordered parameter list. Comment is the
// caller-supplied tag carried in the correlation suffix; it is not written as a
// parameter.
type Command struct {
	Opcode  string
	Params  []Param
	Comment string
}

// NewCommand builds a command from an opcode and flag/value pairs.
func NewCommand(opcode string, params ...Param) Command {
	return Command{Opcode: opcode, Params: params}
}

// WithComment returns a copy of c tagged with comment.
func (c Command) WithComment(comment string) Command {
	c.Comment = comment
	return c
}

// Validate checks the opcode against the known command set and that no flag or
// value would break the line framing.
func (c Command) Validate() error {
	if !IsOpcode(c.Opcode) {
		return fmt.Errorf("%w: %q", ErrUnknownOpcode, c.Opcode)
	}
	for _, p := range c.Params {
		if p.Flag == "" || strings.ContainsAny(p.Flag, " \t\r\n-~") {
			return fmt.Errorf("%w: flag %q", ErrBadParameter, p.Flag)
		}
		if strings.ContainsAny(p.Value, "\r\n~") {
			return fmt.Errorf("%w: value %q for -%s", ErrBadParameter, p.Value, p.Flag)
		}
	}
	return nil
}

// String renders the command without correlation suffix or terminator.
func (c Command) String() string {
	var b strings.Builder
	b.WriteByte('.')
	b.WriteString(c.Opcode)
	for _, p := range c.Params {
		b.WriteString(" -")
		b.WriteString(p.Flag)
		if p.Value != "" {
			b.WriteByte(' ')
			b.WriteString(p.Value)
		}
	}
	return b.String()
}

// Encode renders the command line as written to the device. suffix is the
// already framed correlation suffix and may be empty.
func Encode(c Command, suffix string) string {
	line := c.String()
	if suffix != "" {
		line += " " + suffix
	}
	return line + Terminator
}

// ParseCommand parses a command string such as ".iv -x -n" into a Command. A
// flag followed by a token that does not start with '-' takes that token as
// its value.
func ParseCommand(s string) (Command, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrUnknownOpcode)
	}
	head := fields[0]
	if !strings.HasPrefix(head, ".") {
		return Command{}, fmt.Errorf("command %q must start with a period", s)
	}
	cmd := Command{Opcode: head[1:]}
	for i := 1; i < len(fields); i++ {
		tok := fields[i]
		if !strings.HasPrefix(tok, "-") || len(tok) < 2 {
			return Command{}, fmt.Errorf("%w: syntax error at %q", ErrBadParameter, tok)
		}
		p := Param{Flag: tok[1:]}
		if i+1 < len(fields) && !strings.HasPrefix(fields[i+1], "-") {
			i++
			p.Value = fields[i]
		}
		cmd.Params = append(cmd.Params, p)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// OnOff renders a boolean the way the reader expects it.
func OnOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
