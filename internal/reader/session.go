// Package reader is the stateful layer above the device link. It owns the
// operating mode, turns typed requests into reader commands and converts
// the frames coming back into events.
package reader

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/monitoring"
	"github.com/stocky-devel/stocky/internal/tlsascii"
)

// Mode is the reader's operating mode.
type Mode int

const (
	Undefined Mode = iota
	StockCheck
	Radar
)

func (m Mode) String() string {
	switch m {
	case StockCheck:
		return "stockcheck"
	case Radar:
		return "radar"
	}
	return "undefined"
}

// Comment tags a command so its reply can be classified.
type Comment string

const (
	CommentNone           Comment = ""
	CommentRadarSetup     Comment = "radar-setup"
	CommentRadarSample    Comment = "radar-sample"
	CommentInventoryReset Comment = "inventory-reset"
	CommentDeviceSetup    Comment = "device-setup"
	CommentClientCommand  Comment = "client-command"
)

var (
	ErrBadRegion      = errors.New("region code must be two characters")
	ErrNotRadar       = errors.New("reader is not in radar mode")
	ErrNotDeviceEvent = errors.New("event is not addressed to the reader")
	ErrBadBankData    = errors.New("user bank data must be whole 16-bit words of hex")
)

// Sender writes commands to the reader without waiting for a reply.
// *commlink.Link implements it.
type Sender interface {
	Send(tlsascii.Command) (uint64, error)
}

// Session holds the reader's mode and radar window.
type Session struct {
	link Sender

	mu          sync.Mutex
	mode        Mode
	radarTarget string
	window      *RunningWindow
}

// NewSession returns a session in Undefined mode.
func NewSession(link Sender, windowSize int, cal Calibration) *Session {
	return &Session{
		link:   link,
		window: NewRunningWindow(windowSize, cal),
	}
}

// Mode returns the current operating mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) send(cmd tlsascii.Command, c Comment) error {
	_, err := s.link.Send(cmd.WithComment(string(c)))
	return err
}

// SetRegion sets the reader's geographic region, e.g. "us" or "eu".
func (s *Session) SetRegion(code string) error {
	if len(code) != 2 {
		return fmt.Errorf("%w: %q", ErrBadRegion, code)
	}
	return s.send(tlsascii.NewCommand("sr", tlsascii.Param{Flag: "s", Value: code}), CommentDeviceSetup)
}

// SetClock sets the reader's time and date from t.
func (s *Session) SetClock(t time.Time) error {
	tm := tlsascii.NewCommand("tm", tlsascii.Param{Flag: "s", Value: t.Format("150405")})
	da := tlsascii.NewCommand("da", tlsascii.Param{Flag: "s", Value: t.Format("060102")})
	return errors.Join(s.send(tm, CommentDeviceSetup), s.send(da, CommentDeviceSetup))
}

// Alert sounds the buzzer and/or vibrates the reader.
func (s *Session) Alert(p tlsascii.AlertParams) error {
	return s.send(p.Command(), CommentDeviceSetup)
}

// ResetInventoryOptions restores the reader's default inventory parameters
// without running an inventory.
func (s *Session) ResetInventoryOptions() error {
	return s.send(tlsascii.NewCommand("iv", tlsascii.Param{Flag: "x"}, tlsascii.Param{Flag: "n"}), CommentInventoryReset)
}

// enter resets inventory options, clears the window and switches mode, in
// that order. The mode changes even if the reset cannot be sent so a
// reader that comes back is reinitialised into the requested mode.
func (s *Session) enter(m Mode, target string) error {
	err := s.ResetInventoryOptions()
	s.mu.Lock()
	s.window.Clear()
	s.mode = m
	s.radarTarget = target
	s.mu.Unlock()
	monitoring.Infof("reader mode now %s", m)
	return err
}

// SetRadarMode enters radar mode ranging on target, or on every tag in the
// field when target points to an empty string. A nil target leaves radar
// mode.
func (s *Session) SetRadarMode(target *string) error {
	if target == nil {
		return s.enter(Undefined, "")
	}
	if err := s.enter(Radar, *target); err != nil {
		return err
	}
	return s.send(radarSetup(*target), CommentRadarSetup)
}

func radarSetup(epc string) tlsascii.Command {
	opts := tlsascii.InventoryOptions{
		"x": "", "n": "", "r": "on", "io": "off", "qt": "b", "qs": "s0",
	}
	if epc != "" {
		for k, v := range selectMask(epc) {
			opts[k] = v
		}
	}
	cmd, _ := opts.Command()
	return cmd
}

// selectMask addresses a single tag by its EPC. The EPC bank data starts
// 0x20 bits in, after the CRC and PC words.
func selectMask(epc string) tlsascii.InventoryOptions {
	return tlsascii.InventoryOptions{
		"sa": "4", "st": "s0", "sb": "epc", "sd": epc,
		"sl": fmt.Sprintf("%02x", len(epc)*4), "so": "0020",
	}
}

// GetRadarSample asks the reader for one inventory round.
func (s *Session) GetRadarSample() error {
	if s.Mode() != Radar {
		return ErrNotRadar
	}
	return s.send(tlsascii.NewCommand("iv"), CommentRadarSample)
}

// SetStockCheckMode configures the reader to report every tag it sees on a
// trigger pull.
func (s *Session) SetStockCheckMode() error {
	if err := s.enter(StockCheck, ""); err != nil {
		return err
	}
	cmd, _ := tlsascii.InventoryOptions{"x": "", "n": "", "al": "on", "r": "on", "ie": "on"}.Command()
	return s.send(cmd, CommentDeviceSetup)
}

// LeaveMode returns the reader to Undefined mode.
func (s *Session) LeaveMode() error {
	return s.enter(Undefined, "")
}

func validWords(data string) bool {
	if data == "" || len(data)%4 != 0 {
		return false
	}
	_, err := hex.DecodeString(data)
	return err == nil
}

// WriteUserBank writes hex data to the start of the user memory bank of the
// tag with the given EPC.
func (s *Session) WriteUserBank(epc, data string) error {
	if !validWords(data) {
		return ErrBadBankData
	}
	opts := selectMask(epc)
	params := []tlsascii.Param{
		{Flag: "db", Value: "usr"},
		{Flag: "da", Value: "0000"},
		{Flag: "dl", Value: fmt.Sprintf("%02x", len(data)/4)},
		{Flag: "dt", Value: data},
	}
	return s.send(bankCommand("wr", opts, params), CommentClientCommand)
}

// ReadUserBank reads words 16-bit words from the user memory bank of the tag
// with the given EPC.
func (s *Session) ReadUserBank(epc string, words int) error {
	if words < 1 || words > 0xff {
		return fmt.Errorf("%w: %d words", ErrBadBankData, words)
	}
	params := []tlsascii.Param{
		{Flag: "db", Value: "usr"},
		{Flag: "da", Value: "0000"},
		{Flag: "dl", Value: fmt.Sprintf("%02x", words)},
	}
	return s.send(bankCommand("rd", selectMask(epc), params), CommentClientCommand)
}

func bankCommand(op string, sel tlsascii.InventoryOptions, params []tlsascii.Param) tlsascii.Command {
	iv, _ := sel.Command()
	return tlsascii.NewCommand(op, append(iv.Params, params...)...)
}

// SendGenericCommand parses and sends a raw command line on behalf of the
// client. The reply is always forwarded back.
func (s *Session) SendGenericCommand(line string) error {
	cmd, err := tlsascii.ParseCommand(line)
	if err != nil {
		return err
	}
	return s.send(cmd, CommentClientCommand)
}

// Reinitialise brings a reader that has just appeared into the server's
// configured state and the session's current mode.
func (s *Session) Reinitialise(region string, now time.Time) error {
	s.mu.Lock()
	mode, target := s.mode, s.radarTarget
	s.mu.Unlock()

	errs := []error{s.SetRegion(region), s.SetClock(now)}
	switch mode {
	case Radar:
		errs = append(errs, s.SetRadarMode(&target))
	case StockCheck:
		errs = append(errs, s.SetStockCheckMode())
	default:
		errs = append(errs, s.ResetInventoryOptions())
	}
	return errors.Join(errs...)
}

// HandleEvent applies a device-bound event.
func (s *Session) HandleEvent(ev events.Event) error {
	switch ev.Kind {
	case events.KindRadarMode:
		req, err := events.As[events.RadarModeRequest](ev)
		if err != nil {
			return err
		}
		if !req.On {
			return s.SetRadarMode(nil)
		}
		return s.SetRadarMode(&req.EPC)
	case events.KindStockMode:
		on, err := events.As[bool](ev)
		if err != nil {
			return err
		}
		if on {
			return s.SetStockCheckMode()
		}
		return s.LeaveMode()
	case events.KindTimerTick:
		if s.Mode() != Radar {
			return nil
		}
		return s.GetRadarSample()
	case events.KindGenericCommand:
		req, err := events.As[events.GenericCommand](ev)
		if err != nil {
			return err
		}
		return s.SendGenericCommand(req.Command)
	}
	return fmt.Errorf("%w: %s", ErrNotDeviceEvent, ev.Kind)
}

// Convert turns a frame into at most one event.
//
// A timed-out frame always yields a status report. Otherwise the reply is
// classified by the comment of the command that caused it; unsolicited
// frames (no comment) are classified by mode.
func (s *Session) Convert(f tlsascii.Frame) *events.Event {
	rc := f.ReturnCode()
	if rc == tlsascii.ReturnTimeout {
		ev := events.Must(events.KindStatusReport, events.StatusReport{Code: rc, Text: tlsascii.ErrorText(rc)})
		return &ev
	}

	comment := CommentNone
	if c, ok := f.CorrelationMap(); ok {
		comment = Comment(c.Comment())
	}

	switch comment {
	case CommentNone:
		switch s.Mode() {
		case Radar:
			return s.radarData(f)
		case StockCheck:
			return commandResponse(f)
		default:
			return nil
		}
	case CommentRadarSetup, CommentInventoryReset, CommentDeviceSetup:
		if rc == tlsascii.ReturnOK {
			return nil
		}
		monitoring.Warnf("reader rejected %s command: %s", comment, tlsascii.ErrorText(rc))
		return commandResponse(f)
	case CommentRadarSample:
		return s.radarData(f)
	case CommentClientCommand:
		return commandResponse(f)
	default:
		monitoring.Warnf("unhandled reply comment %q, dropping frame %v", comment, f.Lines())
		return nil
	}
}

func commandResponse(f tlsascii.Frame) *events.Event {
	ev := events.Must(events.KindCommandResponse, f.Lines())
	return &ev
}

func (s *Session) radarData(f tlsascii.Frame) *events.Event {
	s.mu.Lock()
	s.window.Add(SampleFromFrame(f))
	view, ok := s.window.View()
	s.mu.Unlock()
	if !ok {
		return nil
	}
	ev := events.Must(events.KindRadarData, view)
	return &ev
}
