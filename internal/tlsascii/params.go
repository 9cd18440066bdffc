package tlsascii

import (
	"fmt"
	"strconv"
)

// BuzzDuration is the length of an alert buzz or vibration.
type BuzzDuration string

const (
	BuzzShort  BuzzDuration = "sho"
	BuzzMedium BuzzDuration = "med"
	BuzzLong   BuzzDuration = "lon"
)

// BuzzTone is the pitch of the alert buzzer.
type BuzzTone string

const (
	ToneLow    BuzzTone = "low"
	ToneMedium BuzzTone = "med"
	ToneHigh   BuzzTone = "hig"
)

// AlertParams describes an alert action on the reader.
type AlertParams struct {
	Buzzer   bool
	Vibrate  bool
	Duration BuzzDuration
	Tone     BuzzTone
}

// Command returns the .al command for p.
func (p AlertParams) Command() Command {
	dur := p.Duration
	if dur == "" {
		dur = BuzzShort
	}
	tone := p.Tone
	if tone == "" {
		tone = ToneMedium
	}
	return NewCommand("al",
		Param{"b", OnOff(p.Buzzer)},
		Param{"v", OnOff(p.Vibrate)},
		Param{"d", string(dur)},
		Param{"t", string(tone)},
	)
}

// BarcodeParams configures a barcode read.
type BarcodeParams struct {
	Alert        bool
	WithDateTime bool
	ReadSeconds  int
}

// Command returns the .bc command for p.
func (p BarcodeParams) Command() (Command, error) {
	if p.ReadSeconds < 1 || p.ReadSeconds > 9 {
		return Command{}, fmt.Errorf("barcode read time %ds out of range [1..9]", p.ReadSeconds)
	}
	return NewCommand("bc",
		Param{"al", OnOff(p.Alert)},
		Param{"dt", OnOff(p.WithDateTime)},
		Param{"t", strconv.Itoa(p.ReadSeconds)},
	), nil
}

// inventoryOrder is the order in which the reader interprets .iv parameters.
var inventoryOrder = []string{
	"x", "al", "c", "e", "r", "ie", "dt", "fs", "ix", "sb",
	"so", "sl", "sd", "o", "io", "sa", "st", "qa", "ql", "qs",
	"qt", "qv", "fi", "tf", "p", "n",
}

var inventoryRank = func() map[string]int {
	m := make(map[string]int, len(inventoryOrder))
	for i, f := range inventoryOrder {
		m[f] = i
	}
	return m
}()

// InventoryOptions collects .iv parameters keyed by flag. Values may be empty
// for bare flags.
type InventoryOptions map[string]string

// Command returns the .iv command with parameters in the reader's
// interpretation order. Unknown flags are rejected.
func (o InventoryOptions) Command() (Command, error) {
	params := make([]Param, 0, len(o))
	for _, flag := range inventoryOrder {
		if v, ok := o[flag]; ok {
			params = append(params, Param{Flag: flag, Value: v})
		}
	}
	for flag := range o {
		if _, ok := inventoryRank[flag]; !ok {
			return Command{}, fmt.Errorf("%w: unknown inventory option -%s", ErrBadParameter, flag)
		}
	}
	return NewCommand("iv", params...), nil
}
