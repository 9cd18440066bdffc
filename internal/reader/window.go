package reader

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/tlsascii"
)

// Calibration holds the log-distance path loss constants: A is the RSSI
// measured at one metre and N the path loss exponent.
type Calibration struct {
	A float64 `yaml:"a" json:"a"`
	N float64 `yaml:"n" json:"n"`
}

// DefaultCalibration suits the handheld reader's internal antenna.
var DefaultCalibration = Calibration{A: -45, N: 2}

// Distance converts a mean RSSI into metres.
func (c Calibration) Distance(meanRSSI float64) float64 {
	return math.Pow(10, (meanRSSI-c.A)/(-10*c.N))
}

// Sample maps EPC to RSSI for one inventory round.
type Sample map[string]float64

// SampleFromFrame pairs each EP line with the RI line following it. Tags
// without a parseable RSSI are skipped.
func SampleFromFrame(f tlsascii.Frame) Sample {
	s := Sample{}
	epc := ""
	for _, l := range f {
		switch l.Code {
		case tlsascii.CodeEPC:
			epc = strings.TrimSpace(l.Payload)
		case tlsascii.CodeRSSI:
			if epc == "" {
				continue
			}
			if v, err := strconv.ParseFloat(strings.TrimSpace(l.Payload), 64); err == nil {
				s[epc] = v
			}
			epc = ""
		}
	}
	return s
}

// RunningWindow keeps the last N samples.
type RunningWindow struct {
	capacity int
	cal      Calibration
	samples  []Sample
}

// NewRunningWindow returns an empty window. Capacities below one are raised
// to one.
func NewRunningWindow(capacity int, cal Calibration) *RunningWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &RunningWindow{capacity: capacity, cal: cal}
}

// Add appends s, evicting the oldest sample once the window is full.
func (w *RunningWindow) Add(s Sample) {
	if len(w.samples) == w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.capacity-1]
	}
	w.samples = append(w.samples, s)
}

func (w *RunningWindow) Len() int      { return len(w.samples) }
func (w *RunningWindow) Capacity() int { return w.capacity }
func (w *RunningWindow) Full() bool    { return len(w.samples) == w.capacity }
func (w *RunningWindow) Clear()        { w.samples = w.samples[:0] }

// View returns per-tag mean RSSI and distance, ordered by EPC. It reports
// false until the window is full. A tag is averaged only over the samples
// in which it appears.
func (w *RunningWindow) View() ([]events.RadarTag, bool) {
	if !w.Full() {
		return nil, false
	}
	seen := map[string][]float64{}
	for _, s := range w.samples {
		for epc, rssi := range s {
			seen[epc] = append(seen[epc], rssi)
		}
	}
	out := make([]events.RadarTag, 0, len(seen))
	for epc, vals := range seen {
		mean := stat.Mean(vals, nil)
		out = append(out, events.RadarTag{EPC: epc, RSSI: mean, Distance: w.cal.Distance(mean)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EPC < out[j].EPC })
	return out, true
}
