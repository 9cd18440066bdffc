package commlink

import (
	"net/http"

	"github.com/stocky-devel/stocky/internal/serialmux"
)

// AttachAdminRoutes serves the serial debug pages for whichever port the
// link currently has open.
func (l *Link) AttachAdminRoutes(mux *http.ServeMux) {
	serialmux.AttachAdminRoutes(mux, adminView{l})
}

// adminView routes raw debug traffic to the current port. Lines written
// here carry no correlation suffix, so their replies reach the session as
// uncorrelated frames.
type adminView struct{ l *Link }

func (v adminView) current() *serialmux.SerialMux[serialmux.SerialPorter] {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()
	return v.l.mux
}

func (v adminView) Subscribe() (string, chan string) {
	if m := v.current(); m != nil {
		return m.Subscribe()
	}
	ch := make(chan string)
	close(ch)
	return "", ch
}

func (v adminView) Unsubscribe(id string) {
	if m := v.current(); m != nil && id != "" {
		m.Unsubscribe(id)
	}
}

func (v adminView) SendCommand(line string) error {
	m := v.current()
	if m == nil {
		return ErrNotAlive
	}
	return m.SendCommand(line)
}
