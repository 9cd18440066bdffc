package poller

import (
	"context"
	"time"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/fsutil"
)

// FileWatch reports changes in the existence of a path, typically the
// reader's device node. The first poll always reports the current state.
type FileWatch struct {
	*Base
	fs   fsutil.FileSystem
	path string
	seen bool
	last bool
}

// NewFileWatch returns an active watch on path.
func NewFileWatch(path string, interval time.Duration, fs fsutil.FileSystem) *FileWatch {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &FileWatch{Base: NewBase("watch:"+path, interval, true), fs: fs, path: path}
}

func (w *FileWatch) NextEvent(context.Context) (*events.Event, error) {
	exists := w.fs.Exists(w.path)
	if w.seen && exists == w.last {
		return nil, nil
	}
	w.seen, w.last = true, exists
	ev := events.Must(events.KindDevicePresence, exists)
	return &ev, nil
}
