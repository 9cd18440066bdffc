package dispatch

import (
	"context"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/monitoring"
)

// handlePresence reopens or closes the link when the reader's device node
// appears or disappears. A reader that appears is brought back into the
// configured region, the current time and the session's mode before the
// client hears about it.
func (d *Dispatcher) handlePresence(ctx context.Context, ev events.Event) {
	present, err := events.As[bool](ev)
	if err != nil {
		monitoring.Warnf("bad presence event: %v", err)
		return
	}
	state := events.ReaderState{Present: present}
	if present {
		lctx := d.deps.LinkContext
		if lctx == nil {
			lctx = ctx
		}
		if err := d.deps.Link.Open(lctx); err != nil {
			monitoring.Errorf("reader appeared but could not be opened: %v", err)
			state.Present = false
		} else {
			if err := d.deps.Device.Reinitialise(d.deps.Region, d.clock.Now()); err != nil {
				monitoring.Warnf("reader reinitialisation: %v", err)
			}
			state.ID = d.deps.Link.IDString(ctx)
		}
	} else if err := d.deps.Link.Close(); err != nil {
		monitoring.Warnf("closing vanished reader: %v", err)
	}
	monitoring.Infof("reader present=%t %s", state.Present, state.ID)
	d.reply(events.KindReaderState, state)
}

func (d *Dispatcher) handleLogin(ctx context.Context, ev events.Event) {
	creds, err := events.As[events.Credentials](ev)
	if err != nil || d.deps.Auth == nil {
		d.reply(events.KindLoginResult, events.LoginResult{Message: "login unavailable"})
		return
	}
	ok, msg := d.deps.Auth.Login(ctx, creds.Username, creds.Password)
	res := events.LoginResult{OK: ok, Message: msg}
	if ok {
		res.Username = creds.Username
	}
	d.reply(events.KindLoginResult, res)
}

func (d *Dispatcher) handleStockInfo(ctx context.Context, ev events.Event) {
	req, err := events.As[events.StockInfoRequest](ev)
	if err != nil {
		d.reply(events.KindStockInfo, events.StockInfo{Message: err.Error()})
		return
	}
	res := events.StockInfo{OK: true}
	if req.Refresh {
		res.OK, res.Message = d.deps.Stock.UpdateFromRemote(ctx)
	}
	items, err := d.deps.Stock.Items(ctx)
	if err != nil {
		monitoring.Errorf("read stock items: %v", err)
		res.OK, res.Message = false, err.Error()
	}
	res.Items = items
	d.reply(events.KindStockInfo, res)
}

func (d *Dispatcher) handleSetLocation(ctx context.Context, ev events.Event) {
	obs, err := events.As[events.LocationObservation](ev)
	if err != nil {
		monitoring.Warnf("bad location observation: %v", err)
		return
	}
	if err := d.deps.Stock.RecordLocationObservation(ctx, obs.LocationID, obs.Items); err != nil {
		monitoring.Errorf("record location %s: %v", obs.LocationID, err)
	}
}

func (d *Dispatcher) handleLocMut(ctx context.Context, ev events.Event) {
	req, err := events.As[events.LocMutRequest](ev)
	if err != nil {
		monitoring.Warnf("bad location summary request: %v", err)
		return
	}
	hash, data, err := d.deps.Stock.LocationChangeSummary(ctx, req.Hash)
	if err != nil {
		monitoring.Errorf("location change summary: %v", err)
		return
	}
	d.reply(events.KindLocMutResult, events.LocMutResult{Hash: hash, Changed: data != nil, Data: data})
}
