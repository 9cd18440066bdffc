// Package stock keeps the local copy of the remote inventory and the
// location changes recorded during stock taking.
package stock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stocky-devel/stocky/internal/db"
	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/httputil"
	"github.com/stocky-devel/stocky/internal/monitoring"
	"github.com/stocky-devel/stocky/internal/timeutil"
)

// ErrNoRemote is reported when a refresh is requested without a remote
// inventory URL.
var ErrNoRemote = errors.New("no remote inventory configured")

// Cache serves stock items and location changes from the local database and
// refreshes the stock list from the remote inventory on request.
type Cache struct {
	db     *db.DB
	client httputil.HTTPClient
	url    string
	clock  timeutil.Clock
}

// NewCache returns a cache over store. client and clock default to the real
// implementations when nil.
func NewCache(store *db.DB, client httputil.HTTPClient, remoteURL string, clock timeutil.Clock) *Cache {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Cache{db: store, client: client, url: remoteURL, clock: clock}
}

// Refresh fetches the remote stock list and replaces the local copy. The
// remote serves a JSON array of objects, each carrying an "id".
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	if c.url == "" {
		return 0, ErrNoRemote
	}
	var raw []json.RawMessage
	if err := httputil.GetJSON(ctx, c.client, c.url, &raw); err != nil {
		return 0, err
	}

	items := make([]db.StockItem, 0, len(raw))
	for i, r := range raw {
		id, err := itemID(r)
		if err != nil {
			return 0, fmt.Errorf("stock item %d: %w", i, err)
		}
		items = append(items, db.StockItem{ID: id, Data: r})
	}
	if err := c.db.ReplaceStockItems(ctx, items, c.clock.Now()); err != nil {
		return 0, fmt.Errorf("store stock items: %w", err)
	}
	return len(items), nil
}

func itemID(r json.RawMessage) (string, error) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(r, &probe); err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(probe.ID))
	if id == "" || id == "null" {
		return "", errors.New("missing id")
	}
	if strings.HasPrefix(id, `"`) {
		return strconv.Unquote(id)
	}
	return id, nil
}

// UpdateFromRemote refreshes the stock list, reporting the outcome as a
// message for the client.
func (c *Cache) UpdateFromRemote(ctx context.Context) (bool, string) {
	n, err := c.Refresh(ctx)
	if err != nil {
		monitoring.Warnf("stock refresh failed: %v", err)
		return false, fmt.Sprintf("stock refresh failed: %v", err)
	}
	monitoring.Infof("stock refreshed: %d items", n)
	return true, fmt.Sprintf("%d items", n)
}

// Items returns the local stock list.
func (c *Cache) Items(ctx context.Context) (any, error) {
	return c.db.StockItems(ctx)
}

// RecordLocationObservation stores what the client saw at a location.
func (c *Cache) RecordLocationObservation(ctx context.Context, locationID string, items []events.LocationItem) error {
	changes := make([]db.LocationChange, len(items))
	for i, it := range items {
		changes[i] = db.LocationChange{ItemID: it.ItemID, Opcode: it.Opcode}
	}
	return c.db.RecordLocationChanges(ctx, locationID, changes, c.clock.Now())
}

// LocationChangeSummary returns the hash of the current location changes
// and, unless clientHash already matches it, the changes themselves.
func (c *Cache) LocationChangeSummary(ctx context.Context, clientHash string) (string, any, error) {
	changes, err := c.db.LocationChanges(ctx)
	if err != nil {
		return "", nil, err
	}
	hash, err := SummaryHash(changes)
	if err != nil {
		return "", nil, err
	}
	if hash == clientHash {
		return hash, nil, nil
	}
	return hash, changes, nil
}

// SummaryHash is the hex sha256 of v's JSON encoding. Map keys are encoded
// in sorted order, so equal summaries hash equally.
func SummaryHash(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
