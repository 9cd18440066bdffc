package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/stocky-devel/stocky/internal/monitoring"
)

// ErrBadOpcode is returned for a location change whose opcode is not one of
// the Op constants.
var ErrBadOpcode = errors.New("unknown location change opcode")

// Location change opcodes.
const (
	OpMissing = "missing"
	OpFound   = "found"
	OpMoved   = "moved"
)

func validOpcode(op string) bool {
	switch op {
	case OpMissing, OpFound, OpMoved:
		return true
	}
	return false
}

type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return &DB{DB: db, path: path}, nil
}

// NewDB opens the database and brings its schema up to date.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// StockItem is one record of the remote inventory, kept as the JSON the
// remote supplied.
type StockItem struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// ReplaceStockItems swaps the whole stock table for items and stamps the
// refresh time.
func (db *DB) ReplaceStockItems(ctx context.Context, items []StockItem, at time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM stock_items"); err != nil {
		return fmt.Errorf("failed to clear stock items: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO stock_items (item_id, data) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, string(it.Data)); err != nil {
			return fmt.Errorf("failed to insert stock item %s: %w", it.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO stock_meta (key, value) VALUES ('refreshed_at', ?)",
		at.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

// StockItems returns every stock item ordered by id.
func (db *DB) StockItems(ctx context.Context) ([]StockItem, error) {
	rows, err := db.QueryContext(ctx, "SELECT item_id, data FROM stock_items ORDER BY item_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []StockItem{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		items = append(items, StockItem{ID: id, Data: json.RawMessage(data)})
	}
	return items, rows.Err()
}

// StockRefreshedAt reports when the stock table was last replaced. The zero
// time means never.
func (db *DB) StockRefreshedAt(ctx context.Context) (time.Time, error) {
	var v string
	err := db.QueryRowContext(ctx, "SELECT value FROM stock_meta WHERE key = 'refreshed_at'").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

// LocationChange is a stock item seen somewhere the inventory does not
// expect it.
type LocationChange struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	Opcode     string `json:"opcode"`
	RecordedAt int64  `json:"recorded_at"`
	Ignore     bool   `json:"ignore"`
}

// RecordLocationChanges stores changes for items found at locationID. An
// existing change for the same item is overwritten and its ignore flag
// cleared. Every opcode is checked before anything is written.
func (db *DB) RecordLocationChanges(ctx context.Context, locationID string, changes []LocationChange, at time.Time) error {
	if locationID == "" {
		return errors.New("location id is required")
	}
	for _, c := range changes {
		if c.ItemID == "" {
			return errors.New("item id is required")
		}
		if !validOpcode(c.Opcode) {
			return fmt.Errorf("%w %q for item %s", ErrBadOpcode, c.Opcode, c.ItemID)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, c := range changes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO locmutation (item_id, loc_id, opcode, recorded_at, ignored)
			VALUES (?, ?, ?, ?, 0)
			ON CONFLICT(item_id) DO UPDATE SET
				loc_id = excluded.loc_id,
				opcode = excluded.opcode,
				recorded_at = excluded.recorded_at,
				ignored = 0`,
			c.ItemID, locationID, c.Opcode, at.Unix()); err != nil {
			return fmt.Errorf("failed to record change for item %s: %w", c.ItemID, err)
		}
	}
	return tx.Commit()
}

// LocationChanges returns all recorded changes grouped by location.
func (db *DB) LocationChanges(ctx context.Context) (map[string][]LocationChange, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT item_id, loc_id, opcode, recorded_at, ignored
		FROM locmutation ORDER BY loc_id, item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]LocationChange{}
	for rows.Next() {
		var c LocationChange
		if err := rows.Scan(&c.ItemID, &c.LocationID, &c.Opcode, &c.RecordedAt, &c.Ignore); err != nil {
			return nil, err
		}
		out[c.LocationID] = append(out[c.LocationID], c)
	}
	return out, rows.Err()
}

// SetIgnore marks a recorded change as ignored or not.
func (db *DB) SetIgnore(ctx context.Context, itemID string, ignore bool) error {
	flag := 0
	if ignore {
		flag = 1
	}
	res, err := db.ExecContext(ctx, "UPDATE locmutation SET ignored = ? WHERE item_id = ?", flag, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no location change for item %s", itemID)
	}
	return nil
}

// CountLocationChanges returns the number of recorded changes.
func (db *DB) CountLocationChanges(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM locmutation").Scan(&n)
	return n, err
}

// ResetLocationChanges removes every recorded change.
func (db *DB) ResetLocationChanges(ctx context.Context) error {
	_, err := db.ExecContext(ctx, "DELETE FROM locmutation")
	return err
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Stocky DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))
	return nil
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupName := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), backupName)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Warnf("failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupName))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		monitoring.Errorf("failed to write backup: %v", err)
	}
}
