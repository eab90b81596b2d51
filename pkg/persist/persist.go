package persist

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/cockroachdb/pebble"
	"github.com/valyala/bytebufferpool"

	"forkchat/pkg/logger"
	"forkchat/pkg/models"
	"forkchat/pkg/telemetry"
)

const (
	snapshotKey   = "snapshot:current"
	exportVersion = "1.0"
)

// Gateway persists versioned store snapshots into a Pebble database. Saves
// are debounced so a burst of mutations becomes one write, and at most one
// write is in flight at a time.
type Gateway struct {
	db   *pebble.DB
	path string

	source func() *models.Snapshot

	mu        sync.Mutex
	debounced func(func())
	suspended bool

	// writeMu serializes actual disk writes.
	writeMu sync.Mutex
}

// Open opens (or creates) the Pebble database at path. interval is the
// debounce quiet period; zero selects the 1s default.
func Open(path string, interval time.Duration) (*Gateway, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	if interval <= 0 {
		interval = time.Second
	}
	logger.Info("pebble_opened", "path", path, "debounce", interval.String())
	return &Gateway{db: db, path: path, debounced: debounce.New(interval)}, nil
}

// Close flushes nothing further and closes the database.
func (g *Gateway) Close() error {
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	logger.Info("pebble_closed", "path", g.path)
	return err
}

// SetSource registers the snapshot provider consulted on every save.
func (g *Gateway) SetSource(fn func() *models.Snapshot) {
	g.source = fn
}

// Load returns the persisted snapshot, or nil when nothing is stored. A
// corrupt snapshot degrades to nil so the session starts empty instead of
// crashing; the parse failure is logged.
func (g *Gateway) Load() (*models.Snapshot, error) {
	v, closer, err := g.db.Get([]byte(snapshotKey))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	data := append([]byte(nil), v...)
	_ = closer.Close()

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Error("snapshot_parse_failed", "error", err)
		return nil, nil
	}
	normalize(&snap, time.Now().UTC())
	return &snap, nil
}

// Schedule requests a debounced save. Rapid successive calls coalesce into
// one write roughly one quiet interval after the last call.
func (g *Gateway) Schedule() {
	g.mu.Lock()
	if g.suspended {
		g.mu.Unlock()
		return
	}
	d := g.debounced
	g.mu.Unlock()
	d(func() {
		if err := g.Save(); err != nil {
			logger.Error("debounced_save_failed", "error", err)
		}
	})
}

// Suspend stops debounced saves from reaching disk, for the duration of an
// import-replace. Resume re-enables them.
func (g *Gateway) Suspend() {
	g.mu.Lock()
	g.suspended = true
	g.mu.Unlock()
}

// Resume re-enables debounced saves.
func (g *Gateway) Resume() {
	g.mu.Lock()
	g.suspended = false
	g.mu.Unlock()
}

// Save writes the current snapshot immediately. Failures are reported but
// must not crash the session; callers log and retry via the next Schedule.
func (g *Gateway) Save() error {
	if g.source == nil {
		return fmt.Errorf("save snapshot: no source registered")
	}
	snap := g.source()
	snap.LastSaved = time.Now().UTC()

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(snap); err != nil {
		telemetry.SnapshotSaveErrorsTotal.Inc()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := g.db.Set([]byte(snapshotKey), buf.B, pebble.Sync); err != nil {
		telemetry.SnapshotSaveErrorsTotal.Inc()
		logger.Error("snapshot_save_failed", "error", err)
		return fmt.Errorf("write snapshot: %w", err)
	}
	telemetry.SnapshotSavesTotal.Inc()
	logger.Debug("snapshot_saved", "threads", len(snap.Threads), "messages", len(snap.Messages), "bytes", buf.Len())
	return nil
}

// Export serializes the current snapshot with export metadata attached.
func (g *Gateway) Export() ([]byte, error) {
	if g.source == nil {
		return nil, fmt.Errorf("export snapshot: no source registered")
	}
	snap := g.source()
	now := time.Now().UTC()
	snap.LastSaved = now
	snap.ExportedAt = &now
	snap.ExportVersion = exportVersion
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return b, nil
}

// Import validates and decodes an exported snapshot. The payload must carry
// at least "threads" and "messages" keys; everything else is defaulted.
// Import does not touch the store: the caller replaces in-memory state with
// the returned snapshot and persists it, keeping prior state intact when
// validation fails.
func (g *Gateway) Import(data []byte) (*models.Snapshot, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse import: %w: %v", models.ErrSerialization, err)
	}
	for _, key := range []string{"threads", "messages"} {
		if _, ok := probe[key]; !ok {
			return nil, fmt.Errorf("import missing %q: %w", key, models.ErrSerialization)
		}
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode import: %w: %v", models.ErrSerialization, err)
	}
	normalize(&snap, time.Now().UTC())
	snap.ExportedAt = nil
	snap.ExportVersion = ""
	return &snap, nil
}

// Clear removes all persisted state. In-memory state is untouched; callers
// reset the store separately.
func (g *Gateway) Clear() error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if err := g.db.Delete([]byte(snapshotKey), pebble.Sync); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	if err := g.deleteCheckpointsLocked(); err != nil {
		return err
	}
	logger.Info("persisted_state_cleared")
	return nil
}

// normalize coerces message timestamps and migrates older snapshot versions
// forward by backfilling defaulted settings fields.
func normalize(snap *models.Snapshot, now time.Time) {
	if snap.Threads == nil {
		snap.Threads = map[string]*models.Thread{}
	}
	if snap.Messages == nil {
		snap.Messages = map[string]*models.Message{}
	}
	for _, m := range snap.Messages {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
	}
	if snap.Version != models.SnapshotVersion {
		def := models.DefaultSettings()
		if snap.Settings.Temperature == 0 {
			snap.Settings.Temperature = def.Temperature
		}
		if snap.Settings.MaxTokens == 0 {
			snap.Settings.MaxTokens = def.MaxTokens
		}
		logger.Info("snapshot_migrated", "from", snap.Version, "to", models.SnapshotVersion)
		snap.Version = models.SnapshotVersion
	}
}
