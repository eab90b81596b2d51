package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/valyala/bytebufferpool"

	"forkchat/pkg/logger"
)

const checkpointPrefix = "checkpoint:"

// checkpointKey yields keys that sort chronologically under the prefix.
func checkpointKey(ts time.Time) string {
	return fmt.Sprintf("%s%020d", checkpointPrefix, ts.UnixNano())
}

// WriteCheckpoint stores the current snapshot under a timestamped
// checkpoint key, independent of the live snapshot slot.
func (g *Gateway) WriteCheckpoint() (string, error) {
	if g.source == nil {
		return "", fmt.Errorf("checkpoint: no source registered")
	}
	snap := g.source()
	now := time.Now().UTC()
	snap.LastSaved = now

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(snap); err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	key := checkpointKey(now)
	if err := g.db.Set([]byte(key), buf.B, pebble.Sync); err != nil {
		logger.Error("checkpoint_write_failed", "key", key, "error", err)
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	logger.Info("checkpoint_written", "key", key, "bytes", buf.Len())
	return key, nil
}

// ListCheckpoints returns all checkpoint keys in chronological order.
func (g *Gateway) ListCheckpoints() ([]string, error) {
	iter, err := g.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	prefix := []byte(checkpointPrefix)
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	sort.Strings(out)
	return out, iter.Error()
}

// PruneCheckpoints deletes all but the most recent retain checkpoints.
func (g *Gateway) PruneCheckpoints(retain int) error {
	if retain < 0 {
		retain = 0
	}
	keys, err := g.ListCheckpoints()
	if err != nil {
		return err
	}
	if len(keys) <= retain {
		return nil
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	doomed := keys[:len(keys)-retain]
	for _, k := range doomed {
		if err := g.db.Delete([]byte(k), pebble.NoSync); err != nil {
			return fmt.Errorf("prune checkpoint %s: %w", k, err)
		}
	}
	logger.Info("checkpoints_pruned", "removed", len(doomed), "retained", retain)
	return nil
}

func (g *Gateway) deleteCheckpointsLocked() error {
	iter, err := g.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	prefix := []byte(checkpointPrefix)
	var keys [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Close(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := g.db.Delete(k, pebble.NoSync); err != nil {
			return fmt.Errorf("delete checkpoint %s: %w", string(k), err)
		}
	}
	return nil
}
