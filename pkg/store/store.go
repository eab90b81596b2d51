package store

import (
	"fmt"
	"sync"
	"time"

	"forkchat/pkg/logger"
	"forkchat/pkg/models"
	"forkchat/pkg/resolve"
	"forkchat/pkg/telemetry"
)

// Store is the single source of truth for threads, messages, and settings.
// Every mutation runs under one mutex and sees the latest committed state,
// so a burst of operations issued together can never act on stale reads.
// Accessors hand out deep copies; callers never see internal maps.
type Store struct {
	mu       sync.Mutex
	threads  map[string]*models.Thread
	messages map[string]*models.Message
	settings models.Settings
	now      func() time.Time
	dirty    func()
}

// Option customizes a Store at construction.
type Option func(*Store)

// WithClock overrides the timestamp source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store carrying the given settings.
func New(settings models.Settings, opts ...Option) *Store {
	s := &Store{
		threads:  make(map[string]*models.Thread),
		messages: make(map[string]*models.Message),
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnDirty registers a callback fired after every successful mutation, once
// the store lock is released. The persistence gateway uses it to schedule
// debounced saves.
func (s *Store) OnDirty(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = fn
}

func (s *Store) notify() {
	if s.dirty != nil {
		s.dirty()
	}
}

// Bootstrap ensures a main thread exists and returns its ID.
func (s *Store) Bootstrap(name string) string {
	s.mu.Lock()
	for _, t := range s.threads {
		if t.IsMainThread {
			id := t.ID
			s.mu.Unlock()
			return id
		}
	}
	t := s.newThreadLocked(name, "", "", true)
	s.mu.Unlock()
	logger.Info("main_thread_created", "id", t.ID)
	s.notify()
	return t.ID
}

// MainThreadID returns the distinguished main thread's ID, or empty when the
// store has not been bootstrapped.
func (s *Store) MainThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.threads {
		if t.IsMainThread {
			return t.ID
		}
	}
	return ""
}

// Thread returns a copy of the thread with the given ID.
func (s *Store) Thread(id string) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, models.ErrNotFound)
	}
	return t.Clone(), nil
}

// Message returns a copy of the message with the given ID.
func (s *Store) Message(id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	return m.Clone(), nil
}

// Threads returns copies of all threads.
func (s *Store) Threads() []*models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.Clone())
	}
	return out
}

// ThreadMessages returns copies of a thread's own messages in order.
func (s *Store) ThreadMessages(threadID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, models.ErrNotFound)
	}
	out := make([]models.Message, 0, len(t.MessageIDs))
	for _, id := range t.MessageIDs {
		if m, ok := s.messages[id]; ok {
			out = append(out, *m.Clone())
		}
	}
	return out, nil
}

// Settings returns the current settings.
func (s *Store) Settings() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings replaces the settings wholesale.
func (s *Store) UpdateSettings(settings models.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	telemetry.MutationsTotal.WithLabelValues("settings.update").Inc()
	s.notify()
}

// View returns deep copies of the thread and message maps for read-only
// consumers such as the context resolver.
func (s *Store) View() (map[string]*models.Thread, map[string]*models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneMapsLocked()
}

func (s *Store) cloneMapsLocked() (map[string]*models.Thread, map[string]*models.Message) {
	threads := make(map[string]*models.Thread, len(s.threads))
	for id, t := range s.threads {
		threads[id] = t.Clone()
	}
	messages := make(map[string]*models.Message, len(s.messages))
	for id, m := range s.messages {
		messages[id] = m.Clone()
	}
	return threads, messages
}

// Snapshot captures the full store state for persistence.
func (s *Store) Snapshot() *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	threads, messages := s.cloneMapsLocked()
	return &models.Snapshot{
		Version:  models.SnapshotVersion,
		Threads:  threads,
		Messages: messages,
		Settings: s.settings,
	}
}

// ReplaceAll swaps the entire store contents for the given snapshot. Used
// by the load and import paths; the snapshot must already be validated and
// coerced by the persistence gateway.
func (s *Store) ReplaceAll(snap *models.Snapshot) {
	s.mu.Lock()
	s.threads = make(map[string]*models.Thread, len(snap.Threads))
	for id, t := range snap.Threads {
		s.threads[id] = t.Clone()
	}
	s.messages = make(map[string]*models.Message, len(snap.Messages))
	for id, m := range snap.Messages {
		s.messages[id] = m.Clone()
	}
	s.settings = snap.Settings
	s.mu.Unlock()
	telemetry.MutationsTotal.WithLabelValues("store.replace").Inc()
	logger.Info("store_replaced", "threads", len(snap.Threads), "messages", len(snap.Messages))
	s.notify()
}

// Reset clears all threads and messages, keeping settings.
func (s *Store) Reset() {
	s.mu.Lock()
	s.threads = make(map[string]*models.Thread)
	s.messages = make(map[string]*models.Message)
	s.mu.Unlock()
	telemetry.MutationsTotal.WithLabelValues("store.reset").Inc()
	s.notify()
}

// ResolveContext resolves the model context for threadID using the
// configured cap.
func (s *Store) ResolveContext(threadID string) ([]models.Message, error) {
	s.mu.Lock()
	threads, messages := s.cloneMapsLocked()
	max := s.settings.MaxContextMessages
	s.mu.Unlock()

	start := time.Now()
	out, err := resolve.Context(threads, messages, threadID, max)
	if err != nil {
		return nil, err
	}
	telemetry.ResolveSeconds.Observe(time.Since(start).Seconds())
	telemetry.ResolvedMessages.Observe(float64(len(out)))
	return out, nil
}

// HierarchyInfo describes a thread's position in the fork tree.
type HierarchyInfo struct {
	AncestorIDs   []string `json:"ancestorIds"`
	ChildIDs      []string `json:"childIds"`
	DescendantIDs []string `json:"descendantIds"`
	RootID        string   `json:"rootId"`
}

// Hierarchy returns ancestor, child, and descendant IDs for threadID.
func (s *Store) Hierarchy(threadID string) (*HierarchyInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, models.ErrNotFound)
	}
	info := &HierarchyInfo{AncestorIDs: resolve.AncestorThreadIDs(s.threads, threadID)}
	for _, c := range resolve.ChildThreads(s.threads, threadID) {
		info.ChildIDs = append(info.ChildIDs, c.ID)
	}
	for _, d := range resolve.AllDescendants(s.threads, threadID) {
		info.DescendantIDs = append(info.DescendantIDs, d.ID)
	}
	if r := resolve.RootThread(s.threads, threadID); r != nil {
		info.RootID = r.ID
	}
	return info, nil
}
