package store

import (
	"fmt"
	"strings"

	"forkchat/pkg/ids"
	"forkchat/pkg/logger"
	"forkchat/pkg/models"
	"forkchat/pkg/resolve"
	"forkchat/pkg/telemetry"
)

// NewThreadOptions selects between the two thread-creation variants. When
// SeedText is set the thread is quick-created around a synthetic seed
// message; otherwise Name/Description describe an explicitly named thread.
type NewThreadOptions struct {
	SeedText       string
	Name           string
	Description    string
	ParentThreadID string
	AsMainThread   bool
}

// ThreadUpdate is a partial update of thread display metadata.
type ThreadUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsVisible   *bool   `json:"isVisible,omitempty"`
}

func (s *Store) fail(op string, err error) error {
	telemetry.MutationErrorsTotal.WithLabelValues(op).Inc()
	return err
}

func (s *Store) done(op string) {
	telemetry.MutationsTotal.WithLabelValues(op).Inc()
}

// newThreadLocked allocates a thread and wires the parent edge: child level,
// inherited context membership, and the parent's denormalized SubThreads
// list are all maintained here and nowhere else.
func (s *Store) newThreadLocked(name, description, parentID string, isMain bool) *models.Thread {
	t := &models.Thread{
		ID:           ids.NewThreadID(),
		Name:         name,
		Description:  description,
		MessageIDs:   []string{},
		IsVisible:    true,
		IsMainThread: isMain,
	}
	if parent, ok := s.threads[parentID]; ok && parentID != "" {
		t.ParentThreadID = parent.ID
		t.Level = parent.Level + 1
		t.ContextThreadIDs = []string{parent.ID}
		parent.SubThreads = append(parent.SubThreads, t.ID)
	}
	s.threads[t.ID] = t
	return t
}

// CreateThread creates a thread per the given options and returns its ID.
// A non-empty ParentThreadID must reference an existing thread; the child
// automatically inherits the parent as context.
func (s *Store) CreateThread(opts NewThreadOptions) (string, error) {
	const op = "thread.create"
	s.mu.Lock()
	if opts.ParentThreadID != "" {
		if _, ok := s.threads[opts.ParentThreadID]; !ok {
			s.mu.Unlock()
			return "", s.fail(op, fmt.Errorf("create thread: parent %s: %w", opts.ParentThreadID, models.ErrNotFound))
		}
	}
	name := opts.Name
	if name == "" && opts.SeedText != "" {
		name = snippet(opts.SeedText, 40)
	}
	isMain := opts.AsMainThread && opts.ParentThreadID == ""
	t := s.newThreadLocked(name, opts.Description, opts.ParentThreadID, isMain)
	if opts.SeedText != "" {
		m := &models.Message{
			ID:        ids.NewMessageID(),
			Content:   opts.SeedText,
			Role:      models.RoleUser,
			Timestamp: s.now(),
			ThreadID:  t.ID,
			IsSeed:    true,
		}
		s.messages[m.ID] = m
		t.MessageIDs = append(t.MessageIDs, m.ID)
	}
	id := t.ID
	s.mu.Unlock()
	s.done(op)
	logger.Info("thread_created", "id", id, "parent", opts.ParentThreadID, "seeded", opts.SeedText != "")
	s.notify()
	return id, nil
}

// AddMessage appends a new message to the thread and returns its ID.
func (s *Store) AddMessage(threadID, content string, role models.Role) (string, error) {
	const op = "message.create"
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return "", s.fail(op, fmt.Errorf("add message: thread %s: %w", threadID, models.ErrNotFound))
	}
	m := &models.Message{
		ID:        ids.NewMessageID(),
		Content:   content,
		Role:      role,
		Timestamp: s.now(),
		ThreadID:  threadID,
	}
	s.messages[m.ID] = m
	t.MessageIDs = append(t.MessageIDs, m.ID)
	id := m.ID
	s.mu.Unlock()
	s.done(op)
	logger.Info("message_added", "thread", threadID, "id", id, "role", string(role))
	s.notify()
	return id, nil
}

// EditMessage replaces a message's content, recording the previous content
// in its edit history. The creation timestamp is untouched.
func (s *Store) EditMessage(messageID, newContent string) error {
	const op = "message.update"
	s.mu.Lock()
	m, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("edit message %s: %w", messageID, models.ErrNotFound))
	}
	m.EditHistory = append(m.EditHistory, m.Content)
	m.Content = newContent
	m.IsEdited = true
	s.mu.Unlock()
	s.done(op)
	logger.Info("message_edited", "id", messageID)
	s.notify()
	return nil
}

// DeleteMessage removes a message from the store and from its owning
// thread. Threads previously forked from it are left intact; their ForkIDs
// entries simply dangle.
func (s *Store) DeleteMessage(messageID string) error {
	const op = "message.delete"
	s.mu.Lock()
	m, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("delete message %s: %w", messageID, models.ErrNotFound))
	}
	if t, ok := s.threads[m.ThreadID]; ok {
		t.MessageIDs = removeString(t.MessageIDs, messageID)
	}
	delete(s.messages, messageID)
	s.mu.Unlock()
	s.done(op)
	logger.Info("message_deleted", "id", messageID)
	s.notify()
	return nil
}

// DeleteThread removes a thread, all its messages, and recursively every
// descendant thread with their messages. The main thread cannot be deleted.
func (s *Store) DeleteThread(threadID string) error {
	const op = "thread.delete"
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("delete thread %s: %w", threadID, models.ErrNotFound))
	}
	if t.IsMainThread {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("delete thread %s: main thread: %w", threadID, models.ErrInvalidState))
	}

	doomed := []*models.Thread{t}
	doomed = append(doomed, resolve.AllDescendants(s.threads, threadID)...)

	removedMsgs := 0
	for _, d := range doomed {
		for _, mid := range d.MessageIDs {
			delete(s.messages, mid)
			removedMsgs++
		}
		// drop the fork back-reference when the source message survives
		if d.RootMessageID != "" {
			if src, ok := s.messages[d.RootMessageID]; ok {
				src.ForkIDs = removeString(src.ForkIDs, d.ID)
			}
		}
		delete(s.threads, d.ID)
	}
	if parent, ok := s.threads[t.ParentThreadID]; ok {
		parent.SubThreads = removeString(parent.SubThreads, threadID)
	}
	s.mu.Unlock()
	s.done(op)
	logger.Info("thread_deleted", "id", threadID, "threads_removed", len(doomed), "messages_removed", removedMsgs)
	s.notify()
	return nil
}

// ForkMessage spawns a new thread anchored to the given message. Forks
// behave exactly like subthreads: the new thread is a child of the message's
// owning thread and inherits it as context.
func (s *Store) ForkMessage(messageID, name string) (string, error) {
	const op = "thread.fork"
	s.mu.Lock()
	m, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return "", s.fail(op, fmt.Errorf("fork message %s: %w", messageID, models.ErrNotFound))
	}
	if _, ok := s.threads[m.ThreadID]; !ok {
		s.mu.Unlock()
		return "", s.fail(op, fmt.Errorf("fork message %s: owning thread %s: %w", messageID, m.ThreadID, models.ErrNotFound))
	}
	if name == "" {
		name = "Fork: " + snippet(m.Content, 30)
	}
	t := s.newThreadLocked(name, "", m.ThreadID, false)
	t.RootMessageID = messageID
	m.ForkIDs = append(m.ForkIDs, t.ID)
	id := t.ID
	s.mu.Unlock()
	s.done(op)
	logger.Info("message_forked", "message", messageID, "thread", id)
	s.notify()
	return id, nil
}

// AddContextThread pulls another thread's messages into threadID's context.
func (s *Store) AddContextThread(threadID, contextThreadID string) error {
	const op = "context.thread.add"
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("thread %s: %w", threadID, models.ErrNotFound))
	}
	if _, ok := s.threads[contextThreadID]; !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("context thread %s: %w", contextThreadID, models.ErrNotFound))
	}
	if contextThreadID == threadID {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("thread %s cannot reference itself as context: %w", threadID, models.ErrInvalidState))
	}
	if !contains(t.ContextThreadIDs, contextThreadID) {
		t.ContextThreadIDs = append(t.ContextThreadIDs, contextThreadID)
	}
	s.mu.Unlock()
	s.done(op)
	s.notify()
	return nil
}

// RemoveContextThread removes a context-thread membership.
func (s *Store) RemoveContextThread(threadID, contextThreadID string) error {
	const op = "context.thread.remove"
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("thread %s: %w", threadID, models.ErrNotFound))
	}
	t.ContextThreadIDs = removeString(t.ContextThreadIDs, contextThreadID)
	s.mu.Unlock()
	s.done(op)
	s.notify()
	return nil
}

// AddContextMessage pins an individual message (from any thread) into
// threadID's context, clearing any standing exclusion for it.
func (s *Store) AddContextMessage(threadID, messageID string) error {
	const op = "context.message.add"
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("thread %s: %w", threadID, models.ErrNotFound))
	}
	if _, ok := s.messages[messageID]; !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound))
	}
	t.ExcludedMessageIDs = removeString(t.ExcludedMessageIDs, messageID)
	if !contains(t.ContextMessageIDs, messageID) {
		t.ContextMessageIDs = append(t.ContextMessageIDs, messageID)
	}
	s.mu.Unlock()
	s.done(op)
	s.notify()
	return nil
}

// RemoveContextMessage unpins a message from threadID's context.
func (s *Store) RemoveContextMessage(threadID, messageID string) error {
	const op = "context.message.remove"
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("thread %s: %w", threadID, models.ErrNotFound))
	}
	t.ContextMessageIDs = removeString(t.ContextMessageIDs, messageID)
	s.mu.Unlock()
	s.done(op)
	s.notify()
	return nil
}

// ExcludeMessage removes a message from threadID's resolved context no
// matter how it would otherwise be included, clearing any standing pin.
func (s *Store) ExcludeMessage(threadID, messageID string) error {
	const op = "context.message.exclude"
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("thread %s: %w", threadID, models.ErrNotFound))
	}
	if _, ok := s.messages[messageID]; !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound))
	}
	t.ContextMessageIDs = removeString(t.ContextMessageIDs, messageID)
	if !contains(t.ExcludedMessageIDs, messageID) {
		t.ExcludedMessageIDs = append(t.ExcludedMessageIDs, messageID)
	}
	s.mu.Unlock()
	s.done(op)
	s.notify()
	return nil
}

// IncludeMessage lifts a standing exclusion for a message in threadID.
func (s *Store) IncludeMessage(threadID, messageID string) error {
	const op = "context.message.include"
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("thread %s: %w", threadID, models.ErrNotFound))
	}
	t.ExcludedMessageIDs = removeString(t.ExcludedMessageIDs, messageID)
	s.mu.Unlock()
	s.done(op)
	s.notify()
	return nil
}

// UpdateThread applies a partial update of thread display metadata.
func (s *Store) UpdateThread(threadID string, upd ThreadUpdate) error {
	const op = "thread.update"
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return s.fail(op, fmt.Errorf("update thread %s: %w", threadID, models.ErrNotFound))
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.IsVisible != nil {
		t.IsVisible = *upd.IsVisible
	}
	s.mu.Unlock()
	s.done(op)
	s.notify()
	return nil
}

func removeString(in []string, v string) []string {
	out := in[:0]
	for _, s := range in {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func contains(in []string, v string) bool {
	for _, s := range in {
		if s == v {
			return true
		}
	}
	return false
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(strings.Join(strings.Fields(s), " "))
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}
