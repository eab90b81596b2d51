package resolve

import (
	"fmt"
	"sort"
	"time"

	"forkchat/pkg/models"
)

// Context computes the ordered, de-duplicated set of messages supplied to
// the language model for threadID's next turn.
//
// Candidates are collected from four sources in priority order: the thread's
// own messages, the full ancestor chain (root-first, walked independently of
// ContextThreadIDs), manually added context threads not already on the
// ancestor chain, and individually pinned messages. Exclusions are absolute,
// duplicates keep their first occurrence, and the final list is always
// chronological. When maxMessages is non-nil and the list overflows, a
// priority pass decides which messages survive; the survivors are re-sorted
// chronologically so priority never affects output order.
//
// The engine is pure: same maps and thread ID yield the same output, except
// that messages with zero timestamps sort as "now".
func Context(threads map[string]*models.Thread, messages map[string]*models.Message, threadID string, maxMessages *int) ([]models.Message, error) {
	th, ok := threads[threadID]
	if !ok {
		return nil, fmt.Errorf("resolve context: thread %s: %w", threadID, models.ErrNotFound)
	}

	excluded := make(map[string]bool, len(th.ExcludedMessageIDs))
	for _, id := range th.ExcludedMessageIDs {
		excluded[id] = true
	}
	seen := make(map[string]bool)

	// Seed messages are withheld from the thread's own turn until the
	// thread has at least one ordinary message of its own.
	hasOrdinary := false
	for _, id := range th.MessageIDs {
		if m := messages[id]; m != nil && !m.IsSeed {
			hasOrdinary = true
			break
		}
	}

	var own []*models.Message
	for _, id := range th.MessageIDs {
		m := messages[id]
		if m == nil || excluded[id] || seen[id] {
			continue
		}
		if m.IsSeed && !hasOrdinary {
			continue
		}
		seen[id] = true
		own = append(own, m)
	}

	ancChain := AncestorThreadIDs(threads, threadID)
	onChain := make(map[string]bool, len(ancChain))
	var inherited []*models.Message
	for _, aid := range ancChain {
		onChain[aid] = true
		at := threads[aid]
		if at == nil {
			continue
		}
		for _, id := range at.MessageIDs {
			m := messages[id]
			if m == nil || excluded[id] || seen[id] {
				continue
			}
			seen[id] = true
			inherited = append(inherited, m)
		}
	}

	var manual []*models.Message
	for _, cid := range th.ContextThreadIDs {
		if cid == threadID || onChain[cid] {
			continue
		}
		ct := threads[cid]
		if ct == nil {
			continue
		}
		for _, id := range ct.MessageIDs {
			m := messages[id]
			if m == nil || excluded[id] || seen[id] {
				continue
			}
			seen[id] = true
			manual = append(manual, m)
		}
	}

	var pinned []*models.Message
	for _, id := range th.ContextMessageIDs {
		m := messages[id]
		if m == nil || excluded[id] || seen[id] {
			continue
		}
		seen[id] = true
		pinned = append(pinned, m)
	}

	all := make([]*models.Message, 0, len(own)+len(inherited)+len(manual)+len(pinned))
	all = append(all, own...)
	all = append(all, inherited...)
	all = append(all, manual...)
	all = append(all, pinned...)

	now := time.Now()
	if maxMessages != nil && len(all) > *maxMessages {
		all = applyCap(own, pinned, inherited, manual, *maxMessages, now)
	}
	sortChrono(all, now)

	out := make([]models.Message, len(all))
	for i, m := range all {
		out[i] = *m.Clone()
	}
	return out, nil
}

// applyCap re-derives the context under a message budget. Own messages win
// over pinned, pinned over inherited, inherited over manual context; within
// every bucket the most recent messages survive. The own bucket itself is
// hard-capped, so the configured limit is never exceeded even when a thread
// outgrows it on its own.
func applyCap(own, pinned, inherited, manual []*models.Message, max int, now time.Time) []*models.Message {
	out := make([]*models.Message, 0, max)
	take := func(bucket []*models.Message) {
		room := max - len(out)
		if room <= 0 {
			return
		}
		b := append([]*models.Message(nil), bucket...)
		sortChrono(b, now)
		if len(b) > room {
			b = b[len(b)-room:]
		}
		out = append(out, b...)
	}
	take(own)
	take(pinned)
	take(inherited)
	take(manual)
	return out
}

// sortChrono sorts ascending by timestamp, treating zero timestamps as now.
// The sort is stable so equal timestamps keep collection order.
func sortChrono(msgs []*models.Message, now time.Time) {
	ts := func(m *models.Message) time.Time {
		if m.Timestamp.IsZero() {
			return now
		}
		return m.Timestamp
	}
	sort.SliceStable(msgs, func(i, j int) bool { return ts(msgs[i]).Before(ts(msgs[j])) })
}
