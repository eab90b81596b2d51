package models

// Thread is a named branch of conversation. Threads form a tree through
// ParentThreadID; the graph is acyclic because the parent is only ever set
// at creation time to an already existing thread.
type Thread struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// ParentThreadID defines the fork/hierarchy edge; empty for roots.
	ParentThreadID string `json:"parentThreadId,omitempty"`
	// RootMessageID is the message (in another thread) this thread was
	// forked from.
	RootMessageID string `json:"rootMessageId,omitempty"`
	// MessageIDs is the ordered list of messages owned by this thread.
	// Message bodies live in the message map; threads never embed copies.
	MessageIDs []string `json:"messageIds"`
	// ContextThreadIDs lists other threads whose messages are pulled into
	// this thread's context. For non-root threads the parent is a member by
	// construction; inheritance is represented as membership, not a rule.
	ContextThreadIDs []string `json:"contextThreadIds,omitempty"`
	// ContextMessageIDs pins individual messages (from any thread) into
	// this thread's context.
	ContextMessageIDs []string `json:"contextMessageIds,omitempty"`
	// ExcludedMessageIDs removes messages from this thread's resolved
	// context regardless of how they would otherwise be included.
	ExcludedMessageIDs []string `json:"excludedMessageIds,omitempty"`
	// Level is the depth in the fork tree, root = 0. Fixed at creation.
	Level        int  `json:"level"`
	IsVisible    bool `json:"isVisible"`
	IsMainThread bool `json:"isMainThread,omitempty"`
	// SubThreads is the denormalized list of direct children, maintained
	// only by store create/delete.
	SubThreads []string `json:"subThreads,omitempty"`
}

// Clone returns a deep copy of the thread.
func (t *Thread) Clone() *Thread {
	c := *t
	c.MessageIDs = append([]string(nil), t.MessageIDs...)
	c.ContextThreadIDs = append([]string(nil), t.ContextThreadIDs...)
	c.ContextMessageIDs = append([]string(nil), t.ContextMessageIDs...)
	c.ExcludedMessageIDs = append([]string(nil), t.ExcludedMessageIDs...)
	c.SubThreads = append([]string(nil), t.SubThreads...)
	return &c
}
