package resolve

import (
	"sort"

	"forkchat/pkg/models"
)

// Hierarchy queries are pure read-only derivations over the thread map.
// Relationships come from ParentThreadID pointers alone; the denormalized
// SubThreads lists are display metadata and are not consulted here.

// ChildThreads returns the direct children of parentID, ordered by ID for
// deterministic traversal.
func ChildThreads(threads map[string]*models.Thread, parentID string) []*models.Thread {
	var out []*models.Thread
	for _, t := range threads {
		if t.ParentThreadID == parentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParentThread returns the parent of threadID, or nil for roots and unknown
// threads.
func ParentThread(threads map[string]*models.Thread, threadID string) *models.Thread {
	t, ok := threads[threadID]
	if !ok || t.ParentThreadID == "" {
		return nil
	}
	return threads[t.ParentThreadID]
}

// RootThread walks ParentThreadID pointers to the top of the tree.
// Terminates because the graph is acyclic by construction.
func RootThread(threads map[string]*models.Thread, threadID string) *models.Thread {
	t, ok := threads[threadID]
	if !ok {
		return nil
	}
	for t.ParentThreadID != "" {
		p, ok := threads[t.ParentThreadID]
		if !ok {
			break
		}
		t = p
	}
	return t
}

// AllDescendants returns every transitive child of threadID as a flat
// pre-order list (each thread's children before their children).
func AllDescendants(threads map[string]*models.Thread, threadID string) []*models.Thread {
	var out []*models.Thread
	for _, c := range ChildThreads(threads, threadID) {
		out = append(out, c)
		out = append(out, AllDescendants(threads, c.ID)...)
	}
	return out
}

// IsAncestor reports whether candidateID appears on the parent chain of
// threadID.
func IsAncestor(threads map[string]*models.Thread, candidateID, threadID string) bool {
	t, ok := threads[threadID]
	if !ok {
		return false
	}
	for t.ParentThreadID != "" {
		if t.ParentThreadID == candidateID {
			return true
		}
		p, ok := threads[t.ParentThreadID]
		if !ok {
			return false
		}
		t = p
	}
	return false
}

// AncestorThreadIDs returns the parent chain of threadID ordered root-first,
// excluding threadID itself.
func AncestorThreadIDs(threads map[string]*models.Thread, threadID string) []string {
	t, ok := threads[threadID]
	if !ok {
		return nil
	}
	var chain []string
	for t.ParentThreadID != "" {
		p, ok := threads[t.ParentThreadID]
		if !ok {
			break
		}
		chain = append(chain, p.ID)
		t = p
	}
	// walked child-to-root; reverse to root-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
