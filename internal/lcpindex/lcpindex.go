// Package lcpindex implements the in-memory longest-common-block-prefix
// index: given a candidate fingerprint and model id, it returns the best
// existing Cache Entry sharing the longest block prefix, or none.
package lcpindex

import (
	"sort"
	"sync"
	"time"

	"github.com/dingausmwald/proxycache/internal/metastore"
)

// node is one position in a per-model trie keyed by block signatures. Every
// node on an entry's path holds that entry, not just the leaf, so a lookup
// that diverges mid-fingerprint can still return candidates at the deepest
// node it reached.
type node struct {
	children map[uint64]*node
	entries  map[string]*metastore.Entry // keyed by SaveID
}

func newNode() *node {
	return &node{children: make(map[uint64]*node), entries: make(map[string]*metastore.Entry)}
}

// Index is a reader-writer-locked collection of per-model tries.
type Index struct {
	mu    sync.RWMutex
	roots map[string]*node // keyed by model id
}

func New() *Index {
	return &Index{roots: make(map[string]*node)}
}

// Candidate is one match result from Lookup.
type Candidate struct {
	Entry      metastore.Entry
	MatchedLen int // number of blocks matched
}

// Lookup walks the trie for model along signatures until divergence and
// returns every entry reachable at the deepest node, sorted by matched
// length descending, then by LastUsedAt descending.
func (idx *Index) Lookup(model string, signatures []uint64) []Candidate {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	root, ok := idx.roots[model]
	if !ok || len(signatures) == 0 {
		return nil
	}

	cur := root
	matched := 0
	for _, sig := range signatures {
		next, ok := cur.children[sig]
		if !ok {
			break
		}
		cur = next
		matched++
	}
	if matched == 0 || len(cur.entries) == 0 {
		return nil
	}

	out := make([]Candidate, 0, len(cur.entries))
	for _, e := range cur.entries {
		out = append(out, Candidate{Entry: *e, MatchedLen: matched})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Entry.LastUsedAt.After(out[j].Entry.LastUsedAt)
	})
	return out
}

// Insert adds entry to the trie for its model, registering it on every node
// along its signature path. If an entry with the same SaveID already
// exists, it is removed first so the trie never holds stale path membership
// for a replaced entry.
func (idx *Index) Insert(entry metastore.Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(entry.Model, entry.SaveID)

	root, ok := idx.roots[entry.Model]
	if !ok {
		root = newNode()
		idx.roots[entry.Model] = root
	}

	stored := entry
	cur := root
	cur.entries[entry.SaveID] = &stored
	for _, sig := range entry.Signatures {
		next, ok := cur.children[sig]
		if !ok {
			next = newNode()
			cur.children[sig] = next
		}
		next.entries[entry.SaveID] = &stored
		cur = next
	}
}

// Touch updates an entry's LastUsedAt in place. Every node on the entry's
// path shares the same *metastore.Entry pointer (set once in Insert), so
// mutating it through the root's map is visible from every node without a
// separate recursive walk.
func (idx *Index) Touch(model, saveID string, lastUsedAt time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	root, ok := idx.roots[model]
	if !ok {
		return
	}
	if e, ok := root.entries[saveID]; ok {
		e.LastUsedAt = lastUsedAt
	}
}

// Remove deletes entry's membership from every node on its path, and removes
// the model's root if it becomes empty.
func (idx *Index) Remove(model, saveID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(model, saveID)
}

func (idx *Index) removeLocked(model, saveID string) {
	root, ok := idx.roots[model]
	if !ok {
		return
	}
	delete(root.entries, saveID)
	removeFromChildren(root, saveID)
	if len(root.entries) == 0 && len(root.children) == 0 {
		delete(idx.roots, model)
	}
}

func removeFromChildren(n *node, saveID string) {
	for sig, child := range n.children {
		delete(child.entries, saveID)
		removeFromChildren(child, saveID)
		if len(child.entries) == 0 && len(child.children) == 0 {
			delete(n.children, sig)
		}
	}
}
