// Package dsa provides the prefix index behind model id resolution.
// Uses go-radix for a compressed prefix tree (radix tree).
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie wraps go-radix for typed values. Model ids share long vendor
// prefixes (claude-, gemini-, gpt-) which the radix tree stores once.
//
// Lookups and prefix walks are O(k) in the key length. Not safe for
// concurrent use; callers hold their own lock.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates a new empty radix tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert adds or replaces a key.
func (t *Trie[V]) Insert(key string, value V) {
	t.tree.Insert(key, value)
}

// Search looks up a key.
func (t *Trie[V]) Search(key string) (V, bool) {
	val, found := t.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := val.(V)
	return v, ok
}

// StartsWith returns the keys beginning with prefix in lexical order.
// At most limit keys are returned when limit > 0.
func (t *Trie[V]) StartsWith(prefix string, limit int) []string {
	var keys []string
	t.tree.WalkPrefix(prefix, func(k string, _ interface{}) bool {
		keys = append(keys, k)
		return limit > 0 && len(keys) >= limit
	})
	return keys
}

// Delete removes a key and reports whether it was present.
func (t *Trie[V]) Delete(key string) bool {
	_, deleted := t.tree.Delete(key)
	return deleted
}

// Size returns the number of keys.
func (t *Trie[V]) Size() int {
	return t.tree.Len()
}

// Clear removes all keys.
func (t *Trie[V]) Clear() {
	t.tree = radix.New()
}
