package dsa

import (
	"slices"
	"testing"
)

func TestTrieInsertSearchDelete(t *testing.T) {
	trie := NewTrie[int]()
	trie.Insert("claude-haiku-4.5", 1)
	trie.Insert("claude-sonnet-4.5", 2)
	trie.Insert("claude-haiku-4.5", 3)

	if trie.Size() != 2 {
		t.Errorf("Size = %d, want 2", trie.Size())
	}
	if v, ok := trie.Search("claude-haiku-4.5"); !ok || v != 3 {
		t.Errorf("Search = %d, %v", v, ok)
	}
	if _, ok := trie.Search("claude"); ok {
		t.Error("prefix should not match as a key")
	}
	if !trie.Delete("claude-haiku-4.5") || trie.Delete("claude-haiku-4.5") {
		t.Error("Delete should report presence once")
	}
}

func TestTrieStartsWith(t *testing.T) {
	trie := NewTrie[string]()
	for _, k := range []string{"gpt-5.2", "gemini-3-pro-preview", "gemini-3-flash-preview", "o3"} {
		trie.Insert(k, k)
	}

	tests := []struct {
		prefix string
		limit  int
		want   []string
	}{
		{"gemini", 0, []string{"gemini-3-flash-preview", "gemini-3-pro-preview"}},
		{"gemini", 1, []string{"gemini-3-flash-preview"}},
		{"g", 0, []string{"gemini-3-flash-preview", "gemini-3-pro-preview", "gpt-5.2"}},
		{"mistral", 0, nil},
	}
	for _, tt := range tests {
		got := trie.StartsWith(tt.prefix, tt.limit)
		if !slices.Equal(got, tt.want) {
			t.Errorf("StartsWith(%q, %d) = %v, want %v", tt.prefix, tt.limit, got, tt.want)
		}
	}

	trie.Clear()
	if trie.Size() != 0 {
		t.Errorf("Size after Clear = %d", trie.Size())
	}
}
