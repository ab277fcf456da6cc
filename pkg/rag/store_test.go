package rag

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

// fakeEmbedder produces a deterministic bag-of-words vector over a fixed
// vocabulary, good enough to exercise ranking without a real model.
type fakeEmbedder struct {
	vocab []string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vocab: []string{"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog", "lorem", "ipsum"}}
}

func (f *fakeEmbedder) Embeddings(_ context.Context, _ string, prompt string) ([]float32, error) {
	words := strings.Fields(strings.ToLower(prompt))
	vec := make([]float32, len(f.vocab))
	for _, w := range words {
		for i, v := range f.vocab {
			if w == v {
				vec[i]++
			}
		}
	}
	return vec, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "rag.db")
	s, err := Open(dbPath, newFakeEmbedder(), "test-model")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestStoreAddAndSearchRanksByRelevance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddDocument(ctx, "The quick brown fox", "note", "", "doc1", ""); err != nil {
		t.Fatalf("AddDocument 1: %v", err)
	}
	if _, err := s.AddDocument(ctx, "Jumps over the lazy dog", "note", "", "doc2", ""); err != nil {
		t.Fatalf("AddDocument 2: %v", err)
	}
	if _, err := s.AddDocument(ctx, "Lorem ipsum dolor sit amet", "note", "", "doc3", ""); err != nil {
		t.Fatalf("AddDocument 3: %v", err)
	}

	results, err := s.Search(ctx, "brown fox", 2, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "doc1" {
		t.Fatalf("expected doc1 to rank first, got %q", results[0].Title)
	}
	for _, r := range results {
		if r.Similarity < -1 || r.Similarity > 1 {
			t.Fatalf("similarity out of range: %v", r.Similarity)
		}
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Fatalf("expected strictly descending similarity ordering")
	}
}

func TestStoreSearchExcludesOtherModelRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.AddDocument(ctx, "the quick brown fox", "note", "", "doc1", "")

	if err := s.SetEmbeddingModel("other-model"); err != nil {
		t.Fatalf("SetEmbeddingModel: %v", err)
	}

	results, err := s.Search(ctx, "brown fox", 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results once embedding model changed, got %d", len(results))
	}
}

func TestStoreDeleteDocumentCascadesEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.AddDocument(ctx, "the quick brown fox", "note", "", "doc1", "")

	if err := s.DeleteDocument(id); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	var count int64
	s.db.Model(&Embedding{}).Where("document_id = ?", id).Count(&count)
	if count != 0 {
		t.Fatalf("expected cascade delete of embeddings, found %d remaining", count)
	}
}
