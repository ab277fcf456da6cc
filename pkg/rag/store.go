package rag

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/handy-ai/handy-engine/pkg/herr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Document is the GORM model for a source document, per spec.md §4.9.
type Document struct {
	ID         string `gorm:"primaryKey"`
	Content    string
	SourceType string
	SourceID   string
	Title      string
	Metadata   string
	CreatedAt  time.Time
	Embeddings []Embedding `gorm:"constraint:OnDelete:CASCADE;"`
}

// Embedding is the GORM model for one chunk's vector, cascade-owned by
// its Document.
type Embedding struct {
	ID         string `gorm:"primaryKey"`
	DocumentID string `gorm:"index:idx_embeddings_document"`
	ChunkIndex int
	ChunkText  string
	Vector     []byte
	Dimensions int
	Model      string
	CreatedAt  time.Time
}

// ragSetting is the key-value settings table (embedding_model,
// chunk_size, chunk_overlap, top_k).
type ragSetting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// Embedder generates an embedding vector for a chunk of text, satisfied
// by llmclient.OllamaClient.
type Embedder interface {
	Embeddings(ctx context.Context, model, prompt string) ([]float32, error)
}

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	DocumentID string
	ChunkText  string
	Similarity float64
	Title      string
	SourceType string
	SourceID   string
}

// Store is the SQLite-backed document + embedding store.
type Store struct {
	db       *gorm.DB
	embedder Embedder

	mu             sync.Mutex
	embeddingModel string
}

// Open opens (creating if necessary) a SQLite database at dbPath and
// auto-migrates the schema.
func Open(dbPath string, embedder Embedder, defaultEmbeddingModel string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, herr.Wrap(herr.Filesystem, "opening RAG database", err)
	}
	if err := db.AutoMigrate(&Document{}, &Embedding{}, &ragSetting{}); err != nil {
		return nil, herr.Wrap(herr.Filesystem, "migrating RAG schema", err)
	}

	s := &Store{db: db, embedder: embedder}

	var row ragSetting
	if err := db.Where("key = ?", "embedding_model").First(&row).Error; err == nil {
		s.embeddingModel = row.Value
	} else {
		s.embeddingModel = defaultEmbeddingModel
		db.Create(&ragSetting{Key: "embedding_model", Value: defaultEmbeddingModel})
		db.Create(&ragSetting{Key: "chunk_size", Value: "500"})
		db.Create(&ragSetting{Key: "chunk_overlap", Value: "50"})
		db.Create(&ragSetting{Key: "top_k", Value: "3"})
	}

	return s, nil
}

// EmbeddingModel returns the currently configured embedding model.
func (s *Store) EmbeddingModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embeddingModel
}

// SetEmbeddingModel updates the configured embedding model. Existing
// embeddings from other models remain in the database but are excluded
// from future searches (invariant R1).
func (s *Store) SetEmbeddingModel(model string) error {
	s.mu.Lock()
	s.embeddingModel = model
	s.mu.Unlock()
	return s.db.Save(&ragSetting{Key: "embedding_model", Value: model}).Error
}

// AddDocument inserts a document and indexes it into chunks +
// embeddings.
func (s *Store) AddDocument(ctx context.Context, content, sourceType, sourceID, title, metadata string) (string, error) {
	doc := Document{
		ID:         uuid.NewString(),
		Content:    content,
		SourceType: sourceType,
		SourceID:   sourceID,
		Title:      title,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}
	if err := s.db.Create(&doc).Error; err != nil {
		return "", herr.Wrap(herr.Filesystem, "inserting document", err)
	}
	if err := s.indexDocument(ctx, &doc); err != nil {
		return doc.ID, err
	}
	return doc.ID, nil
}

func (s *Store) indexDocument(ctx context.Context, doc *Document) error {
	model := s.EmbeddingModel()
	chunks := ChunkText(doc.Content, defaultChunkSize, defaultChunkOverlap)

	for i, chunk := range chunks {
		vec, err := s.embedder.Embeddings(ctx, model, chunk)
		if err != nil {
			return herr.Wrap(herr.Network, "generating embedding", err)
		}
		emb := Embedding{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			ChunkText:  chunk,
			Vector:     VectorToBlob(vec),
			Dimensions: len(vec),
			Model:      model,
			CreatedAt:  time.Now(),
		}
		if err := s.db.Create(&emb).Error; err != nil {
			return herr.Wrap(herr.Filesystem, "inserting embedding", err)
		}
	}
	return nil
}

// DeleteDocument removes a document; its embeddings are removed via the
// FK cascade.
func (s *Store) DeleteDocument(id string) error {
	return s.db.Delete(&Document{}, "id = ?", id).Error
}

// Search generates a query embedding with the current model, restricts
// candidates to rows sharing that model, ranks by cosine similarity
// descending, and returns the top-K above similarityThreshold (0
// disables the filter).
func (s *Store) Search(ctx context.Context, query string, topK int, similarityThreshold float64) ([]SearchResult, error) {
	model := s.EmbeddingModel()
	queryVec, err := s.embedder.Embeddings(ctx, model, query)
	if err != nil {
		return nil, herr.ErrUnreachable.WithDetails(err.Error())
	}

	var rows []Embedding
	if err := s.db.Where("model = ?", model).Find(&rows).Error; err != nil {
		return nil, herr.Wrap(herr.Filesystem, "querying embeddings", err)
	}

	docTitles := map[string]Document{}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		sim := CosineSimilarity(queryVec, BlobToVector(row.Vector))
		if similarityThreshold > 0 && sim < similarityThreshold {
			continue
		}
		doc, ok := docTitles[row.DocumentID]
		if !ok {
			s.db.First(&doc, "id = ?", row.DocumentID)
			docTitles[row.DocumentID] = doc
		}
		results = append(results, SearchResult{
			DocumentID: row.DocumentID,
			ChunkText:  row.ChunkText,
			Similarity: sim,
			Title:      doc.Title,
			SourceType: doc.SourceType,
			SourceID:   doc.SourceID,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
