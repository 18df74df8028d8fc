package index

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/legaldoc/engine/internal/store"
	"github.com/legaldoc/engine/internal/utils"
)

// ErrUnavailable wraps any storage failure so callers can distinguish an
// unreachable index from an empty result set.
var ErrUnavailable = errors.New("vector index unavailable")

// Storage is the persistence surface the index needs. *store.SQLiteStore
// satisfies it.
type Storage interface {
	InsertChunks(ctx context.Context, documentID string, chunks []store.Chunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	ChunksByFilter(ctx context.Context, ownerID, documentID string) ([]store.Chunk, error)
}

// Filter narrows a search to one owner's corpus and optionally to a single
// document within it.
type Filter struct {
	OwnerID    string
	DocumentID string
}

// Result pairs a candidate chunk with its cosine similarity to the query.
type Result struct {
	Chunk store.Chunk
	Score float32
}

// Index ranks stored chunk embeddings by cosine similarity. It holds no
// in-memory state; every search scans the candidate set from storage.
type Index struct {
	storage Storage
	log     *zap.Logger
}

func New(storage Storage, log *zap.Logger) *Index {
	return &Index{storage: storage, log: log}
}

// Insert adds all of a document's chunk vectors in one atomic operation.
func (ix *Index) Insert(ctx context.Context, documentID string, chunks []store.Chunk) error {
	if err := ix.storage.InsertChunks(ctx, documentID, chunks); err != nil {
		return fmt.Errorf("%w: insert for document %s: %v", ErrUnavailable, documentID, err)
	}
	ix.log.Debug("indexed document chunks",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// Remove drops every vector belonging to a document. Removing a document
// that contributed nothing is a no-op.
func (ix *Index) Remove(ctx context.Context, documentID string) error {
	if err := ix.storage.DeleteChunksByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("%w: remove for document %s: %v", ErrUnavailable, documentID, err)
	}
	return nil
}

// Search returns the k most similar chunks to the query vector within the
// filter's scope, ordered by descending score. Ties break toward the chunk
// inserted first. Fewer than k results means the scope simply has fewer
// candidates.
func (ix *Index) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	candidates, err := ix.storage.ChunksByFilter(ctx, filter.OwnerID, filter.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	results := make([]Result, 0, len(candidates))
	for _, chunk := range candidates {
		if len(chunk.Embedding) == 0 {
			continue
		}
		score, err := utils.CosineSimilarity(query, chunk.Embedding)
		if err != nil {
			ix.log.Warn("skipping chunk with incompatible embedding",
				zap.Int64("chunk_id", chunk.ID),
				zap.Error(err))
			continue
		}
		results = append(results, Result{Chunk: chunk, Score: score})
	}

	// Candidates arrive in insertion order, so a stable sort keeps the
	// earliest-inserted chunk first among equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
