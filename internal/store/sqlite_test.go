package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDocument(ownerID, fingerprint string) *Document {
	return &Document{
		OwnerID:       ownerID,
		Filename:      "contract.pdf",
		Fingerprint:   fingerprint,
		Size:          1024,
		MimeType:      "application/pdf",
		Status:        StatusAnalyzed,
		ExtractedText: "This agreement may be terminated with 30 days notice.",
	}
}

func TestCreateDocument_AssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, doc))

	assert.NotEmpty(t, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestCreateDocument_DuplicateFingerprintSameOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx, testDocument("owner-1", "fp-1")))

	err := s.CreateDocument(ctx, testDocument("owner-1", "fp-1"))
	assert.ErrorIs(t, err, ErrFingerprintExists)
}

func TestCreateDocument_SameFingerprintDifferentOwners(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx, testDocument("owner-1", "fp-1")))
	require.NoError(t, s.CreateDocument(ctx, testDocument("owner-2", "fp-1")))
}

func TestDocumentByFingerprint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, doc))

	found, err := s.DocumentByFingerprint(ctx, "owner-1", "fp-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, doc.ID, found.ID)

	missing, err := s.DocumentByFingerprint(ctx, "owner-1", "fp-other")
	require.NoError(t, err)
	assert.Nil(t, missing)

	otherOwner, err := s.DocumentByFingerprint(ctx, "owner-2", "fp-1")
	require.NoError(t, err)
	assert.Nil(t, otherOwner)
}

func TestDocumentByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, doc))

	found, err := s.DocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "contract.pdf", found.Filename)
	assert.Equal(t, StatusAnalyzed, found.Status)

	missing, err := s.DocumentByID(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDocumentText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, doc))

	text, err := s.DocumentText(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ExtractedText, text)

	_, err = s.DocumentText(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, doc))
	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	found, err := s.DocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), ErrNotFound)
}

func TestListAnalyzedDocuments_SkipsUnanalyzable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	good := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, good))

	bad := testDocument("owner-1", "fp-2")
	bad.Status = StatusUnanalyzable
	require.NoError(t, s.CreateDocument(ctx, bad))

	docs, err := s.ListAnalyzedDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, good.ID, docs[0].ID)
}

func insertTestChunks(t *testing.T, s *SQLiteStore, documentID string, n int) {
	t.Helper()
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{
			Seq:         i,
			StartOffset: i * 80,
			EndOffset:   i*80 + 100,
			Content:     "chunk content",
			Embedding:   []float32{float32(i), 1, 0},
		}
	}
	require.NoError(t, s.InsertChunks(context.Background(), documentID, chunks))
}

func TestInsertChunks_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, doc))
	insertTestChunks(t, s, doc.ID, 3)

	chunks, err := s.ChunksByFilter(ctx, "", doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, []float32{float32(i), 1, 0}, c.Embedding)
	}
}

func TestInsertChunks_DuplicateSeqRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, doc))

	err := s.InsertChunks(ctx, doc.ID, []Chunk{
		{Seq: 0, Content: "a", Embedding: []float32{1}},
		{Seq: 0, Content: "b", Embedding: []float32{2}},
	})
	require.Error(t, err)

	count, err := s.CountChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "partial insert must not be visible")
}

func TestChunksByFilter_ScopesByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docA := testDocument("owner-a", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, docA))
	insertTestChunks(t, s, docA.ID, 2)

	docB := testDocument("owner-b", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, docB))
	insertTestChunks(t, s, docB.ID, 3)

	chunks, err := s.ChunksByFilter(ctx, "owner-a", "")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, docA.ID, c.DocumentID)
	}

	all, err := s.ChunksByFilter(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestChunksByFilter_OrderedByInsertion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, doc))
	insertTestChunks(t, s, doc.ID, 4)

	chunks, err := s.ChunksByFilter(ctx, "owner-1", "")
	require.NoError(t, err)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].ID, chunks[i-1].ID)
	}
}

func TestDeleteChunksByDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("owner-1", "fp-1")
	require.NoError(t, s.CreateDocument(ctx, doc))
	insertTestChunks(t, s, doc.ID, 3)

	require.NoError(t, s.DeleteChunksByDocument(ctx, doc.ID))

	count, err := s.CountChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Deleting again is a no-op, not an error.
	require.NoError(t, s.DeleteChunksByDocument(ctx, doc.ID))
}
