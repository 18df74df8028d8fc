package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/legaldoc/engine/internal/store"
)

// fakeDocs is an in-memory DocumentStore.
type fakeDocs struct {
	docs      map[string]*store.Document
	nextID    int
	createErr error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: make(map[string]*store.Document)}
}

func (f *fakeDocs) CreateDocument(_ context.Context, doc *store.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.docs {
		if existing.OwnerID == doc.OwnerID && existing.Fingerprint == doc.Fingerprint {
			return store.ErrFingerprintExists
		}
	}
	f.nextID++
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-%03d", f.nextID)
	}
	doc.CreatedAt = time.Now()
	stored := *doc
	f.docs[doc.ID] = &stored
	return nil
}

func (f *fakeDocs) DocumentByID(_ context.Context, id string) (*store.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	clone := *doc
	return &clone, nil
}

func (f *fakeDocs) DocumentByFingerprint(_ context.Context, ownerID, fingerprint string) (*store.Document, error) {
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID && doc.Fingerprint == fingerprint {
			clone := *doc
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeDocs) DocumentText(_ context.Context, id string) (string, error) {
	doc, ok := f.docs[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return doc.ExtractedText, nil
}

func (f *fakeDocs) DeleteDocument(_ context.Context, id string) error {
	if _, ok := f.docs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeDocs) ListAnalyzedDocuments(context.Context) ([]store.Document, error) {
	var out []store.Document
	for _, doc := range f.docs {
		if doc.Status == store.StatusAnalyzed {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func testIngestService(docs *fakeDocs, idx *fakeIndex, backend CompletionBackend) *IngestService {
	llm := NewLLMClient(backend, LLMConfig{RequestTimeout: time.Second, MaxAttempts: 1}, zap.NewNop())
	return NewIngestService(docs, idx, llm, IngestConfig{
		ChunkWindow:  100,
		ChunkOverlap: 20,
		MinTextChars: 10,
	}, zap.NewNop())
}

const contractText = "This agreement is made between the parties. " +
	"Either party may terminate this agreement with thirty days written notice. " +
	"All payments are due on the first of each month."

func TestIngest_NewDocument(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	svc := testIngestService(docs, idx, &scriptedBackend{})

	receipt, err := svc.Ingest(context.Background(), "owner-1", "contract.txt", []byte(contractText), "text/plain")
	require.NoError(t, err)

	assert.Equal(t, IngestNew, receipt.Status)
	assert.NotEmpty(t, receipt.DocumentID)

	doc, err := docs.DocumentByID(context.Background(), receipt.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, store.StatusAnalyzed, doc.Status)
	assert.NotEmpty(t, idx.inserted[receipt.DocumentID])
}

func TestIngest_DoubleIngestIsIdempotent(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	svc := testIngestService(docs, idx, &scriptedBackend{})
	ctx := context.Background()

	first, err := svc.Ingest(ctx, "owner-1", "contract.txt", []byte(contractText), "text/plain")
	require.NoError(t, err)
	vectorsAfterFirst := len(idx.inserted[first.DocumentID])

	second, err := svc.Ingest(ctx, "owner-1", "renamed.txt", []byte(contractText), "text/plain")
	require.NoError(t, err)

	assert.Equal(t, IngestDuplicate, second.Status)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Len(t, idx.inserted[first.DocumentID], vectorsAfterFirst, "vector count unchanged")
}

// staleDocs delays dedup visibility: the first reads of a fingerprint return
// nil even when the row exists, like a lookup racing a concurrent commit.
type staleDocs struct {
	*fakeDocs
	staleReads int
}

func (s *staleDocs) DocumentByFingerprint(ctx context.Context, ownerID, fingerprint string) (*store.Document, error) {
	if s.staleReads > 0 {
		s.staleReads--
		return nil, nil
	}
	return s.fakeDocs.DocumentByFingerprint(ctx, ownerID, fingerprint)
}

func TestIngest_FingerprintRaceAdoptsWinnerIntact(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	stale := &staleDocs{fakeDocs: docs, staleReads: 2}
	llm := NewLLMClient(&scriptedBackend{}, LLMConfig{RequestTimeout: time.Second, MaxAttempts: 1}, zap.NewNop())
	svc := NewIngestService(stale, idx, llm, IngestConfig{
		ChunkWindow:  100,
		ChunkOverlap: 20,
		MinTextChars: 10,
	}, zap.NewNop())
	ctx := context.Background()

	winner, err := svc.Ingest(ctx, "owner-1", "contract.txt", []byte(contractText), "text/plain")
	require.NoError(t, err)
	require.Equal(t, IngestNew, winner.Status)
	vectors := len(idx.inserted[winner.DocumentID])
	require.NotZero(t, vectors)

	// The second upload misses the dedup read, runs the pipeline, and loses
	// the unique-fingerprint race at insert time.
	loser, err := svc.Ingest(ctx, "owner-1", "copy.txt", []byte(contractText), "text/plain")
	require.NoError(t, err)

	assert.Equal(t, IngestDuplicate, loser.Status)
	assert.Equal(t, winner.DocumentID, loser.DocumentID)

	doc, err := docs.DocumentByID(ctx, winner.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc, "winning document must survive the race")
	assert.Len(t, idx.inserted[winner.DocumentID], vectors, "winner's vectors must be untouched")
}

func TestIngest_SameBytesDifferentOwnersAreSeparate(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	svc := testIngestService(docs, idx, &scriptedBackend{})
	ctx := context.Background()

	a, err := svc.Ingest(ctx, "owner-a", "contract.txt", []byte(contractText), "text/plain")
	require.NoError(t, err)
	b, err := svc.Ingest(ctx, "owner-b", "contract.txt", []byte(contractText), "text/plain")
	require.NoError(t, err)

	assert.Equal(t, IngestNew, a.Status)
	assert.Equal(t, IngestNew, b.Status)
	assert.NotEqual(t, a.DocumentID, b.DocumentID)
}

func TestIngest_UnsupportedFormatStoresUnanalyzable(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	svc := testIngestService(docs, idx, &scriptedBackend{})

	receipt, err := svc.Ingest(context.Background(), "owner-1", "photo.png", []byte{0x89, 0x50}, "image/png")
	require.NoError(t, err)

	assert.Equal(t, IngestUnanalyzable, receipt.Status)
	doc, err := docs.DocumentByID(context.Background(), receipt.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, store.StatusUnanalyzable, doc.Status)
	assert.Empty(t, idx.inserted[receipt.DocumentID])
}

func TestIngest_TooLittleTextIsUnanalyzable(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	svc := testIngestService(docs, idx, &scriptedBackend{})

	receipt, err := svc.Ingest(context.Background(), "owner-1", "tiny.txt", []byte("hi"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, IngestUnanalyzable, receipt.Status)
}

func TestIngest_IndexFailureRollsBackDocument(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	idx.insertErr = errors.New("index down")
	svc := testIngestService(docs, idx, &scriptedBackend{})

	_, err := svc.Ingest(context.Background(), "owner-1", "contract.txt", []byte(contractText), "text/plain")
	require.Error(t, err)
	assert.Empty(t, docs.docs, "document row must be rolled back")
}

func TestIngest_EmbedFailureLeavesNothingBehind(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	backend := &scriptedBackend{errs: []error{errors.New("boom")}}
	svc := testIngestService(docs, idx, backend)

	_, err := svc.Ingest(context.Background(), "owner-1", "contract.txt", []byte(contractText), "text/plain")
	require.ErrorIs(t, err, ErrUpstreamError)
	assert.Empty(t, docs.docs)
	assert.Empty(t, idx.inserted)
}

func TestDelete_CascadesToIndex(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	svc := testIngestService(docs, idx, &scriptedBackend{})
	ctx := context.Background()

	receipt, err := svc.Ingest(ctx, "owner-1", "contract.txt", []byte(contractText), "text/plain")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, receipt.DocumentID))

	assert.Contains(t, idx.removed, receipt.DocumentID)
	doc, err := docs.DocumentByID(ctx, receipt.DocumentID)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDelete_UnknownDocument(t *testing.T) {
	svc := testIngestService(newFakeDocs(), newFakeIndex(), &scriptedBackend{})
	err := svc.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReindex_ReplacesVectors(t *testing.T) {
	docs, idx := newFakeDocs(), newFakeIndex()
	svc := testIngestService(docs, idx, &scriptedBackend{})
	ctx := context.Background()

	receipt, err := svc.Ingest(ctx, "owner-1", "contract.txt", []byte(contractText), "text/plain")
	require.NoError(t, err)

	require.NoError(t, svc.Reindex(ctx))

	assert.Contains(t, idx.removed, receipt.DocumentID)
	assert.NotEmpty(t, idx.inserted[receipt.DocumentID])
}
