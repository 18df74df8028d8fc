package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/legaldoc/engine/internal/chunker"
	"github.com/legaldoc/engine/internal/extract"
	"github.com/legaldoc/engine/internal/store"
	"github.com/legaldoc/engine/internal/utils"
)

// IngestStatus tells the uploader what happened to their file.
type IngestStatus string

const (
	// IngestNew means the document was stored and indexed.
	IngestNew IngestStatus = "new"
	// IngestDuplicate means the same bytes were already ingested by this owner.
	IngestDuplicate IngestStatus = "duplicate"
	// IngestUnanalyzable means the document was stored but no text could be
	// extracted, so it cannot be searched.
	IngestUnanalyzable IngestStatus = "unanalyzable"
)

// DocumentStore is the persistence surface the services need. *store.SQLiteStore
// satisfies it.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *store.Document) error
	DocumentByID(ctx context.Context, id string) (*store.Document, error)
	DocumentByFingerprint(ctx context.Context, ownerID, fingerprint string) (*store.Document, error)
	DocumentText(ctx context.Context, id string) (string, error)
	DeleteDocument(ctx context.Context, id string) error
	ListAnalyzedDocuments(ctx context.Context) ([]store.Document, error)
}

// IngestConfig tunes chunking and the analyzability floor.
type IngestConfig struct {
	ChunkWindow  int
	ChunkOverlap int
	// MinTextChars is the minimum extracted length for a document to be
	// considered analyzable.
	MinTextChars int
}

// IngestReceipt reports the outcome of one upload.
type IngestReceipt struct {
	DocumentID string       `json:"document_id"`
	Status     IngestStatus `json:"status"`
}

// IngestService runs the upload pipeline: fingerprint, dedup, extract,
// chunk, embed, index.
type IngestService struct {
	docs   DocumentStore
	idx    SearchIndex
	llm    *LLMClient
	cfg    IngestConfig
	flight singleflight.Group
	log    *zap.Logger
}

func NewIngestService(docs DocumentStore, idx SearchIndex, llm *LLMClient, cfg IngestConfig, log *zap.Logger) *IngestService {
	return &IngestService{docs: docs, idx: idx, llm: llm, cfg: cfg, log: log}
}

// Ingest stores and indexes one uploaded file. Re-uploading identical bytes
// is answered from the existing record without re-extraction or re-embedding.
// Concurrent uploads of the same bytes by the same owner collapse into one
// pipeline run.
func (s *IngestService) Ingest(ctx context.Context, ownerID, filename string, data []byte, declaredType string) (*IngestReceipt, error) {
	fingerprint := utils.Fingerprint(data)

	existing, err := s.docs.DocumentByFingerprint(ctx, ownerID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}
	if existing != nil {
		return &IngestReceipt{DocumentID: existing.ID, Status: IngestDuplicate}, nil
	}

	key := ownerID + ":" + fingerprint
	res, err, shared := s.flight.Do(key, func() (interface{}, error) {
		return s.runPipeline(ctx, ownerID, filename, data, declaredType, fingerprint)
	})
	if err != nil {
		return nil, err
	}

	receipt := res.(*IngestReceipt)
	if shared && receipt.Status == IngestNew {
		// This caller rode along on another upload of the same bytes.
		receipt = &IngestReceipt{DocumentID: receipt.DocumentID, Status: IngestDuplicate}
	}
	return receipt, nil
}

func (s *IngestService) runPipeline(ctx context.Context, ownerID, filename string, data []byte, declaredType, fingerprint string) (*IngestReceipt, error) {
	doc := &store.Document{
		OwnerID:     ownerID,
		Filename:    filename,
		Fingerprint: fingerprint,
		Size:        int64(len(data)),
		MimeType:    declaredType,
	}

	extracted, err := extract.Extract(data, declaredType)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) || errors.Is(err, extract.ErrCorruptFile) {
			// The upload still succeeds; the document just cannot be searched.
			s.log.Warn("document is unanalyzable",
				zap.String("filename", filename),
				zap.Error(err))
			return s.storeUnanalyzable(ctx, doc)
		}
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	if len([]rune(extracted.Text)) < s.cfg.MinTextChars {
		s.log.Warn("extracted text below analyzable minimum",
			zap.String("filename", filename),
			zap.Int("chars", len([]rune(extracted.Text))))
		return s.storeUnanalyzable(ctx, doc)
	}

	pieces := chunker.Chunk(extracted.Text, s.cfg.ChunkWindow, s.cfg.ChunkOverlap)
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}

	embeddings, err := s.llm.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed document chunks: %w", err)
	}
	if len(embeddings) != len(pieces) {
		return nil, fmt.Errorf("embedding count mismatch: %d embeddings for %d chunks", len(embeddings), len(pieces))
	}

	doc.Status = store.StatusAnalyzed
	doc.Warning = extracted.Partial
	doc.ExtractedText = extracted.Text
	adopted, err := s.createDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	if adopted {
		// A concurrent upload of the same bytes committed first. Its chunks
		// are already indexed under its document ID; touching them here would
		// corrupt the winner's record.
		return &IngestReceipt{DocumentID: doc.ID, Status: IngestDuplicate}, nil
	}

	chunks := make([]store.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = store.Chunk{
			Seq:         p.Seq,
			StartOffset: p.Start,
			EndOffset:   p.End,
			Content:     p.Text,
			Embedding:   embeddings[i],
		}
	}
	if err := s.idx.Insert(ctx, doc.ID, chunks); err != nil {
		// Roll back the row this pipeline created so a retry starts clean.
		// Adopted rows never reach this point.
		if delErr := s.docs.DeleteDocument(context.WithoutCancel(ctx), doc.ID); delErr != nil {
			s.log.Error("failed to roll back document after index failure",
				zap.String("document_id", doc.ID),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to index document: %w", err)
	}

	s.log.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("owner_id", ownerID),
		zap.Int("chunks", len(chunks)),
		zap.Bool("partial_extraction", extracted.Partial))
	return &IngestReceipt{DocumentID: doc.ID, Status: IngestNew}, nil
}

func (s *IngestService) storeUnanalyzable(ctx context.Context, doc *store.Document) (*IngestReceipt, error) {
	doc.Status = store.StatusUnanalyzable
	adopted, err := s.createDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	if adopted {
		return &IngestReceipt{DocumentID: doc.ID, Status: IngestDuplicate}, nil
	}
	return &IngestReceipt{DocumentID: doc.ID, Status: IngestUnanalyzable}, nil
}

// createDocument resolves a fingerprint race against a concurrent upload by
// deferring to the row that won. On adoption doc holds the winner's row and
// the caller must not index or roll back anything under its ID.
func (s *IngestService) createDocument(ctx context.Context, doc *store.Document) (adopted bool, err error) {
	createErr := s.docs.CreateDocument(ctx, doc)
	if createErr == nil {
		return false, nil
	}
	if errors.Is(createErr, store.ErrFingerprintExists) {
		winner, lookupErr := s.docs.DocumentByFingerprint(ctx, doc.OwnerID, doc.Fingerprint)
		if lookupErr == nil && winner != nil {
			*doc = *winner
			return true, nil
		}
	}
	return false, fmt.Errorf("failed to store document: %w", createErr)
}

// Delete removes a document and all of its index vectors.
func (s *IngestService) Delete(ctx context.Context, documentID string) error {
	doc, err := s.docs.DocumentByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}

	if err := s.idx.Remove(ctx, documentID); err != nil {
		return err
	}
	if err := s.docs.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	s.log.Info("document deleted", zap.String("document_id", documentID))
	return nil
}

// Reindex re-chunks and re-embeds every analyzable document, replacing its
// vectors. Used after changing the embedding model or chunking parameters.
func (s *IngestService) Reindex(ctx context.Context) error {
	docs, err := s.docs.ListAnalyzedDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents for reindex: %w", err)
	}

	for _, doc := range docs {
		text, err := s.docs.DocumentText(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to load text for document %s: %w", doc.ID, err)
		}

		pieces := chunker.Chunk(text, s.cfg.ChunkWindow, s.cfg.ChunkOverlap)
		texts := make([]string, len(pieces))
		for i, p := range pieces {
			texts[i] = p.Text
		}

		embeddings, err := s.llm.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
		}

		chunks := make([]store.Chunk, len(pieces))
		for i, p := range pieces {
			chunks[i] = store.Chunk{
				Seq:         p.Seq,
				StartOffset: p.Start,
				EndOffset:   p.End,
				Content:     p.Text,
				Embedding:   embeddings[i],
			}
		}

		if err := s.idx.Remove(ctx, doc.ID); err != nil {
			return err
		}
		if err := s.idx.Insert(ctx, doc.ID, chunks); err != nil {
			return err
		}
		s.log.Info("document reindexed",
			zap.String("document_id", doc.ID),
			zap.Int("chunks", len(chunks)))
	}

	s.log.Info("reindex complete", zap.Int("documents", len(docs)))
	return nil
}
