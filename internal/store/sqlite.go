package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a document id does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrFingerprintExists is returned when an (owner, fingerprint) pair is
	// already present; callers resolve it to the existing document.
	ErrFingerprintExists = errors.New("document fingerprint already exists for owner")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY, -- UUID
        owner_id TEXT NOT NULL,
        filename TEXT NOT NULL,
        fingerprint TEXT NOT NULL,
        size_bytes INTEGER NOT NULL,
        mime_type TEXT NOT NULL,
        status TEXT NOT NULL CHECK (status IN ('analyzed', 'unanalyzable')),
        warning BOOLEAN NOT NULL DEFAULT FALSE,
        extracted_text TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (owner_id, fingerprint)
    );

    CREATE TABLE IF NOT EXISTS chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        document_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        start_offset INTEGER NOT NULL,
        end_offset INTEGER NOT NULL,
        content TEXT NOT NULL,
        embedding_json TEXT NOT NULL, -- JSON-encoded []float32
        UNIQUE (document_id, seq),
        FOREIGN KEY (document_id) REFERENCES documents (id)
    );

    CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents (owner_id);
    CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Document methods

// CreateDocument inserts a new document row. A missing ID or CreatedAt is
// filled in. Violating the (owner, fingerprint) uniqueness invariant returns
// ErrFingerprintExists.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, owner_id, filename, fingerprint, size_bytes, mime_type, status, warning, extracted_text)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.Filename, doc.Fingerprint, doc.Size, doc.MimeType, doc.Status, doc.Warning, doc.ExtractedText)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("owner %s: %w", doc.OwnerID, ErrFingerprintExists)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return s.db.QueryRowContext(ctx, "SELECT created_at FROM documents WHERE id = ?", doc.ID).Scan(&doc.CreatedAt)
}

func (s *SQLiteStore) DocumentByID(ctx context.Context, id string) (*Document, error) {
	return s.queryDocument(ctx, "id = ?", id)
}

// DocumentByFingerprint looks up the dedup record for an owner. A nil
// document with a nil error means no duplicate exists.
func (s *SQLiteStore) DocumentByFingerprint(ctx context.Context, ownerID, fingerprint string) (*Document, error) {
	return s.queryDocument(ctx, "owner_id = ? AND fingerprint = ?", ownerID, fingerprint)
}

func (s *SQLiteStore) queryDocument(ctx context.Context, where string, args ...any) (*Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, filename, fingerprint, size_bytes, mime_type, status, warning, created_at FROM documents WHERE "+where,
		args...).Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &doc.Fingerprint, &doc.Size, &doc.MimeType, &doc.Status, &doc.Warning, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return &doc, nil
}

// DocumentText loads the extracted text column for one document.
func (s *SQLiteStore) DocumentText(ctx context.Context, id string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, "SELECT extracted_text FROM documents WHERE id = ?", id).Scan(&text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("failed to query document text: %w", err)
	}
	return text, nil
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListAnalyzedDocuments returns metadata for every analyzable document,
// ordered by creation time. Used by reindexing.
func (s *SQLiteStore) ListAnalyzedDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, filename, fingerprint, size_bytes, mime_type, status, warning, created_at FROM documents WHERE status = ? ORDER BY created_at ASC",
		StatusAnalyzed)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &doc.Fingerprint, &doc.Size, &doc.MimeType, &doc.Status, &doc.Warning, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Chunk methods (vector index storage)

// InsertChunks writes all chunks for one document in a single transaction so
// a document is never partially visible to searches.
func (s *SQLiteStore) InsertChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (document_id, seq, start_offset, end_offset, content, embedding_json) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		chunks[i].DocumentID = documentID
		embeddingJSON, err := json.Marshal(chunks[i].Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for chunk %d: %w", chunks[i].Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, documentID, chunks[i].Seq, chunks[i].StartOffset, chunks[i].EndOffset, chunks[i].Content, string(embeddingJSON)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunks[i].Seq, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// ChunksByFilter loads search candidates. An empty ownerID or documentID
// leaves that dimension unconstrained. Rows come back in insertion order.
func (s *SQLiteStore) ChunksByFilter(ctx context.Context, ownerID, documentID string) ([]Chunk, error) {
	query := `SELECT c.id, c.document_id, c.seq, c.start_offset, c.end_offset, c.content, c.embedding_json
              FROM chunks c JOIN documents d ON d.id = c.document_id`
	var (
		where []string
		args  []any
	)
	if ownerID != "" {
		where = append(where, "d.owner_id = ?")
		args = append(args, ownerID)
	}
	if documentID != "" {
		where = append(where, "c.document_id = ?")
		args = append(args, documentID)
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY c.id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			chunk         Chunk
			embeddingJSON string
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Seq, &chunk.StartOffset, &chunk.EndOffset, &chunk.Content, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if embeddingJSON != "" {
			if err := json.Unmarshal([]byte(embeddingJSON), &chunk.Embedding); err != nil {
				return nil, fmt.Errorf("failed to unmarshal embedding for chunk %d: %w", chunk.ID, err)
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// CountChunksByDocument reports how many vectors a document contributes.
func (s *SQLiteStore) CountChunksByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
