package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/legaldoc/engine/internal/index"
	"github.com/legaldoc/engine/internal/store"
	"github.com/legaldoc/engine/internal/utils"
)

const answerSystemPreamble = "You are a legal document assistant. Answer questions based only on the provided document excerpts. " +
	"If the answer is not found in the provided context, clearly state that the documents do not cover it. " +
	"Do not make up information. Keep answers concise and directly related to the question."

// SearchIndex is the retrieval surface used by the query and ingest services.
// *index.Index satisfies it.
type SearchIndex interface {
	Insert(ctx context.Context, documentID string, chunks []store.Chunk) error
	Remove(ctx context.Context, documentID string) error
	Search(ctx context.Context, query []float32, k int, filter index.Filter) ([]index.Result, error)
}

// QueryConfig tunes retrieval and prompt assembly.
type QueryConfig struct {
	// TopK is the number of chunks retrieved per question.
	TopK int
	// MinSimilarity is the grounding threshold; hits below it are discarded.
	MinSimilarity float32
	// ContextCharBudget caps the total characters of excerpt text in a prompt.
	ContextCharBudget int
}

// Scope optionally narrows a question to a single document.
type Scope struct {
	DocumentID string
}

// SourceRef points a reader at the chunk an answer drew from.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	ChunkSeq   int     `json:"chunk_seq"`
	Score      float32 `json:"score"`
}

// Answer is the result of one question. Grounded reports whether document
// excerpts backed the response.
type Answer struct {
	Text     string      `json:"answer"`
	Grounded bool        `json:"grounded"`
	Sources  []SourceRef `json:"sources"`
}

// QueryService answers questions over the indexed corpus.
type QueryService struct {
	llm *LLMClient
	idx SearchIndex
	cfg QueryConfig
	log *zap.Logger
}

func NewQueryService(llm *LLMClient, idx SearchIndex, cfg QueryConfig, log *zap.Logger) *QueryService {
	return &QueryService{llm: llm, idx: idx, cfg: cfg, log: log}
}

// Ask answers a question against the owner's corpus, or against inlineText
// directly when provided. A non-empty inlineText skips retrieval entirely.
func (s *QueryService) Ask(ctx context.Context, ownerID, question string, scope Scope, inlineText string) (*Answer, error) {
	if len([]rune(question)) > s.cfg.ContextCharBudget {
		return nil, fmt.Errorf("%w: question is %d characters, budget is %d",
			ErrBudgetExceeded, len([]rune(question)), s.cfg.ContextCharBudget)
	}

	if inlineText != "" {
		return s.askInline(ctx, question, inlineText)
	}

	queryEmbedding, err := s.llm.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := s.idx.Search(ctx, queryEmbedding, s.cfg.TopK, index.Filter{
		OwnerID:    ownerID,
		DocumentID: scope.DocumentID,
	})
	if err != nil {
		return nil, err
	}

	relevant := hits[:0]
	for _, hit := range hits {
		if hit.Score >= s.cfg.MinSimilarity {
			relevant = append(relevant, hit)
		}
	}

	contextText, sources := s.assembleContext(relevant, question)
	grounded := len(sources) > 0

	var prompt string
	if grounded {
		prompt = fmt.Sprintf("%s\n\nDocument excerpts:\n\n--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\nQuestion: %s",
			answerSystemPreamble, contextText, question)
	} else {
		s.log.Info("no relevant chunks above threshold",
			zap.String("owner_id", ownerID),
			zap.Float32("min_similarity", s.cfg.MinSimilarity))
		prompt = fmt.Sprintf("%s\n\nNo matching document excerpts were found for this question. "+
			"State that the uploaded documents do not appear to cover it, then answer generally if possible.\n\nQuestion: %s",
			answerSystemPreamble, question)
	}

	text, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &Answer{Text: text, Grounded: grounded, Sources: sources}, nil
}

// askInline answers against caller-supplied text without touching the index.
func (s *QueryService) askInline(ctx context.Context, question, inlineText string) (*Answer, error) {
	budget := s.cfg.ContextCharBudget - len([]rune(question))
	inlineText = utils.TruncateRunes(inlineText, budget)

	prompt := fmt.Sprintf("%s\n\nDocument excerpts:\n\n--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\nQuestion: %s",
		answerSystemPreamble, inlineText, question)

	text, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &Answer{Text: text, Grounded: true, Sources: []SourceRef{}}, nil
}

// assembleContext packs hits best-first into the character budget left over
// after the question. A hit that does not fit is skipped, not truncated.
func (s *QueryService) assembleContext(hits []index.Result, question string) (string, []SourceRef) {
	remaining := s.cfg.ContextCharBudget - len([]rune(question))

	var sb strings.Builder
	sources := make([]SourceRef, 0, len(hits))
	for _, hit := range hits {
		size := len([]rune(hit.Chunk.Content))
		if size > remaining {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(hit.Chunk.Content)
		remaining -= size
		sources = append(sources, SourceRef{
			DocumentID: hit.Chunk.DocumentID,
			ChunkSeq:   hit.Chunk.Seq,
			Score:      hit.Score,
		})
	}
	return sb.String(), sources
}
