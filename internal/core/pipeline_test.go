package core

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/legaldoc/engine/internal/index"
	"github.com/legaldoc/engine/internal/store"
)

// keywordBackend embeds text as keyword occurrence counts, so retrieval
// behaves like a real embedding model on topic-distinct documents.
type keywordBackend struct {
	lastPrompt string
}

var pipelineKeywords = []string{
	"terminate", "termination", "notice", "payment", "invoice", "confidential", "liability", "arbitration",
}

func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(pipelineKeywords))
	for i, kw := range pipelineKeywords {
		vec[i] = float32(strings.Count(lower, kw))
	}
	return vec
}

func (b *keywordBackend) Complete(_ context.Context, prompt string) (string, error) {
	b.lastPrompt = prompt
	return "The agreement requires thirty days written notice to terminate.", nil
}

func (b *keywordBackend) Embed(_ context.Context, text string) ([]float32, error) {
	return keywordVector(text), nil
}

func (b *keywordBackend) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

const terminationContract = "TERMINATION. Either party may terminate this agreement by giving " +
	"thirty days written notice to the other party. Upon termination all licenses end."

const paymentContract = "PAYMENT. The client shall settle every invoice within fifteen days. " +
	"Late invoice payment accrues interest at two percent per month. Payment disputes toll the payment deadline."

func TestPipeline_TerminationQuestionFindsTerminationClause(t *testing.T) {
	ctx := context.Background()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	idx := index.New(st, zap.NewNop())
	backend := &keywordBackend{}
	llm := NewLLMClient(backend, LLMConfig{RequestTimeout: time.Second, MaxAttempts: 1}, zap.NewNop())

	ingest := NewIngestService(st, idx, llm, IngestConfig{
		ChunkWindow:  1000,
		ChunkOverlap: 200,
		MinTextChars: 10,
	}, zap.NewNop())
	query := NewQueryService(llm, idx, QueryConfig{
		TopK:              5,
		MinSimilarity:     0.35,
		ContextCharBudget: 8000,
	}, zap.NewNop())

	termReceipt, err := ingest.Ingest(ctx, "owner-1", "termination.txt", []byte(terminationContract), "text/plain")
	require.NoError(t, err)
	require.Equal(t, IngestNew, termReceipt.Status)

	payReceipt, err := ingest.Ingest(ctx, "owner-1", "payment.txt", []byte(paymentContract), "text/plain")
	require.NoError(t, err)
	require.Equal(t, IngestNew, payReceipt.Status)

	ans, err := query.Ask(ctx, "owner-1", "How much notice is needed to terminate the agreement?", Scope{}, "")
	require.NoError(t, err)

	assert.True(t, ans.Grounded)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, termReceipt.DocumentID, ans.Sources[0].DocumentID,
		"the termination clause must rank first")
	assert.Contains(t, backend.lastPrompt, "thirty days written notice")

	// Another owner's corpus is empty, so the same question is ungrounded.
	other, err := query.Ask(ctx, "owner-2", "How much notice is needed to terminate the agreement?", Scope{}, "")
	require.NoError(t, err)
	assert.False(t, other.Grounded)
	assert.Empty(t, other.Sources)

	// Deleting the termination document removes its vectors from retrieval.
	require.NoError(t, ingest.Delete(ctx, termReceipt.DocumentID))
	after, err := query.Ask(ctx, "owner-1", "How much notice is needed to terminate the agreement?", Scope{}, "")
	require.NoError(t, err)
	for _, src := range after.Sources {
		assert.NotEqual(t, termReceipt.DocumentID, src.DocumentID)
	}
}
