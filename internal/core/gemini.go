package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiEmbedBatchSize is the per-request limit of the batch embedding API.
const geminiEmbedBatchSize = 100

// CompletionBackend is a single-attempt LLM transport. Retries, rate
// limiting, and timeouts live in LLMClient, not here.
type CompletionBackend interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GeminiBackend talks to the Gemini API via the official client.
type GeminiBackend struct {
	client          *genai.Client
	chatModel       string
	embeddingModel  string
	maxOutputTokens int32
}

func NewGeminiBackend(ctx context.Context, apiKey, chatModel, embeddingModel string, maxOutputTokens int32) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiBackend{
		client:          client,
		chatModel:       chatModel,
		embeddingModel:  embeddingModel,
		maxOutputTokens: maxOutputTokens,
	}, nil
}

func (b *GeminiBackend) Close() error {
	return b.client.Close()
}

func (b *GeminiBackend) Complete(ctx context.Context, prompt string) (string, error) {
	model := b.client.GenerativeModel(b.chatModel)
	if b.maxOutputTokens > 0 {
		maxTokens := b.maxOutputTokens
		model.GenerationConfig = genai.GenerationConfig{MaxOutputTokens: &maxTokens}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini response had no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text parts")
	}
	return sb.String(), nil
}

func (b *GeminiBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	em := b.client.EmbeddingModel(b.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds texts in API-sized batches, preserving input order.
func (b *GeminiBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := b.client.EmbeddingModel(b.embeddingModel)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiEmbedBatchSize {
		end := start + geminiEmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embedding request failed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(res.Embeddings), end-start)
		}
		for _, e := range res.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}
