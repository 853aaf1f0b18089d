package embed

import (
	"context"
	"strings"
	"unicode"
)

// EmbeddingResult is the richer per-text outcome the indexer needs beyond
// the raw vector: token accounting for cost reporting and a flag recording
// whether the input had to be truncated to fit the model's context window.
type EmbeddingResult struct {
	Vector    []float32
	TokensIn  int
	TokensOut int
	Cost      float64
	Truncated bool
}

// AccountingEmbedder wraps any Embedder and reports EmbeddingResult instead
// of a bare vector, without changing the underlying embedder's behavior.
// Token counts are estimated by whitespace-boundary word count, which is
// adequate for cost/truncation reporting without pulling in a model-specific
// tokenizer.
type AccountingEmbedder struct {
	inner        Embedder
	maxTokens    int
	costPerToken float64
}

// NewAccountingEmbedder wraps inner, truncating any input longer than
// maxTokens (0 disables truncation) and costing each token at
// costPerToken (0 disables cost reporting, e.g. for local/static embedders).
func NewAccountingEmbedder(inner Embedder, maxTokens int, costPerToken float64) *AccountingEmbedder {
	return &AccountingEmbedder{inner: inner, maxTokens: maxTokens, costPerToken: costPerToken}
}

// EmbedBatchWithMeta embeds texts, truncating each to the configured token
// budget at a whitespace boundary (never mid-word) before handing it to the
// inner embedder, and returns full accounting alongside each vector.
func (a *AccountingEmbedder) EmbedBatchWithMeta(ctx context.Context, texts []string) ([]EmbeddingResult, error) {
	prepared := make([]string, len(texts))
	truncatedFlags := make([]bool, len(texts))
	tokenCounts := make([]int, len(texts))

	for i, text := range texts {
		words := splitWords(text)
		tokenCounts[i] = len(words)
		if a.maxTokens > 0 && len(words) > a.maxTokens {
			words = words[:a.maxTokens]
			truncatedFlags[i] = true
			tokenCounts[i] = a.maxTokens
		}
		prepared[i] = strings.Join(words, " ")
		if prepared[i] == "" {
			prepared[i] = text
		}
	}

	vectors, err := a.inner.EmbedBatch(ctx, prepared)
	if err != nil {
		return nil, err
	}

	results := make([]EmbeddingResult, len(texts))
	for i := range texts {
		results[i] = EmbeddingResult{
			Vector:    vectors[i],
			TokensIn:  tokenCounts[i],
			TokensOut: a.inner.Dimensions(),
			Cost:      float64(tokenCounts[i]) * a.costPerToken,
			Truncated: truncatedFlags[i],
		}
	}
	return results, nil
}

// splitWords splits on Unicode whitespace, used only for token-count
// estimation and truncation, never for semantic tokenization.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, unicode.IsSpace)
}

// Embedder passthrough so AccountingEmbedder can still be used wherever a
// plain Embedder is expected (e.g. nested inside CachedEmbedder).

func (a *AccountingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.inner.Embed(ctx, text)
}

func (a *AccountingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return a.inner.EmbedBatch(ctx, texts)
}

func (a *AccountingEmbedder) Dimensions() int { return a.inner.Dimensions() }

func (a *AccountingEmbedder) ModelName() string { return a.inner.ModelName() }

func (a *AccountingEmbedder) Available(ctx context.Context) bool { return a.inner.Available(ctx) }

func (a *AccountingEmbedder) Close() error { return a.inner.Close() }

func (a *AccountingEmbedder) SetBatchIndex(idx int) { a.inner.SetBatchIndex(idx) }

func (a *AccountingEmbedder) SetFinalBatch(isFinal bool) { a.inner.SetFinalBatch(isFinal) }
