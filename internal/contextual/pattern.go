// Package contextual implements CR-1 contextual retrieval: a short,
// pattern-derived sentence prepended to a chunk's content before it is
// embedded, situating the chunk within its file and entity.
//
// See: https://www.anthropic.com/news/contextual-retrieval
package contextual

import (
	"fmt"
	"strings"

	"github.com/semgraph/indexer/internal/config"
	"github.com/semgraph/indexer/internal/entity"
)

// Generator produces a contextual prefix for a chunk using nothing but the
// fields the parsers already populated - no LLM call, no network round trip.
type Generator struct {
	cfg *config.ContextualConfig
}

// NewGenerator builds a Generator from the project's contextual settings.
func NewGenerator(cfg *config.ContextualConfig) *Generator {
	return &Generator{cfg: cfg}
}

// isCode reports whether an entity kind belongs to source code rather than
// documentation or structured data.
func isCode(k entity.Kind) bool {
	return k != entity.KindDocumentationSection
}

// Enrich returns the text that should actually be embedded for c: either
// c.Content unchanged, or c.Content prefixed with a generated context
// sentence. Relation chunks and disabled configs pass through untouched.
func (g *Generator) Enrich(c *entity.Chunk) string {
	if g.cfg == nil || !g.cfg.Enabled || c.Kind == entity.ChunkRelation {
		return c.Content
	}
	if isCode(c.Payload.EntityKind) && !g.cfg.CodeChunks {
		return c.Content
	}

	ctx := g.describe(c)
	if ctx == "" {
		return c.Content
	}
	return ctx + "\n\n" + c.Content
}

// describe builds the "From file: ... Defines: ..." sentence from payload
// fields already carried on the chunk.
func (g *Generator) describe(c *entity.Chunk) string {
	var parts []string

	if c.Payload.FilePath != "" {
		parts = append(parts, fmt.Sprintf("From file: %s", c.Payload.FilePath))
	}

	if c.Payload.EntityKind != "" && c.EntityName != "" {
		parts = append(parts, fmt.Sprintf("Defines: %s %s", c.Payload.EntityKind, c.EntityName))
	}

	if len(c.Payload.Observations) > 0 {
		if first := firstSentence(c.Payload.Observations[0]); first != "" {
			parts = append(parts, fmt.Sprintf("Purpose: %s", first))
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}

// firstSentence trims a doc comment or observation down to its first
// sentence, the same heuristic the rest of the chunk summaries use.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "//")
	text = strings.TrimPrefix(text, "/*")
	text = strings.TrimSuffix(text, "*/")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	for i, r := range text {
		if r == '.' || r == '\n' {
			return strings.TrimSuffix(strings.TrimSpace(text[:i+1]), ".")
		}
	}
	if len(text) > 100 {
		return text[:100] + "..."
	}
	return text
}
