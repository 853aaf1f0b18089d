// Package dedup implements the unified chunk processor: before chunks are
// sent to the embedder, exact-content duplicates are collapsed to a single
// canonical chunk, with every duplicate pointing back at it through
// Payload.AliasOfID rather than getting its own (redundant) embedding.
package dedup

import (
	"github.com/semgraph/indexer/internal/entity"
)

// dedupable is the set of chunk kinds eligible for content-equality
// collapsing. Relation chunks are left out: two unrelated edges can render
// to the same short text (e.g. "a.go Contains helper") without being
// semantically interchangeable the way two identical function bodies are.
var dedupable = map[entity.ChunkKind]bool{
	entity.ChunkMetadata:       true,
	entity.ChunkImplementation: true,
}

// Result is the outcome of running Process over a batch of chunks.
type Result struct {
	// ToEmbed are the chunks that need a fresh embedding: either not
	// dedupable, or the first occurrence of their content in this batch.
	ToEmbed []*entity.Chunk

	// Aliased are chunks whose content exactly matches an earlier chunk's;
	// their Payload.AliasOfID has been set to that chunk's ID and they are
	// upserted with the canonical chunk's vector rather than a new one.
	Aliased []*entity.Chunk

	// CanonicalOf maps an aliased chunk's id to the canonical chunk it
	// should borrow a vector from, so the caller can look the vector up
	// after ToEmbed has been embedded.
	CanonicalOf map[string]string

	// TokensSaved is an estimate of embedding-input tokens avoided by
	// reusing a canonical vector instead of re-embedding, using a
	// whitespace word count as the token proxy.
	TokensSaved int
}

// Process partitions chunks into ToEmbed and Aliased by exact content
// equality, deliberately NOT whitespace-normalized: re-indenting a function
// changes its content hash and is treated as a distinct body, keeping the
// dedup key independent of (and never feeding) chunk identity.
func Process(chunks []*entity.Chunk) *Result {
	result := &Result{CanonicalOf: make(map[string]string)}
	seen := make(map[string]string) // content hash -> canonical chunk id

	for _, c := range chunks {
		if !dedupable[c.Kind] {
			result.ToEmbed = append(result.ToEmbed, c)
			continue
		}

		hash := entity.ContentHash([]byte(c.Content))
		if canonicalID, ok := seen[hash]; ok && canonicalID != c.ID {
			c.Payload.AliasOfID = canonicalID
			result.Aliased = append(result.Aliased, c)
			result.CanonicalOf[c.ID] = canonicalID
			result.TokensSaved += wordCount(c.Content)
			continue
		}

		seen[hash] = c.ID
		result.ToEmbed = append(result.ToEmbed, c)
	}

	return result
}

func wordCount(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
