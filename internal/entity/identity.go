package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizePath converts an OS-specific relative path into the canonical
// forward-slash form used as the first component of every chunk identity.
func NormalizePath(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// QualifiedName builds the dotted qualified name for a nested scope, e.g.
// QualifiedName("ClassA", "method_b") -> "ClassA.method_b". An empty scope
// stack yields just name.
func QualifiedName(scope []string, name string) string {
	if len(scope) == 0 {
		return name
	}
	return strings.Join(scope, ".") + "." + name
}

// GenerateChunkID computes the chunk id as a hash over
// (normalized_file_path, entity_qualified_name, chunk_kind, disambiguator)
// where disambiguator is the entity's start line. Unlike a content hash, this
// is stable across edits to the body: the same function at the same line in
// the same file always gets the same id, which is what lets the indexer
// locate and replace a file's prior chunks on a content change instead of
// orphaning the old ones.
//
// Two entities with the same qualified name at different start lines (e.g.
// two functions both named "helper" after a rename-in-place, or a
// re-declared __init__ deeper in the same file) never collide because the
// disambiguator is part of the hashed tuple.
func GenerateChunkID(filePath, qualifiedName string, kind ChunkKind, disambiguator int) string {
	normalized := NormalizePath(filePath)
	input := fmt.Sprintf("%s\x00%s\x00%s\x00%d", normalized, qualifiedName, kind, disambiguator)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentHash is used only for (a) the file-level state-store diff (C4) and
// (b) the unified chunk processor's content-equality dedup key (C9). It must
// never feed chunk identity - that is GenerateChunkID's job alone.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
