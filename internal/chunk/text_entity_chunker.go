package chunk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/semgraph/indexer/internal/entity"
)

// DefaultWindowLines is the N-line window size used by TextEntityChunker
// when a project hasn't configured a different value.
const DefaultWindowLines = 50

// TextEntityChunker implements the C2 "text/log/config" extractor: files
// with no dedicated parser are chunked by N-line windows, each becoming a
// DocumentationSection entity with one Metadata chunk and no Implementation
// chunk - there is no separate "body" to disclose progressively since the
// window content *is* the metadata.
type TextEntityChunker struct {
	windowLines int
}

// NewTextEntityChunker creates a text chunker using the given window size,
// falling back to DefaultWindowLines when n <= 0.
func NewTextEntityChunker(n int) *TextEntityChunker {
	if n <= 0 {
		n = DefaultWindowLines
	}
	return &TextEntityChunker{windowLines: n}
}

func (c *TextEntityChunker) Close() {}

func (c *TextEntityChunker) SupportedExtensions() []string { return nil }

// Parse implements the C2 contract as the catch-all parser for unclassified
// extensions (plain text, logs, generic config files).
func (c *TextEntityChunker) Parse(ctx context.Context, file *FileInput) (*entity.ParserResult, error) {
	start := time.Now()
	result := &entity.ParserResult{}
	now := time.Now()
	normPath := entity.NormalizePath(file.Path)
	content := string(file.Content)

	fileEntity := &entity.Entity{
		Name:   normPath,
		Kind:   entity.KindFile,
		Origin: &entity.Origin{FilePath: normPath, StartLine: 1},
		Markers: &entity.AutomationMarkers{
			FilePath: normPath, ASTNodeType: "text_window_source", ParsedAt: now,
			SourceHash: entity.ContentHash(file.Content),
		},
	}
	result.Entities = append(result.Entities, fileEntity)
	result.Chunks = append(result.Chunks, metadataChunk(fileEntity, 0, false))

	if strings.TrimSpace(content) == "" {
		result.ParseDuration = time.Since(start)
		return result, nil
	}

	lines := strings.Split(content, "\n")
	for start := 0; start < len(lines); start += c.windowLines {
		end := start + c.windowLines
		if end > len(lines) {
			end = len(lines)
		}
		windowBody := strings.Join(lines[start:end], "\n")
		startLine := start + 1
		endLine := end

		qualName := fmt.Sprintf("window@%d", startLine)
		ent := &entity.Entity{
			Name:         qualName,
			Kind:         entity.KindDocumentationSection,
			Observations: []string{fmt.Sprintf("lines %d-%d", startLine, endLine)},
			Origin:       &entity.Origin{FilePath: normPath, StartLine: startLine, EndLine: endLine},
			Markers: &entity.AutomationMarkers{
				FilePath: normPath, ASTNodeType: "text_window", ParsedAt: now,
				SourceHash: entity.ContentHash([]byte(windowBody)),
			},
		}
		result.Entities = append(result.Entities, ent)

		id := entity.GenerateChunkID(normPath, qualName, entity.ChunkMetadata, startLine)
		result.Chunks = append(result.Chunks, &entity.Chunk{
			ID:         id,
			EntityName: qualName,
			Kind:       entity.ChunkMetadata,
			Content:    windowBody,
			Payload: entity.Payload{
				ChunkKind:    entity.ChunkMetadata,
				EntityName:   qualName,
				EntityKind:   entity.KindDocumentationSection,
				FilePath:     normPath,
				StartLine:    startLine,
				EndLine:      endLine,
				SourceHash:   ent.Markers.SourceHash,
				ParsedAt:     now,
				Observations: ent.Observations,
			},
		})

		rel := &entity.Relation{From: normPath, To: qualName, Kind: entity.RelationContains}
		result.Relations = append(result.Relations, rel)
		result.Chunks = append(result.Chunks, relationChunk(rel))
	}

	result.ParseDuration = time.Since(start)
	return result, nil
}
