package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/semgraph/indexer/internal/entity"
	"gopkg.in/yaml.v3"
)

// wellKnownKeyPaths surfaces top-level keys, per well-known schema file name,
// that are worth calling out as observations even though the generic
// top-level-key extraction already covers them structurally.
var wellKnownKeyPaths = map[string][]string{
	"package.json":      {"name", "version", "dependencies", "devDependencies", "scripts"},
	"composer.json":     {"name", "require", "require-dev"},
	"pyproject.toml":    {"project", "tool"},
	"tsconfig.json":     {"compilerOptions", "include", "exclude"},
	"docker-compose.yml": {"services", "volumes", "networks"},
	"docker-compose.yaml": {"services", "volumes", "networks"},
}

// StructuredDataChunker implements the C2 extractor for JSON and YAML files:
// each top-level key becomes a DocumentationSection entity with a single
// Metadata chunk (no Implementation chunk, like the text-window parser;
// the Markdown parser does emit one per section), and well-known schema files get their
// recognized key paths called out explicitly.
type StructuredDataChunker struct{}

func NewStructuredDataChunker() *StructuredDataChunker { return &StructuredDataChunker{} }

func (c *StructuredDataChunker) Close() {}

func (c *StructuredDataChunker) SupportedExtensions() []string {
	return []string{".json", ".yaml", ".yml"}
}

func (c *StructuredDataChunker) Parse(ctx context.Context, file *FileInput) (*entity.ParserResult, error) {
	start := time.Now()
	result := &entity.ParserResult{}
	now := time.Now()
	normPath := entity.NormalizePath(file.Path)
	base := filepath.Base(normPath)
	ext := strings.ToLower(filepath.Ext(normPath))

	fileEntity := &entity.Entity{
		Name:   normPath,
		Kind:   entity.KindFile,
		Origin: &entity.Origin{FilePath: normPath, StartLine: 1},
		Markers: &entity.AutomationMarkers{
			FilePath: normPath, ASTNodeType: "structured_data_document", ParsedAt: now,
			SourceHash: entity.ContentHash(file.Content),
		},
	}
	result.Entities = append(result.Entities, fileEntity)
	result.Chunks = append(result.Chunks, metadataChunk(fileEntity, 0, false))

	if len(strings.TrimSpace(string(file.Content))) == 0 {
		result.ParseDuration = time.Since(start)
		return result, nil
	}

	var doc map[string]interface{}
	var parseErr error
	if ext == ".json" {
		parseErr = json.Unmarshal(file.Content, &doc)
	} else {
		parseErr = yaml.Unmarshal(file.Content, &doc)
	}
	if parseErr != nil {
		result.SyntaxErrors = append(result.SyntaxErrors, parseErr.Error())
		result.ParseDuration = time.Since(start)
		return result, nil
	}

	known := wellKnownKeyPaths[base]
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := doc[key]
		qualName := key
		observations := []string{describeValue(value)}
		if knownSet[key] {
			observations = append(observations, fmt.Sprintf("well-known key for %s", base))
		}

		body, _ := json.MarshalIndent(value, "", "  ")
		ent := &entity.Entity{
			Name:         qualName,
			Kind:         entity.KindDocumentationSection,
			Signature:    key,
			Observations: observations,
			Origin:       &entity.Origin{FilePath: normPath, StartLine: 1},
			Markers: &entity.AutomationMarkers{
				FilePath: normPath, ASTNodeType: "top_level_key", ParsedAt: now,
				SourceHash: entity.ContentHash(body),
			},
		}
		result.Entities = append(result.Entities, ent)
		result.Chunks = append(result.Chunks, metadataChunk(ent, 0, false))

		rel := &entity.Relation{From: normPath, To: qualName, Kind: entity.RelationContains}
		result.Relations = append(result.Relations, rel)
		result.Chunks = append(result.Chunks, relationChunk(rel))
	}

	result.ParseDuration = time.Since(start)
	return result, nil
}

// describeValue gives a short, human-readable shape summary for an
// observation, e.g. "object with 4 keys" or "array of 12 items".
func describeValue(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		return fmt.Sprintf("object with %d keys", len(t))
	case []interface{}:
		return fmt.Sprintf("array of %d items", len(t))
	case string:
		return "string"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "scalar"
	}
}
