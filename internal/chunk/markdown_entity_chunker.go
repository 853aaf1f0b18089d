package chunk

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/semgraph/indexer/internal/entity"
)

// MarkdownEntityChunker implements the C2 Documentation extractor: headers
// (tracked with level), fenced code blocks (tracked with language tag), and
// links (internal links become Imports-kind relations to the referenced
// path). It reuses MarkdownChunker's header/section splitter, which already
// builds the header hierarchy this component needs.
type MarkdownEntityChunker struct {
	sections *MarkdownChunker
}

// NewMarkdownEntityChunker creates a documentation parser with default
// section-splitting options.
func NewMarkdownEntityChunker() *MarkdownEntityChunker {
	return &MarkdownEntityChunker{sections: NewMarkdownChunker()}
}

func (c *MarkdownEntityChunker) Close() {}

func (c *MarkdownEntityChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

var (
	fencedCodeBlockRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n.*?```")
	markdownLinkRe    = regexp.MustCompile(`\[[^\]]*\]\(([^)]+)\)`)
)

// Parse implements the C2 contract for Markdown documentation files.
func (c *MarkdownEntityChunker) Parse(ctx context.Context, file *FileInput) (*entity.ParserResult, error) {
	start := time.Now()
	result := &entity.ParserResult{}
	now := time.Now()
	normPath := entity.NormalizePath(file.Path)
	content := string(file.Content)

	fileEntity := &entity.Entity{
		Name:         normPath,
		Kind:         entity.KindFile,
		Observations: []string{fmt.Sprintf("%s, markdown", normPath)},
		Origin:       &entity.Origin{FilePath: normPath, StartLine: 1},
		Markers: &entity.AutomationMarkers{
			FilePath:    normPath,
			ASTNodeType: "markdown_document",
			ParsedAt:    now,
			SourceHash:  entity.ContentHash(file.Content),
		},
	}
	result.Entities = append(result.Entities, fileEntity)
	result.Chunks = append(result.Chunks, metadataChunk(fileEntity, 0, false))

	if strings.TrimSpace(content) == "" {
		result.ParseDuration = time.Since(start)
		return result, nil
	}

	for _, m := range markdownLinkRe.FindAllStringSubmatch(content, -1) {
		target := m[1]
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "#") {
			continue
		}
		result.Relations = append(result.Relations, &entity.Relation{From: normPath, To: target, Kind: entity.RelationImports})
	}

	sections := c.sections.parseSections(content)
	if len(sections) == 0 {
		result.ParseDuration = time.Since(start)
		return result, nil
	}

	seen := make(map[string]int)
	for _, sec := range sections {
		body := strings.TrimRight(sec.content, "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		title := sec.headerTitle
		if title == "" {
			title = "section"
		}
		// Disambiguate repeated header titles within the same file so their
		// qualified names stay unique (distinct from the start-line
		// disambiguator used for the chunk id itself).
		qualName := entity.QualifiedName(nil, title)
		seen[qualName]++
		if n := seen[qualName]; n > 1 {
			qualName = fmt.Sprintf("%s#%d", qualName, n)
		}

		startLine := sec.startLine + 1
		endLine := startLine + strings.Count(body, "\n")

		langs := codeFenceLanguages(body)
		observations := []string{fmt.Sprintf("level %d header: %s", sec.headerLevel, sec.headerTitle)}
		if sec.headerPath != "" {
			observations = append(observations, "path: "+sec.headerPath)
		}
		for _, lang := range langs {
			observations = append(observations, "fenced code block: "+lang)
		}

		ent := &entity.Entity{
			Name:         qualName,
			Kind:         entity.KindDocumentationSection,
			Signature:    sec.headerTitle,
			Observations: observations,
			Origin:       &entity.Origin{FilePath: normPath, StartLine: startLine, EndLine: endLine},
			Markers: &entity.AutomationMarkers{
				FilePath:    normPath,
				ASTNodeType: fmt.Sprintf("h%d", sec.headerLevel),
				ParsedAt:    now,
				SourceHash:  entity.ContentHash([]byte(body)),
			},
			HasBody: true,
			Body:    body,
		}
		result.Entities = append(result.Entities, ent)
		result.Chunks = append(result.Chunks, metadataChunk(ent, startLine, true))
		result.Chunks = append(result.Chunks, implementationChunk(ent, startLine))
		result.Relations = append(result.Relations, &entity.Relation{From: normPath, To: qualName, Kind: entity.RelationContains})
	}

	for _, rel := range result.Relations {
		result.Chunks = append(result.Chunks, relationChunk(rel))
	}

	result.ParseDuration = time.Since(start)
	return result, nil
}

func codeFenceLanguages(body string) []string {
	var langs []string
	for _, m := range fencedCodeBlockRe.FindAllStringSubmatch(body, -1) {
		lang := m[1]
		if lang == "" {
			lang = "plain"
		}
		langs = append(langs, lang)
	}
	return langs
}
