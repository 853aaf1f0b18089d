package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/semgraph/indexer/internal/entity"
)

// EntityParser is the common contract every C2 extractor implements: given a
// file, produce its entities, relations, and chunks. Unsupported input is
// reported through ParserResult.SyntaxErrors rather than a returned error.
type EntityParser interface {
	Parse(ctx context.Context, file *FileInput) (*entity.ParserResult, error)
	SupportedExtensions() []string
	Close()
}

// EntityParserRegistry dispatches a file to the right EntityParser by
// extension, falling back to the text/log/config window parser for anything
// unclaimed. Registration follows the same last-registered-wins rule as
// LanguageRegistry.
type EntityParserRegistry struct {
	mu        sync.RWMutex
	byExt     map[string]EntityParser
	fallback  EntityParser
	languages *LanguageRegistry
}

// NewEntityParserRegistry wires the four built-in parsers: the tree-sitter
// code parser (bound to languages), the markdown documentation parser, the
// structured-data (JSON/YAML) parser, and the text-window fallback.
func NewEntityParserRegistry(languages *LanguageRegistry, windowLines int) *EntityParserRegistry {
	r := &EntityParserRegistry{
		byExt:     make(map[string]EntityParser),
		fallback:  NewTextEntityChunker(windowLines),
		languages: languages,
	}

	code := NewEntityChunkerWithRegistry(languages)
	r.register(code)
	r.register(NewMarkdownEntityChunker())
	r.register(NewStructuredDataChunker())

	return r
}

func (r *EntityParserRegistry) register(p EntityParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.SupportedExtensions() {
		ext = strings.ToLower(ext)
		if prev, exists := r.byExt[ext]; exists && prev != p {
			slog.Debug("entity parser extension override", "extension", ext,
				"previous", fmt.Sprintf("%T", prev), "new", fmt.Sprintf("%T", p))
		}
		r.byExt[ext] = p
	}
}

// RegisterOverride lets a caller replace the parser bound to a set of
// extensions, e.g. a project config that swaps in an alternate extractor.
func (r *EntityParserRegistry) RegisterOverride(p EntityParser) {
	r.register(p)
}

// ParserFor returns the parser that would handle a given file path, without
// parsing it.
func (r *EntityParserRegistry) ParserFor(path string) EntityParser {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byExt[ext]; ok {
		return p
	}
	return r.fallback
}

// Parse dispatches a file to its matching parser, or the text-window
// fallback when no extension-specific parser claims it.
func (r *EntityParserRegistry) Parse(ctx context.Context, file *FileInput) (*entity.ParserResult, error) {
	return r.ParserFor(file.Path).Parse(ctx, file)
}

// boundTextParser pins the text-window chunker to a specific extension set,
// so it can be installed via RegisterOverride rather than only serving as
// the registry's catch-all fallback.
type boundTextParser struct {
	*TextEntityChunker
	exts []string
}

func (b *boundTextParser) SupportedExtensions() []string { return b.exts }

// ApplyParserConfig installs project-level parser overrides from
// config.IndexerConfig.ParserConfig. Each entry is keyed by a language name
// known to the language registry (e.g. "python", covering all of that
// language's extensions) or by a file extension (e.g. ".json"); the only
// override currently recognized is {"parser": "text_window"}, which routes
// those extensions through the raw line-window chunker instead of their
// structured/code parser - useful for a project that wants a config file's
// raw text searchable rather than its parsed key shape.
func (r *EntityParserRegistry) ApplyParserConfig(parserConfig map[string]map[string]string, windowLines int) {
	var textExts []string
	for key, opts := range parserConfig {
		if opts["parser"] != "text_window" {
			continue
		}
		if r.languages != nil {
			if lang, ok := r.languages.GetByName(strings.ToLower(key)); ok {
				textExts = append(textExts, lang.Extensions...)
				continue
			}
		}
		textExts = append(textExts, strings.ToLower(key))
	}
	if len(textExts) == 0 {
		return
	}
	r.RegisterOverride(&boundTextParser{
		TextEntityChunker: NewTextEntityChunker(windowLines),
		exts:              textExts,
	})
}

// Close releases every registered parser's resources exactly once, even
// though several extensions may share the same underlying parser instance.
func (r *EntityParserRegistry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	closed := make(map[EntityParser]bool)
	for _, p := range r.byExt {
		if !closed[p] {
			p.Close()
			closed[p] = true
		}
	}
	if r.fallback != nil {
		r.fallback.Close()
	}
}
