package chunk

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/semgraph/indexer/internal/entity"
)

// EntityChunker parses tree-sitter-backed structured languages into a full
// entity/relation graph: parse(file_path, content) -> ParserResult{entities,
// relations, chunks, syntax_errors, parse_duration}, reusing the same
// tree-sitter parsing and symbol-extraction machinery as the rest of the
// package.
type EntityChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
}

// NewEntityChunker creates an EntityChunker backed by the default language
// registry.
func NewEntityChunker() *EntityChunker {
	registry := DefaultRegistry()
	return &EntityChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
	}
}

// NewEntityChunkerWithRegistry creates an EntityChunker bound to a caller
// supplied registry (e.g. one with project-level parser overrides applied).
func NewEntityChunkerWithRegistry(registry *LanguageRegistry) *EntityChunker {
	return &EntityChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
	}
}

// Close releases chunker resources.
func (c *EntityChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *EntityChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// symbolInfo carries a parsed symbol along with the dotted qualified name
// implied by its position in the scope stack (e.g. "ClassA.method_b").
type symbolInfo struct {
	node          *Node
	symbol        *Symbol
	qualifiedName string
	parentName    string
}

// Parse parses one file and emits its full entity/relation/chunk set. It
// never returns an error for recoverable conditions (unsupported language,
// syntax errors) - those are reported through ParserResult.SyntaxErrors so a
// single bad file never aborts the run.
func (c *EntityChunker) Parse(ctx context.Context, file *FileInput) (*entity.ParserResult, error) {
	start := time.Now()
	result := &entity.ParserResult{}
	now := time.Now()

	normPath := entity.NormalizePath(file.Path)
	lineCount := bytes.Count(file.Content, []byte("\n")) + 1

	fileEntity := &entity.Entity{
		Name:         normPath,
		Kind:         entity.KindFile,
		Observations: []string{fmt.Sprintf("%s, %d lines, language=%s", normPath, lineCount, file.Language)},
		Origin:       &entity.Origin{FilePath: normPath, StartLine: 1, EndLine: lineCount},
		Markers: &entity.AutomationMarkers{
			FilePath:    normPath,
			ASTNodeType: "source_file",
			ParsedAt:    now,
			SourceHash:  entity.ContentHash(file.Content),
		},
	}
	result.Entities = append(result.Entities, fileEntity)
	result.Chunks = append(result.Chunks, metadataChunk(fileEntity, 0, false))

	if len(file.Content) == 0 {
		result.ParseDuration = time.Since(start)
		return result, nil
	}

	config, supported := c.registry.GetByName(file.Language)
	if !supported {
		result.SyntaxErrors = append(result.SyntaxErrors, fmt.Sprintf("no structured parser registered for language %q", file.Language))
		result.ParseDuration = time.Since(start)
		return result, nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		result.SyntaxErrors = append(result.SyntaxErrors, err.Error())
		result.ParseDuration = time.Since(start)
		return result, nil
	}
	if tree.Root.HasError {
		result.SyntaxErrors = append(result.SyntaxErrors, "syntax error recovered: parse tree contains error nodes")
	}

	for _, imp := range c.extractImportTargets(tree, file.Language) {
		result.Relations = append(result.Relations, &entity.Relation{From: normPath, To: imp, Kind: entity.RelationImports})
	}

	symbols := c.walkSymbols(tree, file.Language, config, normPath)

	known := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		known[s.symbol.Name] = true
	}

	for _, info := range symbols {
		body := tree.Source[info.node.StartByte:info.node.EndByte]
		ent := &entity.Entity{
			Name:         info.qualifiedName,
			Kind:         symbolKindToEntityKind(info.symbol.Type),
			Signature:    info.symbol.Signature,
			Observations: observationsFor(info.symbol),
			Origin:       &entity.Origin{FilePath: normPath, StartLine: info.symbol.StartLine, EndLine: info.symbol.EndLine},
			Markers: &entity.AutomationMarkers{
				FilePath:    normPath,
				ASTNodeType: info.node.Type,
				ParsedAt:    now,
				SourceHash:  entity.ContentHash(body),
			},
			HasBody: true,
			Body:    string(body),
		}
		result.Entities = append(result.Entities, ent)
		result.Chunks = append(result.Chunks, metadataChunk(ent, info.symbol.StartLine, true))
		result.Chunks = append(result.Chunks, implementationChunk(ent, info.symbol.StartLine))

		result.Relations = append(result.Relations, &entity.Relation{
			From: info.parentName,
			To:   info.qualifiedName,
			Kind: entity.RelationContains,
		})

		if info.symbol.Type == SymbolTypeClass {
			for _, base := range extractBaseClasses(info.node, tree.Source, file.Language) {
				result.Relations = append(result.Relations, &entity.Relation{
					From: info.qualifiedName,
					To:   base,
					Kind: entity.RelationInherits,
				})
			}
		}

		for _, callee := range extractCallees(info.node, tree.Source, known, info.symbol.Name) {
			result.Relations = append(result.Relations, &entity.Relation{
				From: info.qualifiedName,
				To:   callee,
				Kind: entity.RelationCalls,
			})
		}
	}

	for _, rel := range result.Relations {
		result.Chunks = append(result.Chunks, relationChunk(rel))
	}

	result.ParseDuration = time.Since(start)
	return result, nil
}

// walkSymbols walks the tree looking for symbol-defining nodes, maintaining
// a scope stack so nested symbols (methods inside a class) get a dotted
// qualified name and a Contains edge to their true lexical parent rather
// than always the file.
func (c *EntityChunker) walkSymbols(tree *Tree, language string, config *LanguageConfig, filePath string) []*symbolInfo {
	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}

	var out []*symbolInfo

	// scope is the dotted-name stack used to build qualified names (it never
	// includes the file path - only nested classes/namespaces do). parent is
	// the Contains-edge source: the file path at the top level, or the
	// nearest enclosing entity's qualified name once inside a class.
	var recurse func(n *Node, scope []string, parent string)
	recurse = func(n *Node, scope []string, parent string) {
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			if sym := c.extractor.extractSpecialSymbol(n, tree.Source, language); sym != nil {
				out = append(out, &symbolInfo{
					node:          n,
					symbol:        sym,
					qualifiedName: entity.QualifiedName(scope, sym.Name),
					parentName:    parent,
				})
				for _, child := range n.Children {
					recurse(child, scope, parent)
				}
				return
			}
		}

		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			name := c.extractor.extractName(n, tree.Source, config, language)
			if name != "" {
				sym := &Symbol{
					Name:       name,
					Type:       symType,
					StartLine:  int(n.StartPoint.Row) + 1,
					EndLine:    int(n.EndPoint.Row) + 1,
					DocComment: c.extractor.extractDocComment(n, tree.Source, language),
					Signature:  c.extractor.extractSignature(n, tree.Source, symType, language),
				}
				info := &symbolInfo{
					node:          n,
					symbol:        sym,
					qualifiedName: entity.QualifiedName(scope, name),
					parentName:    parent,
				}
				out = append(out, info)

				childScope, childParent := scope, parent
				if symType == SymbolTypeClass {
					childScope = append(append([]string{}, scope...), name)
					childParent = info.qualifiedName
				}
				for _, child := range n.Children {
					recurse(child, childScope, childParent)
				}
				return
			}
		}

		for _, child := range n.Children {
			recurse(child, scope, parent)
		}
	}

	for _, child := range tree.Root.Children {
		recurse(child, nil, filePath)
	}
	return out
}

func symbolKindToEntityKind(t SymbolType) entity.Kind {
	switch t {
	case SymbolTypeFunction:
		return entity.KindFunction
	case SymbolTypeMethod:
		return entity.KindMethod
	case SymbolTypeClass, SymbolTypeInterface, SymbolTypeType:
		return entity.KindClass
	case SymbolTypeConstant, SymbolTypeVariable:
		return entity.KindVariable
	default:
		return entity.KindVariable
	}
}

func observationsFor(s *Symbol) []string {
	var obs []string
	if s.Signature != "" {
		obs = append(obs, s.Signature)
	}
	if s.DocComment != "" {
		obs = append(obs, s.DocComment)
	}
	return obs
}

// extractImportTargets returns the imported module/package paths for a file,
// used to emit Import relations from the file entity.
func (c *EntityChunker) extractImportTargets(tree *Tree, language string) []string {
	var targets []string
	switch language {
	case "go":
		for _, node := range tree.Root.FindAllByType("import_spec") {
			if p := node.FindChildByType("interpreted_string_literal"); p != nil {
				targets = append(targets, strings.Trim(p.GetContent(tree.Source), `"`))
			}
		}
	case "typescript", "tsx", "javascript", "jsx":
		for _, node := range tree.Root.FindChildrenByType("import_statement") {
			if p := node.FindChildByType("string"); p != nil {
				targets = append(targets, strings.Trim(p.GetContent(tree.Source), `"'`))
			}
		}
	case "python":
		for _, node := range tree.Root.FindAllByType("import_from_statement") {
			targets = append(targets, strings.TrimSpace(strings.TrimPrefix(node.GetContent(tree.Source), "from")))
		}
		for _, node := range tree.Root.FindAllByType("import_statement") {
			targets = append(targets, strings.TrimSpace(strings.TrimPrefix(node.GetContent(tree.Source), "import")))
		}
	}
	return targets
}

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// extractCallees does a best-effort scan of a symbol's body for identifiers
// that match another known symbol name in the same file, emitting those as
// Calls relation targets. This is intentionally name-based rather than a
// full type-resolved call graph: a Calls edge only requires the identifier
// to match the name of any symbol in the same file (function, type or
// otherwise), not full type checking.
func extractCallees(n *Node, source []byte, known map[string]bool, selfName string) []string {
	body := n.GetContent(source)
	seen := make(map[string]bool)
	var out []string
	for _, match := range identifierRe.FindAllString(body, -1) {
		if match == selfName || !known[match] || seen[match] {
			continue
		}
		seen[match] = true
		out = append(out, match)
	}
	return out
}

// extractBaseClasses returns parent class names for Inherits relations.
func extractBaseClasses(n *Node, source []byte, language string) []string {
	switch language {
	case "python":
		if arglist := n.FindChildByType("argument_list"); arglist != nil {
			var bases []string
			for _, child := range arglist.Children {
				if child.Type == "identifier" {
					bases = append(bases, child.GetContent(source))
				}
			}
			return bases
		}
	case "typescript", "tsx", "javascript", "jsx":
		if clause := n.FindChildByType("class_heritage"); clause != nil {
			var bases []string
			for _, id := range clause.FindAllByType("identifier") {
				bases = append(bases, id.GetContent(source))
			}
			return bases
		}
	}
	return nil
}

func metadataChunk(e *entity.Entity, disambiguator int, hasImplementation bool) *entity.Chunk {
	id := entity.GenerateChunkID(e.Origin.FilePath, e.Name, entity.ChunkMetadata, disambiguator)
	content := e.Signature
	if content == "" {
		content = e.Name
	}
	for _, obs := range e.Observations {
		content += "\n" + obs
	}
	return &entity.Chunk{
		ID:         id,
		EntityName: e.Name,
		Kind:       entity.ChunkMetadata,
		Content:    content,
		Payload: entity.Payload{
			ChunkKind:         entity.ChunkMetadata,
			EntityName:        e.Name,
			EntityKind:        e.Kind,
			FilePath:          e.Origin.FilePath,
			StartLine:         e.Origin.StartLine,
			EndLine:           e.Origin.EndLine,
			HasImplementation: hasImplementation,
			SourceHash:        e.Markers.SourceHash,
			ParsedAt:          e.Markers.ParsedAt,
			Observations:      e.Observations,
		},
	}
}

func implementationChunk(e *entity.Entity, disambiguator int) *entity.Chunk {
	id := entity.GenerateChunkID(e.Origin.FilePath, e.Name, entity.ChunkImplementation, disambiguator)
	return &entity.Chunk{
		ID:         id,
		EntityName: e.Name,
		Kind:       entity.ChunkImplementation,
		Content:    e.Body,
		Payload: entity.Payload{
			ChunkKind:    entity.ChunkImplementation,
			EntityName:   e.Name,
			EntityKind:   e.Kind,
			FilePath:     e.Origin.FilePath,
			StartLine:    e.Origin.StartLine,
			EndLine:      e.Origin.EndLine,
			SourceHash:   e.Markers.SourceHash,
			ParsedAt:     e.Markers.ParsedAt,
			Observations: e.Observations,
		},
	}
}

func relationChunk(r *entity.Relation) *entity.Chunk {
	content := fmt.Sprintf("%s %s %s", r.From, r.Kind, r.To)
	id := entity.GenerateChunkID(r.From, fmt.Sprintf("%s->%s", r.From, r.To), entity.ChunkRelation, 0)
	return &entity.Chunk{
		ID:         id,
		EntityName: r.From,
		Kind:       entity.ChunkRelation,
		Content:    content,
		Payload: entity.Payload{
			ChunkKind:    entity.ChunkRelation,
			EntityName:   r.From,
			RelationKind: r.Kind,
			From:         r.From,
			To:           r.To,
		},
	}
}
