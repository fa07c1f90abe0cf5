package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// ParsedNode is a node declaration as it appears in the DSL, keyed by alias.
type ParsedNode struct {
	Type  string // Declaration keyword: component, object, rectangle, node, package
	Title string
	Line  int
}

// ParsedEdge is a single dependency edge in (dependency, dependent) order.
// Reverse arrow forms are normalized during parsing.
type ParsedEdge struct {
	From  string // Dependency alias
	To    string // Dependent alias
	Label string
	Line  int
}

// ParseError is a diagnostic produced while parsing. Parsing never fails
// outright; errors are data in the result.
type ParseError struct {
	Line    int
	Message string
}

func (e ParseError) String() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ParseResult carries the node table, edge list, and any diagnostics for one
// parse of a graph file.
type ParseResult struct {
	Nodes  map[string]ParsedNode
	Edges  []ParsedEdge
	Errors []ParseError
}

// HasErrors reports whether any diagnostics were produced.
func (r *ParseResult) HasErrors() bool {
	return len(r.Errors) > 0
}

var (
	// keyword "Title" as Alias  |  keyword Alias
	nodeQuotedPattern = regexp.MustCompile(`(?i)^(component|object|rectangle|node|package)\s+"([^"]*)"\s+as\s+([A-Za-z0-9_]+)\s*$`)
	nodeBarePattern   = regexp.MustCompile(`(?i)^(component|object|rectangle|node|package)\s+([A-Za-z0-9_]+)\s*$`)

	// A --> B [: label], plus dashed/bold and reversed forms.
	edgePattern = regexp.MustCompile(`^([A-Za-z0-9_]+)\s*(-->|\.\.>|==>|<--|<\.\.|<==)\s*([A-Za-z0-9_]+)\s*(?::\s*(.*?)\s*)?$`)
)

// Parse interprets the component-diagram DSL. It is a pure function of the
// input text: all diagnostics are returned as data and no error is ever
// raised. Unrecognized lines are ignored for forward compatibility.
func Parse(text string) *ParseResult {
	result := &ParseResult{Nodes: make(map[string]ParsedNode)}

	type numberedLine struct {
		num  int
		text string
	}

	rawLines := strings.Split(text, "\n")
	usesBlocks := false
	for _, l := range rawLines {
		if strings.TrimSpace(l) == "@startuml" {
			usesBlocks = true
			break
		}
	}

	// Select content lines. When @startuml appears anywhere, only lines
	// inside balanced blocks count; marker bookkeeping happens here so the
	// node/edge passes below see clean content.
	var content []numberedLine
	inBlock := false
	blockStart := 0
	for i, raw := range rawLines {
		num := i + 1
		line := strings.TrimSpace(raw)
		switch line {
		case "@startuml":
			if inBlock {
				result.Errors = append(result.Errors, ParseError{Line: num, Message: "stray @startuml: block already open"})
				continue
			}
			inBlock = true
			blockStart = num
			continue
		case "@enduml":
			if !inBlock {
				result.Errors = append(result.Errors, ParseError{Line: num, Message: "stray @enduml: no open block"})
				continue
			}
			inBlock = false
			continue
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "'") {
			continue // comment
		}
		if usesBlocks && !inBlock {
			continue
		}
		content = append(content, numberedLine{num: num, text: line})
	}
	if inBlock {
		result.Errors = append(result.Errors, ParseError{Line: blockStart, Message: "unclosed @startuml block"})
	}

	// First pass: node declarations. Declarations may appear after the edges
	// that reference them, so edges are validated in a second pass.
	for _, l := range content {
		var keyword, title, alias string
		if m := nodeQuotedPattern.FindStringSubmatch(l.text); m != nil {
			keyword, title, alias = strings.ToLower(m[1]), m[2], m[3]
		} else if m := nodeBarePattern.FindStringSubmatch(l.text); m != nil {
			keyword, alias = strings.ToLower(m[1]), m[2]
			title = alias
		} else {
			continue
		}
		if _, exists := result.Nodes[alias]; exists {
			result.Errors = append(result.Errors, ParseError{Line: l.num, Message: fmt.Sprintf("duplicate alias %q", alias)})
			continue
		}
		result.Nodes[alias] = ParsedNode{Type: keyword, Title: title, Line: l.num}
	}

	// Second pass: edges. Reversed arrows yield (target, source).
	for _, l := range content {
		m := edgePattern.FindStringSubmatch(l.text)
		if m == nil {
			continue
		}
		left, arrow, right, label := m[1], m[2], m[3], m[4]

		from, to := left, right
		if strings.HasPrefix(arrow, "<") {
			from, to = right, left
		}

		missing := false
		for _, alias := range []string{from, to} {
			if _, ok := result.Nodes[alias]; !ok {
				result.Errors = append(result.Errors, ParseError{Line: l.num, Message: fmt.Sprintf("edge references unknown alias %q", alias)})
				missing = true
			}
		}
		if missing {
			continue
		}

		result.Edges = append(result.Edges, ParsedEdge{From: from, To: to, Label: label, Line: l.num})
	}

	return result
}
