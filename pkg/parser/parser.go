// Package parser turns raw rule-list content into raw rows and logical rules.
//
// Three upstream grammars are understood: delimited lists ("DOMAIN,foo.com"
// per line, AND combinators included), YAML payload files (or a bare line of
// whitespace separated entries) and sing-box JSON source rule sets. The
// grammar is picked from the source identifier's extension; whatever the
// first choice, a failure falls back to the delimited list grammar.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/sw33tLie/ruleconv/pkg/rules"
)

// ErrNoGrammar is returned when no grammar could be applied to the content.
var ErrNoGrammar = errors.New("no applicable grammar")

// Grammar names a source grammar.
type Grammar string

const (
	GrammarList    Grammar = "list"
	GrammarPayload Grammar = "payload"
	GrammarJSON    Grammar = "json"
)

// Result is the parsed content of one source.
type Result struct {
	Grammar Grammar
	Rows    []rules.RawRow
	Logical []rules.LogicalRule
	// DroppedLogical counts combinator rules that could not be represented
	// (nested combinators, unknown clause keywords) and were left out whole.
	DroppedLogical int
}

// Parser parses source content against a vocabulary.
type Parser struct {
	vocab rules.Vocabulary
}

// New returns a Parser resolving keywords through vocab.
func New(vocab rules.Vocabulary) *Parser {
	return &Parser{vocab: vocab}
}

// Parse picks a grammar for sourceID and parses content with it.
func (p *Parser) Parse(sourceID string, content []byte) (Result, error) {
	first := GrammarFor(sourceID)

	var firstErr error
	switch first {
	case GrammarPayload:
		res, err := p.parsePayload(content)
		if err == nil {
			return res, nil
		}
		firstErr = err
	case GrammarJSON:
		res, err := p.parseJSON(content)
		if err == nil {
			return res, nil
		}
		firstErr = err
	}

	res, err := p.parseList(content)
	if err != nil {
		if firstErr != nil {
			return Result{}, fmt.Errorf("%w: %s grammar: %v; list grammar: %v", ErrNoGrammar, first, firstErr, err)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrNoGrammar, err)
	}
	return res, nil
}

// GrammarFor returns the grammar tried first for a source identifier, based
// on the extension of its path. Query strings and fragments are ignored.
func GrammarFor(sourceID string) Grammar {
	p := sourceID
	if u, err := url.Parse(sourceID); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml", ".txt":
		return GrammarPayload
	case ".json":
		return GrammarJSON
	default:
		return GrammarList
	}
}
