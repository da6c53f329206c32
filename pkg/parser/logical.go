package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sw33tLie/ruleconv/pkg/rules"
)

var (
	errUnbalanced = errors.New("unbalanced parentheses")
	errNested     = errors.New("nested combinators are not supported")
)

// parseLogical parses the argument of an AND rule, e.g.
//
//	((DOMAIN,foo.com),(GEOIP,CN))
//
// Each inner group is one clause "KEYWORD,value"; the keyword is resolved by
// exact lookup. Anything that cannot be represented faithfully is an error,
// so the caller drops the whole rule rather than a weaker subset of it.
func (p *Parser) parseLogical(text string) (rules.LogicalRule, error) {
	groups, err := splitGroups(text)
	if err != nil {
		return rules.LogicalRule{}, err
	}

	lr := rules.LogicalRule{Mode: rules.ModeAnd}
	for _, g := range groups {
		c, err := p.parseClause(g)
		if err != nil {
			return rules.LogicalRule{}, err
		}
		lr.Clauses = append(lr.Clauses, c)
	}
	if len(lr.Clauses) == 0 {
		return rules.LogicalRule{}, errors.New("logical rule without clauses")
	}
	return lr, nil
}

func (p *Parser) parseClause(group string) (rules.Clause, error) {
	group = strings.TrimSpace(group)
	if strings.HasPrefix(group, "(") {
		return rules.Clause{}, errNested
	}

	keyword, value, ok := strings.Cut(group, ",")
	if !ok {
		return rules.Clause{}, fmt.Errorf("clause %q has no value", group)
	}
	keyword = strings.TrimSpace(keyword)
	switch keyword {
	case "AND", "OR", "NOT":
		return rules.Clause{}, errNested
	}

	kind, err := p.vocab.Classify(keyword)
	if err != nil {
		return rules.Clause{}, err
	}
	value = strings.TrimSpace(stripNoResolve(kind, value))
	if value == "" {
		return rules.Clause{}, fmt.Errorf("clause %q has an empty value", group)
	}
	return rules.Clause{Kind: kind, Value: value}, nil
}

// splitGroups returns the contents of the top-level groups inside the outer
// parentheses of text. Parentheses inside a clause value (regexes) are
// allowed as long as they balance. Text after the outer group is ignored.
func splitGroups(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "(") {
		return nil, fmt.Errorf("expected '(' at start of %q", text)
	}

	end := matchParen(text, 0)
	if end < 0 {
		return nil, errUnbalanced
	}
	inner := text[1:end]

	var groups []string
	for i := 0; i < len(inner); i++ {
		switch c := inner[i]; {
		case c == ' ' || c == '\t' || c == ',':
			continue
		case c == '(':
			j := matchParen(inner, i)
			if j < 0 {
				return nil, errUnbalanced
			}
			groups = append(groups, inner[i+1:j])
			i = j
		default:
			return nil, fmt.Errorf("unexpected %q outside of a clause", c)
		}
	}
	return groups, nil
}

// matchParen returns the index of the parenthesis closing the one at open,
// or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
