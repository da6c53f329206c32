package parser

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sw33tLie/ruleconv/pkg/rules"
)

// parsePayload handles YAML rule providers ("payload:" followed by a list of
// entries) and plain files that decode to a bare string, in which case only
// the first line is read as whitespace separated entries.
func (p *Parser) parsePayload(content []byte) (Result, error) {
	var doc interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return Result{}, fmt.Errorf("decoding yaml: %w", err)
	}

	var items []string
	switch v := doc.(type) {
	case string:
		line, _, _ := strings.Cut(v, "\n")
		items = strings.Fields(line)
	case map[string]interface{}:
		entries, err := payloadEntries(v["payload"], hasKey(v, "payload"))
		if err != nil {
			return Result{}, err
		}
		items = entries
	case map[interface{}]interface{}:
		entries, err := payloadEntries(v["payload"], hasAnyKey(v, "payload"))
		if err != nil {
			return Result{}, err
		}
		items = entries
	case nil:
		return Result{}, errors.New("empty document")
	default:
		return Result{}, fmt.Errorf("unexpected top-level %T", doc)
	}

	res := Result{Grammar: GrammarPayload}
	for _, item := range items {
		res.Rows = append(res.Rows, p.payloadRow(item))
	}
	return res, nil
}

func (p *Parser) payloadRow(item string) rules.RawRow {
	if !strings.Contains(item, ",") {
		return ClassifyLiteral(item)
	}

	pattern, address, _ := strings.Cut(item, ",")
	pattern = strings.TrimSpace(pattern)
	if kind, ok := p.vocab.Lookup(pattern); ok {
		address = stripNoResolve(kind, address)
	}
	return rules.RawRow{Pattern: pattern, Address: strings.TrimSpace(address)}
}

// payloadEntries converts the value of the payload key. A missing key is an
// empty payload; a present key must hold a sequence of scalars.
func payloadEntries(v interface{}, present bool) ([]string, error) {
	if !present {
		return nil, nil
	}
	seq, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("payload is %T, want a sequence", v)
	}
	out := make([]string, 0, len(seq))
	for i, elem := range seq {
		switch e := elem.(type) {
		case string:
			out = append(out, e)
		case int, int64, uint64, float64, bool:
			out = append(out, fmt.Sprint(e))
		default:
			return nil, fmt.Errorf("payload entry %d is %T, want a scalar", i, elem)
		}
	}
	return out, nil
}

func hasKey(m map[string]interface{}, key string) bool {
	_, ok := m[key]
	return ok
}

func hasAnyKey(m map[interface{}]interface{}, key string) bool {
	_, ok := m[key]
	return ok
}
