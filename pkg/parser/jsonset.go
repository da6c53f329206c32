package parser

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/ruleconv/pkg/rules"
)

// parseJSON reads a sing-box source rule set. Flat rule objects are turned
// back into raw rows using each kind's primary keyword, so they go through
// the same normalization as list sources. Logical rules are kept when every
// clause is a single kind with a single value.
func (p *Parser) parseJSON(content []byte) (Result, error) {
	if !gjson.ValidBytes(content) {
		return Result{}, errors.New("invalid json")
	}
	list := gjson.GetBytes(content, "rules")
	if !list.IsArray() {
		return Result{}, errors.New(`missing "rules" array`)
	}

	res := Result{Grammar: GrammarJSON}
	var perr error
	list.ForEach(func(_, rule gjson.Result) bool {
		if !rule.IsObject() {
			perr = fmt.Errorf("rule %s is not an object", rule.Raw)
			return false
		}
		if rule.Get("type").String() == "logical" {
			lr, err := jsonLogical(rule)
			if err != nil {
				res.DroppedLogical++
				return true
			}
			res.Logical = append(res.Logical, lr)
			return true
		}
		res.Rows = append(res.Rows, jsonFlatRows(rule)...)
		return true
	})
	if perr != nil {
		return Result{}, perr
	}
	return res, nil
}

func jsonFlatRows(rule gjson.Result) []rules.RawRow {
	var rows []rules.RawRow
	rule.ForEach(func(key, value gjson.Result) bool {
		kind := rules.Kind(key.String())
		if !kind.Valid() {
			return true
		}
		add := func(v gjson.Result) {
			rows = append(rows, rules.RawRow{Pattern: kind.Keyword(), Address: v.String()})
		}
		if value.IsArray() {
			value.ForEach(func(_, v gjson.Result) bool {
				add(v)
				return true
			})
		} else {
			add(value)
		}
		return true
	})
	return rows
}

func jsonLogical(rule gjson.Result) (rules.LogicalRule, error) {
	if mode := rule.Get("mode").String(); mode != rules.ModeAnd {
		return rules.LogicalRule{}, fmt.Errorf("unsupported mode %q", mode)
	}

	lr := rules.LogicalRule{Mode: rules.ModeAnd}
	var cerr error
	rule.Get("rules").ForEach(func(_, sub gjson.Result) bool {
		fields := sub.Map()
		if len(fields) != 1 {
			cerr = fmt.Errorf("clause %s must hold exactly one kind", sub.Raw)
			return false
		}
		for key, value := range fields {
			kind := rules.Kind(key)
			if !kind.Valid() {
				cerr = fmt.Errorf("unknown clause kind %q", key)
				return false
			}
			if value.IsArray() {
				values := value.Array()
				if len(values) != 1 {
					cerr = fmt.Errorf("clause %s must hold a single value", sub.Raw)
					return false
				}
				value = values[0]
			}
			lr.Clauses = append(lr.Clauses, rules.Clause{Kind: kind, Value: value.String()})
		}
		return true
	})
	if cerr != nil {
		return rules.LogicalRule{}, cerr
	}
	if len(lr.Clauses) == 0 {
		return rules.LogicalRule{}, errors.New("logical rule without clauses")
	}
	return lr, nil
}
