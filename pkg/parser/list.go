package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/sw33tLie/ruleconv/pkg/rules"
)

// maxListFields is the widest flat record accepted: pattern, address and up
// to three trailing fields.
const maxListFields = 5

const maxLineSize = 1 << 20

// parseList handles comma delimited rule lists. Records whose pattern field
// contains "AND" are combinator rules and are parsed into logical rules;
// everything else becomes a raw row. Each line is decoded on its own so a
// stray quote cannot pull the following lines into its record.
func (p *Parser) parseList(content []byte) (Result, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return Result{}, errors.New("empty content")
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	res := Result{Grammar: GrammarList}
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		record, err := splitRecord(line)
		if err != nil {
			return Result{}, fmt.Errorf("line %d: %w", lineNum, err)
		}
		pattern := record[0]

		// Comment rows pass through whatever their shape; the normalizer
		// drops them.
		if strings.Contains(pattern, "#") {
			res.Rows = append(res.Rows, rules.RawRow{Pattern: pattern})
			continue
		}

		if isCombinator(pattern) {
			lr, err := p.parseLogical(strings.Join(record[1:], ","))
			if err != nil {
				res.DroppedLogical++
				continue
			}
			res.Logical = append(res.Logical, lr)
			continue
		}

		if len(record) > maxListFields {
			return Result{}, fmt.Errorf("line %d: malformed record: %d fields, at most %d allowed", lineNum, len(record), maxListFields)
		}

		row := rules.RawRow{Pattern: pattern}
		if len(record) > 1 {
			row.Address = record[1]
		}
		if len(record) > 2 {
			row.Extra = append([]string(nil), record[2:]...)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("reading list: %w", err)
	}
	return res, nil
}

// splitRecord decodes one line as a comma separated record with trimmed
// fields.
func splitRecord(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	record, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	return record, nil
}

// isCombinator reports whether a list pattern introduces an AND rule.
func isCombinator(pattern string) bool {
	return strings.Contains(pattern, "AND")
}
