// Package sources reads source lists and derives output names from source
// identifiers.
package sources

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sw33tLie/ruleconv/internal/utils"
)

// Load reads a links file: one source identifier per line. Blank lines and
// lines starting with '#' are skipped.
func Load(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ids, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return ids, nil
}

// Read parses a links list from r. A line that still contains whitespace
// after trimming is kept as is and only warned about; it fails on its own
// when fetched.
func Read(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.ContainsAny(line, " \t") {
			utils.Log.Warnf("links line %d: source identifier contains whitespace: %q", lineNum, line)
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// BaseName returns the last path segment of a source identifier with
// everything from its first '.' removed, so ".../AdBlock.list" and
// ".../AdBlock.yaml" both become "AdBlock". Query strings and fragments are
// ignored.
func BaseName(sourceID string) string {
	p := sourceID
	if u, err := url.Parse(sourceID); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	}

	var base string
	if strings.Contains(p, "/") {
		base = path.Base(p)
	} else {
		base = filepath.Base(p)
	}
	if base == "/" || base == "." {
		return ""
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}
