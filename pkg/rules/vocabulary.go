package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKeyword marks a raw keyword outside the vocabulary. Rows failing
// classification are dropped by Normalize and never reported.
var ErrUnknownKeyword = errors.New("unknown pattern keyword")

// synonyms is the source of truth for keyword normalization. It groups the
// raw, convention-specific spellings under their canonical kind. Lookups are
// case-sensitive: only the spellings listed here are recognized.
var synonyms = map[Kind][]string{
	KindDomainSuffix:  {"DOMAIN-SUFFIX", "HOST-SUFFIX"},
	KindDomain:        {"DOMAIN", "HOST", "host"},
	KindDomainKeyword: {"DOMAIN-KEYWORD", "HOST-KEYWORD", "host-keyword"},
	KindIPCIDR:        {"IP-CIDR", "ip-cidr", "IP-CIDR6", "IP6-CIDR"},
	KindSourceIPCIDR:  {"SRC-IP-CIDR"},
	KindGeoIP:         {"GEOIP"},
	KindPort:          {"DST-PORT"},
	KindSourcePort:    {"SRC-PORT"},
	KindDomainRegex:   {"URL-REGEX", "DOMAIN-REGEX"},
}

// Vocabulary maps raw pattern keywords to canonical kinds. The zero value
// recognizes nothing; use DefaultVocabulary or NewVocabulary.
type Vocabulary struct {
	keywords map[string]Kind
}

// DefaultVocabulary returns the fixed keyword table.
func DefaultVocabulary() Vocabulary {
	v, _ := NewVocabulary(synonyms)
	return v
}

// NewVocabulary builds a vocabulary from kind -> spellings. The table is
// copied, so later changes to the argument are not observed.
func NewVocabulary(table map[Kind][]string) (Vocabulary, error) {
	keywords := make(map[string]Kind)
	for kind, spellings := range table {
		if !kind.Valid() {
			return Vocabulary{}, fmt.Errorf("kind %q is not part of the vocabulary", kind)
		}
		for _, s := range spellings {
			if prev, ok := keywords[s]; ok && prev != kind {
				return Vocabulary{}, fmt.Errorf("keyword %q maps to both %s and %s", s, prev, kind)
			}
			keywords[s] = kind
		}
	}
	return Vocabulary{keywords: keywords}, nil
}

// Lookup resolves an exact raw keyword.
func (v Vocabulary) Lookup(keyword string) (Kind, bool) {
	kind, ok := v.keywords[keyword]
	return kind, ok
}

// Classify resolves a raw keyword, returning ErrUnknownKeyword for comment
// markers and spellings outside the table.
func (v Vocabulary) Classify(keyword string) (Kind, error) {
	if strings.Contains(keyword, "#") {
		return "", fmt.Errorf("%w: comment row %q", ErrUnknownKeyword, keyword)
	}
	kind, ok := v.keywords[keyword]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKeyword, keyword)
	}
	return kind, nil
}

// Len returns the number of recognized spellings.
func (v Vocabulary) Len() int { return len(v.keywords) }
