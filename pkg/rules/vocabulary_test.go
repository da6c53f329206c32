package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultVocabularySynonyms(t *testing.T) {
	vocab := DefaultVocabulary()

	tests := []struct {
		keyword string
		want    Kind
	}{
		{"DOMAIN-SUFFIX", KindDomainSuffix},
		{"HOST-SUFFIX", KindDomainSuffix},
		{"DOMAIN", KindDomain},
		{"HOST", KindDomain},
		{"host", KindDomain},
		{"DOMAIN-KEYWORD", KindDomainKeyword},
		{"HOST-KEYWORD", KindDomainKeyword},
		{"host-keyword", KindDomainKeyword},
		{"IP-CIDR", KindIPCIDR},
		{"ip-cidr", KindIPCIDR},
		{"IP-CIDR6", KindIPCIDR},
		{"IP6-CIDR", KindIPCIDR},
		{"SRC-IP-CIDR", KindSourceIPCIDR},
		{"GEOIP", KindGeoIP},
		{"DST-PORT", KindPort},
		{"SRC-PORT", KindSourcePort},
		{"URL-REGEX", KindDomainRegex},
		{"DOMAIN-REGEX", KindDomainRegex},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			got, err := vocab.Classify(tt.keyword)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, len(tests), vocab.Len())
}

func TestClassifyRejects(t *testing.T) {
	vocab := DefaultVocabulary()

	for _, keyword := range []string{"Domain", "PROCESS-NAME", "USER-AGENT", "# DOMAIN", "DOMAIN#x", ""} {
		_, err := vocab.Classify(keyword)
		if !errors.Is(err, ErrUnknownKeyword) {
			t.Fatalf("keyword %q: expected ErrUnknownKeyword, got %v", keyword, err)
		}
	}
}

func TestNewVocabularyCopiesTable(t *testing.T) {
	table := map[Kind][]string{KindDomain: {"DOMAIN"}}
	vocab, err := NewVocabulary(table)
	require.NoError(t, err)

	table[KindGeoIP] = []string{"GEOIP"}
	_, ok := vocab.Lookup("GEOIP")
	assert.False(t, ok, "vocabulary must not observe later table changes")
}

func TestNewVocabularyRejectsConflicts(t *testing.T) {
	_, err := NewVocabulary(map[Kind][]string{
		KindDomain:       {"HOST"},
		KindDomainSuffix: {"HOST"},
	})
	assert.Error(t, err)

	_, err = NewVocabulary(map[Kind][]string{"process_name": {"PROCESS-NAME"}})
	assert.Error(t, err)
}

func TestKindKeyword(t *testing.T) {
	assert.Equal(t, "DOMAIN-SUFFIX", KindDomainSuffix.Keyword())
	assert.Equal(t, "IP-CIDR", KindIPCIDR.Keyword())
	assert.Equal(t, "DST-PORT", KindPort.Keyword())
	assert.True(t, KindSourceIPCIDR.IsIPRange())
	assert.False(t, KindGeoIP.IsIPRange())
	assert.Len(t, Kinds, 9)
}
