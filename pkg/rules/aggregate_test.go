package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateDomainSetDedup(t *testing.T) {
	rows := Normalize([]RawRow{
		{Pattern: "DOMAIN", Address: "a.com"},
		{Pattern: "HOST", Address: "a.com"},
		{Pattern: "DOMAIN", Address: "b.com"},
	}, DefaultVocabulary())

	doc := Aggregate(rows, nil)
	require.Len(t, doc.Rules, 1)
	require.NotNil(t, doc.Rules[0].Flat)
	assert.Equal(t, KindDomain, doc.Rules[0].Flat.Kind)
	assert.ElementsMatch(t, []string{"a.com", "b.com"}, doc.Rules[0].Flat.Values)
}

func TestAggregateOrdering(t *testing.T) {
	rows := []Row{
		{Kind: KindDomainSuffix, Value: "a.com"},
		{Kind: KindIPCIDR, Value: "192.168.1.0/24"},
		{Kind: KindDomain, Value: "z.com"},
		{Kind: KindDomainKeyword, Value: "ads"},
		{Kind: KindDomainSuffix, Value: " b.com "},
	}
	logical := []LogicalRule{{Mode: ModeAnd, Clauses: []Clause{
		{Kind: KindDomain, Value: "foo.com"},
		{Kind: KindGeoIP, Value: "CN"},
	}}}

	doc := Aggregate(rows, logical)
	require.Len(t, doc.Rules, 5)

	assert.Equal(t, KindDomain, doc.Rules[0].Flat.Kind, "domain goes first")
	assert.Equal(t, KindDomainSuffix, doc.Rules[1].Flat.Kind)
	assert.Equal(t, []string{"a.com", "b.com"}, doc.Rules[1].Flat.Values)
	assert.Equal(t, KindIPCIDR, doc.Rules[2].Flat.Kind)
	assert.Equal(t, KindDomainKeyword, doc.Rules[3].Flat.Kind)
	require.NotNil(t, doc.Rules[4].Logical)
	assert.Equal(t, logical[0].Clauses, doc.Rules[4].Logical.Clauses)
}

func TestAggregateOneGroupPerKind(t *testing.T) {
	rows := []Row{
		{Kind: KindPort, Value: "80"},
		{Kind: KindGeoIP, Value: "CN"},
		{Kind: KindPort, Value: "443"},
	}

	doc := Aggregate(rows, nil)
	seen := map[Kind]int{}
	for _, e := range doc.Rules {
		seen[e.Flat.Kind]++
	}
	assert.Equal(t, map[Kind]int{KindPort: 1, KindGeoIP: 1}, seen)
}

func TestAggregateSkipsEmptyLogical(t *testing.T) {
	doc := Aggregate(nil, []LogicalRule{{Mode: ModeAnd}})
	assert.True(t, doc.Empty())
	assert.Equal(t, DocumentVersion, doc.Version)
}

func TestDocumentTree(t *testing.T) {
	doc := Aggregate([]Row{{Kind: KindGeoIP, Value: "CN"}}, []LogicalRule{{Mode: ModeAnd, Clauses: []Clause{
		{Kind: KindDomain, Value: "foo.com"},
		{Kind: KindGeoIP, Value: "CN"},
	}}})

	want := map[string]any{
		"version": 1,
		"rules": []any{
			map[string]any{"geoip": []any{"CN"}},
			map[string]any{
				"type": "logical",
				"mode": "and",
				"rules": []any{
					map[string]any{"domain": "foo.com"},
					map[string]any{"geoip": "CN"},
				},
			},
		},
	}
	assert.Equal(t, want, doc.Tree())
	assert.Equal(t, map[string]int{"geoip": 1, "logical": 1}, doc.Counts())
}
