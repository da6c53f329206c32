package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sw33tLie/ruleconv/pkg/rules"
)

func TestClassifyLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  rules.RawRow
	}{
		{"ipv4", "1.2.3.4", rules.RawRow{Pattern: "IP-CIDR", Address: "1.2.3.4"}},
		{"ipv6", "2001:db8::1", rules.RawRow{Pattern: "IP-CIDR", Address: "2001:db8::1"}},
		{"ipv4 network", "192.168.1.0/24", rules.RawRow{Pattern: "IP-CIDR", Address: "192.168.1.0/24"}},
		{"ipv6 network", "2001:db8::/32", rules.RawRow{Pattern: "IP-CIDR", Address: "2001:db8::/32"}},
		{"domain", "example.com", rules.RawRow{Pattern: "DOMAIN", Address: "example.com"}},
		{"plus suffix", "+example.com", rules.RawRow{Pattern: "DOMAIN-SUFFIX", Address: "example.com"}},
		{"dot suffix", ".example.com", rules.RawRow{Pattern: "DOMAIN-SUFFIX", Address: "example.com"}},
		{"plus dot suffix", "+.example.com", rules.RawRow{Pattern: "DOMAIN-SUFFIX", Address: "example.com"}},
		{"quoted", "'example.com'", rules.RawRow{Pattern: "DOMAIN", Address: "example.com"}},
		{"host bits set", "192.168.1.1/24", rules.RawRow{Pattern: "DOMAIN", Address: "192.168.1.1/24"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLiteral(tt.input))
		})
	}
}

func TestIsIPNetwork(t *testing.T) {
	for _, s := range []string{"1.2.3.4", "10.0.0.0/8", "::1", "::/0", "::ffff:1.2.3.4"} {
		assert.True(t, IsIPNetwork(s), s)
	}
	for _, s := range []string{"", "example.com", "1.2.3", "10.0.0.1/8", "1.2.3.4/33", "fe80::1%eth0", "300.1.1.1"} {
		assert.False(t, IsIPNetwork(s), s)
	}
}

func TestStripNoResolve(t *testing.T) {
	assert.Equal(t, "1.0.0.0/8", stripNoResolve(rules.KindIPCIDR, "1.0.0.0/8,no-resolve"))
	assert.Equal(t, "1.0.0.0/8", stripNoResolve(rules.KindSourceIPCIDR, "1.0.0.0/8, no-resolve"))
	assert.Equal(t, "a.com,no-resolve", stripNoResolve(rules.KindDomain, "a.com,no-resolve"))
	assert.Equal(t, "1.0.0.0/8,DIRECT", stripNoResolve(rules.KindIPCIDR, "1.0.0.0/8,DIRECT"))
}
