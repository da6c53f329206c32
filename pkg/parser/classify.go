package parser

import (
	"net/netip"
	"strings"

	"github.com/sw33tLie/ruleconv/pkg/rules"
)

// ClassifyLiteral infers the keyword of a payload entry that carries none:
// IP literals and networks become IP-CIDR, entries starting with '+' or '.'
// become DOMAIN-SUFFIX with the markers stripped, anything else is a DOMAIN.
func ClassifyLiteral(entry string) rules.RawRow {
	address := strings.Trim(entry, "'")
	switch {
	case IsIPNetwork(address):
		return rules.RawRow{Pattern: rules.KindIPCIDR.Keyword(), Address: address}
	case strings.HasPrefix(address, "+") || strings.HasPrefix(address, "."):
		return rules.RawRow{Pattern: rules.KindDomainSuffix.Keyword(), Address: strings.TrimLeft(address, "+.")}
	default:
		return rules.RawRow{Pattern: rules.KindDomain.Keyword(), Address: address}
	}
}

// IsIPNetwork reports whether s is a strict IPv4 or IPv6 network: either a
// bare address (an implicit /32 or /128) or a prefix with no host bits set.
func IsIPNetwork(s string) bool {
	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return false
		}
		return prefix == prefix.Masked()
	}
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Zone() == ""
}

// stripNoResolve drops a trailing ",no-resolve" style qualifier from CIDR values.
func stripNoResolve(kind rules.Kind, address string) string {
	if !kind.IsIPRange() || !strings.Contains(address, "no-resolve") {
		return address
	}
	before, _, _ := strings.Cut(address, ",")
	return strings.TrimSpace(before)
}
