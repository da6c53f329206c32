// Package rules holds the unified rule model: the closed pattern vocabulary,
// normalization of raw rows, aggregation into a rule document and linting.
package rules

// Kind is a canonical pattern kind. Its string value is the key used in the
// serialized rule document.
type Kind string

const (
	KindDomainSuffix  Kind = "domain_suffix"
	KindDomain        Kind = "domain"
	KindDomainKeyword Kind = "domain_keyword"
	KindIPCIDR        Kind = "ip_cidr"
	KindSourceIPCIDR  Kind = "source_ip_cidr"
	KindGeoIP         Kind = "geoip"
	KindPort          Kind = "port"
	KindSourcePort    Kind = "source_port"
	KindDomainRegex   Kind = "domain_regex"
)

// Kinds lists the whole vocabulary.
var Kinds = []Kind{
	KindDomainSuffix,
	KindDomain,
	KindDomainKeyword,
	KindIPCIDR,
	KindSourceIPCIDR,
	KindGeoIP,
	KindPort,
	KindSourcePort,
	KindDomainRegex,
}

// Valid reports whether k belongs to the vocabulary.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsIPRange reports whether values of this kind are CIDR ranges, which may
// carry a trailing no-resolve qualifier upstream.
func (k Kind) IsIPRange() bool {
	return k == KindIPCIDR || k == KindSourceIPCIDR
}

// Keyword returns the primary raw spelling for k, as used by list sources.
func (k Kind) Keyword() string {
	if spellings, ok := synonyms[k]; ok && len(spellings) > 0 {
		return spellings[0]
	}
	return ""
}

func (k Kind) String() string { return string(k) }
