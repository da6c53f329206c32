package rules

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/weppos/publicsuffix-go/publicsuffix"
	"golang.org/x/net/idna"
)

// Warning describes a rule that converts fine but is likely a mistake upstream.
type Warning struct {
	Kind    Kind
	Value   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %q: %s", w.Kind, w.Value, w.Message)
}

// Lint inspects a document for suspicious values. It never rejects anything.
func Lint(doc Document) []Warning {
	var warnings []Warning
	for _, e := range doc.Rules {
		if e.Flat == nil {
			continue
		}
		switch e.Flat.Kind {
		case KindDomain, KindDomainSuffix:
		default:
			continue
		}
		for _, v := range e.Flat.Values {
			if msg, ok := checkIDN(v); !ok {
				warnings = append(warnings, Warning{Kind: e.Flat.Kind, Value: v, Message: msg})
			}
			if e.Flat.Kind == KindDomainSuffix && isPublicSuffix(v) {
				warnings = append(warnings, Warning{
					Kind:    e.Flat.Kind,
					Value:   v,
					Message: "covers an entire public suffix",
				})
			}
		}
	}
	return warnings
}

// checkIDN flags non-ASCII names. Clients match on the wire form, so a
// Unicode name never matches.
func checkIDN(name string) (string, bool) {
	ascii := true
	for i := 0; i < len(name); i++ {
		if name[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return "", true
	}
	converted, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return fmt.Sprintf("not a valid internationalized name: %v", err), false
	}
	return fmt.Sprintf("non-ASCII name, clients only match %s", converted), false
}

// isPublicSuffix reports whether name is itself listed as a public suffix,
// i.e. no registrable domain can be derived from it.
func isPublicSuffix(name string) bool {
	name = strings.Trim(strings.ToLower(name), ".")
	if name == "" || strings.ContainsAny(name, "*/: ") {
		return false
	}
	if _, err := publicsuffix.Domain(name); err == nil {
		return false
	}
	// Without a default rule, unknown TLDs such as "lan" or "local" are not
	// reported.
	rule := publicsuffix.DefaultList.Find(name, &publicsuffix.FindOptions{IgnorePrivate: false})
	return rule != nil && rule.Match(name)
}
