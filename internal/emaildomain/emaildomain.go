// Package emaildomain extracts the domain portion of an email address and,
// where possible, its registrable (eTLD+1) form.
//
// Organizations register either exact email domains ("cs.example.edu") or a
// broad registrable suffix ("example.edu"). Matching therefore needs both the
// literal domain of an address and its public-suffix-derived registrable
// domain. The registrable lookup can fail (IP literals, bare TLDs, garbage
// input) — that is an ordinary outcome, not an error, so it is exposed as a
// two-value branch rather than an error return.
package emaildomain

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Domain is the lower-cased, trimmed domain part of an email address.
type Domain string

// Parse extracts the Domain from an email address. It reports false when the
// address contains no "@" — the only shape check this layer performs;
// stricter email validation belongs to the request-validation layer.
func Parse(email string) (Domain, bool) {
	_, rest, found := strings.Cut(email, "@")
	if !found {
		return "", false
	}
	return Domain(strings.ToLower(strings.TrimSpace(rest))), true
}

// Registrable returns the eTLD+1 of the domain ("mail.cs.example.edu" →
// "example.edu"). The second result is false when no registrable domain can
// be derived; callers treat that as "match on the literal domain only".
func (d Domain) Registrable() (string, bool) {
	reg, err := publicsuffix.EffectiveTLDPlusOne(string(d))
	if err != nil || reg == "" {
		return "", false
	}
	return reg, true
}

// MatchKeys returns every string the domain should be compared against an
// organization's registered domains: the domain itself, plus its registrable
// form when that differs.
func (d Domain) MatchKeys() []string {
	keys := []string{string(d)}
	if reg, ok := d.Registrable(); ok && reg != string(d) {
		keys = append(keys, reg)
	}
	return keys
}
