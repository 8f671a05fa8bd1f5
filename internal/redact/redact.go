// Package redact strips personal data from free-form values before they
// leave the process. Ad pixel parameters are the main consumer: the
// Conversions API must never receive raw emails or phone numbers in
// custom data.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Kind is a category of personal data
type Kind string

const (
	KindEmail      Kind = "email"
	KindPhone      Kind = "phone"
	KindSSN        Kind = "ssn"
	KindCreditCard Kind = "credit_card"
)

// Match is one occurrence of personal data in a string
type Match struct {
	Kind  Kind
	Start int
	End   int
}

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\b[0-9]{3}\)?[-. ][0-9]{3}[-. ][0-9]{4}\b`)
	ssnPattern   = regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)
	cardPattern  = regexp.MustCompile(`\b(?:[0-9][ -]?){12,18}[0-9]\b`)
)

// Find returns the personal data in s ordered by position. Overlapping
// matches keep the earliest.
func Find(s string) []Match {
	var matches []Match
	add := func(kind Kind, re *regexp.Regexp, accept func(string) bool) {
		for _, loc := range re.FindAllStringIndex(s, -1) {
			if accept == nil || accept(s[loc[0]:loc[1]]) {
				matches = append(matches, Match{Kind: kind, Start: loc[0], End: loc[1]})
			}
		}
	}

	add(KindEmail, emailPattern, nil)
	add(KindSSN, ssnPattern, nil)
	add(KindCreditCard, cardPattern, luhn)
	add(KindPhone, phonePattern, nil)

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	kept := matches[:0]
	end := -1
	for _, m := range matches {
		if m.Start < end {
			continue
		}
		kept = append(kept, m)
		end = m.End
	}
	return kept
}

// Contains reports whether s holds any personal data
func Contains(s string) bool {
	return len(Find(s)) > 0
}

// String replaces personal data in s with a placeholder per kind
func String(s string) string {
	matches := Find(s)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m.Start])
		b.WriteString(placeholder(m.Kind))
		last = m.End
	}
	b.WriteString(s[last:])
	return b.String()
}

// Params returns a copy of params with every string value redacted,
// descending into nested maps and slices
func Params(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = value(v)
	}
	return out
}

func value(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]interface{}:
		return Params(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = value(e)
		}
		return out
	default:
		return v
	}
}

func placeholder(kind Kind) string {
	return "[" + strings.ToUpper(string(kind)) + "_REDACTED]"
}

// luhn validates a card number, ignoring spaces and dashes
func luhn(number string) bool {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(number)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
