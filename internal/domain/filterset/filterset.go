// Package filterset parses the registry's multi-value filter encoding into
// tagged values. The wire contract is fixed: `|` separates OR alternatives,
// `,` separates AND conjuncts, and free-text fields use `^` (OR) and `$` or
// whitespace (AND) term splitting. Values are parsed eagerly here so that
// clause generation never re-branches on delimiter presence.
package filterset

import "strings"

// Kind tags how a filter value combines its parts.
type Kind int

const (
	// Empty means the filter was not supplied.
	Empty Kind = iota
	// Single is one plain value.
	Single
	// AnyOf is an OR-group: any alternative may match.
	AnyOf
	// AllOf is an AND-group: every conjunct must match.
	AllOf
)

// Value is a parsed filter value. An OR-group and an AND-group are mutually
// exclusive: the first delimiter found in the raw value decides the kind.
type Value struct {
	kind  Kind
	raw   string
	parts []string
}

// Kind reports how the parts combine.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the filter was supplied at all.
func (v Value) IsEmpty() bool { return v.kind == Empty }

// IsSingle reports whether the value is one plain part with no group
// delimiters. The attempt planner only narrows single classification codes.
func (v Value) IsSingle() bool { return v.kind == Single }

// Parts returns the split values in input order.
func (v Value) Parts() []string { return v.parts }

// Raw returns the original wire value.
func (v Value) Raw() string { return v.raw }

// ParseMulti parses an exact-match style filter (inn, tnved, code):
// `|` wins over `,`, and a value without either delimiter is Single.
func ParseMulti(raw string) Value {
	if raw == "" {
		return Value{}
	}
	switch {
	case strings.Contains(raw, "|"):
		return Value{kind: AnyOf, raw: raw, parts: splitTrim(raw, "|")}
	case strings.Contains(raw, ","):
		return Value{kind: AllOf, raw: raw, parts: splitTrim(raw, ",")}
	default:
		return Value{kind: Single, raw: raw, parts: []string{raw}}
	}
}

// ParseSingle parses a filter that never splits (okpd2, regnumber).
func ParseSingle(raw string) Value {
	if raw == "" {
		return Value{}
	}
	return Value{kind: Single, raw: raw, parts: []string{raw}}
}

// ParseTerms parses a free-text filter (nameoforg, productname): with `^`
// present the terms are OR-combined, otherwise the value is a `$`-or-space
// separated list of AND-required terms.
func ParseTerms(raw string) Value {
	if raw == "" {
		return Value{}
	}
	if strings.Contains(raw, "^") {
		parts := splitFunc(raw, func(r rune) bool { return r == '^' || r == '$' })
		return Value{kind: AnyOf, raw: raw, parts: parts}
	}
	parts := splitFunc(raw, func(r rune) bool { return r == '$' || r == ' ' || r == '\t' })
	if len(parts) == 1 {
		return Value{kind: Single, raw: raw, parts: parts}
	}
	return Value{kind: AllOf, raw: raw, parts: parts}
}

// NormalizeRegNumber strips surrounding whitespace and quotes and unifies the
// separator to a backslash, the registry's canonical form.
func NormalizeRegNumber(raw string) string {
	v := strings.TrimSpace(raw)
	v = strings.Trim(v, `"`)
	v = strings.TrimSpace(v)
	return strings.ReplaceAll(v, "/", `\`)
}

// Set carries every filter the registry endpoints accept. A zero Set means no
// filtering.
type Set struct {
	INN         Value
	TNVED       Value
	OKPD2       Value
	RegNumber   Value
	NameOfOrg   Value
	ProductName Value
	Code        Value
}

// New parses all raw filter values at once. The registration number is
// normalized before parsing.
func New(inn, tnved, okpd2, regNumber, nameOfOrg, productName, code string) Set {
	return Set{
		INN:         ParseMulti(inn),
		TNVED:       ParseMulti(tnved),
		OKPD2:       ParseSingle(okpd2),
		RegNumber:   ParseSingle(NormalizeRegNumber(regNumber)),
		NameOfOrg:   ParseTerms(nameOfOrg),
		ProductName: ParseTerms(productName),
		Code:        ParseMulti(code),
	}
}

// IsEmpty reports whether no filter was supplied.
func (s Set) IsEmpty() bool {
	return s.INN.IsEmpty() && s.TNVED.IsEmpty() && s.OKPD2.IsEmpty() &&
		s.RegNumber.IsEmpty() && s.NameOfOrg.IsEmpty() &&
		s.ProductName.IsEmpty() && s.Code.IsEmpty()
}

// WithTNVED returns a copy with the classification filter replaced. An empty
// raw value removes the filter.
func (s Set) WithTNVED(raw string) Set {
	s.TNVED = ParseMulti(raw)
	return s
}

// WithCode returns a copy with the universal code filter replaced.
func (s Set) WithCode(raw string) Set {
	s.Code = ParseMulti(raw)
	return s
}

func splitTrim(raw, sep string) []string {
	var parts []string
	for _, p := range strings.Split(raw, sep) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func splitFunc(raw string, f func(rune) bool) []string {
	var parts []string
	for _, p := range strings.FieldsFunc(raw, f) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
