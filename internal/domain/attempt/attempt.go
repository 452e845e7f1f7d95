// Package attempt plans the progressive filter relaxation ladder for
// semantic search. Classification codes are hierarchical: the 4/6/8-digit
// ancestors of a 10-digit code are valid looser matches, so over-specific
// codes supplied by callers are retried at shorter prefixes before the
// classification filter is dropped entirely.
package attempt

import (
	"strconv"
	"strings"

	"github.com/prodreg/reestr/internal/domain/filterset"
)

// prefixLengths are the classification hierarchy levels, most specific first.
var prefixLengths = [...]int{10, 8, 6, 4}

// Attempt is one filter combination to try against the store. Attempts are
// ordered most-specific first; the first one yielding rows wins.
type Attempt struct {
	Label          string
	TNVED          string
	Code           string
	RemovedFilters []string
}

// Plan builds the ordered attempt list for the given original classification
// and universal code filters:
//
//  1. the original filters, unmodified;
//  2. digit-prefix attempts for a single classification value;
//  3. otherwise, code-digits reinterpreted as classification prefixes;
//  4. a final attempt with the classification filter removed.
//
// Attempts with an identical (tnved, code) pair are deduplicated, first
// occurrence wins. Output length is bounded by 10.
func Plan(tnved, code filterset.Value) []Attempt {
	p := planner{seen: make(map[[2]string]struct{})}

	p.add("original", tnved.Raw(), code.Raw(), nil)

	tnvedDigits := ""
	if tnved.IsSingle() {
		tnvedDigits = stripNonDigits(tnved.Raw())
	}
	if tnvedDigits != "" {
		for _, length := range prefixLengths {
			if length < len(tnvedDigits) {
				p.add(labelFor("tnved_prefix", length), tnvedDigits[:length], code.Raw(), nil)
			}
		}
	}

	if tnvedDigits == "" && code.IsSingle() {
		codeDigits := stripNonDigits(code.Raw())
		for _, length := range prefixLengths {
			if len(codeDigits) >= length {
				p.add(labelFor("code_as_tnved", length), codeDigits[:length], "", []string{"code"})
			}
		}
	}

	if tnvedDigits != "" || !tnved.IsEmpty() {
		p.add("tnved_removed", "", code.Raw(), []string{"tnved"})
	}

	return p.attempts
}

type planner struct {
	attempts []Attempt
	seen     map[[2]string]struct{}
}

func (p *planner) add(label, tnved, code string, removed []string) {
	key := [2]string{tnved, code}
	if _, ok := p.seen[key]; ok {
		return
	}
	p.seen[key] = struct{}{}
	p.attempts = append(p.attempts, Attempt{
		Label:          label,
		TNVED:          tnved,
		Code:           code,
		RemovedFilters: removed,
	})
}

func labelFor(prefix string, length int) string {
	return prefix + "_" + strconv.Itoa(length)
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
