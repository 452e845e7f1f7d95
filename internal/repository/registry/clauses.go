package registry

import (
	"strings"

	"github.com/prodreg/reestr/internal/domain/filterset"
)

// BuildClauses translates a parsed filter set into SQL predicate clauses with
// `?` placeholders (rebound to $N before execution) and the matching ordered
// arguments. alias prefixes column references ("r." in the semantic join,
// "" in the plain query). Filters are advisory: empty or degenerate values
// contribute no clause rather than failing.
func BuildClauses(f filterset.Set, alias string) ([]string, []any) {
	b := clauseBuilder{alias: alias}

	// Universal code: each alternative matches either an exact inn or a
	// substring of tnved; alternatives are OR-combined.
	if parts := f.Code.Parts(); len(parts) > 0 {
		conds := make([]string, 0, len(parts))
		for _, v := range parts {
			conds = append(conds, "("+b.col("inn")+" = ? OR "+b.col("tnved")+" ILIKE ?)")
			b.args = append(b.args, v, like(v))
		}
		b.clauses = append(b.clauses, "("+strings.Join(conds, " OR ")+")")
	}

	b.equality("inn", f.INN)
	b.substring("tnved", f.TNVED)

	if parts := f.OKPD2.Parts(); len(parts) > 0 {
		b.clauses = append(b.clauses, b.col("okpd2")+" ILIKE ?")
		b.args = append(b.args, like(parts[0]))
	}

	// The registration number lives in one of two legacy/current columns.
	if parts := f.RegNumber.Parts(); len(parts) > 0 {
		b.clauses = append(b.clauses, "("+b.col("regnumber")+" = ? OR "+b.col("registernumber")+" = ?)")
		b.args = append(b.args, parts[0], parts[0])
	}

	b.terms("nameoforg", f.NameOfOrg)
	b.terms("productname", f.ProductName)

	return b.clauses, b.args
}

type clauseBuilder struct {
	alias   string
	clauses []string
	args    []any
}

func (b *clauseBuilder) col(name string) string { return b.alias + name }

// equality emits exact-match clauses: AnyOf becomes one OR-group, AllOf
// becomes separate AND-combined clauses.
func (b *clauseBuilder) equality(column string, v filterset.Value) {
	parts := v.Parts()
	if len(parts) == 0 {
		return
	}
	switch v.Kind() {
	case filterset.AnyOf:
		conds := make([]string, 0, len(parts))
		for _, p := range parts {
			conds = append(conds, b.col(column)+" = ?")
			b.args = append(b.args, p)
		}
		b.clauses = append(b.clauses, "("+strings.Join(conds, " OR ")+")")
	default:
		for _, p := range parts {
			b.clauses = append(b.clauses, b.col(column)+" = ?")
			b.args = append(b.args, p)
		}
	}
}

// substring emits case-insensitive substring clauses with the same OR/AND
// grouping as equality.
func (b *clauseBuilder) substring(column string, v filterset.Value) {
	parts := v.Parts()
	if len(parts) == 0 {
		return
	}
	switch v.Kind() {
	case filterset.AnyOf:
		conds := make([]string, 0, len(parts))
		for _, p := range parts {
			conds = append(conds, b.col(column)+" ILIKE ?")
			b.args = append(b.args, like(p))
		}
		b.clauses = append(b.clauses, "("+strings.Join(conds, " OR ")+")")
	default:
		for _, p := range parts {
			b.clauses = append(b.clauses, b.col(column)+" ILIKE ?")
			b.args = append(b.args, like(p))
		}
	}
}

// terms emits free-text term clauses: AnyOf is one OR-group of substring
// matches, anything else is AND-required substring matches.
func (b *clauseBuilder) terms(column string, v filterset.Value) {
	parts := v.Parts()
	if len(parts) == 0 {
		return
	}
	if v.Kind() == filterset.AnyOf {
		conds := make([]string, 0, len(parts))
		for _, p := range parts {
			conds = append(conds, b.col(column)+" ILIKE ?")
			b.args = append(b.args, like(p))
		}
		b.clauses = append(b.clauses, "("+strings.Join(conds, " OR ")+")")
		return
	}
	for _, p := range parts {
		b.clauses = append(b.clauses, b.col(column)+" ILIKE ?")
		b.args = append(b.args, like(p))
	}
}

func like(v string) string { return "%" + v + "%" }
