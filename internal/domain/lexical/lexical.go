// Package lexical scores registry rows by token overlap with the query text.
// Pure vector similarity is noisy for short catalog product names; substring
// token matching is a cheap, explainable signal that breaks distance ties.
package lexical

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/prodreg/reestr/internal/domain"
)

var tokenRe = regexp.MustCompile(`[0-9A-Za-zА-Яа-яЁё№/\\*-]+`)

// Tokens is the tokenized query: unique tokens in first-occurrence order and
// the primary (anchor) token — the first token containing a letter and no
// digit, or "" when the query has none.
type Tokens struct {
	All     []string
	Primary string
}

// Tokenize lowercases the text and extracts alphanumeric tokens (Cyrillic and
// Latin), discarding tokens shorter than two characters.
func Tokenize(text string) Tokens {
	var t Tokens
	seen := make(map[string]struct{})
	for _, raw := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		tok := strings.TrimSpace(raw)
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		if _, ok := seen[tok]; !ok {
			t.All = append(t.All, tok)
			seen[tok] = struct{}{}
		}
		if t.Primary == "" && hasLetter(tok) && !hasDigit(tok) {
			t.Primary = tok
		}
	}
	return t
}

// Alphabetic returns the tokens containing at least one letter, in token
// order. These drive the lexical fallback queries.
func (t Tokens) Alphabetic() []string {
	var out []string
	for _, tok := range t.All {
		if hasLetter(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// Vocabulary is the synonym-expanded search vocabulary: terms added beyond
// the original tokens, and the subset associated with the primary token.
type Vocabulary struct {
	Terms        []string
	PrimaryTerms []string
}

// ExpandSynonyms builds the vocabulary from the embedding service's synonym
// data. Every expansion string and each of its constituent words becomes a
// term unless it duplicates an original token. Variants whose source equals
// the primary token also register as primary terms.
func ExpandSynonyms(t Tokens, pairs []domain.SynonymPair, expansions []string) Vocabulary {
	base := make(map[string]struct{}, len(t.All))
	for _, tok := range t.All {
		base[tok] = struct{}{}
	}

	terms := make(map[string]struct{})
	primary := make(map[string]struct{})

	register := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return
		}
		if _, ok := base[term]; ok {
			return
		}
		terms[term] = struct{}{}
	}

	for _, item := range expansions {
		register(item)
		for _, part := range strings.Fields(item) {
			register(part)
		}
	}

	for _, pair := range pairs {
		source := strings.ToLower(strings.TrimSpace(pair.Source))
		variant := strings.ToLower(strings.TrimSpace(pair.Variant))
		if variant == "" {
			continue
		}
		register(variant)
		for _, part := range strings.Fields(variant) {
			register(part)
		}
		if t.Primary != "" && source == t.Primary {
			primary[variant] = struct{}{}
			for _, part := range strings.Fields(variant) {
				primary[part] = struct{}{}
			}
		}
	}

	return Vocabulary{Terms: sortedKeys(terms), PrimaryTerms: sortedKeys(primary)}
}

// Score is the lexical signal for one row.
type Score struct {
	Original int
	Synonyms int
	Primary  bool
}

// Total is the combined token match count.
func (s Score) Total() int { return s.Original + s.Synonyms }

// ScoreName counts query tokens and synonym terms appearing as substrings in
// the product name (case folded by the caller's tokenization; the name is
// lowercased here). Primary is true when the primary token or any of its
// synonym terms occurs; with no primary token, any match at all counts.
func ScoreName(name string, t Tokens, v Vocabulary) Score {
	product := strings.ToLower(name)

	var s Score
	for _, tok := range t.All {
		if tok != "" && strings.Contains(product, tok) {
			s.Original++
		}
	}
	for _, term := range v.Terms {
		if term != "" && strings.Contains(product, term) {
			s.Synonyms++
		}
	}

	if t.Primary != "" {
		s.Primary = strings.Contains(product, t.Primary)
		if !s.Primary {
			for _, term := range v.PrimaryTerms {
				if strings.Contains(product, term) {
					s.Primary = true
					break
				}
			}
		}
	} else {
		s.Primary = s.Total() > 0
	}
	return s
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
