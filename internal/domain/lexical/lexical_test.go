package lexical

import (
	"reflect"
	"testing"

	"github.com/prodreg/reestr/internal/domain"
)

func TestTokenize_CyrillicAndLatin(t *testing.T) {
	tokens := Tokenize("Молоко ultra 3.2% ГОСТ 31450")

	want := []string{"молоко", "ultra", "гост", "31450"}
	if !reflect.DeepEqual(tokens.All, want) {
		t.Fatalf("unexpected tokens: %v", tokens.All)
	}
	if tokens.Primary != "молоко" {
		t.Fatalf("unexpected primary: %q", tokens.Primary)
	}
}

func TestTokenize_DropsShortTokens(t *testing.T) {
	tokens := Tokenize("а и молоко м")

	if !reflect.DeepEqual(tokens.All, []string{"молоко"}) {
		t.Fatalf("unexpected tokens: %v", tokens.All)
	}
}

func TestTokenize_UniqueFirstSeenOrder(t *testing.T) {
	tokens := Tokenize("молоко сухое молоко")

	if !reflect.DeepEqual(tokens.All, []string{"молоко", "сухое"}) {
		t.Fatalf("unexpected tokens: %v", tokens.All)
	}
}

func TestTokenize_PrimarySkipsDigitTokens(t *testing.T) {
	tokens := Tokenize("31450 гост2020 молоко")

	if tokens.Primary != "молоко" {
		t.Fatalf("unexpected primary: %q", tokens.Primary)
	}
}

func TestTokenize_NoLetters(t *testing.T) {
	tokens := Tokenize("12345 678")

	if tokens.Primary != "" {
		t.Fatalf("expected no primary token, got %q", tokens.Primary)
	}
}

func TestAlphabetic(t *testing.T) {
	tokens := Tokenize("молоко 31450 гост2020")

	want := []string{"молоко", "гост2020"}
	if got := tokens.Alphabetic(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected alphabetic tokens: %v", got)
	}
}

func TestExpandSynonyms_ExcludesOriginalTokens(t *testing.T) {
	tokens := Tokenize("молоко")
	vocab := ExpandSynonyms(tokens, nil, []string{"молоко", "молочный продукт"})

	want := []string{"молочный", "молочный продукт", "продукт"}
	if !reflect.DeepEqual(vocab.Terms, want) {
		t.Fatalf("unexpected terms: %v", vocab.Terms)
	}
}

func TestExpandSynonyms_PrimaryTerms(t *testing.T) {
	tokens := Tokenize("молоко сухое")
	pairs := []domain.SynonymPair{
		{Source: "молоко", Variant: "молочный напиток", Type: "expand"},
		{Source: "сухое", Variant: "обезвоженное", Type: "expand"},
	}
	vocab := ExpandSynonyms(tokens, pairs, nil)

	wantPrimary := []string{"молочный", "молочный напиток", "напиток"}
	if !reflect.DeepEqual(vocab.PrimaryTerms, wantPrimary) {
		t.Fatalf("unexpected primary terms: %v", vocab.PrimaryTerms)
	}
}

func TestScoreName_CountsAndPrimary(t *testing.T) {
	tokens := Tokenize("молоко сухое 25кг")
	vocab := ExpandSynonyms(tokens, nil, []string{"обезжиренное"})

	score := ScoreName("Молоко сухое обезжиренное ГОСТ", tokens, vocab)

	if score.Original != 2 {
		t.Errorf("original matches = %d, want 2", score.Original)
	}
	if score.Synonyms != 1 {
		t.Errorf("synonym matches = %d, want 1", score.Synonyms)
	}
	if score.Total() != 3 {
		t.Errorf("total = %d, want 3", score.Total())
	}
	if !score.Primary {
		t.Error("expected primary match")
	}
}

func TestScoreName_PrimaryViaSynonym(t *testing.T) {
	tokens := Tokenize("молоко")
	pairs := []domain.SynonymPair{{Source: "молоко", Variant: "сливки", Type: "replace"}}
	vocab := ExpandSynonyms(tokens, pairs, nil)

	score := ScoreName("Сливки питьевые", tokens, vocab)

	if score.Original != 0 {
		t.Errorf("original matches = %d, want 0", score.Original)
	}
	if !score.Primary {
		t.Error("expected primary match via synonym term")
	}
}

func TestScoreName_NoPrimaryToken(t *testing.T) {
	tokens := Tokenize("31450")
	vocab := ExpandSynonyms(tokens, nil, nil)

	if s := ScoreName("ГОСТ 31450 молоко", tokens, vocab); !s.Primary {
		t.Error("any match should count as primary when the query has no primary token")
	}
	if s := ScoreName("ГОСТ 12345", tokens, vocab); s.Primary {
		t.Error("no match must not count as primary")
	}
}
