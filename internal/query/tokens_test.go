package query

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	t.Parallel()
	got, err := Tokenize(`foo "bar \"baz\"" (AND) Or not "and"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []Token{
		{Kind: TokenTerm, Term: "foo"},
		{Kind: TokenTerm, Term: `bar "baz"`, Quoted: true},
		{Kind: TokenGroupOpen, Term: "("},
		{Kind: TokenAnd, Term: "AND"},
		{Kind: TokenGroupClose, Term: ")"},
		{Kind: TokenOr, Term: "Or"},
		{Kind: TokenNot, Term: "not"},
		{Kind: TokenTerm, Term: "and", Quoted: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize = %+v, want %+v", got, want)
	}
}

func TestTokenizeBareTermStopsAtParens(t *testing.T) {
	t.Parallel()
	got, err := Tokenize("(err*)\tx")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var terms []string
	for _, tok := range got {
		terms = append(terms, tok.Term)
	}
	if strings.Join(terms, " ") != "( err* ) x" {
		t.Fatalf("terms = %q, want %q", terms, []string{"(", "err*", ")", "x"})
	}
}

func TestTokenizeUnclosedString(t *testing.T) {
	t.Parallel()
	_, err := Tokenize(`foo "abc`)
	if !errors.Is(err, ErrUnclosedString) {
		t.Fatalf("err = %v, want ErrUnclosedString", err)
	}
	if !strings.Contains(err.Error(), "at character 4") {
		t.Fatalf("err = %q, want position 4", err)
	}
}
