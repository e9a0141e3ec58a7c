package query

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tinytelemetry/tailview/internal/model"
)

func mustCompile(t *testing.T, text string, opts Options) *Matcher {
	t.Helper()
	m, err := Compile(text, opts)
	if err != nil {
		t.Fatalf("Compile(%q): %v", text, err)
	}
	return m
}

func TestWildcardPattern(t *testing.T) {
	t.Parallel()
	tests := []struct {
		term string
		want string
	}{
		{"error", `\berror\b`},
		{"err*", `\berr`},
		{"*ror", `ror\b`},
		{"e*r", `\be[^\w']*r\b`},
		{"foo.bar", `\bfoo[^\w']+bar\b`},
		{"don't", `\bdon't\b`},
		{"-x-", `\bx\b`},
	}
	for _, tt := range tests {
		got, ok := wildcardPattern(tt.term)
		if !ok || got != tt.want {
			t.Errorf("wildcardPattern(%q) = %s, %v; want %s, true", tt.term, got, ok, tt.want)
		}
	}
}

func TestCompileRejectsTermsWithoutWords(t *testing.T) {
	t.Parallel()
	for _, text := range []string{"*", "**", "-", "==", "error and *", `""`} {
		if _, err := Compile(text, Options{}); !errors.Is(err, ErrEmptyTerm) {
			t.Errorf("Compile(%q) err = %v, want %v", text, err, ErrEmptyTerm)
		}
	}
}

func TestQuotedPhrasePositions(t *testing.T) {
	t.Parallel()
	m := mustCompile(t, `"error"`, Options{})
	spans, ok := m.Positions("An error occurred")
	if !ok {
		t.Fatal("expected match")
	}
	want := []model.Span{{Start: 3, End: 8}}
	if !reflect.DeepEqual(spans, want) {
		t.Fatalf("Positions = %+v, want %+v", spans, want)
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		query string
		opts  Options
		input string
		want  bool
	}{
		{`"a.b"`, Options{}, "axb", false},
		{`"a.b"`, Options{}, "see a.b here", true},
		{"error", Options{}, "errors", false},
		{"err*", Options{}, "errors", true},
		{"*ror", Options{}, "terror", true},
		{"e*r", Options{}, "error", false},
		{"e*r", Options{}, "e r", true},
		{"foo*bar", Options{}, "foo - bar", true},
		{"foo*bar", Options{}, "foobar", true},
		{"foo*bar", Options{}, "fooXYZbar", false},
		{"foo.bar", Options{}, "foo - bar", true},
		{"ERROR", Options{}, "error", false},
		{"ERROR", Options{CaseInsensitive: true}, "error", true},
		{"a b", Options{}, "a b", true},
		{"a b", Options{}, "a", false},
		{"a and b or c", Options{}, "c", true},
		{"a or b and c", Options{}, "a", false},
		{"not error", Options{}, "all fine", true},
		{"not error", Options{}, "an error", false},
		{"not (debug or trace) timeout", Options{}, "timeout on db", true},
		{"not (debug or trace) timeout", Options{}, "trace timeout", false},
	}
	for _, tt := range tests {
		m := mustCompile(t, tt.query, tt.opts)
		if got := m.Match(tt.input); got != tt.want {
			t.Errorf("Compile(%q).Match(%q) = %v, want %v", tt.query, tt.input, got, tt.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	t.Parallel()
	m := mustCompile(t, "error not debug", Options{})
	if !m.MatchAny([]string{"error here", "info"}) {
		t.Fatal("expected match when one item has error and none has debug")
	}
	if m.MatchAny([]string{"error here", "debug x"}) {
		t.Fatal("negated term must fail when any item contains it")
	}
	if !mustCompile(t, "not debug", Options{}).MatchAny(nil) {
		t.Fatal("negated term over no items should match")
	}
}

func TestPositionsCombinations(t *testing.T) {
	t.Parallel()

	and := mustCompile(t, "error timeout", Options{})
	if spans, ok := and.Positions("error only"); ok || spans != nil {
		t.Fatalf("AND with missing side = %+v, %v; want nil, false", spans, ok)
	}
	spans, ok := and.Positions("timeout error")
	want := []model.Span{{Start: 8, End: 13}, {Start: 0, End: 7}}
	if !ok || !reflect.DeepEqual(spans, want) {
		t.Fatalf("AND positions = %+v, %v; want %+v", spans, ok, want)
	}

	or := mustCompile(t, "error or timeout", Options{})
	spans, ok = or.Positions("timeout only")
	want = []model.Span{{Start: 0, End: 7}}
	if !ok || !reflect.DeepEqual(spans, want) {
		t.Fatalf("OR positions = %+v, %v; want %+v", spans, ok, want)
	}

	neg := mustCompile(t, "not error", Options{})
	spans, ok = neg.Positions("clean")
	if !ok || len(spans) != 0 {
		t.Fatalf("negated positions = %+v, %v; want no spans, true", spans, ok)
	}
}

func TestDeMorgan(t *testing.T) {
	t.Parallel()
	inputs := []string{"", "alpha", "beta", "alpha beta", "gamma", "beta alpha gamma", "ALPHA"}
	pairs := [][2]string{
		{"not (alpha and beta)", "(not alpha) or (not beta)"},
		{"not (alpha or beta)", "(not alpha) and (not beta)"},
		{"not (alpha beta)", "not alpha or not beta"},
	}
	for _, opts := range []Options{{}, {CaseInsensitive: true}} {
		for _, pair := range pairs {
			left := mustCompile(t, pair[0], opts)
			right := mustCompile(t, pair[1], opts)
			for _, in := range inputs {
				if l, r := left.Match(in), right.Match(in); l != r {
					t.Errorf("%q = %v but %q = %v on %q (opts %+v)", pair[0], l, pair[1], r, in, opts)
				}
			}
		}
	}
}

func TestCompileIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{"error in db", "warn: slow", "fatal error timeout", "ok"}
	for _, text := range []string{`error or "slow"`, "not (fatal and timeout)", "err* db"} {
		a := mustCompile(t, text, Options{})
		b := mustCompile(t, text, Options{})
		for _, in := range inputs {
			sa, oka := a.Positions(in)
			sb, okb := b.Positions(in)
			if oka != okb || !reflect.DeepEqual(sa, sb) || a.Match(in) != b.Match(in) {
				t.Errorf("Compile(%q) differs on %q", text, in)
			}
		}
	}
}
