package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tinytelemetry/tailview/internal/model"
)

// Options control matcher compilation.
type Options struct {
	CaseInsensitive bool
}

// Matcher is a compiled query. It is immutable and safe for concurrent use.
type Matcher struct {
	text string
	root compiled
}

type compiled interface {
	match(s string) bool
	matchAny(items []string) bool
	positions(s string) ([]model.Span, bool)
}

// Compile tokenizes, parses and compiles query text into a Matcher.
func Compile(text string, opts Options) (*Matcher, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	tree, err := Parse(tokens)
	if err != nil {
		return nil, err
	}
	root, err := compileNode(tree, opts)
	if err != nil {
		return nil, err
	}
	return &Matcher{text: text, root: root}, nil
}

// Match reports whether s satisfies the query.
func (m *Matcher) Match(s string) bool {
	return m.root.match(s)
}

// MatchAny evaluates the query against a list of strings. A term matches
// when any item contains it; a negated term matches only when no item does.
func (m *Matcher) MatchAny(items []string) bool {
	return m.root.matchAny(items)
}

// Positions returns the byte spans in s that satisfied the query. ok is false
// when the query does not match. A match made only of negated terms reports
// ok with no spans.
func (m *Matcher) Positions(s string) (spans []model.Span, ok bool) {
	return m.root.positions(s)
}

func (m *Matcher) String() string {
	return m.text
}

func compileNode(n Node, opts Options) (compiled, error) {
	switch v := n.(type) {
	case *Leaf:
		return compileLeaf(v, opts)
	case *Branch:
		left, err := compileNode(v.Left, opts)
		if err != nil {
			return nil, err
		}
		right, err := compileNode(v.Right, opts)
		if err != nil {
			return nil, err
		}
		return &branchMatcher{left: left, right: right, or: v.Op == OpOr}, nil
	default:
		return nil, fmt.Errorf("query: unknown node %T", n)
	}
}

func compileLeaf(l *Leaf, opts Options) (compiled, error) {
	pattern, ok := wildcardPattern(l.Term)
	if l.Quoted {
		pattern, ok = regexp.QuoteMeta(l.Term), l.Term != ""
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEmptyTerm, l.Term)
	}
	if opts.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("query: term %q: %w", l.Term, err)
	}
	return &leafMatcher{re: re, negated: l.Negated}, nil
}

var nonWordRun = regexp.MustCompile(`[^\w']+`)

// wildcardPattern builds the regular expression for a bare term. The term is
// anchored on word boundaries unless it starts or ends with '*'. Interior '*'
// and punctuation inside a fragment both match a run of non-word characters.
// ok is false when the term holds no word characters, since such a pattern
// could only ever match the empty string.
func wildcardPattern(term string) (pattern string, ok bool) {
	startAnchor, endAnchor := `\b`, `\b`
	if strings.HasPrefix(term, "*") {
		term = term[1:]
		startAnchor = ""
	}
	if strings.HasSuffix(term, "*") {
		term = term[:len(term)-1]
		endAnchor = ""
	}

	fragments := strings.Split(term, "*")
	for i, fragment := range fragments {
		words := nonWordRun.Split(fragment, -1)
		for len(words) > 0 && words[0] == "" {
			words = words[1:]
		}
		for len(words) > 0 && words[len(words)-1] == "" {
			words = words[:len(words)-1]
		}
		if len(words) > 0 {
			ok = true
		}
		fragments[i] = strings.Join(words, `[^\w']+`)
	}
	return startAnchor + strings.Join(fragments, `[^\w']*`) + endAnchor, ok
}

type leafMatcher struct {
	re      *regexp.Regexp
	negated bool
}

func (l *leafMatcher) match(s string) bool {
	return l.re.MatchString(s) != l.negated
}

func (l *leafMatcher) matchAny(items []string) bool {
	for _, item := range items {
		if l.re.MatchString(item) {
			return !l.negated
		}
	}
	return l.negated
}

func (l *leafMatcher) positions(s string) ([]model.Span, bool) {
	if l.negated {
		return nil, !l.re.MatchString(s)
	}
	locs := l.re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return nil, false
	}
	spans := make([]model.Span, 0, len(locs))
	for _, loc := range locs {
		if loc[0] == loc[1] {
			// A zero-width match can never advance the scan.
			return nil, false
		}
		spans = append(spans, model.Span{Start: loc[0], End: loc[1]})
	}
	return spans, true
}

type branchMatcher struct {
	left, right compiled
	or          bool
}

func (b *branchMatcher) match(s string) bool {
	if b.or {
		return b.left.match(s) || b.right.match(s)
	}
	return b.left.match(s) && b.right.match(s)
}

func (b *branchMatcher) matchAny(items []string) bool {
	if b.or {
		return b.left.matchAny(items) || b.right.matchAny(items)
	}
	return b.left.matchAny(items) && b.right.matchAny(items)
}

func (b *branchMatcher) positions(s string) ([]model.Span, bool) {
	left, lok := b.left.positions(s)
	if b.or {
		right, rok := b.right.positions(s)
		if !lok && !rok {
			return nil, false
		}
		return concatSpans(left, right), true
	}
	if !lok {
		return nil, false
	}
	right, rok := b.right.positions(s)
	if !rok {
		return nil, false
	}
	return concatSpans(left, right), true
}

func concatSpans(a, b []model.Span) []model.Span {
	if len(b) == 0 {
		return a
	}
	out := make([]model.Span, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
