package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/itchyny/gojq"
	"github.com/tinytelemetry/tailview/internal/model"
)

// Mode is the matching strategy a Filter selected from its text.
type Mode int

const (
	ModeEmpty Mode = iota
	ModePlain
	ModeAdvanced
	ModeRegex
	ModeStructured
)

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeAdvanced:
		return "advanced"
	case ModeRegex:
		return "regex"
	case ModeStructured:
		return "structured"
	default:
		return "empty"
	}
}

const (
	regexMatchTimeout = 250 * time.Millisecond
	structuredTimeout = 250 * time.Millisecond
	maxStructuredHits = 1000
)

var errTooManyResults = errors.New("query: too many structured results")

// FilterOptions select case sensitivity and whether bare text is parsed as
// the boolean query language or searched for literally.
type FilterOptions struct {
	CaseInsensitive bool
	Advanced        bool
}

// Filter is the user-facing front end over the matching modes:
//
//	/pattern/   regular expression (ECMAScript syntax)
//	|program    jq program run over each embedded JSON value
//	text        boolean query (Advanced) or literal substring
//
// A Filter never panics or returns errors from Apply. Text that fails to
// compile leaves the filter invalid, and an invalid filter matches nothing.
type Filter struct {
	text string
	mode Mode
	err  error

	plain   string
	plainRe *regexp.Regexp
	matcher *Matcher
	regex   *regexp2.Regexp
	jq      *gojq.Code
}

// NewFilter compiles text. Leading and trailing whitespace is ignored.
func NewFilter(text string, opts FilterOptions) *Filter {
	f := &Filter{text: strings.TrimSpace(text)}
	f.err = f.compile(opts)
	return f
}

func (f *Filter) compile(opts FilterOptions) error {
	text := f.text
	switch {
	case len(text) > 2 && text[0] == '/' && text[len(text)-1] == '/':
		f.mode = ModeRegex
		ropts := regexp2.RegexOptions(regexp2.ECMAScript)
		if opts.CaseInsensitive {
			ropts |= regexp2.IgnoreCase
		}
		re, err := regexp2.Compile(text[1:len(text)-1], ropts)
		if err != nil {
			return err
		}
		re.MatchTimeout = regexMatchTimeout
		f.regex = re
	case strings.HasPrefix(text, "|"):
		program := strings.TrimSpace(text[1:])
		if program == "" {
			f.mode = ModeEmpty
			return nil
		}
		f.mode = ModeStructured
		q, err := gojq.Parse(program)
		if err != nil {
			return err
		}
		code, err := gojq.Compile(q)
		if err != nil {
			return err
		}
		f.jq = code
	case text == "":
		f.mode = ModeEmpty
	case opts.Advanced:
		f.mode = ModeAdvanced
		m, err := Compile(text, Options{CaseInsensitive: opts.CaseInsensitive})
		if err != nil {
			return err
		}
		f.matcher = m
	default:
		f.mode = ModePlain
		f.plain = text
		if opts.CaseInsensitive {
			f.plainRe = regexp.MustCompile("(?i)" + regexp.QuoteMeta(text))
		}
	}
	return nil
}

// Text returns the trimmed filter text.
func (f *Filter) Text() string { return f.text }

// Mode returns the matching strategy selected for the text.
func (f *Filter) Mode() Mode { return f.mode }

// Valid reports whether the text compiled.
func (f *Filter) Valid() bool { return f.err == nil }

// Err returns the compile error for an invalid filter.
func (f *Filter) Err() error { return f.err }

// Apply evaluates the filter against ev and returns a copy annotated with
// consolidated highlight spans. ev itself is never modified.
func (f *Filter) Apply(ev model.Event) (model.Event, bool) {
	ev.HighlightSpans = nil
	if f.err != nil {
		return ev, false
	}

	var (
		spans []model.Span
		ok    bool
	)
	switch f.mode {
	case ModeEmpty:
		return ev, true
	case ModePlain:
		spans = f.matchPlain(ev.Content)
		ok = len(spans) > 0
	case ModeAdvanced:
		spans, ok = f.matcher.Positions(ev.Content)
	case ModeRegex:
		spans = f.matchRegex(ev.Content)
		ok = len(spans) > 0
	case ModeStructured:
		spans = f.matchStructured(ev.EmbeddedJSON)
		ok = len(spans) > 0
	}
	if !ok {
		return ev, false
	}
	ev.HighlightSpans = ConsolidateSpans(spans)
	return ev, true
}

// Filter returns the annotated copies of the events that match, in order.
func (f *Filter) Filter(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if annotated, ok := f.Apply(ev); ok {
			out = append(out, annotated)
		}
	}
	return out
}

func (f *Filter) matchPlain(content string) []model.Span {
	if f.plainRe != nil {
		var spans []model.Span
		for _, loc := range f.plainRe.FindAllStringIndex(content, -1) {
			spans = append(spans, model.Span{Start: loc[0], End: loc[1]})
		}
		return spans
	}

	var spans []model.Span
	cursor := 0
	for {
		idx := strings.Index(content[cursor:], f.plain)
		if idx < 0 {
			return spans
		}
		start := cursor + idx
		spans = append(spans, model.Span{Start: start, End: start + len(f.plain)})
		cursor = start + len(f.plain)
	}
}

func (f *Filter) matchRegex(content string) []model.Span {
	m, err := f.regex.FindStringMatch(content)
	if err != nil || m == nil {
		return nil
	}
	offsets := runeOffsets(content)
	var spans []model.Span
	for m != nil {
		if m.Length == 0 {
			return nil
		}
		spans = append(spans, model.Span{
			Start: offsets.byteAt(m.Index),
			End:   offsets.byteAt(m.Index + m.Length),
		})
		m, err = f.regex.FindNextMatch(m)
		if err != nil {
			return nil
		}
	}
	return spans
}

func (f *Filter) matchStructured(found []model.JSONMatch) []model.Span {
	var spans []model.Span
	for _, jm := range found {
		results, err := f.runJQ(jm.Value)
		if err != nil || len(results) == 0 {
			continue
		}
		text, err := encodeResults(results)
		if err != nil {
			continue
		}
		spans = append(spans, model.Span{Start: jm.Start, End: jm.End, Replacement: &text})
	}
	return spans
}

func (f *Filter) runJQ(input any) ([]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), structuredTimeout)
	defer cancel()

	var results []any
	iter := f.jq.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			return results, nil
		}
		if err, isErr := v.(error); isErr {
			return nil, err
		}
		if len(results) == maxStructuredHits {
			return nil, errTooManyResults
		}
		results = append(results, v)
	}
}

// encodeResults renders jq output as the JSON array body without its
// surrounding brackets.
func encodeResults(results []any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		return "", err
	}
	out := strings.TrimSuffix(buf.String(), "\n")
	return out[1 : len(out)-1], nil
}

// offsetTable maps rune indexes to byte offsets. A nil table means the text
// is ASCII and the two coincide.
type offsetTable []int

func runeOffsets(s string) offsetTable {
	if utf8.RuneCountInString(s) == len(s) {
		return nil
	}
	table := make(offsetTable, 0, len(s)+1)
	for i := range s {
		table = append(table, i)
	}
	return append(table, len(s))
}

func (t offsetTable) byteAt(runeIdx int) int {
	if t == nil {
		return runeIdx
	}
	return t[runeIdx]
}
