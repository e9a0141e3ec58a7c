// Package jsonscan locates JSON objects and arrays embedded in free text.
package jsonscan

import (
	"strings"

	"github.com/tinytelemetry/tailview/internal/model"
	"github.com/valyala/fastjson"
)

var parserPool fastjson.ParserPool

// Find returns every embedded JSON object or array in text, in order of
// appearance. It returns nil when nothing parses.
//
// Candidates are found by bracket depth, skipping over string literals. A
// candidate that fails strict parsing is discarded and the scan resumes one
// byte after its opening bracket, so a valid value nested inside an invalid
// outer span is still found.
func Find(text string) []model.JSONMatch {
	var matches []model.JSONMatch
	start := 0
	for {
		open := nextOpening(text, start)
		if open < 0 {
			return matches
		}
		if m, ok := candidate(text, open); ok {
			matches = append(matches, m)
			start = m.End
		} else {
			start = open + 1
		}
	}
}

func nextOpening(text string, from int) int {
	if from >= len(text) {
		return -1
	}
	idx := strings.IndexAny(text[from:], "{[")
	if idx < 0 {
		return -1
	}
	return from + idx
}

func candidate(text string, open int) (model.JSONMatch, bool) {
	end := endOfValue(text, open)
	if end < 0 {
		return model.JSONMatch{}, false
	}
	value, ok := parseStrict(text[open:end])
	if !ok {
		return model.JSONMatch{}, false
	}
	return model.JSONMatch{Start: open, End: end, Value: value}, true
}

// endOfValue returns the offset just past the bracket that closes the one at
// pos, or -1 when the text ends first.
func endOfValue(text string, pos int) int {
	depth := 0
	for pos < len(text) {
		switch text[pos] {
		case '{', '[':
			depth++
			pos++
		case '}', ']':
			depth--
			pos++
		case '"':
			pos = endOfString(text, pos+1)
			if pos < 0 {
				return -1
			}
		default:
			pos++
		}
		if depth == 0 {
			return pos
		}
	}
	return -1
}

// endOfString returns the offset just past the closing quote of a string
// whose body starts at pos.
func endOfString(text string, pos int) int {
	for pos < len(text) {
		switch text[pos] {
		case '"':
			return pos + 1
		case '\\':
			pos += 2
		default:
			pos++
		}
	}
	return -1
}

func parseStrict(s string) (any, bool) {
	if err := fastjson.Validate(s); err != nil {
		return nil, false
	}
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.Parse(s)
	if err != nil {
		return nil, false
	}
	return toValue(v), true
}

// toValue copies a parsed value out of the parser's arena into plain Go
// values (map[string]any, []any, float64, string, bool, nil).
func toValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		obj, _ := v.Object()
		out := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, item *fastjson.Value) {
			out[string(key)] = toValue(item)
		})
		return out
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = toValue(item)
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}
