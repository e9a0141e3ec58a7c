// Package query compiles the filter language used to search tailed events:
// quoted phrases, bare wildcard terms, AND/OR/NOT keywords and grouping,
// plus the /regex/ and |jq front-end modes.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// Syntax errors reported by Tokenize and Parse.
var (
	ErrUnclosedString     = errors.New("query: unclosed string")
	ErrOutOfTokens        = errors.New("query: ran out of tokens")
	ErrUnexpectedClose    = errors.New("query: unexpected closing of a group")
	ErrUnbalanced         = errors.New("query: invalid balancing of groups")
	ErrOperatorAtEnd      = errors.New("query: encountered operator at end")
	ErrUnexpectedOperator = errors.New("query: unexpected operator")
	ErrEmptyTerm          = errors.New("query: term has nothing to match")
)

// TokenKind classifies a token.
type TokenKind int

const (
	TokenTerm TokenKind = iota
	TokenGroupOpen
	TokenGroupClose
	TokenNot
	TokenAnd
	TokenOr
)

// Token is one lexical unit of a query.
type Token struct {
	Kind   TokenKind
	Term   string
	Quoted bool
}

const whitespace = " \n\r\t\f\v"

// Tokenize splits query text into tokens. Quoted phrases may contain
// backslash escapes; keywords are only recognized unquoted.
func Tokenize(text string) ([]Token, error) {
	var tokens []Token
	pos := 0
	for pos < len(text) {
		c := text[pos]
		switch {
		case strings.IndexByte(whitespace, c) >= 0:
			pos++
		case c == '"':
			tok, next, err := readQuoted(text, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			pos = next
		case c == '(':
			tokens = append(tokens, Token{Kind: TokenGroupOpen, Term: "("})
			pos++
		case c == ')':
			tokens = append(tokens, Token{Kind: TokenGroupClose, Term: ")"})
			pos++
		default:
			tok, next := readBare(text, pos)
			tokens = append(tokens, tok)
			pos = next
		}
	}
	return tokens, nil
}

func readQuoted(text string, start int) (Token, int, error) {
	var b strings.Builder
	pos := start + 1
	for pos < len(text) {
		c := text[pos]
		switch c {
		case '"':
			return Token{Kind: TokenTerm, Term: b.String(), Quoted: true}, pos + 1, nil
		case '\\':
			if pos+1 < len(text) {
				b.WriteByte(text[pos+1])
			}
			pos += 2
		default:
			b.WriteByte(c)
			pos++
		}
	}
	return Token{}, 0, fmt.Errorf("%w at character %d", ErrUnclosedString, start)
}

func readBare(text string, start int) (Token, int) {
	pos := start
	for pos < len(text) && strings.IndexByte(whitespace+"()", text[pos]) < 0 {
		pos++
	}
	term := text[start:pos]
	kind := TokenTerm
	switch strings.ToLower(term) {
	case "not":
		kind = TokenNot
	case "and":
		kind = TokenAnd
	case "or":
		kind = TokenOr
	}
	return Token{Kind: kind, Term: term}, pos
}
