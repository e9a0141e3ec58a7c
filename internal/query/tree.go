package query

import "fmt"

// Op joins the two sides of a Branch.
type Op int

const (
	OpImplicit Op = iota
	OpAnd
	OpOr
)

func (o Op) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return "<implicit>"
	}
}

// Node is a parsed query tree. Trees are built only by Parse and Negate and
// are never modified afterwards.
type Node interface {
	fmt.Stringer
	node()
}

// Leaf is a single search term.
type Leaf struct {
	Term    string
	Quoted  bool
	Negated bool
}

// Branch combines two subtrees.
type Branch struct {
	Left  Node
	Right Node
	Op    Op
}

func (*Leaf) node()   {}
func (*Branch) node() {}

func (l *Leaf) String() string {
	term := l.Term
	if l.Quoted {
		term = fmt.Sprintf("%q", term)
	}
	if l.Negated {
		return "NOT " + term
	}
	return term
}

func (b *Branch) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// Negate returns the logical negation of n. Leaves flip their sense and
// branches swap AND/IMPLICIT with OR, recursively. n is left untouched.
func Negate(n Node) Node {
	switch v := n.(type) {
	case *Leaf:
		out := *v
		out.Negated = !v.Negated
		return &out
	case *Branch:
		op := OpOr
		if v.Op == OpOr {
			op = OpAnd
		}
		return &Branch{Left: Negate(v.Left), Right: Negate(v.Right), Op: op}
	default:
		return n
	}
}

// Parse builds a query tree from tokens. Operators bind strictly left to
// right with no precedence; adjacent terms are joined with OpImplicit.
func Parse(tokens []Token) (Node, error) {
	p := &parser{tokens: tokens}
	n, err := p.expression()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		// expression only stops early at a closing paren.
		return nil, ErrUnexpectedClose
	}
	return n, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) next() (Token, error) {
	if p.pos >= len(p.tokens) {
		return Token{}, ErrOutOfTokens
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, nil
}

func (p *parser) expression() (Node, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Kind == TokenGroupClose {
			break
		}
		op := OpImplicit
		if tok.Kind == TokenAnd || tok.Kind == TokenOr {
			op = OpAnd
			if tok.Kind == TokenOr {
				op = OpOr
			}
			p.pos++
			if p.pos >= len(p.tokens) {
				return nil, ErrOperatorAtEnd
			}
		}
		right, err := p.operand()
		if err != nil {
			return nil, err
		}
		left = &Branch{Left: left, Right: right, Op: op}
	}
	return left, nil
}

func (p *parser) operand() (Node, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	switch tok.Kind {
	case TokenNot:
		n, err := p.operand()
		if err != nil {
			return nil, err
		}
		return Negate(n), nil
	case TokenGroupClose:
		return nil, ErrUnexpectedClose
	case TokenGroupOpen:
		n, err := p.expression()
		if err != nil {
			return nil, err
		}
		closing, err := p.next()
		if err != nil || closing.Kind != TokenGroupClose {
			return nil, ErrUnbalanced
		}
		return n, nil
	case TokenAnd, TokenOr:
		return nil, fmt.Errorf("%w %q", ErrUnexpectedOperator, tok.Term)
	default:
		return &Leaf{Term: tok.Term, Quoted: tok.Quoted}, nil
	}
}
