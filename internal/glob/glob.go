// Package glob expands path expressions with alternation groups into the
// literal glob expressions that multi-input registration accepts one at a time.
//
// Grammar:
//   - {a,b,...} is an alternation group. Groups nest; every group in an
//     expression is expanded (cartesian product, leftmost alternative first).
//   - A comma outside any group separates independent path expressions.
//   - A backslash escapes the next character. The escape pair is copied
//     verbatim and never acts as a delimiter.
//   - Inside a character class [...] braces and commas are literal.
//   - Everything else, including * and ?, is copied unchanged.
package glob

import (
	"errors"
	"fmt"
)

// ErrMalformedGlob is returned for unbalanced groups, unclosed character
// classes and trailing escapes.
var ErrMalformedGlob = errors.New("glob: malformed path expression")

type tokenKind byte

const (
	tokOpen  tokenKind = '{'
	tokClose tokenKind = '}'
	tokComma tokenKind = ','
)

// token is a structural character of an expression. depth is the number of
// groups enclosing it (for a closing brace, the depth after closing).
type token struct {
	pos   int
	kind  tokenKind
	depth int
}

// Split expands expr into literal glob expressions in left-to-right order.
// An expression without alternation yields a single element equal to expr.
func Split(expr string) ([]string, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}

	var out []string
	start := 0
	for _, t := range toks {
		if t.kind == tokComma && t.depth == 0 {
			out = append(out, expand(expr[start:t.pos])...)
			start = t.pos + 1
		}
	}
	out = append(out, expand(expr[start:])...)
	return out, nil
}

// MustSplit is like Split but panics on malformed input.
func MustSplit(expr string) []string {
	paths, err := Split(expr)
	if err != nil {
		panic(err)
	}
	return paths
}

// HasAlternation reports whether expr contains a group or a top-level comma.
func HasAlternation(expr string) bool {
	toks, err := tokenize(expr)
	return err == nil && len(toks) > 0
}

func tokenize(s string) ([]token, error) {
	var toks []token
	depth := 0
	inClass := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 >= len(s) {
				return nil, malformed(s, i, "trailing escape")
			}
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '{':
			toks = append(toks, token{pos: i, kind: tokOpen, depth: depth})
			depth++
		case c == '}':
			if depth == 0 {
				return nil, malformed(s, i, "unmatched '}'")
			}
			depth--
			toks = append(toks, token{pos: i, kind: tokClose, depth: depth})
		case c == ',':
			toks = append(toks, token{pos: i, kind: tokComma, depth: depth})
		}
	}

	if inClass {
		return nil, malformed(s, len(s), "unclosed character class")
	}
	if depth != 0 {
		return nil, malformed(s, len(s), "unclosed '{'")
	}
	return toks, nil
}

// expand removes the first outermost group of s and recurses on each
// alternative spliced back between its prefix and suffix. s has already been
// validated and contains no top-level commas.
func expand(s string) []string {
	toks, _ := tokenize(s)

	open := -1
	for i, t := range toks {
		if t.kind == tokOpen && t.depth == 0 {
			open = i
			break
		}
	}
	if open < 0 {
		return []string{s}
	}

	altStart := toks[open].pos + 1
	closePos := -1
	var alts []string
	for _, t := range toks[open+1:] {
		if t.kind == tokClose && t.depth == 0 {
			closePos = t.pos
			break
		}
		if t.kind == tokComma && t.depth == 1 {
			alts = append(alts, s[altStart:t.pos])
			altStart = t.pos + 1
		}
	}
	alts = append(alts, s[altStart:closePos])

	prefix := s[:toks[open].pos]
	suffix := s[closePos+1:]

	var out []string
	for _, alt := range alts {
		out = append(out, expand(prefix+alt+suffix)...)
	}
	return out
}

func malformed(expr string, pos int, reason string) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrMalformedGlob, reason, pos, expr)
}
