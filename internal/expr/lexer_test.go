// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	. "gopkg.in/check.v1"
)

type LexerSuite struct{}

var _ = Suite(&LexerSuite{})

func lexAll(input string) ([]token, error) {
	l := newLexer(input)
	var toks []token
	for {
		if err := l.nextToken(); err != nil {
			return toks, err
		}
		toks = append(toks, l.tok)
		if l.tok.kind == tokEnd {
			return toks, nil
		}
	}
}

func (s *LexerSuite) TestTokens(c *C) {
	toks, err := lexAll(`a.b >= 12 <> 'it''s' && c[1] != 2.5e-3f`)
	c.Assert(err, IsNil)
	expected := []token{
		{tokIdentifier, "a", 0},
		{tokDot, ".", 1},
		{tokIdentifier, "b", 2},
		{tokGreaterThanEqual, ">=", 4},
		{tokIntegerLiteral, "12", 7},
		{tokLessGreater, "<>", 10},
		{tokStringLiteral, `'it''s'`, 13},
		{tokDoubleAmpersand, "&&", 21},
		{tokIdentifier, "c", 24},
		{tokOpenBracket, "[", 25},
		{tokIntegerLiteral, "1", 26},
		{tokCloseBracket, "]", 27},
		{tokExclamationEqual, "!=", 29},
		{tokRealLiteral, "2.5e-3f", 32},
		{tokEnd, "", 39},
	}
	c.Assert(toks, DeepEquals, expected)
}

func (s *LexerSuite) TestNumbers(c *C) {
	tests := []struct {
		input string
		kinds []tokenKind
	}{
		{"42", []tokenKind{tokIntegerLiteral, tokEnd}},
		{"4.2", []tokenKind{tokRealLiteral, tokEnd}},
		{"1e10", []tokenKind{tokRealLiteral, tokEnd}},
		{"1E+3", []tokenKind{tokRealLiteral, tokEnd}},
		{"3f", []tokenKind{tokRealLiteral, tokEnd}},
		// A dot only continues a number when a digit follows.
		{"1.x", []tokenKind{tokIntegerLiteral, tokDot, tokIdentifier, tokEnd}},
		{"1..2", []tokenKind{tokIntegerLiteral, tokDot, tokDot, tokIntegerLiteral, tokEnd}},
	}
	for _, test := range tests {
		toks, err := lexAll(test.input)
		c.Assert(err, IsNil, Commentf("input %q", test.input))
		var kinds []tokenKind
		for _, tok := range toks {
			kinds = append(kinds, tok.kind)
		}
		c.Check(kinds, DeepEquals, test.kinds, Commentf("input %q", test.input))
	}
}

func (s *LexerSuite) TestIdentifiers(c *C) {
	toks, err := lexAll("@0 _x été x1")
	c.Assert(err, IsNil)
	c.Assert(toks, HasLen, 5)
	c.Check(toks[0].text, Equals, "@0")
	c.Check(toks[1].text, Equals, "_x")
	c.Check(toks[2].text, Equals, "été")
	c.Check(toks[3].text, Equals, "x1")
}

func (s *LexerSuite) TestErrors(c *C) {
	tests := []struct {
		input string
		err   string
	}{
		{`"abc`, "unterminated string literal (at index 4)"},
		{`'a''`, "unterminated string literal (at index 4)"},
		{"1e", "digit expected (at index 2)"},
		{"1e+", "digit expected (at index 3)"},
		{"a # b", "syntax error '#' (at index 2)"},
		{"a ~ b", "syntax error '~' (at index 2)"},
	}
	for _, test := range tests {
		_, err := lexAll(test.input)
		c.Assert(err, NotNil, Commentf("input %q", test.input))
		c.Check(err.Error(), Equals, test.err, Commentf("input %q", test.input))
	}
}
