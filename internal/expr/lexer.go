// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"unicode"
	"unicode/utf8"
)

// lexer splits an expression into tokens, one at a time.
type lexer struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	tok  token
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.advanceChar()
	return l
}

// advanceChar moves the lexer to the next character in the input.
func (l *lexer) advanceChar() bool {
	if l.nextPos >= len(l.input) {
		l.char = 0
		l.pos = len(l.input)
		return false
	}
	var size int
	l.char, size = utf8.DecodeRuneInString(l.input[l.nextPos:])
	l.pos = l.nextPos
	l.nextPos += size
	return true
}

func (l *lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

// skipChar jumps over the current char if it matches the char passed as a
// parameter. Returns true in that case, false otherwise.
func (l *lexer) skipChar(c rune) bool {
	if !l.atEnd() && l.char == c {
		l.advanceChar()
		return true
	}
	return false
}

// peekByte returns the byte after the current char, or 0 at the end of
// input.
func (l *lexer) peekByte() byte {
	if l.nextPos < len(l.input) {
		return l.input[l.nextPos]
	}
	return 0
}

func (l *lexer) isDigit() bool {
	return !l.atEnd() && isDigit(l.char)
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c rune) bool {
	return unicode.IsLetter(c) || c == '@' || c == '_'
}

func isIdentPart(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// validateDigit reports an error unless the current char is a digit.
func (l *lexer) validateDigit() error {
	if !l.isDigit() {
		return errorf(l.pos, errDigitExpected)
	}
	return nil
}

// nextToken scans the token starting at the current position, after any
// whitespace, and stores it in tok.
func (l *lexer) nextToken() error {
	for !l.atEnd() && unicode.IsSpace(l.char) {
		l.advanceChar()
	}
	start := l.pos
	var kind tokenKind
	if l.atEnd() {
		l.tok = token{kind: tokEnd, pos: start}
		return nil
	}
	switch l.char {
	case '!':
		l.advanceChar()
		kind = tokExclamation
		if l.skipChar('=') {
			kind = tokExclamationEqual
		}
	case '%':
		l.advanceChar()
		kind = tokPercent
	case '&':
		l.advanceChar()
		kind = tokAmpersand
		if l.skipChar('&') {
			kind = tokDoubleAmpersand
		}
	case '(':
		l.advanceChar()
		kind = tokOpenParen
	case ')':
		l.advanceChar()
		kind = tokCloseParen
	case '*':
		l.advanceChar()
		kind = tokAsterisk
	case '+':
		l.advanceChar()
		kind = tokPlus
	case ',':
		l.advanceChar()
		kind = tokComma
	case '-':
		l.advanceChar()
		kind = tokMinus
	case '.':
		l.advanceChar()
		kind = tokDot
	case '/':
		l.advanceChar()
		kind = tokSlash
	case ':':
		l.advanceChar()
		kind = tokColon
	case '<':
		l.advanceChar()
		kind = tokLessThan
		if l.skipChar('=') {
			kind = tokLessThanEqual
		} else if l.skipChar('>') {
			kind = tokLessGreater
		}
	case '=':
		l.advanceChar()
		kind = tokEqual
		if l.skipChar('=') {
			kind = tokDoubleEqual
		}
	case '>':
		l.advanceChar()
		kind = tokGreaterThan
		if l.skipChar('=') {
			kind = tokGreaterThanEqual
		}
	case '?':
		l.advanceChar()
		kind = tokQuestion
	case '[':
		l.advanceChar()
		kind = tokOpenBracket
	case ']':
		l.advanceChar()
		kind = tokCloseBracket
	case '|':
		l.advanceChar()
		kind = tokBar
		if l.skipChar('|') {
			kind = tokDoubleBar
		}
	case '"', '\'':
		// A doubled quote stands for the quote character itself.
		quote := l.char
		for {
			l.advanceChar()
			for !l.atEnd() && l.char != quote {
				l.advanceChar()
			}
			if l.atEnd() {
				return errorf(l.pos, errUnterminatedStringLiteral)
			}
			l.advanceChar()
			if l.atEnd() || l.char != quote {
				break
			}
		}
		kind = tokStringLiteral
	default:
		switch {
		case isIdentStart(l.char):
			for l.advanceChar() && isIdentPart(l.char) {
			}
			kind = tokIdentifier
		case isDigit(l.char):
			var err error
			if kind, err = l.scanNumber(); err != nil {
				return err
			}
		default:
			return errorf(l.pos, errInvalidCharacter, l.char)
		}
	}
	l.tok = token{kind: kind, text: l.input[start:l.pos], pos: start}
	return nil
}

// scanNumber scans an integer or real literal starting at a digit.
func (l *lexer) scanNumber() (tokenKind, error) {
	kind := tokIntegerLiteral
	for l.advanceChar() && isDigit(l.char) {
	}
	if l.char == '.' && !l.atEnd() && isDigit(rune(l.peekByte())) {
		kind = tokRealLiteral
		l.advanceChar()
		for l.advanceChar() && isDigit(l.char) {
		}
	}
	if !l.atEnd() && (l.char == 'e' || l.char == 'E') {
		kind = tokRealLiteral
		l.advanceChar()
		if l.char == '+' || l.char == '-' {
			l.advanceChar()
		}
		if err := l.validateDigit(); err != nil {
			return kind, err
		}
		for l.advanceChar() && isDigit(l.char) {
		}
	}
	if !l.atEnd() && (l.char == 'f' || l.char == 'F') {
		kind = tokRealLiteral
		l.advanceChar()
	}
	return kind, nil
}
