// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

type tokenKind int

const (
	tokUnknown tokenKind = iota
	tokEnd
	tokIdentifier
	tokStringLiteral
	tokIntegerLiteral
	tokRealLiteral
	tokExclamation
	tokPercent
	tokAmpersand
	tokOpenParen
	tokCloseParen
	tokAsterisk
	tokPlus
	tokComma
	tokMinus
	tokDot
	tokSlash
	tokColon
	tokLessThan
	tokEqual
	tokGreaterThan
	tokQuestion
	tokOpenBracket
	tokCloseBracket
	tokBar
	tokExclamationEqual
	tokDoubleAmpersand
	tokLessThanEqual
	tokLessGreater
	tokDoubleEqual
	tokGreaterThanEqual
	tokDoubleBar
)

// token is a lexical unit of an expression. text is the exact source text
// and pos its byte offset.
type token struct {
	kind tokenKind
	text string
	pos  int
}
