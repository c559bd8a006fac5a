// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import "fmt"

// ParseError is returned for any lexical, syntactic or typing failure. Pos
// is the byte offset in the expression text the error relates to.
type ParseError struct {
	Msg string
	Pos int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (at index %d)", e.Msg, e.Pos)
}

func errorf(pos int, format string, args ...any) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Pos: pos}
}

const (
	errSyntax                     = "syntax error"
	errExpressionExpected         = "expression expected"
	errInvalidIntegerLiteral      = "invalid integer literal '%s'"
	errInvalidRealLiteral         = "invalid real literal '%s'"
	errUnknownIdentifier          = "unknown identifier '%s'"
	errNoItInScope                = "no 'it' is in scope"
	errIifRequiresThreeArgs       = "the 'iif' function requires three arguments"
	errFirstExprMustBeBool        = "the first expression must be of type 'Boolean'"
	errBothTypesConvertToOther    = "both of the types '%s' and '%s' convert to the other"
	errNeitherTypeConvertsToOther = "neither of the types '%s' and '%s' converts to the other"
	errMissingAsClause            = "expression is missing an 'as' clause"
	errArgsIncompatibleWithLambda = "argument list incompatible with lambda expression"
	errTypeHasNoNullableForm      = "type '%s' has no nullable form"
	errNoMatchingConstructor      = "no matching constructor in type '%s'"
	errAmbiguousConstructor       = "ambiguous invocation of '%s' constructor"
	errCannotConvertValue         = "a value of type '%s' cannot be converted to type '%s'"
	errNoApplicableMethod         = "no applicable method '%s' exists in type '%s'"
	errMethodIsVoid               = "method '%s' in type '%s' does not return a value"
	errAmbiguousMethodInvocation  = "ambiguous invocation of method '%s' in type '%s'"
	errUnknownPropertyOrField     = "no property or field '%s' exists in type '%s'"
	errNoApplicableAggregate      = "no applicable aggregate method '%s' exists"
	errCannotIndexMultiDimArray   = "indexing of multi-dimensional arrays is not supported"
	errInvalidIndex               = "array index must be an integer expression"
	errNoApplicableIndexer        = "no applicable indexer exists in type '%s'"
	errAmbiguousIndexerInvocation = "ambiguous invocation of indexer in type '%s'"
	errIncompatibleOperand        = "operator '%s' incompatible with operand type '%s'"
	errIncompatibleOperands       = "operator '%s' incompatible with operand types '%s' and '%s'"
	errUnterminatedStringLiteral  = "unterminated string literal"
	errInvalidCharacter           = "syntax error '%c'"
	errDigitExpected              = "digit expected"
	errColonExpected              = "':' expected"
	errOpenParenExpected          = "'(' expected"
	errOpenBracketExpected        = "'[' expected"
	errCloseParenOrOperator       = "')' or operator expected"
	errCloseParenOrComma          = "')' or ',' expected"
	errDotOrOpenParenExpected     = "'.' or '(' expected"
	errCloseBracketOrComma        = "']' or ',' expected"
	errIdentifierExpected         = "identifier expected"
	errExpressionTypeExpected     = "expression of type '%s' expected"
	errDuplicateIdentifier        = "the identifier '%s' was defined more than once"
	errInvalidRecord              = "invalid projection: %s"
)
