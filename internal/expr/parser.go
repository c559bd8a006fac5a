// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/record"
	"github.com/canonical/dynq/internal/typeinfo"
)

type keyword int

const (
	kwIt keyword = iota
	kwIif
	kwNew
)

var (
	trueLiteral  = &ast.Constant{Value: true, Typ: typeinfo.Bool}
	falseLiteral = &ast.Constant{Value: false, Typ: typeinfo.Bool}
	nullLiteral  = &ast.Constant{Value: nil, Typ: typeinfo.Any}
)

var keywordsOnce sync.Once
var keywords map[string]any
var aliases map[string]reflect.Type

// keywordTable maps case folded keywords and predefined type names to the
// literal, keyword or type they stand for.
func keywordTable() map[string]any {
	keywordsOnce.Do(func() {
		kw := map[string]any{
			"true":  trueLiteral,
			"false": falseLiteral,
			"null":  nullLiteral,
			"nil":   nullLiteral,
			"it":    kwIt,
			"iif":   kwIif,
			"new":   kwNew,
		}
		for _, p := range typeinfo.Predefined {
			kw[typeinfo.Fold(p.Name)] = p.Type
		}
		keywords = kw
		aliases = map[string]reflect.Type{}
		for _, p := range typeinfo.Aliases {
			aliases[typeinfo.Fold(p.Name)] = p.Type
		}
	})
	return keywords
}

// aliasTable maps the case folded Go spellings of the predefined types to
// the types. They are looked up after the members of "it".
func aliasTable() map[string]reflect.Type {
	keywordTable()
	return aliases
}

// Parser turns the text of an expression into a typed tree. A Parser is
// used for a single expression and is not safe for concurrent use.
type Parser struct {
	lex       *lexer
	tok       token
	symbols   map[string]any
	externals map[string]any
	it        *ast.Parameter
	literals  map[*ast.Constant]string
	// declared holds the types whose own methods expressions may call.
	declared map[reflect.Type]bool
}

// NewParser returns a parser for text. Named parameters and the positional
// values @0, @1, ... are in scope; a single unnamed parameter becomes the
// implicit "it". If the last value is a map[string]any its entries are
// looked up by name after all other symbols.
func NewParser(params []*ast.Parameter, text string, values []any) (*Parser, error) {
	p := &Parser{
		symbols:  map[string]any{},
		literals: map[*ast.Constant]string{},
		declared: map[reflect.Type]bool{},
	}
	for _, param := range params {
		if param.Name != "" {
			if err := p.addSymbol(param.Name, param); err != nil {
				return nil, err
			}
		}
		p.declared[param.Typ] = true
	}
	if len(params) == 1 && params[0].Name == "" {
		p.it = params[0]
	}
	for i, v := range values {
		if i == len(values)-1 {
			if m, ok := v.(map[string]any); ok {
				p.externals = m
				continue
			}
		}
		if err := p.addSymbol("@"+strconv.Itoa(i), v); err != nil {
			return nil, err
		}
	}
	p.lex = newLexer(text)
	if err := p.next(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) addSymbol(name string, value any) error {
	key := typeinfo.Fold(name)
	if _, ok := p.symbols[key]; ok {
		return errorf(0, errDuplicateIdentifier, name)
	}
	p.symbols[key] = value
	return nil
}

func (p *Parser) next() error {
	if err := p.lex.nextToken(); err != nil {
		return err
	}
	p.tok = p.lex.tok
	return nil
}

// identIs reports whether the current token is the identifier id, which
// must be given case folded.
func (p *Parser) identIs(id string) bool {
	return p.tok.kind == tokIdentifier && typeinfo.Fold(p.tok.text) == id
}

// Parse parses the whole text as one expression. If resultType is not nil
// the expression is promoted to it.
func (p *Parser) Parse(resultType reflect.Type) (ast.Node, error) {
	exprPos := p.tok.pos
	n, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if resultType != nil {
		promoted := p.promote(n, resultType, true)
		if promoted == nil {
			return nil, errorf(exprPos, errExpressionTypeExpected, typeinfo.TypeName(resultType))
		}
		n = promoted
	}
	if p.tok.kind != tokEnd {
		return nil, errorf(p.tok.pos, errSyntax)
	}
	return n, nil
}

// ParseOrdering parses a comma separated list of expressions, each
// optionally followed by asc, ascending, desc or descending.
func (p *Parser) ParseOrdering() ([]ast.Ordering, error) {
	var orderings []ast.Ordering
	for {
		n, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		ascending := true
		if p.identIs("asc") || p.identIs("ascending") {
			if err := p.next(); err != nil {
				return nil, err
			}
		} else if p.identIs("desc") || p.identIs("descending") {
			if err := p.next(); err != nil {
				return nil, err
			}
			ascending = false
		}
		orderings = append(orderings, ast.Ordering{Selector: n, Ascending: ascending})
		if p.tok.kind != tokComma {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind != tokEnd {
		return nil, errorf(p.tok.pos, errSyntax)
	}
	return orderings, nil
}

// ?: operator
func (p *Parser) parseExpression() (ast.Node, error) {
	errorPos := p.tok.pos
	n, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokQuestion {
		return n, nil
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	ifTrue, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokColon {
		return nil, errorf(p.tok.pos, errColonExpected)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	ifFalse, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return p.generateConditional(n, ifTrue, ifFalse, errorPos)
}

// ||, or operator
func (p *Parser) parseLogicalOr() (ast.Node, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokDoubleBar || p.identIs("or") {
		op := p.tok
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		if err := p.checkAndPromoteOperands(signatures().logical, op, &left, &right); err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.OrElse, Left: left, Right: right, Typ: left.Type()}
	}
	return left, nil
}

// &&, and operator
func (p *Parser) parseLogicalAnd() (ast.Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokDoubleAmpersand || p.identIs("and") {
		op := p.tok
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if err := p.checkAndPromoteOperands(signatures().logical, op, &left, &right); err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.AndAlso, Left: left, Right: right, Typ: left.Type()}
	}
	return left, nil
}

var comparisonOps = map[tokenKind]ast.BinaryOp{
	tokEqual:            ast.Equal,
	tokDoubleEqual:      ast.Equal,
	tokExclamationEqual: ast.NotEqual,
	tokLessGreater:      ast.NotEqual,
	tokGreaterThan:      ast.Greater,
	tokGreaterThanEqual: ast.GreaterEqual,
	tokLessThan:         ast.Less,
	tokLessThanEqual:    ast.LessEqual,
}

// =, ==, !=, <>, >, >=, <, <= operators
func (p *Parser) parseComparison() (ast.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		binOp, ok := comparisonOps[p.tok.kind]
		if !ok {
			return left, nil
		}
		op := p.tok
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		isEquality := binOp == ast.Equal || binOp == ast.NotEqual
		lt, rt := left.Type(), right.Type()
		switch {
		case isEquality && !typeinfo.IsValueType(lt) && !typeinfo.IsValueType(rt):
			if lt == rt {
				break
			}
			lc, _ := left.(*ast.Constant)
			rc, _ := right.(*ast.Constant)
			switch {
			case lc != nil && isNullConstant(lc) && typeinfo.IsNilable(rt):
				left = typedNil(rt)
			case rc != nil && isNullConstant(rc) && typeinfo.IsNilable(lt):
				right = typedNil(lt)
			case typeinfo.IsAssignable(lt, rt):
				right = &ast.Convert{Operand: right, Typ: lt}
			case typeinfo.IsAssignable(rt, lt):
				left = &ast.Convert{Operand: left, Typ: rt}
			default:
				return nil, errorf(op.pos, errIncompatibleOperands, op.text, typeinfo.TypeName(lt), typeinfo.TypeName(rt))
			}
		case typeinfo.IsEnum(lt) || typeinfo.IsEnum(rt):
			if lt == rt {
				break
			}
			if e := p.promote(right, lt, true); e != nil {
				right = e
			} else if e := p.promote(left, rt, true); e != nil {
				left = e
			} else {
				return nil, errorf(op.pos, errIncompatibleOperands, op.text, typeinfo.TypeName(lt), typeinfo.TypeName(rt))
			}
		default:
			sigs := signatures().relational
			if isEquality {
				sigs = signatures().equality
			}
			if err := p.checkAndPromoteOperands(sigs, op, &left, &right); err != nil {
				return nil, err
			}
		}
		left = generateComparison(binOp, left, right)
	}
}

// generateComparison builds a comparison. Relational operators on strings
// compare the ordinal result of String.CompareOrdinal with zero.
func generateComparison(op ast.BinaryOp, left, right ast.Node) ast.Node {
	if op != ast.Equal && op != ast.NotEqual && left.Type() == typeinfo.String {
		left = &ast.Call{Kind: ast.MethodCall, Method: compareOrdinal(), Args: []ast.Node{left, right}}
		right = &ast.Constant{Value: 0, Typ: typeinfo.Int}
	}
	return &ast.Binary{Op: op, Left: left, Right: right, Typ: typeinfo.Bool}
}

// +, -, & operators
func (p *Parser) parseAdditive() (ast.Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokPlus || p.tok.kind == tokMinus || p.tok.kind == tokAmpersand {
		op := p.tok
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		switch {
		case op.kind == tokAmpersand,
			op.kind == tokPlus && (left.Type() == typeinfo.String || right.Type() == typeinfo.String):
			left = generateConcat(left, right)
		case op.kind == tokPlus:
			if err := p.checkAndPromoteOperands(signatures().add, op, &left, &right); err != nil {
				return nil, err
			}
			left = generateArithmetic(ast.Add, left, right)
		default:
			if err := p.checkAndPromoteOperands(signatures().subtract, op, &left, &right); err != nil {
				return nil, err
			}
			left = generateArithmetic(ast.Subtract, left, right)
		}
	}
	return left, nil
}

func generateConcat(left, right ast.Node) ast.Node {
	return &ast.Call{Kind: ast.MethodCall, Method: concatMethod(), Args: []ast.Node{toAny(left), toAny(right)}}
}

func toAny(n ast.Node) ast.Node {
	if n.Type() == typeinfo.Any {
		return n
	}
	return &ast.Convert{Operand: n, Typ: typeinfo.Any}
}

// generateArithmetic builds an arithmetic operation on promoted operands.
// The difference of two times is a duration.
func generateArithmetic(op ast.BinaryOp, left, right ast.Node) ast.Node {
	typ := left.Type()
	if op == ast.Subtract && typeinfo.NonNullable(typ) == typeinfo.Time &&
		typeinfo.NonNullable(right.Type()) == typeinfo.Time {
		typ = typeinfo.Duration
		if typeinfo.IsNullable(left.Type()) {
			typ = reflect.PointerTo(typeinfo.Duration)
		}
	}
	return &ast.Binary{Op: op, Left: left, Right: right, Typ: typ}
}

// *, /, %, mod operators
func (p *Parser) parseMultiplicative() (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var binOp ast.BinaryOp
		switch {
		case p.tok.kind == tokAsterisk:
			binOp = ast.Multiply
		case p.tok.kind == tokSlash:
			binOp = ast.Divide
		case p.tok.kind == tokPercent || p.identIs("mod"):
			binOp = ast.Modulo
		default:
			return left, nil
		}
		op := p.tok
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if err := p.checkAndPromoteOperands(signatures().arithmetic, op, &left, &right); err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: binOp, Left: left, Right: right, Typ: left.Type()}
	}
}

// -, !, not unary operators
func (p *Parser) parseUnary() (ast.Node, error) {
	if p.tok.kind != tokMinus && p.tok.kind != tokExclamation && !p.identIs("not") {
		return p.parsePrimary()
	}
	op := p.tok
	if err := p.next(); err != nil {
		return nil, err
	}
	if op.kind == tokMinus && (p.tok.kind == tokIntegerLiteral || p.tok.kind == tokRealLiteral) {
		// Negative literals are read as a whole so that the smallest
		// integers stay in range.
		p.tok.text = "-" + p.tok.text
		p.tok.pos = op.pos
		return p.parsePrimary()
	}
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if op.kind == tokMinus {
		if err := p.checkAndPromoteOperand(signatures().negation, op, &operand); err != nil {
			return nil, err
		}
		return &ast.Unary{Op: ast.Negate, Operand: operand}, nil
	}
	if err := p.checkAndPromoteOperand(signatures().not, op, &operand); err != nil {
		return nil, err
	}
	return &ast.Unary{Op: ast.Not, Operand: operand}, nil
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	n, err := p.parsePrimaryStart()
	if err != nil {
		return nil, err
	}
	for {
		switch p.tok.kind {
		case tokDot:
			if err := p.next(); err != nil {
				return nil, err
			}
			n, err = p.parseMemberAccess(nil, n)
		case tokOpenBracket:
			n, err = p.parseElementAccess(n)
		default:
			return n, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parsePrimaryStart() (ast.Node, error) {
	switch p.tok.kind {
	case tokIdentifier:
		return p.parseIdentifier()
	case tokStringLiteral:
		return p.parseStringLiteral()
	case tokIntegerLiteral:
		return p.parseIntegerLiteral()
	case tokRealLiteral:
		return p.parseRealLiteral()
	case tokOpenParen:
		return p.parseParenExpression()
	}
	return nil, errorf(p.tok.pos, errExpressionExpected)
}

func (p *Parser) literal(value any, typ reflect.Type, text string) (ast.Node, error) {
	c := &ast.Constant{Value: value, Typ: typ}
	p.literals[c] = text
	if err := p.next(); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parseStringLiteral() (ast.Node, error) {
	text := p.tok.text
	quote := text[:1]
	s := strings.ReplaceAll(text[1:len(text)-1], quote+quote, quote)
	return p.literal(s, typeinfo.String, s)
}

// parseIntegerLiteral types a literal as the first of int32, uint32, int64
// and uint64 that can hold it.
func (p *Parser) parseIntegerLiteral() (ast.Node, error) {
	text := p.tok.text
	if text[0] != '-' {
		u, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, errorf(p.tok.pos, errInvalidIntegerLiteral, text)
		}
		switch {
		case u <= math.MaxInt32:
			return p.literal(int32(u), typeinfo.Int32, text)
		case u <= math.MaxUint32:
			return p.literal(uint32(u), typeinfo.Uint32, text)
		case u <= math.MaxInt64:
			return p.literal(int64(u), typeinfo.Int64, text)
		}
		return p.literal(u, typeinfo.Uint64, text)
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, errorf(p.tok.pos, errInvalidIntegerLiteral, text)
	}
	if i >= math.MinInt32 {
		return p.literal(int32(i), typeinfo.Int32, text)
	}
	return p.literal(i, typeinfo.Int64, text)
}

func (p *Parser) parseRealLiteral() (ast.Node, error) {
	text := p.tok.text
	if last := text[len(text)-1]; last == 'f' || last == 'F' {
		f, err := strconv.ParseFloat(text[:len(text)-1], 32)
		if err != nil {
			return nil, errorf(p.tok.pos, errInvalidRealLiteral, text)
		}
		return p.literal(float32(f), typeinfo.Float32, text)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, errorf(p.tok.pos, errInvalidRealLiteral, text)
	}
	return p.literal(f, typeinfo.Float64, text)
}

func (p *Parser) parseParenExpression() (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	n, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokCloseParen {
		return nil, errorf(p.tok.pos, errCloseParenOrOperator)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseIdentifier() (ast.Node, error) {
	name := typeinfo.Fold(p.tok.text)
	if value, ok := keywordTable()[name]; ok {
		switch v := value.(type) {
		case reflect.Type:
			return p.parseTypeAccess(v)
		case keyword:
			switch v {
			case kwIt:
				return p.parseIt()
			case kwIif:
				return p.parseIif()
			default:
				return p.parseNew()
			}
		case *ast.Constant:
			if err := p.next(); err != nil {
				return nil, err
			}
			return v, nil
		}
	}
	if value, ok := p.symbols[name]; ok {
		return p.parseSymbol(value)
	}
	if value, ok := p.externals[p.tok.text]; ok {
		return p.parseSymbol(value)
	}
	if t, ok := aliasTable()[name]; ok && !p.hasMember(p.it, p.tok.text) {
		return p.parseTypeAccess(t)
	}
	if p.it != nil {
		return p.parseMemberAccess(nil, p.it)
	}
	return nil, errorf(p.tok.pos, errUnknownIdentifier, p.tok.text)
}

// hasMember reports whether the parameter it has a property, field or
// method called name.
func (p *Parser) hasMember(it *ast.Parameter, name string) bool {
	if it == nil {
		return false
	}
	if p.findPropertyOrField(it.Typ, it, name) != nil {
		return true
	}
	return p.declared[it.Typ] && len(typeinfo.Methods(it.Typ, name)) > 0
}

// parseSymbol turns the value of a symbol into a node. Lambdas are invoked
// with the argument list that must follow them.
func (p *Parser) parseSymbol(value any) (ast.Node, error) {
	if l, ok := value.(*ast.Lambda); ok {
		return p.parseLambdaInvocation(l)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case ast.Node:
		return v, nil
	case nil:
		return &ast.Constant{Value: nil, Typ: typeinfo.Any}, nil
	}
	return &ast.Constant{Value: value, Typ: reflect.TypeOf(value)}, nil
}

func (p *Parser) parseIt() (ast.Node, error) {
	if p.it == nil {
		return nil, errorf(p.tok.pos, errNoItInScope)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.it, nil
}

func (p *Parser) parseIif() (ast.Node, error) {
	errorPos := p.tok.pos
	if err := p.next(); err != nil {
		return nil, err
	}
	args, err := p.parseArgumentList()
	if err != nil {
		return nil, err
	}
	if len(args) != 3 {
		return nil, errorf(errorPos, errIifRequiresThreeArgs)
	}
	return p.generateConditional(args[0], args[1], args[2], errorPos)
}

func (p *Parser) generateConditional(test, ifTrue, ifFalse ast.Node, pos int) (ast.Node, error) {
	if test.Type() != typeinfo.Bool {
		return nil, errorf(pos, errFirstExprMustBeBool)
	}
	if ifTrue.Type() != ifFalse.Type() {
		var trueAsFalse, falseAsTrue ast.Node
		if ifFalse != nullLiteral {
			trueAsFalse = p.promote(ifTrue, ifFalse.Type(), true)
		}
		if ifTrue != nullLiteral {
			falseAsTrue = p.promote(ifFalse, ifTrue.Type(), true)
		}
		switch {
		case trueAsFalse != nil && falseAsTrue == nil:
			ifTrue = trueAsFalse
		case falseAsTrue != nil && trueAsFalse == nil:
			ifFalse = falseAsTrue
		default:
			t1, t2 := "null", "null"
			if ifTrue != nullLiteral {
				t1 = typeinfo.TypeName(ifTrue.Type())
			}
			if ifFalse != nullLiteral {
				t2 = typeinfo.TypeName(ifFalse.Type())
			}
			if trueAsFalse != nil {
				return nil, errorf(pos, errBothTypesConvertToOther, t1, t2)
			}
			return nil, errorf(pos, errNeitherTypeConvertsToOther, t1, t2)
		}
	}
	return &ast.Conditional{Test: test, IfTrue: ifTrue, IfFalse: ifFalse}, nil
}

// parseNew parses new(expr as Name, ...) into a record construction.
func (p *Parser) parseNew() (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokOpenParen {
		return nil, errorf(p.tok.pos, errOpenParenExpected)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	var sig record.Signature
	var values []ast.Node
	for {
		exprPos := p.tok.pos
		n, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		var name string
		if p.identIs("as") {
			if err := p.next(); err != nil {
				return nil, err
			}
			if name, err = p.getIdentifier(); err != nil {
				return nil, err
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		} else {
			switch m := n.(type) {
			case *ast.Member:
				name = m.Name
			case *ast.Call:
				if m.Kind != ast.PropertyGet {
					return nil, errorf(exprPos, errMissingAsClause)
				}
				name = m.Method.Name
			default:
				return nil, errorf(exprPos, errMissingAsClause)
			}
		}
		sig = append(sig, record.Property{Name: name, Type: n.Type()})
		values = append(values, n)
		if p.tok.kind != tokComma {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind != tokCloseParen {
		return nil, errorf(p.tok.pos, errCloseParenOrComma)
	}
	closePos := p.tok.pos
	if err := p.next(); err != nil {
		return nil, err
	}
	layout, err := record.GetOrCreate(sig)
	if err != nil {
		return nil, errorf(closePos, errInvalidRecord, err)
	}
	bindings := make([]ast.Binding, len(values))
	for i, v := range values {
		f := layout.Type.Field(i)
		bindings[i] = ast.Binding{Name: f.Name, Index: i, Value: v}
	}
	return &ast.MemberInit{Typ: layout.Type, Bindings: bindings}, nil
}

func (p *Parser) parseLambdaInvocation(l *ast.Lambda) (ast.Node, error) {
	errorPos := p.tok.pos
	if err := p.next(); err != nil {
		return nil, err
	}
	args, err := p.parseArgumentList()
	if err != nil {
		return nil, err
	}
	m := &ast.Method{Params: make([]reflect.Type, len(l.Params))}
	for i, param := range l.Params {
		m.Params[i] = param.Typ
	}
	if _, n := p.findBest([]*ast.Method{m}, args); n != 1 {
		return nil, errorf(errorPos, errArgsIncompatibleWithLambda)
	}
	return &ast.Invoke{Lambda: l, Args: args}, nil
}

// parseTypeAccess parses what follows a predefined type name: an optional
// "?" for the nullable form and then either a construction, a conversion or
// a static member.
func (p *Parser) parseTypeAccess(t reflect.Type) (ast.Node, error) {
	errorPos := p.tok.pos
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokQuestion {
		n, ok := typeinfo.Nullable(t)
		if !ok {
			return nil, errorf(errorPos, errTypeHasNoNullableForm, typeinfo.TypeName(t))
		}
		t = n
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind == tokOpenParen {
		args, err := p.parseArgumentList()
		if err != nil {
			return nil, err
		}
		m, n := p.findBest(hostMembers().lookupConstructors(t), args)
		switch n {
		case 0:
			if len(args) == 1 {
				return p.generateConversion(args[0], t, errorPos)
			}
			return nil, errorf(errorPos, errNoMatchingConstructor, typeinfo.TypeName(t))
		case 1:
			return &ast.Call{Kind: ast.Construct, Method: m, Args: args}, nil
		}
		return nil, errorf(errorPos, errAmbiguousConstructor, typeinfo.TypeName(t))
	}
	if p.tok.kind != tokDot {
		return nil, errorf(p.tok.pos, errDotOrOpenParenExpected)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.parseMemberAccess(t, nil)
}

// parseMemberAccess parses a member of instance, or a static member of typ
// when instance is nil.
func (p *Parser) parseMemberAccess(typ reflect.Type, instance ast.Node) (ast.Node, error) {
	if instance != nil {
		typ = instance.Type()
	}
	errorPos := p.tok.pos
	id, err := p.getIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokOpenParen {
		if instance != nil && typ != typeinfo.String {
			if elem, ok := typeinfo.SequenceElem(typ); ok && isAggregate(id) {
				return p.parseAggregate(instance, elem, id, errorPos)
			}
		}
		args, err := p.parseArgumentList()
		if err != nil {
			return nil, err
		}
		m, n := p.findMethod(typ, id, instance == nil, args)
		switch n {
		case 0:
			return nil, errorf(errorPos, errNoApplicableMethod, id, typeinfo.TypeName(typ))
		case 1:
			if m.Result == nil {
				return nil, errorf(errorPos, errMethodIsVoid, id, typeinfo.TypeName(typ))
			}
			return &ast.Call{Kind: ast.MethodCall, Receiver: instance, Method: m, Args: args}, nil
		}
		return nil, errorf(errorPos, errAmbiguousMethodInvocation, id, typeinfo.TypeName(typ))
	}
	if n := p.findPropertyOrField(typ, instance, id); n != nil {
		return n, nil
	}
	return nil, errorf(errorPos, errUnknownPropertyOrField, id, typeinfo.TypeName(typ))
}

// findMethod resolves a call against the allowed members of the predefined
// types and the methods of the types the expression was declared over.
func (p *Parser) findMethod(typ reflect.Type, name string, static bool, args []ast.Node) (*ast.Method, int) {
	candidates := hostMembers().lookupMethods(typ, static, name)
	if !static && p.declared[typ] {
		for _, rm := range typeinfo.Methods(typ, name) {
			if m, ok := declaredMethod(typ, rm); ok {
				candidates = append(candidates, m)
			}
		}
	}
	return p.findBest(candidates, args)
}

func declaredMethod(owner reflect.Type, rm reflect.Method) (*ast.Method, bool) {
	ft := rm.Type
	if ft.IsVariadic() {
		return nil, false
	}
	m := &ast.Method{Owner: owner, Name: rm.Name, Func: rm.Func}
	for i := 1; i < ft.NumIn(); i++ {
		m.Params = append(m.Params, ft.In(i))
	}
	switch ft.NumOut() {
	case 0:
	case 1:
		m.Result = ft.Out(0)
	case 2:
		if !typeinfo.IsError(ft.Out(1)) {
			return nil, false
		}
		m.Result = ft.Out(0)
		m.Fallible = true
	default:
		return nil, false
	}
	return m, true
}

func (p *Parser) findPropertyOrField(typ reflect.Type, instance ast.Node, name string) ast.Node {
	if m, ok := hostMembers().lookupProperty(typ, instance == nil, name); ok {
		return &ast.Call{Kind: ast.PropertyGet, Receiver: instance, Method: m}
	}
	if instance == nil {
		return nil
	}
	if typeinfo.IsNullable(typ) {
		if m, ok := nullableProperty(typ, name); ok {
			return &ast.Call{Kind: ast.PropertyGet, Receiver: instance, Method: m}
		}
	}
	st := typ
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct || typeinfo.IsPredefined(st) {
		return nil
	}
	info, err := typeinfo.GetTypeInfo(st)
	if err != nil {
		return nil
	}
	f, ok := info.Field(name)
	if !ok {
		return nil
	}
	return &ast.Member{Receiver: instance, Name: f.Name, Index: f.Index, Typ: f.Type}
}

// parseAggregate parses a sequence operation on a collection. Inside its
// argument list "it" is the element of the collection.
func (p *Parser) parseAggregate(instance ast.Node, elem reflect.Type, name string, errorPos int) (ast.Node, error) {
	outer := p.it
	inner := ast.NewParameter("", elem)
	p.it = inner
	p.declared[elem] = true
	args, err := p.parseArgumentList()
	p.it = outer
	if err != nil {
		return nil, err
	}
	var candidates []*ast.Method
	for _, m := range signatures().aggregates {
		if typeinfo.Fold(m.Name) == typeinfo.Fold(name) {
			candidates = append(candidates, m)
		}
	}
	sig, n := p.findBest(candidates, args)
	if n != 1 {
		return nil, errorf(errorPos, errNoApplicableAggregate, name)
	}
	agg := &ast.Aggregate{
		Source:  instance,
		Method:  sig.Name,
		Element: elem,
		Typ:     aggregateResult(sig, args, elem),
	}
	if len(args) > 0 {
		agg.Selector = &ast.Lambda{Params: []*ast.Parameter{inner}, Body: args[0]}
	}
	return agg, nil
}

func (p *Parser) parseArgumentList() ([]ast.Node, error) {
	if p.tok.kind != tokOpenParen {
		return nil, errorf(p.tok.pos, errOpenParenExpected)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	var args []ast.Node
	if p.tok.kind != tokCloseParen {
		var err error
		if args, err = p.parseArguments(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind != tokCloseParen {
		return nil, errorf(p.tok.pos, errCloseParenOrComma)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseArguments() ([]ast.Node, error) {
	var args []ast.Node
	for {
		n, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, n)
		if p.tok.kind != tokComma {
			return args, nil
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
}

// parseElementAccess parses an index into a slice, array or map.
func (p *Parser) parseElementAccess(n ast.Node) (ast.Node, error) {
	errorPos := p.tok.pos
	if err := p.next(); err != nil {
		return nil, err
	}
	args, err := p.parseArguments()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokCloseBracket {
		return nil, errorf(p.tok.pos, errCloseBracketOrComma)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	t := n.Type()
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t == typeinfo.UUID {
			break
		}
		if len(args) != 1 {
			return nil, errorf(errorPos, errCannotIndexMultiDimArray)
		}
		index := p.promote(args[0], typeinfo.Int, true)
		if index == nil {
			return nil, errorf(errorPos, errInvalidIndex)
		}
		return &ast.Index{Receiver: n, Index: index, Typ: t.Elem()}, nil
	case reflect.Map:
		indexer := &ast.Method{Name: "Item", Params: []reflect.Type{t.Key()}, Result: t.Elem()}
		switch _, c := p.findBest([]*ast.Method{indexer}, args); c {
		case 0:
			return nil, errorf(errorPos, errNoApplicableIndexer, typeinfo.TypeName(t))
		case 1:
			return &ast.Index{Receiver: n, Index: args[0], Typ: t.Elem()}, nil
		default:
			return nil, errorf(errorPos, errAmbiguousIndexerInvocation, typeinfo.TypeName(t))
		}
	}
	return nil, errorf(errorPos, errNoApplicableIndexer, typeinfo.TypeName(t))
}

// getIdentifier returns the current identifier without a leading '@'.
func (p *Parser) getIdentifier() (string, error) {
	if p.tok.kind != tokIdentifier {
		return "", errorf(p.tok.pos, errIdentifierExpected)
	}
	return strings.TrimPrefix(p.tok.text, "@"), nil
}
