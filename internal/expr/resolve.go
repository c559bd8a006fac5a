// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/typeinfo"
)

// promote returns n converted to type t, or nil if no implicit conversion
// exists. Literals are re-read from their source text so that, for example,
// the integer literal 5 promotes exactly to any numeric type and the string
// literal "Red" to an enumeration member. When exact is true the result has
// type t even where t could hold n unconverted.
func (p *Parser) promote(n ast.Node, t reflect.Type, exact bool) ast.Node {
	if n.Type() == t {
		return n
	}
	if c, ok := n.(*ast.Constant); ok {
		if isNullConstant(c) {
			if typeinfo.IsNilable(t) {
				return typedNil(t)
			}
		} else if text, ok := p.literals[c]; ok {
			if coerced, ok := coerceLiteral(c, text, t); ok {
				return coerced
			}
		}
	}
	if typeinfo.IsCompatibleWith(n.Type(), t) {
		if typeinfo.IsValueType(t) || exact {
			return &ast.Convert{Operand: n, Typ: t}
		}
		return n
	}
	return nil
}

// isNullConstant reports whether c is the untyped null.
func isNullConstant(c *ast.Constant) bool {
	return c.Value == nil && c.Typ == typeinfo.Any
}

func typedNil(t reflect.Type) *ast.Constant {
	return &ast.Constant{Value: reflect.Zero(t).Interface(), Typ: t}
}

// coerceLiteral re-parses the text of a literal as a value of type t.
func coerceLiteral(c *ast.Constant, text string, t reflect.Type) (*ast.Constant, bool) {
	base := typeinfo.NonNullable(t)
	var v reflect.Value
	var ok bool
	switch c.Typ {
	case typeinfo.Int32, typeinfo.Uint32, typeinfo.Int64, typeinfo.Uint64:
		v, ok = parseNumber(text, base)
	case typeinfo.Float64:
		if base == typeinfo.Decimal {
			v, ok = parseNumber(text, base)
		}
	case typeinfo.String:
		if typeinfo.IsEnum(base) {
			if v, ok = typeinfo.EnumMember(base, text); !ok {
				v, ok = parseNumber(text, base)
			}
		}
	}
	if !ok {
		return nil, false
	}
	if base != t {
		ptr := reflect.New(base)
		ptr.Elem().Set(v)
		v = ptr
	}
	return &ast.Constant{Value: v.Interface(), Typ: t}, true
}

// parseNumber parses text as a value of the numeric or enumeration type t.
func parseNumber(text string, t reflect.Type) (reflect.Value, bool) {
	if !typeinfo.IsNumeric(t) && !typeinfo.IsEnum(t) {
		return reflect.Value{}, false
	}
	v := reflect.New(t).Elem()
	if t == typeinfo.Decimal {
		d, _, err := apd.NewFromString(text)
		if err != nil {
			return reflect.Value{}, false
		}
		return typeinfo.NewDecimal(d), true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(text, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, false
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := strconv.ParseUint(text, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, false
		}
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(text, t.Bits())
		if err != nil {
			return reflect.Value{}, false
		}
		v.SetFloat(f)
	default:
		return reflect.Value{}, false
	}
	return v, true
}

// compareConversions decides which of two target types is the better
// conversion for a source type. It returns 1 if t1 is better, -1 if t2 is
// better and 0 if neither is.
func compareConversions(s, t1, t2 reflect.Type) int {
	if t1 == t2 {
		return 0
	}
	if s == t1 {
		return 1
	}
	if s == t2 {
		return -1
	}
	t1t2 := typeinfo.IsCompatibleWith(t1, t2)
	t2t1 := typeinfo.IsCompatibleWith(t2, t1)
	if t1t2 && !t2t1 {
		return 1
	}
	if t2t1 && !t1t2 {
		return -1
	}
	if t1t2 && t2t1 {
		return compareSized(t1, t2)
	}
	f1, f2 := typeinfo.NumericFamily(t1), typeinfo.NumericFamily(t2)
	if f1 == typeinfo.Signed && f2 == typeinfo.Unsigned {
		return 1
	}
	if f2 == typeinfo.Signed && f1 == typeinfo.Unsigned {
		return -1
	}
	return 0
}

// compareSized breaks the tie between int and int64, and between uint and
// uint64, which widen to each other. The sized type is the better target.
func compareSized(t1, t2 reflect.Type) int {
	k1, k2 := typeinfo.NonNullable(t1).Kind(), typeinfo.NonNullable(t2).Kind()
	switch {
	case k1 == reflect.Int64 && k2 == reflect.Int, k1 == reflect.Uint64 && k2 == reflect.Uint:
		return 1
	case k2 == reflect.Int64 && k1 == reflect.Int, k2 == reflect.Uint64 && k1 == reflect.Uint:
		return -1
	}
	return 0
}

// isBetterThan reports whether m1 is at least as good a match as m2 for every
// argument and strictly better for one.
func isBetterThan(args []ast.Node, m1, m2 *ast.Method) bool {
	better := false
	for i, arg := range args {
		c := compareConversions(arg.Type(), m1.Params[i], m2.Params[i])
		if c < 0 {
			return false
		}
		if c > 0 {
			better = true
		}
	}
	return better
}

type applicable struct {
	method *ast.Method
	args   []ast.Node
}

// findBest chooses the best method for the arguments. It returns the number
// of methods left after ranking. When exactly one is left, args is updated
// in place with the promoted arguments.
func (p *Parser) findBest(methods []*ast.Method, args []ast.Node) (*ast.Method, int) {
	var apps []applicable
	for _, m := range methods {
		if len(m.Params) != len(args) {
			continue
		}
		promoted := make([]ast.Node, len(args))
		ok := true
		for i, arg := range args {
			if promoted[i] = p.promote(arg, m.Params[i], false); promoted[i] == nil {
				ok = false
				break
			}
		}
		if ok {
			apps = append(apps, applicable{method: m, args: promoted})
		}
	}
	if len(apps) > 1 {
		var best []applicable
		for _, a := range apps {
			wins := true
			for _, b := range apps {
				if a.method != b.method && !isBetterThan(args, a.method, b.method) {
					wins = false
					break
				}
			}
			if wins {
				best = append(best, a)
			}
		}
		apps = best
	}
	if len(apps) == 1 {
		copy(args, apps[0].args)
		return apps[0].method, 1
	}
	return nil, len(apps)
}

// checkAndPromoteOperands promotes both operands of a binary operator to the
// types of the single best signature in the catalog.
func (p *Parser) checkAndPromoteOperands(sigs []*ast.Method, op token, left, right *ast.Node) error {
	args := []ast.Node{*left, *right}
	if _, n := p.findBest(sigs, args); n != 1 {
		return errorf(op.pos, errIncompatibleOperands, op.text,
			typeinfo.TypeName((*left).Type()), typeinfo.TypeName((*right).Type()))
	}
	*left, *right = args[0], args[1]
	return nil
}

func (p *Parser) checkAndPromoteOperand(sigs []*ast.Method, op token, operand *ast.Node) error {
	args := []ast.Node{*operand}
	if _, n := p.findBest(sigs, args); n != 1 {
		return errorf(op.pos, errIncompatibleOperand, op.text, typeinfo.TypeName((*operand).Type()))
	}
	*operand = args[0]
	return nil
}

// generateConversion converts n to t explicitly, as written with a type name
// and one argument.
func (p *Parser) generateConversion(n ast.Node, t reflect.Type, pos int) (ast.Node, error) {
	from := n.Type()
	if from == t {
		return n, nil
	}
	if typeinfo.IsValueType(from) && typeinfo.IsValueType(t) {
		if (typeinfo.IsNullable(from) || typeinfo.IsNullable(t)) &&
			typeinfo.NonNullable(from) == typeinfo.NonNullable(t) {
			return &ast.Convert{Operand: n, Typ: t}, nil
		}
		if (typeinfo.IsNumeric(from) || typeinfo.IsEnum(from)) &&
			(typeinfo.IsNumeric(t) || typeinfo.IsEnum(t)) {
			return &ast.Convert{Operand: n, Typ: t, Checked: true}, nil
		}
	}
	if typeinfo.IsAssignable(t, from) || typeinfo.IsAssignable(from, t) ||
		t.Kind() == reflect.Interface || from.Kind() == reflect.Interface {
		return &ast.Convert{Operand: n, Typ: t}, nil
	}
	return nil, errorf(pos, errCannotConvertValue, typeinfo.TypeName(from), typeinfo.TypeName(t))
}
