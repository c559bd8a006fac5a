// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package eval

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/typeinfo"
)

var errDivideByZero = errors.New("attempted to divide by zero")

// operand evaluates n and reports whether it is null. Non-null nullable
// values are dereferenced.
func operand(n ast.Node, env Env) (reflect.Value, bool, error) {
	v, err := Eval(n, env)
	if err != nil {
		return reflect.Value{}, false, err
	}
	v = typeinfo.Indirect(v)
	if typeinfo.IsNull(v) {
		return v, true, nil
	}
	if typeinfo.IsNullable(v.Type()) {
		v = v.Elem()
	}
	return v, false, nil
}

// lift returns v as a value of type t, which may be the nullable form of the
// type of v.
func lift(v reflect.Value, t reflect.Type) reflect.Value {
	if v.Type() == t {
		return v
	}
	if typeinfo.IsNullable(t) {
		p := reflect.New(t.Elem())
		p.Elem().Set(v.Convert(t.Elem()))
		return p
	}
	return v.Convert(t)
}

func unary(n *ast.Unary, env Env) (reflect.Value, error) {
	v, null, err := operand(n.Operand, env)
	if err != nil {
		return reflect.Value{}, err
	}
	t := n.Type()
	if null {
		return reflect.Zero(t), nil
	}
	out := reflect.New(v.Type()).Elem()
	switch {
	case n.Op == ast.Not:
		out.SetBool(!v.Bool())
	case v.Type() == typeinfo.Decimal:
		d := v.Interface().(apd.Decimal)
		var neg apd.Decimal
		neg.Neg(&d)
		out = typeinfo.NewDecimal(&neg)
	case v.CanInt():
		out.SetInt(-v.Int())
	case v.CanFloat():
		out.SetFloat(-v.Float())
	default:
		return reflect.Value{}, fmt.Errorf("cannot negate %s", typeinfo.TypeName(v.Type()))
	}
	return lift(out, t), nil
}

func binary(n *ast.Binary, env Env) (reflect.Value, error) {
	switch n.Op {
	case ast.AndAlso, ast.OrElse:
		return logical(n, env)
	case ast.Equal, ast.NotEqual:
		l, err := Eval(n.Left, env)
		if err != nil {
			return reflect.Value{}, err
		}
		r, err := Eval(n.Right, env)
		if err != nil {
			return reflect.Value{}, err
		}
		eq := typeinfo.ValuesEqual(l, r)
		return reflect.ValueOf(eq == (n.Op == ast.Equal)), nil
	}
	l, lnull, err := operand(n.Left, env)
	if err != nil {
		return reflect.Value{}, err
	}
	r, rnull, err := operand(n.Right, env)
	if err != nil {
		return reflect.Value{}, err
	}
	if n.Op.IsComparison() {
		if lnull || rnull {
			return reflect.ValueOf(false), nil
		}
		c, err := typeinfo.Compare(l, r)
		if err != nil {
			return reflect.Value{}, err
		}
		var result bool
		switch n.Op {
		case ast.Less:
			result = c < 0
		case ast.LessEqual:
			result = c <= 0
		case ast.Greater:
			result = c > 0
		default:
			result = c >= 0
		}
		return reflect.ValueOf(result), nil
	}
	if lnull || rnull {
		return reflect.Zero(n.Typ), nil
	}
	out, err := arithmetic(n.Op, l, r)
	if err != nil {
		return reflect.Value{}, err
	}
	return lift(out, n.Typ), nil
}

// logical evaluates && and || with short circuits. Nullable operands follow
// three-valued logic: null && false is false and null || true is true.
func logical(n *ast.Binary, env Env) (reflect.Value, error) {
	short := n.Op == ast.OrElse
	l, lnull, err := operand(n.Left, env)
	if err != nil {
		return reflect.Value{}, err
	}
	if !lnull && l.Bool() == short {
		return lift(reflect.ValueOf(short), n.Typ), nil
	}
	r, rnull, err := operand(n.Right, env)
	if err != nil {
		return reflect.Value{}, err
	}
	if !rnull && r.Bool() == short {
		return lift(reflect.ValueOf(short), n.Typ), nil
	}
	if lnull || rnull {
		return reflect.Zero(n.Typ), nil
	}
	return lift(reflect.ValueOf(!short), n.Typ), nil
}

// arithmetic applies op to two non-null values.
func arithmetic(op ast.BinaryOp, l, r reflect.Value) (reflect.Value, error) {
	switch {
	case l.Type() == typeinfo.Time && r.Type() == typeinfo.Time:
		return reflect.ValueOf(l.Interface().(time.Time).Sub(r.Interface().(time.Time))), nil
	case l.Type() == typeinfo.Time:
		d := time.Duration(r.Int())
		if op == ast.Subtract {
			d = -d
		}
		return reflect.ValueOf(l.Interface().(time.Time).Add(d)), nil
	case l.Type() == typeinfo.Decimal:
		return decimalArithmetic(op, l.Interface().(apd.Decimal), r.Interface().(apd.Decimal))
	}
	out := reflect.New(l.Type()).Elem()
	switch {
	case l.CanInt():
		a, b := l.Int(), r.Int()
		switch op {
		case ast.Add:
			out.SetInt(a + b)
		case ast.Subtract:
			out.SetInt(a - b)
		case ast.Multiply:
			out.SetInt(a * b)
		case ast.Divide, ast.Modulo:
			if b == 0 {
				return reflect.Value{}, errDivideByZero
			}
			if op == ast.Divide {
				out.SetInt(a / b)
			} else {
				out.SetInt(a % b)
			}
		}
	case l.CanUint():
		a, b := l.Uint(), r.Uint()
		switch op {
		case ast.Add:
			out.SetUint(a + b)
		case ast.Subtract:
			out.SetUint(a - b)
		case ast.Multiply:
			out.SetUint(a * b)
		case ast.Divide, ast.Modulo:
			if b == 0 {
				return reflect.Value{}, errDivideByZero
			}
			if op == ast.Divide {
				out.SetUint(a / b)
			} else {
				out.SetUint(a % b)
			}
		}
	case l.CanFloat():
		a, b := l.Float(), r.Float()
		switch op {
		case ast.Add:
			out.SetFloat(a + b)
		case ast.Subtract:
			out.SetFloat(a - b)
		case ast.Multiply:
			out.SetFloat(a * b)
		case ast.Divide:
			out.SetFloat(a / b)
		case ast.Modulo:
			out.SetFloat(math.Mod(a, b))
		}
	default:
		return reflect.Value{}, fmt.Errorf("operator %s is not defined on %s", op, typeinfo.TypeName(l.Type()))
	}
	return out, nil
}

func decimalArithmetic(op ast.BinaryOp, a, b apd.Decimal) (reflect.Value, error) {
	var d apd.Decimal
	var err error
	ctx := typeinfo.DecimalContext
	switch op {
	case ast.Add:
		_, err = ctx.Add(&d, &a, &b)
	case ast.Subtract:
		_, err = ctx.Sub(&d, &a, &b)
	case ast.Multiply:
		_, err = ctx.Mul(&d, &a, &b)
	case ast.Divide:
		if b.IsZero() {
			return reflect.Value{}, errDivideByZero
		}
		_, err = ctx.Quo(&d, &a, &b)
	case ast.Modulo:
		if b.IsZero() {
			return reflect.Value{}, errDivideByZero
		}
		_, err = ctx.Rem(&d, &a, &b)
	}
	if err != nil {
		return reflect.Value{}, fmt.Errorf("decimal %s: %w", op, err)
	}
	return typeinfo.NewDecimal(&d), nil
}
