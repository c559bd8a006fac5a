// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package eval evaluates ast trees against Go values. It backs the in-memory
// sequences of the dynq package.
package eval

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/record"
	"github.com/canonical/dynq/internal/typeinfo"
)

// Env binds parameters to values.
type Env map[*ast.Parameter]reflect.Value

// Lambda applies l to args.
func Lambda(l *ast.Lambda, args ...reflect.Value) (reflect.Value, error) {
	if len(args) != len(l.Params) {
		return reflect.Value{}, fmt.Errorf("lambda takes %d arguments, got %d", len(l.Params), len(args))
	}
	env := make(Env, len(args))
	for i, p := range l.Params {
		env[p] = args[i]
	}
	return Eval(l.Body, env)
}

// Predicate applies the boolean lambda l to v.
func Predicate(l *ast.Lambda, v reflect.Value) (bool, error) {
	out, err := Lambda(l, v)
	if err != nil {
		return false, err
	}
	out = typeinfo.Indirect(out)
	if typeinfo.IsNull(out) {
		return false, nil
	}
	if typeinfo.IsNullable(out.Type()) {
		out = out.Elem()
	}
	if out.Kind() != reflect.Bool {
		return false, fmt.Errorf("predicate returned %s, not Boolean", typeinfo.TypeName(out.Type()))
	}
	return out.Bool(), nil
}

// Eval evaluates n with the parameters bound by env.
func Eval(n ast.Node, env Env) (reflect.Value, error) {
	switch n := n.(type) {
	case *ast.Constant:
		return constant(n), nil
	case *ast.Parameter:
		v, ok := env[n]
		if !ok {
			return reflect.Value{}, fmt.Errorf("parameter %s is not bound", n)
		}
		return v, nil
	case *ast.Member:
		return member(n, env)
	case *ast.Call:
		return call(n, env)
	case *ast.Index:
		return index(n, env)
	case *ast.Convert:
		v, err := Eval(n.Operand, env)
		if err != nil {
			return reflect.Value{}, err
		}
		return typeinfo.ConvertValue(v, n.Typ, n.Checked)
	case *ast.Unary:
		return unary(n, env)
	case *ast.Binary:
		return binary(n, env)
	case *ast.Conditional:
		test, err := Eval(n.Test, env)
		if err != nil {
			return reflect.Value{}, err
		}
		if typeinfo.Indirect(test).Bool() {
			return Eval(n.IfTrue, env)
		}
		return Eval(n.IfFalse, env)
	case *ast.Invoke:
		return invoke(n, env)
	case *ast.MemberInit:
		return memberInit(n, env)
	case *ast.Aggregate:
		return aggregate(n, env)
	}
	return reflect.Value{}, fmt.Errorf("cannot evaluate %T", n)
}

func constant(n *ast.Constant) reflect.Value {
	if n.Value == nil {
		return reflect.Zero(n.Typ)
	}
	v := reflect.ValueOf(n.Value)
	if v.Type() != n.Typ && n.Typ.Kind() == reflect.Interface {
		out := reflect.New(n.Typ).Elem()
		out.Set(v)
		return out
	}
	return v
}

func member(n *ast.Member, env Env) (reflect.Value, error) {
	recv, err := Eval(n.Receiver, env)
	if err != nil {
		return reflect.Value{}, err
	}
	recv = typeinfo.Indirect(recv)
	if typeinfo.IsNull(recv) {
		return reflect.Value{}, fmt.Errorf("cannot read %s of null", n.Name)
	}
	if recv.Kind() == reflect.Pointer {
		recv = recv.Elem()
	}
	v, err := recv.FieldByIndexErr(n.Index)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot read %s: %w", n.Name, err)
	}
	return v, nil
}

func call(n *ast.Call, env Env) (out reflect.Value, err error) {
	m := n.Method
	args := make([]reflect.Value, 0, len(n.Args)+1)
	if n.Receiver != nil {
		recv, err := Eval(n.Receiver, env)
		if err != nil {
			return reflect.Value{}, err
		}
		recv = typeinfo.Indirect(recv)
		if !recv.IsValid() {
			return reflect.Value{}, fmt.Errorf("cannot call %s on null", m.Name)
		}
		args = append(args, recv)
	}
	for i, arg := range n.Args {
		v, err := Eval(arg, env)
		if err != nil {
			return reflect.Value{}, err
		}
		if v, err = fit(v, m.Params[i]); err != nil {
			return reflect.Value{}, err
		}
		args = append(args, v)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("calling %s: %v", m.Name, r)
		}
	}()
	results := m.Func.Call(args)
	if m.Fallible && !results[1].IsNil() {
		return reflect.Value{}, fmt.Errorf("calling %s: %w", m.Name, results[1].Interface().(error))
	}
	return results[0], nil
}

// fit returns v as a value assignable to t.
func fit(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Zero(t), nil
	}
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	return typeinfo.ConvertValue(v, t, false)
}

func index(n *ast.Index, env Env) (reflect.Value, error) {
	recv, err := Eval(n.Receiver, env)
	if err != nil {
		return reflect.Value{}, err
	}
	idx, err := Eval(n.Index, env)
	if err != nil {
		return reflect.Value{}, err
	}
	recv = typeinfo.Indirect(recv)
	if !recv.IsValid() {
		return reflect.Value{}, fmt.Errorf("cannot index null")
	}
	switch recv.Kind() {
	case reflect.Map:
		key, err := fit(typeinfo.Indirect(idx), recv.Type().Key())
		if err != nil {
			return reflect.Value{}, err
		}
		v := recv.MapIndex(key)
		if !v.IsValid() {
			return reflect.Zero(n.Typ), nil
		}
		return v, nil
	case reflect.Slice, reflect.Array:
		i := int(typeinfo.Indirect(idx).Int())
		if i < 0 || i >= recv.Len() {
			return reflect.Value{}, fmt.Errorf("index %d out of range [0:%d]", i, recv.Len())
		}
		return recv.Index(i), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot index %s", typeinfo.TypeName(recv.Type()))
}

func invoke(n *ast.Invoke, env Env) (reflect.Value, error) {
	inner := maps.Clone(env)
	if inner == nil {
		inner = Env{}
	}
	for i, arg := range n.Args {
		v, err := Eval(arg, env)
		if err != nil {
			return reflect.Value{}, err
		}
		inner[n.Lambda.Params[i]] = v
	}
	return Eval(n.Lambda.Body, inner)
}

func memberInit(n *ast.MemberInit, env Env) (reflect.Value, error) {
	layout, ok := record.Lookup(n.Typ)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%s is not a record type", n.Typ)
	}
	values := make([]reflect.Value, len(n.Bindings))
	for _, b := range n.Bindings {
		v, err := Eval(b.Value, env)
		if err != nil {
			return reflect.Value{}, err
		}
		values[b.Index] = v
	}
	return layout.New(values...)
}
