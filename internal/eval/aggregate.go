// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package eval

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/cockroachdb/apd/v3"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/typeinfo"
)

var errNoElements = errors.New("sequence contains no elements")

// elements evaluates the source of an aggregate. A null collection is
// empty.
func elements(n *ast.Aggregate, env Env) (reflect.Value, int, error) {
	src, err := Eval(n.Source, env)
	if err != nil {
		return reflect.Value{}, 0, err
	}
	src = typeinfo.Indirect(src)
	if typeinfo.IsNull(src) {
		return src, 0, nil
	}
	return src, src.Len(), nil
}

// selector evaluates the selector of n for every element in turn. The
// element parameter is bound in env only for the duration of the walk.
func selector(n *ast.Aggregate, env Env, src reflect.Value, count int, f func(elem, v reflect.Value) (bool, error)) error {
	param := n.Selector.Params[0]
	prev, had := env[param]
	defer func() {
		if had {
			env[param] = prev
		} else {
			delete(env, param)
		}
	}()
	for i := 0; i < count; i++ {
		elem := src.Index(i)
		env[param] = elem
		v, err := Eval(n.Selector.Body, env)
		if err != nil {
			return err
		}
		more, err := f(elem, v)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

func truth(v reflect.Value) bool {
	v = typeinfo.Indirect(v)
	if typeinfo.IsNull(v) {
		return false
	}
	if typeinfo.IsNullable(v.Type()) {
		v = v.Elem()
	}
	return v.Bool()
}

func aggregate(n *ast.Aggregate, env Env) (reflect.Value, error) {
	if env == nil {
		env = Env{}
	}
	src, count, err := elements(n, env)
	if err != nil {
		return reflect.Value{}, err
	}
	if n.Selector == nil {
		switch n.Method {
		case "Any":
			return reflect.ValueOf(count > 0), nil
		case "Count":
			return reflect.ValueOf(count), nil
		}
		return reflect.Value{}, fmt.Errorf("aggregate %s needs a selector", n.Method)
	}
	switch n.Method {
	case "Where":
		out := reflect.MakeSlice(reflect.SliceOf(n.Element), 0, count)
		err := selector(n, env, src, count, func(elem, v reflect.Value) (bool, error) {
			if truth(v) {
				out = reflect.Append(out, elem)
			}
			return true, nil
		})
		return out, err
	case "Any", "All":
		want := n.Method == "Any"
		found := false
		err := selector(n, env, src, count, func(_, v reflect.Value) (bool, error) {
			if truth(v) == want {
				found = true
				return false, nil
			}
			return true, nil
		})
		return reflect.ValueOf(found == want), err
	case "Count":
		matched := 0
		err := selector(n, env, src, count, func(_, v reflect.Value) (bool, error) {
			if truth(v) {
				matched++
			}
			return true, nil
		})
		return reflect.ValueOf(matched), err
	case "Min", "Max":
		return extreme(n, env, src, count)
	case "Sum", "Average":
		return sum(n, env, src, count)
	}
	return reflect.Value{}, fmt.Errorf("unknown aggregate %s", n.Method)
}

// extreme finds the smallest or largest selected value. Nulls are skipped.
func extreme(n *ast.Aggregate, env Env, src reflect.Value, count int) (reflect.Value, error) {
	var best reflect.Value
	err := selector(n, env, src, count, func(_, v reflect.Value) (bool, error) {
		if typeinfo.IsNull(v) {
			return true, nil
		}
		if !best.IsValid() {
			best = v
			return true, nil
		}
		c, err := typeinfo.Compare(v, best)
		if err != nil {
			return false, err
		}
		if (n.Method == "Min" && c < 0) || (n.Method == "Max" && c > 0) {
			best = v
		}
		return true, nil
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if !best.IsValid() {
		if typeinfo.IsNilable(n.Typ) {
			return reflect.Zero(n.Typ), nil
		}
		return reflect.Value{}, errNoElements
	}
	return best, nil
}

// sum adds the selected values, skipping nulls. Integers are summed with
// overflow checks.
func sum(n *ast.Aggregate, env Env, src reflect.Value, count int) (reflect.Value, error) {
	operandType := typeinfo.NonNullable(n.Selector.Body.Type())
	var (
		ints   int64
		floats float64
		dec    apd.Decimal
		seen   int
	)
	err := selector(n, env, src, count, func(_, v reflect.Value) (bool, error) {
		v = typeinfo.Indirect(v)
		if typeinfo.IsNull(v) {
			return true, nil
		}
		if typeinfo.IsNullable(v.Type()) {
			v = v.Elem()
		}
		seen++
		switch {
		case operandType == typeinfo.Decimal:
			d := v.Interface().(apd.Decimal)
			if _, err := typeinfo.DecimalContext.Add(&dec, &dec, &d); err != nil {
				return false, err
			}
		case v.CanInt():
			x := v.Int()
			if (x > 0 && ints > math.MaxInt64-x) || (x < 0 && ints < math.MinInt64-x) {
				return false, fmt.Errorf("arithmetic operation resulted in an overflow")
			}
			ints += x
		default:
			floats += v.Float()
		}
		return true, nil
	})
	if err != nil {
		return reflect.Value{}, err
	}

	var total reflect.Value
	switch {
	case operandType == typeinfo.Decimal:
		total = typeinfo.NewDecimal(&dec)
	case typeinfo.IsIntegral(operandType):
		total = reflect.ValueOf(ints)
	default:
		total = reflect.ValueOf(floats)
	}
	if n.Method == "Sum" {
		return typeinfo.ConvertValue(total, n.Typ, true)
	}

	if seen == 0 {
		if typeinfo.IsNullable(n.Typ) {
			return reflect.Zero(n.Typ), nil
		}
		return reflect.Value{}, errNoElements
	}
	if operandType == typeinfo.Decimal {
		var avg apd.Decimal
		if _, err := typeinfo.DecimalContext.Quo(&avg, &dec, apd.New(int64(seen), 0)); err != nil {
			return reflect.Value{}, err
		}
		return typeinfo.ConvertValue(typeinfo.NewDecimal(&avg), n.Typ, false)
	}
	if typeinfo.IsIntegral(operandType) {
		return typeinfo.ConvertValue(reflect.ValueOf(float64(ints)/float64(seen)), n.Typ, false)
	}
	return typeinfo.ConvertValue(reflect.ValueOf(floats/float64(seen)), n.Typ, false)
}
