// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"math"
	"reflect"

	"github.com/cockroachdb/apd/v3"
)

// DecimalContext is the context decimal arithmetic is performed in.
var DecimalContext = apd.BaseContext.WithPrecision(28)

var truncateContext = func() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(40)
	ctx.Rounding = apd.RoundDown
	return ctx
}()

// NewDecimal returns v as a decimal value.
func NewDecimal(d *apd.Decimal) reflect.Value {
	v := reflect.New(Decimal).Elem()
	v.Set(reflect.ValueOf(*d))
	return v
}

// ConvertValue converts v to the target type. When checked is true, numeric
// conversions that lose the integral part of a value fail.
func ConvertValue(v reflect.Value, target reflect.Type, checked bool) (reflect.Value, error) {
	v = Indirect(v)
	if !v.IsValid() {
		if IsNilable(target) {
			return reflect.Zero(target), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot convert null to %s", TypeName(target))
	}
	source := v.Type()
	if source == target {
		return v, nil
	}
	if target.Kind() == reflect.Interface {
		if !source.AssignableTo(target) {
			return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", TypeName(source), TypeName(target))
		}
		out := reflect.New(target).Elem()
		out.Set(v)
		return out, nil
	}
	if IsNullable(target) {
		if IsNullable(source) {
			if v.IsNil() {
				return reflect.Zero(target), nil
			}
			v = v.Elem()
		}
		inner, err := ConvertValue(v, target.Elem(), checked)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	if IsNullable(source) {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nullable object must have a value")
		}
		return ConvertValue(v.Elem(), target, checked)
	}
	if target == Decimal && (isNumericKind(source) || source == Decimal) {
		return toDecimal(v)
	}
	if source == Decimal && isNumericKind(target) {
		return fromDecimal(v, target, checked)
	}
	if isNumericKind(source) && isNumericKind(target) {
		return convertNumber(v, target, checked)
	}
	if source.AssignableTo(target) {
		out := reflect.New(target).Elem()
		out.Set(v)
		return out, nil
	}
	if source.ConvertibleTo(target) && source.Kind() != reflect.Slice {
		return v.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", TypeName(source), TypeName(target))
}

func isNumericKind(t reflect.Type) bool {
	if t == Duration || t == Decimal {
		return false
	}
	k := t.Kind()
	return isInteger(k) || k == reflect.Float32 || k == reflect.Float64
}

func toDecimal(v reflect.Value) (reflect.Value, error) {
	var d apd.Decimal
	switch k := v.Kind(); {
	case v.Type() == Decimal:
		return v, nil
	case isUnsigned(k):
		d.SetFinite(0, 0)
		d.Coeff.SetUint64(v.Uint())
	case isInteger(k):
		d.SetInt64(v.Int())
	default:
		if _, err := d.SetFloat64(v.Float()); err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %v to Decimal: %w", v.Float(), err)
		}
	}
	return NewDecimal(&d), nil
}

func fromDecimal(v reflect.Value, target reflect.Type, checked bool) (reflect.Value, error) {
	d := v.Interface().(apd.Decimal)
	out := reflect.New(target).Elem()
	if k := target.Kind(); k == reflect.Float32 || k == reflect.Float64 {
		f, err := d.Float64()
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %s to %s: %w", d.String(), TypeName(target), err)
		}
		out.SetFloat(f)
		return out, nil
	}
	var whole apd.Decimal
	if _, err := truncateContext.RoundToIntegralValue(&whole, &d); err != nil {
		return reflect.Value{}, err
	}
	i, err := whole.Int64()
	if err != nil {
		return reflect.Value{}, fmt.Errorf("value %s is out of range for %s", d.String(), TypeName(target))
	}
	return convertNumber(reflect.ValueOf(i), target, checked)
}

func convertNumber(v reflect.Value, target reflect.Type, checked bool) (reflect.Value, error) {
	out := v.Convert(target)
	if !checked {
		return out, nil
	}
	sk, tk := v.Kind(), target.Kind()
	overflow := false
	switch {
	case isInteger(tk) && (sk == reflect.Float32 || sk == reflect.Float64):
		f := math.Trunc(v.Float())
		if isUnsigned(tk) {
			overflow = f < 0 || f > math.MaxUint64 || float64(out.Uint()) != f
		} else {
			overflow = f < math.MinInt64 || f > math.MaxInt64 || float64(out.Int()) != f
		}
	case isUnsigned(sk) && isInteger(tk) && !isUnsigned(tk):
		overflow = out.Int() < 0 || uint64(out.Int()) != v.Uint()
	case isUnsigned(sk) && isUnsigned(tk):
		overflow = out.Uint() != v.Uint()
	case isInteger(sk) && !isUnsigned(sk) && isUnsigned(tk):
		overflow = v.Int() < 0 || out.Uint() != uint64(v.Int())
	case isInteger(sk) && isInteger(tk):
		overflow = out.Int() != v.Int()
	}
	if overflow {
		return reflect.Value{}, fmt.Errorf("arithmetic operation resulted in an overflow converting %v to %s", v.Interface(), TypeName(target))
	}
	return out, nil
}
