// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import "reflect"

// Family is the numeric family of a type.
type Family int

const (
	NotNumeric Family = iota
	Floating
	Signed
	Unsigned
)

type code int

const (
	codeOther code = iota
	codeInt8
	codeUint8
	codeInt16
	codeUint16
	codeInt32
	codeUint32
	codeInt64
	codeUint64
	codeInt
	codeUint
	codeFloat32
	codeFloat64
	codeDecimal
)

// typeCode classifies t by the numeric type it behaves as. time.Duration and
// enumerations are integers underneath but are not numeric.
func typeCode(t reflect.Type) code {
	if t == Decimal {
		return codeDecimal
	}
	if t == Duration || IsEnum(t) {
		return codeOther
	}
	switch t.Kind() {
	case reflect.Int8:
		return codeInt8
	case reflect.Uint8:
		return codeUint8
	case reflect.Int16:
		return codeInt16
	case reflect.Uint16:
		return codeUint16
	case reflect.Int32:
		return codeInt32
	case reflect.Uint32:
		return codeUint32
	case reflect.Int64:
		return codeInt64
	case reflect.Uint64:
		return codeUint64
	case reflect.Int:
		return codeInt
	case reflect.Uint, reflect.Uintptr:
		return codeUint
	case reflect.Float32:
		return codeFloat32
	case reflect.Float64:
		return codeFloat64
	}
	return codeOther
}

// NumericFamily returns the family of t, looking through nullable types.
func NumericFamily(t reflect.Type) Family {
	switch typeCode(NonNullable(t)) {
	case codeFloat32, codeFloat64, codeDecimal:
		return Floating
	case codeInt8, codeInt16, codeInt32, codeInt64, codeInt:
		return Signed
	case codeUint8, codeUint16, codeUint32, codeUint64, codeUint:
		return Unsigned
	}
	return NotNumeric
}

// IsNumeric reports whether t, or the type underlying the nullable t, is
// numeric.
func IsNumeric(t reflect.Type) bool {
	return NumericFamily(t) != NotNumeric
}

// IsIntegral reports whether t is a signed or unsigned integer type.
func IsIntegral(t reflect.Type) bool {
	f := NumericFamily(t)
	return f == Signed || f == Unsigned
}

func codes(cs ...code) map[code]bool {
	m := make(map[code]bool, len(cs))
	for _, c := range cs {
		m[c] = true
	}
	return m
}

// implicit lists the numeric targets each numeric source widens to. int and
// int64 widen to each other, as do uint and uint64.
var implicit = map[code]map[code]bool{
	codeInt8:    codes(codeInt8, codeInt16, codeInt32, codeInt64, codeInt, codeFloat32, codeFloat64, codeDecimal),
	codeUint8:   codes(codeUint8, codeInt16, codeUint16, codeInt32, codeUint32, codeInt64, codeUint64, codeInt, codeUint, codeFloat32, codeFloat64, codeDecimal),
	codeInt16:   codes(codeInt16, codeInt32, codeInt64, codeInt, codeFloat32, codeFloat64, codeDecimal),
	codeUint16:  codes(codeUint16, codeInt32, codeUint32, codeInt64, codeUint64, codeInt, codeUint, codeFloat32, codeFloat64, codeDecimal),
	codeInt32:   codes(codeInt32, codeInt64, codeInt, codeFloat32, codeFloat64, codeDecimal),
	codeUint32:  codes(codeUint32, codeInt64, codeUint64, codeInt, codeUint, codeFloat32, codeFloat64, codeDecimal),
	codeInt64:   codes(codeInt64, codeInt, codeFloat32, codeFloat64, codeDecimal),
	codeInt:     codes(codeInt64, codeInt, codeFloat32, codeFloat64, codeDecimal),
	codeUint64:  codes(codeUint64, codeUint, codeFloat32, codeFloat64, codeDecimal),
	codeUint:    codes(codeUint64, codeUint, codeFloat32, codeFloat64, codeDecimal),
	codeFloat32: codes(codeFloat32, codeFloat64),
	codeFloat64: codes(codeFloat64),
	codeDecimal: codes(codeDecimal),
}

// IsCompatibleWith reports whether a value of type source converts
// implicitly to target.
func IsCompatibleWith(source, target reflect.Type) bool {
	if source == target {
		return true
	}
	if !IsValueType(target) {
		return IsAssignable(target, source)
	}
	st := NonNullable(source)
	tt := NonNullable(target)
	if st != source && tt == target {
		return false
	}
	sc, tc := typeCode(st), typeCode(tt)
	if sc == codeOther || tc == codeOther {
		return st == tt
	}
	return implicit[sc][tc]
}
