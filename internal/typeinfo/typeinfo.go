// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
)

// MathClass and ConvertClass stand in for the static host classes "Math" and
// "Convert". They have no values, only static methods.
type (
	MathClass    struct{}
	ConvertClass struct{}
)

// Enum is implemented by named integer types that should behave as
// enumerations in expressions. Members are matched by name, ignoring case.
type Enum interface {
	EnumMembers() map[string]int64
}

var (
	Any      = reflect.TypeOf((*any)(nil)).Elem()
	Bool     = reflect.TypeOf(false)
	String   = reflect.TypeOf("")
	Int8     = reflect.TypeOf(int8(0))
	Int16    = reflect.TypeOf(int16(0))
	Int32    = reflect.TypeOf(int32(0))
	Int64    = reflect.TypeOf(int64(0))
	Int      = reflect.TypeOf(int(0))
	Uint8    = reflect.TypeOf(uint8(0))
	Uint16   = reflect.TypeOf(uint16(0))
	Uint32   = reflect.TypeOf(uint32(0))
	Uint64   = reflect.TypeOf(uint64(0))
	Uint     = reflect.TypeOf(uint(0))
	Float32  = reflect.TypeOf(float32(0))
	Float64  = reflect.TypeOf(float64(0))
	Decimal  = reflect.TypeOf(apd.Decimal{})
	Time     = reflect.TypeOf(time.Time{})
	Duration = reflect.TypeOf(time.Duration(0))
	UUID     = reflect.TypeOf(uuid.UUID{})
	Math     = reflect.TypeOf(MathClass{})
	Convert  = reflect.TypeOf(ConvertClass{})

	enumInterface = reflect.TypeOf((*Enum)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
)

// PredefinedType is a type that can be named in an expression.
type PredefinedType struct {
	Name string
	Type reflect.Type
}

// Predefined lists the types that may be named in expressions, in the order
// they are registered as keywords. Several names map to the same Go type.
var Predefined = []PredefinedType{
	{"Object", Any},
	{"Boolean", Bool},
	{"Char", String},
	{"String", String},
	{"SByte", Int8},
	{"Byte", Uint8},
	{"Int16", Int16},
	{"UInt16", Uint16},
	{"Int32", Int32},
	{"UInt32", Uint32},
	{"Int64", Int64},
	{"UInt64", Uint64},
	{"Single", Float32},
	{"Double", Float64},
	{"Decimal", Decimal},
	{"DateTime", Time},
	{"TimeSpan", Duration},
	{"Guid", UUID},
	{"Math", Math},
	{"Convert", Convert},
}

// Aliases are the Go spellings of the predefined types. A member of the
// implicit receiver with the same name hides them.
var Aliases = []PredefinedType{
	{"Bool", Bool},
	{"Int", Int},
	{"UInt", Uint},
	{"Int8", Int8},
	{"UInt8", Uint8},
	{"Float32", Float32},
	{"Float64", Float64},
	{"Time", Time},
	{"Duration", Duration},
	{"UUID", UUID},
}

var typeNames = map[reflect.Type]string{
	Any:      "Object",
	Bool:     "Boolean",
	String:   "String",
	Int8:     "SByte",
	Int16:    "Int16",
	Int32:    "Int32",
	Int64:    "Int64",
	Int:      "Int",
	Uint8:    "Byte",
	Uint16:   "UInt16",
	Uint32:   "UInt32",
	Uint64:   "UInt64",
	Uint:     "UInt",
	Float32:  "Single",
	Float64:  "Double",
	Decimal:  "Decimal",
	Time:     "DateTime",
	Duration: "TimeSpan",
	UUID:     "Guid",
	Math:     "Math",
	Convert:  "Convert",
}

// IsPredefined reports whether t is one of the predefined types.
func IsPredefined(t reflect.Type) bool {
	_, ok := typeNames[t]
	return ok
}

// TypeName returns the name used for t in error messages.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "null"
	}
	if name, ok := typeNames[t]; ok {
		return name
	}
	if IsNullable(t) {
		return TypeName(t.Elem()) + "?"
	}
	return t.String()
}

// IsEnum reports whether t, or the type underlying the nullable t, is an
// enumeration.
func IsEnum(t reflect.Type) bool {
	t = NonNullable(t)
	return isInteger(t.Kind()) && t.Implements(enumInterface)
}

// EnumMember returns the member of the enumeration t with the given name.
func EnumMember(t reflect.Type, name string) (reflect.Value, bool) {
	members := reflect.Zero(t).Interface().(Enum).EnumMembers()
	folded := Fold(name)
	for member, value := range members {
		if Fold(member) != folded {
			continue
		}
		v := reflect.New(t).Elem()
		if isUnsigned(t.Kind()) {
			v.SetUint(uint64(value))
		} else {
			v.SetInt(value)
		}
		return v, true
	}
	return reflect.Value{}, false
}

// IsValueType reports whether t behaves as a value in expressions. Value
// types are the numeric, boolean and predefined struct types along with their
// nullable forms. Everything else is compared by reference.
func IsValueType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		return isPlainValue(t.Elem())
	}
	return isPlainValue(t)
}

func isPlainValue(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Float32, reflect.Float64:
		return true
	}
	if isInteger(t.Kind()) {
		return true
	}
	return t == Time || t == Decimal || t == UUID
}

// IsNullable reports whether t is the nullable form of a value type.
func IsNullable(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer && isPlainValue(t.Elem())
}

// NonNullable returns the type underlying a nullable type, or t itself.
func NonNullable(t reflect.Type) reflect.Type {
	if IsNullable(t) {
		return t.Elem()
	}
	return t
}

// Nullable returns the nullable form of t. Only plain value types have one.
func Nullable(t reflect.Type) (reflect.Type, bool) {
	if !isPlainValue(t) {
		return nil, false
	}
	return reflect.PointerTo(t), true
}

// IsNilable reports whether a nil value of type t exists.
func IsNilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// SequenceElem returns the element type of t if values of t can be iterated
// by the aggregate methods.
func SequenceElem(t reflect.Type) (reflect.Type, bool) {
	if t == UUID {
		return nil, false
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem(), true
	}
	return nil, false
}

// IsAssignable reports whether a value of type source can be used where a
// value of type target is expected without conversion.
func IsAssignable(target, source reflect.Type) bool {
	return source.AssignableTo(target)
}

// IsError reports whether t is the error interface.
func IsError(t reflect.Type) bool {
	return t == errorType
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return isUnsigned(k)
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}
