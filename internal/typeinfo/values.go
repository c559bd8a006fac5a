// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// Indirect strips interfaces from v. The zero Value is returned for nil
// interfaces.
func Indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// IsNull reports whether v holds no value.
func IsNull(v reflect.Value) bool {
	v = Indirect(v)
	return !v.IsValid() || (IsNilable(v.Type()) && v.IsNil())
}

// ValuesEqual reports whether a and b are equal. Nullable values are equal
// when both are null or both hold equal values. Other pointers, maps and
// slices are compared by identity.
func ValuesEqual(a, b reflect.Value) bool {
	a, b = Indirect(a), Indirect(b)
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if a.Type() != b.Type() {
		return false
	}
	t := a.Type()
	if IsNullable(t) {
		return ValuesEqual(a.Elem(), b.Elem())
	}
	switch t {
	case Time:
		return a.Interface().(time.Time).Equal(b.Interface().(time.Time))
	case Decimal:
		da, db := a.Interface().(apd.Decimal), b.Interface().(apd.Decimal)
		return da.Cmp(&db) == 0
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Map, reflect.Func:
		return a.Pointer() == b.Pointer() && a.Len() == b.Len()
	case reflect.Struct:
		if allExported(t) {
			for i := 0; i < t.NumField(); i++ {
				if !ValuesEqual(a.Field(i), b.Field(i)) {
					return false
				}
			}
			return true
		}
	}
	if a.Comparable() {
		return a.Equal(b)
	}
	if !a.CanInterface() || !b.CanInterface() {
		return false
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

func allExported(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			return false
		}
	}
	return true
}

// Compare orders a and b. Null sorts before any other value. Values of
// different or unordered types are reported as an error.
func Compare(a, b reflect.Value) (int, error) {
	a, b = Indirect(a), Indirect(b)
	if IsNull(a) || IsNull(b) {
		switch {
		case IsNull(a) && IsNull(b):
			return 0, nil
		case IsNull(a):
			return -1, nil
		}
		return 1, nil
	}
	if IsNullable(a.Type()) {
		a = a.Elem()
	}
	if IsNullable(b.Type()) {
		b = b.Elem()
	}
	if a.Type() != b.Type() {
		return 0, fmt.Errorf("cannot compare %s with %s", TypeName(a.Type()), TypeName(b.Type()))
	}
	switch a.Type() {
	case Time:
		return a.Interface().(time.Time).Compare(b.Interface().(time.Time)), nil
	case Decimal:
		da, db := a.Interface().(apd.Decimal), b.Interface().(apd.Decimal)
		return da.Cmp(&db), nil
	case UUID:
		ua, ub := a.Interface().(uuid.UUID), b.Interface().(uuid.UUID)
		return strings.Compare(string(ua[:]), string(ub[:])), nil
	}
	k := a.Kind()
	switch {
	case isUnsigned(k):
		return cmp3(a.Uint() < b.Uint(), a.Uint() > b.Uint()), nil
	case isInteger(k):
		return cmp3(a.Int() < b.Int(), a.Int() > b.Int()), nil
	case k == reflect.Float32 || k == reflect.Float64:
		return cmp3(a.Float() < b.Float(), a.Float() > b.Float()), nil
	case k == reflect.String:
		return strings.Compare(a.String(), b.String()), nil
	case k == reflect.Bool:
		return cmp3(!a.Bool() && b.Bool(), a.Bool() && !b.Bool()), nil
	case k == reflect.Struct && allExported(a.Type()):
		for i := 0; i < a.NumField(); i++ {
			c, err := Compare(a.Field(i), b.Field(i))
			if err != nil || c != 0 {
				return c, err
			}
		}
		return 0, nil
	}
	return 0, fmt.Errorf("values of type %s are not ordered", TypeName(a.Type()))
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// FormatValue renders v the way string concatenation and ToString do. Null
// renders as the empty string.
func FormatValue(v reflect.Value) string {
	v = Indirect(v)
	if IsNull(v) {
		return ""
	}
	if IsNullable(v.Type()) {
		v = v.Elem()
	}
	switch x := v.Interface().(type) {
	case apd.Decimal:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v.Interface())
}

// HashValue returns a hash of v consistent with ValuesEqual.
func HashValue(v reflect.Value) uint64 {
	v = Indirect(v)
	if IsNull(v) {
		return 0
	}
	t := v.Type()
	if IsNullable(t) {
		return HashValue(v.Elem())
	}
	var buf [8]byte
	switch t {
	case Time:
		binary.LittleEndian.PutUint64(buf[:], uint64(v.Interface().(time.Time).UnixNano()))
		return xxh3.Hash(buf[:])
	case Decimal:
		d := v.Interface().(apd.Decimal)
		var reduced apd.Decimal
		reduced.Reduce(&d)
		return xxh3.HashString(reduced.String())
	}
	switch k := t.Kind(); {
	case k == reflect.String:
		return xxh3.HashString(v.String())
	case isUnsigned(k):
		binary.LittleEndian.PutUint64(buf[:], v.Uint())
		return xxh3.Hash(buf[:])
	case isInteger(k):
		binary.LittleEndian.PutUint64(buf[:], uint64(v.Int()))
		return xxh3.Hash(buf[:])
	case k == reflect.Float32 || k == reflect.Float64:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Float()))
		return xxh3.Hash(buf[:])
	case k == reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 2
	case k == reflect.Struct:
		var h uint64
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).IsExported() {
				h ^= HashValue(v.Field(i))
			}
		}
		return h
	case k == reflect.Array:
		var h uint64
		for i := 0; i < v.Len(); i++ {
			h = h*31 ^ HashValue(v.Index(i))
		}
		return h
	case k == reflect.Pointer || k == reflect.Slice || k == reflect.Map || k == reflect.Func || k == reflect.Chan:
		binary.LittleEndian.PutUint64(buf[:], uint64(v.Pointer()))
		return xxh3.Hash(buf[:])
	}
	return xxh3.HashString(fmt.Sprint(v.Interface()))
}
