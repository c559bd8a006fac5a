// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package record

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/dynq/internal/typeinfo"
)

// Layout is a synthesized record type along with the signature it was made
// from.
type Layout struct {
	Signature Signature
	Type      reflect.Type
}

func newLayout(sig Signature) (layout *Layout, err error) {
	fields := make([]reflect.StructField, len(sig))
	for i, p := range sig {
		fields[i] = reflect.StructField{
			Name: fieldName(p.Name),
			Type: p.Type,
			Tag:  reflect.StructTag(fmt.Sprintf(`dynq:%q json:%q yaml:%q`, p.Name, p.Name, p.Name)),
		}
	}
	defer func() {
		if r := recover(); r != nil {
			layout, err = nil, fmt.Errorf("cannot create record type %s: %v", sig, r)
		}
	}()
	own := make(Signature, len(sig))
	copy(own, sig)
	return &Layout{Signature: own, Type: reflect.StructOf(fields)}, nil
}

// New returns a record holding the given values, one per property.
func (l *Layout) New(values ...reflect.Value) (reflect.Value, error) {
	if len(values) != len(l.Signature) {
		return reflect.Value{}, fmt.Errorf("record %s needs %d values, got %d", l.Signature, len(l.Signature), len(values))
	}
	v := reflect.New(l.Type).Elem()
	for i, value := range values {
		converted, err := typeinfo.ConvertValue(value, l.Signature[i].Type, false)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("property %q: %w", l.Signature[i].Name, err)
		}
		v.Field(i).Set(converted)
	}
	return v, nil
}

// Field returns the value of the i-th property of the record v.
func (l *Layout) Field(v reflect.Value, i int) reflect.Value {
	return v.Field(i)
}

// Equal reports whether two records of this layout hold equal values.
func (l *Layout) Equal(a, b reflect.Value) bool {
	for i := range l.Signature {
		if !typeinfo.ValuesEqual(a.Field(i), b.Field(i)) {
			return false
		}
	}
	return true
}

// Hash combines the hashes of the record's values.
func (l *Layout) Hash(v reflect.Value) uint64 {
	var h uint64
	for i := range l.Signature {
		h ^= typeinfo.HashValue(v.Field(i))
	}
	return h
}

// Format renders the record as "{Name=value, ...}".
func (l *Layout) Format(v reflect.Value) string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, p := range l.Signature {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name)
		sb.WriteString("=")
		sb.WriteString(typeinfo.FormatValue(v.Field(i)))
	}
	sb.WriteString("}")
	return sb.String()
}
