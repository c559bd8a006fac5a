// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Field represents a single field from a struct type.
type Field struct {
	Type reflect.Type

	// Name is the name the field is known by in expressions. It is the
	// value of the "dynq" tag when there is one and the Go name otherwise.
	Name string

	// GoName is the name of the struct field.
	GoName string

	// Index is the index sequence of the field, for use with FieldByIndex.
	Index []int
}

// Info represents reflected information about a struct type.
type Info struct {
	Type reflect.Type

	// fields maps case folded names to fields.
	fields map[string]Field
	order  []Field
}

// Field returns the field known by the given name, ignoring case.
func (info *Info) Field(name string) (Field, bool) {
	f, ok := info.fields[Fold(name)]
	return f, ok
}

// Fields returns the fields of the struct in declaration order.
func (info *Info) Fields() []Field {
	return info.order
}

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo returns the Info of a struct type, or of the struct type a
// pointer points to, generating and caching as required.
func GetTypeInfo(t reflect.Type) (*Info, error) {
	if t == nil {
		return &Info{}, fmt.Errorf("cannot reflect nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return &Info{}, err
	}

	cacheMutex.Lock()
	cache[t] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces reflection information for the struct type t.
func generate(t reflect.Type) (*Info, error) {
	// Reflection information is only generated for structs.
	if t.Kind() != reflect.Struct {
		return &Info{}, fmt.Errorf("can only reflect struct type")
	}

	info := Info{
		Type:   t,
		fields: make(map[string]Field),
	}
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		f := Field{
			Type:   sf.Type,
			Name:   fieldName(sf),
			GoName: sf.Name,
			Index:  sf.Index,
		}
		key := Fold(f.Name)
		// Promoted fields lose to shallower ones.
		if other, ok := info.fields[key]; ok && len(other.Index) <= len(f.Index) {
			continue
		}
		info.fields[key] = f
	}
	for _, sf := range reflect.VisibleFields(t) {
		if f, ok := info.fields[Fold(fieldName(sf))]; ok && f.GoName == sf.Name && len(f.Index) == len(sf.Index) {
			info.order = append(info.order, f)
		}
	}
	return &info, nil
}

func fieldName(sf reflect.StructField) string {
	if tag, ok := sf.Tag.Lookup("dynq"); ok {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return sf.Name
}

// Methods returns the exported methods in the method set of t whose name
// matches name, ignoring case.
func Methods(t reflect.Type, name string) []reflect.Method {
	folded := Fold(name)
	var ms []reflect.Method
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.Func.IsValid() && Fold(m.Name) == folded {
			ms = append(ms, m)
		}
	}
	return ms
}

// Fold returns the case folded form of s used for all case insensitive name
// matching.
func Fold(s string) string {
	return cases.Fold().String(s)
}
