// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package record synthesizes struct types for the projections and groupings
// of dynamic queries. Types are cached by signature so that projecting the
// same properties twice yields values of the same type.
package record

import (
	"fmt"
	"go/token"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/canonical/dynq/internal/typeinfo"
)

// Property is a named, typed field of a synthesized record.
type Property struct {
	Name string
	Type reflect.Type
}

// Signature is the ordered list of properties identifying a record type.
type Signature []Property

// key identifies the signature within the process. Types are told apart by
// identity, not by name.
func (s Signature) key() string {
	var sb strings.Builder
	for _, p := range s {
		fmt.Fprintf(&sb, "%s\x00%p\x00", p.Name, p.Type)
	}
	return sb.String()
}

func (s Signature) String() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = p.Name + " " + typeinfo.TypeName(p.Type)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// validate checks the property names are present and distinct.
func (s Signature) validate() error {
	seen := make(map[string]string, len(s))
	for _, p := range s {
		if p.Name == "" {
			return fmt.Errorf("empty property name")
		}
		if p.Type == nil {
			return fmt.Errorf("property %q has no type", p.Name)
		}
		field := fieldName(p.Name)
		if other, ok := seen[typeinfo.Fold(field)]; ok {
			return fmt.Errorf("duplicate property %q conflicts with %q", p.Name, other)
		}
		seen[typeinfo.Fold(field)] = p.Name
	}
	return nil
}

// fieldName returns the exported Go field name used for a property.
func fieldName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	exported := string(unicode.ToUpper(r)) + name[size:]
	if !token.IsExported(exported) || !token.IsIdentifier(exported) {
		exported = "X" + strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				return r
			}
			return '_'
		}, name)
	}
	return exported
}
