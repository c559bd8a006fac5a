// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"
	"sync"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/typeinfo"
)

// Operator signature catalogs. Each entry is a pseudo method whose parameter
// types are the operand types the operator accepts. Overload resolution over
// a catalog picks the types both operands are promoted to.
type signatureCatalogs struct {
	logical, arithmetic, relational, equality []*ast.Method
	add, subtract, negation, not              []*ast.Method
	aggregates                                []*ast.Method
}

var catalogsOnce sync.Once
var catalogs *signatureCatalogs

func signatures() *signatureCatalogs {
	catalogsOnce.Do(buildCatalogs)
	return catalogs
}

var arithmeticTypes = []reflect.Type{
	typeinfo.Int32, typeinfo.Uint32, typeinfo.Int64, typeinfo.Uint64,
	typeinfo.Int, typeinfo.Uint, typeinfo.Float32, typeinfo.Float64,
	typeinfo.Decimal,
}

// withNullable appends the nullable form of every type to the list.
func withNullable(types ...reflect.Type) []reflect.Type {
	all := append([]reflect.Type{}, types...)
	for _, t := range types {
		if n, ok := typeinfo.Nullable(t); ok {
			all = append(all, n)
		}
	}
	return all
}

func binarySigs(types ...reflect.Type) []*ast.Method {
	sigs := make([]*ast.Method, len(types))
	for i, t := range types {
		sigs[i] = &ast.Method{Name: "F", Params: []reflect.Type{t, t}}
	}
	return sigs
}

func pairSigs(pairs ...[2]reflect.Type) []*ast.Method {
	var sigs []*ast.Method
	for _, p := range pairs {
		sigs = append(sigs, &ast.Method{Name: "F", Params: []reflect.Type{p[0], p[1]}})
		n0, _ := typeinfo.Nullable(p[0])
		n1, _ := typeinfo.Nullable(p[1])
		sigs = append(sigs, &ast.Method{Name: "F", Params: []reflect.Type{n0, n1}})
	}
	return sigs
}

func unarySigs(types ...reflect.Type) []*ast.Method {
	sigs := make([]*ast.Method, len(types))
	for i, t := range types {
		sigs[i] = &ast.Method{Name: "F", Params: []reflect.Type{t}}
	}
	return sigs
}

func buildCatalogs() {
	c := &signatureCatalogs{}
	c.logical = binarySigs(withNullable(typeinfo.Bool)...)
	c.arithmetic = binarySigs(withNullable(arithmeticTypes...)...)
	c.relational = append(binarySigs(withNullable(arithmeticTypes...)...),
		binarySigs(typeinfo.String)...)
	c.relational = append(c.relational,
		binarySigs(withNullable(typeinfo.Time, typeinfo.Duration)...)...)
	c.equality = append(append([]*ast.Method{}, c.relational...),
		binarySigs(withNullable(typeinfo.Bool, typeinfo.UUID)...)...)
	c.add = append(append([]*ast.Method{}, c.arithmetic...),
		pairSigs(
			[2]reflect.Type{typeinfo.Time, typeinfo.Duration},
			[2]reflect.Type{typeinfo.Duration, typeinfo.Duration},
		)...)
	c.subtract = append(append([]*ast.Method{}, c.add...),
		pairSigs([2]reflect.Type{typeinfo.Time, typeinfo.Time})...)
	c.negation = unarySigs(withNullable(
		typeinfo.Int32, typeinfo.Int64, typeinfo.Int,
		typeinfo.Float32, typeinfo.Float64, typeinfo.Decimal)...)
	c.not = unarySigs(withNullable(typeinfo.Bool)...)
	c.aggregates = aggregateSigs()
	catalogs = c
}

// aggregateSigs is the catalog of sequence operations callable on
// collection valued members. Parameters are the selector result types.
func aggregateSigs() []*ast.Method {
	var sigs []*ast.Method
	add := func(name string, params ...reflect.Type) {
		sigs = append(sigs, &ast.Method{Name: name, Params: params})
	}
	add("Where", typeinfo.Bool)
	add("Any")
	add("Any", typeinfo.Bool)
	add("All", typeinfo.Bool)
	add("Count")
	add("Count", typeinfo.Bool)
	add("Min", typeinfo.Any)
	add("Max", typeinfo.Any)
	for _, t := range withNullable(
		typeinfo.Int32, typeinfo.Int64, typeinfo.Int,
		typeinfo.Float32, typeinfo.Float64, typeinfo.Decimal) {
		add("Sum", t)
		add("Average", t)
	}
	return sigs
}

// isAggregate reports whether name is a sequence operation when called on a
// collection.
func isAggregate(name string) bool {
	folded := typeinfo.Fold(name)
	for _, m := range signatures().aggregates {
		if typeinfo.Fold(m.Name) == folded {
			return true
		}
	}
	return false
}

// aggregateResult returns the result type of a sequence operation given its
// chosen signature, its promoted arguments and the element type.
func aggregateResult(sig *ast.Method, args []ast.Node, elem reflect.Type) reflect.Type {
	switch sig.Name {
	case "Where":
		return reflect.SliceOf(elem)
	case "Any", "All":
		return typeinfo.Bool
	case "Count":
		return typeinfo.Int
	case "Min", "Max":
		return args[0].Type()
	case "Sum":
		return sig.Params[0]
	}
	// Average of integers is a float64, otherwise the operand type.
	t := sig.Params[0]
	base := typeinfo.NonNullable(t)
	if typeinfo.IsIntegral(base) {
		if typeinfo.IsNullable(t) {
			return reflect.PointerTo(typeinfo.Float64)
		}
		return typeinfo.Float64
	}
	return t
}
