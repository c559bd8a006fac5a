// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dynq

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/expr"
	"github.com/canonical/dynq/internal/record"
	"github.com/canonical/dynq/internal/typeinfo"
)

// ParseError is returned for every failure to parse or type an expression.
// It carries the byte offset in the text where the failure was detected.
type ParseError = expr.ParseError

// Enum is implemented by named integer types whose members can be named in
// expressions, for example Colour.Red or "Red" compared with a Colour.
type Enum = typeinfo.Enum

// DynamicProperty is one field of a record type made by [CreateClass].
type DynamicProperty = record.Property

func argumentError(name string) error {
	return fmt.Errorf("argument %q is nil or empty", name)
}

// Parse parses text as an expression with no implicit receiver. If
// resultType is not nil the expression is promoted to it.
func Parse(resultType reflect.Type, text string, values ...any) (ast.Node, error) {
	p, err := expr.NewParser(nil, text, values)
	if err != nil {
		return nil, err
	}
	return p.Parse(resultType)
}

// ParseLambda parses text as a lambda over a record of type elemType, which
// is in scope as "it" and whose members can be named directly.
func ParseLambda(elemType, resultType reflect.Type, text string, values ...any) (*ast.Lambda, error) {
	return expr.ParseLambda([]*ast.Parameter{ast.NewParameter("", elemType)}, resultType, text, values...)
}

// ParseOrdering parses a comma separated list of sort keys over a record of
// type elemType. Every key may be followed by asc, ascending, desc or
// descending.
func ParseOrdering(elemType reflect.Type, text string, values ...any) ([]ast.Ordering, error) {
	return expr.ParseOrdering(ast.NewParameter("", elemType), text, values...)
}

// Where filters seq by a boolean expression over its elements. The values
// are in scope as @0, @1, ...; a trailing map[string]any supplies named
// values.
//
// Example:
//
//	seq, err = dynq.Where(seq, "Age > @0 && Category.Name == @1", 18, "Books")
func Where(seq Queryable, predicate string, values ...any) (Queryable, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	if predicate == "" {
		return nil, argumentError("predicate")
	}
	l, err := ParseLambda(seq.ElementType(), typeinfo.Bool, predicate, values...)
	if err != nil {
		return nil, fmt.Errorf("cannot parse predicate: %w", err)
	}
	return seq.AttachFilter(l)
}

// OrderBy sorts seq by one or more keys, for example "Name desc, Age". The
// first key is the primary sort and each following key breaks the ties left
// by the keys before it.
func OrderBy(seq Queryable, ordering string, values ...any) (Queryable, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	if ordering == "" {
		return nil, argumentError("ordering")
	}
	it := ast.NewParameter("", seq.ElementType())
	orderings, err := expr.ParseOrdering(it, ordering, values...)
	if err != nil {
		return nil, fmt.Errorf("cannot parse ordering: %w", err)
	}
	for i, o := range orderings {
		key := &ast.Lambda{Params: []*ast.Parameter{it}, Body: o.Selector}
		seq, err = seq.AttachSort(key, o.Ascending, i == 0)
		if err != nil {
			return nil, err
		}
	}
	return seq, nil
}

// Select maps every element of seq through an expression, typically a
// projection such as "new(Name, Age * 2 as Double)".
func Select(seq Queryable, selector string, values ...any) (Queryable, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	if selector == "" {
		return nil, argumentError("selector")
	}
	l, err := ParseLambda(seq.ElementType(), nil, selector, values...)
	if err != nil {
		return nil, fmt.Errorf("cannot parse selector: %w", err)
	}
	return seq.AttachProject(l)
}

// GroupBy groups the elements of seq by keySelector and maps the members of
// each group through elementSelector. Both expressions share the values.
func GroupBy(seq Queryable, keySelector, elementSelector string, values ...any) (Queryable, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	if keySelector == "" {
		return nil, argumentError("keySelector")
	}
	if elementSelector == "" {
		return nil, argumentError("elementSelector")
	}
	key, err := ParseLambda(seq.ElementType(), nil, keySelector, values...)
	if err != nil {
		return nil, fmt.Errorf("cannot parse key selector: %w", err)
	}
	elem, err := ParseLambda(seq.ElementType(), nil, elementSelector, values...)
	if err != nil {
		return nil, fmt.Errorf("cannot parse element selector: %w", err)
	}
	return seq.AttachGroup(key, elem)
}

func Skip(seq Queryable, count int) (Queryable, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	return seq.AttachSkip(count)
}

func Take(seq Queryable, count int) (Queryable, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	return seq.AttachTake(count)
}

// AppendWhereClause filters seq by every non-empty clause in turn.
func AppendWhereClause(seq Queryable, clauses []string) (Queryable, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	var err error
	for _, clause := range clauses {
		if clause == "" {
			continue
		}
		if seq, err = Where(seq, clause); err != nil {
			return nil, err
		}
	}
	return seq, nil
}

// AppendSort orders seq by sort, descending if dir is "desc" in any case. An
// empty sort leaves seq unchanged.
func AppendSort(seq Queryable, sort, dir string) (Queryable, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	if sort == "" {
		return seq, nil
	}
	if strings.EqualFold(dir, "desc") {
		sort += " desc"
	}
	return OrderBy(seq, sort)
}

// AppendPageSort orders seq as [AppendSort] does, then skips start elements
// and takes limit elements. Absent or non-positive start and limit are
// ignored.
func AppendPageSort(seq Queryable, start, limit *int, sort, dir string) (Queryable, error) {
	seq, err := AppendSort(seq, sort, dir)
	if err != nil {
		return nil, err
	}
	if start != nil && *start > 0 {
		if seq, err = Skip(seq, *start); err != nil {
			return nil, err
		}
	}
	if limit != nil && *limit > 0 {
		if seq, err = Take(seq, *limit); err != nil {
			return nil, err
		}
	}
	return seq, nil
}

// BuildExpression returns a predicate that is true when identifier equals
// any of the values. Nil values match a null identifier.
func BuildExpression(elemType reflect.Type, identifier string, values ...any) (*ast.Lambda, error) {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteString(" || ")
		}
		sb.WriteString(identifier)
		if v == nil {
			sb.WriteString(" == null")
		} else {
			sb.WriteString(" == @" + strconv.Itoa(i))
		}
	}
	return ParseLambda(elemType, typeinfo.Bool, sb.String(), values...)
}

// CreateClass returns the record type with the given properties. Equal
// property lists always give the same type.
func CreateClass(props ...DynamicProperty) (reflect.Type, error) {
	layout, err := record.GetOrCreate(record.Signature(props))
	if err != nil {
		return nil, err
	}
	return layout.Type, nil
}

// Count executes seq and returns the number of elements.
func Count(seq Queryable) (int, error) {
	if seq == nil {
		return 0, argumentError("source")
	}
	exec, ok := seq.(Executor)
	if !ok {
		return 0, fmt.Errorf("sequence of %s cannot be executed", typeinfo.TypeName(seq.ElementType()))
	}
	v, err := exec.Execute()
	if err != nil {
		return 0, err
	}
	return v.Len(), nil
}

// Any executes seq and reports whether it has any elements.
func Any(seq Queryable) (bool, error) {
	n, err := Count(seq)
	return n > 0, err
}

// ToSlice executes seq into a []T. T must be the element type of seq.
func ToSlice[T any](seq Queryable) ([]T, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	exec, ok := seq.(Executor)
	if !ok {
		return nil, fmt.Errorf("sequence of %s cannot be executed", typeinfo.TypeName(seq.ElementType()))
	}
	v, err := exec.Execute()
	if err != nil {
		return nil, err
	}
	out, ok := v.Interface().([]T)
	if !ok {
		return nil, fmt.Errorf("sequence of %s cannot be read into %s", typeinfo.TypeName(seq.ElementType()), reflect.TypeFor[[]T]())
	}
	return out, nil
}

// Cached hands settings to seq if it can cache its results. Other sequences
// are returned unchanged.
func Cached(seq Queryable, settings any) (Queryable, error) {
	if seq == nil {
		return nil, argumentError("source")
	}
	if ca, ok := seq.(CacheAware); ok {
		return ca.WithCache(settings)
	}
	return seq, nil
}
