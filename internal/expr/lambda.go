// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"

	"github.com/canonical/dynq/ast"
)

// ParseLambda parses text as the body of a lambda over params. If
// resultType is not nil the body is promoted to it.
func ParseLambda(params []*ast.Parameter, resultType reflect.Type, text string, values ...any) (*ast.Lambda, error) {
	p, err := NewParser(params, text, values)
	if err != nil {
		return nil, err
	}
	body, err := p.Parse(resultType)
	if err != nil {
		return nil, err
	}
	return &ast.Lambda{Params: params, Body: body}, nil
}

// ParseOrdering parses an ordering list over the element parameter it.
func ParseOrdering(it *ast.Parameter, text string, values ...any) ([]ast.Ordering, error) {
	p, err := NewParser([]*ast.Parameter{it}, text, values)
	if err != nil {
		return nil, err
	}
	return p.ParseOrdering()
}
