// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ast

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/canonical/dynq/internal/record"
	"github.com/canonical/dynq/internal/typeinfo"
)

// Tree renders n as an indented tree, one node per line, each followed by
// the name of its type.
func Tree(n Node) string {
	var sb strings.Builder
	writeTree(&sb, n, 0)
	return sb.String()
}

// Fprint writes the tree of n to w.
func Fprint(w io.Writer, n Node) error {
	_, err := io.WriteString(w, Tree(n))
	return err
}

// TypeName returns the name of t as it appears in trees. Synthesized record
// types are shown by their properties.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "void"
	}
	if layout, ok := record.Lookup(t); ok {
		return layout.Signature.String()
	}
	if t.Kind() == reflect.Slice {
		return TypeName(t.Elem()) + "[]"
	}
	return typeinfo.TypeName(t)
}

func writeTree(sb *strings.Builder, n Node, depth int) {
	line := func(label string, t reflect.Type) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(label)
		sb.WriteString(" : ")
		sb.WriteString(TypeName(t))
		sb.WriteString("\n")
	}
	children := func(nodes ...Node) {
		for _, c := range nodes {
			writeTree(sb, c, depth+1)
		}
	}
	switch n := n.(type) {
	case *Constant:
		line("Constant "+n.String(), n.Typ)
	case *Parameter:
		line("Parameter "+n.String(), n.Typ)
	case *Member:
		line("Member "+n.Name, n.Typ)
		children(n.Receiver)
	case *Call:
		label := "Call "
		switch n.Kind {
		case PropertyGet:
			label = "Property "
		case Construct:
			label = "New "
		}
		line(label+TypeName(n.Method.Owner)+"."+n.Method.Name, n.Method.Result)
		if n.Receiver != nil {
			children(n.Receiver)
		}
		children(n.Args...)
	case *Index:
		line("Index", n.Typ)
		children(n.Receiver, n.Index)
	case *Convert:
		if n.Checked {
			line("Convert checked", n.Typ)
		} else {
			line("Convert", n.Typ)
		}
		children(n.Operand)
	case *Unary:
		if n.Op == Not {
			line("Unary !", n.Type())
		} else {
			line("Unary -", n.Type())
		}
		children(n.Operand)
	case *Binary:
		line("Binary "+n.Op.String(), n.Typ)
		children(n.Left, n.Right)
	case *Conditional:
		line("Conditional", n.Type())
		children(n.Test, n.IfTrue, n.IfFalse)
	case *Invoke:
		line("Invoke", n.Type())
		children(n.Lambda)
		children(n.Args...)
	case *MemberInit:
		line("MemberInit", n.Typ)
		for _, b := range n.Bindings {
			sb.WriteString(strings.Repeat("  ", depth+1))
			fmt.Fprintf(sb, "Binding %s\n", b.Name)
			writeTree(sb, b.Value, depth+2)
		}
	case *Aggregate:
		line("Aggregate "+n.Method, n.Typ)
		children(n.Source)
		if n.Selector != nil {
			children(n.Selector)
		}
	case *Lambda:
		params := make([]string, len(n.Params))
		for i, p := range n.Params {
			params[i] = p.String() + " " + TypeName(p.Typ)
		}
		line("Lambda("+strings.Join(params, ", ")+")", n.Body.Type())
		children(n.Body)
	default:
		line(fmt.Sprintf("%T", n), n.Type())
	}
}
