// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ast

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/canonical/dynq/internal/typeinfo"
)

func (n *Constant) String() string {
	switch v := n.Value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case apd.Decimal:
		return v.String() + "m"
	case time.Time:
		return v.Format(time.RFC3339)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32) + "f"
	}
	v := reflect.ValueOf(n.Value)
	if typeinfo.IsNull(v) {
		return "null"
	}
	if typeinfo.IsNullable(v.Type()) {
		return (&Constant{Value: v.Elem().Interface(), Typ: v.Type().Elem()}).String()
	}
	return fmt.Sprint(n.Value)
}

func (n *Parameter) String() string {
	if n.Name == "" {
		return "it"
	}
	return n.Name
}

func (n *Member) String() string {
	return n.Receiver.String() + "." + n.Name
}

func (n *Call) String() string {
	var sb strings.Builder
	switch {
	case n.Kind == Construct:
		sb.WriteString("new ")
		sb.WriteString(typeinfo.TypeName(n.Method.Owner))
	case n.Receiver != nil:
		sb.WriteString(n.Receiver.String())
		sb.WriteString(".")
		sb.WriteString(n.Method.Name)
	default:
		sb.WriteString(typeinfo.TypeName(n.Method.Owner))
		sb.WriteString(".")
		sb.WriteString(n.Method.Name)
	}
	if n.Kind != PropertyGet {
		writeList(&sb, n.Args)
	}
	return sb.String()
}

func (n *Index) String() string {
	return n.Receiver.String() + "[" + n.Index.String() + "]"
}

func (n *Convert) String() string {
	s := typeinfo.TypeName(n.Typ) + "(" + n.Operand.String() + ")"
	if n.Checked {
		return "checked " + s
	}
	return s
}

func (n *Unary) String() string {
	if n.Op == Not {
		return "!" + n.Operand.String()
	}
	return "-" + n.Operand.String()
}

func (n *Binary) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

func (n *Conditional) String() string {
	return "iif(" + n.Test.String() + ", " + n.IfTrue.String() + ", " + n.IfFalse.String() + ")"
}

func (n *Invoke) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(n.Lambda.String())
	sb.WriteString(")")
	writeList(&sb, n.Args)
	return sb.String()
}

func (n *MemberInit) String() string {
	var sb strings.Builder
	sb.WriteString("new(")
	for i, b := range n.Bindings {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.Value.String())
		sb.WriteString(" as ")
		sb.WriteString(b.Name)
	}
	sb.WriteString(")")
	return sb.String()
}

func (n *Aggregate) String() string {
	s := n.Source.String() + "." + n.Method + "("
	if n.Selector != nil {
		s += n.Selector.Body.String()
	}
	return s + ")"
}

func (n *Lambda) String() string {
	if len(n.Params) == 1 {
		return n.Params[0].String() + " => " + n.Body.String()
	}
	names := make([]string, len(n.Params))
	for i, p := range n.Params {
		names[i] = p.String()
	}
	return "(" + strings.Join(names, ", ") + ") => " + n.Body.String()
}

func (o Ordering) String() string {
	if o.Ascending {
		return o.Selector.String() + " ascending"
	}
	return o.Selector.String() + " descending"
}

func writeList(sb *strings.Builder, nodes []Node) {
	sb.WriteString("(")
	for i, arg := range nodes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(arg.String())
	}
	sb.WriteString(")")
}
