// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package ast defines the typed operation trees produced by the dynq
// expression parser. Every node knows its Go result type. Sequence
// implementations switch on the node types to translate or evaluate them.
package ast

import (
	"reflect"
)

// Node is a typed operation tree node.
type Node interface {
	// Type returns the Go type of the value the node produces.
	Type() reflect.Type
	// String renders the node in a compact, stable text form.
	String() string

	node()
}

// Constant is a literal or an externally supplied value.
type Constant struct {
	Value any
	Typ   reflect.Type
}

// Parameter is a lambda parameter. The implicit receiver of an expression
// is a parameter with an empty name.
type Parameter struct {
	Name string
	Typ  reflect.Type
}

// NewParameter returns a parameter of the given type. An empty name makes it
// the implicit receiver.
func NewParameter(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, Typ: t}
}

// Member reads a struct field. A nil Receiver is never produced: static
// members of predefined types are Calls.
type Member struct {
	Receiver Node
	// Name is the name the field is known by in expressions.
	Name string
	// Index is the field index sequence, for use with FieldByIndex. The
	// receiver is dereferenced first when it is a pointer.
	Index []int
	Typ   reflect.Type
}

// Method describes a callable member: a host function on a predefined type,
// a method declared on a Go type, or an entry of a signature catalog.
type Method struct {
	Owner  reflect.Type
	Name   string
	Params []reflect.Type
	// Result is nil for methods that do not return a value.
	Result reflect.Type
	Static bool
	// Func is the Go function implementing the method. For instance methods
	// the receiver is its first argument. When Fallible is true the function
	// returns an error as its second result.
	Func     reflect.Value
	Fallible bool
}

// CallKind distinguishes the ways a Method is invoked.
type CallKind int

const (
	MethodCall CallKind = iota
	PropertyGet
	Construct
)

// Call invokes a Method. Receiver is nil for static methods, static
// properties and constructors.
type Call struct {
	Kind     CallKind
	Receiver Node
	Method   *Method
	Args     []Node
}

// Index reads an element of an array, slice or map.
type Index struct {
	Receiver Node
	Index    Node
	Typ      reflect.Type
}

// Convert converts its operand to Typ. Checked conversions fail instead of
// truncating.
type Convert struct {
	Operand Node
	Typ     reflect.Type
	Checked bool
}

// UnaryOp is a unary operator.
type UnaryOp int

const (
	Negate UnaryOp = iota
	Not
)

// Unary applies a unary operator.
type Unary struct {
	Op      UnaryOp
	Operand Node
}

// BinaryOp is a binary operator.
type BinaryOp int

const (
	Add BinaryOp = iota
	Subtract
	Multiply
	Divide
	Modulo
	Equal
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
	AndAlso
	OrElse
)

var binaryOpNames = [...]string{
	Add:          "+",
	Subtract:     "-",
	Multiply:     "*",
	Divide:       "/",
	Modulo:       "%",
	Equal:        "==",
	NotEqual:     "!=",
	Less:         "<",
	LessEqual:    "<=",
	Greater:      ">",
	GreaterEqual: ">=",
	AndAlso:      "&&",
	OrElse:       "||",
}

func (op BinaryOp) String() string {
	return binaryOpNames[op]
}

// IsComparison reports whether op produces a boolean from two operands of
// the same type.
func (op BinaryOp) IsComparison() bool {
	return op >= Equal && op <= GreaterEqual
}

// Binary applies a binary operator. Both operands have been promoted to a
// common type, except for date and time arithmetic.
type Binary struct {
	Op          BinaryOp
	Left, Right Node
	Typ         reflect.Type
}

// Conditional selects between two values of the same type.
type Conditional struct {
	Test, IfTrue, IfFalse Node
}

// Invoke applies a lambda to arguments.
type Invoke struct {
	Lambda *Lambda
	Args   []Node
}

// Binding sets one field of a synthesized record.
type Binding struct {
	Name string
	// Index is the field index in the record type.
	Index int
	Value Node
}

// MemberInit constructs a record of a synthesized type.
type MemberInit struct {
	Typ      reflect.Type
	Bindings []Binding
}

// Aggregate applies a sequence operation to a collection valued member.
// Selector is nil for the argumentless forms of Any and Count.
type Aggregate struct {
	Source   Node
	Method   string
	Element  reflect.Type
	Selector *Lambda
	Typ      reflect.Type
}

// Lambda is a function of its parameters.
type Lambda struct {
	Params []*Parameter
	Body   Node
}

// Ordering is one key of a sort specification.
type Ordering struct {
	Selector  Node
	Ascending bool
}

func (n *Constant) Type() reflect.Type  { return n.Typ }
func (n *Parameter) Type() reflect.Type { return n.Typ }
func (n *Member) Type() reflect.Type    { return n.Typ }
func (n *Call) Type() reflect.Type      { return n.Method.Result }
func (n *Index) Type() reflect.Type     { return n.Typ }
func (n *Convert) Type() reflect.Type   { return n.Typ }
func (n *Unary) Type() reflect.Type     { return n.Operand.Type() }
func (n *Binary) Type() reflect.Type    { return n.Typ }
func (n *Conditional) Type() reflect.Type {
	return n.IfTrue.Type()
}
func (n *Invoke) Type() reflect.Type     { return n.Lambda.Body.Type() }
func (n *MemberInit) Type() reflect.Type { return n.Typ }
func (n *Aggregate) Type() reflect.Type  { return n.Typ }

// Type returns the function type of the lambda.
func (n *Lambda) Type() reflect.Type {
	in := make([]reflect.Type, len(n.Params))
	for i, p := range n.Params {
		in[i] = p.Typ
	}
	return reflect.FuncOf(in, []reflect.Type{n.Body.Type()}, false)
}

func (*Constant) node()    {}
func (*Parameter) node()   {}
func (*Member) node()      {}
func (*Call) node()        {}
func (*Index) node()       {}
func (*Convert) node()     {}
func (*Unary) node()       {}
func (*Binary) node()      {}
func (*Conditional) node() {}
func (*Invoke) node()      {}
func (*MemberInit) node()  {}
func (*Aggregate) node()   {}
func (*Lambda) node()      {}
