// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package dynq builds queries over sequences of Go records from expressions
given as text at run time, for example sort keys and filters chosen in a user
interface.

# Expressions

An expression is written in a small C-like language over the members of the
record type. The record is in scope as "it" and its fields can be named
directly:

	Age > 18 && Category.Name == @0
	Name.StartsWith("A") or Score == null
	iif(Age >= 18, "adult", "minor")
	new(Name, Age * 2 as Double)

Values passed alongside the text are named @0, @1, ... in order. If the last
value is a map[string]any its entries can be named by key.

Expressions are typed as they are parsed. Numeric operands are promoted to a
common type, nullable operands (pointers to value types) lift the operators
of their underlying types, and a text that does not type check fails with a
[*ParseError] holding the offset of the problem. Only the methods of the
predefined types (String, Math, Convert, DateTime, TimeSpan, Guid, ...) and
the methods declared on the record types themselves can be called.

# Sequences

The combinators [Where], [OrderBy], [Select], [GroupBy], [Skip] and [Take]
parse their expressions against the element type of a [Queryable] and attach
the result as a typed operation tree from package ast. Any Queryable can be
used; [FromSlice] provides one that evaluates the trees over a Go slice:

	seq, err := dynq.FromSlice(people)
	...
	q, err := dynq.Where(seq, "Age > @0", 18)
	...
	q, err = dynq.AppendPageSort(q, &start, &limit, "Name", "desc")
	...
	adults, err := dynq.ToSlice[Person](q)

Projections with new(...) produce records of types synthesized at run time.
Projecting the same properties twice gives the same type, see [CreateClass].
*/
package dynq
