// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains code relating to Go types and their classification
in dynq expressions. As much as possible, type level reflection code is limited
to this package. It knows which Go types stand in for the predefined expression
types, which of them are numeric, nullable or enumerations, which implicit
conversions exist between them, and how to find the members of struct types.
*/
package typeinfo
