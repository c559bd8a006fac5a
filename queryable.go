// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dynq

import (
	"reflect"

	"github.com/canonical/dynq/ast"
)

// Queryable is a deferred sequence of records that operation trees can be
// attached to. Every Attach method returns a new sequence and leaves the
// receiver unchanged.
type Queryable interface {
	// ElementType returns the type of the records in the sequence.
	ElementType() reflect.Type

	// AttachFilter keeps the records for which pred, a boolean lambda over
	// the element type, is true.
	AttachFilter(pred *ast.Lambda) (Queryable, error)

	// AttachSort orders the sequence by key. A primary sort replaces any
	// previous ordering; a secondary sort breaks ties left by the sorts
	// attached before it.
	AttachSort(key *ast.Lambda, ascending, primary bool) (Queryable, error)

	// AttachProject maps every record through sel. The element type of the
	// result is the result type of sel.
	AttachProject(sel *ast.Lambda) (Queryable, error)

	// AttachGroup groups the records by key and maps the members of each
	// group through elem.
	AttachGroup(key, elem *ast.Lambda) (Queryable, error)

	AttachSkip(n int) (Queryable, error)
	AttachTake(n int) (Queryable, error)
}

// Executor is implemented by sequences that can be materialized. Execute
// returns a slice of the element type.
type Executor interface {
	Execute() (reflect.Value, error)
}

// CacheAware is implemented by sequences that can cache their results. The
// settings are passed through without inspection.
type CacheAware interface {
	WithCache(settings any) (Queryable, error)
}
