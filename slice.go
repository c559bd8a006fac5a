// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dynq

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/eval"
	"github.com/canonical/dynq/internal/record"
	"github.com/canonical/dynq/internal/typeinfo"
)

// Slice is a Queryable over the elements of a Go slice. Operations are
// recorded when attached and evaluated in order by Execute.
type Slice struct {
	source reflect.Value
	elem   reflect.Type
	stages []stage

	// cacheID is zero unless the sequence was marked with WithCache.
	cacheID  uint64
	settings CacheSettings
}

var _ interface {
	Queryable
	Executor
	CacheAware
} = (*Slice)(nil)

type stageKind int

const (
	filterStage stageKind = iota
	sortStage
	projectStage
	groupStage
	skipStage
	takeStage
)

type sortKey struct {
	key       *ast.Lambda
	ascending bool
}

type stage struct {
	kind   stageKind
	lambda *ast.Lambda
	// elem is the element selector of a group stage.
	elem   *ast.Lambda
	layout *record.Layout
	keys   []sortKey
	n      int
}

// FromSlice returns a sequence over items, which must be a slice or an
// array.
func FromSlice(items any) (*Slice, error) {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, fmt.Errorf("cannot query %T: need a slice or an array", items)
	}
	return &Slice{source: v, elem: v.Type().Elem()}, nil
}

func (s *Slice) ElementType() reflect.Type {
	return s.elem
}

// with returns a new sequence with st appended. The element type of the new
// sequence is elem.
func (s *Slice) with(st stage, elem reflect.Type) *Slice {
	stages := make([]stage, len(s.stages), len(s.stages)+1)
	copy(stages, s.stages)
	return &Slice{source: s.source, elem: elem, stages: append(stages, st)}
}

// checkLambda checks l is a function of one element of the sequence.
func (s *Slice) checkLambda(name string, l *ast.Lambda) error {
	if l == nil {
		return argumentError(name)
	}
	if len(l.Params) != 1 || l.Params[0].Typ != s.elem {
		return fmt.Errorf("%s is not a function of %s", name, typeinfo.TypeName(s.elem))
	}
	return nil
}

func (s *Slice) AttachFilter(pred *ast.Lambda) (Queryable, error) {
	if err := s.checkLambda("predicate", pred); err != nil {
		return nil, err
	}
	if typeinfo.NonNullable(pred.Body.Type()) != typeinfo.Bool {
		return nil, fmt.Errorf("predicate returns %s, not Boolean", typeinfo.TypeName(pred.Body.Type()))
	}
	return s.with(stage{kind: filterStage, lambda: pred}, s.elem), nil
}

func (s *Slice) AttachSort(key *ast.Lambda, ascending, primary bool) (Queryable, error) {
	if err := s.checkLambda("ordering", key); err != nil {
		return nil, err
	}
	if primary {
		return s.with(stage{kind: sortStage, keys: []sortKey{{key, ascending}}}, s.elem), nil
	}
	if len(s.stages) == 0 || s.stages[len(s.stages)-1].kind != sortStage {
		return nil, fmt.Errorf("secondary ordering must follow an ordering")
	}
	stages := slices.Clone(s.stages)
	last := &stages[len(stages)-1]
	last.keys = append(slices.Clip(last.keys), sortKey{key, ascending})
	return &Slice{source: s.source, elem: s.elem, stages: stages}, nil
}

func (s *Slice) AttachProject(sel *ast.Lambda) (Queryable, error) {
	if err := s.checkLambda("selector", sel); err != nil {
		return nil, err
	}
	return s.with(stage{kind: projectStage, lambda: sel}, sel.Body.Type()), nil
}

// AttachGroup groups the elements into records with the properties Key and
// Items. Groups are in order of the first appearance of their key.
func (s *Slice) AttachGroup(key, elem *ast.Lambda) (Queryable, error) {
	if err := s.checkLambda("keySelector", key); err != nil {
		return nil, err
	}
	if err := s.checkLambda("elementSelector", elem); err != nil {
		return nil, err
	}
	layout, err := record.GetOrCreate(record.Signature{
		{Name: "Key", Type: key.Body.Type()},
		{Name: "Items", Type: reflect.SliceOf(elem.Body.Type())},
	})
	if err != nil {
		return nil, err
	}
	return s.with(stage{kind: groupStage, lambda: key, elem: elem, layout: layout}, layout.Type), nil
}

func (s *Slice) AttachSkip(n int) (Queryable, error) {
	return s.with(stage{kind: skipStage, n: max(n, 0)}, s.elem), nil
}

func (s *Slice) AttachTake(n int) (Queryable, error) {
	return s.with(stage{kind: takeStage, n: max(n, 0)}, s.elem), nil
}

// Execute evaluates the attached operations and returns a slice of the
// element type.
func (s *Slice) Execute() (reflect.Value, error) {
	if s.cacheID != 0 {
		return results.get(s)
	}
	return s.run()
}

func (s *Slice) run() (reflect.Value, error) {
	items := make([]reflect.Value, s.source.Len())
	for i := range items {
		items[i] = s.source.Index(i)
	}
	var err error
	for _, st := range s.stages {
		items, err = st.apply(items)
		if err != nil {
			return reflect.Value{}, err
		}
	}
	out := reflect.MakeSlice(reflect.SliceOf(s.elem), len(items), len(items))
	for i, item := range items {
		if err := assign(out.Index(i), item); err != nil {
			return reflect.Value{}, err
		}
	}
	return out, nil
}

// assign sets dst to v, converting v if it is not assignable.
func assign(dst, v reflect.Value) error {
	if !v.IsValid() {
		dst.SetZero()
		return nil
	}
	if !v.Type().AssignableTo(dst.Type()) {
		var err error
		if v, err = typeinfo.ConvertValue(v, dst.Type(), false); err != nil {
			return err
		}
	}
	dst.Set(v)
	return nil
}

func (st stage) apply(items []reflect.Value) ([]reflect.Value, error) {
	switch st.kind {
	case filterStage:
		kept := items[:0:0]
		for _, item := range items {
			ok, err := eval.Predicate(st.lambda, item)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, item)
			}
		}
		return kept, nil
	case sortStage:
		return sortItems(items, st.keys)
	case projectStage:
		out := make([]reflect.Value, len(items))
		for i, item := range items {
			v, err := eval.Lambda(st.lambda, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case groupStage:
		return groupItems(items, st)
	case skipStage:
		return items[min(st.n, len(items)):], nil
	case takeStage:
		return items[:min(st.n, len(items))], nil
	}
	return nil, fmt.Errorf("unknown stage %d", st.kind)
}

// sortItems sorts items by keys. The sort is stable, so items with equal keys
// keep their order.
func sortItems(items []reflect.Value, keys []sortKey) ([]reflect.Value, error) {
	type row struct {
		item reflect.Value
		keys []reflect.Value
	}
	rows := make([]row, len(items))
	for i, item := range items {
		rows[i] = row{item: item, keys: make([]reflect.Value, len(keys))}
		for k, key := range keys {
			v, err := eval.Lambda(key.key, item)
			if err != nil {
				return nil, err
			}
			rows[i].keys[k] = v
		}
	}
	var sortErr error
	slices.SortStableFunc(rows, func(a, b row) int {
		for k, key := range keys {
			c, err := typeinfo.Compare(a.keys[k], b.keys[k])
			if err != nil {
				sortErr = err
				return 0
			}
			if c != 0 {
				if !key.ascending {
					return -c
				}
				return c
			}
		}
		return 0
	})
	if sortErr != nil {
		return nil, fmt.Errorf("cannot sort: %w", sortErr)
	}
	out := make([]reflect.Value, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	return out, nil
}

func groupItems(items []reflect.Value, st stage) ([]reflect.Value, error) {
	type group struct {
		key   reflect.Value
		items reflect.Value
	}
	var groups []*group
	byHash := map[uint64][]*group{}
	itemsType := st.layout.Signature[1].Type
	hash, equal := typeinfo.HashValue, typeinfo.ValuesEqual
	if keyLayout, ok := record.Lookup(st.lambda.Body.Type()); ok {
		hash, equal = keyLayout.Hash, keyLayout.Equal
	}
	for _, item := range items {
		key, err := eval.Lambda(st.lambda, item)
		if err != nil {
			return nil, err
		}
		elem, err := eval.Lambda(st.elem, item)
		if err != nil {
			return nil, err
		}
		h := hash(key)
		var g *group
		for _, candidate := range byHash[h] {
			if equal(candidate.key, key) {
				g = candidate
				break
			}
		}
		if g == nil {
			g = &group{key: key, items: reflect.MakeSlice(itemsType, 0, 1)}
			byHash[h] = append(byHash[h], g)
			groups = append(groups, g)
		}
		slot := reflect.New(itemsType.Elem()).Elem()
		if err := assign(slot, elem); err != nil {
			return nil, err
		}
		g.items = reflect.Append(g.items, slot)
	}
	out := make([]reflect.Value, len(groups))
	for i, g := range groups {
		key := reflect.New(st.layout.Signature[0].Type).Elem()
		if err := assign(key, g.key); err != nil {
			return nil, err
		}
		v, err := st.layout.New(key, g.items)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
