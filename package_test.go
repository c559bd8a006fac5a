// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dynq_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/dynq"
	"github.com/canonical/dynq/ast"
)

// Hook up gocheck into the "go test" runner.
func TestPackage(t *testing.T) { TestingT(t) }

type PackageSuite struct{}

var _ = Suite(&PackageSuite{})

type Category struct {
	Name string
}

func (c *Category) Delete() string {
	return "deleted " + c.Name
}

type Person struct {
	Name     string
	Age      int
	Category *Category
	Score    *int64
}

func score(n int64) *int64 {
	return &n
}

var (
	books = &Category{Name: "Books"}
	music = &Category{Name: "Music"}
)

func people() []Person {
	return []Person{
		{Name: "Alice", Age: 30, Category: books, Score: score(5)},
		{Name: "Bob", Age: 17, Category: music},
		{Name: "Carol", Age: 19, Category: books, Score: score(7)},
		{Name: "Alice", Age: 25, Category: music, Score: score(5)},
		{Name: "Dave", Age: 18, Category: books},
	}
}

func peopleSeq(c *C) dynq.Queryable {
	seq, err := dynq.FromSlice(people())
	c.Assert(err, IsNil)
	return seq
}

func describe(c *C, seq dynq.Queryable) []string {
	ps, err := dynq.ToSlice[Person](seq)
	c.Assert(err, IsNil)
	var out []string
	for _, p := range ps {
		out = append(out, fmt.Sprintf("%s/%d", p.Name, p.Age))
	}
	return out
}

type ageRecord struct {
	Age int
}

func (s *PackageSuite) TestWhere(c *C) {
	seq, err := dynq.FromSlice([]ageRecord{{Age: 17}, {Age: 18}, {Age: 19}})
	c.Assert(err, IsNil)
	q, err := dynq.Where(seq, "Age > 18")
	c.Assert(err, IsNil)
	out, err := dynq.ToSlice[ageRecord](q)
	c.Assert(err, IsNil)
	c.Assert(out, DeepEquals, []ageRecord{{Age: 19}})
}

func (s *PackageSuite) TestWhereNestedMember(c *C) {
	q, err := dynq.Where(peopleSeq(c), "Category.Name == @0", "Books")
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Alice/30", "Carol/19", "Dave/18"})
}

func (s *PackageSuite) TestWhereNamedValues(c *C) {
	q, err := dynq.Where(peopleSeq(c), "Age >= min && Name.StartsWith(@0)", "A", map[string]any{"min": 26})
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Alice/30"})
}

func (s *PackageSuite) TestOrderByMultiKey(c *C) {
	q, err := dynq.OrderBy(peopleSeq(c), "Name desc, Age asc")
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Dave/18", "Carol/19", "Bob/17", "Alice/25", "Alice/30"})
}

func (s *PackageSuite) TestOrderByIsStable(c *C) {
	q, err := dynq.OrderBy(peopleSeq(c), "Category.Name")
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Alice/30", "Carol/19", "Dave/18", "Bob/17", "Alice/25"})
}

func (s *PackageSuite) TestOrderByReplacesOrdering(c *C) {
	q, err := dynq.OrderBy(peopleSeq(c), "Age")
	c.Assert(err, IsNil)
	q, err = dynq.OrderBy(q, "Name")
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Alice/25", "Alice/30", "Bob/17", "Carol/19", "Dave/18"})
}

func (s *PackageSuite) TestAppendPageSort(c *C) {
	var many []Person
	for i := 0; i < 20; i++ {
		many = append(many, Person{Name: fmt.Sprintf("p%02d", i), Age: i})
	}
	seq, err := dynq.FromSlice(many)
	c.Assert(err, IsNil)

	start, limit := 10, 5
	paged, err := dynq.AppendPageSort(seq, &start, &limit, "Name", "desc")
	c.Assert(err, IsNil)

	want, err := dynq.OrderBy(seq, "Name desc")
	c.Assert(err, IsNil)
	want, err = dynq.Skip(want, 10)
	c.Assert(err, IsNil)
	want, err = dynq.Take(want, 5)
	c.Assert(err, IsNil)

	c.Assert(describe(c, paged), DeepEquals, describe(c, want))
	c.Assert(describe(c, paged), DeepEquals, []string{"p09/9", "p08/8", "p07/7", "p06/6", "p05/5"})
}

func (s *PackageSuite) TestAppendPageSortUnchanged(c *C) {
	seq := peopleSeq(c)
	out, err := dynq.AppendPageSort(seq, nil, nil, "", "")
	c.Assert(err, IsNil)
	c.Assert(out, Equals, seq)

	zero, negative := 0, -1
	out, err = dynq.AppendPageSort(seq, &zero, &negative, "", "desc")
	c.Assert(err, IsNil)
	c.Assert(out, Equals, seq)
}

func (s *PackageSuite) TestAppendSortDirection(c *C) {
	q, err := dynq.AppendSort(peopleSeq(c), "Age", "DESC")
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Alice/30", "Alice/25", "Carol/19", "Dave/18", "Bob/17"})

	q, err = dynq.AppendSort(peopleSeq(c), "Age", "down")
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Bob/17", "Dave/18", "Carol/19", "Alice/25", "Alice/30"})
}

func (s *PackageSuite) TestAppendWhereClause(c *C) {
	q, err := dynq.AppendWhereClause(peopleSeq(c), []string{"Age > 18", "", `Category.Name == "Music"`})
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Alice/25"})

	_, err = dynq.AppendWhereClause(peopleSeq(c), []string{"Age > 18", "Age >"})
	c.Assert(err, ErrorMatches, `cannot parse predicate: expression expected \(at index 5\)`)
}

func (s *PackageSuite) TestSkipTake(c *C) {
	q, err := dynq.Skip(peopleSeq(c), 3)
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Alice/25", "Dave/18"})

	q, err = dynq.Take(peopleSeq(c), 100)
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), HasLen, 5)

	q, err = dynq.Take(peopleSeq(c), -1)
	c.Assert(err, IsNil)
	n, err := dynq.Count(q)
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 0)
}

func (s *PackageSuite) TestSelectProjection(c *C) {
	q1, err := dynq.Select(peopleSeq(c), "new(Name, Age * 2 as Double)")
	c.Assert(err, IsNil)
	q2, err := dynq.Select(peopleSeq(c), "new(Name.ToUpper() as Name, Age as Double)")
	c.Assert(err, IsNil)
	c.Assert(q1.ElementType(), Equals, q2.ElementType())

	q3, err := dynq.Select(peopleSeq(c), "new(Age * 2 as Double, Name)")
	c.Assert(err, IsNil)
	c.Assert(q3.ElementType(), Not(Equals), q1.ElementType())

	v, err := q1.(dynq.Executor).Execute()
	c.Assert(err, IsNil)
	c.Assert(v.Len(), Equals, 5)
	c.Assert(v.Index(0).FieldByName("Name").String(), Equals, "Alice")
	c.Assert(v.Index(0).FieldByName("Double").Int(), Equals, int64(60))
}

func (s *PackageSuite) TestSelectThenWhere(c *C) {
	q, err := dynq.Select(peopleSeq(c), "new(Name, Age)")
	c.Assert(err, IsNil)
	q, err = dynq.Where(q, "Age < 19")
	c.Assert(err, IsNil)
	q, err = dynq.Select(q, "Name")
	c.Assert(err, IsNil)
	names, err := dynq.ToSlice[string](q)
	c.Assert(err, IsNil)
	c.Assert(names, DeepEquals, []string{"Bob", "Dave"})
}

func (s *PackageSuite) TestGroupBy(c *C) {
	q, err := dynq.GroupBy(peopleSeq(c), "Category.Name", "Name")
	c.Assert(err, IsNil)
	v, err := q.(dynq.Executor).Execute()
	c.Assert(err, IsNil)
	c.Assert(v.Len(), Equals, 2)
	c.Assert(v.Index(0).FieldByName("Key").String(), Equals, "Books")
	c.Assert(v.Index(0).FieldByName("Items").Interface(), DeepEquals, []string{"Alice", "Carol", "Dave"})
	c.Assert(v.Index(1).FieldByName("Key").String(), Equals, "Music")
	c.Assert(v.Index(1).FieldByName("Items").Interface(), DeepEquals, []string{"Bob", "Alice"})

	q, err = dynq.Where(q, "Items.Count() > 2")
	c.Assert(err, IsNil)
	n, err := dynq.Count(q)
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 1)
}

func (s *PackageSuite) TestGroupByRecordKey(c *C) {
	q, err := dynq.GroupBy(peopleSeq(c), "new(Category.Name as Cat, Age >= 19 as Adult)", "Name")
	c.Assert(err, IsNil)
	v, err := q.(dynq.Executor).Execute()
	c.Assert(err, IsNil)

	var got []string
	for i := 0; i < v.Len(); i++ {
		g := v.Index(i)
		key := g.FieldByName("Key")
		got = append(got, fmt.Sprintf("%s/%t %v",
			key.FieldByName("Cat").String(), key.FieldByName("Adult").Bool(), g.FieldByName("Items").Interface()))
	}
	c.Assert(got, DeepEquals, []string{
		"Books/true [Alice Carol]",
		"Music/false [Bob]",
		"Music/true [Alice]",
		"Books/false [Dave]",
	})
}

func (s *PackageSuite) TestIntegerLiterals(c *C) {
	n, err := dynq.Parse(nil, "3000000000")
	c.Assert(err, IsNil)
	c.Assert(n.Type(), Equals, reflect.TypeFor[uint32]())

	_, err = dynq.Parse(nil, "99999999999999999999")
	c.Assert(err, ErrorMatches, `invalid integer literal '99999999999999999999' \(at index 0\)`)
}

func (s *PackageSuite) TestParseErrorAs(c *C) {
	_, err := dynq.Where(peopleSeq(c), "Age > ")
	var perr *dynq.ParseError
	c.Assert(errors.As(err, &perr), Equals, true)
	c.Assert(perr.Msg, Equals, "expression expected")
	c.Assert(perr.Pos, Equals, 6)
}

func (s *PackageSuite) TestNoApplicableMethod(c *C) {
	_, err := dynq.Where(peopleSeq(c), `Category.Delete() == ""`)
	c.Assert(err, ErrorMatches, `cannot parse predicate: no applicable method 'Delete' exists in type '\*dynq_test.Category' \(at index 9\)`)
	c.Assert(books.Name, Equals, "Books")
}

func (s *PackageSuite) TestArgumentErrors(c *C) {
	seq := peopleSeq(c)
	_, err := dynq.Where(nil, "Age > 1")
	c.Assert(err, ErrorMatches, `argument "source" is nil or empty`)
	_, err = dynq.Where(seq, "")
	c.Assert(err, ErrorMatches, `argument "predicate" is nil or empty`)
	_, err = dynq.OrderBy(seq, "")
	c.Assert(err, ErrorMatches, `argument "ordering" is nil or empty`)
	_, err = dynq.Select(seq, "")
	c.Assert(err, ErrorMatches, `argument "selector" is nil or empty`)
	_, err = dynq.GroupBy(seq, "", "Name")
	c.Assert(err, ErrorMatches, `argument "keySelector" is nil or empty`)
	_, err = dynq.GroupBy(seq, "Age", "")
	c.Assert(err, ErrorMatches, `argument "elementSelector" is nil or empty`)
	_, err = dynq.Skip(nil, 1)
	c.Assert(err, ErrorMatches, `argument "source" is nil or empty`)
	_, err = dynq.Count(nil)
	c.Assert(err, ErrorMatches, `argument "source" is nil or empty`)
}

func (s *PackageSuite) TestBuildExpression(c *C) {
	l, err := dynq.BuildExpression(reflect.TypeFor[Person](), "Score", int64(5), nil)
	c.Assert(err, IsNil)
	q, err := peopleSeq(c).AttachFilter(l)
	c.Assert(err, IsNil)
	c.Assert(describe(c, q), DeepEquals, []string{"Alice/30", "Bob/17", "Alice/25", "Dave/18"})
}

func (s *PackageSuite) TestCreateClass(c *C) {
	t1, err := dynq.CreateClass(
		dynq.DynamicProperty{Name: "Id", Type: reflect.TypeFor[int64]()},
		dynq.DynamicProperty{Name: "Label", Type: reflect.TypeFor[string]()},
	)
	c.Assert(err, IsNil)
	t2, err := dynq.CreateClass(
		dynq.DynamicProperty{Name: "Id", Type: reflect.TypeFor[int64]()},
		dynq.DynamicProperty{Name: "Label", Type: reflect.TypeFor[string]()},
	)
	c.Assert(err, IsNil)
	c.Assert(t1, Equals, t2)

	t3, err := dynq.CreateClass(
		dynq.DynamicProperty{Name: "Label", Type: reflect.TypeFor[string]()},
		dynq.DynamicProperty{Name: "Id", Type: reflect.TypeFor[int64]()},
	)
	c.Assert(err, IsNil)
	c.Assert(t3, Not(Equals), t1)

	t4, err := dynq.CreateClass(
		dynq.DynamicProperty{Name: "Id", Type: reflect.TypeFor[int32]()},
		dynq.DynamicProperty{Name: "Label", Type: reflect.TypeFor[string]()},
	)
	c.Assert(err, IsNil)
	c.Assert(t4, Not(Equals), t1)

	_, err = dynq.CreateClass(
		dynq.DynamicProperty{Name: "id", Type: reflect.TypeFor[int64]()},
		dynq.DynamicProperty{Name: "ID", Type: reflect.TypeFor[int64]()},
	)
	c.Assert(err, ErrorMatches, `duplicate property "ID" conflicts with "id"`)
}

func (s *PackageSuite) TestAnyCount(c *C) {
	q, err := dynq.Where(peopleSeq(c), "Age > 100")
	c.Assert(err, IsNil)
	ok, err := dynq.Any(q)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)

	n, err := dynq.Count(peopleSeq(c))
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 5)
}

func (s *PackageSuite) TestEvaluationError(c *C) {
	seq, err := dynq.FromSlice([]Person{{Name: "Nobody"}})
	c.Assert(err, IsNil)
	q, err := dynq.Where(seq, "Category.Name == @0", "Books")
	c.Assert(err, IsNil)
	_, err = dynq.Count(q)
	c.Assert(err, ErrorMatches, "cannot read Name of null")
}

func (s *PackageSuite) TestToSliceWrongType(c *C) {
	_, err := dynq.ToSlice[ageRecord](peopleSeq(c))
	c.Assert(err, ErrorMatches, `sequence of dynq_test.Person cannot be read into \[\]dynq_test.ageRecord`)
}

func (s *PackageSuite) TestFromSliceNeedsSlice(c *C) {
	_, err := dynq.FromSlice(Person{})
	c.Assert(err, ErrorMatches, `cannot query dynq_test.Person: need a slice or an array`)
}

func (s *PackageSuite) TestCached(c *C) {
	q, err := dynq.Where(peopleSeq(c), "Age > 18")
	c.Assert(err, IsNil)

	plain1, err := q.(dynq.Executor).Execute()
	c.Assert(err, IsNil)
	plain2, err := q.(dynq.Executor).Execute()
	c.Assert(err, IsNil)
	c.Assert(plain1.Pointer(), Not(Equals), plain2.Pointer())

	cached, err := dynq.Cached(q, dynq.CacheSettings{})
	c.Assert(err, IsNil)
	v1, err := cached.(dynq.Executor).Execute()
	c.Assert(err, IsNil)
	v2, err := cached.(dynq.Executor).Execute()
	c.Assert(err, IsNil)
	c.Assert(v1.Pointer(), Equals, v2.Pointer())
	c.Assert(v1.Len(), Equals, 3)

	_, err = dynq.Cached(q, "forever")
	c.Assert(err, ErrorMatches, "unsupported cache settings string")
}

// opaque hides every capability of a sequence except Queryable.
type opaque struct {
	dynq.Queryable
}

func (s *PackageSuite) TestCachedPassThrough(c *C) {
	seq := opaque{peopleSeq(c)}
	out, err := dynq.Cached(seq, dynq.CacheSettings{})
	c.Assert(err, IsNil)
	c.Assert(out, Equals, dynq.Queryable(seq))

	_, err = dynq.Count(seq)
	c.Assert(err, ErrorMatches, "sequence of dynq_test.Person cannot be executed")
}

// recorder is a Queryable that logs what is attached to it.
type recorder struct {
	elem reflect.Type
	log  *[]string
}

func newRecorder() *recorder {
	return &recorder{elem: reflect.TypeFor[Person](), log: &[]string{}}
}

func (r *recorder) add(format string, args ...any) (dynq.Queryable, error) {
	*r.log = append(*r.log, fmt.Sprintf(format, args...))
	return r, nil
}

func (r *recorder) ElementType() reflect.Type { return r.elem }

func (r *recorder) AttachFilter(pred *ast.Lambda) (dynq.Queryable, error) {
	return r.add("filter %s", pred)
}

func (r *recorder) AttachSort(key *ast.Lambda, ascending, primary bool) (dynq.Queryable, error) {
	return r.add("sort %s ascending=%t primary=%t", key.Body, ascending, primary)
}

func (r *recorder) AttachProject(sel *ast.Lambda) (dynq.Queryable, error) {
	return r.add("project %s", sel)
}

func (r *recorder) AttachGroup(key, elem *ast.Lambda) (dynq.Queryable, error) {
	return r.add("group %s by %s", elem.Body, key.Body)
}

func (r *recorder) AttachSkip(n int) (dynq.Queryable, error) {
	return r.add("skip %d", n)
}

func (r *recorder) AttachTake(n int) (dynq.Queryable, error) {
	return r.add("take %d", n)
}

func (s *PackageSuite) TestCombinatorsAttach(c *C) {
	r := newRecorder()
	start, limit := 10, 5
	_, err := dynq.AppendPageSort(r, &start, &limit, "Name, Age", "Desc")
	c.Assert(err, IsNil)
	_, err = dynq.AppendWhereClause(r, []string{"Age > 1", "", `Name == "x"`})
	c.Assert(err, IsNil)
	_, err = dynq.GroupBy(r, "Category.Name", "Age")
	c.Assert(err, IsNil)
	c.Assert(*r.log, DeepEquals, []string{
		"sort it.Name ascending=true primary=true",
		"sort it.Age ascending=false primary=false",
		"skip 10",
		"take 5",
		"filter it => (it.Age > 1)",
		`filter it => (it.Name == "x")`,
		"group it.Age by it.Category.Name",
	})
}
