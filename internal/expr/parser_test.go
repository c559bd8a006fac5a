// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	. "gopkg.in/check.v1"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/typeinfo"
)

type ParserSuite struct{}

var _ = Suite(&ParserSuite{})

type colour int

func (colour) EnumMembers() map[string]int64 {
	return map[string]int64{"Red": 0, "Green": 1, "Blue": 2}
}

type Category struct {
	Name string
}

func (c *Category) Secret() string {
	return "hidden"
}

type Order struct {
	Amount float64
	Qty    int
}

func (o Order) Total() float64 {
	return o.Amount * float64(o.Qty)
}

type Person struct {
	Name     string
	Age      int
	Score    *int64
	Flag     *bool
	UCount   uint8
	Price    apd.Decimal
	Colour   colour
	Tags     []string
	Orders   []Order
	Category *Category
	Attrs    map[string]int
	Born     time.Time
}

func (p Person) Initials() string {
	return strings.ToUpper(p.Name[:1])
}

func (p Person) Touch() {}

var personType = reflect.TypeOf(Person{})

func parsePerson(text string, values ...any) (ast.Node, error) {
	it := ast.NewParameter("", personType)
	l, err := ParseLambda([]*ast.Parameter{it}, nil, text, values...)
	if err != nil {
		return nil, err
	}
	return l.Body, nil
}

var parseTests = []struct {
	summary  string
	input    string
	values   []any
	expected string
}{{
	summary:  "integer literal retyped to field",
	input:    "Age > 18",
	expected: "(it.Age > 18)",
}, {
	summary:  "small unsigned field widened to int32",
	input:    "UCount > 5",
	expected: "(Int32(it.UCount) > 5)",
}, {
	summary:  "case insensitive keywords and members",
	input:    "age > 18 AND name == 'x'",
	expected: `((it.Age > 18) && (it.Name == "x"))`,
}, {
	summary:  "symbolic logical operators",
	input:    "Age < 1 || Age >= 65 && !(Name != \"bob\")",
	expected: `((it.Age < 1) || ((it.Age >= 65) && !(it.Name != "bob")))`,
}, {
	summary:  "string relational operators compare ordinally",
	input:    `Name < "b"`,
	expected: `(String.CompareOrdinal(it.Name, "b") < 0)`,
}, {
	summary:  "string concatenation",
	input:    "Name + 1",
	expected: "String.Concat(Object(it.Name), Object(1))",
}, {
	summary:  "ampersand concatenation",
	input:    "Name & Age",
	expected: "String.Concat(Object(it.Name), Object(it.Age))",
}, {
	summary:  "nullable compared with null",
	input:    "Score == null",
	expected: "(it.Score == null)",
}, {
	summary:  "nullable arithmetic",
	input:    "Score + 1",
	expected: "(it.Score + 1)",
}, {
	summary:  "nullable member",
	input:    "Score.HasValue",
	expected: "it.Score.HasValue",
}, {
	summary:  "nullable logical operand",
	input:    "Flag && true",
	expected: "(it.Flag && Boolean?(true))",
}, {
	summary:  "not keyword",
	input:    "not Flag",
	expected: "!it.Flag",
}, {
	summary:  "reference compared with null",
	input:    "Category == null",
	expected: "(it.Category == null)",
}, {
	summary:  "string compared with null",
	input:    "Name == null",
	expected: "(Object(it.Name) == null)",
}, {
	summary:  "member through pointer with positional value",
	input:    "Category.Name == @0",
	values:   []any{"Books"},
	expected: `(it.Category.Name == "Books")`,
}, {
	summary:  "positional values",
	input:    "Age > @0 && Name == @1",
	values:   []any{18, "x"},
	expected: `((it.Age > 18) && (it.Name == "x"))`,
}, {
	summary:  "external values",
	input:    "Age > limit",
	values:   []any{map[string]any{"limit": 10}},
	expected: "(it.Age > 10)",
}, {
	summary:  "enumeration compared with member name",
	input:    `Colour == "Green"`,
	expected: "(it.Colour == 1)",
}, {
	summary:  "decimal literal",
	input:    "Price > 1.5",
	expected: "(it.Price > 1.5m)",
}, {
	summary:  "modulo keyword",
	input:    "Age mod 3 == 0",
	expected: "((it.Age % 3) == 0)",
}, {
	summary:  "negation",
	input:    "-Age",
	expected: "-it.Age",
}, {
	summary:  "explicit it",
	input:    "it.Age",
	expected: "it.Age",
}, {
	summary:  "conditional operator",
	input:    `Age > 18 ? "adult" : "minor"`,
	expected: `iif((it.Age > 18), "adult", "minor")`,
}, {
	summary:  "iif with null branch",
	input:    "iif(Age > 1, Score, null)",
	expected: "iif((it.Age > 1), it.Score, null)",
}, {
	summary:  "projection",
	input:    "new(Name, Age * 2 as Double)",
	expected: "new(it.Name as Name, (it.Age * 2) as Double)",
}, {
	summary:  "projection of properties named after them",
	input:    "new(Name.Length, Born.Year, Score.HasValue)",
	expected: "new(it.Name.Length as Length, it.Born.Year as Year, it.Score.HasValue as HasValue)",
}, {
	summary:  "declared method",
	input:    "Initials()",
	expected: "it.Initials()",
}, {
	summary:  "allowed string method",
	input:    "Name.ToUpper().StartsWith(\"A\")",
	expected: `it.Name.ToUpper().StartsWith("A")`,
}, {
	summary:  "static method",
	input:    "Math.Max(Age, 3)",
	expected: "Math.Max(it.Age, 3)",
}, {
	summary:  "constructor",
	input:    "Born > DateTime(2000, 1, 1)",
	expected: "(it.Born > new DateTime(2000, 1, 1))",
}, {
	summary:  "explicit conversion",
	input:    "Int64(Age)",
	expected: "checked Int64(it.Age)",
}, {
	summary:  "nullable conversion",
	input:    "Int32?(Age)",
	expected: "checked Int32?(it.Age)",
}, {
	summary:  "slice index",
	input:    "Tags[0]",
	expected: "it.Tags[0]",
}, {
	summary:  "map index",
	input:    `Attrs["x"]`,
	expected: `it.Attrs["x"]`,
}, {
	summary:  "aggregate with selector",
	input:    "Orders.Sum(Amount) > 100",
	expected: "(it.Orders.Sum(it.Amount) > 100)",
}, {
	summary:  "aggregate without arguments",
	input:    "Tags.Any()",
	expected: "it.Tags.Any()",
}, {
	summary:  "aggregate over strings",
	input:    `Tags.Count(it == "a")`,
	expected: `it.Tags.Count((it == "a"))`,
}, {
	summary:  "chained aggregates",
	input:    "Orders.Where(Qty > 1).Count()",
	expected: "it.Orders.Where((it.Qty > 1)).Count()",
}, {
	summary:  "element methods inside aggregates",
	input:    "Orders.Any(Total() > 5)",
	expected: "it.Orders.Any((it.Total() > 5))",
}}

func (s *ParserSuite) TestParse(c *C) {
	for i, test := range parseTests {
		n, err := parsePerson(test.input, test.values...)
		if err != nil {
			c.Errorf("test %d failed (Parse):\nsummary: %s\ninput: %s\nexpected: %s\nerr: %s\n", i, test.summary, test.input, test.expected, err)
		} else if n.String() != test.expected {
			c.Errorf("test %d failed (Parse):\nsummary: %s\ninput: %s\nexpected: %s\nactual:   %s\n", i, test.summary, test.input, test.expected, n.String())
		}
	}
}

var parseErrorTests = []struct {
	input string
	err   string
}{
	{"Age >", "expression expected (at index 5)"},
	{"Age 5", "syntax error (at index 4)"},
	{"(Age > 1", "')' or operator expected (at index 8)"},
	{"Math.Max(1", "')' or ',' expected (at index 10)"},
	{"Tags[0", "']' or ',' expected (at index 6)"},
	{"Age > 18 ? 1", "':' expected (at index 12)"},
	{"Foo", "no property or field 'Foo' exists in type 'expr.Person' (at index 0)"},
	{"Name.Foo()", "no applicable method 'Foo' exists in type 'String' (at index 5)"},
	{"Name.Length()", "no applicable method 'Length' exists in type 'String' (at index 5)"},
	{`Born.Format("x")`, "no applicable method 'Format' exists in type 'DateTime' (at index 5)"},
	{"Category.Secret()", "no applicable method 'Secret' exists in type '*expr.Category' (at index 9)"},
	{"Touch()", "method 'Touch' in type 'expr.Person' does not return a value (at index 0)"},
	{"Age * true", "operator '*' incompatible with operand types 'Int' and 'Boolean' (at index 4)"},
	{"Name == 5", "operator '==' incompatible with operand types 'String' and 'Int32' (at index 5)"},
	{"-Name", "operator '-' incompatible with operand type 'String' (at index 0)"},
	{"99999999999999999999", "invalid integer literal '99999999999999999999' (at index 0)"},
	{"1e999", "invalid real literal '1e999' (at index 0)"},
	{"iif(true, 1)", "the 'iif' function requires three arguments (at index 0)"},
	{"iif(1, 2, 3)", "the first expression must be of type 'Boolean' (at index 0)"},
	{`iif(true, 1, "a")`, "neither of the types 'Int32' and 'String' converts to the other (at index 0)"},
	{"iif(true, Name, null)", "neither of the types 'String' and 'null' converts to the other (at index 0)"},
	{"iif(true, Age, Score.Value)", "both of the types 'Int' and 'Int64' convert to the other (at index 0)"},
	{"String?(Name)", "type 'String' has no nullable form (at index 0)"},
	{"Int32 + 1", "'.' or '(' expected (at index 6)"},
	{"DateTime(1)", "a value of type 'Int32' cannot be converted to type 'DateTime' (at index 0)"},
	{"DateTime(1, 2)", "no matching constructor in type 'DateTime' (at index 0)"},
	{"Tags[0, 1]", "indexing of multi-dimensional arrays is not supported (at index 4)"},
	{`Tags["a"]`, "array index must be an integer expression (at index 4)"},
	{"Name[0]", "no applicable indexer exists in type 'String' (at index 4)"},
	{"Attrs[1]", "no applicable indexer exists in type 'map[string]int' (at index 5)"},
	{"Orders.Sum(Amount > 1)", "no applicable aggregate method 'Sum' exists (at index 7)"},
	{"new(Age + 1)", "expression is missing an 'as' clause (at index 4)"},
	{"new(Name.ToUpper())", "expression is missing an 'as' clause (at index 4)"},
	{"new(Name", "')' or ',' expected (at index 8)"},
	{"Name.", "identifier expected (at index 5)"},
	{"Age > #", "syntax error '#' (at index 6)"},
}

func (s *ParserSuite) TestParseErrors(c *C) {
	for _, test := range parseErrorTests {
		_, err := parsePerson(test.input)
		c.Assert(err, NotNil, Commentf("input %q", test.input))
		c.Check(err.Error(), Equals, test.err, Commentf("input %q", test.input))
		var perr *ParseError
		c.Check(err, FitsTypeOf, perr)
	}
}

func (s *ParserSuite) TestInvalidProjection(c *C) {
	_, err := parsePerson("new(Name, Age as name)")
	c.Assert(err, ErrorMatches, `invalid projection: duplicate property .*`)
}

func (s *ParserSuite) TestIntegerLiteralTypes(c *C) {
	tests := []struct {
		input string
		typ   reflect.Type
	}{
		{"1", typeinfo.Int32},
		{"2147483648", typeinfo.Uint32},
		{"3000000000", typeinfo.Uint32},
		{"4294967296", typeinfo.Int64},
		{"9223372036854775808", typeinfo.Uint64},
		{"-2147483648", typeinfo.Int32},
		{"-2147483649", typeinfo.Int64},
		{"1.5", typeinfo.Float64},
		{"1.5f", typeinfo.Float32},
		{"1e3", typeinfo.Float64},
	}
	for _, test := range tests {
		n, err := parsePerson(test.input)
		c.Assert(err, IsNil, Commentf("input %q", test.input))
		c.Check(n.Type(), Equals, test.typ, Commentf("input %q", test.input))
	}
	n, err := parsePerson("3000000000")
	c.Assert(err, IsNil)
	c.Check(n.(*ast.Constant).Value, Equals, uint32(3000000000))
	n, err = parsePerson("-2147483648")
	c.Assert(err, IsNil)
	c.Check(n.(*ast.Constant).Value, Equals, int32(-2147483648))
}

func (s *ParserSuite) TestResultTypes(c *C) {
	tests := []struct {
		input string
		typ   reflect.Type
	}{
		{"Born - Born", typeinfo.Duration},
		{"Born + Duration.FromHours(1)", typeinfo.Time},
		{"Orders.Min(Qty)", typeinfo.Int},
		{"Orders.Average(Qty)", typeinfo.Float64},
		{"Orders.Sum(Amount)", typeinfo.Float64},
		{"Orders.Where(Qty > 1)", reflect.TypeOf([]Order{})},
		{"Tags.Count()", typeinfo.Int},
		{"Score.Value", typeinfo.Int64},
		{"Category == null", typeinfo.Bool},
		{"Score + 1", reflect.TypeOf((*int64)(nil))},
	}
	for _, test := range tests {
		n, err := parsePerson(test.input)
		c.Assert(err, IsNil, Commentf("input %q", test.input))
		c.Check(n.Type(), Equals, test.typ, Commentf("input %q", test.input))
	}
}

type Counter struct {
	U     uint32
	W     uint64
	Qty   int32
	Items []uint32
}

func (s *ParserSuite) TestMixedSignPromotion(c *C) {
	it := ast.NewParameter("", reflect.TypeOf(Counter{}))
	tests := []struct {
		input    string
		expected string
		typ      reflect.Type
	}{
		{"-U", "-Int64(it.U)", typeinfo.Int64},
		{"U + Qty", "(Int64(it.U) + Int64(it.Qty))", typeinfo.Int64},
		{"U > Qty", "(Int64(it.U) > Int64(it.Qty))", typeinfo.Bool},
		{"U + W", "(UInt64(it.U) + it.W)", typeinfo.Uint64},
	}
	for _, test := range tests {
		l, err := ParseLambda([]*ast.Parameter{it}, nil, test.input)
		c.Assert(err, IsNil, Commentf("input %q", test.input))
		c.Check(l.Body.String(), Equals, test.expected, Commentf("input %q", test.input))
		c.Check(l.Body.Type(), Equals, test.typ, Commentf("input %q", test.input))
	}

	for _, input := range []string{"Items.Sum(it)", "Math.Abs(U)"} {
		l, err := ParseLambda([]*ast.Parameter{it}, nil, input)
		c.Assert(err, IsNil, Commentf("input %q", input))
		c.Check(l.Body.Type(), Equals, typeinfo.Int64, Commentf("input %q", input))
	}
}

type Shift struct {
	Time     time.Time
	Duration time.Duration
	Int      int
}

func (s *ParserSuite) TestMembersHideGoTypeNames(c *C) {
	it := ast.NewParameter("", reflect.TypeOf(Shift{}))
	tests := []struct {
		input    string
		expected string
	}{
		{"Int > 3", "(it.Int > 3)"},
		{"Time < DateTime(2020, 1, 1)", "(it.Time < new DateTime(2020, 1, 1))"},
		{"Duration > TimeSpan(1, 0, 0)", "(it.Duration > new TimeSpan(1, 0, 0))"},
	}
	for _, test := range tests {
		l, err := ParseLambda([]*ast.Parameter{it}, typeinfo.Bool, test.input)
		c.Assert(err, IsNil, Commentf("input %q", test.input))
		c.Check(l.Body.String(), Equals, test.expected, Commentf("input %q", test.input))
	}

	orderings, err := ParseOrdering(it, "Time desc")
	c.Assert(err, IsNil)
	c.Assert(orderings, HasLen, 1)
	c.Check(orderings[0].String(), Equals, "it.Time descending")

	// Without a member of that name the Go spelling still names the type.
	n, err := parsePerson("Born + Duration.FromHours(1) > Time.Now")
	c.Assert(err, IsNil)
	c.Check(n.Type(), Equals, typeinfo.Bool)
}

func (s *ParserSuite) TestResultTypePromotion(c *C) {
	it := ast.NewParameter("", personType)
	l, err := ParseLambda([]*ast.Parameter{it}, typeinfo.Float64, "Age")
	c.Assert(err, IsNil)
	c.Check(l.Body.String(), Equals, "Double(it.Age)")
	c.Check(l.Body.Type(), Equals, typeinfo.Float64)

	_, err = ParseLambda([]*ast.Parameter{it}, typeinfo.Bool, "Age")
	c.Assert(err, ErrorMatches, `expression of type 'Boolean' expected \(at index 0\)`)
}

func (s *ParserSuite) TestNamedParameters(c *C) {
	p := ast.NewParameter("p", personType)
	q := ast.NewParameter("q", personType)
	l, err := ParseLambda([]*ast.Parameter{p, q}, typeinfo.Bool, "P.Age > q.Age")
	c.Assert(err, IsNil)
	c.Check(l.String(), Equals, "(p, q) => (p.Age > q.Age)")

	_, err = ParseLambda([]*ast.Parameter{p}, nil, "it")
	c.Check(err, ErrorMatches, `no 'it' is in scope \(at index 0\)`)

	_, err = ParseLambda([]*ast.Parameter{p}, nil, "Age")
	c.Check(err, ErrorMatches, `unknown identifier 'Age' \(at index 0\)`)
}

func (s *ParserSuite) TestDuplicateIdentifier(c *C) {
	x := ast.NewParameter("x", typeinfo.Int)
	y := ast.NewParameter("X", typeinfo.Int)
	_, err := ParseLambda([]*ast.Parameter{x, y}, nil, "x")
	c.Assert(err, ErrorMatches, `the identifier 'X' was defined more than once \(at index 0\)`)
}

func (s *ParserSuite) TestLambdaInvocation(c *C) {
	a := ast.NewParameter("a", typeinfo.Int)
	identity := &ast.Lambda{Params: []*ast.Parameter{a}, Body: a}
	n, err := parsePerson("@0(Age)", identity)
	c.Assert(err, IsNil)
	c.Check(n.String(), Equals, "(a => a)(it.Age)")

	_, err = parsePerson("@0(Name)", identity)
	c.Check(err, ErrorMatches, `argument list incompatible with lambda expression \(at index 0\)`)
}

func (s *ParserSuite) TestParseOrdering(c *C) {
	it := ast.NewParameter("", personType)
	orderings, err := ParseOrdering(it, "Age DESC, Name, Born ascending")
	c.Assert(err, IsNil)
	var got []string
	for _, o := range orderings {
		got = append(got, o.String())
	}
	c.Check(got, DeepEquals, []string{"it.Age descending", "it.Name ascending", "it.Born ascending"})

	_, err = ParseOrdering(it, "Age desc Name")
	c.Check(err, ErrorMatches, `syntax error \(at index 9\)`)
}

func (s *ParserSuite) TestProjectionType(c *C) {
	n, err := parsePerson("new(Name, Age as Years)")
	c.Assert(err, IsNil)
	init := n.(*ast.MemberInit)
	c.Assert(init.Typ.NumField(), Equals, 2)
	c.Check(init.Typ.Field(0).Name, Equals, "Name")
	c.Check(init.Typ.Field(1).Name, Equals, "Years")
	c.Check(init.Typ.Field(1).Type, Equals, typeinfo.Int)

	// Equal signatures share a record type.
	other, err := parsePerson("new(Name, Age + 1 as Years)")
	c.Assert(err, IsNil)
	c.Check(other.Type(), Equals, n.Type())
}
