// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/canonical/dynq/ast"
	"github.com/canonical/dynq/internal/typeinfo"
)

// hostKey identifies a member of a predefined type. name is case folded.
type hostKey struct {
	owner  reflect.Type
	static bool
	name   string
}

// hostTable is the allow-list of members of the predefined types that
// expressions may use.
type hostTable struct {
	methods      map[hostKey][]*ast.Method
	properties   map[hostKey]*ast.Method
	constructors map[reflect.Type][]*ast.Method
}

var hostOnce sync.Once
var host *hostTable

// hostMembers returns the single instance of the host table.
func hostMembers() *hostTable {
	hostOnce.Do(func() {
		host = &hostTable{
			methods:      map[hostKey][]*ast.Method{},
			properties:   map[hostKey]*ast.Method{},
			constructors: map[reflect.Type][]*ast.Method{},
		}
		host.addStringMembers()
		host.addTimeMembers()
		host.addDurationMembers()
		host.addUUIDMembers()
		host.addDecimalMembers()
		host.addMathMembers()
		host.addConvertMembers()
		host.addCommonMembers()
	})
	return host
}

func (h *hostTable) lookupMethods(owner reflect.Type, static bool, name string) []*ast.Method {
	return h.methods[hostKey{owner, static, typeinfo.Fold(name)}]
}

func (h *hostTable) lookupProperty(owner reflect.Type, static bool, name string) (*ast.Method, bool) {
	m, ok := h.properties[hostKey{owner, static, typeinfo.Fold(name)}]
	return m, ok
}

func (h *hostTable) lookupConstructors(owner reflect.Type) []*ast.Method {
	return h.constructors[owner]
}

func (h *hostTable) method(owner reflect.Type, name string, static bool, fn any) {
	key := hostKey{owner, static, typeinfo.Fold(name)}
	h.methods[key] = append(h.methods[key], newHostMethod(owner, name, static, fn))
}

func (h *hostTable) property(owner reflect.Type, name string, static bool, fn any) {
	h.properties[hostKey{owner, static, typeinfo.Fold(name)}] = newHostMethod(owner, name, static, fn)
}

func (h *hostTable) constructor(owner reflect.Type, fn any) {
	h.constructors[owner] = append(h.constructors[owner], newHostMethod(owner, typeinfo.TypeName(owner), true, fn))
}

// newHostMethod describes the Go function fn as a method of owner. Instance
// methods take the receiver as their first argument.
func newHostMethod(owner reflect.Type, name string, static bool, fn any) *ast.Method {
	f, ok := fn.(reflect.Value)
	if !ok {
		f = reflect.ValueOf(fn)
	}
	ft := f.Type()
	first := 0
	if !static {
		first = 1
	}
	params := make([]reflect.Type, 0, ft.NumIn()-first)
	for i := first; i < ft.NumIn(); i++ {
		params = append(params, ft.In(i))
	}
	m := &ast.Method{Owner: owner, Name: name, Params: params, Static: static, Func: f}
	if ft.NumOut() > 0 {
		m.Result = ft.Out(0)
	}
	if ft.NumOut() == 2 && typeinfo.IsError(ft.Out(1)) {
		m.Fallible = true
	}
	return m
}

func (h *hostTable) addStringMembers() {
	s := typeinfo.String
	h.method(s, "Contains", false, strings.Contains)
	h.method(s, "StartsWith", false, strings.HasPrefix)
	h.method(s, "EndsWith", false, strings.HasSuffix)
	h.method(s, "IndexOf", false, func(s, sub string) int {
		i := strings.Index(s, sub)
		if i < 0 {
			return -1
		}
		return utf8.RuneCountInString(s[:i])
	})
	h.method(s, "ToUpper", false, strings.ToUpper)
	h.method(s, "ToLower", false, strings.ToLower)
	h.method(s, "Trim", false, strings.TrimSpace)
	h.method(s, "TrimStart", false, func(s string) string {
		return strings.TrimLeftFunc(s, unicode.IsSpace)
	})
	h.method(s, "TrimEnd", false, func(s string) string {
		return strings.TrimRightFunc(s, unicode.IsSpace)
	})
	h.method(s, "Substring", false, func(s string, start int) (string, error) {
		return substring(s, start, utf8.RuneCountInString(s)-start)
	})
	h.method(s, "Substring", false, substring)
	h.method(s, "Replace", false, strings.ReplaceAll)
	h.method(s, "Equals", false, func(a, b string) bool { return a == b })
	h.method(s, "CompareTo", false, strings.Compare)
	h.property(s, "Length", false, utf8.RuneCountInString)

	h.method(s, "Concat", true, func(a, b any) string {
		return typeinfo.FormatValue(reflect.ValueOf(a)) + typeinfo.FormatValue(reflect.ValueOf(b))
	})
	h.method(s, "IsNullOrEmpty", true, func(s string) bool { return s == "" })
	h.method(s, "Compare", true, strings.Compare)
	h.method(s, "CompareOrdinal", true, strings.Compare)
}

// substring counts start and length in runes.
func substring(s string, start, length int) (string, error) {
	runes := []rune(s)
	if start < 0 || length < 0 || start+length > len(runes) {
		return "", fmt.Errorf("substring [%d:%d] out of range for string of length %d", start, start+length, len(runes))
	}
	return string(runes[start : start+length]), nil
}

func (h *hostTable) addTimeMembers() {
	t := typeinfo.Time
	h.property(t, "Year", false, func(t time.Time) int { return t.Year() })
	h.property(t, "Month", false, func(t time.Time) int { return int(t.Month()) })
	h.property(t, "Day", false, func(t time.Time) int { return t.Day() })
	h.property(t, "Hour", false, func(t time.Time) int { return t.Hour() })
	h.property(t, "Minute", false, func(t time.Time) int { return t.Minute() })
	h.property(t, "Second", false, func(t time.Time) int { return t.Second() })
	h.property(t, "Millisecond", false, func(t time.Time) int { return t.Nanosecond() / int(time.Millisecond) })
	h.property(t, "DayOfYear", false, func(t time.Time) int { return t.YearDay() })
	h.property(t, "DayOfWeek", false, func(t time.Time) int { return int(t.Weekday()) })
	h.property(t, "Date", false, midnight)
	h.property(t, "TimeOfDay", false, func(t time.Time) time.Duration { return t.Sub(midnight(t)) })

	h.method(t, "AddDays", false, addScaled(24*time.Hour))
	h.method(t, "AddHours", false, addScaled(time.Hour))
	h.method(t, "AddMinutes", false, addScaled(time.Minute))
	h.method(t, "AddSeconds", false, addScaled(time.Second))
	h.method(t, "AddMilliseconds", false, addScaled(time.Millisecond))
	h.method(t, "AddMonths", false, func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) })
	h.method(t, "AddYears", false, func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) })
	h.method(t, "Add", false, time.Time.Add)
	h.method(t, "Subtract", false, time.Time.Sub)
	h.method(t, "Subtract", false, func(t time.Time, d time.Duration) time.Time { return t.Add(-d) })

	h.property(t, "Now", true, time.Now)
	h.property(t, "UtcNow", true, func() time.Time { return time.Now().UTC() })
	h.property(t, "Today", true, func() time.Time { return midnight(time.Now()) })

	h.constructor(t, func(year, month, day int) time.Time {
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	})
	h.constructor(t, func(year, month, day, hour, minute, second int) time.Time {
		return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	})
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func addScaled(unit time.Duration) func(time.Time, float64) time.Time {
	return func(t time.Time, n float64) time.Time {
		return t.Add(time.Duration(n * float64(unit)))
	}
}

func (h *hostTable) addDurationMembers() {
	d := typeinfo.Duration
	h.property(d, "Days", false, func(d time.Duration) int { return int(d / (24 * time.Hour)) })
	h.property(d, "Hours", false, func(d time.Duration) int { return int(d/time.Hour) % 24 })
	h.property(d, "Minutes", false, func(d time.Duration) int { return int(d/time.Minute) % 60 })
	h.property(d, "Seconds", false, func(d time.Duration) int { return int(d/time.Second) % 60 })
	h.property(d, "Milliseconds", false, func(d time.Duration) int { return int(d/time.Millisecond) % 1000 })
	h.property(d, "TotalDays", false, func(d time.Duration) float64 { return d.Hours() / 24 })
	h.property(d, "TotalHours", false, time.Duration.Hours)
	h.property(d, "TotalMinutes", false, time.Duration.Minutes)
	h.property(d, "TotalSeconds", false, time.Duration.Seconds)
	h.property(d, "TotalMilliseconds", false, func(d time.Duration) float64 {
		return float64(d) / float64(time.Millisecond)
	})

	h.method(d, "FromDays", true, fromUnit(24*time.Hour))
	h.method(d, "FromHours", true, fromUnit(time.Hour))
	h.method(d, "FromMinutes", true, fromUnit(time.Minute))
	h.method(d, "FromSeconds", true, fromUnit(time.Second))
	h.method(d, "FromMilliseconds", true, fromUnit(time.Millisecond))
	h.property(d, "Zero", true, func() time.Duration { return 0 })

	h.constructor(d, func(hours, minutes, seconds int) time.Duration {
		return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	})
	h.constructor(d, func(days, hours, minutes, seconds int) time.Duration {
		return time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour +
			time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	})
}

func fromUnit(unit time.Duration) func(float64) time.Duration {
	return func(n float64) time.Duration {
		return time.Duration(n * float64(unit))
	}
}

func (h *hostTable) addUUIDMembers() {
	u := typeinfo.UUID
	h.method(u, "NewGuid", true, uuid.New)
	h.method(u, "Parse", true, uuid.Parse)
	h.property(u, "Empty", true, func() uuid.UUID { return uuid.Nil })
	h.constructor(u, uuid.Parse)
}

func (h *hostTable) addDecimalMembers() {
	d := typeinfo.Decimal
	h.constructor(d, func(s string) (apd.Decimal, error) {
		v, _, err := apd.NewFromString(s)
		if err != nil {
			return apd.Decimal{}, err
		}
		return *v, nil
	})
	h.constructor(d, func(i int64) apd.Decimal {
		return *apd.New(i, 0)
	})
	h.constructor(d, func(f float64) (apd.Decimal, error) {
		var v apd.Decimal
		_, err := v.SetFloat64(f)
		return v, err
	})
	h.property(d, "Zero", true, func() apd.Decimal { return apd.Decimal{} })
	h.property(d, "One", true, func() apd.Decimal { return *apd.New(1, 0) })
}

func (h *hostTable) addMathMembers() {
	m := typeinfo.Math
	h.method(m, "Abs", true, func(x int32) int32 { return absInt(x) })
	h.method(m, "Abs", true, func(x int64) int64 { return absInt(x) })
	h.method(m, "Abs", true, func(x int) int { return absInt(x) })
	h.method(m, "Abs", true, math.Abs)
	h.method(m, "Abs", true, func(x apd.Decimal) apd.Decimal {
		var r apd.Decimal
		r.Abs(&x)
		return r
	})
	h.method(m, "Max", true, func(a, b int32) int32 { return max(a, b) })
	h.method(m, "Max", true, func(a, b int64) int64 { return max(a, b) })
	h.method(m, "Max", true, func(a, b int) int { return max(a, b) })
	h.method(m, "Max", true, math.Max)
	h.method(m, "Max", true, func(a, b apd.Decimal) apd.Decimal {
		if a.Cmp(&b) >= 0 {
			return a
		}
		return b
	})
	h.method(m, "Min", true, func(a, b int32) int32 { return min(a, b) })
	h.method(m, "Min", true, func(a, b int64) int64 { return min(a, b) })
	h.method(m, "Min", true, func(a, b int) int { return min(a, b) })
	h.method(m, "Min", true, math.Min)
	h.method(m, "Min", true, func(a, b apd.Decimal) apd.Decimal {
		if a.Cmp(&b) <= 0 {
			return a
		}
		return b
	})
	h.method(m, "Round", true, math.RoundToEven)
	h.method(m, "Round", true, func(x float64, digits int) float64 {
		p := math.Pow10(digits)
		return math.RoundToEven(x*p) / p
	})
	h.method(m, "Round", true, func(x apd.Decimal) (apd.Decimal, error) {
		return roundDecimal(x, apd.RoundHalfEven)
	})
	h.method(m, "Floor", true, math.Floor)
	h.method(m, "Floor", true, func(x apd.Decimal) (apd.Decimal, error) {
		return roundDecimal(x, apd.RoundFloor)
	})
	h.method(m, "Ceiling", true, math.Ceil)
	h.method(m, "Ceiling", true, func(x apd.Decimal) (apd.Decimal, error) {
		return roundDecimal(x, apd.RoundCeiling)
	})
	h.method(m, "Truncate", true, math.Trunc)
	h.method(m, "Sqrt", true, math.Sqrt)
	h.method(m, "Pow", true, math.Pow)
	h.method(m, "Sign", true, func(x int32) int { return signOf(x) })
	h.method(m, "Sign", true, func(x int64) int { return signOf(x) })
	h.method(m, "Sign", true, func(x float64) int { return signOf(x) })
	h.method(m, "Sign", true, func(x apd.Decimal) int { return x.Sign() })
}

func absInt[T int32 | int64 | int](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func signOf[T int32 | int64 | float64](x T) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}

func roundDecimal(x apd.Decimal, rounding apd.Rounder) (apd.Decimal, error) {
	ctx := *typeinfo.DecimalContext
	ctx.Rounding = rounding
	var r apd.Decimal
	_, err := ctx.RoundToIntegralValue(&r, &x)
	return r, err
}

func (h *hostTable) addConvertMembers() {
	c := typeinfo.Convert
	h.method(c, "ToInt32", true, func(f float64) (int32, error) {
		r := math.RoundToEven(f)
		if r < math.MinInt32 || r > math.MaxInt32 || math.IsNaN(r) {
			return 0, fmt.Errorf("value %v was either too large or too small for an Int32", f)
		}
		return int32(r), nil
	})
	h.method(c, "ToInt32", true, func(i int64) (int32, error) {
		if i < math.MinInt32 || i > math.MaxInt32 {
			return 0, fmt.Errorf("value %d was either too large or too small for an Int32", i)
		}
		return int32(i), nil
	})
	h.method(c, "ToInt32", true, func(s string) (int32, error) {
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		return int32(i), err
	})
	h.method(c, "ToInt32", true, func(b bool) int32 {
		if b {
			return 1
		}
		return 0
	})
	h.method(c, "ToInt32", true, func(d apd.Decimal) (int32, error) {
		v, err := convertDecimal(d, typeinfo.Int32)
		return int32(v.Int()), err
	})
	h.method(c, "ToInt64", true, func(f float64) (int64, error) {
		r := math.RoundToEven(f)
		if r < math.MinInt64 || r >= math.MaxInt64 || math.IsNaN(r) {
			return 0, fmt.Errorf("value %v was either too large or too small for an Int64", f)
		}
		return int64(r), nil
	})
	h.method(c, "ToInt64", true, func(i int64) int64 { return i })
	h.method(c, "ToInt64", true, func(s string) (int64, error) {
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	})
	h.method(c, "ToInt64", true, func(d apd.Decimal) (int64, error) {
		v, err := convertDecimal(d, typeinfo.Int64)
		return v.Int(), err
	})
	h.method(c, "ToDouble", true, func(f float64) float64 { return f })
	h.method(c, "ToDouble", true, func(i int64) float64 { return float64(i) })
	h.method(c, "ToDouble", true, func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	})
	h.method(c, "ToDouble", true, func(d apd.Decimal) (float64, error) { return d.Float64() })
	h.method(c, "ToDecimal", true, func(f float64) (apd.Decimal, error) {
		var d apd.Decimal
		_, err := d.SetFloat64(f)
		return d, err
	})
	h.method(c, "ToDecimal", true, func(i int64) apd.Decimal { return *apd.New(i, 0) })
	h.method(c, "ToDecimal", true, func(s string) (apd.Decimal, error) {
		d, _, err := apd.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return apd.Decimal{}, err
		}
		return *d, nil
	})
	h.method(c, "ToString", true, func(v any) string {
		return typeinfo.FormatValue(reflect.ValueOf(v))
	})
	h.method(c, "ToBoolean", true, func(s string) (bool, error) {
		return strconv.ParseBool(strings.TrimSpace(s))
	})
	h.method(c, "ToBoolean", true, func(i int64) bool { return i != 0 })
	h.method(c, "ToDateTime", true, parseTime)
}

func convertDecimal(d apd.Decimal, target reflect.Type) (reflect.Value, error) {
	v, err := typeinfo.ConvertValue(reflect.ValueOf(d), target, true)
	if err != nil {
		return reflect.Zero(target), err
	}
	return v, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("string %q was not recognized as a valid DateTime", s)
}

// addCommonMembers adds ToString to every predefined type and MinValue and
// MaxValue to the numeric ones.
func (h *hostTable) addCommonMembers() {
	seen := map[reflect.Type]bool{}
	for _, p := range slices.Concat(typeinfo.Predefined, typeinfo.Aliases) {
		t := p.Type
		if seen[t] || t == typeinfo.Math || t == typeinfo.Convert {
			continue
		}
		seen[t] = true
		toString := reflect.MakeFunc(
			reflect.FuncOf([]reflect.Type{t}, []reflect.Type{typeinfo.String}, false),
			func(args []reflect.Value) []reflect.Value {
				return []reflect.Value{reflect.ValueOf(typeinfo.FormatValue(args[0]))}
			})
		h.method(t, "ToString", false, toString)

		if lo, hi, ok := numericRange(t); ok {
			h.property(t, "MinValue", true, constantFunc(lo))
			h.property(t, "MaxValue", true, constantFunc(hi))
		}
	}
}

func constantFunc(v reflect.Value) reflect.Value {
	return reflect.MakeFunc(
		reflect.FuncOf(nil, []reflect.Type{v.Type()}, false),
		func([]reflect.Value) []reflect.Value { return []reflect.Value{v} })
}

func numericRange(t reflect.Type) (lo, hi reflect.Value, ok bool) {
	lo, hi = reflect.New(t).Elem(), reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		bits := t.Bits()
		lo.SetInt(-1 << (bits - 1))
		hi.SetInt(1<<(bits-1) - 1)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		hi.SetUint(math.MaxUint64 >> (64 - t.Bits()))
	case reflect.Float32:
		lo.SetFloat(-math.MaxFloat32)
		hi.SetFloat(math.MaxFloat32)
	case reflect.Float64:
		lo.SetFloat(-math.MaxFloat64)
		hi.SetFloat(math.MaxFloat64)
	default:
		return lo, hi, false
	}
	return lo, hi, t != typeinfo.Duration
}

var nullableMembers sync.Map

type nullableKey struct {
	t    reflect.Type
	name string
}

// nullableProperty returns the HasValue or Value property of the nullable
// type t.
func nullableProperty(t reflect.Type, name string) (*ast.Method, bool) {
	name = typeinfo.Fold(name)
	if name != "hasvalue" && name != "value" {
		return nil, false
	}
	key := nullableKey{t, name}
	if m, ok := nullableMembers.Load(key); ok {
		return m.(*ast.Method), true
	}
	var fn reflect.Value
	if name == "hasvalue" {
		fn = reflect.MakeFunc(
			reflect.FuncOf([]reflect.Type{t}, []reflect.Type{typeinfo.Bool}, false),
			func(args []reflect.Value) []reflect.Value {
				return []reflect.Value{reflect.ValueOf(!args[0].IsNil())}
			})
		m, _ := nullableMembers.LoadOrStore(key, newHostMethod(t, "HasValue", false, fn))
		return m.(*ast.Method), true
	}
	errType := reflect.TypeFor[error]()
	fn = reflect.MakeFunc(
		reflect.FuncOf([]reflect.Type{t}, []reflect.Type{t.Elem(), errType}, false),
		func(args []reflect.Value) []reflect.Value {
			if args[0].IsNil() {
				return []reflect.Value{reflect.Zero(t.Elem()), reflect.ValueOf(fmt.Errorf("nullable object must have a value"))}
			}
			return []reflect.Value{args[0].Elem(), reflect.Zero(errType)}
		})
	m, _ := nullableMembers.LoadOrStore(key, newHostMethod(t, "Value", false, fn))
	return m.(*ast.Method), true
}

// compareOrdinal is the String.CompareOrdinal method relational operators on
// strings are lowered to.
func compareOrdinal() *ast.Method {
	return hostMembers().lookupMethods(typeinfo.String, true, "CompareOrdinal")[0]
}

func concatMethod() *ast.Method {
	return hostMembers().lookupMethods(typeinfo.String, true, "Concat")[0]
}
