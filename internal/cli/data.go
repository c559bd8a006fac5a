// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/canonical/dynq"
	"github.com/canonical/dynq/internal/typeinfo"
)

// Field declares one field of the records in a data set. Type is the name of
// a predefined type such as Int32, String or DateTime, with a trailing "?"
// for its nullable form.
type Field struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// DataSet is the content of a data file.
type DataSet struct {
	Fields  []Field          `yaml:"fields"`
	Records []map[string]any `yaml:"records"`
}

// Table holds the records of a data set as values of a record type made
// for its fields.
type Table struct {
	Type reflect.Type
	// Rows is a slice of Type.
	Rows reflect.Value
}

// LoadTable reads the data file at path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ds DataSet
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("cannot parse data set %s: %w", path, err)
	}
	return ds.Table()
}

// Table builds the record type of the data set and decodes its records.
func (ds *DataSet) Table() (*Table, error) {
	if len(ds.Fields) == 0 {
		return nil, fmt.Errorf("data set has no fields")
	}
	props := make([]dynq.DynamicProperty, len(ds.Fields))
	index := make(map[string]int, len(ds.Fields))
	for i, f := range ds.Fields {
		t, err := fieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		props[i] = dynq.DynamicProperty{Name: f.Name, Type: t}
		index[f.Name] = i
	}
	t, err := dynq.CreateClass(props...)
	if err != nil {
		return nil, err
	}

	rows := reflect.MakeSlice(reflect.SliceOf(t), len(ds.Records), len(ds.Records))
	for i, rec := range ds.Records {
		for name := range rec {
			if _, ok := index[name]; !ok {
				return nil, fmt.Errorf("record %d: unknown field %q", i, name)
			}
		}
		for j, p := range props {
			v, err := decodeValue(rec[p.Name], p.Type)
			if err != nil {
				return nil, fmt.Errorf("record %d: field %q: %w", i, p.Name, err)
			}
			rows.Index(i).Field(j).Set(v)
		}
	}
	return &Table{Type: t, Rows: rows}, nil
}

func fieldType(name string) (reflect.Type, error) {
	base, nullable := strings.CutSuffix(name, "?")
	for _, p := range slices.Concat(typeinfo.Predefined, typeinfo.Aliases) {
		if typeinfo.Fold(p.Name) != typeinfo.Fold(base) {
			continue
		}
		if p.Type == typeinfo.Math || p.Type == typeinfo.Convert {
			break
		}
		if !nullable {
			return p.Type, nil
		}
		t, ok := typeinfo.Nullable(p.Type)
		if !ok {
			return nil, fmt.Errorf("type %q has no nullable form", base)
		}
		return t, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

// decodeValue converts a value decoded from YAML to the type t.
func decodeValue(raw any, t reflect.Type) (reflect.Value, error) {
	if raw == nil {
		if typeinfo.IsNilable(t) {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("missing value for %s", typeinfo.TypeName(t))
	}
	base := typeinfo.NonNullable(t)
	var v reflect.Value
	switch base {
	case typeinfo.String:
		v = reflect.ValueOf(fmt.Sprint(raw))
	case typeinfo.Decimal:
		d, _, err := apd.NewFromString(fmt.Sprint(raw))
		if err != nil {
			return reflect.Value{}, err
		}
		v = typeinfo.NewDecimal(d)
	case typeinfo.UUID:
		u, err := uuid.Parse(fmt.Sprint(raw))
		if err != nil {
			return reflect.Value{}, err
		}
		v = reflect.ValueOf(u)
	case typeinfo.Time:
		switch x := raw.(type) {
		case time.Time:
			v = reflect.ValueOf(x)
		default:
			s := fmt.Sprint(raw)
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				if ts, err = time.Parse(time.DateOnly, s); err != nil {
					return reflect.Value{}, fmt.Errorf("cannot parse %q as a date", s)
				}
			}
			v = reflect.ValueOf(ts)
		}
	case typeinfo.Duration:
		d, err := time.ParseDuration(fmt.Sprint(raw))
		if err != nil {
			return reflect.Value{}, err
		}
		v = reflect.ValueOf(d)
	default:
		var err error
		v, err = typeinfo.ConvertValue(reflect.ValueOf(raw), base, true)
		if err != nil {
			return reflect.Value{}, err
		}
	}
	return typeinfo.ConvertValue(v, t, false)
}

// parseArgs decodes the --arg values as YAML scalars, so that 18 is an
// integer and "18" a string.
func parseArgs(args []string) ([]any, error) {
	values := make([]any, len(args))
	for i, arg := range args {
		if err := yaml.Unmarshal([]byte(arg), &values[i]); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return values, nil
}
