// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/canonical/dynq"
)

func runQueryCommand(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs(append([]string{"--data", peopleData}, args...))
	return buf, cmd.Execute()
}

func TestQueryWhereOrderSelect(t *testing.T) {
	buf, err := runQueryCommand(t, "yaml",
		"--where", "Age > 18",
		"--order", "Name desc",
		"--select", "new(Name, Age)")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &rows))
	assert.Equal(t, []map[string]any{
		{"Name": "Carol", "Age": 19},
		{"Name": "Alice", "Age": 30},
	}, rows)
}

func TestQueryArgs(t *testing.T) {
	buf, err := runQueryCommand(t, "json",
		"--where", "Team == @0",
		"--where", "Score != null",
		"--arg", "eng",
		"--select", "Name")
	require.NoError(t, err)

	var names []string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &names))
	assert.Equal(t, []string{"Alice", "Carol"}, names)
}

func TestQueryPage(t *testing.T) {
	buf, err := runQueryCommand(t, "json",
		"--select", "new(Name, Age)",
		"--sort", "Age",
		"--dir", "DESC",
		"--start", "1",
		"--limit", "1")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	assert.Equal(t, []map[string]any{{"Name": "Carol", "Age": 19.0}}, rows)
}

func TestQueryGroup(t *testing.T) {
	buf, err := runQueryCommand(t, "yaml",
		"--group-key", "Team",
		"--group-elem", "Name",
		"--order", "Key",
		"--select", "new(Key as Team, Items.Count() as Count)")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &rows))
	assert.Equal(t, []map[string]any{
		{"Team": "eng", "Count": 2},
		{"Team": "ops", "Count": 1},
	}, rows)
}

func TestQueryParseError(t *testing.T) {
	_, err := runQueryCommand(t, "yaml", "--where", "Age >")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var perr *dynq.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "expression expected", perr.Msg)
	assert.Equal(t, 5, perr.Pos)
}

func TestQueryDirNeedsSort(t *testing.T) {
	_, err := runQueryCommand(t, "yaml", "--dir", "desc")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "--dir needs --sort")
}

func TestQueryMissingData(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "yaml"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--data", "testdata/missing.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "cannot load data set")
}
