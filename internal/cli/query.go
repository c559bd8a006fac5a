// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/canonical/dynq"
)

// QueryOptions holds the flags of the query command.
type QueryOptions struct {
	Data      string
	Where     []string
	Order     string
	Select    string
	GroupKey  string
	GroupElem string
	Start     int
	Limit     int
	Sort      string
	Dir       string
	Args      []string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query --data <file>",
		Short: "Run a query over a data set",
		Long: `Run a query over the records of a data set and print the result.

The steps are applied in order: every --where filter, the grouping, the
--order sort, the --select projection, then --sort/--dir and the page given
by --start and --limit. Values given with --arg are in scope as @0, @1, ...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var start, limit *int
			if cmd.Flags().Changed("start") {
				start = &opts.Start
			}
			if cmd.Flags().Changed("limit") {
				limit = &opts.Limit
			}
			return runQuery(cmd, rootOpts, opts, start, limit)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "data set file (required)")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter expression (repeatable)")
	cmd.Flags().StringVar(&opts.Order, "order", "", "ordering, e.g. \"Name desc, Age\"")
	cmd.Flags().StringVar(&opts.Select, "select", "", "projection, e.g. \"new(Name, Age)\"")
	cmd.Flags().StringVar(&opts.GroupKey, "group-key", "", "grouping key expression")
	cmd.Flags().StringVar(&opts.GroupElem, "group-elem", "it", "grouped element expression")
	cmd.Flags().IntVar(&opts.Start, "start", 0, "number of records to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort key applied last")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "sort direction (asc|desc)")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "expression value, decoded as YAML (repeatable)")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runQuery(cmd *cobra.Command, rootOpts *RootOptions, opts *QueryOptions, start, limit *int) error {
	table, err := LoadTable(opts.Data)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot load data set", err)
	}
	slog.Debug("loaded data set", "path", opts.Data, "records", table.Rows.Len())
	values, err := parseArgs(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid argument", err)
	}

	seq, err := buildQuery(table, opts, values, start, limit)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid query", err)
	}
	result, err := seq.(dynq.Executor).Execute()
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	slog.Debug("query complete", "records", result.Len())
	return encode(cmd.OutOrStdout(), rootOpts.Format, result.Interface())
}

func buildQuery(table *Table, opts *QueryOptions, values []any, start, limit *int) (dynq.Queryable, error) {
	var seq dynq.Queryable
	seq, err := dynq.FromSlice(table.Rows.Interface())
	if err != nil {
		return nil, err
	}
	for _, where := range opts.Where {
		if seq, err = dynq.Where(seq, where, values...); err != nil {
			return nil, err
		}
	}
	if opts.GroupKey != "" {
		if seq, err = dynq.GroupBy(seq, opts.GroupKey, opts.GroupElem, values...); err != nil {
			return nil, err
		}
	}
	if opts.Order != "" {
		if seq, err = dynq.OrderBy(seq, opts.Order, values...); err != nil {
			return nil, err
		}
	}
	if opts.Select != "" {
		if seq, err = dynq.Select(seq, opts.Select, values...); err != nil {
			return nil, err
		}
	}
	if opts.Dir != "" && opts.Sort == "" {
		return nil, errors.New("--dir needs --sort")
	}
	return dynq.AppendPageSort(seq, start, limit, opts.Sort, opts.Dir)
}
