// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"

	"github.com/canonical/dynq"
	"github.com/canonical/dynq/ast"
)

// CheckResult is the outcome of compiling one expression.
type CheckResult struct {
	Expression string `json:"expression" yaml:"expression"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	Tree       string `json:"tree,omitempty" yaml:"tree,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	// Pos is the offset of a parse error in the expression.
	Pos *int `json:"pos,omitempty" yaml:"pos,omitempty"`
}

type checkOptions struct {
	Data string
	Args []string
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check --data <file> <expr>...",
		Short: "Compile expressions against a data set",
		Long: `Compile every expression against the record type of a data set and
print its operation tree, or the error and the offset where it was found.

Expressions are compiled in parallel, --workers at a time.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, rootOpts, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "data set file (required)")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "expression value, decoded as YAML (repeatable)")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runCheck(cmd *cobra.Command, rootOpts *RootOptions, opts *checkOptions, exprs []string) error {
	table, err := LoadTable(opts.Data)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot load data set", err)
	}
	values, err := parseArgs(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid argument", err)
	}

	workers := rootOpts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results, err := checkAll(table, exprs, values, workers)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot run checks", err)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if rootOpts.Format == "json" {
		err = encode(cmd.OutOrStdout(), rootOpts.Format, results)
	} else {
		err = writeCheckResults(cmd.OutOrStdout(), results)
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d expressions failed", failed, len(results)))
	}
	return nil
}

// checkAll compiles the expressions on a pool of the given size. The results
// are in the order of exprs.
func checkAll(table *Table, exprs []string, values []any, workers int) ([]CheckResult, error) {
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		slog.Error("check panicked", "panic", v)
	}))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	results := make([]CheckResult, len(exprs))
	var wg sync.WaitGroup
	for i, text := range exprs {
		results[i] = CheckResult{Expression: text, Error: "not checked"}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i] = check(table, text, values)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}
	wg.Wait()
	return results, nil
}

func check(table *Table, text string, values []any) CheckResult {
	r := CheckResult{Expression: text}
	l, err := dynq.ParseLambda(table.Type, nil, text, values...)
	if err != nil {
		var perr *dynq.ParseError
		if errors.As(err, &perr) {
			r.Error = perr.Msg
			r.Pos = &perr.Pos
		} else {
			r.Error = err.Error()
		}
		slog.Debug("expression failed", "expression", text, "error", err)
		return r
	}
	r.Type = ast.TypeName(l.Body.Type())
	r.Tree = ast.Tree(l.Body)
	return r
}

func writeCheckResults(w io.Writer, results []CheckResult) error {
	for _, r := range results {
		if r.Error != "" {
			pos := -1
			if r.Pos != nil {
				pos = *r.Pos
			}
			if _, err := fmt.Fprintf(w, "%s\n  error at index %d: %s\n", r.Expression, pos, r.Error); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\n%s", r.Expression, indent(r.Tree)); err != nil {
			return err
		}
	}
	return nil
}
