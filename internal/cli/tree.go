// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/canonical/dynq"
	"github.com/canonical/dynq/ast"
)

type treeOptions struct {
	Data     string
	Args     []string
	Ordering bool
}

// NewTreeCommand creates the tree command.
func NewTreeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &treeOptions{}

	cmd := &cobra.Command{
		Use:   "tree --data <file> <expr>",
		Short: "Print the operation tree of an expression",
		Long: `Print the typed operation tree an expression compiles to against the
record type of a data set. With --ordering the expression is read as a sort
specification such as "Name desc, Age".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "data set file (required)")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "expression value, decoded as YAML (repeatable)")
	cmd.Flags().BoolVar(&opts.Ordering, "ordering", false, "parse the expression as an ordering")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runTree(cmd *cobra.Command, rootOpts *RootOptions, opts *treeOptions, text string) error {
	table, err := LoadTable(opts.Data)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot load data set", err)
	}
	values, err := parseArgs(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid argument", err)
	}

	var sb strings.Builder
	if opts.Ordering {
		orderings, err := dynq.ParseOrdering(table.Type, text, values...)
		if err != nil {
			return WrapExitError(ExitFailure, "cannot parse ordering", err)
		}
		for _, o := range orderings {
			sb.WriteString(o.String())
			sb.WriteString("\n")
			sb.WriteString(indent(ast.Tree(o.Selector)))
		}
	} else {
		l, err := dynq.ParseLambda(table.Type, nil, text, values...)
		if err != nil {
			return WrapExitError(ExitFailure, "cannot parse expression", err)
		}
		sb.WriteString(ast.Tree(l))
	}

	if rootOpts.Format == "json" {
		return encode(cmd.OutOrStdout(), rootOpts.Format, map[string]string{
			"expression": text,
			"tree":       sb.String(),
		})
	}
	_, err = cmd.OutOrStdout().Write([]byte(sb.String()))
	return err
}

// indent prefixes every line of s with two spaces.
func indent(s string) string {
	lines := strings.SplitAfter(s, "\n")
	var sb strings.Builder
	for _, line := range lines {
		if line != "" {
			sb.WriteString("  ")
			sb.WriteString(line)
		}
	}
	return sb.String()
}
