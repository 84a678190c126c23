package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"parseltongue/internal/isg"
)

var queryEdgeTypes []string
var queryMaxHops int

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a Q1-Q7 read query against the Interface Signature Graph",
}

var queryForwardCmd = &cobra.Command{
	Use:   "forward <key>",
	Short: "Q1: direct forward dependencies of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		keys, err := app.queryEng.Forward(args[0], parseEdgeTypes(queryEdgeTypes))
		if err != nil {
			return classifyEntityError(err)
		}
		printKeys(keys)
		return nil
	},
}

var queryReverseCmd = &cobra.Command{
	Use:   "reverse <key>",
	Short: "Q2: direct reverse dependencies of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		keys, err := app.queryEng.Reverse(args[0], parseEdgeTypes(queryEdgeTypes))
		if err != nil {
			return classifyEntityError(err)
		}
		printKeys(keys)
		return nil
	},
}

var queryBlastRadiusCmd = &cobra.Command{
	Use:   "blast-radius <key>",
	Short: "Q3: every entity within H hops of an entity, with min distance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		results, err := app.queryEng.BlastRadius(ctx, args[0], queryMaxHops, parseEdgeTypes(queryEdgeTypes))
		if err != nil {
			return classifyEntityError(err)
		}
		for _, r := range results {
			fmt.Printf("%d\t%s\n", r.Distance, r.Key)
		}
		return nil
	},
}

var queryClosureCmd = &cobra.Command{
	Use:   "closure <key>",
	Short: "Q4: unbounded transitive closure from an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		keys, err := app.queryEng.TransitiveClosure(ctx, args[0], parseEdgeTypes(queryEdgeTypes))
		if err != nil {
			return classifyEntityError(err)
		}
		printKeys(keys)
		return nil
	},
}

var queryContainsCmd = &cobra.Command{
	Use:   "contains <file-path>",
	Short: "Q5: every entity declared in a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		printKeys(app.queryEng.EntitiesInFile(args[0]))
		return nil
	},
}

var queryImplementsCmd = &cobra.Command{
	Use:   "implements <interface-key>",
	Short: "Q6: every entity with a direct Implements edge into this key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		keys, err := app.queryEng.WhoImplements(args[0])
		if err != nil {
			return classifyEntityError(err)
		}
		printKeys(keys)
		return nil
	},
}

var queryCyclesCmd = &cobra.Command{
	Use:   "cycles [root-key...]",
	Short: "Q7: strongly connected components of size >= 2, plus self-loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		cycles, err := app.queryEng.Cycles(args)
		if err != nil {
			return classifyEntityError(err)
		}
		if len(cycles) == 0 {
			fmt.Println("no cycles found")
			return nil
		}
		for i, c := range cycles {
			fmt.Printf("cycle %d: %s\n", i+1, strings.Join(c.Keys, " -> "))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{queryForwardCmd, queryReverseCmd, queryBlastRadiusCmd, queryClosureCmd} {
		c.Flags().StringSliceVar(&queryEdgeTypes, "type", nil, "Restrict to these edge types (Calls,Implements,Uses,Contains,Inherits); default all")
	}
	queryBlastRadiusCmd.Flags().IntVar(&queryMaxHops, "hops", 3, "Maximum hop count (1-10)")

	queryCmd.AddCommand(
		queryForwardCmd,
		queryReverseCmd,
		queryBlastRadiusCmd,
		queryClosureCmd,
		queryContainsCmd,
		queryImplementsCmd,
		queryCyclesCmd,
	)
}

func parseEdgeTypes(raw []string) []isg.EdgeType {
	if len(raw) == 0 {
		return nil
	}
	out := make([]isg.EdgeType, 0, len(raw))
	for _, r := range raw {
		out = append(out, isg.EdgeType(r))
	}
	return out
}

func printKeys(keys []string) {
	if len(keys) == 0 {
		fmt.Println("(no results)")
		return
	}
	for _, k := range keys {
		fmt.Println(k)
	}
}
