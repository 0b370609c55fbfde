package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/betbot/gorouter/router/types"
)

// newDebugCmd 本地测试 indexer 的调试端点
func newDebugCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "call the debug endpoints of a test indexer",
	}

	var skip bool
	events := &cobra.Command{
		Use:   "event-parsing <tx>",
		Short: "parse the events of a mined transaction",
		Args:  cobra.ExactArgs(1),
		RunE: c.action(func(ctx context.Context, a *app, args []string) error {
			out, err := a.indexer.EventParsing(ctx, args[0], skip)
			if err != nil {
				return err
			}
			return a.print(out)
		}),
	}
	events.Flags().BoolVar(&skip, "skip-processing", false, "only parse, do not process the events")

	order := &cobra.Command{
		Use:   "get-order <id>",
		Short: "fetch an order as stored by the indexer",
		Args:  cobra.ExactArgs(1),
		RunE: c.action(func(ctx context.Context, a *app, args []string) error {
			if args[0] == "" {
				return types.InvalidArgf("empty order id")
			}
			out, err := a.indexer.GetOrder(ctx, args[0])
			if err != nil {
				return err
			}
			return a.print(out)
		}),
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "wipe the test indexer's state",
		Args:  cobra.NoArgs,
		RunE: c.action(func(ctx context.Context, a *app, _ []string) error {
			if err := a.indexer.Reset(ctx); err != nil {
				return err
			}
			log.Info("indexer 已重置")
			return nil
		}),
	}

	cmd.AddCommand(events, order, reset)
	return cmd
}
