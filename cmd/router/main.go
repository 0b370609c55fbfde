// router 命令行：经 indexer 下单 / 成交 / 取消，本地签单成交，以及部署记录管理
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/betbot/gorouter/internal/metrics"
	"github.com/betbot/gorouter/pkg/config"
	"github.com/betbot/gorouter/pkg/sigchan"
	"github.com/betbot/gorouter/router/indexer"
	"github.com/betbot/gorouter/router/types"
)

// cli 各子命令共享的配置路径与依赖
type cli struct {
	configPath string
	debugAddr  string
	out        io.Writer
	app        *app
}

// action 加载配置、初始化依赖后执行命令
func (c *cli) action(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}
		a, err := newApp(cmd.Context(), cfg, c.out)
		if err != nil {
			return err
		}
		c.app = a
		if c.debugAddr != "" {
			if _, err := metrics.StartAsync(cmd.Context(), c.debugAddr); err != nil {
				return fmt.Errorf("启动 debug 服务失败: %w", err)
			}
		}
		return fn(cmd.Context(), a, args)
	}
}

func (c *cli) close() {
	if c.app != nil {
		c.app.close()
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "router",
		Short: "NFT order router: indexer-driven orders, local fills and deployments",
		Long: `router 命令行

经 indexer 下单、成交、取消；本地构造并签名订单后经路由合约成交；
管理合约部署记录。DRY_RUN=true 时不连接节点，交易在本地模拟。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return types.InvalidArgf("unknown command %q", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return types.InvalidArgf("missing command")
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("ROUTER_CONFIG"), "YAML or JSON config file")
	root.PersistentFlags().StringVar(&c.debugAddr, "debug-addr", "", "serve /debug/vars and pprof on this address while the command runs")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return types.InvalidArgf("%v", err)
	})

	root.AddCommand(
		newBidCmd(c),
		newFillCmd(c, "buy", "buy listings through the indexer", (*indexer.Client).Buy),
		newFillCmd(c, "sell", "sell into bids through the indexer", (*indexer.Client).Sell),
		newCancelCmd(c),
		newPresignCmd(c),
		newLocalFillCmd(c),
		newDeploymentsCmd(c),
		newDebugCmd(c),
	)
	return root
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Ctrl+C 之后不再开始新的步骤
	ctx, cancel := sigchan.WithCancel(context.Background(), func() {
		log.Warn("收到中断信号，当前步骤完成后停止")
	}, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := &cli{out: stdout}
	defer c.close()

	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmd.CommandPath(), err)
		return exitCode(err)
	}
	return 0
}

// exitCode 参数错误 2，取消 130，其他 1
func exitCode(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	}
	return 1
}
