package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/betbot/gorouter/pkg/deployments"
	"github.com/betbot/gorouter/router/chain"
	"github.com/betbot/gorouter/router/types"
)

var errNeedsNode = errors.New("this command needs a live node; unset DRY_RUN")

// targetSpec 批量部署文件中的一项，参数按构造函数类型解析
type targetSpec struct {
	Contract string   `yaml:"contract"`
	Version  string   `yaml:"version"`
	Args     []string `yaml:"args"`
}

// withStore 打开部署记录；live 为 true 时要求已连接节点
func withStore(c *cli, live bool, fn func(ctx context.Context, a *app, store *deployments.Store) error) func(*cobra.Command, []string) error {
	return c.action(func(ctx context.Context, a *app, _ []string) error {
		if live && a.sender == nil {
			return errNeedsNode
		}
		store, err := deployments.Open(a.cfg.DeploymentsFile)
		if err != nil {
			return err
		}
		return fn(ctx, a, store)
	})
}

func newDeploymentsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "list and record contract deployments",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "print recorded deployments",
		Args:  cobra.NoArgs,
		RunE: withStore(c, false, func(_ context.Context, a *app, store *deployments.Store) error {
			return a.print(store.Records())
		}),
	}, newDeployOneCmd(c), newDeployBatchCmd(c), newConduitCmd(c), newZoneCmd(c))
	return cmd
}

func newDeployOneCmd(c *cli) *cobra.Command {
	var (
		spec      targetSpec
		artifacts string
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "deploy one contract from its artifact",
		Args:  cobra.NoArgs,
		RunE: withStore(c, true, func(ctx context.Context, a *app, store *deployments.Store) error {
			if spec.Contract == "" {
				return types.InvalidArgf("deploy requires --contract")
			}
			deployer := deployments.NewArtifactDeployer(artifacts, a.sender)
			target, err := resolveTarget(deployer, spec)
			if err != nil {
				return err
			}
			addr, err := deployments.NewRunner(store, deployer, a.cfg.ChainID).Deploy(ctx, target)
			if err != nil {
				return err
			}
			return a.print(map[string]string{"contract": spec.Contract, "version": spec.Version, "address": addr.Hex()})
		}),
	}
	cmd.Flags().StringVar(&spec.Contract, "contract", "", "contract name (artifact file name)")
	cmd.Flags().StringVar(&spec.Version, "version", "v1", "deployment version")
	cmd.Flags().StringArrayVar(&spec.Args, "arg", nil, "constructor argument (repeatable)")
	cmd.Flags().StringVar(&artifacts, "artifacts", "artifacts", "directory with <contract>.json artifacts")
	return cmd
}

// newDeployBatchCmd 逐个部署，单个失败不影响其他目标
func newDeployBatchCmd(c *cli) *cobra.Command {
	var file, artifacts string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "deploy every target listed in a YAML file",
		Args:  cobra.NoArgs,
		RunE: withStore(c, true, func(ctx context.Context, a *app, store *deployments.Store) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("读取部署目标失败: %w", err)
			}
			var specs []targetSpec
			if err := yaml.Unmarshal(raw, &specs); err != nil {
				return types.InvalidArgf("targets file: %v", err)
			}
			deployer := deployments.NewArtifactDeployer(artifacts, a.sender)
			runner := deployments.NewRunner(store, deployer, a.cfg.ChainID)

			var (
				targets  []deployments.Target
				failures []deployments.Failure
			)
			for _, spec := range specs {
				t, err := resolveTarget(deployer, spec)
				if err != nil {
					failures = append(failures, deployments.Failure{Target: deployments.Target{Contract: spec.Contract, Version: spec.Version}, Err: err})
					continue
				}
				targets = append(targets, t)
			}
			failures = append(failures, runner.RunAll(ctx, targets)...)
			for _, f := range failures {
				fmt.Fprintf(a.out, "failed: %s: %v\n", f.Target, f.Err)
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d deployments failed", len(failures), len(specs))
			}
			return a.print(store.Records())
		}),
	}
	cmd.Flags().StringVar(&file, "targets", "", "YAML list of {contract, version, args}")
	cmd.Flags().StringVar(&artifacts, "artifacts", "artifacts", "directory with <contract>.json artifacts")
	_ = cmd.MarkFlagRequired("targets")
	return cmd
}

func resolveTarget(d *deployments.ArtifactDeployer, spec targetSpec) (deployments.Target, error) {
	artifact, err := d.Artifact(spec.Contract)
	if err != nil {
		return deployments.Target{}, err
	}
	args, err := deployments.ParseArgs(artifact.ABI.Constructor.Inputs, spec.Args)
	if err != nil {
		return deployments.Target{}, err
	}
	return deployments.Target{Contract: spec.Contract, Version: spec.Version, Args: args}, nil
}

// newConduitCmd 创建发送者自己的 conduit 并为路由模块开放 channel
func newConduitCmd(c *cli) *cobra.Command {
	var (
		controller, key string
		channels        []string
	)
	cmd := &cobra.Command{
		Use:   "conduit",
		Short: "create the sender's Seaport conduit and open channels",
		Args:  cobra.NoArgs,
		RunE: withStore(c, true, func(ctx context.Context, a *app, _ *deployments.Store) error {
			if !common.IsHexAddress(controller) {
				return types.InvalidArgf("conduit requires --controller")
			}
			s := a.sender
			conduitKey := chain.ConduitKeyFor(s.From())
			if key != "" {
				conduitKey = common.HexToHash(key)
			}
			ctl := common.HexToAddress(controller)
			conduit, err := s.EnsureConduit(ctx, ctl, conduitKey)
			if err != nil {
				return err
			}
			for _, ch := range channels {
				if !common.IsHexAddress(ch) {
					return types.InvalidArgf("channel %q", ch)
				}
				if err := s.OpenChannel(ctx, ctl, conduit, common.HexToAddress(ch)); err != nil {
					return err
				}
			}
			return a.print(map[string]string{"conduit": conduit.Hex(), "conduitKey": conduitKey.Hex()})
		}),
	}
	cmd.Flags().StringVar(&controller, "controller", "", "Seaport ConduitController address")
	cmd.Flags().StringVar(&key, "key", "", "conduit key (default: sender address + 12 zero bytes)")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "channel to open (repeatable)")
	return cmd
}

func newZoneCmd(c *cli) *cobra.Command {
	var factory, salt string
	cmd := &cobra.Command{
		Use:   "zone",
		Short: "create a zone through its factory",
		Args:  cobra.NoArgs,
		RunE: withStore(c, true, func(ctx context.Context, a *app, _ *deployments.Store) error {
			if !common.IsHexAddress(factory) {
				return types.InvalidArgf("zone requires --factory")
			}
			zone, err := a.sender.EnsureZone(ctx, common.HexToAddress(factory), common.HexToHash(salt))
			if err != nil {
				return err
			}
			return a.print(map[string]string{"zone": zone.Hex()})
		}),
	}
	cmd.Flags().StringVar(&factory, "factory", "", "zone factory address")
	cmd.Flags().StringVar(&salt, "salt", "", "zone salt (bytes32)")
	return cmd
}
