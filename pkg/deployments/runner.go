package deployments

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gorouter/router/types"
)

var log = logrus.WithField("component", "deployments")

// ErrAlreadyDeployed 同一合约版本在该链已有记录
var ErrAlreadyDeployed = errors.New("already deployed")

// Deployer 实际部署合约，返回新地址
type Deployer interface {
	Deploy(ctx context.Context, contract, version string, args []any) (common.Address, error)
}

// Target 一个部署目标
type Target struct {
	Contract string
	Version  string
	Args     []any
}

func (t Target) String() string { return t.Contract + "@" + t.Version }

// Failure 批量部署中失败的目标
type Failure struct {
	Target Target
	Err    error
}

// Runner 检查记录后部署并写回记录
type Runner struct {
	store    *Store
	deployer Deployer
	chainID  int64
}

func NewRunner(store *Store, deployer Deployer, chainID int64) *Runner {
	return &Runner{store: store, deployer: deployer, chainID: chainID}
}

// Deploy 参数含零值或已有记录时拒绝部署
func (r *Runner) Deploy(ctx context.Context, t Target) (common.Address, error) {
	for i, arg := range t.Args {
		if isZeroArg(arg) {
			return common.Address{}, types.InvalidArgf("%s: argument %d is empty", t, i)
		}
	}
	if addr, ok := r.store.Lookup(t.Contract, t.Version, r.chainID); ok {
		return addr, fmt.Errorf("%w: version %s of %s on chain %d at %s", ErrAlreadyDeployed, t.Version, t.Contract, r.chainID, addr.Hex())
	}
	addr, err := r.deployer.Deploy(ctx, t.Contract, t.Version, t.Args)
	if err != nil {
		return common.Address{}, fmt.Errorf("部署 %s 失败: %w", t, err)
	}
	if err := r.store.Put(t.Contract, t.Version, r.chainID, addr); err != nil {
		return addr, err
	}
	log.Infof("%s 版本 %s 已部署在链 %d: %s", t.Contract, t.Version, r.chainID, addr.Hex())
	return addr, nil
}

// RunAll 逐个部署，失败只记录并继续；ctx 取消后剩余目标全部记为失败
func (r *Runner) RunAll(ctx context.Context, targets []Target) []Failure {
	var failures []Failure
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			failures = append(failures, Failure{Target: t, Err: err})
			continue
		}
		if _, err := r.Deploy(ctx, t); err != nil {
			log.Warnf("部署 %s 失败，继续下一个: %v", t, err)
			failures = append(failures, Failure{Target: t, Err: err})
		}
	}
	return failures
}

func isZeroArg(arg any) bool {
	switch v := arg.(type) {
	case nil:
		return true
	case common.Address:
		return v == common.Address{}
	case common.Hash:
		return v == common.Hash{}
	case [32]byte:
		return v == [32]byte{}
	case string:
		return v == ""
	case *big.Int:
		return v == nil || v.Sign() == 0
	case bool:
		return !v
	}
	return false
}
