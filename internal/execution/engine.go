package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gorouter/internal/metrics"
	"github.com/betbot/gorouter/router/planner"
	"github.com/betbot/gorouter/router/types"
)

var log = logrus.WithField("component", "fill-engine")

// FillEngine: 成交引擎（in-flight 去重 + 规划 + 逐笔提交）。
//
// - 调用方只提交成交请求，不直接处理规划、分组、回滚
// - 同一组订单的并发请求在 in-flight gate 处快速失败
// - 每个请求的状态迁移都记录在 FillResult 中

// Submitter 广播一笔计划内交易并等待回执；链上回滚以 *types.RevertError 返回
type Submitter interface {
	Submit(ctx context.Context, tx types.Transaction) (*types.Receipt, error)
}

// Planner 把成交指令编译成交易序列
type Planner interface {
	Plan(ctx context.Context, items []types.ExecutionItem, opts types.FillOptions) (*types.ExecutionPlan, error)
}

// State 成交请求所处阶段
type State string

const (
	StateValidating         State = "Validating"
	StatePlanning           State = "Planning"
	StateBatched            State = "Batched"
	StatePerOrder           State = "PerOrder"
	StateSubmitted          State = "Submitted"
	StateCompleted          State = "Completed"
	StatePartiallyCompleted State = "PartiallyCompleted"
	StateReverted           State = "Reverted"
	// StateFailed 校验或规划失败，没有交易被发出
	StateFailed State = "Failed"
)

// Terminal 是否终态
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StatePartiallyCompleted, StateReverted, StateFailed:
		return true
	}
	return false
}

// FillRequest 一次成交请求
type FillRequest struct {
	Items   []types.ExecutionItem
	Options types.FillOptions
	// InFlightKey 为空时按排序后的订单 id 计算
	InFlightKey string
}

// FillResult 成交结果，Transitions 按发生顺序记录状态
type FillResult struct {
	ID          string
	State       State
	Transitions []State
	Plan        *types.ExecutionPlan
	Receipts    []*types.Receipt
	Fills       []types.Fill
	Missed      []string          // 执行时被跳过的订单
	Skipped     map[string]string // 规划时被跳过的订单及原因
	Err         error
}

// FillEngine 成交引擎；各请求互不共享状态，可并发调用 Fill
type FillEngine struct {
	planner   Planner
	submitter Submitter
	inFlight  *InFlightDeduper
}

// NewFillEngine 创建成交引擎
func NewFillEngine(p Planner, s Submitter) *FillEngine {
	return &FillEngine{
		planner:   p,
		submitter: s,
		inFlight:  NewInFlightDeduper(30*time.Second, 64),
	}
}

// Fill 执行一次成交请求，返回时已到达终态
func (e *FillEngine) Fill(ctx context.Context, req FillRequest) (*FillResult, error) {
	if e == nil || e.planner == nil || e.submitter == nil {
		return nil, fmt.Errorf("fill engine not initialized")
	}
	if req.InFlightKey == "" {
		req.InFlightKey = OrderSetKey(req.Items)
	}
	if err := e.inFlight.TryAcquire(req.InFlightKey); err != nil {
		return nil, err
	}
	defer e.inFlight.Release(req.InFlightKey)

	res := e.run(ctx, uuid.New().String(), req)
	if res.State == StateFailed || res.State == StateReverted {
		return &res, res.Err
	}
	return &res, nil
}

func (e *FillEngine) run(ctx context.Context, id string, req FillRequest) FillResult {
	res := &FillResult{ID: id}
	metrics.FillRuns.Add(1)

	e.transition(res, StateValidating)
	if err := validate(req); err != nil {
		return e.fail(res, err)
	}

	e.transition(res, StatePlanning)
	plan, err := e.planner.Plan(ctx, req.Items, req.Options)
	if err != nil {
		return e.fail(res, err)
	}
	res.Plan = plan
	res.Skipped = planner.SkipReasons(plan)
	if plan.Mode == types.PlanPerOrder {
		e.transition(res, StatePerOrder)
	} else {
		e.transition(res, StateBatched)
	}

	planned := len(plan.Items())
	var reverts []error
	for i, tx := range plan.Transactions {
		if err := ctx.Err(); err != nil {
			reverts = append(reverts, err)
			break
		}
		receipt, err := e.submitter.Submit(ctx, tx)
		if i == 0 {
			e.transition(res, StateSubmitted)
		}
		if err != nil {
			log.WithField("fill", id).Warnf("交易失败: index=%d to=%s err=%v", i, tx.To.Hex(), err)
			reverts = append(reverts, err)
			if req.Options.RevertIfIncomplete {
				break
			}
			continue
		}
		metrics.TxSubmitted.Add(1)
		metrics.OrdersFilled.Add(int64(len(receipt.Fills)))
		res.Receipts = append(res.Receipts, receipt)
		res.Fills = append(res.Fills, receipt.Fills...)
		res.Missed = append(res.Missed, receipt.Missed...)
	}

	final := StateCompleted
	switch {
	case len(res.Receipts) == 0:
		final = StateReverted
		metrics.FillReverted.Add(1)
	case len(reverts) > 0 || len(res.Missed) > 0 || len(res.Skipped) > 0:
		final = StatePartiallyCompleted
		metrics.FillPartial.Add(1)
	}
	res.Err = errors.Join(reverts...)
	e.transition(res, final)
	log.WithField("fill", id).Infof("成交结束: state=%s planned=%d receipts=%d missed=%d skipped=%d",
		final, planned, len(res.Receipts), len(res.Missed), len(res.Skipped))
	return *res
}

func validate(req FillRequest) error {
	if len(req.Items) == 0 {
		return types.InvalidArgf("no execution items")
	}
	for i, it := range req.Items {
		if it.Order == nil {
			return types.InvalidArgf("item %d has no order", i)
		}
	}
	return nil
}

func (e *FillEngine) fail(res *FillResult, err error) FillResult {
	log.WithField("fill", res.ID).Warnf("成交请求失败: %v", err)
	metrics.FillFailed.Add(1)
	res.Err = err
	e.transition(res, StateFailed)
	return *res
}

func (e *FillEngine) transition(res *FillResult, s State) {
	res.State = s
	res.Transitions = append(res.Transitions, s)
	log.WithField("fill", res.ID).Debugf("状态迁移 -> %s", s)
}
