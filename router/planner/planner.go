// Package planner 把一组成交指令编译成路由合约的交易序列
package planner

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gorouter/router/adapters"
	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/types"
)

var log = logrus.WithField("component", "planner")

// Config 路由合约与各协议模块地址
type Config struct {
	Router common.Address
}

// Planner 无状态：同样的输入和链上状态总是得到同样的计划（plan id 除外）
type Planner struct {
	cfg      Config
	registry *adapters.Registry
	state    adapters.ChainState
}

// New 创建 Planner
func New(cfg Config, registry *adapters.Registry, state adapters.ChainState) *Planner {
	return &Planner{cfg: cfg, registry: registry, state: state}
}

// quoted 通过校验并已定价的成交指令
type quoted struct {
	item       types.ExecutionItem
	adapter    adapters.Adapter
	match      *adapters.Matching
	settlement *adapters.Settlement
	feesOnTop  []types.FeeAmount
}

type groupKey struct {
	kind     types.OrderKind
	side     types.Side
	currency common.Address
	channel  common.Address
}

type group struct {
	key   groupKey
	items []quoted
}

// Plan 校验、定价、分组、编码
func (p *Planner) Plan(ctx context.Context, items []types.ExecutionItem, opts types.FillOptions) (*types.ExecutionPlan, error) {
	if len(items) == 0 {
		return nil, types.InvalidArgf("no execution items")
	}
	if opts.Taker == (common.Address{}) {
		return nil, types.InvalidArgf("missing taker")
	}
	plan := &types.ExecutionPlan{
		ID:                 uuid.New().String(),
		RevertIfIncomplete: opts.RevertIfIncomplete,
	}

	var (
		ready    []quoted
		skipped  []types.SkippedItem
		firstErr error
	)
	for i, item := range items {
		q, err := p.quote(ctx, item, opts)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("第 %d 条成交指令无法执行: %w", i, err)
			}
			skipped = append(skipped, types.SkippedItem{Item: item, Reason: err})
			continue
		}
		ready = append(ready, q)
	}
	// 全部不可成交时与 revertIfIncomplete 无关，一律 NoFillableOrders
	if len(ready) == 0 {
		return nil, fmt.Errorf("%w: %d items unfillable: %w", types.ErrNoFillableOrders, len(skipped), firstErr)
	}
	if firstErr != nil && opts.RevertIfIncomplete {
		return nil, firstErr
	}
	for _, s := range skipped {
		log.Infof("跳过订单: order=%s err=%v", orderID(s.Item), s.Reason)
	}
	plan.Skipped = skipped
	plan.RequiredValue = requiredValue(ready)

	groups := groupItems(ready)
	direct := make([]RouterCall, 0, len(groups))
	var directCalls []types.ModuleCall
	directValue := new(big.Int)
	channels := make(map[common.Address]*types.Transaction)
	var channelOrder []common.Address

	for _, g := range groups {
		call, err := p.encodeGroup(g, opts)
		if err != nil {
			return nil, err
		}
		rc := RouterCall{Module: call.Module, Data: call.Data, Value: call.Value}
		if g.key.channel == (common.Address{}) {
			direct = append(direct, rc)
			directCalls = append(directCalls, *call)
			directValue.Add(directValue, call.Value)
			continue
		}
		tx, ok := channels[g.key.channel]
		if !ok {
			channel := g.key.channel
			tx = &types.Transaction{From: opts.Taker, To: channel, Value: new(big.Int), TrustedChannel: &channel, Options: opts}
			channels[channel] = tx
			channelOrder = append(channelOrder, channel)
		}
		tx.Calls = append(tx.Calls, *call)
		tx.Value.Add(tx.Value, call.Value)
	}

	if len(direct) > 0 {
		data, err := EncodeExecute(direct)
		if err != nil {
			return nil, fmt.Errorf("编码 execute 失败: %w", err)
		}
		plan.Transactions = append(plan.Transactions, types.Transaction{
			From: opts.Taker, To: p.cfg.Router, Data: data, Value: directValue, Calls: directCalls, Options: opts,
		})
	}
	for _, channel := range channelOrder {
		tx := channels[channel]
		calls := make([]RouterCall, 0, len(tx.Calls))
		for _, c := range tx.Calls {
			calls = append(calls, RouterCall{Module: c.Module, Data: c.Data, Value: c.Value})
		}
		inner, err := EncodeExecute(calls)
		if err != nil {
			return nil, fmt.Errorf("编码 execute 失败: %w", err)
		}
		tx.Data, err = EncodeForward(p.cfg.Router, inner)
		if err != nil {
			return nil, fmt.Errorf("编码 forwardCall 失败: %w", err)
		}
		plan.Transactions = append(plan.Transactions, *tx)
	}

	plan.Mode = planMode(plan.Transactions)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	log.Infof("计划生成: id=%s mode=%s txs=%d items=%d skipped=%d value=%s",
		plan.ID, plan.Mode, len(plan.Transactions), len(ready), len(plan.Skipped), plan.RequiredValue)
	return plan, nil
}

// requiredValue 原生币卖单的买方成本加 on-top 费用，按定价结果重新累加
func requiredValue(ready []quoted) *big.Int {
	total := new(big.Int)
	for _, q := range ready {
		if q.item.Order.Side != types.SideListing || !types.IsNative(q.settlement.Currency) {
			continue
		}
		total.Add(total, q.settlement.BuyerCost)
		for _, f := range q.feesOnTop {
			total.Add(total, f.Amount)
		}
	}
	return total
}

// planMode 有任一模块调用走 sweep 即为 Batched
func planMode(txs []types.Transaction) types.PlanMode {
	for _, tx := range txs {
		for _, call := range tx.Calls {
			if call.Path == types.PathSweep {
				return types.PlanBatched
			}
		}
	}
	return types.PlanPerOrder
}

func orderID(item types.ExecutionItem) string {
	if item.Order == nil {
		return ""
	}
	return item.Order.ID
}

// quote 单条指令：签名 → 可成交性 → 对手单 → 定价
func (p *Planner) quote(ctx context.Context, item types.ExecutionItem, opts types.FillOptions) (quoted, error) {
	if item.Order == nil {
		return quoted{}, types.InvalidArgf("execution item has no order")
	}
	a, err := p.registry.Get(item.Order.Kind)
	if err != nil {
		return quoted{}, err
	}
	if err := a.CheckSignature(item.Order); err != nil {
		return quoted{}, err
	}
	if err := a.CheckFillability(ctx, item.Order, p.state); err != nil {
		return quoted{}, err
	}
	filled, err := p.state.FilledAmount(ctx, item.Order.Kind, a.Config().Exchange, item.Order.ID)
	if err != nil {
		return quoted{}, fmt.Errorf("读取成交数量失败: %w", err)
	}
	fill := item.FillAmount
	if fill == 0 {
		fill = 1
	}
	if remaining := item.Order.Quantity() - filled; fill > remaining {
		if opts.RevertIfIncomplete {
			return quoted{}, types.InvalidArgf("fill %d exceeds remaining %d of order %s", fill, remaining, item.Order.ID)
		}
		fill = remaining
	}
	taker := item.Taker
	if taker == (common.Address{}) {
		taker = opts.Taker
	}
	m, err := a.BuildMatching(item.Order, adapters.MatchOverrides{
		Taker:     taker,
		Recipient: opts.Recipient(),
		TokenID:   item.TokenID,
		Amount:    fill,
	})
	if err != nil {
		return quoted{}, err
	}
	s, err := a.Quote(item.Order, m, filled)
	if err != nil {
		return quoted{}, err
	}
	item.FillAmount = fill
	item.Taker = taker
	q := quoted{item: item, adapter: a, match: m, settlement: s}
	for _, f := range item.FeesOnTop {
		if f.Amount == nil {
			f.Amount = fees.Amount(s.Price, f.Bps)
		}
		if f.Kind == "" {
			f.Kind = types.FeeKindMarketplace
		}
		q.feesOnTop = append(q.feesOnTop, f)
	}
	q.item.FeesOnTop = q.feesOnTop
	return q, nil
}

// groupItems 按 (协议, 方向, 币种, 可信通道) 分组，保持首次出现的顺序
func groupItems(items []quoted) []*group {
	index := make(map[groupKey]*group)
	var out []*group
	for _, q := range items {
		key := groupKey{kind: q.item.Order.Kind, side: q.item.Order.Side, currency: q.settlement.Currency}
		if q.item.TrustedChannel != nil {
			key.channel = *q.item.TrustedChannel
		}
		g, ok := index[key]
		if !ok {
			g = &group{key: key}
			index[key] = g
			out = append(out, g)
		}
		g.items = append(g.items, q)
	}
	return out
}

// Path 组内路径：协议支持扫单、卖单、至少两单且没有 on-top 费用时走 sweep
func Path(a adapters.Adapter, side types.Side, items []types.ExecutionItem) types.FillPath {
	if !a.SupportsSweep() || side != types.SideListing || len(items) < 2 {
		return types.PathExplicit
	}
	for _, it := range items {
		if len(it.FeesOnTop) > 0 {
			return types.PathExplicit
		}
	}
	return types.PathSweep
}

func method(kind types.OrderKind, side types.Side, path types.FillPath) string {
	switch {
	case kind == types.OrderKindNftx && side == types.SideListing:
		return MethodBuyWithETH
	case kind == types.OrderKindNftx:
		return MethodSell
	case side == types.SideBid:
		return MethodAcceptOffers
	case path == types.PathSweep:
		return MethodSweepCollection
	default:
		return MethodFillOrders
	}
}

func (p *Planner) encodeGroup(g *group, opts types.FillOptions) (*types.ModuleCall, error) {
	a := g.items[0].adapter
	execItems := make([]types.ExecutionItem, 0, len(g.items))
	for _, q := range g.items {
		execItems = append(execItems, q.item)
	}
	path := Path(a, g.key.side, execItems)
	name := method(g.key.kind, g.key.side, path)

	orders := make([]OrderData, 0, len(g.items))
	var onTop []Fee
	cost := new(big.Int)
	for _, q := range g.items {
		encoded, err := a.Encode(q.item.Order)
		if err != nil {
			return nil, err
		}
		od := OrderData{
			Order:     encoded,
			Signature: q.item.Order.Signature,
			Amount:    new(big.Int).SetUint64(q.match.Amount),
			TokenID:   new(big.Int),
		}
		if od.Signature == nil {
			od.Signature = []byte{}
		}
		if q.match.TokenID != nil {
			od.TokenID.Set(q.match.TokenID)
		}
		for _, h := range q.match.Proof {
			od.Proof = append(od.Proof, h)
		}
		if od.Proof == nil {
			od.Proof = [][32]byte{}
		}
		orders = append(orders, od)
		if g.key.side == types.SideListing {
			cost.Add(cost, q.settlement.BuyerCost)
		}
		for _, f := range q.feesOnTop {
			onTop = append(onTop, Fee{Recipient: f.Recipient, Amount: f.Amount})
			if g.key.side == types.SideListing {
				cost.Add(cost, f.Amount)
			}
		}
	}

	params := ExecutionParams{
		FillTo:             opts.Recipient(),
		RefundTo:           opts.Refund(),
		RevertIfIncomplete: opts.RevertIfIncomplete,
		Currency:           g.key.currency,
		Amount:             cost,
	}
	data, err := EncodeModuleCall(name, orders, params, onTop)
	if err != nil {
		return nil, fmt.Errorf("编码 %s.%s 失败: %w", g.key.kind, name, err)
	}
	value := new(big.Int)
	if types.IsNative(g.key.currency) {
		value.Set(cost)
	}
	return &types.ModuleCall{
		Module:   a.Config().Module,
		Kind:     g.key.kind,
		Side:     g.key.side,
		Currency: g.key.currency,
		Method:   name,
		Path:     path,
		Items:    execItems,
		Data:     data,
		Value:    value,
	}, nil
}

// SkipReasons 订单 id → 跳过原因，不可成交以外的错误直接给出错误文本
func SkipReasons(plan *types.ExecutionPlan) map[string]string {
	out := make(map[string]string, len(plan.Skipped))
	for _, s := range plan.Skipped {
		id := ""
		if s.Item.Order != nil {
			id = s.Item.Order.ID
		}
		if reason, ok := types.UnfillableReasonOf(s.Reason); ok {
			out[id] = string(reason)
			continue
		}
		out[id] = s.Reason.Error()
	}
	return out
}
