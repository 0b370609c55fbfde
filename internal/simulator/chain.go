package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gorouter/router/adapters"
	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/planner"
	"github.com/betbot/gorouter/router/types"
)

var log = logrus.WithField("component", "simulator")

// errInsufficientValue 路由合约收到的原生币不够支付，整笔交易回滚
var errInsufficientValue = errors.New("insufficient msg.value")

// Chain 按路由合约语义执行计划中的交易
type Chain struct {
	ledger     *Ledger
	registry   *adapters.Registry
	router     common.Address
	forwarders map[common.Address]bool
	block      atomic.Uint64
}

// NewChain forwarders 为可信转发合约
func NewChain(ledger *Ledger, registry *adapters.Registry, router common.Address, forwarders ...common.Address) *Chain {
	c := &Chain{
		ledger:     ledger,
		registry:   registry,
		router:     router,
		forwarders: make(map[common.Address]bool, len(forwarders)),
	}
	for _, f := range forwarders {
		c.forwarders[f] = true
	}
	return c
}

// Ledger 底层账本
func (c *Chain) Ledger() *Ledger { return c.ledger }

// Submit 执行并返回回执，回滚时返回 *types.RevertError
func (c *Chain) Submit(ctx context.Context, tx types.Transaction) (*types.Receipt, error) {
	return c.Execute(ctx, tx)
}

// Execute 快照 → 逐个模块调用 → 退款 → 校验路由余额归零；任一步失败整体回滚
func (c *Chain) Execute(ctx context.Context, tx types.Transaction) (*types.Receipt, error) {
	block := c.block.Add(1)
	hash := crypto.Keccak256Hash(new(big.Int).SetUint64(block).Bytes(), tx.From.Bytes(), tx.Data)

	c.ledger.mu.Lock()
	defer c.ledger.mu.Unlock()
	st := c.ledger.st.clone()

	revert := func(reason string) (*types.Receipt, error) {
		log.Warnf("交易回滚: tx=%s reason=%s", hash.Hex(), reason)
		return nil, &types.RevertError{TxHash: hash.Hex(), Reason: reason}
	}

	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	if err := st.transfer(types.NativeCurrency, tx.From, c.router, value); err != nil {
		return revert(err.Error())
	}

	data := tx.Data
	if planner.IsForward(data) {
		if !c.forwarders[tx.To] {
			return revert("untrusted forwarder " + tx.To.Hex())
		}
		target, inner, err := planner.DecodeForward(data)
		if err != nil {
			return revert(err.Error())
		}
		if target != c.router {
			return revert("forward target is not the router")
		}
		data = inner
	} else if tx.To != c.router {
		return revert("unknown call target " + tx.To.Hex())
	}

	calls, err := planner.DecodeExecute(data)
	if err != nil {
		return revert(err.Error())
	}
	if len(calls) != len(tx.Calls) {
		return revert(fmt.Sprintf("execute carries %d calls, plan has %d", len(calls), len(tx.Calls)))
	}

	receipt := &types.Receipt{TxHash: hash, BlockNumber: block}
	for i, rc := range calls {
		mc := tx.Calls[i]
		decoded, err := planner.DecodeModuleCall(rc.Data)
		if err != nil {
			return revert(err.Error())
		}
		if decoded.Method != mc.Method || len(decoded.Orders) != len(mc.Items) {
			return revert(fmt.Sprintf("module call %d does not match the plan", i))
		}
		for j, item := range mc.Items {
			before := st.clone()
			fill, err := c.fill(ctx, st, item, decoded.Orders[j], decoded.Params)
			if err == nil {
				receipt.Fills = append(receipt.Fills, *fill)
				continue
			}
			if errors.Is(err, errInsufficientValue) {
				return revert(err.Error())
			}
			if decoded.Params.RevertIfIncomplete {
				log.Infof("订单不可成交，整单回滚: order=%s err=%v", item.Order.ID, err)
				return revert("UnsuccessfulExecution()")
			}
			log.Infof("订单不可成交，跳过: order=%s err=%v", item.Order.ID, err)
			st = before
			receipt.Missed = append(receipt.Missed, item.Order.ID)
		}
	}

	refund := st.nativeOf(c.router)
	if err := st.transfer(types.NativeCurrency, c.router, tx.Options.Refund(), refund); err != nil {
		return revert(err.Error())
	}
	receipt.Refunded = refund
	if err := c.assertEmpty(st, calls); err != nil {
		return nil, err
	}
	receipt.GasUsed = uint64(21000 + 60000*len(receipt.Fills))
	c.ledger.st = st
	return receipt, nil
}

// fill 执行一笔成交，失败时调用方负责恢复状态
func (c *Chain) fill(ctx context.Context, st *state, item types.ExecutionItem, od planner.OrderData, params planner.ExecutionParams) (*types.Fill, error) {
	order := item.Order
	a, err := c.registry.Get(order.Kind)
	if err != nil {
		return nil, err
	}
	if err := a.CheckFillability(ctx, order, st); err != nil {
		return nil, err
	}
	filled := st.filled[order.Kind][order.ID]
	amount := od.Amount.Uint64()
	if remaining := order.Quantity() - filled; amount > remaining {
		if params.RevertIfIncomplete {
			return nil, types.InvalidArgf("order %s has %d left, wanted %d", order.ID, remaining, amount)
		}
		amount = remaining
	}
	overrides := adapters.MatchOverrides{Taker: item.Taker, Recipient: params.FillTo, Amount: amount}
	if order.Request.Token.TokenID == nil {
		overrides.TokenID = od.TokenID
	}
	m, err := a.BuildMatching(order, overrides)
	if err != nil {
		return nil, err
	}
	s, err := a.Quote(order, m, filled)
	if err != nil {
		return nil, err
	}

	onTop := item.FeesOnTop
	if planned := item.FillAmount; planned > 0 && amount != planned {
		onTop = fees.ProrateOnTop(onTop, new(big.Int).SetUint64(amount), new(big.Int).SetUint64(planned))
	}

	if order.Side == types.SideListing {
		payer := item.Taker
		if types.IsNative(s.Currency) {
			payer = c.router
		}
		for _, p := range s.Payments {
			if err := c.pay(st, s.Currency, payer, p.Recipient, p.Amount); err != nil {
				return nil, err
			}
		}
		for _, f := range onTop {
			if err := c.pay(st, s.Currency, payer, f.Recipient, f.Amount); err != nil {
				return nil, err
			}
		}
		if err := st.transferNFT(s.Token, s.TokenID, s.Seller, params.FillTo, amount); err != nil {
			return nil, err
		}
	} else {
		if err := st.transferNFT(s.Token, s.TokenID, item.Taker, s.Buyer, amount); err != nil {
			return nil, err
		}
		for _, p := range s.Payments {
			if err := st.transfer(s.Currency, s.Buyer, p.Recipient, p.Amount); err != nil {
				return nil, err
			}
		}
		// 卖方从所得中支付 on-top 费用
		for _, f := range onTop {
			if err := st.transfer(s.Currency, item.Taker, f.Recipient, f.Amount); err != nil {
				return nil, err
			}
		}
	}
	st.addFilled(order.Kind, order.ID, amount)
	return &types.Fill{OrderID: order.ID, Kind: order.Kind, Amount: amount, Price: s.Price, TokenID: s.TokenID}, nil
}

func (c *Chain) pay(st *state, currency, payer, to common.Address, amount *big.Int) error {
	if err := st.transfer(currency, payer, to, amount); err != nil {
		if payer == c.router {
			return fmt.Errorf("%w: %v", errInsufficientValue, err)
		}
		return err
	}
	return nil
}

// assertEmpty 交易结束后路由和模块不应持有任何资金
func (c *Chain) assertEmpty(st *state, calls []planner.RouterCall) error {
	holders := []common.Address{c.router}
	for _, rc := range calls {
		holders = append(holders, rc.Module)
	}
	for _, h := range holders {
		if st.nativeOf(h).Sign() != 0 {
			return fmt.Errorf("%s retained %s native after execution", h.Hex(), st.nativeOf(h))
		}
		for token, owners := range st.erc20 {
			if v := owners[h]; v != nil && v.Sign() != 0 {
				return fmt.Errorf("%s retained %s of %s after execution", h.Hex(), v, token.Hex())
			}
		}
	}
	return nil
}
