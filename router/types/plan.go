package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ExecutionItem 一条成交指令
type ExecutionItem struct {
	Order          *SignedOrder
	FillAmount     uint64
	Taker          common.Address
	TokenID        *big.Int        // criteria / 列表订单由 taker 指定的 token
	FeesOnTop      []FeeAmount     // 由 taker 额外支付，Amount 为空时按成交价和 Bps 计算
	TrustedChannel *common.Address // 经可信转发通道成交时的 forwarder
}

// FillOptions 一次成交请求的公共参数
type FillOptions struct {
	Taker              common.Address
	FillTo             common.Address // NFT / 资金接收方，空则为 taker
	RefundTo           common.Address // 剩余原生币退回地址，空则为 taker
	RevertIfIncomplete bool
}

// Recipient 实际接收方
func (o FillOptions) Recipient() common.Address {
	if o.FillTo == (common.Address{}) {
		return o.Taker
	}
	return o.FillTo
}

// Refund 实际退款地址
func (o FillOptions) Refund() common.Address {
	if o.RefundTo == (common.Address{}) {
		return o.Taker
	}
	return o.RefundTo
}

// FillPath 成交路径
type FillPath string

const (
	PathSweep    FillPath = "sweep"    // 批量扫单
	PathExplicit FillPath = "explicit" // 逐单成交（可携带费用）
)

// ModuleCall 路由合约对某个模块的一次调用
type ModuleCall struct {
	Module   common.Address
	Kind     OrderKind
	Side     Side
	Currency common.Address
	Method   string
	Path     FillPath
	Items    []ExecutionItem
	Data     []byte
	Value    *big.Int
}

// Transaction 计划中的一笔链上交易
type Transaction struct {
	From           common.Address
	To             common.Address
	Data           []byte
	Value          *big.Int
	Calls          []ModuleCall
	TrustedChannel *common.Address
	Options        FillOptions
}

// SkippedItem 规划时被跳过的订单
type SkippedItem struct {
	Item   ExecutionItem
	Reason error
}

// PlanMode 规划结果形态，由模块调用的成交路径决定，与交易笔数无关
type PlanMode string

const (
	// PlanBatched 至少一个模块调用走 sweep 路径，多单合并成交
	PlanBatched PlanMode = "Batched"
	// PlanPerOrder 所有模块调用都是逐单成交
	PlanPerOrder PlanMode = "PerOrder"
)

// ExecutionPlan 一次成交请求编译出的交易序列
type ExecutionPlan struct {
	ID                 string
	Mode               PlanMode
	Transactions       []Transaction
	Skipped            []SkippedItem
	RevertIfIncomplete bool
	// RequiredValue 订单价格 + 买方承担的协议费 + on-top 费用，由定价结果独立累加
	RequiredValue *big.Int
}

// TotalValue 所有交易附带的原生币
func (p *ExecutionPlan) TotalValue() *big.Int {
	total := new(big.Int)
	for _, tx := range p.Transactions {
		if tx.Value != nil {
			total.Add(total, tx.Value)
		}
	}
	return total
}

// Items 计划内全部成交指令
func (p *ExecutionPlan) Items() []ExecutionItem {
	var items []ExecutionItem
	for _, tx := range p.Transactions {
		for _, call := range tx.Calls {
			items = append(items, call.Items...)
		}
	}
	return items
}

// Validate 附带的原生币必须覆盖原生币订单价格与 on-top 费用，
// 且每笔交易的 value 等于其模块调用 value 之和
func (p *ExecutionPlan) Validate() error {
	if len(p.Transactions) == 0 {
		return ErrNoFillableOrders
	}
	for i, tx := range p.Transactions {
		calls := new(big.Int)
		for _, c := range tx.Calls {
			if c.Value != nil {
				calls.Add(calls, c.Value)
			}
		}
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		if value.Cmp(calls) != 0 {
			return fmt.Errorf("%w: transaction %d value %s differs from module calls %s", ErrInvalidArgument, i, value, calls)
		}
	}
	if p.RequiredValue != nil && p.TotalValue().Cmp(p.RequiredValue) < 0 {
		return fmt.Errorf("%w: plan value %s below required %s", ErrInvalidArgument, p.TotalValue(), p.RequiredValue)
	}
	return nil
}

// Fill 一笔已执行的成交
type Fill struct {
	OrderID string
	Kind    OrderKind
	Amount  uint64
	Price   *big.Int
	TokenID *big.Int
}

// Receipt 交易回执
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Fills       []Fill   // 模拟执行时可用
	Missed      []string // 执行时被跳过的订单 id
	Refunded    *big.Int
}
