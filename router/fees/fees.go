// Package fees 计算订单费用：订单簿默认费、调用方费用、版税
package fees

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/gorouter/router/types"
)

// Family 默认订单簿费的合并方式
type Family int

const (
	// Additive 默认费始终作为独立费用行存在（外部订单簿除外）
	Additive Family = iota
	// Replace 调用方显式费用整体替换默认费
	Replace
	// External 协议不承载订单簿费，只有协议自身的费用
	External
)

func (f Family) String() string {
	switch f {
	case Additive:
		return "additive"
	case Replace:
		return "replace"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// Defaults 注入的订单簿默认费
type Defaults struct {
	Recipient common.Address
	Bps       uint32
	Orderbook string // 自有订单簿名称
}

// StandardDefaults 线上默认值：50 bps
func StandardDefaults() Defaults {
	return Defaults{
		Recipient: common.HexToAddress("0xf3d63166f0ca56c3c1a3508fce03ff0cf3fb691e"),
		Bps:       50,
		Orderbook: types.DefaultOrderbook,
	}
}

// Policy 费用策略：合并方式 + 上限
type Policy struct {
	Kind   types.OrderKind
	Family Family
	MaxBps uint32
}

// Composer 费用组合器
type Composer struct {
	defaults Defaults
}

// NewComposer 创建费用组合器
func NewComposer(defaults Defaults) *Composer {
	if defaults.Orderbook == "" {
		defaults.Orderbook = types.DefaultOrderbook
	}
	return &Composer{defaults: defaults}
}

// Defaults 当前默认值
func (c *Composer) Defaults() Defaults {
	return c.defaults
}

// Basis 计费基数：买单为 单价×数量，卖单为单价
func Basis(req *types.OrderRequest) *big.Int {
	if req.Side == types.SideBid {
		return req.TotalPrice()
	}
	return new(big.Int).Set(req.UnitPrice)
}

// Policies 按顺序列出生效的费用策略（尚未计算金额）
func (c *Composer) Policies(req *types.OrderRequest, policy Policy) []types.FeeAmount {
	out := make([]types.FeeAmount, 0, len(req.FeePolicies)+len(req.Royalties)+1)
	ownBook := req.Orderbook() == c.defaults.Orderbook
	includeDefault := false
	switch policy.Family {
	case Additive:
		includeDefault = ownBook
	case Replace:
		includeDefault = ownBook && len(req.FeePolicies) == 0
	}
	if includeDefault && c.defaults.Bps > 0 {
		out = append(out, types.FeeAmount{Recipient: c.defaults.Recipient, Bps: c.defaults.Bps, Kind: types.FeeKindOrderbook})
	}
	for _, f := range req.FeePolicies {
		out = append(out, types.FeeAmount{Recipient: f.Recipient, Bps: f.Bps, Kind: types.FeeKindMarketplace})
	}
	for _, f := range req.Royalties {
		out = append(out, types.FeeAmount{Recipient: f.Recipient, Bps: f.Bps, Kind: types.FeeKindRoyalty})
	}
	return out
}

// Compose 计算最终费用行，金额 = floor(bps × basis / 10000)
func (c *Composer) Compose(req *types.OrderRequest, policy Policy) ([]types.FeeAmount, error) {
	lines := c.Policies(req, policy)
	total := new(big.Int)
	for _, l := range lines {
		total.Add(total, big.NewInt(int64(l.Bps)))
	}
	if total.Cmp(big.NewInt(int64(policy.MaxBps))) > 0 {
		return nil, types.FeeOverflowErr(policy.Kind, total, big.NewInt(int64(policy.MaxBps)))
	}
	basis := Basis(req)
	for i := range lines {
		lines[i].Amount = Amount(basis, lines[i].Bps)
	}
	return lines, nil
}

// Amount floor(basis × bps / 10000)
func Amount(basis *big.Int, bps uint32) *big.Int {
	v := new(big.Int).Mul(basis, big.NewInt(int64(bps)))
	return v.Quo(v, big.NewInt(types.BpsBase))
}

// TotalBps 费用行 bps 合计
func TotalBps(lines []types.FeeAmount) uint32 {
	var total uint32
	for _, l := range lines {
		total += l.Bps
	}
	return total
}

// Prorate floor(amount × fill / remaining)
func Prorate(amount *big.Int, fill, remaining uint64) *big.Int {
	if remaining == 0 || amount == nil {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amount, new(big.Int).SetUint64(fill))
	return v.Quo(v, new(big.Int).SetUint64(remaining))
}

// Scale 每单位金额乘以数量
func Scale(lines []types.FeeAmount, quantity uint64) []types.FeeAmount {
	out := make([]types.FeeAmount, len(lines))
	q := new(big.Int).SetUint64(quantity)
	for i, l := range lines {
		out[i] = l
		out[i].Amount = new(big.Int).Mul(l.Amount, q)
	}
	return out
}

// OnTop 根据 bps 计算 taker 额外支付的费用
func OnTop(price *big.Int, policies []types.FeePolicy) []types.FeeAmount {
	out := make([]types.FeeAmount, 0, len(policies))
	for _, p := range policies {
		out = append(out, types.FeeAmount{Recipient: p.Recipient, Bps: p.Bps, Amount: Amount(price, p.Bps), Kind: types.FeeKindMarketplace})
	}
	return out
}

// ProrateOnTop 部分成交时按实际支付比例折算 on-top 费用（向下取整）
func ProrateOnTop(lines []types.FeeAmount, paid, planned *big.Int) []types.FeeAmount {
	out := make([]types.FeeAmount, len(lines))
	for i, l := range lines {
		out[i] = l
		if planned.Sign() == 0 {
			out[i].Amount = new(big.Int)
			continue
		}
		v := new(big.Int).Mul(l.Amount, paid)
		out[i].Amount = v.Quo(v, planned)
	}
	return out
}
