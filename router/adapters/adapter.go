// Package adapters 把统一的下单意图翻译成各交易所协议的订单格式
package adapters

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/types"
)

// ChainState 成交前的只读链上状态
type ChainState interface {
	Now(ctx context.Context) (int64, error)
	MasterNonce(ctx context.Context, kind types.OrderKind, exchange, maker common.Address) (*big.Int, error)
	IsNonceUsed(ctx context.Context, kind types.OrderKind, exchange, maker common.Address, nonce *big.Int) (bool, error)
	IsCancelled(ctx context.Context, kind types.OrderKind, exchange common.Address, orderID string) (bool, error)
	FilledAmount(ctx context.Context, kind types.OrderKind, exchange common.Address, orderID string) (uint64, error)
	Balance(ctx context.Context, currency, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, currency, owner, spender common.Address) (*big.Int, error)
	NFTBalance(ctx context.Context, token types.TokenRef, tokenID *big.Int, owner common.Address) (uint64, error)
	IsApprovedForAll(ctx context.Context, contract, owner, operator common.Address) (bool, error)
}

// Config 单个协议的部署信息
type Config struct {
	ChainID    int64
	Exchange   common.Address // EIP712 verifyingContract
	Module     common.Address // 路由模块
	Operator   common.Address // 授权对象（conduit / transfer helper），为空时使用 Exchange
	Zone       common.Address // Seaport 链下取消 zone
	Cosigner   common.Address // PaymentProcessor 共签人
	ConduitKey common.Hash
}

func (c Config) operator() common.Address {
	if c.Operator != (common.Address{}) {
		return c.Operator
	}
	return c.Exchange
}

// MatchOverrides taker 侧参数
type MatchOverrides struct {
	Taker     common.Address
	Recipient common.Address
	TokenID   *big.Int // 合约级 / 列表订单由 taker 指定
	Amount    uint64
}

// Matching 直接成交时由 maker 订单推导出的对手单
type Matching struct {
	OrderID   string
	Kind      types.OrderKind
	Side      types.Side // taker 方向
	Taker     common.Address
	Recipient common.Address
	TokenID   *big.Int
	Amount    uint64
	Proof     []common.Hash // 列表订单的 merkle proof
}

// Payment 一笔付款
type Payment struct {
	Recipient common.Address
	Amount    *big.Int
	Kind      types.FeeKind // 卖家所得为空
}

// Settlement 一次（部分）成交的资金与资产流向
type Settlement struct {
	OrderID   string
	Fill      uint64
	Currency  common.Address
	Buyer     common.Address
	Seller    common.Address
	Price     *big.Int // 本次成交价（不含买方承担的费用）
	BuyerCost *big.Int // 买方总支出
	Payments  []Payment
	Token     types.TokenRef
	TokenID   *big.Int
}

// Fees 本次成交的费用行
func (s *Settlement) Fees() []Payment {
	var out []Payment
	for _, p := range s.Payments {
		if p.Kind != "" {
			out = append(out, p)
		}
	}
	return out
}

// Adapter 单个协议的订单适配器
type Adapter interface {
	Kind() types.OrderKind
	Config() Config
	FeePolicy() fees.Policy
	SupportsSweep() bool
	Build(req *types.OrderRequest) (*types.UnsignedOrder, error)
	Sign(order *types.UnsignedOrder, key *ecdsa.PrivateKey) (*types.SignedOrder, error)
	CheckSignature(order *types.SignedOrder) error
	CheckFillability(ctx context.Context, order *types.SignedOrder, state ChainState) error
	BuildMatching(order *types.SignedOrder, overrides MatchOverrides) (*Matching, error)
	Quote(order *types.SignedOrder, match *Matching, filled uint64) (*Settlement, error)
	Encode(order *types.SignedOrder) ([]byte, error)
}

// Registry 按协议索引的适配器集合
type Registry struct {
	adapters map[types.OrderKind]Adapter
}

// NewRegistry 为每个已配置的协议创建适配器
func NewRegistry(composer *fees.Composer, configs map[types.OrderKind]Config) (*Registry, error) {
	r := &Registry{adapters: make(map[types.OrderKind]Adapter, len(configs))}
	for kind, cfg := range configs {
		a, err := New(kind, composer, cfg)
		if err != nil {
			return nil, err
		}
		r.adapters[kind] = a
	}
	return r, nil
}

// New 创建指定协议的适配器
func New(kind types.OrderKind, composer *fees.Composer, cfg Config) (Adapter, error) {
	b := base{kind: kind, cfg: cfg, composer: composer, now: time.Now}
	switch kind {
	case types.OrderKindSeaportV15, types.OrderKindSeaportV16:
		return &Seaport{base: b}, nil
	case types.OrderKindPaymentProcessorV2, types.OrderKindPaymentProcessorV21:
		return &PaymentProcessor{base: b}, nil
	case types.OrderKindElement:
		return &Element{base: b}, nil
	case types.OrderKindRarible:
		return &Rarible{base: b}, nil
	case types.OrderKindZeroExV4:
		return &ZeroExV4{base: b}, nil
	case types.OrderKindNftx:
		return &Nftx{base: b}, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedKind, kind)
	}
}

// Get 查找适配器
func (r *Registry) Get(kind types.OrderKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q not configured", types.ErrUnsupportedKind, kind)
	}
	return a, nil
}

// Kinds 已配置的协议
func (r *Registry) Kinds() []types.OrderKind {
	var out []types.OrderKind
	for _, k := range types.AllOrderKinds() {
		if _, ok := r.adapters[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// base 各适配器共用的部分
type base struct {
	kind     types.OrderKind
	cfg      Config
	composer *fees.Composer
	now      func() time.Time
}

func (b *base) Kind() types.OrderKind { return b.kind }

func (b *base) Config() Config { return b.cfg }

// validate 通用校验 + 协议类型匹配
func (b *base) validate(req *types.OrderRequest) error {
	if req == nil {
		return types.InvalidArgf("nil request")
	}
	if req.Kind != b.kind {
		return types.InvalidArgf("request kind %q sent to %q adapter", req.Kind, b.kind)
	}
	if err := req.Validate(b.now()); err != nil {
		return err
	}
	if req.Side == types.SideBid && types.IsNative(req.Currency) {
		return types.InvalidArgf("%s bids must be denominated in an erc20 currency", b.kind)
	}
	return nil
}

// composeTotals 计算费用，并统一换算为整单金额
func (b *base) composeTotals(req *types.OrderRequest, policy fees.Policy) ([]types.FeeAmount, error) {
	lines, err := b.composer.Compose(req, policy)
	if err != nil {
		return nil, err
	}
	if req.Side == types.SideListing {
		lines = fees.Scale(lines, req.Quantity)
	}
	return lines, nil
}

func (b *base) listingTime(req *types.OrderRequest) int64 {
	if req.Options.ListingTime > 0 {
		return req.Options.ListingTime
	}
	return b.now().Unix()
}

// salt 调用方未指定时随机生成
func salt(req *types.OrderRequest) *big.Int {
	if req.Options.Salt != nil {
		return new(big.Int).Set(req.Options.Salt)
	}
	return randomUint(256)
}

func randomUint(bits uint) *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), bits)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return v
}

func masterNonce(req *types.OrderRequest) *big.Int {
	if req.MasterNonce == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(req.MasterNonce)
}

// standardOf 缺省为 ERC721
func standardOf(req *types.OrderRequest) types.TokenStandard {
	if req.Token.Standard == "" {
		return types.StandardERC721
	}
	return req.Token.Standard
}
