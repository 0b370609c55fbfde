package types

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// OrderKind 订单所属的交易所协议
type OrderKind string

const (
	OrderKindSeaportV15          OrderKind = "seaport-v1.5"
	OrderKindSeaportV16          OrderKind = "seaport-v1.6"
	OrderKindPaymentProcessorV2  OrderKind = "payment-processor-v2"
	OrderKindPaymentProcessorV21 OrderKind = "payment-processor-v2.1"
	OrderKindElement             OrderKind = "element"
	OrderKindRarible             OrderKind = "rarible"
	OrderKindZeroExV4            OrderKind = "zeroex-v4"
	OrderKindNftx                OrderKind = "nftx"
)

// AllOrderKinds 返回全部支持的协议（固定顺序）
func AllOrderKinds() []OrderKind {
	return []OrderKind{
		OrderKindSeaportV15,
		OrderKindSeaportV16,
		OrderKindPaymentProcessorV2,
		OrderKindPaymentProcessorV21,
		OrderKindElement,
		OrderKindRarible,
		OrderKindZeroExV4,
		OrderKindNftx,
	}
}

// ParseOrderKind 解析协议名称
func ParseOrderKind(s string) (OrderKind, error) {
	for _, k := range AllOrderKinds() {
		if string(k) == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// Side 订单方向
type Side string

const (
	SideBid     Side = "bid"     // 买单
	SideListing Side = "listing" // 卖单
)

// TokenStandard NFT 标准
type TokenStandard string

const (
	StandardERC721  TokenStandard = "erc721"
	StandardERC1155 TokenStandard = "erc1155"
)

// NativeCurrency 原生币的零地址哨兵
var NativeCurrency = common.Address{}

// IsNative 是否原生币
func IsNative(currency common.Address) bool {
	return currency == NativeCurrency
}

// BpsBase 费率基数
const BpsBase = 10000

// TokenRef 订单标的：单个 token、整个合约，或 token 列表
type TokenRef struct {
	Contract common.Address
	TokenID  *big.Int   // nil 表示合约级（collection）订单
	TokenIDs []*big.Int // 非空表示 token-list 订单
	Standard TokenStandard
}

// IsContractWide 合约级订单
func (t TokenRef) IsContractWide() bool {
	return t.TokenID == nil && len(t.TokenIDs) == 0
}

// IsTokenList token-list 订单
func (t TokenRef) IsTokenList() bool {
	return len(t.TokenIDs) > 0
}

// String 返回 indexer 使用的 "contract:id" 形式
func (t TokenRef) String() string {
	addr := strings.ToLower(t.Contract.Hex())
	if t.TokenID == nil {
		return addr
	}
	return addr + ":" + t.TokenID.String()
}

// ParseTokenRef 解析 "0xcontract:tokenId" 或 "0xcontract"
func ParseTokenRef(s string, standard TokenStandard) (TokenRef, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || len(parts) > 2 || !common.IsHexAddress(parts[0]) {
		return TokenRef{}, fmt.Errorf("%w: token %q", ErrInvalidArgument, s)
	}
	ref := TokenRef{Contract: common.HexToAddress(parts[0]), Standard: standard}
	if len(parts) == 2 {
		id, ok := new(big.Int).SetString(parts[1], 10)
		if !ok || id.Sign() < 0 {
			return TokenRef{}, fmt.Errorf("%w: token id %q", ErrInvalidArgument, parts[1])
		}
		ref.TokenID = id
	}
	return ref, nil
}

// FeePolicy 费用策略 {recipient, bps}
type FeePolicy struct {
	Recipient common.Address
	Bps       uint32
}

// String indexer 使用的 "recipient:bps" 形式
func (f FeePolicy) String() string {
	return strings.ToLower(f.Recipient.Hex()) + ":" + strconv.FormatUint(uint64(f.Bps), 10)
}

// ParseFeePolicy 解析 "0xrecipient:bps"
func ParseFeePolicy(s string) (FeePolicy, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || !common.IsHexAddress(parts[0]) {
		return FeePolicy{}, fmt.Errorf("%w: fee %q", ErrInvalidArgument, s)
	}
	bps, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil || bps > BpsBase {
		return FeePolicy{}, fmt.Errorf("%w: fee bps %q", ErrInvalidArgument, parts[1])
	}
	return FeePolicy{Recipient: common.HexToAddress(parts[0]), Bps: uint32(bps)}, nil
}

// FeeKind 组合后费用行的来源
type FeeKind string

const (
	FeeKindOrderbook   FeeKind = "orderbook"
	FeeKindMarketplace FeeKind = "marketplace"
	FeeKindRoyalty     FeeKind = "royalty"
	FeeKindProtocol    FeeKind = "protocol"
)

// FeeAmount 组合后的费用行（订单币种中的绝对金额）
type FeeAmount struct {
	Recipient common.Address
	Bps       uint32
	Amount    *big.Int
	Kind      FeeKind
}

// TotalAmount 费用合计
func TotalAmount(fees []FeeAmount) *big.Int {
	total := new(big.Int)
	for _, f := range fees {
		total.Add(total, f.Amount)
	}
	return total
}
