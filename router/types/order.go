package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// DefaultOrderbook 自有订单簿名称
const DefaultOrderbook = "reservoir"

// OrderOptions 协议相关的可选参数
type OrderOptions struct {
	Orderbook               string         // 目标订单簿，空表示自有订单簿
	UseOffChainCancellation bool           // 链下取消模式（需要 cosigner / zone）
	Cosigner                common.Address // PaymentProcessor 共签人
	Zone                    common.Address // Seaport 链下取消 zone
	ConduitKey              common.Hash    // Seaport conduit key
	RaribleDataType         string         // v1 | v2 | v3
	Payouts                 []FeePolicy    // Rarible payouts，合计必须为 10000
	MarketplaceMarker       common.Hash    // Rarible V3 市场标记
	Salt                    *big.Int       // 为空时随机生成
	ListingTime             int64          // 为空时取当前时间
	NftxVault               common.Address
	NftxVaultID             *big.Int
	NftxPool                common.Address
}

// OrderRequest 与协议无关的下单意图
type OrderRequest struct {
	Kind        OrderKind
	Side        Side
	Maker       common.Address
	Token       TokenRef
	Quantity    uint64
	Currency    common.Address // 零地址为原生币
	UnitPrice   *big.Int       // 最小单位
	Expiration  int64          // unix 秒
	FeePolicies []FeePolicy    // 调用方显式费用，按顺序
	Royalties   []FeePolicy    // 自动版税
	MasterNonce *big.Int       // maker 当前的 master nonce / counter
	Options     OrderOptions
}

// Orderbook 目标订单簿
func (r *OrderRequest) Orderbook() string {
	if r.Options.Orderbook == "" {
		return DefaultOrderbook
	}
	return r.Options.Orderbook
}

// Validate 检查通用字段
func (r *OrderRequest) Validate(now time.Time) error {
	if r == nil {
		return InvalidArgf("nil order request")
	}
	if r.Side != SideBid && r.Side != SideListing {
		return InvalidArgf("side %q", r.Side)
	}
	if r.Maker == (common.Address{}) {
		return InvalidArgf("missing maker")
	}
	if r.Token.Contract == (common.Address{}) {
		return InvalidArgf("missing token contract")
	}
	if r.UnitPrice == nil || r.UnitPrice.Sign() <= 0 {
		return InvalidArgf("unit price must be positive")
	}
	if r.Quantity < 1 {
		return InvalidArgf("quantity must be >= 1")
	}
	if r.Token.Standard == StandardERC721 && r.Quantity != 1 {
		return InvalidArgf("erc721 quantity must be 1, got %d", r.Quantity)
	}
	if r.Expiration <= now.Unix() {
		return InvalidArgf("expiration %d is not in the future", r.Expiration)
	}
	for _, f := range append(append([]FeePolicy{}, r.FeePolicies...), r.Royalties...) {
		if f.Bps > BpsBase {
			return InvalidArgf("fee bps %d > %d", f.Bps, BpsBase)
		}
		if f.Recipient == (common.Address{}) {
			return InvalidArgf("fee recipient is zero address")
		}
	}
	if r.Side == SideListing && r.Token.IsContractWide() {
		return InvalidArgf("listing requires a token id")
	}
	return nil
}

// TotalPrice 单价 × 数量
func (r *OrderRequest) TotalPrice() *big.Int {
	return new(big.Int).Mul(r.UnitPrice, new(big.Int).SetUint64(r.Quantity))
}

// OrderParams 各协议的订单参数（封闭集合）
type OrderParams interface {
	orderParams()
}

// SeaportItem offer / consideration 条目
type SeaportItem struct {
	ItemType             uint8
	Token                common.Address
	IdentifierOrCriteria *big.Int
	StartAmount          *big.Int
	EndAmount            *big.Int
	Recipient            common.Address // 仅 consideration 使用
}

// Seaport item types
const (
	SeaportItemNative              uint8 = 0
	SeaportItemERC20               uint8 = 1
	SeaportItemERC721              uint8 = 2
	SeaportItemERC1155             uint8 = 3
	SeaportItemERC721WithCriteria  uint8 = 4
	SeaportItemERC1155WithCriteria uint8 = 5
)

// Seaport order types
const (
	SeaportFullOpen          uint8 = 0
	SeaportPartialOpen       uint8 = 1
	SeaportFullRestricted    uint8 = 2
	SeaportPartialRestricted uint8 = 3
)

// SeaportParams OrderComponents
type SeaportParams struct {
	Offerer       common.Address
	Zone          common.Address
	Offer         []SeaportItem
	Consideration []SeaportItem
	OrderType     uint8
	StartTime     int64
	EndTime       int64
	ZoneHash      common.Hash
	Salt          *big.Int
	ConduitKey    common.Hash
	Counter       *big.Int
	TokenIDs      []*big.Int // criteria 订单的 token 列表（用于 merkle proof）
}

func (*SeaportParams) orderParams() {}

// PaymentProcessor protocols
const (
	PPProtocolERC721FillOrKill  uint8 = 0
	PPProtocolERC1155FillOrKill uint8 = 1
	PPProtocolERC1155FillPartial uint8 = 2
)

// PaymentProcessorOfferKind 买单类型
type PaymentProcessorOfferKind string

const (
	PPSaleApproval    PaymentProcessorOfferKind = "SaleApproval"
	PPItemOffer       PaymentProcessorOfferKind = "ItemOffer"
	PPCollectionOffer PaymentProcessorOfferKind = "CollectionOffer"
	PPTokenSetOffer   PaymentProcessorOfferKind = "TokenSetOffer"
)

// PaymentProcessorParams v2 / v2.1 订单参数
type PaymentProcessorParams struct {
	Type                     PaymentProcessorOfferKind
	Protocol                 uint8
	Cosigner                 common.Address
	Maker                    common.Address
	Beneficiary              common.Address
	Marketplace              common.Address
	FallbackRoyaltyRecipient common.Address
	PaymentMethod            common.Address
	TokenAddress             common.Address
	TokenID                  *big.Int
	Amount                   *big.Int
	ItemPrice                *big.Int // 整单价格
	Expiration               int64
	MarketplaceFeeNumerator  *big.Int
	MaxRoyaltyFeeNumerator   *big.Int
	Nonce                    *big.Int
	MasterNonce              *big.Int
	ProtocolFeeVersion       *big.Int // 仅 v2.1
	TokenSetMerkleRoot       common.Hash
	TokenIDs                 []*big.Int
}

func (*PaymentProcessorParams) orderParams() {}

// ProtocolFee Element / ZeroEx 订单内的费用行（绝对金额）
type ProtocolFee struct {
	Recipient common.Address
	Amount    *big.Int
	FeeData   []byte
}

// Property 合约级买单的属性校验
type Property struct {
	Validator common.Address
	Data      []byte
}

// ElementParams Element 订单参数
type ElementParams struct {
	Maker            common.Address
	Taker            common.Address
	Expiry           *big.Int // listingTime<<32 | expirationTime
	Nonce            *big.Int
	Erc20Token       common.Address
	Erc20TokenAmount *big.Int // 整单价格（不含费用）
	Fees             []ProtocolFee
	Nft              common.Address
	NftID            *big.Int
	NftAmount        *big.Int // 仅 ERC1155
	Properties       []Property
	HashNonce        *big.Int
}

func (*ElementParams) orderParams() {}

// ZeroEx 方向
const (
	ZeroExDirectionSell uint8 = 0
	ZeroExDirectionBuy  uint8 = 1
)

// ZeroExV4Params ZeroEx V4 订单参数
type ZeroExV4Params struct {
	Direction        uint8
	Maker            common.Address
	Taker            common.Address
	Expiry           int64
	Nonce            *big.Int
	Erc20Token       common.Address
	Erc20TokenAmount *big.Int
	Fees             []ProtocolFee
	Nft              common.Address
	NftID            *big.Int
	NftAmount        *big.Int // 仅 ERC1155
	Properties       []Property
}

func (*ZeroExV4Params) orderParams() {}

// RaribleAsset 资产
type RaribleAsset struct {
	Class [4]byte
	Data  []byte
	Value *big.Int
}

// RaribleParams Rarible 订单参数
type RaribleParams struct {
	Maker             common.Address
	MakeAsset         RaribleAsset
	Taker             common.Address
	TakeAsset         RaribleAsset
	Salt              *big.Int
	Start             int64
	End               int64
	DataType          [4]byte
	Data              []byte
	Payouts           []FeePolicy
	OriginFees        []FeePolicy
	MarketplaceMarker common.Hash
}

func (*RaribleParams) orderParams() {}

// NftxParams NFTX 池报价（无需签名）
type NftxParams struct {
	Vault          common.Address
	VaultID        *big.Int
	Pool           common.Address
	TokenIDs       []*big.Int
	UnitPrice      *big.Int
	ProtocolFeeBps uint32
}

func (*NftxParams) orderParams() {}

// UnsignedOrder 构造完成、尚未签名的订单
type UnsignedOrder struct {
	Kind      OrderKind
	Side      Side
	Request   OrderRequest
	Exchange  common.Address
	Params    OrderParams
	Fees      []FeeAmount
	TypedData *apitypes.TypedData // NFTX 为 nil
}

// Cosignature PaymentProcessor 共签
type Cosignature struct {
	Signer     common.Address
	Taker      common.Address
	Expiration int64
	Signature  []byte
}

// SignedOrder 已签名订单
type SignedOrder struct {
	UnsignedOrder
	ID          string
	Signature   []byte
	Cosignature *Cosignature
}

// Quantity 订单总数量
func (o *SignedOrder) Quantity() uint64 {
	return o.Request.Quantity
}
