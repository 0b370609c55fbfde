package adapters

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

// RaribleID bytes4(keccak256(name))，用于资产类别和订单数据类型
func RaribleID(name string) [4]byte {
	var id [4]byte
	copy(id[:], crypto.Keccak256([]byte(name))[:4])
	return id
}

var (
	RaribleClassETH        = RaribleID("ETH")
	RaribleClassERC20      = RaribleID("ERC20")
	RaribleClassERC721     = RaribleID("ERC721")
	RaribleClassERC1155    = RaribleID("ERC1155")
	RaribleClassCollection = RaribleID("COLLECTION")

	RaribleDataV1     = RaribleID("V1")
	RaribleDataV2     = RaribleID("V2")
	RaribleDataV3Sell = RaribleID("V3_SELL")
	RaribleDataV3Buy  = RaribleID("V3_BUY")
)

// raribleDefaultMaxFeesBps V3 卖单允许买方附加费用的上限
const raribleDefaultMaxFeesBps = 1000

var raribleTypes = apitypes.Types{
	"Order": {
		{Name: "maker", Type: "address"},
		{Name: "makeAsset", Type: "Asset"},
		{Name: "taker", Type: "address"},
		{Name: "takeAsset", Type: "Asset"},
		{Name: "salt", Type: "uint256"},
		{Name: "start", Type: "uint256"},
		{Name: "end", Type: "uint256"},
		{Name: "dataType", Type: "bytes4"},
		{Name: "data", Type: "bytes"},
	},
	"Asset": {
		{Name: "assetType", Type: "AssetType"},
		{Name: "value", Type: "uint256"},
	},
	"AssetType": {
		{Name: "assetClass", Type: "bytes4"},
		{Name: "data", Type: "bytes"},
	},
}

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
)

// raribleDataArgs 数据结构的 ABI 定义
var raribleDataArgs = func() map[[4]byte]abi.Arguments {
	part := []abi.ArgumentMarshaling{
		{Name: "account", Type: "address"},
		{Name: "value", Type: "uint96"},
	}
	mustType := func(t string, comps []abi.ArgumentMarshaling) abi.Type {
		typ, err := abi.NewType(t, "", comps)
		if err != nil {
			panic(err)
		}
		return typ
	}
	v1 := mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "payouts", Type: "tuple[]", Components: part},
		{Name: "originFees", Type: "tuple[]", Components: part},
	})
	v2 := mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "payouts", Type: "tuple[]", Components: part},
		{Name: "originFees", Type: "tuple[]", Components: part},
		{Name: "isMakeFill", Type: "bool"},
	})
	u256 := mustType("uint256", nil)
	b32 := mustType("bytes32", nil)
	return map[[4]byte]abi.Arguments{
		RaribleDataV1:     {{Type: v1}},
		RaribleDataV2:     {{Type: v2}},
		RaribleDataV3Sell: {{Type: u256}, {Type: u256}, {Type: u256}, {Type: u256}, {Type: b32}},
		RaribleDataV3Buy:  {{Type: u256}, {Type: u256}, {Type: u256}, {Type: b32}},
	}
}()

type rariblePart struct {
	Account common.Address
	Value   *big.Int
}

type raribleDataV1 struct {
	Payouts    []rariblePart
	OriginFees []rariblePart
}

type raribleDataV2 struct {
	Payouts    []rariblePart
	OriginFees []rariblePart
	IsMakeFill bool
}

// Rarible 手续费以 originFees 的形式写入订单数据，由卖方承担
type Rarible struct {
	base
}

func (a *Rarible) FeePolicy() fees.Policy {
	return fees.Policy{Kind: a.kind, Family: fees.Additive, MaxBps: types.BpsBase}
}

func (a *Rarible) SupportsSweep() bool { return false }

func (a *Rarible) Build(req *types.OrderRequest) (*types.UnsignedOrder, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}
	if req.Token.IsTokenList() {
		return nil, types.InvalidArgf("rarible orders cannot target a token list")
	}
	lines, err := a.composeTotals(req, a.FeePolicy())
	if err != nil {
		return nil, err
	}
	dataType, err := a.dataType(req)
	if err != nil {
		return nil, err
	}

	payouts := req.Options.Payouts
	if len(payouts) == 0 {
		payouts = []types.FeePolicy{{Recipient: req.Maker, Bps: types.BpsBase}}
	}
	var sum uint32
	for _, p := range payouts {
		if p.Recipient == (common.Address{}) {
			return nil, types.InvalidArgf("payout recipient is the zero address")
		}
		sum += p.Bps
	}
	if sum != types.BpsBase {
		return nil, types.InvalidArgf("payouts sum to %d bps, want %d", sum, types.BpsBase)
	}
	origin := make([]types.FeePolicy, 0, len(lines))
	for _, l := range lines {
		origin = append(origin, types.FeePolicy{Recipient: l.Recipient, Bps: l.Bps})
	}

	p := &types.RaribleParams{
		Maker:             req.Maker,
		Salt:              salt(req),
		Start:             a.listingTime(req),
		End:               req.Expiration,
		DataType:          dataType,
		Payouts:           payouts,
		OriginFees:        origin,
		MarketplaceMarker: req.Options.MarketplaceMarker,
	}
	p.Data, err = encodeRaribleData(p)
	if err != nil {
		return nil, err
	}
	nft, err := raribleNFT(req)
	if err != nil {
		return nil, err
	}
	money := raribleCurrency(req.Currency, req.TotalPrice())
	if req.Side == types.SideListing {
		p.MakeAsset, p.TakeAsset = nft, money
	} else {
		p.MakeAsset, p.TakeAsset = money, nft
	}
	return &types.UnsignedOrder{
		Kind:      a.kind,
		Side:      req.Side,
		Request:   *req,
		Exchange:  a.cfg.Exchange,
		Params:    p,
		Fees:      lines,
		TypedData: a.typedData(p),
	}, nil
}

func (a *Rarible) dataType(req *types.OrderRequest) ([4]byte, error) {
	switch strings.ToLower(req.Options.RaribleDataType) {
	case "", "v2":
		return RaribleDataV2, nil
	case "v1":
		return RaribleDataV1, nil
	case "v3":
		if req.Side == types.SideListing {
			return RaribleDataV3Sell, nil
		}
		return RaribleDataV3Buy, nil
	default:
		return [4]byte{}, types.InvalidArgf("unknown rarible data type %q", req.Options.RaribleDataType)
	}
}

func raribleParts(list []types.FeePolicy) []rariblePart {
	out := make([]rariblePart, 0, len(list))
	for _, p := range list {
		out = append(out, rariblePart{Account: p.Recipient, Value: new(big.Int).SetUint64(uint64(p.Bps))})
	}
	return out
}

// packPart V3 把 (bps, account) 压进一个 uint256：bps<<160 | account
func packPart(p types.FeePolicy) *big.Int {
	v := new(big.Int).Lsh(new(big.Int).SetUint64(uint64(p.Bps)), 160)
	return v.Or(v, new(big.Int).SetBytes(p.Recipient.Bytes()))
}

func encodeRaribleData(p *types.RaribleParams) ([]byte, error) {
	args := raribleDataArgs[p.DataType]
	switch p.DataType {
	case RaribleDataV1:
		return args.Pack(raribleDataV1{Payouts: raribleParts(p.Payouts), OriginFees: raribleParts(p.OriginFees)})
	case RaribleDataV2:
		return args.Pack(raribleDataV2{Payouts: raribleParts(p.Payouts), OriginFees: raribleParts(p.OriginFees)})
	case RaribleDataV3Sell, RaribleDataV3Buy:
		if len(p.Payouts) != 1 {
			return nil, types.InvalidArgf("rarible v3 orders take exactly one payout")
		}
		if len(p.OriginFees) > 2 {
			return nil, types.InvalidArgf("rarible v3 orders take at most two origin fees, got %d", len(p.OriginFees))
		}
		first, second := new(big.Int), new(big.Int)
		var originBps uint32
		if len(p.OriginFees) > 0 {
			first = packPart(p.OriginFees[0])
			originBps += p.OriginFees[0].Bps
		}
		if len(p.OriginFees) > 1 {
			second = packPart(p.OriginFees[1])
			originBps += p.OriginFees[1].Bps
		}
		payout := packPart(p.Payouts[0])
		if p.DataType == RaribleDataV3Buy {
			return args.Pack(payout, first, second, [32]byte(p.MarketplaceMarker))
		}
		maxFees := uint64(raribleDefaultMaxFeesBps)
		if uint64(originBps) > maxFees {
			maxFees = uint64(originBps)
		}
		return args.Pack(payout, first, second, new(big.Int).SetUint64(maxFees), [32]byte(p.MarketplaceMarker))
	default:
		return nil, fmt.Errorf("%w: rarible data type %x", types.ErrUnsupportedKind, p.DataType)
	}
}

func raribleNFT(req *types.OrderRequest) (types.RaribleAsset, error) {
	qty := new(big.Int).SetUint64(req.Quantity)
	if req.Token.TokenID == nil {
		data, err := abi.Arguments{{Type: addressType}}.Pack(req.Token.Contract)
		if err != nil {
			return types.RaribleAsset{}, err
		}
		return types.RaribleAsset{Class: RaribleClassCollection, Data: data, Value: qty}, nil
	}
	data, err := abi.Arguments{{Type: addressType}, {Type: uint256Type}}.Pack(req.Token.Contract, req.Token.TokenID)
	if err != nil {
		return types.RaribleAsset{}, err
	}
	class := RaribleClassERC721
	if standardOf(req) == types.StandardERC1155 {
		class = RaribleClassERC1155
	}
	return types.RaribleAsset{Class: class, Data: data, Value: qty}, nil
}

func raribleCurrency(currency common.Address, value *big.Int) types.RaribleAsset {
	if types.IsNative(currency) {
		return types.RaribleAsset{Class: RaribleClassETH, Value: value}
	}
	return types.RaribleAsset{Class: RaribleClassERC20, Data: common.LeftPadBytes(currency.Bytes(), 32), Value: value}
}

func raribleAsset(a types.RaribleAsset) map[string]interface{} {
	return map[string]interface{}{
		"assetType": map[string]interface{}{
			"assetClass": hexutil.Encode(a.Class[:]),
			"data":       hexutil.Encode(a.Data),
		},
		"value": signing.BigOrZero(a.Value),
	}
}

func (a *Rarible) typedData(p *types.RaribleParams) *apitypes.TypedData {
	domain := signing.NewDomain("Exchange", "2", a.cfg.ChainID, a.cfg.Exchange)
	return signing.NewTypedData(domain, "Order", raribleTypes, apitypes.TypedDataMessage{
		"maker":     p.Maker.Hex(),
		"makeAsset": raribleAsset(p.MakeAsset),
		"taker":     p.Taker.Hex(),
		"takeAsset": raribleAsset(p.TakeAsset),
		"salt":      signing.BigOrZero(p.Salt),
		"start":     big.NewInt(p.Start),
		"end":       big.NewInt(p.End),
		"dataType":  hexutil.Encode(p.DataType[:]),
		"data":      hexutil.Encode(p.Data),
	})
}

func (a *Rarible) params(op types.OrderParams) (*types.RaribleParams, error) {
	p, ok := op.(*types.RaribleParams)
	if !ok {
		return nil, types.InvalidArgf("%s adapter got %T", a.kind, op)
	}
	return p, nil
}

func (a *Rarible) Sign(order *types.UnsignedOrder, key *ecdsa.PrivateKey) (*types.SignedOrder, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return nil, err
	}
	return signTyped(order, key, p.Maker)
}

func (a *Rarible) CheckSignature(order *types.SignedOrder) error {
	p, err := a.params(order.Params)
	if err != nil {
		return err
	}
	return verifyTyped(order, p.Maker)
}

func (a *Rarible) terms(order *types.SignedOrder) (terms, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return terms{}, err
	}
	money := p.TakeAsset
	if order.Side == types.SideBid {
		money = p.MakeAsset
	}
	t := terms{
		maker:      p.Maker,
		side:       order.Side,
		currency:   order.Request.Currency,
		token:      order.Request.Token,
		tokenID:    order.Request.Token.TokenID,
		quantity:   order.Request.Quantity,
		total:      money.Value,
		fees:       order.Fees,
		expiration: p.End,
		operator:   a.cfg.operator(),
	}
	if t.token.Standard == "" {
		t.token.Standard = types.StandardERC721
	}
	return t, nil
}

func (a *Rarible) CheckFillability(ctx context.Context, order *types.SignedOrder, state ChainState) error {
	t, err := a.terms(order)
	if err != nil {
		return err
	}
	return checkTerms(ctx, a.kind, a.cfg.Exchange, order.ID, t, state)
}

func (a *Rarible) BuildMatching(order *types.SignedOrder, o MatchOverrides) (*Matching, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return matchTerms(a.kind, order.ID, t, o)
}

func (a *Rarible) Quote(order *types.SignedOrder, m *Matching, filled uint64) (*Settlement, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return quoteTerms(order.ID, t, m, filled)
}

func (a *Rarible) Encode(order *types.SignedOrder) ([]byte, error) {
	return encodeTyped(order)
}
