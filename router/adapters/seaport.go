package adapters

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

var seaportTypes = apitypes.Types{
	"OrderComponents": {
		{Name: "offerer", Type: "address"},
		{Name: "zone", Type: "address"},
		{Name: "offer", Type: "OfferItem[]"},
		{Name: "consideration", Type: "ConsiderationItem[]"},
		{Name: "orderType", Type: "uint8"},
		{Name: "startTime", Type: "uint256"},
		{Name: "endTime", Type: "uint256"},
		{Name: "zoneHash", Type: "bytes32"},
		{Name: "salt", Type: "uint256"},
		{Name: "conduitKey", Type: "bytes32"},
		{Name: "counter", Type: "uint256"},
	},
	"OfferItem": {
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifierOrCriteria", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
	},
	"ConsiderationItem": {
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifierOrCriteria", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
		{Name: "recipient", Type: "address"},
	},
}

// Seaport v1.5 / v1.6
// 默认订单簿费作为独立的 consideration 条目；费用由卖方承担
type Seaport struct {
	base
}

func (a *Seaport) FeePolicy() fees.Policy {
	return fees.Policy{Kind: a.kind, Family: fees.Additive, MaxBps: types.BpsBase}
}

func (a *Seaport) SupportsSweep() bool { return true }

func (a *Seaport) version() string {
	if a.kind == types.OrderKindSeaportV16 {
		return "1.6"
	}
	return "1.5"
}

func (a *Seaport) Build(req *types.OrderRequest) (*types.UnsignedOrder, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}
	if req.Side == types.SideListing && req.Token.IsTokenList() {
		return nil, types.InvalidArgf("seaport listings cannot target a token list")
	}
	lines, err := a.composeTotals(req, a.FeePolicy())
	if err != nil {
		return nil, err
	}

	zone := req.Options.Zone
	if zone == (common.Address{}) {
		zone = a.cfg.Zone
	}
	if req.Options.UseOffChainCancellation && zone == (common.Address{}) {
		return nil, types.InvalidArgf("off-chain cancellation requires a cancellation zone")
	}
	if !req.Options.UseOffChainCancellation {
		zone = common.Address{}
	}
	conduitKey := req.Options.ConduitKey
	if conduitKey == (common.Hash{}) {
		conduitKey = a.cfg.ConduitKey
	}

	total := req.TotalPrice()
	qty := new(big.Int).SetUint64(req.Quantity)
	currencyType := types.SeaportItemERC20
	if types.IsNative(req.Currency) {
		currencyType = types.SeaportItemNative
	}
	nft := a.nftItem(req)
	nft.StartAmount, nft.EndAmount = qty, qty

	p := &types.SeaportParams{
		Offerer:    req.Maker,
		Zone:       zone,
		OrderType:  a.orderType(req, zone),
		StartTime:  a.listingTime(req),
		EndTime:    req.Expiration,
		Salt:       salt(req),
		ConduitKey: conduitKey,
		Counter:    masterNonce(req),
		TokenIDs:   req.Token.TokenIDs,
	}
	if req.Side == types.SideListing {
		p.Offer = []types.SeaportItem{nft}
		proceeds := new(big.Int).Sub(total, types.TotalAmount(lines))
		p.Consideration = append(p.Consideration, types.SeaportItem{
			ItemType: currencyType, Token: req.Currency, IdentifierOrCriteria: new(big.Int),
			StartAmount: proceeds, EndAmount: new(big.Int).Set(proceeds), Recipient: req.Maker,
		})
	} else {
		p.Offer = []types.SeaportItem{{
			ItemType: currencyType, Token: req.Currency, IdentifierOrCriteria: new(big.Int),
			StartAmount: total, EndAmount: new(big.Int).Set(total),
		}}
		nft.Recipient = req.Maker
		p.Consideration = append(p.Consideration, nft)
	}
	for _, l := range lines {
		p.Consideration = append(p.Consideration, types.SeaportItem{
			ItemType: currencyType, Token: req.Currency, IdentifierOrCriteria: new(big.Int),
			StartAmount: l.Amount, EndAmount: new(big.Int).Set(l.Amount), Recipient: l.Recipient,
		})
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

func (a *Seaport) nftItem(req *types.OrderRequest) types.SeaportItem {
	erc1155 := standardOf(req) == types.StandardERC1155
	item := types.SeaportItem{Token: req.Token.Contract, IdentifierOrCriteria: new(big.Int)}
	switch {
	case req.Token.TokenID != nil:
		item.ItemType = types.SeaportItemERC721
		if erc1155 {
			item.ItemType = types.SeaportItemERC1155
		}
		item.IdentifierOrCriteria = new(big.Int).Set(req.Token.TokenID)
	default:
		item.ItemType = types.SeaportItemERC721WithCriteria
		if erc1155 {
			item.ItemType = types.SeaportItemERC1155WithCriteria
		}
		if req.Token.IsTokenList() {
			item.IdentifierOrCriteria = NewMerkleTree(req.Token.TokenIDs).Root().Big()
		}
	}
	return item
}

func (a *Seaport) orderType(req *types.OrderRequest, zone common.Address) uint8 {
	partial := req.Quantity > 1
	restricted := zone != (common.Address{})
	switch {
	case partial && restricted:
		return types.SeaportPartialRestricted
	case restricted:
		return types.SeaportFullRestricted
	case partial:
		return types.SeaportPartialOpen
	default:
		return types.SeaportFullOpen
	}
}

func seaportItems(items []types.SeaportItem, withRecipient bool) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, it := range items {
		m := map[string]interface{}{
			"itemType":             signing.Uint(uint64(it.ItemType)),
			"token":                it.Token.Hex(),
			"identifierOrCriteria": signing.BigOrZero(it.IdentifierOrCriteria),
			"startAmount":          signing.BigOrZero(it.StartAmount),
			"endAmount":            signing.BigOrZero(it.EndAmount),
		}
		if withRecipient {
			m["recipient"] = it.Recipient.Hex()
		}
		out = append(out, m)
	}
	return out
}

func (a *Seaport) typedData(p *types.SeaportParams) *apitypes.TypedData {
	domain := signing.NewDomain("Seaport", a.version(), a.cfg.ChainID, a.cfg.Exchange)
	return signing.NewTypedData(domain, "OrderComponents", seaportTypes, apitypes.TypedDataMessage{
		"offerer":       p.Offerer.Hex(),
		"zone":          p.Zone.Hex(),
		"offer":         seaportItems(p.Offer, false),
		"consideration": seaportItems(p.Consideration, true),
		"orderType":     signing.Uint(uint64(p.OrderType)),
		"startTime":     big.NewInt(p.StartTime),
		"endTime":       big.NewInt(p.EndTime),
		"zoneHash":      p.ZoneHash.Hex(),
		"salt":          signing.BigOrZero(p.Salt),
		"conduitKey":    p.ConduitKey.Hex(),
		"counter":       signing.BigOrZero(p.Counter),
	})
}

// Sign Seaport 的订单 ID 是 OrderComponents 的 hashStruct
func (a *Seaport) Sign(order *types.UnsignedOrder, key *ecdsa.PrivateKey) (*types.SignedOrder, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return nil, err
	}
	signed, err := signTyped(order, key, p.Offerer)
	if err != nil {
		return nil, err
	}
	orderHash, err := signing.StructHash(order.TypedData)
	if err != nil {
		return nil, err
	}
	signed.ID = orderHash.Hex()
	return signed, nil
}

func (a *Seaport) CheckSignature(order *types.SignedOrder) error {
	p, err := a.params(order.Params)
	if err != nil {
		return err
	}
	return verifyTyped(order, p.Offerer)
}

func (a *Seaport) params(op types.OrderParams) (*types.SeaportParams, error) {
	p, ok := op.(*types.SeaportParams)
	if !ok {
		return nil, types.InvalidArgf("%s adapter got %T", a.kind, op)
	}
	return p, nil
}

func (a *Seaport) terms(order *types.SignedOrder) (terms, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return terms{}, err
	}
	req := order.Request
	t := terms{
		maker:       p.Offerer,
		side:        order.Side,
		currency:    req.Currency,
		token:       req.Token,
		tokenID:     req.Token.TokenID,
		tokenIDs:    req.Token.TokenIDs,
		quantity:    req.Quantity,
		total:       req.TotalPrice(),
		fees:        order.Fees,
		expiration:  p.EndTime,
		masterNonce: p.Counter,
		operator:    a.cfg.operator(),
	}
	if t.token.Standard == "" {
		t.token.Standard = types.StandardERC721
	}
	return t, nil
}

func (a *Seaport) CheckFillability(ctx context.Context, order *types.SignedOrder, state ChainState) error {
	t, err := a.terms(order)
	if err != nil {
		return err
	}
	return checkTerms(ctx, a.kind, a.cfg.Exchange, order.ID, t, state)
}

func (a *Seaport) BuildMatching(order *types.SignedOrder, o MatchOverrides) (*Matching, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return matchTerms(a.kind, order.ID, t, o)
}

func (a *Seaport) Quote(order *types.SignedOrder, m *Matching, filled uint64) (*Settlement, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return quoteTerms(order.ID, t, m, filled)
}

func (a *Seaport) Encode(order *types.SignedOrder) ([]byte, error) {
	return encodeTyped(order)
}
