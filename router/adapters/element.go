package adapters

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

// ElementNativeToken Element / ZeroEx 表示原生币的地址
var ElementNativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

var (
	feeType      = []apitypes.Type{{Name: "recipient", Type: "address"}, {Name: "amount", Type: "uint256"}, {Name: "feeData", Type: "bytes"}}
	propertyType = []apitypes.Type{{Name: "propertyValidator", Type: "address"}, {Name: "propertyData", Type: "bytes"}}
)

// Element 费用为绝对金额，由买方额外支付
type Element struct {
	base
}

func (a *Element) FeePolicy() fees.Policy {
	return fees.Policy{Kind: a.kind, Family: fees.Additive, MaxBps: types.BpsBase}
}

func (a *Element) SupportsSweep() bool { return true }

func (a *Element) Build(req *types.OrderRequest) (*types.UnsignedOrder, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}
	if req.Token.IsTokenList() {
		return nil, types.InvalidArgf("element orders cannot target a token list")
	}
	lines, err := a.composeTotals(req, a.FeePolicy())
	if err != nil {
		return nil, err
	}
	p := &types.ElementParams{
		Maker:            req.Maker,
		Expiry:           PackExpiry(a.listingTime(req), req.Expiration),
		Nonce:            salt(req),
		Erc20Token:       erc20Token(req.Currency),
		Erc20TokenAmount: req.TotalPrice(),
		Fees:             protocolFees(lines),
		Nft:              req.Token.Contract,
		NftID:            new(big.Int),
		HashNonce:        masterNonce(req),
	}
	if standardOf(req) == types.StandardERC1155 {
		p.NftAmount = new(big.Int).SetUint64(req.Quantity)
	}
	if req.Token.TokenID != nil {
		p.NftID = new(big.Int).Set(req.Token.TokenID)
	} else {
		p.Properties = []types.Property{{}}
	}
	return &types.UnsignedOrder{
		Kind:      a.kind,
		Side:      req.Side,
		Request:   *req,
		Exchange:  a.cfg.Exchange,
		Params:    p,
		Fees:      lines,
		TypedData: a.typedData(req.Side, standardOf(req), p),
	}, nil
}

func erc20Token(currency common.Address) common.Address {
	if types.IsNative(currency) {
		return ElementNativeToken
	}
	return currency
}

func protocolFees(lines []types.FeeAmount) []types.ProtocolFee {
	out := make([]types.ProtocolFee, 0, len(lines))
	for _, l := range lines {
		out = append(out, types.ProtocolFee{Recipient: l.Recipient, Amount: new(big.Int).Set(l.Amount)})
	}
	return out
}

func feeValues(list []types.ProtocolFee) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, f := range list {
		out = append(out, map[string]interface{}{
			"recipient": f.Recipient.Hex(),
			"amount":    signing.BigOrZero(f.Amount),
			"feeData":   hexutil.Encode(f.FeeData),
		})
	}
	return out
}

func propertyValues(list []types.Property) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, p := range list {
		out = append(out, map[string]interface{}{
			"propertyValidator": p.Validator.Hex(),
			"propertyData":      hexutil.Encode(p.Data),
		})
	}
	return out
}

func (a *Element) typedData(side types.Side, standard types.TokenStandard, p *types.ElementParams) *apitypes.TypedData {
	fields := []apitypes.Type{
		{Name: "maker", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "expiry", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "erc20Token", Type: "address"},
		{Name: "erc20TokenAmount", Type: "uint256"},
		{Name: "fees", Type: "Fee[]"},
	}
	msg := apitypes.TypedDataMessage{
		"maker":            p.Maker.Hex(),
		"taker":            p.Taker.Hex(),
		"expiry":           signing.BigOrZero(p.Expiry),
		"nonce":            signing.BigOrZero(p.Nonce),
		"erc20Token":       p.Erc20Token.Hex(),
		"erc20TokenAmount": signing.BigOrZero(p.Erc20TokenAmount),
		"fees":             feeValues(p.Fees),
		"hashNonce":        signing.BigOrZero(p.HashNonce),
	}
	typeDefs := apitypes.Types{"Fee": feeType}
	var primary string
	if standard == types.StandardERC1155 {
		fields = append(fields,
			apitypes.Type{Name: "erc1155Token", Type: "address"},
			apitypes.Type{Name: "erc1155TokenId", Type: "uint256"},
		)
		msg["erc1155Token"] = p.Nft.Hex()
		msg["erc1155TokenId"] = signing.BigOrZero(p.NftID)
		if side == types.SideBid {
			fields = append(fields, apitypes.Type{Name: "erc1155TokenProperties", Type: "Property[]"})
			msg["erc1155TokenProperties"] = propertyValues(p.Properties)
			typeDefs["Property"] = propertyType
			primary = "ERC1155BuyOrder"
		} else {
			primary = "ERC1155SellOrder"
		}
		fields = append(fields, apitypes.Type{Name: "erc1155TokenAmount", Type: "uint128"})
		msg["erc1155TokenAmount"] = signing.BigOrZero(p.NftAmount)
	} else {
		fields = append(fields,
			apitypes.Type{Name: "nft", Type: "address"},
			apitypes.Type{Name: "nftId", Type: "uint256"},
		)
		msg["nft"] = p.Nft.Hex()
		msg["nftId"] = signing.BigOrZero(p.NftID)
		if side == types.SideBid {
			fields = append(fields, apitypes.Type{Name: "nftProperties", Type: "Property[]"})
			msg["nftProperties"] = propertyValues(p.Properties)
			typeDefs["Property"] = propertyType
			primary = "ERC721BuyOrder"
		} else {
			primary = "ERC721SellOrder"
		}
	}
	fields = append(fields, apitypes.Type{Name: "hashNonce", Type: "uint256"})
	typeDefs[primary] = fields
	domain := signing.NewDomain("ElementEx", "1.0.0", a.cfg.ChainID, a.cfg.Exchange)
	return signing.NewTypedData(domain, primary, typeDefs, msg)
}

func (a *Element) params(op types.OrderParams) (*types.ElementParams, error) {
	p, ok := op.(*types.ElementParams)
	if !ok {
		return nil, types.InvalidArgf("%s adapter got %T", a.kind, op)
	}
	return p, nil
}

func (a *Element) Sign(order *types.UnsignedOrder, key *ecdsa.PrivateKey) (*types.SignedOrder, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return nil, err
	}
	return signTyped(order, key, p.Maker)
}

func (a *Element) CheckSignature(order *types.SignedOrder) error {
	p, err := a.params(order.Params)
	if err != nil {
		return err
	}
	return verifyTyped(order, p.Maker)
}

func (a *Element) terms(order *types.SignedOrder) (terms, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return terms{}, err
	}
	_, expiration := UnpackExpiry(p.Expiry)
	t := terms{
		maker:         p.Maker,
		side:          order.Side,
		currency:      order.Request.Currency,
		token:         order.Request.Token,
		tokenID:       order.Request.Token.TokenID,
		quantity:      order.Request.Quantity,
		total:         p.Erc20TokenAmount,
		fees:          order.Fees,
		buyerPaysFees: true,
		expiration:    expiration,
		nonce:         p.Nonce,
		masterNonce:   p.HashNonce,
		operator:      a.cfg.operator(),
	}
	if t.token.Standard == "" {
		t.token.Standard = types.StandardERC721
	}
	return t, nil
}

func (a *Element) CheckFillability(ctx context.Context, order *types.SignedOrder, state ChainState) error {
	t, err := a.terms(order)
	if err != nil {
		return err
	}
	return checkTerms(ctx, a.kind, a.cfg.Exchange, order.ID, t, state)
}

func (a *Element) BuildMatching(order *types.SignedOrder, o MatchOverrides) (*Matching, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return matchTerms(a.kind, order.ID, t, o)
}

func (a *Element) Quote(order *types.SignedOrder, m *Matching, filled uint64) (*Settlement, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return quoteTerms(order.ID, t, m, filled)
}

func (a *Element) Encode(order *types.SignedOrder) ([]byte, error) {
	return encodeTyped(order)
}
