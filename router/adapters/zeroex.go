package adapters

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

// ZeroExV4 没有 master nonce，取消只能逐单作废 nonce；不支持批量扫单
type ZeroExV4 struct {
	base
}

func (a *ZeroExV4) FeePolicy() fees.Policy {
	return fees.Policy{Kind: a.kind, Family: fees.Additive, MaxBps: types.BpsBase}
}

func (a *ZeroExV4) SupportsSweep() bool { return false }

func (a *ZeroExV4) Build(req *types.OrderRequest) (*types.UnsignedOrder, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}
	if req.Token.IsTokenList() {
		return nil, types.InvalidArgf("zeroex orders cannot target a token list")
	}
	lines, err := a.composeTotals(req, a.FeePolicy())
	if err != nil {
		return nil, err
	}
	p := &types.ZeroExV4Params{
		Direction:        types.ZeroExDirectionSell,
		Maker:            req.Maker,
		Expiry:           req.Expiration,
		Nonce:            salt(req),
		Erc20Token:       erc20Token(req.Currency),
		Erc20TokenAmount: req.TotalPrice(),
		Fees:             protocolFees(lines),
		Nft:              req.Token.Contract,
		NftID:            new(big.Int),
	}
	if req.Side == types.SideBid {
		p.Direction = types.ZeroExDirectionBuy
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
		TypedData: a.typedData(standardOf(req), p),
	}, nil
}

func (a *ZeroExV4) typedData(standard types.TokenStandard, p *types.ZeroExV4Params) *apitypes.TypedData {
	fields := []apitypes.Type{
		{Name: "direction", Type: "uint8"},
		{Name: "maker", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "expiry", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "erc20Token", Type: "address"},
		{Name: "erc20TokenAmount", Type: "uint256"},
		{Name: "fees", Type: "Fee[]"},
	}
	msg := apitypes.TypedDataMessage{
		"direction":        signing.Uint(uint64(p.Direction)),
		"maker":            p.Maker.Hex(),
		"taker":            p.Taker.Hex(),
		"expiry":           big.NewInt(p.Expiry),
		"nonce":            signing.BigOrZero(p.Nonce),
		"erc20Token":       p.Erc20Token.Hex(),
		"erc20TokenAmount": signing.BigOrZero(p.Erc20TokenAmount),
		"fees":             feeValues(p.Fees),
	}
	primary, prefix := "ERC721Order", "erc721Token"
	if standard == types.StandardERC1155 {
		primary, prefix = "ERC1155Order", "erc1155Token"
	}
	fields = append(fields,
		apitypes.Type{Name: prefix, Type: "address"},
		apitypes.Type{Name: prefix + "Id", Type: "uint256"},
		apitypes.Type{Name: prefix + "Properties", Type: "Property[]"},
	)
	msg[prefix] = p.Nft.Hex()
	msg[prefix+"Id"] = signing.BigOrZero(p.NftID)
	msg[prefix+"Properties"] = propertyValues(p.Properties)
	if standard == types.StandardERC1155 {
		fields = append(fields, apitypes.Type{Name: "erc1155TokenAmount", Type: "uint128"})
		msg["erc1155TokenAmount"] = signing.BigOrZero(p.NftAmount)
	}
	typeDefs := apitypes.Types{
		primary:    fields,
		"Fee":      feeType,
		"Property": propertyType,
	}
	domain := signing.NewDomain("ZeroEx", "1.0.0", a.cfg.ChainID, a.cfg.Exchange)
	return signing.NewTypedData(domain, primary, typeDefs, msg)
}

func (a *ZeroExV4) params(op types.OrderParams) (*types.ZeroExV4Params, error) {
	p, ok := op.(*types.ZeroExV4Params)
	if !ok {
		return nil, types.InvalidArgf("%s adapter got %T", a.kind, op)
	}
	return p, nil
}

func (a *ZeroExV4) Sign(order *types.UnsignedOrder, key *ecdsa.PrivateKey) (*types.SignedOrder, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return nil, err
	}
	return signTyped(order, key, p.Maker)
}

func (a *ZeroExV4) CheckSignature(order *types.SignedOrder) error {
	p, err := a.params(order.Params)
	if err != nil {
		return err
	}
	return verifyTyped(order, p.Maker)
}

func (a *ZeroExV4) terms(order *types.SignedOrder) (terms, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return terms{}, err
	}
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
		expiration:    p.Expiry,
		nonce:         p.Nonce,
		operator:      a.cfg.operator(),
	}
	if t.token.Standard == "" {
		t.token.Standard = types.StandardERC721
	}
	return t, nil
}

func (a *ZeroExV4) CheckFillability(ctx context.Context, order *types.SignedOrder, state ChainState) error {
	t, err := a.terms(order)
	if err != nil {
		return err
	}
	return checkTerms(ctx, a.kind, a.cfg.Exchange, order.ID, t, state)
}

func (a *ZeroExV4) BuildMatching(order *types.SignedOrder, o MatchOverrides) (*Matching, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return matchTerms(a.kind, order.ID, t, o)
}

func (a *ZeroExV4) Quote(order *types.SignedOrder, m *Matching, filled uint64) (*Settlement, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return quoteTerms(order.ID, t, m, filled)
}

func (a *ZeroExV4) Encode(order *types.SignedOrder) ([]byte, error) {
	return encodeTyped(order)
}
