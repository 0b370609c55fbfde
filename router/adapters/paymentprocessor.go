package adapters

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

// PaymentProcessor v2 / v2.1
// 单一 marketplace + marketplaceFeeNumerator；显式费用替换默认订单簿费，费用由卖方承担
type PaymentProcessor struct {
	base
}

func (a *PaymentProcessor) FeePolicy() fees.Policy {
	return fees.Policy{Kind: a.kind, Family: fees.Replace, MaxBps: types.BpsBase}
}

func (a *PaymentProcessor) SupportsSweep() bool { return true }

func (a *PaymentProcessor) v21() bool { return a.kind == types.OrderKindPaymentProcessorV21 }

func (a *PaymentProcessor) version() string {
	if a.v21() {
		return "2.1"
	}
	return "2"
}

func (a *PaymentProcessor) Build(req *types.OrderRequest) (*types.UnsignedOrder, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}
	lines, err := a.composeTotals(req, a.FeePolicy())
	if err != nil {
		return nil, err
	}

	var marketplace common.Address
	marketplaceBps := uint64(0)
	royaltyBps := uint64(0)
	for _, l := range lines {
		switch l.Kind {
		case types.FeeKindRoyalty:
			royaltyBps += uint64(l.Bps)
		default:
			if marketplace != (common.Address{}) && marketplace != l.Recipient {
				return nil, types.InvalidArgf("%s supports a single marketplace fee recipient", a.kind)
			}
			marketplace = l.Recipient
			marketplaceBps += uint64(l.Bps)
		}
	}

	cosigner := common.Address{}
	if req.Options.UseOffChainCancellation {
		cosigner = req.Options.Cosigner
		if cosigner == (common.Address{}) {
			cosigner = a.cfg.Cosigner
		}
		if cosigner == (common.Address{}) {
			return nil, types.InvalidArgf("off-chain cancellation requires a cosigner")
		}
	}

	p := &types.PaymentProcessorParams{
		Protocol:                a.protocol(req),
		Cosigner:                cosigner,
		Maker:                   req.Maker,
		Beneficiary:             req.Maker,
		Marketplace:             marketplace,
		PaymentMethod:           req.Currency,
		TokenAddress:            req.Token.Contract,
		Amount:                  new(big.Int).SetUint64(req.Quantity),
		ItemPrice:               req.TotalPrice(),
		Expiration:              req.Expiration,
		MarketplaceFeeNumerator: new(big.Int).SetUint64(marketplaceBps),
		MaxRoyaltyFeeNumerator:  new(big.Int).SetUint64(royaltyBps),
		Nonce:                   salt(req),
		MasterNonce:             masterNonce(req),
	}
	if a.v21() {
		p.ProtocolFeeVersion = big.NewInt(1)
	}
	switch {
	case req.Side == types.SideListing:
		p.Type = types.PPSaleApproval
		p.TokenID = new(big.Int).Set(req.Token.TokenID)
	case req.Token.IsTokenList():
		p.Type = types.PPTokenSetOffer
		p.TokenIDs = req.Token.TokenIDs
		p.TokenSetMerkleRoot = NewMerkleTree(req.Token.TokenIDs).Root()
	case req.Token.IsContractWide():
		p.Type = types.PPCollectionOffer
	default:
		p.Type = types.PPItemOffer
		p.TokenID = new(big.Int).Set(req.Token.TokenID)
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

func (a *PaymentProcessor) protocol(req *types.OrderRequest) uint8 {
	switch {
	case standardOf(req) != types.StandardERC1155:
		return types.PPProtocolERC721FillOrKill
	case req.Quantity > 1:
		return types.PPProtocolERC1155FillPartial
	default:
		return types.PPProtocolERC1155FillOrKill
	}
}

func (a *PaymentProcessor) typeDefs(kind types.PaymentProcessorOfferKind) apitypes.Types {
	makerField := "buyer"
	if kind == types.PPSaleApproval {
		makerField = "seller"
	}
	fields := []apitypes.Type{
		{Name: "protocol", Type: "uint8"},
		{Name: "cosigner", Type: "address"},
		{Name: makerField, Type: "address"},
	}
	if kind != types.PPSaleApproval {
		fields = append(fields, apitypes.Type{Name: "beneficiary", Type: "address"})
	}
	fields = append(fields,
		apitypes.Type{Name: "marketplace", Type: "address"},
		apitypes.Type{Name: "fallbackRoyaltyRecipient", Type: "address"},
		apitypes.Type{Name: "paymentMethod", Type: "address"},
		apitypes.Type{Name: "tokenAddress", Type: "address"},
	)
	switch kind {
	case types.PPSaleApproval, types.PPItemOffer:
		fields = append(fields, apitypes.Type{Name: "tokenId", Type: "uint256"})
	case types.PPTokenSetOffer:
		fields = append(fields, apitypes.Type{Name: "tokenSetMerkleRoot", Type: "bytes32"})
	}
	fields = append(fields,
		apitypes.Type{Name: "amount", Type: "uint256"},
		apitypes.Type{Name: "itemPrice", Type: "uint256"},
		apitypes.Type{Name: "expiration", Type: "uint256"},
		apitypes.Type{Name: "marketplaceFeeNumerator", Type: "uint256"},
	)
	if kind == types.PPSaleApproval {
		fields = append(fields, apitypes.Type{Name: "maxRoyaltyFeeNumerator", Type: "uint256"})
	}
	fields = append(fields,
		apitypes.Type{Name: "nonce", Type: "uint256"},
		apitypes.Type{Name: "masterNonce", Type: "uint256"},
	)
	if a.v21() {
		fields = append(fields, apitypes.Type{Name: "protocolFeeVersion", Type: "uint256"})
	}
	return apitypes.Types{string(kind): fields}
}

func (a *PaymentProcessor) typedData(p *types.PaymentProcessorParams) *apitypes.TypedData {
	msg := apitypes.TypedDataMessage{
		"protocol":                 signing.Uint(uint64(p.Protocol)),
		"cosigner":                 p.Cosigner.Hex(),
		"marketplace":              p.Marketplace.Hex(),
		"fallbackRoyaltyRecipient": p.FallbackRoyaltyRecipient.Hex(),
		"paymentMethod":            p.PaymentMethod.Hex(),
		"tokenAddress":             p.TokenAddress.Hex(),
		"amount":                   signing.BigOrZero(p.Amount),
		"itemPrice":                signing.BigOrZero(p.ItemPrice),
		"expiration":               big.NewInt(p.Expiration),
		"marketplaceFeeNumerator":  signing.BigOrZero(p.MarketplaceFeeNumerator),
		"nonce":                    signing.BigOrZero(p.Nonce),
		"masterNonce":              signing.BigOrZero(p.MasterNonce),
	}
	if p.Type == types.PPSaleApproval {
		msg["seller"] = p.Maker.Hex()
		msg["maxRoyaltyFeeNumerator"] = signing.BigOrZero(p.MaxRoyaltyFeeNumerator)
	} else {
		msg["buyer"] = p.Maker.Hex()
		msg["beneficiary"] = p.Beneficiary.Hex()
	}
	switch p.Type {
	case types.PPSaleApproval, types.PPItemOffer:
		msg["tokenId"] = signing.BigOrZero(p.TokenID)
	case types.PPTokenSetOffer:
		msg["tokenSetMerkleRoot"] = p.TokenSetMerkleRoot.Hex()
	}
	if a.v21() {
		msg["protocolFeeVersion"] = signing.BigOrZero(p.ProtocolFeeVersion)
	}
	domain := signing.NewDomain("PaymentProcessor", a.version(), a.cfg.ChainID, a.cfg.Exchange)
	return signing.NewTypedData(domain, string(p.Type), a.typeDefs(p.Type), msg)
}

func (a *PaymentProcessor) params(op types.OrderParams) (*types.PaymentProcessorParams, error) {
	p, ok := op.(*types.PaymentProcessorParams)
	if !ok {
		return nil, types.InvalidArgf("%s adapter got %T", a.kind, op)
	}
	return p, nil
}

func (a *PaymentProcessor) Sign(order *types.UnsignedOrder, key *ecdsa.PrivateKey) (*types.SignedOrder, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return nil, err
	}
	return signTyped(order, key, p.Maker)
}

var cosignatureTypes = apitypes.Types{
	"Cosignature": {
		{Name: "v", Type: "uint8"},
		{Name: "r", Type: "bytes32"},
		{Name: "s", Type: "bytes32"},
		{Name: "expiration", Type: "uint256"},
		{Name: "taker", Type: "address"},
	},
}

func (a *PaymentProcessor) cosignatureData(order *types.SignedOrder, taker common.Address, expiration int64) (*apitypes.TypedData, error) {
	v, r, s, err := signing.SplitSignature(order.Signature)
	if err != nil {
		return nil, err
	}
	domain := signing.NewDomain("PaymentProcessor", a.version(), a.cfg.ChainID, a.cfg.Exchange)
	return signing.NewTypedData(domain, "Cosignature", cosignatureTypes, apitypes.TypedDataMessage{
		"v":          signing.Uint(uint64(v)),
		"r":          r.Hex(),
		"s":          s.Hex(),
		"expiration": big.NewInt(expiration),
		"taker":      taker.Hex(),
	}), nil
}

// Cosign 共签人为指定 taker 签发限时授权
func (a *PaymentProcessor) Cosign(order *types.SignedOrder, key *ecdsa.PrivateKey, taker common.Address, expiration int64) error {
	p, err := a.params(order.Params)
	if err != nil {
		return err
	}
	if p.Cosigner == (common.Address{}) {
		return types.InvalidArgf("order %s has no cosigner", order.ID)
	}
	if signer := signing.AddressOf(key); signer != p.Cosigner {
		return fmt.Errorf("%w: signer %s is not cosigner %s", types.ErrSignature, signer.Hex(), p.Cosigner.Hex())
	}
	td, err := a.cosignatureData(order, taker, expiration)
	if err != nil {
		return err
	}
	sig, _, err := signing.SignTypedData(key, td)
	if err != nil {
		return err
	}
	order.Cosignature = &types.Cosignature{Signer: p.Cosigner, Taker: taker, Expiration: expiration, Signature: sig}
	return nil
}

func (a *PaymentProcessor) CheckSignature(order *types.SignedOrder) error {
	p, err := a.params(order.Params)
	if err != nil {
		return err
	}
	if err := verifyTyped(order, p.Maker); err != nil {
		return err
	}
	if p.Cosigner == (common.Address{}) || order.Cosignature == nil {
		return nil
	}
	td, err := a.cosignatureData(order, order.Cosignature.Taker, order.Cosignature.Expiration)
	if err != nil {
		return err
	}
	got, err := signing.Recover(td, order.Cosignature.Signature)
	if err != nil {
		return err
	}
	if got != p.Cosigner {
		return fmt.Errorf("%w: cosignature recovered %s, want %s", types.ErrInvalidSignature, got.Hex(), p.Cosigner.Hex())
	}
	return nil
}

func (a *PaymentProcessor) terms(order *types.SignedOrder) (terms, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return terms{}, err
	}
	req := order.Request
	t := terms{
		maker:       p.Maker,
		side:        order.Side,
		currency:    p.PaymentMethod,
		token:       req.Token,
		tokenID:     p.TokenID,
		tokenIDs:    p.TokenIDs,
		quantity:    p.Amount.Uint64(),
		total:       p.ItemPrice,
		fees:        order.Fees,
		expiration:  p.Expiration,
		nonce:       p.Nonce,
		masterNonce: p.MasterNonce,
		operator:    a.cfg.operator(),
	}
	if t.token.Standard == "" {
		t.token.Standard = types.StandardERC721
	}
	return t, nil
}

func (a *PaymentProcessor) CheckFillability(ctx context.Context, order *types.SignedOrder, state ChainState) error {
	t, err := a.terms(order)
	if err != nil {
		return err
	}
	return checkTerms(ctx, a.kind, a.cfg.Exchange, order.ID, t, state)
}

// BuildMatching 共签订单必须先由共签人授权给同一个 taker
func (a *PaymentProcessor) BuildMatching(order *types.SignedOrder, o MatchOverrides) (*Matching, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return nil, err
	}
	if p.Cosigner != (common.Address{}) {
		if order.Cosignature == nil {
			return nil, types.InvalidArgf("order %s requires a cosignature", order.ID)
		}
		if order.Cosignature.Taker != o.Taker {
			return nil, types.InvalidArgf("cosignature was issued for taker %s", order.Cosignature.Taker.Hex())
		}
	}
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return matchTerms(a.kind, order.ID, t, o)
}

func (a *PaymentProcessor) Quote(order *types.SignedOrder, m *Matching, filled uint64) (*Settlement, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return quoteTerms(order.ID, t, m, filled)
}

func (a *PaymentProcessor) Encode(order *types.SignedOrder) ([]byte, error) {
	return encodeTyped(order)
}
