package adapters

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/types"
)

// NftxProtocolFeeBps NFTX 池固定协议费，由买方额外支付
const NftxProtocolFeeBps = 50

var uint256ArrayType, _ = abi.NewType("uint256[]", "", nil)

// Nftx 池子报价，没有签名；listing 由 vault 出货，offer 由池子付款
type Nftx struct {
	base
}

func (a *Nftx) FeePolicy() fees.Policy {
	return fees.Policy{Kind: a.kind, Family: fees.External, MaxBps: types.BpsBase}
}

func (a *Nftx) SupportsSweep() bool { return false }

func (a *Nftx) validate(req *types.OrderRequest) error {
	if req == nil {
		return types.InvalidArgf("nil request")
	}
	if req.Kind != a.kind {
		return types.InvalidArgf("request kind %q sent to %q adapter", req.Kind, a.kind)
	}
	if err := req.Validate(a.now()); err != nil {
		return err
	}
	if !types.IsNative(req.Currency) {
		return types.InvalidArgf("nftx pools only trade against the native currency")
	}
	if len(req.FeePolicies) > 0 || len(req.Royalties) > 0 {
		return types.InvalidArgf("nftx pools do not carry marketplace fees or royalties")
	}
	if req.Options.NftxVault == (common.Address{}) || req.Options.NftxPool == (common.Address{}) {
		return types.InvalidArgf("nftx orders require a vault and a pool")
	}
	if req.Side == types.SideListing && req.Token.IsTokenList() {
		return types.InvalidArgf("nftx listings target a single vault token")
	}
	return nil
}

func (a *Nftx) Build(req *types.OrderRequest) (*types.UnsignedOrder, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}
	p := &types.NftxParams{
		Vault:          req.Options.NftxVault,
		VaultID:        new(big.Int),
		Pool:           req.Options.NftxPool,
		UnitPrice:      new(big.Int).Set(req.UnitPrice),
		ProtocolFeeBps: NftxProtocolFeeBps,
	}
	if req.Options.NftxVaultID != nil {
		p.VaultID.Set(req.Options.NftxVaultID)
	}
	switch {
	case req.Token.TokenID != nil:
		p.TokenIDs = []*big.Int{new(big.Int).Set(req.Token.TokenID)}
	case req.Token.IsTokenList():
		p.TokenIDs = req.Token.TokenIDs
	}
	lines := []types.FeeAmount{{
		Recipient: p.Vault,
		Bps:       NftxProtocolFeeBps,
		Amount:    fees.Amount(req.TotalPrice(), NftxProtocolFeeBps),
		Kind:      types.FeeKindProtocol,
	}}
	return &types.UnsignedOrder{
		Kind:     a.kind,
		Side:     req.Side,
		Request:  *req,
		Exchange: a.cfg.Exchange,
		Params:   p,
		Fees:     lines,
	}, nil
}

func (a *Nftx) params(op types.OrderParams) (*types.NftxParams, error) {
	p, ok := op.(*types.NftxParams)
	if !ok {
		return nil, types.InvalidArgf("%s adapter got %T", a.kind, op)
	}
	return p, nil
}

// Sign 池子报价不需要签名，ID 由报价内容派生
func (a *Nftx) Sign(order *types.UnsignedOrder, _ *ecdsa.PrivateKey) (*types.SignedOrder, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return nil, err
	}
	data, err := a.pack(p)
	if err != nil {
		return nil, err
	}
	id := crypto.Keccak256Hash([]byte(order.Side), p.Pool.Bytes(), data)
	return &types.SignedOrder{UnsignedOrder: *order, ID: id.Hex()}, nil
}

func (a *Nftx) CheckSignature(*types.SignedOrder) error { return nil }

func (a *Nftx) terms(order *types.SignedOrder) (terms, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return terms{}, err
	}
	t := terms{
		maker:         p.Vault,
		side:          order.Side,
		currency:      types.NativeCurrency,
		token:         order.Request.Token,
		tokenID:       order.Request.Token.TokenID,
		tokenIDs:      order.Request.Token.TokenIDs,
		quantity:      order.Request.Quantity,
		total:         order.Request.TotalPrice(),
		fees:          order.Fees,
		buyerPaysFees: order.Side == types.SideListing,
		expiration:    order.Request.Expiration,
		skipApproval:  true,
	}
	if order.Side == types.SideBid {
		t.maker = p.Pool
	}
	if t.token.Standard == "" {
		t.token.Standard = types.StandardERC721
	}
	return t, nil
}

func (a *Nftx) CheckFillability(ctx context.Context, order *types.SignedOrder, state ChainState) error {
	t, err := a.terms(order)
	if err != nil {
		return err
	}
	return checkTerms(ctx, a.kind, a.cfg.Exchange, order.ID, t, state)
}

func (a *Nftx) BuildMatching(order *types.SignedOrder, o MatchOverrides) (*Matching, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return matchTerms(a.kind, order.ID, t, o)
}

func (a *Nftx) Quote(order *types.SignedOrder, m *Matching, filled uint64) (*Settlement, error) {
	t, err := a.terms(order)
	if err != nil {
		return nil, err
	}
	return quoteTerms(order.ID, t, m, filled)
}

// Encode abi.encode(vault, vaultId, tokenIds, unitPrice)
func (a *Nftx) Encode(order *types.SignedOrder) ([]byte, error) {
	p, err := a.params(order.Params)
	if err != nil {
		return nil, err
	}
	return a.pack(p)
}

func (a *Nftx) pack(p *types.NftxParams) ([]byte, error) {
	ids := p.TokenIDs
	if ids == nil {
		ids = []*big.Int{}
	}
	return abi.Arguments{
		{Type: addressType},
		{Type: uint256Type},
		{Type: uint256ArrayType},
		{Type: uint256Type},
	}.Pack(p.Vault, p.VaultID, ids, p.UnitPrice)
}
