package adapters

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

const (
	makerKeyHex    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	cosignerKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	ether       = big.NewInt(1_000_000_000_000_000_000)
	weth        = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	nftContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	taker       = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	feeAccount  = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	royaltyAcct = common.HexToAddress("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65")
)

func testKey(t *testing.T, hexKey string) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := signing.PrivateKeyFromHex(hexKey)
	require.NoError(t, err)
	return key, signing.AddressOf(key)
}

func testAdapter(t *testing.T, kind types.OrderKind) Adapter {
	t.Helper()
	a, err := New(kind, fees.NewComposer(fees.StandardDefaults()), Config{
		ChainID:  1,
		Exchange: common.HexToAddress("0x0000000000000068F116a894984e2DB1123eB395"),
		Module:   common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Zone:     common.HexToAddress("0x00000000000000000000000000000000000000bb"),
	})
	require.NoError(t, err)
	return a
}

func listing(kind types.OrderKind, maker common.Address) *types.OrderRequest {
	return &types.OrderRequest{
		Kind:       kind,
		Side:       types.SideListing,
		Maker:      maker,
		Token:      types.TokenRef{Contract: nftContract, TokenID: big.NewInt(7), Standard: types.StandardERC721},
		Quantity:   1,
		Currency:   types.NativeCurrency,
		UnitPrice:  new(big.Int).Set(ether),
		Expiration: time.Now().Add(time.Hour).Unix(),
	}
}

func bid(kind types.OrderKind, maker common.Address) *types.OrderRequest {
	req := listing(kind, maker)
	req.Side = types.SideBid
	req.Currency = weth
	return req
}

// fakeState 内存链上状态，默认一切可成交
type fakeState struct {
	now         int64
	masterNonce *big.Int
	usedNonce   bool
	cancelled   bool
	filled      uint64
	balance     *big.Int
	allowance   *big.Int
	nftBalance  uint64
	approved    bool
}

func healthyState() *fakeState {
	huge := new(big.Int).Mul(ether, big.NewInt(1000))
	return &fakeState{
		now:         time.Now().Unix(),
		masterNonce: new(big.Int),
		balance:     huge,
		allowance:   huge,
		nftBalance:  10,
		approved:    true,
	}
}

func (s *fakeState) Now(context.Context) (int64, error) { return s.now, nil }

func (s *fakeState) MasterNonce(context.Context, types.OrderKind, common.Address, common.Address) (*big.Int, error) {
	return s.masterNonce, nil
}

func (s *fakeState) IsNonceUsed(context.Context, types.OrderKind, common.Address, common.Address, *big.Int) (bool, error) {
	return s.usedNonce, nil
}

func (s *fakeState) IsCancelled(context.Context, types.OrderKind, common.Address, string) (bool, error) {
	return s.cancelled, nil
}

func (s *fakeState) FilledAmount(context.Context, types.OrderKind, common.Address, string) (uint64, error) {
	return s.filled, nil
}

func (s *fakeState) Balance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return s.balance, nil
}

func (s *fakeState) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return s.allowance, nil
}

func (s *fakeState) NFTBalance(context.Context, types.TokenRef, *big.Int, common.Address) (uint64, error) {
	return s.nftBalance, nil
}

func (s *fakeState) IsApprovedForAll(context.Context, common.Address, common.Address, common.Address) (bool, error) {
	return s.approved, nil
}

func TestBuildSignCheckAllKinds(t *testing.T) {
	key, maker := testKey(t, makerKeyHex)
	for _, kind := range types.AllOrderKinds() {
		if kind == types.OrderKindNftx {
			continue
		}
		for _, req := range []*types.OrderRequest{listing(kind, maker), bid(kind, maker)} {
			t.Run(string(kind)+"/"+string(req.Side), func(t *testing.T) {
				a := testAdapter(t, kind)
				unsigned, err := a.Build(req)
				require.NoError(t, err)
				require.NotNil(t, unsigned.TypedData)

				signed, err := a.Sign(unsigned, key)
				require.NoError(t, err)
				require.Len(t, signed.Signature, 65)
				assert.Contains(t, []byte{27, 28}, signed.Signature[64])
				require.NoError(t, a.CheckSignature(signed))
				require.NoError(t, a.CheckFillability(context.Background(), signed, healthyState()))

				data, err := a.Encode(signed)
				require.NoError(t, err)
				assert.NotEmpty(t, data)

				// 篡改 salt / nonce 后签名失效
				tampered := *signed
				td := *signed.TypedData
				msg := make(map[string]interface{}, len(td.Message))
				for k, v := range td.Message {
					msg[k] = v
				}
				for _, field := range []string{"salt", "nonce"} {
					if _, ok := msg[field]; ok {
						msg[field] = big.NewInt(1)
					}
				}
				td.Message = msg
				tampered.TypedData = &td
				assert.ErrorIs(t, a.CheckSignature(&tampered), types.ErrInvalidSignature)
			})
		}
	}
}

func TestSignRejectsForeignKey(t *testing.T) {
	_, maker := testKey(t, makerKeyHex)
	other, _ := testKey(t, cosignerKeyHex)
	a := testAdapter(t, types.OrderKindSeaportV15)
	unsigned, err := a.Build(listing(types.OrderKindSeaportV15, maker))
	require.NoError(t, err)
	_, err = a.Sign(unsigned, other)
	assert.ErrorIs(t, err, types.ErrSignature)
}

func TestNativeBidRejected(t *testing.T) {
	_, maker := testKey(t, makerKeyHex)
	req := bid(types.OrderKindSeaportV15, maker)
	req.Currency = types.NativeCurrency
	_, err := testAdapter(t, types.OrderKindSeaportV15).Build(req)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestSeaportDefaultFeeConsideration(t *testing.T) {
	_, maker := testKey(t, makerKeyHex)
	a := testAdapter(t, types.OrderKindSeaportV15)
	unsigned, err := a.Build(listing(types.OrderKindSeaportV15, maker))
	require.NoError(t, err)

	p := unsigned.Params.(*types.SeaportParams)
	require.Len(t, p.Consideration, 2)
	def := fees.StandardDefaults()
	assert.Equal(t, maker, p.Consideration[0].Recipient)
	assert.Equal(t, def.Recipient, p.Consideration[1].Recipient)
	// 0.5% of 1 ETH
	assert.Equal(t, "5000000000000000", p.Consideration[1].StartAmount.String())
	assert.Equal(t, "995000000000000000", p.Consideration[0].StartAmount.String())
	assert.Equal(t, types.SeaportFullOpen, p.OrderType)
}

func TestSeaportExternalOrderbookSkipsDefault(t *testing.T) {
	_, maker := testKey(t, makerKeyHex)
	req := listing(types.OrderKindSeaportV16, maker)
	req.Options.Orderbook = "opensea"
	unsigned, err := testAdapter(t, types.OrderKindSeaportV16).Build(req)
	require.NoError(t, err)
	assert.Empty(t, unsigned.Fees)
	assert.Len(t, unsigned.Params.(*types.SeaportParams).Consideration, 1)
}

func TestSeaportOffChainCancellationNeedsZone(t *testing.T) {
	_, maker := testKey(t, makerKeyHex)
	a, err := New(types.OrderKindSeaportV15, fees.NewComposer(fees.StandardDefaults()), Config{ChainID: 1, Exchange: common.HexToAddress("0x01")})
	require.NoError(t, err)
	req := listing(types.OrderKindSeaportV15, maker)
	req.Options.UseOffChainCancellation = true
	_, err = a.Build(req)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	unsigned, err := testAdapter(t, types.OrderKindSeaportV15).Build(req)
	require.NoError(t, err)
	assert.Equal(t, types.SeaportFullRestricted, unsigned.Params.(*types.SeaportParams).OrderType)
}

func TestSeaportTokenListBid(t *testing.T) {
	_, maker := testKey(t, makerKeyHex)
	req := bid(types.OrderKindSeaportV15, maker)
	ids := []*big.Int{big.NewInt(1), big.NewInt(5), big.NewInt(9)}
	req.Token = types.TokenRef{Contract: nftContract, TokenIDs: ids, Standard: types.StandardERC721}
	a := testAdapter(t, types.OrderKindSeaportV15)
	key, _ := testKey(t, makerKeyHex)
	unsigned, err := a.Build(req)
	require.NoError(t, err)
	p := unsigned.Params.(*types.SeaportParams)
	assert.Equal(t, types.SeaportItemERC721WithCriteria, p.Consideration[0].ItemType)
	root := NewMerkleTree(ids).Root()
	assert.Zero(t, root.Big().Cmp(p.Consideration[0].IdentifierOrCriteria))

	signed, err := a.Sign(unsigned, key)
	require.NoError(t, err)
	_, err = a.BuildMatching(signed, MatchOverrides{Taker: taker})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = a.BuildMatching(signed, MatchOverrides{Taker: taker, TokenID: big.NewInt(2)})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	m, err := a.BuildMatching(signed, MatchOverrides{Taker: taker, TokenID: big.NewInt(5)})
	require.NoError(t, err)
	assert.True(t, VerifyProof(root, big.NewInt(5), m.Proof))
	assert.Equal(t, types.SideListing, m.Side)
}

func TestPaymentProcessorReplaceFamily(t *testing.T) {
	_, maker := testKey(t, makerKeyHex)
	a := testAdapter(t, types.OrderKindPaymentProcessorV2)
	def := fees.StandardDefaults()

	unsigned, err := a.Build(bid(types.OrderKindPaymentProcessorV2, maker))
	require.NoError(t, err)
	p := unsigned.Params.(*types.PaymentProcessorParams)
	assert.Equal(t, def.Recipient, p.Marketplace)
	assert.Equal(t, int64(def.Bps), p.MarketplaceFeeNumerator.Int64())

	req := bid(types.OrderKindPaymentProcessorV2, maker)
	req.FeePolicies = []types.FeePolicy{{Recipient: feeAccount, Bps: 10}}
	unsigned, err = a.Build(req)
	require.NoError(t, err)
	p = unsigned.Params.(*types.PaymentProcessorParams)
	assert.Equal(t, feeAccount, p.Marketplace)
	assert.Equal(t, int64(10), p.MarketplaceFeeNumerator.Int64())
	require.Len(t, unsigned.Fees, 1)

	req.FeePolicies = append(req.FeePolicies, types.FeePolicy{Recipient: royaltyAcct, Bps: 10})
	_, err = a.Build(req)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestPaymentProcessorOfferKinds(t *testing.T) {
	_, maker := testKey(t, makerKeyHex)
	a := testAdapter(t, types.OrderKindPaymentProcessorV21)

	cases := []struct {
		token types.TokenRef
		want  types.PaymentProcessorOfferKind
	}{
		{types.TokenRef{Contract: nftContract, TokenID: big.NewInt(1)}, types.PPItemOffer},
		{types.TokenRef{Contract: nftContract}, types.PPCollectionOffer},
		{types.TokenRef{Contract: nftContract, TokenIDs: []*big.Int{big.NewInt(1), big.NewInt(2)}}, types.PPTokenSetOffer},
	}
	for _, tc := range cases {
		req := bid(types.OrderKindPaymentProcessorV21, maker)
		req.Token = tc.token
		unsigned, err := a.Build(req)
		require.NoError(t, err)
		p := unsigned.Params.(*types.PaymentProcessorParams)
		assert.Equal(t, tc.want, p.Type)
		assert.Equal(t, int64(1), p.ProtocolFeeVersion.Int64())
	}
}

func TestPaymentProcessorCosign(t *testing.T) {
	key, maker := testKey(t, makerKeyHex)
	cosignerKey, cosigner := testKey(t, cosignerKeyHex)
	kind := types.OrderKindPaymentProcessorV2
	a := testAdapter(t, kind)

	req := listing(kind, maker)
	req.Options.UseOffChainCancellation = true
	_, err := a.Build(req)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	req.Options.Cosigner = cosigner
	unsigned, err := a.Build(req)
	require.NoError(t, err)
	signed, err := a.Sign(unsigned, key)
	require.NoError(t, err)

	_, err = a.BuildMatching(signed, MatchOverrides{Taker: taker})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	pp := a.(*PaymentProcessor)
	assert.ErrorIs(t, pp.Cosign(signed, key, taker, time.Now().Add(time.Minute).Unix()), types.ErrSignature)
	require.NoError(t, pp.Cosign(signed, cosignerKey, taker, time.Now().Add(time.Minute).Unix()))
	require.NoError(t, a.CheckSignature(signed))

	m, err := a.BuildMatching(signed, MatchOverrides{Taker: taker})
	require.NoError(t, err)
	assert.Equal(t, taker, m.Recipient)

	_, err = a.BuildMatching(signed, MatchOverrides{Taker: feeAccount})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	signed.Cosignature.Taker = feeAccount
	assert.ErrorIs(t, a.CheckSignature(signed), types.ErrInvalidSignature)
}

func TestFillabilityOrder(t *testing.T) {
	key, maker := testKey(t, makerKeyHex)
	a := testAdapter(t, types.OrderKindSeaportV15)
	unsigned, err := a.Build(listing(types.OrderKindSeaportV15, maker))
	require.NoError(t, err)
	signed, err := a.Sign(unsigned, key)
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(s *fakeState)
		want   types.UnfillableReason
	}{
		{"expired beats everything", func(s *fakeState) {
			s.now = signed.Request.Expiration
			s.cancelled, s.nftBalance, s.approved = true, 0, false
		}, types.ReasonExpired},
		{"cancelled", func(s *fakeState) { s.cancelled, s.masterNonce = true, big.NewInt(3) }, types.ReasonCancelled},
		{"fully filled", func(s *fakeState) { s.filled = 1 }, types.ReasonCancelled},
		{"counter bumped", func(s *fakeState) { s.masterNonce, s.nftBalance = big.NewInt(1), 0 }, types.ReasonNonceInvalid},
		{"no token", func(s *fakeState) { s.nftBalance, s.approved = 0, false }, types.ReasonInsufficientBalance},
		{"not approved", func(s *fakeState) { s.approved = false }, types.ReasonNotApproved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := healthyState()
			tc.mutate(s)
			err := a.CheckFillability(context.Background(), signed, s)
			require.ErrorIs(t, err, types.ErrUnfillable)
			reason, ok := types.UnfillableReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, tc.want, reason)
		})
	}
}

func TestBidFillabilityCountsBuyerFees(t *testing.T) {
	key, maker := testKey(t, makerKeyHex)
	a := testAdapter(t, types.OrderKindElement)
	unsigned, err := a.Build(bid(types.OrderKindElement, maker))
	require.NoError(t, err)
	signed, err := a.Sign(unsigned, key)
	require.NoError(t, err)

	s := healthyState()
	s.balance = new(big.Int).Set(ether)
	err = a.CheckFillability(context.Background(), signed, s)
	reason, _ := types.UnfillableReasonOf(err)
	assert.Equal(t, types.ReasonInsufficientBalance, reason)

	s = healthyState()
	s.allowance = new(big.Int).Set(ether)
	err = a.CheckFillability(context.Background(), signed, s)
	reason, _ = types.UnfillableReasonOf(err)
	assert.Equal(t, types.ReasonNotApproved, reason)
}

func TestElementPartialFillProration(t *testing.T) {
	key, maker := testKey(t, makerKeyHex)
	a := testAdapter(t, types.OrderKindElement)
	req := listing(types.OrderKindElement, maker)
	req.Token.Standard = types.StandardERC1155
	req.Quantity = 3
	req.Options.Orderbook = "element"
	req.FeePolicies = []types.FeePolicy{{Recipient: feeAccount, Bps: 1000}}

	unsigned, err := a.Build(req)
	require.NoError(t, err)
	require.Len(t, unsigned.Fees, 1)
	assert.Equal(t, "300000000000000000", unsigned.Fees[0].Amount.String())
	signed, err := a.Sign(unsigned, key)
	require.NoError(t, err)

	first, err := a.Quote(signed, &Matching{Taker: taker, Amount: 2}, 0)
	require.NoError(t, err)
	second, err := a.Quote(signed, &Matching{Taker: taker, Amount: 1}, 2)
	require.NoError(t, err)

	feeSum := new(big.Int).Add(first.Fees()[0].Amount, second.Fees()[0].Amount)
	assert.Equal(t, "300000000000000000", feeSum.String())
	priceSum := new(big.Int).Add(first.Price, second.Price)
	assert.Zero(t, priceSum.Cmp(req.TotalPrice()))

	// 买方额外支付费用，卖方拿到全部价款
	assert.Equal(t, maker, first.Payments[0].Recipient)
	assert.Zero(t, first.Payments[0].Amount.Cmp(first.Price))
	assert.Zero(t, new(big.Int).Add(first.Price, first.Fees()[0].Amount).Cmp(first.BuyerCost))

	_, err = a.Quote(signed, &Matching{Taker: taker, Amount: 2}, 2)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestRaribleSellerBearsOriginFees(t *testing.T) {
	key, maker := testKey(t, makerKeyHex)
	a := testAdapter(t, types.OrderKindRarible)
	req := listing(types.OrderKindRarible, maker)
	req.Currency = weth
	req.Options.RaribleDataType = "v3"
	req.FeePolicies = []types.FeePolicy{{Recipient: feeAccount, Bps: 300}}

	unsigned, err := a.Build(req)
	require.NoError(t, err)
	p := unsigned.Params.(*types.RaribleParams)
	assert.Equal(t, RaribleDataV3Sell, p.DataType)
	assert.Len(t, p.OriginFees, 2)
	assert.Len(t, p.Data, 5*32)

	signed, err := a.Sign(unsigned, key)
	require.NoError(t, err)
	m, err := a.BuildMatching(signed, MatchOverrides{Taker: taker})
	require.NoError(t, err)
	s, err := a.Quote(signed, m, 0)
	require.NoError(t, err)
	// 1 ETH - 3% - 0.5%
	assert.Equal(t, "965000000000000000", s.Payments[0].Amount.String())
	assert.Zero(t, s.BuyerCost.Cmp(ether))
}

func TestRaribleValidation(t *testing.T) {
	_, maker := testKey(t, makerKeyHex)
	a := testAdapter(t, types.OrderKindRarible)

	req := listing(types.OrderKindRarible, maker)
	req.Options.Payouts = []types.FeePolicy{{Recipient: maker, Bps: 9000}}
	_, err := a.Build(req)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	req = listing(types.OrderKindRarible, maker)
	req.Options.RaribleDataType = "v3"
	req.FeePolicies = []types.FeePolicy{{Recipient: feeAccount, Bps: 100}, {Recipient: royaltyAcct, Bps: 100}}
	_, err = a.Build(req)
	assert.ErrorIs(t, err, types.ErrInvalidArgument, "default fee plus two origin fees")

	req = listing(types.OrderKindRarible, maker)
	req.Options.RaribleDataType = "v9"
	_, err = a.Build(req)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	req = bid(types.OrderKindRarible, maker)
	req.Options.RaribleDataType = "v1"
	req.Token.TokenID = nil
	unsigned, err := a.Build(req)
	require.NoError(t, err)
	p := unsigned.Params.(*types.RaribleParams)
	assert.Equal(t, RaribleClassCollection, p.TakeAsset.Class)
	assert.Equal(t, RaribleClassERC20, p.MakeAsset.Class)
}

func TestZeroExContractWideNeedsTokenID(t *testing.T) {
	key, maker := testKey(t, makerKeyHex)
	a := testAdapter(t, types.OrderKindZeroExV4)
	req := bid(types.OrderKindZeroExV4, maker)
	req.Token.TokenID = nil

	unsigned, err := a.Build(req)
	require.NoError(t, err)
	p := unsigned.Params.(*types.ZeroExV4Params)
	assert.Equal(t, types.ZeroExDirectionBuy, p.Direction)
	require.Len(t, p.Properties, 1)
	assert.Zero(t, p.NftID.Sign())
	assert.False(t, a.SupportsSweep())

	signed, err := a.Sign(unsigned, key)
	require.NoError(t, err)
	_, err = a.BuildMatching(signed, MatchOverrides{Taker: taker})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	m, err := a.BuildMatching(signed, MatchOverrides{Taker: taker, TokenID: big.NewInt(11)})
	require.NoError(t, err)
	assert.Equal(t, int64(11), m.TokenID.Int64())
}

func TestNftxPoolOrders(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	pool := common.HexToAddress("0x00000000000000000000000000000000000000c2")
	a := testAdapter(t, types.OrderKindNftx)

	req := listing(types.OrderKindNftx, vault)
	_, err := a.Build(req)
	assert.ErrorIs(t, err, types.ErrInvalidArgument, "missing vault")

	req.Options.NftxVault, req.Options.NftxPool = vault, pool
	req.FeePolicies = []types.FeePolicy{{Recipient: feeAccount, Bps: 10}}
	_, err = a.Build(req)
	assert.ErrorIs(t, err, types.ErrInvalidArgument, "nftx carries no marketplace fee")

	req.FeePolicies = nil
	unsigned, err := a.Build(req)
	require.NoError(t, err)
	require.Len(t, unsigned.Fees, 1)
	assert.Equal(t, types.FeeKindProtocol, unsigned.Fees[0].Kind)
	assert.Equal(t, "5000000000000000", unsigned.Fees[0].Amount.String())

	signed, err := a.Sign(unsigned, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.ID)
	require.NoError(t, a.CheckSignature(signed))

	s := healthyState()
	s.approved = false
	require.NoError(t, a.CheckFillability(context.Background(), signed, s), "vault listings need no approval")

	m, err := a.BuildMatching(signed, MatchOverrides{Taker: taker})
	require.NoError(t, err)
	q, err := a.Quote(signed, m, 0)
	require.NoError(t, err)
	assert.Equal(t, "1005000000000000000", q.BuyerCost.String())

	offer := bid(types.OrderKindNftx, pool)
	offer.Currency = types.NativeCurrency
	offer.Token.TokenID = nil
	offer.Options.NftxVault, offer.Options.NftxPool = vault, pool
	unsigned, err = a.Build(offer)
	require.NoError(t, err)
	signed, err = a.Sign(unsigned, nil)
	require.NoError(t, err)
	m, err = a.BuildMatching(signed, MatchOverrides{Taker: taker, TokenID: big.NewInt(3)})
	require.NoError(t, err)
	q, err = a.Quote(signed, m, 0)
	require.NoError(t, err)
	assert.Equal(t, taker, q.Seller)
	assert.Equal(t, "995000000000000000", q.Payments[0].Amount.String())
}

func TestRegistry(t *testing.T) {
	configs := map[types.OrderKind]Config{
		types.OrderKindSeaportV15: {ChainID: 1},
		types.OrderKindElement:    {ChainID: 1},
	}
	r, err := NewRegistry(fees.NewComposer(fees.StandardDefaults()), configs)
	require.NoError(t, err)
	assert.Equal(t, []types.OrderKind{types.OrderKindSeaportV15, types.OrderKindElement}, r.Kinds())
	_, err = r.Get(types.OrderKindRarible)
	assert.True(t, errors.Is(err, types.ErrUnsupportedKind))

	_, err = New("sudoswap", nil, Config{})
	assert.ErrorIs(t, err, types.ErrUnsupportedKind)
}
