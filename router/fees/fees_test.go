package fees

import (
	"math/big"
	"testing"
	"testing/quick"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gorouter/router/types"
)

var (
	seaportPolicy = Policy{Kind: types.OrderKindSeaportV15, Family: Additive, MaxBps: 10000}
	ppPolicy      = Policy{Kind: types.OrderKindPaymentProcessorV2, Family: Replace, MaxBps: 10000}
	explicitFee   = types.FeePolicy{Recipient: common.HexToAddress("0xf3d63166f0ca56c3c1a3508fce03ff0cf3fb6000"), Bps: 10}
)

func bidRequest(price int64, fees ...types.FeePolicy) *types.OrderRequest {
	return &types.OrderRequest{
		Kind:        types.OrderKindSeaportV15,
		Side:        types.SideBid,
		Maker:       common.HexToAddress("0x01"),
		Token:       types.TokenRef{Contract: common.HexToAddress("0x02"), TokenID: big.NewInt(1), Standard: types.StandardERC721},
		Quantity:    1,
		UnitPrice:   big.NewInt(price),
		Expiration:  time.Now().Add(time.Hour).Unix(),
		FeePolicies: fees,
	}
}

func TestComposeDefaultFee(t *testing.T) {
	c := NewComposer(StandardDefaults())
	price := int64(1_000_000_000_000_000)

	for _, p := range []Policy{seaportPolicy, ppPolicy} {
		lines, err := c.Compose(bidRequest(price), p)
		require.NoError(t, err)
		require.Len(t, lines, 1, p.Family.String())
		require.Equal(t, StandardDefaults().Recipient, lines[0].Recipient)
		require.Equal(t, types.FeeKindOrderbook, lines[0].Kind)
		require.Equal(t, big.NewInt(price*50/10000), lines[0].Amount)
	}
}

func TestComposeReplaceDropsDefault(t *testing.T) {
	c := NewComposer(StandardDefaults())
	lines, err := c.Compose(bidRequest(1_000_000, explicitFee), ppPolicy)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, explicitFee.Recipient, lines[0].Recipient)
	require.NotEqual(t, StandardDefaults().Bps, lines[0].Bps)
}

func TestComposeAdditiveKeepsDefault(t *testing.T) {
	c := NewComposer(StandardDefaults())
	lines, err := c.Compose(bidRequest(1_000_000, explicitFee), seaportPolicy)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, StandardDefaults().Recipient, lines[0].Recipient)
	require.Equal(t, big.NewInt(1_000_000*50/10000), lines[0].Amount)
	require.Equal(t, explicitFee.Recipient, lines[1].Recipient)
}

func TestComposeExternalOrderbook(t *testing.T) {
	c := NewComposer(StandardDefaults())
	req := bidRequest(1_000_000, explicitFee)
	req.Options.Orderbook = "opensea"
	for _, p := range []Policy{seaportPolicy, ppPolicy} {
		lines, err := c.Compose(req, p)
		require.NoError(t, err)
		for _, l := range lines {
			require.NotEqual(t, types.FeeKindOrderbook, l.Kind)
		}
	}

	req.FeePolicies = nil
	lines, err := c.Compose(req, seaportPolicy)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestComposeInjectedDefaults(t *testing.T) {
	custom := Defaults{Recipient: common.HexToAddress("0xdead"), Bps: 250, Orderbook: "house"}
	c := NewComposer(custom)
	req := bidRequest(10_000)
	req.Options.Orderbook = "house"
	lines, err := c.Compose(req, seaportPolicy)
	require.NoError(t, err)
	require.Equal(t, custom.Recipient, lines[0].Recipient)
	require.Equal(t, int64(250), lines[0].Amount.Int64())
}

func TestComposeOverflow(t *testing.T) {
	c := NewComposer(StandardDefaults())
	big1 := types.FeePolicy{Recipient: common.HexToAddress("0x03"), Bps: 9000}
	big2 := types.FeePolicy{Recipient: common.HexToAddress("0x04"), Bps: 951}
	_, err := c.Compose(bidRequest(1_000_000, big1, big2), seaportPolicy)
	require.ErrorIs(t, err, types.ErrFeeOverflow)

	// replace 家族丢弃默认费后恰好 9951 bps，不超限
	_, err = c.Compose(bidRequest(1_000_000, big1, big2), ppPolicy)
	require.NoError(t, err)
}

func TestComposeListingBasisIsUnitPrice(t *testing.T) {
	c := NewComposer(StandardDefaults())
	req := bidRequest(1_000)
	req.Side = types.SideListing
	req.Quantity = 5
	req.Token.Standard = types.StandardERC1155
	lines, err := c.Compose(req, seaportPolicy)
	require.NoError(t, err)
	require.Equal(t, int64(5), lines[0].Amount.Int64())
	require.Equal(t, int64(25), Scale(lines, 5)[0].Amount.Int64())
}

// 每行金额为 floor(bps×basis/10000)，顺序与输入一致，合计不超过 floor(总bps×basis/10000)
func TestComposeProperty(t *testing.T) {
	c := NewComposer(Defaults{Recipient: common.HexToAddress("0xaa"), Bps: 50, Orderbook: "other"})
	property := func(price uint64, raw []uint16) bool {
		if price == 0 {
			price = 1
		}
		var policies []types.FeePolicy
		var total uint32
		for i, b := range raw {
			bps := uint32(b) % 2000
			if total+bps > 10000 {
				break
			}
			total += bps
			policies = append(policies, types.FeePolicy{Recipient: common.BigToAddress(big.NewInt(int64(i + 1))), Bps: bps})
		}
		req := bidRequest(1, policies...)
		req.UnitPrice = new(big.Int).SetUint64(price)
		lines, err := c.Compose(req, seaportPolicy)
		if err != nil || len(lines) != len(policies) {
			return false
		}
		basis := new(big.Int).SetUint64(price)
		sum := new(big.Int)
		for i, l := range lines {
			if l.Recipient != policies[i].Recipient {
				return false
			}
			want := new(big.Int).Mul(basis, big.NewInt(int64(l.Bps)))
			want.Quo(want, big.NewInt(10000))
			if l.Amount.Cmp(want) != 0 {
				return false
			}
			sum.Add(sum, l.Amount)
		}
		ceiling := Amount(basis, total)
		floor := new(big.Int).Sub(ceiling, big.NewInt(int64(len(lines))))
		return sum.Cmp(ceiling) <= 0 && sum.Cmp(floor) >= 0
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Fatal(err)
	}
}

func TestProrate(t *testing.T) {
	fee := big.NewInt(300)
	first := Prorate(fee, 2, 3)
	if first.Int64() != 200 {
		t.Fatalf("got=%d want=%d", first.Int64(), 200)
	}
	rest := Prorate(new(big.Int).Sub(fee, first), 1, 1)
	if new(big.Int).Add(first, rest).Cmp(fee) != 0 {
		t.Fatalf("prorated parts do not add up")
	}
	if Prorate(fee, 1, 0).Sign() != 0 {
		t.Fatalf("zero remaining must prorate to zero")
	}
}

func TestProrateOnTop(t *testing.T) {
	lines := OnTop(big.NewInt(1_000_000), []types.FeePolicy{explicitFee})
	require.Equal(t, int64(1_000), lines[0].Amount.Int64())
	got := ProrateOnTop(lines, big.NewInt(400_000), big.NewInt(1_000_000))
	require.Equal(t, int64(400), got[0].Amount.Int64())
	require.Equal(t, int64(1_000), lines[0].Amount.Int64())
}
