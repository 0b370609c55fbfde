package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/betbot/gorouter/router/indexer"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

// sequenceID 续跑时沿用上次输出的 sequence id
func sequenceID(resume string) string {
	if resume != "" {
		return resume
	}
	return uuid.New().String()
}

func parseFees(raw []string) ([]types.FeePolicy, error) {
	out := make([]types.FeePolicy, 0, len(raw))
	for _, r := range raw {
		f, err := types.ParseFeePolicy(r)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseCurrency(s string) (common.Address, error) {
	if s == "" || strings.EqualFold(s, "native") || strings.EqualFold(s, "eth") {
		return types.NativeCurrency, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, types.InvalidArgf("currency %q", s)
	}
	return common.HexToAddress(s), nil
}

// bidOptions execute/bid 的命令行参数
type bidOptions struct {
	kind       string
	token      string
	standard   string
	price      string
	decimals   int32
	currency   string
	quantity   uint64
	expiration time.Duration
	orderbook  string
	royalties  bool
	offchain   bool
	dataType   string
	source     string
	resume     string
	fees       []string
}

func (o *bidOptions) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.kind, "kind", string(types.OrderKindSeaportV16), "order kind")
	fs.StringVar(&o.token, "token", "", "0xcontract:tokenId, or 0xcontract for a collection offer")
	fs.StringVar(&o.standard, "standard", string(types.StandardERC721), "erc721 | erc1155")
	fs.StringVar(&o.price, "price", "", "unit price in whole currency units, e.g. 0.5")
	fs.Int32Var(&o.decimals, "decimals", 18, "currency decimals")
	fs.StringVar(&o.currency, "currency", "", "ERC20 currency address")
	fs.Uint64Var(&o.quantity, "quantity", 1, "quantity")
	fs.DurationVar(&o.expiration, "expiration", 24*time.Hour, "time until expiry")
	fs.StringVar(&o.orderbook, "orderbook", "", "target orderbook")
	fs.BoolVar(&o.royalties, "royalties", true, "automated royalties")
	fs.BoolVar(&o.offchain, "offchain-cancel", false, "use off-chain cancellation")
	fs.StringVar(&o.dataType, "rarible-version", "", "rarible data type v1 | v2 | v3")
	fs.StringVar(&o.source, "source", "", "source domain")
	fs.StringVar(&o.resume, "resume", "", "resume a previous step sequence id")
	fs.StringSliceVar(&o.fees, "fee", nil, "recipient:bps (repeatable)")
}

// request 校验参数并构造 execute/bid 请求
func (o *bidOptions) request(maker common.Address, now time.Time) (*indexer.BidRequest, string, error) {
	k, err := types.ParseOrderKind(o.kind)
	if err != nil {
		return nil, "", err
	}
	ref, err := types.ParseTokenRef(o.token, types.TokenStandard(o.standard))
	if err != nil {
		return nil, "", err
	}
	cur, err := parseCurrency(o.currency)
	if err != nil {
		return nil, "", err
	}
	unit, err := types.ParseUnits(o.price, o.decimals)
	if err != nil {
		return nil, "", err
	}
	feePolicies, err := parseFees(o.fees)
	if err != nil {
		return nil, "", err
	}
	req := &types.OrderRequest{
		Kind:        k,
		Side:        types.SideBid,
		Maker:       maker,
		Token:       ref,
		Quantity:    o.quantity,
		Currency:    cur,
		UnitPrice:   unit,
		Expiration:  now.Add(o.expiration).Unix(),
		FeePolicies: feePolicies,
		Options: types.OrderOptions{
			Orderbook:               o.orderbook,
			UseOffChainCancellation: o.offchain,
			RaribleDataType:         o.dataType,
		},
	}
	if err := req.Validate(now); err != nil {
		return nil, "", err
	}
	return &indexer.BidRequest{
		Maker:  strings.ToLower(maker.Hex()),
		Source: o.source,
		Params: []indexer.BidParams{indexer.NewBidParams(req, o.royalties)},
	}, sequenceID(o.resume), nil
}

// fillOptions buy / sell 共用的参数
type fillOptions struct {
	tokens      []string
	orders      []string
	feesOnTop   []string
	quantity    uint64
	currency    string
	partial     bool
	skipBalance bool
	forceRouter bool
	source      string
	resume      string
}

func (o *fillOptions) bind(fs *pflag.FlagSet) {
	fs.StringSliceVar(&o.tokens, "token", nil, "0xcontract:tokenId (repeatable)")
	fs.StringSliceVar(&o.orders, "order", nil, "order id (repeatable)")
	fs.StringSliceVar(&o.feesOnTop, "fee-on-top", nil, "recipient:amount (repeatable)")
	fs.Uint64Var(&o.quantity, "quantity", 0, "quantity per item (0 means 1)")
	fs.StringVar(&o.currency, "currency", "", "payment currency")
	fs.BoolVar(&o.partial, "partial", false, "allow partial fills instead of reverting the whole transaction")
	fs.BoolVar(&o.skipBalance, "skip-balance-check", false, "skip the taker balance check")
	fs.BoolVar(&o.forceRouter, "force-router", false, "always route through the router contract")
	fs.StringVar(&o.source, "source", "", "source domain")
	fs.StringVar(&o.resume, "resume", "", "resume a previous step sequence id")
}

func (o *fillOptions) request(name string, taker common.Address) (*indexer.FillRequest, string, error) {
	if len(o.tokens)+len(o.orders) == 0 {
		return nil, "", types.InvalidArgf("%s requires --token or --order", name)
	}
	req := &indexer.FillRequest{
		Taker:            strings.ToLower(taker.Hex()),
		Source:           o.source,
		FeesOnTop:        o.feesOnTop,
		Partial:          o.partial,
		SkipBalanceCheck: o.skipBalance,
		ForceRouter:      o.forceRouter,
	}
	if o.currency != "" {
		cur, err := parseCurrency(o.currency)
		if err != nil {
			return nil, "", err
		}
		req.Currency = strings.ToLower(cur.Hex())
	}
	for _, t := range o.tokens {
		if _, err := types.ParseTokenRef(t, types.StandardERC721); err != nil {
			return nil, "", err
		}
		req.Items = append(req.Items, indexer.FillItem{Token: strings.ToLower(t), Quantity: o.quantity})
	}
	for _, id := range o.orders {
		req.Items = append(req.Items, indexer.FillItem{OrderID: id, Quantity: o.quantity})
	}
	return req, sequenceID(o.resume), nil
}

func newBidCmd(c *cli) *cobra.Command {
	var o bidOptions
	cmd := &cobra.Command{
		Use:   "bid",
		Short: "place a bid through the indexer",
		Args:  cobra.NoArgs,
		RunE: c.action(func(ctx context.Context, a *app, _ []string) error {
			req, id, err := o.request(a.from, time.Now())
			if err != nil {
				return err
			}
			seq, err := a.indexer.Bid(ctx, *req)
			if err != nil {
				return err
			}
			return a.runSequence(ctx, id, seq)
		}),
	}
	o.bind(cmd.Flags())
	return cmd
}

// newFillCmd buy 与 sell 只差 indexer 端点
func newFillCmd(c *cli, name, short string, call func(*indexer.Client, context.Context, indexer.FillRequest) (*types.StepSequence, error)) *cobra.Command {
	var o fillOptions
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: c.action(func(ctx context.Context, a *app, _ []string) error {
			req, id, err := o.request(name, a.from)
			if err != nil {
				return err
			}
			seq, err := call(a.indexer, ctx, *req)
			if err != nil {
				return err
			}
			return a.runSequence(ctx, id, seq)
		}),
	}
	o.bind(cmd.Flags())
	return cmd
}

func newCancelCmd(c *cli) *cobra.Command {
	var (
		orders []string
		kind   string
		resume string
	)
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "cancel orders through the indexer",
		Args:  cobra.NoArgs,
		RunE: c.action(func(ctx context.Context, a *app, _ []string) error {
			if len(orders) == 0 {
				return types.InvalidArgf("cancel requires --order")
			}
			req := indexer.CancelRequest{OrderIDs: orders, Maker: strings.ToLower(a.from.Hex())}
			if kind != "" {
				k, err := types.ParseOrderKind(kind)
				if err != nil {
					return err
				}
				req.OrderKind = string(k)
			}
			seq, err := a.indexer.Cancel(ctx, req)
			if err != nil {
				return err
			}
			return a.runSequence(ctx, sequenceID(resume), seq)
		}),
	}
	cmd.Flags().StringSliceVar(&orders, "order", nil, "order id (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", "", "order kind (optional)")
	cmd.Flags().StringVar(&resume, "resume", "", "resume a previous step sequence id")
	return cmd
}

// newPresignCmd 对 JSON 文件中的签名数据签名并提交 pre-signature
func newPresignCmd(c *cli) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "presign",
		Short: "sign a payload and submit it as a pre-signature",
		Args:  cobra.NoArgs,
		RunE: c.action(func(ctx context.Context, a *app, _ []string) error {
			if path == "" {
				return types.InvalidArgf("presign requires --payload")
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("读取签名数据失败: %w", err)
			}
			var payload types.SignPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return types.InvalidArgf("sign payload: %v", err)
			}
			sig, err := signing.SignPayload(a.key, &payload)
			if err != nil {
				return err
			}
			resp, err := a.indexer.PreSignature(ctx, sig, json.RawMessage(raw))
			if err != nil {
				return err
			}
			return a.print(map[string]any{"signature": sig, "response": resp})
		}),
	}
	cmd.Flags().StringVar(&path, "payload", "", "JSON file with the sign payload")
	return cmd
}
