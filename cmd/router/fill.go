package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/betbot/gorouter/internal/execution"
	"github.com/betbot/gorouter/internal/simulator"
	"github.com/betbot/gorouter/pkg/config"
	"github.com/betbot/gorouter/pkg/wallet"
	"github.com/betbot/gorouter/router/adapters"
	"github.com/betbot/gorouter/router/planner"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

// scenario 本地签单并经路由合约成交的描述文件
type scenario struct {
	RevertIfIncomplete bool           `yaml:"revert_if_incomplete"`
	FillTo             string         `yaml:"fill_to"`
	TakerBalance       string         `yaml:"taker_balance"` // 仅模拟：taker 的原生币余额（整币）
	Orders             []scenarioItem `yaml:"orders"`
}

type scenarioItem struct {
	Kind       string   `yaml:"kind"`
	Side       string   `yaml:"side"`
	MakerKey   string   `yaml:"maker_key"` // 为空时使用本地签名账户
	Token      string   `yaml:"token"`
	Standard   string   `yaml:"standard"`
	Quantity   uint64   `yaml:"quantity"`
	Currency   string   `yaml:"currency"`
	Price      string   `yaml:"price"` // 单价（整币）
	Expiration string   `yaml:"expiration"`
	Fees       []string `yaml:"fees"`
	FillAmount uint64   `yaml:"fill_amount"`
	TokenID    string   `yaml:"token_id"` // 合约级出价由 taker 指定
	FeesOnTop  []string `yaml:"fees_on_top"`
}

func loadScenario(path string) (*scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取成交描述失败: %w", err)
	}
	var sc scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, types.InvalidArgf("scenario: %v", err)
	}
	if len(sc.Orders) == 0 {
		return nil, types.InvalidArgf("scenario has no orders")
	}
	return &sc, nil
}

// buildItems 构造并签名全部订单
func buildItems(registry *adapters.Registry, sc *scenario, taker *ecdsa.PrivateKey, now time.Time) ([]types.ExecutionItem, error) {
	out := make([]types.ExecutionItem, 0, len(sc.Orders))
	for i, o := range sc.Orders {
		maker := taker
		if o.MakerKey != "" {
			k, err := wallet.FromHex(o.MakerKey)
			if err != nil {
				return nil, fmt.Errorf("order %d: %w", i, err)
			}
			maker = k
		}
		req, err := orderRequest(o, signing.AddressOf(maker), now)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		a, err := registry.Get(req.Kind)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		unsigned, err := a.Build(req)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		signed, err := a.Sign(unsigned, maker)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		item := types.ExecutionItem{Order: signed, FillAmount: o.FillAmount, Taker: signing.AddressOf(taker)}
		if o.TokenID != "" {
			id, ok := new(big.Int).SetString(o.TokenID, 10)
			if !ok {
				return nil, types.InvalidArgf("order %d: token_id %q", i, o.TokenID)
			}
			item.TokenID = id
		}
		for _, raw := range o.FeesOnTop {
			f, err := types.ParseFeePolicy(raw)
			if err != nil {
				return nil, fmt.Errorf("order %d: %w", i, err)
			}
			item.FeesOnTop = append(item.FeesOnTop, types.FeeAmount{Recipient: f.Recipient, Bps: f.Bps})
		}
		out = append(out, item)
	}
	return out, nil
}

func orderRequest(o scenarioItem, maker common.Address, now time.Time) (*types.OrderRequest, error) {
	kind, err := types.ParseOrderKind(o.Kind)
	if err != nil {
		return nil, err
	}
	standard := types.TokenStandard(o.Standard)
	if standard == "" {
		standard = types.StandardERC721
	}
	ref, err := types.ParseTokenRef(o.Token, standard)
	if err != nil {
		return nil, err
	}
	cur, err := parseCurrency(o.Currency)
	if err != nil {
		return nil, err
	}
	price, err := types.ParseUnits(o.Price, 18)
	if err != nil {
		return nil, err
	}
	ttl := 24 * time.Hour
	if o.Expiration != "" {
		if ttl, err = time.ParseDuration(o.Expiration); err != nil {
			return nil, types.InvalidArgf("expiration %q", o.Expiration)
		}
	}
	feePolicies, err := parseFees(o.Fees)
	if err != nil {
		return nil, err
	}
	side := types.Side(o.Side)
	if side == "" {
		side = types.SideListing
	}
	qty := o.Quantity
	if qty == 0 {
		qty = 1
	}
	req := &types.OrderRequest{
		Kind:        kind,
		Side:        side,
		Maker:       maker,
		Token:       ref,
		Quantity:    qty,
		Currency:    cur,
		UnitPrice:   price,
		Expiration:  now.Add(ttl).Unix(),
		FeePolicies: feePolicies,
	}
	if err := req.Validate(now); err != nil {
		return nil, err
	}
	return req, nil
}

// seedLedger 模拟模式下为订单准备资产与授权
func seedLedger(ledger *simulator.Ledger, registry *adapters.Registry, sc *scenario, items []types.ExecutionItem, taker common.Address) error {
	balance := big.NewInt(0).Mul(big.NewInt(100), big.NewInt(1e18))
	if sc.TakerBalance != "" {
		b, err := types.ParseUnits(sc.TakerBalance, 18)
		if err != nil {
			return err
		}
		balance = b
	}
	ledger.FundNative(taker, balance)

	for _, item := range items {
		order := item.Order
		req := order.Request
		a, err := registry.Get(order.Kind)
		if err != nil {
			return err
		}
		operator := a.Config().Operator
		if operator == (common.Address{}) {
			operator = a.Config().Exchange
		}
		if req.Side == types.SideListing {
			mint(ledger, req.Token, req.Token.TokenID, req.Maker, req.Quantity)
			ledger.SetApprovalForAll(req.Token.Contract, req.Maker, operator, true)
			if !types.IsNative(req.Currency) {
				ledger.FundERC20(req.Currency, taker, new(big.Int).Mul(req.TotalPrice(), big.NewInt(2)))
			}
			continue
		}
		total := new(big.Int).Mul(req.TotalPrice(), big.NewInt(2))
		ledger.FundERC20(req.Currency, req.Maker, total)
		ledger.ApproveERC20(req.Currency, req.Maker, operator, total)
		tokenID := req.Token.TokenID
		if tokenID == nil {
			tokenID = item.TokenID
		}
		if tokenID == nil {
			return types.InvalidArgf("bid %s needs token_id to sell into", order.ID)
		}
		mint(ledger, req.Token, tokenID, taker, req.Quantity)
		ledger.SetApprovalForAll(req.Token.Contract, taker, operator, true)
	}
	return nil
}

func mint(ledger *simulator.Ledger, token types.TokenRef, id *big.Int, owner common.Address, qty uint64) {
	if token.Standard == types.StandardERC1155 {
		ledger.Mint1155(token.Contract, id, owner, qty)
		return
	}
	ledger.Mint721(token.Contract, id, owner)
}

// newLocalFillCmd 本地签单、规划并经路由合约成交；DryRun 时在内存账本上执行
func newLocalFillCmd(c *cli) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "build, sign and fill local orders through the router",
		Args:  cobra.NoArgs,
		RunE: c.action(func(ctx context.Context, a *app, _ []string) error {
			if path == "" {
				return types.InvalidArgf("fill requires --scenario")
			}
			return localFill(ctx, a, path)
		}),
	}
	cmd.Flags().StringVar(&path, "scenario", "", "YAML file describing the orders to build and fill")
	return cmd
}

func localFill(ctx context.Context, a *app, path string) error {
	if a.cfg.Router == "" {
		return types.InvalidArgf("router address is not configured")
	}
	sc, err := loadScenario(path)
	if err != nil {
		return err
	}
	registry, err := a.registry()
	if err != nil {
		return err
	}
	items, err := buildItems(registry, sc, a.key, time.Now())
	if err != nil {
		return err
	}

	router := common.HexToAddress(a.cfg.Router)
	var (
		state     adapters.ChainState
		submitter execution.Submitter
	)
	if a.sender != nil {
		state, submitter = a.sender, a.sender
	} else {
		ledger := simulator.NewLedger(time.Now().Unix())
		if err := seedLedger(ledger, registry, sc, items, a.from); err != nil {
			return err
		}
		forwarders := make([]common.Address, 0, len(a.cfg.Forwarders))
		for _, f := range a.cfg.Forwarders {
			forwarders = append(forwarders, common.HexToAddress(f))
		}
		state, submitter = ledger, simulator.NewChain(ledger, registry, router, forwarders...)
	}

	engine := execution.NewFillEngine(planner.New(planner.Config{Router: router}, registry, state), submitter)
	req := execution.FillRequest{Options: types.FillOptions{
		Taker:              a.from,
		FillTo:             config.Address(sc.FillTo),
		RevertIfIncomplete: sc.RevertIfIncomplete,
	}}
	req.Items = items
	res, err := engine.Fill(ctx, req)
	if res != nil {
		if printErr := a.print(fillSummary(res)); printErr != nil {
			return printErr
		}
	}
	return err
}

type fillOutput struct {
	ID       string            `json:"id"`
	State    string            `json:"state"`
	Receipts []string          `json:"receipts,omitempty"`
	Fills    []types.Fill      `json:"fills,omitempty"`
	Missed   []string          `json:"missed,omitempty"`
	Skipped  map[string]string `json:"skipped,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func fillSummary(res *execution.FillResult) fillOutput {
	out := fillOutput{ID: res.ID, State: string(res.State), Fills: res.Fills, Missed: res.Missed, Skipped: res.Skipped}
	for _, r := range res.Receipts {
		if r != nil {
			out.Receipts = append(out.Receipts, r.TxHash.Hex())
		}
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
