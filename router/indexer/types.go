package indexer

import (
	"encoding/json"
	"strconv"

	"github.com/betbot/gorouter/router/types"
)

// BidParams execute/bid 的单个出价
type BidParams struct {
	OrderKind            string                    `json:"orderKind"`
	Orderbook            string                    `json:"orderbook,omitempty"`
	AutomatedRoyalties   bool                      `json:"automatedRoyalties"`
	ExcludeFlaggedTokens bool                      `json:"excludeFlaggedTokens"`
	Currency             string                    `json:"currency,omitempty"`
	WeiPrice             string                    `json:"weiPrice"`
	Quantity             uint64                    `json:"quantity,omitempty"`
	Token                string                    `json:"token,omitempty"`
	Collection           string                    `json:"collection,omitempty"`
	Expiration           string                    `json:"expirationTime,omitempty"`
	Fees                 []string                  `json:"fees,omitempty"`
	Options              map[string]map[string]any `json:"options,omitempty"`
}

// BidRequest execute/bid/v5
type BidRequest struct {
	Maker  string      `json:"maker"`
	Source string      `json:"source,omitempty"`
	Params []BidParams `json:"params"`
}

// FillItem buy / sell 的单个目标
type FillItem struct {
	Token    string `json:"token,omitempty"`
	OrderID  string `json:"orderId,omitempty"`
	Quantity uint64 `json:"quantity,omitempty"`
}

// FillRequest execute/buy/v7 与 execute/sell/v7
type FillRequest struct {
	Items            []FillItem `json:"items"`
	Taker            string     `json:"taker"`
	Currency         string     `json:"currency,omitempty"`
	Source           string     `json:"source,omitempty"`
	FeesOnTop        []string   `json:"feesOnTop,omitempty"`
	Partial          bool       `json:"partial,omitempty"` // 即 revertIfIncomplete=false
	SkipBalanceCheck bool       `json:"skipBalanceCheck,omitempty"`
	ForceRouter      bool       `json:"forceRouter,omitempty"`
}

// CancelRequest execute/cancel/v3
type CancelRequest struct {
	OrderIDs  []string `json:"orderIds"`
	OrderKind string   `json:"orderKind,omitempty"`
	Maker     string   `json:"maker,omitempty"`
}

// NftEntry debug/order-saving 的 NFT 持有关系
type NftEntry struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Owner      string `json:"owner"`
}

// SeedRequest debug/order-saving
type SeedRequest struct {
	Contract string            `json:"contract"`
	Kind     string            `json:"kind"`
	Currency string            `json:"currency,omitempty"`
	Nfts     []NftEntry        `json:"nfts"`
	Orders   []json.RawMessage `json:"orders"`
}

// StepSaveResponse 签名回调的返回，error 非空表示保存失败
type StepSaveResponse struct {
	Error   string       `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
	Results []SavedOrder `json:"results,omitempty"`
}

// SavedOrder 保存成功的订单
type SavedOrder struct {
	OrderID    string `json:"orderId"`
	OrderIndex int    `json:"orderIndex"`
	Message    string `json:"message,omitempty"`
}

// ErrorBody indexer 的错误响应
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// NewBidParams 由下单意图构造出价参数
func NewBidParams(req *types.OrderRequest, automatedRoyalties bool) BidParams {
	p := BidParams{
		OrderKind:          string(req.Kind),
		Orderbook:          req.Orderbook(),
		AutomatedRoyalties: automatedRoyalties,
		WeiPrice:           req.UnitPrice.String(),
		Quantity:           req.Quantity,
	}
	if !types.IsNative(req.Currency) {
		p.Currency = req.Currency.Hex()
	}
	if req.Token.IsContractWide() {
		p.Collection = req.Token.Contract.Hex()
	} else {
		p.Token = req.Token.String()
	}
	if req.Expiration > 0 {
		p.Expiration = strconv.FormatInt(req.Expiration, 10)
	}
	for _, f := range req.FeePolicies {
		p.Fees = append(p.Fees, f.String())
	}
	opts := map[string]any{}
	if req.Options.UseOffChainCancellation {
		opts["useOffChainCancellation"] = true
	}
	if req.Options.RaribleDataType != "" {
		opts["version"] = req.Options.RaribleDataType
	}
	if len(opts) > 0 {
		p.Options = map[string]map[string]any{string(req.Kind): opts}
	}
	return p
}
