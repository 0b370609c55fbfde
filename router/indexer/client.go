// Package indexer 订单簿 indexer 的 HTTP 客户端：execute 接口返回 StepSequence，debug 接口用于测试环境
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gorouter/pkg/ratelimit"
	sdkhttp "github.com/betbot/gorouter/pkg/sdk/http"
	"github.com/betbot/gorouter/router/types"
)

var log = logrus.WithField("component", "indexer")

// Client indexer 客户端
type Client struct {
	http   *sdkhttp.Client
	limits *ratelimit.RateLimitManager
}

// New baseURL 形如 http://127.0.0.1:3000
func New(baseURL string, opts ...sdkhttp.Option) *Client {
	return &Client{
		http:   sdkhttp.NewClient(baseURL, opts...),
		limits: ratelimit.NewRateLimitManager(),
	}
}

// WithLimits 替换限流配置
func (c *Client) WithLimits(m *ratelimit.RateLimitManager) *Client {
	c.limits = m
	return c
}

func (c *Client) do(ctx context.Context, group, method, endpoint string, opt *sdkhttp.RequestOptions, out any) error {
	if err := c.limits.Wait(ctx, group); err != nil {
		return err
	}
	resp, err := c.http.DoRequest(ctx, method, endpoint, opt, out)
	if err := sdkhttp.ParseHTTPError(resp, err); err != nil {
		log.WithField("endpoint", endpoint).Warnf("请求失败: %v", err)
		return err
	}
	return nil
}

func (c *Client) execute(ctx context.Context, endpoint string, body any) (*types.StepSequence, error) {
	var seq types.StepSequence
	if err := c.do(ctx, ratelimit.EndpointExecute, http.MethodPost, endpoint, &sdkhttp.RequestOptions{Data: body}, &seq); err != nil {
		return nil, err
	}
	for _, e := range seq.Errors {
		log.WithField("endpoint", endpoint).Warnf("indexer 报告订单错误: index=%d %s", e.OrderIndex, e.Message)
	}
	return &seq, nil
}

// Bid POST /execute/bid/v5
func (c *Client) Bid(ctx context.Context, req BidRequest) (*types.StepSequence, error) {
	return c.execute(ctx, "/execute/bid/v5", req)
}

// Buy POST /execute/buy/v7
func (c *Client) Buy(ctx context.Context, req FillRequest) (*types.StepSequence, error) {
	return c.execute(ctx, "/execute/buy/v7", req)
}

// Sell POST /execute/sell/v7
func (c *Client) Sell(ctx context.Context, req FillRequest) (*types.StepSequence, error) {
	return c.execute(ctx, "/execute/sell/v7", req)
}

// Cancel POST /execute/cancel/v3
func (c *Client) Cancel(ctx context.Context, req CancelRequest) (*types.StepSequence, error) {
	if len(req.OrderIDs) == 0 {
		return nil, types.InvalidArgf("cancel requires order ids")
	}
	return c.execute(ctx, "/execute/cancel/v3", req)
}

// PreSignature POST /execute/pre-signature/v1?signature=
func (c *Client) PreSignature(ctx context.Context, signature string, payload any) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, ratelimit.EndpointExecute, http.MethodPost, "/execute/pre-signature/v1", &sdkhttp.RequestOptions{
		Params: map[string]any{"signature": signature},
		Data:   payload,
	}, &out)
	return out, err
}

// CallStep 签名步骤的回调：{method} {endpoint}?signature=，响应 error 字段非空时返回 *types.StepSaveError
func (c *Client) CallStep(ctx context.Context, stepID, method, endpoint, signature string, body json.RawMessage) (*StepSaveResponse, error) {
	if method == "" {
		method = http.MethodPost
	}
	if !strings.HasPrefix(endpoint, "/") {
		return nil, types.InvalidArgf("step endpoint %q must be a path", endpoint)
	}
	opt := &sdkhttp.RequestOptions{Params: map[string]any{"signature": signature}}
	if len(body) > 0 {
		opt.Data = body
	}
	if err := c.limits.Wait(ctx, ratelimit.EndpointStep); err != nil {
		return nil, err
	}
	resp, err := c.http.DoRequest(ctx, method, endpoint, opt, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "step %s callback", stepID)
	}
	var out StepSaveResponse
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &out); err != nil && resp.IsSuccess() {
			return nil, errors.Wrapf(err, "decode step %s response", stepID)
		}
	}
	if out.Error == "" && !resp.IsSuccess() {
		out.Error = fmt.Sprintf("http %d", resp.StatusCode())
		if out.Message != "" {
			out.Error += ": " + out.Message
		}
	}
	if out.Error != "" {
		return &out, &types.StepSaveError{StepID: stepID, Message: out.Error}
	}
	return &out, nil
}

// EventParsing GET /debug/event-parsing
func (c *Client) EventParsing(ctx context.Context, tx string, skipProcessing bool) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, ratelimit.EndpointDebug, http.MethodGet, "/debug/event-parsing", &sdkhttp.RequestOptions{
		Params: map[string]any{"tx": tx, "skipProcessing": skipProcessing},
	}, &out)
	return out, err
}

// SaveOrder POST /debug/order-saving
func (c *Client) SaveOrder(ctx context.Context, req SeedRequest) error {
	if req.Nfts == nil {
		req.Nfts = []NftEntry{}
	}
	if req.Orders == nil {
		req.Orders = []json.RawMessage{}
	}
	return c.do(ctx, ratelimit.EndpointDebug, http.MethodPost, "/debug/order-saving", &sdkhttp.RequestOptions{Data: req}, nil)
}

// GetOrder GET /debug/get-order
func (c *Client) GetOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, ratelimit.EndpointDebug, http.MethodGet, "/debug/get-order", &sdkhttp.RequestOptions{
		Params: map[string]any{"orderId": orderID},
	}, &out)
	return out, err
}

// Reset GET /debug/reset
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, ratelimit.EndpointDebug, http.MethodGet, "/debug/reset", nil, nil)
}
