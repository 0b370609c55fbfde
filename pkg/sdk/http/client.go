package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client indexer 等 HTTP 协作方的公共传输层
type Client struct {
	client *resty.Client
}

// Option 客户端选项
type Option func(*resty.Client)

// WithTimeout 单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithRetry 只读请求（GET）的重试次数；POST 从不重试
func WithRetry(count int) Option {
	return func(c *resty.Client) { c.SetRetryCount(count) }
}

// WithHeader client 级 Header（如 x-api-key）
func WithHeader(k, v string) Option {
	return func(c *resty.Client) { c.SetHeader(k, v) }
}

func NewClient(host string, opts ...Option) *Client {
	host = strings.TrimSuffix(host, "/")

	// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(60 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			// 签名回调和下单请求不可重放
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		}).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 5 * time.Second, nil
			}
			return 0, nil
		})
	for _, opt := range opts {
		opt(client)
	}
	return &Client{client: client}
}

type RequestOptions struct {
	Headers map[string]string
	Data    any
	Params  map[string]any
}

// 仅设置本次请求的默认 Header（不要再改 client 级 Header）
func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "gorouter")
	return r
}

// DoRequest 发送请求，out 非空时按 JSON 解码 2xx 响应
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) (*resty.Response, error) {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Params != nil {
			rc.SetQueryParamsFromValues(toValues(opt.Params))
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			switch b := opt.Data.(type) {
			case json.RawMessage:
				rc.SetBody([]byte(b))
			default:
				rc.SetBody(b)
			}
		}
	}
	if out != nil {
		rc.SetResult(out)
	}

	switch strings.ToUpper(method) {
	case http.MethodGet:
		return rc.Get(endpoint)
	case http.MethodPost:
		return rc.Post(endpoint)
	case http.MethodDelete:
		return rc.Delete(endpoint)
	case http.MethodPut:
		return rc.Put(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

func toValues(m map[string]any) map[string][]string {
	v := make(map[string][]string, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case []string:
			v[k] = t
		default:
			v[k] = []string{fmt.Sprint(val)}
		}
	}
	return v
}

// ParseHTTPError 传输错误原样返回，非 2xx 转成带响应体的错误
func ParseHTTPError(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "http request")
	}
	if resp.IsSuccess() {
		return nil
	}
	var body any
	b := resp.Body()
	_ = json.Unmarshal(b, &body)
	if body == nil {
		body = string(b)
	}
	return errors.Errorf("http %d %s: %v", resp.StatusCode(), resp.Request.URL, body)
}
