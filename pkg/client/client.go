// Package client 市场节点 HTTP API 的 Go 客户端。
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

)

// AccountHeader 调用方身份
const AccountHeader = "X-Account"

// APIError 非 2xx 响应
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// ErrorCode 取出 APIError 的错误码（如 "item_already_sold"），非 APIError 返回空串
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// Client API 客户端
type Client struct {
	client  *resty.Client
	account string
}

// Option 可选项
type Option func(*Client)

// WithAccount 设置默认调用方地址
func WithAccount(addr string) Option {
	return func(c *Client) { c.account = addr }
}

// WithRetry 设置重试次数（只对传输错误与 429 重试）
func WithRetry(count int, wait time.Duration) Option {
	return func(c *Client) {
		c.client.SetRetryCount(count).SetRetryWaitTime(wait).SetRetryMaxWaitTime(wait * 10)
	}
}

// WithHTTPClient 替换底层 http.Client（测试用）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = resty.NewWithClient(hc).SetBaseURL(c.client.BaseURL)
		configure(c.client)
	}
}

func configure(rc *resty.Client) {
	rc.SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() == http.StatusTooManyRequests)
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 时优先使用 Retry-After
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && secs > 0 {
					return time.Duration(secs) * time.Second, nil
				}
			}
			return 0, nil
		})
}

// New 创建客户端，host 形如 http://127.0.0.1:8080
func New(host string, opts ...Option) *Client {
	host = strings.TrimSuffix(host, "/")
	rc := resty.New().SetBaseURL(host)
	configure(rc)
	c := &Client{client: rc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL 节点地址
func (c *Client) BaseURL() string {
	return c.client.BaseURL
}

// As 返回以 addr 身份调用的客户端副本
func (c *Client) As(addr string) *Client {
	cp := *c
	cp.account = addr
	return &cp
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R().SetContext(ctx).SetHeader("Accept", "application/json")
	if c.account != "" {
		r.SetHeader(AccountHeader, c.account)
	}
	return r
}

// do 发送请求并解码结果；非 2xx 返回 *APIError
func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	r := c.newRequest(ctx)
	if body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := r.Execute(method, endpoint)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, endpoint)
	}
	if !resp.IsSuccess() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if jerr := json.Unmarshal(resp.Body(), apiErr); jerr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(resp.Body()))
		}
		return errors.WithStack(apiErr)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errors.Wrapf(err, "decode %s %s", method, endpoint)
		}
	}
	return nil
}

// Market 市场参数
func (c *Client) Market(ctx context.Context) (*MarketInfo, error) {
	var out MarketInfo
	if err := c.do(ctx, http.MethodGet, "/api/market", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List 挂单；price 接受 wei 整数或 "0.01eth"
func (c *Client) List(ctx context.Context, tokenContract, tokenID, price string) (*Item, error) {
	var out Item
	body := map[string]string{"token_contract": tokenContract, "token_id": tokenID, "price": price}
	if err := c.do(ctx, http.MethodPost, "/api/items", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ItemCount 挂单总数
func (c *Client) ItemCount(ctx context.Context) (uint64, error) {
	var out struct {
		Count uint64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/items/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// GetItem 查询挂单
func (c *Client) GetItem(ctx context.Context, itemID uint64) (*Item, error) {
	var out Item
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/items/%d", itemID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TotalPayable 买家应付总额
func (c *Client) TotalPayable(ctx context.Context, itemID uint64) (*Amount, error) {
	var out struct {
		Total Amount `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/items/%d/total", itemID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Total, nil
}

// Purchase 购买；value 接受 wei 整数或 "0.0101eth"
func (c *Client) Purchase(ctx context.Context, itemID uint64, value string) (*Receipt, error) {
	var out Receipt
	body := map[string]string{"value": value}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/items/%d/purchase", itemID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mint 在开发节点的合约上铸造 token 给当前账户
func (c *Client) Mint(ctx context.Context, contract, uri string) (*Token, error) {
	var out Token
	if err := c.do(ctx, http.MethodPost, "/api/collections/"+contract+"/mint", map[string]string{"uri": uri}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetApprovalForAll 当前账户授权/撤销 operator
func (c *Client) SetApprovalForAll(ctx context.Context, contract, operator string, approved bool) error {
	body := map[string]interface{}{"operator": operator, "approved": approved}
	return c.do(ctx, http.MethodPost, "/api/collections/"+contract+"/approval", body, nil)
}

// Token 查询 token 归属
func (c *Client) Token(ctx context.Context, contract, tokenID string) (*Token, error) {
	var out Token
	if err := c.do(ctx, http.MethodGet, "/api/collections/"+contract+"/tokens/"+tokenID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance 查询余额
func (c *Client) Balance(ctx context.Context, addr string) (*Amount, error) {
	var out struct {
		Balance Amount `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/accounts/"+addr+"/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out.Balance, nil
}

// Faucet 给 addr 充值（仅开发节点）
func (c *Client) Faucet(ctx context.Context, addr, value string) (*Amount, error) {
	var out struct {
		Balance Amount `json:"balance"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/accounts/"+addr+"/faucet", map[string]string{"value": value}, &out); err != nil {
		return nil, err
	}
	return &out.Balance, nil
}

// Events 拉取 Seq > since 的事件
func (c *Client) Events(ctx context.Context, since uint64, limit int) (*EventsPage, error) {
	var out EventsPage
	r := c.newRequest(ctx).SetQueryParam("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := r.Get("/api/events")
	if err != nil {
		return nil, errors.Wrap(err, "GET /api/events")
	}
	if !resp.IsSuccess() {
		apiErr := &APIError{Status: resp.StatusCode()}
		_ = json.Unmarshal(resp.Body(), apiErr)
		return nil, errors.WithStack(apiErr)
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errors.Wrap(err, "decode events")
	}
	return &out, nil
}

// EventsPage 事件分页
type EventsPage struct {
	Events []Event `json:"events"`
	Last   uint64  `json:"last"`
}
