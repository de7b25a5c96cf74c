package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/perpsession/internal/ports"
	"github.com/betbot/perpsession/pkg/ratelimit"
)

// Signer 请求签名（钱包）
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(payload []byte) (solana.Signature, error)
}

// HTTPError 网关返回的非 2xx 响应
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway http %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway http %d: %s", e.Status, e.Message)
}

// Unwrap 映射到 ports 哨兵，调用方可用 errors.Is 分类
func (e *HTTPError) Unwrap() error {
	switch e.Code {
	case codeMarketNotFound:
		return ports.ErrMarketNotFound
	case codeAccountNotFound:
		return ports.ErrAccountNotFound
	case codeAccountExists:
		return ports.ErrAccountExists
	case codeInsufficientFunds:
		return ports.ErrInsufficientFunds
	}
	return nil
}

// Client 网关 REST 客户端
type Client struct {
	client  *resty.Client
	signer  Signer
	limiter *ratelimit.Manager
	now     func() time.Time
}

// NewClient 只重试 GET；交易类 POST 只发送一次
func NewClient(host string, timeout time.Duration, signer Signer, limiter *ratelimit.Manager) *Client {
	host = strings.TrimSuffix(host, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = ratelimit.NewManager(5)
	}

	// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流时优先使用 Retry-After 头
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if s := resp.Header().Get("Retry-After"); s != "" {
					if secs, err := strconv.Atoi(s); err == nil {
						return time.Duration(secs) * time.Second, nil
					}
				}
			}
			return 0, nil
		})

	return &Client{client: client, signer: signer, limiter: limiter, now: time.Now}
}

// 仅设置本次请求的 Header（不改 client 级 Header）
func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R().SetContext(ctx)
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "perpsession/1.0")
	return r
}

// sign 签名内容：timestamp + method + path + body
func (c *Client) sign(r *resty.Request, method, path string, body []byte) error {
	if c.signer == nil {
		return nil
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	sig, err := c.signer.Sign([]byte(ts + method + path + string(body)))
	if err != nil {
		return errors.Wrap(err, "sign request")
	}
	r.SetHeader(headerAuthority, c.signer.PublicKey().String())
	r.SetHeader(headerTimestamp, ts)
	r.SetHeader(headerSignature, sig.String())
	return nil
}

// Get 查询（限速：read）
func (c *Client) Get(ctx context.Context, path string, params map[string]string, out any) error {
	if err := c.limiter.Wait(ctx, ratelimit.EndpointRead); err != nil {
		return err
	}
	r := c.newRequest(ctx)
	if len(params) > 0 {
		r.SetQueryParams(params)
	}
	if err := c.sign(r, http.MethodGet, path, nil); err != nil {
		return err
	}
	resp, err := r.Get(path)
	return parseResponse(resp, err, out)
}

// Post 交易（限速：tx）；请求体签名后原样发送
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	if err := c.limiter.Wait(ctx, ratelimit.EndpointTx); err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	r := c.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if err := c.sign(r, http.MethodPost, path, body); err != nil {
		return err
	}
	resp, err := r.Post(path)
	return parseResponse(resp, err, out)
}

func parseResponse(resp *resty.Response, err error, out any) error {
	if err != nil {
		return errors.Wrap(err, "gateway request")
	}
	if !resp.IsSuccess() {
		he := &HTTPError{Status: resp.StatusCode(), Message: strings.TrimSpace(string(resp.Body()))}
		var ae apiError
		if json.Unmarshal(resp.Body(), &ae) == nil && (ae.Code != "" || ae.Message != "") {
			he.Code = ae.Code
			he.Message = ae.Message
		}
		return he
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode %s", resp.Request.URL)
	}
	return nil
}
