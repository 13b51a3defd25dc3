// Package wsrpc 通过持久 WebSocket 连接以 JSON-RPC 2.0 调用远端自动化控制端。
package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agentic-browser/internal/automation"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/pkg/logger"
)

const defaultTimeout = 30 * time.Second

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// Client 实现 automation.Controller。同一时刻只有一个在途请求，连接断开后在下一次调用时重连。
type Client struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

var _ automation.Controller = (*Client)(nil)

// NewClient 创建客户端，连接在首次调用时建立。
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{url: url, timeout: timeout, dialer: websocket.DefaultDialer}
}

// Call 发送一次请求并等待相同 id 的响应。
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()

	if err := c.ensureConnLocked(ctx); err != nil {
		return nil, err
	}

	c.nextID++
	req := request{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}

	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(req); err != nil {
		c.resetLocked()
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "发送自动化请求失败", xerrors.WithMetadata("method", method))
	}

	_ = c.conn.SetReadDeadline(deadline)
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.resetLocked()
			if ctx.Err() != nil {
				return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "等待自动化响应超时", xerrors.WithMetadata("method", method))
			}
			return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "读取自动化响应失败", xerrors.WithMetadata("method", method))
		}
		if resp.ID != req.ID {
			logger.Named("wsrpc").Warn("丢弃过期的响应", "id", resp.ID, "expected", req.ID)
			continue
		}
		if len(resp.Error) > 0 && string(resp.Error) != "null" {
			return nil, xerrors.New(xerrors.CodeRemoteError, remoteMessage(resp.Error), xerrors.WithMetadata("method", method))
		}
		return resp.Result, nil
	}
}

func remoteMessage(raw json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (c *Client) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, fmt.Sprintf("连接自动化控制端 %s 失败", c.url))
	}
	c.conn = conn
	return nil
}

func (c *Client) resetLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close 关闭连接。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// OpenTab 打开新标签页。
func (c *Client) OpenTab(ctx context.Context, url string) (automation.Result, error) {
	return c.Call(ctx, "tool/openTab", map[string]any{"url": url})
}

// Click 点击元素。
func (c *Client) Click(ctx context.Context, selector string) (automation.Result, error) {
	return c.Call(ctx, "tool/click", map[string]any{"selector": selector})
}

// Fill 填写输入框。
func (c *Client) Fill(ctx context.Context, selector, value string) (automation.Result, error) {
	return c.Call(ctx, "tool/fill", map[string]any{"selector": selector, "value": value})
}

// Find 按选择器或文本查找元素。
func (c *Client) Find(ctx context.Context, query automation.FindQuery) (automation.Result, error) {
	return c.Call(ctx, "tool/find", query)
}

// Extract 按 schema 抽取页面数据。
func (c *Client) Extract(ctx context.Context, schema map[string]any) (automation.Result, error) {
	return c.Call(ctx, "tool/extract", map[string]any{"schema": schema})
}

// Screenshot 截取页面或指定区域。
func (c *Client) Screenshot(ctx context.Context, area string) (automation.Result, error) {
	params := map[string]any{}
	if area != "" {
		params["area"] = area
	}
	return c.Call(ctx, "tool/screenshot", params)
}
