// Package chromedp 使用本地无头 Chrome 实现 automation.Controller，
// 适合没有远端控制端时在本机直接驱动浏览器。
package chromedp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"agentic-browser/internal/automation"
	xerrors "agentic-browser/internal/errors"
)

// Config 描述浏览器启动参数。
type Config struct {
	Headless      bool
	Timeout       time.Duration
	ScreenshotDir string
}

// Controller 管理一个浏览器进程，最近一次 OpenTab 打开的标签页为当前页。
type Controller struct {
	cfg Config

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu        sync.Mutex
	tab     context.Context
	cancels []context.CancelFunc
	tabs    int
	shots     int
}

var _ automation.Controller = (*Controller)(nil)

// New 启动浏览器进程。
func New(cfg Config) (*Controller, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ScreenshotDir != "" {
		if err := os.MkdirAll(cfg.ScreenshotDir, 0o755); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "创建截图目录失败")
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "启动浏览器失败")
	}

	return &Controller{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// run 在当前标签页上执行动作，调用方 ctx 取消或超时会中止动作。
func (c *Controller) run(ctx context.Context, method string, actions ...chromedp.Action) error {
	c.mu.Lock()
	tab := c.tab
	c.mu.Unlock()
	if tab == nil {
		return xerrors.New(xerrors.CodeRemoteError, "nenhuma aba aberta", xerrors.WithMetadata("method", method))
	}
	return c.runOn(ctx, tab, method, actions...)
}

func (c *Controller) runOn(ctx context.Context, tab context.Context, method string, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(tab, c.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return xerrors.Wrap(xerrors.CodeRemoteError, err, method+" falhou", xerrors.WithMetadata("method", method))
	}
	return nil
}

// OpenTab 新建标签页并导航。
func (c *Controller) OpenTab(ctx context.Context, url string) (automation.Result, error) {
	tab, cancel := chromedp.NewContext(c.browserCtx)
	// 首次 Run 创建目标页，不能挂在带超时的派生 context 上。
	if err := chromedp.Run(tab); err != nil {
		cancel()
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "创建标签页失败")
	}
	var title string
	if err := c.runOn(ctx, tab, "openTab", chromedp.Navigate(url), chromedp.Title(&title)); err != nil {
		cancel()
		return nil, err
	}

	c.mu.Lock()
	c.tabs++
	id := c.tabs
	c.tab = tab
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()

	return marshal(map[string]any{"tab_id": id, "url": url, "title": title})
}

// Click 点击元素。
func (c *Controller) Click(ctx context.Context, selector string) (automation.Result, error) {
	if err := c.run(ctx, "click", chromedp.Click(selector, chromedp.NodeVisible)); err != nil {
		return nil, err
	}
	return marshal(true)
}

// Fill 清空并输入。
func (c *Controller) Fill(ctx context.Context, selector, value string) (automation.Result, error) {
	if err := c.run(ctx, "fill",
		chromedp.WaitVisible(selector),
		chromedp.Clear(selector),
		chromedp.SendKeys(selector, value),
	); err != nil {
		return nil, err
	}
	return marshal(true)
}

// Find 返回匹配元素数量。
func (c *Controller) Find(ctx context.Context, query automation.FindQuery) (automation.Result, error) {
	var count int
	if err := c.run(ctx, "find", chromedp.Evaluate(findScript(query), &count)); err != nil {
		return nil, err
	}
	return marshal(map[string]any{"found": count > 0, "count": count})
}

// Extract 按 schema（字段名到 CSS 选择器）读取元素文本。
func (c *Controller) Extract(ctx context.Context, schema map[string]any) (automation.Result, error) {
	var out map[string]any
	if err := c.run(ctx, "extract", chromedp.Evaluate(extractScript(schema), &out)); err != nil {
		return nil, err
	}
	return marshal(out)
}

// Screenshot 截取整页或 area 选择器对应的元素，并写入截图目录。
func (c *Controller) Screenshot(ctx context.Context, area string) (automation.Result, error) {
	var (
		buf    []byte
		action chromedp.Action = chromedp.FullScreenshot(&buf, 90)
	)
	if area != "" {
		action = chromedp.Screenshot(area, &buf, chromedp.NodeVisible)
	}
	if err := c.run(ctx, "screenshot", action); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.shots++
	name := fmt.Sprintf("screenshot_%d_%d.png", time.Now().UnixNano(), c.shots)
	c.mu.Unlock()

	path := filepath.Join(c.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存截图失败")
	}
	return marshal(map[string]any{"path": path, "bytes": len(buf)})
}

// Close 关闭标签页与浏览器进程。
func (c *Controller) Close() error {
	c.mu.Lock()
	for _, cancel := range c.cancels {
		cancel()
	}
	c.tab, c.cancels = nil, nil
	c.mu.Unlock()
	c.browserCancel()
	c.allocCancel()
	return nil
}

func findScript(q automation.FindQuery) string {
	if q.Selector != "" {
		return "document.querySelectorAll(" + strconv.Quote(q.Selector) + ").length"
	}
	return `Array.from(document.querySelectorAll("a,button,input,label,span,div,p,h1,h2,h3"))` +
		`.filter(e => (e.innerText || e.value || "").includes(` + strconv.Quote(q.Text) + `)).length`
}

func extractScript(schema map[string]any) string {
	fields := make(map[string]string, len(schema))
	for name, sel := range schema {
		if s, ok := sel.(string); ok {
			fields[name] = s
		}
	}
	encoded, _ := json.Marshal(fields)
	return `(() => { const f = ` + string(encoded) + `; const out = {};` +
		` for (const [k, s] of Object.entries(f)) { const e = document.querySelector(s); out[k] = e ? e.innerText : null; }` +
		` return out; })()`
}

func marshal(v any) (automation.Result, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInternal, err, "序列化结果失败")
	}
	return raw, nil
}
