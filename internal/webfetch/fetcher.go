// Package webfetch 抓取网页并抽取标题、正文与元数据，同时提供基于搜索结果页的简单网页检索。
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/pkg/logger"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultSearchURL = "https://www.google.com/search"
	maxContentLength = 10000
	maxBodyBytes     = 2 << 20
)

// Page 为一次抓取的结果。
type Page struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Metadata   Metadata `json:"metadata"`
	StatusCode int      `json:"status_code"`
}

// Metadata 为页面 meta 信息。
type Metadata struct {
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Author      string   `json:"author"`
	Domain      string   `json:"domain"`
}

// SearchResult 为一条搜索命中。
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Config 描述抓取参数。
type Config struct {
	Timeout   time.Duration
	UserAgent string
	SearchURL string
}

// Fetcher 负责网页抓取。
type Fetcher struct {
	client    *http.Client
	userAgent string
	searchURL string
}

// New 创建抓取器。
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = defaultSearchURL
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		searchURL: cfg.SearchURL,
	}
}

func (f *Fetcher) get(ctx context.Context, target string) (*html.Node, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "URL inválida: "+target)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.8,en-US;q=0.5,en;q=0.3")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "请求网页失败: "+target)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, resp.StatusCode, xerrors.New(xerrors.CodeRemoteError, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, target))
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "解析 HTML 失败")
	}
	return doc, resp.StatusCode, nil
}

// Fetch 抓取单个页面。
func (f *Fetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	doc, status, err := f.get(ctx, target)
	if err != nil {
		return nil, err
	}

	page := &Page{
		URL:        target,
		Title:      extractTitle(doc),
		Metadata:   extractMetadata(doc, target),
		StatusCode: status,
	}
	removeNoise(doc)
	page.Content = truncate(collapse(textOf(mainContent(doc))), maxContentLength)

	logger.Named("webfetch").Debug("页面抓取完成", "url", target, "chars", len(page.Content))
	return page, nil
}

// FetchAll 并发抓取多个页面，单页失败不影响其他页面，失败页在结果中为 nil。
func (f *Fetcher) FetchAll(ctx context.Context, targets []string, concurrency int) []*Page {
	if concurrency <= 0 {
		concurrency = 2
	}
	pages := make([]*Page, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, target := range targets {
		g.Go(func() error {
			page, err := f.Fetch(gctx, target)
			if err != nil {
				logger.Named("webfetch").Warn("页面抓取失败", "url", target, "error", err)
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// Search 抓取搜索结果页并返回最多 limit 条外部链接。
func (f *Fetcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 3
	}
	u, err := url.Parse(f.searchURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "搜索地址无效")
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("num", fmt.Sprint(limit*2))
	u.RawQuery = q.Encode()

	doc, _, err := f.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	walk(doc, func(n *html.Node) bool {
		if len(results) >= limit {
			return false
		}
		if n.Type != html.ElementNode || n.Data != "a" {
			return true
		}
		href := attr(n, "href")
		if !strings.HasPrefix(href, "/url?q=") || strings.Contains(href, "google.com") {
			return true
		}
		target := strings.SplitN(strings.TrimPrefix(href, "/url?q="), "&", 2)[0]
		if decoded, err := url.QueryUnescape(target); err == nil {
			target = decoded
		}
		title := collapse(textOf(n))
		if title != "" && target != "" {
			results = append(results, SearchResult{Title: title, URL: target, Source: "google_search"})
		}
		return false
	})
	return results, nil
}
