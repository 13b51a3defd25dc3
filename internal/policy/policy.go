// Package policy 实现目标域名的白名单/黑名单判定以及需要人工确认的动作集合。
package policy

import (
	"net"
	"net/url"
	"strings"
)

// 需要人工确认（HITL）的动作。
const (
	ActionPurchase        = "purchase"
	ActionSubmitSensitive = "submit_sensitive"
	ActionDelete          = "delete"
)

var confirmActions = map[string]struct{}{
	ActionPurchase:        {},
	ActionSubmitSensitive: {},
	ActionDelete:          {},
}

// Gate 是静态的域名规则判定器，构造后只读，可被多个任务并发使用。
type Gate struct {
	allow []string
	deny  []string
}

// NewGate 根据白名单与黑名单构造判定器。空白名单表示不限制。
func NewGate(allow, deny []string) *Gate {
	return &Gate{allow: normalizeAll(allow), deny: normalizeAll(deny)}
}

// IsDomainAllowed 判断给定域名或 URL 是否允许访问。黑名单优先；
// 白名单非空时域名必须以其中某一项结尾。
func (g *Gate) IsDomainAllowed(target string) bool {
	host := Host(target)
	if host == "" {
		return false
	}
	if g == nil {
		return true
	}
	for _, bad := range g.deny {
		if matchSuffix(host, bad) {
			return false
		}
	}
	if len(g.allow) == 0 {
		return true
	}
	for _, ok := range g.allow {
		if matchSuffix(host, ok) {
			return true
		}
	}
	return false
}

// RequiresConfirmation 判断动作是否需要人工确认。
func (g *Gate) RequiresConfirmation(action string) bool {
	_, ok := confirmActions[strings.ToLower(strings.TrimSpace(action))]
	return ok
}

// AllowList 返回白名单副本。
func (g *Gate) AllowList() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.allow...)
}

// Host 从 URL 或裸域名中提取小写主机名，去掉端口与结尾的点。
func Host(target string) string {
	target = strings.TrimSpace(strings.ToLower(target))
	if target == "" {
		return ""
	}
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

func matchSuffix(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func normalizeAll(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if h := Host(e); h != "" {
			out = append(out, h)
		}
	}
	return out
}
