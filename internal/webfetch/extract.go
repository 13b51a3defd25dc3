package webfetch

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

var noiseTags = map[string]bool{
	"script": true, "style": true, "nav": true, "header": true,
	"footer": true, "aside": true, "iframe": true, "noscript": true,
}

// walk 深度优先遍历，visit 返回 false 时不再进入子节点。
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(n, func(cur *html.Node) bool {
		if found != nil {
			return false
		}
		if cur.Type == html.ElementNode && match(cur) {
			found = cur
			return false
		}
		return true
	})
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	walk(n, func(cur *html.Node) bool {
		if cur.Type == html.ElementNode && noiseTags[cur.Data] {
			return false
		}
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func extractTitle(doc *html.Node) string {
	for _, tag := range []string{"title", "h1"} {
		if n := find(doc, byTag(tag)); n != nil {
			if t := collapse(textOf(n)); t != "" {
				return t
			}
		}
	}
	return "Sem título"
}

func removeNoise(doc *html.Node) {
	var remove []*html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && noiseTags[n.Data] {
			remove = append(remove, n)
			return false
		}
		return true
	})
	for _, n := range remove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// mainContent 依次尝试 main、class 含 content/main/article/post 的元素、article、#content、#main，最后退回 body。
func mainContent(doc *html.Node) *html.Node {
	candidates := []func(*html.Node) bool{
		byTag("main"),
		classContains("content"),
		classContains("main"),
		classContains("article"),
		classContains("post"),
		byTag("article"),
		func(n *html.Node) bool { return attr(n, "id") == "content" },
		func(n *html.Node) bool { return attr(n, "id") == "main" },
	}
	for _, match := range candidates {
		if n := find(doc, match); n != nil {
			return n
		}
	}
	if body := find(doc, byTag("body")); body != nil {
		return body
	}
	return doc
}

func classContains(fragment string) func(*html.Node) bool {
	return func(n *html.Node) bool { return strings.Contains(attr(n, "class"), fragment) }
}

func metaContent(doc *html.Node, key, value string) string {
	n := find(doc, func(n *html.Node) bool { return n.Data == "meta" && attr(n, key) == value })
	if n == nil {
		return ""
	}
	return strings.TrimSpace(attr(n, "content"))
}

func extractMetadata(doc *html.Node, target string) Metadata {
	meta := Metadata{
		Description: metaContent(doc, "name", "description"),
		Author:      metaContent(doc, "name", "author"),
		Keywords:    []string{},
	}
	if meta.Description == "" {
		meta.Description = metaContent(doc, "property", "og:description")
	}
	if kw := metaContent(doc, "name", "keywords"); kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				meta.Keywords = append(meta.Keywords, k)
			}
		}
	}
	if u, err := url.Parse(target); err == nil {
		meta.Domain = u.Host
	}
	return meta
}
