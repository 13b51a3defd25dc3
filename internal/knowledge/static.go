// Package knowledge 在启动时把静态知识条目写入检索索引。
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentic-browser/internal/retrieval"
	"agentic-browser/pkg/logger"
)

// Snippet 描述一段可供检索引用的知识。
type Snippet struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Source   string         `json:"source,omitempty"`
	Keywords []string       `json:"keywords,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Text 返回写入索引的文本。
func (s Snippet) Text() string {
	title := strings.TrimSpace(s.Title)
	content := strings.TrimSpace(s.Content)
	if title == "" {
		return content
	}
	return title + ": " + content
}

func (s Snippet) meta() map[string]any {
	meta := make(map[string]any, len(s.Metadata)+4)
	for k, v := range s.Metadata {
		meta[k] = v
	}
	meta["doc_type"] = "knowledge"
	if s.Title != "" {
		meta["title"] = s.Title
	}
	if s.Source != "" {
		meta["source"] = s.Source
	}
	if len(s.Tags) > 0 {
		meta["tags"] = strings.Join(s.Tags, ",")
	}
	return meta
}

// Load 从 JSON 文件读取知识条目。
func Load(path string) ([]Snippet, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	defer file.Close()

	var entries []Snippet
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}
	return entries, nil
}

// Target 是种子数据写入的检索服务。
type Target interface {
	Index() retrieval.Index
	AddTexts(ctx context.Context, texts []string, metadata []map[string]any) error
}

// Seed 在索引为空时写入条目，返回写入数量；索引已有数据时跳过。
func Seed(ctx context.Context, target Target, snippets []Snippet) (int, error) {
	stats, err := target.Index().Stats(ctx)
	if err != nil {
		return 0, fmt.Errorf("读取索引状态失败: %w", err)
	}
	log := logger.Named("knowledge")
	if stats.Documents > 0 {
		log.Info("索引已有数据，跳过知识库初始化", "documents", stats.Documents)
		return 0, nil
	}

	texts := make([]string, 0, len(snippets))
	meta := make([]map[string]any, 0, len(snippets))
	for _, s := range snippets {
		text := s.Text()
		if text == "" {
			continue
		}
		texts = append(texts, text)
		meta = append(meta, s.meta())
	}
	if len(texts) == 0 {
		return 0, nil
	}
	if err := target.AddTexts(ctx, texts, meta); err != nil {
		return 0, fmt.Errorf("写入知识库失败: %w", err)
	}
	log.Info("知识库初始化完成", "documents", len(texts), "backend", stats.Backend)
	return len(texts), nil
}

// SeedFile 组合 Load 与 Seed；path 为空时不做任何事。
func SeedFile(ctx context.Context, target Target, path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, nil
	}
	snippets, err := Load(path)
	if err != nil {
		return 0, err
	}
	return Seed(ctx, target, snippets)
}
