// Package chat 实现带检索增强与可选网页搜索的多轮对话，历史按轮次有界保存。
package chat

import (
	"strings"
	"time"
)

// 消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxPairs 是默认保留的问答轮数。
const DefaultMaxPairs = 10

// Message 是对话中的一条消息。
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Trim 只保留最近 maxPairs 轮问答，最早的消息先被淘汰。
func Trim(history []Message, maxPairs int) []Message {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}
	limit := maxPairs * 2
	if len(history) <= limit {
		return history
	}
	return append([]Message(nil), history[len(history)-limit:]...)
}

// Summary 是对话摘要。
type Summary struct {
	ConversationID    string   `json:"conversation_id"`
	TotalMessages     int      `json:"total_messages"`
	ConversationPairs int      `json:"conversation_pairs"`
	LastInteraction   *Message `json:"last_interaction"`
	TopicsDiscussed   []string `json:"topics_discussed"`
}

var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{"Conta Corrente", []string{"conta", "corrente", "saldo", "transferência"}},
	{"Cartão de Crédito", []string{"cartão", "crédito", "limite", "fatura"}},
	{"Investimentos", []string{"investimento", "ação", "tesouro", "poupança"}},
	{"Empréstimos", []string{"empréstimo", "financiamento", "crédito pessoal"}},
	{"Seguros", []string{"seguro", "proteção", "vida", "automóvel"}},
}

// Summarize 统计历史并提取讨论过的主题。
func Summarize(id string, history []Message) Summary {
	s := Summary{
		ConversationID:    id,
		TotalMessages:     len(history),
		ConversationPairs: len(history) / 2,
		TopicsDiscussed:   []string{},
	}
	if len(history) == 0 {
		return s
	}
	last := history[len(history)-1]
	s.LastInteraction = &last

	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(strings.ToLower(m.Content))
		sb.WriteByte(' ')
	}
	text := sb.String()
	for _, t := range topicKeywords {
		if containsAny(text, t.keywords) {
			s.TopicsDiscussed = append(s.TopicsDiscussed, t.topic)
		}
	}
	return s
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
