package capability

import (
	"context"
	"strings"

	"agentic-browser/internal/chat"
	"agentic-browser/internal/evidence"
	"agentic-browser/internal/onboarding"
	"agentic-browser/internal/pipeline"
	"agentic-browser/pkg/logger"
)

// ChatEngine 是聊天节点依赖的引擎。
type ChatEngine interface {
	Chat(ctx context.Context, req chat.Request) *chat.Reply
}

// Chatbot 把一轮对话交给聊天引擎。
type Chatbot struct {
	engine ChatEngine
}

// NewChatbot 创建聊天节点。
func NewChatbot(engine ChatEngine) *Chatbot { return &Chatbot{engine: engine} }

// Capability 实现 pipeline.CapabilityNode。
func (c *Chatbot) Capability() pipeline.Capability { return pipeline.CapabilityChatbot }

// Run 实现 pipeline.CapabilityNode。
func (c *Chatbot) Run(ctx context.Context, s *pipeline.State, ev *evidence.Pack) error {
	message := strings.TrimSpace(s.Message)
	if message == "" {
		message = strings.TrimSpace(s.Query)
	}
	reply := c.engine.Chat(ctx, chat.Request{
		Message:         message,
		ConversationID:  s.ConversationID,
		UserID:          s.UserID,
		EnableWebSearch: s.EnableWebSearch,
		FirstAccess:     s.FirstAccess,
	})
	s.Chat = reply
	s.Response = reply.Response

	ev.Log("chat", map[string]any{
		"conversation_id":      reply.ConversationID,
		"rag_context_used":     reply.RAGContextUsed,
		"web_search_performed": reply.WebSearchPerformed,
		"error":                reply.Error,
	})
	return nil
}

// OnboardingEngine 是引导节点依赖的引擎。
type OnboardingEngine interface {
	Process(ctx context.Context, turn onboarding.Turn) (*onboarding.Reply, error)
}

// Onboarding 把首次访问或上下文刷新请求交给引导引擎。
type Onboarding struct {
	engine OnboardingEngine
}

// NewOnboarding 创建引导节点。
func NewOnboarding(engine OnboardingEngine) *Onboarding { return &Onboarding{engine: engine} }

// Capability 实现 pipeline.CapabilityNode。
func (o *Onboarding) Capability() pipeline.Capability { return pipeline.CapabilityOnboarding }

// Run 实现 pipeline.CapabilityNode。首次访问短语与标志等价。
func (o *Onboarding) Run(ctx context.Context, s *pipeline.State, ev *evidence.Pack) error {
	message := strings.TrimSpace(s.Message)
	if message == "" {
		message = strings.TrimSpace(s.Query)
	}
	reply, err := o.engine.Process(ctx, onboarding.Turn{
		UserID:        s.UserID,
		Message:       message,
		FirstAccess:   s.FirstAccess || onboarding.IsFirstAccess(s.Query+" "+s.Message),
		UpdateContext: s.UpdateContext,
	})
	if err != nil {
		logger.Named("onboarding").Error("引导状态持久化失败", "job_id", s.JobID, "error", err)
		ev.Log("onboarding_error", map[string]any{"error": err.Error()})
		s.AddWarning("Erro no onboarding: " + err.Error())
	}
	if reply == nil {
		return nil
	}
	s.Onboarding = reply
	s.Response = reply.Response

	ev.Log("onboarding", map[string]any{
		"user_id":             reply.UserID,
		"status":              string(reply.Status),
		"next_step":           string(reply.NextStep),
		"requires_user_input": reply.RequiresUserInput,
	})
	return nil
}
