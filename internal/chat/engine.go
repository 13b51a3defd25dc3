package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"agentic-browser/internal/llm"
	"agentic-browser/internal/onboarding"
	"agentic-browser/internal/policy"
	"agentic-browser/internal/profile"
	"agentic-browser/internal/prompts"
	"agentic-browser/internal/retrieval"
	"agentic-browser/internal/telemetry"
	"agentic-browser/internal/webfetch"
	"agentic-browser/pkg/logger"
)

const (
	firstAccessGreeting = "Olá! Bem-vindo ao sistema Itaú. Vou iniciar seu processo de onboarding para personalizar sua experiência."
	failureResponse     = "Desculpe, ocorreu um erro no processamento. Tente novamente."

	promptContextDocs = 3
	promptHistory     = 4
	webResults        = 3
	webExcerpt        = 500
)

// Retriever 检索与文本相似的文档。
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]retrieval.Result, error)
}

// WebSearcher 执行网页搜索。
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]webfetch.SearchResult, error)
}

// ProfileLoader 读取用户画像。
type ProfileLoader interface {
	Load(ctx context.Context, userID string) (*profile.Profile, error)
}

// TelemetrySource 提供加速器性能报告。
type TelemetrySource interface {
	Report() telemetry.Report
}

// Config 汇总对话引擎的依赖与参数。
type Config struct {
	LLM       llm.Client
	Retriever Retriever
	Web       WebSearcher
	Profiles  ProfileLoader
	Gate      *policy.Gate
	Telemetry TelemetrySource
	Store     Store
	Prompts   *prompts.Catalog

	MaxPairs     int
	TopK         int
	MinScore     float64
	SearchDomain string
}

// Request 是一次对话请求。EnableWebSearch 为空时默认开启。
type Request struct {
	Message         string
	ConversationID  string
	UserID          string
	UserContext     *profile.Context
	EnableWebSearch *bool
	FirstAccess     bool
}

// Reply 是对话结果，调用方总能拿到一个响应。
type Reply struct {
	Response              string            `json:"response"`
	ConversationID        string            `json:"conversation_id"`
	FirstAccessDetected   bool              `json:"first_access_detected,omitempty"`
	RAGContextUsed        bool              `json:"rag_context_used"`
	WebSearchPerformed    bool              `json:"web_search_performed"`
	ProcessingTimeSeconds float64           `json:"processing_time_seconds"`
	Telemetry             *telemetry.Report `json:"telemetry,omitempty"`
	ConversationLength    int               `json:"conversation_length"`
	Timestamp             time.Time         `json:"timestamp"`
	Error                 string            `json:"error,omitempty"`
}

// Engine 是对话引擎，可被多个会话并发使用。
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine 创建对话引擎。
func NewEngine(cfg Config) *Engine {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompts.Default()
	}
	if cfg.MaxPairs <= 0 {
		cfg.MaxPairs = DefaultMaxPairs
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.3
	}
	if cfg.SearchDomain == "" {
		cfg.SearchDomain = "google.com"
	}
	return &Engine{cfg: cfg, now: time.Now}
}

// Chat 处理一轮对话。
func (e *Engine) Chat(ctx context.Context, req Request) *Reply {
	start := e.now()
	log := logger.Named("chat")

	reply := &Reply{ConversationID: req.ConversationID}
	if reply.ConversationID == "" {
		reply.ConversationID = uuid.NewString()
	}
	finish := func() *Reply {
		reply.ProcessingTimeSeconds = e.now().Sub(start).Seconds()
		reply.Timestamp = e.now()
		if e.cfg.Telemetry != nil {
			report := e.cfg.Telemetry.Report()
			reply.Telemetry = &report
		}
		return reply
	}

	if req.FirstAccess || onboarding.IsFirstAccess(req.Message) {
		log.Info("首次访问，转入引导", "conversation_id", reply.ConversationID)
		reply.Response = firstAccessGreeting
		reply.FirstAccessDetected = true
		return finish()
	}

	history, err := e.cfg.Store.History(ctx, reply.ConversationID)
	if err != nil {
		log.Warn("读取对话历史失败", "conversation_id", reply.ConversationID, "error", err)
	}

	// 依次准备检索上下文、个性化信息与网页结果。
	ragContext := e.ragContext(ctx, req.Message)
	personal := e.personalContext(ctx, req)
	var web []webEntry
	enabled := req.EnableWebSearch == nil || *req.EnableWebSearch
	if enabled && ShouldSearchWeb(req.Message, ragContext) {
		web = e.searchWeb(ctx, req.Message)
	}

	prompt, err := e.cfg.Prompts.Render("chat_turn", turnData{
		Personal: personal,
		Context:  head(ragContext, promptContextDocs),
		Web:      web,
		History:  speakers(tail(history, promptHistory)),
		Message:  req.Message,
	})
	if err == nil {
		var answer string
		answer, err = llm.GenerateText(ctx, e.cfg.LLM, llm.Request{
			Prompt:       prompt,
			SystemPrompt: e.cfg.Prompts.System("chatbot"),
			MaxLength:    300,
			Temperature:  0.7,
		})
		reply.Response = answer
	}
	if err != nil {
		log.Error("生成对话回复失败", "conversation_id", reply.ConversationID, "error", err)
		reply.Response = failureResponse
		reply.Error = err.Error()
		reply.ConversationLength = len(history)
		return finish()
	}

	now := e.now().UTC()
	turn := []Message{
		{Role: RoleUser, Content: req.Message, Timestamp: now},
		{Role: RoleAssistant, Content: reply.Response, Timestamp: now},
	}
	if err := e.cfg.Store.Append(ctx, reply.ConversationID, e.cfg.MaxPairs*2, turn...); err != nil {
		log.Warn("保存对话历史失败", "conversation_id", reply.ConversationID, "error", err)
	}

	reply.RAGContextUsed = len(ragContext) > 0
	reply.WebSearchPerformed = len(web) > 0
	reply.ConversationLength = len(Trim(append(history, turn...), e.cfg.MaxPairs))
	return finish()
}

// Summary 返回对话摘要。
func (e *Engine) Summary(ctx context.Context, id string) (Summary, error) {
	history, err := e.cfg.Store.History(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(id, history), nil
}

// Clear 清空对话历史。
func (e *Engine) Clear(ctx context.Context, id string) error {
	return e.cfg.Store.Clear(ctx, id)
}

func (e *Engine) ragContext(ctx context.Context, message string) []string {
	if e.cfg.Retriever == nil || strings.TrimSpace(message) == "" {
		return nil
	}
	results, err := e.cfg.Retriever.Query(ctx, message, e.cfg.TopK)
	if err != nil {
		logger.Named("chat").Warn("检索上下文失败", "error", err)
		return nil
	}
	kept := retrieval.Filter(results, e.cfg.MinScore)
	out := make([]string, 0, len(kept))
	for _, r := range kept {
		out = append(out, r.Text)
	}
	return out
}

func (e *Engine) personalContext(ctx context.Context, req Request) string {
	if req.UserContext != nil {
		return req.UserContext.Describe()
	}
	if req.UserID == "" || e.cfg.Profiles == nil {
		return ""
	}
	p, err := e.cfg.Profiles.Load(ctx, req.UserID)
	if err != nil {
		return ""
	}
	return profile.ContextOf(p, "").Describe()
}

type webEntry struct {
	Source  string
	URL     string
	Content string
}

func (e *Engine) searchWeb(ctx context.Context, query string) []webEntry {
	log := logger.Named("chat")
	if e.cfg.Web == nil {
		return nil
	}
	if e.cfg.Gate != nil && !e.cfg.Gate.IsDomainAllowed(e.cfg.SearchDomain) {
		log.Warn("网页搜索被域名策略拒绝", "domain", e.cfg.SearchDomain)
		return nil
	}
	results, err := e.cfg.Web.Search(ctx, query, webResults)
	if err != nil {
		log.Warn("网页搜索失败", "error", err)
		return nil
	}
	out := make([]webEntry, 0, len(results))
	for _, r := range results {
		content := strings.TrimSpace(r.Title + " " + r.Snippet)
		if utf8.RuneCountInString(content) > webExcerpt {
			content = string([]rune(content)[:webExcerpt]) + "..."
		}
		out = append(out, webEntry{Source: "google_search", URL: r.URL, Content: content})
	}
	return out
}

var (
	updateKeywords = []string{
		"atual", "hoje", "agora", "recente", "último", "novo", "mudança",
		"alteração", "atualização", "modificação", "notícia", "evento",
	}
	inScopeKeywords = []string{"itau", "itaú", "conta", "cartão", "crédito", "investimento", "seguro"}
	marketKeywords  = []string{"mercado", "ação", "bolsa", "câmbio", "dólar", "inflação", "taxa"}
)

// ShouldSearchWeb 判断是否需要网页搜索：时效关键词在检索上下文不足时触发；
// 本行产品关键词抑制外部搜索；市场类关键词触发搜索。
func ShouldSearchWeb(message string, ragContext []string) bool {
	text := strings.ToLower(message)

	sufficient := false
	if len(ragContext) > 2 {
		for _, c := range ragContext {
			if len(c) > 100 {
				sufficient = true
				break
			}
		}
	}
	if containsAny(text, updateKeywords) && !sufficient {
		return true
	}
	if containsAny(text, inScopeKeywords) {
		return false
	}
	return containsAny(text, marketKeywords)
}

type historyLine struct {
	Speaker string
	Content string
}

type turnData struct {
	Personal string
	Context  []string
	Web      []webEntry
	History  []historyLine
	Message  string
}

func speakers(history []Message) []historyLine {
	out := make([]historyLine, 0, len(history))
	for _, m := range history {
		speaker := "Assistente"
		if m.Role == RoleUser {
			speaker = "Usuário"
		}
		out = append(out, historyLine{Speaker: speaker, Content: m.Content})
	}
	return out
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func tail(items []Message, n int) []Message {
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}
