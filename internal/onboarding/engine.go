// Package onboarding 实现多轮引导对话：收集身份、职业与偏好信息，
// 完成后保存用户画像并写入检索索引。
package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/llm"
	"agentic-browser/internal/profile"
	"agentic-browser/internal/prompts"
	"agentic-browser/pkg/logger"
)

// Status 是每轮回复的引导状态。
type Status string

const (
	StatusStarted          Status = "started"
	StatusInProgress       Status = "in_progress"
	StatusClarification    Status = "clarification_needed"
	StatusCompleted        Status = "completed"
	StatusAlreadyCompleted Status = "already_completed"
	StatusProfileChoice    Status = "profile_choice"
	StatusGeneralHelp      Status = "general_help"
)

const (
	unknownUser      = "unknown_user"
	notInformed      = "NAO_INFORMADO"
	nameNotFound     = "NOME_NAO_ENCONTRADO"
	generalHelpReply = "Olá! Sou o assistente de integração Itaú. Posso ajudar você com o processo de cadastro ou acessar suas funcionalidades já configuradas."
	idleReply        = "Olá! Como posso ajudar você hoje?"
	welcomeBack      = "Olá! Bem-vindo de volta. Seu perfil já está configurado."
	fallbackGreeting = "Olá! Sou o assistente de integração Itaú. Vou fazer algumas perguntas rápidas para personalizar sua experiência. Para começar, qual seu nome completo?"
)

// 完成引导所需的必填字段。
var essentialFields = []string{"nome", "cargo", "area"}

// Indexer 将画像派生文档写入检索索引。
type Indexer interface {
	AddTexts(ctx context.Context, texts []string, metadata []map[string]any) error
}

// ProfileStore 是画像的权威存储。
type ProfileStore interface {
	Exists(userID string) bool
	Load(ctx context.Context, userID string) (*profile.Profile, error)
	Save(ctx context.Context, p *profile.Profile) error
}

// Config 汇总引导引擎的依赖。
type Config struct {
	LLM      llm.Client
	Sessions SessionStore
	Profiles ProfileStore
	Indexer  Indexer
	Prompts  *prompts.Catalog
}

// Turn 是一轮用户输入。
type Turn struct {
	UserID        string
	Message       string
	FirstAccess   bool
	UpdateContext bool
}

// Reply 是引导回复。
type Reply struct {
	Response           string           `json:"response"`
	Status             Status           `json:"onboarding_status"`
	NextStep           Step             `json:"next_step,omitempty"`
	QuestionType       Step             `json:"question_type,omitempty"`
	ClarificationTopic string           `json:"clarification_topic,omitempty"`
	UserID             string           `json:"user_id"`
	RequiresUserInput  bool             `json:"requires_user_input"`
	Options            []string         `json:"options,omitempty"`
	UserContext        *profile.Context `json:"user_context,omitempty"`
	Profile            *profile.Profile `json:"user_profile,omitempty"`
	Error              string           `json:"error,omitempty"`
}

// Engine 驱动引导状态机，会话状态保存在 SessionStore 中，引擎本身无状态。
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine 创建引导引擎。
func NewEngine(cfg Config) *Engine {
	if cfg.Sessions == nil {
		cfg.Sessions = NewMemorySessionStore()
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompts.Default()
	}
	return &Engine{cfg: cfg, now: time.Now}
}

// Process 处理一轮输入。回复总是非空；返回的错误表示会话或画像持久化失败。
func (e *Engine) Process(ctx context.Context, turn Turn) (*Reply, error) {
	userID := strings.TrimSpace(turn.UserID)
	if userID == "" {
		userID = unknownUser
	}
	log := logger.Named("onboarding").With("user_id", userID)

	message := strings.TrimSpace(turn.Message)
	if message == "" && !turn.FirstAccess && !turn.UpdateContext {
		return &Reply{Response: idleReply, Status: StatusGeneralHelp, UserID: userID}, nil
	}

	sess, ok, err := e.cfg.Sessions.Load(ctx, userID)
	if err != nil {
		log.Warn("读取引导会话失败，使用新会话", "error", err)
	}
	if !ok || sess == nil {
		sess = newSession(userID)
	}
	if message != "" {
		sess.say("user", message)
		sess.Context += "\nUsuário: " + message
	}

	var (
		reply    *Reply
		finalErr error
	)
	switch {
	case turn.UpdateContext:
		reply = e.start(ctx, sess, message, true)
	case sess.Step == StepProfileChoice:
		reply, finalErr = e.resolveChoice(ctx, sess, message)
	case inProgress(sess.Step):
		reply, finalErr = e.advance(ctx, sess, message)
	case turn.FirstAccess:
		reply = e.start(ctx, sess, message, false)
	default:
		switch e.detectIntent(ctx, sess, message) {
		case intentFirstAccess:
			reply = e.start(ctx, sess, message, false)
		case intentAlreadyOnboarded:
			reply = e.existing(ctx, sess, message)
		case intentContinue:
			if sess.Step == StepComplete {
				reply = e.existing(ctx, sess, message)
			} else {
				reply = e.start(ctx, sess, message, false)
			}
		default:
			reply = e.general(ctx, sess, message)
		}
	}
	reply.UserID = userID
	if reply.Response != "" {
		sess.say("assistant", reply.Response)
	}

	sess.UpdatedAt = e.now().UTC()
	if err := e.cfg.Sessions.Save(ctx, sess); err != nil {
		log.Error("保存引导会话失败", "error", err)
		finalErr = errors.Join(finalErr, err)
	}
	log.Info("引导轮次完成", "status", reply.Status, "step", sess.Step)
	return reply, finalErr
}

// Context 返回已完成引导用户的上下文。
func (e *Engine) Context(ctx context.Context, userID string) (*profile.Context, error) {
	if e.cfg.Profiles == nil {
		return nil, xerrors.New(xerrors.CodeNotFound, "Usuário não encontrado")
	}
	p, err := e.cfg.Profiles.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profile.ContextOf(p, e.summarize(ctx, p)), nil
}

func inProgress(step Step) bool {
	switch step {
	case StepAskName, StepAskProfession, StepAskPreference, StepAskGoals:
		return true
	}
	return false
}

type intent string

const (
	intentFirstAccess      intent = "first_access"
	intentContinue         intent = "continue_onboarding"
	intentAlreadyOnboarded intent = "already_onboarded"
	intentGeneral          intent = "general_help"
)

func (e *Engine) detectIntent(ctx context.Context, sess *Session, message string) intent {
	prompt, err := e.cfg.Prompts.Render("onboarding_intent", map[string]string{"Message": message, "Context": sess.Context})
	if err != nil {
		return fallbackIntent(message)
	}
	got, _ := llm.Classify(ctx, e.cfg.LLM, llm.Request{Prompt: prompt, MaxLength: 50},
		parseIntent,
		func() intent { return fallbackIntent(message) },
	)
	return got
}

func parseIntent(text string) (intent, bool) {
	label, ok := llm.MatchLabel(text, "first_access", "primeiro", "continue", "resposta", "already", "perfil", "general")
	if !ok {
		return "", false
	}
	switch label {
	case "first_access", "primeiro":
		return intentFirstAccess, true
	case "continue", "resposta":
		return intentContinue, true
	case "already", "perfil":
		return intentAlreadyOnboarded, true
	default:
		return intentGeneral, true
	}
}

var greetingWords = map[string]struct{}{"oi": {}, "olá": {}, "ola": {}}

// fallbackIntent 在模型不可用时按关键词判定意图。
func fallbackIntent(message string) intent {
	text := strings.ToLower(message)
	if IsFirstAccess(text) || containsAny(text, []string{"bem vindo", "bem-vindo", "bom dia", "boa tarde", "boa noite"}) {
		return intentFirstAccess
	}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool { return r == ' ' || r == ',' || r == '!' || r == '.' }) {
		if _, ok := greetingWords[w]; ok {
			return intentFirstAccess
		}
	}
	if containsAny(text, existingPhrases) {
		return intentAlreadyOnboarded
	}
	return intentContinue
}

func (e *Engine) start(ctx context.Context, sess *Session, message string, force bool) *Reply {
	if !force && e.cfg.Profiles != nil && e.cfg.Profiles.Exists(sess.UserID) {
		sess.Step = StepProfileChoice
		return &Reply{
			Response:          fmt.Sprintf("Encontrei um perfil existente para você (%s). Deseja carregar o perfil existente ou criar um novo?", sess.UserID),
			Status:            StatusProfileChoice,
			RequiresUserInput: true,
			Options:           []string{"carregar", "novo"},
		}
	}

	history := sess.History
	*sess = *newSession(sess.UserID)
	sess.History = history
	sess.Context = "Usuário iniciou onboarding: " + message

	greeting := e.generate(ctx, "onboarding_greeting", map[string]string{"UserID": sess.UserID}, 150, fallbackGreeting)
	sess.Step = StepAskName
	sess.Field = "nome"
	sess.LastQuestion = greeting
	return &Reply{
		Response:          greeting,
		Status:            StatusStarted,
		NextStep:          StepAskName,
		RequiresUserInput: true,
	}
}

func (e *Engine) resolveChoice(ctx context.Context, sess *Session, message string) (*Reply, error) {
	text := strings.ToLower(message)
	switch {
	case strings.Contains(text, "novo"):
		return e.start(ctx, sess, message, true), nil
	case strings.Contains(text, "carregar"):
		return e.existing(ctx, sess, message), nil
	}
	sess.Step = StepGreeting
	reply := e.start(ctx, sess, message, false)
	return reply, nil
}

func (e *Engine) existing(ctx context.Context, sess *Session, message string) *Reply {
	if e.cfg.Profiles == nil || !e.cfg.Profiles.Exists(sess.UserID) {
		return e.start(ctx, sess, message, true)
	}
	uc, err := e.Context(ctx, sess.UserID)
	if err != nil {
		logger.Named("onboarding").Warn("读取用户画像失败", "user_id", sess.UserID, "error", err)
		return e.start(ctx, sess, message, true)
	}
	sess.Step = StepComplete
	return &Reply{Response: welcomeBack, Status: StatusAlreadyCompleted, UserContext: uc}
}

func (e *Engine) general(ctx context.Context, sess *Session, message string) *Reply {
	text := strings.ToLower(message)
	if strings.Contains(text, "onboarding") || strings.Contains(text, "cadastr") {
		return e.start(ctx, sess, message, false)
	}
	return &Reply{Response: generalHelpReply, Status: StatusGeneralHelp}
}

// advance 处理当前问题的回答，随后要么追问、要么完成引导。
func (e *Engine) advance(ctx context.Context, sess *Session, message string) (*Reply, error) {
	switch sess.Step {
	case StepAskName:
		name, clarify := e.extractName(ctx, sess, message)
		if clarify {
			return e.clarify(ctx, "nome", message), nil
		}
		sess.Collected["nome"] = name
		sess.Context += "\nNome identificado: " + name
	case StepAskProfession:
		fields, ok := e.extractFields(ctx, "onboarding_extract_profession", message)
		if !ok {
			sess.Collected[sess.fieldOr(firstMissing(sess.Collected, "cargo", "area"))] = message
		}
		merge(sess.Collected, fields)
	case StepAskPreference:
		fields, ok := e.extractFields(ctx, "onboarding_extract_preferences", message)
		if !ok {
			sess.Collected[sess.fieldOr("sites_frequentes")] = message
		}
		merge(sess.Collected, fields)
	default:
		sess.Collected[sess.fieldOr("objetivo")] = message
	}

	if complete(sess.Collected) {
		return e.finalize(ctx, sess)
	}
	return e.nextQuestion(ctx, sess, message), nil
}

// complete 在姓名、职位与领域都已填写时返回 true，偏好不是必需的。
func complete(collected map[string]string) bool {
	for _, f := range essentialFields {
		if strings.TrimSpace(collected[f]) == "" {
			return false
		}
	}
	return true
}

func (e *Engine) extractName(ctx context.Context, sess *Session, message string) (string, bool) {
	prompt, err := e.cfg.Prompts.Render("onboarding_extract_name", map[string]string{"Message": message})
	if err == nil {
		var out string
		out, err = llm.GenerateText(ctx, e.cfg.LLM, llm.Request{Prompt: prompt, MaxLength: 50})
		if err == nil {
			if strings.Contains(out, nameNotFound) || strings.TrimSpace(out) == "" {
				return "", true
			}
			return strings.Trim(strings.TrimSpace(out), `"'.`), false
		}
	}
	name := guessName(message)
	return name, name == ""
}

var namePrefixes = []string{"meu nome é", "meu nome e", "me chamo", "eu sou o", "eu sou a", "eu sou", "sou o", "sou a", "sou"}

// guessName 去掉常见引导语后把剩余文本当作姓名。
func guessName(message string) string {
	text := strings.TrimSpace(message)
	lower := strings.ToLower(text)
	for _, p := range namePrefixes {
		if strings.HasPrefix(lower, p+" ") {
			text = strings.TrimSpace(text[len(p):])
			break
		}
	}
	return strings.Trim(text, " .,!")
}

// extractFields 让模型以 JSON 提取字段；调用失败或输出不可解析时返回 false。
func (e *Engine) extractFields(ctx context.Context, template, message string) (map[string]string, bool) {
	prompt, err := e.cfg.Prompts.Render(template, map[string]string{"Message": message})
	if err != nil {
		return nil, false
	}
	return llm.Classify(ctx, e.cfg.LLM, llm.Request{Prompt: prompt, MaxLength: 200}, parseFields, func() map[string]string { return nil })
}

func parseFields(text string) (map[string]string, bool) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, false
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s := stringify(v)
		if s == "" || strings.EqualFold(s, notInformed) {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = s
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

func firstMissing(collected map[string]string, keys ...string) string {
	for _, k := range keys {
		if strings.TrimSpace(collected[k]) == "" {
			return k
		}
	}
	return keys[len(keys)-1]
}

// fallbackQuestion 是确定性的提问顺序：姓名、职位、领域、偏好、目标。
func fallbackQuestion(collected map[string]string) (field string, step Step, question string) {
	switch {
	case collected["nome"] == "":
		return "nome", StepAskName, "Qual seu nome completo?"
	case collected["cargo"] == "":
		return "cargo", StepAskProfession, "Qual seu cargo atual no Itaú?"
	case collected["area"] == "":
		return "area", StepAskProfession, "Em qual área você trabalha?"
	case collected["sites_frequentes"] == "":
		return "sites_frequentes", StepAskPreference, "Quais sites/portais você mais acessa no trabalho?"
	default:
		return "objetivo", StepAskGoals, "Qual seu objetivo principal ao usar o sistema Itaú?"
	}
}

func fieldForStep(step Step, collected map[string]string) string {
	switch step {
	case StepAskName:
		return "nome"
	case StepAskProfession:
		return firstMissing(collected, "cargo", "area")
	case StepAskPreference:
		return "sites_frequentes"
	default:
		return "objetivo"
	}
}

func (e *Engine) nextQuestion(ctx context.Context, sess *Session, answer string) *Reply {
	field, step, question := fallbackQuestion(sess.Collected)

	prompt, err := e.cfg.Prompts.Render("onboarding_next_question", map[string]string{
		"Collected": encodeCollected(sess.Collected),
		"Answer":    answer,
	})
	if err == nil {
		var generated string
		generated, err = llm.GenerateText(ctx, e.cfg.LLM, llm.Request{Prompt: prompt, MaxLength: 100})
		if err == nil && generated != "" {
			question = generated
			step = e.classifyQuestion(ctx, generated, sess.Collected, step)
			field = fieldForStep(step, sess.Collected)
		}
	}

	sess.Step = step
	sess.Field = field
	sess.LastQuestion = question
	return &Reply{
		Response:          question,
		Status:            StatusInProgress,
		QuestionType:      step,
		NextStep:          step,
		RequiresUserInput: true,
	}
}

func (e *Engine) classifyQuestion(ctx context.Context, question string, collected map[string]string, fallback Step) Step {
	keys := make([]string, 0, len(collected))
	for k := range collected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	prompt, err := e.cfg.Prompts.Render("onboarding_question_type", map[string]any{"Question": question, "Keys": keys})
	if err != nil {
		return fallback
	}
	step, _ := llm.Classify(ctx, e.cfg.LLM, llm.Request{Prompt: prompt, MaxLength: 30},
		func(text string) (Step, bool) {
			label, ok := llm.MatchLabel(text, string(StepAskName), string(StepAskProfession), string(StepAskPreference), string(StepAskGoals))
			return Step(label), ok
		},
		func() Step { return fallback },
	)
	return step
}

func (e *Engine) clarify(ctx context.Context, topic, message string) *Reply {
	fallback := fmt.Sprintf("Poderia esclarecer melhor sobre %s?", topic)
	text := e.generate(ctx, "onboarding_clarify", map[string]string{"Topic": topic, "Message": message}, 100, fallback)
	return &Reply{
		Response:           text,
		Status:             StatusClarification,
		ClarificationTopic: topic,
		RequiresUserInput:  true,
	}
}

// finalize 创建并保存画像、写入索引、生成上下文摘要与结束语。
func (e *Engine) finalize(ctx context.Context, sess *Session) (*Reply, error) {
	log := logger.Named("onboarding").With("user_id", sess.UserID)
	now := e.now().UTC()

	p := profile.FromCollected(sess.UserID, sess.Collected, now)
	p.UsagePatterns = e.usagePatterns(ctx, p)
	p.ConversationHistory = append([]profile.Turn(nil), sess.History...)

	var saveErr error
	if e.cfg.Profiles != nil {
		if saveErr = e.cfg.Profiles.Save(ctx, p); saveErr != nil {
			log.Error("保存用户画像失败", "error", saveErr)
		}
	}
	// 画像文件是索引的来源，未保存成功时不写入索引。
	if e.cfg.Indexer != nil && saveErr == nil {
		texts, meta := profile.Split(profile.Documents(p, now))
		if err := e.cfg.Indexer.AddTexts(ctx, texts, meta); err != nil {
			log.Warn("画像写入索引失败", "error", err)
		}
	}

	summary := e.summarize(ctx, p)
	reply := &Reply{
		Status:            StatusCompleted,
		UserContext:       profile.ContextOf(p, summary),
		Profile:           p,
		RequiresUserInput: false,
	}
	if saveErr != nil {
		reply.Error = "Falha ao salvar o perfil: " + saveErr.Error()
		reply.Response = fmt.Sprintf("Obrigado, %s! Recebi suas informações, mas não consegui salvar seu perfil agora. Tente novamente mais tarde.", p.PersonalInfo.Nome)
	} else {
		reply.Response = e.generate(ctx, "onboarding_completion", map[string]string{
			"Nome":  p.PersonalInfo.Nome,
			"Cargo": p.ProfessionalInfo.Cargo,
			"Area":  p.ProfessionalInfo.Area,
		}, 200, fmt.Sprintf("Obrigado, %s! Seu perfil foi configurado e o sistema já está personalizado para você.", p.PersonalInfo.Nome))
	}

	sess.Step = StepComplete
	sess.Field = ""
	log.Info("引导完成", "profile_saved", saveErr == nil)
	return reply, saveErr
}

func (e *Engine) usagePatterns(ctx context.Context, p *profile.Profile) map[string]any {
	prompt, err := e.cfg.Prompts.Render("onboarding_usage_patterns", p.ProfessionalInfo)
	if err != nil {
		return profile.DefaultUsagePatterns()
	}
	patterns, _ := llm.Classify(ctx, e.cfg.LLM, llm.Request{Prompt: prompt, MaxLength: 400},
		func(text string) (map[string]any, bool) {
			start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
			if start < 0 || end <= start {
				return nil, false
			}
			var out map[string]any
			if json.Unmarshal([]byte(text[start:end+1]), &out) != nil || len(out) == 0 {
				return nil, false
			}
			return out, true
		},
		profile.DefaultUsagePatterns,
	)
	return patterns
}

func (e *Engine) summarize(ctx context.Context, p *profile.Profile) string {
	fallback := fmt.Sprintf("%s, %s da área %s.", p.PersonalInfo.Nome, p.ProfessionalInfo.Cargo, p.ProfessionalInfo.Area)
	return e.generate(ctx, "onboarding_summary", map[string]string{
		"Nome":            p.PersonalInfo.Nome,
		"Cargo":           p.ProfessionalInfo.Cargo,
		"Area":            p.ProfessionalInfo.Area,
		"ExperienciaAnos": p.ProfessionalInfo.ExperienciaAnos,
		"TipoConteudo":    p.Preferences.TipoConteudo,
	}, 100, fallback)
}

// generate 渲染模板并调用模型，任何失败都返回 fallback。
func (e *Engine) generate(ctx context.Context, template string, data any, maxLength int, fallback string) string {
	prompt, err := e.cfg.Prompts.Render(template, data)
	if err != nil {
		return fallback
	}
	out, err := llm.GenerateText(ctx, e.cfg.LLM, llm.Request{
		Prompt:       prompt,
		SystemPrompt: e.cfg.Prompts.System("onboarding"),
		MaxLength:    maxLength,
	})
	if err != nil || out == "" {
		if err != nil {
			logger.Named("onboarding").Warn("生成文本失败，使用默认文本", "template", template, "error", err)
		}
		return fallback
	}
	return out
}

func encodeCollected(collected map[string]string) string {
	raw, err := json.MarshalIndent(collected, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}
