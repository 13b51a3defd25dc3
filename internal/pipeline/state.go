package pipeline

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentic-browser/internal/chat"
	"agentic-browser/internal/evidence"
	"agentic-browser/internal/onboarding"
	"agentic-browser/internal/telemetry"
)

// StateVersion 随 State 的结构变化递增。
const StateVersion = 1

// Capability 是路由可以选择的能力名称。
type Capability string

const (
	CapabilityOnboarding  Capability = "onboarding"
	CapabilityChatbot     Capability = "chatbot"
	CapabilityFormFiller  Capability = "form_filler"
	CapabilityAutomations Capability = "automations"
	CapabilityOverlay     Capability = "overlay"
	CapabilityResearcher  Capability = "researcher"
)

// FormField 是一个待填写的表单字段。
type FormField struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

// FormSpec 描述表单填写任务。
type FormSpec struct {
	URL    string      `json:"url"`
	Fields []FormField `json:"fields,omitempty"`
}

// Step 是一个自动化步骤，Kind 取 open、click 或 fill。
type Step struct {
	Kind     string `json:"kind"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Masked 返回只保留选择器的副本，所有取值替换为 evidence.Mask。
func (f *FormSpec) Masked() *FormSpec {
	if f == nil {
		return nil
	}
	masked := &FormSpec{URL: f.URL, Fields: make([]FormField, len(f.Fields))}
	for i, field := range f.Fields {
		masked.Fields[i] = FormField{Selector: field.Selector, Value: evidence.Mask}
	}
	return masked
}

// AutomationSpec 描述一组顺序执行的自动化步骤。
type AutomationSpec struct {
	Steps []Step `json:"steps"`
}

// Masked 返回非空取值被遮蔽的副本。
func (a *AutomationSpec) Masked() *AutomationSpec {
	if a == nil {
		return nil
	}
	return &AutomationSpec{Steps: MaskSteps(a.Steps)}
}

// MaskSteps 遮蔽步骤中的非空取值，不修改入参。
func MaskSteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, st := range steps {
		out[i] = st
		if st.Value != "" {
			out[i].Value = evidence.Mask
		}
	}
	return out
}

// Input 是调用方可以设置的字段，其余字段只能由流水线写入。
type Input struct {
	JobID           string          `json:"job_id,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	Query           string          `json:"query,omitempty"`
	Message         string          `json:"message,omitempty"`
	ConversationID  string          `json:"conversation_id,omitempty"`
	EnableWebSearch *bool           `json:"enable_web_search,omitempty"`
	FirstAccess     bool            `json:"first_access,omitempty"`
	UpdateContext   bool            `json:"update_context,omitempty"`
	FormSpec        *FormSpec       `json:"form_spec,omitempty"`
	AutomationSpec  *AutomationSpec `json:"automation_spec,omitempty"`
	OverlayMode     bool            `json:"overlay_mode,omitempty"`
}

// Tab 是研究阶段打开的标签页。
type Tab struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Finding 是从页面抓取的摘录。
type Finding struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ResearchOutput 由 Researcher 写入。
type ResearchOutput struct {
	Response           string `json:"response"`
	ResearcherResponse string `json:"researcher_response"`
	SearchStrategy     string `json:"search_strategy,omitempty"`
	RAGContextUsed     bool   `json:"rag_context_used"`
	Completed          bool   `json:"research_completed"`
}

// ActionResult 是一次浏览器动作的结果摘要。
type ActionResult struct {
	Kind   string          `json:"kind"`
	Target string          `json:"target,omitempty"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// FormOutput 由 FormFiller 写入。
type FormOutput struct {
	Analysis   string         `json:"form_analysis,omitempty"`
	Allowed    bool           `json:"allowed"`
	Actions    []ActionResult `json:"actions,omitempty"`
	Screenshot string         `json:"screenshot,omitempty"`
}

// AutomationOutput 由 Automations 写入。
type AutomationOutput struct {
	Plan    string         `json:"automation_plan,omitempty"`
	Actions []ActionResult `json:"actions,omitempty"`
	Skipped int            `json:"skipped_steps"`
}

// OverlayOutput 由 Overlay 写入。
type OverlayOutput struct {
	Active      bool   `json:"active"`
	Suggestions string `json:"overlay_suggestions,omitempty"`
}

// TechnicalReport 的字段集合是固定的。
type TechnicalReport struct {
	Timestamp           time.Time         `json:"timestamp"`
	Query               string            `json:"query"`
	Agent               Capability        `json:"agent"`
	SecurityWarnings    []string          `json:"security_warnings"`
	TabsOpened          int               `json:"tabs_opened"`
	FindingsCount       int               `json:"findings_count"`
	CitationsGenerated  bool              `json:"citations_generated"`
	ProcessingTime      float64           `json:"processing_time"`
	Telemetry           *telemetry.Report `json:"npu_metrics,omitempty"`
	PerformanceAnalysis string            `json:"performance_analysis,omitempty"`
	Status              string            `json:"status"`
}

// ExecutionLog 是一次运行的摘要行。
type ExecutionLog struct {
	Timestamp      time.Time  `json:"timestamp"`
	JobID          string     `json:"job_id"`
	Query          string     `json:"query"`
	Agent          Capability `json:"agent"`
	Success        bool       `json:"success"`
	WarningsCount  int        `json:"warnings_count"`
	ProcessingTime float64    `json:"processing_time"`
}

// EvidenceOutcome 记录证据归档的结果。
type EvidenceOutcome struct {
	Path      string `json:"evidence_path,omitempty"`
	Generated bool   `json:"evidence_generated"`
	Error     string `json:"evidence_error,omitempty"`
}

// State 是单个任务在各阶段之间传递的状态，只增不减。
type State struct {
	Version         int             `json:"version"`
	JobID           string          `json:"job_id"`
	UserID          string          `json:"user_id,omitempty"`
	Query           string          `json:"query,omitempty"`
	Message         string          `json:"message,omitempty"`
	ConversationID  string          `json:"conversation_id,omitempty"`
	EnableWebSearch *bool           `json:"enable_web_search,omitempty"`
	FirstAccess     bool            `json:"first_access"`
	UpdateContext   bool            `json:"update_context"`
	FormSpec        *FormSpec       `json:"form_spec,omitempty"`
	AutomationSpec  *AutomationSpec `json:"automation_spec,omitempty"`
	OverlayMode     bool            `json:"overlay_mode"`

	SelectedCapability  Capability `json:"selected_agent"`
	Warnings            []string   `json:"warnings"`
	SecurityCheckPassed bool       `json:"security_check_passed"`
	Blocked             bool       `json:"blocked,omitempty"`

	Plan      []string  `json:"plan,omitempty"`
	Tabs      []Tab     `json:"tabs,omitempty"`
	Findings  []Finding `json:"findings,omitempty"`
	Citations string    `json:"citations,omitempty"`
	Response  string    `json:"response,omitempty"`

	Research   *ResearchOutput   `json:"research,omitempty"`
	Form       *FormOutput       `json:"form,omitempty"`
	Automation *AutomationOutput `json:"automation,omitempty"`
	Overlay    *OverlayOutput    `json:"overlay,omitempty"`
	Chat       *chat.Reply       `json:"chat,omitempty"`
	Onboarding *onboarding.Reply `json:"onboarding,omitempty"`

	ExecutiveSummary      string             `json:"executive_summary,omitempty"`
	TechnicalReport       *TechnicalReport   `json:"technical_report,omitempty"`
	ExecutionLog          *ExecutionLog      `json:"execution_log,omitempty"`
	Evidence              EvidenceOutcome    `json:"evidence"`
	ProcessingTimeSeconds float64            `json:"processing_time_seconds"`
	StageDurationsMS      map[string]float64 `json:"stage_durations_ms,omitempty"`
	Error                 string             `json:"error,omitempty"`

	startedAt time.Time
}

// NewState 只用调用方字段创建状态；JobID 为空时分配新的 UUID。
func NewState(in Input) *State {
	jobID := strings.TrimSpace(in.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	return &State{
		Version:         StateVersion,
		JobID:           jobID,
		UserID:          in.UserID,
		Query:           in.Query,
		Message:         in.Message,
		ConversationID:  in.ConversationID,
		EnableWebSearch: in.EnableWebSearch,
		FirstAccess:     in.FirstAccess,
		UpdateContext:   in.UpdateContext,
		FormSpec:        in.FormSpec,
		AutomationSpec:  in.AutomationSpec,
		OverlayMode:     in.OverlayMode,
		Warnings:        []string{},
	}
}

// AddWarning 追加告警，已存在的告警不会重复写入。
func (s *State) AddWarning(warnings ...string) int {
	seen := make(map[string]struct{}, len(s.Warnings))
	for _, w := range s.Warnings {
		seen[w] = struct{}{}
	}
	added := 0
	for _, w := range warnings {
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		s.Warnings = append(s.Warnings, w)
		added++
	}
	return added
}

// redacted 返回用于归档的浅拷贝，填写值不以明文落盘。
func (s *State) redacted() *State {
	cp := *s
	cp.FormSpec = s.FormSpec.Masked()
	cp.AutomationSpec = s.AutomationSpec.Masked()
	return &cp
}

// Subject 返回用于审查与生成的主文本：优先 query，其次 message。
func (s *State) Subject() string {
	if q := strings.TrimSpace(s.Query); q != "" {
		return q
	}
	return strings.TrimSpace(s.Message)
}

// URLs 返回状态中出现的所有目标地址。
func (s *State) URLs() []string {
	var urls []string
	for _, t := range s.Tabs {
		if t.URL != "" {
			urls = append(urls, t.URL)
		}
	}
	if s.FormSpec != nil && s.FormSpec.URL != "" {
		urls = append(urls, s.FormSpec.URL)
	}
	if s.AutomationSpec != nil {
		for _, step := range s.AutomationSpec.Steps {
			if step.URL != "" {
				urls = append(urls, step.URL)
			}
		}
	}
	return urls
}

func (s *State) recordStage(stage string, d time.Duration) {
	if s.StageDurationsMS == nil {
		s.StageDurationsMS = make(map[string]float64, 4)
	}
	s.StageDurationsMS[stage] = float64(d.Microseconds()) / 1000
}
