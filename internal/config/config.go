package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/pkg/logger"
)

// Config 描述了服务在启动阶段需要加载的全部配置，加载后只读。
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Auth       AuthConfig       `json:"auth" yaml:"auth"`
	Logging    logger.Config    `json:"logging" yaml:"logging"`
	Policy     PolicyConfig     `json:"policy" yaml:"policy"`
	Runtime    RuntimeConfig    `json:"runtime" yaml:"runtime"`
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
	Automation AutomationConfig `json:"automation" yaml:"automation"`
	WebFetch   WebFetchConfig   `json:"web_fetch" yaml:"web_fetch"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Queue      QueueConfig      `json:"queue" yaml:"queue"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
	Chat       ChatConfig       `json:"chat" yaml:"chat"`
	Onboarding OnboardingConfig `json:"onboarding" yaml:"onboarding"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`
	Telemetry  TelemetryConfig  `json:"telemetry" yaml:"telemetry"`
	Alerting   AlertingConfig   `json:"alerting" yaml:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址。
type ServerConfig struct {
	Address string `json:"address" yaml:"address"`
	Env     string `json:"env" yaml:"env"`
}

// AuthConfig 配置静态 Bearer Token，列表为空时不做鉴权。
type AuthConfig struct {
	Tokens []string `json:"tokens" yaml:"tokens"`
}

// PolicyConfig 以逗号分隔的形式保存域名白名单与黑名单。
type PolicyConfig struct {
	AllowDomains string `json:"allow_domains" yaml:"allow_domains"`
	DenyDomains  string `json:"deny_domains" yaml:"deny_domains"`
}

// AllowList 返回拆分后的白名单。
func (p PolicyConfig) AllowList() []string { return SplitList(p.AllowDomains) }

// DenyList 返回拆分后的黑名单。
func (p PolicyConfig) DenyList() []string { return SplitList(p.DenyDomains) }

// RuntimeConfig 汇总运行期使用的目录。
type RuntimeConfig struct {
	DataDir       string `json:"data_dir" yaml:"data_dir"`
	EvidenceDir   string `json:"evidence_dir" yaml:"evidence_dir"`
	IndexDir      string `json:"index_dir" yaml:"index_dir"`
	UsersDir      string `json:"users_dir" yaml:"users_dir"`
	KnowledgeFile string `json:"knowledge_file" yaml:"knowledge_file"`
}

// LLMConfig 用于配置生成服务。
type LLMConfig struct {
	Provider       string             `json:"provider" yaml:"provider"`
	ModelPath      string             `json:"model_path" yaml:"model_path"`
	TimeoutSeconds int                `json:"timeout_seconds" yaml:"timeout_seconds"`
	OpenAI         OpenAIConfig       `json:"openai" yaml:"openai"`
	Gemini         GeminiConfig       `json:"gemini" yaml:"gemini"`
	Python         PythonBridgeConfig `json:"python_bridge" yaml:"python_bridge"`
}

// OpenAIConfig 描述 OpenAI 兼容接口。
type OpenAIConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
}

// GeminiConfig 描述 Google GenAI 接口。
type GeminiConfig struct {
	APIKey string `json:"api_key" yaml:"api_key"`
	Model  string `json:"model" yaml:"model"`
}

// PythonBridgeConfig 描述通过本地 Python 脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable" yaml:"python_executable"`
	ScriptPath       string `json:"script_path" yaml:"script_path"`
	WorkingDir       string `json:"working_dir" yaml:"working_dir"`
}

// EmbeddingConfig 用于配置向量化服务。
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"`
	ModelPath  string `json:"model_path" yaml:"model_path"`
	ScriptPath string `json:"script_path" yaml:"script_path"`
	Dimensions int    `json:"dimensions" yaml:"dimensions"`
	Ollama     struct {
		Endpoint string `json:"endpoint" yaml:"endpoint"`
		Model    string `json:"model" yaml:"model"`
	} `json:"ollama" yaml:"ollama"`
	GenAI struct {
		APIKey   string `json:"api_key" yaml:"api_key"`
		Model    string `json:"model" yaml:"model"`
		TaskType string `json:"task_type" yaml:"task_type"`
	} `json:"genai" yaml:"genai"`
}

// RetrievalConfig 选择向量索引的实现。
type RetrievalConfig struct {
	Driver string `json:"driver" yaml:"driver"`
}

// AutomationConfig 配置浏览器自动化控制端。
type AutomationConfig struct {
	Driver         string `json:"driver" yaml:"driver"`
	WSURL          string `json:"ws_url" yaml:"ws_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	Headless       bool   `json:"headless" yaml:"headless"`
	ScreenshotDir  string `json:"screenshot_dir" yaml:"screenshot_dir"`
}

// WebFetchConfig 配置网页抓取。
type WebFetchConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent      string `json:"user_agent" yaml:"user_agent"`
	SearchURL      string `json:"search_url" yaml:"search_url"`
}

// StorageConfig 描述任务记录与证据索引的持久化后端。
type StorageConfig struct {
	JobStore      SQLStoreConfig `json:"job_store" yaml:"job_store"`
	EvidenceIndex SQLStoreConfig `json:"evidence_index" yaml:"evidence_index"`
}

// SQLStoreConfig 支持 memory 与 mysql 两种驱动。
type SQLStoreConfig struct {
	Driver          string `json:"driver" yaml:"driver"`
	DSN             string `json:"dsn" yaml:"dsn"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
}

// QueueConfig 描述异步任务队列。
type QueueConfig struct {
	Driver     string `json:"driver" yaml:"driver"`
	Workers    int    `json:"workers" yaml:"workers"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
	Buffer     int    `json:"buffer" yaml:"buffer"`
	RedisKey   string `json:"redis_key" yaml:"redis_key"`
	AMQPURL    string `json:"amqp_url" yaml:"amqp_url"`
	AMQPQueue  string `json:"amqp_queue" yaml:"amqp_queue"`
}

// RedisConfig 为队列、会话等组件共享的 Redis 连接参数。
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// ChatConfig 配置对话历史的存储。
type ChatConfig struct {
	Store      string `json:"store" yaml:"store"`
	MaxPairs   int    `json:"max_pairs" yaml:"max_pairs"`
	TTLSeconds int    `json:"ttl_seconds" yaml:"ttl_seconds"`
}

// OnboardingConfig 配置引导会话的存储。
type OnboardingConfig struct {
	SessionStore string `json:"session_store" yaml:"session_store"`
	TTLSeconds   int    `json:"ttl_seconds" yaml:"ttl_seconds"`
}

// PipelineConfig 控制编排流程的可调参数。
type PipelineConfig struct {
	BlockOnWarnings   bool     `json:"block_on_warnings" yaml:"block_on_warnings"`
	RetrievalTopK     int      `json:"retrieval_top_k" yaml:"retrieval_top_k"`
	RetrievalMinScore float64  `json:"retrieval_min_score" yaml:"retrieval_min_score"`
	ResearchSources   []string `json:"research_sources" yaml:"research_sources"`
}

// TelemetryConfig 控制加速器遥测采样。
type TelemetryConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	IntervalMillis int  `json:"interval_millis" yaml:"interval_millis"`
	History        int  `json:"history" yaml:"history"`
}

// AlertingConfig 配置告警通道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

// Load 解析指定路径的 JSON 或 YAML 配置文件，路径为空时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "读取配置文件失败")
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(content, &cfg)
		default:
			err = json.Unmarshal(content, &cfg)
		}
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析配置失败")
		}
		baseDir = filepath.Dir(path)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖文件中的值。
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("AGENTIC_ALLOW_DOMAINS", &c.Policy.AllowDomains)
	set("AGENTIC_DENY_DOMAINS", &c.Policy.DenyDomains)
	set("AGENTIC_DATA_DIR", &c.Runtime.DataDir)
	set("AGENTIC_EVIDENCE_DIR", &c.Runtime.EvidenceDir)
	set("AGENTIC_INDEX_DIR", &c.Runtime.IndexDir)
	set("AGENTIC_USERS_DIR", &c.Runtime.UsersDir)
	set("AGENTIC_LLM_MODEL_PATH", &c.LLM.ModelPath)
	set("AGENTIC_EMBED_MODEL_PATH", &c.Embedding.ModelPath)
	set("AGENTIC_MCP_WS_URL", &c.Automation.WSURL)
	set("AGENTIC_LLM_PROVIDER", &c.LLM.Provider)
	set("AGENTIC_OPENAI_API_KEY", &c.LLM.OpenAI.APIKey)
	set("AGENTIC_GEMINI_API_KEY", &c.LLM.Gemini.APIKey)
	set("AGENTIC_MYSQL_DSN", &c.Storage.JobStore.DSN)
	set("AGENTIC_REDIS_ADDR", &c.Redis.Addr)

	if v, ok := lookup("AGENTIC_APP_PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && port > 0 {
			c.Server.Address = fmt.Sprintf(":%d", port)
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "dev"
	}
	if c.Policy.AllowDomains == "" {
		c.Policy.AllowDomains = "itau.com.br"
	}

	c.Runtime.DataDir = resolve(baseDir, c.Runtime.DataDir, "data")
	c.Runtime.EvidenceDir = resolve(c.Runtime.DataDir, c.Runtime.EvidenceDir, "evidence")
	c.Runtime.IndexDir = resolve(c.Runtime.DataDir, c.Runtime.IndexDir, "indexes")
	c.Runtime.UsersDir = resolve(c.Runtime.DataDir, c.Runtime.UsersDir, "users")
	if c.Runtime.KnowledgeFile != "" && !filepath.IsAbs(c.Runtime.KnowledgeFile) {
		c.Runtime.KnowledgeFile = filepath.Join(baseDir, c.Runtime.KnowledgeFile)
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.ModelPath != "" && !filepath.IsAbs(c.LLM.ModelPath) {
		c.LLM.ModelPath = filepath.Join(baseDir, c.LLM.ModelPath)
	}
	if c.LLM.OpenAI.BaseURL == "" {
		c.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4o-mini"
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-2.0-flash"
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	c.LLM.Python.WorkingDir = resolve(baseDir, c.LLM.Python.WorkingDir, ".")

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hash"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.ModelPath != "" && !filepath.IsAbs(c.Embedding.ModelPath) {
		c.Embedding.ModelPath = filepath.Join(baseDir, c.Embedding.ModelPath)
	}
	if c.Embedding.ScriptPath != "" && !filepath.IsAbs(c.Embedding.ScriptPath) {
		c.Embedding.ScriptPath = filepath.Join(baseDir, c.Embedding.ScriptPath)
	}

	if c.Retrieval.Driver == "" {
		c.Retrieval.Driver = "memory"
	}

	if c.Automation.Driver == "" {
		c.Automation.Driver = "websocket"
	}
	if c.Automation.WSURL == "" {
		c.Automation.WSURL = "ws://127.0.0.1:17872"
	}
	if c.Automation.TimeoutSeconds <= 0 {
		c.Automation.TimeoutSeconds = 30
	}
	c.Automation.ScreenshotDir = resolve(c.Runtime.EvidenceDir, c.Automation.ScreenshotDir, "screenshots")

	if c.WebFetch.TimeoutSeconds <= 0 {
		c.WebFetch.TimeoutSeconds = 10
	}

	if c.Storage.JobStore.Driver == "" {
		c.Storage.JobStore.Driver = "memory"
	}
	if c.Storage.EvidenceIndex.Driver == "" {
		c.Storage.EvidenceIndex.Driver = "memory"
	}
	if c.Storage.EvidenceIndex.DSN == "" {
		c.Storage.EvidenceIndex.DSN = c.Storage.JobStore.DSN
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.MaxRetries < 0 {
		c.Queue.MaxRetries = 0
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 64
	}
	if c.Queue.RedisKey == "" {
		c.Queue.RedisKey = "agentic:jobs"
	}
	if c.Queue.AMQPQueue == "" {
		c.Queue.AMQPQueue = "agentic.jobs"
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}

	if c.Chat.Store == "" {
		c.Chat.Store = "memory"
	}
	if c.Chat.MaxPairs <= 0 {
		c.Chat.MaxPairs = 10
	}
	if c.Chat.TTLSeconds <= 0 {
		c.Chat.TTLSeconds = 86400
	}
	if c.Onboarding.SessionStore == "" {
		c.Onboarding.SessionStore = "memory"
	}
	if c.Onboarding.TTLSeconds <= 0 {
		c.Onboarding.TTLSeconds = 7 * 86400
	}

	if c.Pipeline.RetrievalTopK <= 0 {
		c.Pipeline.RetrievalTopK = 5
	}
	if c.Pipeline.RetrievalMinScore <= 0 {
		c.Pipeline.RetrievalMinScore = 0.3
	}
	if len(c.Pipeline.ResearchSources) == 0 {
		c.Pipeline.ResearchSources = []string{
			"https://www.itau.com.br/",
			"https://www.gov.br/cvm/",
			"https://www.b3.com.br/",
		}
	}

	if c.Telemetry.IntervalMillis <= 0 {
		c.Telemetry.IntervalMillis = 100
	}
	if c.Telemetry.History <= 0 {
		c.Telemetry.History = 1000
	}
}

// Validate 检查启动所必需的路径与驱动组合，失败时返回 CONFIGURATION 错误。
func (c *Config) Validate() error {
	if c.LLM.Provider == "python_bridge" {
		if c.LLM.ModelPath == "" {
			return xerrors.New(xerrors.CodeConfiguration, "python_bridge 需要配置 llm.model_path")
		}
		if _, err := os.Stat(c.LLM.ModelPath); err != nil {
			return xerrors.Wrap(xerrors.CodeConfiguration, err, "模型路径不可用")
		}
	}
	if c.Embedding.Provider == "python_bridge" && c.Embedding.ModelPath == "" {
		return xerrors.New(xerrors.CodeConfiguration, "python_bridge 向量化需要配置 embedding.model_path")
	}
	if c.Runtime.IndexDir == "" {
		return xerrors.New(xerrors.CodeConfiguration, "索引目录为空")
	}
	for _, store := range []SQLStoreConfig{c.Storage.JobStore, c.Storage.EvidenceIndex} {
		if store.Driver == "mysql" && store.DSN == "" {
			return xerrors.New(xerrors.CodeConfiguration, "mysql 驱动需要配置 dsn")
		}
	}
	if c.Queue.Driver == "rabbitmq" && c.Queue.AMQPURL == "" {
		return xerrors.New(xerrors.CodeConfiguration, "rabbitmq 队列需要配置 amqp_url")
	}
	return nil
}

// SplitList 拆分逗号分隔的列表并去掉空白项。
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolve(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
