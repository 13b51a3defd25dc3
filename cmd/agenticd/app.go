package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"agentic-browser/internal/automation"
	"agentic-browser/internal/automation/chromedp"
	"agentic-browser/internal/automation/wsrpc"
	"agentic-browser/internal/capability"
	"agentic-browser/internal/chat"
	"agentic-browser/internal/config"
	"agentic-browser/internal/embedding"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/evidence"
	"agentic-browser/internal/knowledge"
	"agentic-browser/internal/llm"
	"agentic-browser/internal/llm/gemini"
	"agentic-browser/internal/llm/openai"
	"agentic-browser/internal/llm/pythonbridge"
	"agentic-browser/internal/observability/alerting"
	"agentic-browser/internal/observability/metrics"
	"agentic-browser/internal/onboarding"
	"agentic-browser/internal/pipeline"
	"agentic-browser/internal/policy"
	"agentic-browser/internal/profile"
	"agentic-browser/internal/prompts"
	"agentic-browser/internal/retrieval"
	"agentic-browser/internal/storage/mysql"
	"agentic-browser/internal/storage/redis"
	"agentic-browser/internal/telemetry"
	"agentic-browser/internal/webfetch"
	"agentic-browser/pkg/logger"
)

// app 持有一次进程生命周期内装配好的全部组件。
type app struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	sampler    *telemetry.Sampler
	gate       *policy.Gate
	alerts     alerting.Dispatcher
	archives   evidence.Index
	chat       *chat.Engine
	onboarding *onboarding.Engine
	controller *pipeline.Controller

	redis   *goredis.Client
	closers []func() error
}

func (a *app) onClose(fn func() error) { a.closers = append(a.closers, fn) }

// close 按装配的逆序释放资源。
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// redisClient 在首个需要 Redis 的组件处建立连接，之后复用。
func (a *app) redisClient(ctx context.Context) (*goredis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := redis.Open(ctx, redis.Config{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.onClose(client.Close)
	return client, nil
}

func sqlConfig(c config.SQLStoreConfig) mysql.Config {
	return mysql.Config{
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: time.Duration(c.ConnMaxLifetime) * time.Second,
	}
}

// newApp 装配流水线及其协作者。浏览器控制端由调用方提供，便于 mcp 子命令单独使用。
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	log := logger.Named("agenticd")
	a := &app{cfg: cfg, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	a.gate = policy.NewGate(cfg.Policy.AllowList(), cfg.Policy.DenyList())
	a.sampler = telemetry.NewSampler(telemetry.NewRuntimeCollector(),
		telemetry.WithHistory(cfg.Telemetry.History),
		telemetry.WithSink(a.metrics.ObserveTelemetry),
	)
	a.alerts = newAlerts(cfg.Alerting)
	catalog := prompts.Default()

	base, err := newLLM(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	model := llm.NewInstrumented(base, a.sampler)

	engine, err := embedding.NewEngine(ctx, embedding.Config{
		Provider:         cfg.Embedding.Provider,
		Dimensions:       cfg.Embedding.Dimensions,
		OllamaEndpoint:   cfg.Embedding.Ollama.Endpoint,
		OllamaModel:      cfg.Embedding.Ollama.Model,
		GenAIAPIKey:      cfg.Embedding.GenAI.APIKey,
		GenAIModel:       cfg.Embedding.GenAI.Model,
		TaskType:         cfg.Embedding.GenAI.TaskType,
		PythonExecutable: cfg.LLM.Python.PythonExecutable,
		ScriptPath:       cfg.Embedding.ScriptPath,
		ModelPath:        cfg.Embedding.ModelPath,
	})
	if err != nil {
		return nil, err
	}

	index, err := a.newIndex(ctx)
	if err != nil {
		return nil, err
	}
	rag := retrieval.NewService(engine, index)
	if cfg.Runtime.KnowledgeFile != "" {
		n, err := knowledge.SeedFile(ctx, rag, cfg.Runtime.KnowledgeFile)
		if err != nil {
			log.Warn("加载知识库失败", "path", cfg.Runtime.KnowledgeFile, "error", err)
		} else if n > 0 {
			log.Info("知识库已写入索引", "documents", n)
		}
	}

	profiles, err := profile.NewFileStore(cfg.Runtime.UsersDir)
	if err != nil {
		return nil, err
	}
	fetcher := webfetch.New(webfetch.Config{
		Timeout:   time.Duration(cfg.WebFetch.TimeoutSeconds) * time.Second,
		UserAgent: cfg.WebFetch.UserAgent,
		SearchURL: cfg.WebFetch.SearchURL,
	})

	chatStore, sessions, err := a.conversationStores(ctx)
	if err != nil {
		return nil, err
	}
	a.chat = chat.NewEngine(chat.Config{
		LLM:       model,
		Retriever: rag,
		Web:       fetcher,
		Profiles:  profiles,
		Gate:      a.gate,
		Telemetry: a.sampler,
		Store:     chatStore,
		Prompts:   catalog,
		MaxPairs:  cfg.Chat.MaxPairs,
		TopK:      cfg.Pipeline.RetrievalTopK,
		MinScore:  cfg.Pipeline.RetrievalMinScore,
	})
	a.onboarding = onboarding.NewEngine(onboarding.Config{
		LLM:      model,
		Sessions: sessions,
		Profiles: profiles,
		Indexer:  rag,
		Prompts:  catalog,
	})

	a.archives, err = a.newEvidenceIndex(ctx)
	if err != nil {
		return nil, err
	}

	browser, err := newBrowser(cfg.Automation)
	if err != nil {
		return nil, err
	}
	a.onClose(browser.Close)

	registry := capability.Register(pipeline.Registry{}, capability.Deps{
		LLM:        model,
		Retriever:  rag,
		Fetcher:    fetcher,
		Browser:    browser,
		Gate:       a.gate,
		Prompts:    catalog,
		Sources:    cfg.Pipeline.ResearchSources,
		TopK:       cfg.Pipeline.RetrievalTopK,
		MinScore:   cfg.Pipeline.RetrievalMinScore,
		Chat:       a.chat,
		Onboarding: a.onboarding,
	})
	a.controller = pipeline.NewController(registry,
		pipeline.NewCritic(model, a.gate, rag, catalog),
		pipeline.NewReporter(pipeline.ReporterConfig{
			LLM:         model,
			Prompts:     catalog,
			Telemetry:   a.sampler,
			EvidenceDir: cfg.Runtime.EvidenceDir,
			Index:       a.archives,
			Alerts:      a.alerts,
		}),
		pipeline.WithBlockOnWarnings(cfg.Pipeline.BlockOnWarnings),
		pipeline.WithMetrics(a.metrics),
	)
	return a, nil
}

func newLLM(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
	log := logger.Named("agenticd")
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "none":
		return llm.Unavailable{Reason: "llm.provider=none"}, nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
			log.Warn("未配置 OpenAI API Key，模型相关功能将降级")
			return llm.Unavailable{Reason: "OpenAI API Key ausente"}, nil
		}
		return openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model})
	case "python_bridge":
		return pythonbridge.NewClient(pythonbridge.Config{
			PythonExecutable: cfg.Python.PythonExecutable,
			ScriptPath:       cfg.Python.ScriptPath,
			WorkingDir:       cfg.Python.WorkingDir,
			ModelPath:        cfg.ModelPath,
		})
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "未知的大模型 provider: "+cfg.Provider)
	}
}

func newBrowser(cfg config.AutomationConfig) (automation.Controller, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "websocket", "ws":
		return wsrpc.NewClient(cfg.WSURL, timeout), nil
	case "chromedp":
		return chromedp.New(chromedp.Config{
			Headless:      cfg.Headless,
			Timeout:       timeout,
			ScreenshotDir: cfg.ScreenshotDir,
		})
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "未知的浏览器驱动: "+cfg.Driver)
	}
}

func newAlerts(cfg config.AlertingConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.WebhookURL,
			Client: &http.Client{Timeout: 5 * time.Second},
		})
	}
	return alerting.NewFanout(notifiers...)
}

func (a *app) newIndex(ctx context.Context) (retrieval.Index, error) {
	switch a.cfg.Retrieval.Driver {
	case "sqlite":
		idx, err := retrieval.OpenSQLiteIndex(ctx, a.cfg.Runtime.IndexDir)
		if err != nil {
			return nil, err
		}
		a.onClose(idx.Close)
		return idx, nil
	case "memory", "":
		return retrieval.NewMemoryIndex(a.cfg.Runtime.IndexDir)
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "未知的索引驱动: "+a.cfg.Retrieval.Driver)
	}
}

func (a *app) newEvidenceIndex(ctx context.Context) (evidence.Index, error) {
	switch a.cfg.Storage.EvidenceIndex.Driver {
	case "mysql":
		db, err := mysql.Open(ctx, sqlConfig(a.cfg.Storage.EvidenceIndex))
		if err != nil {
			return nil, err
		}
		a.onClose(db.Close)
		return mysql.NewArchiveRepository(db), nil
	case "memory", "file", "":
		return evidence.NewFileIndex(a.cfg.Runtime.EvidenceDir)
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "未知的证据索引驱动: "+a.cfg.Storage.EvidenceIndex.Driver)
	}
}

func (a *app) conversationStores(ctx context.Context) (chat.Store, onboarding.SessionStore, error) {
	var (
		chatStore chat.Store              = chat.NewMemoryStore()
		sessions  onboarding.SessionStore = onboarding.NewMemorySessionStore()
	)
	if a.cfg.Chat.Store == "redis" {
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		chatStore = chat.NewRedisStore(client, "agentic:chat:", time.Duration(a.cfg.Chat.TTLSeconds)*time.Second)
	}
	if a.cfg.Onboarding.SessionStore == "redis" {
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		sessions = onboarding.NewRedisSessionStore(client, "agentic:onboarding:", time.Duration(a.cfg.Onboarding.TTLSeconds)*time.Second)
	}
	return chatStore, sessions, nil
}
