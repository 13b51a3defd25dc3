package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agentic-browser/internal/auth"
	"agentic-browser/internal/chat"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/evidence"
	"agentic-browser/internal/job"
	"agentic-browser/internal/observability/metrics"
	"agentic-browser/internal/onboarding"
	"agentic-browser/internal/pipeline"
	"agentic-browser/internal/profile"
	"agentic-browser/internal/telemetry"
	"agentic-browser/pkg/logger"
)

// Runner 同步执行一次流水线。
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) *pipeline.State
}

// ChatService 是 /chat 系列路由依赖的对话引擎。
type ChatService interface {
	Chat(ctx context.Context, req chat.Request) *chat.Reply
	Summary(ctx context.Context, id string) (chat.Summary, error)
	Clear(ctx context.Context, id string) error
}

// OnboardingService 是 /onboarding 依赖的引导引擎。
type OnboardingService interface {
	Process(ctx context.Context, turn onboarding.Turn) (*onboarding.Reply, error)
}

// TelemetryService 是 /telemetry 系列路由依赖的采样器。
type TelemetryService interface {
	Start(ctx context.Context, interval time.Duration) bool
	Stop() bool
	Report() telemetry.Report
}

// Deps 汇总路由依赖；为空的依赖对应路由返回 503。
type Deps struct {
	Runner            Runner
	Jobs              *job.Service
	Chat              ChatService
	Onboarding        OnboardingService
	Telemetry         TelemetryService
	TelemetryInterval time.Duration
	Evidence          evidence.Index
	Metrics           *metrics.Metrics
	Auth              *auth.Service
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr string
	deps Deps
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Deps) *Server {
	return &Server{addr: addr, deps: deps}
}

// Handler 返回装配好鉴权与指标中间件的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("POST /jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /jobs", s.handleJobs)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /chat/summary/{id}", s.handleChatSummary)
	mux.HandleFunc("POST /chat/clear/{id}", s.handleChatClear)
	mux.HandleFunc("POST /onboarding", s.handleOnboarding)
	mux.HandleFunc("GET /telemetry/metrics", s.handleTelemetryReport)
	mux.HandleFunc("POST /telemetry/start", s.handleTelemetryStart)
	mux.HandleFunc("POST /telemetry/stop", s.handleTelemetryStop)
	mux.HandleFunc("GET /evidence", s.handleEvidence)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	authed := s.deps.Auth.Middleware(auth.MiddlewareConfig{
		Public: map[string]bool{"/health": true, "/metrics": true},
		Deny:   writeError,
	})(mux)
	return instrument(s.deps.Metrics, mux, authed)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Named("api").Info("HTTP 服务已启动", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func unavailable(what string) error {
	return xerrors.New(xerrors.CodeConfiguration, what+" não configurado")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runResponse struct {
	JobID string          `json:"job_id"`
	State *pipeline.State `json:"state"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runner == nil {
		writeError(w, r, unavailable("pipeline"))
		return
	}
	var in pipeline.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	state := s.deps.Runner.Run(r.Context(), in)
	writeJSON(w, http.StatusOK, runResponse{JobID: state.JobID, State: state})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, r, unavailable("fila de tarefas"))
		return
	}
	var in pipeline.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	j, err := s.deps.Jobs.Submit(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": j.ID, "status": j.Status})
}

type jobList struct {
	Jobs  []*job.Job `json:"jobs"`
	Stats job.Stats  `json:"stats"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, r, unavailable("fila de tarefas"))
		return
	}
	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("id")); id != "" {
		j, err := s.deps.Jobs.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
		return
	}

	var opts []job.ListOption
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "limit inválido"))
			return
		}
		opts = append(opts, job.WithLimit(limit))
	}
	if raw := q.Get("status"); raw != "" {
		var statuses []job.Status
		for _, st := range strings.Split(raw, ",") {
			status := job.Status(strings.TrimSpace(st))
			if !job.IsValidStatus(status) {
				writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "status inválido: "+string(status)))
				return
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, job.WithStatuses(statuses...))
	}
	if capability := q.Get("capability"); capability != "" {
		opts = append(opts, job.WithCapability(capability))
	}

	jobs, err := s.deps.Jobs.List(r.Context(), opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.deps.Jobs.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobList{Jobs: jobs, Stats: stats})
}

type chatRequest struct {
	Message         string           `json:"message"`
	ConversationID  string           `json:"conversation_id"`
	UserID          string           `json:"user_id"`
	UserContext     *profile.Context `json:"user_context"`
	EnableWebSearch *bool            `json:"enable_web_search"`
	FirstAccess     bool             `json:"first_access"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeError(w, r, unavailable("chatbot"))
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" && !req.FirstAccess {
		writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "mensagem vazia"))
		return
	}
	reply := s.deps.Chat.Chat(r.Context(), chat.Request{
		Message:         req.Message,
		ConversationID:  req.ConversationID,
		UserID:          req.UserID,
		UserContext:     req.UserContext,
		EnableWebSearch: req.EnableWebSearch,
		FirstAccess:     req.FirstAccess,
	})
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeError(w, r, unavailable("chatbot"))
		return
	}
	summary, err := s.deps.Chat.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeError(w, r, unavailable("chatbot"))
		return
	}
	id := r.PathValue("id")
	if err := s.deps.Chat.Clear(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Conversa " + id + " limpa com sucesso",
	})
}

type onboardingRequest struct {
	UserID        string `json:"user_id"`
	Message       string `json:"message"`
	FirstAccess   bool   `json:"first_access"`
	UpdateContext bool   `json:"update_context"`
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	if s.deps.Onboarding == nil {
		writeError(w, r, unavailable("onboarding"))
		return
	}
	var req onboardingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reply, err := s.deps.Onboarding.Process(r.Context(), onboarding.Turn{
		UserID:        req.UserID,
		Message:       req.Message,
		FirstAccess:   req.FirstAccess,
		UpdateContext: req.UpdateContext,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleTelemetryReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Telemetry == nil {
		writeError(w, r, unavailable("telemetria"))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Telemetry.Report())
}

func (s *Server) handleTelemetryStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Telemetry == nil {
		writeError(w, r, unavailable("telemetria"))
		return
	}
	// 采样循环的生命周期独立于本次请求，由 /telemetry/stop 结束。
	started := s.deps.Telemetry.Start(context.WithoutCancel(r.Context()), s.deps.TelemetryInterval)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Monitoramento iniciado",
		"changed": started,
	})
}

func (s *Server) handleTelemetryStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Telemetry == nil {
		writeError(w, r, unavailable("telemetria"))
		return
	}
	stopped := s.deps.Telemetry.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Monitoramento parado",
		"changed": stopped,
	})
}

// handleEvidence 返回最近的证据归档记录，limit 默认 20，上限 100。
func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	if s.deps.Evidence == nil {
		writeError(w, r, unavailable("índice de evidências"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "limit inválido"))
			return
		}
		limit = min(n, 100)
	}
	records, err := s.deps.Evidence.Latest(r.Context(), limit)
	if err != nil {
		writeError(w, r, xerrors.Wrap(xerrors.CodeStorageFailure, err, "falha ao listar evidências"))
		return
	}
	if records == nil {
		records = []evidence.ArchiveRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": records})
}
