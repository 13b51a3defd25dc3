package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agentic-browser/internal/auth"
	"agentic-browser/internal/chat"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/evidence"
	"agentic-browser/internal/job"
	"agentic-browser/internal/observability/metrics"
	"agentic-browser/internal/onboarding"
	"agentic-browser/internal/pipeline"
	"agentic-browser/internal/telemetry"
)

type stubRunner struct{ last pipeline.Input }

func (s *stubRunner) Run(_ context.Context, in pipeline.Input) *pipeline.State {
	s.last = in
	st := pipeline.NewState(in)
	st.SelectedCapability = pipeline.CapabilityResearcher
	st.Response = "resposta"
	return st
}

type stubChat struct {
	req     chat.Request
	cleared string
}

func (s *stubChat) Chat(_ context.Context, req chat.Request) *chat.Reply {
	s.req = req
	return &chat.Reply{Response: "olá", ConversationID: "conv-1", RAGContextUsed: true}
}

func (s *stubChat) Summary(_ context.Context, id string) (chat.Summary, error) {
	if id == "missing" {
		return chat.Summary{}, xerrors.New(xerrors.CodeNotFound, "conversa não encontrada")
	}
	return chat.Summary{ConversationID: id, TotalMessages: 4, ConversationPairs: 2}, nil
}

func (s *stubChat) Clear(_ context.Context, id string) error {
	s.cleared = id
	return nil
}

type stubOnboarding struct{}

func (stubOnboarding) Process(_ context.Context, turn onboarding.Turn) (*onboarding.Reply, error) {
	return &onboarding.Reply{Response: "Bem-vindo", Status: onboarding.StatusStarted, UserID: turn.UserID, RequiresUserInput: true}, nil
}

type stubTelemetry struct{ running bool }

func (s *stubTelemetry) Start(context.Context, time.Duration) bool {
	changed := !s.running
	s.running = true
	return changed
}

func (s *stubTelemetry) Stop() bool {
	changed := s.running
	s.running = false
	return changed
}

func (s *stubTelemetry) Report() telemetry.Report {
	return telemetry.Report{PerformanceScore: 87.5}
}

type stubArchives struct{}

func (stubArchives) Save(context.Context, evidence.ArchiveRecord) error { return nil }

func (stubArchives) Latest(_ context.Context, limit int) ([]evidence.ArchiveRecord, error) {
	records := []evidence.ArchiveRecord{{JobID: "j1", Generated: true}, {JobID: "j2"}, {JobID: "j3"}}
	return records[:min(limit, len(records))], nil
}

type fixture struct {
	handler http.Handler
	runner  *stubRunner
	chat    *stubChat
	tele    *stubTelemetry
	jobs    *job.Service
}

func newFixture(tokens ...string) *fixture {
	f := &fixture{runner: &stubRunner{}, chat: &stubChat{}, tele: &stubTelemetry{}}
	f.jobs = job.NewService(job.NewMemoryStore(), job.NewMemoryQueue(8), 3, nil)
	f.handler = NewServer(":0", Deps{
		Runner:     f.runner,
		Jobs:       f.jobs,
		Chat:       f.chat,
		Onboarding: stubOnboarding{},
		Telemetry:  f.tele,
		Evidence:   stubArchives{},
		Metrics:    metrics.New(),
		Auth:       auth.NewService(tokens),
	}).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	rec := newFixture("tok").do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || decode[map[string]string](t, rec)["status"] != "ok" {
		t.Fatalf("unexpected health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRunReturnsJobAndState(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/run", `{"query":"taxa selic","overlay_mode":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		JobID string         `json:"job_id"`
		State pipeline.State `json:"state"`
	}](t, rec)
	if got.JobID == "" || got.JobID != got.State.JobID || got.State.Response != "resposta" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if f.runner.last.Query != "taxa selic" || !f.runner.last.OverlayMode {
		t.Fatalf("input not forwarded: %+v", f.runner.last)
	}
}

func TestInvalidBodyUsesErrorEnvelope(t *testing.T) {
	rec := newFixture().do(t, http.MethodPost, "/run", `{`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if body.Error.Code != xerrors.CodeInvalidArgument || body.Error.Message == "" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestJobsSubmitAndFetch(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/jobs", `{"job_id":"job-9","query":"cdb"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	accepted := decode[map[string]string](t, rec)
	if accepted["job_id"] != "job-9" || accepted["status"] != "pending" {
		t.Fatalf("unexpected submit body: %v", accepted)
	}

	detail := f.do(t, http.MethodGet, "/jobs?id=job-9", "")
	if detail.Code != http.StatusOK || decode[job.Job](t, detail).Input.Query != "cdb" {
		t.Fatalf("unexpected detail: %d %s", detail.Code, detail.Body.String())
	}

	list := decode[jobList](t, f.do(t, http.MethodGet, "/jobs?status=pending&limit=5", ""))
	if len(list.Jobs) != 1 || list.Stats.Pending != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	if rec := f.do(t, http.MethodGet, "/jobs?id=nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/jobs?status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatRoutes(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/chat", `{"message":"Quais cartões?","user_id":"u1","enable_web_search":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	reply := decode[chat.Reply](t, rec)
	if reply.Response != "olá" || !reply.RAGContextUsed {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if f.chat.req.EnableWebSearch == nil || *f.chat.req.EnableWebSearch || f.chat.req.UserID != "u1" {
		t.Fatalf("request not forwarded: %+v", f.chat.req)
	}

	if rec := f.do(t, http.MethodPost, "/chat", `{"message":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty message should be rejected, got %d", rec.Code)
	}

	summary := decode[chat.Summary](t, f.do(t, http.MethodGet, "/chat/summary/conv-1", ""))
	if summary.ConversationID != "conv-1" || summary.ConversationPairs != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if rec := f.do(t, http.MethodGet, "/chat/summary/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/chat/clear/conv-1", ""); rec.Code != http.StatusOK || f.chat.cleared != "conv-1" {
		t.Fatalf("clear failed: %d %q", rec.Code, f.chat.cleared)
	}
}

func TestOnboardingRoute(t *testing.T) {
	rec := newFixture().do(t, http.MethodPost, "/onboarding", `{"user_id":"u1","message":"primeiro acesso","first_access":true}`)
	reply := decode[onboarding.Reply](t, rec)
	if rec.Code != http.StatusOK || reply.Status != onboarding.StatusStarted || !reply.RequiresUserInput || reply.UserID != "u1" {
		t.Fatalf("unexpected reply: %d %+v", rec.Code, reply)
	}
}

func TestTelemetryRoutes(t *testing.T) {
	f := newFixture()
	started := decode[map[string]any](t, f.do(t, http.MethodPost, "/telemetry/start", ""))
	if started["changed"] != true || !f.tele.running {
		t.Fatalf("start failed: %v", started)
	}
	again := decode[map[string]any](t, f.do(t, http.MethodPost, "/telemetry/start", ""))
	if again["changed"] != false {
		t.Fatalf("second start should be a no-op: %v", again)
	}
	report := decode[telemetry.Report](t, f.do(t, http.MethodGet, "/telemetry/metrics", ""))
	if report.PerformanceScore != 87.5 {
		t.Fatalf("unexpected report: %+v", report)
	}
	stopped := decode[map[string]any](t, f.do(t, http.MethodPost, "/telemetry/stop", ""))
	if stopped["changed"] != true || f.tele.running {
		t.Fatalf("stop failed: %v", stopped)
	}
}

func TestEvidenceListing(t *testing.T) {
	f := newFixture()
	got := decode[struct {
		Archives []evidence.ArchiveRecord `json:"archives"`
	}](t, f.do(t, http.MethodGet, "/evidence?limit=2", ""))
	if len(got.Archives) != 2 || got.Archives[0].JobID != "j1" || !got.Archives[0].Generated {
		t.Fatalf("unexpected archives: %+v", got.Archives)
	}
	if rec := f.do(t, http.MethodGet, "/evidence?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMissingDependencyIsUnavailable(t *testing.T) {
	h := NewServer(":0", Deps{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"oi"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decode[errorBody](t, rec); body.Error.Code != xerrors.CodeConfiguration {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestAuthRequiredWhenTokensConfigured(t *testing.T) {
	f := newFixture("s3cr3t")
	rec := f.do(t, http.MethodPost, "/run", `{"query":"x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decode[errorBody](t, rec); body.Error.Code != xerrors.CodeUnauthorized {
		t.Fatalf("unexpected error body: %+v", body)
	}
	if rec := f.do(t, http.MethodPost, "/run", `{"query":"x"}`, "Authorization", "Bearer s3cr3t"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestMetricsExposeRequests(t *testing.T) {
	f := newFixture("s3cr3t")
	f.do(t, http.MethodGet, "/health", "")
	rec := f.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `agentic_http_requests_total{code="200",handler="GET /health",method="GET"} 1`) {
		t.Fatalf("request counter missing:\n%s", rec.Body.String())
	}
}

func TestStatusMapping(t *testing.T) {
	cases := map[xerrors.Code]int{
		xerrors.CodeInvalidArgument:     http.StatusBadRequest,
		xerrors.CodeNotFound:            http.StatusNotFound,
		xerrors.CodeModelUnavailable:    http.StatusServiceUnavailable,
		xerrors.CodeCollaboratorFailure: http.StatusBadGateway,
		xerrors.CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := statusOf(code); got != want {
			t.Errorf("statusOf(%s) = %d, want %d", code, got, want)
		}
	}
}
