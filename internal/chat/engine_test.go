package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-browser/internal/llm"
	"agentic-browser/internal/policy"
	"agentic-browser/internal/retrieval"
	"agentic-browser/internal/telemetry"
	"agentic-browser/internal/webfetch"
)

type scriptedLLM struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (s *scriptedLLM) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, req.Prompt)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.reply}, nil
}

type fixedRetriever struct{ results []retrieval.Result }

func (f fixedRetriever) Query(context.Context, string, int) ([]retrieval.Result, error) {
	return f.results, nil
}

type fakeSearch struct{ calls int }

func (f *fakeSearch) Search(context.Context, string, int) ([]webfetch.SearchResult, error) {
	f.calls++
	return []webfetch.SearchResult{{Title: "Dólar hoje", URL: "https://example.com", Snippet: "cotação"}}, nil
}

type staticTelemetry struct{}

func (staticTelemetry) Report() telemetry.Report { return telemetry.Report{PerformanceScore: 80} }

func TestChatKeepsBoundedHistory(t *testing.T) {
	model := &scriptedLLM{reply: "resposta"}
	engine := NewEngine(Config{LLM: model, MaxPairs: 2})
	ctx := context.Background()

	var id string
	for i, msg := range []string{"pergunta um", "pergunta dois", "pergunta três"} {
		reply := engine.Chat(ctx, Request{Message: msg, ConversationID: id})
		require.Empty(t, reply.Error)
		id = reply.ConversationID
		assert.Equal(t, min((i+1)*2, 4), reply.ConversationLength)
	}

	summary, err := engine.Summary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalMessages)
	assert.Equal(t, 2, summary.ConversationPairs)

	history, err := engine.cfg.Store.History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "pergunta dois", history[0].Content)

	require.NoError(t, engine.Clear(ctx, id))
	summary, err = engine.Summary(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalMessages)
	assert.Nil(t, summary.LastInteraction)
}

func TestChatFirstAccessShortCircuits(t *testing.T) {
	model := &scriptedLLM{reply: "não deveria ser usado"}
	engine := NewEngine(Config{LLM: model, Telemetry: staticTelemetry{}})

	reply := engine.Chat(context.Background(), Request{Message: "É minha primeira vez que uso o sistema"})
	assert.True(t, reply.FirstAccessDetected)
	assert.Equal(t, firstAccessGreeting, reply.Response)
	assert.Empty(t, model.prompts)
	require.NotNil(t, reply.Telemetry)
	assert.Equal(t, 80.0, reply.Telemetry.PerformanceScore)
}

func TestChatUsesRetrievedContextAndHonoursPolicyForSearch(t *testing.T) {
	model := &scriptedLLM{reply: "ok"}
	search := &fakeSearch{}
	retriever := fixedRetriever{results: []retrieval.Result{
		{Text: "Documento relevante sobre câmbio", Score: 0.9},
		{Text: "Documento irrelevante", Score: 0.1},
	}}

	blocked := NewEngine(Config{LLM: model, Retriever: retriever, Web: search, Gate: policy.NewGate([]string{"itau.com.br"}, nil)})
	reply := blocked.Chat(context.Background(), Request{Message: "qual a taxa do dólar hoje?"})
	assert.True(t, reply.RAGContextUsed)
	assert.False(t, reply.WebSearchPerformed)
	assert.Zero(t, search.calls)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Documento relevante sobre câmbio")
	assert.NotContains(t, model.prompts[0], "Documento irrelevante")

	allowed := NewEngine(Config{LLM: model, Retriever: retriever, Web: search, Gate: policy.NewGate([]string{"google.com"}, nil)})
	reply = allowed.Chat(context.Background(), Request{Message: "qual a taxa do dólar hoje?"})
	assert.True(t, reply.WebSearchPerformed)
	assert.Equal(t, 1, search.calls)
	assert.Contains(t, model.prompts[1], "INFORMAÇÕES DA WEB")

	disabled := false
	reply = allowed.Chat(context.Background(), Request{Message: "qual a taxa do dólar hoje?", EnableWebSearch: &disabled})
	assert.False(t, reply.WebSearchPerformed)
	assert.Equal(t, 1, search.calls)
}

func TestChatGenerationFailureReturnsFallback(t *testing.T) {
	model := &scriptedLLM{err: errors.New("backend offline")}
	engine := NewEngine(Config{LLM: model})

	reply := engine.Chat(context.Background(), Request{Message: "como está meu saldo?", ConversationID: "c1"})
	assert.Equal(t, failureResponse, reply.Response)
	assert.Contains(t, reply.Error, "backend offline")

	history, err := engine.cfg.Store.History(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestShouldSearchWeb(t *testing.T) {
	long := strings.Repeat("x", 120)
	cases := []struct {
		name    string
		message string
		context []string
		want    bool
	}{
		{"recency without context", "qual a notícia de hoje", nil, true},
		{"recency with substantial context", "qual a notícia de hoje", []string{long, "b", "c"}, false},
		{"in-scope product", "quero um cartão", nil, false},
		{"market question", "como está a bolsa", nil, true},
		{"plain question", "me explique o processo", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldSearchWeb(tc.message, tc.context))
		})
	}
}

func TestSummarizeTopics(t *testing.T) {
	s := Summarize("c", []Message{
		{Role: RoleUser, Content: "Qual o limite do meu cartão?"},
		{Role: RoleAssistant, Content: "Seu limite e seu seguro estão ativos."},
	})
	assert.Equal(t, []string{"Cartão de Crédito", "Seguros"}, s.TopicsDiscussed)
	require.NotNil(t, s.LastInteraction)
	assert.Equal(t, RoleAssistant, s.LastInteraction.Role)
}
