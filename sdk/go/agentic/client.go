// Package agentic is a thin REST client for the agentic browser API.
package agentic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Synchronous runs drive a browser, so it is generous.
const DefaultHTTPTimeout = 2 * time.Minute

// Client wraps the HTTP interactions with the agentic browser REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// FormField is a single field of a form filling request.
type FormField struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

// FormSpec describes the page and fields a form filling run operates on.
type FormSpec struct {
	URL    string      `json:"url"`
	Fields []FormField `json:"fields,omitempty"`
}

// AutomationStep is one step of an automation run. Kind is open, click or
// fill; other kinds are skipped by the server.
type AutomationStep struct {
	Kind     string `json:"kind"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
}

// AutomationSpec is the ordered list of steps of an automation run.
type AutomationSpec struct {
	Steps []AutomationStep `json:"steps"`
}

// RunInput is the payload accepted by /run and /jobs.
type RunInput struct {
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

// RunResult is the synchronous run response. State keeps the full pipeline
// state as returned by the server.
type RunResult struct {
	JobID string   `json:"job_id"`
	State RunState `json:"state"`
}

// RunState is the subset of the pipeline state most callers need.
type RunState struct {
	JobID               string   `json:"job_id"`
	SelectedAgent       string   `json:"selected_agent"`
	Warnings            []string `json:"warnings"`
	SecurityCheckPassed bool     `json:"security_check_passed"`
	Blocked             bool     `json:"blocked"`
	Response            string   `json:"response"`
	ExecutiveSummary    string   `json:"executive_summary"`
	Evidence            Evidence `json:"evidence"`
	Error               string   `json:"error"`

	Raw json.RawMessage `json:"-"`
}

// Evidence reports where the evidence archive of a run was written.
type Evidence struct {
	Path      string `json:"evidence_path"`
	Generated bool   `json:"evidence_generated"`
	Error     string `json:"evidence_error"`
}

// JobSummary is returned when a job is accepted.
type JobSummary struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Job contains an extended view of an asynchronous run.
type Job struct {
	ID            string   `json:"id"`
	Input         RunInput `json:"input"`
	Status        string   `json:"status"`
	Attempts      int      `json:"attempts"`
	MaxRetries    int      `json:"max_retries"`
	Capability    string   `json:"capability"`
	WarningsCount int      `json:"warnings_count"`
	EvidencePath  string   `json:"evidence_path,omitempty"`
	Response      string   `json:"response,omitempty"`
	LastError     string   `json:"last_error,omitempty"`
	ErrorCode     string   `json:"error_code,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
}

// ChatRequest is a chatbot turn.
type ChatRequest struct {
	Message         string `json:"message"`
	ConversationID  string `json:"conversation_id,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	EnableWebSearch *bool  `json:"enable_web_search,omitempty"`
	FirstAccess     bool   `json:"first_access,omitempty"`
}

// ChatReply is the chatbot answer.
type ChatReply struct {
	Response              string    `json:"response"`
	ConversationID        string    `json:"conversation_id"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	RAGContextUsed        bool      `json:"rag_context_used"`
	WebSearchPerformed    bool      `json:"web_search_performed"`
	Timestamp             time.Time `json:"timestamp"`
}

// ConversationSummary describes a stored conversation.
type ConversationSummary struct {
	ConversationID    string   `json:"conversation_id"`
	TotalMessages     int      `json:"total_messages"`
	ConversationPairs int      `json:"conversation_pairs"`
	TopicsDiscussed   []string `json:"topics_discussed"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentic api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentic api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the agentic browser API. When
// httpClient is nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetToken configures the bearer token sent with every request. An empty
// token disables the Authorization header.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Health reports whether the server answers its health probe.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", out.Status)
	}
	return nil
}

// Run executes the pipeline synchronously.
func (c *Client) Run(ctx context.Context, in RunInput) (RunResult, error) {
	var raw struct {
		JobID string          `json:"job_id"`
		State json.RawMessage `json:"state"`
	}
	if err := c.post(ctx, "/run", in, &raw); err != nil {
		return RunResult{}, err
	}
	result := RunResult{JobID: raw.JobID}
	if len(raw.State) > 0 {
		if err := json.Unmarshal(raw.State, &result.State); err != nil {
			return RunResult{}, fmt.Errorf("decode state: %w", err)
		}
		result.State.Raw = raw.State
	}
	return result, nil
}

// SubmitJob enqueues an asynchronous run.
func (c *Client) SubmitJob(ctx context.Context, in RunInput) (JobSummary, error) {
	var summary JobSummary
	if err := c.post(ctx, "/jobs", in, &summary); err != nil {
		return JobSummary{}, err
	}
	return summary, nil
}

// GetJob fetches job details by identifier.
func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	var j Job
	if err := c.get(ctx, "/jobs", url.Values{"id": {jobID}}, &j); err != nil {
		return Job{}, err
	}
	return j, nil
}

// Chat sends a chatbot turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	var reply ChatReply
	if err := c.post(ctx, "/chat", req, &reply); err != nil {
		return ChatReply{}, err
	}
	return reply, nil
}

// ConversationSummary returns the summary of a stored conversation.
func (c *Client) ConversationSummary(ctx context.Context, conversationID string) (ConversationSummary, error) {
	var summary ConversationSummary
	if err := c.get(ctx, "/chat/summary/"+url.PathEscape(conversationID), nil, &summary); err != nil {
		return ConversationSummary{}, err
	}
	return summary, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
