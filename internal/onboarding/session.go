package onboarding

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"agentic-browser/internal/profile"
	redisstore "agentic-browser/internal/storage/redis"
)

// Step 是引导状态机的状态。
type Step string

const (
	StepGreeting      Step = "greeting"
	StepAskName       Step = "ask_name"
	StepAskProfession Step = "ask_profession"
	StepAskPreference Step = "ask_preferences"
	StepAskGoals      Step = "ask_goals"
	StepProfileChoice Step = "profile_choice"
	StepComplete      Step = "complete"
)

// Session 是单个用户的引导进度。
type Session struct {
	UserID       string            `json:"user_id"`
	Step         Step              `json:"step"`
	Collected    map[string]string `json:"collected"`
	Context      string            `json:"context"`
	LastQuestion string            `json:"last_question,omitempty"`
	Field        string            `json:"field,omitempty"`
	History      []profile.Turn    `json:"history,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func newSession(userID string) *Session {
	return &Session{UserID: userID, Step: StepGreeting, Collected: map[string]string{}}
}

func (s *Session) say(role, content string) {
	s.History = append(s.History, profile.Turn{Role: role, Content: content})
}

// SessionStore 按用户保存引导会话。
type SessionStore interface {
	Load(ctx context.Context, userID string) (*Session, bool, error)
	Save(ctx context.Context, s *Session) error
}

// MemorySessionStore 在进程内保存会话。
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessionStore 创建内存会话存储。
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

// Load 实现 SessionStore。
func (m *MemorySessionStore) Load(_ context.Context, userID string) (*Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, false, nil
	}
	clone := s
	clone.Collected = make(map[string]string, len(s.Collected))
	for k, v := range s.Collected {
		clone.Collected[k] = v
	}
	clone.History = append([]profile.Turn(nil), s.History...)
	return &clone, true, nil
}

// Save 实现 SessionStore。
func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	clone.Collected = make(map[string]string, len(s.Collected))
	for k, v := range s.Collected {
		clone.Collected[k] = v
	}
	clone.History = append([]profile.Turn(nil), s.History...)
	m.sessions[s.UserID] = clone
	return nil
}

// RedisSessionStore 以 JSON 保存会话并设置过期时间。
type RedisSessionStore struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore 创建 Redis 会话存储。
func NewRedisSessionStore(client goredis.Cmdable, prefix string, ttl time.Duration) *RedisSessionStore {
	if prefix == "" {
		prefix = "agentic:onboarding:"
	}
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}
}

// Load 实现 SessionStore。
func (r *RedisSessionStore) Load(ctx context.Context, userID string) (*Session, bool, error) {
	var s Session
	ok, err := redisstore.GetJSON(ctx, r.client, r.prefix+userID, &s)
	if err != nil || !ok {
		return nil, false, err
	}
	if s.Collected == nil {
		s.Collected = map[string]string{}
	}
	return &s, true, nil
}

// Save 实现 SessionStore。
func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	return redisstore.SetJSON(ctx, r.client, r.prefix+s.UserID, s, r.ttl)
}

func (s *Session) fieldOr(fallback string) string {
	if s.Field != "" {
		return s.Field
	}
	return fallback
}
