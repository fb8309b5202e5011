package sessions

import (
	"context"
	"sync"
)

// Session is the per-request view of one stored session.
type Session struct {
	mu       sync.Mutex
	key      string
	data     Data
	modified bool
	flushed  bool
}

// New wraps data loaded for key. An empty key marks a session not stored yet.
func New(key string, data Data) *Session {
	if data == nil {
		data = Data{}
	}
	return &Session{key: key, data: data}
}

// Key returns the session key, empty until the session is first saved.
func (s *Session) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Get returns the value stored under k.
func (s *Session) Get(k string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[k]
	return v, ok
}

// GetString returns the string stored under k.
func (s *Session) GetString(k string) string {
	v, _ := s.Get(k)
	str, _ := v.(string)
	return str
}

// Set stores v under k.
func (s *Session) Set(k string, v any) {
	s.mu.Lock()
	s.data[k] = v
	s.modified = true
	s.mu.Unlock()
}

// Delete removes k.
func (s *Session) Delete(k string) {
	s.mu.Lock()
	if _, ok := s.data[k]; ok {
		delete(s.data, k)
		s.modified = true
	}
	s.mu.Unlock()
}

// Flush drops every value and forgets the key, so the stored session is deleted.
func (s *Session) Flush() {
	s.mu.Lock()
	s.data = Data{}
	s.flushed = true
	s.modified = true
	s.mu.Unlock()
}

// CycleKey keeps the data but moves it to a new key on the next commit.
func (s *Session) CycleKey() {
	s.mu.Lock()
	s.flushed = true
	s.modified = true
	s.mu.Unlock()
}

// Modified reports whether the session must be written back.
func (s *Session) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modified
}

// Empty reports whether the session holds no values.
func (s *Session) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data) == 0
}

// snapshot returns a copy of the data, the key and the flushed flag.
func (s *Session) snapshot() (string, Data, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, cloneData(s.data), s.flushed
}

func (s *Session) assignKey(key string) {
	s.mu.Lock()
	s.key = key
	s.flushed = false
	s.modified = false
	s.mu.Unlock()
}

type contextKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request session, or nil when the sessions middleware is not installed.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
