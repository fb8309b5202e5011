package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/sessions"
)

// Message levels.
const (
	LevelDebug   = 10
	LevelInfo    = 20
	LevelSuccess = 25
	LevelWarning = 30
	LevelError   = 40
)

const messagesSessionKey = "_messages"

var levelTags = map[int]string{
	LevelDebug:   "debug",
	LevelInfo:    "info",
	LevelSuccess: "success",
	LevelWarning: "warning",
	LevelError:   "error",
}

// Message is one flash message shown on the next rendered page.
type Message struct {
	Level     int    `json:"level"`
	Text      string `json:"message"`
	ExtraTags string `json:"extra_tags,omitempty"`
}

// Tags joins the level tag with ExtraTags for CSS classes.
func (m Message) Tags() string {
	tag := levelTags[m.Level]
	switch {
	case m.ExtraTags == "":
		return tag
	case tag == "":
		return m.ExtraTags
	}
	return m.ExtraTags + " " + tag
}

func (m Message) String() string { return m.Text }

type messageStore struct {
	mu      sync.Mutex
	queued  []Message
	added   bool
	used    bool
	session *sessions.Session
	logger  *zap.Logger
}

type messagesContextKey struct{}

// AddMessage queues text for the next page. It reports false when the
// messages middleware is not installed.
func AddMessage(ctx context.Context, level int, text string) bool {
	store, ok := ctx.Value(messagesContextKey{}).(*messageStore)
	if !ok {
		return false
	}
	store.mu.Lock()
	store.queued = append(store.queued, Message{Level: level, Text: text})
	store.added = true
	store.mu.Unlock()
	return true
}

// ConsumeMessages returns the pending messages and marks them as shown.
func ConsumeMessages(ctx context.Context) []Message {
	store, ok := ctx.Value(messagesContextKey{}).(*messageStore)
	if !ok {
		return nil
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	out := store.queued
	store.queued = nil
	store.used = true
	return out
}

func (s *messageStore) load() {
	raw, ok := s.session.Get(messagesSessionKey)
	if !ok {
		return
	}
	// Values round trip through JSON so the memory and database stores decode alike.
	payload, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(payload, &s.queued)
	}
	if err != nil {
		s.logger.Warn("discarding malformed session messages", zap.Error(err))
		s.queued = nil
		s.session.Delete(messagesSessionKey)
	}
}

func (s *messageStore) persist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.added && !s.used {
		return
	}
	if len(s.queued) == 0 {
		s.session.Delete(messagesSessionKey)
		return
	}
	s.session.Set(messagesSessionKey, s.queued)
}

func newMessages(d Deps) (Middleware, error) {
	logger := d.Logger
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessions.FromContext(r.Context())
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}
			store := &messageStore{session: sess, logger: logger}
			store.load()

			bw := newBeforeWriter(w, store.persist)
			ctx := context.WithValue(r.Context(), messagesContextKey{}, store)
			next.ServeHTTP(bw, r.WithContext(ctx))
			bw.fire()
		})
	}, nil
}
