package templates

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/planetterp/planetterp/internal/auth"
	"github.com/planetterp/planetterp/internal/middleware"
)

// Context processor names accepted in TemplateOptions.ContextProcessors.
const (
	ProcessorDebug    = "debug"
	ProcessorRequest  = "request"
	ProcessorAuth     = "auth"
	ProcessorMessages = "messages"
)

// ErrUnknownProcessor is returned for context processors that are not built in.
var ErrUnknownProcessor = errors.New("unknown context processor")

type processorFunc func(e *Engine, r *http.Request, ctx map[string]any)

type processor struct {
	name string
	fn   processorFunc
}

var processors = map[string]processorFunc{
	ProcessorDebug:    debugProcessor,
	ProcessorRequest:  requestProcessor,
	ProcessorAuth:     authProcessor,
	ProcessorMessages: messagesProcessor,
}

// Processors lists the supported context processor names.
func Processors() []string {
	return []string{ProcessorAuth, ProcessorDebug, ProcessorMessages, ProcessorRequest}
}

func resolveProcessors(names []string) ([]processor, error) {
	out := make([]processor, 0, len(names))
	for _, name := range names {
		fn, ok := processors[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
		}
		out = append(out, processor{name: name, fn: fn})
	}
	return out, nil
}

func debugProcessor(e *Engine, _ *http.Request, ctx map[string]any) {
	ctx["debug"] = e.debug
}

func requestProcessor(_ *Engine, r *http.Request, ctx map[string]any) {
	ctx["request"] = r
}

func authProcessor(_ *Engine, r *http.Request, ctx map[string]any) {
	user := auth.UserFromContext(r.Context())
	ctx["user"] = user
	ctx["is_authenticated"] = user != nil
}

func messagesProcessor(_ *Engine, r *http.Request, ctx map[string]any) {
	ctx["messages"] = middleware.ConsumeMessages(r.Context())
	ctx["DEFAULT_MESSAGE_LEVELS"] = map[string]int{
		"DEBUG":   middleware.LevelDebug,
		"INFO":    middleware.LevelInfo,
		"SUCCESS": middleware.LevelSuccess,
		"WARNING": middleware.LevelWarning,
		"ERROR":   middleware.LevelError,
	}
}

// csrfProcessor always runs so forms can embed the token.
func csrfProcessor(r *http.Request, ctx map[string]any) {
	token := middleware.CSRFToken(r.Context())
	ctx["csrf_token"] = token
	if token == "" {
		ctx["csrf_input"] = template.HTML("")
		return
	}
	ctx["csrf_input"] = template.HTML(`<input type="hidden" name="` + middleware.CSRFFormField +
		`" value="` + template.HTMLEscapeString(token) + `">`)
}
