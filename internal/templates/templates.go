// Package templates renders html/template pages found in the configured
// directories and in the template folders of installed apps.
package templates

import (
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ncruces/go-strftime"
	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/apps"
	"github.com/planetterp/planetterp/internal/config"
)

// BackendHTML is the only supported template backend.
const BackendHTML = "html"

var (
	// ErrUnknownBackend is returned for template backends other than html.
	ErrUnknownBackend = errors.New("unknown template backend")
	// ErrNotFound is returned when no search directory holds a template.
	ErrNotFound = errors.New("template not found")
)

// Engine finds, parses and renders templates.
type Engine struct {
	dirs       []string
	layouts    []string
	processors []processor
	funcs      template.FuncMap
	cache      bool
	debug      bool
	logger     *zap.Logger

	mu     sync.RWMutex
	parsed map[string]*template.Template
}

// New builds the engine for backend. Relative directories resolve against
// the settings base directory.
func New(backend config.TemplateBackend, s config.Settings, installed []apps.App, logger *zap.Logger) (*Engine, error) {
	if backend.Backend != BackendHTML {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend.Backend)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	procs, err := resolveProcessors(backend.Options.ContextProcessors)
	if err != nil {
		return nil, err
	}

	dirs := make([]string, 0, len(backend.Dirs)+len(installed))
	for _, dir := range backend.Dirs {
		dirs = append(dirs, s.Path(dir))
	}
	if backend.AppDirs {
		for _, dir := range apps.Dirs(installed, "templates") {
			dirs = append(dirs, s.Path(dir))
		}
	}

	return &Engine{
		dirs:       dirs,
		layouts:    append([]string(nil), backend.Options.Layouts...),
		processors: procs,
		funcs:      Funcs(s),
		cache:      !s.Debug,
		debug:      s.Debug,
		logger:     logger,
		parsed:     make(map[string]*template.Template),
	}, nil
}

// Dirs returns the search path in order.
func (e *Engine) Dirs() []string {
	return append([]string(nil), e.dirs...)
}

// Funcs returns the template functions bound to s.
func Funcs(s config.Settings) template.FuncMap {
	loc := s.Location()
	staticURL := s.Static.URL
	dateFormat := s.I18N.DateFormat
	return template.FuncMap{
		"static": func(name string) string {
			return StaticURL(staticURL, name)
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return strftime.Format(dateFormat, t.In(loc))
		},
		"strftime": func(format string, t time.Time) string {
			return strftime.Format(format, t.In(loc))
		},
		"crispy_pack": func() string {
			return s.UI.CrispyTemplatePack
		},
		"tables_template": func() string {
			return s.UI.TablesTemplate
		},
	}
}

// StaticURL joins the static prefix and name, keeping absolute prefixes as is.
func StaticURL(prefix, name string) string {
	name = strings.TrimPrefix(name, "/")
	if strings.Contains(prefix, "://") || strings.HasPrefix(prefix, "/") {
		return prefix + name
	}
	return "/" + prefix + name
}

// Find returns the first file called name in the search path.
func (e *Engine) Find(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for _, dir := range e.dirs {
		path := filepath.Join(dir, clean)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat template %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Lookup parses name together with the configured layouts. Parsed templates
// are cached unless the engine runs in debug mode.
func (e *Engine) Lookup(name string) (*template.Template, error) {
	if e.cache {
		e.mu.RLock()
		t, ok := e.parsed[name]
		e.mu.RUnlock()
		if ok {
			return t, nil
		}
	}

	t, err := e.parse(name)
	if err != nil {
		return nil, err
	}
	if e.cache {
		e.mu.Lock()
		e.parsed[name] = t
		e.mu.Unlock()
	}
	return t, nil
}

func (e *Engine) parse(name string) (*template.Template, error) {
	root := template.New(name).Funcs(e.funcs)
	if err := e.parseInto(root, name); err != nil {
		return nil, err
	}
	for _, layout := range e.layouts {
		if layout == name {
			continue
		}
		if err := e.parseInto(root.New(layout), layout); err != nil {
			return nil, err
		}
	}
	e.logger.Debug("template parsed", zap.String("name", name), zap.Bool("cached", e.cache))
	return root, nil
}

func (e *Engine) parseInto(t *template.Template, name string) error {
	path, err := e.Find(name)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template %s: %w", path, err)
	}
	if _, err := t.Parse(string(src)); err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}
	return nil
}

// Context runs the context processors for r and merges data over their output.
func (e *Engine) Context(r *http.Request, data map[string]any) map[string]any {
	ctx := make(map[string]any, len(data)+8)
	csrfProcessor(r, ctx)
	for _, p := range e.processors {
		p.fn(e, r, ctx)
	}
	for k, v := range data {
		ctx[k] = v
	}
	return ctx
}

// Render executes name with the request context and writes it with status.
func (e *Engine) Render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) error {
	t, err := e.Lookup(name)
	if err != nil {
		return err
	}

	var buf strings.Builder
	if err := t.Execute(&buf, e.Context(r, data)); err != nil {
		return fmt.Errorf("execute template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write([]byte(buf.String()))
	return err
}

// Page returns a handler rendering name with a 200 status. Missing templates
// become 404 responses and other failures 500.
func (e *Engine) Page(name string, data map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := e.Render(w, r, http.StatusOK, name, data)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			http.NotFound(w, r)
		default:
			e.logger.Error("render failed", zap.String("template", name), zap.Error(err))
			http.Error(w, "Server Error (500)", http.StatusInternalServerError)
		}
	})
}
