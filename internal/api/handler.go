package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/passwords"
	"github.com/planetterp/planetterp/internal/respond"
)

const maxBodyBytes = 1 << 20

// Handler serves the JSON API.
type Handler struct {
	renderers  []Renderer
	parsers    []Parser
	validators passwords.Validators
	site       siteResponse
	debug      bool

	clock  func() time.Time
	ping   func(ctx context.Context) error
	logger *zap.Logger
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithHealthCheck reports dependency health, typically a database ping.
func WithHealthCheck(ping func(ctx context.Context) error) HandlerOption {
	return func(h *Handler) {
		h.ping = ping
	}
}

// WithValidators enables the password validation endpoint.
func WithValidators(v passwords.Validators) HandlerOption {
	return func(h *Handler) {
		h.validators = v
	}
}

// WithLogger sets the logger used for internal errors.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler builds the API for s.
func NewHandler(s config.Settings, opts ...HandlerOption) (*Handler, error) {
	rs, err := resolveRenderers(s.REST.RendererClasses)
	if err != nil {
		return nil, err
	}
	ps, err := resolveParsers(s.REST.ParserClasses)
	if err != nil {
		return nil, err
	}

	h := &Handler{
		renderers: rs,
		parsers:   ps,
		debug:     s.Debug,
		site: siteResponse{
			ID:           s.SiteID,
			Domain:       s.SiteDomain,
			Name:         s.SiteName,
			LanguageCode: s.I18N.LanguageCode,
			TimeZone:     s.I18N.TimeZone,
			DateFormat:   s.I18N.DateFormat,
		},
		clock: func() time.Time {
			return time.Now().UTC()
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes registers the API endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/site", h.handleSite)
		r.Post("/password/validate", h.handleValidatePassword)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Database:  "ok",
		Timestamp: h.clock(),
	}
	status := http.StatusOK
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}
	} else {
		resp.Database = ""
	}
	h.render(w, r, status, resp)
}

func (h *Handler) handleSite(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, h.site)
}

func (h *Handler) handleValidatePassword(w http.ResponseWriter, r *http.Request) {
	if h.validators == nil {
		h.renderError(w, r, http.StatusNotFound, "Not found", "password validation is disabled")
		return
	}

	var req validatePasswordRequest
	if !h.parse(w, r, &req) {
		return
	}
	if req.Password == "" {
		h.renderError(w, r, http.StatusBadRequest, "Invalid request", "password is required")
		return
	}

	resp := validatePasswordResponse{
		Valid:     true,
		Errors:    []string{},
		HelpTexts: h.validators.HelpTexts(),
	}
	user := passwords.UserAttributes{
		"username":   req.Username,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"email":      req.Email,
	}
	if err := h.validators.Validate(req.Password, user); err != nil {
		var verr *passwords.ValidationError
		if !errors.As(err, &verr) {
			h.renderError(w, r, http.StatusInternalServerError, "Internal error", "password validation failed")
			return
		}
		resp.Valid = false
		resp.Errors = verr.Messages
	}
	h.render(w, r, http.StatusOK, resp)
}

// parse decodes the body with the parser matching Content-Type, writing the
// error response itself when it fails.
func (h *Handler) parse(w http.ResponseWriter, r *http.Request, dst any) bool {
	p, err := selectParser(r.Header.Get("Content-Type"), h.parsers)
	if err != nil {
		h.renderError(w, r, http.StatusUnsupportedMediaType, "Unsupported media type",
			"content type "+r.Header.Get("Content-Type")+" is not accepted")
		return false
	}
	if err := p.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes), dst); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid request", "unable to parse request body")
		return false
	}
	return true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, payload any) {
	renderer, err := selectRenderer(r.Header.Get("Accept"), h.renderers)
	if err != nil {
		respond.Error(w, http.StatusNotAcceptable, "Not acceptable",
			"could not satisfy the request Accept header")
		return
	}
	w.Header().Set("Content-Type", renderer.MediaType())
	w.Header().Add("Vary", "Accept")
	w.WriteHeader(status)
	if err := renderer.Render(w, payload); err != nil {
		h.logger.Warn("render response failed", zap.Error(err))
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message, details string) {
	h.render(w, r, status, respond.ErrorBody{Error: message, Details: details})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type siteResponse struct {
	ID           int    `json:"id"`
	Domain       string `json:"domain"`
	Name         string `json:"name"`
	LanguageCode string `json:"languageCode"`
	TimeZone     string `json:"timeZone"`
	DateFormat   string `json:"dateFormat"`
}

type validatePasswordRequest struct {
	Password  string `json:"password"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type validatePasswordResponse struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors"`
	HelpTexts []string `json:"helpTexts"`
}
