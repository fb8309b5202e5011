package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/metrics"
	"github.com/planetterp/planetterp/internal/respond"
)

const adminMailTimeout = 10 * time.Second

// AdminNotifier delivers error reports to the site administrators.
type AdminNotifier interface {
	MailAdmins(ctx context.Context, subject, body string) error
}

// Recovery turns handler panics into 500 responses. Outside debug mode the
// stack trace is mailed to the admins.
func Recovery(logger *zap.Logger, notifier AdminNotifier, debugMode bool, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				stack := debug.Stack()
				requestID := RequestIDFromContext(r.Context())
				m.RecordPanic()
				logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestID),
					zap.ByteString("stack", stack),
				)
				respond.InternalError(w, fmt.Errorf("%v", rec), debugMode)

				if debugMode || notifier == nil {
					return
				}
				ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), adminMailTimeout)
				defer cancel()
				subject := fmt.Sprintf("ERROR (request %s): %s %s", requestID, r.Method, r.URL.Path)
				body := fmt.Sprintf("%v\n\n%s", rec, stack)
				if err := notifier.MailAdmins(ctx, subject, body); err != nil {
					logger.Warn("mailing admins failed", zap.Error(err))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
