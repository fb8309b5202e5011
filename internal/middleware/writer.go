package middleware

import (
	"net/http"
	"sync"
)

// beforeWriter runs a hook once, right before the response headers are sent.
// Middleware use it to add cookies and headers that depend on what the
// handler did.
type beforeWriter struct {
	http.ResponseWriter
	once   sync.Once
	before func()
}

func newBeforeWriter(w http.ResponseWriter, before func()) *beforeWriter {
	return &beforeWriter{ResponseWriter: w, before: before}
}

func (w *beforeWriter) fire() {
	w.once.Do(w.before)
}

func (w *beforeWriter) WriteHeader(status int) {
	w.fire()
	w.ResponseWriter.WriteHeader(status)
}

func (w *beforeWriter) Write(b []byte) (int, error) {
	w.fire()
	return w.ResponseWriter.Write(b)
}

func (w *beforeWriter) Flush() {
	w.fire()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *beforeWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// responseRecorder keeps the status and size of a response for logs and metrics.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
