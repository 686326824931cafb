package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// guardedWriter blocks handler writes once the deadline response has been
// sent, so a slow booking handler finishing late cannot corrupt the reply.
type guardedWriter struct {
	http.ResponseWriter
	mu      sync.Mutex
	expired bool
	started bool
}

func (gw *guardedWriter) WriteHeader(status int) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.expired || gw.started {
		return
	}
	gw.started = true
	gw.ResponseWriter.WriteHeader(status)
}

func (gw *guardedWriter) Write(b []byte) (int, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.expired {
		return 0, http.ErrHandlerTimeout
	}
	gw.started = true
	return gw.ResponseWriter.Write(b)
}

// expire marks the writer dead and reports whether the handler had already
// begun writing. When it had not, the caller owns the error response.
func (gw *guardedWriter) expire() bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.expired = true
	return gw.started
}

// RequestTimeout caps how long a request may run. The handler's context is
// cancelled at the deadline and the client gets a 503 unless a response was
// already underway.
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w}
			done := make(chan struct{})

			go func() {
				next.ServeHTTP(gw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if started := gw.expire(); !started {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusServiceUnavailable)
					_, _ = w.Write([]byte(`{"error":"Request timeout"}`))
				}
			}
		})
	}
}
