package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/applegrimm/reservesync/internal/audit"
)

func BasicAuth(user, pass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				w.Header().Set("WWW-Authenticate", `Basic realm="reservations"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestAudit logs mutating requests into the audit pool. Reads are
// left out, they carry no handover significance.
func RequestAudit(pool *audit.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if pool != nil && r.Method != http.MethodGet {
				log.Printf("[%s] %s", r.Method, r.URL.Path)
				pool.Log(audit.Event{
					Timestamp: time.Now().UTC(),
					Action:    "http_request",
					Detail:    r.Method + " " + r.URL.Path,
				})
			}
			next.ServeHTTP(w, r)
		})
	}
}
