package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// ErrRateLimited is returned when a caller exceeds a route's rate.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate allows Requests per Window. A zero Rate disables limiting.
type Rate struct {
	Requests int
	Window   time.Duration
}

// RateLimits holds one rate per route. Each route counts separately.
type RateLimits struct {
	Chat    Rate
	Flow    Rate
	Threads Rate
	History Rate
	Delete  Rate
}

func (s *Server) limit(rate Rate) func(http.Handler) http.Handler {
	if rate.Requests <= 0 || rate.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(rate.Requests, rate.Window,
		httprate.WithKeyFuncs(rateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.writeError(w, r, ErrRateLimited)
		}),
	)
}

// rateKey counts per authenticated user, falling back to the client address.
func rateKey(r *http.Request) (string, error) {
	if rc := runContext(r); rc.UserID != "" {
		return "user:" + rc.UserID, nil
	}
	return httprate.KeyByIP(r)
}
