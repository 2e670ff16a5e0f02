package httptransport

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// throttle is an http.RoundTripper using a token-bucket limiter to pace
// outbound requests against shared chart servers.
type throttle struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func newThrottle(rps, burst int, next http.RoundTripper) http.RoundTripper {
	return &throttle{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		next:    next,
	}
}

func (t *throttle) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(r.Context()); err != nil {
		return nil, fmt.Errorf("throttle wait: %w", err)
	}
	return t.next.RoundTrip(r)
}
