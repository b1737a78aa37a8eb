package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// UserHeader carries the caller identity for HeaderAuthenticator.
const UserHeader = "X-User-ID"

// ErrUnauthenticated is returned by an Authenticator that cannot identify the caller.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the run context of a request. Verifying tokens
// against an identity provider is left to implementations.
type Authenticator func(r *http.Request) (domain.RunContext, error)

// HeaderAuthenticator trusts the X-User-ID header. Use it behind a gateway
// that has already authenticated the caller.
func HeaderAuthenticator(r *http.Request) (domain.RunContext, error) {
	user := strings.TrimSpace(r.Header.Get(UserHeader))
	if user == "" {
		return domain.RunContext{}, ErrUnauthenticated
	}
	return domain.RunContext{UserID: user}, nil
}

// Anonymous accepts every request, using the header when present.
func Anonymous(r *http.Request) (domain.RunContext, error) {
	return domain.RunContext{UserID: strings.TrimSpace(r.Header.Get(UserHeader))}, nil
}
