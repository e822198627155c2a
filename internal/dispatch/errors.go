package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antigravity-proxy/gatewaycore/internal/upstream"
)

// Kind names the error categories the core surfaces to ProxyEndpoints.
type Kind string

const (
	KindNoIdentities Kind = "no_identities_available"
	KindAuthFailure  Kind = "auth_failure"
	KindUpstreamHTTP Kind = "upstream_http"
	KindAllExhausted Kind = "all_exhausted"
	KindBadRequest   Kind = "bad_request"
)

// Error is the typed error this module returns to its callers, so
// classification at the HTTP boundary is a type switch rather than string
// sniffing. The substring heuristic in classify (below) is reserved for
// errors originating outside this module.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// StatusCode returns the HTTP status this error should surface as.
func (e *Error) StatusCode() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	switch e.Kind {
	case KindNoIdentities:
		return 503
	case KindAllExhausted:
		return 429
	case KindBadRequest:
		return 400
	default:
		return 500
	}
}

// NewBadRequest wraps a translator/parse failure as a fatal, non-retried error.
func NewBadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// rotateStatuses are upstream HTTP statuses that trigger rotation to
// another identity rather than surfacing directly to the caller.
var rotateStatuses = map[int]bool{429: true, 403: true, 500: true, 502: true, 503: true, 504: true}

// networkKeywords are matched case-insensitively against transport error
// messages to classify them as rotate-eligible.
var networkKeywords = []string{"name resolution", "dns", "connect", "timeout", "connection"}

// outcome of classifying one attempt's error.
type outcome int

const (
	outcomeRotate outcome = iota
	outcomeFatal
	outcomeStop // a *Error the dispatcher should return immediately, unmodified
)

// classify decides whether err should trigger rotation to another identity,
// a fatal (non-retried) failure, or an immediate stop carrying a pre-built
// *Error (BadRequest, produced by the caller's translation step).
func classify(err error) (outcome, int) {
	var proxyErr *Error
	if errors.As(err, &proxyErr) && proxyErr.Kind == KindBadRequest {
		return outcomeStop, proxyErr.HTTPStatus
	}

	var httpErr *upstream.HTTPError
	if errors.As(err, &httpErr) {
		if rotateStatuses[httpErr.Status] {
			return outcomeRotate, httpErr.Status
		}
		if httpErr.Status >= 400 && httpErr.Status < 500 {
			return outcomeFatal, httpErr.Status
		}
		// Any other upstream status (an unlisted 5xx) is treated as unknown:
		// the pool can afford to try alternates.
		return outcomeRotate, httpErr.Status
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range networkKeywords {
		if strings.Contains(msg, kw) {
			return outcomeRotate, 0
		}
	}
	// Unknown error shape (e.g. a failed refresh inside Acquire): rotate.
	return outcomeRotate, 0
}
