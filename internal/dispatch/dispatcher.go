// Package dispatch implements the RetryDispatcher: the per-request attempt
// loop that acquires an identity, invokes the caller's attempt function,
// and rotates to another identity on a rotate-eligible failure, bounded by
// pool size.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/antigravity-proxy/gatewaycore/internal/tokenpool"
)

const minRetries = 5

// Attempt is supplied by ProxyEndpoints for each wire protocol: given an
// acquired identity, build the translated upstream body, issue the call,
// and translate the response (or start streaming it) back to the caller.
// Its error, if any, drives rotation classification.
type Attempt func(ctx context.Context, accessToken, projectID, email string) error

// Dispatcher runs the retry loop against a token pool.
type Dispatcher struct {
	pool *tokenpool.Pool
}

// New builds a Dispatcher bound to pool.
func New(pool *tokenpool.Pool) *Dispatcher {
	return &Dispatcher{pool: pool}
}

// PoolSizer is implemented by tokenpool.Pool; named separately so tests can
// substitute a pool double.
type PoolSizer interface {
	Snapshot() []tokenpool.EntrySummary
}

// Do runs attempt up to max(poolSize, 5) times. Returns the set of distinct
// identity emails tried, in attempt order, and the final error if every
// attempt failed (nil on success).
func (d *Dispatcher) Do(ctx context.Context, quotaGroup tokenpool.QuotaGroup, attempt Attempt) ([]string, error) {
	poolSize := len(d.pool.Snapshot())
	maxRetries := poolSize
	if maxRetries < minRetries {
		maxRetries = minRetries
	}

	var tried []string
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		forceRotate := i > 0
		accessToken, projectID, email, err := d.pool.Acquire(ctx, quotaGroup, forceRotate)
		if err != nil {
			lastErr = err
			if out, _ := classify(err); out == outcomeFatal {
				return tried, err
			}
			continue
		}

		start := time.Now()
		err = attempt(ctx, accessToken, projectID, email)
		if err == nil {
			tried = append(tried, email)
			return tried, nil
		}

		tried = append(tried, email)
		lastErr = err

		out, status := classify(err)
		switch out {
		case outcomeStop:
			return tried, err
		case outcomeFatal:
			log.WithFields(log.Fields{"email": email, "status": status}).Warn("dispatch: fatal upstream error")
			return tried, err
		default: // outcomeRotate
			log.WithFields(log.Fields{
				"email":       email,
				"status":      status,
				"attempt":     i,
				"elapsed_ms":  time.Since(start).Milliseconds(),
			}).Warn("dispatch: rotating after error")
		}
	}

	emails := strings.Join(tried, ", ")
	return tried, &Error{
		Kind:    KindAllExhausted,
		Message: fmt.Sprintf("all accounts exhausted (tried: %s): %v", emails, lastErr),
	}
}
