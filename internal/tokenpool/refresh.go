package tokenpool

import (
	"context"
	"time"

	"github.com/antigravity-proxy/gatewaycore/internal/identity"
)

// refresh renews ident's access token, serialized by both a singleflight
// group (collapsing concurrent callers for the same identity onto one
// upstream call) and the pool-wide refresh mutex (matching the spec's
// double-checked-locking requirement: a caller that loses the race to
// singleflight still re-checks expiry before returning stale work as if it
// were fresh).
func (p *Pool) refresh(ctx context.Context, ident *identity.Identity) (*identity.Identity, error) {
	v, err, _ := p.sf.Do(ident.ID, func() (any, error) {
		p.refreshMu.Lock()
		defer p.refreshMu.Unlock()

		// Double-check: another caller may have refreshed this identity
		// while we waited for the mutex.
		p.mu.RLock()
		current, ok := p.entries[ident.ID]
		p.mu.RUnlock()
		if ok && time.Until(current.Credential.Expiry()) >= refreshLeadWindow {
			return current.Clone(), nil
		}

		refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()

		result, rerr := p.oauth.Refresh(refreshCtx, ident.Credential.RefreshToken)
		if rerr != nil {
			return nil, rerr
		}

		updated := ident.Clone()
		updated.Credential.AccessToken = result.AccessToken
		updated.Credential.ExpiryUnix = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second).Unix()
		if result.RefreshToken != "" {
			updated.Credential.RefreshToken = result.RefreshToken
		}
		// else: upstream omitted refresh_token on this response, an
		// upstream quirk, not an error — the prior token is retained above.

		p.commit(ctx, updated)
		return updated, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*identity.Identity), nil
}

// RefreshAllExpiring iterates a snapshot of entries and refreshes any whose
// expiry falls within the lead window. Invoked by the RefreshScheduler;
// per-identity errors are logged and swallowed so one bad refresh token
// never stalls the others.
func (p *Pool) RefreshAllExpiring(ctx context.Context) {
	for _, ident := range p.usableSnapshot() {
		if time.Until(ident.Credential.Expiry()) >= refreshLeadWindow {
			continue
		}
		if _, err := p.refresh(ctx, ident); err != nil {
			logRefreshError(ident.Email, err)
		}
	}
}
