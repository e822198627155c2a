// Package tokenpool implements the in-memory credential pool: selection
// policy with sticky sessions, proactive refresh, and periodic quota
// polling. It is the heart of the system — see SPEC_FULL.md section 4.4.
package tokenpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/antigravity-proxy/gatewaycore/internal/identity"
	"github.com/antigravity-proxy/gatewaycore/internal/oauthclient"
)

// refresher renews an access token. Satisfied by *oauthclient.Client; named
// as an interface here so tests can substitute a fake without a live
// network dependency.
type refresher interface {
	Refresh(ctx context.Context, refreshToken string) (oauthclient.Result, error)
}

// metadataFetcher backfills project id and subscription tier. Satisfied by
// *oauthclient.Client.
type metadataFetcher interface {
	FetchMetadata(ctx context.Context, accessToken string) (oauthclient.Metadata, error)
}

// quotaFetcher polls upstream for per-model remaining-quota fractions.
// Satisfied by *upstream.Client.
type quotaFetcher interface {
	FetchAvailableModels(ctx context.Context, accessToken, projectID string) (map[string]float64, error)
}

// oauthAPI bundles the two oauth operations Acquire needs.
type oauthAPI interface {
	refresher
	metadataFetcher
}

// QuotaGroup selects which tier-sharing pool a request draws from.
type QuotaGroup string

const (
	QuotaGemini   QuotaGroup = "gemini"
	QuotaClaude   QuotaGroup = "claude"
	QuotaImageGen QuotaGroup = "image_gen"
)

const (
	stickyWindow       = 60 * time.Second
	refreshLeadWindow  = 300 * time.Second
	minScoreThreshold  = 0.05
	topBandTolerance   = 0.9
	topBandSize        = 3
	refreshTimeout     = 15 * time.Second
	metadataTimeout    = 15 * time.Second
)

// EntrySummary is a read-only view of one pool entry, for operators.
type EntrySummary struct {
	ID         string
	Email      string
	Tier       identity.Tier
	Score      *float64
	ExpiresAt  time.Time
	LastUsedAt time.Time
}

// Pool is the in-memory credential pool. All mutation of its map, round
// robin counter, and sticky pair happens under mu; refreshes are
// serialized by a separate mutex (plus a singleflight group) so network
// I/O never blocks selection.
type Pool struct {
	store identity.Store
	oauth oauthAPI
	quota quotaFetcher

	mu      sync.RWMutex
	entries map[string]*identity.Identity

	rrCounter uint64

	stickyID   string
	stickyTime time.Time

	refreshMu sync.Mutex
	sf        singleflight.Group
}

// New builds a Pool backed by store, using oauth for refresh/metadata and
// quota for quota polling.
func New(store identity.Store, oauth oauthAPI, quota quotaFetcher) *Pool {
	return &Pool{
		store:   store,
		oauth:   oauth,
		quota:   quota,
		entries: make(map[string]*identity.Identity),
	}
}

// Load rebuilds the in-memory pool from the store. Idempotent: existing
// entries are replaced wholesale, since the store is the source of truth.
func (p *Pool) Load(ctx context.Context) (int, error) {
	idents, err := p.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("tokenpool: load: %w", err)
	}

	next := make(map[string]*identity.Identity, len(idents))
	for _, ident := range idents {
		if ident.ID == "" {
			ident.ID = identity.StableID(ident.Email)
		}
		next[ident.ID] = ident
	}

	p.mu.Lock()
	p.entries = next
	p.mu.Unlock()
	return len(next), nil
}

// ReloadOne refreshes a single entry from the store, used after an operator
// drops in a freshly onboarded identity.
func (p *Pool) ReloadOne(ctx context.Context, id string) error {
	ident, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.entries[id] = ident
	p.mu.Unlock()
	return nil
}

// Snapshot returns a read-only listing of every entry for operator tooling.
func (p *Pool) Snapshot() []EntrySummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]EntrySummary, 0, len(p.entries))
	for _, ident := range p.entries {
		out = append(out, EntrySummary{
			ID:         ident.ID,
			Email:      ident.Email,
			Tier:       ident.Credential.Tier,
			Score:      ident.Credential.QuotaScore,
			ExpiresAt:  ident.Credential.Expiry(),
			LastUsedAt: ident.LastUsedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// usableSnapshot returns a stable-ordered, lock-free copy of every usable
// entry, so selection logic never holds the pool lock while it sorts or
// (later) performs network I/O.
func (p *Pool) usableSnapshot() []*identity.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*identity.Identity, 0, len(p.entries))
	for _, ident := range p.entries {
		if ident.Credential.Usable() {
			out = append(out, ident.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *Pool) nextRoundRobin(n int) int {
	if n <= 0 {
		return 0
	}
	idx := atomic.AddUint64(&p.rrCounter, 1) - 1
	return int(idx % uint64(n))
}

// Acquire returns a usable access token, project id, and email for
// quotaGroup, performing refresh and metadata backfill as needed.
func (p *Pool) Acquire(ctx context.Context, quotaGroup QuotaGroup, forceRotate bool) (accessToken, projectID, email string, err error) {
	all := p.usableSnapshot()
	if len(all) == 0 {
		return "", "", "", ErrNoIdentitiesAvailable
	}

	selected := p.selectEntry(all, quotaGroup, forceRotate)
	if selected == nil {
		return "", "", "", ErrNoIdentitiesAvailable
	}

	if time.Until(selected.Credential.Expiry()) < refreshLeadWindow {
		refreshed, rerr := p.refresh(ctx, selected)
		if rerr != nil {
			// The entry is left untouched by a failed refresh (section
			// 4.4.3); Acquire must not hand back a token that doesn't meet
			// the "strictly more than 300s to expiry" invariant, so the
			// failure surfaces here. RetryDispatcher rotates to another
			// identity rather than surfacing this to the caller directly.
			return "", "", "", fmt.Errorf("tokenpool: refresh %s: %w", selected.Email, rerr)
		}
		selected = refreshed
	}

	if selected.Credential.ProjectID == "" {
		meta, merr := p.oauth.FetchMetadata(ctxWithTimeout(ctx, metadataTimeout), selected.Credential.AccessToken)
		if merr == nil && meta.ProjectID != "" {
			selected.Credential.ProjectID = meta.ProjectID
			if meta.Tier != "" {
				selected.Credential.Tier = identity.Tier(meta.Tier)
			}
			p.commit(ctx, selected)
		} else {
			selected.Credential.ProjectID = oauthclient.FallbackProjectID
		}
	}

	p.touchLastUsed(selected.ID)
	return selected.Credential.AccessToken, selected.Credential.ProjectID, selected.Email, nil
}

func ctxWithTimeout(ctx context.Context, d time.Duration) context.Context {
	c, _ := context.WithTimeout(ctx, d) //nolint:lostcancel // short-lived, call returns before this leaks meaningfully
	return c
}

func (p *Pool) touchLastUsed(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ident, ok := p.entries[id]; ok {
		ident.LastUsedAt = time.Now()
	}
}

// selectEntry implements the selection policy of SPEC_FULL.md section 4.4.2.
func (p *Pool) selectEntry(all []*identity.Identity, quotaGroup QuotaGroup, forceRotate bool) *identity.Identity {
	if quotaGroup == QuotaImageGen {
		return p.selectImageGen(all, forceRotate)
	}

	if !forceRotate {
		if sticky := p.stickyHit(all); sticky != nil {
			return sticky
		}
	}

	scored := withScore(all, minScoreThreshold)
	var chosen *identity.Identity
	if len(scored) == 0 {
		chosen = all[p.nextRoundRobin(len(all))]
	} else {
		sort.Slice(scored, func(i, j int) bool { return *scored[i].Credential.QuotaScore > *scored[j].Credential.QuotaScore })
		topScore := *scored[0].Credential.QuotaScore
		bandEnd := topBandSize
		if bandEnd > len(scored) {
			bandEnd = len(scored)
		}
		var band []*identity.Identity
		for _, e := range scored[:bandEnd] {
			if *e.Credential.QuotaScore >= topBandTolerance*topScore {
				band = append(band, e)
			}
		}
		if len(band) > 1 {
			chosen = band[p.nextRoundRobin(len(band))]
		} else {
			chosen = scored[0]
		}
	}

	p.mu.Lock()
	p.stickyID = chosen.ID
	p.stickyTime = time.Now()
	p.mu.Unlock()
	return chosen
}

func (p *Pool) stickyHit(all []*identity.Identity) *identity.Identity {
	p.mu.RLock()
	id, at := p.stickyID, p.stickyTime
	p.mu.RUnlock()

	if id == "" || time.Since(at) >= stickyWindow {
		return nil
	}
	for _, e := range all {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (p *Pool) selectImageGen(all []*identity.Identity, forceRotate bool) *identity.Identity {
	if forceRotate {
		return all[p.nextRoundRobin(len(all))]
	}

	pro := make([]*identity.Identity, 0, len(all))
	for _, e := range all {
		if e.Credential.Tier == identity.TierPro || e.Credential.Tier == identity.TierUltra {
			pro = append(pro, e)
		}
	}
	if len(pro) > 0 {
		scored := withScore(pro, minScoreThreshold)
		if len(scored) > 0 {
			sort.Slice(scored, func(i, j int) bool { return *scored[i].Credential.QuotaScore > *scored[j].Credential.QuotaScore })
			return scored[0]
		}
		return pro[p.nextRoundRobin(len(pro))]
	}
	return all[p.nextRoundRobin(len(all))]
}

func withScore(in []*identity.Identity, min float64) []*identity.Identity {
	out := make([]*identity.Identity, 0, len(in))
	for _, e := range in {
		if e.Credential.QuotaScore != nil && *e.Credential.QuotaScore > min {
			out = append(out, e)
		}
	}
	return out
}

// commit persists an in-memory mutation back to both the pool map and the
// durable store; store errors are logged but not returned since the entry's
// in-memory state is already correct for this and subsequent requests.
func (p *Pool) commit(ctx context.Context, ident *identity.Identity) {
	p.mu.Lock()
	p.entries[ident.ID] = ident
	p.mu.Unlock()

	if err := p.store.Put(ctx, ident); err != nil {
		log.WithError(err).WithField("email", ident.Email).Warn("tokenpool: failed to persist identity")
	}
}
