package tokenpool

import (
	"context"
	"testing"
	"time"

	"github.com/antigravity-proxy/gatewaycore/internal/identity"
	"github.com/antigravity-proxy/gatewaycore/internal/oauthclient"
)

type fakeStore struct {
	idents map[string]*identity.Identity
}

func newFakeStore(idents ...*identity.Identity) *fakeStore {
	m := make(map[string]*identity.Identity, len(idents))
	for _, i := range idents {
		m[i.ID] = i
	}
	return &fakeStore{idents: m}
}

func (s *fakeStore) List(context.Context) ([]*identity.Identity, error) {
	out := make([]*identity.Identity, 0, len(s.idents))
	for _, v := range s.idents {
		out = append(out, v)
	}
	return out, nil
}
func (s *fakeStore) Get(_ context.Context, id string) (*identity.Identity, error) {
	return s.idents[id], nil
}
func (s *fakeStore) Put(_ context.Context, ident *identity.Identity) error {
	s.idents[ident.ID] = ident
	return nil
}
func (s *fakeStore) Delete(_ context.Context, id string) error { delete(s.idents, id); return nil }
func (s *fakeStore) UpdateCredential(ctx context.Context, id string, cred identity.Credential) error {
	s.idents[id].Credential = cred
	return nil
}
func (s *fakeStore) UpdateQuotaScore(ctx context.Context, id string, score float64) error {
	s.idents[id].Credential.QuotaScore = &score
	return nil
}

type fakeOAuth struct {
	refreshErr error
}

func (f *fakeOAuth) Refresh(context.Context, string) (oauthclient.Result, error) {
	if f.refreshErr != nil {
		return oauthclient.Result{}, f.refreshErr
	}
	return oauthclient.Result{AccessToken: "new-token", ExpiresIn: 3600, RefreshToken: ""}, nil
}
func (f *fakeOAuth) FetchMetadata(context.Context, string) (oauthclient.Metadata, error) {
	return oauthclient.Metadata{ProjectID: "proj-x", Tier: "PRO"}, nil
}

type fakeQuota struct{}

func (fakeQuota) FetchAvailableModels(context.Context, string, string) (map[string]float64, error) {
	return nil, nil
}

func score(v float64) *float64 { return &v }

func freshIdentity(id, email string, sc *float64) *identity.Identity {
	return &identity.Identity{
		ID:    id,
		Email: email,
		Credential: identity.Credential{
			AccessToken:  "tok-" + id,
			RefreshToken: "refresh-" + id,
			ExpiryUnix:   time.Now().Add(1 * time.Hour).Unix(),
			ProjectID:    "proj-" + id,
			QuotaScore:   sc,
		},
	}
}

func TestAcquireEmptyPool(t *testing.T) {
	p := New(newFakeStore(), &fakeOAuth{}, fakeQuota{})
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, _, _, err := p.Acquire(context.Background(), QuotaGemini, false)
	if err != ErrNoIdentitiesAvailable {
		t.Fatalf("want ErrNoIdentitiesAvailable, got %v", err)
	}
}

func TestAcquireStickyWithinWindow(t *testing.T) {
	a := freshIdentity("a", "a@x.com", score(0.9))
	b := freshIdentity("b", "b@x.com", score(0.8))
	p := New(newFakeStore(a, b), &fakeOAuth{}, fakeQuota{})
	p.Load(context.Background())

	_, _, email1, err := p.Acquire(context.Background(), QuotaGemini, false)
	if err != nil {
		t.Fatal(err)
	}
	_, _, email2, err := p.Acquire(context.Background(), QuotaGemini, false)
	if err != nil {
		t.Fatal(err)
	}
	if email1 != email2 {
		t.Fatalf("expected sticky reuse, got %s then %s", email1, email2)
	}
}

func TestAcquirePrefersHighestScore(t *testing.T) {
	a := freshIdentity("a", "a@x.com", score(0.9))
	b := freshIdentity("b", "b@x.com", score(0.1))
	p := New(newFakeStore(a, b), &fakeOAuth{}, fakeQuota{})
	p.Load(context.Background())

	_, _, email, err := p.Acquire(context.Background(), QuotaGemini, false)
	if err != nil {
		t.Fatal(err)
	}
	if email != "a@x.com" {
		t.Fatalf("want highest-score identity a@x.com, got %s", email)
	}
}

func TestAcquireRoundRobinsTopBand(t *testing.T) {
	a := freshIdentity("a", "a@x.com", score(0.95))
	b := freshIdentity("b", "b@x.com", score(0.90))
	c := freshIdentity("c", "c@x.com", score(0.10))
	p := New(newFakeStore(a, b, c), &fakeOAuth{}, fakeQuota{})
	p.Load(context.Background())

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		_, _, email, err := p.Acquire(context.Background(), QuotaGemini, true)
		if err != nil {
			t.Fatal(err)
		}
		seen[email] = true
	}
	if !seen["a@x.com"] || !seen["b@x.com"] {
		t.Fatalf("expected round robin across top band {a,b}, saw %v", seen)
	}
	if seen["c@x.com"] {
		t.Fatalf("low-score identity c should never be selected while a/b are in the top band, saw %v", seen)
	}
}

func TestAcquireImageGenPrefersProTier(t *testing.T) {
	a := freshIdentity("a", "a@x.com", score(0.9))
	a.Credential.Tier = identity.TierFree
	b := freshIdentity("b", "b@x.com", score(0.5))
	b.Credential.Tier = identity.TierPro
	p := New(newFakeStore(a, b), &fakeOAuth{}, fakeQuota{})
	p.Load(context.Background())

	_, _, email, err := p.Acquire(context.Background(), QuotaImageGen, false)
	if err != nil {
		t.Fatal(err)
	}
	if email != "b@x.com" {
		t.Fatalf("want PRO-tier identity preferred for image_gen, got %s", email)
	}
}

func TestAcquireRefreshesExpiringToken(t *testing.T) {
	a := freshIdentity("a", "a@x.com", score(0.9))
	a.Credential.ExpiryUnix = time.Now().Add(10 * time.Second).Unix()
	p := New(newFakeStore(a), &fakeOAuth{}, fakeQuota{})
	p.Load(context.Background())

	tok, _, _, err := p.Acquire(context.Background(), QuotaGemini, false)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "new-token" {
		t.Fatalf("want refreshed token, got %q", tok)
	}
}

func TestAcquireSurfacesRefreshFailure(t *testing.T) {
	a := freshIdentity("a", "a@x.com", score(0.9))
	a.Credential.ExpiryUnix = time.Now().Add(10 * time.Second).Unix()
	p := New(newFakeStore(a), &fakeOAuth{refreshErr: context.DeadlineExceeded}, fakeQuota{})
	p.Load(context.Background())

	if _, _, _, err := p.Acquire(context.Background(), QuotaGemini, false); err == nil {
		t.Fatal("want error when refresh fails, got nil")
	}
}
