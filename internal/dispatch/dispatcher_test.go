package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/antigravity-proxy/gatewaycore/internal/identity"
	"github.com/antigravity-proxy/gatewaycore/internal/oauthclient"
	"github.com/antigravity-proxy/gatewaycore/internal/tokenpool"
	"github.com/antigravity-proxy/gatewaycore/internal/upstream"
)

type memStore struct{ idents map[string]*identity.Identity }

func (s *memStore) List(context.Context) ([]*identity.Identity, error) {
	out := make([]*identity.Identity, 0, len(s.idents))
	for _, v := range s.idents {
		out = append(out, v)
	}
	return out, nil
}
func (s *memStore) Get(_ context.Context, id string) (*identity.Identity, error) { return s.idents[id], nil }
func (s *memStore) Put(_ context.Context, i *identity.Identity) error            { s.idents[i.ID] = i; return nil }
func (s *memStore) Delete(_ context.Context, id string) error                   { delete(s.idents, id); return nil }
func (s *memStore) UpdateCredential(_ context.Context, id string, c identity.Credential) error {
	s.idents[id].Credential = c
	return nil
}
func (s *memStore) UpdateQuotaScore(_ context.Context, id string, sc float64) error {
	s.idents[id].Credential.QuotaScore = &sc
	return nil
}

type noopOAuth struct{}

func (noopOAuth) Refresh(context.Context, string) (oauthclient.Result, error) {
	return oauthclient.Result{AccessToken: "t", ExpiresIn: 3600}, nil
}
func (noopOAuth) FetchMetadata(context.Context, string) (oauthclient.Metadata, error) {
	return oauthclient.Metadata{ProjectID: "p"}, nil
}

type noopQuota struct{}

func (noopQuota) FetchAvailableModels(context.Context, string, string) (map[string]float64, error) {
	return nil, nil
}

func mkIdent(id, email string) *identity.Identity {
	return &identity.Identity{
		ID:    id,
		Email: email,
		Credential: identity.Credential{
			AccessToken:  "tok-" + id,
			RefreshToken: "refresh-" + id,
			ExpiryUnix:   time.Now().Add(time.Hour).Unix(),
			ProjectID:    "proj-" + id,
		},
	}
}

func newPool(idents ...*identity.Identity) *tokenpool.Pool {
	m := make(map[string]*identity.Identity, len(idents))
	for _, i := range idents {
		m[i.ID] = i
	}
	p := tokenpool.New(&memStore{idents: m}, noopOAuth{}, noopQuota{})
	p.Load(context.Background())
	return p
}

func TestDispatcherRotatesOn429(t *testing.T) {
	p := newPool(mkIdent("a", "a@x.com"), mkIdent("b", "b@x.com"))
	d := New(p)

	calls := 0
	_, err := d.Do(context.Background(), tokenpool.QuotaGemini, func(_ context.Context, _, _, email string) error {
		calls++
		if email == "a@x.com" {
			return &upstream.HTTPError{Status: 429}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("want success after rotation, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("want 2 calls (sticky A fails, rotate to B succeeds), got %d", calls)
	}
}

func TestDispatcherExhaustion(t *testing.T) {
	p := newPool(mkIdent("a", "a@x.com"), mkIdent("b", "b@x.com"))
	d := New(p)

	calls := 0
	_, err := d.Do(context.Background(), tokenpool.QuotaGemini, func(_ context.Context, _, _, _ string) error {
		calls++
		return &upstream.HTTPError{Status: 503}
	})
	if err == nil {
		t.Fatal("want error after exhaustion")
	}
	if calls != 5 {
		t.Fatalf("want max(2,5)=5 attempts, got %d", calls)
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != KindAllExhausted {
		t.Fatalf("want AllExhausted error, got %v", err)
	}
	if perr.StatusCode() != 429 {
		t.Fatalf("want 429 on exhaustion, got %d", perr.StatusCode())
	}
}

func TestDispatcherSingleIdentityRetriesFiveTimes(t *testing.T) {
	p := newPool(mkIdent("a", "a@x.com"))
	d := New(p)

	calls := 0
	_, err := d.Do(context.Background(), tokenpool.QuotaGemini, func(_ context.Context, _, _, _ string) error {
		calls++
		return &upstream.HTTPError{Status: 429}
	})
	if err == nil {
		t.Fatal("want error")
	}
	if calls != 5 {
		t.Fatalf("want 5 attempts on single identity, got %d", calls)
	}
}

func TestDispatcherFatalStopsImmediately(t *testing.T) {
	p := newPool(mkIdent("a", "a@x.com"), mkIdent("b", "b@x.com"))
	d := New(p)

	calls := 0
	_, err := d.Do(context.Background(), tokenpool.QuotaGemini, func(_ context.Context, _, _, _ string) error {
		calls++
		return &upstream.HTTPError{Status: 401}
	})
	if err == nil {
		t.Fatal("want error")
	}
	if calls != 1 {
		t.Fatalf("want fatal 4xx to stop after first attempt, got %d calls", calls)
	}
}

func TestDispatcherBadRequestStopsImmediately(t *testing.T) {
	p := newPool(mkIdent("a", "a@x.com"))
	d := New(p)

	calls := 0
	_, err := d.Do(context.Background(), tokenpool.QuotaGemini, func(_ context.Context, _, _, _ string) error {
		calls++
		return NewBadRequest("malformed payload")
	})
	if err == nil {
		t.Fatal("want error")
	}
	if calls != 1 {
		t.Fatalf("want bad request to stop after first attempt, got %d calls", calls)
	}
}
