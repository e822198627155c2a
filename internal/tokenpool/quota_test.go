package tokenpool

import (
	"context"
	"testing"

	"github.com/antigravity-proxy/gatewaycore/internal/identity"
)

type scriptedQuota struct {
	byProject map[string]map[string]float64
}

func (s scriptedQuota) FetchAvailableModels(_ context.Context, _ string, projectID string) (map[string]float64, error) {
	return s.byProject[projectID], nil
}

func TestUpdateQuotaScoresAveragesRepresentativeModels(t *testing.T) {
	a := freshIdentity("a", "a@x.com", nil)
	a.Credential.Tier = identity.TierPro
	a.Credential.ProjectID = "proj-a"
	b := freshIdentity("b", "b@x.com", nil)
	b.Credential.Tier = identity.TierPro
	b.Credential.ProjectID = "proj-b"

	quota := scriptedQuota{byProject: map[string]map[string]float64{
		"proj-a": {
			"claude-sonnet-4-5-thinking": 0.9,
			"gemini-3-pro-high":          0.8,
			"gemini-3-flash":             0.7,
		},
		"proj-b": {
			"claude-sonnet-4-5-thinking": 0.1,
			"gemini-3-pro-high":          0.2,
			"gemini-3-flash":             0.3,
		},
	}}

	p := New(newFakeStore(a, b), &fakeOAuth{}, quota)
	p.Load(context.Background())
	p.UpdateQuotaScores(context.Background())

	snap := map[string]*float64{}
	for _, e := range p.Snapshot() {
		snap[e.Email] = e.Score
	}
	if snap["a@x.com"] == nil || *snap["a@x.com"] != 0.8 {
		t.Fatalf("want a's score 0.8, got %v", snap["a@x.com"])
	}
	if snap["b@x.com"] == nil || *snap["b@x.com"] != 0.2 {
		t.Fatalf("want b's score 0.2, got %v", snap["b@x.com"])
	}

	_, _, email, err := p.Acquire(context.Background(), QuotaGemini, false)
	if err != nil {
		t.Fatal(err)
	}
	if email != "a@x.com" {
		t.Fatalf("want identity with higher score selected, got %s", email)
	}
}
