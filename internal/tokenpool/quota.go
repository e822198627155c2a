package tokenpool

import (
	"context"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/antigravity-proxy/gatewaycore/internal/identity"
	"github.com/antigravity-proxy/gatewaycore/internal/upstream"
)

// UpdateQuotaScores polls upstream for each entry's remaining-quota fraction
// across the three representative models, averages the fractions present,
// and stores the rounded result as the entry's score. Entries that error or
// report nothing retain their prior score.
func (p *Pool) UpdateQuotaScores(ctx context.Context) {
	for _, ident := range p.usableSnapshot() {
		if ident.Credential.Tier == "" {
			meta, err := p.oauth.FetchMetadata(ctxWithTimeout(ctx, metadataTimeout), ident.Credential.AccessToken)
			if err == nil && meta.Tier != "" {
				ident.Credential.Tier = identity.Tier(meta.Tier)
				if meta.ProjectID != "" && ident.Credential.ProjectID == "" {
					ident.Credential.ProjectID = meta.ProjectID
				}
				p.commit(ctx, ident)
			}
		}

		projectID := ident.Credential.ProjectID
		if projectID == "" {
			projectID = upstream.FallbackProjectID
		}

		fractions, err := p.quota.FetchAvailableModels(ctx, ident.Credential.AccessToken, projectID)
		if err != nil {
			log.WithError(err).WithField("email", ident.Email).Warn("tokenpool: quota poll failed")
			continue
		}

		sum, n := 0.0, 0
		for _, model := range upstream.RepresentativeModels {
			if v, ok := fractions[model]; ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		score := math.Round(sum/float64(n)*10000) / 10000
		ident.Credential.QuotaScore = &score
		p.commit(ctx, ident)
	}
}
