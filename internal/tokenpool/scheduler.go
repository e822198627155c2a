package tokenpool

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	refreshSchedulerPeriod = 240 * time.Second
	quotaSchedulerPeriod   = 600 * time.Second
	quotaSchedulerDelay    = 30 * time.Second
)

func logRefreshError(email string, err error) {
	log.WithError(err).WithField("email", email).Warn("tokenpool: refresh failed")
}

// RunRefreshScheduler ticks every 240s and renews any access token within
// its pre-expiry window. A tick that overruns its period is allowed to
// finish; the next tick is simply skipped (native time.Ticker behavior),
// matching the spec's scheduler-overrun rule.
func (p *Pool) RunRefreshScheduler(ctx context.Context) {
	ticker := time.NewTicker(refreshSchedulerPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RefreshAllExpiring(ctx)
		}
	}
}

// RunQuotaScheduler ticks every 600s, after an initial 30s delay, polling
// upstream for each entry's remaining-quota fraction across the three
// representative models.
func (p *Pool) RunQuotaScheduler(ctx context.Context) {
	timer := time.NewTimer(quotaSchedulerDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	p.UpdateQuotaScores(ctx)

	ticker := time.NewTicker(quotaSchedulerPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.UpdateQuotaScores(ctx)
		}
	}
}
