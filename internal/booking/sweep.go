package booking

import (
	"context"
	"time"

	"github.com/tumaini/tikiti/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SweepStalePayments fails payment attempts stuck pending past maxAge
// through the same Resolve choke point as the other paths, releasing the
// inventory their bookings still hold. This closes the window left by the
// commit-first intake design, where a reservation can exist whose push
// request never went out. Only a booking's latest attempt may drive the
// booking itself: superseded attempts are closed out without touching the
// booking, so a live resend prompt is never cancelled underneath the payer.
// Attempts race each resolution independently, so a lost race is a no-op,
// not an error.
func (s *Service) SweepStalePayments(ctx context.Context, maxAge time.Duration, limit int) (int, error) {
	cutoff := s.clock.Now().Add(-maxAge)

	expired, err := s.store.ExpireSupersededPayments(ctx, cutoff, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.logger.WithField("count", expired).Info("expired superseded payment attempts")
	}

	stale, err := s.store.ListStalePendingPayments(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	outcome := domain.PaymentOutcome{
		Success:    false,
		ResultCode: 1,
		ResultDesc: "payment request expired",
	}

	var swept int
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	results := make(chan struct{}, len(stale))
	for _, p := range stale {
		p := p
		g.Go(func() error {
			_, err := s.Resolve(gctx, p.ID, outcome, domain.SourceSweeper)
			if err == domain.ErrAlreadyResolved {
				return nil
			}
			if err != nil {
				s.logger.WithField("payment_id", p.ID.String()).Error("failed to sweep stale payment", err)
				return nil
			}
			results <- struct{}{}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return swept, err
	}
	close(results)
	for range results {
		swept++
	}
	return swept, nil
}
