package credits

import (
	"context"
	"log/slog"

	"duangpay/internal/metrics"
	"duangpay/internal/repo"
)

// Gate debits credits for paid feature use.
type Gate struct {
	repo    repo.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewGate creates a credit consumption gate over the store.
func NewGate(repository repo.Repository, m *metrics.Metrics, logger *slog.Logger) *Gate {
	return &Gate{
		repo:    repository,
		metrics: m,
		logger:  logger.With("component", "credits"),
	}
}

// ConsumeOne atomically debits one credit and returns the remaining balance.
// Returns repo.ErrInsufficientCredits without mutation when the balance is
// empty; the store's conditional update keeps concurrent consumption from
// ever driving a balance negative.
func (g *Gate) ConsumeOne(ctx context.Context, userID string) (int64, error) {
	remaining, err := g.repo.ConsumeCredit(ctx, userID)
	if err != nil {
		return 0, err
	}
	g.metrics.CreditsConsumed.Inc()
	g.logger.Debug("credit consumed", "user_id", userID, "remaining", remaining)
	return remaining, nil
}
