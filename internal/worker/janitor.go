package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
)

// Janitor deletes refresh credentials whose expiry is past the
// retention window. Recently expired and revoked rows stay for audit;
// only long-dead rows are removed. A retention of zero or less disables
// the sweep entirely, keeping every credential forever.
type Janitor struct {
	creds     repository.CredentialRepository
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

func NewJanitor(creds repository.CredentialRepository, interval, retention time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{creds: creds, interval: interval, retention: retention, logger: logger}
}

func (j *Janitor) Run(ctx context.Context) error {
	if j.retention <= 0 {
		j.logger.Info("credential retention sweep disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-j.retention)
		deleted, err := j.creds.DeleteExpiredBefore(cutoff)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			j.logger.Warn("credential retention sweep failed", "error", err)
			continue
		}
		if deleted > 0 {
			j.logger.Info("credential retention sweep", "deleted", deleted)
		}
	}
}
