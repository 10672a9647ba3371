package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stockflow-backend/pkg/logger"
)

const (
	draftTTLDays     = 14
	draftExpiryBatch = 200
)

type DraftExpiryJobParams struct {
	Logger  *logger.Logger
	Orders  draftExpirer
	TTLDays int
	Batch   int
}

type draftExpirer interface {
	ExpireStaleDrafts(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewDraftExpiryJob cancels drafts nobody touched within the TTL. Cancellation
// goes through the order state machine so reservations are released with it.
func NewDraftExpiryJob(params DraftExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	ttl := params.TTLDays
	if ttl <= 0 {
		ttl = draftTTLDays
	}
	batch := params.Batch
	if batch <= 0 {
		batch = draftExpiryBatch
	}
	return &draftExpiryJob{
		logg:    params.Logger,
		orders:  params.Orders,
		ttlDays: ttl,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type draftExpiryJob struct {
	logg    *logger.Logger
	orders  draftExpirer
	ttlDays int
	batch   int
	now     func() time.Time
}

func (j *draftExpiryJob) Name() string { return "stale-draft-expiry" }

func (j *draftExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.ttlDays) * 24 * time.Hour)
	expired, err := j.orders.ExpireStaleDrafts(ctx, cutoff, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": expired,
	})
	if err != nil {
		return fmt.Errorf("expire drafts: %w", err)
	}
	j.logg.Info(logCtx, "stale drafts expired")
	return nil
}
