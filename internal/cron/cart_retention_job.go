package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/zaavg/storefront/pkg/logger"
)

const defaultCartRetention = 30 * 24 * time.Hour

type slotPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type CartRetentionJobParams struct {
	Logger    *logger.Logger
	Storage   slotPurger
	Retention time.Duration
}

// NewCartRetentionJob deletes SQL cart slots that have not been written for
// longer than the retention. Redis slots expire on their own TTL instead.
func NewCartRetentionJob(params CartRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("cart storage required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultCartRetention
	}
	return &cartRetentionJob{
		logg:      params.Logger,
		storage:   params.Storage,
		retention: retention,
		now:       time.Now,
	}, nil
}

type cartRetentionJob struct {
	logg      *logger.Logger
	storage   slotPurger
	retention time.Duration
	now       func() time.Time
}

func (j *cartRetentionJob) Name() string { return "cart-retention" }

func (j *cartRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.storage.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cart retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "cart retention cleanup complete")
	return nil
}
