package cache

import (
	"context"
	"time"

	"gemtrack/backend/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.ReportSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.ReportSummary, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.ReportSummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.ReportSummary, _ time.Duration) error {
	return nil
}
