package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	model "github.com/cowin-monitor/src/model"
)

// Fetcher performs single-day lookups.
type Fetcher struct {
	source CenterSource
	logger *zap.Logger
}

func NewFetcher(source CenterSource, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{source: source, logger: logger}
}

// FetchSingleDay looks up the centers of districtID for date (DD-MM-YYYY) and
// returns them sorted by name. Failures are returned as-is; nothing is retried.
func (f *Fetcher) FetchSingleDay(ctx context.Context, districtID, date string) (Dataset, error) {
	runID := uuid.NewString()
	start := time.Now()

	raw, err := f.source.Centers(ctx, districtID, date)
	if err != nil {
		f.logger.Warn("single-day fetch failed",
			zap.String("run_id", runID),
			zap.String("district_id", districtID),
			zap.String("date", date),
			zap.Error(err),
		)
		return Dataset{}, fmt.Errorf("fetch %s for district %s: %w", date, districtID, err)
	}

	centers := make([]model.Center, len(raw))
	for i, c := range raw {
		centers[i] = c.Clone()
	}
	SortByName(centers)

	f.logger.Info("single-day fetch completed",
		zap.String("run_id", runID),
		zap.String("district_id", districtID),
		zap.String("date", date),
		zap.Int("centers", len(centers)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return Dataset{
		Mode:       SingleDay,
		DistrictID: districtID,
		Date:       date,
		RunID:      runID,
		Centers:    centers,
	}, nil
}
