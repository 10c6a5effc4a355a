package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"go.uber.org/zap"

	model "github.com/cowin-monitor/src/model"
)

const (
	// ProjectionWeeks is the number of weekly samples in a projection.
	ProjectionWeeks = 8

	daysPerWeek    = 7
	defaultWorkers = ProjectionWeeks
)

// Policy decides what a failed weekly lookup does to a projection.
type Policy int

const (
	// BestEffort logs the failure and lets that week contribute no centers.
	BestEffort Policy = iota
	// Strict fails the whole projection.
	Strict
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "best-effort":
		return BestEffort, nil
	case "strict":
		return Strict, nil
	default:
		return BestEffort, fmt.Errorf("unknown projection policy %q", s)
	}
}

var ErrAggregationFailed = errors.New("projection failed")

// Aggregator builds multi-week projections.
type Aggregator struct {
	source  CenterSource
	workers int
	policy  Policy
	now     func() time.Time
	logger  *zap.Logger
}

type AggregatorOption func(*Aggregator)

// WithWorkers bounds how many weekly lookups run at once.
func WithWorkers(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithPolicy(p Policy) AggregatorOption {
	return func(a *Aggregator) { a.policy = p }
}

func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(source CenterSource, logger *zap.Logger, opts ...AggregatorOption) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		source:  source,
		workers: defaultWorkers,
		policy:  BestEffort,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type weekResult struct {
	date    string
	centers []model.Center
	err     error
}

// AggregateProjection fetches ProjectionWeeks weekly samples starting
// tomorrow, waits for all of them and merges them into one record per
// center. The returned dataset is built from scratch on every call.
func (a *Aggregator) AggregateProjection(ctx context.Context, districtID string) (Dataset, error) {
	runID := uuid.NewString()
	start := time.Now()
	tomorrow := Tomorrow(a.now())
	dates := WeeklyDates(tomorrow, ProjectionWeeks)

	a.logger.Info("projection started",
		zap.String("run_id", runID),
		zap.String("district_id", districtID),
		zap.String("base_date", dates[0]),
	)

	results := make([]weekResult, len(dates))
	wp := workerpool.New(a.workers)
	for i, date := range dates {
		i, date := i, date
		wp.Submit(func() {
			centers, err := a.source.Centers(ctx, districtID, date)
			results[i] = weekResult{date: date, centers: centers, err: err}
		})
	}
	wp.StopWait()

	weeks := make([][]model.Center, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			if a.policy == Strict {
				a.logger.Error("projection failed",
					zap.String("run_id", runID),
					zap.String("date", r.date),
					zap.Error(r.err),
				)
				return Dataset{}, fmt.Errorf("%w: week of %s: %v", ErrAggregationFailed, r.date, r.err)
			}
			a.logger.Warn("weekly fetch failed, skipping week",
				zap.String("run_id", runID),
				zap.String("date", r.date),
				zap.Error(r.err),
			)
			continue
		}
		weeks = append(weeks, r.centers)
	}

	centers := Merge(weeks)

	a.logger.Info("projection completed",
		zap.String("run_id", runID),
		zap.String("district_id", districtID),
		zap.Int("centers", len(centers)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return Dataset{
		Mode:       ByCenter,
		DistrictID: districtID,
		Date:       dates[0],
		RunID:      runID,
		Centers:    centers,
	}, nil
}

// Merge combines weekly responses, earliest week first, into one center per
// id. Only sessions with remaining capacity are kept, concatenated in week
// order; a center that never had one is left out. The result is sorted by
// name and each center's sessions by date. Inputs are not modified.
func Merge(weeks [][]model.Center) []model.Center {
	merged := make(map[int]model.Center)
	for _, week := range weeks {
		for _, raw := range week {
			stripped := stripUnavailable(raw)
			if len(stripped.Sessions) == 0 {
				continue
			}

			existing, ok := merged[stripped.CenterID]
			if !ok {
				merged[stripped.CenterID] = stripped
				continue
			}
			next := existing.Clone()
			next.Sessions = append(next.Sessions, stripped.Sessions...)
			merged[stripped.CenterID] = next
		}
	}

	centers := make([]model.Center, 0, len(merged))
	for _, c := range merged {
		SortSessionsByDate(c.Sessions)
		centers = append(centers, c)
	}
	SortByName(centers)
	return centers
}

func stripUnavailable(c model.Center) model.Center {
	out := c.Clone()
	kept := out.Sessions[:0]
	for _, s := range out.Sessions {
		if s.AvailableCapacity > 0 {
			kept = append(kept, s)
		}
	}
	out.Sessions = kept
	return out
}
