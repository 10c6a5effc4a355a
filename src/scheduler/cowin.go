package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/cowin-monitor/src/availability"
)

const refreshTimeout = 2 * time.Minute

type Projector interface {
	AggregateProjection(ctx context.Context, districtID string) (availability.Dataset, error)
}

// Notifier is told about a watch whose filtered projection has available
// centers.
type Notifier interface {
	Notify(watch Watch, dataset availability.Dataset, result availability.Result) error
}

// Watch reruns a projection for a district on a schedule.
type Watch struct {
	Owner      string
	DistrictID string
	Filters    availability.FilterState
}

// Watcher runs every registered Watch from a cron schedule.
type Watcher struct {
	projector Projector
	logger    *zap.Logger

	mu       sync.Mutex
	notifier Notifier
	watches  map[string]Watch
	open     map[string]bool
	running  bool
	schedule *cron.Cron
}

func NewWatcher(projector Projector, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		projector: projector,
		logger:    logger,
		watches:   make(map[string]Watch),
		open:      make(map[string]bool),
	}
}

func (w *Watcher) SetNotifier(n Notifier) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notifier = n
}

// Add registers watch, replacing any previous watch of the same owner.
func (w *Watcher) Add(watch Watch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watches[watch.Owner] = watch
	delete(w.open, watch.Owner)
}

func (w *Watcher) Remove(owner string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watches[owner]
	delete(w.watches, owner)
	delete(w.open, owner)
	return ok
}

// Watches returns the registered watches ordered by owner.
func (w *Watcher) Watches() []Watch {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Watch, 0, len(w.watches))
	for _, watch := range w.watches {
		out = append(out, watch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

// Start schedules RefreshWatchesTask with a cron spec such as "@every 20m".
func (w *Watcher) Start(spec string) error {
	schedule := cron.New()
	if err := schedule.AddFunc(spec, w.RefreshWatchesTask); err != nil {
		return fmt.Errorf("scheduling watches with %q: %w", spec, err)
	}
	w.mu.Lock()
	w.schedule = schedule
	w.mu.Unlock()

	w.logger.Info("watch schedule started", zap.String("spec", spec))
	schedule.Start()
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	schedule := w.schedule
	w.schedule = nil
	w.mu.Unlock()
	if schedule != nil {
		schedule.Stop()
	}
}

// RefreshWatchesTask projects each watched district once and notifies the
// owners whose filtered view went from no available centers to some. A run
// that starts while the previous one is still going is skipped.
func (w *Watcher) RefreshWatchesTask() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Info("previous watch refresh still running, skipping")
		return
	}
	w.running = true
	notifier := w.notifier
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	start := time.Now()
	watches := w.Watches()
	byDistrict := make(map[string][]Watch)
	var districts []string
	for _, watch := range watches {
		if _, ok := byDistrict[watch.DistrictID]; !ok {
			districts = append(districts, watch.DistrictID)
		}
		byDistrict[watch.DistrictID] = append(byDistrict[watch.DistrictID], watch)
	}

	for _, districtID := range districts {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		dataset, err := w.projector.AggregateProjection(ctx, districtID)
		cancel()
		if err != nil {
			w.logger.Warn("watch projection failed", zap.String("district_id", districtID), zap.Error(err))
			continue
		}

		for _, watch := range byDistrict[districtID] {
			result := availability.ApplyFilters(dataset, watch.Filters)
			if !w.opened(watch.Owner, result.Available > 0) || notifier == nil {
				continue
			}
			if err := notifier.Notify(watch, dataset, result); err != nil {
				w.logger.Warn("watch notification failed", zap.String("owner", watch.Owner), zap.Error(err))
			}
		}
	}

	w.logger.Info("watch refresh completed",
		zap.Int("watches", len(watches)),
		zap.Int("districts", len(districts)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// opened records whether owner's watch has slots and reports a change from
// none to some. A watch removed during the run is ignored.
func (w *Watcher) opened(owner string, available bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watches[owner]; !ok {
		return false
	}
	was := w.open[owner]
	w.open[owner] = available
	return available && !was
}
