// Package coordinator tracks which view a user is looking at (a single day
// or a multi-week projection), drives the fetches that fill it and keeps the
// displayed list in step with the active filters.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cowin-monitor/src/availability"
	model "github.com/cowin-monitor/src/model"
)

var (
	ErrNoDistrict         = errors.New("select a district first")
	ErrNoDate             = errors.New("select a date first")
	ErrDayStepUnavailable = errors.New("day stepping is only available in single-day view")
)

type SingleDayFetcher interface {
	FetchSingleDay(ctx context.Context, districtID, date string) (availability.Dataset, error)
}

type Projector interface {
	AggregateProjection(ctx context.Context, districtID string) (availability.Dataset, error)
}

// View is a consistent snapshot of what should be displayed.
type View struct {
	Mode       availability.Mode
	DistrictID string
	// Date is the selected day in single-day mode and the first projected
	// day once a projection has completed.
	Date           string
	Filters        availability.FilterState
	Centers        []model.Center
	Available      int
	NotAvailable   int
	InProgress     bool
	DayStepVisible bool
	// Loaded is false until a fetch has succeeded.
	Loaded bool
}

// NoMatches reports a completed fetch whose displayed list is empty.
func (v View) NoMatches() bool {
	return v.Loaded && len(v.Centers) == 0
}

// Coordinator is safe for concurrent use. Fetches run outside the lock and
// their dataset is swapped in whole when they complete, so the last fetch to
// complete wins.
type Coordinator struct {
	single    SingleDayFetcher
	projector Projector
	logger    *zap.Logger

	mu             sync.Mutex
	mode           availability.Mode
	districtID     string
	date           string
	filters        availability.FilterState
	dataset        *availability.Dataset
	result         availability.Result
	inFlight       int
	installs       int
	dayStepVisible bool
}

func New(single SingleDayFetcher, projector Projector, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		single:         single,
		projector:      projector,
		logger:         logger,
		mode:           availability.SingleDay,
		dayStepVisible: true,
	}
}

func (c *Coordinator) SelectDistrict(districtID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.districtID = districtID
}

// SelectDate accepts DD-MM-YYYY or YYYY-MM-DD and stores the DD-MM-YYYY form.
func (c *Coordinator) SelectDate(date string) error {
	formatted, err := availability.NormalizeDate(date)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.date = formatted
	return nil
}

// SelectedDate is the date picked for single-day checks, independent of the
// dataset on display.
func (c *Coordinator) SelectedDate() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date
}

// CanCheck mirrors the enabled state of the single-day check.
func (c *Coordinator) CanCheck() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.districtID != "" && c.date != ""
}

// Check fetches the selected day and switches to single-day view once the
// fetch has completed.
func (c *Coordinator) Check(ctx context.Context) (View, error) {
	c.mu.Lock()
	districtID, date := c.districtID, c.date
	switch {
	case districtID == "":
		return c.rejectLocked(ErrNoDistrict)
	case date == "":
		return c.rejectLocked(ErrNoDate)
	}
	c.inFlight++
	installs := c.installs
	c.mu.Unlock()

	dataset, err := c.single.FetchSingleDay(ctx, districtID, date)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if err != nil {
		c.failLocked(installs)
		c.logger.Warn("check failed", zap.String("district_id", districtID), zap.String("date", date), zap.Error(err))
		return c.viewLocked(), fmt.Errorf("check availability: %w", err)
	}

	c.mode = availability.SingleDay
	c.filters.Search = ""
	c.dayStepVisible = true
	c.installLocked(dataset)
	return c.viewLocked(), nil
}

// Project builds the multi-week projection for the selected district. The
// search text and counters are reset and day stepping hidden before the
// fetch starts.
func (c *Coordinator) Project(ctx context.Context) (View, error) {
	c.mu.Lock()
	districtID := c.districtID
	if districtID == "" {
		return c.rejectLocked(ErrNoDistrict)
	}
	c.mode = availability.ByCenter
	c.filters.Search = ""
	c.dayStepVisible = false
	c.clearLocked()
	c.inFlight++
	installs := c.installs
	c.mu.Unlock()

	dataset, err := c.projector.AggregateProjection(ctx, districtID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if err != nil {
		c.failLocked(installs)
		c.logger.Warn("projection failed", zap.String("district_id", districtID), zap.Error(err))
		return c.viewLocked(), fmt.Errorf("project availability: %w", err)
	}

	c.mode = availability.ByCenter
	c.dayStepVisible = false
	c.installLocked(dataset)
	return c.viewLocked(), nil
}

// StepDay moves the selected date by days and checks the new day.
func (c *Coordinator) StepDay(ctx context.Context, days int) (View, error) {
	c.mu.Lock()
	if c.mode != availability.SingleDay || !c.dayStepVisible {
		return c.rejectLocked(ErrDayStepUnavailable)
	}
	if c.date == "" {
		return c.rejectLocked(ErrNoDate)
	}
	next, err := availability.StepDate(c.date, days)
	if err != nil {
		return c.rejectLocked(err)
	}
	c.date = next
	c.mu.Unlock()

	return c.Check(ctx)
}

// SetFilters replaces the filter state and recomputes the displayed list.
func (c *Coordinator) SetFilters(filters availability.FilterState) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
	c.recomputeLocked()
	return c.viewLocked()
}

// UpdateFilters applies fn to a copy of the current filters.
func (c *Coordinator) UpdateFilters(fn func(*availability.FilterState)) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	filters := c.filters
	fn(&filters)
	c.filters = filters
	c.recomputeLocked()
	return c.viewLocked()
}

func (c *Coordinator) Filters() availability.FilterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters
}

func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// rejectLocked releases the lock taken by the caller.
func (c *Coordinator) rejectLocked(err error) (View, error) {
	v := c.viewLocked()
	c.mu.Unlock()
	return v, err
}

func (c *Coordinator) installLocked(dataset availability.Dataset) {
	c.dataset = &dataset
	c.installs++
	c.recomputeLocked()
}

// failLocked clears the display for a failed fetch unless a fetch that
// completed after it started has already installed a newer dataset.
func (c *Coordinator) failLocked(installsAtStart int) {
	if c.installs != installsAtStart {
		return
	}
	c.clearLocked()
}

func (c *Coordinator) clearLocked() {
	c.dataset = nil
	c.result = availability.Result{}
}

func (c *Coordinator) recomputeLocked() {
	if c.dataset == nil {
		c.result = availability.Result{}
		return
	}
	c.result = availability.ApplyFilters(*c.dataset, c.filters)
}

func (c *Coordinator) viewLocked() View {
	v := View{
		Mode:           c.mode,
		DistrictID:     c.districtID,
		Date:           c.date,
		Filters:        c.filters,
		Available:      c.result.Available,
		NotAvailable:   c.result.NotAvailable,
		InProgress:     c.inFlight > 0,
		DayStepVisible: c.mode == availability.SingleDay && c.dayStepVisible,
		Loaded:         c.dataset != nil,
	}
	if c.dataset != nil && c.dataset.Mode == availability.ByCenter {
		v.Date = c.dataset.Date
	}
	if len(c.result.Centers) > 0 {
		v.Centers = make([]model.Center, len(c.result.Centers))
		for i, center := range c.result.Centers {
			v.Centers[i] = center.Clone()
		}
	}
	return v
}
