package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"github.com/cowin-monitor/src/availability"
	"github.com/cowin-monitor/src/coordinator"
	model "github.com/cowin-monitor/src/model"
	"github.com/cowin-monitor/src/scheduler"
	"github.com/cowin-monitor/src/selection"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

type fakeLocations struct {
	err error
}

func (f *fakeLocations) States(ctx context.Context) ([]model.State, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.State{{StateID: 21, StateName: "Maharashtra"}}, nil
}

func (f *fakeLocations) Districts(ctx context.Context, stateID string) ([]model.District, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.District{{DistrictID: 363, DistrictName: "Pune"}}, nil
}

type fakeWatches struct {
	added   []scheduler.Watch
	removed []string
}

func (f *fakeWatches) Add(watch scheduler.Watch) { f.added = append(f.added, watch) }

func (f *fakeWatches) Remove(owner string) bool {
	for _, w := range f.added {
		if w.Owner == owner {
			f.removed = append(f.removed, owner)
			return true
		}
	}
	return false
}

type fixedFetcher struct {
	centers []model.Center
	err     error
}

func (f *fixedFetcher) FetchSingleDay(ctx context.Context, districtID, date string) (availability.Dataset, error) {
	if f.err != nil {
		return availability.Dataset{}, f.err
	}
	return availability.Dataset{Mode: availability.SingleDay, DistrictID: districtID, Date: date, Centers: f.centers}, nil
}

func (f *fixedFetcher) AggregateProjection(ctx context.Context, districtID string) (availability.Dataset, error) {
	if f.err != nil {
		return availability.Dataset{}, f.err
	}
	return availability.Dataset{Mode: availability.ByCenter, DistrictID: districtID, Date: "16-10-2026", Centers: f.centers}, nil
}

func testCenters() []model.Center {
	return []model.Center{
		{CenterID: 1, Name: "Aundh Hospital", Pincode: "411007", FeeType: model.FeeTypeFree, Sessions: []model.Session{
			{Date: "16-10-2026", AvailableCapacity: 4, MinAgeLimit: 18, Vaccine: "COVISHIELD"},
		}},
		{CenterID: 2, Name: "Baner Clinic", Pincode: "411045", FeeType: model.FeeTypePaid, VaccineFees: map[string]string{"COVAXIN": "1410"}, Sessions: []model.Session{
			{Date: "16-10-2026", AvailableCapacity: 0, MinAgeLimit: 45, Vaccine: "COVAXIN"},
		}},
	}
}

func newTestBot(fetcher *fixedFetcher, store selection.Store) (*Bot, *fakeWatches) {
	watches := &fakeWatches{}
	b := New(&fakeSender{}, &fakeLocations{}, store, watches, func() *coordinator.Coordinator {
		return coordinator.New(fetcher, fetcher, nil)
	}, nil)
	return b, watches
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text        string
		wantCommand string
		wantArgs    string
	}{
		{text: "/check", wantCommand: "check"},
		{text: "  /Search  Aundh Hospital ", wantCommand: "search", wantArgs: "Aundh Hospital"},
		{text: "/date@CowinBot 16-10-2026", wantCommand: "date", wantArgs: "16-10-2026"},
		{text: "hello", wantArgs: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			command, args := parseCommand(tt.text)
			if command != tt.wantCommand || args != tt.wantArgs {
				t.Fatalf("parseCommand(%q) = %q, %q", tt.text, command, args)
			}
		})
	}
}

func TestCheckRendersFilteredView(t *testing.T) {
	b, _ := newTestBot(&fixedFetcher{centers: testCenters()}, selection.NewMemoryStore())
	ctx := context.Background()

	b.Handle(ctx, 7, "/district 363")
	b.Handle(ctx, 7, "/date 2026-10-16")
	replies := b.Handle(ctx, 7, "/check")

	if len(replies) != 2 {
		t.Fatalf("expected summary and one chunk, got %d: %v", len(replies), replies)
	}
	if !strings.Contains(replies[0], "Available: 1 | Not available: 1") {
		t.Fatalf("unexpected summary %q", replies[0])
	}
	if !strings.Contains(replies[0], "16-10-2026") {
		t.Fatalf("date not normalised in summary %q", replies[0])
	}
	if strings.Index(replies[1], "Aundh") > strings.Index(replies[1], "Baner") {
		t.Fatalf("centers not sorted by name: %q", replies[1])
	}

	replies = b.Handle(ctx, 7, "/fee paid")
	if !strings.Contains(replies[0], "fee paid") || strings.Contains(replies[1], "Aundh") {
		t.Fatalf("fee filter not applied: %v", replies)
	}

	replies = b.Handle(ctx, 7, "/search nowhere")
	if len(replies) != 2 || replies[1] != noMatches {
		t.Fatalf("expected no matches reply, got %v", replies)
	}
}

func TestCheckWithoutSelection(t *testing.T) {
	b, _ := newTestBot(&fixedFetcher{}, selection.NewMemoryStore())

	replies := b.Handle(context.Background(), 7, "/check")
	if len(replies) != 1 || replies[0] != coordinator.ErrNoDistrict.Error() {
		t.Fatalf("unexpected replies %v", replies)
	}
}

func TestFailureReplies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "rate limited", err: &model.TransportError{Op: "calendarByDistrict", StatusCode: 403}, want: "rate limiting"},
		{name: "malformed", err: &model.MalformedResponseError{Op: "calendarByDistrict", Key: "centers"}, want: "unexpected response"},
		{name: "transport", err: errors.New("connection refused"), want: "could not reach"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBot(&fixedFetcher{err: tt.err}, selection.NewMemoryStore())
			b.Handle(context.Background(), 7, "/district 363")

			replies := b.Handle(context.Background(), 7, "/project")
			if len(replies) != 1 || !strings.Contains(replies[0], tt.want) {
				t.Fatalf("unexpected replies %v", replies)
			}
		})
	}
}

func TestSelectionRestoredForNewSession(t *testing.T) {
	store := selection.NewMemoryStore()
	fetcher := &fixedFetcher{centers: testCenters()}
	ctx := context.Background()

	first, _ := newTestBot(fetcher, store)
	first.Handle(ctx, 7, "/state 21")
	first.Handle(ctx, 7, "/district 363")
	first.Handle(ctx, 7, "/date 16-10-2026")

	saved, err := store.Load(ctx, "7")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := model.Selection{StateID: "21", DistrictID: "363", Date: "16-10-2026"}
	if saved != want {
		t.Fatalf("saved selection = %+v, want %+v", saved, want)
	}

	second, _ := newTestBot(fetcher, store)
	replies := second.Handle(ctx, 7, "/check")
	if len(replies) < 2 || !strings.Contains(replies[0], "district 363 on 16-10-2026") {
		t.Fatalf("selection not restored: %v", replies)
	}
}

func TestStepDayPersistsDate(t *testing.T) {
	store := selection.NewMemoryStore()
	b, _ := newTestBot(&fixedFetcher{centers: testCenters()}, store)
	ctx := context.Background()

	if replies := b.Handle(ctx, 7, "/next"); len(replies) != 1 {
		t.Fatalf("step before check should be rejected, got %v", replies)
	}

	b.Handle(ctx, 7, "/district 363")
	b.Handle(ctx, 7, "/date 16-10-2026")
	b.Handle(ctx, 7, "/check")
	b.Handle(ctx, 7, "/next")

	saved, err := store.Load(ctx, "7")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if saved.Date != "17-10-2026" {
		t.Fatalf("saved date = %q", saved.Date)
	}
}

func TestWatchCommands(t *testing.T) {
	b, watches := newTestBot(&fixedFetcher{}, selection.NewMemoryStore())
	ctx := context.Background()

	if replies := b.Handle(ctx, 7, "/watch"); replies[0] != coordinator.ErrNoDistrict.Error() {
		t.Fatalf("watch without district: %v", replies)
	}
	if replies := b.Handle(ctx, 7, "/unwatch"); replies[0] != "Nothing to stop." {
		t.Fatalf("unwatch without watch: %v", replies)
	}

	b.Handle(ctx, 7, "/district 363")
	b.Handle(ctx, 7, "/age 18")
	b.Handle(ctx, 7, "/watch")
	if len(watches.added) != 1 {
		t.Fatalf("expected one watch, got %+v", watches.added)
	}
	got := watches.added[0]
	if got.Owner != "7" || got.DistrictID != "363" || got.Filters.Age != availability.Only18 {
		t.Fatalf("unexpected watch %+v", got)
	}

	if replies := b.Handle(ctx, 7, "/unwatch"); replies[0] != "Stopped watching." {
		t.Fatalf("unexpected unwatch reply %v", replies)
	}
}

func TestNotify(t *testing.T) {
	sender := &fakeSender{}
	b := New(sender, &fakeLocations{}, selection.NewMemoryStore(), &fakeWatches{}, nil, nil)

	dataset := availability.Dataset{Mode: availability.ByCenter, DistrictID: "363", Date: "16-10-2026", Centers: testCenters()}
	result := availability.ApplyFilters(dataset, availability.FilterState{})

	if err := b.Notify(scheduler.Watch{Owner: "not-a-chat"}, dataset, result); err == nil {
		t.Fatal("expected an error for an invalid owner")
	}
	if err := b.Notify(scheduler.Watch{Owner: "7", DistrictID: "363"}, dataset, result); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(sender.sent) != 3 {
		t.Fatalf("expected alert, summary and one chunk, got %d", len(sender.sent))
	}
	if sender.sent[0].ChatID != 7 {
		t.Fatalf("sent to chat %d", sender.sent[0].ChatID)
	}
}

func TestRenderViewChunks(t *testing.T) {
	centers := make([]model.Center, centersPerMessage+2)
	for i := range centers {
		centers[i] = model.Center{CenterID: i + 1, Name: "Center", Sessions: []model.Session{{AvailableCapacity: 1}}}
	}

	messages := RenderView(coordinator.View{Mode: availability.ByCenter, Centers: centers, Loaded: true})
	if len(messages) != 3 {
		t.Fatalf("expected summary and two chunks, got %d", len(messages))
	}
	if strings.Count(messages[2], "Center (") != 2 {
		t.Fatalf("unexpected last chunk %q", messages[2])
	}

	messages = RenderView(coordinator.View{})
	if len(messages) != 1 {
		t.Fatalf("view that has not loaded should only carry a summary, got %v", messages)
	}
}

func TestRenderCenterModes(t *testing.T) {
	c := model.Center{Name: "Aundh", Pincode: "411007", FeeType: model.FeeTypePaid, VaccineFees: map[string]string{"COVAXIN": "1410"},
		Sessions: []model.Session{
			{Date: "16-10-2026", AvailableCapacity: 2, MinAgeLimit: 18, Vaccine: "COVAXIN"},
			{Date: "23-10-2026", AvailableCapacity: 5, MinAgeLimit: 18, Vaccine: "COVAXIN"},
		}}

	single := renderCenter(c, availability.SingleDay)
	if !strings.Contains(single, "Available: 2") || !strings.Contains(single, "COVAXIN ₹1410") {
		t.Fatalf("unexpected single day rendering %q", single)
	}

	byCenter := renderCenter(c, availability.ByCenter)
	if !strings.Contains(byCenter, "Total available: 7") || !strings.Contains(byCenter, "23-10-2026: 5") {
		t.Fatalf("unexpected projection rendering %q", byCenter)
	}
}

func TestDateAfterProjectionKeepsPickedDate(t *testing.T) {
	store := selection.NewMemoryStore()
	b, _ := newTestBot(&fixedFetcher{centers: testCenters()}, store)
	ctx := context.Background()

	b.Handle(ctx, 7, "/district 363")
	b.Handle(ctx, 7, "/project")
	replies := b.Handle(ctx, 7, "/date 25-12-2026")
	if len(replies) != 1 || replies[0] != "Date set to 25-12-2026." {
		t.Fatalf("unexpected reply %v", replies)
	}

	saved, err := store.Load(ctx, "7")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if saved.Date != "25-12-2026" {
		t.Fatalf("saved date = %q, want 25-12-2026", saved.Date)
	}
}

func TestStateChangeClearsDistrict(t *testing.T) {
	store := selection.NewMemoryStore()
	b, _ := newTestBot(&fixedFetcher{centers: testCenters()}, store)
	ctx := context.Background()

	b.Handle(ctx, 7, "/state 21")
	b.Handle(ctx, 7, "/district 363")
	b.Handle(ctx, 7, "/state 21")

	saved, _ := store.Load(ctx, "7")
	if saved.DistrictID != "363" {
		t.Fatalf("picking the same state dropped the district: %+v", saved)
	}

	b.Handle(ctx, 7, "/state 22")
	saved, _ = store.Load(ctx, "7")
	if saved.StateID != "22" || saved.DistrictID != "" {
		t.Fatalf("saved selection = %+v, want state 22 and no district", saved)
	}
	if replies := b.Handle(ctx, 7, "/project"); replies[0] != coordinator.ErrNoDistrict.Error() {
		t.Fatalf("district still selected after state change: %v", replies)
	}
}

// gatedStore holds every Load until release is closed.
type gatedStore struct {
	*selection.MemoryStore
	loading chan struct{}
	release chan struct{}
}

func (g *gatedStore) Load(ctx context.Context, owner string) (model.Selection, error) {
	g.loading <- struct{}{}
	<-g.release
	return g.MemoryStore.Load(ctx, owner)
}

func TestConcurrentFirstMessagesSeeRestoredSelection(t *testing.T) {
	memory := selection.NewMemoryStore()
	ctx := context.Background()
	memory.Save(ctx, "7", model.Selection{DistrictID: "363", Date: "16-10-2026"})
	store := &gatedStore{MemoryStore: memory, loading: make(chan struct{}, 2), release: make(chan struct{})}
	b, _ := newTestBot(&fixedFetcher{centers: testCenters()}, store)

	var wg sync.WaitGroup
	replies := make([][]string, 2)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i] = b.Handle(ctx, 7, "/check")
		}(i)
	}
	<-store.loading
	<-store.loading
	close(store.release)
	wg.Wait()

	for i, r := range replies {
		if len(r) < 2 || !strings.Contains(r[0], "district 363 on 16-10-2026") {
			t.Fatalf("message %d ran before the selection was restored: %v", i, r)
		}
	}
}

func TestRenderViewRespectsMessageLimit(t *testing.T) {
	sessions := make([]model.Session, 0, 8*7)
	for day := 0; day < 8*7; day++ {
		sessions = append(sessions, model.Session{
			Date:              fmt.Sprintf("%02d-11-2026", day%30+1),
			AvailableCapacity: 10,
			MinAgeLimit:       18,
			Vaccine:           "COVISHIELD",
		})
	}
	centers := make([]model.Center, centersPerMessage)
	for i := range centers {
		centers[i] = model.Center{CenterID: i + 1, Name: fmt.Sprintf("Urban Primary Health Center %d", i), Pincode: "411007",
			BlockName: "Haveli", DistrictName: "Pune", FeeType: model.FeeTypeFree, Sessions: sessions}
	}

	huge := model.Center{CenterID: 99, Name: "Huge", Sessions: make([]model.Session, 400)}
	for i := range huge.Sessions {
		huge.Sessions[i] = model.Session{Date: "16-10-2026", AvailableCapacity: 1, MinAgeLimit: 45}
	}
	centers = append(centers, huge)

	messages := RenderView(coordinator.View{Mode: availability.ByCenter, Centers: centers, Loaded: true})
	sessionLines := 0
	for i, msg := range messages {
		if n := utf8.RuneCountInString(msg); n > maxMessageRunes {
			t.Fatalf("message %d has %d characters", i, n)
		}
		if msg == "" {
			t.Fatalf("message %d is empty", i)
		}
		sessionLines += strings.Count(msg, "2026: ")
	}
	if want := centersPerMessage*len(sessions) + len(huge.Sessions); sessionLines != want {
		t.Fatalf("rendered %d session lines, want %d", sessionLines, want)
	}
}
