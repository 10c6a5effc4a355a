// Package bot is the Telegram front end. Each chat gets its own coordinator;
// the chat's last selection is restored from the selection store on first
// contact and written back whenever it changes.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	"github.com/cowin-monitor/src/availability"
	"github.com/cowin-monitor/src/coordinator"
	model "github.com/cowin-monitor/src/model"
	"github.com/cowin-monitor/src/scheduler"
	"github.com/cowin-monitor/src/selection"
)

const helpText = `Find vaccination slots by district.

/states - list states
/state <id> - pick a state and list its districts
/district <id> - pick a district
/date <DD-MM-YYYY> - pick a date
/check - availability on the picked date
/prev, /next - move one day and check again
/project - availability over the next 8 weeks, one entry per center
/fee <any|free|paid>
/age <any|18|45>
/vaccine <name|any>
/search <text> - filter by name or pincode, empty to clear
/available <on|off> - hide centers without slots
/show - show the current list again
/watch - get a message when slots open in the projection
/unwatch - stop watching`

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Locations interface {
	States(ctx context.Context) ([]model.State, error)
	Districts(ctx context.Context, stateID string) ([]model.District, error)
}

type Watches interface {
	Add(watch scheduler.Watch)
	Remove(owner string) bool
}

type session struct {
	mu        sync.Mutex
	coord     *coordinator.Coordinator
	selection model.Selection
}

type Bot struct {
	api        Sender
	locations  Locations
	store      selection.Store
	watches    Watches
	newSession func() *coordinator.Coordinator
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

func New(api Sender, locations Locations, store selection.Store, watches Watches, newSession func() *coordinator.Coordinator, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:        api,
		locations:  locations,
		store:      store,
		watches:    watches,
		newSession: newSession,
		logger:     logger,
		sessions:   make(map[int64]*session),
	}
}

func owner(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// session returns the chat's session, restoring its saved selection before
// the session is visible to other messages of the same chat.
func (b *Bot) session(ctx context.Context, chatID int64) *session {
	b.mu.Lock()
	s, ok := b.sessions[chatID]
	b.mu.Unlock()
	if ok {
		return s
	}

	s = &session{coord: b.newSession()}
	b.restore(ctx, chatID, s)

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.sessions[chatID]; ok {
		return existing
	}
	b.sessions[chatID] = s
	return s
}

func (b *Bot) restore(ctx context.Context, chatID int64, s *session) {
	saved, err := b.store.Load(ctx, owner(chatID))
	switch {
	case errors.Is(err, model.ErrSelectionNotFound):
		return
	case err != nil:
		b.logger.Warn("loading selection failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}

	s.selection = saved
	if saved.DistrictID != "" {
		s.coord.SelectDistrict(saved.DistrictID)
	}
	if saved.Date != "" {
		if err := s.coord.SelectDate(saved.Date); err != nil {
			b.logger.Warn("ignoring saved date", zap.String("date", saved.Date), zap.Error(err))
		}
	}
}

func (b *Bot) remember(ctx context.Context, chatID int64, s *session, update func(*model.Selection)) {
	s.mu.Lock()
	update(&s.selection)
	saved := s.selection
	s.mu.Unlock()

	if err := b.store.Save(ctx, owner(chatID), saved); err != nil {
		b.logger.Warn("saving selection failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	command, args, _ := strings.Cut(text[1:], " ")
	// Commands in groups arrive as /check@BotName.
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(args)
}

// Handle runs one chat message and returns the replies to send.
func (b *Bot) Handle(ctx context.Context, chatID int64, text string) []string {
	command, args := parseCommand(text)
	s := b.session(ctx, chatID)

	switch command {
	case "", "start", "help":
		return []string{helpText}

	case "states":
		states, err := b.locations.States(ctx)
		if err != nil {
			return b.failure(chatID, "Could not load states", err)
		}
		return []string{renderStates(states)}

	case "state":
		if args == "" {
			return []string{"Usage: /state <id>"}
		}
		districts, err := b.locations.Districts(ctx, args)
		if err != nil {
			return b.failure(chatID, "Could not load districts", err)
		}
		stateChanged := false
		b.remember(ctx, chatID, s, func(sel *model.Selection) {
			if sel.StateID != args {
				// A district belongs to one state.
				stateChanged = true
				sel.DistrictID = ""
			}
			sel.StateID = args
		})
		if stateChanged {
			s.coord.SelectDistrict("")
		}
		return []string{renderDistricts(districts)}

	case "district":
		if args == "" {
			return []string{"Usage: /district <id>"}
		}
		s.coord.SelectDistrict(args)
		b.remember(ctx, chatID, s, func(sel *model.Selection) { sel.DistrictID = args })
		return []string{fmt.Sprintf("District set to %s. Use /date and /check, or /project.", args)}

	case "date":
		if err := s.coord.SelectDate(args); err != nil {
			return []string{err.Error()}
		}
		date := s.coord.SelectedDate()
		b.remember(ctx, chatID, s, func(sel *model.Selection) { sel.Date = date })
		return []string{"Date set to " + date + "."}

	case "check":
		return b.fetched(chatID, "Check failed")(s.coord.Check(ctx))

	case "next", "prev":
		days := 1
		if command == "prev" {
			days = -1
		}
		view, err := s.coord.StepDay(ctx, days)
		if err == nil {
			b.remember(ctx, chatID, s, func(sel *model.Selection) { sel.Date = view.Date })
		}
		return b.fetched(chatID, "Check failed")(view, err)

	case "project":
		return b.fetched(chatID, "Projection failed")(s.coord.Project(ctx))

	case "fee":
		fee, err := availability.ParseFeeFilter(args)
		if err != nil {
			return []string{err.Error()}
		}
		return RenderView(s.coord.UpdateFilters(func(f *availability.FilterState) { f.Fee = fee }))

	case "age":
		age, err := availability.ParseAgeFilter(args)
		if err != nil {
			return []string{err.Error()}
		}
		return RenderView(s.coord.UpdateFilters(func(f *availability.FilterState) { f.Age = age }))

	case "vaccine":
		vaccine := args
		if strings.EqualFold(vaccine, "any") {
			vaccine = ""
		}
		return RenderView(s.coord.UpdateFilters(func(f *availability.FilterState) { f.Vaccine = vaccine }))

	case "search":
		return RenderView(s.coord.UpdateFilters(func(f *availability.FilterState) { f.Search = args }))

	case "available":
		var on bool
		switch strings.ToLower(args) {
		case "", "on", "yes", "true":
			on = true
		case "off", "no", "false":
		default:
			return []string{"Usage: /available <on|off>"}
		}
		return RenderView(s.coord.UpdateFilters(func(f *availability.FilterState) { f.AvailableOnly = on }))

	case "show":
		view := s.coord.View()
		if view.InProgress {
			return []string{"Still fetching, try again in a moment."}
		}
		return RenderView(view)

	case "watch":
		view := s.coord.View()
		if view.DistrictID == "" {
			return []string{coordinator.ErrNoDistrict.Error()}
		}
		b.watches.Add(scheduler.Watch{Owner: owner(chatID), DistrictID: view.DistrictID, Filters: view.Filters})
		return []string{fmt.Sprintf("Watching district %s. You will get a message when slots open.", view.DistrictID)}

	case "unwatch":
		if !b.watches.Remove(owner(chatID)) {
			return []string{"Nothing to stop."}
		}
		return []string{"Stopped watching."}

	default:
		return []string{"Unknown command. " + helpText}
	}
}

func (b *Bot) fetched(chatID int64, prefix string) func(coordinator.View, error) []string {
	return func(view coordinator.View, err error) []string {
		switch {
		case errors.Is(err, coordinator.ErrNoDistrict), errors.Is(err, coordinator.ErrNoDate), errors.Is(err, coordinator.ErrDayStepUnavailable):
			return []string{err.Error()}
		case err != nil:
			return b.failure(chatID, prefix, err)
		}
		return RenderView(view)
	}
}

func (b *Bot) failure(chatID int64, prefix string, err error) []string {
	b.logger.Warn(prefix, zap.Int64("chat_id", chatID), zap.Error(err))
	if errors.Is(err, model.ErrRateLimited) {
		return []string{prefix + ": the CoWIN API is rate limiting us, retry in a few minutes."}
	}
	var malformed *model.MalformedResponseError
	if errors.As(err, &malformed) {
		return []string{prefix + ": the CoWIN API sent an unexpected response."}
	}
	return []string{prefix + ": could not reach the CoWIN API, please retry."}
}

func (b *Bot) send(chatID int64, replyTo int, replies []string) {
	for _, text := range replies {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyToMessageID = replyTo
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Warn("sending message failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

// Run answers updates until ctx is done or the channel closes. Messages are
// handled concurrently.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			message := update.Message
			b.logger.Debug("message received", zap.Int64("chat_id", message.Chat.ID), zap.String("text", message.Text))

			wg.Add(1)
			go func() {
				defer wg.Done()
				b.send(message.Chat.ID, message.MessageID, b.Handle(ctx, message.Chat.ID, message.Text))
			}()
		}
	}
}

// Notify implements scheduler.Notifier.
func (b *Bot) Notify(watch scheduler.Watch, dataset availability.Dataset, result availability.Result) error {
	chatID, err := strconv.ParseInt(watch.Owner, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", watch.Owner, err)
	}

	view := coordinator.View{
		Mode:         dataset.Mode,
		DistrictID:   dataset.DistrictID,
		Date:         dataset.Date,
		Filters:      watch.Filters,
		Centers:      result.Centers,
		Available:    result.Available,
		NotAvailable: result.NotAvailable,
		Loaded:       true,
	}
	replies := append([]string{"Slots are open in a watched district."}, RenderView(view)...)
	b.send(chatID, 0, replies)
	return nil
}
