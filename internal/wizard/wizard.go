// Package wizard drives the multi-turn parameter collection flow. The engine
// keeps no per-conversation state in memory: the step a participant is on is
// derived on every turn from which columns of the current session record are
// still blank, so a restart mid-conversation resumes exactly where the
// participant left off.
package wizard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/bionicsv26/telegram-bot/internal/calendar"
	"github.com/bionicsv26/telegram-bot/internal/chat"
	"github.com/bionicsv26/telegram-bot/internal/fields"
	"github.com/bionicsv26/telegram-bot/internal/provider"
	"github.com/bionicsv26/telegram-bot/internal/session"
)

// Searcher is the slice of the orchestrator the wizard drives.
type Searcher interface {
	SearchCity(ctx context.Context, chatID string) ([]provider.City, error)
	RunSearch(ctx context.Context, chatID string) error
}

// Step identifies the next input the wizard is waiting for.
type Step int

const (
	StepCity Step = iota
	StepCityPick
	StepHotelCount
	StepPhotoPrompt
	StepPhotoCount
	StepGuests
	StepCheckIn
	StepCheckOut
	StepPriceMin
	StepPriceMax
	StepDistance
	StepDone
)

// Photo-branch sentinels stored in the hotel_pics column. Blank means the
// yes/no question has not been asked yet; a real count replaces the pending
// marker once the participant answers it.
const (
	picsPending = "?"
	picsNone    = "0"
)

// Callback payload prefixes.
const (
	cityPrefix = "city;"
	photosYes  = "photos;yes"
	photosNo   = "photos;no"
)

const bestdealSort = "DISTANCE_FROM_LANDMARK"

const (
	msgAskCity       = "Which city are you looking for a hotel in?"
	msgCityNotFound  = "Could not find that city. Try typing the name again."
	msgPickCity      = "Pick the city you meant:"
	msgAskHotels     = "How many hotels should I show? (1 to 25)"
	msgAskPhotos     = "Show photos for each hotel?"
	msgAskPhotoCount = "How many photos per hotel? (1 to 10)"
	msgAskGuests     = "How many guests? (1 to 10)"
	msgAskCheckIn    = "Choose the check-in date:"
	msgAskCheckOut   = "Choose the check-out date:"
	msgAskDistance   = "Maximum distance from the centre, in miles?"
	msgBadDates      = "Check-out must be after check-in. Choose the dates again."
	msgDateTooEarly  = "That date is not available. Pick a later one."
	msgUseButtons    = "Please use the buttons above."
)

// Engine collects search parameters one turn at a time and hands the
// completed record to the orchestrator.
type Engine struct {
	db      *gorm.DB
	adapter chat.Adapter
	orch    Searcher
	now     func() time.Time
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	DB           *gorm.DB
	Adapter      chat.Adapter
	Orchestrator Searcher
	Now          func() time.Time // defaults to time.Now
}

// New creates an Engine.
func New(opts Opts) (*Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("wizard: db is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("wizard: adapter is required")
	}
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("wizard: orchestrator is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{db: opts.DB, adapter: opts.Adapter, orch: opts.Orchestrator, now: now}, nil
}

// Start opens a fresh session record with the chosen sort strategy and asks
// for the city. Any earlier unfinished record for the chat is abandoned.
func (e *Engine) Start(ctx context.Context, chatID, sortOrder string) error {
	if _, err := session.Begin(e.db, chatID, sortOrder); err != nil {
		return err
	}
	_, err := e.adapter.SendText(ctx, chatID, msgAskCity)
	return err
}

// stepFor derives the current step from the blank columns of the record.
func (e *Engine) stepFor(chatID string) (Step, error) {
	get := func(f fields.Field) (string, error) { return session.Get(e.db, chatID, f) }

	if v, err := get(fields.Query); err != nil || v == "" {
		return StepCity, err
	}
	if v, err := get(fields.CityID); err != nil || v == "" {
		return StepCityPick, err
	}
	if v, err := get(fields.NumberHotels); err != nil || v == "" {
		return StepHotelCount, err
	}
	pics, err := get(fields.HotelPics)
	if err != nil {
		return StepPhotoPrompt, err
	}
	switch pics {
	case "":
		return StepPhotoPrompt, nil
	case picsPending:
		return StepPhotoCount, nil
	}
	if v, err := get(fields.NumberPersons); err != nil || v == "" {
		return StepGuests, err
	}
	if v, err := get(fields.CheckIn); err != nil || v == "" {
		return StepCheckIn, err
	}
	if v, err := get(fields.CheckOut); err != nil || v == "" {
		return StepCheckOut, err
	}
	sortOrder, err := get(fields.SortOrder)
	if err != nil {
		return StepDone, err
	}
	if sortOrder == bestdealSort {
		if v, err := get(fields.PriceStart); err != nil || v == "" {
			return StepPriceMin, err
		}
		if v, err := get(fields.PriceStop); err != nil || v == "" {
			return StepPriceMax, err
		}
		if v, err := get(fields.Distance); err != nil || v == "" {
			return StepDistance, err
		}
	}
	return StepDone, nil
}

// priceUnit returns the currency phrasing for price prompts in the locale
// the city search inferred.
func (e *Engine) priceUnit(chatID string) (string, error) {
	locale, err := session.Get(e.db, chatID, fields.Locale)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(locale, "ru") {
		return "rubles", nil
	}
	return "dollars", nil
}

func (e *Engine) askPriceMin(ctx context.Context, chatID string) error {
	unit, err := e.priceUnit(chatID)
	if err != nil {
		return err
	}
	_, err = e.adapter.SendText(ctx, chatID, fmt.Sprintf("Minimum price per night, in %s?", unit))
	return err
}

func (e *Engine) askPriceMax(ctx context.Context, chatID string) error {
	unit, err := e.priceUnit(chatID)
	if err != nil {
		return err
	}
	_, err = e.adapter.SendText(ctx, chatID, fmt.Sprintf("Maximum price per night, in %s?", unit))
	return err
}

// HandleText processes a plain text turn: validate the input for the current
// step, store it, and send the next prompt. Invalid input re-prompts the same
// step. Returns session.ErrNoSession when the chat has no record yet.
func (e *Engine) HandleText(ctx context.Context, chatID, text string) error {
	step, err := e.stepFor(chatID)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)

	switch step {
	case StepCity:
		return e.handleCity(ctx, chatID, text)

	case StepHotelCount:
		n, perr := parseCount(text, MinHotels, MaxHotels)
		if perr != nil {
			return e.reprompt(ctx, chatID, msgAskHotels)
		}
		if err := session.Set(e.db, chatID, fields.NumberHotels, strconv.Itoa(n)); err != nil {
			return err
		}
		return e.askPhotos(ctx, chatID)

	case StepPhotoCount:
		n, perr := parseCount(text, MinPhotos, MaxPhotos)
		if perr != nil {
			return e.reprompt(ctx, chatID, msgAskPhotoCount)
		}
		if err := session.Set(e.db, chatID, fields.HotelPics, strconv.Itoa(n)); err != nil {
			return err
		}
		_, err := e.adapter.SendText(ctx, chatID, msgAskGuests)
		return err

	case StepGuests:
		n, perr := parseCount(text, MinGuests, MaxGuests)
		if perr != nil {
			return e.reprompt(ctx, chatID, msgAskGuests)
		}
		if err := session.Set(e.db, chatID, fields.NumberPersons, strconv.Itoa(n)); err != nil {
			return err
		}
		return e.askCheckIn(ctx, chatID)

	case StepPriceMin:
		n, perr := parsePrice(text)
		if perr != nil {
			return e.askPriceMin(ctx, chatID)
		}
		if err := session.SetFloat(e.db, chatID, fields.PriceStart, float64(n)); err != nil {
			return err
		}
		return e.askPriceMax(ctx, chatID)

	case StepPriceMax:
		return e.handlePriceMax(ctx, chatID, text)

	case StepDistance:
		v, perr := parseDistance(text)
		if perr != nil {
			return e.reprompt(ctx, chatID, msgAskDistance)
		}
		if err := session.SetFloat(e.db, chatID, fields.Distance, v); err != nil {
			return err
		}
		return e.orch.RunSearch(ctx, chatID)

	case StepCheckIn, StepCheckOut:
		// Typed dates are accepted alongside the picker; platforms with
		// small keyboard limits depend on this.
		return e.handleTypedDate(ctx, chatID, step, text)

	default:
		// A keyboard is on screen; typed text cannot advance the flow.
		_, err := e.adapter.SendText(ctx, chatID, msgUseButtons)
		return err
	}
}

// handleCity stores the typed city, infers locale and currency from its
// script, and offers the provider's candidate cities on a keyboard. An empty
// candidate list clears the stored name so the step repeats.
func (e *Engine) handleCity(ctx context.Context, chatID, text string) error {
	if text == "" {
		return e.reprompt(ctx, chatID, msgAskCity)
	}
	locale, currency := localeFor(text)
	if err := session.Set(e.db, chatID, fields.Query, text); err != nil {
		return err
	}
	if err := session.Set(e.db, chatID, fields.Locale, locale); err != nil {
		return err
	}
	if err := session.Set(e.db, chatID, fields.Currency, currency); err != nil {
		return err
	}

	cities, err := e.orch.SearchCity(ctx, chatID)
	if err != nil {
		return err
	}
	if len(cities) == 0 {
		if err := session.Set(e.db, chatID, fields.Query, ""); err != nil {
			return err
		}
		return e.reprompt(ctx, chatID, msgCityNotFound)
	}

	buttons := make([]chat.Button, 0, len(cities))
	for _, c := range cities {
		buttons = append(buttons, chat.Button{Label: c.Caption, Data: cityPrefix + c.ID})
	}
	_, err = e.adapter.SendKeyboard(ctx, chatID, msgPickCity, chat.NewKeyboard(1, buttons...))
	return err
}

// handlePriceMax enforces max > min. On violation both bounds are cleared
// and the flow returns to the minimum prompt.
func (e *Engine) handlePriceMax(ctx context.Context, chatID, text string) error {
	n, perr := parsePrice(text)
	if perr != nil {
		return e.askPriceMax(ctx, chatID)
	}
	minPrice, _, err := session.GetFloat(e.db, chatID, fields.PriceStart)
	if err != nil {
		return err
	}
	if float64(n) <= minPrice {
		if err := session.Set(e.db, chatID, fields.PriceStart, ""); err != nil {
			return err
		}
		if _, err := e.adapter.SendText(ctx, chatID, "The maximum must be higher than the minimum. Let's try again."); err != nil {
			return err
		}
		return e.askPriceMin(ctx, chatID)
	}
	if err := session.SetFloat(e.db, chatID, fields.PriceStop, float64(n)); err != nil {
		return err
	}
	_, err = e.adapter.SendText(ctx, chatID, msgAskDistance)
	return err
}

// HandleCallback processes an inline-button selection: city picks, the photo
// yes/no answer, and calendar interaction. Unrecognized payloads are ignored.
func (e *Engine) HandleCallback(ctx context.Context, chatID, messageID, data string) error {
	switch {
	case strings.HasPrefix(data, cityPrefix):
		step, err := e.stepFor(chatID)
		if err != nil {
			return err
		}
		if step != StepCityPick {
			return nil // stale button from an earlier flow
		}
		if err := session.Set(e.db, chatID, fields.CityID, strings.TrimPrefix(data, cityPrefix)); err != nil {
			return err
		}
		_, err = e.adapter.SendText(ctx, chatID, msgAskHotels)
		return err

	case data == photosYes, data == photosNo:
		step, err := e.stepFor(chatID)
		if err != nil {
			return err
		}
		if step != StepPhotoPrompt {
			return nil // stale button from an earlier flow
		}
		if data == photosYes {
			if err := session.Set(e.db, chatID, fields.HotelPics, picsPending); err != nil {
				return err
			}
			_, err := e.adapter.SendText(ctx, chatID, msgAskPhotoCount)
			return err
		}
		if err := session.Set(e.db, chatID, fields.HotelPics, picsNone); err != nil {
			return err
		}
		_, err = e.adapter.SendText(ctx, chatID, msgAskGuests)
		return err

	case calendar.IsCalendarData(data):
		return e.handleCalendar(ctx, chatID, messageID, data)
	}
	return nil
}

// askPhotos sends the photo yes/no keyboard.
func (e *Engine) askPhotos(ctx context.Context, chatID string) error {
	kb := chat.NewKeyboard(2,
		chat.Button{Label: "Yes", Data: photosYes},
		chat.Button{Label: "No", Data: photosNo},
	)
	_, err := e.adapter.SendKeyboard(ctx, chatID, msgAskPhotos, kb)
	return err
}

// askCheckIn sends a fresh check-in calendar keyboard starting today.
func (e *Engine) askCheckIn(ctx context.Context, chatID string) error {
	locale, err := session.Get(e.db, chatID, fields.Locale)
	if err != nil {
		return err
	}
	_, err = e.adapter.SendKeyboard(ctx, chatID, msgAskCheckIn, calendar.Build(locale, e.now()))
	return err
}

// dateMin resolves the lower bound for the date step: today for check-in,
// the day after the stored check-in for check-out. ok is false when the
// step is not a date step or check-in is missing.
func (e *Engine) dateMin(chatID string, step Step) (time.Time, bool, error) {
	switch step {
	case StepCheckIn:
		return e.now(), true, nil
	case StepCheckOut:
		checkIn, ok, err := session.GetDate(e.db, chatID, fields.CheckIn)
		if err != nil || !ok {
			return time.Time{}, false, err
		}
		return checkIn.AddDate(0, 0, 1), true, nil
	}
	return time.Time{}, false, nil
}

// applyDate stores the chosen date and moves the flow along: a check-in
// leads to the check-out picker, a check-out into validation and dispatch.
func (e *Engine) applyDate(ctx context.Context, chatID string, step Step, date time.Time) error {
	if step == StepCheckIn {
		if err := session.SetDate(e.db, chatID, fields.CheckIn, date); err != nil {
			return err
		}
		locale, err := session.Get(e.db, chatID, fields.Locale)
		if err != nil {
			return err
		}
		_, err = e.adapter.SendKeyboard(ctx, chatID, msgAskCheckOut,
			calendar.Build(locale, date.AddDate(0, 0, 1)))
		return err
	}
	if err := session.SetDate(e.db, chatID, fields.CheckOut, date); err != nil {
		return err
	}
	return e.afterDates(ctx, chatID)
}

// handleTypedDate accepts a date typed during a calendar step.
func (e *Engine) handleTypedDate(ctx context.Context, chatID string, step Step, text string) error {
	date, err := time.Parse(fields.DateLayout, text)
	if err != nil {
		return e.reprompt(ctx, chatID, msgUseButtons)
	}
	minDate, ok, err := e.dateMin(chatID, step)
	if err != nil {
		return err
	}
	minDay := time.Date(minDate.Year(), minDate.Month(), minDate.Day(), 0, 0, 0, 0, time.UTC)
	if !ok || date.Before(minDay) {
		return e.reprompt(ctx, chatID, msgDateTooEarly)
	}
	return e.applyDate(ctx, chatID, step, date)
}

// handleCalendar routes a calendar payload to the right date step. The
// check-out calendar never offers days at or before the stored check-in.
func (e *Engine) handleCalendar(ctx context.Context, chatID, messageID, data string) error {
	step, err := e.stepFor(chatID)
	if err != nil {
		return err
	}
	minDate, ok, err := e.dateMin(chatID, step)
	if err != nil {
		return err
	}
	if !ok {
		return nil // stale calendar from an earlier flow
	}
	locale, err := session.Get(e.db, chatID, fields.Locale)
	if err != nil {
		return err
	}

	res, err := calendar.Process(data, locale, minDate)
	if err != nil {
		return err
	}
	if res.Redisplay != nil {
		text := msgAskCheckIn
		if step == StepCheckOut {
			text = msgAskCheckOut
		}
		return e.adapter.EditMessage(ctx, chatID, messageID, text, res.Redisplay)
	}
	if !res.Chosen {
		return nil
	}
	return e.applyDate(ctx, chatID, step, res.Date)
}

// afterDates validates the stored date pair and either continues into the
// price questions (distance-sorted searches) or launches the search.
func (e *Engine) afterDates(ctx context.Context, chatID string) error {
	checkIn, okIn, err := session.GetDate(e.db, chatID, fields.CheckIn)
	if err != nil {
		return err
	}
	checkOut, okOut, err := session.GetDate(e.db, chatID, fields.CheckOut)
	if err != nil {
		return err
	}
	if !okIn || !okOut || !datesValid(checkIn, checkOut) {
		if err := session.Set(e.db, chatID, fields.CheckIn, ""); err != nil {
			return err
		}
		if err := session.Set(e.db, chatID, fields.CheckOut, ""); err != nil {
			return err
		}
		if _, err := e.adapter.SendText(ctx, chatID, msgBadDates); err != nil {
			return err
		}
		return e.askCheckIn(ctx, chatID)
	}

	sortOrder, err := session.Get(e.db, chatID, fields.SortOrder)
	if err != nil {
		return err
	}
	if sortOrder == bestdealSort {
		return e.askPriceMin(ctx, chatID)
	}
	return e.orch.RunSearch(ctx, chatID)
}

// reprompt re-sends the prompt for the step the participant failed.
func (e *Engine) reprompt(ctx context.Context, chatID, prompt string) error {
	_, err := e.adapter.SendText(ctx, chatID, prompt)
	return err
}
