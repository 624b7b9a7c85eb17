package wizard

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bionicsv26/telegram-bot/internal/chat"
	"github.com/bionicsv26/telegram-bot/internal/fields"
	"github.com/bionicsv26/telegram-bot/internal/models"
	"github.com/bionicsv26/telegram-bot/internal/provider"
	"github.com/bionicsv26/telegram-bot/internal/session"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.SearchSession{}, &models.HistoryQuery{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

// fakeSearcher stands in for the orchestrator.
type fakeSearcher struct {
	cities    []provider.City
	ranSearch []string
}

func (f *fakeSearcher) SearchCity(_ context.Context, _ string) ([]provider.City, error) {
	return f.cities, nil
}

func (f *fakeSearcher) RunSearch(_ context.Context, chatID string) error {
	f.ranSearch = append(f.ranSearch, chatID)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T, gdb *gorm.DB, search *fakeSearcher) (*Engine, *chat.MockAdapter) {
	t.Helper()
	adapter := chat.NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	eng, err := New(Opts{DB: gdb, Adapter: adapter, Orchestrator: search, Now: fixedNow})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, adapter
}

func mustGet(t *testing.T, gdb *gorm.DB, chatID string, f fields.Field) string {
	t.Helper()
	v, err := session.Get(gdb, chatID, f)
	if err != nil {
		t.Fatalf("Get %s: %v", f, err)
	}
	return v
}

func TestStart_PromptsForCity(t *testing.T) {
	gdb := openTestDB(t)
	eng, adapter := newTestEngine(t, gdb, &fakeSearcher{})

	if err := eng.Start(context.Background(), "7", "PRICE"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := adapter.LastSent().Text; got != msgAskCity {
		t.Errorf("prompt = %q, want %q", got, msgAskCity)
	}
	if got := mustGet(t, gdb, "7", fields.SortOrder); got != "PRICE" {
		t.Errorf("sort_order = %q, want PRICE", got)
	}
}

func TestHandleText_NoSession(t *testing.T) {
	gdb := openTestDB(t)
	eng, _ := newTestEngine(t, gdb, &fakeSearcher{})

	err := eng.HandleText(context.Background(), "7", "Paris")
	if err != session.ErrNoSession {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestCityStep_OffersCandidates(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{
		{Caption: "Paris, France", ID: "1153"},
		{Caption: "Paris, Texas", ID: "9022"},
	}}
	eng, adapter := newTestEngine(t, gdb, search)
	ctx := context.Background()

	if err := eng.Start(ctx, "7", "PRICE"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.HandleText(ctx, "7", "Paris"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}

	if got := mustGet(t, gdb, "7", fields.Locale); got != "en_US" {
		t.Errorf("locale = %q, want en_US", got)
	}
	if got := mustGet(t, gdb, "7", fields.Currency); got != "USD" {
		t.Errorf("currency = %q, want USD", got)
	}

	last := adapter.LastSent()
	if last.Keyboard == nil {
		t.Fatal("expected a city keyboard")
	}
	if len(last.Keyboard.Rows) != 2 {
		t.Fatalf("keyboard rows = %d, want 2", len(last.Keyboard.Rows))
	}
	if got := last.Keyboard.Rows[0][0].Data; got != "city;1153" {
		t.Errorf("first button data = %q, want city;1153", got)
	}
}

func TestCityStep_CyrillicLocale(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Москва", ID: "40"}}}
	eng, _ := newTestEngine(t, gdb, search)
	ctx := context.Background()

	if err := eng.Start(ctx, "7", "PRICE"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.HandleText(ctx, "7", "Москва"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.Locale); got != "ru_RU" {
		t.Errorf("locale = %q, want ru_RU", got)
	}
	if got := mustGet(t, gdb, "7", fields.Currency); got != "RUB" {
		t.Errorf("currency = %q, want RUB", got)
	}
}

func TestCityStep_NoResultsRepeats(t *testing.T) {
	gdb := openTestDB(t)
	eng, adapter := newTestEngine(t, gdb, &fakeSearcher{}) // no candidates
	ctx := context.Background()

	if err := eng.Start(ctx, "7", "PRICE"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.HandleText(ctx, "7", "Xyzzy"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}

	if got := adapter.LastSent().Text; got != msgCityNotFound {
		t.Errorf("prompt = %q, want %q", got, msgCityNotFound)
	}
	// The query is cleared so the next text lands on the city step again.
	if got := mustGet(t, gdb, "7", fields.Query); got != "" {
		t.Errorf("query = %q, want blank", got)
	}
	step, err := eng.stepFor("7")
	if err != nil {
		t.Fatalf("stepFor: %v", err)
	}
	if step != StepCity {
		t.Errorf("step = %d, want StepCity", step)
	}
}

// runToHotelCount drives a session through city selection.
func runToHotelCount(t *testing.T, eng *Engine, sort string) {
	t.Helper()
	ctx := context.Background()
	if err := eng.Start(ctx, "7", sort); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.HandleText(ctx, "7", "Paris"); err != nil {
		t.Fatalf("city text: %v", err)
	}
	if err := eng.HandleCallback(ctx, "7", "m1", "city;1153"); err != nil {
		t.Fatalf("city pick: %v", err)
	}
}

func TestHotelCount_ValidationBounds(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, adapter := newTestEngine(t, gdb, search)
	ctx := context.Background()
	runToHotelCount(t, eng, "PRICE")

	for _, bad := range []string{"0", "26", "ten", "2.5", "-3"} {
		if err := eng.HandleText(ctx, "7", bad); err != nil {
			t.Fatalf("HandleText(%q): %v", bad, err)
		}
		if got := mustGet(t, gdb, "7", fields.NumberHotels); got != "" {
			t.Errorf("after %q: number_hotels = %q, want blank", bad, got)
		}
	}

	if err := eng.HandleText(ctx, "7", "5"); err != nil {
		t.Fatalf("HandleText(5): %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.NumberHotels); got != "5" {
		t.Errorf("number_hotels = %q, want 5", got)
	}
	last := adapter.LastSent()
	if last.Text != msgAskPhotos || last.Keyboard == nil {
		t.Errorf("expected photo yes/no keyboard, got %+v", last)
	}
}

func TestPhotoBranch_No(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, adapter := newTestEngine(t, gdb, search)
	ctx := context.Background()
	runToHotelCount(t, eng, "PRICE")

	if err := eng.HandleText(ctx, "7", "5"); err != nil {
		t.Fatalf("hotel count: %v", err)
	}
	if err := eng.HandleCallback(ctx, "7", "m2", "photos;no"); err != nil {
		t.Fatalf("photos;no: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.HotelPics); got != "0" {
		t.Errorf("hotel_pics = %q, want 0", got)
	}
	if got := adapter.LastSent().Text; got != msgAskGuests {
		t.Errorf("prompt = %q, want %q", got, msgAskGuests)
	}
}

func TestPhotoBranch_YesThenCount(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, adapter := newTestEngine(t, gdb, search)
	ctx := context.Background()
	runToHotelCount(t, eng, "PRICE")

	if err := eng.HandleText(ctx, "7", "5"); err != nil {
		t.Fatalf("hotel count: %v", err)
	}
	if err := eng.HandleCallback(ctx, "7", "m2", "photos;yes"); err != nil {
		t.Fatalf("photos;yes: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.HotelPics); got != picsPending {
		t.Errorf("hotel_pics = %q, want pending marker", got)
	}

	// Out of range first, then a real count.
	if err := eng.HandleText(ctx, "7", "11"); err != nil {
		t.Fatalf("photo count 11: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.HotelPics); got != picsPending {
		t.Errorf("hotel_pics = %q, pending marker must survive bad input", got)
	}
	if err := eng.HandleText(ctx, "7", "4"); err != nil {
		t.Fatalf("photo count 4: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.HotelPics); got != "4" {
		t.Errorf("hotel_pics = %q, want 4", got)
	}
	if got := adapter.LastSent().Text; got != msgAskGuests {
		t.Errorf("prompt = %q, want %q", got, msgAskGuests)
	}
}

// runToCalendar drives a session up to the check-in calendar.
func runToCalendar(t *testing.T, eng *Engine) {
	t.Helper()
	ctx := context.Background()
	runToHotelCount(t, eng, "PRICE")
	if err := eng.HandleText(ctx, "7", "5"); err != nil {
		t.Fatalf("hotel count: %v", err)
	}
	if err := eng.HandleCallback(ctx, "7", "m2", "photos;no"); err != nil {
		t.Fatalf("photos;no: %v", err)
	}
	if err := eng.HandleText(ctx, "7", "2"); err != nil {
		t.Fatalf("guests: %v", err)
	}
}

func TestGuests_LeadsToCalendar(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, adapter := newTestEngine(t, gdb, search)
	runToCalendar(t, eng)

	last := adapter.LastSent()
	if last.Text != msgAskCheckIn {
		t.Errorf("prompt = %q, want %q", last.Text, msgAskCheckIn)
	}
	if last.Keyboard == nil {
		t.Fatal("expected a calendar keyboard")
	}
}

func TestCalendar_DatePairLaunchesSearch(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, _ := newTestEngine(t, gdb, search)
	ctx := context.Background()
	runToCalendar(t, eng)

	if err := eng.HandleCallback(ctx, "7", "m3", "cal;day;2026-03-15"); err != nil {
		t.Fatalf("check-in pick: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.CheckIn); got != "2026-03-15" {
		t.Errorf("check_in = %q, want 2026-03-15", got)
	}
	if err := eng.HandleCallback(ctx, "7", "m4", "cal;day;2026-03-18"); err != nil {
		t.Fatalf("check-out pick: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.CheckOut); got != "2026-03-18" {
		t.Errorf("check_out = %q, want 2026-03-18", got)
	}
	if len(search.ranSearch) != 1 || search.ranSearch[0] != "7" {
		t.Errorf("ranSearch = %v, want one run for chat 7", search.ranSearch)
	}
}

func TestCalendar_StaleEarlyDayIgnored(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, _ := newTestEngine(t, gdb, search)
	ctx := context.Background()
	runToCalendar(t, eng)

	if err := eng.HandleCallback(ctx, "7", "m3", "cal;day;2026-03-15"); err != nil {
		t.Fatalf("check-in pick: %v", err)
	}
	// A stale payload carrying the check-in day itself is below the
	// check-out lower bound and must not set anything.
	if err := eng.HandleCallback(ctx, "7", "m4", "cal;day;2026-03-15"); err != nil {
		t.Fatalf("check-out pick: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.CheckOut); got != "" {
		t.Errorf("check_out = %q, want blank after below-bound pick", got)
	}
	if len(search.ranSearch) != 0 {
		t.Error("search must not run without a check-out date")
	}
}

func TestAfterDates_InvalidPairClearsBothDates(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, adapter := newTestEngine(t, gdb, search)
	ctx := context.Background()
	runToCalendar(t, eng)

	// An inverted pair cannot come out of the picker, but the stored record
	// is still validated before dispatch.
	if err := session.Set(gdb, "7", fields.CheckIn, "2026-03-18"); err != nil {
		t.Fatalf("set check_in: %v", err)
	}
	if err := session.Set(gdb, "7", fields.CheckOut, "2026-03-15"); err != nil {
		t.Fatalf("set check_out: %v", err)
	}
	if err := eng.afterDates(ctx, "7"); err != nil {
		t.Fatalf("afterDates: %v", err)
	}

	if got := mustGet(t, gdb, "7", fields.CheckIn); got != "" {
		t.Errorf("check_in = %q, want blank after invalid pair", got)
	}
	if got := mustGet(t, gdb, "7", fields.CheckOut); got != "" {
		t.Errorf("check_out = %q, want blank after invalid pair", got)
	}
	if len(search.ranSearch) != 0 {
		t.Error("search must not run on an invalid date pair")
	}
	last := adapter.LastSent()
	if last.Text != msgAskCheckIn || last.Keyboard == nil {
		t.Errorf("expected check-in calendar again, got %q", last.Text)
	}
}

func TestCalendar_NavigationEditsInPlace(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, adapter := newTestEngine(t, gdb, search)
	ctx := context.Background()
	runToCalendar(t, eng)
	calendarID := adapter.LastSent().MessageID

	if err := eng.HandleCallback(ctx, "7", calendarID, "cal;nav;2026-04"); err != nil {
		t.Fatalf("nav: %v", err)
	}
	last := adapter.LastSent()
	if !last.Edited {
		t.Fatal("expected an in-place edit, not a new message")
	}
	if last.MessageID != calendarID {
		t.Errorf("edited message %q, want %q", last.MessageID, calendarID)
	}
}

func TestBestdeal_PriceAndDistanceFlow(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, adapter := newTestEngine(t, gdb, search)
	ctx := context.Background()

	runToHotelCount(t, eng, "DISTANCE_FROM_LANDMARK")
	if err := eng.HandleText(ctx, "7", "5"); err != nil {
		t.Fatalf("hotel count: %v", err)
	}
	if err := eng.HandleCallback(ctx, "7", "m2", "photos;no"); err != nil {
		t.Fatalf("photos;no: %v", err)
	}
	if err := eng.HandleText(ctx, "7", "2"); err != nil {
		t.Fatalf("guests: %v", err)
	}
	if err := eng.HandleCallback(ctx, "7", "m3", "cal;day;2026-03-15"); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if err := eng.HandleCallback(ctx, "7", "m4", "cal;day;2026-03-18"); err != nil {
		t.Fatalf("check-out: %v", err)
	}

	// Dates are valid, so the flow continues into the price questions
	// instead of launching the search.
	if len(search.ranSearch) != 0 {
		t.Fatal("search must wait for price and distance")
	}
	if got := adapter.LastSent().Text; !strings.Contains(got, "Minimum price") {
		t.Errorf("prompt = %q, want a minimum-price question", got)
	}
	if !strings.Contains(adapter.LastSent().Text, "dollars") {
		t.Errorf("price prompt %q should name dollars for en_US", adapter.LastSent().Text)
	}

	if err := eng.HandleText(ctx, "7", "50"); err != nil {
		t.Fatalf("price min: %v", err)
	}
	// Max at or below min clears the minimum and starts the pair over.
	if err := eng.HandleText(ctx, "7", "30"); err != nil {
		t.Fatalf("price max low: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.PriceStart); got != "" {
		t.Errorf("price_start = %q, want blank after inverted bounds", got)
	}

	if err := eng.HandleText(ctx, "7", "50"); err != nil {
		t.Fatalf("price min again: %v", err)
	}
	if err := eng.HandleText(ctx, "7", "200"); err != nil {
		t.Fatalf("price max: %v", err)
	}
	if got := adapter.LastSent().Text; got != msgAskDistance {
		t.Errorf("prompt = %q, want %q", got, msgAskDistance)
	}

	// Comma decimal separator is accepted.
	if err := eng.HandleText(ctx, "7", "1,5"); err != nil {
		t.Fatalf("distance: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.Distance); got != "1.5" {
		t.Errorf("distance = %q, want 1.5", got)
	}
	if len(search.ranSearch) != 1 {
		t.Errorf("ranSearch = %v, want one run", search.ranSearch)
	}
}

func TestTypedDates_AcceptedDuringCalendarSteps(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, adapter := newTestEngine(t, gdb, search)
	ctx := context.Background()
	runToCalendar(t, eng)

	// A date before today is refused.
	if err := eng.HandleText(ctx, "7", "2026-03-01"); err != nil {
		t.Fatalf("early date: %v", err)
	}
	if got := adapter.LastSent().Text; got != msgDateTooEarly {
		t.Errorf("prompt = %q, want %q", got, msgDateTooEarly)
	}
	if got := mustGet(t, gdb, "7", fields.CheckIn); got != "" {
		t.Errorf("check_in = %q, want blank", got)
	}

	if err := eng.HandleText(ctx, "7", "2026-03-15"); err != nil {
		t.Fatalf("check-in date: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.CheckIn); got != "2026-03-15" {
		t.Errorf("check_in = %q, want 2026-03-15", got)
	}
	// Check-out typed at the check-in day is below the bound.
	if err := eng.HandleText(ctx, "7", "2026-03-15"); err != nil {
		t.Fatalf("check-out same day: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.CheckOut); got != "" {
		t.Errorf("check_out = %q, want blank", got)
	}
	if err := eng.HandleText(ctx, "7", "2026-03-18"); err != nil {
		t.Fatalf("check-out date: %v", err)
	}
	if len(search.ranSearch) != 1 {
		t.Errorf("ranSearch = %v, want one run", search.ranSearch)
	}
}

func TestTextDuringKeyboardStep_Reminds(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, adapter := newTestEngine(t, gdb, search)
	ctx := context.Background()

	if err := eng.Start(ctx, "7", "PRICE"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.HandleText(ctx, "7", "Paris"); err != nil {
		t.Fatalf("city text: %v", err)
	}
	// City keyboard is up; typed text cannot advance.
	if err := eng.HandleText(ctx, "7", "the first one"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if got := adapter.LastSent().Text; got != msgUseButtons {
		t.Errorf("prompt = %q, want %q", got, msgUseButtons)
	}
}

func TestStalePhotoButton_Ignored(t *testing.T) {
	gdb := openTestDB(t)
	eng, adapter := newTestEngine(t, gdb, &fakeSearcher{})
	ctx := context.Background()

	if err := eng.Start(ctx, "7", "PRICE"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A photo button left over from an earlier flow must not write the
	// sentinel while the city question is open.
	if err := eng.HandleCallback(ctx, "7", "m9", "photos;no"); err != nil {
		t.Fatalf("stale photos;no: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.HotelPics); got != "" {
		t.Errorf("hotel_pics = %q, want blank", got)
	}
	if err := eng.HandleCallback(ctx, "7", "m9", "photos;yes"); err != nil {
		t.Fatalf("stale photos;yes: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.HotelPics); got != "" {
		t.Errorf("hotel_pics = %q, want blank", got)
	}
	if got := adapter.LastSent().Text; got != msgAskCity {
		t.Errorf("prompt = %q, want %q", got, msgAskCity)
	}
}

func TestStaleCityButton_Ignored(t *testing.T) {
	gdb := openTestDB(t)
	search := &fakeSearcher{cities: []provider.City{{Caption: "Paris", ID: "1153"}}}
	eng, _ := newTestEngine(t, gdb, search)
	ctx := context.Background()
	runToHotelCount(t, eng, "PRICE")

	// A second press of the old city button past the pick step is a no-op.
	if err := eng.HandleCallback(ctx, "7", "m1", "city;9022"); err != nil {
		t.Fatalf("stale callback: %v", err)
	}
	if got := mustGet(t, gdb, "7", fields.CityID); got != "1153" {
		t.Errorf("city_id = %q, want 1153", got)
	}
}
