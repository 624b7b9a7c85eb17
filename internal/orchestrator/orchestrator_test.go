package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bionicsv26/telegram-bot/internal/artifacts"
	"github.com/bionicsv26/telegram-bot/internal/chat"
	"github.com/bionicsv26/telegram-bot/internal/fields"
	"github.com/bionicsv26/telegram-bot/internal/history"
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

// stubProvider is a canned SearchProvider that records the params it saw.
type stubProvider struct {
	cities      []provider.City
	hotels      []provider.Hotel
	hotelsErr   error
	details     map[string]string
	photos      map[string][]string
	photosErr   error
	seenSearch  map[string]string
	seenDetails []map[string]string
}

func (s *stubProvider) SearchCity(_ context.Context, _ map[string]string) ([]provider.City, error) {
	return s.cities, nil
}

func (s *stubProvider) SearchHotels(_ context.Context, params map[string]string) ([]provider.Hotel, error) {
	s.seenSearch = params
	return s.hotels, s.hotelsErr
}

func (s *stubProvider) HotelDetail(_ context.Context, params map[string]string) (string, error) {
	s.seenDetails = append(s.seenDetails, params)
	return s.details[params["id"]], nil
}

func (s *stubProvider) HotelPhotos(_ context.Context, params map[string]string) ([]string, error) {
	if s.photosErr != nil {
		return nil, s.photosErr
	}
	return s.photos[params["id"]], nil
}

// seedSession builds a completed lowprice-style session record.
func seedSession(t *testing.T, gdb *gorm.DB, chatID string, hotels, pics int) {
	t.Helper()
	if _, err := session.Begin(gdb, chatID, "PRICE"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	set := func(f fields.Field, v string) {
		t.Helper()
		if err := session.Set(gdb, chatID, f, v); err != nil {
			t.Fatalf("Set %s: %v", f, err)
		}
	}
	set(fields.Query, "Paris")
	set(fields.CityID, "1153")
	set(fields.Locale, "en_US")
	set(fields.Currency, "USD")
	set(fields.NumberHotels, fmt.Sprint(hotels))
	set(fields.NumberPersons, "2")
	set(fields.CheckIn, "2026-03-15")
	set(fields.CheckOut, "2026-03-18")
	set(fields.HotelPics, fmt.Sprint(pics))
}

func newTestOrchestrator(t *testing.T, gdb *gorm.DB, p SearchProvider) (*Orchestrator, *chat.MockAdapter, *artifacts.Store) {
	t.Helper()
	adapter := chat.NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	store := artifacts.New(t.TempDir())
	o, err := New(Opts{DB: gdb, Provider: p, Store: store, Adapter: adapter})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, adapter, store
}

func TestRunSearch_FullResult(t *testing.T) {
	gdb := openTestDB(t)
	p := &stubProvider{
		hotels: []provider.Hotel{
			{ID: "10", Summary: "Hotel Ten"},
			{ID: "20", Summary: "Hotel Twenty"},
		},
		details: map[string]string{"10": "Ten: detail", "20": "Twenty: detail"},
		photos: map[string][]string{
			"10": {"http://img/10a", "http://img/10b", "http://img/10c"},
			"20": {"http://img/20a", "http://img/20b", "http://img/20c"},
		},
	}
	o, adapter, store := newTestOrchestrator(t, gdb, p)
	seedSession(t, gdb, "42", 2, 2)

	if err := o.RunSearch(context.Background(), "42"); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}

	// Wire params carry provider names, not column names.
	for wire, want := range map[string]string{
		"destinationId": "1153",
		"pageSize":      "2",
		"checkIn":       "2026-03-15",
		"checkOut":      "2026-03-18",
		"adults1":       "2",
		"sortOrder":     "PRICE",
		"locale":        "en_US",
		"currency":      "USD",
		"pageNumber":    "1",
	} {
		if got := p.seenSearch[wire]; got != want {
			t.Errorf("param %s = %q, want %q", wire, got, want)
		}
	}
	if _, ok := p.seenSearch["priceMin"]; ok {
		t.Error("price params must not be sent for a price-sorted search")
	}

	var texts []string
	var albums int
	for _, s := range adapter.SentMessages() {
		if len(s.MediaURLs) > 0 {
			albums++
			if len(s.MediaURLs) != 2 {
				t.Errorf("album size = %d, want the stored photo count 2", len(s.MediaURLs))
			}
			continue
		}
		texts = append(texts, s.Text)
	}
	if albums != 2 {
		t.Errorf("albums sent = %d, want 2", albums)
	}
	joined := strings.Join(texts, "\n")
	if !strings.Contains(joined, "Ten: detail") || !strings.Contains(joined, "Twenty: detail") {
		t.Errorf("details missing from sent texts: %q", joined)
	}
	if strings.Contains(joined, "Only") {
		t.Errorf("no partial notice expected for a full result: %q", joined)
	}

	// Artifacts and history recorded.
	ts, err := session.Get(gdb, "42", fields.DatetimeQuery)
	if err != nil {
		t.Fatalf("get timestamp: %v", err)
	}
	if detail, ok, _ := store.ReadDetail("42", ts, "10"); !ok || detail != "Ten: detail" {
		t.Errorf("stored detail = %q ok=%v", detail, ok)
	}
	if urls, ok, _ := store.ReadPhotos("42", ts, "20"); !ok || len(urls) != 2 {
		t.Errorf("stored photos = %v ok=%v", urls, ok)
	}
	entries, err := history.List(gdb, "42")
	if err != nil {
		t.Fatalf("history.List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.SortOrder != "lowprice" || e.City != "Paris" || e.HotelsID != "10 20" || e.DatetimeQuery != ts {
		t.Errorf("history entry = %+v", e)
	}
}

func TestRunSearch_EmptyResult(t *testing.T) {
	gdb := openTestDB(t)
	o, adapter, _ := newTestOrchestrator(t, gdb, &stubProvider{})
	seedSession(t, gdb, "42", 3, 0)

	if err := o.RunSearch(context.Background(), "42"); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	if got := adapter.LastSent().Text; got != msgNoHotels {
		t.Errorf("text = %q, want %q", got, msgNoHotels)
	}
	if entries, _ := history.List(gdb, "42"); len(entries) != 0 {
		t.Errorf("empty result must not reach history, got %d entries", len(entries))
	}
}

func TestRunSearch_ProviderErrorReadsAsEmpty(t *testing.T) {
	gdb := openTestDB(t)
	p := &stubProvider{hotelsErr: errors.New("upstream 503")}
	o, adapter, _ := newTestOrchestrator(t, gdb, p)
	seedSession(t, gdb, "42", 3, 0)

	if err := o.RunSearch(context.Background(), "42"); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	if got := adapter.LastSent().Text; got != msgNoHotels {
		t.Errorf("text = %q, want %q", got, msgNoHotels)
	}
}

func TestRunSearch_PartialResultNotice(t *testing.T) {
	gdb := openTestDB(t)
	p := &stubProvider{
		hotels:  []provider.Hotel{{ID: "10", Summary: "Hotel Ten"}},
		details: map[string]string{"10": "Ten: detail"},
	}
	o, adapter, _ := newTestOrchestrator(t, gdb, p)
	seedSession(t, gdb, "42", 5, 0)

	if err := o.RunSearch(context.Background(), "42"); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	want := fmt.Sprintf(msgPartialFormat, 1)
	var found bool
	for _, s := range adapter.SentMessages() {
		if s.Text == want {
			found = true
		}
	}
	if !found {
		t.Errorf("partial notice %q not sent", want)
	}
	if entries, _ := history.List(gdb, "42"); len(entries) != 1 {
		t.Error("partial result still reaches history")
	}
}

func TestRunSearch_FewerPhotosNotice(t *testing.T) {
	gdb := openTestDB(t)
	p := &stubProvider{
		hotels:  []provider.Hotel{{ID: "10", Summary: "Hotel Ten"}},
		details: map[string]string{"10": "Ten: detail"},
		photos:  map[string][]string{"10": {"http://img/only"}},
	}
	o, adapter, store := newTestOrchestrator(t, gdb, p)
	seedSession(t, gdb, "42", 1, 5)

	if err := o.RunSearch(context.Background(), "42"); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	want := fmt.Sprintf(msgFewerPhotos, 1)
	var found bool
	for _, s := range adapter.SentMessages() {
		if s.Text == want {
			found = true
		}
	}
	if !found {
		t.Errorf("fewer-photos notice %q not sent", want)
	}
	ts, _ := session.Get(gdb, "42", fields.DatetimeQuery)
	if urls, ok, _ := store.ReadPhotos("42", ts, "10"); !ok || len(urls) != 1 {
		t.Errorf("stored photos = %v ok=%v, want the one available", urls, ok)
	}
}

func TestRunSearch_PhotosSkippedWhenNotRequested(t *testing.T) {
	gdb := openTestDB(t)
	p := &stubProvider{
		hotels:    []provider.Hotel{{ID: "10", Summary: "Hotel Ten"}},
		details:   map[string]string{"10": "Ten: detail"},
		photosErr: errors.New("must not be called"),
	}
	o, adapter, _ := newTestOrchestrator(t, gdb, p)
	seedSession(t, gdb, "42", 1, 0)

	if err := o.RunSearch(context.Background(), "42"); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	for _, s := range adapter.SentMessages() {
		if len(s.MediaURLs) > 0 {
			t.Error("no albums expected when photos were declined")
		}
	}
}

func TestRunSearch_MissingDetailNoted(t *testing.T) {
	gdb := openTestDB(t)
	p := &stubProvider{
		hotels:  []provider.Hotel{{ID: "10", Summary: "Hotel Ten"}},
		details: map[string]string{},
	}
	o, adapter, store := newTestOrchestrator(t, gdb, p)
	seedSession(t, gdb, "42", 1, 0)

	if err := o.RunSearch(context.Background(), "42"); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	want := fmt.Sprintf(msgNoDetail, "10")
	var found bool
	for _, s := range adapter.SentMessages() {
		if s.Text == want {
			found = true
		}
	}
	if !found {
		t.Errorf("missing-detail notice %q not sent", want)
	}
	ts, _ := session.Get(gdb, "42", fields.DatetimeQuery)
	if _, ok, _ := store.ReadDetail("42", ts, "10"); ok {
		t.Error("no artifact expected for a hotel without detail")
	}
}

func TestRunSearch_BestdealSendsPriceParams(t *testing.T) {
	gdb := openTestDB(t)
	p := &stubProvider{
		hotels:  []provider.Hotel{{ID: "10", Summary: "Hotel Ten"}},
		details: map[string]string{"10": "Ten: detail"},
	}
	o, _, _ := newTestOrchestrator(t, gdb, p)
	seedSession(t, gdb, "42", 1, 0)
	for f, v := range map[fields.Field]string{
		fields.SortOrder:  "DISTANCE_FROM_LANDMARK",
		fields.PriceStart: "50",
		fields.PriceStop:  "200",
		fields.Distance:   "1.5",
	} {
		if err := session.Set(gdb, "42", f, v); err != nil {
			t.Fatalf("Set %s: %v", f, err)
		}
	}

	if err := o.RunSearch(context.Background(), "42"); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	for wire, want := range map[string]string{
		"priceMin": "50",
		"priceMax": "200",
		"distance": "1.5",
	} {
		if got := p.seenSearch[wire]; got != want {
			t.Errorf("param %s = %q, want %q", wire, got, want)
		}
	}
	entries, _ := history.List(gdb, "42")
	if len(entries) != 1 || entries[0].SortOrder != "bestdeal" {
		t.Errorf("history entries = %+v, want one bestdeal entry", entries)
	}
}

func TestSearchCity_CollectsWireParams(t *testing.T) {
	gdb := openTestDB(t)
	p := &stubProvider{cities: []provider.City{{Caption: "Paris, France", ID: "1153"}}}
	o, _, _ := newTestOrchestrator(t, gdb, p)
	seedSession(t, gdb, "42", 1, 0)

	cities, err := o.SearchCity(context.Background(), "42")
	if err != nil {
		t.Fatalf("SearchCity: %v", err)
	}
	if len(cities) != 1 || cities[0].ID != "1153" {
		t.Errorf("cities = %+v", cities)
	}
}
