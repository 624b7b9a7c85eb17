// Package orchestrator assembles provider requests from the current session
// record, classifies the provider's answer (empty, partial, full), persists
// result artifacts, and records completed queries in history.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/bionicsv26/telegram-bot/internal/artifacts"
	"github.com/bionicsv26/telegram-bot/internal/chat"
	"github.com/bionicsv26/telegram-bot/internal/fields"
	"github.com/bionicsv26/telegram-bot/internal/history"
	"github.com/bionicsv26/telegram-bot/internal/models"
	"github.com/bionicsv26/telegram-bot/internal/provider"
	"github.com/bionicsv26/telegram-bot/internal/session"
)

// SearchProvider is the slice of the provider client the orchestrator uses.
// *provider.Client satisfies it; tests substitute a stub.
type SearchProvider interface {
	SearchCity(ctx context.Context, params map[string]string) ([]provider.City, error)
	SearchHotels(ctx context.Context, params map[string]string) ([]provider.Hotel, error)
	HotelDetail(ctx context.Context, params map[string]string) (string, error)
	HotelPhotos(ctx context.Context, params map[string]string) ([]string, error)
}

// Messages sent while classifying results.
const (
	msgSearching     = "Searching for hotels..."
	msgNoHotels      = "No hotels matched your query. To try again or start a new search, use /start."
	msgPartialFormat = "Only %d hotels matched your query."
	msgNoDetail      = "No information available for hotel %s."
	msgFewerPhotos   = "Only %d photos available."
)

// Orchestrator runs the search leg of a completed wizard flow.
type Orchestrator struct {
	db       *gorm.DB
	provider SearchProvider
	store    *artifacts.Store
	adapter  chat.Adapter
}

// Opts holds parameters for creating an Orchestrator.
type Opts struct {
	DB       *gorm.DB
	Provider SearchProvider
	Store    *artifacts.Store
	Adapter  chat.Adapter
}

// New creates an Orchestrator.
func New(opts Opts) (*Orchestrator, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("orchestrator: db is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("orchestrator: provider is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestrator: artifact store is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("orchestrator: adapter is required")
	}
	return &Orchestrator{
		db:       opts.DB,
		provider: opts.Provider,
		store:    opts.Store,
		adapter:  opts.Adapter,
	}, nil
}

// collectParams reads the named fields from the current record and keys them
// by their provider wire names.
func (o *Orchestrator) collectParams(chatID string, fs ...fields.Field) (map[string]string, error) {
	params := make(map[string]string, len(fs))
	for _, f := range fs {
		wire, err := session.WireName(f)
		if err != nil {
			return nil, err
		}
		value, err := session.Get(o.db, chatID, f)
		if err != nil {
			return nil, err
		}
		params[wire] = value
	}
	return params, nil
}

// SearchCity queries city candidates for the typed city name. Provider
// failures are downgraded to an empty candidate list.
func (o *Orchestrator) SearchCity(ctx context.Context, chatID string) ([]provider.City, error) {
	params, err := o.collectParams(chatID, fields.Query, fields.Locale, fields.Currency)
	if err != nil {
		return nil, err
	}
	cities, err := o.provider.SearchCity(ctx, params)
	if err != nil {
		log.Printf("orchestrator: city search for %s: %v", chatID, err)
		return nil, nil
	}
	return cities, nil
}

// RunSearch executes the assembled query end to end: hotel list, per-hotel
// detail and photos with artifact writes, then a history record. Provider
// errors end in the "not found" outcome; storage errors propagate.
func (o *Orchestrator) RunSearch(ctx context.Context, chatID string) error {
	if _, err := o.adapter.SendText(ctx, chatID, msgSearching); err != nil {
		return fmt.Errorf("orchestrator: send searching notice: %w", err)
	}

	sortOrder, err := session.Get(o.db, chatID, fields.SortOrder)
	if err != nil {
		return err
	}
	searchFields := []fields.Field{
		fields.CityID, fields.PageNumber, fields.NumberHotels,
		fields.CheckIn, fields.CheckOut, fields.NumberPersons,
		fields.SortOrder, fields.Locale, fields.Currency,
	}
	if sortOrder == "DISTANCE_FROM_LANDMARK" {
		searchFields = append(searchFields, fields.PriceStart, fields.PriceStop, fields.Distance)
	}
	params, err := o.collectParams(chatID, searchFields...)
	if err != nil {
		return err
	}

	requested, _ := strconv.Atoi(params["pageSize"])

	hotels, err := o.provider.SearchHotels(ctx, params)
	if err != nil {
		log.Printf("orchestrator: hotel search for %s: %v", chatID, err)
		hotels = nil
	}
	if len(hotels) == 0 {
		_, err := o.adapter.SendText(ctx, chatID, msgNoHotels)
		return err
	}
	if len(hotels) < requested {
		if _, err := o.adapter.SendText(ctx, chatID, fmt.Sprintf(msgPartialFormat, len(hotels))); err != nil {
			return fmt.Errorf("orchestrator: send partial notice: %w", err)
		}
	}

	timestamp, err := session.Get(o.db, chatID, fields.DatetimeQuery)
	if err != nil {
		return err
	}
	photoCount := 0
	if v, err := session.Get(o.db, chatID, fields.HotelPics); err == nil {
		photoCount, _ = strconv.Atoi(v)
	}

	root := filepath.Join(o.store.Root(), chatID)
	if err := session.Set(o.db, chatID, fields.RootUserQuery, root); err != nil {
		return err
	}

	ids := make([]string, 0, len(hotels))
	for _, h := range hotels {
		if err := o.sendHotel(ctx, chatID, timestamp, h, photoCount); err != nil {
			return err
		}
		ids = append(ids, h.ID)
	}

	city, err := session.Get(o.db, chatID, fields.Query)
	if err != nil {
		return err
	}
	return history.Record(o.db, o.store, &models.HistoryQuery{
		ChatID:        chatID,
		SortOrder:     history.SortLabel(sortOrder),
		DatetimeQuery: timestamp,
		City:          city,
		HotelsID:      strings.Join(ids, " "),
		RootUserQuery: root,
	})
}

// sendHotel retrieves, persists, and delivers one hotel's detail text and
// optionally its photos.
func (o *Orchestrator) sendHotel(ctx context.Context, chatID, timestamp string, h provider.Hotel, photoCount int) error {
	params, err := o.collectParams(chatID,
		fields.CheckIn, fields.CheckOut, fields.NumberPersons,
		fields.Locale, fields.Currency)
	if err != nil {
		return err
	}
	params["id"] = h.ID

	detail, err := o.provider.HotelDetail(ctx, params)
	if err != nil {
		log.Printf("orchestrator: detail for hotel %s: %v", h.ID, err)
		detail = ""
	}
	if detail == "" {
		_, err := o.adapter.SendText(ctx, chatID, fmt.Sprintf(msgNoDetail, h.ID))
		return err
	}
	if err := o.store.WriteDetail(chatID, timestamp, h.ID, detail); err != nil {
		return err
	}
	if _, err := o.adapter.SendText(ctx, chatID, detail); err != nil {
		return fmt.Errorf("orchestrator: send detail %s: %w", h.ID, err)
	}

	if photoCount <= 0 {
		return nil
	}
	urls, err := o.provider.HotelPhotos(ctx, map[string]string{"id": h.ID})
	if err != nil {
		log.Printf("orchestrator: photos for hotel %s: %v", h.ID, err)
		return nil
	}
	if len(urls) == 0 {
		return nil
	}
	if len(urls) < photoCount {
		if _, err := o.adapter.SendText(ctx, chatID, fmt.Sprintf(msgFewerPhotos, len(urls))); err != nil {
			return fmt.Errorf("orchestrator: send photo notice: %w", err)
		}
	} else {
		urls = urls[:photoCount]
	}
	if err := o.store.WritePhotos(chatID, timestamp, h.ID, urls); err != nil {
		return err
	}
	if err := o.adapter.SendMediaGroup(ctx, chatID, urls); err != nil {
		return fmt.Errorf("orchestrator: send photos %s: %w", h.ID, err)
	}
	return nil
}
