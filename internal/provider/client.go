// Package provider is the HTTP client for the hotels4 search API
// (rapidapi). All four operations are plain GETs with an API-key header;
// responses are decoded defensively, so a missing or reshaped nested field
// degrades to an empty result instead of a panic.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://hotels4.p.rapidapi.com"
	// DefaultTimeout bounds each provider call so a stalled request can
	// never hang a participant worker indefinitely.
	DefaultTimeout = 30 * time.Second

	cityPath   = "/locations/v2/search"
	hotelsPath = "/properties/list"
	detailPath = "/properties/get-details"
	photosPath = "/properties/get-hotel-photos"
)

// City is one city candidate returned by SearchCity.
type City struct {
	Caption string // display label with geographic context
	ID      string // provider destination id
}

// Hotel is one search result returned by SearchHotels.
type Hotel struct {
	ID      string
	Summary string // one-line display: name, stars, address, price, distance
}

// Client calls the hotels4 API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	host       string
}

// Opts holds parameters for creating a Client.
type Opts struct {
	APIKey     string
	BaseURL    string        // defaults to DefaultBaseURL
	Timeout    time.Duration // defaults to DefaultTimeout
	HTTPClient *http.Client  // optional injection for tests
}

// New creates a Client.
func New(opts Opts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("provider: api key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("provider: parse base url: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     opts.APIKey,
		host:       u.Host,
	}, nil
}

// get performs one API GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("provider: build request %s: %w", path, err)
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("provider: read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider: %s returned %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("provider: decode %s response: %w", path, err)
	}
	return nil
}

// htmlTagRe strips markup the city endpoint embeds in captions.
var htmlTagRe = regexp.MustCompile(`<.+?>`)

type cityResponse struct {
	Suggestions []struct {
		Group    string `json:"group"`
		Entities []struct {
			Type          string `json:"type"`
			Name          string `json:"name"`
			Caption       string `json:"caption"`
			DestinationID string `json:"destinationId"`
		} `json:"entities"`
	} `json:"suggestions"`
}

// SearchCity returns city candidates whose name matches the queried text.
// params must carry the wire-named query/locale/currency values.
func (c *Client) SearchCity(ctx context.Context, params map[string]string) ([]City, error) {
	var resp cityResponse
	if err := c.get(ctx, cityPath, params, &resp); err != nil {
		return nil, err
	}
	query := strings.ToLower(params["query"])
	var cities []City
	for _, group := range resp.Suggestions {
		for _, e := range group.Entities {
			if e.Type != "CITY" || e.DestinationID == "" {
				continue
			}
			if query != "" && !strings.Contains(strings.ToLower(e.Name), query) {
				continue
			}
			cities = append(cities, City{
				Caption: htmlTagRe.ReplaceAllString(e.Caption, ""),
				ID:      e.DestinationID,
			})
		}
	}
	return cities, nil
}

type hotelsResponse struct {
	Data struct {
		Body struct {
			SearchResults struct {
				Results []struct {
					ID         json.Number `json:"id"`
					Name       string      `json:"name"`
					StarRating float64     `json:"starRating"`
					Address    struct {
						StreetAddress string `json:"streetAddress"`
					} `json:"address"`
					RatePlan struct {
						Price struct {
							Current string `json:"current"`
						} `json:"price"`
					} `json:"ratePlan"`
					Landmarks []struct {
						Distance string `json:"distance"`
					} `json:"landmarks"`
				} `json:"results"`
			} `json:"searchResults"`
		} `json:"body"`
	} `json:"data"`
}

// SearchHotels returns hotels matching the assembled criteria.
func (c *Client) SearchHotels(ctx context.Context, params map[string]string) ([]Hotel, error) {
	var resp hotelsResponse
	if err := c.get(ctx, hotelsPath, params, &resp); err != nil {
		return nil, err
	}
	var hotels []Hotel
	for _, h := range resp.Data.Body.SearchResults.Results {
		id := h.ID.String()
		if id == "" {
			continue
		}
		var parts []string
		name := h.Name
		if stars := int(h.StarRating); stars > 0 {
			name += " " + strings.Repeat("⭐️", stars)
		}
		parts = append(parts, name)
		if h.Address.StreetAddress != "" {
			parts = append(parts, h.Address.StreetAddress)
		}
		if h.RatePlan.Price.Current != "" {
			parts = append(parts, strings.ToLower(h.RatePlan.Price.Current))
		}
		if len(h.Landmarks) > 0 && h.Landmarks[0].Distance != "" {
			parts = append(parts, strings.Fields(h.Landmarks[0].Distance)[0]+" to center")
		}
		hotels = append(hotels, Hotel{ID: id, Summary: strings.Join(parts, ". ")})
	}
	return hotels, nil
}

type detailResponse struct {
	Result string `json:"result"`
	Data   struct {
		Body struct {
			PropertyDescription struct {
				Name    string `json:"name"`
				Address struct {
					FullAddress string `json:"fullAddress"`
				} `json:"address"`
				FeaturedPrice struct {
					CurrentPrice struct {
						Formatted string `json:"formatted"`
					} `json:"currentPrice"`
					PriceInfo string `json:"priceInfo"`
				} `json:"featuredPrice"`
				MapWidget struct {
					StaticMapURL string `json:"staticMapUrl"`
				} `json:"mapWidget"`
			} `json:"propertyDescription"`
			PdpHeader struct {
				HotelLocation struct {
					Coordinates struct {
						Latitude  float64 `json:"latitude"`
						Longitude float64 `json:"longitude"`
					} `json:"coordinates"`
				} `json:"hotelLocation"`
			} `json:"pdpHeader"`
			Overview struct {
				OverviewSections []struct {
					Type    string   `json:"type"`
					Title   string   `json:"title"`
					Content []string `json:"content"`
				} `json:"overviewSections"`
			} `json:"overview"`
		} `json:"body"`
	} `json:"data"`
}

// HotelDetail returns formatted detail text for one hotel. params must carry
// the wire-named id/dates/occupancy/locale/currency values. An empty string
// means the provider had nothing usable for this hotel.
func (c *Client) HotelDetail(ctx context.Context, params map[string]string) (string, error) {
	var resp detailResponse
	if err := c.get(ctx, detailPath, params, &resp); err != nil {
		return "", err
	}
	if resp.Result != "OK" {
		return "", nil
	}
	desc := resp.Data.Body.PropertyDescription
	if desc.Name == "" {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(desc.Name + "\n\n")
	if desc.Address.FullAddress != "" {
		b.WriteString("Address: " + desc.Address.FullAddress + "\n")
	}
	if desc.MapWidget.StaticMapURL != "" {
		b.WriteString(desc.MapWidget.StaticMapURL + "\n")
	}
	coords := resp.Data.Body.PdpHeader.HotelLocation.Coordinates
	if coords.Latitude != 0 || coords.Longitude != 0 {
		fmt.Fprintf(&b, "Coordinates: %g, %g\n", coords.Latitude, coords.Longitude)
	}
	for _, section := range resp.Data.Body.Overview.OverviewSections {
		if section.Type != "HOTEL_FEATURE" && section.Type != "LOCATION_SECTION" {
			continue
		}
		b.WriteString("\n" + section.Title + "\n")
		b.WriteString(strings.Join(section.Content, "\n") + "\n")
	}
	price := desc.FeaturedPrice.CurrentPrice.Formatted
	if price != "" {
		b.WriteString("\n" + strings.TrimSpace(price+" "+desc.FeaturedPrice.PriceInfo) + "\n")
	}
	if id := params["id"]; id != "" {
		host := "www.hotels.com"
		if strings.HasPrefix(params["locale"], "ru") {
			host = "www.ru.hotels.com"
		}
		fmt.Fprintf(&b, "\nhttps://%s/ho%s\n", host, id)
	}
	return b.String(), nil
}

type photosResponse struct {
	HotelImages []struct {
		BaseURL string `json:"baseUrl"`
	} `json:"hotelImages"`
}

// HotelPhotos returns photo URLs for one hotel, with the size placeholder
// resolved.
func (c *Client) HotelPhotos(ctx context.Context, params map[string]string) ([]string, error) {
	var resp photosResponse
	if err := c.get(ctx, photosPath, params, &resp); err != nil {
		return nil, err
	}
	var urls []string
	for _, img := range resp.HotelImages {
		if img.BaseURL == "" {
			continue
		}
		urls = append(urls, strings.ReplaceAll(img.BaseURL, "{size}", "z"))
	}
	return urls, nil
}
