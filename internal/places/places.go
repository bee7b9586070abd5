// Package places resolves free-text location strings and opaque map
// links to venue data via the Google Places (New) API. Everything here
// is best-effort: lookup misses and HTTP failures return nil rather
// than errors so that the enrichment pipeline can fall through to the
// LLM path.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calens/calens/internal/logging"
	"github.com/calens/calens/internal/model"
)

const (
	defaultBaseURL = "https://places.googleapis.com/v1"
	requestTimeout = 10 * time.Second

	searchFieldMask  = "places.id,places.displayName,places.formattedAddress,places.types,places.location"
	detailsFieldMask = "id,displayName,formattedAddress,addressComponents,types,location"
)

// Map-domain substrings that mark an opaque share link.
var mapsHosts = []string{
	"maps.google.com",
	"google.com/maps",
	"goo.gl/maps",
	"maps.app.goo.gl",
}

// LooksLikeMapsURL reports whether the string resembles a maps share link.
func LooksLikeMapsURL(location string) bool {
	parsed, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	probe := host + parsed.Path
	for _, key := range mapsHosts {
		if strings.Contains(probe, key) {
			return true
		}
	}
	return false
}

// Resolver is a Google Places client.
type Resolver struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewResolver creates a resolver. An empty API key yields a nil resolver,
// which callers treat as "geocoding disabled".
func NewResolver(apiKey string) *Resolver {
	if apiKey == "" {
		return nil
	}
	return &Resolver{
		httpClient: &http.Client{Timeout: requestTimeout},
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
	}
}

// SetBaseURL overrides the API base URL (used by tests).
func (r *Resolver) SetBaseURL(u string) {
	r.baseURL = strings.TrimRight(u, "/")
}

type place struct {
	ID                string             `json:"id"`
	DisplayName       *localizedText     `json:"displayName"`
	FormattedAddress  string             `json:"formattedAddress"`
	Types             []string           `json:"types"`
	Location          *latLng            `json:"location"`
	AddressComponents []addressComponent `json:"addressComponents"`
}

type localizedText struct {
	Text string `json:"text"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type addressComponent struct {
	LongText string   `json:"longText"`
	Types    []string `json:"types"`
}

type searchResponse struct {
	Places []place `json:"places"`
}

// Resolve looks up a location string and returns best-effort venue data,
// or nil when nothing was found.
func (r *Resolver) Resolve(ctx context.Context, location string) *model.LocationEnrichment {
	if r == nil || strings.TrimSpace(location) == "" {
		return nil
	}

	found := r.searchText(ctx, location)
	if found == nil {
		return nil
	}

	// Details carry the address components needed for neighborhood/city.
	if found.ID != "" {
		if details := r.placeDetails(ctx, found.ID); details != nil {
			found = details
		}
	}

	enrichment := &model.LocationEnrichment{
		VenueName: found.displayName(),
		Cuisine:   deriveCuisine(found.Types),
	}
	enrichment.Neighborhood, enrichment.City = deriveNeighborhoodCity(found.AddressComponents)
	if found.Location != nil {
		lat, lng := found.Location.Latitude, found.Location.Longitude
		enrichment.Latitude = &lat
		enrichment.Longitude = &lng
	}

	if enrichment.VenueName == "" && enrichment.Latitude == nil {
		return nil
	}
	return enrichment
}

func (p *place) displayName() string {
	if p.DisplayName == nil {
		return ""
	}
	return p.DisplayName.Text
}

func (r *Resolver) searchText(ctx context.Context, query string) *place {
	payload, err := json.Marshal(map[string]string{"textQuery": query})
	if err != nil {
		return nil
	}

	var resp searchResponse
	if !r.doJSON(ctx, "POST", r.baseURL+"/places:searchText", payload, searchFieldMask, &resp) {
		return nil
	}
	if len(resp.Places) == 0 {
		return nil
	}
	return &resp.Places[0]
}

func (r *Resolver) placeDetails(ctx context.Context, placeID string) *place {
	endpoint := fmt.Sprintf("%s/places/%s", r.baseURL, url.PathEscape(placeID))
	var resp place
	if !r.doJSON(ctx, "GET", endpoint, nil, detailsFieldMask, &resp) {
		return nil
	}
	return &resp
}

// doJSON performs one request and decodes the body. All failures are
// logged at debug and reported as a miss.
func (r *Resolver) doJSON(ctx context.Context, method, endpoint string, body []byte, fieldMask string, out any) bool {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return false
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-Api-Key", r.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		logging.Debug("places request failed", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logging.Debug("places request rejected", "status", resp.StatusCode)
		return false
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		logging.Debug("places response unreadable", "err", err)
		return false
	}
	return true
}

func deriveNeighborhoodCity(components []addressComponent) (neighborhood, city string) {
	for _, comp := range components {
		if neighborhood == "" && hasAnyType(comp.Types, "neighborhood", "sublocality", "sublocality_level_1") {
			neighborhood = comp.LongText
		}
		if city == "" && hasAnyType(comp.Types, "locality", "postal_town", "administrative_area_level_2") {
			city = comp.LongText
		}
		if neighborhood != "" && city != "" {
			break
		}
	}

	// NYC boroughs often appear as sublocality; use that as city if
	// nothing else matched.
	if city == "" {
		for _, comp := range components {
			if hasAnyType(comp.Types, "sublocality", "sublocality_level_1") {
				city = comp.LongText
				break
			}
		}
	}
	return neighborhood, city
}

func hasAnyType(types []string, wanted ...string) bool {
	for _, t := range types {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}

func deriveCuisine(types []string) string {
	for _, t := range types {
		if cut, ok := strings.CutSuffix(t, "_restaurant"); ok {
			return titleWords(cut)
		}
		if cut, ok := strings.CutSuffix(t, "_food"); ok {
			return titleWords(cut)
		}
	}
	return ""
}

func titleWords(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
