package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// defaultReverseTimeout bounds one reverse-geocoding call. The public
// Nominatim instance answers well under this or not at all.
const defaultReverseTimeout = 5 * time.Second

// nominatimAddress is the address object of a Nominatim jsonv2 reverse
// response. Only the fields the resolver consumes are declared.
type nominatimAddress struct {
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	State       string `json:"state"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
}

type nominatimResponse struct {
	Address nominatimAddress `json:"address"`
}

// NominatimClient issues reverse-geocoding calls against a Nominatim-style
// endpoint.
type NominatimClient struct {
	// BaseURL is the API root, e.g. "https://nominatim.openstreetmap.org".
	BaseURL string

	// UserAgent identifies the importer; the public instance requires one.
	UserAgent string

	// Timeout bounds one call. <=0 means the default (5s).
	Timeout time.Duration

	// HTTPClient overrides the client used for requests. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Reverse resolves a coordinate into a Place.
//
// The response mapping follows the upstream convention: the most specific of
// city/town/village becomes City, country_code (uppercased) wins over the
// country name, and a bare country name goes through CountryCode.
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	if c.BaseURL == "" {
		return Place{}, fmt.Errorf("nominatim: no base URL configured")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultReverseTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{
		"format": {"jsonv2"},
		"lat":    {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
	req, err := http.NewRequestWithContext(rctx, http.MethodGet, c.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return Place{}, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Place{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Place{}, fmt.Errorf("nominatim: status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Place{}, fmt.Errorf("nominatim: decode response: %w", err)
	}

	return placeFromAddress(body.Address), nil
}

func placeFromAddress(a nominatimAddress) Place {
	var p Place

	switch {
	case a.City != "":
		p.City = a.City
	case a.Town != "":
		p.City = a.Town
	case a.Village != "":
		p.City = a.Village
	}

	p.State = a.State

	switch {
	case a.CountryCode != "":
		p.Country = CountryCode(a.CountryCode)
	case a.Country != "":
		p.Country = CountryCode(a.Country)
	}

	return p
}
