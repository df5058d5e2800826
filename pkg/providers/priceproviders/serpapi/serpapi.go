// Package serpapi fetches hotel rates through the SerpApi Google Hotels
// engine. Lookups are free-text: the hotel name and location form the query
// and the first returned property is taken as the match.
package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hoteliq/ratewatch/internal/keypool"
	"github.com/hoteliq/ratewatch/pkg/providers"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

const (
	Key            = "serpapi"
	defaultBaseURL = "https://serpapi.com"
	requestTimeout = 10 * time.Second
)

func init() {
	priceproviders.Register(Key, New)
}

type Provider struct {
	cfg     priceproviders.Config
	pool    *keypool.Pool
	client  *http.Client
	baseURL string
}

func New(cfg priceproviders.Config, pool *keypool.Pool) priceproviders.PriceProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		cfg:     cfg,
		pool:    pool,
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
	}
}

func (p *Provider) Key() string                  { return Key }
func (p *Provider) Name() string                 { return "SerpApi Google Hotels" }
func (p *Provider) Type() providers.ProviderType { return providers.TypeSearchAPI }
func (p *Provider) Priority() int                { return p.cfg.Priority }
func (p *Provider) Enabled() bool                { return p.cfg.Enabled }
func (p *Provider) Pool() *keypool.Pool          { return p.pool }

type searchResponse struct {
	Error      string `json:"error"`
	Properties []struct {
		Name         string `json:"name"`
		RatePerNight struct {
			Lowest          string  `json:"lowest"`
			ExtractedLowest float64 `json:"extracted_lowest"`
		} `json:"rate_per_night"`
	} `json:"properties"`
}

func (p *Provider) Lookup(ctx context.Context, hotel priceproviders.HotelRef, params priceproviders.SearchParams) (result *priceproviders.PriceResult, err error) {
	start := time.Now()
	defer func() { priceproviders.Observe(Key, start, err) }()

	cred, err := p.pool.Acquire()
	if err != nil {
		if errors.Is(err, keypool.ErrAllExhausted) || errors.Is(err, keypool.ErrNoKeys) {
			return nil, priceproviders.NewError(Key, priceproviders.KindExhausted, err)
		}
		return nil, err
	}

	q := url.Values{}
	q.Set("engine", "google_hotels")
	q.Set("q", strings.TrimSpace(hotel.Name+" "+hotel.Location))
	q.Set("check_in_date", params.CheckIn)
	q.Set("check_out_date", params.CheckOut)
	q.Set("adults", strconv.Itoa(params.Adults))
	q.Set("currency", params.Currency)
	q.Set("api_key", cred.SecretRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, priceproviders.NewError(Key, priceproviders.KindFatal, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, priceproviders.ClassifyTransport(Key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := priceproviders.ClassifyStatus(resp.StatusCode)
		if kind == priceproviders.KindExhausted {
			p.pool.ReportQuotaExceeded(ctx, cred.ID)
		}
		return nil, priceproviders.NewError(Key, kind,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, priceproviders.NewError(Key, priceproviders.KindTransient, fmt.Errorf("decode response: %w", err))
	}

	// SerpApi signals no-result queries with HTTP 200 and an error string.
	if sr.Error != "" {
		if strings.Contains(sr.Error, "returned any results") {
			return nil, priceproviders.NewError(Key, priceproviders.KindNotFound, errors.New(sr.Error))
		}
		return nil, priceproviders.NewError(Key, priceproviders.KindFatal, errors.New(sr.Error))
	}

	p.pool.ReportSuccess(ctx, cred.ID)

	for _, prop := range sr.Properties {
		if prop.RatePerNight.ExtractedLowest <= 0 {
			continue
		}
		return &priceproviders.PriceResult{
			HotelID:    hotel.ID,
			Provider:   Key,
			Vendor:     "google_hotels",
			Price:      prop.RatePerNight.ExtractedLowest,
			Currency:   params.Currency,
			CheckIn:    params.CheckIn,
			Adults:     params.Adults,
			ObservedAt: time.Now(),
		}, nil
	}
	return nil, priceproviders.NewError(Key, priceproviders.KindNotFound,
		fmt.Errorf("no priced properties for %q", hotel.Name))
}
