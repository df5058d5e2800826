// Package makcorps fetches hotel rates from the Makcorps hotel price
// aggregator. Lookups require a Makcorps hotel id (HotelRef.ProviderRefID);
// hotels without a mapping are a not-found for this provider.
package makcorps

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
	Key            = "makcorps"
	defaultBaseURL = "https://api.makcorps.com"
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
func (p *Provider) Name() string                 { return "Makcorps Hotel API" }
func (p *Provider) Type() providers.ProviderType { return providers.TypeAggregatorAPI }
func (p *Provider) Priority() int                { return p.cfg.Priority }
func (p *Provider) Enabled() bool                { return p.cfg.Enabled }
func (p *Provider) Pool() *keypool.Pool          { return p.pool }

// comparison is one vendor quote in the Makcorps response.
type comparison struct {
	Vendor   string  `json:"vendor"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

type hotelResponse struct {
	Comparison []comparison `json:"comparison"`
	Message    string       `json:"message"`
}

func (p *Provider) Lookup(ctx context.Context, hotel priceproviders.HotelRef, params priceproviders.SearchParams) (result *priceproviders.PriceResult, err error) {
	start := time.Now()
	defer func() { priceproviders.Observe(Key, start, err) }()

	if hotel.ProviderRefID == "" {
		return nil, priceproviders.NewError(Key, priceproviders.KindNotFound,
			fmt.Errorf("hotel %s has no makcorps mapping", hotel.ID))
	}

	cred, err := p.pool.Acquire()
	if err != nil {
		if errors.Is(err, keypool.ErrAllExhausted) || errors.Is(err, keypool.ErrNoKeys) {
			return nil, priceproviders.NewError(Key, priceproviders.KindExhausted, err)
		}
		return nil, err
	}

	q := url.Values{}
	q.Set("hotelid", hotel.ProviderRefID)
	q.Set("checkin", params.CheckIn)
	q.Set("checkout", params.CheckOut)
	q.Set("adults", strconv.Itoa(params.Adults))
	q.Set("currency", params.Currency)
	q.Set("api_key", cred.SecretRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/hotel?"+q.Encode(), nil)
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

	var hr hotelResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, priceproviders.NewError(Key, priceproviders.KindTransient, fmt.Errorf("decode response: %w", err))
	}

	p.pool.ReportSuccess(ctx, cred.ID)

	// Take the cheapest vendor quote; the aggregator returns one entry per
	// booking site.
	best := comparison{}
	for _, c := range hr.Comparison {
		if c.Price <= 0 {
			continue
		}
		if best.Price == 0 || c.Price < best.Price {
			best = c
		}
	}
	if best.Price == 0 {
		return nil, priceproviders.NewError(Key, priceproviders.KindNotFound,
			fmt.Errorf("no vendor quotes for hotel %s", hotel.ProviderRefID))
	}

	currency := best.Currency
	if currency == "" {
		currency = params.Currency
	}
	return &priceproviders.PriceResult{
		HotelID:    hotel.ID,
		Provider:   Key,
		Vendor:     best.Vendor,
		Price:      best.Price,
		Currency:   currency,
		CheckIn:    params.CheckIn,
		Adults:     params.Adults,
		ObservedAt: time.Now(),
	}, nil
}
