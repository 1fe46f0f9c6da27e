package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"farmrent/internal/apperr"
)

// DefaultCoinGeckoEndpoint is the public simple price API.
const DefaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// Upstream failure modes. All of them are absorbed by the fallback rate.
var (
	ErrUpstreamStatus   = errors.New("oracle: unexpected upstream status")
	ErrMalformedPayload = errors.New("oracle: malformed upstream payload")
	ErrInvalidRate      = apperr.Define(apperr.ErrValidation, "exchange rate must be positive")
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CoinGeckoSource reads rates from a CoinGecko compatible simple price endpoint:
// GET {endpoint}?ids={asset}&vs_currencies={fiat} → {"ethereum":{"inr":200000}}.
type CoinGeckoSource struct {
	client   HTTPDoer
	endpoint string
}

// NewCoinGeckoSource creates a source. An empty endpoint selects the public API.
func NewCoinGeckoSource(client HTTPDoer, endpoint string) *CoinGeckoSource {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = DefaultCoinGeckoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &CoinGeckoSource{client: client, endpoint: ep}
}

// Name identifies the source in quotes
func (s *CoinGeckoSource) Name() string {
	return "coingecko"
}

// FetchRate returns fiat units per one unit of asset.
func (s *CoinGeckoSource) FetchRate(ctx context.Context, fiat, asset string) (*big.Rat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("ids", asset)
	values.Set("vs_currencies", fiat)
	req.URL.RawQuery = values.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d: %s", ErrUpstreamStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]interface{}
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	entry, ok := payload[asset]
	if !ok {
		return nil, fmt.Errorf("%w: no quote for %s", ErrMalformedPayload, asset)
	}
	raw, ok := entry[fiat]
	if !ok {
		return nil, fmt.Errorf("%w: no %s price for %s", ErrMalformedPayload, fiat, asset)
	}

	var priceStr string
	switch v := raw.(type) {
	case json.Number:
		priceStr = v.String()
	case string:
		priceStr = v
	case float64:
		priceStr = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil, fmt.Errorf("%w: price has type %T", ErrMalformedPayload, raw)
	}

	rate, ok := new(big.Rat).SetString(strings.TrimSpace(priceStr))
	if !ok {
		return nil, fmt.Errorf("%w: unparseable price %q", ErrMalformedPayload, priceStr)
	}
	if rate.Sign() <= 0 {
		return nil, ErrInvalidRate
	}
	return rate, nil
}
