package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrLookupFailed is returned when the provider cannot resolve the address
// to a country.
var ErrLookupFailed = errors.New("country lookup failed")

// Client resolves IP addresses to ISO country codes via ip-api.com.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Status      string `json:"status"`
	CountryCode string `json:"countryCode"`
	Query       string `json:"query"`
}

// CountryCode returns the two-letter country code for ip, or ErrLookupFailed
// when the provider reports a failure or an indeterminate result.
func (c *Client) CountryCode(ctx context.Context, ip string) (string, error) {
	endpoint := fmt.Sprintf("%s/json/%s?fields=status,countryCode,query", c.baseURL, url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup request: unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode lookup response: %w", err)
	}

	if body.Status != "success" || body.CountryCode == "" {
		return "", ErrLookupFailed
	}
	return body.CountryCode, nil
}
