// Package wb fetches advertising campaigns from the Wildberries advert API.
package wb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

const (
	// DefaultBaseURL is the production advert API.
	DefaultBaseURL = "https://advert-api.wildberries.ru"

	advertsPath = "/adv/v1/promotion/adverts"

	// only auction (8) and automatic (9) campaigns that are active (9) or paused (11)
	advertsQuery = "type=8,9&status=9,11&order=change&direction=asc"

	maxBodyBytes  = 16 << 20
	maxErrorBytes = 4096
)

// Client calls the advert API. It implements tracking.Fetcher.
type Client struct {
	url    string
	client *http.Client
}

// New creates a Client for baseURL (DefaultBaseURL when empty). The HTTP
// client has no overall timeout: callers bound requests through the context.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		url: strings.TrimRight(baseURL, "/") + advertsPath + "?" + advertsQuery,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Fetch returns the active and paused campaigns visible to key. A non-200
// response is returned as *tracking.FetchError with the response body.
func (c *Client) Fetch(ctx context.Context, key string) ([]tracking.Campaign, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("wb: create request: %w", err)
	}
	req.Header.Set("Authorization", key)
	req.Header.Set("Accept", "*/*")

	resp, err := c.client.Do(req) //nolint:gosec // G704: base URL is from trusted config
	if err != nil {
		return nil, fmt.Errorf("wb: post adverts: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return nil, &tracking.FetchError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("wb: read response: %w", err)
	}
	return parseCampaigns(body)
}

// parseCampaigns accepts either a bare array or an object with an "adverts"
// array. Entries without an advertId are skipped.
func parseCampaigns(body []byte) ([]tracking.Campaign, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("wb: response is not valid JSON")
	}

	root := gjson.ParseBytes(body)
	list := root
	if !root.IsArray() {
		list = root.Get("adverts")
	}

	out := []tracking.Campaign{}
	if !list.IsArray() {
		return out, nil
	}
	list.ForEach(func(_, v gjson.Result) bool {
		id := v.Get("advertId")
		if !id.Exists() {
			return true
		}
		out = append(out, tracking.Campaign{
			AdvertID: id.Int(),
			Name:     v.Get("name").String(),
			Status:   tracking.Status(v.Get("status").Int()),
		})
		return true
	})
	return out, nil
}
