// Package jellyfin is a minimal client for the item and video endpoints of
// the Jellyfin HTTP API.
package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/httpclient"
)

// StatusError is returned for any non-2xx API response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("jellyfin %s returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("jellyfin %s returned status %d: %s", e.Op, e.Status, e.Body)
}

// Client talks to one Jellyfin server with a fixed access token. The token
// travels as the api_key query parameter on every call.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	items   singleflight.Group
}

// Request pacing for the default client.
const (
	requestsPerSecond = 10
	requestBurst      = 5
)

// DefaultHTTPClient returns the paced, trace-logged client used when none is
// supplied.
func DefaultHTTPClient() *http.Client {
	return httpclient.New(httpclient.Options{
		Name:              "jellyfin",
		Timeout:           config.GetTimeouts().HTTPClient,
		RequestsPerSecond: requestsPerSecond,
		Burst:             requestBurst,
	})
}

// NewClient creates a client. A nil httpClient uses DefaultHTTPClient.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// GetItem fetches item metadata. Concurrent lookups of the same id share one
// request.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	v, err, shared := c.items.Do(itemID, func() (any, error) {
		var item Item
		if err := c.getJSON(ctx, "item lookup", "/Items/"+url.PathEscape(itemID), nil, &item); err != nil {
			return nil, err
		}
		return &item, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Trace().Str("item_id", itemID).Msg("Item lookup coalesced")
	}
	item := *v.(*Item)
	return &item, nil
}

// GetSeasons lists a series' seasons in server order.
func (c *Client) GetSeasons(ctx context.Context, seriesID string) ([]Item, error) {
	var resp itemsResponse
	if err := c.getJSON(ctx, "season listing", "/Shows/"+url.PathEscape(seriesID)+"/Seasons", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetEpisodes lists the episodes of one season in server order.
func (c *Client) GetEpisodes(ctx context.Context, seriesID, seasonID string) ([]Item, error) {
	var resp itemsResponse
	q := [][2]string{{"seasonId", seasonID}}
	if err := c.getJSON(ctx, "episode listing", "/Shows/"+url.PathEscape(seriesID)+"/Episodes", q, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, params [][2]string, out any) error {
	endpoint := c.endpoint(path, append(params, [2]string{"api_key", c.token})...)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// endpoint joins path onto the base URL with params in the given order.
func (c *Client) endpoint(path string, params ...[2]string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString(path)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}
