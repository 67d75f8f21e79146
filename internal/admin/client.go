package admin

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

	"github.com/Sedorikku1949/MioEngine/internal/shard"
	"github.com/Sedorikku1949/MioEngine/internal/state"
	"github.com/Sedorikku1949/MioEngine/internal/storage"
)

// StatusResponse is served on /status and streamed on /ws/state.
type StatusResponse struct {
	Version string              `json:"version"`
	Uptime  string              `json:"uptime"`
	State   state.Snapshot      `json:"state"`
	Shards  []shard.Info        `json:"shards"`
	Archive *storage.StoreStats `json:"archive,omitempty"`
}

// FlagsRequest toggles override flags. Nil fields are left untouched.
type FlagsRequest struct {
	Maintenance *bool `json:"maintenance,omitempty"`
	Dev         *bool `json:"dev,omitempty"`
	Debug       *bool `json:"debug,omitempty"`
}

// SectionsResponse lists the archive sections.
type SectionsResponse struct {
	Sections []string `json:"sections"`
}

// KeysResponse lists the keys of one archive section.
type KeysResponse struct {
	Section string   `json:"section"`
	Keys    []string `json:"keys"`
}

// ValueResponse carries one archive value, base64 encoded on the wire.
type ValueResponse struct {
	Section string `json:"section"`
	Key     string `json:"key"`
	Value   []byte `json:"value"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON sends body as JSON and decodes the reply into out when non-nil.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, out)
}

// GetJSON fetches url and decodes the JSON reply into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return do(req, out)
}

func do(req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr) == nil && apiErr.Detail != "" {
			return fmt.Errorf("http %s: %d: %s", req.URL, resp.StatusCode, apiErr.Detail)
		}
		return fmt.Errorf("http %s: %d", req.URL, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Client talks to a running instance's admin surface.
type Client struct {
	base string
}

// NewClient accepts "host:port" or a full http URL.
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: base}
}

// Status fetches /status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := GetJSON(ctx, c.base+"/status", &out)
	return out, err
}

// Flags fetches the current override flags.
func (c *Client) Flags(ctx context.Context) (state.Flags, error) {
	var out state.Flags
	err := GetJSON(ctx, c.base+"/flags", &out)
	return out, err
}

// SetFlags applies req and returns the resulting flags.
func (c *Client) SetFlags(ctx context.Context, req FlagsRequest) (state.Flags, error) {
	var out state.Flags
	err := PostJSON(ctx, c.base+"/flags", req, &out)
	return out, err
}

// Sections lists the archive sections.
func (c *Client) Sections(ctx context.Context) ([]string, error) {
	var out SectionsResponse
	err := GetJSON(ctx, c.base+"/archive/", &out)
	return out.Sections, err
}

// Keys lists the keys of one archive section.
func (c *Client) Keys(ctx context.Context, section string) ([]string, error) {
	var out KeysResponse
	err := GetJSON(ctx, c.archiveURL(section), &out)
	return out.Keys, err
}

// Get reads one archive value.
func (c *Client) Get(ctx context.Context, section, key string) ([]byte, error) {
	var out ValueResponse
	err := GetJSON(ctx, c.archiveURL(section, key), &out)
	return out.Value, err
}

// Put writes one archive value.
func (c *Client) Put(ctx context.Context, section, key string, value []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.archiveURL(section, key), bytes.NewReader(value))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return do(req, nil)
}

// Delete removes one archive value.
func (c *Client) Delete(ctx context.Context, section, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.archiveURL(section, key), nil)
	if err != nil {
		return err
	}
	return do(req, nil)
}

func (c *Client) archiveURL(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base + "/archive/" + strings.Join(escaped, "/")
}
