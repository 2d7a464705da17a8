// Package cse talks to the unofficial Colombo Stock Exchange API. The API is
// browser-oriented: endpoints are POST-only form requests and expect session
// cookies obtained by visiting the homepage first.
package cse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"cseflow/logger"
)

// Endpoint name constants for the stable, publicly accessible endpoints.
const (
	EndpointMarketStatus  = "marketStatus"
	EndpointMarketSummary = "marketSummery" // CSE's spelling
	EndpointSharePrices   = "todaySharePrice"
	EndpointTradeSummary  = "tradeSummary"
	EndpointASPI          = "aspiData"
	EndpointSNP           = "snpData"
	EndpointTopGainers    = "topGainers"
	EndpointTopLosers     = "topLooses" // CSE's spelling
	EndpointSectors       = "allSectors"
	EndpointCompanyInfo   = "companyInfoSummery"
)

// Fetcher is the upstream collaborator consumed by the scheduler. Failures
// surface as (nil, error); implementations never panic through this
// boundary.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (interface{}, error)
	CompanyInfo(ctx context.Context, symbol string) (interface{}, error)
}

// Client implements Fetcher against the live CSE API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Log
}

// NewClient builds a client and bootstraps the session by visiting the CSE
// homepage for cookies. A failed bootstrap is logged but not fatal; some
// endpoints answer without a session.
func NewClient(baseURL string, timeout time.Duration, log *logger.Log) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		log: log,
	}
	c.initSession()
	return c
}

func (c *Client) initSession() {
	log := c.log.WithComponent("cse_client")
	log.Debug("initializing session")

	req, err := http.NewRequest(http.MethodGet, c.baseURL, nil)
	if err != nil {
		log.WithError(err).Warn("failed to build session request")
		return
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("session initialization failed")
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	log.Debug("session initialized")
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
}

// Fetch posts to one API endpoint and decodes the JSON response. The
// returned payload is an untyped map or slice; its schema belongs to the
// upstream, not to us.
func (c *Client) Fetch(ctx context.Context, endpoint string) (interface{}, error) {
	return c.post(ctx, endpoint, nil)
}

// CompanyInfo fetches per-symbol metadata. The upstream expects the symbol
// form value uppercased.
func (c *Client) CompanyInfo(ctx context.Context, symbol string) (interface{}, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	form := url.Values{"symbol": {strings.ToUpper(symbol)}}
	return c.post(ctx, EndpointCompanyInfo, form)
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (interface{}, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		// Keep enough of the body for diagnosis without re-running.
		return nil, fmt.Errorf("fetch %s: HTTP %d: %s", endpoint, resp.StatusCode, snippet(data))
	}

	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return payload, nil
}

func snippet(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
