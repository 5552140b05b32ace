// Package fetch performs single-attempt GET requests for listing pages,
// article bodies, and images.
//
// Every transport-level failure (connection error, timeout, non-2xx
// status, malformed URL) is reported as a *FetchError that matches
// ErrUnreachable. Callers treat that as "resource unavailable" and never
// as fatal to the run.
package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	bodyKey   = "body"
	statusKey = "status"
)

// ErrUnreachable matches every error returned by Client.Fetch.
var ErrUnreachable = errors.New("fetch: resource unreachable")

// Kind classifies a fetch failure.
type Kind string

// KindUnreachable is the only failure class; there are no retries.
const KindUnreachable Kind = "unreachable"

// FetchError describes a failed fetch.
type FetchError struct {
	URL        string
	Kind       Kind
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is reports whether target is ErrUnreachable.
func (e *FetchError) Is(target error) bool {
	return target == ErrUnreachable && e.Kind == KindUnreachable
}

// Fetcher retrieves the raw bytes behind a URL.
type Fetcher interface {
	Fetch(url string) ([]byte, error)
}

// Options configures the client.
type Options struct {
	// Timeout bounds each request.
	// Default: 10s
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultOptions returns options with the default timeout.
func DefaultOptions() Options {
	return Options{
		Timeout:   10 * time.Second,
		UserAgent: "image-weaver/1.0",
	}
}

// Client is a Fetcher backed by a synchronous colly collector. It is safe for
// concurrent use.
type Client struct {
	collector *colly.Collector
}

// NewClient creates a new client with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(0),
		colly.IgnoreRobotsTxt(),
	)
	if opts.UserAgent != "" {
		c.UserAgent = opts.UserAgent
	}
	c.SetRequestTimeout(opts.Timeout)

	// colly rejects everything from 203 up; the 2xx check is done in Fetch
	c.ParseHTTPErrorResponse = true

	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(statusKey, r.StatusCode)
		r.Ctx.Put(bodyKey, r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(statusKey, r.StatusCode)
		}
	})

	return &Client{collector: c}
}

// Fetch performs one GET request and returns the response body.
func (c *Client) Fetch(url string) ([]byte, error) {
	ctx := colly.NewContext()

	if err := c.collector.Request("GET", url, nil, ctx, nil); err != nil {
		status, _ := ctx.GetAny(statusKey).(int)
		return nil, &FetchError{URL: url, Kind: KindUnreachable, StatusCode: status, Err: err}
	}

	status, _ := ctx.GetAny(statusKey).(int)
	if status < 200 || status > 299 {
		return nil, &FetchError{URL: url, Kind: KindUnreachable, StatusCode: status, Err: errors.New(http.StatusText(status))}
	}

	body, ok := ctx.GetAny(bodyKey).([]byte)
	if !ok {
		return nil, &FetchError{URL: url, Kind: KindUnreachable, Err: errors.New("no response body")}
	}
	return body, nil
}
