package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/vodrules/internal/utils"
)

const (
	// SaltParam is the query parameter carrying the cache-busting salt.
	SaltParam = "_t"

	maxPayloadBytes = 8 << 20
)

// Fetcher performs one network request against an aggregator API endpoint.
// Implementations must not return transport problems as panics or errors:
// every outcome is a Result.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, salt string) Result
}

// Options configure the HTTP fetcher.
type Options struct {
	Timeout      time.Duration // per-request timeout
	UserAgent    string
	ProxyURL     string  // empty = proxy from environment
	ListingQuery string  // extra query merged into every endpoint (ex: "ac=videolist")
	Rate         float64 // requests per second across all sites, 0 = unlimited
	Client       *http.Client
}

// HTTPFetcher queries endpoints over HTTP(S).
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	listing   url.Values
	limiter   *rate.Limiter
}

// New creates an HTTP fetcher.
func New(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}

	listing, err := url.ParseQuery(opts.ListingQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid listing query %q: %w", opts.ListingQuery, err)
	}

	client := opts.Client
	if client == nil {
		proxy := http.ProxyFromEnvironment
		if opts.ProxyURL != "" {
			u, err := url.Parse(opts.ProxyURL)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy url %q: %w", opts.ProxyURL, err)
			}
			proxy = http.ProxyURL(u)
		}
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: proxy,
				DialContext: (&net.Dialer{
					Timeout:   opts.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   opts.Timeout,
				ResponseHeaderTimeout: opts.Timeout,
				MaxIdleConnsPerHost:   2,
				IdleConnTimeout:       30 * time.Second,
			},
		}
	}

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	return &HTTPFetcher{
		client:    client,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		listing:   listing,
		limiter:   limiter,
	}, nil
}

// Fetch requests endpoint once with the salt as cache-busting parameter.
func (f *HTTPFetcher) Fetch(ctx context.Context, endpoint string, salt string) Result {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return failure(FailureCanceled, err)
		}
	}

	target, err := f.requestURL(endpoint, salt)
	if err != nil {
		return failure(FailureMalformed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return failure(FailureMalformed, fmt.Errorf("failed to create request: %w", err))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/json, text/xml;q=0.9, */*;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return failure(classify(ctx, err), err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{Failure: &Failure{Kind: FailureStatus, Status: resp.StatusCode}}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return failure(classify(ctx, err), fmt.Errorf("failed to read body: %w", err))
	}
	if len(body) > maxPayloadBytes {
		return failure(FailureMalformed, errors.New("payload too large"))
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return failure(FailureMalformed, errors.New("empty payload"))
	}

	return Result{Payload: body}
}

// requestURL merges the listing query and the salt into endpoint.
func (f *HTTPFetcher) requestURL(endpoint, salt string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	q := u.Query()
	for k, vs := range f.listing {
		if q.Get(k) == "" {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
	}
	if salt != "" {
		q.Set(SaltParam, salt)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func failure(kind FailureKind, err error) Result {
	return Result{Failure: &Failure{Kind: kind, Err: err}}
}

func classify(ctx context.Context, err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return FailureCanceled
	}
	return FailureTransport
}
