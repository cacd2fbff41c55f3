package extractor

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
	"github.com/MrSnakeDoc/vodrules/internal/fetcher"
)

// Policy controls how a site is queried. Aggregator backends load-balance
// across shards, so several salted attempts see more playback hosts than one.
type Policy struct {
	Attempts int           // requests per site
	Delay    time.Duration // pause between two requests
	Jitter   time.Duration // random extra pause, [0, Jitter)
	Salt     func() string // cache-busting value, one per attempt
}

// RandomSalt returns a random decimal salt.
func RandomSalt() string {
	return strconv.FormatUint(rand.Uint64N(1<<53), 10)
}

func (p Policy) pause() time.Duration {
	d := p.Delay
	if p.Jitter > 0 {
		d += rand.N(p.Jitter)
	}
	return d
}

// Attempt is the outcome of one request.
type Attempt struct {
	Hosts   []string
	Failure *fetcher.Failure
	Err     error // payload could not be parsed
}

// Productive reports whether the attempt yielded any hostname.
func (a Attempt) Productive() bool { return len(a.Hosts) > 0 }

// Extraction is the union of all attempts against one site.
type Extraction struct {
	Hosts    domain.Set
	Attempts []Attempt
}

// Failures counts attempts that produced no payload or an unreadable one.
func (e Extraction) Failures() int {
	n := 0
	for _, a := range e.Attempts {
		if a.Failure != nil || a.Err != nil {
			n++
		}
	}
	return n
}

// Extractor turns aggregator responses into observed hostnames.
type Extractor struct {
	fetcher    fetcher.Fetcher
	policy     Policy
	fields     Fields
	minHostLen int
}

// New creates an extractor. Hosts with length <= minHostLen are noise.
func New(f fetcher.Fetcher, policy Policy, fields Fields, minHostLen int) *Extractor {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Salt == nil {
		policy.Salt = RandomSalt
	}
	return &Extractor{
		fetcher:    f,
		policy:     policy,
		fields:     fields,
		minHostLen: minHostLen,
	}
}

// Hosts returns the hostnames of every URL in rec, ports stripped, noise dropped.
func (e *Extractor) Hosts(rec PlaybackRecord) []string {
	seen := make(domain.Set)
	hosts := make([]string, 0, len(rec.URLs))
	for _, raw := range rec.URLs {
		h, ok := domain.HostFromURL(raw)
		if !ok || len(h) <= e.minHostLen || seen.Has(h) {
			continue
		}
		seen.Add(h)
		hosts = append(hosts, h)
	}
	return hosts
}

// FromResult maps one request result to an attempt. Failures and unreadable
// payloads become an empty observation.
func (e *Extractor) FromResult(res fetcher.Result) Attempt {
	if !res.OK() {
		return Attempt{Failure: res.Failure}
	}
	rec, err := ParsePayload(res.Payload, e.fields)
	if err != nil {
		return Attempt{Err: err}
	}
	return Attempt{Hosts: e.Hosts(rec)}
}

// Extract requests one site Attempts times, sequentially, pausing between
// attempts, and unions the hostnames seen. The site's own API hostname is
// always part of the result. Extract returns early only when ctx is done.
func (e *Extractor) Extract(ctx context.Context, site domain.SiteDescriptor) Extraction {
	out := Extraction{Hosts: domain.NewSet()}
	if h, ok := domain.HostFromURL(site.APIEndpoint); ok && len(h) > e.minHostLen {
		out.Hosts.Add(h)
	}

	for i := 0; i < e.policy.Attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(e.policy.pause())
			select {
			case <-ctx.Done():
				timer.Stop()
				return out
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return out
		}

		a := e.FromResult(e.fetcher.Fetch(ctx, site.APIEndpoint, e.policy.Salt()))
		for _, h := range a.Hosts {
			out.Hosts.Add(h)
		}
		out.Attempts = append(out.Attempts, a)
	}
	return out
}
