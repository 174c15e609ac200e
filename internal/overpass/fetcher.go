// Package overpass fetches OpenStreetMap features from Overpass-style
// endpoints.
//
// Public Overpass mirrors are interchangeable but individually unreliable:
// any one of them may be down, overloaded, or rate limiting at a given
// moment. The Fetcher therefore walks a prioritized endpoint list in strict
// order and stops at the first usable response. There is no ranking memory
// between calls and no re-try of a failed endpoint within a call; every call
// restarts from the front of the list.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// defaultConnectTimeout bounds dialing a single mirror.
	defaultConnectTimeout = 5 * time.Second

	// defaultAttemptTimeout bounds one full request/response cycle against a
	// single mirror, matching the [timeout:25] we put into the query itself.
	defaultAttemptTimeout = 25 * time.Second

	// defaultPause is the fixed delay between consecutive mirror attempts,
	// small enough not to matter for latency, large enough not to hammer.
	defaultPause = 125 * time.Millisecond
)

// Attempt records the outcome of one endpoint try, for diagnostics when the
// whole list is exhausted.
type Attempt struct {
	Endpoint string        `json:"endpoint"`
	Status   int           `json:"status,omitempty"`
	Latency  time.Duration `json:"latency_ms"`
	Err      string        `json:"error,omitempty"`
}

// ExhaustedError reports that every configured endpoint failed.
//
// It carries the per-endpoint attempt records so the operator can tell a
// dead mirror list from a malformed query.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d endpoints failed", len(e.Attempts))
	for _, a := range e.Attempts {
		b.WriteString("; ")
		b.WriteString(a.Endpoint)
		if a.Status != 0 {
			fmt.Fprintf(&b, " status=%d", a.Status)
		}
		if a.Err != "" {
			fmt.Fprintf(&b, " err=%s", a.Err)
		}
	}
	return b.String()
}

// Result is a successful fetch: the raw response body, the endpoint that
// served it, and the attempts made along the way (including failed ones).
type Result struct {
	Body     []byte
	Endpoint string
	Attempts []Attempt
}

// Fetcher issues a query against an ordered list of equivalent endpoints.
//
// The zero value is not usable; set Endpoints. All other fields default
// sensibly.
type Fetcher struct {
	// Endpoints are tried strictly in slice order.
	Endpoints []string

	// UserAgent identifies this importer to the public mirrors. Public
	// Overpass operators require a descriptive agent.
	UserAgent string

	// AttemptTimeout bounds one endpoint try. <=0 means the default (25s).
	AttemptTimeout time.Duration

	// Pause is the delay between attempts. <=0 means the default (125ms).
	Pause time.Duration

	// Client overrides the HTTP client. Nil means a default client with a
	// bounded connect timeout.
	Client *http.Client

	// sleep and now are test seams; production code leaves them nil.
	sleep func(d time.Duration)
	now   func() time.Time
}

// Fetch POSTs the query to each endpoint in order and returns the first
// response with a 2xx status and a non-empty body.
//
// On success the remaining endpoints are not contacted. When every endpoint
// fails, the returned error is an *ExhaustedError carrying all attempts.
// ctx cancellation aborts the walk between and during attempts.
func (f *Fetcher) Fetch(ctx context.Context, query string) (*Result, error) {
	if len(f.Endpoints) == 0 {
		return nil, fmt.Errorf("overpass: no endpoints configured")
	}

	client := f.Client
	if client == nil {
		client = defaultClient()
	}
	attemptTimeout := f.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	pause := f.Pause
	if pause <= 0 {
		pause = defaultPause
	}
	sleep := f.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	now := f.now
	if now == nil {
		now = time.Now
	}

	attempts := make([]Attempt, 0, len(f.Endpoints))
	for i, endpoint := range f.Endpoints {
		if i > 0 {
			sleep(pause)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := now()
		body, status, err := f.attempt(ctx, client, attemptTimeout, endpoint, query)
		a := Attempt{
			Endpoint: endpoint,
			Status:   status,
			Latency:  now().Sub(start),
		}
		if err != nil {
			a.Err = err.Error()
			attempts = append(attempts, a)
			continue
		}

		attempts = append(attempts, a)
		return &Result{Body: body, Endpoint: endpoint, Attempts: attempts}, nil
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

// attempt runs one endpoint try under its own timeout.
func (f *Fetcher) attempt(ctx context.Context, client *http.Client, timeout time.Duration, endpoint, query string) ([]byte, int, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(actx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}
	if len(body) == 0 {
		return nil, resp.StatusCode, fmt.Errorf("empty body")
	}
	return body, resp.StatusCode, nil
}

// Decode parses a fetched body into the Overpass response envelope.
func Decode(body []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	return &r, nil
}

// defaultClient builds an HTTP client with a bounded connect timeout.
// The per-attempt deadline comes from the request context, not the client.
func defaultClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: defaultConnectTimeout,
			}).DialContext,
			TLSHandshakeTimeout: defaultConnectTimeout,
			MaxConnsPerHost:     4,
		},
	}
}
