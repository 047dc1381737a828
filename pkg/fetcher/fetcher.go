// Package fetcher retrieves pages that resist automated access.
//
// Retrieval walks a ladder of strategies, each more expensive than the last:
// a direct HTTP fetch with realistic browser headers, a few alternate browser
// fingerprints, and finally headless Chrome rendering. The Engine stops at the
// first response the blocking Detector accepts; if none is accepted it hands
// back the best response it saw marked as low confidence.
//
// Implement the Strategy interface to add rungs with other evasion or
// authentication requirements.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Strategy is one rung of the retrieval ladder.
type Strategy interface {
	// Name identifies the strategy in outcomes and logs (e.g. "direct").
	Name() string

	// Eligible reports whether the strategy should run given what earlier
	// rungs produced.
	Eligible(req Request, p Progress) bool

	// Attempt performs the retrieval. Transport failures are returned as
	// *TransportError.
	Attempt(ctx context.Context, req Request) (*Outcome, error)
}

// Progress is the ladder state handed to Strategy.Eligible.
type Progress struct {
	Attempted int      // strategies run so far
	Accepted  *Outcome // last outcome the detector accepted, if any
	Best      *Outcome // best rejected outcome so far, if any
	// WantsBrowser is set when an earlier outcome looked like a JavaScript
	// shell that only a browser can fill in.
	WantsBrowser bool
}

// Request describes one retrieval.
type Request struct {
	URL          string
	UserAgent    string        // overrides rotation when set
	AuthToken    string        // sent as a bearer token
	Referer      string        // defaults to Config.Referer
	Timeout      time.Duration // per network call; defaults to Config.Timeout
	ForceBrowser bool
	Delay        time.Duration // politeness delay; zero picks a random one
}

// Outcome is a response produced by a strategy. It is never modified after
// the engine returns it.
type Outcome struct {
	RequestURL    string
	FinalURL      string
	StatusCode    int
	Header        http.Header
	Body          []byte
	Redirects     int
	Elapsed       time.Duration
	Strategy      string
	FetchedAt     time.Time
	BlockReason   string // why the detector rejected it, if it did
	LowConfidence bool   // set when no strategy produced an accepted response
}

// ContentType returns the declared Content-Type header.
func (o *Outcome) ContentType() string {
	if o == nil || o.Header == nil {
		return ""
	}
	return o.Header.Get("Content-Type")
}

// Error types for distinguishing failure reasons.
// Check with errors.Is(err, fetcher.ErrTransport).
var (
	// ErrTransport indicates a network-level failure (DNS, connect, TLS, timeout).
	ErrTransport = errors.New("transport error")
	// ErrBlocked indicates a response judged to be a bot wall.
	ErrBlocked = errors.New("blocked content")
	// ErrRetrieval indicates that no strategy produced any response.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrBrowserUnavailable indicates Chrome could not be started.
	ErrBrowserUnavailable = errors.New("browser unavailable")
)

// TransportError wraps a network failure seen by one strategy.
type TransportError struct {
	Strategy string
	URL      string
	Err      error
	// Unreachable is set for failures no other strategy can fix: DNS
	// resolution, refused connections and TLS verification.
	Unreachable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrTransport, e.Strategy, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// BlockedError explains why a response was rejected.
type BlockedError struct {
	Strategy string
	Reason   string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrBlocked, e.Strategy, e.Reason)
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// cleanText collapses whitespace runs.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
