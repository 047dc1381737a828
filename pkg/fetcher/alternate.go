package fetcher

import (
	"context"
	"errors"
	"net/http"

	"github.com/jmylchreest/docsift/internal/logger"
)

// AlternateStrategy retries a blocked URL under other browser fingerprints.
// Every profile is tried; the longest response the detector accepts wins.
type AlternateStrategy struct {
	cfg       *Config
	profiles  []HeaderProfile
	transport http.RoundTripper
	detector  *Detector
}

// NewAlternate creates the second rung.
func NewAlternate(cfg *Config, transport http.RoundTripper, detector *Detector) *AlternateStrategy {
	return &AlternateStrategy{
		cfg:       cfg,
		profiles:  cfg.AlternateProfiles,
		transport: transport,
		detector:  detector,
	}
}

// Name returns the strategy name.
func (s *AlternateStrategy) Name() string { return "alternate-headers" }

// Eligible is true while nothing has been accepted.
func (s *AlternateStrategy) Eligible(_ Request, p Progress) bool {
	return p.Attempted > 0 && p.Accepted == nil && len(s.profiles) > 0
}

// Attempt tries each profile in turn. When every response is blocked the
// longest one is returned so the ladder can still fall back to it.
func (s *AlternateStrategy) Attempt(ctx context.Context, req Request) (*Outcome, error) {
	var (
		bestOK      *Outcome
		bestBlocked *Outcome
		errs        []error
	)

	for _, profile := range s.profiles {
		out, err := fetchWithRetry(ctx, s.cfg, s.transport, s.Name(), req, profile)
		if err != nil {
			errs = append(errs, err)
			var terr *TransportError
			if errors.As(err, &terr) && terr.Unreachable {
				return nil, err
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if v := s.detector.Inspect(out); v.Blocked {
			logger.Debug("alternate profile blocked", "profile", profile.Name, "url", req.URL, "reason", v.Reason)
			if bestBlocked == nil || len(out.Body) > len(bestBlocked.Body) {
				bestBlocked = out
			}
			continue
		}
		if bestOK == nil || len(out.Body) > len(bestOK.Body) {
			bestOK = out
		}
	}

	switch {
	case bestOK != nil:
		return bestOK, nil
	case bestBlocked != nil:
		return bestBlocked, nil
	case len(errs) > 0:
		return nil, errors.Join(errs...)
	default:
		return nil, newTransportError(s.Name(), req.URL, errNoResponse)
	}
}
