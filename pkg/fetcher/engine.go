package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jmylchreest/docsift/internal/logger"
)

// Engine runs the strategy ladder.
type Engine struct {
	cfg        *Config
	detector   *Detector
	politeness *Politeness
	transport  *http.Transport
	strategies []Strategy
	downloader *Downloader
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategies replaces the default ladder.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Engine) {
		e.strategies = strategies
	}
}

// NewEngine builds the default ladder (direct, alternate headers, browser)
// from cfg.
func NewEngine(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	c := &cfg

	e := &Engine{
		cfg:        c,
		detector:   NewDetector(c.Blocking),
		politeness: NewPoliteness(c.Politeness),
		transport:  newTransport(c.PoolSize),
	}
	e.strategies = []Strategy{
		NewDirect(c, e.transport),
		NewAlternate(c, e.transport, e.detector),
		NewBrowser(c),
	}
	e.downloader = NewDownloader(c, e.transport)

	for _, opt := range opts {
		opt(e)
	}
	logger.Debug("fetch engine created",
		"strategies", len(e.strategies),
		"browser", c.Browser.Enabled,
		"stealth", c.Politeness.Stealth)
	return e
}

// Config returns the engine's resolved configuration.
func (e *Engine) Config() Config { return *e.cfg }

// Detector returns the blocking detector used by the ladder.
func (e *Engine) Detector() *Detector { return e.detector }

// Downloader returns the image downloader sharing the engine's connections.
func (e *Engine) Downloader() *Downloader { return e.downloader }

// Fetch waits out the politeness delay and then climbs the ladder.
//
// It returns the first accepted outcome (or, when a browser render is
// demanded after an accepted HTTP response, the rendered one). If nothing is
// accepted it returns the best rejected outcome with LowConfidence set. An
// error wrapping ErrRetrieval is returned only when no strategy produced a
// response at all, or immediately when the host is unreachable.
func (e *Engine) Fetch(ctx context.Context, req Request) (*Outcome, error) {
	delay := e.politeness.Delay(req.Delay)
	logger.Debug("politeness delay", "url", req.URL, "delay", delay)
	if err := sleepCtx(ctx, delay); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	var (
		p    Progress
		errs []error
	)
	for _, s := range e.strategies {
		if !s.Eligible(req, p) {
			continue
		}
		p.Attempted++

		out, err := s.Attempt(ctx, req)
		if err != nil {
			errs = append(errs, err)
			logger.Debug("strategy failed", "strategy", s.Name(), "url", req.URL, "error", err)

			var terr *TransportError
			if errors.As(err, &terr) && terr.Unreachable && p.Accepted == nil && p.Best == nil {
				return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}

		verdict := e.detector.Inspect(out)
		if verdict.Blocked {
			out.BlockReason = verdict.Reason
			logger.Warn("response blocked",
				"strategy", s.Name(), "url", req.URL, "status", out.StatusCode, "reason", verdict.Reason)
			if better(out, p.Best) {
				p.Best = out
			}
			continue
		}

		p.Accepted = out
		if _, rendered := s.(*BrowserStrategy); !rendered && LooksLikeShell(out) {
			p.WantsBrowser = true
			logger.Debug("response looks like a javascript shell", "url", req.URL)
		}
	}

	switch {
	case p.Accepted != nil:
		logger.Debug("fetch accepted", "url", req.URL, "strategy", p.Accepted.Strategy, "status", p.Accepted.StatusCode)
		return p.Accepted, nil
	case p.Best != nil:
		best := *p.Best
		best.LowConfidence = true
		logger.Warn("all strategies blocked, returning best effort",
			"url", req.URL, "strategy", best.Strategy, "reason", best.BlockReason)
		return &best, nil
	case len(errs) == 0:
		return nil, fmt.Errorf("%w: no eligible strategy for %s", ErrRetrieval, req.URL)
	default:
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, errors.Join(errs...))
	}
}

// better ranks blocked outcomes: anything beats nothing, a non-403 beats a
// 403, then the longer body wins.
func better(candidate, current *Outcome) bool {
	if current == nil {
		return true
	}
	cf, kf := candidate.StatusCode == http.StatusForbidden, current.StatusCode == http.StatusForbidden
	if cf != kf {
		return !cf
	}
	return len(candidate.Body) > len(current.Body)
}

// Close releases pooled connections and browser instances.
func (e *Engine) Close() error {
	var errs []error
	for _, s := range e.strategies {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	e.transport.CloseIdleConnections()
	return errors.Join(errs...)
}
