// Package urlnorm resolves tracking-redirect URLs into the URL they point at.
//
// Email and newsletter platforms wrap outbound links in click-tracking
// endpoints such as
//
//	https://links.example.net/track/click?p=eyJ1cmwiOiJodHRwcy...
//
// where the p parameter is base64url-encoded JSON carrying the destination in
// a "url" field. Normalize unwraps such links and leaves everything else
// untouched. It never fails: decode problems are logged and the input is
// returned as given.
package urlnorm

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmylchreest/docsift/internal/logger"
)

// ErrDecode is the sentinel wrapped by every DecodeError.
var ErrDecode = errors.New("tracking url decode failed")

// DecodeError describes which stage of unwrapping a tracking URL failed.
type DecodeError struct {
	Stage string // "parse", "param", "base64", "json", "field", "unescape"
	URL   string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s stage: %v", ErrDecode, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s stage", ErrDecode, e.Stage)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// Config controls which URLs are treated as tracking redirects.
type Config struct {
	// Markers are path substrings identifying a tracking endpoint.
	Markers []string `mapstructure:"markers"`
	// Param is the query parameter holding the encoded payload.
	Param string `mapstructure:"param"`
	// Field is the JSON key holding the destination URL.
	Field string `mapstructure:"field"`
	// MaxDepth bounds how many nested tracking layers are unwrapped.
	MaxDepth int `mapstructure:"max_depth"`
}

// DefaultConfig returns the settings used by the package-level functions.
func DefaultConfig() Config {
	return Config{
		Markers:  []string{"track/click"},
		Param:    "p",
		Field:    "url",
		MaxDepth: 5,
	}
}

// Normalizer unwraps tracking-redirect URLs.
type Normalizer struct {
	cfg Config
}

// New creates a Normalizer, filling unset fields from DefaultConfig.
func New(cfg Config) *Normalizer {
	def := DefaultConfig()
	if len(cfg.Markers) == 0 {
		cfg.Markers = def.Markers
	}
	if cfg.Param == "" {
		cfg.Param = def.Param
	}
	if cfg.Field == "" {
		cfg.Field = def.Field
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	return &Normalizer{cfg: cfg}
}

var defaultNormalizer = New(DefaultConfig())

// Normalize unwraps raw with the default configuration.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Resolve unwraps raw with the default configuration and reports failures.
func Resolve(raw string) (string, error) {
	return defaultNormalizer.Resolve(raw)
}

// IsTracking reports whether raw looks like a tracking-redirect URL.
func (n *Normalizer) IsTracking(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, marker := range n.cfg.Markers {
		if strings.Contains(u.Path, marker) {
			return true
		}
	}
	return false
}

// Normalize returns the destination of a tracking URL, or raw unchanged when
// raw is not a tracking URL or cannot be decoded. Nested tracking layers are
// unwrapped until a fixpoint, so Normalize(Normalize(u)) == Normalize(u).
func (n *Normalizer) Normalize(raw string) string {
	resolved, err := n.Resolve(raw)
	if err != nil {
		logger.Warn("tracking url left unchanged", "url", raw, "error", err)
		return raw
	}
	return resolved
}

// Resolve is Normalize with the decode failure returned instead of logged.
// On error the returned string is always raw.
func (n *Normalizer) Resolve(raw string) (string, error) {
	current := raw
	for depth := 0; depth < n.cfg.MaxDepth; depth++ {
		if !n.IsTracking(current) {
			break
		}
		next, err := n.unwrap(current)
		if err != nil {
			if depth == 0 {
				return raw, err
			}
			// An outer layer decoded fine; keep its result.
			logger.Debug("nested tracking layer not decodable", "url", current, "error", err)
			break
		}
		logger.Debug("tracking url unwrapped", "from", current, "to", next)
		if next == current {
			break
		}
		current = next
	}
	return current, nil
}

func (n *Normalizer) unwrap(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", &DecodeError{Stage: "parse", URL: raw, Err: err}
	}
	// Query decoding turns a standard-alphabet '+' into a space; undo that.
	encoded := strings.ReplaceAll(u.Query().Get(n.cfg.Param), " ", "+")
	if encoded == "" {
		return "", &DecodeError{Stage: "param", URL: raw, Err: fmt.Errorf("query parameter %q missing", n.cfg.Param)}
	}

	payload, err := decodeBase64(encoded)
	if err != nil {
		return "", &DecodeError{Stage: "base64", URL: raw, Err: err}
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", &DecodeError{Stage: "json", URL: raw, Err: err}
	}
	target, ok := fields[n.cfg.Field].(string)
	if !ok || target == "" {
		return "", &DecodeError{Stage: "field", URL: raw, Err: fmt.Errorf("payload has no string %q field", n.cfg.Field)}
	}

	// PathUnescape keeps '+' literal, matching how the payload was encoded.
	unescaped, err := url.PathUnescape(target)
	if err != nil {
		return "", &DecodeError{Stage: "unescape", URL: raw, Err: err}
	}
	return unescaped, nil
}

// decodeBase64 accepts both URL-safe and standard alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	trimmed := strings.TrimRight(s, "=")
	var lastErr error
	for _, enc := range encodings {
		in := trimmed
		if enc == base64.URLEncoding || enc == base64.StdEncoding {
			in = pad(trimmed)
		}
		out, err := enc.DecodeString(in)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func pad(s string) string {
	if m := len(s) % 4; m != 0 {
		return s + strings.Repeat("=", 4-m)
	}
	return s
}
