package urlnorm

import (
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
)

func trackingURL(payload string, enc *base64.Encoding) string {
	return "https://links.mailer.example/ls/track/click?p=" + url.QueryEscape(enc.EncodeToString([]byte(payload)))
}

// --- Normalize Tests ---

func TestNormalize_PassThrough(t *testing.T) {
	inputs := []string{
		"https://example.com/a",
		"http://example.com/page.html?x=1&y=2",
		"not a url at all",
		"",
		"https://example.com/track/other?p=abc",
	}
	for _, in := range inputs {
		if got := Normalize(in); got != in {
			t.Errorf("Normalize(%q) = %q, expected input unchanged", in, got)
		}
	}
}

func TestNormalize_DecodesTrackingURL(t *testing.T) {
	encodings := map[string]*base64.Encoding{
		"raw url": base64.RawURLEncoding,
		"url":     base64.URLEncoding,
		"std":     base64.StdEncoding,
	}
	for name, enc := range encodings {
		t.Run(name, func(t *testing.T) {
			in := trackingURL(`{"url": "https://example.com/a"}`, enc)
			if got := Normalize(in); got != "https://example.com/a" {
				t.Errorf("expected https://example.com/a, got %q", got)
			}
		})
	}
}

func TestNormalize_PercentDecodesTarget(t *testing.T) {
	in := trackingURL(`{"url":"https%3A%2F%2Fexample.com%2Fsearch%3Fq%3Da%2Bb","id":7}`, base64.RawURLEncoding)
	want := "https://example.com/search?q=a+b"
	if got := Normalize(in); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalize_FailuresReturnOriginal(t *testing.T) {
	cases := map[string]string{
		"missing param": "https://x.example/track/click?q=1",
		"bad base64":    "https://x.example/track/click?p=%%%%",
		"not json":      trackingURL("hello there", base64.RawURLEncoding),
		"missing field": trackingURL(`{"href":"https://example.com"}`, base64.RawURLEncoding),
		"non-string":    trackingURL(`{"url":42}`, base64.RawURLEncoding),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if got := Normalize(in); got != in {
				t.Errorf("expected original URL back, got %q", got)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inner := trackingURL(`{"url":"https://example.com/final"}`, base64.RawURLEncoding)
	outer := trackingURL(`{"url":"`+inner+`"}`, base64.RawURLEncoding)

	inputs := []string{
		"https://example.com/a",
		trackingURL(`{"url":"https://example.com/a"}`, base64.RawURLEncoding),
		outer,
		trackingURL("garbage", base64.RawURLEncoding),
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
	if got := Normalize(outer); got != "https://example.com/final" {
		t.Errorf("expected nested layers unwrapped, got %q", got)
	}
}

// --- Resolve Tests ---

func TestResolve_ReportsStage(t *testing.T) {
	in := trackingURL("{broken", base64.RawURLEncoding)
	got, err := Resolve(in)
	if err == nil {
		t.Fatal("expected error for invalid JSON payload")
	}
	if got != in {
		t.Errorf("expected original URL on error, got %q", got)
	}
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected errors.Is(err, ErrDecode), got %v", err)
	}
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if decErr.Stage != "json" {
		t.Errorf("expected stage json, got %q", decErr.Stage)
	}
}

func TestNew_CustomMarker(t *testing.T) {
	n := New(Config{Markers: []string{"/r/"}, Param: "d", Field: "target"})
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"target":"https://example.org/x"}`))
	in := "https://t.example/r/abc?d=" + payload

	if !n.IsTracking(in) {
		t.Fatal("expected custom marker to match")
	}
	if got := n.Normalize(in); got != "https://example.org/x" {
		t.Errorf("expected https://example.org/x, got %q", got)
	}
	if n.IsTracking("https://t.example/track/click?p=x") {
		t.Error("default marker should not match a custom normalizer")
	}
}
