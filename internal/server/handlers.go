package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/internal/version"
	"github.com/jmylchreest/docsift/pkg/docsift"
)

// scrapeRequest is the wire form of docsift.Request. Durations are seconds.
type scrapeRequest struct {
	URL           string  `json:"url"`
	UserAgent     string  `json:"user_agent,omitempty"`
	AuthToken     string  `json:"auth_token,omitempty"`
	Referer       string  `json:"referer,omitempty"`
	Timeout       float64 `json:"timeout,omitempty"`
	Delay         float64 `json:"delay,omitempty"`
	ForceBrowser  bool    `json:"force_browser,omitempty"`
	ExtractImages *bool   `json:"extract_images,omitempty"`
}

func (sr scrapeRequest) toRequest(defaultImages bool) docsift.Request {
	images := defaultImages
	if sr.ExtractImages != nil {
		images = *sr.ExtractImages
	}
	return docsift.Request{
		URL:           strings.TrimSpace(sr.URL),
		UserAgent:     sr.UserAgent,
		AuthToken:     sr.AuthToken,
		Referer:       sr.Referer,
		Timeout:       seconds(sr.Timeout),
		Delay:         seconds(sr.Delay),
		ForceBrowser:  sr.ForceBrowser,
		ExtractImages: images,
	}
}

type batchRequest struct {
	URLs          []string        `json:"urls"`
	Requests      []scrapeRequest `json:"requests"`
	Concurrency   int             `json:"concurrency,omitempty"`
	ExtractImages bool            `json:"extract_images,omitempty"`
}

type healthResponse struct {
	Status         string       `json:"status"`
	Service        string       `json:"service"`
	Timestamp      time.Time    `json:"timestamp"`
	Version        version.Info `json:"version"`
	OCRAvailable   bool         `json:"ocr_available"`
	BrowserEnabled bool         `json:"browser_enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		Service:        "docsift",
		Timestamp:      time.Now().UTC(),
		Version:        version.Get(),
		OCRAvailable:   s.opts.OCR,
		BrowserEnabled: s.opts.Browser,
	})
}

// handleSmartScrape accepts query parameters on GET and a JSON body on
// POST. Image text recovery defaults to on.
func (s *Server) handleSmartScrape(w http.ResponseWriter, r *http.Request) {
	var sr scrapeRequest
	if r.Method == http.MethodGet {
		var err error
		if sr, err = queryRequest(r); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if !s.decode(w, r, &sr) {
		return
	}
	s.retrieve(w, r, sr.toRequest(true))
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var sr scrapeRequest
	if !s.decode(w, r, &sr) {
		return
	}
	s.retrieve(w, r, sr.toRequest(false))
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var sr scrapeRequest
	if r.Method == http.MethodGet {
		var err error
		if sr, err = queryRequest(r); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if !s.decode(w, r, &sr) {
		return
	}

	doc, err := s.r.Probe(r.Context(), sr.toRequest(false))
	s.respondDocument(w, r, doc, err)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var br batchRequest
	if !s.decode(w, r, &br) {
		return
	}

	reqs := make([]docsift.Request, 0, len(br.URLs)+len(br.Requests))
	for _, u := range br.URLs {
		reqs = append(reqs, docsift.Request{URL: strings.TrimSpace(u), ExtractImages: br.ExtractImages})
	}
	for _, sr := range br.Requests {
		reqs = append(reqs, sr.toRequest(br.ExtractImages))
	}
	switch {
	case len(reqs) == 0:
		respondWithError(w, http.StatusBadRequest, "urls or requests is required")
		return
	case len(reqs) > s.opts.MaxBatch:
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("batch of %d exceeds limit of %d", len(reqs), s.opts.MaxBatch))
		return
	}

	respondWithJSON(w, http.StatusOK, s.r.RetrieveMany(r.Context(), reqs, br.Concurrency))
}

func (s *Server) retrieve(w http.ResponseWriter, r *http.Request, req docsift.Request) {
	doc, err := s.r.Retrieve(r.Context(), req)
	s.respondDocument(w, r, doc, err)
}

// respondDocument maps pipeline results onto status codes: 400 for invalid
// requests, 502 when nothing could be retrieved, otherwise 200 with the
// document (which may still carry an error field).
func (s *Server) respondDocument(w http.ResponseWriter, r *http.Request, doc *docsift.Document, err error) {
	switch {
	case errors.Is(err, docsift.ErrInvalidRequest):
		respondWithJSON(w, http.StatusBadRequest, invalidResponse(err))
	case err != nil && doc != nil:
		logger.WarnContext(r.Context(), "retrieval failed", "url", doc.URL, "error", err)
		respondWithJSON(w, http.StatusBadGateway, doc)
	case err != nil:
		logger.ErrorContext(r.Context(), "retrieval error without document", "error", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
	default:
		respondWithJSON(w, http.StatusOK, doc)
	}
}

func invalidResponse(err error) map[string]any {
	body := map[string]any{"error": err.Error()}
	var re *docsift.RequestError
	if errors.As(err, &re) {
		body["fields"] = re.Fields
	}
	return body
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		respondWithError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func queryRequest(r *http.Request) (scrapeRequest, error) {
	q := r.URL.Query()
	sr := scrapeRequest{
		URL:       q.Get("url"),
		UserAgent: q.Get("user_agent"),
		Referer:   q.Get("referer"),
	}
	var err error
	if sr.Delay, err = floatParam(q.Get("delay")); err != nil {
		return sr, fmt.Errorf("delay: %w", err)
	}
	if sr.Timeout, err = floatParam(q.Get("timeout")); err != nil {
		return sr, fmt.Errorf("timeout: %w", err)
	}
	if v := q.Get("extract_images"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return sr, fmt.Errorf("extract_images: %w", err)
		}
		sr.ExtractImages = &b
	}
	if v := q.Get("force_browser"); v != "" {
		if sr.ForceBrowser, err = strconv.ParseBool(v); err != nil {
			return sr, fmt.Errorf("force_browser: %w", err)
		}
	}
	return sr, nil
}

func floatParam(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
