package docsift

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest is wrapped by every RequestError.
var ErrInvalidRequest = errors.New("invalid request")

// Request describes one retrieval. It is not modified by the pipeline.
type Request struct {
	URL           string        `json:"url" yaml:"url" validate:"required,url"`
	UserAgent     string        `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	AuthToken     string        `json:"auth_token,omitempty" yaml:"-"`
	Referer       string        `json:"referer,omitempty" yaml:"referer,omitempty" validate:"omitempty,url"`
	Timeout       time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"`
	ForceBrowser  bool          `json:"force_browser,omitempty" yaml:"force_browser,omitempty"`
	ExtractImages bool          `json:"extract_images,omitempty" yaml:"extract_images,omitempty"`
	// Delay overrides the randomized politeness delay when positive.
	Delay time.Duration `json:"delay,omitempty" yaml:"delay,omitempty" validate:"gte=0"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RequestError lists every invalid field of a request.
type RequestError struct {
	Fields []FieldError
}

func (e *RequestError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}

func (e *RequestError) Unwrap() error { return ErrInvalidRequest }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks the request's struct tags. Scheme-less URLs are accepted
// and treated as https.
func (r Request) Validate() error {
	validateOnce.Do(func() { validate = validator.New() })

	r.URL = withScheme(r.URL)
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	re := &RequestError{}
	for _, fe := range verrs {
		re.Fields = append(re.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return re
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// withScheme prefixes bare hosts with https://.
func withScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + strings.TrimPrefix(raw, "//")
}
