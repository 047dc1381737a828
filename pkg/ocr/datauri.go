package ocr

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

var errBadDataURI = errors.New("malformed data URI")

// IsDataURI reports whether ref is an inline data: URI.
func IsDataURI(ref string) bool {
	return len(ref) > 5 && strings.EqualFold(ref[:5], "data:")
}

// DecodeDataURI returns the payload and media type of a data: URI.
func DecodeDataURI(ref string) ([]byte, string, error) {
	if !IsDataURI(ref) {
		return nil, "", errBadDataURI
	}
	meta, payload, ok := strings.Cut(ref[5:], ",")
	if !ok {
		return nil, "", errBadDataURI
	}

	mediaType, isBase64 := meta, false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		mediaType, isBase64 = m, true
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}

	if !isBase64 {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", err
		}
		return []byte(s), mediaType, nil
	}

	payload = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, "", err
	}
	return data, mediaType, nil
}
