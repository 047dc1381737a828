package fetcher

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// newTransport returns the pooled transport shared by every HTTP strategy.
// Compression is negotiated by our own Accept-Encoding header.
func newTransport(poolSize int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          poolSize * 4,
		MaxIdleConnsPerHost:   poolSize,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}
}

// isUnreachable reports failures that retrying or changing headers cannot fix.
func isUnreachable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsTimeout && !dnsErr.IsTemporary
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var (
		certErr      *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidCert  x509.CertificateInvalidError
		recordHeader tls.RecordHeaderError
	)
	return errors.As(err, &certErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &recordHeader)
}

func newTransportError(strategy, url string, err error) *TransportError {
	return &TransportError{
		Strategy:    strategy,
		URL:         url,
		Err:         err,
		Unreachable: isUnreachable(err),
	}
}

// decodeBody undoes any content encoding the HTTP client left in place.
func decodeBody(header http.Header, body []byte) []byte {
	encoding := strings.ToLower(header.Get("Content-Encoding"))
	switch {
	case strings.Contains(encoding, "gzip") && bytes.HasPrefix(body, []byte{0x1f, 0x8b}):
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return body
		}
		defer r.Close()
		if out, err := io.ReadAll(r); err == nil {
			return out
		}
	case strings.Contains(encoding, "deflate"):
		r, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return body
		}
		defer r.Close()
		if out, err := io.ReadAll(r); err == nil {
			return out
		}
	}
	return body
}
