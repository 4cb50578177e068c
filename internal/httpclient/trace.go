package httpclient

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxTraceBody caps how much of a response body is buffered for trace logs.
const maxTraceBody = 64 << 10

type traceTransport struct {
	base http.RoundTripper
	name string
}

// NewTraceTransport returns a RoundTripper that logs requests at trace level.
func NewTraceTransport(name string, base http.RoundTripper) http.RoundTripper {
	return &traceTransport{
		base: base,
		name: name,
	}
}

func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	if zerolog.GlobalLevel() > zerolog.TraceLevel {
		return base.RoundTrip(req)
	}

	urlStr := RedactURL(req.URL)
	start := time.Now()

	log.Trace().
		Str("client", t.name).
		Str("method", req.Method).
		Str("url", urlStr).
		Msg("HTTP request")

	resp, err := base.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		log.Trace().
			Str("client", t.name).
			Str("method", req.Method).
			Str("url", urlStr).
			Dur("duration", duration).
			Err(err).
			Msg("HTTP request failed")
		return nil, err
	}

	logEvent := log.Trace().
		Str("client", t.name).
		Str("method", req.Method).
		Str("url", urlStr).
		Int("status", resp.StatusCode).
		Dur("duration", duration)

	if isJSON(resp) {
		bodyBytes, readErr := readAndRestoreBody(resp)
		logEvent.Int("body_length", len(bodyBytes))
		if readErr != nil {
			logEvent.Err(readErr)
		}
		if len(bodyBytes) > 0 && len(bodyBytes) <= maxTraceBody && json.Valid(bodyBytes) {
			logEvent.RawJSON("body", bodyBytes)
		}
	}

	logEvent.Msg("HTTP response")

	return resp, nil
}

func isJSON(resp *http.Response) bool {
	if resp == nil || resp.Body == nil {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func readAndRestoreBody(resp *http.Response) ([]byte, error) {
	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return bodyBytes, err
}

// RedactURL renders u with credential-bearing query values replaced.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	copyURL := *u
	if copyURL.RawQuery == "" {
		return copyURL.String()
	}

	q := copyURL.Query()
	for key := range q {
		if isSensitiveQueryKey(key) {
			q.Set(key, "redacted")
		}
	}

	copyURL.RawQuery = q.Encode()
	return copyURL.String()
}

// RedactString is RedactURL for a raw URL string. Unparseable input is
// returned unchanged.
func RedactString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return RedactURL(u)
}

func isSensitiveQueryKey(key string) bool {
	switch strings.ToLower(key) {
	case "apikey", "api_key", "api-key", "token", "access_token", "authorization", "auth":
		return true
	default:
		return false
	}
}
