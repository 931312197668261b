package backend

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arcmetric/contactctl/internal/model"
)

// maxErrorSnippet caps how much of an error body ends up in an error message.
const maxErrorSnippet = 256

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// statusError builds an HTTPError from a non-2xx response, keeping a short
// snippet of the body for context.
func statusError(resp *http.Response) *model.HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
	httpErr := &model.HTTPError{
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		httpErr.Err = errors.New(snippet)
	}
	return httpErr
}
