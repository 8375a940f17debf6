package publisher

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxErrorBody       = 1 << 10
)

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// checkResponse turns a non-2xx response into an error carrying a short body excerpt.
func checkResponse(platform string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(b))
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s rate limited (retry-after=%q): %s", ErrUnavailable, platform, resp.Header.Get("Retry-After"), msg)
	}
	return fmt.Errorf("%w: %s returned %s: %s", ErrUnavailable, platform, resp.Status, msg)
}
