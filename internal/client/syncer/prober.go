package syncer

import (
	"context"
	"net/http"
	"time"
)

// Prober answers whether the backend is currently reachable.
type Prober interface {
	Check(ctx context.Context) bool
}

// HTTPProber probes reachability with a HEAD request against the backend's
// health endpoint. Any response at all counts as reachable; only transport
// failures mean offline.
type HTTPProber struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber returns a prober for the given health URL.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (p *HTTPProber) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
