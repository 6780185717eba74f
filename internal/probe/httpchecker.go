package probe

import (
	"context"
	"net/http"
	"time"
)

type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{Timeout: timeout},
	}
}

// Check issues a HEAD request, retrying with GET when the server refuses
// HEAD. Any 2xx or 3xx status is reachable.
func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	start := time.Now()
	resp, err := h.do(ctx, http.MethodHead, target)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		resp, err = h.do(ctx, http.MethodGet, target)
	}
	latency := sinceMS(start)
	if err != nil {
		return CheckResult{Name: "HTTP", Kind: kindOf(err), Message: err.Error(), LatencyMS: latency}
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 400
	out := CheckResult{
		Name:       "HTTP",
		Success:    success,
		Message:    resp.Status,
		LatencyMS:  latency,
		StatusCode: resp.StatusCode,
	}
	if !success {
		out.Kind = KindError
	}
	return out
}

func (h *HTTPChecker) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	return h.Client.Do(req)
}
