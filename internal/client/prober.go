package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/storyreel/api/pkg/logger"
)

// ArtifactProber answers whether a finished artifact already exists at a
// deterministic URL. The reconciliation sweeper uses this to recover jobs
// whose webhook never arrived.
type ArtifactProber interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// HTTPProber probes with a HEAD request.
type HTTPProber struct {
	httpClient *http.Client
}

// NewHTTPProber creates a prober with a short per-probe timeout; probes are
// cheap checks, not downloads.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Exists issues a HEAD request and treats 2xx as present, 404/403 as absent.
func (p *HTTPProber) Exists(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
}

// R2AwareProber routes probes for URLs under the R2 public CDN through S3
// HeadObject and everything else through plain HTTP HEAD.
type R2AwareProber struct {
	r2   *R2Client
	http *HTTPProber
}

// NewR2AwareProber builds the composite prober. r2 may be nil, in which case
// every probe goes over HTTP.
func NewR2AwareProber(r2 *R2Client) *R2AwareProber {
	return &R2AwareProber{
		r2:   r2,
		http: NewHTTPProber(),
	}
}

// Exists checks for the artifact, preferring a HeadObject against R2 when
// the URL belongs to our bucket.
func (p *R2AwareProber) Exists(ctx context.Context, url string) (bool, error) {
	if p.r2 != nil {
		if key, ok := p.r2.KeyForURL(url); ok {
			exists, err := p.r2.ObjectExists(ctx, key)
			if err == nil {
				return exists, nil
			}
			logger.Warnf("[R2] HeadObject probe failed for %s, falling back to HTTP: %v", key, err)
		}
	}
	return p.http.Exists(ctx, url)
}
