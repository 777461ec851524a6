package ipprobe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Probe detects the machine's public IPv4 and IPv6 addresses through
// plain-text detection endpoints. Either family may come back empty;
// the caller decides whether that is fatal.
type Probe struct {
	ipv4URL    string
	ipv6URL    string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	log        logr.Logger
}

type Config struct {
	IPv4URL    string
	IPv6URL    string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

func New(log logr.Logger, cfg Config) *Probe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Probe{
		ipv4URL:    cfg.IPv4URL,
		ipv6URL:    cfg.IPv6URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		log:        log,
	}
}

// Detect returns the current public addresses. An empty URL disables
// that family. Detection failures are logged, not returned; a family
// that cannot be detected is simply absent.
func (p *Probe) Detect(ctx context.Context) (ipv4, ipv6 string, err error) {
	if p.ipv4URL != "" {
		ipv4 = p.fetch(ctx, p.ipv4URL, "ipv4")
	}
	if p.ipv6URL != "" {
		ipv6 = p.fetch(ctx, p.ipv6URL, "ipv6")
	}
	return ipv4, ipv6, ctx.Err()
}

func (p *Probe) fetch(ctx context.Context, url, family string) string {
	for attempt := 0; attempt < p.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			p.log.Error(err, "build detection request", "family", family)
			return ""
		}

		resp, err := p.httpClient.Do(req)
		if err == nil {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, 256))
			resp.Body.Close()
			if readErr == nil && resp.StatusCode == http.StatusOK {
				addr := strings.TrimSpace(string(body))
				if addr != "" {
					p.log.V(1).Info("address detected", "family", family, "address", addr)
					return addr
				}
			}
			p.log.V(1).Info("invalid detection response", "family", family, "status", resp.StatusCode)
		} else {
			p.log.V(1).Info("detection request failed", "family", family,
				"attempt", attempt+1, "retries", p.retries, "error", err.Error())
		}

		if attempt < p.retries-1 {
			timer := time.NewTimer(p.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ""
			case <-timer.C:
			}
		}
	}
	p.log.Info("address detection failed after all attempts", "family", family)
	return ""
}
