package reachability

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Probe polls a URL with HEAD requests. Any HTTP response counts as
// reachable, whatever its status; only transport failures do not.
type Probe struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
	Logger   zerolog.Logger
}

// NewProbe returns a probe of url every interval (15s when zero).
func NewProbe(url string, interval time.Duration, logger zerolog.Logger) *Probe {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Probe{
		URL:      url,
		Interval: interval,
		Client:   &http.Client{Timeout: 5 * time.Second},
		Logger:   logger,
	}
}

// Check performs one probe.
func (p *Probe) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		p.Logger.Debug().Err(err).Msg("invalid probe url")
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		p.Logger.Debug().Err(err).Str("url", p.URL).Msg("probe failed")
		return false
	}
	resp.Body.Close()
	return true
}

// Watch probes immediately, then every Interval.
func (p *Probe) Watch(ctx context.Context) <-chan Transition {
	em := newEmitter()
	go func() {
		defer close(em.out)
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		for {
			if !em.observe(ctx, p.Check(ctx)) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return em.out
}
