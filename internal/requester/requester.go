// Package requester is the outbound-HTTP-delivery singleton: the one
// place this module makes a network call to another agency, after the
// onion-routing dispatch has unwrapped every layer down to a bare
// (endpoint, bytes) pair. Each endpoint gets its own sony/gobreaker
// circuit breaker so one unreachable peer can't starve retries meant
// for everyone else.
package requester

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/sony/gobreaker/v2"

	"github.com/vault-mesh/agency/internal/wire"
)

// Config controls retry/circuit-breaker behaviour. Zero values resolve
// to sane defaults in New.
type Config struct {
	MaxRetries int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
	BreakerInterval time.Duration
	BreakerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.BreakerInterval == 0 {
		c.BreakerInterval = 60 * time.Second
	}
	if c.BreakerTimeout == 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// Requester delivers wire.RemoteMsg jobs over HTTP, one breaker per
// destination endpoint so a single unreachable counterparty agency
// can't exhaust retries for every other destination.
type Requester struct {
	cfg Config
	client *http.Client

	mu sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

func New(cfg Config) *Requester {
	cfg = cfg.withDefaults()
	return &Requester{
		cfg: cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		breakers: map[string]*gobreaker.CircuitBreaker[[]byte]{},
	}
}

func (r *Requester) breakerFor(endpoint string) *gobreaker.CircuitBreaker[[]byte] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[endpoint]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name: endpoint,
		Interval: r.cfg.BreakerInterval,
		Timeout: r.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	r.breakers[endpoint] = b
	return b
}

// Deliver posts msg.Bytes to msg.Endpoint, retrying transient failures
// with bounded exponential backoff inside the endpoint's circuit
// breaker. A tripped breaker fails fast without making a network call.
func (r *Requester) Deliver(ctx context.Context, msg wire.RemoteMsg) (err error) {
	defer err2.Handle(&err)

	breaker := r.breakerFor(msg.Endpoint)

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		_, err := breaker.Execute(func() ([]byte, error) {
			return nil, r.post(ctx, msg)
		})
		if err == nil {
			return nil
		}
		if err == gobreaker.ErrOpenState {
			glog.Warningf("requester: circuit open for %s", msg.Endpoint)
			return wire.Errf(wire.Transport, "requester.Deliver", err, "circuit open for %s", msg.Endpoint)
		}
		lastErr = err
		glog.V(1).Infof("requester: attempt %d to %s failed: %v", attempt, msg.Endpoint, err)
	}
	return wire.Errf(wire.Transport, "requester.Deliver", lastErr, "exhausted retries to %s", msg.Endpoint)
}

func (r *Requester) post(ctx context.Context, msg wire.RemoteMsg) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.Endpoint, bytes.NewReader(msg.Bytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/ssi-agent-wire")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("requester: %s returned %s", msg.Endpoint, resp.Status)
	}
	return nil
}
