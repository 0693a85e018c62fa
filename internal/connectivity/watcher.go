// Package connectivity tracks reachability of the remote store. A Watcher
// probes an endpoint on a fixed interval and notifies its listener only on
// transitions, so the sync engine replays exactly once per recovery.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MSU-Students/q-attendance/internal/logging"
)

const probeTimeout = 3 * time.Second

// Prober answers a single reachability check.
type Prober interface {
	Ping(ctx context.Context) error
}

// HTTPProber checks reachability with a HEAD request. Any response counts
// as reachable; only transport errors mean offline.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func (p *HTTPProber) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", p.URL, err)
	}
	return resp.Body.Close()
}

// Watcher polls a Prober and reports online/offline transitions.
type Watcher struct {
	prober Prober
	notify func(ctx context.Context, online bool)
	log    logging.Logger

	mu     sync.Mutex
	online bool
}

// NewWatcher builds a watcher that calls notify on every state transition.
// The watcher starts offline.
func NewWatcher(prober Prober, notify func(ctx context.Context, online bool), log logging.Logger) *Watcher {
	return &Watcher{prober: prober, notify: notify, log: log}
}

// Online reports the last observed state.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Set forces the state, notifying on transition. Useful at startup and in
// environments without a probe endpoint.
func (w *Watcher) Set(ctx context.Context, online bool) {
	w.mu.Lock()
	changed := w.online != online
	w.online = online
	w.mu.Unlock()

	if changed {
		w.log.Info(ctx, "connectivity changed", "online", online)
		w.notify(ctx, online)
	}
}

// Run probes on the given interval until ctx is cancelled. An immediate
// probe runs before the first tick so startup state settles quickly.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.probe(ctx)
	for {
		select {
		case <-ticker.C:
			w.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := w.prober.Ping(probeCtx)
	cancel()

	if err != nil {
		w.log.Debug(ctx, "probe failed", "error", err)
	}
	w.Set(ctx, err == nil)
}
