// Package configprovider implements the remote configuration provider: a
// background worker that heartbeats a remote config server, reconciles the
// set of active continuous pipelines against the server's declared state,
// and materializes pipeline YAML files on local disk with atomic swap
// semantics.
package configprovider

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/yyuuttaaoo/loongcollector/pkg/agentconfig"
	"github.com/yyuuttaaoo/loongcollector/pkg/agentidentity"
)

// DefaultConfigUpdateInterval is used when the agent configuration document
// does not specify config_update_interval.
const DefaultConfigUpdateInterval = 10 * time.Second

// stopWaitTimeout bounds how long Stop waits for the worker to observe
// cancellation before logging that it was forced to stop. It is a
// diagnostic, not the correctness boundary: the worker's context is
// cancelled regardless, and it will exit as soon as it next checks in,
// even if the caller doesn't wait for it.
const stopWaitTimeout = 1 * time.Second

// tickInterval is how often the worker loop wakes up to check whether a
// heartbeat is due; it bounds the latency of observing cancellation.
const tickInterval = 3 * time.Second

// Provider drives the heartbeat/fetch/apply cycle described in spec.md
// §4.4. Exactly one worker goroutine runs for the lifetime of the process
// between Start and Stop.
type Provider struct {
	logger     log.Logger
	httpClient *http.Client

	agentID        agentidentity.AgentIdentity
	tags           []string
	updateInterval time.Duration
	dir            string

	// available is set once during New and flipped permanently to false if
	// the pipeline directory cannot be created. It is only ever read or
	// written by the worker goroutine once running.
	available bool

	rotator *addressRotator

	// fsMu serializes filesystem mutations performed by applyUpdate, and
	// guards the version map alongside them (spec.md §5: "one guards the
	// worker's running flag...; the other serializes filesystem mutations").
	fsMu     sync.Mutex
	versions map[string]int64

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Provider from the agent configuration document and an
// agent identity. The provider is "available" (spec.md §4.4) iff at least
// one config-server address parses successfully; otherwise it remains
// inert for the process lifetime and Start is a no-op.
func New(cfg *agentconfig.Config, agentID agentidentity.AgentIdentity, logger log.Logger) *Provider {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	addrs := parseServerAddresses(logger, cfg.ConfigServerAddress)

	updateInterval := DefaultConfigUpdateInterval
	if cfg.ConfigUpdateIntervalSeconds > 0 {
		updateInterval = time.Duration(cfg.ConfigUpdateIntervalSeconds) * time.Second
	}

	p := &Provider{
		logger:         logger,
		httpClient:     &http.Client{Timeout: updateInterval},
		agentID:        agentID,
		tags:           cfg.TagList(),
		updateInterval: updateInterval,
		dir:            cfg.ContinuousPipelineConfigDir,
		available:      len(addrs) > 0,
		rotator:        newAddressRotator(addrs, rand.New(rand.NewSource(time.Now().UnixNano()))),
		versions:       make(map[string]int64),
	}
	if p.available {
		level.Info(logger).Log("component", "configprovider", "op", "init", "addresses", len(addrs))
	} else {
		level.Info(logger).Log("component", "configprovider", "op", "init", "msg", "no valid config server address, provider inert")
	}
	return p
}

// Available reports whether the provider has at least one usable
// config-server address.
func (p *Provider) Available() bool {
	return p.available
}

// Versions returns a snapshot of the name->version map the provider has
// accepted from the server. Exposed for tests; the worker goroutine is the
// only other reader/writer.
func (p *Provider) Versions() map[string]int64 {
	p.fsMu.Lock()
	defer p.fsMu.Unlock()
	out := make(map[string]int64, len(p.versions))
	for k, v := range p.versions {
		out[k] = v
	}
	return out
}

// Start spawns the worker goroutine. It is a no-op if the provider is not
// available or already running.
func (p *Provider) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if !p.available || p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.run(ctx)
}

// Stop requests the worker to exit and waits up to stopWaitTimeout for it
// to do so. Past that deadline it logs and returns; the worker's context
// has already been cancelled, so it will still exit as soon as it next
// checks in, even if the caller doesn't wait for it.
func (p *Provider) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.running = false
	p.runMu.Unlock()

	cancel()

	select {
	case <-done:
		level.Info(p.logger).Log("component", "configprovider", "op", "stop", "msg", "stopped successfully")
	case <-time.After(stopWaitTimeout):
		level.Warn(p.logger).Log("component", "configprovider", "op", "stop", "msg", "forced to stop")
	}
}

func (p *Provider) run(ctx context.Context) {
	defer close(p.done)
	level.Info(p.logger).Log("component", "configprovider", "op", "run", "msg", "started")

	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return
	}

	var lastCheck time.Time
	for {
		if now := time.Now(); now.Sub(lastCheck) >= p.updateInterval {
			p.getConfigUpdate(ctx)
			lastCheck = now
		}

		select {
		case <-time.After(tickInterval):
		case <-ctx.Done():
			return
		}
	}
}

// getConfigUpdate implements spec.md §4.4's GetConfigUpdate protocol:
// heartbeat, fetch, apply, with address rotation on an empty heartbeat
// result.
func (p *Provider) getConfigUpdate(ctx context.Context) {
	if !p.available {
		return
	}

	addr := p.rotator.get(false)
	if !addr.Valid() {
		return
	}

	results, err := p.sendHeartbeat(ctx, addr)
	if err != nil {
		level.Warn(p.logger).Log("component", "configprovider", "op", "heartbeat", "err", err)
		return
	}
	if len(results) == 0 {
		p.rotator.get(true)
		return
	}

	details, err := p.fetchPipelineConfig(ctx, addr, results)
	if err != nil {
		level.Warn(p.logger).Log("component", "configprovider", "op", "fetch", "err", err)
		return
	}

	p.applyUpdate(results, details)
}
