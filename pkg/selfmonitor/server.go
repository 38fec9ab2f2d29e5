// Package selfmonitor implements the agent's singleton self-monitor
// server: a periodic loop that snapshots the process-wide metric manager,
// transforms each record through the installed rule set, aggregates same-
// key events per cycle, and submits the result into whichever pipeline is
// currently attached.
package selfmonitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const defaultTickInterval = 15 * time.Second

// MetricSnapshotSource is the process-wide metric manager this server
// polls once per cycle. Implementations must return a point-in-time copy;
// the server never holds a reference across cycles.
type MetricSnapshotSource interface {
	Snapshot() []MetricEvent
}

// MetricPipelineContext is the non-owning handle to the pipeline that
// receives flattened self-monitor event groups.
type MetricPipelineContext interface {
	SubmitSelfMonitorEvents(events []MetricEvent) error
}

// AlarmPipelineContext is the analogous handle for alarm emission. Alarm
// emission itself is out of scope; only attachment is implemented here.
type AlarmPipelineContext interface {
	PipelineName() string
}

// Server is the process-wide self-monitor singleton (C3).
type Server struct {
	logger log.Logger
	source MetricSnapshotSource

	metricMu  sync.RWMutex
	metricCtx MetricPipelineContext
	rules     []MetricRule
	counters  sampleCounters

	alarmMu  sync.Mutex
	alarmCtx AlarmPipelineContext

	tickInterval time.Duration

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// Init constructs the server. source supplies the per-cycle metric
// snapshot; the server does not start ticking until Monitor is called.
func Init(source MetricSnapshotSource, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		logger:       logger,
		source:       source,
		counters:     make(sampleCounters),
		tickInterval: defaultTickInterval,
	}
}

// UpdateMetricPipeline installs or replaces the target pipeline and rule
// set under an exclusive lock. Subsequent cycles emit into this context.
// Replacing the rule set resets down-sample counters, since they are keyed
// by each rule's NamePrefix, not by event identity.
func (s *Server) UpdateMetricPipeline(ctx MetricPipelineContext, rules []MetricRule) {
	s.metricMu.Lock()
	defer s.metricMu.Unlock()
	s.metricCtx = ctx
	s.rules = rules
	s.counters = make(sampleCounters)
}

// RemoveMetricPipeline detaches the metric pipeline; subsequent cycles
// become no-ops.
func (s *Server) RemoveMetricPipeline() {
	s.metricMu.Lock()
	defer s.metricMu.Unlock()
	s.metricCtx = nil
	s.rules = nil
}

// UpdateAlarmPipeline installs the alarm pipeline context.
func (s *Server) UpdateAlarmPipeline(ctx AlarmPipelineContext) {
	s.alarmMu.Lock()
	defer s.alarmMu.Unlock()
	s.alarmCtx = ctx
}

// Monitor runs the periodic loop until the context is canceled or Stop is
// called. It is meant to be run in its own goroutine.
func (s *Server) Monitor(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	defer close(s.done)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	level.Info(s.logger).Log("msg", "self-monitor server started", "interval", s.tickInterval)
	for {
		select {
		case <-ticker.C:
			s.runCycle()
		case <-runCtx.Done():
			level.Info(s.logger).Log("msg", "self-monitor server stopped")
			return
		}
	}
}

// Stop cancels the running Monitor loop and waits briefly for it to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		if s.done == nil {
			return
		}
		select {
		case <-s.done:
		case <-time.After(time.Second):
			level.Warn(s.logger).Log("msg", "self-monitor server forced to stop")
		}
	})
}

// runCycle executes one tick: snapshot, transform, aggregate, flatten,
// submit.
func (s *Server) runCycle() {
	if s.source == nil {
		return
	}

	s.metricMu.RLock()
	metricCtx := s.metricCtx
	rules := s.rules
	counters := s.counters
	s.metricMu.RUnlock()

	if metricCtx == nil {
		return
	}

	snapshot := s.source.Snapshot()
	aggregated := make(map[string]MetricEvent, len(snapshot))

	for _, ev := range snapshot {
		rule, ok := findMatchingRule(rules, ev.Name)
		if !ok {
			aggregateEvent(aggregated, ev)
			continue
		}
		transformed, dropped := rule.apply(ev, counters)
		if dropped {
			continue
		}
		aggregateEvent(aggregated, transformed)
	}

	events := readAsPipelineEventGroup(aggregated)
	if len(events) == 0 {
		return
	}
	if err := metricCtx.SubmitSelfMonitorEvents(events); err != nil {
		level.Error(s.logger).Log("msg", "failed to submit self-monitor events", "err", err)
	}
}

// aggregateEvent merges ev into the keyed map; same-key events within a
// cycle are merged by summing their values.
func aggregateEvent(aggregated map[string]MetricEvent, ev MetricEvent) {
	key := eventKey(ev.Name, ev.Labels)
	if existing, ok := aggregated[key]; ok {
		existing.Value += ev.Value
		existing.Timestamp = ev.Timestamp
		aggregated[key] = existing
		return
	}
	aggregated[key] = ev
}

// readAsPipelineEventGroup flattens the keyed aggregation map into a
// stable-ordered event slice ready for submission. Map iteration order is
// randomized per-process, so the keys are sorted before emission.
func readAsPipelineEventGroup(aggregated map[string]MetricEvent) []MetricEvent {
	keys := make([]string, 0, len(aggregated))
	for k := range aggregated {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	events := make([]MetricEvent, 0, len(aggregated))
	for _, k := range keys {
		events = append(events, aggregated[k])
	}
	return events
}
