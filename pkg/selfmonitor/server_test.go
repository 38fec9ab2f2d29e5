package selfmonitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
)

type stubSource struct {
	mu     sync.Mutex
	events []MetricEvent
}

func (s *stubSource) set(events []MetricEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
}

func (s *stubSource) Snapshot() []MetricEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MetricEvent, len(s.events))
	copy(out, s.events)
	return out
}

type stubPipeline struct {
	mu   sync.Mutex
	name string
	got  [][]MetricEvent
}

func (p *stubPipeline) PipelineName() string { return p.name }

func (p *stubPipeline) SubmitSelfMonitorEvents(events []MetricEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, events)
	return nil
}

func (p *stubPipeline) lastSubmission() []MetricEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.got) == 0 {
		return nil
	}
	return p.got[len(p.got)-1]
}

// readAsPipelineEventGroup's order must be stable across calls, not just
// non-crashing: map iteration order is randomized per-process.
func TestReadAsPipelineEventGroup_StableOrder(t *testing.T) {
	aggregated := map[string]MetricEvent{
		"z/": {Name: "z"},
		"a/": {Name: "a"},
		"m/": {Name: "m"},
	}

	want := []MetricEvent{{Name: "a"}, {Name: "m"}, {Name: "z"}}
	for i := 0; i < 10; i++ {
		got := readAsPipelineEventGroup(aggregated)
		if len(got) != len(want) {
			t.Fatalf("len(got) = %d, want %d", len(got), len(want))
		}
		for j, ev := range got {
			if ev.Name != want[j].Name {
				t.Fatalf("readAsPipelineEventGroup() = %+v, want %+v", got, want)
			}
		}
	}
}

func TestServer_NoPipelineAttached_CycleIsNoop(t *testing.T) {
	src := &stubSource{}
	src.set([]MetricEvent{{Name: "events_total", Value: 1}})
	s := Init(src, log.NewNopLogger())
	s.runCycle() // should not panic with no pipeline attached
}

func TestServer_UnmatchedEventsPassThroughUnmodified(t *testing.T) {
	src := &stubSource{}
	src.set([]MetricEvent{{Name: "events_total", Labels: map[string]string{"pipeline": "p1"}, Value: 3}})
	p := &stubPipeline{name: "self"}

	s := Init(src, log.NewNopLogger())
	s.UpdateMetricPipeline(p, nil)
	s.runCycle()

	got := p.lastSubmission()
	if len(got) != 1 || got[0].Name != "events_total" || got[0].Value != 3 {
		t.Fatalf("unexpected submission: %+v", got)
	}
}

func TestServer_DropRuleSuppressesEvent(t *testing.T) {
	src := &stubSource{}
	src.set([]MetricEvent{{Name: "internal_debug_total", Value: 9}})
	p := &stubPipeline{name: "self"}

	s := Init(src, log.NewNopLogger())
	s.UpdateMetricPipeline(p, []MetricRule{{NamePrefix: "internal_", Action: ActionDrop}})
	s.runCycle()

	if got := p.lastSubmission(); got != nil {
		t.Fatalf("expected no submission, got %+v", got)
	}
}

func TestServer_RenameRuleRewritesName(t *testing.T) {
	src := &stubSource{}
	src.set([]MetricEvent{{Name: "old_name", Value: 1}})
	p := &stubPipeline{name: "self"}

	s := Init(src, log.NewNopLogger())
	s.UpdateMetricPipeline(p, []MetricRule{{NamePrefix: "old_", Action: ActionRename, RenameTo: "new_name"}})
	s.runCycle()

	got := p.lastSubmission()
	if len(got) != 1 || got[0].Name != "new_name" {
		t.Fatalf("unexpected submission: %+v", got)
	}
}

func TestServer_AggregatesSameKeyEventsWithinACycle(t *testing.T) {
	src := &stubSource{}
	labels := map[string]string{"pipeline": "p1"}
	src.set([]MetricEvent{
		{Name: "events_total", Labels: labels, Value: 2},
		{Name: "events_total", Labels: labels, Value: 5},
	})
	p := &stubPipeline{name: "self"}

	s := Init(src, log.NewNopLogger())
	s.UpdateMetricPipeline(p, nil)
	s.runCycle()

	got := p.lastSubmission()
	if len(got) != 1 {
		t.Fatalf("expected one merged event, got %d", len(got))
	}
	if got[0].Value != 7 {
		t.Fatalf("expected merged value 7, got %v", got[0].Value)
	}
}

func TestServer_DownSampleKeepsOneOutOfN(t *testing.T) {
	src := &stubSource{}
	p := &stubPipeline{name: "self"}
	s := Init(src, log.NewNopLogger())
	s.UpdateMetricPipeline(p, []MetricRule{{NamePrefix: "noisy_", Action: ActionDownSample, SampleEvery: 3}})

	for i := 0; i < 3; i++ {
		src.set([]MetricEvent{{Name: "noisy_counter", Value: float64(i)}})
		s.runCycle()
	}

	if len(p.got) != 1 {
		t.Fatalf("expected exactly one emission out of three cycles, got %d", len(p.got))
	}
}

func TestServer_RemoveMetricPipeline_SubsequentCyclesNoop(t *testing.T) {
	src := &stubSource{}
	src.set([]MetricEvent{{Name: "events_total", Value: 1}})
	p := &stubPipeline{name: "self"}

	s := Init(src, log.NewNopLogger())
	s.UpdateMetricPipeline(p, nil)
	s.RemoveMetricPipeline()
	s.runCycle()

	if got := p.lastSubmission(); got != nil {
		t.Fatalf("expected no submission after removal, got %+v", got)
	}
}

func TestServer_MonitorStop_ExitsPromptly(t *testing.T) {
	src := &stubSource{}
	s := Init(src, log.NewNopLogger())
	s.tickInterval = time.Millisecond

	done := make(chan struct{})
	go func() {
		s.Monitor(context.Background())
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Monitor did not return after Stop")
	}
}
