package fileserver

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type stubContext struct{ name string }

func (s stubContext) PipelineName() string { return s.name }

// Invariant 5: add then remove leaves nothing behind; repeated add is
// last-writer-wins.
func TestRegistry_AddRemoveGet(t *testing.T) {
	r := New(prometheus.NewRegistry())

	ctx := stubContext{name: "p1"}
	r.AddFileDiscoveryConfig("p1", "opts-1", ctx)
	r.RemoveFileDiscoveryConfig("p1")

	if _, ok := r.GetFileDiscoveryConfig("p1"); ok {
		t.Fatalf("expected no config after remove")
	}

	r.AddFileDiscoveryConfig("p1", "opts-1", ctx)
	r.AddFileDiscoveryConfig("p1", "opts-2", ctx)

	got, ok := r.GetFileDiscoveryConfig("p1")
	if !ok {
		t.Fatalf("expected config to exist")
	}
	if got.Options != "opts-2" {
		t.Fatalf("expected last writer to win, got %v", got.Options)
	}
}

func TestRegistry_GetUnknown_ReturnsNoneNeverFails(t *testing.T) {
	r := New(prometheus.NewRegistry())
	if _, ok := r.GetFileReaderConfig("missing"); ok {
		t.Fatalf("expected ok=false for unknown name")
	}
}

func TestRegistry_ListSnapshotIsStable(t *testing.T) {
	r := New(prometheus.NewRegistry())
	ctx := stubContext{name: "p1"}
	r.AddFileReaderConfig("a", nil, ctx)
	r.AddFileReaderConfig("b", nil, ctx)

	snap := r.ListFileReaderConfigs()
	r.AddFileReaderConfig("c", nil, ctx)
	r.RemoveFileReaderConfig("a")

	if len(snap) != 2 {
		t.Fatalf("expected snapshot to retain 2 entries, got %d", len(snap))
	}
	if _, ok := snap["a"]; !ok {
		t.Fatalf("expected snapshot to still contain 'a' despite later removal")
	}
}

func TestRegistry_ContainerInfoOneShotHandoff(t *testing.T) {
	r := New(prometheus.NewRegistry())
	info := []ContainerInfo{{ID: "c1", MountPoint: "/var/log"}}
	r.SaveContainerInfo("p1", info)

	got, ok := r.GetAndRemoveContainerInfo("p1")
	if !ok || len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("unexpected container info: %v, ok=%v", got, ok)
	}

	if _, ok := r.GetAndRemoveContainerInfo("p1"); ok {
		t.Fatalf("expected info to be consumed by the first retrieval")
	}
}

func TestRegistry_ReentrantMetricsRecordRef(t *testing.T) {
	r := New(prometheus.NewRegistry())
	labels := map[string]string{"pipeline": "p1"}

	v1 := r.GetOrCreateReentrantMetricsRecordRef("events_total", labels)
	v2 := r.GetOrCreateReentrantMetricsRecordRef("events_total", labels)
	if v1 != v2 {
		t.Fatalf("expected repeated acquisition to return the same vec")
	}

	r.ReleaseReentrantMetricsRecordRef("events_total", labels)
	if _, ok := r.metricRecords["events_total/pipeline=p1;"]; !ok {
		t.Fatalf("expected record to survive a single release out of two acquisitions")
	}

	r.ReleaseReentrantMetricsRecordRef("events_total", labels)
	if _, ok := r.metricRecords["events_total/pipeline=p1;"]; ok {
		t.Fatalf("expected record to be freed once refcount reaches zero")
	}
}

func TestRegistry_ExactlyOnceConcurrency(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.AddExactlyOnceConcurrency("p1", 4)
	if got := r.GetExactlyOnceConcurrency("p1"); got != 4 {
		t.Fatalf("got %d, want 4", got)
	}
	r.RemoveExactlyOnceConcurrency("p1")
	if got := r.GetExactlyOnceConcurrency("p1"); got != 0 {
		t.Fatalf("got %d, want 0 after removal", got)
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.Start()
	if !r.Running() {
		t.Fatalf("expected running after Start")
	}
	r.Pause(true)
	if r.Running() {
		t.Fatalf("expected not running after Pause")
	}
	r.Resume(true)
	if !r.Running() {
		t.Fatalf("expected running after Resume")
	}
	r.Stop()
	if r.Running() {
		t.Fatalf("expected not running after Stop")
	}
}

// A config-update pause preserves the discovery-to-reader container info
// handoff; a full pause drops it, since no resume is coming to consume it.
func TestRegistry_Pause_ContainerInfoDistinction(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.SaveContainerInfo("p1", []ContainerInfo{{}})

	r.Pause(true)
	if _, ok := r.GetAndRemoveContainerInfo("p1"); !ok {
		t.Fatalf("expected container info to survive a config-update pause")
	}

	r.SaveContainerInfo("p1", []ContainerInfo{{}})
	r.Pause(false)
	if _, ok := r.GetAndRemoveContainerInfo("p1"); ok {
		t.Fatalf("expected container info to be dropped by a full pause")
	}
}
