// Package fileserver implements the process-wide, read-heavy catalog that
// associates each named pipeline with its file-discovery, reader,
// multiline, and tag configurations, plus per-pipeline container metadata
// and reentrant metric handles. It is accessed concurrently by pipeline
// lifecycle code (exclusive) and by the tailing workers (shared).
package fileserver

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// PipelineContext is the non-owning handle to the pipeline that a
// registered config belongs to. The caller's contract is that the
// pipeline context outlives every registration derived from it; the
// registry never takes ownership of it.
type PipelineContext interface {
	PipelineName() string
}

// DiscoveryOptions, ReaderOptions, MultilineOptions and TagOptions are
// opaque, immutable-for-the-lifetime-of-the-registration option blobs
// owned by the pipeline descriptor that created them. The registry only
// ever holds a read-only reference.
type (
	DiscoveryOptions interface{}
	ReaderOptions    interface{}
	MultilineOptions interface{}
	TagOptions       interface{}
)

// FileDiscoveryConfig, FileReaderConfig, MultilineConfig and FileTagConfig
// are the (options, pipeline context) pairs spec.md §3 describes.
type (
	FileDiscoveryConfig struct {
		Options DiscoveryOptions
		Context PipelineContext
	}
	FileReaderConfig struct {
		Options ReaderOptions
		Context PipelineContext
	}
	MultilineConfig struct {
		Options MultilineOptions
		Context PipelineContext
	}
	FileTagConfig struct {
		Options TagOptions
		Context PipelineContext
	}
)

// ContainerInfo describes one container sharing a pipeline's discovery and
// reader configs.
type ContainerInfo struct {
	ID         string
	MountPoint string
	Labels     map[string]string
}

// metricKey identifies a reentrant metric record by name and canonicalized
// labels.
type metricKey string

func canonicalizeLabels(labels map[string]string) metricKey {
	// Keys are sorted here, so the result does not depend on map iteration
	// order or on how the caller built the labels.
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b []byte
	for _, k := range keys {
		b = append(b, k...)
		b = append(b, '=')
		b = append(b, labels[k]...)
		b = append(b, ';')
	}
	return metricKey(b)
}

// reentrantRecord is a reference-counted metric handle shared by multiple
// independent call sites. The count is an atomic.Uint32, not because the
// map access itself needs it (r.mut already serializes that), but so the
// refcount survives being read outside the lock by future diagnostics
// without becoming a data race.
type reentrantRecord struct {
	vec   *prometheus.CounterVec
	count atomic.Uint32
}

// Registry is the single process-wide keyed catalog described in spec.md
// §4.2. One RWMutex covers every map: mutators (Add*/Remove*/GetOrCreate*)
// take the write lock, accessors (Get*/List*) take the read lock.
type Registry struct {
	mut sync.RWMutex

	discovery map[string]FileDiscoveryConfig
	reader    map[string]FileReaderConfig
	multiline map[string]MultilineConfig
	tag       map[string]FileTagConfig

	containerInfo map[string][]ContainerInfo
	pluginMetrics map[string]interface{}

	metricRecords map[string]*reentrantRecord
	registerer    prometheus.Registerer

	eoConcurrency map[string]uint32

	running bool
}

// New creates an empty Registry. registerer is used to register the
// prometheus.CounterVec backing each reentrant metric record; pass
// prometheus.NewRegistry() or prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Registry {
	return &Registry{
		discovery:     make(map[string]FileDiscoveryConfig),
		reader:        make(map[string]FileReaderConfig),
		multiline:     make(map[string]MultilineConfig),
		tag:           make(map[string]FileTagConfig),
		containerInfo: make(map[string][]ContainerInfo),
		pluginMetrics: make(map[string]interface{}),
		metricRecords: make(map[string]*reentrantRecord),
		eoConcurrency: make(map[string]uint32),
		registerer:    registerer,
	}
}

// --- discovery configs ---

// AddFileDiscoveryConfig inserts or silently overwrites the discovery
// config for name. Idempotent overwrite: the last writer wins and the map
// is never left in a partially-updated state.
func (r *Registry) AddFileDiscoveryConfig(name string, opts DiscoveryOptions, ctx PipelineContext) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.discovery[name] = FileDiscoveryConfig{Options: opts, Context: ctx}
}

// RemoveFileDiscoveryConfig erases name; a no-op if absent.
func (r *Registry) RemoveFileDiscoveryConfig(name string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	delete(r.discovery, name)
}

// GetFileDiscoveryConfig returns the registered config for name, if any.
func (r *Registry) GetFileDiscoveryConfig(name string) (FileDiscoveryConfig, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	c, ok := r.discovery[name]
	return c, ok
}

// ListFileDiscoveryConfigs returns a snapshot of every registered
// discovery config, valid for the duration of iteration regardless of
// concurrent writers.
func (r *Registry) ListFileDiscoveryConfigs() map[string]FileDiscoveryConfig {
	r.mut.RLock()
	defer r.mut.RUnlock()
	out := make(map[string]FileDiscoveryConfig, len(r.discovery))
	for k, v := range r.discovery {
		out[k] = v
	}
	return out
}

// --- reader configs ---

// AddFileReaderConfig inserts or silently overwrites the reader config for
// name.
func (r *Registry) AddFileReaderConfig(name string, opts ReaderOptions, ctx PipelineContext) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.reader[name] = FileReaderConfig{Options: opts, Context: ctx}
}

// RemoveFileReaderConfig erases name; a no-op if absent.
func (r *Registry) RemoveFileReaderConfig(name string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	delete(r.reader, name)
}

// GetFileReaderConfig returns the registered config for name, if any.
func (r *Registry) GetFileReaderConfig(name string) (FileReaderConfig, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	c, ok := r.reader[name]
	return c, ok
}

// ListFileReaderConfigs returns a snapshot of every registered reader
// config.
func (r *Registry) ListFileReaderConfigs() map[string]FileReaderConfig {
	r.mut.RLock()
	defer r.mut.RUnlock()
	out := make(map[string]FileReaderConfig, len(r.reader))
	for k, v := range r.reader {
		out[k] = v
	}
	return out
}

// --- multiline configs ---

// AddMultilineConfig inserts or silently overwrites the multiline config
// for name.
func (r *Registry) AddMultilineConfig(name string, opts MultilineOptions, ctx PipelineContext) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.multiline[name] = MultilineConfig{Options: opts, Context: ctx}
}

// RemoveMultilineConfig erases name; a no-op if absent.
func (r *Registry) RemoveMultilineConfig(name string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	delete(r.multiline, name)
}

// GetMultilineConfig returns the registered config for name, if any.
func (r *Registry) GetMultilineConfig(name string) (MultilineConfig, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	c, ok := r.multiline[name]
	return c, ok
}

// ListMultilineConfigs returns a snapshot of every registered multiline
// config.
func (r *Registry) ListMultilineConfigs() map[string]MultilineConfig {
	r.mut.RLock()
	defer r.mut.RUnlock()
	out := make(map[string]MultilineConfig, len(r.multiline))
	for k, v := range r.multiline {
		out[k] = v
	}
	return out
}

// --- tag configs ---

// AddFileTagConfig inserts or silently overwrites the tag config for name.
func (r *Registry) AddFileTagConfig(name string, opts TagOptions, ctx PipelineContext) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.tag[name] = FileTagConfig{Options: opts, Context: ctx}
}

// RemoveFileTagConfig erases name; a no-op if absent.
func (r *Registry) RemoveFileTagConfig(name string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	delete(r.tag, name)
}

// GetFileTagConfig returns the registered config for name, if any.
func (r *Registry) GetFileTagConfig(name string) (FileTagConfig, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	c, ok := r.tag[name]
	return c, ok
}

// ListFileTagConfigs returns a snapshot of every registered tag config.
func (r *Registry) ListFileTagConfigs() map[string]FileTagConfig {
	r.mut.RLock()
	defer r.mut.RUnlock()
	out := make(map[string]FileTagConfig, len(r.tag))
	for k, v := range r.tag {
		out[k] = v
	}
	return out
}

// --- container info one-shot handoff ---

// SaveContainerInfo stores info for pipeline, overwriting anything
// previously saved and not yet retrieved.
func (r *Registry) SaveContainerInfo(pipeline string, info []ContainerInfo) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.containerInfo[pipeline] = info
}

// GetAndRemoveContainerInfo retrieves and clears the container info saved
// for pipeline, implementing the one-shot discovery-to-reader handoff.
func (r *Registry) GetAndRemoveContainerInfo(pipeline string) ([]ContainerInfo, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	info, ok := r.containerInfo[pipeline]
	delete(r.containerInfo, pipeline)
	return info, ok
}

// ClearContainerInfo drops every saved container info entry.
func (r *Registry) ClearContainerInfo() {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.containerInfo = make(map[string][]ContainerInfo)
}

// --- plugin metric managers ---

// AddPluginMetricManager registers manager under name, overwriting any
// existing entry.
func (r *Registry) AddPluginMetricManager(name string, manager interface{}) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.pluginMetrics[name] = manager
}

// RemovePluginMetricManager erases name; a no-op if absent.
func (r *Registry) RemovePluginMetricManager(name string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	delete(r.pluginMetrics, name)
}

// GetPluginMetricManager returns the manager registered under name, if
// any.
func (r *Registry) GetPluginMetricManager(name string) (interface{}, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	m, ok := r.pluginMetrics[name]
	return m, ok
}

// --- reentrant metric records ---

// GetOrCreateReentrantMetricsRecordRef returns the CounterVec registered
// for (name, labels), creating and registering it on first acquisition.
// Each call increments the reference count; only the matching number of
// ReleaseReentrantMetricsRecordRef calls frees the underlying record.
func (r *Registry) GetOrCreateReentrantMetricsRecordRef(name string, labels map[string]string) *prometheus.CounterVec {
	r.mut.Lock()
	defer r.mut.Unlock()

	key := name + "/" + string(canonicalizeLabels(labels))
	if rec, ok := r.metricRecords[key]; ok {
		rec.count.Inc()
		return rec.vec
	}

	labelNames := make([]string, 0, len(labels))
	for k := range labels {
		labelNames = append(labelNames, k)
	}
	sort.Strings(labelNames)

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames)
	if r.registerer != nil {
		if err := r.registerer.Register(vec); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					vec = existing
				}
			}
		}
	}

	rec := &reentrantRecord{vec: vec}
	rec.count.Store(1)
	r.metricRecords[key] = rec
	return vec
}

// ReleaseReentrantMetricsRecordRef decrements the reference count for
// (name, labels) and, once it reaches zero, unregisters and frees the
// underlying record.
func (r *Registry) ReleaseReentrantMetricsRecordRef(name string, labels map[string]string) {
	r.mut.Lock()
	defer r.mut.Unlock()

	key := name + "/" + string(canonicalizeLabels(labels))
	rec, ok := r.metricRecords[key]
	if !ok {
		return
	}
	if rec.count.Load() > 0 {
		rec.count.Dec()
	}
	if rec.count.Load() == 0 {
		if r.registerer != nil {
			r.registerer.Unregister(rec.vec)
		}
		delete(r.metricRecords, key)
	}
}

// --- exactly-once concurrency bookkeeping ---

// AddExactlyOnceConcurrency records the per-pipeline exactly-once
// concurrency window for name.
func (r *Registry) AddExactlyOnceConcurrency(name string, concurrency uint32) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.eoConcurrency[name] = concurrency
}

// RemoveExactlyOnceConcurrency erases name; a no-op if absent.
func (r *Registry) RemoveExactlyOnceConcurrency(name string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	delete(r.eoConcurrency, name)
}

// GetExactlyOnceConcurrency returns the recorded concurrency for name, or
// 0 if it was never recorded.
func (r *Registry) GetExactlyOnceConcurrency(name string) uint32 {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return r.eoConcurrency[name]
}

// ListExactlyOnceConfigs returns the set of names with recorded
// exactly-once concurrency.
func (r *Registry) ListExactlyOnceConfigs() []string {
	r.mut.RLock()
	defer r.mut.RUnlock()
	names := make([]string, 0, len(r.eoConcurrency))
	for name := range r.eoConcurrency {
		names = append(names, name)
	}
	return names
}

// --- lifecycle controls ---

// Start marks the registry as running. It coordinates with the external
// tailing engine, which is expected to begin consuming registered configs
// once Start returns.
func (r *Registry) Start() {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.running = true
}

// Pause quiesces the registry ahead of a reconfiguration. isConfigUpdate
// preserves the discovery-to-reader container info handoff on the
// expectation that Resume(true) follows immediately and the incoming
// pipeline still needs it; a full pause (isConfigUpdate=false) is used for
// a genuine shutdown or restart, where no resume is coming to consume it,
// so the one-shot handoff buffer is dropped.
func (r *Registry) Pause(isConfigUpdate bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.running = false
	if !isConfigUpdate {
		r.containerInfo = make(map[string][]ContainerInfo)
	}
}

// Resume re-arms the registry after a Pause. isConfigUpdate is accepted for
// symmetry with Pause but resuming never needs to distinguish the two: the
// catalog maps were left untouched either way, and a resumed registry
// simply starts admitting again.
func (r *Registry) Resume(isConfigUpdate bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.running = true
	_ = isConfigUpdate
}

// Stop marks the registry as stopped.
func (r *Registry) Stop() {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.running = false
}

// Running reports whether the registry is currently started/resumed.
func (r *Registry) Running() bool {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return r.running
}
