package selfmonitor

import (
	"fmt"
	"sort"
	"strings"
)

// MetricEventKind distinguishes the two shapes a self-monitor sample can
// take.
type MetricEventKind int

const (
	KindCounter MetricEventKind = iota
	KindGauge
)

// MetricEvent is one raw sample pulled from the process-wide metric
// manager during a monitor cycle, before any rule has run over it.
type MetricEvent struct {
	Kind      MetricEventKind
	Name      string
	Labels    map[string]string
	Value     float64
	Timestamp int64
}

// RuleAction names what a MetricRule does to a matching event. The
// vocabulary mirrors the relabel actions this agent already knows, scoped
// down to the handful self-monitoring needs.
type RuleAction string

const (
	ActionKeep       RuleAction = "keep"
	ActionDrop       RuleAction = "drop"
	ActionRename     RuleAction = "rename"
	ActionAddLabel   RuleAction = "add_label"
	ActionDownSample RuleAction = "down_sample"
)

// MetricRule is one entry of the rule set installed by UpdateMetricPipeline.
// Rules are evaluated in order; the first whose NamePrefix matches an
// event wins, and only that rule is applied.
type MetricRule struct {
	NamePrefix string
	Action     RuleAction

	// RenameTo is used by ActionRename.
	RenameTo string
	// AddLabelKey/AddLabelValue are used by ActionAddLabel.
	AddLabelKey   string
	AddLabelValue string
	// SampleEvery keeps 1 event out of every SampleEvery for ActionDownSample;
	// a SampleEvery <= 1 is a no-op.
	SampleEvery int
}

// Matches reports whether the rule applies to the given event name.
func (r MetricRule) Matches(name string) bool {
	return strings.HasPrefix(name, r.NamePrefix)
}

// sampleCounters tracks per-rule down-sample counters across cycles. It is
// owned by the Server and reset only when the rule set changes.
type sampleCounters map[string]int

// apply transforms ev according to rule, or reports dropped=true if the
// event should not be emitted this cycle.
func (rule MetricRule) apply(ev MetricEvent, counters sampleCounters) (MetricEvent, bool) {
	switch rule.Action {
	case ActionDrop:
		return MetricEvent{}, true
	case ActionKeep:
		return ev, false
	case ActionRename:
		ev.Name = rule.RenameTo
		return ev, false
	case ActionAddLabel:
		labels := make(map[string]string, len(ev.Labels)+1)
		for k, v := range ev.Labels {
			labels[k] = v
		}
		labels[rule.AddLabelKey] = rule.AddLabelValue
		ev.Labels = labels
		return ev, false
	case ActionDownSample:
		if rule.SampleEvery <= 1 {
			return ev, false
		}
		key := rule.NamePrefix
		counters[key]++
		if counters[key]%rule.SampleEvery != 0 {
			return MetricEvent{}, true
		}
		return ev, false
	default:
		return ev, false
	}
}

// findMatchingRule returns the first rule whose prefix matches name, and
// whether one was found.
func findMatchingRule(rules []MetricRule, name string) (MetricRule, bool) {
	for _, r := range rules {
		if r.Matches(name) {
			return r, true
		}
	}
	return MetricRule{}, false
}

// eventKey canonicalizes an event's identity for per-cycle aggregation:
// name plus sorted label pairs.
func eventKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('/')
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, labels[k])
	}
	return b.String()
}
