// Command agent runs the continuous-pipeline agent: it loads the
// top-level configuration document, brings up the file-server registry,
// the self-monitor server, and the remote config provider, and blocks
// until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yyuuttaaoo/loongcollector/pkg/agentconfig"
	"github.com/yyuuttaaoo/loongcollector/pkg/agentidentity"
	"github.com/yyuuttaaoo/loongcollector/pkg/configprovider"
	"github.com/yyuuttaaoo/loongcollector/component/fileserver"
	"github.com/yyuuttaaoo/loongcollector/pkg/selfmonitor"
)

func main() {
	var (
		configPath = flag.String("config", "/etc/loongcollector/loongcollector.json", "path to the agent configuration document")
		logLevel   = flag.String("log.level", "info", "minimum log level to emit")
	)
	flag.Parse()

	logger := newLogger(*logLevel)

	if err := run(*configPath, logger); err != nil {
		level.Error(logger).Log("msg", "agent exited with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(levelFlag string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	lvl := level.InfoValue()
	switch levelFlag {
	case "debug":
		lvl = level.DebugValue()
	case "warn":
		lvl = level.WarnValue()
	case "error":
		lvl = level.ErrorValue()
	}
	return level.NewFilter(logger, level.Allow(lvl))
}

func run(configPath string, logger log.Logger) error {
	cfg, err := agentconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading agent configuration: %w", err)
	}

	agentID := agentidentity.Current()
	level.Info(logger).Log("msg", "agent starting", "agent_id", agentID.String())

	reg := prometheus.NewRegistry()
	registry := fileserver.New(reg)
	registry.Start()
	defer registry.Stop()

	monitor := selfmonitor.Init(&prometheusSnapshotSource{gatherer: reg}, log.With(logger, "component", "selfmonitor"))

	provider := configprovider.New(cfg, agentID, log.With(logger, "component", "configprovider"))
	provider.Start()
	defer provider.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorDone := make(chan struct{})
	go func() {
		monitor.Monitor(ctx)
		close(monitorDone)
	}()
	defer func() {
		monitor.Stop()
		<-monitorDone
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	level.Info(logger).Log("msg", "agent shutting down")
	return nil
}

// prometheusSnapshotSource adapts a prometheus.Gatherer into the
// selfmonitor.MetricSnapshotSource the self-monitor server polls each
// cycle: every sample in every gathered family becomes one MetricEvent.
type prometheusSnapshotSource struct {
	gatherer prometheus.Gatherer
}

func (s *prometheusSnapshotSource) Snapshot() []selfmonitor.MetricEvent {
	families, err := s.gatherer.Gather()
	if err != nil {
		return nil
	}

	var events []selfmonitor.MetricEvent
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			kind, value := metricValue(mf, m)
			events = append(events, selfmonitor.MetricEvent{
				Kind:      kind,
				Name:      mf.GetName(),
				Labels:    labels,
				Value:     value,
				Timestamp: m.GetTimestampMs(),
			})
		}
	}
	return events
}

func metricValue(mf *dto.MetricFamily, m *dto.Metric) (selfmonitor.MetricEventKind, float64) {
	switch mf.GetType() {
	case dto.MetricType_COUNTER:
		return selfmonitor.KindCounter, m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return selfmonitor.KindGauge, m.GetGauge().GetValue()
	default:
		return selfmonitor.KindGauge, 0
	}
}
