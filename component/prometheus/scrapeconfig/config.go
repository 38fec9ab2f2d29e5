// Package scrapeconfig parses and validates a Prometheus scrape job
// descriptor (spec.md §4.1) into an immutable Config, constructing request
// headers, TLS settings, and relabel chains along the way. A Config is
// built once per pipeline instantiation and never mutated afterward;
// pipeline replacement constructs a new instance.
package scrapeconfig

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/units"
	common_config "github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
)

const (
	defaultMetricsPath = "/metrics"
	defaultScheme      = "http"
)

// ScrapeProtocol selects one of the Prometheus exposition formats a target
// may respond with, in Accept-header preference order.
type ScrapeProtocol string

const (
	ProtocolPrometheusProto    ScrapeProtocol = "PrometheusProto"
	ProtocolOpenMetricsText100 ScrapeProtocol = "OpenMetricsText1.0.0"
	ProtocolOpenMetricsText001 ScrapeProtocol = "OpenMetricsText0.0.1"
	ProtocolPrometheusText004  ScrapeProtocol = "PrometheusText0.0.4"
)

var scrapeProtocolMediaTypes = map[ScrapeProtocol]string{
	ProtocolPrometheusProto:    `application/vnd.google.protobuf; proto=io.prometheus.client.MetricFamily; encoding=delimited`,
	ProtocolOpenMetricsText100: `application/openmetrics-text; version=1.0.0`,
	ProtocolOpenMetricsText001: `application/openmetrics-text; version=0.0.1`,
	ProtocolPrometheusText004:  `text/plain; version=0.0.4`,
}

var defaultScrapeProtocols = []ScrapeProtocol{
	ProtocolOpenMetricsText100,
	ProtocolOpenMetricsText001,
	ProtocolPrometheusText004,
}

// ExternalLabel is one (name, value) pair. Declared as a struct rather
// than a map entry so that JSON array order - and therefore declaration
// order - survives decoding; downstream relabeling treats the list as a
// sequence, not a set.
type ExternalLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ScrapeTarget is one statically-configured target (the no-SD case).
type ScrapeTarget struct {
	Host string `json:"host"`
}

// descriptor is the raw JSON shape consumed by Load, matching the
// "ScrapeConfig" pipeline input key documented in spec.md §6.
type descriptor struct {
	JobName        string         `json:"job_name"`
	MetricsPath    string         `json:"metrics_path"`
	Scheme         string         `json:"scheme"`
	ScrapeInterval string         `json:"scrape_interval"`
	ScrapeTimeout  string         `json:"scrape_timeout"`
	ScrapeTargets  []ScrapeTarget `json:"scrape_targets"`

	MaxScrapeSize string `json:"max_scrape_size"`
	SampleLimit   uint64 `json:"sample_limit"`
	SeriesLimit   uint64 `json:"series_limit"`

	RelabelConfigs       []*RelabelConfig `json:"relabel_configs"`
	MetricRelabelConfigs []*RelabelConfig `json:"metric_relabel_configs"`

	EnableHTTP2     *bool `json:"enable_http2"`
	FollowRedirects *bool `json:"follow_redirects"`
	HonorTimestamps *bool `json:"honor_timestamps"`
	HonorLabels     bool  `json:"honor_labels"`

	BasicAuth     *common_config.BasicAuth     `json:"basic_auth"`
	Authorization *common_config.Authorization `json:"authorization"`
	TLSConfig     *common_config.TLSConfig     `json:"tls_config"`

	Params         map[string][]string `json:"params"`
	ExternalLabels []ExternalLabel     `json:"external_labels"`

	ScrapeProtocols   []string `json:"scrape_protocols"`
	EnableCompression *bool    `json:"enable_compression"`

	KubernetesSDConfigs json.RawMessage `json:"kubernetes_sd_configs"`
}

// Config is the validated, immutable representation of one Prometheus
// scrape job.
type Config struct {
	JobName     string
	MetricsPath string
	Scheme      string

	ScrapeIntervalSeconds int64
	ScrapeTimeoutSeconds  int64

	HonorLabels     bool
	HonorTimestamps bool
	FollowRedirects bool
	EnableHTTP2     bool

	RequestHeaders map[string]string

	TLSEnabled bool
	TLS        common_config.TLSConfig

	MaxScrapeSizeBytes uint64
	SampleLimit        uint64
	SeriesLimit        uint64

	RelabelConfigs       []*RelabelConfig
	MetricRelabelConfigs []*RelabelConfig

	Params      map[string][]string
	QueryString string

	ExternalLabels []ExternalLabel

	ScrapeTargets []ScrapeTarget

	kubernetesSDConfigs json.RawMessage
}

// KubernetesSDConfigs returns the opaque kubernetes_sd_configs payload
// unchanged, for pass-through to the Kubernetes SD client.
func (c *Config) KubernetesSDConfigs() json.RawMessage {
	return c.kubernetesSDConfigs
}

// Load parses raw JSON into a validated Config. It is the JSON-descriptor
// counterpart of the original's ScrapeConfig::Init.
func Load(raw []byte) (*Config, error) {
	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("scrapeconfig: malformed descriptor: %w", err)
	}
	return d.init()
}

func (d *descriptor) init() (*Config, error) {
	if strings.TrimSpace(d.JobName) == "" {
		return nil, fmt.Errorf("scrapeconfig: job_name must not be empty")
	}

	c := &Config{
		JobName:              d.JobName,
		MetricsPath:          defaultMetricsPath,
		Scheme:               defaultScheme,
		HonorLabels:          d.HonorLabels,
		HonorTimestamps:      true,
		FollowRedirects:      true,
		EnableHTTP2:          true,
		RequestHeaders:       map[string]string{},
		RelabelConfigs:       d.RelabelConfigs,
		MetricRelabelConfigs: d.MetricRelabelConfigs,
		Params:               d.Params,
		ScrapeTargets:        d.ScrapeTargets,
		kubernetesSDConfigs:  d.KubernetesSDConfigs,
	}

	if d.MetricsPath != "" {
		c.MetricsPath = d.MetricsPath
	}
	if d.Scheme != "" {
		c.Scheme = d.Scheme
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return nil, fmt.Errorf("scrapeconfig: unsupported scheme %q", c.Scheme)
	}
	if d.HonorTimestamps != nil {
		c.HonorTimestamps = *d.HonorTimestamps
	}
	if d.FollowRedirects != nil {
		c.FollowRedirects = *d.FollowRedirects
	}
	if d.EnableHTTP2 != nil {
		c.EnableHTTP2 = *d.EnableHTTP2
	}

	interval, err := parseDurationSeconds(d.ScrapeInterval, 60)
	if err != nil {
		return nil, fmt.Errorf("scrapeconfig: malformed scrape_interval: %w", err)
	}
	timeout, err := parseDurationSeconds(d.ScrapeTimeout, 10)
	if err != nil {
		return nil, fmt.Errorf("scrapeconfig: malformed scrape_timeout: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scrapeconfig: scrape_interval must be positive")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("scrapeconfig: scrape_timeout must be positive")
	}
	if timeout > interval {
		return nil, fmt.Errorf("scrapeconfig: scrape_timeout (%ds) exceeds scrape_interval (%ds)", timeout, interval)
	}
	c.ScrapeIntervalSeconds = interval
	c.ScrapeTimeoutSeconds = timeout

	if d.MaxScrapeSize != "" {
		size, err := units.ParseBase2Bytes(d.MaxScrapeSize)
		if err != nil {
			return nil, fmt.Errorf("scrapeconfig: malformed max_scrape_size: %w", err)
		}
		c.MaxScrapeSizeBytes = uint64(size)
	}
	c.SampleLimit = d.SampleLimit
	c.SeriesLimit = d.SeriesLimit

	for _, rc := range append(append([]*RelabelConfig{}, d.RelabelConfigs...), d.MetricRelabelConfigs...) {
		if rc != nil {
			if err := rc.validate(); err != nil {
				return nil, fmt.Errorf("scrapeconfig: invalid relabel config: %w", err)
			}
		}
	}

	if err := c.initBasicAuth(d.BasicAuth); err != nil {
		return nil, err
	}
	if err := c.initAuthorization(d.Authorization); err != nil {
		return nil, err
	}
	if d.BasicAuth != nil && d.Authorization != nil {
		return nil, fmt.Errorf("scrapeconfig: at most one of basic_auth and authorization may be configured")
	}

	protocols, err := c.initScrapeProtocols(d.ScrapeProtocols)
	if err != nil {
		return nil, err
	}
	c.RequestHeaders["Accept"] = acceptHeader(protocols)
	c.RequestHeaders["Accept-Encoding"] = c.initEnableCompression(d.EnableCompression)

	if err := c.initTLSConfig(d.TLSConfig); err != nil {
		return nil, err
	}
	if c.TLSEnabled && c.Scheme != "https" {
		return nil, fmt.Errorf("scrapeconfig: tls_config is only valid when scheme is https")
	}

	if err := c.initExternalLabels(d.ExternalLabels); err != nil {
		return nil, err
	}

	c.QueryString = buildQueryString(d.Params)

	return c, nil
}

// parseDurationSeconds parses a duration string like "15s" into whole
// seconds. An empty string yields defaultSeconds.
func parseDurationSeconds(s string, defaultSeconds int64) (int64, error) {
	if s == "" {
		return defaultSeconds, nil
	}
	d, err := model.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return int64(time.Duration(d).Seconds()), nil
}

func (c *Config) initBasicAuth(ba *common_config.BasicAuth) error {
	if ba == nil {
		return nil
	}
	if ba.Username == "" {
		return fmt.Errorf("scrapeconfig: basic_auth requires a username")
	}
	if ba.PasswordFile != "" && string(ba.Password) != "" {
		return fmt.Errorf("scrapeconfig: at most one of basic_auth password & password_file must be configured")
	}
	c.RequestHeaders["Authorization"] = "Basic " + basicAuthValue(ba.Username, string(ba.Password))
	return nil
}

func (c *Config) initAuthorization(auth *common_config.Authorization) error {
	if auth == nil {
		return nil
	}
	if string(auth.Credentials) == "" && auth.CredentialsFile == "" {
		return fmt.Errorf("scrapeconfig: authorization requires credentials")
	}
	if string(auth.Credentials) != "" && auth.CredentialsFile != "" {
		return fmt.Errorf("scrapeconfig: at most one of authorization credentials & credentials_file must be configured")
	}
	authType := strings.TrimSpace(auth.Type)
	if authType == "" {
		authType = "Bearer"
	}
	if strings.EqualFold(authType, "basic") {
		return fmt.Errorf(`scrapeconfig: authorization type cannot be "basic", use basic_auth instead`)
	}
	c.RequestHeaders["Authorization"] = authType + " " + string(auth.Credentials)
	return nil
}

func (c *Config) initScrapeProtocols(raw []string) ([]ScrapeProtocol, error) {
	if len(raw) == 0 {
		return defaultScrapeProtocols, nil
	}
	seen := make(map[ScrapeProtocol]struct{}, len(raw))
	protocols := make([]ScrapeProtocol, 0, len(raw))
	for _, p := range raw {
		sp := ScrapeProtocol(p)
		if _, ok := scrapeProtocolMediaTypes[sp]; !ok {
			return nil, fmt.Errorf("scrapeconfig: unknown scrape_protocols entry %q", p)
		}
		if _, dup := seen[sp]; dup {
			return nil, fmt.Errorf("scrapeconfig: duplicate scrape_protocols entry %q", p)
		}
		seen[sp] = struct{}{}
		protocols = append(protocols, sp)
	}
	return protocols, nil
}

func acceptHeader(protocols []ScrapeProtocol) string {
	parts := make([]string, 0, len(protocols)+1)
	for _, p := range protocols {
		parts = append(parts, scrapeProtocolMediaTypes[p])
	}
	parts = append(parts, "*/*")
	return strings.Join(parts, ",")
}

func (c *Config) initEnableCompression(enable *bool) string {
	if enable == nil || *enable {
		return "gzip"
	}
	return "identity"
}

func (c *Config) initTLSConfig(tls *common_config.TLSConfig) error {
	if tls == nil {
		return nil
	}
	c.TLSEnabled = true
	c.TLS = *tls
	return nil
}

func (c *Config) initExternalLabels(labels []ExternalLabel) error {
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l.Name == "" {
			return fmt.Errorf("scrapeconfig: external_labels entry has an empty name")
		}
		if !model.LabelName(l.Name).IsValid() {
			return fmt.Errorf("scrapeconfig: invalid external label name %q", l.Name)
		}
		if _, dup := seen[l.Name]; dup {
			return fmt.Errorf("scrapeconfig: duplicate external label %q", l.Name)
		}
		seen[l.Name] = struct{}{}
	}
	c.ExternalLabels = labels
	return nil
}

// basicAuthValue base64-encodes "user:pass" for the Authorization header,
// the way net/http.Request.SetBasicAuth does internally.
func basicAuthValue(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// buildQueryString canonically encodes params: keys sorted
// lexicographically, values emitted in declared order and
// percent-encoded. params is decoded from a JSON object into a map, so a
// key that appears more than once in the descriptor keeps only the values
// of its last occurrence; repeated keys are not merged.
func buildQueryString(params map[string][]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		for j, v := range params[k] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
