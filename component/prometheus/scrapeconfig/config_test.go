package scrapeconfig

import (
	"strings"
	"testing"
)

// S3: a well-formed descriptor yields a Config with the documented
// defaults applied.
func TestLoad_Defaults(t *testing.T) {
	c, err := Load([]byte(`{"job_name": "node"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.MetricsPath != "/metrics" {
		t.Fatalf("metrics_path = %q, want /metrics", c.MetricsPath)
	}
	if c.Scheme != "http" {
		t.Fatalf("scheme = %q, want http", c.Scheme)
	}
	if c.ScrapeIntervalSeconds != 60 {
		t.Fatalf("scrape_interval = %d, want 60", c.ScrapeIntervalSeconds)
	}
	if c.ScrapeTimeoutSeconds != 10 {
		t.Fatalf("scrape_timeout = %d, want 10", c.ScrapeTimeoutSeconds)
	}
	if !c.HonorTimestamps || !c.FollowRedirects {
		t.Fatalf("expected honor_timestamps and follow_redirects to default true")
	}
	if c.RequestHeaders["Accept-Encoding"] != "gzip" {
		t.Fatalf("expected compression enabled by default")
	}
}

func TestLoad_EmptyJobNameRejected(t *testing.T) {
	if _, err := Load([]byte(`{"job_name": ""}`)); err == nil {
		t.Fatalf("expected error for empty job_name")
	}
}

// S4: scrape_timeout greater than scrape_interval is rejected.
func TestLoad_TimeoutExceedsInterval(t *testing.T) {
	_, err := Load([]byte(`{"job_name":"n","scrape_interval":"5s","scrape_timeout":"10s"}`))
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected timeout-exceeds-interval error, got %v", err)
	}
}

// S5: basic_auth and authorization are mutually exclusive.
func TestLoad_BasicAuthAndAuthorizationConflict(t *testing.T) {
	_, err := Load([]byte(`{
		"job_name": "n",
		"basic_auth": {"username": "u", "password": "p"},
		"authorization": {"credentials": "tok"}
	}`))
	if err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestLoad_AuthorizationRejectsBasicType(t *testing.T) {
	_, err := Load([]byte(`{"job_name":"n","authorization":{"type":"Basic","credentials":"tok"}}`))
	if err == nil {
		t.Fatalf("expected rejection of authorization type Basic")
	}
}

func TestLoad_BasicAuthSetsHeader(t *testing.T) {
	c, err := Load([]byte(`{"job_name":"n","basic_auth":{"username":"u","password":"p"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(c.RequestHeaders["Authorization"], "Basic ") {
		t.Fatalf("expected Basic Authorization header, got %q", c.RequestHeaders["Authorization"])
	}
}

// S6: tls_config is only valid for the https scheme.
func TestLoad_TLSRequiresHTTPS(t *testing.T) {
	_, err := Load([]byte(`{
		"job_name": "n",
		"scheme": "http",
		"tls_config": {"ca_file": "/etc/ca.pem"}
	}`))
	if err == nil || !strings.Contains(err.Error(), "https") {
		t.Fatalf("expected https-required error, got %v", err)
	}
}

func TestLoad_TLSAcceptedWithHTTPS(t *testing.T) {
	c, err := Load([]byte(`{
		"job_name": "n",
		"scheme": "https",
		"tls_config": {"insecure_skip_verify": true}
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.TLSEnabled || !c.TLS.InsecureSkipVerify {
		t.Fatalf("expected tls enabled with insecure_skip_verify, got %+v", c.TLS)
	}
}

func TestLoad_ScrapeProtocolsBuildAcceptHeader(t *testing.T) {
	c, err := Load([]byte(`{"job_name":"n","scrape_protocols":["PrometheusText0.0.4"]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.RequestHeaders["Accept"], "text/plain; version=0.0.4") {
		t.Fatalf("unexpected Accept header: %q", c.RequestHeaders["Accept"])
	}
}

func TestLoad_UnknownScrapeProtocolRejected(t *testing.T) {
	_, err := Load([]byte(`{"job_name":"n","scrape_protocols":["bogus"]}`))
	if err == nil {
		t.Fatalf("expected error for unknown scrape protocol")
	}
}

func TestLoad_ExternalLabelsPreserveOrderAndRejectDuplicates(t *testing.T) {
	c, err := Load([]byte(`{
		"job_name": "n",
		"external_labels": [{"name": "b", "value": "2"}, {"name": "a", "value": "1"}]
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.ExternalLabels) != 2 || c.ExternalLabels[0].Name != "b" || c.ExternalLabels[1].Name != "a" {
		t.Fatalf("expected declaration order preserved, got %+v", c.ExternalLabels)
	}

	_, err = Load([]byte(`{
		"job_name": "n",
		"external_labels": [{"name": "a", "value": "1"}, {"name": "a", "value": "2"}]
	}`))
	if err == nil {
		t.Fatalf("expected error for duplicate external label")
	}
}

func TestLoad_QueryStringCanonicalization(t *testing.T) {
	c, err := Load([]byte(`{
		"job_name": "n",
		"params": {"b": ["2"], "a": ["1", "x y"]}
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.QueryString != "a=1&a=x+y&b=2" {
		t.Fatalf("query_string = %q, want a=1&a=x+y&b=2", c.QueryString)
	}
}

func TestLoad_RelabelConfigsValidated(t *testing.T) {
	_, err := Load([]byte(`{
		"job_name": "n",
		"relabel_configs": [{"action": "replace"}]
	}`))
	if err == nil || !strings.Contains(err.Error(), "target_label") {
		t.Fatalf("expected target_label validation error, got %v", err)
	}
}

func TestLoad_MalformedJSONRejected(t *testing.T) {
	if _, err := Load([]byte(`not json`)); err == nil {
		t.Fatalf("expected malformed-JSON error")
	}
}
