// Package agentconfig loads the subset of the agent's top-level JSON
// configuration document that the remote config provider needs: the
// config-server address list, the tags advertised on every heartbeat, and
// the heartbeat polling interval.
package agentconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// DefaultConfigUpdateIntervalSeconds is used when config_update_interval is
// absent from the document.
const DefaultConfigUpdateIntervalSeconds = 10

// Config is the slice of agent configuration consumed by pkg/configprovider.
type Config struct {
	// ConfigServerAddress holds raw "host:port" entries from
	// ilogtail_configserver_address. Malformed entries are kept here and
	// filtered out later by the provider so that each rejection can be
	// logged with its offending value.
	ConfigServerAddress []string `json:"ilogtail_configserver_address"`

	// Tags holds ilogtail_tags. Keys are retained only for logging; the
	// provider transmits the values as an ordered list.
	Tags map[string]string `json:"ilogtail_tags"`

	// ConfigUpdateIntervalSeconds is the config_update_interval flag.
	ConfigUpdateIntervalSeconds int `json:"config_update_interval"`

	// ContinuousPipelineConfigDir is the directory under which pipeline
	// YAML files are materialized.
	ContinuousPipelineConfigDir string `json:"continuous_pipeline_config_dir"`
}

// Load reads and parses the JSON document at path, applying defaults for
// any field the document omits.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: reading %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes raw JSON into a Config, applying defaults.
func Parse(raw []byte) (*Config, error) {
	c := &Config{ConfigUpdateIntervalSeconds: DefaultConfigUpdateIntervalSeconds}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("agentconfig: parsing document: %w", err)
	}
	if c.ConfigUpdateIntervalSeconds <= 0 {
		c.ConfigUpdateIntervalSeconds = DefaultConfigUpdateIntervalSeconds
	}
	if c.ContinuousPipelineConfigDir == "" {
		c.ContinuousPipelineConfigDir = "/etc/loongcollector/continuous_pipeline_config/local"
	}
	return c, nil
}

// TagList renders Tags as the ordered list of values the heartbeat request
// transmits. Keys are discarded from the wire payload, but the list is
// built in key-sorted order so the payload is deterministic across runs
// and calls, matching the original's jsoncpp-backed ordered map.
func (c *Config) TagList() []string {
	keys := make([]string, 0, len(c.Tags))
	for k := range c.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]string, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, c.Tags[k])
	}
	return tags
}
