package scrapeconfig

import (
	"encoding/json"
	"fmt"

	"github.com/grafana/regexp"
	"github.com/prometheus/common/model"
)

// RelabelAction is the relabelling action to be performed, per spec.md
// §4.1's fixed vocabulary.
type RelabelAction string

const (
	Replace   RelabelAction = "replace"
	Keep      RelabelAction = "keep"
	Drop      RelabelAction = "drop"
	HashMod   RelabelAction = "hashmod"
	LabelMap  RelabelAction = "labelmap"
	LabelDrop RelabelAction = "labeldrop"
	LabelKeep RelabelAction = "labelkeep"
	Lowercase RelabelAction = "lowercase"
	Uppercase RelabelAction = "uppercase"
	KeepEqual RelabelAction = "keepequal"
	DropEqual RelabelAction = "dropequal"
)

var knownRelabelActions = map[RelabelAction]struct{}{
	Replace: {}, Keep: {}, Drop: {}, HashMod: {}, LabelMap: {}, LabelDrop: {},
	LabelKeep: {}, Lowercase: {}, Uppercase: {}, KeepEqual: {}, DropEqual: {},
}

// Regexp wraps Grafana's fork of the stdlib regexp package, anchored the
// way Prometheus anchors relabel regexes.
type Regexp struct {
	*regexp.Regexp
	original string
}

func compileRelabelRegexp(s string) (Regexp, error) {
	re, err := regexp.Compile("^(?:" + s + ")$")
	if err != nil {
		return Regexp{}, err
	}
	return Regexp{Regexp: re, original: s}, nil
}

func mustCompileRelabelRegexp(s string) Regexp {
	re, err := compileRelabelRegexp(s)
	if err != nil {
		panic(err)
	}
	return re
}

func (re Regexp) MarshalJSON() ([]byte, error) {
	return json.Marshal(re.original)
}

func (re *Regexp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	compiled, err := compileRelabelRegexp(s)
	if err != nil {
		return fmt.Errorf("invalid relabel regex %q: %w", s, err)
	}
	*re = compiled
	return nil
}

// RelabelConfig describes one relabelling step, applied either to targets
// (relabel_configs, pre-scrape) or to samples (metric_relabel_configs,
// post-parse).
type RelabelConfig struct {
	SourceLabels []string      `json:"source_labels,omitempty"`
	Separator    string        `json:"separator,omitempty"`
	Regex        Regexp        `json:"regex,omitempty"`
	Modulus      uint64        `json:"modulus,omitempty"`
	TargetLabel  string        `json:"target_label,omitempty"`
	Replacement  string        `json:"replacement,omitempty"`
	Action       RelabelAction `json:"action,omitempty"`
}

var defaultRelabelConfig = RelabelConfig{
	Action:      Replace,
	Separator:   ";",
	Regex:       mustCompileRelabelRegexp(".*"),
	Replacement: "$1",
}

var relabelTargetPattern = regexp.MustCompile(`^(?:(?:[a-zA-Z_]|\$(?:\{\w+\}|\w+))+\w*)+$`)

// UnmarshalJSON applies defaults before decoding, then validates the
// result against spec.md §4.1's invariants.
func (rc *RelabelConfig) UnmarshalJSON(data []byte) error {
	*rc = defaultRelabelConfig

	type plain RelabelConfig
	aux := (*plain)(rc)
	aux.Regex = Regexp{} // force UnmarshalJSON to run if present, else keep default below
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Regex.Regexp == nil {
		aux.Regex = defaultRelabelConfig.Regex
	}

	return rc.validate()
}

func (rc *RelabelConfig) validate() error {
	if rc.Action == "" {
		return fmt.Errorf("relabel action cannot be empty")
	}
	if _, ok := knownRelabelActions[rc.Action]; !ok {
		return fmt.Errorf("unknown relabel action %q", rc.Action)
	}
	if rc.Modulus == 0 && rc.Action == HashMod {
		return fmt.Errorf("relabel configuration for hashmod requires non-zero modulus")
	}
	if (rc.Action == Replace || rc.Action == HashMod || rc.Action == Lowercase || rc.Action == Uppercase) && rc.TargetLabel == "" {
		return fmt.Errorf("relabel configuration for %s action requires 'target_label' value", rc.Action)
	}
	if (rc.Action == Replace || rc.Action == Lowercase || rc.Action == Uppercase) && !relabelTargetPattern.MatchString(rc.TargetLabel) {
		return fmt.Errorf("%q is invalid 'target_label' for %s action", rc.TargetLabel, rc.Action)
	}
	if (rc.Action == Lowercase || rc.Action == Uppercase) && rc.Replacement != defaultRelabelConfig.Replacement {
		return fmt.Errorf("'replacement' cannot be set for %s action", rc.Action)
	}
	if rc.Action == LabelMap && !relabelTargetPattern.MatchString(rc.Replacement) {
		return fmt.Errorf("%q is invalid 'replacement' for %s action", rc.Replacement, rc.Action)
	}
	if rc.Action == HashMod && !model.LabelName(rc.TargetLabel).IsValid() {
		return fmt.Errorf("%q is invalid 'target_label' for %s action", rc.TargetLabel, rc.Action)
	}
	if rc.Action == KeepEqual || rc.Action == DropEqual {
		if rc.TargetLabel == "" {
			return fmt.Errorf("relabel configuration for %s action requires 'target_label' value", rc.Action)
		}
		if rc.Regex.original != defaultRelabelConfig.Regex.original || rc.Replacement != defaultRelabelConfig.Replacement {
			return fmt.Errorf("%s action requires only 'source_labels' and 'target_label', and no other fields", rc.Action)
		}
	}
	if rc.Action == LabelDrop || rc.Action == LabelKeep {
		if rc.SourceLabels != nil ||
			rc.TargetLabel != defaultRelabelConfig.TargetLabel ||
			rc.Modulus != defaultRelabelConfig.Modulus ||
			rc.Separator != defaultRelabelConfig.Separator ||
			rc.Replacement != defaultRelabelConfig.Replacement {
			return fmt.Errorf("%s action requires only 'regex', and no other fields", rc.Action)
		}
	}
	return nil
}
