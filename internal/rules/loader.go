package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidationError describes one problem found in a ruleset file
type ValidationError struct {
	File    string
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Load parses a ruleset YAML file. Schema validation is the Validator's job;
// Load only guarantees well-formed YAML and sane cross-field values.
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset: %w", err)
	}

	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset YAML: %w", err)
	}

	if errs := checkSemantics(path, &rs); len(errs) > 0 {
		return nil, fmt.Errorf("invalid ruleset: %s", errs[0].Error())
	}

	return &rs, nil
}

// checkSemantics applies validation rules beyond what the JSON schema
// can express.
func checkSemantics(file string, rs *Ruleset) []ValidationError {
	var errs []ValidationError

	g := rs.Domains.Grid
	if !(g.CriticalMarginPct < g.WarningMarginPct && g.WarningMarginPct < g.WatchMarginPct) {
		errs = append(errs, ValidationError{
			File:    file,
			Path:    "domains.grid",
			Message: "margin tiers must be strictly increasing (critical < warning < watch)",
		})
	}

	if _, err := ParseDuration(rs.Domains.Water.CriticalWindow); err != nil {
		errs = append(errs, ValidationError{
			File:    file,
			Path:    "domains.water.criticalWindow",
			Message: err.Error(),
		})
	}

	seen := make(map[string]bool)
	for i, c := range rs.Composites {
		path := fmt.Sprintf("composites[%d]", i)
		if seen[c.Code] {
			errs = append(errs, ValidationError{
				File:    file,
				Path:    path + ".code",
				Message: fmt.Sprintf("duplicate composite code %q", c.Code),
			})
		}
		seen[c.Code] = true

		if len(c.Domains) < 2 {
			errs = append(errs, ValidationError{
				File:    file,
				Path:    path + ".domains",
				Message: "composite rules require at least two domains",
			})
		}
		if !c.Escalate && c.Level == "" {
			errs = append(errs, ValidationError{
				File:    file,
				Path:    path,
				Message: "either level or escalate must be set",
			})
		}
	}

	if rs.Market.ModerateMovePct <= 0 || rs.Market.StrongMovePct <= rs.Market.ModerateMovePct {
		errs = append(errs, ValidationError{
			File:    file,
			Path:    "market",
			Message: "move thresholds must satisfy 0 < moderate < strong",
		})
	}

	s := rs.Sentiment
	if s.TriggerScore >= 0 || s.StrongScore >= 0 || s.StrongScore > s.TriggerScore {
		errs = append(errs, ValidationError{
			File:    file,
			Path:    "sentiment",
			Message: "sentiment thresholds must be negative with strong <= trigger",
		})
	}

	return errs
}
