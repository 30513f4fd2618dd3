package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadPhaseModels reads a YAML file mapping phase names to model settings:
//
//	identity:
//	  model: claude-haiku-4-5
//	  fallback: gemini-2.5-flash
//	  temperature: 0.1
func LoadPhaseModels(path string) (map[string]ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read models file %s", path)
	}

	var out map[string]ModelConfig
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "config: parse models file %s", path)
	}
	return out, nil
}

// MergePhaseModels overlays non-zero fields of overrides onto base.
// RequiresJSON is only ever switched on by an override.
func MergePhaseModels(base, overrides map[string]ModelConfig) map[string]ModelConfig {
	out := make(map[string]ModelConfig, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, o := range overrides {
		mc := out[k]
		if o.Model != "" {
			mc.Model = o.Model
		}
		if o.Fallback != "" {
			mc.Fallback = o.Fallback
		}
		if o.Temperature != 0 {
			mc.Temperature = o.Temperature
		}
		if o.MaxTokens != 0 {
			mc.MaxTokens = o.MaxTokens
		}
		if o.RequiresJSON {
			mc.RequiresJSON = true
		}
		if o.TimeoutSecs != 0 {
			mc.TimeoutSecs = o.TimeoutSecs
		}
		out[k] = mc
	}
	return out
}
