package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// applyRawOverrides merges raw (a caller-supplied JSON object of
// adapter-specific launch/attach fields) on top of base, field by
// field, preserving keys base does not model and letting raw override
// keys it does. Used instead of unmarshaling raw into a typed struct
// because the set of adapter-specific launch fields is open-ended and
// versioned per adapter release (debugpy and vscode-js-debug each add
// fields AIDB has no reason to model ahead of time).
func applyRawOverrides(base map[string]any, raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return base, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("launch configuration overrides are not valid JSON")
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshaling base launch configuration: %w", err)
	}

	merged := baseJSON
	parsed := gjson.ParseBytes(raw)
	var setErr error
	parsed.ForEach(func(key, value gjson.Result) bool {
		merged, setErr = sjson.SetBytes(merged, key.String(), value.Value())
		return setErr == nil
	})
	if setErr != nil {
		return nil, fmt.Errorf("applying launch configuration overrides: %w", setErr)
	}

	var result map[string]any
	if err := json.Unmarshal(merged, &result); err != nil {
		return nil, fmt.Errorf("decoding merged launch configuration: %w", err)
	}
	return result, nil
}
