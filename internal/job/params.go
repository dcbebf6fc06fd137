// Package job holds the job bodies invoked by the dispatcher. Each body takes
// its parameters as the task's raw JSON payload, ignores unknown keys, and
// reports progress through the returned result summary.
package job

import (
	"bytes"
	"encoding/json"
)

// decodeParams fills dst from raw task parameters. Empty payloads leave the
// destination's defaults alone; unknown keys are ignored.
func decodeParams(raw []byte, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	return json.Unmarshal(trimmed, dst)
}
