package artifact

import (
	"encoding/json"
	"fmt"
)

// FinishedName is the per-step marker file Prow writes when a step's
// pod terminates.
const FinishedName = "finished.json"

// Finished is the parsed content of a finished.json marker.
type Finished struct {
	Timestamp int64  `json:"timestamp"`
	Passed    *bool  `json:"passed"`
	Result    string `json:"result"`
}

// OK reports whether the step's pod succeeded. A missing "passed" field
// counts as a failure, matching how an abruptly killed pod looks.
func (f *Finished) OK() bool {
	return f.Passed != nil && *f.Passed
}

// ParseFinished decodes a finished.json document.
func ParseFinished(data []byte) (*Finished, error) {
	var f Finished
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse finished.json: %w", err)
	}
	return &f, nil
}
