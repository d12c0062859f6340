package replication

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// stateFile mirrors the remote state.yaml document. Only the sequence
// line is required; anything else the upstream publishes is ignored.
type stateFile struct {
	Sequence int64 `yaml:"sequence"`
}

// ParseState extracts the tip sequence number from a state.yaml body.
func ParseState(body []byte) (int64, error) {
	var s stateFile
	if err := yaml.Unmarshal(body, &s); err != nil {
		return 0, fmt.Errorf("parse state file: %w", err)
	}
	if s.Sequence <= 0 {
		return 0, fmt.Errorf("state file has no sequence line")
	}
	return s.Sequence, nil
}
